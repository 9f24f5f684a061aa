// Package signal scores features into BUY/SELL/HOLD signals, grounded on
// original_source/backend/app/ml/signal_engine.py's SignalEngine. The
// offline-trained classifier itself is out of scope (SPEC_FULL.md §4.3);
// a nil Classifier falls through to the documented heuristic exactly as
// the original's _predict does when no model is on disk.
package signal

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/auroratrading/core/internal/domain"
	"github.com/auroratrading/core/internal/features"
)

// MinConfidence is the floor below which a scored signal is discarded
// rather than persisted, matching SignalEngine.MIN_CONFIDENCE.
const MinConfidence = 0.65

// ErrNoModel signals that a Classifier has nothing loaded and the caller
// should treat its Predict call as "fall back to heuristic."
var ErrNoModel = errors.New("no model loaded")

// Classifier is the pluggable prediction backend. The offline training
// pipeline that produces one is out of scope; this interface is the only
// contract the scorer depends on.
type Classifier interface {
	Predict(vector []float64) (action string, probs map[string]float64, version string, err error)
}

// Scorer builds features and turns them into a Signal.
type Scorer struct {
	classifier Classifier
	builder    *features.Builder
}

// NewScorer constructs a Scorer. classifier may be nil.
func NewScorer(classifier Classifier) *Scorer {
	return &Scorer{classifier: classifier, builder: features.NewBuilder()}
}

// Score builds the feature vector and returns a pending Signal, or nil if
// the resulting confidence is below MinConfidence (the original's "don't
// even create a signal" behavior).
func (s *Scorer) Score(symbol string, ind domain.IndicatorSnapshot, market domain.MarketContext) (*domain.Signal, error) {
	featMap := s.builder.Build(ind, market)

	action, confidence, version := s.predict(featMap)
	if confidence < MinConfidence {
		return nil, nil
	}

	return &domain.Signal{
		DecisionChainID:  uuid.New(),
		Symbol:           symbol,
		Action:           domain.Action(action),
		Confidence:       confidence,
		ModelVersion:     version,
		FeaturesSnapshot: featMap,
		Status:           domain.SignalPending,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

func (s *Scorer) predict(featMap map[string]float64) (action string, confidence float64, version string) {
	if s.classifier != nil {
		vec, err := s.builder.Vector(featMap)
		if err == nil {
			act, probs, ver, predErr := s.classifier.Predict(vec)
			if predErr == nil && !errors.Is(predErr, ErrNoModel) {
				return s.fromProbs(act, probs, ver)
			}
		}
	}
	act, conf := heuristic(featMap)
	return act, conf, "heuristic-v1"
}

func (s *Scorer) fromProbs(predicted string, probs map[string]float64, version string) (string, float64, string) {
	buy, hold, sell := probs["BUY"], probs["HOLD"], probs["SELL"]
	switch {
	case buy > MinConfidence:
		return "BUY", buy, version
	case sell > MinConfidence:
		return "SELL", sell, version
	default:
		return "HOLD", hold, version
	}
}

// heuristic mirrors SignalEngine._predict_heuristic's weighted scoring.
func heuristic(feat map[string]float64) (string, float64) {
	var score, weights float64

	rsi := orDefault(feat["rsi_14"], 50)
	switch {
	case rsi < 30:
		score += 2.0
	case rsi > 70:
		score -= 2.0
	case rsi < 45:
		score += 0.5
	case rsi > 55:
		score -= 0.5
	}
	weights += 2.0

	if feat["macd_histogram"] > 0 {
		score += 1.0
	} else {
		score -= 1.0
	}
	weights += 1.0

	score += feat["trend_alignment_score"] * 2.0
	weights += 2.0

	score += feat["volume_price_confirmation"] * 1.0
	weights += 1.0

	bbPos := orDefault(feat["bb_position"], 0.5)
	switch {
	case bbPos < 0.2:
		score += 1.5
	case bbPos > 0.8:
		score -= 1.5
	}
	weights += 1.5

	var normalized float64
	if weights > 0 {
		normalized = score / weights
	}

	switch {
	case normalized > 0.3:
		return "BUY", min(0.5+normalized*0.3, 0.85)
	case normalized < -0.3:
		return "SELL", min(0.5+abs(normalized)*0.3, 0.85)
	default:
		return "HOLD", 0.5+(1-abs(normalized))*0.2
	}
}

// TopFeatures returns the n features with largest absolute value, used to
// keep the signal_generated audit entry compact, as in _get_top_features.
func TopFeatures(feat map[string]float64, n int) map[string]float64 {
	type kv struct {
		k string
		v float64
	}
	sorted := make([]kv, 0, len(feat))
	for k, v := range feat {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool { return abs(sorted[i].v) > abs(sorted[j].v) })
	if n > len(sorted) {
		n = len(sorted)
	}
	out := make(map[string]float64, n)
	for _, e := range sorted[:n] {
		out[e.k] = e.v
	}
	return out
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
