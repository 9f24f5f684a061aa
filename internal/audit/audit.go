// Package audit implements the append-only decision journal. Every
// component routes its events through Journal.Log so the same redaction
// and decision-chain wiring applies everywhere, grounded on
// original_source/backend/app/core/audit_logger.py's AuditLogger.
package audit

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auroratrading/core/internal/domain"
)

// sensitiveSubstrings are matched case-insensitively against any map key,
// at any nesting depth, per the redaction rule in spec.md.
var sensitiveSubstrings = []string{"password", "token", "secret", "key", "jwt"}

// Store is the persistence dependency the journal writes through.
type Store interface {
	AppendAudit(domain.AuditEntry) error
	GetChain(uuid.UUID) ([]domain.AuditEntry, error)
}

// Journal is the audit logger. It is safe for concurrent use.
type Journal struct {
	store Store
	log   *zap.Logger
}

// New builds a Journal over the given store and logger.
func New(store Store, log *zap.Logger) *Journal {
	return &Journal{store: store, log: log.Named("audit")}
}

// Log appends one audit entry, redacting details recursively first.
func (j *Journal) Log(eventType string, details map[string]any, opts ...Option) error {
	o := options{severity: domain.SeverityInfo, component: "system"}
	for _, opt := range opts {
		opt(&o)
	}

	entry := domain.AuditEntry{
		Timestamp:       time.Now().UTC(),
		EventType:       eventType,
		Severity:        o.severity,
		Component:       o.component,
		Symbol:          o.symbol,
		Details:         redact(details),
		DecisionChainID: o.chainID,
	}

	if err := j.store.AppendAudit(entry); err != nil {
		return err
	}

	j.log.Info(eventType,
		zap.String("severity", string(o.severity)),
		zap.String("component", o.component),
		zap.String("symbol", o.symbol),
	)
	return nil
}

// LogChain is a convenience wrapper for events tied to a decision chain.
func (j *Journal) LogChain(chainID uuid.UUID, eventType, component string, details map[string]any, opts ...Option) error {
	return j.Log(eventType, details, append(opts, WithComponent(component), WithChain(chainID))...)
}

// GetChain returns every audit entry for a decision chain, oldest first.
func (j *Journal) GetChain(id uuid.UUID) ([]domain.AuditEntry, error) {
	return j.store.GetChain(id)
}

type options struct {
	component string
	symbol    string
	severity  domain.Severity
	chainID   *uuid.UUID
}

// Option configures one Log call.
type Option func(*options)

func WithComponent(c string) Option { return func(o *options) { o.component = c } }
func WithSymbol(s string) Option    { return func(o *options) { o.symbol = s } }
func WithSeverity(s domain.Severity) Option { return func(o *options) { o.severity = s } }
func WithChain(id uuid.UUID) Option { return func(o *options) { o.chainID = &id } }

// redact walks a details map recursively, replacing any non-map value whose
// key contains a sensitive substring (case-insensitive) with a fixed marker.
// A nested map is always walked rather than replaced, whatever its key.
func redact(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if nested, ok := v.(map[string]any); ok {
			out[k] = redact(nested)
			continue
		}
		if isSensitiveKey(k) {
			out[k] = "***REDACTED***"
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
