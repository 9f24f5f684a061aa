// Package errors defines the error-kind taxonomy shared across the decision
// pipeline. Each kind names a class of failure, not a specific type, so
// callers match on Kind rather than on concrete error values.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the orchestrator can decide continue-vs-abort
// without inspecting error strings.
type Kind string

const (
	// KindTransport covers network/HTTP failures talking to the broker,
	// market-data, or LLM APIs.
	KindTransport Kind = "TRANSPORT"
	// KindParse covers malformed LLM JSON or other structured-response
	// decoding failures.
	KindParse Kind = "PARSE"
	// KindRiskRejection is a pre-trade gate veto. Not a defect — a normal,
	// expected outcome of the risk manager.
	KindRiskRejection Kind = "RISK_REJECTION"
	// KindCircuitBreaker signals a RED circuit-breaker abort at cycle entry.
	KindCircuitBreaker Kind = "CIRCUIT_BREAKER"
	// KindPersistence covers database failures.
	KindPersistence Kind = "PERSISTENCE"
	// KindConfig covers invalid or missing configuration at startup. Fatal.
	KindConfig Kind = "CONFIG"
)

// Error wraps an underlying error with a Kind and a component name so logs
// and audit entries can be filtered by failure class.
type Error struct {
	Kind      Kind
	Component string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Component, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind.
func New(kind Kind, component, message string, err error) *Error {
	return &Error{Kind: kind, Component: component, Message: message, Err: err}
}

// Is reports whether err (or any error it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsRiskRejection is a convenience predicate used by callers that want to
// treat a risk veto as a normal outcome rather than an error to log loudly.
func IsRiskRejection(err error) bool { return Is(err, KindRiskRejection) }
