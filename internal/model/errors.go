package model

import "fmt"

// ErrorKind classifies a per-log processing failure. The set is closed:
// handlers report one of these instead of propagating raw errors, so the
// ingestion loop can branch on the outcome and keep going.
type ErrorKind string

const (
	// ErrMissingTxHash and ErrMissingTopic mark malformed logs. They are
	// fatal to that log and never retried automatically.
	ErrMissingTxHash ErrorKind = "missing_tx_hash"
	ErrMissingTopic  ErrorKind = "missing_topic"

	// ErrDecode means the payload was present but unparseable.
	ErrDecode ErrorKind = "decode_error"

	// ErrEntityNotFound means the referenced auction or bid does not exist
	// yet. Usually a causal-ordering race: the log becomes processable once
	// its prerequisite event lands and the log is re-delivered or re-scanned.
	ErrEntityNotFound ErrorKind = "entity_not_found"

	// ErrMissingParams means the event decoded but a required parameter was
	// absent.
	ErrMissingParams ErrorKind = "missing_params"

	// ErrStore is a persistence failure. Fatal to the current log only.
	ErrStore ErrorKind = "store_error"

	// ErrValidation means decoded values failed a domain invariant, e.g. a
	// sale-step schedule that does not sum to 100%.
	ErrValidation ErrorKind = "validation_error"
)

// LogError is a classified per-log failure.
type LogError struct {
	Kind    ErrorKind
	Event   string
	Message string
}

func (e *LogError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Event, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewLogError builds a classified failure for an event.
func NewLogError(kind ErrorKind, event, format string, args ...interface{}) *LogError {
	return &LogError{Kind: kind, Event: event, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing auction or bid referenced by an event.
func NotFound(event, format string, args ...interface{}) *LogError {
	return NewLogError(ErrEntityNotFound, event, format, args...)
}

// MissingParam reports an absent required parameter, naming the event and
// the parameter.
func MissingParam(event, param string) *LogError {
	return NewLogError(ErrMissingParams, event, "missing required parameter %q", param)
}

// ClassifyError maps an arbitrary error to its ErrorKind, defaulting to
// decode_error for unclassified failures inside the decode path and
// store_error elsewhere.
func ClassifyError(err error, fallback ErrorKind) ErrorKind {
	if le, ok := err.(*LogError); ok {
		return le.Kind
	}
	return fallback
}
