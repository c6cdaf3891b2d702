// cmd/kagerou/errors.go
package main

import (
	"errors"
	"fmt"
)

// ErrorType categorizes errors by the component that raised them.
type ErrorType string

const (
	ErrorTypeSource    ErrorType = "source"
	ErrorTypeSink      ErrorType = "sink"
	ErrorTypeState     ErrorType = "state"
	ErrorTypeConfig    ErrorType = "config"
	ErrorTypeScheduler ErrorType = "scheduler"
	ErrorTypeDiscord   ErrorType = "discord"
	ErrorTypeInternal  ErrorType = "internal"
)

// SourceKind classifies upstream fetch failures. The scheduler treats the
// kinds differently: unavailable and rate-limited retry on the next cadence,
// not-found is surfaced to the operator but keeps the schedule, auth-required
// keeps failing visibly until reconfigured, malformed degrades to an empty
// batch.
type SourceKind string

const (
	SourceUnavailable  SourceKind = "unavailable"
	SourceRateLimited  SourceKind = "rate_limited"
	SourceNotFound     SourceKind = "not_found"
	SourceAuthRequired SourceKind = "auth_required"
	SourceMalformed    SourceKind = "malformed"
)

// SourceError is returned by item sources.
type SourceError struct {
	Kind   SourceKind
	Source string
	Inner  error
}

func (e *SourceError) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("source %s: %s: %v", e.Source, e.Kind, e.Inner)
	}
	return fmt.Sprintf("source %s: %s", e.Source, e.Kind)
}

func (e *SourceError) Unwrap() error { return e.Inner }

// NewSourceError wraps err as a classified source failure.
func NewSourceError(kind SourceKind, source string, err error) *SourceError {
	return &SourceError{Kind: kind, Source: source, Inner: err}
}

// SourceErrorKind extracts the classification from err, defaulting to
// unavailable for unclassified failures.
func SourceErrorKind(err error) SourceKind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return SourceUnavailable
}

// Sentinel errors for the seen-state store.
var (
	// ErrStateCorrupt is returned when persisted state exists but cannot be
	// decoded. Callers fall back to a null marker and warn; they never crash.
	ErrStateCorrupt = errors.New("seen-state store: corrupt state")

	// ErrSinkDelivery marks a failed send. The marker is never advanced past
	// the last item that was actually delivered.
	ErrSinkDelivery = errors.New("sink: delivery failed")
)

// KagerouError is the application error type, carrying the component taxonomy
// used by the error funnel and the status API.
type KagerouError struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Component string    `json:"component"`
	Inner     error     `json:"-"`
}

func (e *KagerouError) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("[%s-%s] %s: %v", e.Type, e.Code, e.Message, e.Inner)
	}
	return fmt.Sprintf("[%s-%s] %s", e.Type, e.Code, e.Message)
}

func (e *KagerouError) Unwrap() error { return e.Inner }

// NewError creates a new KagerouError.
func NewError(errType ErrorType, code string, message string, inner error) *KagerouError {
	return &KagerouError{Type: errType, Code: code, Message: message, Inner: inner}
}

// Error codes.
const (
	ErrCodeSourceFetch   = "SRC_001"
	ErrCodeSourceExhaust = "SRC_002"
	ErrCodeSinkSend      = "SINK_001"
	ErrCodeStateLoad     = "STATE_001"
	ErrCodeStateSave     = "STATE_002"
	ErrCodeConfigLoad    = "CONFIG_001"
	ErrCodeConfigInvalid = "CONFIG_002"
	ErrCodeSchedulerTask = "SCHED_001"
)

// Error severity levels.
const (
	ErrorSeverityLow    = 0
	ErrorSeverityMedium = 1
	ErrorSeverityHigh   = 2
	ErrorSeverityFatal  = 3
)

// IsTransient reports whether an error is likely to clear on its own by the
// next tick.
func IsTransient(err error) bool {
	var se *SourceError
	if errors.As(err, &se) {
		switch se.Kind {
		case SourceUnavailable, SourceRateLimited:
			return true
		}
	}
	return errors.Is(err, ErrSinkDelivery)
}

// HandleError logs an error through the component funnel and exits the
// process on fatal severity. Fatal is reserved for startup: per-subject
// errors are always sub-fatal so one bad tick never takes the scheduler down.
func HandleError(message string, err error, component string, severity int) {
	errorMsg := fmt.Sprintf("%s: %v", message, err)

	Log().Error("[%s] %s", component, errorMsg)
	RecordError(errorMsg)

	if severity >= ErrorSeverityFatal {
		Log().Fatal("FATAL ERROR: %s", errorMsg)
	}
}
