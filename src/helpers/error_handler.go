package helpers

import (
	"fmt"
	"time"

	"market-stream/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type StreamError struct {
	Message string
	Cause   error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Distinct error kinds for errors.As checks
type ConnectionError struct{ StreamError }
type SubscriptionWarning struct{ StreamError }
type MalformedMessageError struct{ StreamError }
type ValidationError struct{ StreamError }
type DatabaseError struct{ StreamError }

func NewConnectionError(msg string, cause error) *ConnectionError {
	return &ConnectionError{StreamError{Message: msg, Cause: cause}}
}

func NewSubscriptionWarning(msg string) *SubscriptionWarning {
	return &SubscriptionWarning{StreamError{Message: msg}}
}

func NewMalformedMessageError(msg string, cause error) *MalformedMessageError {
	return &MalformedMessageError{StreamError{Message: msg, Cause: cause}}
}

func NewValidationError(msg string, cause error) *ValidationError {
	return &ValidationError{StreamError{Message: msg, Cause: cause}}
}

func NewDatabaseError(msg string, cause error) *DatabaseError {
	return &DatabaseError{StreamError{Message: msg, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Backoff
// -----------------------------------------------------------------------------

// ReconnectDelay picks the delay for a zero based attempt; the last entry repeats.
func ReconnectDelay(delays []time.Duration, attempt int) time.Duration {
	if len(delays) == 0 {
		return time.Second
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(delays) {
		attempt = len(delays) - 1
	}
	return delays[attempt]
}

// -----------------------------------------------------------------------------

// MillisToDurations converts a config list of milliseconds.
func MillisToDurations(ms []int) []time.Duration {
	out := make([]time.Duration, 0, len(ms))
	for _, v := range ms {
		out = append(out, time.Duration(v)*time.Millisecond)
	}
	return out
}

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

type ErrorHandler struct {
	Logger *logger.Logger
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	return &ErrorHandler{Logger: log}
}

// -----------------------------------------------------------------------------

// Handle logs err with its context; warnings are logged below error level.
func (e *ErrorHandler) Handle(err error, context string) {
	if err == nil {
		return
	}
	switch err.(type) {
	case *SubscriptionWarning, *MalformedMessageError:
		e.Logger.Warning("%s: %v", context, err)
	default:
		e.Logger.Error("Error in %s: %v", context, err)
	}
}

// -----------------------------------------------------------------------------

// Recover turns a panic in a callback into a logged error.
func (e *ErrorHandler) Recover(context string) {
	if r := recover(); r != nil {
		e.Logger.Error("Recovered panic in %s: %v", context, r)
	}
}
