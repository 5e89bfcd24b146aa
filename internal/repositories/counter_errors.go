package repositories

import (
	"errors"
	"fmt"
)

// CounterErrorCode enumerates failure reasons for counter operations.
type CounterErrorCode string

const (
	CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"
	// CounterErrorExhausted indicates a configured max value would be exceeded.
	CounterErrorExhausted CounterErrorCode = "counter_exhausted"
)

// CounterError wraps counter-specific failures with machine readable codes.
type CounterError struct {
	CounterID string
	Code      CounterErrorCode
	Message   string
}

func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	if e.CounterID != "" {
		return fmt.Sprintf("counter %s: %s", e.CounterID, e.Message)
	}
	return "counter: " + e.Message
}

// NewCounterError constructs a typed counter error.
func NewCounterError(counterID string, code CounterErrorCode, message string) *CounterError {
	if message == "" {
		message = string(code)
	}
	return &CounterError{CounterID: counterID, Code: code, Message: message}
}

// CounterErrorCodeOf returns the code of the CounterError in err's chain.
func CounterErrorCodeOf(err error) (CounterErrorCode, bool) {
	var counterErr *CounterError
	if errors.As(err, &counterErr) {
		return counterErr.Code, true
	}
	return "", false
}
