package models

import (
	"fmt"
	"time"

	dErrors "faucet/pkg/domain-errors"
)

// ThrottledError is returned when an identity is inside its cooldown window.
// It unwraps to a CodeThrottled domain error so transports map it like any
// other coded error.
type ThrottledError struct {
	MinutesRemaining int
	RetryAt          time.Time
}

func NewThrottledError(decision CooldownDecision) *ThrottledError {
	return &ThrottledError{MinutesRemaining: decision.MinutesRemaining, RetryAt: decision.RetryAt}
}

func (e *ThrottledError) Error() string {
	return e.Message()
}

// Message is the user-visible text.
func (e *ThrottledError) Message() string {
	return fmt.Sprintf("Try again in %d minutes", e.MinutesRemaining)
}

func (e *ThrottledError) Unwrap() error {
	return dErrors.New(dErrors.CodeThrottled, e.Message())
}
