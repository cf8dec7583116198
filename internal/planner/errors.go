package planner

import (
	"errors"
	"fmt"
	"time"
)

// PlanningError means no plan could be produced at all (empty agent set,
// unusable query). There is no partial result.
type PlanningError struct {
	Reason string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %s", e.Reason)
}

// ValidationError means a generated plan referenced unknown agents or tools
// in every step. Callers with a fallback strategy should engage it.
type ValidationError struct {
	Dropped []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plan validation failed: all %d steps referenced unknown agents or tools: %v",
		len(e.Dropped), e.Dropped)
}

// TimeoutError means generative planning exceeded its deadline.
type TimeoutError struct {
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("planner timed out after %s", e.Elapsed)
}

// ExhaustedError means both hybrid branches failed; it is the terminal
// planning failure.
type ExhaustedError struct {
	PrimaryErr   error
	SecondaryErr error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("planning exhausted: primary: %v; secondary: %v", e.PrimaryErr, e.SecondaryErr)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{e.PrimaryErr, e.SecondaryErr}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}
