package domain

import "fmt"

// ValidationError rejects bad client input before any side effect.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order submission: %s", e.Reason)
}

// PersistenceError wraps a database failure after the transaction has been
// rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PublishError marks an event emission failure after a successful commit.
// It is logged by the caller, never surfaced to API clients.
type PublishError struct {
	DetailType string
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s failed: %v", e.DetailType, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
