package service

import (
	"errors"
	"fmt"

	"github.com/adiga-code/numerology/internal/database"
)

var (
	// ErrNotCompleted is returned when a report is requested for an order
	// that has not been delivered yet.
	ErrNotCompleted = errors.New("order is not completed")

	ErrArtifactMissing = errors.New("report file is missing")

	// ErrInvalidResult rejects a generation result that cannot be applied.
	ErrInvalidResult = errors.New("invalid generation result")

	ErrNoSession      = errors.New("no active session")
	ErrNotOwner       = errors.New("order belongs to another user")
	ErrAmountMismatch = errors.New("payment amount does not match order")
	ErrInvalidRating  = errors.New("rating must be between 1 and 5")
	ErrInvalidPayload = errors.New("invalid invoice payload")
)

// ProviderError is a failed or timed out submission to a report provider.
// The order has already been moved to failed when it is returned.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ConfigurationError means the pipeline cannot run at all, e.g. no report
// provider is configured. The order status is left untouched.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

// DeliveryError is a failure to hand the report to the user.
type DeliveryError struct {
	OrderID int64
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver order %d: %v", e.OrderID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Permanent reports whether retrying the same call cannot change the outcome.
func Permanent(err error) bool {
	var (
		pe *ProviderError
		ce *ConfigurationError
		de *DeliveryError
	)
	return errors.As(err, &pe) || errors.As(err, &ce) || errors.As(err, &de) ||
		errors.Is(err, database.ErrConcurrentModification) ||
		errors.Is(err, database.ErrNotFound)
}
