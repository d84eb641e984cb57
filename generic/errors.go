/*
errors.go - Centralized error types for the renewal engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Packages wrap these errors with context using fmt.Errorf("...: %w").

ERROR CATEGORIES:
  1. Contract errors - Malformed input handed to the aggregator (fatal)
  2. Period errors - One renewal failed to compute (recovered as data)
  3. Store errors - Missing records, duplicate idempotency keys

USAGE:
  if errors.Is(err, generic.ErrInvalidPeriod) {
      // programming error, the whole call failed
  }

  var fetchErr *generic.PeriodFetchError
  if errors.As(err, &fetchErr) {
      log.Printf("renewal %s failed", fetchErr.RenewalID)
  }

SEE ALSO:
  - beneficiary/aggregator.go: Turns PeriodFetchError into snapshot data
  - api/handlers.go: Maps errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrMissingCapability is returned when a required collaborator is absent
	// (a renewal without a stats fetcher, a right without a unit presenter).
	ErrMissingCapability = errors.New("missing required capability")

	// ErrInvalidQuantity is returned for negative or unparsable quantities.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	ErrRightNotFound   = errors.New("right not found")
	ErrRenewalNotFound = errors.New("renewal not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrUserNotFound    = errors.New("user not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// PeriodFetchError records that the statistics of one renewal could not be
// computed. It never aborts an aggregation.
type PeriodFetchError struct {
	RenewalID RenewalID
	Err       error
}

func (e *PeriodFetchError) Error() string {
	return fmt.Sprintf("renewal %s: %v", e.RenewalID, e.Err)
}

func (e *PeriodFetchError) Unwrap() error {
	return e.Err
}

// ContractError describes malformed input handed to the aggregator.
type ContractError struct {
	Index  int    // position of the offending renewal, -1 when not renewal specific
	Field  string // e.g. "finish", "stats", "presenter"
	Reason error  // ErrInvalidPeriod or ErrMissingCapability, possibly wrapped
}

func (e *ContractError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("contract violation on %s: %v", e.Field, e.Reason)
	}
	return fmt.Sprintf("contract violation on renewal #%d %s: %v", e.Index, e.Field, e.Reason)
}

func (e *ContractError) Unwrap() error {
	return e.Reason
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRightNotFound) ||
		errors.Is(err, ErrRenewalNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrUserNotFound)
}
