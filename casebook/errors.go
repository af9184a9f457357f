/*
errors.go - Error types for the casebook service

PURPOSE:
  The derivation engine in package units never fails; every error a caller
  sees comes from here. They fall into two groups: missing documents, and
  input rejected when an authorization or adjustment is saved.

USAGE:
  if casebook.IsNotFound(err) {
      // 404
  }
  if casebook.IsClientError(err) {
      // 400
  }

SEE ALSO:
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package casebook

import (
	"errors"
	"fmt"

	"github.com/warp/casebook/units"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned by a DocumentStore when a document does not exist.
	ErrNotFound = errors.New("document not found")

	ErrProfileNotFound       = errors.New("profile not found")
	ErrEntryNotFound         = errors.New("service entry not found")
	ErrAuthorizationNotFound = errors.New("authorization not found")
	ErrAdjustmentNotFound    = errors.New("adjustment not found")

	// ErrInvalidAdjustmentType is returned for adjustment types outside the
	// known set (including the legacy increase/decrease aliases).
	ErrInvalidAdjustmentType = errors.New("invalid adjustment type")

	// ErrInvalidDateRange is returned when a saved authorization has a missing
	// or unparseable date, or ends before it starts.
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvalidInput covers any other rejected field.
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// DateRangeError describes a rejected authorization period.
type DateRangeError struct {
	Start units.Date
	End   units.Date
}

func (e *DateRangeError) Error() string {
	return fmt.Sprintf("invalid date range: %q to %q", e.Start, e.End)
}

func (e *DateRangeError) Unwrap() error {
	return ErrInvalidDateRange
}

// AdjustmentTypeError carries the rejected adjustment type.
type AdjustmentTypeError struct {
	Type string
}

func (e *AdjustmentTypeError) Error() string {
	return fmt.Sprintf("invalid adjustment type %q", e.Type)
}

func (e *AdjustmentTypeError) Unwrap() error {
	return ErrInvalidAdjustmentType
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrProfileNotFound) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrAuthorizationNotFound) ||
		errors.Is(err, ErrAdjustmentNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAdjustmentType) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrInvalidInput)
}
