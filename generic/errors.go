/*
errors.go - Centralized error types for the reconciliation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Configuration errors - A dataset lacks a required header. Blocking:
     the operation aborts and no derived view changes.
  2. User-input errors - A manual contract number that does not exist, an
     edit on an ignored charge, an inverted date range.
  3. Not found - Unknown record ids.

  Lookup misses (no contract for a charge) and unparseable cells are NOT
  errors. They resolve to "unmatched" / "absent" inside a single record.

USAGE:
    if errors.Is(err, generic.ErrMissingHeader) {
        // tell the user which column to add
    }

SEE ALSO:
  - schema.go: Produces MissingHeaderError
  - charges/resolver.go: Produces ContractNotFoundError
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingHeader is returned when a dataset has none of the accepted
	// header names for a required field.
	ErrMissingHeader = errors.New("missing required header")

	// ErrContractNotFound is returned when a manual match names a contract
	// number that is not in the contract dataset.
	ErrContractNotFound = errors.New("contract not found")

	// ErrChargeNotFound is returned when an edit targets an unknown charge id.
	ErrChargeNotFound = errors.New("charge not found")

	// ErrChargeIgnored is returned when a manual match targets an ignored
	// charge. Ignored is terminal until the charges are re-uploaded.
	ErrChargeIgnored = errors.New("charge is ignored")

	// ErrInvalidRange is returned when a date range is unreadable or its end
	// falls before its start.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrUnsupportedFile is returned by ingestion for unknown file types.
	ErrUnsupportedFile = errors.New("unsupported file type")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MissingHeaderError names the dataset, the canonical field and every header
// name that would have been accepted.
type MissingHeaderError struct {
	Dataset    string
	Field      string
	Candidates []string
	Suggestion string // closest available header, may be empty
}

func (e *MissingHeaderError) Error() string {
	msg := fmt.Sprintf("%s: no %s column (expected one of %s)",
		e.Dataset, e.Field, strings.Join(quoteAll(e.Candidates), ", "))
	if e.Suggestion != "" {
		msg += fmt.Sprintf("; did you mean %q?", e.Suggestion)
	}
	return msg
}

func (e *MissingHeaderError) Unwrap() error {
	return ErrMissingHeader
}

// ContractNotFoundError carries the contract number the user typed.
type ContractNotFoundError struct {
	Number string
}

func (e *ContractNotFoundError) Error() string {
	return fmt.Sprintf("contract %q not found", e.Number)
}

func (e *ContractNotFoundError) Unwrap() error {
	return ErrContractNotFound
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsConfigurationError returns true if the error comes from a dataset's shape.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrMissingHeader)
}

// IsClientError returns true if the error is due to invalid user input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrContractNotFound) ||
		errors.Is(err, ErrChargeIgnored) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrUnsupportedFile)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrChargeNotFound)
}
