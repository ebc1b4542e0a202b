/*
errors.go - Centralized error types for the fulfillment ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; the API layer maps them to
  HTTP statuses.

ERROR CATEGORIES:
  1. Eligibility errors - malformed pupil context, item skipped
  2. Assignment errors - duplicate creation rejected by the safety re-check
  3. Coverage validation errors - rejected before any mutation
  4. Store errors - passed through unchanged (wrapped with %w)

SEE ALSO:
  - eligibility.go: Produces EligibilityError
  - assignment.go: Produces DuplicateAssignmentError
  - coverage.go: Produces CoverageValidationError
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidContribution is returned for zero or negative cash/item input.
	ErrInvalidContribution = errors.New("invalid contribution")

	// ErrInvalidRelease is returned for empty or unknown release selections.
	ErrInvalidRelease = errors.New("invalid release")

	// ErrAlreadyReleased is returned when releasing a record marked released.
	ErrAlreadyReleased = errors.New("record already released")

	// ErrInvalidSelector is returned for malformed requirement selections.
	ErrInvalidSelector = errors.New("invalid requirement selector")

	// ErrDuplicateAssignment is returned when a record for the requirement
	// already exists in the frequency scope.
	ErrDuplicateAssignment = errors.New("duplicate assignment")

	// ErrIneligible is the cause wrapped by EligibilityError.
	ErrIneligible = errors.New("pupil context does not satisfy requirement scope")

	// ErrAssignmentFailed is returned when auto-assignment created nothing
	// although items were eligible.
	ErrAssignmentFailed = errors.New("auto-assignment could not make progress")

	// ErrConcurrentModification is returned when an update carries a stale version.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrRecordNotFound is returned when a referenced record doesn't exist.
	ErrRecordNotFound = errors.New("fulfillment record not found")

	// ErrRequirementNotFound is returned when a catalog id is unknown.
	ErrRequirementNotFound = errors.New("requirement not found")

	// ErrRequirementExists is returned when saving a catalog id that is
	// already defined. Items are immutable; a changed item needs a new id.
	ErrRequirementExists = errors.New("requirement already exists")

	// ErrPupilNotFound is returned when a referenced pupil doesn't exist.
	ErrPupilNotFound = errors.New("pupil not found")

	// ErrAcademicYearNotFound is returned when a referenced year doesn't exist.
	ErrAcademicYearNotFound = errors.New("academic year not found")

	// ErrTermNotInYear is returned when the term is not part of the year.
	ErrTermNotInYear = errors.New("term does not belong to academic year")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// EligibilityError explains why a catalog item was skipped for a pupil.
// The resolver collects these instead of failing.
type EligibilityError struct {
	PupilID       PupilID
	RequirementID RequirementID
	Reason        string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("requirement %s skipped for pupil %s: %s", e.RequirementID, e.PupilID, e.Reason)
}

func (e *EligibilityError) Unwrap() error { return ErrIneligible }

// DuplicateAssignmentError is produced when the re-check before creation finds
// an existing record in the frequency scope.
type DuplicateAssignmentError struct {
	PupilID        PupilID
	RequirementID  RequirementID
	Frequency      Frequency
	ExistingRecord RecordID
}

func (e *DuplicateAssignmentError) Error() string {
	return fmt.Sprintf("requirement %s (%s) already assigned to pupil %s (record: %s)",
		e.RequirementID, e.Frequency, e.PupilID, e.ExistingRecord)
}

func (e *DuplicateAssignmentError) Unwrap() error { return ErrDuplicateAssignment }

// CoverageValidationError describes rejected coverage or release input.
type CoverageValidationError struct {
	RecordID RecordID
	Field    string
	Message  string
	Cause    error
}

func (e *CoverageValidationError) Error() string {
	return fmt.Sprintf("record %s: %s: %s", e.RecordID, e.Field, e.Message)
}

func (e *CoverageValidationError) Unwrap() error {
	if e.Cause == nil {
		return ErrInvalidContribution
	}
	return e.Cause
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidContribution) ||
		errors.Is(err, ErrInvalidRelease) ||
		errors.Is(err, ErrAlreadyReleased) ||
		errors.Is(err, ErrInvalidSelector) ||
		errors.Is(err, ErrTermNotInYear)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrRequirementNotFound) ||
		errors.Is(err, ErrPupilNotFound) ||
		errors.Is(err, ErrAcademicYearNotFound)
}
