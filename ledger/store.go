/*
store.go - Boundary interfaces the ledger consumes

PURPOSE:
  The ledger treats persistence as an abstract document store with
  query-by-field capability. Nothing in this package knows about tables,
  keys or drivers.

KEY INTERFACES:
  RecordStore:       FulfillmentRecord persistence (one document per record)
  PupilHistoryStore: Optional extension for lifetime (all-year) lookups
  CatalogProvider:   Requirement catalog reads
  ContextProvider:   Pupil and academic year lookups

UPDATE CONTRACT:
  Update replaces the whole record (full-record merge, not field deltas).
  The stored Version must equal record.Version; on success the store
  increments it. A mismatch returns ErrConcurrentModification.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite document store
  - store/rediscache: CatalogProvider cache decorator

SEE ALSO:
  - service.go: Round trips through these interfaces
*/
package ledger

import "context"

// =============================================================================
// RECORD STORE
// =============================================================================

// RecordStore holds one document per (pupil, requirement set, term).
type RecordStore interface {
	// Get returns the pupil's records for one term.
	Get(ctx context.Context, pupilID PupilID, yearID AcademicYearID, termID TermID) ([]FulfillmentRecord, error)

	// GetByYear returns the pupil's records for every term of the year.
	GetByYear(ctx context.Context, pupilID PupilID, yearID AcademicYearID) ([]FulfillmentRecord, error)

	// GetByID returns ErrRecordNotFound when the record does not exist.
	GetByID(ctx context.Context, id RecordID) (*FulfillmentRecord, error)

	// Create persists a new record and returns its id (assigned if empty).
	Create(ctx context.Context, record FulfillmentRecord) (RecordID, error)

	// Update replaces the record, checking and bumping Version.
	Update(ctx context.Context, record FulfillmentRecord) error

	// Delete removes a record. Only duplicate cleanup calls this.
	Delete(ctx context.Context, id RecordID) error

	// FindDuplicates returns records of the pupil/year whose requirement sets
	// overlap within a frequency scope that disallows duplicates.
	FindDuplicates(ctx context.Context, pupilID PupilID, yearID AcademicYearID) ([]FulfillmentRecord, error)
}

// PupilHistoryStore extends RecordStore with all-years lookups.
// Used to make one-time requirements lifetime-once when available.
type PupilHistoryStore interface {
	RecordStore

	// GetByPupil returns every record of the pupil across all years.
	GetByPupil(ctx context.Context, pupilID PupilID) ([]FulfillmentRecord, error)
}

// =============================================================================
// CATALOG AND CONTEXT PROVIDERS
// =============================================================================

type CatalogProvider interface {
	ListAll(ctx context.Context) ([]RequirementItem, error)

	// ListByEligibility pre-filters by gender/class/section scope.
	ListByEligibility(ctx context.Context, filter EligibilityFilter) ([]RequirementItem, error)
}

type ContextProvider interface {
	GetPupil(ctx context.Context, id PupilID) (*Pupil, error)
	GetAcademicYear(ctx context.Context, id AcademicYearID) (*AcademicYear, error)
}
