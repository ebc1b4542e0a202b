/*
Package ledger provides the requirement fulfillment ledger.

PURPOSE:
  Tracks what a pupil owes for physical and consumable requirements
  (uniforms, books, supplies) in a given academic term, how much of it has
  been covered in cash or in equivalent items, and how much has been
  physically released to the pupil.

KEY CONCEPTS IN THIS FILE (types.go):
  - FulfillmentRecord: One ledger record per (pupil, requirement set, term)
  - HistoryEntry: An immutable, append-only entry on a record
  - Statuses: payment (pending/partial/paid) and release (pending/released)

DESIGN PRINCIPLES:
  1. Append-only history: entries are never modified once appended
  2. Precision: decimal.Decimal for every cash value
  3. Type Safety: distinct ID types for pupils, requirements, records, terms
  4. Derivable state: replaying history reproduces paid and provided totals

SEE ALSO:
  - selector.go: Single vs Bundle requirement selection
  - catalog.go: RequirementItem definitions
  - coverage.go: The state machine that mutates records
  - projection.go: Read-only views derived from history
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PupilID string
type RequirementID string
type RecordID string
type AcademicYearID string
type TermID string
type EntryID string

// =============================================================================
// STATUSES AND MODES
// =============================================================================

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// rank orders payment statuses so that regressions can be detected.
func (s PaymentStatus) rank() int {
	switch s {
	case PaymentPartial:
		return 1
	case PaymentPaid:
		return 2
	default:
		return 0
	}
}

type ReleaseStatus string

const (
	ReleasePending  ReleaseStatus = "pending"
	ReleaseReleased ReleaseStatus = "released"
)

type CoverageMode string

const (
	CoverageCash CoverageMode = "cash"
	CoverageItem CoverageMode = "item"
)

type ReceiptType string

const (
	ReceiptPaymentOnly       ReceiptType = "payment_only"
	ReceiptOnly              ReceiptType = "receipt_only"
	ReceiptPaymentAndReceipt ReceiptType = "payment_and_receipt"
)

// IncludesPayment is true for entries that moved cash-equivalent value.
func (t ReceiptType) IncludesPayment() bool {
	return t == ReceiptPaymentOnly || t == ReceiptPaymentAndReceipt
}

// IncludesReceipt is true for entries where physical items changed hands.
func (t ReceiptType) IncludesReceipt() bool {
	return t == ReceiptOnly || t == ReceiptPaymentAndReceipt
}

// ReceiptSource says who physically supplied received items.
type ReceiptSource string

const (
	SourceOffice ReceiptSource = "office"
	SourceParent ReceiptSource = "parent"
)

type EntryKind string

const (
	EntryCoverage        EntryKind = "coverage"
	EntryReceipt         EntryKind = "receipt"
	EntryRelease         EntryKind = "release"
	EntryReleaseComplete EntryKind = "release_complete"
)

// =============================================================================
// FULFILLMENT RECORD
// =============================================================================

// FulfillmentRecord is the ledger entry for one requirement (or bundle) owed
// by one pupil in one term. Created by the AutoAssigner, mutated only by the
// Engine, deleted only by duplicate cleanup.
type FulfillmentRecord struct {
	ID             RecordID            `json:"id"`
	PupilID        PupilID             `json:"pupil_id"`
	Requirement    RequirementSelector `json:"-"`
	AcademicYearID AcademicYearID      `json:"academic_year_id"`
	TermID         TermID              `json:"term_id"`

	PaidAmount    decimal.Decimal `json:"paid_amount"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	ReleaseStatus ReleaseStatus   `json:"release_status"`
	CoverageMode  CoverageMode    `json:"coverage_mode"`

	ItemQuantityProvided           int `json:"item_quantity_provided"`
	TotalItemQuantityRequired      int `json:"total_item_quantity_required"`
	ItemQuantityReceivedFromOffice int `json:"item_quantity_received_from_office"`
	ItemQuantityReceivedFromParent int `json:"item_quantity_received_from_parent"`

	ReleasedItems []RequirementID `json:"released_items"`
	ReleaseDate   *time.Time      `json:"release_date,omitempty"`
	ReleasedBy    string          `json:"released_by,omitempty"`

	History []HistoryEntry `json:"history"`

	// Version is compared on update; a stale version is rejected.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SelectionMode reports whether the record tracks one item or a bundle.
func (r FulfillmentRecord) SelectionMode() SelectionMode {
	if r.Requirement == nil {
		return SelectItem
	}
	return r.Requirement.Mode()
}

// RequirementIDs returns the ids in the record's requirement set.
func (r FulfillmentRecord) RequirementIDs() []RequirementID {
	if r.Requirement == nil {
		return nil
	}
	return r.Requirement.IDs()
}

// References reports whether the record's requirement set contains id.
func (r FulfillmentRecord) References(id RequirementID) bool {
	return r.Requirement != nil && r.Requirement.Contains(id)
}

// Clone returns a deep copy so callers can mutate without aliasing history.
func (r FulfillmentRecord) Clone() FulfillmentRecord {
	c := r
	c.ReleasedItems = append([]RequirementID(nil), r.ReleasedItems...)
	c.History = make([]HistoryEntry, len(r.History))
	for i, e := range r.History {
		c.History[i] = e.clone()
	}
	if r.ReleaseDate != nil {
		d := *r.ReleaseDate
		c.ReleaseDate = &d
	}
	return c
}

// NewFulfillmentRecord returns a fresh pending record for the selector.
func NewFulfillmentRecord(id RecordID, pupil PupilID, sel RequirementSelector, year AcademicYearID, term TermID, totalQuantity int, now time.Time) FulfillmentRecord {
	return FulfillmentRecord{
		ID:                        id,
		PupilID:                   pupil,
		Requirement:               sel,
		AcademicYearID:            year,
		TermID:                    term,
		PaidAmount:                decimal.Zero,
		PaymentStatus:             PaymentPending,
		ReleaseStatus:             ReleasePending,
		CoverageMode:              CoverageCash,
		TotalItemQuantityRequired: totalQuantity,
		ReleasedItems:             []RequirementID{},
		History:                   []HistoryEntry{},
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
}

// =============================================================================
// HISTORY ENTRY - Immutable once appended
// =============================================================================

// HistoryEntry records one transaction against a record. Amounts are deltas,
// statuses are the snapshot taken BEFORE the transaction was applied.
type HistoryEntry struct {
	ID   EntryID   `json:"id"`
	Kind EntryKind `json:"kind"`
	Date time.Time `json:"date"`

	PaidAmount           decimal.Decimal `json:"paid_amount"`
	CoverageMode         CoverageMode    `json:"coverage_mode,omitempty"`
	ItemQuantityProvided int             `json:"item_quantity_provided,omitempty"`
	ReceiptType          ReceiptType     `json:"receipt_type,omitempty"`
	ReceiptSource        ReceiptSource   `json:"receipt_source,omitempty"`

	PaymentStatus PaymentStatus `json:"payment_status"`
	ReleaseStatus ReleaseStatus `json:"release_status"`

	ReceivedBy    string          `json:"received_by,omitempty"`
	ReleasedBy    string          `json:"released_by,omitempty"`
	ReleasedItems []RequirementID `json:"released_items,omitempty"`
	Note          string          `json:"note,omitempty"`

	AcademicYearID AcademicYearID `json:"academic_year_id"`
	TermID         TermID         `json:"term_id"`
}

func (e HistoryEntry) clone() HistoryEntry {
	c := e
	c.ReleasedItems = append([]RequirementID(nil), e.ReleasedItems...)
	return c
}
