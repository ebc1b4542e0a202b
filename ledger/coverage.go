/*
coverage.go - The coverage and release state machine

PURPOSE:
  Applies cash or item contributions and physical releases to a
  FulfillmentRecord, appending one immutable HistoryEntry per transaction.

STATES:
  paymentStatus x releaseStatus, i.e. {pending, partial, paid} x
  {pending, released}. coverageMode only says how the latest contribution
  was interpreted; it is not a state.

COVERAGE:
  Cash{amount}:    cashEquivalent = amount
  Items{quantity}: pricePerItem   = totalAmount / totalItemQuantityRequired
                   cashEquivalent = quantity * pricePerItem
  paidAmount += cashEquivalent, then
    paid    if paidAmount >= totalAmount
    partial if paidAmount > 0
    pending otherwise
  Over-payment is accepted; status simply stays paid.

RELEASE:
  Partial: merge ids into releasedItems, releaseStatus stays pending, one entry.
  Full:    releaseStatus -> released, two entries (the release event and the
           completion event).
  IsFullyReleased is derived: released, or every id has been released.

VALIDATION:
  Every input is checked before the record is touched. A rejected call
  returns the input record unchanged.

SEE ALSO:
  - projection.go: Replays the history written here
  - service.go: Loads, applies and persists in one round trip
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CONTRIBUTION - Cash{amount} | Items{quantity}
// =============================================================================

// Contribution is what a parent hands over. Implemented only by Cash and Items.
type Contribution interface {
	Mode() CoverageMode
	isContribution()
}

type Cash struct {
	Amount decimal.Decimal
}

func (Cash) Mode() CoverageMode { return CoverageCash }
func (Cash) isContribution()    {}

type Items struct {
	Quantity int
}

func (Items) Mode() CoverageMode { return CoverageItem }
func (Items) isContribution()    {}

// =============================================================================
// INPUTS
// =============================================================================

type CoverageInput struct {
	Contribution Contribution
	ReceivedBy   string
	Date         time.Time // zero means now
	Note         string
}

// ReceiptInput records items the office handed over for a cash-covered record.
type ReceiptInput struct {
	Quantity   int
	ReceivedBy string
	Date       time.Time
	Note       string
}

type ReleaseInput struct {
	Items      []RequirementID
	Full       bool
	ReleasedBy string
	Date       time.Time
	Note       string
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Now   Clock
	NewID func() EntryID
}

func NewEngine() *Engine {
	return &Engine{
		Now:   SystemClock,
		NewID: func() EntryID { return EntryID(uuid.NewString()) },
	}
}

func (e *Engine) at(t time.Time) time.Time {
	if t.IsZero() {
		return e.Now()
	}
	return t
}

// ApplyCoverage credits a contribution against the record.
// totals must be the catalog totals of the record's requirement set.
func (e *Engine) ApplyCoverage(rec FulfillmentRecord, totals Totals, in CoverageInput) (FulfillmentRecord, HistoryEntry, error) {
	if err := ValidateContribution(rec.ID, in.Contribution); err != nil {
		return rec, HistoryEntry{}, err
	}

	var (
		cashEquivalent decimal.Decimal
		quantity       int
	)
	switch c := in.Contribution.(type) {
	case Cash:
		cashEquivalent = c.Amount
	case Items:
		quantity = c.Quantity
		cashEquivalent = CashEquivalent(quantity, PricePerItem(totals.Amount, requiredQuantity(rec, totals)))
	}

	date := e.at(in.Date)
	next := rec.Clone()
	entry := HistoryEntry{
		ID:             e.NewID(),
		Kind:           EntryCoverage,
		Date:           date,
		PaidAmount:     cashEquivalent,
		CoverageMode:   in.Contribution.Mode(),
		PaymentStatus:  rec.PaymentStatus,
		ReleaseStatus:  rec.ReleaseStatus,
		ReceivedBy:     in.ReceivedBy,
		Note:           in.Note,
		AcademicYearID: rec.AcademicYearID,
		TermID:         rec.TermID,
		ReceiptType:    ReceiptPaymentOnly,
	}

	if quantity > 0 {
		next.ItemQuantityProvided += quantity
		next.ItemQuantityReceivedFromParent += quantity
		entry.ItemQuantityProvided = quantity
		entry.ReceiptType = ReceiptPaymentAndReceipt
		entry.ReceiptSource = SourceParent
	}

	next.PaidAmount = rec.PaidAmount.Add(cashEquivalent)
	next.PaymentStatus = nextPaymentStatus(rec.PaymentStatus, next.PaidAmount, totals.Amount)
	next.CoverageMode = in.Contribution.Mode()
	next.UpdatedAt = date
	next.History = append(next.History, entry)
	return next, entry, nil
}

// RecordReceipt logs items physically received from the office. It moves
// no cash and leaves coverageMode untouched.
func (e *Engine) RecordReceipt(rec FulfillmentRecord, in ReceiptInput) (FulfillmentRecord, HistoryEntry, error) {
	if in.Quantity <= 0 {
		return rec, HistoryEntry{}, &CoverageValidationError{
			RecordID: rec.ID, Field: "quantity", Message: "received quantity must be positive",
		}
	}

	date := e.at(in.Date)
	next := rec.Clone()
	entry := HistoryEntry{
		ID:                   e.NewID(),
		Kind:                 EntryReceipt,
		Date:                 date,
		PaidAmount:           decimal.Zero,
		ItemQuantityProvided: in.Quantity,
		ReceiptType:          ReceiptOnly,
		ReceiptSource:        SourceOffice,
		PaymentStatus:        rec.PaymentStatus,
		ReleaseStatus:        rec.ReleaseStatus,
		ReceivedBy:           in.ReceivedBy,
		Note:                 in.Note,
		AcademicYearID:       rec.AcademicYearID,
		TermID:               rec.TermID,
	}

	next.ItemQuantityProvided += in.Quantity
	next.ItemQuantityReceivedFromOffice += in.Quantity
	next.UpdatedAt = date
	next.History = append(next.History, entry)
	return next, entry, nil
}

// ValidateContribution rejects missing, zero or negative contributions.
// It needs no record state, so callers run it before loading anything.
func ValidateContribution(id RecordID, c Contribution) error {
	switch c := c.(type) {
	case Cash:
		if !c.Amount.IsPositive() {
			return &CoverageValidationError{RecordID: id, Field: "amount", Message: "cash amount must be positive"}
		}
	case Items:
		if c.Quantity <= 0 {
			return &CoverageValidationError{RecordID: id, Field: "quantity", Message: "item quantity must be positive"}
		}
	default:
		return &CoverageValidationError{RecordID: id, Field: "coverage_mode", Message: "a cash or item contribution is required"}
	}
	return nil
}

// ApplyRelease hands items to the pupil. It returns the entries appended:
// one for a partial release, two for a full release.
func (e *Engine) ApplyRelease(rec FulfillmentRecord, in ReleaseInput) (FulfillmentRecord, []HistoryEntry, error) {
	if rec.ReleaseStatus == ReleaseReleased {
		return rec, nil, &CoverageValidationError{
			RecordID: rec.ID, Field: "release", Message: "record is already released", Cause: ErrAlreadyReleased,
		}
	}
	for _, id := range in.Items {
		if !rec.References(id) {
			return rec, nil, &CoverageValidationError{
				RecordID: rec.ID, Field: "items",
				Message: fmt.Sprintf("requirement %s is not part of this record", id),
				Cause:   ErrInvalidRelease,
			}
		}
	}

	already := make(map[RequirementID]bool, len(rec.ReleasedItems))
	for _, id := range rec.ReleasedItems {
		already[id] = true
	}
	requested := in.Items
	if in.Full {
		// a full release covers every id of the selector
		requested = append(append([]RequirementID(nil), in.Items...), rec.RequirementIDs()...)
	}
	var delta []RequirementID
	for _, id := range requested {
		if !already[id] {
			already[id] = true
			delta = append(delta, id)
		}
	}
	if !in.Full && len(delta) == 0 {
		return rec, nil, &CoverageValidationError{
			RecordID: rec.ID, Field: "items", Message: "no unreleased items selected", Cause: ErrInvalidRelease,
		}
	}

	date := e.at(in.Date)
	next := rec.Clone()
	next.ReleasedItems = append(next.ReleasedItems, delta...)
	next.UpdatedAt = date

	entries := []HistoryEntry{{
		ID:             e.NewID(),
		Kind:           EntryRelease,
		Date:           date,
		PaidAmount:     decimal.Zero,
		PaymentStatus:  rec.PaymentStatus,
		ReleaseStatus:  rec.ReleaseStatus,
		ReleasedBy:     in.ReleasedBy,
		ReleasedItems:  delta,
		Note:           in.Note,
		AcademicYearID: rec.AcademicYearID,
		TermID:         rec.TermID,
	}}

	if in.Full {
		next.ReleaseStatus = ReleaseReleased
		next.ReleaseDate = &date
		next.ReleasedBy = in.ReleasedBy
		entries = append(entries, HistoryEntry{
			ID:             e.NewID(),
			Kind:           EntryReleaseComplete,
			Date:           date,
			PaidAmount:     decimal.Zero,
			PaymentStatus:  rec.PaymentStatus,
			ReleaseStatus:  rec.ReleaseStatus,
			ReleasedBy:     in.ReleasedBy,
			AcademicYearID: rec.AcademicYearID,
			TermID:         rec.TermID,
		})
	}

	next.History = append(next.History, entries...)
	return next, entries, nil
}

// =============================================================================
// DERIVED PREDICATES
// =============================================================================

// IsFullyReleased is true when the record is marked released, or when every
// id in its requirement set has been released.
func IsFullyReleased(rec FulfillmentRecord) bool {
	if rec.ReleaseStatus == ReleaseReleased {
		return true
	}
	ids := rec.RequirementIDs()
	if len(ids) == 0 {
		return false
	}
	released := ReleasedUnion(rec.History)
	for _, id := range ids {
		if !released[id] {
			return false
		}
	}
	return true
}

// ReleasedUnion is the cumulative set of released ids across history.
func ReleasedUnion(history []HistoryEntry) map[RequirementID]bool {
	set := make(map[RequirementID]bool)
	for _, e := range history {
		for _, id := range e.ReleasedItems {
			set[id] = true
		}
	}
	return set
}

func nextPaymentStatus(prev PaymentStatus, paid, total decimal.Decimal) PaymentStatus {
	next := PaymentPending
	switch {
	case paid.GreaterThanOrEqual(total):
		next = PaymentPaid
	case paid.IsPositive():
		next = PaymentPartial
	}
	// Status never regresses.
	if next.rank() < prev.rank() {
		return prev
	}
	return next
}

func requiredQuantity(rec FulfillmentRecord, totals Totals) int {
	if rec.TotalItemQuantityRequired > 0 {
		return rec.TotalItemQuantityRequired
	}
	return totals.Quantity
}
