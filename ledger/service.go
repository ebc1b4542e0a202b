/*
service.go - One round trip per user action

PURPOSE:
  Wires the pure Engine and Projector to the store interfaces. Each method
  is one synchronous request/response: validate input, load the record and
  its catalog totals, apply, write back with a version check.

ERRORS:
  Validation errors are returned before any store call. Store errors are
  wrapped with %w and otherwise passed through; nothing is retried.

EXAMPLE:
  svc := ledger.NewService(records, catalog)
  rec, err := svc.ApplyCoverage(ctx, "rec-1", ledger.CoverageInput{
      Contribution: ledger.Cash{Amount: decimal.NewFromInt(60)},
      ReceivedBy:   "bursar",
  })

SEE ALSO:
  - coverage.go: The state machine
  - projection.go: Read views returned by History
*/
package ledger

import (
	"context"
	"fmt"
)

type Service struct {
	Records   RecordStore
	Catalog   CatalogProvider
	Engine    *Engine
	Projector Projector
}

func NewService(records RecordStore, catalog CatalogProvider) *Service {
	return &Service{
		Records: records,
		Catalog: catalog,
		Engine:  NewEngine(),
	}
}

// RecordView is a record with its derived summary.
type RecordView struct {
	Record  FulfillmentRecord `json:"record"`
	Summary Summary           `json:"summary"`
}

// HistoryView holds both running-total projections of a record.
type HistoryView struct {
	RecordID RecordID      `json:"record_id"`
	Payments []PaymentLine `json:"payments"`
	Receipts []ReceiptLine `json:"receipts"`
	Summary  Summary       `json:"summary"`
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) Record(ctx context.Context, id RecordID) (*RecordView, error) {
	rec, totals, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RecordView{Record: *rec, Summary: s.Projector.Summarize(*rec, totals)}, nil
}

func (s *Service) History(ctx context.Context, id RecordID) (*HistoryView, error) {
	rec, totals, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return &HistoryView{
		RecordID: rec.ID,
		Payments: s.Projector.PaymentHistory(rec.History, totals.Amount),
		Receipts: s.Projector.ReceiptHistory(rec.History, requiredQuantity(*rec, totals)),
		Summary:  s.Projector.Summarize(*rec, totals),
	}, nil
}

// Views summarizes already loaded records against one catalog read.
func (s *Service) Views(ctx context.Context, records []FulfillmentRecord) ([]RecordView, error) {
	items, err := s.Catalog.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	catalog := NewCatalog(items)
	views := make([]RecordView, 0, len(records))
	for _, rec := range records {
		totals, err := catalog.TotalsFor(rec.Requirement)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.ID, err)
		}
		views = append(views, RecordView{Record: rec, Summary: s.Projector.Summarize(rec, totals)})
	}
	return views, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

func (s *Service) ApplyCoverage(ctx context.Context, id RecordID, in CoverageInput) (*FulfillmentRecord, error) {
	if err := ValidateContribution(id, in.Contribution); err != nil {
		return nil, err
	}
	rec, totals, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	next, _, err := s.Engine.ApplyCoverage(*rec, totals, in)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, next)
}

func (s *Service) RecordReceipt(ctx context.Context, id RecordID, in ReceiptInput) (*FulfillmentRecord, error) {
	if in.Quantity <= 0 {
		return nil, &CoverageValidationError{RecordID: id, Field: "quantity", Message: "received quantity must be positive"}
	}
	rec, err := s.Records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next, _, err := s.Engine.RecordReceipt(*rec, in)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, next)
}

func (s *Service) ApplyRelease(ctx context.Context, id RecordID, in ReleaseInput) (*FulfillmentRecord, error) {
	if !in.Full && len(in.Items) == 0 {
		return nil, &CoverageValidationError{RecordID: id, Field: "items", Message: "partial release needs at least one item", Cause: ErrInvalidRelease}
	}
	rec, err := s.Records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	next, _, err := s.Engine.ApplyRelease(*rec, in)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, next)
}

// =============================================================================
// DUPLICATES
// =============================================================================

func (s *Service) Duplicates(ctx context.Context, pupil PupilID, year AcademicYearID) ([]DuplicateGroup, error) {
	candidates, err := s.Records.FindDuplicates(ctx, pupil, year)
	if err != nil {
		return nil, fmt.Errorf("finding duplicates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	items, err := s.Catalog.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return DetectDuplicates(candidates, NewCatalog(items)), nil
}

// CleanupDuplicates deletes duplicates that have no history and reports the
// rest. Deletion stops at the first store error.
func (s *Service) CleanupDuplicates(ctx context.Context, pupil PupilID, year AcademicYearID) (CleanupPlan, error) {
	groups, err := s.Duplicates(ctx, pupil, year)
	if err != nil {
		return CleanupPlan{}, err
	}
	plan := PlanCleanup(groups)
	for _, id := range plan.Delete {
		if err := s.Records.Delete(ctx, id); err != nil {
			return plan, fmt.Errorf("deleting duplicate %s: %w", id, err)
		}
	}
	return plan, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (s *Service) load(ctx context.Context, id RecordID) (*FulfillmentRecord, Totals, error) {
	rec, err := s.Records.GetByID(ctx, id)
	if err != nil {
		return nil, Totals{}, err
	}
	items, err := s.Catalog.ListAll(ctx)
	if err != nil {
		return nil, Totals{}, fmt.Errorf("loading catalog: %w", err)
	}
	totals, err := NewCatalog(items).TotalsFor(rec.Requirement)
	if err != nil {
		return nil, Totals{}, err
	}
	return rec, totals, nil
}

func (s *Service) save(ctx context.Context, rec FulfillmentRecord) (*FulfillmentRecord, error) {
	if err := s.Records.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("updating record %s: %w", rec.ID, err)
	}
	rec.Version++
	return &rec, nil
}
