/*
assignment.go - Creating missing fulfillment records for a pupil's term

PURPOSE:
  When a pupil's term is opened, resolve eligibility and create exactly one
  FulfillmentRecord per eligible item. Best-effort: an item that cannot be
  created is logged and skipped, a later Refresh fills the gap.

SESSION STATE:
  AssignmentSession holds a processed flag per (pupil, year, term). It lives
  as long as the caller's viewing session and is never persisted. Two
  sessions may both attempt assignment; the per-item re-check below narrows
  that race but does not close it.

FLOW (AutoAssign):
  1. Session says processed              -> nothing to do
  2. Load term-scoped and year-scoped records
  3. Term already has records            -> mark processed, create nothing
  4. Resolve eligibility, then for each item:
       re-read the frequency scope (term for termly, year for yearly and
       one-time), skip with DuplicateAssignmentError if it is taken,
       otherwise Create
  5. Mark processed unless nothing could be created at all

FAILURE:
  ErrAssignmentFailed is returned only when items were eligible, none was
  created, and at least one create failed. Store errors on the initial
  loads pass through.

SEE ALSO:
  - eligibility.go: The resolver this orchestrates
  - duplicates.go: Cleanup when the race above does produce duplicates
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// ASSIGNMENT SESSION - Transient processed flags
// =============================================================================

type sessionKey struct {
	pupil PupilID
	year  AcademicYearID
	term  TermID
}

// AssignmentSession is safe for concurrent use.
type AssignmentSession struct {
	mu        sync.Mutex
	processed map[sessionKey]bool
}

func NewAssignmentSession() *AssignmentSession {
	return &AssignmentSession{processed: make(map[sessionKey]bool)}
}

func (s *AssignmentSession) IsProcessed(pupil PupilID, year AcademicYearID, term TermID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[sessionKey{pupil, year, term}]
}

func (s *AssignmentSession) MarkProcessed(pupil PupilID, year AcademicYearID, term TermID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[sessionKey{pupil, year, term}] = true
}

// Reset forgets every processed flag, as if the app had been restarted.
func (s *AssignmentSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = make(map[sessionKey]bool)
}

// =============================================================================
// AUTO ASSIGNER
// =============================================================================

type AutoAssigner struct {
	Records  RecordStore
	Catalog  CatalogProvider
	Context  ContextProvider
	Resolver *Resolver

	Now   Clock
	NewID func() RecordID

	log zerolog.Logger
}

func NewAutoAssigner(records RecordStore, catalog CatalogProvider, ctxProvider ContextProvider, log zerolog.Logger) *AutoAssigner {
	return &AutoAssigner{
		Records:  records,
		Catalog:  catalog,
		Context:  ctxProvider,
		Resolver: &Resolver{},
		Now:      SystemClock,
		NewID:    func() RecordID { return RecordID(uuid.NewString()) },
		log:      log.With().Str("component", "auto_assigner").Logger(),
	}
}

type AssignmentRequest struct {
	PupilID PupilID
	YearID  AcademicYearID
	TermID  TermID
}

// AssignmentFailure is one item whose record could not be created.
type AssignmentFailure struct {
	RequirementID RequirementID
	Err           error
}

type AssignmentResult struct {
	Created    []FulfillmentRecord
	Skipped    []*EligibilityError
	Duplicates []*DuplicateAssignmentError
	Failures   []AssignmentFailure

	// AlreadyProcessed is set when the session had already handled the term.
	AlreadyProcessed bool
	// ExistingInTerm counts the records found before any creation.
	ExistingInTerm int
}

// AutoAssign runs once per (pupil, term) per session.
func (a *AutoAssigner) AutoAssign(ctx context.Context, session *AssignmentSession, req AssignmentRequest) (*AssignmentResult, error) {
	if session.IsProcessed(req.PupilID, req.YearID, req.TermID) {
		return &AssignmentResult{AlreadyProcessed: true}, nil
	}

	pupil, year, err := a.loadContext(ctx, req)
	if err != nil {
		return nil, err
	}
	thisTerm, err := a.Records.Get(ctx, req.PupilID, req.YearID, req.TermID)
	if err != nil {
		return nil, fmt.Errorf("loading term records: %w", err)
	}
	thisYear, err := a.Records.GetByYear(ctx, req.PupilID, req.YearID)
	if err != nil {
		return nil, fmt.Errorf("loading year records: %w", err)
	}

	if len(thisTerm) > 0 {
		session.MarkProcessed(req.PupilID, req.YearID, req.TermID)
		return &AssignmentResult{ExistingInTerm: len(thisTerm)}, nil
	}

	result, err := a.fill(ctx, *pupil, *year, req.TermID, thisTerm, thisYear)
	if err != nil {
		return result, err
	}
	session.MarkProcessed(req.PupilID, req.YearID, req.TermID)
	return result, nil
}

// Refresh reruns eligibility regardless of existing term records and creates
// whatever is missing. Already-assigned ids are excluded by the resolver.
func (a *AutoAssigner) Refresh(ctx context.Context, req AssignmentRequest) (*AssignmentResult, error) {
	pupil, year, err := a.loadContext(ctx, req)
	if err != nil {
		return nil, err
	}
	thisTerm, err := a.Records.Get(ctx, req.PupilID, req.YearID, req.TermID)
	if err != nil {
		return nil, fmt.Errorf("loading term records: %w", err)
	}
	thisYear, err := a.Records.GetByYear(ctx, req.PupilID, req.YearID)
	if err != nil {
		return nil, fmt.Errorf("loading year records: %w", err)
	}
	return a.fill(ctx, *pupil, *year, req.TermID, thisTerm, thisYear)
}

// Preview resolves eligibility without writing anything.
func (a *AutoAssigner) Preview(ctx context.Context, req AssignmentRequest) (*ResolveResult, error) {
	pupil, year, err := a.loadContext(ctx, req)
	if err != nil {
		return nil, err
	}
	thisTerm, err := a.Records.Get(ctx, req.PupilID, req.YearID, req.TermID)
	if err != nil {
		return nil, fmt.Errorf("loading term records: %w", err)
	}
	thisYear, err := a.Records.GetByYear(ctx, req.PupilID, req.YearID)
	if err != nil {
		return nil, fmt.Errorf("loading year records: %w", err)
	}
	in, err := a.resolveInput(ctx, *pupil, *year, req.TermID, thisTerm, thisYear)
	if err != nil {
		return nil, err
	}
	return a.Resolver.Resolve(in)
}

// AssignBundle creates one record covering several catalog items, e.g. a
// uniform set sold as a unit. Every id must be eligible for the pupil in
// this term and unassigned in its scope.
func (a *AutoAssigner) AssignBundle(ctx context.Context, req AssignmentRequest, ids []RequirementID) (*FulfillmentRecord, error) {
	sel, err := NewSelector(ids...)
	if err != nil {
		return nil, err
	}
	pupil, year, err := a.loadContext(ctx, req)
	if err != nil {
		return nil, err
	}
	items, err := a.Catalog.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	catalog := NewCatalog(items)
	totals, err := catalog.TotalsFor(sel)
	if err != nil {
		return nil, err
	}
	firstTerm := year.IsFirstTerm(req.TermID)
	for _, id := range sel.IDs() {
		if eerr := CheckEligible(*pupil, catalog[id], firstTerm); eerr != nil {
			return nil, eerr
		}
	}
	for _, id := range sel.IDs() {
		if err := a.recheck(ctx, req, catalog[id]); err != nil {
			return nil, err
		}
	}

	rec := NewFulfillmentRecord(a.NewID(), req.PupilID, sel, req.YearID, req.TermID, totals.Quantity, a.Now())
	id, err := a.Records.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("creating bundle record: %w", err)
	}
	rec.ID = id
	return &rec, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (a *AutoAssigner) loadContext(ctx context.Context, req AssignmentRequest) (*Pupil, *AcademicYear, error) {
	pupil, err := a.Context.GetPupil(ctx, req.PupilID)
	if err != nil {
		return nil, nil, err
	}
	year, err := a.Context.GetAcademicYear(ctx, req.YearID)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := year.Term(req.TermID); !ok {
		return nil, nil, fmt.Errorf("%w: term %s, year %s", ErrTermNotInYear, req.TermID, req.YearID)
	}
	return pupil, year, nil
}

func (a *AutoAssigner) resolveInput(ctx context.Context, pupil Pupil, year AcademicYear, term TermID, thisTerm, thisYear []FulfillmentRecord) (ResolveInput, error) {
	// Incomplete pupil context needs the whole catalog so the resolver can
	// report the items it had to skip.
	var (
		items []RequirementItem
		err   error
	)
	if pupil.Gender == "" || pupil.ClassID == "" || pupil.Section == "" {
		items, err = a.Catalog.ListAll(ctx)
	} else {
		items, err = a.Catalog.ListByEligibility(ctx, FilterFor(pupil))
	}
	if err != nil {
		return ResolveInput{}, fmt.Errorf("loading catalog: %w", err)
	}

	in := ResolveInput{
		Pupil:    pupil,
		Year:     year,
		TermID:   term,
		Catalog:  items,
		ThisTerm: thisTerm,
		ThisYear: thisYear,
	}
	if hs, ok := a.Records.(PupilHistoryStore); ok {
		lifetime, err := hs.GetByPupil(ctx, pupil.ID)
		if err != nil {
			return ResolveInput{}, fmt.Errorf("loading pupil history: %w", err)
		}
		in.Lifetime = lifetime
	}
	return in, nil
}

func (a *AutoAssigner) fill(ctx context.Context, pupil Pupil, year AcademicYear, term TermID, thisTerm, thisYear []FulfillmentRecord) (*AssignmentResult, error) {
	in, err := a.resolveInput(ctx, pupil, year, term, thisTerm, thisYear)
	if err != nil {
		return nil, err
	}
	resolved, err := a.Resolver.Resolve(in)
	if err != nil {
		return nil, err
	}

	result := &AssignmentResult{Skipped: resolved.Skipped, ExistingInTerm: len(thisTerm)}
	for _, skip := range resolved.Skipped {
		a.log.Debug().Str("pupil", string(pupil.ID)).Str("requirement", string(skip.RequirementID)).
			Str("reason", skip.Reason).Msg("requirement skipped")
	}

	req := AssignmentRequest{PupilID: pupil.ID, YearID: year.ID, TermID: term}
	for _, item := range resolved.Items {
		if err := a.recheck(ctx, req, item); err != nil {
			var dup *DuplicateAssignmentError
			if errors.As(err, &dup) {
				a.log.Info().Err(err).Msg("skipping already assigned requirement")
				result.Duplicates = append(result.Duplicates, dup)
				continue
			}
			a.log.Error().Err(err).Str("requirement", string(item.ID)).Msg("re-check failed")
			result.Failures = append(result.Failures, AssignmentFailure{RequirementID: item.ID, Err: err})
			continue
		}

		rec := NewFulfillmentRecord(a.NewID(), pupil.ID, Single{ID: item.ID}, year.ID, term, item.Quantity, a.Now())
		id, err := a.Records.Create(ctx, rec)
		if err != nil {
			a.log.Error().Err(err).Str("requirement", string(item.ID)).Msg("record creation failed")
			result.Failures = append(result.Failures, AssignmentFailure{RequirementID: item.ID, Err: err})
			continue
		}
		rec.ID = id
		result.Created = append(result.Created, rec)
	}

	if len(resolved.Items) > 0 && len(result.Created) == 0 && len(result.Failures) > 0 {
		return result, fmt.Errorf("%w: pupil %s term %s: %w",
			ErrAssignmentFailed, pupil.ID, term, result.Failures[0].Err)
	}

	a.log.Info().
		Str("pupil", string(pupil.ID)).
		Str("term", string(term)).
		Int("created", len(result.Created)).
		Int("duplicates", len(result.Duplicates)).
		Int("failures", len(result.Failures)).
		Msg("auto-assignment complete")
	return result, nil
}

// recheck re-reads the frequency scope immediately before a write.
func (a *AutoAssigner) recheck(ctx context.Context, req AssignmentRequest, item RequirementItem) error {
	var (
		scope []FulfillmentRecord
		err   error
	)
	if item.Frequency.YearScoped() {
		scope, err = a.Records.GetByYear(ctx, req.PupilID, req.YearID)
	} else {
		scope, err = a.Records.Get(ctx, req.PupilID, req.YearID, req.TermID)
	}
	if err != nil {
		return err
	}
	if item.Frequency == FrequencyOneTime {
		if hs, ok := a.Records.(PupilHistoryStore); ok {
			lifetime, err := hs.GetByPupil(ctx, req.PupilID)
			if err != nil {
				return err
			}
			scope = append(scope, lifetime...)
		}
	}
	if existing, ok := findReferencing(scope, item.ID); ok {
		return &DuplicateAssignmentError{
			PupilID:        req.PupilID,
			RequirementID:  item.ID,
			Frequency:      item.Frequency,
			ExistingRecord: existing,
		}
	}
	return nil
}
