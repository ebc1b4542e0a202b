// Package store provides in-memory implementations of the ledger stores.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/warp/requirement-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.PupilHistoryStore, ledger.CatalogProvider and
// ledger.ContextProvider. Records are cloned on the way in and out.
type Memory struct {
	mu      sync.RWMutex
	records map[ledger.RecordID]ledger.FulfillmentRecord
	catalog map[ledger.RequirementID]ledger.RequirementItem
	pupils  map[ledger.PupilID]ledger.Pupil
	years   map[ledger.AcademicYearID]ledger.AcademicYear
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[ledger.RecordID]ledger.FulfillmentRecord),
		catalog: make(map[ledger.RequirementID]ledger.RequirementItem),
		pupils:  make(map[ledger.PupilID]ledger.Pupil),
		years:   make(map[ledger.AcademicYearID]ledger.AcademicYear),
	}
}

// Reset drops every document.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[ledger.RecordID]ledger.FulfillmentRecord)
	m.catalog = make(map[ledger.RequirementID]ledger.RequirementItem)
	m.pupils = make(map[ledger.PupilID]ledger.Pupil)
	m.years = make(map[ledger.AcademicYearID]ledger.AcademicYear)
	return nil
}

// =============================================================================
// RECORD STORE
// =============================================================================

func (m *Memory) Get(_ context.Context, pupilID ledger.PupilID, yearID ledger.AcademicYearID, termID ledger.TermID) ([]ledger.FulfillmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(func(r ledger.FulfillmentRecord) bool {
		return r.PupilID == pupilID && r.AcademicYearID == yearID && r.TermID == termID
	}), nil
}

func (m *Memory) GetByYear(_ context.Context, pupilID ledger.PupilID, yearID ledger.AcademicYearID) ([]ledger.FulfillmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(func(r ledger.FulfillmentRecord) bool {
		return r.PupilID == pupilID && r.AcademicYearID == yearID
	}), nil
}

func (m *Memory) GetByPupil(_ context.Context, pupilID ledger.PupilID) ([]ledger.FulfillmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterLocked(func(r ledger.FulfillmentRecord) bool { return r.PupilID == pupilID }), nil
}

func (m *Memory) GetByID(_ context.Context, id ledger.RecordID) (*ledger.FulfillmentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrRecordNotFound, id)
	}
	c := rec.Clone()
	return &c, nil
}

func (m *Memory) Create(_ context.Context, rec ledger.FulfillmentRecord) (ledger.RecordID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = ledger.RecordID(uuid.NewString())
	}
	if _, exists := m.records[rec.ID]; exists {
		return "", fmt.Errorf("record %s already exists", rec.ID)
	}
	m.records[rec.ID] = rec.Clone()
	return rec.ID, nil
}

// Update replaces the record when the stored version matches.
func (m *Memory) Update(_ context.Context, rec ledger.FulfillmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[rec.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrRecordNotFound, rec.ID)
	}
	if stored.Version != rec.Version {
		return fmt.Errorf("%w: record %s at version %d, update from %d",
			ledger.ErrConcurrentModification, rec.ID, stored.Version, rec.Version)
	}
	next := rec.Clone()
	next.Version = stored.Version + 1
	m.records[rec.ID] = next
	return nil
}

func (m *Memory) Delete(_ context.Context, id ledger.RecordID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return fmt.Errorf("%w: %s", ledger.ErrRecordNotFound, id)
	}
	delete(m.records, id)
	return nil
}

func (m *Memory) FindDuplicates(ctx context.Context, pupilID ledger.PupilID, yearID ledger.AcademicYearID) ([]ledger.FulfillmentRecord, error) {
	records, err := m.GetByYear(ctx, pupilID, yearID)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	catalog := make(ledger.Catalog, len(m.catalog))
	for id, it := range m.catalog {
		catalog[id] = it
	}
	m.mu.RUnlock()
	return ledger.DuplicateRecords(ledger.DetectDuplicates(records, catalog)), nil
}

// filterLocked returns matching records ordered by creation time.
func (m *Memory) filterLocked(keep func(ledger.FulfillmentRecord) bool) []ledger.FulfillmentRecord {
	var out []ledger.FulfillmentRecord
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// CATALOG PROVIDER
// =============================================================================

func (m *Memory) SaveItem(_ context.Context, item ledger.RequirementItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.catalog[item.ID]; exists {
		return fmt.Errorf("%w: %s", ledger.ErrRequirementExists, item.ID)
	}
	m.catalog[item.ID] = item
	return nil
}

func (m *Memory) ListAll(_ context.Context) ([]ledger.RequirementItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.RequirementItem, 0, len(m.catalog))
	for _, it := range m.catalog {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListByEligibility(ctx context.Context, filter ledger.EligibilityFilter) ([]ledger.RequirementItem, error) {
	all, err := m.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.FilterItems(all, filter), nil
}

// =============================================================================
// CONTEXT PROVIDER
// =============================================================================

func (m *Memory) SavePupil(_ context.Context, p ledger.Pupil) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pupils[p.ID] = p
	return nil
}

func (m *Memory) GetPupil(_ context.Context, id ledger.PupilID) (*ledger.Pupil, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pupils[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrPupilNotFound, id)
	}
	return &p, nil
}

func (m *Memory) ListPupils(_ context.Context) ([]ledger.Pupil, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Pupil, 0, len(m.pupils))
	for _, p := range m.pupils {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveAcademicYear(_ context.Context, y ledger.AcademicYear) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	y.Terms = append([]ledger.Term(nil), y.Terms...)
	m.years[y.ID] = y
	return nil
}

func (m *Memory) GetAcademicYear(_ context.Context, id ledger.AcademicYearID) (*ledger.AcademicYear, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	y, ok := m.years[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAcademicYearNotFound, id)
	}
	y.Terms = append([]ledger.Term(nil), y.Terms...)
	return &y, nil
}

func (m *Memory) ListAcademicYears(_ context.Context) ([]ledger.AcademicYear, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.AcademicYear, 0, len(m.years))
	for _, y := range m.years {
		y.Terms = append([]ledger.Term(nil), y.Terms...)
		out = append(out, y)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
