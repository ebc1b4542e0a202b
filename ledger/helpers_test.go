package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/requirement-ledger/ledger"
	"github.com/warp/requirement-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) ledger.Clock {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) func() ledger.EntryID {
	n := 0
	return func() ledger.EntryID {
		n++
		return ledger.EntryID(fmt.Sprintf("%s-%d", prefix, n))
	}
}

func testEngine() *ledger.Engine {
	return &ledger.Engine{
		Now:   fixedClock(date(2025, time.February, 3)),
		NewID: sequentialIDs("entry"),
	}
}

func year2025() ledger.AcademicYear {
	return ledger.AcademicYear{
		ID:   "2025",
		Name: "2025",
		Terms: []ledger.Term{
			{ID: "2025-t2", Name: "Term 2", Ordinal: 2, Start: date(2025, time.May, 19), End: date(2025, time.August, 8)},
			{ID: "2025-t1", Name: "Term 1", Ordinal: 1, Start: date(2025, time.February, 3), End: date(2025, time.May, 2)},
			{ID: "2025-t3", Name: "Term 3", Ordinal: 3, Start: date(2025, time.September, 1), End: date(2025, time.November, 28)},
		},
	}
}

func year2026() ledger.AcademicYear {
	return ledger.AcademicYear{
		ID:   "2026",
		Name: "2026",
		Terms: []ledger.Term{
			{ID: "2026-t1", Name: "Term 1", Ordinal: 1, Start: date(2026, time.February, 2), End: date(2026, time.May, 1)},
		},
	}
}

func boy() ledger.Pupil {
	return ledger.Pupil{ID: "pupil-1", Name: "Okello Brian", Gender: ledger.GenderMale, ClassID: "P4", Section: "boarding"}
}

func item(id string, price int64, qty int, freq ledger.Frequency) ledger.RequirementItem {
	return ledger.RequirementItem{
		ID:        ledger.RequirementID(id),
		Name:      id,
		Price:     money(price),
		Quantity:  qty,
		Frequency: freq,
		Gender:    ledger.GenderAll,
	}
}

// uniform is the catalog item used in the worked scenarios: price 100, two pieces.
func uniform() ledger.RequirementItem {
	return item("U1", 100, 2, ledger.FrequencyTermly)
}

func record(id string, pupil ledger.PupilID, sel ledger.RequirementSelector, year ledger.AcademicYearID, term ledger.TermID, qty int) ledger.FulfillmentRecord {
	return ledger.NewFulfillmentRecord(ledger.RecordID(id), pupil, sel, year, term, qty, date(2025, time.February, 3))
}

func single(id string) ledger.RequirementSelector {
	return ledger.Single{ID: ledger.RequirementID(id)}
}

func bundle(t *testing.T, ids ...ledger.RequirementID) ledger.RequirementSelector {
	sel, err := ledger.NewSelector(ids...)
	require.NoError(t, err)
	return sel
}

func silentLog() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

// seededMemory returns a memory store holding the given pupil, years and items.
func seededMemory(t *testing.T, pupil ledger.Pupil, items ...ledger.RequirementItem) *store.Memory {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.SavePupil(ctx, pupil))
	require.NoError(t, m.SaveAcademicYear(ctx, year2025()))
	require.NoError(t, m.SaveAcademicYear(ctx, year2026()))
	for _, it := range items {
		require.NoError(t, m.SaveItem(ctx, it))
	}
	return m
}

func newAssigner(records ledger.RecordStore, m *store.Memory) *ledger.AutoAssigner {
	a := ledger.NewAutoAssigner(records, m, m, silentLog())
	a.Now = fixedClock(date(2025, time.February, 3))
	n := 0
	a.NewID = func() ledger.RecordID {
		n++
		return ledger.RecordID(fmt.Sprintf("rec-%d", n))
	}
	return a
}
