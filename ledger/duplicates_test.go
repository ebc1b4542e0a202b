package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/requirement-ledger/ledger"
)

func duplicateCatalog() ledger.Catalog {
	return ledger.NewCatalog([]ledger.RequirementItem{
		uniform(),
		item("U2", 60, 1, ledger.FrequencyTermly),
		item("Y1", 40, 0, ledger.FrequencyYearly),
	})
}

func TestDetectDuplicates_FrequencyScopes(t *testing.T) {
	tests := []struct {
		name    string
		records []ledger.FulfillmentRecord
		groups  int
	}{
		{
			name: "termly in the same term",
			records: []ledger.FulfillmentRecord{
				record("a", "pupil-1", single("U1"), "2025", "2025-t1", 2),
				record("b", "pupil-1", single("U1"), "2025", "2025-t1", 2),
			},
			groups: 1,
		},
		{
			name: "termly in different terms",
			records: []ledger.FulfillmentRecord{
				record("a", "pupil-1", single("U1"), "2025", "2025-t1", 2),
				record("b", "pupil-1", single("U1"), "2025", "2025-t2", 2),
			},
			groups: 0,
		},
		{
			name: "yearly in different terms",
			records: []ledger.FulfillmentRecord{
				record("a", "pupil-1", single("Y1"), "2025", "2025-t1", 0),
				record("b", "pupil-1", single("Y1"), "2025", "2025-t2", 0),
			},
			groups: 1,
		},
		{
			name: "single overlapping a bundle",
			records: []ledger.FulfillmentRecord{
				record("a", "pupil-1", ledger.Bundle{Items: []ledger.RequirementID{"U1", "U2"}}, "2025", "2025-t1", 3),
				record("b", "pupil-1", single("U2"), "2025", "2025-t1", 1),
			},
			groups: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := ledger.DetectDuplicates(tt.records, duplicateCatalog())
			assert.Len(t, groups, tt.groups)
		})
	}
}

func TestPlanCleanup_KeepsMostProgressed(t *testing.T) {
	// GIVEN: Three U1 records in one term; one partly paid, one with a
	//        release entry, one untouched
	// THEN: Keep the paid one, delete the untouched one, retain the one
	//       with history for review

	engine := testEngine()
	paid, _, err := engine.ApplyCoverage(record("a", "pupil-1", single("U1"), "2025", "2025-t1", 2), uniformTotals(), cash(40))
	require.NoError(t, err)
	released, _, err := engine.ApplyRelease(record("b", "pupil-1", single("U1"), "2025", "2025-t1", 2), ledger.ReleaseInput{Items: []ledger.RequirementID{"U1"}})
	require.NoError(t, err)
	untouched := record("c", "pupil-1", single("U1"), "2025", "2025-t1", 2)

	groups := ledger.DetectDuplicates([]ledger.FulfillmentRecord{untouched, released, paid}, duplicateCatalog())
	plan := ledger.PlanCleanup(groups)

	assert.Equal(t, []ledger.RecordID{"a"}, plan.Keep)
	assert.Equal(t, []ledger.RecordID{"c"}, plan.Delete)
	assert.Equal(t, []ledger.RecordID{"b"}, plan.Retained)
}

func TestService_CleanupDuplicates(t *testing.T) {
	ctx := context.Background()
	m := seededMemory(t, boy(), uniform())
	first := record("a", "pupil-1", single("U1"), "2025", "2025-t1", 2)
	second := record("b", "pupil-1", single("U1"), "2025", "2025-t1", 2)
	second.CreatedAt = second.CreatedAt.Add(1)
	_, err := m.Create(ctx, first)
	require.NoError(t, err)
	_, err = m.Create(ctx, second)
	require.NoError(t, err)

	svc := ledger.NewService(m, m)
	groups, err := svc.Duplicates(ctx, "pupil-1", "2025")
	require.NoError(t, err)
	require.Len(t, groups, 1)

	plan, err := svc.CleanupDuplicates(ctx, "pupil-1", "2025")
	require.NoError(t, err)
	assert.Equal(t, []ledger.RecordID{"b"}, plan.Delete, "earliest untouched record is kept")

	remaining, err := m.GetByYear(ctx, "pupil-1", "2025")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, ledger.RecordID("a"), remaining[0].ID)
}

func TestPlanCleanup_RetainsBundleWithUncoveredIDs(t *testing.T) {
	// GIVEN: An untouched single U1 and a later untouched bundle [U1, U2]
	// WHEN: Planning cleanup
	// THEN: The single is kept, and the bundle is retained because no
	//       other record holds U2

	first := record("s1", "pupil-1", single("U1"), "2025", "2025-t1", 2)
	later := record("b1", "pupil-1", bundle(t, "U1", "U2"), "2025", "2025-t1", 3)
	later.CreatedAt = later.CreatedAt.Add(time.Minute)

	plan := ledger.PlanCleanup(ledger.DetectDuplicates([]ledger.FulfillmentRecord{first, later}, duplicateCatalog()))

	assert.Equal(t, []ledger.RecordID{"s1"}, plan.Keep)
	assert.Empty(t, plan.Delete)
	assert.Equal(t, []ledger.RecordID{"b1"}, plan.Retained)
}

func TestPlanCleanup_DeletesBundleCoveredByKeptRecords(t *testing.T) {
	// GIVEN: A paid bundle [U1, U2] and untouched singles U1 and U2 in its term
	// THEN: Both singles are deleted; the bundle holds every id they held

	paid, _, err := testEngine().ApplyCoverage(record("b1", "pupil-1", bundle(t, "U1", "U2"), "2025", "2025-t1", 3), ledger.Totals{Amount: money(160), Quantity: 3}, cash(10))
	require.NoError(t, err)
	u1 := record("s1", "pupil-1", single("U1"), "2025", "2025-t1", 2)
	u2 := record("s2", "pupil-1", single("U2"), "2025", "2025-t1", 1)

	plan := ledger.PlanCleanup(ledger.DetectDuplicates([]ledger.FulfillmentRecord{paid, u1, u2}, duplicateCatalog()))

	assert.Equal(t, []ledger.RecordID{"b1"}, plan.Keep)
	assert.ElementsMatch(t, []ledger.RecordID{"s1", "s2"}, plan.Delete)
	assert.Empty(t, plan.Retained)
}

func TestService_CleanupDuplicates_KeepsUncoveredObligations(t *testing.T) {
	ctx := context.Background()
	m := seededMemory(t, boy(), uniform(), item("U2", 60, 1, ledger.FrequencyTermly))
	s1 := record("s1", "pupil-1", single("U1"), "2025", "2025-t1", 2)
	b1 := record("b1", "pupil-1", bundle(t, "U1", "U2"), "2025", "2025-t1", 3)
	b1.CreatedAt = b1.CreatedAt.Add(time.Minute)
	_, err := m.Create(ctx, s1)
	require.NoError(t, err)
	_, err = m.Create(ctx, b1)
	require.NoError(t, err)

	plan, err := ledger.NewService(m, m).CleanupDuplicates(ctx, "pupil-1", "2025")
	require.NoError(t, err)
	assert.Empty(t, plan.Delete)

	remaining, err := m.GetByYear(ctx, "pupil-1", "2025")
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}
