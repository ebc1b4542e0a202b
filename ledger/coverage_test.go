package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/requirement-ledger/ledger"
)

func uniformTotals() ledger.Totals {
	return ledger.Totals{Amount: money(100), Quantity: 2}
}

func cash(v int64) ledger.CoverageInput {
	return ledger.CoverageInput{Contribution: ledger.Cash{Amount: money(v)}, ReceivedBy: "bursar"}
}

func items(q int) ledger.CoverageInput {
	return ledger.CoverageInput{Contribution: ledger.Items{Quantity: q}, ReceivedBy: "storekeeper"}
}

// =============================================================================
// WORKED SCENARIOS
// =============================================================================

func TestApplyCoverage_CashThenItem_ReachesPaid(t *testing.T) {
	// GIVEN: Fresh U1 record (total 100, 2 pieces, so 50 per piece)
	// WHEN: 60 cash, then 1 item
	// THEN: 60 partial, then 110 paid

	engine := testEngine()
	rec := record("rec-1", "pupil-1", single("U1"), "2025", "2025-t1", 2)

	rec, entry, err := engine.ApplyCoverage(rec, uniformTotals(), cash(60))
	require.NoError(t, err)
	assert.True(t, rec.PaidAmount.Equal(money(60)))
	assert.Equal(t, ledger.PaymentPartial, rec.PaymentStatus)
	assert.Equal(t, ledger.PaymentPending, entry.PaymentStatus, "entry snapshots the prior status")
	assert.Equal(t, ledger.ReceiptPaymentOnly, entry.ReceiptType)

	rec, entry, err = engine.ApplyCoverage(rec, uniformTotals(), items(1))
	require.NoError(t, err)
	assert.True(t, entry.PaidAmount.Equal(money(50)), "cash equivalent of one piece")
	assert.True(t, rec.PaidAmount.Equal(money(110)))
	assert.Equal(t, ledger.PaymentPaid, rec.PaymentStatus)
	assert.Equal(t, ledger.CoverageItem, rec.CoverageMode)
	assert.Equal(t, 1, rec.ItemQuantityProvided)
	assert.Equal(t, 1, rec.ItemQuantityReceivedFromParent)
	assert.Equal(t, ledger.PaymentPartial, entry.PaymentStatus)
	assert.Len(t, rec.History, 2)
}

func TestApplyRelease_PartialThenFull_OnBundle(t *testing.T) {
	// GIVEN: Bundle record [U1, U2]
	// WHEN: Release U1 partially, then U2 as a full release
	// THEN: pending after the first, released with two new entries after the second

	engine := testEngine()
	rec := record("rec-1", "pupil-1", bundle(t, "U1", "U2"), "2025", "2025-t1", 4)

	rec, entries, err := engine.ApplyRelease(rec, ledger.ReleaseInput{Items: []ledger.RequirementID{"U1"}, ReleasedBy: "matron"})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, ledger.ReleasePending, rec.ReleaseStatus)
	assert.Equal(t, []ledger.RequirementID{"U1"}, rec.ReleasedItems)
	assert.False(t, ledger.IsFullyReleased(rec))

	rec, entries, err = engine.ApplyRelease(rec, ledger.ReleaseInput{Items: []ledger.RequirementID{"U2"}, Full: true, ReleasedBy: "matron"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.EntryRelease, entries[0].Kind)
	assert.Equal(t, []ledger.RequirementID{"U2"}, entries[0].ReleasedItems)
	assert.Equal(t, ledger.EntryReleaseComplete, entries[1].Kind)
	assert.Equal(t, ledger.ReleasePending, entries[1].ReleaseStatus, "completion entry snapshots the prior status")

	assert.Equal(t, ledger.ReleaseReleased, rec.ReleaseStatus)
	assert.Equal(t, "matron", rec.ReleasedBy)
	require.NotNil(t, rec.ReleaseDate)
	assert.Len(t, rec.History, 3)
	assert.True(t, ledger.IsFullyReleased(rec))
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestApplyCoverage_RejectsInvalidContribution(t *testing.T) {
	engine := testEngine()
	rec := record("rec-1", "pupil-1", single("U1"), "2025", "2025-t1", 2)

	cases := map[string]ledger.CoverageInput{
		"zero cash":     cash(0),
		"negative cash": cash(-5),
		"zero items":    items(0),
		"negative item": items(-1),
		"missing":       {ReceivedBy: "bursar"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			got, _, err := engine.ApplyCoverage(rec, uniformTotals(), in)

			var verr *ledger.CoverageValidationError
			assert.ErrorAs(t, err, &verr)
			assert.ErrorIs(t, err, ledger.ErrInvalidContribution)
			assert.Empty(t, got.History, "no partial state change")
			assert.True(t, got.PaidAmount.IsZero())
		})
	}
}

func TestApplyRelease_Rejections(t *testing.T) {
	engine := testEngine()
	rec := record("rec-1", "pupil-1", bundle(t, "U1", "U2"), "2025", "2025-t1", 4)

	t.Run("id outside the record", func(t *testing.T) {
		_, _, err := engine.ApplyRelease(rec, ledger.ReleaseInput{Items: []ledger.RequirementID{"X9"}})
		assert.ErrorIs(t, err, ledger.ErrInvalidRelease)
	})

	t.Run("partial release with nothing new", func(t *testing.T) {
		released, _, err := engine.ApplyRelease(rec, ledger.ReleaseInput{Items: []ledger.RequirementID{"U1"}})
		require.NoError(t, err)
		_, _, err = engine.ApplyRelease(released, ledger.ReleaseInput{Items: []ledger.RequirementID{"U1"}})
		assert.ErrorIs(t, err, ledger.ErrInvalidRelease)
	})

	t.Run("record already released", func(t *testing.T) {
		released, _, err := engine.ApplyRelease(rec, ledger.ReleaseInput{Full: true})
		require.NoError(t, err)
		_, _, err = engine.ApplyRelease(released, ledger.ReleaseInput{Full: true})
		assert.ErrorIs(t, err, ledger.ErrAlreadyReleased)
	})
}

// =============================================================================
// STATE MACHINE PROPERTIES
// =============================================================================

func TestApplyCoverage_StatusNeverRegresses(t *testing.T) {
	engine := testEngine()
	rec := record("rec-1", "pupil-1", single("U1"), "2025", "2025-t1", 2)

	steps := []ledger.CoverageInput{cash(10), items(1), cash(5), cash(70), items(1), cash(1)}
	prev := 0
	rank := map[ledger.PaymentStatus]int{ledger.PaymentPending: 0, ledger.PaymentPartial: 1, ledger.PaymentPaid: 2}
	for _, step := range steps {
		var err error
		rec, _, err = engine.ApplyCoverage(rec, uniformTotals(), step)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, rank[rec.PaymentStatus], prev)
		prev = rank[rec.PaymentStatus]
	}
	assert.Equal(t, ledger.PaymentPaid, rec.PaymentStatus)
}

func TestApplyCoverage_OverPaymentAccepted(t *testing.T) {
	engine := testEngine()
	rec := record("rec-1", "pupil-1", single("U1"), "2025", "2025-t1", 2)

	rec, _, err := engine.ApplyCoverage(rec, uniformTotals(), cash(250))
	require.NoError(t, err)
	assert.True(t, rec.PaidAmount.Equal(money(250)))
	assert.Equal(t, ledger.PaymentPaid, rec.PaymentStatus)
}

func TestApplyCoverage_ItemsOnNonQuantityRequirement_CountNoCash(t *testing.T) {
	// GIVEN: Requirement priced at 40 with no quantity
	// WHEN: Items are contributed anyway
	// THEN: Price per item is zero, so no cash is credited

	engine := testEngine()
	rec := record("rec-1", "pupil-1", single("Y1"), "2025", "2025-t1", 0)

	rec, entry, err := engine.ApplyCoverage(rec, ledger.Totals{Amount: money(40)}, items(3))
	require.NoError(t, err)
	assert.True(t, entry.PaidAmount.IsZero())
	assert.Equal(t, ledger.PaymentPending, rec.PaymentStatus)
	assert.Equal(t, 3, rec.ItemQuantityProvided)
}

func TestHistoryReplay_ReproducesTotals(t *testing.T) {
	engine := testEngine()
	rec := record("rec-1", "pupil-1", bundle(t, "U1", "U2"), "2025", "2025-t1", 3)
	totals := ledger.Totals{Amount: decimal.RequireFromString("150.75"), Quantity: 3}

	var err error
	rec, _, err = engine.ApplyCoverage(rec, totals, cash(20))
	require.NoError(t, err)
	rec, _, err = engine.ApplyCoverage(rec, totals, items(1))
	require.NoError(t, err)
	rec, _, err = engine.RecordReceipt(rec, ledger.ReceiptInput{Quantity: 1, ReceivedBy: "office"})
	require.NoError(t, err)
	rec, _, err = engine.ApplyRelease(rec, ledger.ReleaseInput{Items: []ledger.RequirementID{"U2"}})
	require.NoError(t, err)
	rec, _, err = engine.ApplyCoverage(rec, totals, items(1))
	require.NoError(t, err)

	replayed := ledger.Projector{}.Replay(rec.History)
	assert.True(t, replayed.PaidAmount.Equal(rec.PaidAmount), "paid %s vs replayed %s", rec.PaidAmount, replayed.PaidAmount)
	assert.Equal(t, rec.ItemQuantityProvided, replayed.ItemQuantityProvided)
	assert.Equal(t, rec.ItemQuantityReceivedFromOffice, replayed.FromOffice)
	assert.Equal(t, rec.ItemQuantityReceivedFromParent, replayed.FromParent)
}

// =============================================================================
// RECEIPTS AND RELEASE COMPLETENESS
// =============================================================================

func TestRecordReceipt_OfficeItemsNoCash(t *testing.T) {
	engine := testEngine()
	rec := record("rec-1", "pupil-1", single("U1"), "2025", "2025-t1", 2)
	rec, _, err := engine.ApplyCoverage(rec, uniformTotals(), cash(100))
	require.NoError(t, err)

	rec, entry, err := engine.RecordReceipt(rec, ledger.ReceiptInput{Quantity: 2, ReceivedBy: "storekeeper"})
	require.NoError(t, err)
	assert.Equal(t, ledger.ReceiptOnly, entry.ReceiptType)
	assert.Equal(t, ledger.SourceOffice, entry.ReceiptSource)
	assert.True(t, entry.PaidAmount.IsZero())
	assert.Equal(t, 2, rec.ItemQuantityReceivedFromOffice)
	assert.Equal(t, ledger.CoverageCash, rec.CoverageMode)
	assert.True(t, rec.PaidAmount.Equal(money(100)))

	_, _, err = engine.RecordReceipt(rec, ledger.ReceiptInput{Quantity: 0})
	assert.ErrorIs(t, err, ledger.ErrInvalidContribution)
}

func TestIsFullyReleased_DerivedFromReleasedItems(t *testing.T) {
	// GIVEN: Bundle record
	// WHEN: Every id is released through partial releases
	// THEN: It counts as fully released even though status stays pending

	engine := testEngine()
	rec := record("rec-1", "pupil-1", bundle(t, "U1", "U2", "U3"), "2025", "2025-t1", 3)

	rec, _, err := engine.ApplyRelease(rec, ledger.ReleaseInput{Items: []ledger.RequirementID{"U3", "U1"}})
	require.NoError(t, err)
	assert.False(t, ledger.IsFullyReleased(rec))

	rec, _, err = engine.ApplyRelease(rec, ledger.ReleaseInput{Items: []ledger.RequirementID{"U2"}})
	require.NoError(t, err)
	assert.Equal(t, ledger.ReleasePending, rec.ReleaseStatus)
	assert.True(t, ledger.IsFullyReleased(rec))
}

func TestApplyRelease_FullWithoutIDs_ReleasesRemainder(t *testing.T) {
	engine := testEngine()
	rec := record("rec-1", "pupil-1", bundle(t, "U1", "U2"), "2025", "2025-t1", 4)
	rec, _, err := engine.ApplyRelease(rec, ledger.ReleaseInput{Items: []ledger.RequirementID{"U1"}})
	require.NoError(t, err)

	rec, entries, err := engine.ApplyRelease(rec, ledger.ReleaseInput{Full: true, ReleasedBy: "matron"})
	require.NoError(t, err)
	assert.Equal(t, []ledger.RequirementID{"U2"}, entries[0].ReleasedItems)
	assert.ElementsMatch(t, []ledger.RequirementID{"U1", "U2"}, rec.ReleasedItems)
}

func TestApplyRelease_FullWithSubset_ReleasesWholeSelector(t *testing.T) {
	// GIVEN: Bundle record [U1, U2, U3] with nothing released
	// WHEN: A full release names only U1
	// THEN: The release entry carries every id, so history alone proves completion

	engine := testEngine()
	rec := record("rec-1", "pupil-1", bundle(t, "U1", "U2", "U3"), "2025", "2025-t1", 6)

	rec, entries, err := engine.ApplyRelease(rec, ledger.ReleaseInput{Items: []ledger.RequirementID{"U1"}, Full: true, ReleasedBy: "matron"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []ledger.RequirementID{"U1", "U2", "U3"}, entries[0].ReleasedItems)
	assert.Equal(t, ledger.ReleaseReleased, rec.ReleaseStatus)

	union := ledger.ReleasedUnion(rec.History)
	for _, id := range rec.RequirementIDs() {
		assert.True(t, union[id], "%s missing from released history", id)
	}
}

func TestApplyCoverage_DoesNotAliasInputHistory(t *testing.T) {
	engine := testEngine()
	rec := record("rec-1", "pupil-1", single("U1"), "2025", "2025-t1", 2)
	first, _, err := engine.ApplyCoverage(rec, uniformTotals(), cash(10))
	require.NoError(t, err)

	_, _, err = engine.ApplyCoverage(first, uniformTotals(), cash(10))
	require.NoError(t, err)
	assert.Len(t, first.History, 1)
}
