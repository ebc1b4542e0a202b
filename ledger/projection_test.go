package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/requirement-ledger/ledger"
)

func TestPaymentHistory_RunningTotals(t *testing.T) {
	// GIVEN: U1 covered by 60 cash, a release, then 1 item (50)
	// THEN: Payment view has two lines; release entries are excluded

	engine := testEngine()
	rec := record("rec-1", "pupil-1", single("U1"), "2025", "2025-t1", 2)
	var err error
	rec, _, err = engine.ApplyCoverage(rec, uniformTotals(), cash(60))
	require.NoError(t, err)
	rec, _, err = engine.ApplyRelease(rec, ledger.ReleaseInput{Items: []ledger.RequirementID{"U1"}})
	require.NoError(t, err)
	rec, _, err = engine.ApplyCoverage(rec, uniformTotals(), items(1))
	require.NoError(t, err)

	lines := ledger.Projector{}.PaymentHistory(rec.History, money(100))

	require.Len(t, lines, 2)
	assert.True(t, lines[0].RunningTotal.Equal(money(60)))
	assert.True(t, lines[0].RemainingBalance.Equal(money(40)))
	assert.False(t, lines[0].IsFullPayment)
	assert.True(t, lines[1].RunningTotal.Equal(money(110)))
	assert.True(t, lines[1].RemainingBalance.IsZero(), "remaining balance floors at zero")
	assert.True(t, lines[1].IsFullPayment)
}

func TestPaymentHistory_SortsByDate(t *testing.T) {
	history := []ledger.HistoryEntry{
		{Date: date(2025, time.March, 1), PaidAmount: money(30), ReceiptType: ledger.ReceiptPaymentOnly},
		{Date: date(2025, time.February, 1), PaidAmount: money(20), ReceiptType: ledger.ReceiptPaymentOnly},
	}

	lines := ledger.Projector{}.PaymentHistory(history, money(100))

	require.Len(t, lines, 2)
	assert.True(t, lines[0].Entry.PaidAmount.Equal(money(20)))
	assert.True(t, lines[1].RunningTotal.Equal(money(50)))
}

func TestReceiptHistory_CountsParentAndOfficeItems(t *testing.T) {
	engine := testEngine()
	rec := record("rec-1", "pupil-1", single("U1"), "2025", "2025-t1", 2)
	var err error
	rec, _, err = engine.ApplyCoverage(rec, uniformTotals(), cash(50))
	require.NoError(t, err)
	rec, _, err = engine.ApplyCoverage(rec, uniformTotals(), items(1))
	require.NoError(t, err)
	rec, _, err = engine.RecordReceipt(rec, ledger.ReceiptInput{Quantity: 1})
	require.NoError(t, err)

	lines := ledger.Projector{}.ReceiptHistory(rec.History, 2)

	require.Len(t, lines, 2, "cash-only entry carries no receipt")
	assert.Equal(t, 1, lines[0].RunningItems)
	assert.Equal(t, 1, lines[0].RemainingItems)
	assert.False(t, lines[0].IsFullReceipt)
	assert.Equal(t, 2, lines[1].RunningItems)
	assert.True(t, lines[1].IsFullReceipt)
}

func TestConversions(t *testing.T) {
	ppi := ledger.PricePerItem(money(100), 2)
	assert.True(t, ppi.Equal(money(50)))

	assert.Equal(t, 2, ledger.ItemEquivalent(money(110), ppi), "floors partial items")
	assert.True(t, ledger.CashEquivalent(3, ppi).Equal(money(150)))

	assert.True(t, ledger.PricePerItem(money(100), 0).IsZero())
	assert.Equal(t, 0, ledger.ItemEquivalent(money(100), decimal.Zero))

	assert.True(t, ledger.Totals{Amount: money(90), Quantity: 3}.PricePerItem().Equal(money(30)))
}

func TestSummarize(t *testing.T) {
	engine := testEngine()
	rec := record("rec-1", "pupil-1", single("U1"), "2025", "2025-t1", 2)
	rec, _, err := engine.ApplyCoverage(rec, uniformTotals(), items(1))
	require.NoError(t, err)

	s := ledger.Projector{}.Summarize(rec, uniformTotals())

	assert.True(t, s.RemainingBalance.Equal(money(50)))
	assert.True(t, s.PricePerItem.Equal(money(50)))
	assert.Equal(t, 1, s.RemainingQuantity)
	assert.Equal(t, 1, s.ItemEquivalent)
	assert.False(t, s.CashOnly)
	assert.Equal(t, ledger.PaymentPartial, s.PaymentStatus)
	assert.False(t, s.IsFullyReleased)

	cashOnly := ledger.Projector{}.Summarize(record("rec-2", "pupil-1", single("Y1"), "2025", "2025-t1", 0), ledger.Totals{Amount: money(40)})
	assert.True(t, cashOnly.CashOnly)
	assert.True(t, cashOnly.PricePerItem.IsZero())
}
