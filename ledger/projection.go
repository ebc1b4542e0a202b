/*
projection.go - Read-only views derived from a record's history

PURPOSE:
  Folds the append-only history left-to-right to produce running totals
  for display. Nothing here mutates a record or touches a store.

VIEWS:
  PaymentHistory: entries whose receipt type includes a payment, with
                  runningTotal, remainingBalance and isFullPayment
  ReceiptHistory: entries whose receipt type includes a receipt, with
                  runningItems, remainingItems and isFullReceipt
  Replay:         paid and provided totals recomputed from empty
  Summarize:      one-line status of a record against its catalog totals

REPLAY PROPERTY:
  Replay(record.History) reproduces record.PaidAmount and
  record.ItemQuantityProvided exactly.

CONVERSIONS:
  pricePerItem   = totalAmount / totalQuantity (zero when totalQuantity = 0)
  itemEquivalent = floor(cash / pricePerItem)
  cashEquivalent = items * pricePerItem

SEE ALSO:
  - coverage.go: Writes the entries folded here
*/
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONVERSIONS
// =============================================================================

// PricePerItem divides the total price over the required quantity.
// Returns zero when the requirement is not quantity-based.
func PricePerItem(total decimal.Decimal, quantity int) decimal.Decimal {
	if quantity <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(quantity)))
}

// ItemEquivalent is how many whole items cash buys. Zero when pricePerItem is zero.
func ItemEquivalent(cash, pricePerItem decimal.Decimal) int {
	if !pricePerItem.IsPositive() {
		return 0
	}
	return int(cash.Div(pricePerItem).Floor().IntPart())
}

func CashEquivalent(items int, pricePerItem decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(items)).Mul(pricePerItem)
}

// =============================================================================
// PROJECTOR
// =============================================================================

type Projector struct{}

type PaymentLine struct {
	Entry            HistoryEntry    `json:"entry"`
	RunningTotal     decimal.Decimal `json:"running_total"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	IsFullPayment    bool            `json:"is_full_payment"`
}

type ReceiptLine struct {
	Entry          HistoryEntry `json:"entry"`
	RunningItems   int          `json:"running_items"`
	RemainingItems int          `json:"remaining_items"`
	IsFullReceipt  bool         `json:"is_full_receipt"`
}

// PaymentHistory folds payment-bearing entries in date order.
func (Projector) PaymentHistory(history []HistoryEntry, totalRequired decimal.Decimal) []PaymentLine {
	entries := chronological(history, func(e HistoryEntry) bool { return e.ReceiptType.IncludesPayment() })
	lines := make([]PaymentLine, 0, len(entries))
	running := decimal.Zero
	for _, e := range entries {
		running = running.Add(e.PaidAmount)
		remaining := totalRequired.Sub(running)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		lines = append(lines, PaymentLine{
			Entry:            e,
			RunningTotal:     running,
			RemainingBalance: remaining,
			IsFullPayment:    remaining.IsZero(),
		})
	}
	return lines
}

// ReceiptHistory folds receipt-bearing entries in date order over item counts.
func (Projector) ReceiptHistory(history []HistoryEntry, totalItems int) []ReceiptLine {
	entries := chronological(history, func(e HistoryEntry) bool { return e.ReceiptType.IncludesReceipt() })
	lines := make([]ReceiptLine, 0, len(entries))
	running := 0
	for _, e := range entries {
		running += e.ItemQuantityProvided
		remaining := totalItems - running
		if remaining < 0 {
			remaining = 0
		}
		lines = append(lines, ReceiptLine{
			Entry:          e,
			RunningItems:   running,
			RemainingItems: remaining,
			IsFullReceipt:  remaining == 0,
		})
	}
	return lines
}

// Replayed holds totals recomputed from history alone.
type Replayed struct {
	PaidAmount           decimal.Decimal
	ItemQuantityProvided int
	FromOffice           int
	FromParent           int
	ReleasedItems        map[RequirementID]bool
	Completed            bool
}

// Replay folds the whole history from empty, in append order.
func (Projector) Replay(history []HistoryEntry) Replayed {
	r := Replayed{PaidAmount: decimal.Zero, ReleasedItems: make(map[RequirementID]bool)}
	for _, e := range history {
		r.PaidAmount = r.PaidAmount.Add(e.PaidAmount)
		r.ItemQuantityProvided += e.ItemQuantityProvided
		switch e.ReceiptSource {
		case SourceOffice:
			r.FromOffice += e.ItemQuantityProvided
		case SourceParent:
			r.FromParent += e.ItemQuantityProvided
		}
		for _, id := range e.ReleasedItems {
			r.ReleasedItems[id] = true
		}
		if e.Kind == EntryReleaseComplete {
			r.Completed = true
		}
	}
	return r
}

// Summary is the display view of a record against its catalog totals.
type Summary struct {
	RecordID          RecordID        `json:"record_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	RemainingBalance  decimal.Decimal `json:"remaining_balance"`
	PricePerItem      decimal.Decimal `json:"price_per_item"`
	TotalQuantity     int             `json:"total_quantity"`
	QuantityProvided  int             `json:"quantity_provided"`
	RemainingQuantity int             `json:"remaining_quantity"`
	ItemEquivalent    int             `json:"item_equivalent"`
	CashOnly          bool            `json:"cash_only"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	ReleaseStatus     ReleaseStatus   `json:"release_status"`
	IsFullyReleased   bool            `json:"is_fully_released"`
	ReleasedItems     []RequirementID `json:"released_items"`
}

func (Projector) Summarize(rec FulfillmentRecord, totals Totals) Summary {
	qty := requiredQuantity(rec, totals)
	ppi := PricePerItem(totals.Amount, qty)
	remaining := totals.Amount.Sub(rec.PaidAmount)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	remainingQty := qty - rec.ItemQuantityProvided
	if remainingQty < 0 {
		remainingQty = 0
	}
	return Summary{
		RecordID:          rec.ID,
		TotalAmount:       totals.Amount,
		PaidAmount:        rec.PaidAmount,
		RemainingBalance:  remaining,
		PricePerItem:      ppi,
		TotalQuantity:     qty,
		QuantityProvided:  rec.ItemQuantityProvided,
		RemainingQuantity: remainingQty,
		ItemEquivalent:    ItemEquivalent(rec.PaidAmount, ppi),
		CashOnly:          qty == 0,
		PaymentStatus:     rec.PaymentStatus,
		ReleaseStatus:     rec.ReleaseStatus,
		IsFullyReleased:   IsFullyReleased(rec),
		ReleasedItems:     append([]RequirementID{}, rec.ReleasedItems...),
	}
}

func chronological(history []HistoryEntry, keep func(HistoryEntry) bool) []HistoryEntry {
	var out []HistoryEntry
	for _, e := range history {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
