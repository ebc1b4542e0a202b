package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REQUIREMENT ITEM - Catalog definition, immutable once referenced
// =============================================================================

type Frequency string

const (
	FrequencyOneTime Frequency = "one-time"
	FrequencyYearly  Frequency = "yearly"
	FrequencyTermly  Frequency = "termly"
)

// Rank orders frequency tiers: one-time < yearly < termly.
func (f Frequency) Rank() int {
	switch f {
	case FrequencyOneTime:
		return 0
	case FrequencyYearly:
		return 1
	default:
		return 2
	}
}

// YearScoped is true for frequencies deduplicated across the whole year.
func (f Frequency) YearScoped() bool {
	return f == FrequencyOneTime || f == FrequencyYearly
}

func (f Frequency) Valid() bool {
	return f == FrequencyOneTime || f == FrequencyYearly || f == FrequencyTermly
}

type Gender string

const (
	GenderAll    Gender = "all"
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// RequirementItem is a catalog definition. Changes create a new item; an
// item referenced by a record is never mutated.
type RequirementItem struct {
	ID       RequirementID   `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"` // items represented by one price unit, 0 if not quantity-based
	Group    string          `json:"group,omitempty"`

	Frequency Frequency `json:"frequency"`
	Gender    Gender    `json:"gender"`
	ClassIDs  []string  `json:"class_ids,omitempty"` // empty = all classes
	Section   string    `json:"section,omitempty"`   // empty = all sections

	CreatedAt time.Time `json:"created_at"`
}

func (it RequirementItem) AllGenders() bool  { return it.Gender == "" || it.Gender == GenderAll }
func (it RequirementItem) AllClasses() bool  { return len(it.ClassIDs) == 0 }
func (it RequirementItem) AllSections() bool { return it.Section == "" || it.Section == "all" }

// SpecificityScore counts the scopes that are not "all".
func (it RequirementItem) SpecificityScore() int {
	score := 0
	if !it.AllGenders() {
		score++
	}
	if !it.AllClasses() {
		score++
	}
	if !it.AllSections() {
		score++
	}
	return score
}

func (it RequirementItem) inClass(classID string) bool {
	for _, c := range it.ClassIDs {
		if c == classID {
			return true
		}
	}
	return false
}

// =============================================================================
// CATALOG - Lookup and totals over a set of items
// =============================================================================

// Catalog indexes items by id.
type Catalog map[RequirementID]RequirementItem

func NewCatalog(items []RequirementItem) Catalog {
	c := make(Catalog, len(items))
	for _, it := range items {
		c[it.ID] = it
	}
	return c
}

// Totals is the price and quantity owed for a requirement set.
type Totals struct {
	Amount   decimal.Decimal
	Quantity int
}

// TotalsFor sums price and quantity over the selector's items.
// Missing catalog ids are reported as an error.
func (c Catalog) TotalsFor(sel RequirementSelector) (Totals, error) {
	t := Totals{Amount: decimal.Zero}
	if sel == nil {
		return t, fmt.Errorf("%w: record has no requirement", ErrInvalidSelector)
	}
	for _, id := range sel.IDs() {
		it, ok := c[id]
		if !ok {
			return t, fmt.Errorf("%w: %s", ErrRequirementNotFound, id)
		}
		t.Amount = t.Amount.Add(it.Price)
		t.Quantity += it.Quantity
	}
	return t, nil
}

// PricePerItem is Amount / Quantity, zero when the set is not quantity-based.
func (t Totals) PricePerItem() decimal.Decimal {
	return PricePerItem(t.Amount, t.Quantity)
}

// =============================================================================
// ELIGIBILITY FILTER - Scope predicates shared by providers and the resolver
// =============================================================================

// EligibilityFilter is the pre-filter a CatalogProvider applies before
// frequency rules. Empty fields match everything.
type EligibilityFilter struct {
	Gender  Gender
	ClassID string
	Section string
}

// FilterFor derives the scope filter for a pupil.
func FilterFor(p Pupil) EligibilityFilter {
	return EligibilityFilter{Gender: p.Gender, ClassID: p.ClassID, Section: p.Section}
}

// Matches applies gender, class and section scope. A pupil attribute that is
// missing never matches a specific scope.
func (f EligibilityFilter) Matches(it RequirementItem) bool {
	if !it.AllGenders() && it.Gender != f.Gender {
		return false
	}
	if !it.AllClasses() && (f.ClassID == "" || !it.inClass(f.ClassID)) {
		return false
	}
	if !it.AllSections() && (f.Section == "" || it.Section != f.Section) {
		return false
	}
	return true
}

// FilterItems returns the items matching f, in input order.
func FilterItems(items []RequirementItem, f EligibilityFilter) []RequirementItem {
	var out []RequirementItem
	for _, it := range items {
		if f.Matches(it) {
			out = append(out, it)
		}
	}
	return out
}
