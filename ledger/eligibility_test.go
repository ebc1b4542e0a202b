package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/requirement-ledger/ledger"
)

func resolve(t *testing.T, in ledger.ResolveInput) *ledger.ResolveResult {
	t.Helper()
	r := &ledger.Resolver{}
	result, err := r.Resolve(in)
	require.NoError(t, err)
	return result
}

// =============================================================================
// WORKED SCENARIOS
// =============================================================================

func TestResolve_TermlyItemWithNoRecord_IsEligible(t *testing.T) {
	// GIVEN: Catalog with U1 (price 100, quantity 2, termly)
	// WHEN: Pupil has no record this term
	// THEN: Resolver returns [U1]

	result := resolve(t, ledger.ResolveInput{
		Pupil:   boy(),
		Year:    year2025(),
		TermID:  "2025-t1",
		Catalog: []ledger.RequirementItem{uniform()},
	})

	assert.Equal(t, []ledger.RequirementID{"U1"}, result.IDs())
	assert.Empty(t, result.Skipped)
}

func TestResolve_YearlyItemAssignedInTerm1_ExcludedInTerm2(t *testing.T) {
	// GIVEN: Yearly item Y1 already has a record in Term 1
	// WHEN: Eligibility is queried for Term 2 of the same year
	// THEN: Y1 is excluded

	yearly := item("Y1", 40, 0, ledger.FrequencyYearly)
	existing := record("rec-1", "pupil-1", single("Y1"), "2025", "2025-t1", 0)

	result := resolve(t, ledger.ResolveInput{
		Pupil:    boy(),
		Year:     year2025(),
		TermID:   "2025-t2",
		Catalog:  []ledger.RequirementItem{yearly},
		ThisYear: []ledger.FulfillmentRecord{existing},
	})

	assert.Empty(t, result.Items)
}

// =============================================================================
// FREQUENCY VISIBILITY
// =============================================================================

func TestResolve_TermlyItemWithRecordThisTerm_Excluded(t *testing.T) {
	existing := record("rec-1", "pupil-1", single("U1"), "2025", "2025-t1", 2)

	result := resolve(t, ledger.ResolveInput{
		Pupil:    boy(),
		Year:     year2025(),
		TermID:   "2025-t1",
		Catalog:  []ledger.RequirementItem{uniform()},
		ThisTerm: []ledger.FulfillmentRecord{existing},
		ThisYear: []ledger.FulfillmentRecord{existing},
	})

	assert.Empty(t, result.Items)
}

func TestResolve_TermlyItemWithRecordInOtherTerm_StillEligible(t *testing.T) {
	// GIVEN: U1 was assigned in Term 1
	// WHEN: Querying Term 2 (term-scoped records are empty)
	// THEN: U1 is eligible again

	existing := record("rec-1", "pupil-1", single("U1"), "2025", "2025-t1", 2)

	result := resolve(t, ledger.ResolveInput{
		Pupil:    boy(),
		Year:     year2025(),
		TermID:   "2025-t2",
		Catalog:  []ledger.RequirementItem{uniform()},
		ThisYear: []ledger.FulfillmentRecord{existing},
	})

	assert.Equal(t, []ledger.RequirementID{"U1"}, result.IDs())
}

func TestResolve_TermlyItemInsideBundle_Excluded(t *testing.T) {
	existing := record("rec-1", "pupil-1", bundle(t, "U1", "U2"), "2025", "2025-t1", 4)

	result := resolve(t, ledger.ResolveInput{
		Pupil:    boy(),
		Year:     year2025(),
		TermID:   "2025-t1",
		Catalog:  []ledger.RequirementItem{uniform(), item("U2", 50, 2, ledger.FrequencyTermly), item("B1", 10, 1, ledger.FrequencyTermly)},
		ThisTerm: []ledger.FulfillmentRecord{existing},
	})

	assert.Equal(t, []ledger.RequirementID{"B1"}, result.IDs())
}

func TestResolve_YearlyItemOnlyInFirstTerm(t *testing.T) {
	yearly := item("Y1", 40, 0, ledger.FrequencyYearly)
	in := ledger.ResolveInput{
		Pupil:   boy(),
		Year:    year2025(),
		Catalog: []ledger.RequirementItem{yearly},
	}

	in.TermID = "2025-t1"
	assert.Equal(t, []ledger.RequirementID{"Y1"}, resolve(t, in).IDs(), "first term by ordinal, not slice order")

	in.TermID = "2025-t3"
	assert.Empty(t, resolve(t, in).Items)
}

func TestResolve_OneTimeItem(t *testing.T) {
	kit := item("K1", 150, 0, ledger.FrequencyOneTime)

	t.Run("eligible in a later term when never assigned", func(t *testing.T) {
		result := resolve(t, ledger.ResolveInput{
			Pupil: boy(), Year: year2025(), TermID: "2025-t2",
			Catalog: []ledger.RequirementItem{kit},
		})
		assert.Equal(t, []ledger.RequirementID{"K1"}, result.IDs())
	})

	t.Run("excluded when assigned this year", func(t *testing.T) {
		result := resolve(t, ledger.ResolveInput{
			Pupil: boy(), Year: year2025(), TermID: "2025-t2",
			Catalog:  []ledger.RequirementItem{kit},
			ThisYear: []ledger.FulfillmentRecord{record("rec-1", "pupil-1", single("K1"), "2025", "2025-t1", 0)},
		})
		assert.Empty(t, result.Items)
	})

	t.Run("excluded when assigned in an earlier year", func(t *testing.T) {
		result := resolve(t, ledger.ResolveInput{
			Pupil: boy(), Year: year2026(), TermID: "2026-t1",
			Catalog:  []ledger.RequirementItem{kit},
			Lifetime: []ledger.FulfillmentRecord{record("rec-1", "pupil-1", single("K1"), "2025", "2025-t1", 0)},
		})
		assert.Empty(t, result.Items)
	})
}

// =============================================================================
// SCOPE FILTER
// =============================================================================

func TestResolve_ScopeFilter(t *testing.T) {
	girlsDress := item("G1", 80, 1, ledger.FrequencyTermly)
	girlsDress.Gender = ledger.GenderFemale

	p4Atlas := item("A1", 30, 1, ledger.FrequencyTermly)
	p4Atlas.ClassIDs = []string{"P4", "P5"}

	p7Atlas := item("A2", 30, 1, ledger.FrequencyTermly)
	p7Atlas.ClassIDs = []string{"P7"}

	dayBag := item("D1", 20, 1, ledger.FrequencyTermly)
	dayBag.Section = "day"

	mattress := item("M1", 90, 1, ledger.FrequencyTermly)
	mattress.Section = "boarding"

	result := resolve(t, ledger.ResolveInput{
		Pupil: boy(), Year: year2025(), TermID: "2025-t1",
		Catalog: []ledger.RequirementItem{girlsDress, p4Atlas, p7Atlas, dayBag, mattress},
	})

	assert.ElementsMatch(t, []ledger.RequirementID{"A1", "M1"}, result.IDs())
}

func TestResolve_PupilWithoutClass_OnlyAllScopeItems(t *testing.T) {
	// GIVEN: Pupil with no class
	// WHEN: Catalog has a class-specific item and an all-scope item
	// THEN: Only the all-scope item is returned; the other is reported skipped

	pupil := boy()
	pupil.ClassID = ""

	atlas := item("A1", 30, 1, ledger.FrequencyTermly)
	atlas.ClassIDs = []string{"P4"}

	result := resolve(t, ledger.ResolveInput{
		Pupil: pupil, Year: year2025(), TermID: "2025-t1",
		Catalog: []ledger.RequirementItem{atlas, uniform()},
	})

	assert.Equal(t, []ledger.RequirementID{"U1"}, result.IDs())
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, ledger.RequirementID("A1"), result.Skipped[0].RequirementID)
	assert.ErrorIs(t, result.Skipped[0], ledger.ErrIneligible)
}

// =============================================================================
// ORDERING AND ERRORS
// =============================================================================

func TestResolve_Ordering(t *testing.T) {
	// GIVEN: Items across tiers and specificity
	// THEN: one-time < yearly < termly; within a tier more specific first,
	//       then price descending

	kit := item("K1", 150, 0, ledger.FrequencyOneTime)
	yearly := item("Y1", 40, 0, ledger.FrequencyYearly)
	cheap := item("T1", 10, 1, ledger.FrequencyTermly)
	dear := item("T2", 60, 1, ledger.FrequencyTermly)
	specific := item("T3", 5, 1, ledger.FrequencyTermly)
	specific.ClassIDs = []string{"P4"}
	specific.Gender = ledger.GenderMale

	result := resolve(t, ledger.ResolveInput{
		Pupil: boy(), Year: year2025(), TermID: "2025-t1",
		Catalog: []ledger.RequirementItem{cheap, dear, yearly, specific, kit},
	})

	assert.Equal(t, []ledger.RequirementID{"K1", "Y1", "T3", "T2", "T1"}, result.IDs())
}

func TestResolve_TermNotInYear(t *testing.T) {
	r := &ledger.Resolver{}
	_, err := r.Resolve(ledger.ResolveInput{
		Pupil: boy(), Year: year2025(), TermID: "2026-t1",
		Catalog: []ledger.RequirementItem{uniform()},
	})
	assert.ErrorIs(t, err, ledger.ErrTermNotInYear)
}

func TestResolve_DuplicateCatalogEntries_ReturnedOnce(t *testing.T) {
	result := resolve(t, ledger.ResolveInput{
		Pupil: boy(), Year: year2025(), TermID: "2025-t1",
		Catalog: []ledger.RequirementItem{uniform(), uniform()},
	})
	assert.Len(t, result.Items, 1)
}
