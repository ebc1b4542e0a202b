/*
eligibility.go - Which catalog items a pupil owes for a term

PURPOSE:
  Given a pupil, a target term and the records that already exist, decide
  the ordered list of requirement items the pupil must fulfill.

ALGORITHM:
  1. Scope filter: gender (all or equal), class (all or pupil's class in
     set), section (all or equal). Missing pupil attributes never match a
     specific scope; the item is reported in Skipped.
  2. Frequency visibility:
       termly   - eligible unless a record this term references the id
       yearly   - only in the first term of the year, and only if no record
                  anywhere in the year references the id
       one-time - only if no record in the year (and, when the caller
                  supplies it, in any earlier year) references the id
  3. Order: frequency rank (one-time < yearly < termly), then more specific
     items first, then price descending, then id.

EXAMPLE:
  resolver := &ledger.Resolver{}
  result, _ := resolver.Resolve(ledger.ResolveInput{
      Pupil: pupil, Year: year, TermID: "term-1", Catalog: items,
      ThisTerm: termRecords, ThisYear: yearRecords,
  })
  for _, item := range result.Items { ... }

SEE ALSO:
  - assignment.go: Creates records for the resolved items
  - catalog.go: EligibilityFilter scope predicates
*/
package ledger

import (
	"fmt"
	"sort"
)

// =============================================================================
// RESOLVER
// =============================================================================

type Resolver struct{}

// ResolveInput carries everything the resolver needs; it performs no IO.
type ResolveInput struct {
	Pupil   Pupil
	Year    AcademicYear
	TermID  TermID
	Catalog []RequirementItem

	ThisTerm []FulfillmentRecord
	ThisYear []FulfillmentRecord

	// Lifetime holds records from any year. Nil means unknown, in which case
	// one-time items are deduplicated within the year only.
	Lifetime []FulfillmentRecord
}

type ResolveResult struct {
	Items   []RequirementItem
	Skipped []*EligibilityError
}

// IDs returns the resolved requirement ids in order.
func (r *ResolveResult) IDs() []RequirementID {
	ids := make([]RequirementID, len(r.Items))
	for i, it := range r.Items {
		ids[i] = it.ID
	}
	return ids
}

// Resolve computes the ordered list of items the pupil is obligated to fulfill.
func (r *Resolver) Resolve(in ResolveInput) (*ResolveResult, error) {
	if _, ok := in.Year.Term(in.TermID); !ok {
		return nil, fmt.Errorf("%w: term %s, year %s", ErrTermNotInYear, in.TermID, in.Year.ID)
	}
	firstTerm := in.Year.IsFirstTerm(in.TermID)
	filter := FilterFor(in.Pupil)
	result := &ResolveResult{}
	seen := make(map[RequirementID]bool, len(in.Catalog))

	for _, item := range in.Catalog {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true

		if reason := missingContext(in.Pupil, item); reason != "" {
			result.Skipped = append(result.Skipped, &EligibilityError{
				PupilID:       in.Pupil.ID,
				RequirementID: item.ID,
				Reason:        reason,
			})
			continue
		}
		if !filter.Matches(item) {
			continue
		}
		if !visible(item, firstTerm, in) {
			continue
		}
		result.Items = append(result.Items, item)
	}

	SortRequirements(result.Items)
	return result, nil
}

// missingContext reports the pupil attribute a specific-scope item needs
// but the pupil lacks.
func missingContext(p Pupil, item RequirementItem) string {
	switch {
	case !item.AllGenders() && p.Gender == "":
		return "pupil gender is missing"
	case !item.AllClasses() && p.ClassID == "":
		return "pupil has no class"
	case !item.AllSections() && p.Section == "":
		return "pupil has no section"
	}
	return ""
}

// CheckEligible applies the resolver's scope and term rules to one item
// chosen by hand. Whether the item is already held is left to the caller.
func CheckEligible(p Pupil, item RequirementItem, firstTerm bool) *EligibilityError {
	reason := missingContext(p, item)
	switch {
	case reason != "":
	case !FilterFor(p).Matches(item):
		reason = "pupil is outside the item's scope"
	case item.Frequency == FrequencyYearly && !firstTerm:
		reason = "yearly items are assigned in the first term"
	default:
		return nil
	}
	return &EligibilityError{PupilID: p.ID, RequirementID: item.ID, Reason: reason}
}

func visible(item RequirementItem, firstTerm bool, in ResolveInput) bool {
	switch item.Frequency {
	case FrequencyYearly:
		return firstTerm && !anyReferences(in.ThisYear, item.ID)
	case FrequencyOneTime:
		return !anyReferences(in.ThisYear, item.ID) && !anyReferences(in.Lifetime, item.ID)
	default:
		return !anyReferences(in.ThisTerm, item.ID)
	}
}

func anyReferences(records []FulfillmentRecord, id RequirementID) bool {
	_, ok := findReferencing(records, id)
	return ok
}

func findReferencing(records []FulfillmentRecord, id RequirementID) (RecordID, bool) {
	for _, rec := range records {
		if rec.References(id) {
			return rec.ID, true
		}
	}
	return "", false
}

// SortRequirements orders items by frequency rank, then more specific first,
// then price descending, then id.
func SortRequirements(items []RequirementItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Frequency.Rank() != b.Frequency.Rank() {
			return a.Frequency.Rank() < b.Frequency.Rank()
		}
		if a.SpecificityScore() != b.SpecificityScore() {
			return a.SpecificityScore() > b.SpecificityScore()
		}
		if !a.Price.Equal(b.Price) {
			return a.Price.GreaterThan(b.Price)
		}
		return a.ID < b.ID
	})
}
