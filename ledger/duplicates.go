package ledger

import (
	"sort"
)

// =============================================================================
// DUPLICATE DETECTION - Records overlapping within a frequency scope
// =============================================================================

// DuplicateGroup is a set of records that all reference RequirementID within
// the same frequency scope. TermID is empty for year-scoped frequencies.
type DuplicateGroup struct {
	RequirementID RequirementID       `json:"requirement_id"`
	Frequency     Frequency           `json:"frequency"`
	TermID        TermID              `json:"term_id,omitempty"`
	Records       []FulfillmentRecord `json:"records"`
}

type scopeKey struct {
	id   RequirementID
	term TermID
}

// DetectDuplicates groups one pupil's records of one year by (id, scope).
// Ids missing from the catalog are treated as termly.
func DetectDuplicates(records []FulfillmentRecord, catalog Catalog) []DuplicateGroup {
	groups := make(map[scopeKey]*DuplicateGroup)
	var order []scopeKey

	for _, rec := range records {
		for _, id := range rec.RequirementIDs() {
			freq := FrequencyTermly
			if it, ok := catalog[id]; ok {
				freq = it.Frequency
			}
			k := scopeKey{id: id}
			if !freq.YearScoped() {
				k.term = rec.TermID
			}
			g, ok := groups[k]
			if !ok {
				g = &DuplicateGroup{RequirementID: id, Frequency: freq, TermID: k.term}
				groups[k] = g
				order = append(order, k)
			}
			g.Records = append(g.Records, rec)
		}
	}

	var out []DuplicateGroup
	for _, k := range order {
		if g := groups[k]; len(g.Records) > 1 {
			out = append(out, *g)
		}
	}
	return out
}

// DuplicateRecords flattens groups into distinct records, first-seen order.
func DuplicateRecords(groups []DuplicateGroup) []FulfillmentRecord {
	seen := make(map[RecordID]bool)
	var out []FulfillmentRecord
	for _, g := range groups {
		for _, rec := range g.Records {
			if !seen[rec.ID] {
				seen[rec.ID] = true
				out = append(out, rec)
			}
		}
	}
	return out
}

// =============================================================================
// CLEANUP PLAN
// =============================================================================

// CleanupPlan lists which duplicates may be deleted. Retained records are
// duplicates that carry history and therefore need manual review.
type CleanupPlan struct {
	Keep     []RecordID `json:"keep"`
	Delete   []RecordID `json:"delete"`
	Retained []RecordID `json:"retained"`
}

// PlanCleanup keeps the most progressed record in each group. A record kept
// by any group is never deleted. An untouched record is deleted only when
// each of its ids is held by a kept record in the same scope; a bundle with
// an id nobody else holds is retained.
func PlanCleanup(groups []DuplicateGroup) CleanupPlan {
	keep := make(map[RecordID]bool)
	for _, g := range groups {
		ranked := append([]FulfillmentRecord(nil), g.Records...)
		sort.SliceStable(ranked, func(i, j int) bool { return moreProgressed(ranked[i], ranked[j]) })
		keep[ranked[0].ID] = true
	}

	// covered[record][id]: the record shares id with the kept record of a group
	covered := make(map[RecordID]map[RequirementID]bool)
	for _, g := range groups {
		for _, rec := range g.Records {
			if keep[rec.ID] {
				continue
			}
			if covered[rec.ID] == nil {
				covered[rec.ID] = make(map[RequirementID]bool)
			}
			covered[rec.ID][g.RequirementID] = true
		}
	}

	var plan CleanupPlan
	seen := make(map[RecordID]bool)
	for _, rec := range DuplicateRecords(groups) {
		if seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true
		switch {
		case keep[rec.ID]:
			plan.Keep = append(plan.Keep, rec.ID)
		case len(rec.History) == 0 && coversAll(covered[rec.ID], rec.RequirementIDs()):
			plan.Delete = append(plan.Delete, rec.ID)
		default:
			plan.Retained = append(plan.Retained, rec.ID)
		}
	}
	return plan
}

func coversAll(covered map[RequirementID]bool, ids []RequirementID) bool {
	for _, id := range ids {
		if !covered[id] {
			return false
		}
	}
	return true
}

func moreProgressed(a, b FulfillmentRecord) bool {
	if a.PaymentStatus.rank() != b.PaymentStatus.rank() {
		return a.PaymentStatus.rank() > b.PaymentStatus.rank()
	}
	if IsFullyReleased(a) != IsFullyReleased(b) {
		return IsFullyReleased(a)
	}
	if len(a.History) != len(b.History) {
		return len(a.History) > len(b.History)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
