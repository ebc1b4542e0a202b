package ledger

import (
	"sort"
	"time"
)

// =============================================================================
// PUPIL / TERM CONTEXT
// =============================================================================

// Pupil carries the attributes eligibility depends on.
type Pupil struct {
	ID      PupilID `json:"id"`
	Name    string  `json:"name"`
	Gender  Gender  `json:"gender"`
	ClassID string  `json:"class_id,omitempty"`
	Section string  `json:"section,omitempty"`
}

// Term is one term of an academic year. Ordinal is its 1-based position.
type Term struct {
	ID      TermID    `json:"id"`
	Name    string    `json:"name"`
	Ordinal int       `json:"ordinal"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Contains returns true if t is within [Start, End], compared by day.
func (t Term) Contains(at time.Time) bool {
	day := truncateDay(at)
	return !day.Before(truncateDay(t.Start)) && !day.After(truncateDay(t.End))
}

// AcademicYear groups terms. Terms may be stored in any order.
type AcademicYear struct {
	ID    AcademicYearID `json:"id"`
	Name  string         `json:"name"`
	Terms []Term         `json:"terms"`
}

// OrderedTerms returns terms sorted by ordinal.
func (y AcademicYear) OrderedTerms() []Term {
	terms := append([]Term(nil), y.Terms...)
	sort.SliceStable(terms, func(i, j int) bool { return terms[i].Ordinal < terms[j].Ordinal })
	return terms
}

// FirstTerm returns the term with the lowest ordinal.
func (y AcademicYear) FirstTerm() (Term, bool) {
	terms := y.OrderedTerms()
	if len(terms) == 0 {
		return Term{}, false
	}
	return terms[0], true
}

// IsFirstTerm reports whether id is the opening term of the year.
func (y AcademicYear) IsFirstTerm(id TermID) bool {
	first, ok := y.FirstTerm()
	return ok && first.ID == id
}

// Term looks up a term by id.
func (y AcademicYear) Term(id TermID) (Term, bool) {
	for _, t := range y.Terms {
		if t.ID == id {
			return t, true
		}
	}
	return Term{}, false
}

// TermAt returns the term whose dates contain at.
func (y AcademicYear) TermAt(at time.Time) (Term, bool) {
	for _, t := range y.OrderedTerms() {
		if t.Contains(at) {
			return t, true
		}
	}
	return Term{}, false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Clock returns the current time. Engines take one so tests can pin dates.
type Clock func() time.Time

func SystemClock() time.Time { return time.Now().UTC() }
