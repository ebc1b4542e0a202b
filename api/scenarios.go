/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates the default catalog,
	an academic calendar, pupils, and records that demonstrate specific
	ledger features.

AVAILABLE SCENARIOS:

	new-pupil:        P4 boarder, first term auto-assigned
	partial-coverage: Cash, item and office coverage, partial and full release
	returning-pupil:  Second year; the admission kit is not charged again
	duplicates:       Legacy yearly records assigned twice, ready for cleanup

HOW SCENARIOS WORK:
 1. Reset database (clear all data, sessions and catalog cache)
 2. Save the default catalog and the 2025/2026 calendars via the factory
 3. Create pupils
 4. Auto-assign terms
 5. Optionally apply coverage, receipts and releases

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "partial-coverage"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
  - requirements/presets.go: The default catalog
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/requirement-ledger/ledger"
	"github.com/warp/requirement-ledger/requirements"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-pupil",
		Name:        "New Pupil",
		Description: "P4 boarder whose first term is auto-assigned, including the one-time admission kit",
	},
	{
		ID:          "partial-coverage",
		Name:        "Partial Coverage",
		Description: "Cash and item contributions, an office hand-over, and partial then full release",
	},
	{
		ID:          "returning-pupil",
		Name:        "Returning Pupil",
		Description: "Second academic year; yearly items come back, the admission kit does not",
	},
	{
		ID:          "duplicates",
		Name:        "Duplicate Records",
		Description: "Yearly items assigned in two terms by an older process, ready for cleanup",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "new-pupil":
		load = h.loadNewPupilScenario
	case "partial-coverage":
		load = h.loadPartialCoverageScenario
	case "returning-pupil":
		load = h.loadReturningPupilScenario
	case "duplicates":
		load = h.loadDuplicatesScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	h.resetState(ctx)

	if err := load(ctx); err != nil {
		h.fail(w, r, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()
	h.log.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewPupilScenario(ctx context.Context) error {
	if err := h.SeedSchool(ctx); err != nil {
		return err
	}
	ben := ledger.Pupil{ID: "pupil-ben", Name: "Ben Okello", Gender: ledger.GenderMale, ClassID: "P4", Section: requirements.SectionBoarding}
	if err := h.Store.SavePupil(ctx, ben); err != nil {
		return err
	}
	_, err := h.assign(ctx, ben.ID, "2025", "2025-t1")
	return err
}

func (h *Handler) loadPartialCoverageScenario(ctx context.Context) error {
	if err := h.SeedSchool(ctx); err != nil {
		return err
	}
	amina := ledger.Pupil{ID: "pupil-amina", Name: "Amina Nakato", Gender: ledger.GenderFemale, ClassID: "P4", Section: requirements.SectionDay}
	if err := h.Store.SavePupil(ctx, amina); err != nil {
		return err
	}
	created, err := h.assign(ctx, amina.ID, "2025", "2025-t1")
	if err != nil {
		return err
	}

	byReq := make(map[ledger.RequirementID]ledger.RecordID)
	for _, rec := range created {
		byReq[rec.Requirement.IDs()[0]] = rec.ID
	}

	// Stationery: 24 for 12 units. 10 cash then 3 exercise books from home.
	stationery := byReq["stationery"]
	if _, err := h.Service.ApplyCoverage(ctx, stationery, ledger.CoverageInput{
		Contribution: ledger.Cash{Amount: decimal.NewFromInt(10)},
		ReceivedBy:   "bursar",
		Date:         scenarioDate(2025, time.February, 4),
	}); err != nil {
		return err
	}
	if _, err := h.Service.ApplyCoverage(ctx, stationery, ledger.CoverageInput{
		Contribution: ledger.Items{Quantity: 3},
		ReceivedBy:   "class teacher",
		Date:         scenarioDate(2025, time.February, 10),
		Note:         "exercise books brought from home",
	}); err != nil {
		return err
	}

	// Uniform: paid in cash, handed over by the office, released in full.
	uniform := byReq["uniform-girls"]
	if _, err := h.Service.ApplyCoverage(ctx, uniform, ledger.CoverageInput{
		Contribution: ledger.Cash{Amount: decimal.NewFromInt(110)},
		ReceivedBy:   "bursar",
		Date:         scenarioDate(2025, time.February, 4),
	}); err != nil {
		return err
	}
	if _, err := h.Service.RecordReceipt(ctx, uniform, ledger.ReceiptInput{
		Quantity:   2,
		ReceivedBy: "store keeper",
		Date:       scenarioDate(2025, time.February, 5),
	}); err != nil {
		return err
	}
	if _, err := h.Service.ApplyRelease(ctx, uniform, ledger.ReleaseInput{
		Full:       true,
		ReleasedBy: "store keeper",
		Date:       scenarioDate(2025, time.February, 5),
	}); err != nil {
		return err
	}

	// Textbooks bundled as one record; only maths released so far.
	books, err := h.Store.GetByYear(ctx, amina.ID, "2025")
	if err != nil {
		return err
	}
	for _, rec := range books {
		if rec.Requirement.Contains("maths-p4") {
			_, err := h.Service.ApplyRelease(ctx, rec.ID, ledger.ReleaseInput{
				Items:      []ledger.RequirementID{"maths-p4"},
				ReleasedBy: "librarian",
				Date:       scenarioDate(2025, time.February, 6),
			})
			return err
		}
	}
	return nil
}

func (h *Handler) loadReturningPupilScenario(ctx context.Context) error {
	if err := h.SeedSchool(ctx); err != nil {
		return err
	}
	ben := ledger.Pupil{ID: "pupil-ben", Name: "Ben Okello", Gender: ledger.GenderMale, ClassID: "P4", Section: requirements.SectionBoarding}
	if err := h.Store.SavePupil(ctx, ben); err != nil {
		return err
	}
	for _, term := range []ledger.TermID{"2025-t1", "2025-t2", "2025-t3"} {
		if _, err := h.assign(ctx, ben.ID, "2025", term); err != nil {
			return err
		}
	}

	// Promoted to P5 for the new year.
	ben.ClassID = "P5"
	if err := h.Store.SavePupil(ctx, ben); err != nil {
		return err
	}
	_, err := h.assign(ctx, ben.ID, "2026", "2026-t1")
	return err
}

func (h *Handler) loadDuplicatesScenario(ctx context.Context) error {
	if err := h.SeedSchool(ctx); err != nil {
		return err
	}
	joel := ledger.Pupil{ID: "pupil-joel", Name: "Joel Mugisha", Gender: ledger.GenderMale, ClassID: "P4", Section: requirements.SectionDay}
	if err := h.Store.SavePupil(ctx, joel); err != nil {
		return err
	}
	if _, err := h.assign(ctx, joel.ID, "2025", "2025-t1"); err != nil {
		return err
	}

	// An older process assigned yearly sportswear again in terms 2 and 3.
	for _, term := range []ledger.TermID{"2025-t2", "2025-t3"} {
		rec := ledger.NewFulfillmentRecord("", joel.ID, ledger.Single{ID: "sportswear"}, "2025", term, 1,
			scenarioDate(2025, time.June, 2))
		id, err := h.Store.Create(ctx, rec)
		if err != nil {
			return err
		}
		if term == "2025-t3" {
			if _, err := h.Service.ApplyCoverage(ctx, id, ledger.CoverageInput{
				Contribution: ledger.Cash{Amount: decimal.NewFromInt(5)},
				ReceivedBy:   "bursar",
				Date:         scenarioDate(2025, time.September, 16),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// SeedSchool saves the default catalog and the 2025 and 2026 calendars.
func (h *Handler) SeedSchool(ctx context.Context) error {
	for _, item := range requirements.DefaultCatalog() {
		item.CreatedAt = scenarioDate(2025, time.January, 6)
		if err := h.Catalog.SaveItem(ctx, item); err != nil {
			return fmt.Errorf("seeding item %s: %w", item.ID, err)
		}
	}
	for _, y := range []int{2025, 2026} {
		year, err := h.Factory.ParseCalendar(calendarJSON(y))
		if err != nil {
			return err
		}
		if err := h.Store.SaveAcademicYear(ctx, year); err != nil {
			return fmt.Errorf("seeding year %d: %w", y, err)
		}
	}
	return nil
}

// assign bundles the pupil's class textbooks when more than one is eligible,
// then auto-assigns everything else.
func (h *Handler) assign(ctx context.Context, pupil ledger.PupilID, year ledger.AcademicYearID, term ledger.TermID) ([]ledger.FulfillmentRecord, error) {
	req := ledger.AssignmentRequest{PupilID: pupil, YearID: year, TermID: term}

	preview, err := h.Assigner.Preview(ctx, req)
	if err != nil {
		return nil, err
	}
	var books []ledger.RequirementID
	for _, it := range preview.Items {
		if it.Group == "books" {
			books = append(books, it.ID)
		}
	}
	if len(books) < 2 {
		res, err := h.Assigner.AutoAssign(ctx, ledger.NewAssignmentSession(), req)
		if err != nil {
			return nil, err
		}
		return res.Created, nil
	}

	// The term now has a record, so the rest is filled by a refresh.
	bundle, err := h.Assigner.AssignBundle(ctx, req, books)
	if err != nil {
		return nil, err
	}
	res, err := h.Assigner.Refresh(ctx, req)
	if err != nil {
		return nil, err
	}
	return append([]ledger.FulfillmentRecord{*bundle}, res.Created...), nil
}

func calendarJSON(year int) string {
	return fmt.Sprintf(`{
		"id": "%[1]d",
		"name": "%[1]d",
		"terms": [
			{"id": "%[1]d-t1", "name": "Term 1", "ordinal": 1, "start": "%[1]d-02-03", "end": "%[1]d-05-02"},
			{"id": "%[1]d-t2", "name": "Term 2", "ordinal": 2, "start": "%[1]d-05-26", "end": "%[1]d-08-22"},
			{"id": "%[1]d-t3", "name": "Term 3", "ordinal": 3, "start": "%[1]d-09-15", "end": "%[1]d-12-05"}
		]
	}`, year)
}

func scenarioDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 9, 0, 0, 0, time.UTC)
}
