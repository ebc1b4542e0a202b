/*
handlers.go - HTTP API handlers for the requirement fulfillment ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response, JSON
  serialization and validation, and delegates to ledger.Service and
  ledger.AutoAssigner.

ENDPOINTS:
  Pupils:
    GET    /api/pupils                         List pupils
    POST   /api/pupils                         Create pupil
    GET    /api/pupils/{id}                    Pupil details
    GET    /api/pupils/{id}/records            Records with summaries (?year=&term=)
    POST   /api/pupils/{id}/records            Create a bundle record
    POST   /api/pupils/{id}/assign             Auto-assign (?year=&term=)
    POST   /api/pupils/{id}/refresh            Rerun eligibility and fill gaps
    GET    /api/pupils/{id}/eligibility        Resolver preview
    GET    /api/pupils/{id}/duplicates         Duplicate groups (?year=)
    POST   /api/pupils/{id}/duplicates/cleanup Delete untouched duplicates

  Records:
    GET    /api/records/{id}                   Record and summary
    POST   /api/records/{id}/coverage          Cash or item coverage
    POST   /api/records/{id}/receipts          Office hand-over
    POST   /api/records/{id}/release           Partial or full release
    GET    /api/records/{id}/history           Payment and receipt projections

  Catalog and calendar:
    GET    /api/catalog, POST /api/catalog
    GET    /api/academic-years, POST /api/academic-years

  Sweep:
    POST   /api/assign/sweep                   Auto-assign every pupil for the current term

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: SQLite document store (records, pupils, years)
  - Catalog: the catalog provider, possibly a Redis read-through cache
  - Service / Assigner: ledger round trips
  - Factory: JSON definitions and request validation
  - sessions: one AssignmentSession per X-Session-ID header

TERM RESOLUTION:
  assign, refresh and eligibility take ?year= and ?term=. When term is
  omitted, the term containing today's date is used.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Pupil, year, record or requirement not found
  - 409: Stale version, duplicate assignment, catalog id already defined
  - 500: Internal errors (logged)

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/warp/requirement-ledger/factory"
	"github.com/warp/requirement-ledger/ledger"
	"github.com/warp/requirement-ledger/store/sqlite"
)

// SessionHeader scopes the auto-assign processed flags to a client session.
const SessionHeader = "X-Session-ID"

const defaultSession = "default"

var errMissingParam = errors.New("missing query parameter")

// CatalogStore is a catalog provider that accepts new items.
type CatalogStore interface {
	ledger.CatalogProvider
	SaveItem(ctx context.Context, item ledger.RequirementItem) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Catalog  CatalogStore
	Service  *ledger.Service
	Assigner *ledger.AutoAssigner
	Factory  *factory.CatalogFactory

	// Scheduler owns the sweep session. It is created on first use when
	// main has not set one.
	Scheduler *AssignmentScheduler

	now func() time.Time
	log zerolog.Logger

	mu              sync.Mutex
	sessions        map[string]*ledger.AssignmentSession
	currentScenario string
}

// NewHandler wires the ledger to the store. A nil catalog means the store
// serves the catalog directly.
func NewHandler(store *sqlite.Store, catalog CatalogStore, log zerolog.Logger) *Handler {
	if catalog == nil {
		catalog = store
	}
	return &Handler{
		Store:    store,
		Catalog:  catalog,
		Service:  ledger.NewService(store, catalog),
		Assigner: ledger.NewAutoAssigner(store, catalog, store, log),
		Factory:  factory.NewCatalogFactory(),
		now:      time.Now,
		log:      log.With().Str("component", "api").Logger(),
		sessions: make(map[string]*ledger.AssignmentSession),
	}
}

// session returns the assignment session for the request's X-Session-ID.
func (h *Handler) session(r *http.Request) (string, *ledger.AssignmentSession) {
	id := r.Header.Get(SessionHeader)
	if id == "" {
		id = defaultSession
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	if !ok {
		s = ledger.NewAssignmentSession()
		h.sessions[id] = s
	}
	return id, s
}

// resetState forgets sessions, the current scenario and the cached catalog.
func (h *Handler) resetState(ctx context.Context) {
	h.mu.Lock()
	h.sessions = make(map[string]*ledger.AssignmentSession)
	h.currentScenario = ""
	sched := h.Scheduler
	h.mu.Unlock()

	if sched != nil {
		sched.Reset()
	}
	if c, ok := h.Catalog.(cacheInvalidator); ok {
		_ = c.Invalidate(ctx)
	}
}

// =============================================================================
// PUPIL HANDLERS
// =============================================================================

// ListPupils returns all pupils.
func (h *Handler) ListPupils(w http.ResponseWriter, r *http.Request) {
	pupils, err := h.Store.ListPupils(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list pupils", err)
		return
	}
	if pupils == nil {
		pupils = []ledger.Pupil{}
	}
	writeJSON(w, http.StatusOK, pupils)
}

// GetPupil returns a single pupil.
func (h *Handler) GetPupil(w http.ResponseWriter, r *http.Request) {
	pupil, err := h.Store.GetPupil(r.Context(), ledger.PupilID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Pupil not found", err)
		return
	}
	writeJSON(w, http.StatusOK, pupil)
}

// CreatePupil registers or replaces a pupil.
func (h *Handler) CreatePupil(w http.ResponseWriter, r *http.Request) {
	var req CreatePupilRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	pupil := ledger.Pupil{
		ID:      ledger.PupilID(req.ID),
		Name:    req.Name,
		Gender:  ledger.Gender(req.Gender),
		ClassID: req.ClassID,
		Section: req.Section,
	}
	if err := h.Store.SavePupil(r.Context(), pupil); err != nil {
		h.fail(w, r, "Failed to save pupil", err)
		return
	}
	writeJSON(w, http.StatusCreated, pupil)
}

// GetPupilRecords returns the pupil's records with summaries. Without ?year
// every year is returned; without ?term the whole year.
func (h *Handler) GetPupilRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pupilID := ledger.PupilID(chi.URLParam(r, "id"))
	year := ledger.AcademicYearID(r.URL.Query().Get("year"))
	term := ledger.TermID(r.URL.Query().Get("term"))

	var (
		records []ledger.FulfillmentRecord
		err     error
	)
	switch {
	case year == "":
		records, err = h.Store.GetByPupil(ctx, pupilID)
	case term == "":
		records, err = h.Store.GetByYear(ctx, pupilID, year)
	default:
		records, err = h.Store.Get(ctx, pupilID, year, term)
	}
	if err != nil {
		h.fail(w, r, "Failed to load records", err)
		return
	}

	views, err := h.Service.Views(ctx, records)
	if err != nil {
		h.fail(w, r, "Failed to summarize records", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// CreateBundleRecord assigns several requirement ids as one record.
// POST /api/pupils/{id}/records
func (h *Handler) CreateBundleRecord(w http.ResponseWriter, r *http.Request) {
	var req AssignBundleRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ids := make([]ledger.RequirementID, len(req.RequirementIDs))
	for i, id := range req.RequirementIDs {
		ids[i] = ledger.RequirementID(id)
	}
	rec, err := h.Assigner.AssignBundle(r.Context(), ledger.AssignmentRequest{
		PupilID: ledger.PupilID(chi.URLParam(r, "id")),
		YearID:  ledger.AcademicYearID(req.YearID),
		TermID:  ledger.TermID(req.TermID),
	}, ids)
	if err != nil {
		h.fail(w, r, "Failed to create bundle record", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

// AutoAssign runs auto-assignment once per pupil and term per session.
// POST /api/pupils/{id}/assign?year=&term=
func (h *Handler) AutoAssign(w http.ResponseWriter, r *http.Request) {
	req, err := h.assignmentRequest(r)
	if err != nil {
		h.fail(w, r, "Invalid assignment request", err)
		return
	}
	sessionID, session := h.session(r)

	res, err := h.Assigner.AutoAssign(r.Context(), session, req)
	if err != nil {
		h.fail(w, r, "Auto-assignment failed", err)
		return
	}
	dto := toAssignmentResultDTO(req, res)
	dto.SessionID = sessionID

	status := http.StatusOK
	if len(res.Created) > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, dto)
}

// Refresh reruns eligibility for the term, ignoring the session flag.
// POST /api/pupils/{id}/refresh?year=&term=
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	req, err := h.assignmentRequest(r)
	if err != nil {
		h.fail(w, r, "Invalid assignment request", err)
		return
	}

	res, err := h.Assigner.Refresh(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Refresh failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignmentResultDTO(req, res))
}

// GetEligibility previews what auto-assignment would create.
// GET /api/pupils/{id}/eligibility?year=&term=
func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	req, err := h.assignmentRequest(r)
	if err != nil {
		h.fail(w, r, "Invalid eligibility request", err)
		return
	}

	res, err := h.Assigner.Preview(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Failed to resolve eligibility", err)
		return
	}
	items := res.Items
	if items == nil {
		items = []ledger.RequirementItem{}
	}
	writeJSON(w, http.StatusOK, EligibilityDTO{
		PupilID:        string(req.PupilID),
		AcademicYearID: string(req.YearID),
		TermID:         string(req.TermID),
		Items:          items,
		Skipped:        toSkippedDTOs(res.Skipped),
	})
}

// assignmentRequest reads pupil, year and term. A missing term is the one
// containing today.
func (h *Handler) assignmentRequest(r *http.Request) (ledger.AssignmentRequest, error) {
	req := ledger.AssignmentRequest{
		PupilID: ledger.PupilID(chi.URLParam(r, "id")),
		YearID:  ledger.AcademicYearID(r.URL.Query().Get("year")),
		TermID:  ledger.TermID(r.URL.Query().Get("term")),
	}
	if req.YearID == "" {
		return req, fmt.Errorf("%w: year", errMissingParam)
	}
	if req.TermID != "" {
		return req, nil
	}

	year, err := h.Store.GetAcademicYear(r.Context(), req.YearID)
	if err != nil {
		return req, err
	}
	today := h.now()
	term, ok := year.TermAt(today)
	if !ok {
		return req, fmt.Errorf("%w: no term of %s contains %s", ledger.ErrTermNotInYear, req.YearID, today.Format(time.DateOnly))
	}
	req.TermID = term.ID
	return req, nil
}

// =============================================================================
// DUPLICATE HANDLERS
// =============================================================================

// GetDuplicates lists duplicate groups for the pupil's year.
func (h *Handler) GetDuplicates(w http.ResponseWriter, r *http.Request) {
	pupilID := ledger.PupilID(chi.URLParam(r, "id"))
	year := ledger.AcademicYearID(r.URL.Query().Get("year"))
	if year == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", fmt.Errorf("%w: year", errMissingParam))
		return
	}

	groups, err := h.Service.Duplicates(r.Context(), pupilID, year)
	if err != nil {
		h.fail(w, r, "Failed to detect duplicates", err)
		return
	}
	if groups == nil {
		groups = []ledger.DuplicateGroup{}
	}
	writeJSON(w, http.StatusOK, DuplicatesDTO{PupilID: string(pupilID), AcademicYearID: string(year), Groups: groups})
}

// CleanupDuplicates deletes duplicates without history.
func (h *Handler) CleanupDuplicates(w http.ResponseWriter, r *http.Request) {
	pupilID := ledger.PupilID(chi.URLParam(r, "id"))
	year := ledger.AcademicYearID(r.URL.Query().Get("year"))
	if year == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", fmt.Errorf("%w: year", errMissingParam))
		return
	}

	plan, err := h.Service.CleanupDuplicates(r.Context(), pupilID, year)
	if err != nil {
		h.fail(w, r, "Duplicate cleanup failed", err)
		return
	}
	h.log.Info().
		Str("pupil_id", string(pupilID)).
		Str("academic_year_id", string(year)).
		Int("deleted", len(plan.Delete)).
		Int("retained", len(plan.Retained)).
		Msg("duplicate cleanup")
	writeJSON(w, http.StatusOK, plan)
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

// GetRecord returns one record with its summary.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.Record(r.Context(), ledger.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Record not found", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetRecordHistory returns the payment and receipt projections.
func (h *Handler) GetRecordHistory(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.History(r.Context(), ledger.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, "Record not found", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ApplyCoverage applies a cash or item contribution.
// POST /api/records/{id}/coverage
func (h *Handler) ApplyCoverage(w http.ResponseWriter, r *http.Request) {
	var req CoverageRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	contribution, err := toContribution(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid coverage mode", err)
		return
	}

	id := ledger.RecordID(chi.URLParam(r, "id"))
	rec, err := h.Service.ApplyCoverage(r.Context(), id, ledger.CoverageInput{
		Contribution: contribution,
		ReceivedBy:   req.ReceivedBy,
		Date:         parseDate(req.Date),
		Note:         req.Note,
	})
	if err != nil {
		h.fail(w, r, "Coverage rejected", err)
		return
	}
	h.recordView(w, r, rec)
}

// RecordReceipt records items handed over by the office.
// POST /api/records/{id}/receipts
func (h *Handler) RecordReceipt(w http.ResponseWriter, r *http.Request) {
	var req ReceiptRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Service.RecordReceipt(r.Context(), ledger.RecordID(chi.URLParam(r, "id")), ledger.ReceiptInput{
		Quantity:   req.Quantity,
		ReceivedBy: req.ReceivedBy,
		Date:       parseDate(req.Date),
		Note:       req.Note,
	})
	if err != nil {
		h.fail(w, r, "Receipt rejected", err)
		return
	}
	h.recordView(w, r, rec)
}

// ReleaseRecord releases some or all requirement ids of a record.
// POST /api/records/{id}/release
func (h *Handler) ReleaseRecord(w http.ResponseWriter, r *http.Request) {
	var req ReleaseRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	items := make([]ledger.RequirementID, len(req.Items))
	for i, id := range req.Items {
		items[i] = ledger.RequirementID(id)
	}
	rec, err := h.Service.ApplyRelease(r.Context(), ledger.RecordID(chi.URLParam(r, "id")), ledger.ReleaseInput{
		Items:      items,
		Full:       req.Full,
		ReleasedBy: req.ReleasedBy,
		Date:       parseDate(req.Date),
		Note:       req.Note,
	})
	if err != nil {
		h.fail(w, r, "Release rejected", err)
		return
	}
	h.recordView(w, r, rec)
}

// recordView answers a mutation with the updated record and its summary.
func (h *Handler) recordView(w http.ResponseWriter, r *http.Request, rec *ledger.FulfillmentRecord) {
	views, err := h.Service.Views(r.Context(), []ledger.FulfillmentRecord{*rec})
	if err != nil {
		h.fail(w, r, "Failed to summarize record", err)
		return
	}
	writeJSON(w, http.StatusOK, views[0])
}

// =============================================================================
// CATALOG AND CALENDAR HANDLERS
// =============================================================================

// ListCatalog returns every requirement item.
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	items, err := h.Catalog.ListAll(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list catalog", err)
		return
	}
	if items == nil {
		items = []ledger.RequirementItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// CreateCatalogItem adds an item from its JSON definition.
func (h *Handler) CreateCatalogItem(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	item, err := h.Factory.ParseItem(string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid item definition", err)
		return
	}
	if err := h.Catalog.SaveItem(r.Context(), item); err != nil {
		h.fail(w, r, "Failed to save item", err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// ListAcademicYears returns every academic year with its terms.
func (h *Handler) ListAcademicYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.Store.ListAcademicYears(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list academic years", err)
		return
	}
	if years == nil {
		years = []ledger.AcademicYear{}
	}
	writeJSON(w, http.StatusOK, years)
}

// CreateAcademicYear stores a year from its calendar definition.
func (h *Handler) CreateAcademicYear(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	year, err := h.Factory.ParseCalendar(string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid calendar definition", err)
		return
	}
	if err := h.Store.SaveAcademicYear(r.Context(), year); err != nil {
		h.fail(w, r, "Failed to save academic year", err)
		return
	}
	writeJSON(w, http.StatusCreated, year)
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	h.resetState(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into v and validates its struct tags.
func (h *Handler) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return h.Factory.Validate(v)
}

// fail maps a ledger error to its status and logs server-side failures.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg(message)
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrConcurrentModification), errors.Is(err, ledger.ErrDuplicateAssignment),
		errors.Is(err, ledger.ErrRequirementExists):
		return http.StatusConflict
	case ledger.IsClientError(err), errors.Is(err, ledger.ErrIneligible), errors.Is(err, errMissingParam):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// Sweep auto-assigns every pupil for the term in progress.
// POST /api/assign/sweep
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler().Sweep(r.Context()))
}

func (h *Handler) scheduler() *AssignmentScheduler {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Scheduler == nil {
		h.Scheduler = NewAssignmentScheduler(h, 0)
	}
	return h.Scheduler
}

// Health pings the database and reports the record count.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	n, err := h.Store.CountRecords(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "records": n})
}
