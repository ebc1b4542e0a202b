/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request types carry
  validator tags; responses mostly reuse the ledger's JSON-tagged views
  (RecordView, HistoryView, Summary) and flatten the structured errors the
  orchestrator returns.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO: Response types returned to clients

TYPES:
  Pupils:     CreatePupilRequest
  Records:    CoverageRequest, ReceiptRequest, ReleaseRequest, AssignBundleRequest
  Assignment: AssignmentResultDTO, EligibilityDTO, SkippedDTO, DuplicateDTO, FailureDTO
  Scenarios:  ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Struct tags are checked by go-playground/validator in decode(). Field
  names in messages are the JSON names.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: Catalog and calendar JSON definitions
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/requirement-ledger/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreatePupilRequest registers a pupil. Gender, class and section may be
// left empty; items scoped on a missing attribute are then skipped.
type CreatePupilRequest struct {
	ID      string `json:"id" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Gender  string `json:"gender,omitempty" validate:"omitempty,oneof=male female"`
	ClassID string `json:"class_id,omitempty"`
	Section string `json:"section,omitempty"`
}

// CoverageRequest is a cash or item contribution against a record.
type CoverageRequest struct {
	Mode       string          `json:"mode" validate:"required,oneof=cash item"`
	Amount     decimal.Decimal `json:"amount"`
	Quantity   int             `json:"quantity" validate:"gte=0"`
	ReceivedBy string          `json:"received_by" validate:"required"`
	Date       string          `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Note       string          `json:"note,omitempty"`
}

// ReceiptRequest records items the office handed over.
type ReceiptRequest struct {
	Quantity   int    `json:"quantity" validate:"gt=0"`
	ReceivedBy string `json:"received_by" validate:"required"`
	Date       string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Note       string `json:"note,omitempty"`
}

// ReleaseRequest releases some or all of a record's requirement ids.
type ReleaseRequest struct {
	Items      []string `json:"items,omitempty" validate:"dive,required"`
	Full       bool     `json:"full"`
	ReleasedBy string   `json:"released_by" validate:"required"`
	Date       string   `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Note       string   `json:"note,omitempty"`
}

// AssignBundleRequest creates one record covering several requirement ids.
type AssignBundleRequest struct {
	YearID         string   `json:"academic_year_id" validate:"required"`
	TermID         string   `json:"term_id" validate:"required"`
	RequirementIDs []string `json:"requirement_ids" validate:"required,min=1,dive,required"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type SkippedDTO struct {
	RequirementID string `json:"requirement_id"`
	Reason        string `json:"reason"`
}

type DuplicateDTO struct {
	RequirementID  string `json:"requirement_id"`
	Frequency      string `json:"frequency"`
	ExistingRecord string `json:"existing_record"`
}

type FailureDTO struct {
	RequirementID string `json:"requirement_id"`
	Error         string `json:"error"`
}

// AssignmentResultDTO is the outcome of an auto-assign or refresh call.
type AssignmentResultDTO struct {
	SessionID        string                     `json:"session_id,omitempty"`
	AcademicYearID   string                     `json:"academic_year_id"`
	TermID           string                     `json:"term_id"`
	AlreadyProcessed bool                       `json:"already_processed"`
	ExistingInTerm   int                        `json:"existing_in_term"`
	Created          []ledger.FulfillmentRecord `json:"created"`
	Skipped          []SkippedDTO               `json:"skipped"`
	Duplicates       []DuplicateDTO             `json:"duplicates"`
	Failures         []FailureDTO               `json:"failures"`
}

// EligibilityDTO is the resolver preview for a pupil and term.
type EligibilityDTO struct {
	PupilID        string                   `json:"pupil_id"`
	AcademicYearID string                   `json:"academic_year_id"`
	TermID         string                   `json:"term_id"`
	Items          []ledger.RequirementItem `json:"items"`
	Skipped        []SkippedDTO             `json:"skipped"`
}

// DuplicatesDTO lists duplicate groups for one pupil and year.
type DuplicatesDTO struct {
	PupilID        string                  `json:"pupil_id"`
	AcademicYearID string                  `json:"academic_year_id"`
	Groups         []ledger.DuplicateGroup `json:"groups"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toSkippedDTOs(skipped []*ledger.EligibilityError) []SkippedDTO {
	out := make([]SkippedDTO, 0, len(skipped))
	for _, s := range skipped {
		out = append(out, SkippedDTO{RequirementID: string(s.RequirementID), Reason: s.Reason})
	}
	return out
}

func toAssignmentResultDTO(req ledger.AssignmentRequest, res *ledger.AssignmentResult) AssignmentResultDTO {
	dto := AssignmentResultDTO{
		AcademicYearID:   string(req.YearID),
		TermID:           string(req.TermID),
		AlreadyProcessed: res.AlreadyProcessed,
		ExistingInTerm:   res.ExistingInTerm,
		Created:          res.Created,
		Skipped:          toSkippedDTOs(res.Skipped),
		Duplicates:       make([]DuplicateDTO, 0, len(res.Duplicates)),
		Failures:         make([]FailureDTO, 0, len(res.Failures)),
	}
	if dto.Created == nil {
		dto.Created = []ledger.FulfillmentRecord{}
	}
	for _, d := range res.Duplicates {
		dto.Duplicates = append(dto.Duplicates, DuplicateDTO{
			RequirementID:  string(d.RequirementID),
			Frequency:      string(d.Frequency),
			ExistingRecord: string(d.ExistingRecord),
		})
	}
	for _, f := range res.Failures {
		dto.Failures = append(dto.Failures, FailureDTO{RequirementID: string(f.RequirementID), Error: f.Err.Error()})
	}
	return dto
}

// toContribution maps the request mode onto the ledger's contribution variants.
func toContribution(req CoverageRequest) (ledger.Contribution, error) {
	switch ledger.CoverageMode(req.Mode) {
	case ledger.CoverageCash:
		return ledger.Cash{Amount: req.Amount}, nil
	case ledger.CoverageItem:
		return ledger.Items{Quantity: req.Quantity}, nil
	default:
		return nil, fmt.Errorf("%w: unknown coverage mode %q", ledger.ErrInvalidContribution, req.Mode)
	}
}

// parseDate reads an optional YYYY-MM-DD value. Empty means now.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.DateOnly, s)
	return t
}
