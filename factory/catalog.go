/*
Package factory provides JSON to Go catalog conversion.

PURPOSE:
  Converts JSON requirement item and academic calendar definitions into
  ledger.RequirementItem and ledger.AcademicYear values. The school office
  maintains its catalog as a JSON file; the factory validates it and builds
  the Go structs the ledger works with.

JSON SCHEMA (item):
  {
    "id": "uniform-p4-boys",
    "name": "P4 boys uniform",
    "price": "100.00",
    "quantity": 2,
    "frequency": "termly",
    "gender": "male",
    "class_ids": ["P4"],
    "section": "boarding",
    "group": "uniform"
  }

JSON SCHEMA (calendar):
  {
    "id": "2025",
    "name": "2025",
    "terms": [
      {"id": "2025-t1", "name": "Term 1", "ordinal": 1,
       "start": "2025-02-03", "end": "2025-05-02"}
    ]
  }

KEY FEATURES:
  - Struct validation with go-playground/validator, errors name JSON fields
  - Price accepts a JSON number or a decimal string
  - Missing gender defaults to "all"
  - Round-trips through ToJSON

SEE ALSO:
  - ledger/catalog.go: RequirementItem
  - requirements/presets.go: Ready-made catalog JSON
  - cmd/server/main.go: Loads catalog_file at startup
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/requirement-ledger/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogItemJSON is the JSON representation of a requirement item.
type CatalogItemJSON struct {
	ID        string          `json:"id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity" validate:"gte=0"`
	Frequency string          `json:"frequency" validate:"required,oneof=one-time yearly termly"`
	Gender    string          `json:"gender,omitempty" validate:"omitempty,oneof=all male female"`
	ClassIDs  []string        `json:"class_ids,omitempty" validate:"dive,required"`
	Section   string          `json:"section,omitempty"`
	Group     string          `json:"group,omitempty"`
}

// TermJSON is one term in a calendar definition. Dates are YYYY-MM-DD.
type TermJSON struct {
	ID      string `json:"id" validate:"required"`
	Name    string `json:"name"`
	Ordinal int    `json:"ordinal" validate:"gte=1"`
	Start   string `json:"start" validate:"required,datetime=2006-01-02"`
	End     string `json:"end" validate:"required,datetime=2006-01-02"`
}

// CalendarJSON is the JSON representation of an academic year.
type CalendarJSON struct {
	ID    string     `json:"id" validate:"required"`
	Name  string     `json:"name"`
	Terms []TermJSON `json:"terms" validate:"required,min=1,dive"`
}

// =============================================================================
// FACTORY
// =============================================================================

// CatalogFactory creates catalog items and calendars from JSON.
type CatalogFactory struct {
	validate *validator.Validate
	now      func() time.Time
}

// NewCatalogFactory creates a new factory.
func NewCatalogFactory() *CatalogFactory {
	v := validator.New()
	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &CatalogFactory{validate: v, now: time.Now}
}

// Validate checks any of the JSON schema structs and returns a readable error.
func (f *CatalogFactory) Validate(v any) error {
	if err := f.validate.Struct(v); err != nil {
		return describe(err)
	}
	return nil
}

// ParseItem parses a single item definition.
func (f *CatalogFactory) ParseItem(jsonStr string) (ledger.RequirementItem, error) {
	var ij CatalogItemJSON
	if err := json.Unmarshal([]byte(jsonStr), &ij); err != nil {
		return ledger.RequirementItem{}, fmt.Errorf("failed to parse item JSON: %w", err)
	}
	return f.FromJSON(ij)
}

// ParseCatalog parses a JSON array of item definitions. Item ids must be unique.
func (f *CatalogFactory) ParseCatalog(jsonStr string) ([]ledger.RequirementItem, error) {
	var list []CatalogItemJSON
	if err := json.Unmarshal([]byte(jsonStr), &list); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}

	seen := make(map[string]bool, len(list))
	items := make([]ledger.RequirementItem, 0, len(list))
	for i, ij := range list {
		if seen[ij.ID] {
			return nil, fmt.Errorf("catalog[%d]: duplicate item id %q", i, ij.ID)
		}
		seen[ij.ID] = true

		item, err := f.FromJSON(ij)
		if err != nil {
			return nil, fmt.Errorf("catalog[%d]: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// FromJSON validates and converts an item definition.
func (f *CatalogFactory) FromJSON(ij CatalogItemJSON) (ledger.RequirementItem, error) {
	if err := f.Validate(ij); err != nil {
		return ledger.RequirementItem{}, err
	}
	if ij.Price.IsNegative() {
		return ledger.RequirementItem{}, fmt.Errorf("price: must not be negative, got %s", ij.Price)
	}

	gender := ledger.Gender(ij.Gender)
	if gender == "" {
		gender = ledger.GenderAll
	}

	return ledger.RequirementItem{
		ID:        ledger.RequirementID(ij.ID),
		Name:      ij.Name,
		Price:     ij.Price,
		Quantity:  ij.Quantity,
		Group:     ij.Group,
		Frequency: ledger.Frequency(ij.Frequency),
		Gender:    gender,
		ClassIDs:  ij.ClassIDs,
		Section:   ij.Section,
		CreatedAt: f.now().UTC(),
	}, nil
}

// ToJSON converts an item back to its JSON definition.
func (f *CatalogFactory) ToJSON(item ledger.RequirementItem) CatalogItemJSON {
	return CatalogItemJSON{
		ID:        string(item.ID),
		Name:      item.Name,
		Price:     item.Price,
		Quantity:  item.Quantity,
		Frequency: string(item.Frequency),
		Gender:    string(item.Gender),
		ClassIDs:  item.ClassIDs,
		Section:   item.Section,
		Group:     item.Group,
	}
}

// ParseCalendar parses an academic year definition.
func (f *CatalogFactory) ParseCalendar(jsonStr string) (ledger.AcademicYear, error) {
	var cj CalendarJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return ledger.AcademicYear{}, fmt.Errorf("failed to parse calendar JSON: %w", err)
	}
	return f.CalendarFromJSON(cj)
}

// CalendarFromJSON validates and converts a calendar definition. Terms keep
// the order given; ordinals must be unique and each term must end on or
// after its start.
func (f *CatalogFactory) CalendarFromJSON(cj CalendarJSON) (ledger.AcademicYear, error) {
	if err := f.Validate(cj); err != nil {
		return ledger.AcademicYear{}, err
	}

	year := ledger.AcademicYear{ID: ledger.AcademicYearID(cj.ID), Name: cj.Name}
	ordinals := make(map[int]bool, len(cj.Terms))
	for _, tj := range cj.Terms {
		if ordinals[tj.Ordinal] {
			return ledger.AcademicYear{}, fmt.Errorf("terms: duplicate ordinal %d", tj.Ordinal)
		}
		ordinals[tj.Ordinal] = true

		start, _ := time.Parse(time.DateOnly, tj.Start)
		end, _ := time.Parse(time.DateOnly, tj.End)
		if end.Before(start) {
			return ledger.AcademicYear{}, fmt.Errorf("term %s: end %s before start %s", tj.ID, tj.End, tj.Start)
		}
		year.Terms = append(year.Terms, ledger.Term{
			ID:      ledger.TermID(tj.ID),
			Name:    tj.Name,
			Ordinal: tj.Ordinal,
			Start:   start,
			End:     end,
		})
	}
	if year.Name == "" {
		year.Name = cj.ID
	}
	return year, nil
}

// describe flattens validator errors into "field: rule" pairs.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s: failed %s", fe.Namespace(), rule))
	}
	return fmt.Errorf("invalid definition: %s", strings.Join(parts, "; "))
}
