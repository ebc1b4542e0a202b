/*
presets.go - Pre-built requirement items for a typical primary school

PURPOSE:
  Provides ready-to-use catalog items for the requirement kinds most
  schools charge for. These are convenience functions that fill in the
  frequency, quantity and scope fields of a ledger.RequirementItem.

AVAILABLE PRESETS:
  Uniform:       Termly, quantity-based, optionally per gender and class
  Textbook:      Yearly, one copy per class
  Stationery:    Termly pack counted in units (exercise books, pens)
  AdmissionKit:  One-time, charged once in a pupil's lifetime
  BoardingKit:   Yearly, boarding section only
  Sportswear:    Yearly, all pupils

EXAMPLE:
  items := []ledger.RequirementItem{
      requirements.Uniform("uniform-p4-boys", decimal.NewFromInt(100), 2,
          ledger.GenderMale, "P4"),
      requirements.AdmissionKit("admission-kit", decimal.NewFromInt(45)),
  }

SEE ALSO:
  - factory/catalog.go: JSON-based item creation
  - ledger/catalog.go: RequirementItem definition
  - api/scenarios.go: Demo school built from these presets
*/
package requirements

import (
	"github.com/shopspring/decimal"

	"github.com/warp/requirement-ledger/ledger"
)

const (
	SectionDay      = "day"
	SectionBoarding = "boarding"
)

// =============================================================================
// COMMON REQUIREMENTS
// =============================================================================

// Uniform returns a termly uniform set of qty pieces. No classes means every class.
func Uniform(id ledger.RequirementID, price decimal.Decimal, qty int, gender ledger.Gender, classIDs ...string) ledger.RequirementItem {
	return ledger.RequirementItem{
		ID:        id,
		Name:      "Uniform",
		Price:     price,
		Quantity:  qty,
		Group:     "uniform",
		Frequency: ledger.FrequencyTermly,
		Gender:    gender,
		ClassIDs:  classIDs,
	}
}

// Textbook returns a yearly textbook for one class.
func Textbook(id ledger.RequirementID, name string, price decimal.Decimal, classID string) ledger.RequirementItem {
	return ledger.RequirementItem{
		ID:        id,
		Name:      name,
		Price:     price,
		Quantity:  1,
		Group:     "books",
		Frequency: ledger.FrequencyYearly,
		Gender:    ledger.GenderAll,
		ClassIDs:  []string{classID},
	}
}

// Stationery returns a termly pack counted in units.
func Stationery(id ledger.RequirementID, price decimal.Decimal, units int) ledger.RequirementItem {
	return ledger.RequirementItem{
		ID:        id,
		Name:      "Stationery pack",
		Price:     price,
		Quantity:  units,
		Group:     "stationery",
		Frequency: ledger.FrequencyTermly,
		Gender:    ledger.GenderAll,
	}
}

// AdmissionKit returns a one-time kit. It is not quantity-based.
func AdmissionKit(id ledger.RequirementID, price decimal.Decimal) ledger.RequirementItem {
	return ledger.RequirementItem{
		ID:        id,
		Name:      "Admission kit",
		Price:     price,
		Group:     "admission",
		Frequency: ledger.FrequencyOneTime,
		Gender:    ledger.GenderAll,
	}
}

// BoardingKit returns a yearly kit for boarders only.
func BoardingKit(id ledger.RequirementID, price decimal.Decimal, qty int) ledger.RequirementItem {
	return ledger.RequirementItem{
		ID:        id,
		Name:      "Boarding kit",
		Price:     price,
		Quantity:  qty,
		Group:     "boarding",
		Frequency: ledger.FrequencyYearly,
		Gender:    ledger.GenderAll,
		Section:   SectionBoarding,
	}
}

// Sportswear returns a yearly sports set for every pupil.
func Sportswear(id ledger.RequirementID, price decimal.Decimal) ledger.RequirementItem {
	return ledger.RequirementItem{
		ID:        id,
		Name:      "Sportswear",
		Price:     price,
		Quantity:  1,
		Group:     "sports",
		Frequency: ledger.FrequencyYearly,
		Gender:    ledger.GenderAll,
	}
}

// =============================================================================
// DEFAULT CATALOG
// =============================================================================

// DefaultCatalog is a small catalog covering every frequency and scope.
func DefaultCatalog() []ledger.RequirementItem {
	return []ledger.RequirementItem{
		Uniform("uniform-boys", decimal.NewFromInt(100), 2, ledger.GenderMale),
		Uniform("uniform-girls", decimal.NewFromInt(110), 2, ledger.GenderFemale),
		Uniform("uniform-p4-boys", decimal.NewFromInt(120), 2, ledger.GenderMale, "P4"),
		Textbook("maths-p4", "P4 Mathematics", decimal.NewFromInt(35), "P4"),
		Textbook("english-p4", "P4 English", decimal.NewFromInt(30), "P4"),
		Stationery("stationery", decimal.NewFromInt(24), 12),
		AdmissionKit("admission-kit", decimal.NewFromInt(45)),
		BoardingKit("boarding-kit", decimal.NewFromInt(60), 3),
		Sportswear("sportswear", decimal.NewFromInt(25)),
	}
}
