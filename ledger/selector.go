package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// REQUIREMENT SELECTOR - Single(id) | Bundle(ids)
// =============================================================================

type SelectionMode string

const (
	SelectItem   SelectionMode = "item"
	SelectBundle SelectionMode = "bundle"
)

// RequirementSelector names the catalog items a record covers.
// Implemented only by Single and Bundle.
type RequirementSelector interface {
	IDs() []RequirementID
	Mode() SelectionMode
	Contains(id RequirementID) bool
	// Key is a stable string form used for indexing and duplicate checks.
	Key() string

	isSelector()
}

// Single selects exactly one catalog item.
type Single struct {
	ID RequirementID
}

func (s Single) IDs() []RequirementID           { return []RequirementID{s.ID} }
func (s Single) Mode() SelectionMode            { return SelectItem }
func (s Single) Contains(id RequirementID) bool { return s.ID == id }
func (s Single) Key() string                    { return string(s.ID) }
func (Single) isSelector()                      {}

// Bundle selects an ordered list of catalog items tracked as one record.
type Bundle struct {
	Items []RequirementID
}

func (b Bundle) IDs() []RequirementID { return append([]RequirementID(nil), b.Items...) }
func (b Bundle) Mode() SelectionMode  { return SelectBundle }
func (Bundle) isSelector()            {}

func (b Bundle) Contains(id RequirementID) bool {
	for _, item := range b.Items {
		if item == id {
			return true
		}
	}
	return false
}

func (b Bundle) Key() string {
	ids := make([]string, len(b.Items))
	for i, id := range b.Items {
		ids[i] = string(id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// NewSelector builds a Single for one id and a Bundle otherwise.
func NewSelector(ids ...RequirementID) (RequirementSelector, error) {
	switch len(ids) {
	case 0:
		return nil, fmt.Errorf("%w: empty requirement selection", ErrInvalidSelector)
	case 1:
		return Single{ID: ids[0]}, nil
	}
	seen := make(map[RequirementID]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			return nil, fmt.Errorf("%w: duplicate or empty id %q", ErrInvalidSelector, id)
		}
		seen[id] = true
	}
	return Bundle{Items: append([]RequirementID(nil), ids...)}, nil
}

// Overlaps reports whether two selectors share at least one id.
func Overlaps(a, b RequirementSelector) bool {
	if a == nil || b == nil {
		return false
	}
	for _, id := range a.IDs() {
		if b.Contains(id) {
			return true
		}
	}
	return false
}

// =============================================================================
// JSON - a string for Single, an array for Bundle
// =============================================================================

// MarshalSelector encodes a selector the way documents store requirement_id.
func MarshalSelector(sel RequirementSelector) ([]byte, error) {
	switch s := sel.(type) {
	case Single:
		return json.Marshal(string(s.ID))
	case Bundle:
		return json.Marshal(s.Items)
	case nil:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("%w: unknown selector %T", ErrInvalidSelector, sel)
	}
}

// UnmarshalSelector decodes either a JSON string or a JSON array of strings.
func UnmarshalSelector(data []byte) (RequirementSelector, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var ids []RequirementID
		if err := json.Unmarshal(data, &ids); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSelector, err)
		}
		if len(ids) == 1 {
			// A one-element list is still a bundle in stored documents.
			return Bundle{Items: ids}, nil
		}
		return NewSelector(ids...)
	}
	var id RequirementID
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSelector, err)
	}
	return Single{ID: id}, nil
}

type recordFields FulfillmentRecord

// MarshalJSON writes requirement_id and selection_mode alongside the record fields.
func (r FulfillmentRecord) MarshalJSON() ([]byte, error) {
	sel, err := MarshalSelector(r.Requirement)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		recordFields
		RequirementID json.RawMessage `json:"requirement_id"`
		SelectionMode SelectionMode   `json:"selection_mode"`
	}{
		recordFields:  recordFields(r),
		RequirementID: sel,
		SelectionMode: r.SelectionMode(),
	})
}

func (r *FulfillmentRecord) UnmarshalJSON(data []byte) error {
	var aux struct {
		recordFields
		RequirementID json.RawMessage `json:"requirement_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	sel, err := UnmarshalSelector(aux.RequirementID)
	if err != nil {
		return err
	}
	*r = FulfillmentRecord(aux.recordFields)
	r.Requirement = sel
	return nil
}
