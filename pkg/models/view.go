package models

import (
	"encoding/json"
)

// FilterOperator is the comparison a Filter applies to a cell.
type FilterOperator string

const (
	OpContains    FilterOperator = "contains"
	OpNotContains FilterOperator = "notContains"
	OpEquals      FilterOperator = "equals"
	OpNotEquals   FilterOperator = "notEquals"
	OpEmpty       FilterOperator = "empty"
	OpNotEmpty    FilterOperator = "notEmpty"
	OpGreaterThan FilterOperator = "greaterThan"
	OpLessThan    FilterOperator = "lessThan"
)

// Valid reports whether op is a known operator.
func (op FilterOperator) Valid() bool {
	switch op {
	case OpContains, OpNotContains, OpEquals, OpNotEquals,
		OpEmpty, OpNotEmpty, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

// NeedsValue reports whether the operator compares against Filter.Value.
func (op FilterOperator) NeedsValue() bool {
	return op != OpEmpty && op != OpNotEmpty
}

// SortDirection orders a Sort.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

func (d SortDirection) Valid() bool {
	return d == SortAsc || d == SortDesc
}

// Filter restricts records to those whose cell in FieldID satisfies Operator.
type Filter struct {
	FieldID  FieldID        `json:"field_id"`
	Operator FilterOperator `json:"operator"`
	Value    string         `json:"value,omitempty"`
}

// Sort orders records by the cell in FieldID.
type Sort struct {
	FieldID   FieldID       `json:"field_id"`
	Direction SortDirection `json:"direction"`
}

// FilterList decodes the stored filters, skipping entries that do not parse
// or carry an unknown operator. Malformed JSON yields an empty list.
func (v *View) FilterList() []Filter {
	return ParseFilters(v.Filters)
}

// SortList decodes the stored sorts with the same leniency as FilterList.
func (v *View) SortList() []Sort {
	return ParseSorts(v.Sorts)
}

// HiddenFieldList decodes the stored hidden field IDs, skipping invalid ones.
func (v *View) HiddenFieldList() []FieldID {
	return ParseHiddenFields(v.HiddenFields)
}

func ParseFilters(s string) []Filter {
	out := []Filter{}
	for _, raw := range rawItems(s) {
		var f Filter
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		if f.FieldID.IsZero() || !f.Operator.Valid() {
			continue
		}
		out = append(out, f)
	}
	return out
}

func ParseSorts(s string) []Sort {
	out := []Sort{}
	for _, raw := range rawItems(s) {
		var st Sort
		if err := json.Unmarshal(raw, &st); err != nil {
			continue
		}
		if st.FieldID.IsZero() || !st.Direction.Valid() {
			continue
		}
		out = append(out, st)
	}
	return out
}

func ParseHiddenFields(s string) []FieldID {
	out := []FieldID{}
	for _, raw := range rawItems(s) {
		var id FieldID
		if err := json.Unmarshal(raw, &id); err != nil || id.IsZero() {
			continue
		}
		out = append(out, id)
	}
	return out
}

// EncodeList serializes a preset list for storage; nil encodes as "[]".
func EncodeList[T any](items []T) string {
	if items == nil {
		return "[]"
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func rawItems(s string) []json.RawMessage {
	if s == "" {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil
	}
	return items
}
