package store

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/surrealdb/surrealgrid/pkg/models"
)

const (
	MaxNameLength = 50

	DefaultPageLimit = 50
	MaxPageLimit     = 100

	DefaultBulkCount = 10
	MaxBulkCount     = 100000
)

// ValidateName trims name and checks it is 1..50 characters long.
func ValidateName(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", Invalid(field, "must not be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", Invalid(field, "must be at most %d characters", MaxNameLength)
	}
	return name, nil
}

func ValidateFieldType(t models.FieldType) error {
	if !t.Valid() {
		return Invalid("type", "must be %q or %q, got %q", models.FieldTypeText, models.FieldTypeNumber, t)
	}
	return nil
}

// ValidateBulkCount applies the default for a zero count and checks the bounds.
func ValidateBulkCount(count int) (int, error) {
	if count == 0 {
		return DefaultBulkCount, nil
	}
	if count < 1 || count > MaxBulkCount {
		return 0, Invalid("count", "must be between 1 and %d", MaxBulkCount)
	}
	return count, nil
}

func ValidateFilters(filters []models.Filter) error {
	for _, f := range filters {
		if f.FieldID.IsZero() {
			return Invalid("filters", "field_id is required")
		}
		if !f.Operator.Valid() {
			return Invalid("filters", "unknown operator %q", f.Operator)
		}
	}
	return nil
}

func ValidateSorts(sorts []models.Sort) error {
	for _, s := range sorts {
		if s.FieldID.IsZero() {
			return Invalid("sorts", "field_id is required")
		}
		if !s.Direction.Valid() {
			return Invalid("sorts", "direction must be %q or %q", models.SortAsc, models.SortDesc)
		}
	}
	return nil
}

// Normalize applies defaults and validates the query in place.
func (q *RecordQuery) Normalize() error {
	if q.TableID.IsZero() {
		return Invalid("table_id", "is required")
	}
	if q.Limit == 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit < 1 || q.Limit > MaxPageLimit {
		return Invalid("limit", "must be between 1 and %d", MaxPageLimit)
	}
	if q.Cursor < 0 {
		return Invalid("cursor", "must not be negative")
	}
	q.Search = strings.TrimSpace(q.Search)
	if err := ValidateFilters(q.Filters); err != nil {
		return err
	}
	return ValidateSorts(q.Sorts)
}

// NormalizeCell keeps only the value matching fieldType. Non-finite numbers become nil.
func NormalizeCell(fieldType models.FieldType, text *string, number *float64) (*string, *float64) {
	switch fieldType {
	case models.FieldTypeText:
		if text == nil {
			return nil, nil
		}
		t := *text
		return &t, nil
	case models.FieldTypeNumber:
		if number == nil || math.IsNaN(*number) || math.IsInf(*number, 0) {
			return nil, nil
		}
		n := *number
		return nil, &n
	}
	return nil, nil
}
