package store

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/surrealdb/surrealgrid/pkg/models"
)

// RecordQuery selects one page of a table's records.
//
// Cursor is an offset into the table's ordered, filtered record set. Limit defaults to
// 50 and is bounded to 1..100. Filters are conjunctive. Filters and sorts naming a field
// that is not part of the table are ignored, so stale view presets keep working after a
// field is deleted.
type RecordQuery struct {
	TableID models.TableID  `json:"table_id"`
	Cursor  int             `json:"cursor"`
	Limit   int             `json:"limit"`
	Search  string          `json:"search,omitempty"`
	Filters []models.Filter `json:"filters,omitempty"`
	Sorts   []models.Sort   `json:"sorts,omitempty"`
}

// RecordPage is one page of records.
// TotalCount is a snapshot taken with the page and may be stale under concurrent writes.
// NextCursor is nil once the set is exhausted.
type RecordPage struct {
	Records    []*models.Record `json:"records"`
	TotalCount int              `json:"total_count"`
	NextCursor *int             `json:"next_cursor"`
}

// FieldIndex maps field IDs to their definitions.
type FieldIndex map[models.FieldID]*models.Field

func NewFieldIndex(fields []*models.Field) FieldIndex {
	idx := make(FieldIndex, len(fields))
	for _, f := range fields {
		idx[f.ID] = f
	}
	return idx
}

// Applicable drops filters and sorts on fields the table does not have.
func (idx FieldIndex) Applicable(q RecordQuery) ([]models.Filter, []models.Sort) {
	filters := make([]models.Filter, 0, len(q.Filters))
	for _, f := range q.Filters {
		if _, ok := idx[f.FieldID]; ok {
			filters = append(filters, f)
		}
	}
	sorts := make([]models.Sort, 0, len(q.Sorts))
	for _, s := range q.Sorts {
		if _, ok := idx[s.FieldID]; ok {
			sorts = append(sorts, s)
		}
	}
	return filters, sorts
}

// FormatNumber renders a number the way cells display it.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// ParseNumber parses user input for a number cell. Empty, non-numeric and
// non-finite input all yield ok == false.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// Matches reports whether rec satisfies the query's search and filters.
// It is the reference semantics the SQL backend reproduces:
//
//   - search matches a text cell containing the term (case-insensitive) or a number
//     cell equal to the term when it parses as a number
//   - contains/notContains test a case-insensitive substring on text fields; on number
//     fields they behave like equals/notEquals
//   - equals/notEquals compare case-insensitively on text and numerically on numbers;
//     an empty value means "is empty"; a non-numeric value never equals a number cell
//   - empty holds for a missing cell, a nil value or empty text
//   - greaterThan/lessThan need a present value and a comparable operand
func Matches(rec *models.Record, fields FieldIndex, q RecordQuery) bool {
	filters, _ := fields.Applicable(q)
	if q.Search != "" && !matchesSearch(rec, fields, q.Search) {
		return false
	}
	for _, f := range filters {
		if !matchesFilter(rec, fields[f.FieldID], f) {
			return false
		}
	}
	return true
}

func matchesSearch(rec *models.Record, fields FieldIndex, term string) bool {
	lower := strings.ToLower(term)
	n, numeric := ParseNumber(term)
	for i := range rec.CellValues {
		cv := &rec.CellValues[i]
		field, ok := fields[cv.FieldID]
		if !ok {
			continue
		}
		switch field.Type {
		case models.FieldTypeText:
			if cv.TextValue != nil && strings.Contains(strings.ToLower(*cv.TextValue), lower) {
				return true
			}
		case models.FieldTypeNumber:
			if numeric && cv.NumberValue != nil && *cv.NumberValue == n {
				return true
			}
		}
	}
	return false
}

func matchesFilter(rec *models.Record, field *models.Field, f models.Filter) bool {
	cv := rec.Cell(field.ID)
	var text *string
	var number *float64
	if cv != nil {
		text, number = cv.TextValue, cv.NumberValue
	}

	isEmpty := func() bool {
		if field.Type == models.FieldTypeNumber {
			return number == nil
		}
		return text == nil || *text == ""
	}
	equals := func() bool {
		if f.Value == "" {
			return isEmpty()
		}
		if field.Type == models.FieldTypeNumber {
			n, ok := ParseNumber(f.Value)
			return ok && number != nil && *number == n
		}
		return text != nil && strings.EqualFold(*text, f.Value)
	}
	contains := func() bool {
		if f.Value == "" {
			return true
		}
		if field.Type == models.FieldTypeNumber {
			return equals()
		}
		return text != nil && strings.Contains(strings.ToLower(*text), strings.ToLower(f.Value))
	}
	compare := func() (int, bool) {
		if field.Type == models.FieldTypeNumber {
			n, ok := ParseNumber(f.Value)
			if !ok || number == nil {
				return 0, false
			}
			switch {
			case *number < n:
				return -1, true
			case *number > n:
				return 1, true
			}
			return 0, true
		}
		if text == nil {
			return 0, false
		}
		return strings.Compare(*text, f.Value), true
	}

	switch f.Operator {
	case models.OpContains:
		return contains()
	case models.OpNotContains:
		return !contains()
	case models.OpEquals:
		return equals()
	case models.OpNotEquals:
		return !equals()
	case models.OpEmpty:
		return isEmpty()
	case models.OpNotEmpty:
		return !isEmpty()
	case models.OpGreaterThan:
		c, ok := compare()
		return ok && c > 0
	case models.OpLessThan:
		c, ok := compare()
		return ok && c < 0
	}
	return false
}

// Less orders records by the query's sorts (nil values last in either direction),
// then by created_at descending and id descending.
func Less(a, b *models.Record, fields FieldIndex, sorts []models.Sort) bool {
	for _, s := range sorts {
		field, ok := fields[s.FieldID]
		if !ok {
			continue
		}
		c, decided := compareCells(a.Cell(field.ID), b.Cell(field.ID), field.Type)
		if decided {
			return c < 0
		}
		if c == 0 {
			continue
		}
		if s.Direction == models.SortDesc {
			c = -c
		}
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

// compareCells returns decided == true when exactly one side is nil, in which case c
// already places the nil side last regardless of direction.
func compareCells(a, b *models.CellValue, t models.FieldType) (c int, decided bool) {
	if t == models.FieldTypeNumber {
		var x, y *float64
		if a != nil {
			x = a.NumberValue
		}
		if b != nil {
			y = b.NumberValue
		}
		switch {
		case x == nil && y == nil:
			return 0, false
		case x == nil:
			return 1, true
		case y == nil:
			return -1, true
		case *x < *y:
			return -1, false
		case *x > *y:
			return 1, false
		}
		return 0, false
	}
	var x, y *string
	if a != nil {
		x = a.TextValue
	}
	if b != nil {
		y = b.TextValue
	}
	switch {
	case x == nil && y == nil:
		return 0, false
	case x == nil:
		return 1, true
	case y == nil:
		return -1, true
	}
	return strings.Compare(*x, *y), false
}

// PageOf filters, orders and slices an in-memory record set.
// Backends that cannot express the query natively fetch the table's records and
// delegate here.
func PageOf(records []*models.Record, fields FieldIndex, q RecordQuery) *RecordPage {
	_, sorts := fields.Applicable(q)
	matched := make([]*models.Record, 0, len(records))
	for _, rec := range records {
		if Matches(rec, fields, q) {
			matched = append(matched, rec)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return Less(matched[i], matched[j], fields, sorts)
	})

	page := &RecordPage{TotalCount: len(matched), Records: []*models.Record{}}
	if q.Cursor >= len(matched) {
		return page
	}
	end := q.Cursor + q.Limit
	if end < len(matched) {
		next := end
		page.NextCursor = &next
	} else {
		end = len(matched)
	}
	page.Records = matched[q.Cursor:end]
	return page
}
