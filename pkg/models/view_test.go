package models

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFilters(t *testing.T) {
	field := NewFieldID()
	tests := []struct {
		name string
		in   string
		want []Filter
	}{
		{name: "empty", in: "", want: []Filter{}},
		{name: "malformed", in: `[{"field_id"`, want: []Filter{}},
		{name: "not a list", in: `{"field_id":"x"}`, want: []Filter{}},
		{
			name: "valid",
			in:   fmt.Sprintf(`[{"field_id":%q,"operator":"greaterThan","value":"3"},{"field_id":%q,"operator":"empty"}]`, field, field),
			want: []Filter{{FieldID: field, Operator: OpGreaterThan, Value: "3"}, {FieldID: field, Operator: OpEmpty}},
		},
		{
			name: "invalid entries are skipped",
			in: fmt.Sprintf(`[{"field_id":%q,"operator":"like","value":"a"},{"operator":"equals","value":"a"},`+
				`{"field_id":"not-a-uuid","operator":"equals"},7,{"field_id":%q,"operator":"notContains","value":"x"}]`, field, field),
			want: []Filter{{FieldID: field, Operator: OpNotContains, Value: "x"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseFilters(tt.in)
			require.NotNil(t, got)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseSorts(t *testing.T) {
	a, b := NewFieldID(), NewFieldID()
	tests := []struct {
		name string
		in   string
		want []Sort
	}{
		{name: "empty", in: "", want: []Sort{}},
		{name: "malformed", in: "sorts", want: []Sort{}},
		{
			name: "order is kept",
			in:   fmt.Sprintf(`[{"field_id":%q,"direction":"desc"},{"field_id":%q,"direction":"asc"}]`, b, a),
			want: []Sort{{FieldID: b, Direction: SortDesc}, {FieldID: a, Direction: SortAsc}},
		},
		{
			name: "invalid entries are skipped",
			in:   fmt.Sprintf(`[{"field_id":%q,"direction":"up"},{"direction":"asc"},"asc",{"field_id":%q,"direction":"asc"}]`, a, b),
			want: []Sort{{FieldID: b, Direction: SortAsc}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSorts(tt.in)
			require.NotNil(t, got)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseHiddenFields(t *testing.T) {
	a, b := NewFieldID(), NewFieldID()
	tests := []struct {
		name string
		in   string
		want []FieldID
	}{
		{name: "empty", in: "", want: []FieldID{}},
		{name: "malformed", in: "[", want: []FieldID{}},
		{name: "valid", in: fmt.Sprintf(`[%q,%q]`, a, b), want: []FieldID{a, b}},
		{name: "invalid entries are skipped", in: fmt.Sprintf(`["",%q,"nope",42,null,%q]`, a, b), want: []FieldID{a, b}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseHiddenFields(tt.in)
			require.NotNil(t, got)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestViewLists(t *testing.T) {
	field := NewFieldID()
	v := &View{
		Filters:      EncodeList([]Filter{{FieldID: field, Operator: OpContains, Value: "a"}}),
		Sorts:        EncodeList([]Sort{{FieldID: field, Direction: SortDesc}}),
		HiddenFields: EncodeList([]FieldID{field}),
	}
	require.Equal(t, []Filter{{FieldID: field, Operator: OpContains, Value: "a"}}, v.FilterList())
	require.Equal(t, []Sort{{FieldID: field, Direction: SortDesc}}, v.SortList())
	require.Equal(t, []FieldID{field}, v.HiddenFieldList())

	require.Equal(t, "[]", EncodeList[Filter](nil))
	require.Equal(t, "[]", EncodeList([]Sort{}))
	require.Empty(t, (&View{}).FilterList())
}

func TestFilterOperators(t *testing.T) {
	for _, op := range []FilterOperator{OpContains, OpNotContains, OpEquals, OpNotEquals, OpGreaterThan, OpLessThan} {
		require.True(t, op.Valid(), op)
		require.True(t, op.NeedsValue(), op)
	}
	for _, op := range []FilterOperator{OpEmpty, OpNotEmpty} {
		require.True(t, op.Valid(), op)
		require.False(t, op.NeedsValue(), op)
	}
	require.False(t, FilterOperator("like").Valid())
	require.False(t, FilterOperator("").Valid())
	require.False(t, SortDirection("up").Valid())
}
