package models

import (
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	valid := uuid.New()
	tests := []struct {
		name    string
		in      string
		want    FieldID
		wantErr string
	}{
		{name: "canonical", in: valid.String(), want: IDFromUUID[fieldKind](valid)},
		{name: "upper case", in: "6BA7B810-9DAD-11D1-80B4-00C04FD430C8", want: IDFromUUID[fieldKind](uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))},
		{name: "garbage", in: "field-1", wantErr: "invalid field ID"},
		{name: "empty", in: "", wantErr: "invalid field ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFieldID(tt.in)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				require.True(t, got.IsZero())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := ParseCellValueID("x")
	require.ErrorContains(t, err, "invalid cell value ID")
}

func TestIDTables(t *testing.T) {
	require.Equal(t, "records", NewRecordID().Table())
	require.Equal(t, "cell_values", CellValueIDFor(NewRecordID(), NewFieldID()).Table())

	id := NewViewID()
	link := id.RecordID()
	require.Equal(t, "views", link.Table)
	require.Equal(t, id.String(), link.ID)
}

func TestCellValueIDForIsStable(t *testing.T) {
	rec, field := NewRecordID(), NewFieldID()
	require.Equal(t, CellValueIDFor(rec, field), CellValueIDFor(rec, field))
	require.NotEqual(t, CellValueIDFor(rec, field), CellValueIDFor(rec, NewFieldID()))
	require.NotEqual(t, CellValueIDFor(rec, field), CellValueIDFor(NewRecordID(), field))
}

func TestIDUnmarshalJSON(t *testing.T) {
	id := NewBaseID()
	tests := []struct {
		name    string
		in      string
		want    BaseID
		wantErr bool
	}{
		{name: "uuid", in: `"` + id.String() + `"`, want: id},
		{name: "empty string is zero", in: `""`},
		{name: "not a uuid", in: `"base-1"`, wantErr: true},
		{name: "not a string", in: `42`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got BaseID
			err := json.Unmarshal([]byte(tt.in), &got)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestIDMarshalCBORIsRecordLink(t *testing.T) {
	id := NewTableID()
	data, err := cbor.Marshal(id)
	require.NoError(t, err)

	var tag cbor.Tag
	require.NoError(t, cbor.Unmarshal(data, &tag))
	require.EqualValues(t, recordLinkTag, tag.Number)
	require.Equal(t, []any{"tables", id.String()}, tag.Content)
}

func TestIDUnmarshalCBOR(t *testing.T) {
	id := NewRecordID()
	encode := func(v any) []byte {
		data, err := cbor.Marshal(v)
		require.NoError(t, err)
		return data
	}

	tests := []struct {
		name    string
		data    []byte
		want    RecordID
		wantErr string
	}{
		{name: "record link", data: encode(cbor.Tag{Number: recordLinkTag, Content: []any{"records", id.String()}}), want: id},
		{name: "bare uuid text", data: encode(id.String()), want: id},
		{name: "null", data: encode(nil)},
		{name: "other table", data: encode(cbor.Tag{Number: recordLinkTag, Content: []any{"fields", id.String()}}), wantErr: "expected table records, got fields"},
		{name: "other tag", data: encode(cbor.Tag{Number: 1000, Content: []any{"records", id.String()}}), wantErr: "expected RecordID tag"},
		{name: "link without id", data: encode(cbor.Tag{Number: recordLinkTag, Content: []any{"records"}}), wantErr: "expected [table, id] array"},
		{name: "numeric table", data: encode(cbor.Tag{Number: recordLinkTag, Content: []any{7, id.String()}}), wantErr: "table name must be string"},
		{name: "numeric id", data: encode(cbor.Tag{Number: recordLinkTag, Content: []any{"records", 7}}), wantErr: "ID must be string"},
		{name: "bad uuid", data: encode("records:7"), wantErr: "invalid UUID"},
		{name: "number", data: encode(7), wantErr: "cannot decode"},
		{name: "empty", data: []byte{}, wantErr: "empty CBOR data"},
		{name: "truncated", data: []byte{0xd8}, wantErr: "failed to unmarshal CBOR ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewRecordID()
			err := got.UnmarshalCBOR(tt.data)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestIDCBORInsideStruct(t *testing.T) {
	type row struct {
		ID      CellValueID `cbor:"id"`
		FieldID FieldID     `cbor:"field_id"`
	}
	in := row{ID: CellValueIDFor(NewRecordID(), NewFieldID()), FieldID: NewFieldID()}
	data, err := cbor.Marshal(in)
	require.NoError(t, err)

	var out row
	require.NoError(t, cbor.Unmarshal(data, &out))
	require.Equal(t, in, out)
}

func TestIDScan(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name    string
		in      any
		want    uuid.UUID
		wantErr bool
	}{
		{name: "nil", in: nil, want: uuid.Nil},
		{name: "text", in: id.String(), want: id},
		{name: "binary", in: id[:], want: id},
		{name: "text bytes", in: []byte(id.String()), want: id},
		{name: "bad text", in: "nope", wantErr: true},
		{name: "int", in: 42, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got UserID
			err := got.Scan(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got.UUID())
		})
	}
}

func TestIDValue(t *testing.T) {
	v, err := UserID{}.Value()
	require.NoError(t, err)
	require.Nil(t, v)

	id := NewUserID()
	v, err = id.Value()
	require.NoError(t, err)
	require.Equal(t, id.String(), v)
}
