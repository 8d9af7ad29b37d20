package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	surrealdb_models "github.com/surrealdb/surrealdb.go/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// recordLinkTag is the CBOR tag SurrealDB uses for record links (table:id).
const recordLinkTag = 8

// kind ties a typed ID to the table it identifies.
// Implementations are zero-size marker types, so ID[K] costs nothing over a bare UUID.
type kind interface {
	table() string
	label() string
}

type (
	userKind      struct{}
	baseKind      struct{}
	tableKind     struct{}
	fieldKind     struct{}
	recordKind    struct{}
	cellValueKind struct{}
	viewKind      struct{}
)

func (userKind) table() string      { return "users" }
func (userKind) label() string      { return "user" }
func (baseKind) table() string      { return "bases" }
func (baseKind) label() string      { return "base" }
func (tableKind) table() string     { return "tables" }
func (tableKind) label() string     { return "table" }
func (fieldKind) table() string     { return "fields" }
func (fieldKind) label() string     { return "field" }
func (recordKind) table() string    { return "records" }
func (recordKind) label() string    { return "record" }
func (cellValueKind) table() string { return "cell_values" }
func (cellValueKind) label() string { return "cell value" }
func (viewKind) table() string      { return "views" }
func (viewKind) label() string      { return "view" }

// ID is a UUID that knows which table it belongs to.
// The compiler refuses to mix a FieldID with a RecordID, while every ID shares one
// implementation of JSON, SQL and CBOR encoding.
type ID[K kind] struct {
	uuid uuid.UUID
}

type (
	UserID      = ID[userKind]
	BaseID      = ID[baseKind]
	TableID     = ID[tableKind]
	FieldID     = ID[fieldKind]
	RecordID    = ID[recordKind]
	CellValueID = ID[cellValueKind]
	ViewID      = ID[viewKind]
)

func NewUserID() UserID     { return UserID{uuid: uuid.New()} }
func NewBaseID() BaseID     { return BaseID{uuid: uuid.New()} }
func NewTableID() TableID   { return TableID{uuid: uuid.New()} }
func NewFieldID() FieldID   { return FieldID{uuid: uuid.New()} }
func NewRecordID() RecordID { return RecordID{uuid: uuid.New()} }
func NewViewID() ViewID     { return ViewID{uuid: uuid.New()} }

// cellNamespace seeds the name-based UUIDs of cell values.
var cellNamespace = uuid.MustParse("4b0d7a8e-2f55-4e43-9a43-2d1a4c4f6e10")

// CellValueIDFor derives the ID of the cell at (record, field).
// The same pair always yields the same ID, so an upsert keyed by ID is keyed by the pair.
func CellValueIDFor(recordID RecordID, fieldID FieldID) CellValueID {
	name := make([]byte, 0, 32)
	name = append(name, recordID.uuid[:]...)
	name = append(name, fieldID.uuid[:]...)
	return CellValueID{uuid: uuid.NewSHA1(cellNamespace, name)}
}

func ParseUserID(s string) (UserID, error)           { return parseID[userKind](s) }
func ParseBaseID(s string) (BaseID, error)           { return parseID[baseKind](s) }
func ParseTableID(s string) (TableID, error)         { return parseID[tableKind](s) }
func ParseFieldID(s string) (FieldID, error)         { return parseID[fieldKind](s) }
func ParseRecordID(s string) (RecordID, error)       { return parseID[recordKind](s) }
func ParseCellValueID(s string) (CellValueID, error) { return parseID[cellValueKind](s) }
func ParseViewID(s string) (ViewID, error)           { return parseID[viewKind](s) }

func parseID[K kind](s string) (ID[K], error) {
	id, err := uuid.Parse(s)
	if err != nil {
		var k K
		return ID[K]{}, fmt.Errorf("invalid %s ID: %w", k.label(), err)
	}
	return ID[K]{uuid: id}, nil
}

// IDFromUUID wraps an existing UUID.
func IDFromUUID[K kind](id uuid.UUID) ID[K] {
	return ID[K]{uuid: id}
}

func (i ID[K]) UUID() uuid.UUID { return i.uuid }
func (i ID[K]) String() string  { return i.uuid.String() }
func (i ID[K]) IsZero() bool    { return i.uuid == uuid.Nil }

// Table returns the SurrealDB table name of the ID.
func (i ID[K]) Table() string {
	var k K
	return k.table()
}

// RecordID returns the SurrealDB record link for the ID.
func (i ID[K]) RecordID() surrealdb_models.RecordID {
	return surrealdb_models.RecordID{
		Table: i.Table(),
		ID:    i.uuid.String(),
	}
}

func (i ID[K]) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.uuid.String())
}

func (i *ID[K]) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		i.uuid = uuid.Nil
		return nil
	}
	parsed, err := parseID[K](s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// MarshalCBOR encodes the ID as a SurrealDB record link, so foreign keys are
// stored as links and can be compared against link parameters.
func (i ID[K]) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(cbor.Tag{
		Number:  recordLinkTag,
		Content: []any{i.Table(), i.uuid.String()},
	})
}

// UnmarshalCBOR accepts a record link of the ID's own table or a bare UUID string.
func (i *ID[K]) UnmarshalCBOR(data []byte) error {
	return unmarshalCBORID(data, i.Table(), &i.uuid)
}

func (i ID[K]) Value() (driver.Value, error) {
	if i.IsZero() {
		return nil, nil
	}
	return i.uuid.String(), nil
}

func (i *ID[K]) Scan(value any) error {
	return scanUUID(value, &i.uuid)
}

func (ID[K]) GormDataType() string { return "uuid" }

// GormDBDataType picks a column type per dialect; only postgres has a native uuid type.
func (ID[K]) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "uuid"
	case "mysql":
		return "char(36)"
	default:
		return "text"
	}
}

// scanUUID implements sql.Scanner for every typed ID.
func scanUUID(value any, target *uuid.UUID) error {
	switch v := value.(type) {
	case nil:
		*target = uuid.Nil
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return err
		}
		*target = id
	case []byte:
		if len(v) == 16 {
			copy(target[:], v)
			return nil
		}
		id, err := uuid.ParseBytes(v)
		if err != nil {
			return err
		}
		*target = id
	default:
		return fmt.Errorf("cannot scan type %T into UUID", value)
	}
	return nil
}

// unmarshalCBORID decodes either a tag 8 [table, id] record link or a plain text UUID.
func unmarshalCBORID(data []byte, expectedTable string, target *uuid.UUID) error {
	if len(data) == 0 {
		return fmt.Errorf("empty CBOR data")
	}

	var raw any
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal CBOR ID: %w", err)
	}

	var idStr string
	switch v := raw.(type) {
	case string:
		idStr = v
	case cbor.Tag:
		if v.Number != recordLinkTag {
			return fmt.Errorf("expected RecordID tag (%d), got %d", recordLinkTag, v.Number)
		}
		arr, ok := v.Content.([]any)
		if !ok || len(arr) != 2 {
			return fmt.Errorf("invalid RecordID format: expected [table, id] array")
		}
		table, ok := arr[0].(string)
		if !ok {
			return fmt.Errorf("invalid RecordID format: table name must be string")
		}
		if table != expectedTable {
			return fmt.Errorf("expected table %s, got %s", expectedTable, table)
		}
		if idStr, ok = arr[1].(string); !ok {
			return fmt.Errorf("invalid RecordID format: ID must be string")
		}
	case nil:
		*target = uuid.Nil
		return nil
	default:
		return fmt.Errorf("cannot decode %T into ID", raw)
	}

	parsed, err := uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("invalid UUID in RecordID: %w", err)
	}
	*target = parsed
	return nil
}
