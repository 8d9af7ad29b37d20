// Package store provides the data persistence layer abstraction for surrealgrid.
//
// This package defines the [Store] interface which lets the application run on
// different database backends behind one API:
//
//   - [github.com/surrealdb/surrealgrid/pkg/store/sqlstore.SQLStore]: GORM over PostgreSQL,
//     MySQL or SQLite, with ACID transactions and set-based paging in SQL
//   - [github.com/surrealdb/surrealgrid/pkg/store/surrealdb.SurrealStore]: native SurrealQL
//     without an ORM, with deterministic record IDs for idempotent writes
//
// # Data Model and Relationships
//
// Bases own tables; tables own fields, records and views; records own cell values.
// Deleting a parent deletes its children. Both backends perform the cascade themselves
// instead of relying on database foreign keys, so the behaviour is identical everywhere.
//
// # Paging
//
// [Store.ListRecords] is the read path of the record grid. It pages with an integer
// offset cursor over a stable ordering (explicit sorts, then created_at and id
// descending). Offsets shift when rows are inserted concurrently; clients deduplicate
// by record ID and refresh from cursor 0 to catch up. See [RecordQuery].
//
// # Errors
//
// Get methods return nil without error for missing entities. Operations that need an
// existing entity return [ErrNotFound]. Input problems are reported as
// [*ValidationError]. See errors.go for the full taxonomy.
//
// # Usage Patterns
//
//	st, err := sqlstore.Open(sqlstore.Config{Dialect: sqlstore.DialectPostgres, DSN: dsn})
//	if err != nil {
//		return err
//	}
//	defer st.Close()
//	page, err := st.ListRecords(ctx, store.RecordQuery{TableID: tableID, Limit: 50})
package store

import (
	"context"

	"github.com/surrealdb/surrealgrid/pkg/models"
)

// Store defines the complete data persistence interface for surrealgrid.
//
// All methods accept context.Context for cancellation and deadlines.
// List methods return empty slices for no results, never nil.
// Ownership lookups (OwnerOf*) walk up the hierarchy to the owning user and return
// [ErrNotFound] if any link is missing; the HTTP layer turns a mismatch into
// [ErrForbidden].
type Store interface {
	// User operations

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id models.UserID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// Base operations

	CreateBase(ctx context.Context, base *models.Base) error
	GetBase(ctx context.Context, id models.BaseID) (*models.Base, error)
	// ListBases returns the owner's bases, most recently updated first.
	ListBases(ctx context.Context, ownerID models.UserID) ([]*models.Base, error)
	// DeleteBase removes the base with all of its tables.
	DeleteBase(ctx context.Context, id models.BaseID) error

	// Table operations

	// CreateTable persists the table together with its default fields
	// (a text field at order 0 and a number field at order 1) and sets table.Fields.
	CreateTable(ctx context.Context, table *models.Table) error
	// GetTable returns the table with its fields ordered by order.
	GetTable(ctx context.Context, id models.TableID) (*models.Table, error)
	ListTables(ctx context.Context, baseID models.BaseID) ([]*models.Table, error)
	// DeleteTable removes the table with its fields, records, cell values and views.
	DeleteTable(ctx context.Context, id models.TableID) error

	// Field operations

	// CreateField assigns field.Order one past the highest existing order (0 for the first field).
	CreateField(ctx context.Context, field *models.Field) error
	GetField(ctx context.Context, id models.FieldID) (*models.Field, error)
	// ListFields returns the fields of a table ordered by order ascending.
	ListFields(ctx context.Context, tableID models.TableID) ([]*models.Field, error)
	RenameField(ctx context.Context, id models.FieldID, name string) (*models.Field, error)
	// DeleteField removes the field and its cell values. Other fields keep their order.
	DeleteField(ctx context.Context, id models.FieldID) error

	// Record operations

	// ListRecords returns one page of the table's records with their cell values.
	ListRecords(ctx context.Context, query RecordQuery) (*RecordPage, error)
	// CreateRecord persists an empty record.
	CreateRecord(ctx context.Context, record *models.Record) error
	GetRecord(ctx context.Context, id models.RecordID) (*models.Record, error)
	// DeleteRecord removes the record and its cell values and returns what was deleted.
	DeleteRecord(ctx context.Context, id models.RecordID) (*models.Record, error)
	// CreateRecordsBulk inserts count records with one generated value per field,
	// returning the number of records inserted.
	CreateRecordsBulk(ctx context.Context, tableID models.TableID, count int, gen CellGenerator) (int, error)

	// Cell value operations

	GetCellValue(ctx context.Context, recordID models.RecordID, fieldID models.FieldID) (*models.CellValue, error)
	ListCellValues(ctx context.Context, recordIDs []models.RecordID) ([]*models.CellValue, error)
	// UpsertCellValue creates or replaces the value at (record, field). Only the column
	// matching the field's type is kept; the other is cleared.
	UpsertCellValue(ctx context.Context, write CellWrite) (*models.CellValue, error)

	// View operations

	CreateView(ctx context.Context, view *models.View) error
	GetView(ctx context.Context, id models.ViewID) (*models.View, error)
	// ListViews returns the table's views, newest first.
	ListViews(ctx context.Context, tableID models.TableID) ([]*models.View, error)
	UpdateView(ctx context.Context, view *models.View) error
	DeleteView(ctx context.Context, id models.ViewID) error

	// Ownership

	OwnerOfBase(ctx context.Context, id models.BaseID) (models.UserID, error)
	OwnerOfTable(ctx context.Context, id models.TableID) (models.UserID, error)
	OwnerOfField(ctx context.Context, id models.FieldID) (models.UserID, error)
	OwnerOfRecord(ctx context.Context, id models.RecordID) (models.UserID, error)
	OwnerOfView(ctx context.Context, id models.ViewID) (models.UserID, error)

	// Database management

	Migrate(ctx context.Context) error
	Close() error
}

// CellGenerator produces values for bulk-generated records.
type CellGenerator interface {
	// Cell returns the value for one cell of the given field. Implementations return
	// a text value for text fields and a number value for number fields.
	Cell(field *models.Field) (text *string, number *float64)
}

// CellWrite is one upsert request.
type CellWrite struct {
	RecordID    models.RecordID `json:"record_id"`
	FieldID     models.FieldID  `json:"field_id"`
	TextValue   *string         `json:"text_value"`
	NumberValue *float64        `json:"number_value"`
}

// Bulk generation batch sizes.
const (
	RecordBatchSize = 1000
	CellBatchSize   = 5000
)

// DefaultFields returns the fields every new table starts with.
func DefaultFields(tableID models.TableID) []models.Field {
	return []models.Field{
		{ID: models.NewFieldID(), TableID: tableID, Name: "Title", Type: models.FieldTypeText, Order: 0},
		{ID: models.NewFieldID(), TableID: tableID, Name: "Value", Type: models.FieldTypeNumber, Order: 1},
	}
}
