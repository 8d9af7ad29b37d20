package models

import (
	"time"

	"gorm.io/gorm"
)

// FieldType selects which column of a CellValue is meaningful.
type FieldType string

const (
	FieldTypeText   FieldType = "text"
	FieldTypeNumber FieldType = "number"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	return t == FieldTypeText || t == FieldTypeNumber
}

// User represents a user account using typed IDs
type User struct {
	ID        UserID    `gorm:"primary_key" json:"id"`
	Email     string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID.IsZero() {
		u.ID = NewUserID()
	}
	return nil
}

// Base is the top-level container a user owns, similar to a database.
type Base struct {
	ID        BaseID    `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:50;not null" json:"name"`
	OwnerID   UserID    `gorm:"not null;index" json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID.IsZero() {
		b.ID = NewBaseID()
	}
	return nil
}

// Table holds records that share one ordered list of fields.
// Fields is only populated by operations that say so (CreateTable, GetTable).
type Table struct {
	ID        TableID   `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:50;not null" json:"name"`
	BaseID    BaseID    `gorm:"not null;index" json:"base_id"`
	Fields    []Field   `gorm:"foreignKey:TableID" json:"fields,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (t *Table) BeforeCreate(tx *gorm.DB) error {
	if t.ID.IsZero() {
		t.ID = NewTableID()
	}
	return nil
}

// Field is a typed column of a table.
// Order is assigned once at creation, one past the highest existing order, and is never
// renumbered; deleting a field leaves a gap.
type Field struct {
	ID        FieldID   `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:50;not null" json:"name"`
	Type      FieldType `gorm:"size:16;not null" json:"type"`
	Order     int       `gorm:"column:position;not null" json:"order"`
	TableID   TableID   `gorm:"not null;index" json:"table_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (f *Field) BeforeCreate(tx *gorm.DB) error {
	if f.ID.IsZero() {
		f.ID = NewFieldID()
	}
	return nil
}

// Record is a row. It carries no values of its own; those live in CellValues.
type Record struct {
	ID         RecordID    `gorm:"primary_key" json:"id"`
	TableID    TableID     `gorm:"not null;index:idx_records_table_created,priority:1" json:"table_id"`
	CellValues []CellValue `gorm:"foreignKey:RecordID" json:"cell_values"`
	CreatedAt  time.Time   `gorm:"precision:6;index:idx_records_table_created,priority:2" json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID.IsZero() {
		r.ID = NewRecordID()
	}
	return nil
}

// Cell returns the value stored for fieldID, or nil when the record has none.
func (r *Record) Cell(fieldID FieldID) *CellValue {
	for i := range r.CellValues {
		if r.CellValues[i].FieldID == fieldID {
			return &r.CellValues[i]
		}
	}
	return nil
}

// CellValue is the value at one (record, field) intersection.
// At most one exists per pair. Only the column matching the field's type is ever non-nil.
type CellValue struct {
	ID          CellValueID `gorm:"primary_key" json:"id"`
	RecordID    RecordID    `gorm:"not null;uniqueIndex:idx_cell_values_record_field,priority:1" json:"record_id"`
	FieldID     FieldID     `gorm:"not null;uniqueIndex:idx_cell_values_record_field,priority:2;index" json:"field_id"`
	TextValue   *string     `json:"text_value"`
	NumberValue *float64    `json:"number_value"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// BeforeCreate hook to derive the ID from the (record, field) pair
func (c *CellValue) BeforeCreate(tx *gorm.DB) error {
	if c.ID.IsZero() {
		c.ID = CellValueIDFor(c.RecordID, c.FieldID)
	}
	return nil
}

// View is a saved filter/sort/visibility preset for a table.
// The three presets are stored as JSON text; use [View.FilterList], [View.SortList]
// and [View.HiddenFieldList] to read them.
type View struct {
	ID           ViewID    `gorm:"primary_key" json:"id"`
	Name         string    `gorm:"size:50;not null" json:"name"`
	TableID      TableID   `gorm:"not null;index" json:"table_id"`
	Filters      string    `gorm:"type:text" json:"filters"`
	Sorts        string    `gorm:"type:text" json:"sorts"`
	HiddenFields string    `gorm:"type:text" json:"hidden_fields"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BeforeCreate hook to generate ID if not set
func (v *View) BeforeCreate(tx *gorm.DB) error {
	if v.ID.IsZero() {
		v.ID = NewViewID()
	}
	return nil
}
