package surrealdb

import (
	"fmt"
	"time"

	"github.com/surrealdb/surrealgrid/pkg/models"
)

// Rows mirror the models but keep timestamps as fixed-width UTC text. Fixed width makes
// lexical order equal chronological order inside SurrealQL, and text decodes the same
// way under every CBOR codec configuration.

const stampLayout = "2006-01-02T15:04:05.000000000Z"

func stamp(t time.Time) string {
	return t.UTC().Format(stampLayout)
}

func parseStamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(stampLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return time.Time{}
		}
	}
	return t.UTC()
}

type userRow struct {
	ID        models.UserID `json:"id"`
	Email     string        `json:"email"`
	Name      string        `json:"name"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
}

func (r userRow) model() *models.User {
	return &models.User{ID: r.ID, Email: r.Email, Name: r.Name, CreatedAt: parseStamp(r.CreatedAt), UpdatedAt: parseStamp(r.UpdatedAt)}
}

type baseRow struct {
	ID        models.BaseID `json:"id"`
	Name      string        `json:"name"`
	OwnerID   models.UserID `json:"owner_id"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
}

func (r baseRow) model() *models.Base {
	return &models.Base{ID: r.ID, Name: r.Name, OwnerID: r.OwnerID, CreatedAt: parseStamp(r.CreatedAt), UpdatedAt: parseStamp(r.UpdatedAt)}
}

type tableRow struct {
	ID        models.TableID `json:"id"`
	Name      string         `json:"name"`
	BaseID    models.BaseID  `json:"base_id"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

func (r tableRow) model() *models.Table {
	return &models.Table{ID: r.ID, Name: r.Name, BaseID: r.BaseID, CreatedAt: parseStamp(r.CreatedAt), UpdatedAt: parseStamp(r.UpdatedAt)}
}

type fieldRow struct {
	ID        models.FieldID   `json:"id"`
	Name      string           `json:"name"`
	Type      models.FieldType `json:"type"`
	Position  int              `json:"position"`
	TableID   models.TableID   `json:"table_id"`
	CreatedAt string           `json:"created_at"`
	UpdatedAt string           `json:"updated_at"`
}

func (r fieldRow) model() *models.Field {
	return &models.Field{ID: r.ID, Name: r.Name, Type: r.Type, Order: r.Position, TableID: r.TableID, CreatedAt: parseStamp(r.CreatedAt), UpdatedAt: parseStamp(r.UpdatedAt)}
}

type recordRow struct {
	ID        models.RecordID `json:"id"`
	TableID   models.TableID  `json:"table_id"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

func (r recordRow) model() *models.Record {
	return &models.Record{ID: r.ID, TableID: r.TableID, CellValues: []models.CellValue{}, CreatedAt: parseStamp(r.CreatedAt), UpdatedAt: parseStamp(r.UpdatedAt)}
}

type cellRow struct {
	ID          models.CellValueID `json:"id"`
	RecordID    models.RecordID    `json:"record_id"`
	FieldID     models.FieldID     `json:"field_id"`
	TableID     models.TableID     `json:"table_id"`
	TextValue   *string            `json:"text_value"`
	NumberValue *float64           `json:"number_value"`
	CreatedAt   string             `json:"created_at"`
	UpdatedAt   string             `json:"updated_at"`
}

func (r cellRow) model() models.CellValue {
	return models.CellValue{
		ID:          r.ID,
		RecordID:    r.RecordID,
		FieldID:     r.FieldID,
		TextValue:   r.TextValue,
		NumberValue: r.NumberValue,
		CreatedAt:   parseStamp(r.CreatedAt),
		UpdatedAt:   parseStamp(r.UpdatedAt),
	}
}

type viewRow struct {
	ID           models.ViewID  `json:"id"`
	Name         string         `json:"name"`
	TableID      models.TableID `json:"table_id"`
	Filters      string         `json:"filters"`
	Sorts        string         `json:"sorts"`
	HiddenFields string         `json:"hidden_fields"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
}

func (r viewRow) model() *models.View {
	return &models.View{
		ID:           r.ID,
		Name:         r.Name,
		TableID:      r.TableID,
		Filters:      r.Filters,
		Sorts:        r.Sorts,
		HiddenFields: r.HiddenFields,
		CreatedAt:    parseStamp(r.CreatedAt),
		UpdatedAt:    parseStamp(r.UpdatedAt),
	}
}

// attach groups cells under their records, preserving record order.
func attach(records []recordRow, cells []cellRow) []*models.Record {
	out := make([]*models.Record, len(records))
	byID := make(map[models.RecordID]*models.Record, len(records))
	for i, r := range records {
		out[i] = r.model()
		byID[r.ID] = out[i]
	}
	for _, c := range cells {
		if rec, ok := byID[c.RecordID]; ok {
			rec.CellValues = append(rec.CellValues, c.model())
		}
	}
	return out
}

func one[T any](rows []T, what string, id fmt.Stringer) (*T, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows) > 1 {
		return nil, fmt.Errorf("expected one %s %s, got %d", what, id, len(rows))
	}
	return &rows[0], nil
}
