package grid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

// fakeSource serves one table from memory with the store's query semantics.
type fakeSource struct {
	mu        sync.Mutex
	tableID   models.TableID
	fields    []*models.Field
	records   []*models.Record
	clock     time.Time
	listCalls int
	upserts   []store.CellWrite
	listErr   error
	upsertErr error
}

func newFakeSource(n int) *fakeSource {
	tableID := models.NewTableID()
	src := &fakeSource{
		tableID: tableID,
		fields: []*models.Field{
			{ID: models.NewFieldID(), TableID: tableID, Name: "Title", Type: models.FieldTypeText, Order: 0},
			{ID: models.NewFieldID(), TableID: tableID, Name: "Value", Type: models.FieldTypeNumber, Order: 1},
			{ID: models.NewFieldID(), TableID: tableID, Name: "Notes", Type: models.FieldTypeText, Order: 2},
		},
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	src.insert(n)
	return src
}

// insert adds n records newer than every existing one.
func (s *fakeSource) insert(n int) []*models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := make([]*models.Record, n)
	for i := range added {
		s.clock = s.clock.Add(time.Second)
		id := models.NewRecordID()
		title := fmt.Sprintf("row %d", len(s.records))
		value := float64(len(s.records))
		added[i] = &models.Record{
			ID:        id,
			TableID:   s.tableID,
			CreatedAt: s.clock,
			CellValues: []models.CellValue{
				{ID: models.CellValueIDFor(id, s.fields[0].ID), RecordID: id, FieldID: s.fields[0].ID, TextValue: &title},
				{ID: models.CellValueIDFor(id, s.fields[1].ID), RecordID: id, FieldID: s.fields[1].ID, NumberValue: &value},
			},
		}
		s.records = append(s.records, added[i])
	}
	return added
}

func (s *fakeSource) newest() *models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[len(s.records)-1]
}

func (s *fakeSource) setText(rec *models.Record, field *models.Field, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range rec.CellValues {
		if rec.CellValues[i].FieldID == field.ID {
			rec.CellValues[i].TextValue = &text
			return
		}
	}
	rec.CellValues = append(rec.CellValues, models.CellValue{RecordID: rec.ID, FieldID: field.ID, TextValue: &text})
}

func (s *fakeSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

func (s *fakeSource) ListRecords(ctx context.Context, q store.RecordQuery) (*store.RecordPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.listErr != nil {
		return nil, s.listErr
	}
	if q.TableID != s.tableID {
		return nil, store.ErrNotFound
	}
	if err := q.Normalize(); err != nil {
		return nil, err
	}
	return store.PageOf(append([]*models.Record(nil), s.records...), store.NewFieldIndex(s.fields), q), nil
}

func (s *fakeSource) ListFields(ctx context.Context, tableID models.TableID) ([]*models.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tableID != s.tableID {
		return nil, store.ErrNotFound
	}
	return append([]*models.Field(nil), s.fields...), nil
}

func (s *fakeSource) UpsertCell(ctx context.Context, w store.CellWrite) (*models.CellValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, w)
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	cell := models.CellValue{
		ID:          models.CellValueIDFor(w.RecordID, w.FieldID),
		RecordID:    w.RecordID,
		FieldID:     w.FieldID,
		TextValue:   w.TextValue,
		NumberValue: w.NumberValue,
	}
	for i, rec := range s.records {
		if rec.ID != w.RecordID {
			continue
		}
		// Stored records are replaced, not mutated: pages already handed out keep their values.
		next := *rec
		next.CellValues = append([]models.CellValue(nil), rec.CellValues...)
		replaced := false
		for j := range next.CellValues {
			if next.CellValues[j].FieldID == w.FieldID {
				next.CellValues[j] = cell
				replaced = true
			}
		}
		if !replaced {
			next.CellValues = append(next.CellValues, cell)
		}
		s.records[i] = &next
	}
	return &cell, nil
}
