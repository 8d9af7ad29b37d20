package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

type countRow struct {
	N int `json:"n"`
}

// ListRecords returns one page of records with their cell values.
func (s *SurrealStore) ListRecords(ctx context.Context, q store.RecordQuery) (*store.RecordPage, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}
	tables, err := query[[]tableRow](ctx, s.db, `SELECT * FROM $id`, map[string]any{"id": q.TableID})
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	if len(tables) == 0 {
		return nil, store.NotFoundf("table %s", q.TableID)
	}
	fields, err := s.ListFields(ctx, q.TableID)
	if err != nil {
		return nil, err
	}
	idx := store.NewFieldIndex(fields)
	filters, sorts := idx.Applicable(q)

	if q.Search == "" && len(filters) == 0 && len(sorts) == 0 {
		return s.listRecordsNatural(ctx, q)
	}

	// Search, filters and sorts run in Go over the whole table, so every page reads
	// every record and cell of the table. Cost grows with table size, not page size.
	// TODO: push filters and single-field sorts into SurrealQL once cells are queried
	// per field.
	records, err := query[[]recordRow](ctx, s.db, `SELECT * FROM records WHERE table_id = $table`, map[string]any{
		"table": q.TableID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	cells, err := query[[]cellRow](ctx, s.db, `SELECT * FROM cell_values WHERE table_id = $table`, map[string]any{
		"table": q.TableID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cell values: %w", err)
	}
	return store.PageOf(attach(records, cells), idx, q), nil
}

// listRecordsNatural pages in the default order entirely inside SurrealDB.
func (s *SurrealStore) listRecordsNatural(ctx context.Context, q store.RecordQuery) (*store.RecordPage, error) {
	vars := map[string]any{
		"table":  q.TableID,
		"limit":  q.Limit + 1,
		"cursor": q.Cursor,
	}
	counts, err := query[[]countRow](ctx, s.db, `SELECT count() AS n FROM records WHERE table_id = $table GROUP ALL`, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	records, err := query[[]recordRow](ctx, s.db,
		`SELECT * FROM records WHERE table_id = $table ORDER BY created_at DESC, id DESC LIMIT $limit START $cursor`, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	page := &store.RecordPage{Records: []*models.Record{}}
	if len(counts) > 0 {
		page.TotalCount = counts[0].N
	}
	if len(records) > q.Limit {
		records = records[:q.Limit]
		next := q.Cursor + q.Limit
		page.NextCursor = &next
	}
	if len(records) == 0 {
		return page, nil
	}

	ids := make([]models.RecordID, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	cells, err := s.cellsOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	page.Records = attach(records, cells)
	return page, nil
}

func (s *SurrealStore) cellsOf(ctx context.Context, ids []models.RecordID) ([]cellRow, error) {
	cells, err := query[[]cellRow](ctx, s.db, `SELECT * FROM cell_values WHERE record_id IN $ids`, map[string]any{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("failed to list cell values: %w", err)
	}
	return cells, nil
}

func (s *SurrealStore) CreateRecord(ctx context.Context, record *models.Record) error {
	tables, err := query[[]tableRow](ctx, s.db, `SELECT * FROM $id`, map[string]any{"id": record.TableID})
	if err != nil {
		return fmt.Errorf("failed to get table: %w", err)
	}
	if len(tables) == 0 {
		return store.NotFoundf("table %s", record.TableID)
	}
	if record.ID.IsZero() {
		record.ID = models.NewRecordID()
	}
	now := time.Now().UTC()
	record.CreatedAt, record.UpdatedAt = now, now
	record.CellValues = []models.CellValue{}
	err = s.exec(ctx, `CREATE $id CONTENT { table_id: $table, created_at: $now, updated_at: $now }`, map[string]any{
		"id":    record.ID,
		"table": record.TableID,
		"now":   stamp(now),
	})
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

func (s *SurrealStore) GetRecord(ctx context.Context, id models.RecordID) (*models.Record, error) {
	rows, err := query[[]recordRow](ctx, s.db, `SELECT * FROM $id`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	row, err := one(rows, "record", id)
	if row == nil {
		return nil, err
	}
	cells, err := s.cellsOf(ctx, []models.RecordID{id})
	if err != nil {
		return nil, err
	}
	return attach([]recordRow{*row}, cells)[0], nil
}

func (s *SurrealStore) DeleteRecord(ctx context.Context, id models.RecordID) (*models.Record, error) {
	record, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, store.NotFoundf("record %s", id)
	}
	err = s.exec(ctx, `
		BEGIN TRANSACTION;
		DELETE cell_values WHERE record_id = $id;
		DELETE $id;
		COMMIT TRANSACTION;
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to delete record: %w", err)
	}
	return record, nil
}

// CreateRecordsBulk inserts records and cells with INSERT batches of
// store.RecordBatchSize and store.CellBatchSize rows.
// Batches are committed one by one; a failure leaves earlier batches in place.
func (s *SurrealStore) CreateRecordsBulk(ctx context.Context, tableID models.TableID, count int, gen store.CellGenerator) (int, error) {
	count, err := store.ValidateBulkCount(count)
	if err != nil {
		return 0, err
	}
	tables, err := query[[]tableRow](ctx, s.db, `SELECT * FROM $id`, map[string]any{"id": tableID})
	if err != nil {
		return 0, fmt.Errorf("failed to get table: %w", err)
	}
	if len(tables) == 0 {
		return 0, store.NotFoundf("table %s", tableID)
	}
	fields, err := s.ListFields(ctx, tableID)
	if err != nil {
		return 0, err
	}

	start := time.Now().UTC()
	inserted := 0
	for offset := 0; offset < count; offset += store.RecordBatchSize {
		n := min(store.RecordBatchSize, count-offset)
		records := make([]map[string]any, n)
		cells := make([]map[string]any, 0, n*len(fields))
		for i := range records {
			id := models.NewRecordID()
			at := stamp(start.Add(time.Duration(offset+i) * time.Microsecond))
			records[i] = map[string]any{"id": id, "table_id": tableID, "created_at": at, "updated_at": at}
			for _, f := range fields {
				text, number := gen.Cell(f)
				text, number = store.NormalizeCell(f.Type, text, number)
				cells = append(cells, map[string]any{
					"id":           models.CellValueIDFor(id, f.ID),
					"record_id":    id,
					"field_id":     f.ID,
					"table_id":     tableID,
					"text_value":   text,
					"number_value": number,
					"created_at":   at,
					"updated_at":   at,
				})
			}
		}

		if err := s.exec(ctx, `INSERT INTO records $rows RETURN NONE`, map[string]any{"rows": records}); err != nil {
			return inserted, fmt.Errorf("failed to insert records: %w", err)
		}
		for c := 0; c < len(cells); c += store.CellBatchSize {
			batch := cells[c:min(c+store.CellBatchSize, len(cells))]
			if err := s.exec(ctx, `INSERT INTO cell_values $rows RETURN NONE`, map[string]any{"rows": batch}); err != nil {
				return inserted, fmt.Errorf("failed to insert cell values: %w", err)
			}
		}
		inserted += n
	}
	return inserted, nil
}

// Cell value operations

func (s *SurrealStore) GetCellValue(ctx context.Context, recordID models.RecordID, fieldID models.FieldID) (*models.CellValue, error) {
	id := models.CellValueIDFor(recordID, fieldID)
	rows, err := query[[]cellRow](ctx, s.db, `SELECT * FROM $id`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get cell value: %w", err)
	}
	row, err := one(rows, "cell value", id)
	if row == nil {
		return nil, err
	}
	cv := row.model()
	return &cv, nil
}

func (s *SurrealStore) ListCellValues(ctx context.Context, recordIDs []models.RecordID) ([]*models.CellValue, error) {
	out := []*models.CellValue{}
	if len(recordIDs) == 0 {
		return out, nil
	}
	rows, err := s.cellsOf(ctx, recordIDs)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		cv := r.model()
		out = append(out, &cv)
	}
	return out, nil
}

// UpsertCellValue writes to the cell's deterministic ID, keeping created_at of an
// existing value.
func (s *SurrealStore) UpsertCellValue(ctx context.Context, w store.CellWrite) (*models.CellValue, error) {
	field, err := s.GetField(ctx, w.FieldID)
	if err != nil {
		return nil, err
	}
	if field == nil {
		return nil, store.NotFoundf("field %s", w.FieldID)
	}
	records, err := query[[]recordRow](ctx, s.db, `SELECT * FROM $id`, map[string]any{"id": w.RecordID})
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	if len(records) == 0 {
		return nil, store.NotFoundf("record %s", w.RecordID)
	}
	if records[0].TableID != field.TableID {
		return nil, store.Invalid("field_id", "field does not belong to the record's table")
	}

	text, number := store.NormalizeCell(field.Type, w.TextValue, w.NumberValue)
	rows, err := query[[]cellRow](ctx, s.db, `UPSERT $id SET
		record_id = $record, field_id = $field, table_id = $table,
		text_value = $text, number_value = $number,
		created_at = created_at ?? $now, updated_at = $now
	RETURN AFTER`, map[string]any{
		"id":     models.CellValueIDFor(w.RecordID, w.FieldID),
		"record": w.RecordID,
		"field":  w.FieldID,
		"table":  field.TableID,
		"text":   text,
		"number": number,
		"now":    stamp(time.Now()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert cell value: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("upsert returned no cell value")
	}
	cv := rows[0].model()
	return &cv, nil
}
