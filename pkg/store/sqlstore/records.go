package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

// sqliteCellBatchSize keeps one cell INSERT under SQLite's 32766 bound-parameter cap.
const sqliteCellBatchSize = 4000

// ListRecords returns one page of records with their cell values.
func (s *SQLStore) ListRecords(ctx context.Context, q store.RecordQuery) (*store.RecordPage, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var table models.Table
	if found, err := first(db.Select("id"), &table, "id = ?", q.TableID); !found {
		if err != nil {
			return nil, err
		}
		return nil, store.NotFoundf("table %s", q.TableID)
	}
	fields, err := s.ListFields(ctx, q.TableID)
	if err != nil {
		return nil, err
	}
	idx := store.NewFieldIndex(fields)
	filters, sorts := idx.Applicable(q)

	scoped := func() *gorm.DB {
		tx := db.Model(&models.Record{}).Where("records.table_id = ?", q.TableID)
		if q.Search != "" {
			cond, args := searchClause(q.Search)
			tx = tx.Where(cond, args...)
		}
		for _, f := range filters {
			cond, args := filterClause(idx[f.FieldID], f)
			tx = tx.Where(cond, args...)
		}
		return tx
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	tx := scoped().Select("records.*")
	for i, st := range sorts {
		alias := fmt.Sprintf("s%d", i)
		col := alias + ".text_value"
		if idx[st.FieldID].Type == models.FieldTypeNumber {
			col = alias + ".number_value"
		}
		dir := "ASC"
		if st.Direction == models.SortDesc {
			dir = "DESC"
		}
		tx = tx.
			Joins(fmt.Sprintf("LEFT JOIN cell_values %s ON %s.record_id = records.id AND %s.field_id = ?", alias, alias, alias), st.FieldID).
			Order(fmt.Sprintf("CASE WHEN %s IS NULL THEN 1 ELSE 0 END", col)).
			Order(col + " " + dir)
	}

	records := []*models.Record{}
	err = tx.
		Order("records.created_at DESC").
		Order("records.id DESC").
		Offset(q.Cursor).
		Limit(q.Limit + 1).
		Preload("CellValues").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	page := &store.RecordPage{Records: records, TotalCount: int(total)}
	if len(records) > q.Limit {
		page.Records = records[:q.Limit]
		next := q.Cursor + q.Limit
		page.NextCursor = &next
	}
	return page, nil
}

const cellExists = "EXISTS (SELECT 1 FROM cell_values cv WHERE cv.record_id = records.id AND cv.field_id = ? AND %s)"

// likePattern escapes LIKE wildcards with '!' and wraps term for a substring match.
func likePattern(term string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}

func searchClause(term string) (string, []any) {
	cond := "LOWER(cv.text_value) LIKE ? ESCAPE '!'"
	args := []any{likePattern(term)}
	if n, ok := store.ParseNumber(term); ok {
		cond = "(" + cond + " OR cv.number_value = ?)"
		args = append(args, n)
	}
	return "EXISTS (SELECT 1 FROM cell_values cv WHERE cv.record_id = records.id AND " + cond + ")", args
}

func filterClause(field *models.Field, f models.Filter) (string, []any) {
	exists := func(cond string, args ...any) (string, []any) {
		return fmt.Sprintf(cellExists, cond), append([]any{field.ID}, args...)
	}
	not := func(cond string, args []any) (string, []any) {
		return "NOT (" + cond + ")", args
	}
	empty := func() (string, []any) {
		if field.Type == models.FieldTypeNumber {
			return not(exists("cv.number_value IS NOT NULL"))
		}
		return not(exists("cv.text_value IS NOT NULL AND cv.text_value <> ''"))
	}
	never := func() (string, []any) { return "1 = 0", nil }
	always := func() (string, []any) { return "1 = 1", nil }

	var equals, contains func() (string, []any)
	var compare func(op string) (string, []any)
	if field.Type == models.FieldTypeNumber {
		n, ok := store.ParseNumber(f.Value)
		equals = func() (string, []any) {
			switch {
			case f.Value == "":
				return empty()
			case !ok:
				return never()
			}
			return exists("cv.number_value = ?", n)
		}
		contains = func() (string, []any) {
			if f.Value == "" {
				return always()
			}
			return equals()
		}
		compare = func(op string) (string, []any) {
			if !ok {
				return never()
			}
			return exists("cv.number_value "+op+" ?", n)
		}
	} else {
		equals = func() (string, []any) {
			if f.Value == "" {
				return empty()
			}
			return exists("LOWER(cv.text_value) = ?", strings.ToLower(f.Value))
		}
		contains = func() (string, []any) {
			if f.Value == "" {
				return always()
			}
			return exists("LOWER(cv.text_value) LIKE ? ESCAPE '!'", likePattern(f.Value))
		}
		compare = func(op string) (string, []any) {
			return exists("cv.text_value "+op+" ?", f.Value)
		}
	}

	switch f.Operator {
	case models.OpContains:
		return contains()
	case models.OpNotContains:
		return not(contains())
	case models.OpEquals:
		return equals()
	case models.OpNotEquals:
		return not(equals())
	case models.OpEmpty:
		return empty()
	case models.OpNotEmpty:
		return not(empty())
	case models.OpGreaterThan:
		return compare(">")
	case models.OpLessThan:
		return compare("<")
	}
	return never()
}

func (s *SQLStore) CreateRecord(ctx context.Context, record *models.Record) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var table models.Table
		if found, err := first(tx.Select("id"), &table, "id = ?", record.TableID); !found {
			if err != nil {
				return err
			}
			return store.NotFoundf("table %s", record.TableID)
		}
		record.CellValues = []models.CellValue{}
		return tx.Omit(clause.Associations).Create(record).Error
	})
}

func (s *SQLStore) GetRecord(ctx context.Context, id models.RecordID) (*models.Record, error) {
	var record models.Record
	found, err := first(s.db.WithContext(ctx).Preload("CellValues"), &record, "id = ?", id)
	if !found {
		return nil, err
	}
	return &record, nil
}

func (s *SQLStore) DeleteRecord(ctx context.Context, id models.RecordID) (*models.Record, error) {
	var record models.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := first(tx.Preload("CellValues"), &record, "id = ?", id)
		if err != nil {
			return err
		}
		if !found {
			return store.NotFoundf("record %s", id)
		}
		if err := tx.Where("record_id = ?", id).Delete(&models.CellValue{}).Error; err != nil {
			return fmt.Errorf("failed to delete cell values: %w", err)
		}
		return tx.Delete(&models.Record{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// CreateRecordsBulk inserts records in batches of store.RecordBatchSize and their cells
// in batches of store.CellBatchSize, all in one transaction.
func (s *SQLStore) CreateRecordsBulk(ctx context.Context, tableID models.TableID, count int, gen store.CellGenerator) (int, error) {
	count, err := store.ValidateBulkCount(count)
	if err != nil {
		return 0, err
	}
	fields, err := s.ListFields(ctx, tableID)
	if err != nil {
		return 0, err
	}
	cellBatch := store.CellBatchSize
	if s.dialect == DialectSQLite {
		cellBatch = sqliteCellBatchSize
	}

	start := time.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var table models.Table
		if found, err := first(tx.Select("id"), &table, "id = ?", tableID); !found {
			if err != nil {
				return err
			}
			return store.NotFoundf("table %s", tableID)
		}

		for offset := 0; offset < count; offset += store.RecordBatchSize {
			n := min(store.RecordBatchSize, count-offset)
			records := make([]models.Record, n)
			cells := make([]models.CellValue, 0, n*len(fields))
			for i := range records {
				at := start.Add(time.Duration(offset+i) * time.Microsecond)
				records[i] = models.Record{ID: models.NewRecordID(), TableID: tableID, CreatedAt: at, UpdatedAt: at}
				for _, f := range fields {
					text, number := gen.Cell(f)
					text, number = store.NormalizeCell(f.Type, text, number)
					cells = append(cells, models.CellValue{
						ID:          models.CellValueIDFor(records[i].ID, f.ID),
						RecordID:    records[i].ID,
						FieldID:     f.ID,
						TextValue:   text,
						NumberValue: number,
						CreatedAt:   at,
						UpdatedAt:   at,
					})
				}
			}
			if err := tx.Omit(clause.Associations).CreateInBatches(records, store.RecordBatchSize).Error; err != nil {
				return fmt.Errorf("failed to insert records: %w", err)
			}
			if len(cells) > 0 {
				if err := tx.CreateInBatches(cells, cellBatch).Error; err != nil {
					return fmt.Errorf("failed to insert cell values: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Cell value operations

func (s *SQLStore) GetCellValue(ctx context.Context, recordID models.RecordID, fieldID models.FieldID) (*models.CellValue, error) {
	var cell models.CellValue
	found, err := first(s.db.WithContext(ctx), &cell, "record_id = ? AND field_id = ?", recordID, fieldID)
	if !found {
		return nil, err
	}
	return &cell, nil
}

func (s *SQLStore) ListCellValues(ctx context.Context, recordIDs []models.RecordID) ([]*models.CellValue, error) {
	cells := []*models.CellValue{}
	if len(recordIDs) == 0 {
		return cells, nil
	}
	err := s.db.WithContext(ctx).Where("record_id IN ?", recordIDs).Find(&cells).Error
	return cells, err
}

// UpsertCellValue writes the cell with ON CONFLICT (record_id, field_id) DO UPDATE,
// which MySQL's dialect renders as ON DUPLICATE KEY UPDATE.
func (s *SQLStore) UpsertCellValue(ctx context.Context, w store.CellWrite) (*models.CellValue, error) {
	var cell models.CellValue
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var field models.Field
		if found, err := first(tx, &field, "id = ?", w.FieldID); !found {
			if err != nil {
				return err
			}
			return store.NotFoundf("field %s", w.FieldID)
		}
		var record models.Record
		if found, err := first(tx.Select("id", "table_id"), &record, "id = ?", w.RecordID); !found {
			if err != nil {
				return err
			}
			return store.NotFoundf("record %s", w.RecordID)
		}
		if record.TableID != field.TableID {
			return store.Invalid("field_id", "field does not belong to the record's table")
		}

		text, number := store.NormalizeCell(field.Type, w.TextValue, w.NumberValue)
		now := time.Now().UTC()
		cell = models.CellValue{
			ID:          models.CellValueIDFor(w.RecordID, w.FieldID),
			RecordID:    w.RecordID,
			FieldID:     w.FieldID,
			TextValue:   text,
			NumberValue: number,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_id"}, {Name: "field_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"text_value", "number_value", "updated_at"}),
		}).Create(&cell).Error
		if err != nil {
			return fmt.Errorf("failed to upsert cell value: %w", err)
		}
		return tx.First(&cell, "record_id = ? AND field_id = ?", w.RecordID, w.FieldID).Error
	})
	if err != nil {
		return nil, err
	}
	return &cell, nil
}
