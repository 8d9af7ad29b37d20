// Package sqlstore provides the relational implementation of the
// [github.com/surrealdb/surrealgrid/pkg/store.Store] interface using GORM.
//
// One implementation serves three dialects:
//
//   - PostgreSQL through gorm.io/driver/postgres, using pgx by default or lib/pq when
//     [Config.PostgresDriver] is "pq"
//   - MySQL through gorm.io/driver/mysql (go-sql-driver/mysql)
//   - SQLite through github.com/glebarez/sqlite, a pure Go driver that needs no cgo;
//     used for local runs and for tests
//
// # Record Paging in SQL
//
// [SQLStore.ListRecords] expresses the whole query in SQL so that paging stays
// set-based however large the table grows:
//
//   - each filter becomes an EXISTS (or NOT EXISTS) subquery on cell_values
//   - each sort becomes a LEFT JOIN on the sorted field's cell with a NULLs-last
//     ordering expression, followed by created_at DESC, id DESC as a stable tiebreak
//   - the page is read with OFFSET cursor and LIMIT limit+1; the extra row only
//     signals that another page exists
//
// The semantics match [github.com/surrealdb/surrealgrid/pkg/store.Matches] and
// [github.com/surrealdb/surrealgrid/pkg/store.Less], which the SurrealDB backend
// evaluates in memory.
//
// # Cascades
//
// Deletes cascade explicitly inside one transaction (base, then tables, then fields,
// records, cell values and views) instead of relying on database foreign keys, so all
// dialects behave the same.
//
// # Usage Example
//
//	st, err := sqlstore.Open(sqlstore.Config{Dialect: sqlstore.DialectSQLite, DSN: "grid.db"})
//	if err != nil {
//		return err
//	}
//	defer st.Close()
//	if err := st.Migrate(ctx); err != nil {
//		return err
//	}
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

// Dialect names a supported SQL database.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// Config selects and configures the SQL database.
type Config struct {
	Dialect Dialect
	DSN     string
	// PostgresDriver is "pgx" (default) or "pq".
	PostgresDriver string
	// LogQueries enables GORM's statement logger.
	LogQueries bool
}

// SQLStore implements the Store interface on top of GORM.
type SQLStore struct {
	db      *gorm.DB
	dialect Dialect
}

var _ store.Store = (*SQLStore)(nil)

// Open connects to the configured database.
func Open(cfg Config) (*SQLStore, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	logMode := gormlogger.Silent
	if cfg.LogQueries {
		logMode = gormlogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(logMode),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Dialect, err)
	}

	if cfg.Dialect == DialectSQLite {
		// SQLite allows a single writer; in-memory databases also live per connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return &SQLStore{db: db, dialect: cfg.Dialect}, nil
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch cfg.Dialect {
	case DialectPostgres:
		switch cfg.PostgresDriver {
		case "", "pgx":
			return postgres.Open(cfg.DSN), nil
		case "pq":
			conn, err := sql.Open("postgres", cfg.DSN)
			if err != nil {
				return nil, fmt.Errorf("failed to open lib/pq connection: %w", err)
			}
			return postgres.New(postgres.Config{Conn: conn}), nil
		default:
			return nil, fmt.Errorf("unknown postgres driver: %s (must be 'pgx' or 'pq')", cfg.PostgresDriver)
		}
	case DialectMySQL:
		return mysql.Open(cfg.DSN), nil
	case DialectSQLite:
		return sqlite.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("unknown SQL dialect: %s", cfg.Dialect)
}

// Dialect reports which database the store talks to.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Migrate creates missing tables, columns and indexes with AutoMigrate.
// It only adds schema elements and is safe to run repeatedly.
func (s *SQLStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.Base{},
		&models.Table{},
		&models.Field{},
		&models.Record{},
		&models.CellValue{},
		&models.View{},
	)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// first loads one row into dst, returning found == false instead of an error for a miss.
func first(db *gorm.DB, dst any, query string, args ...any) (found bool, err error) {
	err = db.First(dst, append([]any{query}, args...)...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

// User operations

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" {
		return store.Invalid("email", "must not be empty")
	}
	return s.db.WithContext(ctx).Create(user).Error
}

func (s *SQLStore) GetUser(ctx context.Context, id models.UserID) (*models.User, error) {
	var user models.User
	found, err := first(s.db.WithContext(ctx), &user, "id = ?", id)
	if !found {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	found, err := first(s.db.WithContext(ctx), &user, "email = ?", strings.ToLower(strings.TrimSpace(email)))
	if !found {
		return nil, err
	}
	return &user, nil
}

// Base operations

func (s *SQLStore) CreateBase(ctx context.Context, base *models.Base) error {
	name, err := store.ValidateName("name", base.Name)
	if err != nil {
		return err
	}
	base.Name = name
	return s.db.WithContext(ctx).Create(base).Error
}

func (s *SQLStore) GetBase(ctx context.Context, id models.BaseID) (*models.Base, error) {
	var base models.Base
	found, err := first(s.db.WithContext(ctx), &base, "id = ?", id)
	if !found {
		return nil, err
	}
	return &base, nil
}

func (s *SQLStore) ListBases(ctx context.Context, ownerID models.UserID) ([]*models.Base, error) {
	bases := []*models.Base{}
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Find(&bases).Error
	return bases, err
}

func (s *SQLStore) DeleteBase(ctx context.Context, id models.BaseID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tableIDs []models.TableID
		if err := tx.Model(&models.Table{}).Where("base_id = ?", id).Pluck("id", &tableIDs).Error; err != nil {
			return err
		}
		for _, tableID := range tableIDs {
			if err := deleteTable(tx, tableID); err != nil {
				return err
			}
		}
		res := tx.Delete(&models.Base{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.NotFoundf("base %s", id)
		}
		return nil
	})
}

// Table operations

func (s *SQLStore) CreateTable(ctx context.Context, table *models.Table) error {
	name, err := store.ValidateName("name", table.Name)
	if err != nil {
		return err
	}
	table.Name = name
	if table.ID.IsZero() {
		table.ID = models.NewTableID()
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var base models.Base
		if found, err := first(tx.Select("id"), &base, "id = ?", table.BaseID); !found {
			if err != nil {
				return err
			}
			return store.NotFoundf("base %s", table.BaseID)
		}
		if err := tx.Omit(clause.Associations).Create(table).Error; err != nil {
			return err
		}
		fields := store.DefaultFields(table.ID)
		if err := tx.Create(&fields).Error; err != nil {
			return fmt.Errorf("failed to create default fields: %w", err)
		}
		table.Fields = fields
		return nil
	})
}

func (s *SQLStore) GetTable(ctx context.Context, id models.TableID) (*models.Table, error) {
	var table models.Table
	db := s.db.WithContext(ctx).Preload("Fields", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
	found, err := first(db, &table, "id = ?", id)
	if !found {
		return nil, err
	}
	return &table, nil
}

func (s *SQLStore) ListTables(ctx context.Context, baseID models.BaseID) ([]*models.Table, error) {
	tables := []*models.Table{}
	err := s.db.WithContext(ctx).
		Where("base_id = ?", baseID).
		Order("updated_at DESC").
		Find(&tables).Error
	return tables, err
}

func (s *SQLStore) DeleteTable(ctx context.Context, id models.TableID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteTable(tx, id)
	})
}

func deleteTable(tx *gorm.DB, id models.TableID) error {
	recordIDs := tx.Model(&models.Record{}).Select("id").Where("table_id = ?", id)
	if err := tx.Where("record_id IN (?)", recordIDs).Delete(&models.CellValue{}).Error; err != nil {
		return fmt.Errorf("failed to delete cell values: %w", err)
	}
	if err := tx.Where("table_id = ?", id).Delete(&models.Record{}).Error; err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	if err := tx.Where("table_id = ?", id).Delete(&models.Field{}).Error; err != nil {
		return fmt.Errorf("failed to delete fields: %w", err)
	}
	if err := tx.Where("table_id = ?", id).Delete(&models.View{}).Error; err != nil {
		return fmt.Errorf("failed to delete views: %w", err)
	}
	res := tx.Delete(&models.Table{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.NotFoundf("table %s", id)
	}
	return nil
}

// Field operations

func (s *SQLStore) CreateField(ctx context.Context, field *models.Field) error {
	name, err := store.ValidateName("name", field.Name)
	if err != nil {
		return err
	}
	if err := store.ValidateFieldType(field.Type); err != nil {
		return err
	}
	field.Name = name

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var table models.Table
		if found, err := first(tx.Select("id"), &table, "id = ?", field.TableID); !found {
			if err != nil {
				return err
			}
			return store.NotFoundf("table %s", field.TableID)
		}
		var last sql.NullInt64
		err := tx.Model(&models.Field{}).
			Where("table_id = ?", field.TableID).
			Select("MAX(position)").
			Scan(&last).Error
		if err != nil {
			return err
		}
		field.Order = 0
		if last.Valid {
			field.Order = int(last.Int64) + 1
		}
		return tx.Create(field).Error
	})
}

func (s *SQLStore) GetField(ctx context.Context, id models.FieldID) (*models.Field, error) {
	var field models.Field
	found, err := first(s.db.WithContext(ctx), &field, "id = ?", id)
	if !found {
		return nil, err
	}
	return &field, nil
}

func (s *SQLStore) ListFields(ctx context.Context, tableID models.TableID) ([]*models.Field, error) {
	fields := []*models.Field{}
	err := s.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("position ASC").
		Find(&fields).Error
	return fields, err
}

func (s *SQLStore) RenameField(ctx context.Context, id models.FieldID, name string) (*models.Field, error) {
	name, err := store.ValidateName("name", name)
	if err != nil {
		return nil, err
	}
	res := s.db.WithContext(ctx).Model(&models.Field{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, store.NotFoundf("field %s", id)
	}
	return s.GetField(ctx, id)
}

func (s *SQLStore) DeleteField(ctx context.Context, id models.FieldID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("field_id = ?", id).Delete(&models.CellValue{}).Error; err != nil {
			return fmt.Errorf("failed to delete cell values: %w", err)
		}
		res := tx.Delete(&models.Field{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.NotFoundf("field %s", id)
		}
		return nil
	})
}

// View operations

func (s *SQLStore) CreateView(ctx context.Context, view *models.View) error {
	name, err := store.ValidateName("name", view.Name)
	if err != nil {
		return err
	}
	view.Name = name
	normalizeView(view)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var table models.Table
		if found, err := first(tx.Select("id"), &table, "id = ?", view.TableID); !found {
			if err != nil {
				return err
			}
			return store.NotFoundf("table %s", view.TableID)
		}
		return tx.Create(view).Error
	})
}

func (s *SQLStore) GetView(ctx context.Context, id models.ViewID) (*models.View, error) {
	var view models.View
	found, err := first(s.db.WithContext(ctx), &view, "id = ?", id)
	if !found {
		return nil, err
	}
	return &view, nil
}

func (s *SQLStore) ListViews(ctx context.Context, tableID models.TableID) ([]*models.View, error) {
	views := []*models.View{}
	err := s.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("created_at DESC").
		Find(&views).Error
	return views, err
}

func (s *SQLStore) UpdateView(ctx context.Context, view *models.View) error {
	name, err := store.ValidateName("name", view.Name)
	if err != nil {
		return err
	}
	view.Name = name
	normalizeView(view)
	view.UpdatedAt = time.Now().UTC()

	res := s.db.WithContext(ctx).Model(&models.View{}).Where("id = ?", view.ID).Updates(map[string]any{
		"name":          view.Name,
		"filters":       view.Filters,
		"sorts":         view.Sorts,
		"hidden_fields": view.HiddenFields,
		"updated_at":    view.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.NotFoundf("view %s", view.ID)
	}
	return nil
}

func (s *SQLStore) DeleteView(ctx context.Context, id models.ViewID) error {
	res := s.db.WithContext(ctx).Delete(&models.View{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.NotFoundf("view %s", id)
	}
	return nil
}

// normalizeView re-encodes the presets so that only valid entries are stored.
func normalizeView(view *models.View) {
	view.Filters = models.EncodeList(models.ParseFilters(view.Filters))
	view.Sorts = models.EncodeList(models.ParseSorts(view.Sorts))
	view.HiddenFields = models.EncodeList(models.ParseHiddenFields(view.HiddenFields))
}

// Ownership

type ownerRow struct {
	OwnerID models.UserID
}

func (s *SQLStore) owner(ctx context.Context, what string, id any, from string, joins ...string) (models.UserID, error) {
	var row ownerRow
	q := s.db.WithContext(ctx).Table(from).Select("bases.owner_id AS owner_id")
	for _, j := range joins {
		q = q.Joins(j)
	}
	if err := q.Where(from+".id = ?", id).Limit(1).Scan(&row).Error; err != nil {
		return models.UserID{}, err
	}
	if row.OwnerID.IsZero() {
		return models.UserID{}, store.NotFoundf("%s %v", what, id)
	}
	return row.OwnerID, nil
}

const (
	joinTableBase  = "JOIN bases ON bases.id = tables.base_id"
	joinFieldTable = "JOIN tables ON tables.id = fields.table_id"
)

func (s *SQLStore) OwnerOfBase(ctx context.Context, id models.BaseID) (models.UserID, error) {
	return s.owner(ctx, "base", id, "bases")
}

func (s *SQLStore) OwnerOfTable(ctx context.Context, id models.TableID) (models.UserID, error) {
	return s.owner(ctx, "table", id, "tables", joinTableBase)
}

func (s *SQLStore) OwnerOfField(ctx context.Context, id models.FieldID) (models.UserID, error) {
	return s.owner(ctx, "field", id, "fields", joinFieldTable, joinTableBase)
}

func (s *SQLStore) OwnerOfRecord(ctx context.Context, id models.RecordID) (models.UserID, error) {
	return s.owner(ctx, "record", id, "records", "JOIN tables ON tables.id = records.table_id", joinTableBase)
}

func (s *SQLStore) OwnerOfView(ctx context.Context, id models.ViewID) (models.UserID, error) {
	return s.owner(ctx, "view", id, "views", "JOIN tables ON tables.id = views.table_id", joinTableBase)
}
