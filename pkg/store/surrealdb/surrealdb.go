// Package surrealdb provides the SurrealDB implementation of the
// [github.com/surrealdb/surrealgrid/pkg/store.Store] interface using native SurrealQL.
//
// # Implementation Strategy
//
// [SurrealStore] talks SurrealQL directly through the SDK's Query function, without an
// ORM. Every statement is parameterized; values never get interpolated into query text.
//
//   - Entities live under deterministic record IDs (bases:⟨uuid⟩, records:⟨uuid⟩, ...).
//     Typed IDs marshal to record links through CBOR, so they can be passed straight
//     in as $parameters and compared against stored foreign keys.
//   - Cell values live under cell_values:⟨uuid⟩ where the UUID is derived from the
//     (record, field) pair. UPSERT on that ID is the (record, field) upsert, with no
//     lookup and no chance of duplicates.
//   - Ownership checks follow record links (table_id.base_id.owner_id) instead of joins.
//   - Cascading deletes run in one BEGIN/COMMIT batch.
//
// # Record Paging
//
// Without search, filters or sorts, ListRecords pushes ORDER BY/LIMIT/START down to
// SurrealDB. Otherwise it loads the table's records and cells and pages them with
// [github.com/surrealdb/surrealgrid/pkg/store.PageOf], which defines the reference
// semantics the SQL backend also follows.
//
// # Requirements
//
// UPSERT needs SurrealDB 2.0 or later.
//
// # Usage Example
//
//	st, err := surrealdb.NewSurrealStore(ctx, surrealdb.Config{
//		URL: "ws://localhost:8000/rpc", Namespace: "surrealgrid", Database: "surrealgrid",
//		Username: "root", Password: "root",
//	})
//	if err != nil {
//		return err
//	}
//	defer st.Close()
package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

// Config holds SurrealDB connection settings.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// SurrealStore implements the Store interface using SurrealDB.
type SurrealStore struct {
	db       *surrealdb.DB
	ns       string
	database string
}

var _ store.Store = (*SurrealStore)(nil)

// NewSurrealStore connects, signs in when credentials are given, and selects the
// namespace and database.
func NewSurrealStore(ctx context.Context, cfg Config) (*SurrealStore, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if cfg.Username != "" && cfg.Password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	return &SurrealStore{
		db:       db,
		ns:       cfg.Namespace,
		database: cfg.Database,
	}, nil
}

// Migrate defines the indexes the store relies on. Tables themselves are created
// implicitly on first write.
func (s *SurrealStore) Migrate(ctx context.Context) error {
	return s.exec(ctx, `
		DEFINE INDEX IF NOT EXISTS users_email ON TABLE users FIELDS email UNIQUE;
		DEFINE INDEX IF NOT EXISTS bases_owner ON TABLE bases FIELDS owner_id;
		DEFINE INDEX IF NOT EXISTS tables_base ON TABLE tables FIELDS base_id;
		DEFINE INDEX IF NOT EXISTS fields_table ON TABLE fields FIELDS table_id;
		DEFINE INDEX IF NOT EXISTS records_table ON TABLE records FIELDS table_id;
		DEFINE INDEX IF NOT EXISTS cell_values_table ON TABLE cell_values FIELDS table_id;
		DEFINE INDEX IF NOT EXISTS cell_values_record_field ON TABLE cell_values FIELDS record_id, field_id UNIQUE;
		DEFINE INDEX IF NOT EXISTS views_table ON TABLE views FIELDS table_id;
	`, nil)
}

// Close closes the database connection
func (s *SurrealStore) Close() error {
	return s.db.Close(context.Background())
}

// query runs sql and returns the result of its last statement.
func query[T any](ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) (T, error) {
	var zero T
	results, err := surrealdb.Query[T](ctx, db, sql, vars)
	if err != nil {
		return zero, err
	}
	if results == nil || len(*results) == 0 {
		return zero, fmt.Errorf("empty response for query")
	}
	for _, r := range *results {
		if r.Status != "OK" {
			return zero, fmt.Errorf("query failed with status %s", r.Status)
		}
	}
	return (*results)[len(*results)-1].Result, nil
}

// exec runs statements whose results are not needed.
func (s *SurrealStore) exec(ctx context.Context, sql string, vars map[string]any) error {
	_, err := query[any](ctx, s.db, sql, vars)
	return err
}

// User operations

func (s *SurrealStore) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" {
		return store.Invalid("email", "must not be empty")
	}
	if user.ID.IsZero() {
		user.ID = models.NewUserID()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	err := s.exec(ctx, `CREATE $id CONTENT { email: $email, name: $name, created_at: $now, updated_at: $now }`, map[string]any{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
		"now":   stamp(now),
	})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *SurrealStore) GetUser(ctx context.Context, id models.UserID) (*models.User, error) {
	rows, err := query[[]userRow](ctx, s.db, `SELECT * FROM $id`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	row, err := one(rows, "user", id)
	if row == nil {
		return nil, err
	}
	return row.model(), nil
}

func (s *SurrealStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	rows, err := query[[]userRow](ctx, s.db, `SELECT * FROM users WHERE email = $email LIMIT 1`, map[string]any{
		"email": strings.ToLower(strings.TrimSpace(email)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].model(), nil
}

// Base operations

func (s *SurrealStore) CreateBase(ctx context.Context, base *models.Base) error {
	name, err := store.ValidateName("name", base.Name)
	if err != nil {
		return err
	}
	base.Name = name
	if base.ID.IsZero() {
		base.ID = models.NewBaseID()
	}
	now := time.Now().UTC()
	base.CreatedAt, base.UpdatedAt = now, now
	err = s.exec(ctx, `CREATE $id CONTENT { name: $name, owner_id: $owner, created_at: $now, updated_at: $now }`, map[string]any{
		"id":    base.ID,
		"name":  base.Name,
		"owner": base.OwnerID,
		"now":   stamp(now),
	})
	if err != nil {
		return fmt.Errorf("failed to create base: %w", err)
	}
	return nil
}

func (s *SurrealStore) GetBase(ctx context.Context, id models.BaseID) (*models.Base, error) {
	rows, err := query[[]baseRow](ctx, s.db, `SELECT * FROM $id`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get base: %w", err)
	}
	row, err := one(rows, "base", id)
	if row == nil {
		return nil, err
	}
	return row.model(), nil
}

func (s *SurrealStore) ListBases(ctx context.Context, ownerID models.UserID) ([]*models.Base, error) {
	rows, err := query[[]baseRow](ctx, s.db, `SELECT * FROM bases WHERE owner_id = $owner ORDER BY updated_at DESC`, map[string]any{
		"owner": ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list bases: %w", err)
	}
	bases := make([]*models.Base, 0, len(rows))
	for _, r := range rows {
		bases = append(bases, r.model())
	}
	return bases, nil
}

func (s *SurrealStore) DeleteBase(ctx context.Context, id models.BaseID) error {
	base, err := s.GetBase(ctx, id)
	if err != nil {
		return err
	}
	if base == nil {
		return store.NotFoundf("base %s", id)
	}
	return s.exec(ctx, `
		BEGIN TRANSACTION;
		LET $tables = (SELECT VALUE id FROM tables WHERE base_id = $id);
		DELETE cell_values WHERE table_id IN $tables;
		DELETE records WHERE table_id IN $tables;
		DELETE fields WHERE table_id IN $tables;
		DELETE views WHERE table_id IN $tables;
		DELETE tables WHERE base_id = $id;
		DELETE $id;
		COMMIT TRANSACTION;
	`, map[string]any{"id": id})
}

// Table operations

func (s *SurrealStore) CreateTable(ctx context.Context, table *models.Table) error {
	name, err := store.ValidateName("name", table.Name)
	if err != nil {
		return err
	}
	table.Name = name
	base, err := s.GetBase(ctx, table.BaseID)
	if err != nil {
		return err
	}
	if base == nil {
		return store.NotFoundf("base %s", table.BaseID)
	}
	if table.ID.IsZero() {
		table.ID = models.NewTableID()
	}
	now := time.Now().UTC()
	table.CreatedAt, table.UpdatedAt = now, now
	fields := store.DefaultFields(table.ID)

	vars := map[string]any{
		"id":   table.ID,
		"name": table.Name,
		"base": table.BaseID,
		"now":  stamp(now),
	}
	stmts := []string{
		"BEGIN TRANSACTION",
		"CREATE $id CONTENT { name: $name, base_id: $base, created_at: $now, updated_at: $now }",
	}
	for i := range fields {
		fields[i].CreatedAt, fields[i].UpdatedAt = now, now
		p := fmt.Sprintf("f%d", i)
		vars[p+"_id"] = fields[i].ID
		vars[p+"_name"] = fields[i].Name
		vars[p+"_type"] = string(fields[i].Type)
		vars[p+"_pos"] = fields[i].Order
		stmts = append(stmts, fmt.Sprintf(
			"CREATE $%[1]s_id CONTENT { name: $%[1]s_name, type: $%[1]s_type, position: $%[1]s_pos, table_id: $id, created_at: $now, updated_at: $now }", p))
	}
	stmts = append(stmts, "COMMIT TRANSACTION")

	if err := s.exec(ctx, strings.Join(stmts, ";\n")+";", vars); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	table.Fields = fields
	return nil
}

func (s *SurrealStore) GetTable(ctx context.Context, id models.TableID) (*models.Table, error) {
	rows, err := query[[]tableRow](ctx, s.db, `SELECT * FROM $id`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	row, err := one(rows, "table", id)
	if row == nil {
		return nil, err
	}
	table := row.model()
	fields, err := s.ListFields(ctx, id)
	if err != nil {
		return nil, err
	}
	table.Fields = make([]models.Field, len(fields))
	for i, f := range fields {
		table.Fields[i] = *f
	}
	return table, nil
}

func (s *SurrealStore) ListTables(ctx context.Context, baseID models.BaseID) ([]*models.Table, error) {
	rows, err := query[[]tableRow](ctx, s.db, `SELECT * FROM tables WHERE base_id = $base ORDER BY updated_at DESC`, map[string]any{
		"base": baseID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	tables := make([]*models.Table, 0, len(rows))
	for _, r := range rows {
		tables = append(tables, r.model())
	}
	return tables, nil
}

func (s *SurrealStore) DeleteTable(ctx context.Context, id models.TableID) error {
	rows, err := query[[]tableRow](ctx, s.db, `SELECT * FROM $id`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("failed to get table: %w", err)
	}
	if len(rows) == 0 {
		return store.NotFoundf("table %s", id)
	}
	return s.exec(ctx, `
		BEGIN TRANSACTION;
		DELETE cell_values WHERE table_id = $id;
		DELETE records WHERE table_id = $id;
		DELETE fields WHERE table_id = $id;
		DELETE views WHERE table_id = $id;
		DELETE $id;
		COMMIT TRANSACTION;
	`, map[string]any{"id": id})
}

// Field operations

// CreateField reads the highest order and creates the field in two round trips.
// Two concurrent creates on one table can therefore receive the same order.
func (s *SurrealStore) CreateField(ctx context.Context, field *models.Field) error {
	name, err := store.ValidateName("name", field.Name)
	if err != nil {
		return err
	}
	if err := store.ValidateFieldType(field.Type); err != nil {
		return err
	}
	field.Name = name
	tables, err := query[[]tableRow](ctx, s.db, `SELECT * FROM $id`, map[string]any{"id": field.TableID})
	if err != nil {
		return fmt.Errorf("failed to get table: %w", err)
	}
	if len(tables) == 0 {
		return store.NotFoundf("table %s", field.TableID)
	}

	last, err := query[[]int](ctx, s.db, `SELECT VALUE position FROM fields WHERE table_id = $table ORDER BY position DESC LIMIT 1`, map[string]any{
		"table": field.TableID,
	})
	if err != nil {
		return fmt.Errorf("failed to read field order: %w", err)
	}
	field.Order = 0
	if len(last) > 0 {
		field.Order = last[0] + 1
	}
	if field.ID.IsZero() {
		field.ID = models.NewFieldID()
	}
	now := time.Now().UTC()
	field.CreatedAt, field.UpdatedAt = now, now
	err = s.exec(ctx, `CREATE $id CONTENT { name: $name, type: $type, position: $pos, table_id: $table, created_at: $now, updated_at: $now }`, map[string]any{
		"id":    field.ID,
		"name":  field.Name,
		"type":  string(field.Type),
		"pos":   field.Order,
		"table": field.TableID,
		"now":   stamp(now),
	})
	if err != nil {
		return fmt.Errorf("failed to create field: %w", err)
	}
	return nil
}

func (s *SurrealStore) GetField(ctx context.Context, id models.FieldID) (*models.Field, error) {
	rows, err := query[[]fieldRow](ctx, s.db, `SELECT * FROM $id`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get field: %w", err)
	}
	row, err := one(rows, "field", id)
	if row == nil {
		return nil, err
	}
	return row.model(), nil
}

func (s *SurrealStore) ListFields(ctx context.Context, tableID models.TableID) ([]*models.Field, error) {
	rows, err := query[[]fieldRow](ctx, s.db, `SELECT * FROM fields WHERE table_id = $table ORDER BY position ASC`, map[string]any{
		"table": tableID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}
	fields := make([]*models.Field, 0, len(rows))
	for _, r := range rows {
		fields = append(fields, r.model())
	}
	return fields, nil
}

func (s *SurrealStore) RenameField(ctx context.Context, id models.FieldID, name string) (*models.Field, error) {
	name, err := store.ValidateName("name", name)
	if err != nil {
		return nil, err
	}
	rows, err := query[[]fieldRow](ctx, s.db, `UPDATE $id SET name = $name, updated_at = $now WHERE id != NONE RETURN AFTER`, map[string]any{
		"id":   id,
		"name": name,
		"now":  stamp(time.Now()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rename field: %w", err)
	}
	if len(rows) == 0 {
		return nil, store.NotFoundf("field %s", id)
	}
	return rows[0].model(), nil
}

func (s *SurrealStore) DeleteField(ctx context.Context, id models.FieldID) error {
	field, err := s.GetField(ctx, id)
	if err != nil {
		return err
	}
	if field == nil {
		return store.NotFoundf("field %s", id)
	}
	return s.exec(ctx, `
		BEGIN TRANSACTION;
		DELETE cell_values WHERE field_id = $id;
		DELETE $id;
		COMMIT TRANSACTION;
	`, map[string]any{"id": id})
}

// View operations

func (s *SurrealStore) CreateView(ctx context.Context, view *models.View) error {
	name, err := store.ValidateName("name", view.Name)
	if err != nil {
		return err
	}
	view.Name = name
	normalizeView(view)
	tables, err := query[[]tableRow](ctx, s.db, `SELECT * FROM $id`, map[string]any{"id": view.TableID})
	if err != nil {
		return fmt.Errorf("failed to get table: %w", err)
	}
	if len(tables) == 0 {
		return store.NotFoundf("table %s", view.TableID)
	}
	if view.ID.IsZero() {
		view.ID = models.NewViewID()
	}
	now := time.Now().UTC()
	view.CreatedAt, view.UpdatedAt = now, now
	err = s.exec(ctx, `CREATE $id CONTENT {
		name: $name, table_id: $table, filters: $filters, sorts: $sorts, hidden_fields: $hidden,
		created_at: $now, updated_at: $now
	}`, map[string]any{
		"id":      view.ID,
		"name":    view.Name,
		"table":   view.TableID,
		"filters": view.Filters,
		"sorts":   view.Sorts,
		"hidden":  view.HiddenFields,
		"now":     stamp(now),
	})
	if err != nil {
		return fmt.Errorf("failed to create view: %w", err)
	}
	return nil
}

func (s *SurrealStore) GetView(ctx context.Context, id models.ViewID) (*models.View, error) {
	rows, err := query[[]viewRow](ctx, s.db, `SELECT * FROM $id`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to get view: %w", err)
	}
	row, err := one(rows, "view", id)
	if row == nil {
		return nil, err
	}
	return row.model(), nil
}

func (s *SurrealStore) ListViews(ctx context.Context, tableID models.TableID) ([]*models.View, error) {
	rows, err := query[[]viewRow](ctx, s.db, `SELECT * FROM views WHERE table_id = $table ORDER BY created_at DESC`, map[string]any{
		"table": tableID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}
	views := make([]*models.View, 0, len(rows))
	for _, r := range rows {
		views = append(views, r.model())
	}
	return views, nil
}

func (s *SurrealStore) UpdateView(ctx context.Context, view *models.View) error {
	name, err := store.ValidateName("name", view.Name)
	if err != nil {
		return err
	}
	view.Name = name
	normalizeView(view)
	view.UpdatedAt = time.Now().UTC()
	rows, err := query[[]viewRow](ctx, s.db, `UPDATE $id MERGE {
		name: $name, filters: $filters, sorts: $sorts, hidden_fields: $hidden, updated_at: $now
	} WHERE id != NONE RETURN AFTER`, map[string]any{
		"id":      view.ID,
		"name":    view.Name,
		"filters": view.Filters,
		"sorts":   view.Sorts,
		"hidden":  view.HiddenFields,
		"now":     stamp(view.UpdatedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to update view: %w", err)
	}
	if len(rows) == 0 {
		return store.NotFoundf("view %s", view.ID)
	}
	return nil
}

func (s *SurrealStore) DeleteView(ctx context.Context, id models.ViewID) error {
	rows, err := query[[]viewRow](ctx, s.db, `DELETE $id RETURN BEFORE`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("failed to delete view: %w", err)
	}
	if len(rows) == 0 {
		return store.NotFoundf("view %s", id)
	}
	return nil
}

func normalizeView(view *models.View) {
	view.Filters = models.EncodeList(models.ParseFilters(view.Filters))
	view.Sorts = models.EncodeList(models.ParseSorts(view.Sorts))
	view.HiddenFields = models.EncodeList(models.ParseHiddenFields(view.HiddenFields))
}

// Ownership

// owner follows the record links in path from $id up to the owning user.
func (s *SurrealStore) owner(ctx context.Context, what string, id fmt.Stringer, path string) (models.UserID, error) {
	owners, err := query[[]models.UserID](ctx, s.db, "SELECT VALUE "+path+" FROM $id", map[string]any{"id": id})
	if err != nil {
		return models.UserID{}, fmt.Errorf("failed to resolve %s owner: %w", what, err)
	}
	if len(owners) == 0 || owners[0].IsZero() {
		return models.UserID{}, store.NotFoundf("%s %s", what, id)
	}
	return owners[0], nil
}

func (s *SurrealStore) OwnerOfBase(ctx context.Context, id models.BaseID) (models.UserID, error) {
	return s.owner(ctx, "base", id, "owner_id")
}

func (s *SurrealStore) OwnerOfTable(ctx context.Context, id models.TableID) (models.UserID, error) {
	return s.owner(ctx, "table", id, "base_id.owner_id")
}

func (s *SurrealStore) OwnerOfField(ctx context.Context, id models.FieldID) (models.UserID, error) {
	return s.owner(ctx, "field", id, "table_id.base_id.owner_id")
}

func (s *SurrealStore) OwnerOfRecord(ctx context.Context, id models.RecordID) (models.UserID, error) {
	return s.owner(ctx, "record", id, "table_id.base_id.owner_id")
}

func (s *SurrealStore) OwnerOfView(ctx context.Context, id models.ViewID) (models.UserID, error) {
	return s.owner(ctx, "view", id, "table_id.base_id.owner_id")
}
