// Package surrealgridtesting simulates users of a running surrealgrid server.
//
// A [VirtualUser] drives the HTTP API through [client.Client] the way the grid
// does: it builds bases, tables and fields, generates records, edits cells, saves
// views and pages through record lists. It remembers everything it wrote so that
// [VirtualUser.VerifyAllData] can read it back afterwards.
//
// # Deterministic Behavior
//
// Each virtual user seeds its random source and its cell faker with its index, so
// a scenario replays the same choices on every run:
//   - Even-indexed users are create-heavy and rarely delete records.
//   - Odd-indexed users delete records and fields more often.
//
// Emails carry a timestamp, so repeated runs against one database do not collide.
//
// # Usage
//
//	vu := surrealgridtesting.NewVirtualUser(0, "http://localhost:8080")
//	if err := vu.RunScenario(ctx); err != nil {
//		t.Fatalf("scenario failed: %v", err)
//	}
//
// Many users can run concurrently; each owns its client and state. Users that share
// an account (see [VirtualUser.SignInAs]) can work on the same table.
package surrealgridtesting

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/surrealdb/surrealgrid/pkg/client"
	"github.com/surrealdb/surrealgrid/pkg/generate"
	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

// cellKey addresses one cell.
type cellKey struct {
	Record models.RecordID
	Field  models.FieldID
}

// VirtualUser is a stateful simulated user. Methods are safe for concurrent use,
// but a scenario is meant to run on one goroutine.
type VirtualUser struct {
	Index  int // Virtual user index (0, 1, 2...), not the database user ID
	Name   string
	Email  string
	Client *client.Client
	RNG    *rand.Rand

	// Session state
	User         *models.User
	CurrentBase  *models.Base
	CurrentTable *models.Table

	// Tracking data created by this user
	Bases   []*models.Base
	Tables  map[models.BaseID][]*models.Table
	Fields  map[models.TableID][]*models.Field
	Records map[models.TableID][]models.RecordID
	Views   map[models.TableID][]*models.View
	Cells   map[cellKey]models.CellValue

	// Track deleted items for verification
	DeletedRecords []models.RecordID
	DeletedFields  []models.FieldID

	faker *gofakeit.Faker
	cells *generate.Faker
	mu    sync.RWMutex
}

// NewVirtualUser creates a virtual user talking to baseURL.
func NewVirtualUser(index int, baseURL string) *VirtualUser {
	timestamp := time.Now().UnixNano()
	return &VirtualUser{
		Index:   index,
		Name:    fmt.Sprintf("Virtual User %d", index),
		Email:   fmt.Sprintf("user%d-%d@test.com", index, timestamp),
		Client:  client.NewClient(baseURL),
		RNG:     rand.New(rand.NewSource(int64(index))),
		Tables:  make(map[models.BaseID][]*models.Table),
		Fields:  make(map[models.TableID][]*models.Field),
		Records: make(map[models.TableID][]models.RecordID),
		Views:   make(map[models.TableID][]*models.View),
		Cells:   make(map[cellKey]models.CellValue),
		faker:   gofakeit.New(uint64(index) + 1),
		cells:   generate.New(uint64(index) + 1),
	}
}

func (vu *VirtualUser) fail(op string, err error) error {
	return fmt.Errorf("virtual user %d %s failed: %w", vu.Index, op, err)
}

// SignUp creates an account for this virtual user.
func (vu *VirtualUser) SignUp(ctx context.Context) error {
	resp, err := vu.Client.SignUp(ctx, vu.Email, "", vu.Name)
	if err != nil {
		return vu.fail("signup", err)
	}
	vu.mu.Lock()
	vu.User = resp.User
	vu.mu.Unlock()
	return nil
}

// SignIn authenticates this virtual user.
func (vu *VirtualUser) SignIn(ctx context.Context) error {
	resp, err := vu.Client.SignIn(ctx, vu.Email, "")
	if err != nil {
		return vu.fail("signin", err)
	}
	vu.mu.Lock()
	vu.User = resp.User
	vu.mu.Unlock()
	return nil
}

// SignInAs signs in with another user's account, so both see the same bases.
func (vu *VirtualUser) SignInAs(ctx context.Context, email string) error {
	vu.mu.Lock()
	vu.Email = email
	vu.mu.Unlock()
	return vu.SignIn(ctx)
}

// SignOut ends the session and clears the current base and table.
func (vu *VirtualUser) SignOut(ctx context.Context) error {
	if err := vu.Client.SignOut(ctx); err != nil {
		return vu.fail("signout", err)
	}
	vu.mu.Lock()
	vu.User = nil
	vu.CurrentBase = nil
	vu.CurrentTable = nil
	vu.mu.Unlock()
	return nil
}

// CreateBase creates a base and makes it current.
func (vu *VirtualUser) CreateBase(ctx context.Context, name string) (*models.Base, error) {
	base, err := vu.Client.CreateBase(ctx, name)
	if err != nil {
		return nil, vu.fail("create base", err)
	}
	vu.mu.Lock()
	vu.Bases = append(vu.Bases, base)
	vu.CurrentBase = base
	vu.mu.Unlock()
	return base, nil
}

// CreateTable creates a table in the current base and makes it current. The
// server's default fields are recorded along with it.
func (vu *VirtualUser) CreateTable(ctx context.Context, name string) (*models.Table, error) {
	vu.mu.RLock()
	base := vu.CurrentBase
	vu.mu.RUnlock()
	if base == nil {
		return nil, vu.fail("create table", errors.New("no current base"))
	}

	table, err := vu.Client.CreateTable(ctx, base.ID, name)
	if err != nil {
		return nil, vu.fail("create table", err)
	}
	fields, err := vu.Client.ListFields(ctx, table.ID)
	if err != nil {
		return nil, vu.fail("list fields", err)
	}

	vu.mu.Lock()
	vu.Tables[base.ID] = append(vu.Tables[base.ID], table)
	vu.Fields[table.ID] = fields
	vu.CurrentTable = table
	vu.mu.Unlock()
	return table, nil
}

// UseTable makes a table current without creating it, for tables owned by the
// account this user signed in with.
func (vu *VirtualUser) UseTable(ctx context.Context, tableID models.TableID) (*models.Table, error) {
	table, err := vu.Client.GetTable(ctx, tableID)
	if err != nil {
		return nil, vu.fail("get table", err)
	}
	fields, err := vu.Client.ListFields(ctx, tableID)
	if err != nil {
		return nil, vu.fail("list fields", err)
	}
	vu.mu.Lock()
	vu.Fields[table.ID] = fields
	vu.CurrentTable = table
	vu.mu.Unlock()
	return table, nil
}

func (vu *VirtualUser) currentTable(op string) (*models.Table, error) {
	vu.mu.RLock()
	defer vu.mu.RUnlock()
	if vu.CurrentTable == nil {
		return nil, vu.fail(op, errors.New("no current table"))
	}
	return vu.CurrentTable, nil
}

// CreateField adds a field to the current table.
func (vu *VirtualUser) CreateField(ctx context.Context, name string, fieldType models.FieldType) (*models.Field, error) {
	table, err := vu.currentTable("create field")
	if err != nil {
		return nil, err
	}
	field, err := vu.Client.CreateField(ctx, table.ID, name, fieldType)
	if err != nil {
		return nil, vu.fail("create field", err)
	}
	vu.mu.Lock()
	vu.Fields[table.ID] = append(vu.Fields[table.ID], field)
	vu.mu.Unlock()
	return field, nil
}

// RenameField renames one of the current table's fields.
func (vu *VirtualUser) RenameField(ctx context.Context, field *models.Field, name string) error {
	renamed, err := vu.Client.RenameField(ctx, field.ID, name)
	if err != nil {
		return vu.fail("rename field", err)
	}
	vu.mu.Lock()
	field.Name = renamed.Name
	vu.mu.Unlock()
	return nil
}

// DeleteField deletes a field and forgets the cells written to it.
func (vu *VirtualUser) DeleteField(ctx context.Context, field *models.Field) error {
	if _, err := vu.Client.DeleteField(ctx, field.ID); err != nil {
		return vu.fail("delete field", err)
	}
	vu.mu.Lock()
	defer vu.mu.Unlock()
	fields := vu.Fields[field.TableID]
	for i, f := range fields {
		if f.ID == field.ID {
			vu.Fields[field.TableID] = append(fields[:i:i], fields[i+1:]...)
			break
		}
	}
	for k := range vu.Cells {
		if k.Field == field.ID {
			delete(vu.Cells, k)
		}
	}
	vu.DeletedFields = append(vu.DeletedFields, field.ID)
	return nil
}

// CreateRecord adds one empty record to the current table.
func (vu *VirtualUser) CreateRecord(ctx context.Context) (*models.Record, error) {
	table, err := vu.currentTable("create record")
	if err != nil {
		return nil, err
	}
	record, err := vu.Client.CreateRecord(ctx, table.ID)
	if err != nil {
		return nil, vu.fail("create record", err)
	}
	vu.mu.Lock()
	vu.Records[table.ID] = append(vu.Records[table.ID], record.ID)
	vu.mu.Unlock()
	return record, nil
}

// GenerateRecords asks the server for count fake records in the current table.
// Their IDs are learned on the next [VirtualUser.SyncRecords].
func (vu *VirtualUser) GenerateRecords(ctx context.Context, count int) (int, error) {
	table, err := vu.currentTable("generate records")
	if err != nil {
		return 0, err
	}
	n, err := vu.Client.CreateRecordsBulk(ctx, table.ID, count)
	if err != nil {
		return n, vu.fail("generate records", err)
	}
	return n, nil
}

// SyncRecords pages through the current table and replaces the tracked record IDs
// with what the server holds.
func (vu *VirtualUser) SyncRecords(ctx context.Context) ([]models.RecordID, error) {
	table, err := vu.currentTable("sync records")
	if err != nil {
		return nil, err
	}
	records, _, err := vu.ReadAllRecords(ctx, store.RecordQuery{TableID: table.ID})
	if err != nil {
		return nil, err
	}
	ids := make([]models.RecordID, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	vu.mu.Lock()
	vu.Records[table.ID] = ids
	vu.mu.Unlock()
	return ids, nil
}

// ReadAllRecords follows next cursors from q's cursor until the set is exhausted.
// It returns the records and the total count reported by the last page.
func (vu *VirtualUser) ReadAllRecords(ctx context.Context, q store.RecordQuery) ([]*models.Record, int, error) {
	if q.Limit == 0 {
		q.Limit = store.MaxPageLimit
	}
	var records []*models.Record
	total := 0
	for {
		page, err := vu.Client.ListRecords(ctx, q)
		if err != nil {
			return nil, 0, vu.fail("list records", err)
		}
		records = append(records, page.Records...)
		total = page.TotalCount
		if page.NextCursor == nil {
			return records, total, nil
		}
		if *page.NextCursor <= q.Cursor {
			return nil, 0, vu.fail("list records", fmt.Errorf("cursor went from %d to %d", q.Cursor, *page.NextCursor))
		}
		q.Cursor = *page.NextCursor
	}
}

// DeleteRecord deletes a record of the current table.
func (vu *VirtualUser) DeleteRecord(ctx context.Context, id models.RecordID) error {
	deleted, err := vu.Client.DeleteRecord(ctx, id)
	if err != nil {
		return vu.fail("delete record", err)
	}
	vu.mu.Lock()
	defer vu.mu.Unlock()
	ids := vu.Records[deleted.TableID]
	for i, rid := range ids {
		if rid == id {
			vu.Records[deleted.TableID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	for k := range vu.Cells {
		if k.Record == id {
			delete(vu.Cells, k)
		}
	}
	vu.DeletedRecords = append(vu.DeletedRecords, id)
	return nil
}

// EditCell writes a fake value of the field's type into a cell.
func (vu *VirtualUser) EditCell(ctx context.Context, recordID models.RecordID, field *models.Field) (*models.CellValue, error) {
	text, number := vu.cells.Cell(field)
	return vu.WriteCell(ctx, store.CellWrite{RecordID: recordID, FieldID: field.ID, TextValue: text, NumberValue: number})
}

// WriteCell upserts a cell and remembers the value the server stored.
func (vu *VirtualUser) WriteCell(ctx context.Context, w store.CellWrite) (*models.CellValue, error) {
	cell, err := vu.Client.UpsertCell(ctx, w)
	if err != nil {
		return nil, vu.fail("write cell", err)
	}
	vu.mu.Lock()
	vu.Cells[cellKey{Record: w.RecordID, Field: w.FieldID}] = *cell
	vu.mu.Unlock()
	return cell, nil
}

// CreateView saves a view on the current table.
func (vu *VirtualUser) CreateView(ctx context.Context, req client.ViewRequest) (*models.View, error) {
	table, err := vu.currentTable("create view")
	if err != nil {
		return nil, err
	}
	view, err := vu.Client.CreateView(ctx, table.ID, req)
	if err != nil {
		return nil, vu.fail("create view", err)
	}
	vu.mu.Lock()
	vu.Views[table.ID] = append(vu.Views[table.ID], view)
	vu.mu.Unlock()
	return view, nil
}

// UpdateView patches a saved view in place.
func (vu *VirtualUser) UpdateView(ctx context.Context, view *models.View, req client.ViewRequest) error {
	updated, err := vu.Client.UpdateView(ctx, view.ID, req)
	if err != nil {
		return vu.fail("update view", err)
	}
	vu.mu.Lock()
	*view = *updated
	vu.mu.Unlock()
	return nil
}

// GetCurrentState returns the signed-in user and the current base and table.
func (vu *VirtualUser) GetCurrentState() (*models.User, *models.Base, *models.Table) {
	vu.mu.RLock()
	defer vu.mu.RUnlock()
	return vu.User, vu.CurrentBase, vu.CurrentTable
}

// VerifyAllData reads back everything this user created. Record sets are compared
// by ID, written cells by value, and deleted records and fields must be gone.
func (vu *VirtualUser) VerifyAllData(ctx context.Context) error {
	vu.mu.RLock()
	defer vu.mu.RUnlock()

	current, err := vu.Client.GetCurrentUser(ctx)
	if err != nil {
		return vu.fail("get current user", err)
	}
	if current.ID != vu.User.ID {
		return fmt.Errorf("virtual user %d ID mismatch: expected %s, got %s", vu.Index, vu.User.ID, current.ID)
	}

	bases, err := vu.Client.ListBases(ctx)
	if err != nil {
		return vu.fail("list bases", err)
	}
	if len(bases) != len(vu.Bases) {
		return fmt.Errorf("virtual user %d base count mismatch: expected %d, got %d", vu.Index, len(vu.Bases), len(bases))
	}

	for _, base := range vu.Bases {
		tables, err := vu.Client.ListTables(ctx, base.ID)
		if err != nil {
			return vu.fail("list tables", err)
		}
		if len(tables) != len(vu.Tables[base.ID]) {
			return fmt.Errorf("virtual user %d table count mismatch in base %s: expected %d, got %d",
				vu.Index, base.ID, len(vu.Tables[base.ID]), len(tables))
		}
		for _, table := range vu.Tables[base.ID] {
			if err := vu.verifyTable(ctx, table.ID); err != nil {
				return err
			}
		}
	}

	for key, want := range vu.Cells {
		got, err := vu.Client.GetCellValue(ctx, key.Record, key.Field)
		if err != nil {
			return vu.fail("get cell", err)
		}
		if got == nil || !sameValue(*got, want) {
			return fmt.Errorf("virtual user %d cell %s/%s mismatch: expected %s, got %s",
				vu.Index, key.Record, key.Field, describe(&want), describe(got))
		}
	}

	for _, id := range vu.DeletedRecords {
		if _, err := vu.Client.ListCellValues(ctx, []models.RecordID{id}); !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("virtual user %d: deleted record %s still exists (%v)", vu.Index, id, err)
		}
	}
	return nil
}

func (vu *VirtualUser) verifyTable(ctx context.Context, tableID models.TableID) error {
	fields, err := vu.Client.ListFields(ctx, tableID)
	if err != nil {
		return vu.fail("list fields", err)
	}
	if len(fields) != len(vu.Fields[tableID]) {
		return fmt.Errorf("virtual user %d field count mismatch in table %s: expected %d, got %d",
			vu.Index, tableID, len(vu.Fields[tableID]), len(fields))
	}
	for _, id := range vu.DeletedFields {
		for _, f := range fields {
			if f.ID == id {
				return fmt.Errorf("virtual user %d: deleted field %s still exists", vu.Index, id)
			}
		}
	}

	records, total, err := vu.ReadAllRecords(ctx, store.RecordQuery{TableID: tableID})
	if err != nil {
		return err
	}
	want := vu.Records[tableID]
	if len(records) != len(want) || total != len(want) {
		return fmt.Errorf("virtual user %d record count mismatch in table %s: expected %d, got %d (total %d)",
			vu.Index, tableID, len(want), len(records), total)
	}
	seen := make(map[models.RecordID]bool, len(records))
	for _, r := range records {
		if seen[r.ID] {
			return fmt.Errorf("virtual user %d: record %s listed twice in table %s", vu.Index, r.ID, tableID)
		}
		seen[r.ID] = true
	}
	for _, id := range want {
		if !seen[id] {
			return fmt.Errorf("virtual user %d: record %s missing from table %s", vu.Index, id, tableID)
		}
	}

	views, err := vu.Client.ListViews(ctx, tableID)
	if err != nil {
		return vu.fail("list views", err)
	}
	if len(views) != len(vu.Views[tableID]) {
		return fmt.Errorf("virtual user %d view count mismatch in table %s: expected %d, got %d",
			vu.Index, tableID, len(vu.Views[tableID]), len(views))
	}
	return nil
}

func sameValue(a, b models.CellValue) bool {
	switch {
	case a.TextValue != nil && b.TextValue != nil:
		return *a.TextValue == *b.TextValue
	case a.NumberValue != nil && b.NumberValue != nil:
		return *a.NumberValue == *b.NumberValue
	}
	return a.TextValue == nil && b.TextValue == nil && a.NumberValue == nil && b.NumberValue == nil
}

func describe(c *models.CellValue) string {
	switch {
	case c == nil:
		return "no cell"
	case c.TextValue != nil:
		return fmt.Sprintf("%q", *c.TextValue)
	case c.NumberValue != nil:
		return fmt.Sprint(*c.NumberValue)
	}
	return "empty"
}

// RunScenario signs up and builds a few bases of tables, then generates records,
// edits cells and saves views in each. It ends with [VirtualUser.VerifyAllData].
func (vu *VirtualUser) RunScenario(ctx context.Context) error {
	if err := vu.SignUp(ctx); err != nil {
		return err
	}

	// Even indices create more, odd indices delete more.
	createBias := vu.Index%2 == 0

	numBases := vu.RNG.Intn(2) + 1
	for i := 0; i < numBases; i++ {
		if _, err := vu.CreateBase(ctx, vu.faker.Company()); err != nil {
			return err
		}

		numTables := vu.RNG.Intn(3) + 1
		for j := 0; j < numTables; j++ {
			if err := vu.runTable(ctx, fmt.Sprintf("%s %d", vu.faker.HipsterWord(), j), createBias); err != nil {
				return err
			}
		}
	}

	return vu.VerifyAllData(ctx)
}

func (vu *VirtualUser) runTable(ctx context.Context, name string, createBias bool) error {
	table, err := vu.CreateTable(ctx, name)
	if err != nil {
		return err
	}

	// Sometimes add fields beyond Title and Value (40% chance)
	if vu.RNG.Float32() < 0.4 {
		fieldType := models.FieldTypeText
		if vu.RNG.Float32() < 0.5 {
			fieldType = models.FieldTypeNumber
		}
		if _, err := vu.CreateField(ctx, vu.faker.Noun(), fieldType); err != nil {
			return err
		}
	}

	if _, err := vu.GenerateRecords(ctx, vu.RNG.Intn(250)+1); err != nil {
		return err
	}
	for k := vu.RNG.Intn(3); k > 0; k-- {
		if _, err := vu.CreateRecord(ctx); err != nil {
			return err
		}
	}
	ids, err := vu.SyncRecords(ctx)
	if err != nil {
		return err
	}

	vu.mu.RLock()
	fields := append([]*models.Field(nil), vu.Fields[table.ID]...)
	vu.mu.RUnlock()

	numEdits := vu.RNG.Intn(10) + 1
	for k := 0; k < numEdits && len(ids) > 0; k++ {
		record := ids[vu.RNG.Intn(len(ids))]
		field := fields[vu.RNG.Intn(len(fields))]
		if _, err := vu.EditCell(ctx, record, field); err != nil {
			return err
		}
	}

	// Sometimes save a view on the first text field (30% chance)
	if vu.RNG.Float32() < 0.3 {
		view, err := vu.CreateView(ctx, client.ViewRequest{
			Name:    vu.faker.Adjective(),
			Filters: []models.Filter{{FieldID: fields[0].ID, Operator: models.OpContains, Value: vu.faker.LoremIpsumWord()}},
			Sorts:   []models.Sort{{FieldID: fields[1].ID, Direction: models.SortDesc}},
		})
		if err != nil {
			return err
		}
		if vu.RNG.Float32() < 0.5 {
			if err := vu.UpdateView(ctx, view, client.ViewRequest{HiddenFields: []models.FieldID{fields[1].ID}}); err != nil {
				return err
			}
		}
	}

	// Sometimes rename a field (25% chance)
	if vu.RNG.Float32() < 0.25 {
		if err := vu.RenameField(ctx, fields[vu.RNG.Intn(len(fields))], vu.faker.Noun()); err != nil {
			return err
		}
	}

	deleteChance := float32(0.05)
	if !createBias {
		deleteChance = 0.3
	}
	for _, id := range ids {
		if vu.RNG.Float32() < deleteChance {
			if err := vu.DeleteRecord(ctx, id); err != nil {
				return err
			}
		}
	}

	// Odd users sometimes drop an extra field; the default fields stay.
	if !createBias && len(fields) > 2 && vu.RNG.Float32() < 0.5 {
		if err := vu.DeleteField(ctx, fields[len(fields)-1]); err != nil {
			return err
		}
	}
	return nil
}
