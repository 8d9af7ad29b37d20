package store

import (
	"context"

	"github.com/surrealdb/surrealgrid/pkg/models"
)

// ReadOnlyStore wraps a Store and rejects write operations while in read-only mode.
//
// The read-only state is determined dynamically by the isReadOnly function, so the
// application can toggle maintenance mode at runtime without recreating the store.
// Reads, including record paging, keep working; every write returns [ErrReadOnly].
type ReadOnlyStore struct {
	Store
	isReadOnly func() bool
}

// NewReadOnlyStore creates a new read-only wrapper for a store
func NewReadOnlyStore(store Store, isReadOnly func() bool) Store {
	return &ReadOnlyStore{
		Store:      store,
		isReadOnly: isReadOnly,
	}
}

// Unwrap returns the underlying store
func (r *ReadOnlyStore) Unwrap() Store {
	return r.Store
}

func (r *ReadOnlyStore) checkReadOnly() error {
	if r.isReadOnly() {
		return ErrReadOnly
	}
	return nil
}

// Write operations - check read-only mode first

func (r *ReadOnlyStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.CreateUser(ctx, user)
}

func (r *ReadOnlyStore) CreateBase(ctx context.Context, base *models.Base) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.CreateBase(ctx, base)
}

func (r *ReadOnlyStore) DeleteBase(ctx context.Context, id models.BaseID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.DeleteBase(ctx, id)
}

func (r *ReadOnlyStore) CreateTable(ctx context.Context, table *models.Table) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.CreateTable(ctx, table)
}

func (r *ReadOnlyStore) DeleteTable(ctx context.Context, id models.TableID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.DeleteTable(ctx, id)
}

func (r *ReadOnlyStore) CreateField(ctx context.Context, field *models.Field) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.CreateField(ctx, field)
}

func (r *ReadOnlyStore) RenameField(ctx context.Context, id models.FieldID, name string) (*models.Field, error) {
	if err := r.checkReadOnly(); err != nil {
		return nil, err
	}
	return r.Store.RenameField(ctx, id, name)
}

func (r *ReadOnlyStore) DeleteField(ctx context.Context, id models.FieldID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.DeleteField(ctx, id)
}

func (r *ReadOnlyStore) CreateRecord(ctx context.Context, record *models.Record) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.CreateRecord(ctx, record)
}

func (r *ReadOnlyStore) DeleteRecord(ctx context.Context, id models.RecordID) (*models.Record, error) {
	if err := r.checkReadOnly(); err != nil {
		return nil, err
	}
	return r.Store.DeleteRecord(ctx, id)
}

func (r *ReadOnlyStore) CreateRecordsBulk(ctx context.Context, tableID models.TableID, count int, gen CellGenerator) (int, error) {
	if err := r.checkReadOnly(); err != nil {
		return 0, err
	}
	return r.Store.CreateRecordsBulk(ctx, tableID, count, gen)
}

func (r *ReadOnlyStore) UpsertCellValue(ctx context.Context, write CellWrite) (*models.CellValue, error) {
	if err := r.checkReadOnly(); err != nil {
		return nil, err
	}
	return r.Store.UpsertCellValue(ctx, write)
}

func (r *ReadOnlyStore) CreateView(ctx context.Context, view *models.View) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.CreateView(ctx, view)
}

func (r *ReadOnlyStore) UpdateView(ctx context.Context, view *models.View) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.UpdateView(ctx, view)
}

func (r *ReadOnlyStore) DeleteView(ctx context.Context, id models.ViewID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.DeleteView(ctx, id)
}
