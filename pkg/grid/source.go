package grid

import (
	"context"
	"errors"
	"time"

	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

// Source is the remote side of the grid. *client.Client implements it.
type Source interface {
	ListRecords(ctx context.Context, query store.RecordQuery) (*store.RecordPage, error)
	ListFields(ctx context.Context, tableID models.TableID) ([]*models.Field, error)
	UpsertCell(ctx context.Context, write store.CellWrite) (*models.CellValue, error)
}

// DefaultTimeout bounds every call to a Source.
const DefaultTimeout = 15 * time.Second

// Op is I/O prepared by the controller. Run performs it and must not touch grid state;
// its Outcome goes back to [Controller.Complete].
type Op interface {
	Run(ctx context.Context) Outcome
}

// Outcome is the result of an Op.
type Outcome interface {
	outcome()
}

// FetchKind tells a next-page fetch from a refresh.
type FetchKind int

const (
	NextPage FetchKind = iota
	Refresh
)

func (k FetchKind) String() string {
	if k == Refresh {
		return "refresh"
	}
	return "next page"
}

// FetchOp requests one page.
type FetchOp struct {
	Kind       FetchKind
	Generation uint64
	Query      store.RecordQuery

	source  Source
	timeout time.Duration
}

func (op *FetchOp) Run(ctx context.Context) Outcome {
	ctx, cancel := withTimeout(ctx, op.timeout)
	defer cancel()
	page, err := op.source.ListRecords(ctx, op.Query)
	if err == nil && page == nil {
		err = errors.New("empty page response")
	}
	return &FetchResult{Op: op, Page: page, Err: err}
}

// FetchResult is the outcome of a FetchOp.
type FetchResult struct {
	Op   *FetchOp
	Page *store.RecordPage
	Err  error
}

func (*FetchResult) outcome() {}

// UpsertOp commits one cell edit.
type UpsertOp struct {
	Write store.CellWrite

	seq     uint64
	source  Source
	timeout time.Duration
}

func (op *UpsertOp) Run(ctx context.Context) Outcome {
	ctx, cancel := withTimeout(ctx, op.timeout)
	defer cancel()
	cell, err := op.source.UpsertCell(ctx, op.Write)
	if err == nil && cell == nil {
		err = errors.New("empty upsert response")
	}
	return &UpsertResult{Op: op, Cell: cell, Err: err}
}

// UpsertResult is the outcome of an UpsertOp.
type UpsertResult struct {
	Op   *UpsertOp
	Cell *models.CellValue
	Err  error
}

func (*UpsertResult) outcome() {}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}
