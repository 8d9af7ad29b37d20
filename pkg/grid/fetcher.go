package grid

import (
	"context"
	"sync"
	"time"

	"github.com/surrealdb/surrealgrid/pkg/logger"
	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

// PageFetcher retrieves pages of one table's records in cursor order and keeps the
// flattened record sequence: every fetched page in fetch order, deduplicated by record
// ID. At most one fetch is outstanding at a time.
//
// PageFetcher is safe for concurrent use.
type PageFetcher struct {
	source  Source
	timeout time.Duration
	log     logger.Logger

	mu         sync.Mutex
	query      store.RecordQuery
	rows       []*models.Record
	index      map[models.RecordID]int
	total      int
	nextCursor int
	loaded     bool
	exhausted  bool
	inFlight   *FetchOp
	generation uint64
	lastErr    error
}

// NewPageFetcher returns a fetcher for query. Query.Cursor is ignored; Query.Limit is
// the page size (0 means the server default of 50).
func NewPageFetcher(source Source, query store.RecordQuery, timeout time.Duration, log logger.Logger) *PageFetcher {
	if log == nil {
		log = logger.Discard()
	}
	if query.Limit == 0 {
		query.Limit = store.DefaultPageLimit
	}
	query.Cursor = 0
	return &PageFetcher{
		source:  source,
		timeout: timeout,
		log:     log,
		query:   query,
		index:   map[models.RecordID]int{},
	}
}

// FetchPage reads one page at cursor without touching the flattened sequence.
func (f *PageFetcher) FetchPage(ctx context.Context, cursor, limit int) (*store.RecordPage, error) {
	f.mu.Lock()
	q := f.query
	f.mu.Unlock()
	q.Cursor, q.Limit = cursor, limit

	ctx, cancel := withTimeout(ctx, f.timeout)
	defer cancel()
	return f.source.ListRecords(ctx, q)
}

// FetchNext appends the next page. It is a no-op while another fetch is in flight or
// once the sequence is exhausted. Errors are logged and returned; fetched pages stay.
func (f *PageFetcher) FetchNext(ctx context.Context) error {
	op := f.PrepareNext()
	if op == nil {
		return nil
	}
	_, err := f.Apply(op.Run(ctx).(*FetchResult))
	return err
}

// RefreshAll drops every fetched page and loads the first page again.
func (f *PageFetcher) RefreshAll(ctx context.Context) error {
	_, err := f.Apply(f.PrepareRefresh().Run(ctx).(*FetchResult))
	return err
}

// PrepareNext reserves the in-flight slot for the next page and returns the fetch to
// run, or nil when a fetch is already in flight or nothing is left.
func (f *PageFetcher) PrepareNext() *FetchOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight != nil || (f.loaded && f.exhausted) {
		return nil
	}
	q := f.query
	q.Cursor = f.nextCursor
	f.inFlight = &FetchOp{Kind: NextPage, Generation: f.generation, Query: q, source: f.source, timeout: f.timeout}
	return f.inFlight
}

// PrepareRefresh starts a new generation and returns the fetch of its first page.
// Any fetch already in flight is superseded; its result will be discarded.
func (f *PageFetcher) PrepareRefresh() *FetchOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	q := f.query
	q.Cursor = 0
	f.inFlight = &FetchOp{Kind: Refresh, Generation: f.generation, Query: q, source: f.source, timeout: f.timeout}
	return f.inFlight
}

// Apply folds a fetch result into the sequence. It reports whether the result was
// applied; results of superseded fetches are dropped with applied == false and a nil
// error.
func (f *PageFetcher) Apply(res *FetchResult) (applied bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if res.Op != f.inFlight || res.Op.Generation != f.generation {
		f.log.Debug("discarding stale page", "kind", res.Op.Kind.String(), "generation", res.Op.Generation, "current", f.generation)
		return false, nil
	}
	f.inFlight = nil
	if res.Err != nil {
		f.lastErr = res.Err
		f.log.Warn("page fetch failed", "kind", res.Op.Kind.String(), "table_id", f.query.TableID.String(), "cursor", res.Op.Query.Cursor, "error", res.Err)
		return false, res.Err
	}

	if res.Op.Kind == Refresh {
		f.rows = nil
		f.index = map[models.RecordID]int{}
	}
	for _, rec := range res.Page.Records {
		if i, ok := f.index[rec.ID]; ok {
			f.rows[i] = rec
			continue
		}
		f.index[rec.ID] = len(f.rows)
		f.rows = append(f.rows, rec)
	}
	f.total = res.Page.TotalCount
	f.loaded = true
	f.lastErr = nil
	if res.Page.NextCursor == nil {
		f.exhausted = true
	} else {
		f.exhausted = false
		f.nextCursor = *res.Page.NextCursor
	}
	return true, nil
}

// Reset replaces the query (search, filters, sorts) and forgets everything fetched.
// A fetch in flight is superseded.
func (f *PageFetcher) Reset(query store.RecordQuery) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if query.Limit == 0 {
		query.Limit = f.query.Limit
	}
	query.Cursor = 0
	f.query = query
	f.generation++
	f.inFlight = nil
	f.rows = nil
	f.index = map[models.RecordID]int{}
	f.total, f.nextCursor = 0, 0
	f.loaded, f.exhausted = false, false
	f.lastErr = nil
}

// SetCell stores cell in its loaded row. Rows are replaced, not mutated, so slices
// returned by Rows stay unchanged.
func (f *PageFetcher) SetCell(cell models.CellValue) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.index[cell.RecordID]
	if !ok {
		return false
	}
	rec := *f.rows[i]
	rec.CellValues = make([]models.CellValue, 0, len(f.rows[i].CellValues)+1)
	replaced := false
	for _, cv := range f.rows[i].CellValues {
		if cv.FieldID == cell.FieldID {
			cv = cell
			replaced = true
		}
		rec.CellValues = append(rec.CellValues, cv)
	}
	if !replaced {
		rec.CellValues = append(rec.CellValues, cell)
	}
	f.rows[i] = &rec
	return true
}

func (f *PageFetcher) Query() store.RecordQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query
}

// Rows returns the flattened sequence.
func (f *PageFetcher) Rows() []*models.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Record(nil), f.rows...)
}

func (f *PageFetcher) Row(i int) (*models.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.rows) {
		return nil, false
	}
	return f.rows[i], true
}

// IndexOf returns the row of a loaded record.
func (f *PageFetcher) IndexOf(id models.RecordID) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, ok := f.index[id]
	return i, ok
}

func (f *PageFetcher) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// TotalCount is the table's record count as of the last applied page. Treat it as
// approximate while other writers are active.
func (f *PageFetcher) TotalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// NextCursor returns the cursor of the next page, or nil when exhausted.
func (f *PageFetcher) NextCursor() *int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded && f.exhausted {
		return nil
	}
	c := f.nextCursor
	return &c
}

func (f *PageFetcher) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.loaded || !f.exhausted
}

func (f *PageFetcher) Loaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

func (f *PageFetcher) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generation
}

func (f *PageFetcher) InFlight() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight != nil
}

// LastError is the error of the most recent failed fetch, cleared by the next success.
func (f *PageFetcher) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}
