package grid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/surrealdb/surrealgrid/pkg/cache"
	"github.com/surrealdb/surrealgrid/pkg/logger"
	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

// State is the controller's fetch state.
type State int

const (
	Idle State = iota
	FetchingNext
	RefreshingAll
)

func (s State) String() string {
	switch s {
	case FetchingNext:
		return "fetching next"
	case RefreshingAll:
		return "refreshing"
	}
	return "idle"
}

// transitions lists the allowed state changes. FetchingNext -> RefreshingAll is an
// invalidation superseding a page fetch.
var transitions = map[State][]State{
	Idle:          {FetchingNext, RefreshingAll},
	FetchingNext:  {Idle, RefreshingAll},
	RefreshingAll: {Idle},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func validateTransition(from, to State) error {
	if !canTransition(from, to) {
		return fmt.Errorf("invalid state transition %s -> %s", from, to)
	}
	return nil
}

// Position is a focused cell: a row of the flattened sequence and a visible column.
type Position struct {
	Row int
	Col int
}

// focusTarget is a focus waiting for its row to load.
type focusTarget struct {
	pos Position
	// record is followed to its new row when the rows are replaced.
	record *models.RecordID
	// keepScroll leaves the scroll offset alone when the focus is applied.
	keepScroll bool
}

// Config tunes a Controller. Zero fields take the defaults of DefaultConfig.
type Config struct {
	// Limit is the page size.
	Limit int
	// RowHeight is the estimated row height in the caller's unit (pixels, lines).
	RowHeight float64
	// Overscan is the number of extra rows rendered above and below the viewport.
	Overscan int
	// ColumnWidth is the initial width of every column.
	ColumnWidth int
	// BottomThreshold: fetch the next page when the viewport bottom is closer than
	// this to the end of the loaded rows.
	BottomThreshold float64
	// TopThreshold: refresh when the viewport is scrolled into this distance of the top.
	TopThreshold float64
	// Timeout bounds every call to the Source.
	Timeout time.Duration
	Logger  logger.Logger
}

func DefaultConfig() Config {
	return Config{
		Limit:           store.DefaultPageLimit,
		RowHeight:       45,
		Overscan:        10,
		ColumnWidth:     150,
		BottomThreshold: 100,
		TopThreshold:    50,
		Timeout:         DefaultTimeout,
		Logger:          logger.Discard(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Limit == 0 {
		c.Limit = d.Limit
	}
	if c.RowHeight <= 0 {
		c.RowHeight = d.RowHeight
	}
	if c.Overscan < 0 {
		c.Overscan = 0
	}
	if c.ColumnWidth <= 0 {
		c.ColumnWidth = d.ColumnWidth
	}
	if c.BottomThreshold <= 0 {
		c.BottomThreshold = d.BottomThreshold
	}
	if c.TopThreshold <= 0 {
		c.TopThreshold = d.TopThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}

type cellKey struct {
	record models.RecordID
	field  models.FieldID
}

// overlay is an optimistic cell value shown until its upsert settles.
type overlay struct {
	seq    uint64
	text   *string
	number *float64
}

// Controller orchestrates one table session of the grid. It is the only writer of the
// flattened record sequence. All methods are safe for concurrent use, but the
// intended driver is a single event loop.
type Controller struct {
	cfg     Config
	source  Source
	tableID models.TableID
	log     logger.Logger

	fetcher  *PageFetcher
	viewport *Viewport
	editor   *CellEditor

	mu             sync.Mutex
	fields         []*models.Field
	state          State
	scrollOffset   float64
	viewportHeight float64
	restoreOffset  float64
	restorePending bool
	focus          Position
	pendingFocus   *focusTarget
	overlays       map[cellKey]overlay
	upsertSeq      uint64
	cellErr        error
	lastFailed     FetchKind
	prefetched     bool
	refreshAgain   bool
}

func NewController(source Source, tableID models.TableID, cfg Config) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:      cfg,
		source:   source,
		tableID:  tableID,
		log:      cfg.Logger,
		fetcher:  NewPageFetcher(source, store.RecordQuery{TableID: tableID, Limit: cfg.Limit}, cfg.Timeout, cfg.Logger),
		viewport: NewViewport(cfg.RowHeight, cfg.Overscan),
		editor:   NewCellEditor(),
		overlays: map[cellKey]overlay{},
	}
}

// Loading

// LoadFields fetches the table's fields and lays out the columns. Fields are read
// once per session.
func (c *Controller) LoadFields(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	fields, err := c.source.ListFields(ctx, c.tableID)
	if err != nil {
		c.log.Warn("field fetch failed", "table_id", c.tableID.String(), "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fields = fields
	c.viewport.Columns = NewColumns(fields, c.cfg.ColumnWidth)
	c.clampFocus()
	return nil
}

// Start requests the first page. The second page is prefetched once the first lands.
func (c *Controller) Start() []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle || c.fetcher.Loaded() {
		return nil
	}
	return c.startNext()
}

// Load runs LoadFields and the initial fetches synchronously.
func (c *Controller) Load(ctx context.Context) error {
	if err := c.LoadFields(ctx); err != nil {
		return err
	}
	c.Drive(ctx, c.Start()...)
	return c.LastError()
}

// Drive runs ops and every follow-up op synchronously until none are left.
func (c *Controller) Drive(ctx context.Context, ops ...Op) {
	for len(ops) > 0 {
		op := ops[0]
		ops = append(ops[1:], c.Complete(op.Run(ctx))...)
	}
}

// Complete applies the outcome of an Op and returns follow-up Ops.
func (c *Controller) Complete(out Outcome) []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch r := out.(type) {
	case *FetchResult:
		return c.completeFetch(r)
	case *UpsertResult:
		c.completeUpsert(r)
	}
	return nil
}

func (c *Controller) completeFetch(r *FetchResult) []Op {
	applied, err := c.fetcher.Apply(r)
	if !applied && err == nil {
		return nil
	}
	c.setState(Idle)

	if err != nil {
		c.lastFailed = r.Op.Kind
		c.pendingFocus = nil
		c.restorePending = false
		c.refreshAgain = false
		return nil
	}

	if r.Op.Kind == Refresh && c.restorePending {
		c.restorePending = false
		c.scrollOffset = c.restoreOffset
	}

	if c.refreshAgain {
		c.refreshAgain = false
		return c.startRefresh()
	}
	if c.pendingFocus != nil {
		if ops, waiting := c.resolveFocus(r); waiting || ops != nil {
			return ops
		}
	}
	c.clampFocus()
	if !c.prefetched && c.fetcher.Len() > 0 {
		c.prefetched = true
		if c.fetcher.HasMore() {
			return c.startNext()
		}
	}
	return c.nearBottom()
}

// resolveFocus applies the pending focus once its row is loaded. The focused record
// wins over the row number when it is still present. waiting reports that another
// page was requested to reach the row.
func (c *Controller) resolveFocus(r *FetchResult) (ops []Op, waiting bool) {
	target := *c.pendingFocus
	row, loaded := target.pos.Row, target.pos.Row < c.fetcher.Len()
	if target.record != nil {
		if i, ok := c.fetcher.IndexOf(*target.record); ok {
			row, loaded = i, true
		}
	}
	if loaded {
		c.pendingFocus = nil
		p := Position{Row: row, Col: target.pos.Col}
		if target.keepScroll {
			c.focus = p
			c.clampFocus()
			return c.nearBottom(), false
		}
		return c.applyFocus(p), false
	}
	if c.fetcher.HasMore() && r.Page != nil && len(r.Page.Records) > 0 {
		return c.startNext(), true
	}
	c.pendingFocus = nil
	return nil, false
}

// holdFocus keeps the current focus across a refresh: the row is refetched until it is
// loaded again, following its record if rows were added or removed above it.
func (c *Controller) holdFocus() {
	if c.pendingFocus != nil {
		return
	}
	t := &focusTarget{pos: c.focus, keepScroll: true}
	if rec, ok := c.fetcher.Row(c.focus.Row); ok {
		id := rec.ID
		t.record = &id
	}
	c.pendingFocus = t
}

func (c *Controller) completeUpsert(r *UpsertResult) {
	key := cellKey{r.Op.Write.RecordID, r.Op.Write.FieldID}
	ov, ok := c.overlays[key]
	latest := ok && ov.seq == r.Op.seq

	if r.Err != nil {
		if latest {
			delete(c.overlays, key)
		}
		c.cellErr = fmt.Errorf("saving cell failed: %w", r.Err)
		c.log.Warn("cell upsert failed", "record_id", key.record.String(), "field_id", key.field.String(), "error", r.Err)
		return
	}
	c.fetcher.SetCell(*r.Cell)
	if latest {
		delete(c.overlays, key)
	}
}

func (c *Controller) setState(to State) {
	if c.state == to {
		return
	}
	if err := validateTransition(c.state, to); err != nil {
		c.log.Error("grid state reset", "table_id", c.tableID.String(), "error", err)
		c.state = Idle
		return
	}
	c.state = to
}

func (c *Controller) startNext() []Op {
	op := c.fetcher.PrepareNext()
	if op == nil {
		return nil
	}
	c.setState(FetchingNext)
	return []Op{op}
}

func (c *Controller) startRefresh() []Op {
	if !c.restorePending {
		c.restoreOffset = c.scrollOffset
		c.restorePending = true
	}
	c.holdFocus()
	c.viewport.ResetMeasurements()
	c.setState(RefreshingAll)
	return []Op{c.fetcher.PrepareRefresh()}
}

// nearBottom starts a page fetch when the viewport is close to the end of the loaded
// rows and more rows exist.
func (c *Controller) nearBottom() []Op {
	if c.state != Idle || !c.fetcher.HasMore() || c.viewportHeight <= 0 {
		return nil
	}
	total := c.viewport.TotalHeight(c.fetcher.Len())
	if total-(c.scrollOffset+c.viewportHeight) < c.cfg.BottomThreshold {
		return c.startNext()
	}
	return nil
}

// Triggers

// OnScroll records the scroll position. Near the bottom it fetches the next page;
// scrolling into the top zone refreshes. Triggers are dropped while a fetch is in flight.
func (c *Controller) OnScroll(offset, viewportHeight float64) []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.scrollOffset
	c.scrollOffset = math.Max(0, offset)
	c.viewportHeight = viewportHeight
	if c.state != Idle {
		return nil
	}
	if ops := c.nearBottom(); ops != nil {
		return ops
	}
	if c.scrollOffset < c.cfg.TopThreshold && prev >= c.cfg.TopThreshold {
		return c.startRefresh()
	}
	return nil
}

// Refresh is a user-requested refresh. It is dropped while a fetch is in flight.
func (c *Controller) Refresh() []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return nil
	}
	return c.startRefresh()
}

// Invalidate is a mutation-driven refresh. It supersedes a page fetch in flight; during
// a refresh it schedules one more refresh for when the current one settles.
func (c *Controller) Invalidate() []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Idle, FetchingNext:
		return c.startRefresh()
	default:
		c.refreshAgain = true
		return nil
	}
}

// Retry repeats the last failed fetch.
func (c *Controller) Retry() []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle || c.fetcher.LastError() == nil {
		return nil
	}
	if c.lastFailed == Refresh || c.fetcher.Len() == 0 {
		return c.startRefresh()
	}
	return c.startNext()
}

// Watch refreshes the grid whenever the table's record list is invalidated on bus.
// deliver receives the resulting Ops; it runs on the invalidating goroutine.
func (c *Controller) Watch(bus *cache.Bus, deliver func([]Op)) (unsubscribe func()) {
	return bus.Subscribe(cache.RecordListKey(c.tableID), func(string) {
		deliver(c.Invalidate())
	})
}

// SetQuery changes search, filters and sorts and restarts from the first page.
// A fetch in flight is abandoned.
func (c *Controller) SetQuery(search string, filters []models.Filter, sorts []models.Sort) []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetcher.Reset(store.RecordQuery{
		TableID: c.tableID,
		Limit:   c.cfg.Limit,
		Search:  search,
		Filters: filters,
		Sorts:   sorts,
	})
	c.state = Idle
	c.prefetched = false
	c.refreshAgain = false
	c.restorePending = false
	c.pendingFocus = nil
	c.scrollOffset = 0
	c.focus.Row = 0
	c.viewport.ResetMeasurements()
	return c.startNext()
}

// ApplyView applies a saved view's filters, sorts and hidden fields.
func (c *Controller) ApplyView(v *models.View) []Op {
	c.mu.Lock()
	c.viewport.Columns.HideOnly(v.HiddenFieldList())
	c.clampFocus()
	search := c.fetcher.Query().Search
	c.mu.Unlock()
	return c.SetQuery(search, v.FilterList(), v.SortList())
}

// Navigation

// Tab moves focus to the next cell, wrapping to the first column of the next row.
// With shift it moves to the previous cell, wrapping to the last column of the
// previous row; at the first cell it does nothing. While editing, the edit is
// committed first. A target row that is not loaded yet becomes the pending focus and
// is applied once its page arrives.
func (c *Controller) Tab(shift bool) []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops := c.commitEdit()
	return append(ops, c.tab(shift)...)
}

func (c *Controller) tab(shift bool) []Op {
	n := len(c.viewport.Columns.Visible())
	if n == 0 {
		return nil
	}
	p := c.focus
	switch {
	case !shift && p.Col < n-1:
		p.Col++
	case !shift:
		p = Position{Row: p.Row + 1, Col: 0}
	case p.Col > 0:
		p.Col--
	case p.Row > 0:
		p = Position{Row: p.Row - 1, Col: n - 1}
	default:
		return nil
	}
	return c.focusTo(p)
}

// Move shifts focus by rows and columns (arrow keys). Columns clamp at the edges;
// moving below the loaded rows fetches more when possible.
func (c *Controller) Move(dRow, dCol int) []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops := c.commitEdit()
	n := len(c.viewport.Columns.Visible())
	if n == 0 {
		return ops
	}
	p := Position{Row: max(0, c.focus.Row+dRow), Col: max(0, min(n-1, c.focus.Col+dCol))}
	return append(ops, c.focusTo(p)...)
}

func (c *Controller) focusTo(p Position) []Op {
	if p.Row < c.fetcher.Len() {
		c.pendingFocus = nil
		ops := c.applyFocus(p)
		if c.state == RefreshingAll {
			c.holdFocus()
		}
		return ops
	}
	if !c.fetcher.HasMore() {
		return nil
	}
	c.pendingFocus = &focusTarget{pos: p}
	if c.state == Idle {
		return c.startNext()
	}
	return nil
}

// applyFocus sets focus and scrolls the row into view.
func (c *Controller) applyFocus(p Position) []Op {
	c.focus = p
	top := c.viewport.OffsetOf(p.Row)
	bottom := top + c.viewport.MeasureRow(p.Row)
	switch {
	case top < c.scrollOffset:
		c.scrollOffset = top
	case c.viewportHeight > 0 && bottom > c.scrollOffset+c.viewportHeight:
		c.scrollOffset = bottom - c.viewportHeight
	}
	return c.nearBottom()
}

func (c *Controller) clampFocus() {
	n := len(c.viewport.Columns.Visible())
	c.focus.Col = max(0, min(c.focus.Col, n-1))
	c.focus.Row = max(0, min(c.focus.Row, c.fetcher.Len()-1))
}

// Editing

// HandleKey routes a key to the cell editor. In Viewing, Enter and Space start editing
// the focused cell and Tab/Shift+Tab navigate. Keys the grid does not interpret
// return handled == false.
func (c *Controller) HandleKey(key string) (ops []Op, handled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cellErr = nil

	if c.editor.Editing() {
		act := c.editor.HandleKey(key)
		if !act.Handled {
			return nil, false
		}
		if act.Write != nil {
			ops = append(ops, c.commit(*act.Write))
		}
		switch act.Navigate {
		case NavNext:
			ops = append(ops, c.tab(false)...)
		case NavPrev:
			ops = append(ops, c.tab(true)...)
		}
		return ops, true
	}

	switch key {
	case KeyEnter, KeySpace, "space":
		return nil, c.beginEdit()
	case KeyTab:
		return c.tab(false), true
	case KeyShiftTab:
		return c.tab(true), true
	}
	return nil, false
}

// Input replaces the edit buffer of the cell being edited.
func (c *Controller) Input(value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editor.Input(value)
}

// Blur commits an edit in progress, as losing focus does.
func (c *Controller) Blur() []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commitEdit()
}

func (c *Controller) beginEdit() bool {
	rec, ok := c.fetcher.Row(c.focus.Row)
	if !ok {
		return false
	}
	cols := c.viewport.Columns.Visible()
	if c.focus.Col >= len(cols) {
		return false
	}
	field := cols[c.focus.Col].Field
	c.editor.Begin(rec.ID, field, c.display(rec, field))
	return true
}

func (c *Controller) commitEdit() []Op {
	if w := c.editor.Commit(); w != nil {
		return []Op{c.commit(*w)}
	}
	return nil
}

// commit shows the write optimistically and returns its upsert.
func (c *Controller) commit(w store.CellWrite) Op {
	c.upsertSeq++
	c.overlays[cellKey{w.RecordID, w.FieldID}] = overlay{seq: c.upsertSeq, text: w.TextValue, number: w.NumberValue}
	return &UpsertOp{Write: w, seq: c.upsertSeq, source: c.source, timeout: c.cfg.Timeout}
}

// Rendering

// DisplayValue is the text shown for a cell, including optimistic edits.
func (c *Controller) DisplayValue(rec *models.Record, field *models.Field) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.display(rec, field)
}

func (c *Controller) display(rec *models.Record, field *models.Field) string {
	if ov, ok := c.overlays[cellKey{rec.ID, field.ID}]; ok {
		return formatCell(field, ov.text, ov.number)
	}
	cv := rec.Cell(field.ID)
	if cv == nil {
		return ""
	}
	return formatCell(field, cv.TextValue, cv.NumberValue)
}

func formatCell(field *models.Field, text *string, number *float64) string {
	if field.Type == models.FieldTypeNumber {
		if number == nil {
			return ""
		}
		return store.FormatNumber(*number)
	}
	if text == nil {
		return ""
	}
	return *text
}

// Visible returns the range of rows to render and those rows.
func (c *Controller) Visible() (Range, []*models.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := c.fetcher.Rows()
	r := c.viewport.ComputeVisibleRange(c.scrollOffset, c.viewportHeight, len(rows))
	return r, rows[r.Start:r.End]
}

// Columns returns the visible columns in display order.
func (c *Controller) Columns() []Column {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport.Columns.Visible()
}

// Layout gives access to the column layout. Changes take effect on the next render.
func (c *Controller) Layout(fn func(*Columns)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.viewport.Columns)
	c.clampFocus()
}

func (c *Controller) Fields() []*models.Field {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*models.Field(nil), c.fields...)
}

func (c *Controller) TableID() models.TableID { return c.tableID }

func (c *Controller) Rows() []*models.Record { return c.fetcher.Rows() }

func (c *Controller) TotalCount() int { return c.fetcher.TotalCount() }

func (c *Controller) HasMore() bool { return c.fetcher.HasMore() }

func (c *Controller) Generation() uint64 { return c.fetcher.Generation() }

func (c *Controller) Search() string { return c.fetcher.Query().Search }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Focus() Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focus
}

func (c *Controller) PendingFocus() (Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingFocus == nil {
		return Position{}, false
	}
	return c.pendingFocus.pos, true
}

// FocusedRecord returns the record under focus, if loaded.
func (c *Controller) FocusedRecord() (*models.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetcher.Row(c.focus.Row)
}

func (c *Controller) ScrollOffset() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scrollOffset
}

// SetViewportHeight updates the viewport size without a scroll event.
func (c *Controller) SetViewportHeight(h float64) []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewportHeight = h
	return c.nearBottom()
}

// Editor exposes the cell editor for rendering the edit buffer.
func (c *Controller) Editor() (state EditorState, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editor.State(), c.editor.Value()
}

// LastError is the error of the last failed fetch; Retry repeats that fetch.
func (c *Controller) LastError() error { return c.fetcher.LastError() }

// CellError is the error of the last failed cell commit. It is cleared by the next key.
func (c *Controller) CellError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cellErr
}

// IsTerminal reports whether err will not go away by retrying: the table is gone or
// not the caller's.
func IsTerminal(err error) bool {
	return errors.Is(err, store.ErrForbidden) || errors.Is(err, store.ErrNotFound)
}
