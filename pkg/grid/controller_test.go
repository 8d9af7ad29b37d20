package grid

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surrealgrid/pkg/cache"
	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

// newTestController loads a controller with rows 10 units tall, so 100 loaded rows
// are 1000 units high.
func newTestController(t *testing.T, src *fakeSource) *Controller {
	t.Helper()
	c := NewController(src, src.tableID, Config{Limit: 50, RowHeight: 10, Overscan: 2})
	require.NoError(t, c.Load(context.Background()))
	return c
}

func TestLoadPrefetchesSecondPage(t *testing.T) {
	src := newFakeSource(120)
	c := newTestController(t, src)

	require.Equal(t, Idle, c.State())
	require.Len(t, c.Rows(), 100)
	require.Equal(t, 2, src.calls())
	require.Equal(t, 120, c.TotalCount())
	require.Len(t, c.Columns(), 3)
	require.Equal(t, "Title", c.Columns()[0].Field.Name)
}

func TestLoadSmallTableStopsAfterOnePage(t *testing.T) {
	src := newFakeSource(3)
	c := newTestController(t, src)
	require.Len(t, c.Rows(), 3)
	require.False(t, c.HasMore())
	require.Equal(t, 1, src.calls())
}

func TestScrollNearBottomFetchesNextPage(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	c := newTestController(t, src)

	require.Empty(t, c.OnScroll(500, 200))

	ops := c.OnScroll(750, 200)
	require.Len(t, ops, 1)
	require.Equal(t, FetchingNext, c.State())

	// Triggers while busy are dropped.
	require.Empty(t, c.OnScroll(760, 200))
	require.Empty(t, c.Refresh())

	c.Drive(ctx, ops...)
	require.Equal(t, Idle, c.State())
	require.Len(t, c.Rows(), 120)
	require.False(t, c.HasMore())
	require.Empty(t, c.OnScroll(1000, 200))
}

func TestScrollDroppedWhileBusyIsReconsideredAfterFetch(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(300)
	c := newTestController(t, src)

	ops := c.OnScroll(750, 200)
	require.Len(t, ops, 1)
	require.Empty(t, c.OnScroll(1300, 200))

	// Page three lands at 1500 units, still within reach of the dropped scroll.
	c.Drive(ctx, ops...)
	require.Len(t, c.Rows(), 200)
	require.Equal(t, Idle, c.State())
	require.True(t, c.HasMore())
}

func TestScrollIntoTopZoneRefreshes(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	c := newTestController(t, src)

	require.Empty(t, c.OnScroll(300, 200))
	ops := c.OnScroll(20, 200)
	require.Len(t, ops, 1)
	require.Equal(t, RefreshingAll, c.State())

	added := src.insert(3)
	c.Drive(ctx, ops...)
	require.Equal(t, Idle, c.State())
	require.Equal(t, added[2].ID, c.Rows()[0].ID)
	require.Equal(t, 123, c.TotalCount())
	require.Equal(t, 20.0, c.ScrollOffset())

	// Staying inside the zone does not refresh again.
	require.Empty(t, c.OnScroll(10, 200))
}

func TestRefreshRestoresScrollOffset(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	c := newTestController(t, src)
	require.Empty(t, c.OnScroll(500, 200))

	c.Drive(ctx, c.Invalidate()...)
	require.Equal(t, 500.0, c.ScrollOffset())
	// The restored offset sits at the end of the refreshed first page, so the next page
	// is loaded as well.
	require.Len(t, c.Rows(), 100)
	require.Equal(t, Idle, c.State())
}

// editFocusedRow scrolls to the end of a 120 row table, focuses row 110 and commits an
// edit there.
func editFocusedRow(t *testing.T, src *fakeSource, col int) *Controller {
	t.Helper()
	ctx := context.Background()
	c := newTestController(t, src)
	c.Drive(ctx, c.OnScroll(900, 200)...)
	require.Len(t, c.Rows(), 120)

	c.Drive(ctx, c.Move(110, col)...)
	require.Equal(t, Position{110, col}, c.Focus())
	_, handled := c.HandleKey(KeyEnter)
	require.True(t, handled)
	c.Input("edited")
	ops, _ := c.HandleKey(KeyEnter)
	require.Len(t, ops, 1)
	c.Drive(ctx, ops...)
	return c
}

func TestFocusSurvivesInvalidatePastFirstPage(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	c := editFocusedRow(t, src, 0)
	rec, ok := c.FocusedRecord()
	require.True(t, ok)
	offset := c.ScrollOffset()

	c.Drive(ctx, c.Invalidate()...)
	require.Equal(t, Idle, c.State())
	require.Len(t, c.Rows(), 120)
	require.Equal(t, Position{110, 0}, c.Focus())
	require.Equal(t, offset, c.ScrollOffset())
	_, pending := c.PendingFocus()
	require.False(t, pending)

	got, ok := c.FocusedRecord()
	require.True(t, ok)
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, "edited", c.DisplayValue(got, src.fields[0]))
}

func TestFocusFollowsRecordAcrossRefresh(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	c := editFocusedRow(t, src, 2)
	rec, _ := c.FocusedRecord()

	src.insert(2)
	c.Drive(ctx, c.Invalidate()...)
	require.Equal(t, Position{112, 2}, c.Focus())
	got, ok := c.FocusedRecord()
	require.True(t, ok)
	require.Equal(t, rec.ID, got.ID)
}

func TestFocusFallsBackToRowWhenRecordIsGone(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	c := editFocusedRow(t, src, 0)
	rec, _ := c.FocusedRecord()

	src.mu.Lock()
	for i, r := range src.records {
		if r.ID == rec.ID {
			src.records = append(src.records[:i], src.records[i+1:]...)
			break
		}
	}
	src.mu.Unlock()

	c.Drive(ctx, c.Invalidate()...)
	require.Len(t, c.Rows(), 119)
	require.Equal(t, Position{110, 0}, c.Focus())
}

func TestFocusOnRefreshFailureStaysPut(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	c := editFocusedRow(t, src, 1)

	src.listErr = errors.New("unavailable")
	c.Drive(ctx, c.Invalidate()...)
	require.Error(t, c.LastError())
	require.Equal(t, Position{110, 1}, c.Focus())
	_, pending := c.PendingFocus()
	require.False(t, pending)
}

func TestInvalidateSupersedesFetchNextInFlight(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	c := newTestController(t, src)

	next := c.OnScroll(750, 200)
	require.Len(t, next, 1)
	gen := c.Generation()

	refresh := c.Invalidate()
	require.Len(t, refresh, 1)
	require.Equal(t, RefreshingAll, c.State())
	require.Greater(t, c.Generation(), gen)

	added := src.insert(2)
	c.Complete(refresh[0].Run(ctx))
	rows := c.Rows()
	require.Len(t, rows, 50)
	require.Equal(t, added[1].ID, rows[0].ID)

	// The late page of the superseded fetch is discarded.
	require.Empty(t, c.Complete(next[0].Run(ctx)))
	require.Equal(t, rows, c.Rows())
}

func TestInvalidateDuringRefreshCoalesces(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(10)
	c := newTestController(t, src)

	ops := c.Refresh()
	require.Len(t, ops, 1)
	require.Empty(t, c.Invalidate())
	require.Empty(t, c.Invalidate())

	src.insert(1)
	again := c.Complete(ops[0].Run(ctx))
	require.Len(t, again, 1)
	require.Equal(t, RefreshingAll, c.State())

	c.Drive(ctx, again...)
	require.Equal(t, Idle, c.State())
	require.Len(t, c.Rows(), 11)
}

func TestTabWrapsAcrossRows(t *testing.T) {
	src := newFakeSource(120)
	c := newTestController(t, src)
	require.Equal(t, Position{0, 0}, c.Focus())

	require.Empty(t, c.Tab(false))
	require.Equal(t, Position{0, 1}, c.Focus())
	c.Tab(false)
	require.Equal(t, Position{0, 2}, c.Focus())
	c.Tab(false)
	require.Equal(t, Position{1, 0}, c.Focus())

	c.Tab(true)
	require.Equal(t, Position{0, 2}, c.Focus())
	c.Move(0, -5)
	require.Equal(t, Position{0, 0}, c.Focus())
	require.Empty(t, c.Tab(true))
	require.Equal(t, Position{0, 0}, c.Focus())
}

func TestTabIntoUnloadedRowDefersFocus(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	c := newTestController(t, src)
	c.Move(99, 2)
	require.Equal(t, Position{99, 2}, c.Focus())

	ops := c.Tab(false)
	require.Len(t, ops, 1)
	pending, ok := c.PendingFocus()
	require.True(t, ok)
	require.Equal(t, Position{100, 0}, pending)
	require.Equal(t, Position{99, 2}, c.Focus())

	c.Drive(ctx, ops...)
	require.Equal(t, Position{100, 0}, c.Focus())
	_, ok = c.PendingFocus()
	require.False(t, ok)
}

func TestDeferredFocusGivesUpOnFailure(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	c := newTestController(t, src)
	c.Move(99, 2)

	src.listErr = errors.New("timeout")
	c.Drive(ctx, c.Tab(false)...)
	require.Equal(t, Position{99, 2}, c.Focus())
	_, ok := c.PendingFocus()
	require.False(t, ok)
	require.Error(t, c.LastError())
	require.Equal(t, Idle, c.State())

	src.listErr = nil
	ops := c.Retry()
	require.Len(t, ops, 1)
	c.Drive(ctx, ops...)
	require.NoError(t, c.LastError())
	require.Len(t, c.Rows(), 120)
}

func TestLastRowTabIsNoOpWhenExhausted(t *testing.T) {
	src := newFakeSource(2)
	c := newTestController(t, src)
	c.Move(1, 2)
	require.Empty(t, c.Tab(false))
	require.Equal(t, Position{1, 2}, c.Focus())
}

func TestEditUnchangedIssuesNoUpsert(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(1)
	src.setText(src.newest(), src.fields[0], "abc")
	c := newTestController(t, src)

	_, handled := c.HandleKey(KeyEnter)
	require.True(t, handled)
	state, value := c.Editor()
	require.Equal(t, Editing, state)
	require.Equal(t, "abc", value)

	c.Input("abc")
	ops, _ := c.HandleKey(KeyEnter)
	require.Empty(t, ops)
	require.Empty(t, src.upserts)

	c.HandleKey(KeyEnter)
	c.Input("abcd")
	ops, _ = c.HandleKey(KeyEnter)
	require.Len(t, ops, 1)

	rec := c.Rows()[0]
	require.Equal(t, "abcd", c.DisplayValue(rec, src.fields[0]), "optimistic value")

	c.Drive(ctx, ops...)
	require.Len(t, src.upserts, 1)
	require.Equal(t, "abcd", *src.upserts[0].TextValue)
	require.Nil(t, src.upserts[0].NumberValue)
	require.Equal(t, "abcd", c.DisplayValue(c.Rows()[0], src.fields[0]))
}

func TestNumberEditWithTextClearsValue(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(1)
	c := newTestController(t, src)
	c.Move(0, 1)

	c.HandleKey(KeySpace)
	c.Input("not a number")
	ops, _ := c.HandleKey(KeyEnter)
	c.Drive(ctx, ops...)

	require.Len(t, src.upserts, 1)
	require.Nil(t, src.upserts[0].NumberValue)
	require.Nil(t, src.upserts[0].TextValue)
	require.Equal(t, "", c.DisplayValue(c.Rows()[0], src.fields[1]))
}

func TestEscapeDiscardsEdit(t *testing.T) {
	src := newFakeSource(1)
	c := newTestController(t, src)
	original := c.DisplayValue(c.Rows()[0], src.fields[0])

	c.HandleKey(KeyEnter)
	c.Input("changed")
	ops, handled := c.HandleKey(KeyEscape)
	require.True(t, handled)
	require.Empty(t, ops)
	require.Equal(t, original, c.DisplayValue(c.Rows()[0], src.fields[0]))
	state, _ := c.Editor()
	require.Equal(t, Viewing, state)
}

func TestFailedCommitRevertsDisplay(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(1)
	c := newTestController(t, src)
	rec := c.Rows()[0]
	original := c.DisplayValue(rec, src.fields[0])

	src.upsertErr = store.ErrForbidden
	c.HandleKey(KeyEnter)
	c.Input("rejected")
	ops, _ := c.HandleKey(KeyEnter)
	require.Equal(t, "rejected", c.DisplayValue(rec, src.fields[0]))

	c.Drive(ctx, ops...)
	require.Equal(t, original, c.DisplayValue(c.Rows()[0], src.fields[0]))
	require.ErrorIs(t, c.CellError(), store.ErrForbidden)

	c.HandleKey("x")
	require.NoError(t, c.CellError())
}

func TestTabWhileEditingCommitsAndMoves(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(1)
	c := newTestController(t, src)

	c.HandleKey(KeyEnter)
	c.Input("next")
	ops, handled := c.HandleKey(KeyTab)
	require.True(t, handled)
	require.Len(t, ops, 1)
	require.Equal(t, Position{0, 1}, c.Focus())

	c.Drive(ctx, ops...)
	require.Len(t, src.upserts, 1)
	require.Equal(t, src.fields[0].ID, src.upserts[0].FieldID)
}

func TestTextKeysWhileEditingAreInput(t *testing.T) {
	src := newFakeSource(1)
	c := newTestController(t, src)
	c.HandleKey(KeyEnter)
	_, handled := c.HandleKey("a")
	require.False(t, handled)
	_, handled = c.HandleKey(KeySpace)
	require.False(t, handled)
}

func TestWatchRefreshesOnInvalidation(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(5)
	c := newTestController(t, src)
	bus := cache.New()
	unsubscribe := c.Watch(bus, func(ops []Op) { c.Drive(ctx, ops...) })
	defer unsubscribe()

	added := src.insert(1)
	bus.Invalidate(cache.CellValueKey(added[0].ID))
	require.Len(t, c.Rows(), 5)

	bus.Invalidate(cache.RecordListKey(src.tableID))
	require.Len(t, c.Rows(), 6)
	require.Equal(t, added[0].ID, c.Rows()[0].ID)
}

func TestSetQueryRestartsPaging(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	c := newTestController(t, src)
	c.Move(40, 1)

	c.Drive(ctx, c.SetQuery("row 11", nil, nil)...)
	require.Len(t, c.Rows(), 11)
	require.Equal(t, "row 11", c.Search())
	require.Equal(t, Position{0, 1}, c.Focus())
}

func TestApplyViewFiltersSortsAndHidesColumns(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	c := newTestController(t, src)
	c.Drive(ctx, c.SetQuery("row", nil, nil)...)
	c.Drive(ctx, c.OnScroll(600, 200)...)
	c.Move(40, 2)
	gen := c.Generation()

	value, notes := src.fields[1], src.fields[2]
	view := &models.View{
		ID:           models.NewViewID(),
		Name:         "Large values",
		TableID:      src.tableID,
		Filters:      models.EncodeList([]models.Filter{{FieldID: value.ID, Operator: models.OpGreaterThan, Value: "59"}}),
		Sorts:        models.EncodeList([]models.Sort{{FieldID: value.ID, Direction: models.SortAsc}}),
		HiddenFields: models.EncodeList([]models.FieldID{notes.ID}),
	}
	ops := c.ApplyView(view)
	require.Len(t, ops, 1)
	require.Equal(t, FetchingNext, c.State())
	require.Greater(t, c.Generation(), gen)
	require.Zero(t, c.ScrollOffset())

	c.Drive(ctx, ops...)
	rows := c.Rows()
	require.Len(t, rows, 60)
	require.Equal(t, "60", c.DisplayValue(rows[0], value))
	require.Equal(t, "119", c.DisplayValue(rows[59], value))
	require.Equal(t, "row", c.Search())

	cols := c.Columns()
	require.Len(t, cols, 2)
	for _, col := range cols {
		require.NotEqual(t, notes.ID, col.Field.ID)
	}
	require.Equal(t, Position{0, 1}, c.Focus())
}

func TestLayoutMovesColumns(t *testing.T) {
	src := newFakeSource(3)
	c := newTestController(t, src)
	c.Move(0, 2)

	c.Layout(func(cols *Columns) {
		require.NoError(t, cols.Move(src.fields[2].ID, 0))
		require.NoError(t, cols.SetHidden(src.fields[1].ID, true))
	})
	cols := c.Columns()
	require.Len(t, cols, 2)
	require.Equal(t, src.fields[2].ID, cols[0].Field.ID)
	require.Equal(t, Position{0, 1}, c.Focus())
}

func TestVisibleRowsFollowScroll(t *testing.T) {
	src := newFakeSource(120)
	c := newTestController(t, src)
	c.OnScroll(200, 100)

	r, rows := c.Visible()
	require.Equal(t, Range{Start: 18, End: 32}, r)
	require.Len(t, rows, 14)
	require.Equal(t, c.Rows()[18].ID, rows[0].ID)
}

func TestStateTransitions(t *testing.T) {
	require.True(t, canTransition(Idle, FetchingNext))
	require.True(t, canTransition(Idle, RefreshingAll))
	require.True(t, canTransition(FetchingNext, RefreshingAll))
	require.False(t, canTransition(RefreshingAll, FetchingNext))
	require.False(t, canTransition(Idle, Idle))
}

type recordingLogger struct {
	errors []string
}

func (l *recordingLogger) Error(msg string, _ ...any) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Warn(string, ...any)        {}
func (l *recordingLogger) Info(string, ...any)        {}
func (l *recordingLogger) Debug(string, ...any)       {}

func TestInvalidTransitionResetsToIdle(t *testing.T) {
	log := &recordingLogger{}
	src := newFakeSource(1)
	c := NewController(src, src.tableID, Config{Logger: log})

	c.state = RefreshingAll
	c.setState(FetchingNext)
	require.Equal(t, Idle, c.State())
	require.Equal(t, []string{"grid state reset"}, log.errors)

	require.Error(t, validateTransition(RefreshingAll, FetchingNext))
	require.NoError(t, validateTransition(FetchingNext, RefreshingAll))
}

func TestIsTerminal(t *testing.T) {
	require.True(t, IsTerminal(store.NotFoundf("table x")))
	require.True(t, IsTerminal(store.ErrForbidden))
	require.False(t, IsTerminal(errors.New("dial tcp: refused")))
}
