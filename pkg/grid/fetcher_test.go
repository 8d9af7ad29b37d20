package grid

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

func newTestFetcher(src *fakeSource) *PageFetcher {
	return NewPageFetcher(src, store.RecordQuery{TableID: src.tableID, Limit: 50}, 0, nil)
}

func TestFetchPageCursorScenario(t *testing.T) {
	ctx := context.Background()
	f := newTestFetcher(newFakeSource(120))

	page, err := f.FetchPage(ctx, 0, 50)
	require.NoError(t, err)
	require.Len(t, page.Records, 50)
	require.Equal(t, 120, page.TotalCount)
	require.NotNil(t, page.NextCursor)
	require.Equal(t, 50, *page.NextCursor)

	page, err = f.FetchPage(ctx, 50, 50)
	require.NoError(t, err)
	require.Len(t, page.Records, 50)
	require.Equal(t, 100, *page.NextCursor)

	page, err = f.FetchPage(ctx, 100, 50)
	require.NoError(t, err)
	require.Len(t, page.Records, 20)
	require.Nil(t, page.NextCursor)

	require.Zero(t, f.Len(), "FetchPage must not touch the flattened sequence")
}

func TestFetchNextGrowsByAtMostLimitWithoutDuplicates(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	f := newTestFetcher(src)

	for i := 0; f.NextCursor() != nil; i++ {
		require.Less(t, i, 20, "pagination did not terminate")
		before := f.Len()
		// Concurrent inserts shift every offset by 7 rows.
		src.insert(7)
		require.NoError(t, f.FetchNext(ctx))
		require.LessOrEqual(t, f.Len()-before, 50)

		seen := map[models.RecordID]bool{}
		for _, rec := range f.Rows() {
			require.False(t, seen[rec.ID], "duplicate record %s", rec.ID)
			seen[rec.ID] = true
		}
	}
	require.False(t, f.HasMore())
}

func TestFetchNextIsNoOpWhileInFlight(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	f := newTestFetcher(src)

	op := f.PrepareNext()
	require.NotNil(t, op)
	require.True(t, f.InFlight())
	require.Nil(t, f.PrepareNext())
	require.NoError(t, f.FetchNext(ctx))
	require.Zero(t, src.calls())

	applied, err := f.Apply(op.Run(ctx).(*FetchResult))
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, 50, f.Len())
	require.False(t, f.InFlight())
}

func TestFetchNextFailureKeepsFetchedPages(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	f := newTestFetcher(src)
	require.NoError(t, f.FetchNext(ctx))

	src.listErr = errors.New("connection reset")
	require.Error(t, f.FetchNext(ctx))
	require.Equal(t, 50, f.Len())
	require.False(t, f.InFlight())
	require.Error(t, f.LastError())
	require.Equal(t, 50, *f.NextCursor())

	src.listErr = nil
	require.NoError(t, f.FetchNext(ctx))
	require.Equal(t, 100, f.Len())
	require.NoError(t, f.LastError())
}

func TestRefreshDiscardsStaleNextPage(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	f := newTestFetcher(src)
	require.NoError(t, f.FetchNext(ctx))

	next := f.PrepareNext()
	refresh := f.PrepareRefresh()
	require.Greater(t, refresh.Generation, next.Generation)

	src.insert(1)
	applied, err := f.Apply(refresh.Run(ctx).(*FetchResult))
	require.NoError(t, err)
	require.True(t, applied)
	first := f.Rows()[0]

	applied, err = f.Apply(next.Run(ctx).(*FetchResult))
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, 50, f.Len())
	require.Equal(t, first.ID, f.Rows()[0].ID)
}

func TestRefreshAllRestartsFromFirstPage(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	f := newTestFetcher(src)
	for f.NextCursor() != nil {
		require.NoError(t, f.FetchNext(ctx))
	}
	require.Equal(t, 120, f.Len())

	added := src.insert(5)
	require.NoError(t, f.RefreshAll(ctx))
	require.Equal(t, 50, f.Len())
	require.Equal(t, 125, f.TotalCount())
	require.Equal(t, added[4].ID, f.Rows()[0].ID)
	require.Equal(t, 50, *f.NextCursor())
}

func TestSetCellReplacesRow(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(3)
	f := newTestFetcher(src)
	require.NoError(t, f.FetchNext(ctx))

	before := f.Rows()
	rec := before[0]
	text := "updated"
	require.True(t, f.SetCell(models.CellValue{RecordID: rec.ID, FieldID: src.fields[2].ID, TextValue: &text}))

	after, _ := f.Row(0)
	require.Equal(t, "updated", *after.Cell(src.fields[2].ID).TextValue)
	require.Nil(t, before[0].Cell(src.fields[2].ID), "earlier snapshots stay unchanged")

	require.False(t, f.SetCell(models.CellValue{RecordID: models.NewRecordID(), FieldID: src.fields[2].ID}))
}

func TestResetStartsOverWithNewQuery(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(120)
	f := newTestFetcher(src)
	require.NoError(t, f.FetchNext(ctx))
	stale := f.PrepareNext()
	gen := f.Generation()

	f.Reset(store.RecordQuery{TableID: src.tableID, Search: "row 11"})
	require.Greater(t, f.Generation(), gen)
	require.Zero(t, f.Len())
	require.True(t, f.HasMore())

	applied, err := f.Apply(stale.Run(ctx).(*FetchResult))
	require.NoError(t, err)
	require.False(t, applied)

	require.NoError(t, f.FetchNext(ctx))
	// "row 11" and "row 110".."row 119"
	require.Equal(t, 11, f.Len())
	require.Equal(t, 50, f.Query().Limit)
}
