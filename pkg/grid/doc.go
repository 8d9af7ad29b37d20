// Package grid is the paginated record grid: it fetches, caches and incrementally
// renders a potentially very large ordered list of records, with inline cell editing
// and keyboard navigation.
//
// # Components
//
//   - [PageFetcher] pulls pages from a [Source] in cursor order and keeps the flattened,
//     deduplicated record sequence for one table session.
//   - [Viewport] decides which rows are visible for a scroll position (virtualization)
//     and owns the column layout.
//   - [CellEditor] is the display/edit state machine of one cell.
//   - [Controller] wires them together: it decides when to fetch, coordinates keyboard
//     navigation with loading, and applies cell edits optimistically.
//
// # Model-View-Update
//
// Nothing in this package blocks on I/O while holding state. Controller events
// (scroll, key, refresh, invalidation) return [Op] values describing the I/O to do.
// The caller runs each Op wherever it likes, typically as a bubbletea command, and
// hands the [Outcome] back to [Controller.Complete], which may return follow-up Ops:
//
//	ops := ctrl.OnScroll(offset, height)
//	for _, op := range ops {
//		go func(op grid.Op) { results <- op.Run(ctx) }(op)
//	}
//	...
//	more := ctrl.Complete(<-results)
//
// [Controller.Drive] runs Ops synchronously until none are left, which is what tests
// and simple callers use.
//
// # Fetch Discipline
//
// The controller is in one of three states: [Idle], [FetchingNext] or [RefreshingAll].
// Scroll and navigation triggers that arrive while it is busy are dropped, not queued.
// When a fetch settles the controller re-checks the bottom-proximity condition from
// the last known scroll position, so a dropped trigger is not lost for good.
//
// Every refresh bumps the fetcher's generation. Outcomes of fetches from an older
// generation are discarded, so a late page from a superseded fetch can never overwrite
// the data of a newer refresh.
//
// # Consistency
//
// Cursors are offsets. Records inserted concurrently shift offsets, so a record can show
// up in two pages; the fetcher deduplicates by record ID. Records can also be skipped;
// a refresh (triggered by scrolling to the top, by the user, or by an invalidation
// from [github.com/surrealdb/surrealgrid/pkg/cache]) restarts from cursor 0.
// TotalCount is a snapshot taken with each page.
package grid
