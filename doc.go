// Package surrealgrid is a spreadsheet-style organizer built around a paginated
// record grid, with interchangeable relational and SurrealDB backends.
//
// Users own bases. Bases hold tables, and each table has typed fields (text or
// number), records, and saved views. A record's value for a field is a cell.
// Tables can grow to hundreds of thousands of records, so nothing in the
// application ever loads a whole table: records are read page by page with an
// offset cursor, and the client keeps only the pages the user has scrolled
// through.
//
// # Features
//
//   - Several backends behind one interface: PostgreSQL, MySQL and SQLite through GORM,
//     and SurrealDB through the Go SDK without an ORM
//   - Server-side search, filters and multi-field sorts, evaluated identically by every backend
//   - Bulk record generation with fake data for load and scroll testing
//   - A REST API with token sessions and per-owner access checks
//   - Change events over websockets, so open grids refresh when another client writes
//   - A terminal grid browser with virtual scrolling, inline editing and optimistic updates
//   - A read-only switch for maintenance windows
//
// # Architecture Overview
//
// The server side is a thin REST layer over
// [github.com/surrealdb/surrealgrid/pkg/store.Store]. Each backend implements the
// same paging contract, and [github.com/surrealdb/surrealgrid/pkg/store.PageOf] is the
// in-memory reference the backends are tested against.
//
// The client side is split in two. [github.com/surrealdb/surrealgrid/pkg/grid] holds the
// grid state machine: the page fetcher, the viewport arithmetic, the controller that
// merges pages and edits, and the cell editor. It does no I/O of its own and talks to
// the server through a small source interface, which
// [github.com/surrealdb/surrealgrid/pkg/client.Client] implements.
// [github.com/surrealdb/surrealgrid/pkg/tui] drives that state machine from a bubbletea
// program.
//
// Writes made through the client publish query keys on a
// [github.com/surrealdb/surrealgrid/pkg/cache.Bus]; server events arriving over the
// websocket publish the same keys. Grids subscribe to the keys they render, so local and
// remote changes take one path.
//
// # Package Organization
//
// For the sub-packages and how they depend on each other, see
// [github.com/surrealdb/surrealgrid/pkg].
//
// # Getting Started
//
// For command-line usage and configuration, see
// [github.com/surrealdb/surrealgrid/pkg/surrealgrid].
//
// The smoke test in this directory drives a running server with virtual users from
// [github.com/surrealdb/surrealgrid/pkg/surrealgridtesting]. It is behind the smoke
// build tag:
//
//	surrealgrid run &
//	go test -tags smoke -run TestE2ESmoke .
package surrealgrid
