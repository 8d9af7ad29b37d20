// Package pkg contains all the sub-packages for the surrealgrid application.
//
// # Package Architecture
//
// The sub-packages are organized in four layers.
//
// # Application Layer
//
// [github.com/surrealdb/surrealgrid/pkg/surrealgrid] - Commands (run, migrate, seed, browse),
// configuration, HTTP handlers, sessions, and the change event hub.
// Use this package when adding a command or extending the HTTP API.
//
// [github.com/surrealdb/surrealgrid/pkg/tui] - The terminal grid browser behind the browse command.
//
// # Domain Layer
//
// [github.com/surrealdb/surrealgrid/pkg/models] - Users, bases, tables, fields, records, cell values
// and views, with typed IDs that serialize the same way for SQL and SurrealDB.
//
// [github.com/surrealdb/surrealgrid/pkg/grid] - The record grid: page fetcher, viewport,
// controller and cell editor. Pure state, no I/O.
//
// # Infrastructure Layer
//
// [github.com/surrealdb/surrealgrid/pkg/store] - The [github.com/surrealdb/surrealgrid/pkg/store.Store]
// interface, the error taxonomy, input validation, the reference query evaluator,
// and the read-only wrapper.
//
// [github.com/surrealdb/surrealgrid/pkg/store/sqlstore] - GORM implementation for PostgreSQL, MySQL and SQLite.
//
// [github.com/surrealdb/surrealgrid/pkg/store/surrealdb] - SurrealDB implementation in plain SurrealQL.
//
// [github.com/surrealdb/surrealgrid/pkg/generate] - Fake cell values for bulk record generation.
//
// [github.com/surrealdb/surrealgrid/pkg/logger] - zerolog setup, the slog adapter, and the optional Seq sink.
//
// # Integration Layer
//
// [github.com/surrealdb/surrealgrid/pkg/client] - Typed HTTP client and websocket event watcher.
//
// [github.com/surrealdb/surrealgrid/pkg/cache] - Query-key invalidation bus shared by the client and the grid.
//
// [github.com/surrealdb/surrealgrid/pkg/surrealgridtesting] - Virtual users for smoke and load tests.
//
// # Package Dependencies
//
//	surrealgrid → store, store/sqlstore, store/surrealdb, generate, logger, models, client, cache, tui
//	tui → grid, client, cache, store, models, logger
//	grid → cache, store, models, logger
//	client → cache, store, models
//	generate → store, models
//	store → models
//	store/sqlstore → store, models
//	store/surrealdb → store, models
//	surrealgridtesting → client, generate, store, models
package pkg
