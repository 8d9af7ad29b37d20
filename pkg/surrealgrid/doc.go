// Package surrealgrid wires the record grid application together: configuration,
// the HTTP API, the per-table event stream, and the commands of the surrealgrid
// binary.
//
// Bases own tables; a table is a grid of typed fields (text or number) and records
// holding one cell value per field. The API pages records with an offset cursor and
// pushes every mutation to websocket subscribers of the table, so that clients can
// refresh the pages they hold. The terminal browser in
// [github.com/surrealdb/surrealgrid/pkg/tui] is one such client.
//
// # Getting Started
//
// For command line usage see [Main]; for the API see [App.Router].
//
//	# Start SurrealDB, or use -db sqlite to skip the database server
//	surreal start --user root --pass root
//
//	go run ./cmd/surrealgrid -db surreal migrate
//	go run ./cmd/surrealgrid -db surreal -count 10000 seed
//	go run ./cmd/surrealgrid -db surreal run
//
//	# In another terminal
//	go run ./cmd/surrealgrid browse
//
// # Read-only Mode
//
// Started with -read-only or switched through POST /api/admin/read-only, the app
// keeps serving reads and rejects every write with 503 and code READ_ONLY.
package surrealgrid
