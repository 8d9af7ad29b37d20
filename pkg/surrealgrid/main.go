package surrealgrid

import (
	"context"
	"fmt"
	"io"

	"github.com/surrealdb/surrealgrid/pkg/logger"
	"github.com/surrealdb/surrealgrid/pkg/tui"
)

// Main is the main entry point for the surrealgrid application.
// It takes a context for cancellation and command line arguments, then executes the appropriate command.
// This function can be called directly from tests without needing to build the binary.
// Returns an error if any step fails (parsing, app creation, or command execution).
//
// # Command Line Usage
//
//	# Serve the API from PostgreSQL
//	surrealgrid run
//
//	# Serve from SQLite, rejecting writes
//	surrealgrid -db sqlite -read-only run
//
//	# Create the schema in SurrealDB
//	surrealgrid -db surreal migrate
//
//	# Fill a demo table and browse it
//	surrealgrid -db sqlite -count 10000 seed
//	surrealgrid -server http://localhost:8080 browse
//
// # Environment Variables
//
//	POSTGRES_DSN     - PostgreSQL connection string
//	POSTGRES_DRIVER  - pgx (default) or pq for lib/pq
//	MYSQL_DSN        - MySQL connection string
//	SQLITE_PATH      - SQLite database file (default: surrealgrid.db)
//	SURREALDB_URL    - SurrealDB WebSocket URL (default: ws://localhost:8000/rpc)
//	SURREALDB_NS     - SurrealDB namespace (default: surrealgrid)
//	SURREALDB_DB     - SurrealDB database (default: surrealgrid)
//	SURREALDB_USER   - SurrealDB username (default: root)
//	SURREALDB_PASS   - SurrealDB password (default: root)
//	LOG_LEVEL        - debug, info, warn or error (default: info)
//	LOG_FILE         - Append logs to this file instead of stderr
//	SEQ_URL          - Also ship logs to this Seq server
//	RPC_TIMEOUT      - Client call timeout of the browse command (default: 15s)
func Main(ctx context.Context, args []string) error {
	cmd, config, err := Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	// The browser only talks to a server; it never opens a store.
	if c, ok := cmd.(*BrowseCommand); ok {
		return browse(ctx, c, config)
	}

	app, err := New(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	switch c := cmd.(type) {
	case *MigrateCommand:
		if err := app.Migrate(ctx, c); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case *RunCommand:
		if err := app.Run(ctx, c); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case *SeedCommand:
		if err := app.Seed(ctx, c); err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}

	return nil
}

func browse(ctx context.Context, cmd *BrowseCommand, config *Config) error {
	// The terminal belongs to the browser, so logs go to LOG_FILE or nowhere.
	writer := config.LogWriter
	if writer == nil {
		writer = io.Discard
	}
	log, closeLog, err := logger.Setup(logger.Options{
		Level:  config.LogLevel,
		File:   config.LogFile,
		SeqURL: config.SeqURL,
		Writer: writer,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closeLog()

	return tui.Run(ctx, tui.Options{
		Server:  cmd.Server,
		Email:   cmd.Email,
		Table:   cmd.Table,
		Timeout: config.RPCTimeout,
		Logger:  log,
	})
}
