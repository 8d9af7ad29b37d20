package surrealgrid

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/surrealdb/surrealgrid/pkg/generate"
	"github.com/surrealdb/surrealgrid/pkg/logger"
	loggerslog "github.com/surrealdb/surrealgrid/pkg/logger/slog"
	"github.com/surrealdb/surrealgrid/pkg/store"
	"github.com/surrealdb/surrealgrid/pkg/store/sqlstore"
	"github.com/surrealdb/surrealgrid/pkg/store/surrealdb"
)

// Backend names a Store implementation.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendMySQL    Backend = "mysql"
	BackendSQLite   Backend = "sqlite"
	BackendSurreal  Backend = "surreal"
)

// Config holds application configuration.
type Config struct {
	// Database configuration
	Backend        Backend
	PostgresDSN    string
	PostgresDriver string
	MySQLDSN       string
	SQLitePath     string
	SurrealDBURL   string
	SurrealDBNS    string
	SurrealDBDB    string
	SurrealDBUser  string
	SurrealDBPass  string

	ReadOnly bool // When true, all write operations are rejected

	// Server configuration
	ServerPort string

	// Logging configuration. LogWriter is not settable from the command line; tests
	// use it to capture output.
	LogLevel  string
	LogFile   string
	SeqURL    string
	LogWriter io.Writer

	// RPCTimeout bounds client calls made by the browse command.
	RPCTimeout time.Duration
}

// App holds the application state.
type App struct {
	store     store.Store
	config    *Config
	readOnly  atomic.Bool
	log       *loggerslog.SlogHandler
	closeLog  func()
	sessions  *sessionStore
	events    *eventHub
	generator store.CellGenerator
}

// New creates a new application instance: it sets up logging and connects to the
// configured backend. The store is wrapped so that writes fail with
// [store.ErrReadOnly] while the app is in read-only mode.
func New(ctx context.Context, config *Config) (*App, error) {
	log, closeLog, err := logger.Setup(logger.Options{
		Level:  config.LogLevel,
		File:   config.LogFile,
		SeqURL: config.SeqURL,
		Writer: config.LogWriter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	appStore, err := openStore(ctx, config)
	if err != nil {
		closeLog()
		return nil, err
	}
	log.Info("connected to store", "backend", config.Backend)

	app := &App{
		config:    config,
		log:       log,
		closeLog:  closeLog,
		sessions:  newSessionStore(),
		events:    newEventHub(),
		generator: generate.New(uint64(time.Now().UnixNano())),
	}
	app.readOnly.Store(config.ReadOnly)

	// Wrap the store with read-only protection
	app.store = store.NewReadOnlyStore(appStore, app.IsReadOnly)

	return app, nil
}

func openStore(ctx context.Context, config *Config) (store.Store, error) {
	switch config.Backend {
	case BackendPostgres:
		st, err := sqlstore.Open(sqlstore.Config{
			Dialect:        sqlstore.DialectPostgres,
			DSN:            config.PostgresDSN,
			PostgresDriver: config.PostgresDriver,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		return st, nil
	case BackendMySQL:
		st, err := sqlstore.Open(sqlstore.Config{Dialect: sqlstore.DialectMySQL, DSN: config.MySQLDSN})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
		}
		return st, nil
	case BackendSQLite:
		st, err := sqlstore.Open(sqlstore.Config{Dialect: sqlstore.DialectSQLite, DSN: config.SQLitePath})
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
		return st, nil
	case BackendSurreal:
		st, err := surrealdb.NewSurrealStore(ctx, surrealdb.Config{
			URL:       config.SurrealDBURL,
			Namespace: config.SurrealDBNS,
			Database:  config.SurrealDBDB,
			Username:  config.SurrealDBUser,
			Password:  config.SurrealDBPass,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown database backend: %q", config.Backend)
}

// Close closes the application and its resources
func (a *App) Close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	a.events.closeAll()
	if a.closeLog != nil {
		a.closeLog()
	}
	return err
}

// Store returns the underlying store (useful for testing)
func (a *App) Store() store.Store {
	return a.store
}

// Logger returns the application logger.
func (a *App) Logger() *loggerslog.SlogHandler {
	return a.log
}

// SetReadOnly sets the application's read-only mode for maintenance operations.
// While enabled every write is rejected with [store.ErrReadOnly]; reads, including
// record paging, keep working. The change takes effect on the next request.
func (a *App) SetReadOnly(readOnly bool) {
	a.readOnly.Store(readOnly)
	a.log.Info("read-only mode changed", "read_only", readOnly)
}

// IsReadOnly returns whether the application is currently in read-only mode.
// The ReadOnlyStore wrapper calls it on every write.
func (a *App) IsReadOnly() bool {
	return a.readOnly.Load()
}

// getEnv retrieves an environment variable value with a fallback default value.
// Empty variables are treated as unset.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
