package surrealgrid

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/surrealdb/surrealgrid/pkg/client"
	"github.com/surrealdb/surrealgrid/pkg/models"
)

// Router builds the HTTP API.
//
// # API Endpoints
//
// Public:
//
//	GET    /api/health                          - Service health and read-only mode
//	POST   /api/auth/signup                     - Register and sign in
//	POST   /api/auth/signin                     - Sign in an existing user
//
// Everything else requires "Authorization: Bearer <token>":
//
//	POST   /api/auth/signout                    - End the session
//	GET    /api/auth/me                         - Current user
//	POST   /api/auth/refresh                    - Replace the session token
//	POST   /api/admin/read-only                 - Toggle read-only mode
//
//	GET    /api/bases                           - List the user's bases
//	POST   /api/bases                           - Create a base
//	GET    /api/bases/{id}                      - Get a base
//	DELETE /api/bases/{id}                      - Delete a base and its tables
//	GET    /api/bases/{id}/tables               - List tables
//	POST   /api/bases/{id}/tables               - Create a table with default fields
//
//	GET    /api/tables/{id}                     - Get a table with its fields
//	DELETE /api/tables/{id}                     - Delete a table
//	GET    /api/tables/{id}/fields              - List fields
//	POST   /api/tables/{id}/fields              - Create a field
//	GET    /api/tables/{id}/records             - Page records (cursor, limit, search, filters, sorts)
//	POST   /api/tables/{id}/records             - Create an empty record
//	POST   /api/tables/{id}/records/bulk        - Generate records
//	GET    /api/tables/{id}/views               - List views
//	POST   /api/tables/{id}/views               - Create a view
//	GET    /api/tables/{id}/events              - Websocket stream of table mutations
//
//	PATCH  /api/fields/{id}                     - Rename a field
//	DELETE /api/fields/{id}                     - Delete a field
//	DELETE /api/records/{id}                    - Delete a record
//	GET    /api/records/{id}/cells/{fieldId}    - Get a cell value
//	PUT    /api/records/{id}/cells/{fieldId}    - Upsert a cell value
//	POST   /api/cells/query                     - Cell values of many records
//	PATCH  /api/views/{id}                      - Update a view
//	DELETE /api/views/{id}                      - Delete a view
func (a *App) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(a.logRequests)

	api := router.PathPrefix("/api").Subrouter()

	// Public routes
	api.HandleFunc("/health", a.handleHealth).Methods("GET")
	api.HandleFunc("/auth/signup", a.handleSignUp).Methods("POST")
	api.HandleFunc("/auth/signin", a.handleSignIn).Methods("POST")

	authed := api.NewRoute().Subrouter()
	authed.Use(a.requireUser)

	// Auth routes
	authed.HandleFunc("/auth/signout", a.handleSignOut).Methods("POST")
	authed.HandleFunc("/auth/me", a.handleGetCurrentUser).Methods("GET")
	authed.HandleFunc("/auth/refresh", a.handleRefreshToken).Methods("POST")

	// Admin routes
	authed.HandleFunc("/admin/read-only", a.handleSetReadOnly).Methods("POST")

	// Base routes
	authed.HandleFunc("/bases", a.handleListBases).Methods("GET")
	authed.HandleFunc("/bases", a.handleCreateBase).Methods("POST")
	authed.HandleFunc("/bases/{id}", a.handleGetBase).Methods("GET")
	authed.HandleFunc("/bases/{id}", a.handleDeleteBase).Methods("DELETE")
	authed.HandleFunc("/bases/{id}/tables", a.handleListTables).Methods("GET")
	authed.HandleFunc("/bases/{id}/tables", a.handleCreateTable).Methods("POST")

	// Table routes
	authed.HandleFunc("/tables/{id}", a.handleGetTable).Methods("GET")
	authed.HandleFunc("/tables/{id}", a.handleDeleteTable).Methods("DELETE")
	authed.HandleFunc("/tables/{id}/fields", a.handleListFields).Methods("GET")
	authed.HandleFunc("/tables/{id}/fields", a.handleCreateField).Methods("POST")
	authed.HandleFunc("/tables/{id}/records", a.handleListRecords).Methods("GET")
	authed.HandleFunc("/tables/{id}/records", a.handleCreateRecord).Methods("POST")
	authed.HandleFunc("/tables/{id}/records/bulk", a.handleCreateRecordsBulk).Methods("POST")
	authed.HandleFunc("/tables/{id}/views", a.handleListViews).Methods("GET")
	authed.HandleFunc("/tables/{id}/views", a.handleCreateView).Methods("POST")
	authed.HandleFunc("/tables/{id}/events", a.handleTableEvents).Methods("GET")

	// Field routes
	authed.HandleFunc("/fields/{id}", a.handleRenameField).Methods("PATCH")
	authed.HandleFunc("/fields/{id}", a.handleDeleteField).Methods("DELETE")

	// Record and cell routes
	authed.HandleFunc("/records/{id}", a.handleDeleteRecord).Methods("DELETE")
	authed.HandleFunc("/records/{id}/cells/{fieldId}", a.handleGetCell).Methods("GET")
	authed.HandleFunc("/records/{id}/cells/{fieldId}", a.handleUpsertCell).Methods("PUT")
	authed.HandleFunc("/cells/query", a.handleQueryCells).Methods("POST")

	// View routes
	authed.HandleFunc("/views/{id}", a.handleUpdateView).Methods("PATCH")
	authed.HandleFunc("/views/{id}", a.handleDeleteView).Methods("DELETE")

	return router
}

func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.log.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// Run serves the API until ctx is cancelled, then shuts down gracefully, giving
// active requests up to 5 seconds to complete.
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := app.Run(ctx, &RunCommand{}); err != nil {
//		return err
//	}
func (a *App) Run(ctx context.Context, cmd *RunCommand) error {
	if cmd.DemoCron != "" {
		stop, err := a.startDemoWriter(ctx, cmd)
		if err != nil {
			return err
		}
		defer stop()
	}

	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	a.log.Info("starting surrealgrid server", "addr", addr, "backend", a.config.Backend, "read_only", a.IsReadOnly())

	server := &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Websocket connections are hijacked and not tracked by Shutdown.
		a.events.closeAll()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// startDemoWriter schedules bulk inserts into the demo table and returns a function
// that stops the schedule and waits for a running insert to finish.
func (a *App) startDemoWriter(ctx context.Context, cmd *RunCommand) (func(), error) {
	tableID, err := models.ParseTableID(cmd.DemoTable)
	if err != nil {
		return nil, fmt.Errorf("invalid demo table: %w", err)
	}

	c := cron.New()
	_, err = c.AddFunc(cmd.DemoCron, func() {
		n, err := a.store.CreateRecordsBulk(ctx, tableID, cmd.DemoCount, a.generator)
		if n > 0 {
			a.events.publish(client.Event{Type: client.EventRecordsCreated, TableID: tableID, Count: n})
		}
		if err != nil {
			a.log.Warn("demo writer failed", "table_id", tableID, "inserted", n, "err", err)
			return
		}
		a.log.Info("demo writer inserted records", "table_id", tableID, "count", n)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid demo schedule %q: %w", cmd.DemoCron, err)
	}

	c.Start()
	a.log.Info("demo writer scheduled", "schedule", cmd.DemoCron, "table_id", tableID, "count", cmd.DemoCount)
	return func() { <-c.Stop().Done() }, nil
}
