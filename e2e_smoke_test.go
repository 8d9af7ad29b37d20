//go:build smoke

// Package surrealgrid_test smoke tests a running surrealgrid server.
//
// The smoke tests look for correctness bugs, not performance problems. Every mode
// reads back what it wrote and fails when the server lost or duplicated data.
//
// Test Modes:
//
//  1. Standard Test (default):
//     Each virtual user builds its own bases, tables and records and verifies them.
//
//  2. Shared Table Test (SMOKE_SHARED_RESOURCE=true):
//     All virtual users sign in as one account and edit cells of the SAME table
//     while the owner keeps paging through it. Paging must never list a record twice
//     and every cell must end with the last value written to it.
//
//  3. Scaling Test (SMOKE_ENABLE_SCALING=true):
//     Repeats the standard test through growing user counts (10->25->50->100).
//
// Examples:
//
//	surrealgrid run &
//	go test -tags=smoke -count=1 -run TestE2ESmoke .
//	SMOKE_SHARED_RESOURCE=true SMOKE_DURATION=30s go test -tags=smoke -count=1 -run TestE2ESmoke .
package surrealgrid_test

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surrealgrid/pkg/client"
	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
	"github.com/surrealdb/surrealgrid/pkg/surrealgridtesting"
)

// smokeConfig is read from SMOKE_* environment variables.
type smokeConfig struct {
	BaseURL  string
	Users    int
	Duration time.Duration // continuous and shared workloads
	Timeout  time.Duration
	Stagger  time.Duration // pause between user launches

	Scaling       bool
	Stages        []int
	StageCooldown time.Duration

	Workload      workload
	SharedTable   bool
	SharedRecords int
	MinSuccessPct float64
}

type workload string

const (
	workloadScenario   workload = "scenario"
	workloadContinuous workload = "continuous" // cell edits until the duration ends
	workloadBurst      workload = "burst"      // bulk generation in bursts
)

func loadSmokeConfig() *smokeConfig {
	return &smokeConfig{
		BaseURL:       envOr("SURREALGRID_URL", "http://localhost:8080", asString),
		Users:         envOr("SMOKE_NUM_USERS", 10, strconv.Atoi),
		Duration:      envOr("SMOKE_DURATION", 10*time.Second, time.ParseDuration),
		Timeout:       envOr("SMOKE_TIMEOUT", 5*time.Minute, time.ParseDuration),
		Stagger:       envOr("SMOKE_LAUNCH_DELAY", 10*time.Millisecond, time.ParseDuration),
		Scaling:       envOr("SMOKE_ENABLE_SCALING", false, strconv.ParseBool),
		Stages:        []int{10, 25, 50, 100},
		StageCooldown: 5 * time.Second,
		Workload:      workload(envOr("SMOKE_WORKLOAD", string(workloadScenario), asString)),
		SharedTable:   envOr("SMOKE_SHARED_RESOURCE", false, strconv.ParseBool),
		SharedRecords: envOr("SMOKE_SHARED_RECORDS", 500, strconv.Atoi),
		MinSuccessPct: envOr("SMOKE_SUCCESS_RATE", 95.0, parseFloat),
	}
}

// envOr parses the variable when it is set and valid, and returns def otherwise.
func envOr[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func asString(s string) (string, error) { return s, nil }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

func TestE2ESmoke(t *testing.T) {
	if testing.Short() {
		t.Skip("smoke test needs a running server")
	}
	runSmokeTest(t, loadSmokeConfig())
}

func runSmokeTest(t *testing.T, config *smokeConfig) {
	require.Positive(t, config.Users)
	require.True(t, config.MinSuccessPct >= 0 && config.MinSuccessPct <= 100, "SMOKE_SUCCESS_RATE must be a percentage")

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	health, err := client.NewClient(config.BaseURL).Health(ctx)
	require.NoError(t, err, "health check of %s", config.BaseURL)
	require.Equal(t, "healthy", health.Status)
	require.False(t, health.ReadOnly, "server is read-only")

	printInspectionCommands(t, health.Store)
	t.Logf("smoke: %s (%s), users=%d workload=%s duration=%v scaling=%v shared=%v min success=%.1f%%",
		config.BaseURL, health.Store, config.Users, config.Workload, config.Duration,
		config.Scaling, config.SharedTable, config.MinSuccessPct)

	switch {
	case config.Scaling:
		runScalingTest(t, ctx, config)
	case config.SharedTable:
		runSharedTableTest(t, ctx, config)
	default:
		runStandardTest(t, ctx, config)
	}
}

// tally counts finished operations and keeps the first few failures.
type tally struct {
	mu       sync.Mutex
	ok, fail int
	samples  []error
}

func (c *tally) add(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.ok++
		return
	}
	c.fail++
	if len(c.samples) < 10 {
		c.samples = append(c.samples, err)
	}
}

// report logs the tally and fails the test below the configured success rate.
func (c *tally) report(t *testing.T, config *smokeConfig, what string, elapsed time.Duration) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.ok + c.fail
	require.Positive(t, total, "no %s finished", what)
	rate := float64(c.ok) / float64(total) * 100
	t.Logf("%s: %d ok, %d failed (%.1f%%) in %v, %.1f/s", what, c.ok, c.fail, rate, elapsed.Round(time.Millisecond),
		float64(c.ok)/elapsed.Seconds())
	for _, err := range c.samples {
		t.Logf("  %v", err)
	}
	require.GreaterOrEqual(t, rate, config.MinSuccessPct, "%s success rate", what)
}

// launch starts fn for every user, staggered, and waits for all of them or the context.
func launch(t *testing.T, ctx context.Context, config *smokeConfig, users []*surrealgridtesting.VirtualUser, fn func(*surrealgridtesting.VirtualUser)) {
	t.Helper()
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(u)
		}()
		if config.Stagger > 0 {
			time.Sleep(config.Stagger)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		t.Fatalf("smoke test timed out after %v", config.Timeout)
	}
}

func runStandardTest(t *testing.T, ctx context.Context, config *smokeConfig) {
	users := make([]*surrealgridtesting.VirtualUser, config.Users)
	for i := range users {
		users[i] = surrealgridtesting.NewVirtualUser(i, config.BaseURL)
	}

	var results tally
	start := time.Now()
	deadline := start.Add(config.Duration)
	launch(t, ctx, config, users, func(u *surrealgridtesting.VirtualUser) {
		var err error
		switch config.Workload {
		case workloadScenario:
			err = u.RunScenario(ctx)
		case workloadContinuous:
			err = runContinuousWorkload(ctx, u, deadline)
		case workloadBurst:
			err = runBurstWorkload(ctx, u)
		default:
			err = fmt.Errorf("unknown workload %q", config.Workload)
		}
		if err != nil {
			err = fmt.Errorf("user %d: %w", u.Index, err)
		}
		results.add(err)
	})
	results.report(t, config, string(config.Workload)+" users", time.Since(start))

	// Scenarios verify themselves.
	if config.Workload == workloadScenario {
		return
	}
	for _, u := range users {
		if u.User != nil {
			require.NoError(t, u.VerifyAllData(ctx), "user %d", u.Index)
		}
	}
}

func runScalingTest(t *testing.T, ctx context.Context, config *smokeConfig) {
	for n, users := range config.Stages {
		t.Run(fmt.Sprintf("%d_users", users), func(t *testing.T) {
			stage := *config
			stage.Users = users
			stage.Scaling = false
			runStandardTest(t, ctx, &stage)
		})
		if n < len(config.Stages)-1 {
			time.Sleep(config.StageCooldown)
		}
	}
}

// runSharedTableTest has every worker edit cells of one table while the owner
// pages through it. Each worker writes only its own rows, so the last value it
// wrote to a cell is the value the server must hold at the end.
func runSharedTableTest(t *testing.T, ctx context.Context, config *smokeConfig) {
	owner := surrealgridtesting.NewVirtualUser(0, config.BaseURL)
	require.NoError(t, owner.SignUp(ctx))
	_, err := owner.CreateBase(ctx, "Shared Base")
	require.NoError(t, err)
	table, err := owner.CreateTable(ctx, "Shared Table")
	require.NoError(t, err)
	_, err = owner.GenerateRecords(ctx, config.SharedRecords)
	require.NoError(t, err)
	ids, err := owner.SyncRecords(ctx)
	require.NoError(t, err)
	require.Len(t, ids, config.SharedRecords)
	t.Logf("shared table %s with %d records", table.ID, len(ids))

	workers := make([]*surrealgridtesting.VirtualUser, config.Users)
	for i := range workers {
		workers[i] = surrealgridtesting.NewVirtualUser(i+1, config.BaseURL)
	}

	var writes tally
	var readErrs []error
	start := time.Now()
	deadline := start.Add(config.Duration)

	// The owner reads while the workers write.
	readsDone := make(chan struct{})
	go func() {
		defer close(readsDone)
		for time.Now().Before(deadline) && ctx.Err() == nil {
			records, total, err := owner.ReadAllRecords(ctx, store.RecordQuery{TableID: table.ID, Limit: store.DefaultPageLimit})
			switch {
			case err != nil:
				readErrs = append(readErrs, err)
			case len(records) != total || total != len(ids):
				readErrs = append(readErrs, fmt.Errorf("read %d records, total %d, want %d", len(records), total, len(ids)))
			}
			time.Sleep(250 * time.Millisecond)
		}
	}()

	launch(t, ctx, config, workers, func(w *surrealgridtesting.VirtualUser) {
		if err := w.SignInAs(ctx, owner.Email); err != nil {
			writes.add(fmt.Errorf("worker %d sign in: %w", w.Index, err))
			return
		}
		if _, err := w.UseTable(ctx, table.ID); err != nil {
			writes.add(fmt.Errorf("worker %d open table: %w", w.Index, err))
			return
		}
		fields := w.Fields[table.ID]
		rows := stripe(ids, w.Index-1, len(workers))
		if len(rows) == 0 {
			return
		}
		for time.Now().Before(deadline) && ctx.Err() == nil {
			_, err := w.EditCell(ctx, rows[w.RNG.Intn(len(rows))], fields[w.RNG.Intn(len(fields))])
			writes.add(err)
			time.Sleep(100 * time.Millisecond)
		}
	})
	<-readsDone

	writes.report(t, config, "cell writes", time.Since(start))
	require.Empty(t, readErrs, "paging through the shared table was inconsistent")

	for _, w := range workers {
		for key, want := range w.Cells {
			got, err := owner.Client.GetCellValue(ctx, key.Record, key.Field)
			require.NoError(t, err)
			require.NotNil(t, got)
			require.Equal(t, want.TextValue, got.TextValue, "worker %d cell %s/%s", w.Index, key.Record, key.Field)
			require.Equal(t, want.NumberValue, got.NumberValue, "worker %d cell %s/%s", w.Index, key.Record, key.Field)
		}
	}
}

// stripe returns every workers-th id starting at worker.
func stripe(ids []models.RecordID, worker, workers int) []models.RecordID {
	var out []models.RecordID
	for i := worker; i < len(ids); i += workers {
		out = append(out, ids[i])
	}
	return out
}

// runContinuousWorkload keeps creating small tables and editing one cell per field
// until the deadline.
func runContinuousWorkload(ctx context.Context, u *surrealgridtesting.VirtualUser, deadline time.Time) error {
	if err := u.SignUp(ctx); err != nil {
		return err
	}
	if _, err := u.CreateBase(ctx, fmt.Sprintf("Base %d", u.Index)); err != nil {
		return err
	}

	for n := 0; time.Now().Before(deadline); n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		table, err := u.CreateTable(ctx, fmt.Sprintf("Table %d-%d", u.Index, n))
		if err != nil {
			return err
		}
		for range 5 {
			if _, err := u.CreateRecord(ctx); err != nil {
				return err
			}
		}
		ids := u.Records[table.ID]
		for _, field := range u.Fields[table.ID] {
			if _, err := u.EditCell(ctx, ids[u.RNG.Intn(len(ids))], field); err != nil {
				return err
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// runBurstWorkload generates three rounds of three 1000-record tables.
func runBurstWorkload(ctx context.Context, u *surrealgridtesting.VirtualUser) error {
	if err := u.SignUp(ctx); err != nil {
		return err
	}
	for round := range 3 {
		if _, err := u.CreateBase(ctx, fmt.Sprintf("Burst %d-%d", u.Index, round)); err != nil {
			return err
		}
		for i := range 3 {
			if _, err := u.CreateTable(ctx, fmt.Sprintf("Burst %d-%d-%d", u.Index, round, i)); err != nil {
				return err
			}
			if _, err := u.GenerateRecords(ctx, 1000); err != nil {
				return err
			}
			if _, err := u.SyncRecords(ctx); err != nil {
				return err
			}
		}
		time.Sleep(time.Second)
	}
	return nil
}

// printInspectionCommands prints queries for looking at the test data by hand.
func printInspectionCommands(t *testing.T, backend string) {
	if backend != "surrealdb" {
		t.Logf(`inspect the %s database with:
  SELECT count(*) FROM users;
  SELECT table_id, count(*) FROM records GROUP BY table_id ORDER BY 2 DESC LIMIT 10;
  SELECT field_id, count(*) FROM cell_values GROUP BY field_id LIMIT 10;
  SELECT count(*) FROM cell_values c LEFT JOIN records r ON r.id = c.record_id WHERE r.id IS NULL;`, backend)
		return
	}

	t.Logf(`inspect SurrealDB with:
  surreal sql --conn %s --ns %s --db %s
  SELECT count() AS total FROM records GROUP ALL;
  SELECT table_id, count() AS records FROM records GROUP BY table_id ORDER BY records DESC LIMIT 10;
  SELECT * FROM cell_values WHERE record_id NOT IN (SELECT VALUE id FROM records) LIMIT 10;`,
		envOr("SURREALDB_URL", "ws://localhost:8000", asString),
		envOr("SURREALDB_NS", "surrealgrid", asString),
		envOr("SURREALDB_DB", "surrealgrid", asString))
}
