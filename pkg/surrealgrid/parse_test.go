package surrealgrid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseCommands(t *testing.T) {
	cmd, config, err := Parse([]string{"-db", "sqlite", "-port", "9090", "-read-only", "run"})
	require.NoError(t, err)
	require.Equal(t, "run", cmd.Name())
	require.Equal(t, BackendSQLite, config.Backend)
	require.Equal(t, "9090", config.ServerPort)
	require.True(t, config.ReadOnly)
	require.Equal(t, 15*time.Second, config.RPCTimeout)

	cmd, _, err = Parse([]string{"-count", "500", "seed"})
	require.NoError(t, err)
	require.Equal(t, &SeedCommand{Email: "demo@example.com", Table: "Records", Count: 500}, cmd)

	cmd, _, err = Parse([]string{"-server", "http://grid:8080", "-table", "abc", "browse"})
	require.NoError(t, err)
	require.Equal(t, &BrowseCommand{Server: "http://grid:8080", Email: "demo@example.com", Table: "abc"}, cmd)

	cmd, _, err = Parse([]string{"-demo-cron", "@every 5s", "-demo-table", "t1", "run"})
	require.NoError(t, err)
	require.Equal(t, &RunCommand{DemoCron: "@every 5s", DemoTable: "t1", DemoCount: 100}, cmd)
}

func TestParseErrors(t *testing.T) {
	_, _, err := Parse(nil)
	require.ErrorContains(t, err, "subcommand required")

	_, _, err = Parse([]string{"serve"})
	require.ErrorContains(t, err, "unknown command: serve")

	_, _, err = Parse([]string{"-db", "oracle", "run"})
	require.ErrorContains(t, err, "invalid database backend")

	_, _, err = Parse([]string{"-demo-cron", "@hourly", "run"})
	require.ErrorContains(t, err, "-demo-cron requires -demo-table")

	t.Setenv("RPC_TIMEOUT", "soon")
	_, _, err = Parse([]string{"migrate"})
	require.ErrorContains(t, err, "invalid RPC_TIMEOUT")
}
