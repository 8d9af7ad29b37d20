// Package tui is the terminal record browser of the browse command.
//
// It signs in through [client.Client], lets the user pick a base and a table, and
// shows the table with a [grid.Controller]: the controller decides what to fetch and
// the bubbletea loop performs its Ops as commands. Every mutation, local or received
// from the table's event stream, invalidates the record list on the client's bus,
// which refreshes the grid.
package tui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/surrealdb/surrealgrid/pkg/cache"
	"github.com/surrealdb/surrealgrid/pkg/client"
	"github.com/surrealdb/surrealgrid/pkg/logger"
)

// Options configures Run.
type Options struct {
	// Server is the base URL of a surrealgrid server.
	Server string
	// Email signs in, creating the account when it does not exist.
	Email string
	// Table opens this table ID directly, skipping the pickers.
	Table string
	// Timeout bounds every API call; zero uses [client.DefaultTimeout].
	Timeout time.Duration
	Logger  logger.Logger
}

// Run shows the browser until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := client.NewClient(opts.Server).WithBus(cache.New())
	if opts.Timeout > 0 {
		c.SetTimeout(opts.Timeout)
	}

	m := newModel(ctx, c, opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	m.send = p.Send

	_, err := p.Run()
	m.closeTable()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
