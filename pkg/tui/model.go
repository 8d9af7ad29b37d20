package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/surrealdb/surrealgrid/pkg/client"
	"github.com/surrealdb/surrealgrid/pkg/grid"
	"github.com/surrealdb/surrealgrid/pkg/logger"
	"github.com/surrealdb/surrealgrid/pkg/models"
)

// screen is the page the browser shows.
type screen int

const (
	screenConnecting screen = iota
	screenBases
	screenTables
	screenGrid
	screenViews
)

const (
	columnWidth    = 18
	generateCount  = 100
	reconnectDelay = 2 * time.Second
	// Lines around the grid: title, blank, column header, status, help.
	gridChrome = 5
)

// Messages

type signedInMsg struct {
	user *models.User
	err  error
}

type basesMsg struct {
	bases []*models.Base
	err   error
}

type tablesMsg struct {
	tables []*models.Table
	err    error
}

type tableOpenedMsg struct {
	table *models.Table
	ctrl  *grid.Controller
	err   error
}

type viewsMsg struct {
	ctrl  *grid.Controller
	views []*models.View
	err   error
}

// outcomeMsg carries the result of a grid Op back to the controller that issued it.
type outcomeMsg struct {
	ctrl *grid.Controller
	out  grid.Outcome
}

// opsMsg delivers Ops produced outside Update, by invalidations on the bus.
type opsMsg struct {
	ctrl *grid.Controller
	ops  []grid.Op
}

type mutationMsg struct {
	done string
	err  error
}

type watchMsg struct {
	live bool
	err  error
}

// Model is the browser's bubbletea model.
type Model struct {
	ctx    context.Context
	client *client.Client
	opts   Options
	log    logger.Logger
	keys   keyMap

	// send posts messages from outside the event loop; it is the program's Send.
	send func(tea.Msg)

	width, height int
	screen        screen
	loading       bool
	spin          spinner.Model

	user     *models.User
	bases    []*models.Base
	tables   []*models.Table
	selected int
	base     *models.Base

	table     *models.Table
	views     []*models.View
	view      *models.View
	ctrl      *grid.Controller
	unwatch   func()
	stopWatch context.CancelFunc
	live      bool

	edit      textinput.Model
	search    textinput.Model
	searching bool

	status string
	err    error
}

func newModel(ctx context.Context, c *client.Client, opts Options) *Model {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = statusStyle

	edit := textinput.New()
	edit.Prompt = ""
	edit.Width = columnWidth - 2

	search := textinput.New()
	search.Prompt = "/"
	search.Placeholder = "search"

	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &Model{
		ctx:     ctx,
		client:  c,
		opts:    opts,
		log:     log,
		keys:    defaultKeyMap(),
		send:    func(tea.Msg) {},
		screen:  screenConnecting,
		loading: true,
		spin:    spin,
		edit:    edit,
		search:  search,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.signIn)
}

// Commands

func (m *Model) signIn() tea.Msg {
	resp, err := m.client.SignInOrUp(m.ctx, m.opts.Email, "", "")
	if err != nil {
		return signedInMsg{err: err}
	}
	return signedInMsg{user: resp.User}
}

func (m *Model) loadBases() tea.Msg {
	bases, err := m.client.ListBases(m.ctx)
	return basesMsg{bases: bases, err: err}
}

func (m *Model) loadTables(baseID models.BaseID) tea.Cmd {
	return func() tea.Msg {
		tables, err := m.client.ListTables(m.ctx, baseID)
		return tablesMsg{tables: tables, err: err}
	}
}

func (m *Model) openTable(id models.TableID) tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		table, err := m.client.GetTable(m.ctx, id)
		if err != nil {
			return tableOpenedMsg{err: err}
		}
		ctrl := grid.NewController(m.client, id, grid.Config{
			RowHeight:       1,
			Overscan:        0,
			ColumnWidth:     columnWidth,
			BottomThreshold: 5,
			TopThreshold:    1,
			Timeout:         m.opts.Timeout,
			Logger:          m.log,
		})
		if err := ctrl.LoadFields(m.ctx); err != nil {
			return tableOpenedMsg{err: err}
		}
		return tableOpenedMsg{table: table, ctrl: ctrl}
	}
}

func (m *Model) loadViews(ctrl *grid.Controller) tea.Cmd {
	m.loading = true
	return func() tea.Msg {
		views, err := m.client.ListViews(m.ctx, ctrl.TableID())
		return viewsMsg{ctrl: ctrl, views: views, err: err}
	}
}

// run turns grid Ops into commands; each reports back as an outcomeMsg.
func (m *Model) run(ctrl *grid.Controller, ops []grid.Op) tea.Cmd {
	if len(ops) == 0 {
		return nil
	}
	cmds := make([]tea.Cmd, 0, len(ops))
	for _, op := range ops {
		cmds = append(cmds, func() tea.Msg {
			return outcomeMsg{ctrl: ctrl, out: op.Run(m.ctx)}
		})
	}
	return tea.Batch(cmds...)
}

func (m *Model) mutate(done string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return mutationMsg{done: done, err: fn(m.ctx)}
	}
}

// watch refreshes the grid on invalidations of its records, which come from this
// client's own mutations and from the table's event stream.
func (m *Model) watch(ctrl *grid.Controller) {
	ctx, cancel := context.WithCancel(m.ctx)
	m.stopWatch = cancel
	if bus := m.client.Bus(); bus != nil {
		m.unwatch = ctrl.Watch(bus, func(ops []grid.Op) {
			if len(ops) > 0 {
				m.send(opsMsg{ctrl: ctrl, ops: ops})
			}
		})
	}

	go func() {
		for {
			m.send(watchMsg{live: true})
			err := m.client.WatchTable(ctx, ctrl.TableID(), func(ev client.Event) {
				m.log.Debug("table event", "type", ev.Type, "table_id", ev.TableID)
			})
			if ctx.Err() != nil {
				return
			}
			m.send(watchMsg{live: false, err: err})
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()
}

func (m *Model) closeTable() {
	if m.stopWatch != nil {
		m.stopWatch()
		m.stopWatch = nil
	}
	if m.unwatch != nil {
		m.unwatch()
		m.unwatch = nil
	}
	m.ctrl = nil
	m.table = nil
	m.views = nil
	m.view = nil
	m.live = false
	m.searching = false
	m.edit.Blur()
}

func (m *Model) viewportHeight() int {
	return max(1, m.height-gridChrome)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.ctrl != nil {
			return m, m.run(m.ctrl, m.ctrl.SetViewportHeight(float64(m.viewportHeight())))
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case signedInMsg:
		m.loading = false
		if msg.err != nil {
			m.err = fmt.Errorf("sign in as %s: %w", m.opts.Email, msg.err)
			return m, nil
		}
		m.user = msg.user
		m.log.Info("signed in", "email", m.user.Email)
		if m.opts.Table != "" {
			id, err := models.ParseTableID(m.opts.Table)
			if err != nil {
				m.err = fmt.Errorf("invalid table id %q: %w", m.opts.Table, err)
				return m, nil
			}
			return m, m.openTable(id)
		}
		m.loading = true
		return m, m.loadBases

	case basesMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.bases = msg.bases
			m.screen = screenBases
			m.selected = 0
		}
		return m, nil

	case tablesMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.tables = msg.tables
			m.screen = screenTables
			m.selected = 0
		}
		return m, nil

	case tableOpenedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.closeTable()
		m.table = msg.table
		m.ctrl = msg.ctrl
		m.screen = screenGrid
		m.status = ""
		m.watch(msg.ctrl)
		ops := m.ctrl.SetViewportHeight(float64(m.viewportHeight()))
		ops = append(ops, m.ctrl.Start()...)
		return m, m.run(m.ctrl, ops)

	case viewsMsg:
		m.loading = false
		if msg.ctrl != m.ctrl || m.ctrl == nil {
			return m, nil
		}
		m.err = msg.err
		if msg.err == nil {
			m.views = msg.views
			m.screen = screenViews
			m.selected = 0
			for i, v := range m.views {
				if m.view != nil && v.ID == m.view.ID {
					m.selected = i + 1
				}
			}
		}
		return m, nil

	case outcomeMsg:
		if msg.ctrl != m.ctrl {
			return m, nil
		}
		return m, m.run(m.ctrl, m.ctrl.Complete(msg.out))

	case opsMsg:
		if msg.ctrl != m.ctrl {
			return m, nil
		}
		return m, m.run(m.ctrl, msg.ops)

	case mutationMsg:
		if msg.err != nil {
			m.status = ""
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.status = msg.done
		return m, nil

	case watchMsg:
		m.live = msg.live
		if msg.err != nil {
			m.log.Warn("event stream disconnected", "err", msg.err)
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		return tea.Quit
	}
	switch m.screen {
	case screenGrid:
		return m.handleGridKey(msg)
	case screenBases, screenTables:
		return m.handleListKey(msg)
	case screenViews:
		return m.handleViewKey(msg)
	}
	if key.Matches(msg, m.keys.Quit) {
		return tea.Quit
	}
	return nil
}

func (m *Model) handleListKey(msg tea.KeyMsg) tea.Cmd {
	n := len(m.bases)
	if m.screen == screenTables {
		n = len(m.tables)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.selected = max(0, m.selected-1)
	case key.Matches(msg, m.keys.Down):
		m.selected = max(0, min(n-1, m.selected+1))
	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		if m.screen == screenTables && m.base != nil {
			return m.loadTables(m.base.ID)
		}
		return m.loadBases
	case key.Matches(msg, m.keys.Back):
		if m.screen == screenTables {
			m.screen = screenBases
			m.selected = 0
		}
	case key.Matches(msg, m.keys.Select):
		if m.selected >= n {
			return nil
		}
		m.err = nil
		if m.screen == screenBases {
			m.base = m.bases[m.selected]
			m.loading = true
			return m.loadTables(m.base.ID)
		}
		return m.openTable(m.tables[m.selected].ID)
	}
	return nil
}

func (m *Model) handleGridKey(msg tea.KeyMsg) tea.Cmd {
	ctrl := m.ctrl
	if m.searching {
		return m.handleSearchKey(msg)
	}

	if state, _ := ctrl.Editor(); state == grid.Editing {
		ops, handled := ctrl.HandleKey(msg.String())
		if handled {
			if state, _ := ctrl.Editor(); state != grid.Editing {
				m.edit.Blur()
			}
			return m.run(ctrl, ops)
		}
		var cmd tea.Cmd
		m.edit, cmd = m.edit.Update(msg)
		ctrl.Input(m.edit.Value())
		return cmd
	}

	h := float64(m.viewportHeight())
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Back):
		m.closeTable()
		m.screen = screenBases
		if m.base != nil {
			m.screen = screenTables
		}
		return nil
	case key.Matches(msg, m.keys.Up):
		return m.run(ctrl, ctrl.Move(-1, 0))
	case key.Matches(msg, m.keys.Down):
		return m.run(ctrl, ctrl.Move(1, 0))
	case key.Matches(msg, m.keys.Left):
		return m.run(ctrl, ctrl.Move(0, -1))
	case key.Matches(msg, m.keys.Right):
		return m.run(ctrl, ctrl.Move(0, 1))
	case key.Matches(msg, m.keys.PageUp):
		return m.run(ctrl, ctrl.OnScroll(ctrl.ScrollOffset()-h, h))
	case key.Matches(msg, m.keys.PageDown):
		bottom := max(0, float64(len(ctrl.Rows()))-h)
		return m.run(ctrl, ctrl.OnScroll(min(bottom, ctrl.ScrollOffset()+h), h))
	case key.Matches(msg, m.keys.Top):
		return m.run(ctrl, ctrl.OnScroll(0, h))
	case key.Matches(msg, m.keys.Refresh):
		m.status = ""
		if ctrl.LastError() != nil {
			return m.run(ctrl, ctrl.Retry())
		}
		return m.run(ctrl, ctrl.Refresh())
	case key.Matches(msg, m.keys.Views):
		return m.loadViews(ctrl)
	case key.Matches(msg, m.keys.MoveLeft):
		return m.moveColumn(-1)
	case key.Matches(msg, m.keys.MoveRight):
		return m.moveColumn(1)
	case key.Matches(msg, m.keys.Search):
		m.searching = true
		m.search.SetValue(ctrl.Search())
		m.search.CursorEnd()
		return m.search.Focus()
	case key.Matches(msg, m.keys.Add):
		tableID := ctrl.TableID()
		return m.mutate("record added", func(ctx context.Context) error {
			_, err := m.client.CreateRecord(ctx, tableID)
			return err
		})
	case key.Matches(msg, m.keys.Delete):
		rec, ok := ctrl.FocusedRecord()
		if !ok {
			return nil
		}
		return m.mutate("record deleted", func(ctx context.Context) error {
			_, err := m.client.DeleteRecord(ctx, rec.ID)
			return err
		})
	case key.Matches(msg, m.keys.Generate):
		tableID := ctrl.TableID()
		m.status = fmt.Sprintf("generating %d records", generateCount)
		return m.mutate(fmt.Sprintf("%d records generated", generateCount), func(ctx context.Context) error {
			_, err := m.client.CreateRecordsBulk(ctx, tableID, generateCount)
			return err
		})
	}

	ops, handled := ctrl.HandleKey(msg.String())
	if !handled {
		return nil
	}
	if state, value := ctrl.Editor(); state == grid.Editing {
		m.edit.SetValue(value)
		m.edit.CursorEnd()
		return tea.Batch(m.edit.Focus(), m.run(ctrl, ops))
	}
	return m.run(ctrl, ops)
}

func (m *Model) handleSearchKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.searching = false
		m.search.Blur()
		return nil
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		return m.run(m.ctrl, m.ctrl.SetQuery(m.search.Value(), nil, nil))
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return cmd
}

// handleViewKey picks a saved view for the open grid. The first entry clears the view.
func (m *Model) handleViewKey(msg tea.KeyMsg) tea.Cmd {
	n := len(m.views) + 1
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.selected = max(0, m.selected-1)
	case key.Matches(msg, m.keys.Down):
		m.selected = min(n-1, m.selected+1)
	case key.Matches(msg, m.keys.Refresh):
		return m.loadViews(m.ctrl)
	case key.Matches(msg, m.keys.Back):
		m.screen = screenGrid
	case key.Matches(msg, m.keys.Select):
		m.screen = screenGrid
		m.view = nil
		v := &models.View{TableID: m.ctrl.TableID()}
		if m.selected > 0 {
			m.view = m.views[m.selected-1]
			v = m.view
		}
		m.log.Debug("view applied", "table_id", v.TableID.String(), "view", v.Name)
		return m.run(m.ctrl, m.ctrl.ApplyView(v))
	}
	return nil
}

// moveColumn swaps the focused column with its visible neighbour; focus stays on
// the moved column.
func (m *Model) moveColumn(delta int) tea.Cmd {
	ctrl := m.ctrl
	cols := ctrl.Columns()
	focus := ctrl.Focus()
	to := focus.Col + delta
	if focus.Col >= len(cols) || to < 0 || to >= len(cols) {
		return nil
	}
	id, neighbour := cols[focus.Col].Field.ID, cols[to].Field.ID
	ctrl.Layout(func(layout *grid.Columns) {
		for i, col := range layout.All() {
			if col.Field.ID != neighbour {
				continue
			}
			if err := layout.Move(id, i); err != nil {
				m.log.Warn("column move failed", "field_id", id.String(), "error", err)
			}
			return
		}
	})
	return m.run(ctrl, ctrl.Move(0, delta))
}
