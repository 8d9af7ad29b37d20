package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/surrealdb/surrealgrid/pkg/grid"
	"github.com/surrealdb/surrealgrid/pkg/models"
)

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderTitle())
	b.WriteString("\n\n")

	switch m.screen {
	case screenConnecting:
		if m.loading {
			b.WriteString(m.spin.View() + " signing in as " + m.opts.Email)
		}
		b.WriteString("\n")
	case screenBases:
		b.WriteString(m.renderList("Bases", names(m.bases, func(b *models.Base) string { return b.Name }),
			"no bases yet; run `surrealgrid seed` to create one"))
	case screenTables:
		b.WriteString(m.renderList("Tables", names(m.tables, func(t *models.Table) string { return t.Name }),
			"this base has no tables"))
	case screenGrid:
		b.WriteString(m.renderGrid())
	case screenViews:
		items := append([]string{"All records"}, names(m.views, func(v *models.View) string { return v.Name })...)
		b.WriteString(m.renderList("Views", items, ""))
	}

	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.renderHelp())
	return b.String()
}

func names[T any](items []T, name func(T) string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = name(item)
	}
	return out
}

func (m *Model) renderTitle() string {
	parts := []string{titleStyle.Render("surrealgrid")}
	if m.base != nil {
		parts = append(parts, m.base.Name)
	}
	if m.table != nil {
		parts = append(parts, m.table.Name)
	}
	if m.view != nil {
		parts = append(parts, m.view.Name)
	}
	title := strings.Join(parts, dimStyle.Render(" › "))
	if m.user != nil {
		title += "  " + dimStyle.Render(m.user.Email)
	}
	return title
}

func (m *Model) renderList(heading string, items []string, empty string) string {
	var b strings.Builder
	b.WriteString(headerCellStyle.Render(heading))
	b.WriteString("\n")
	if len(items) == 0 {
		b.WriteString(dimStyle.Render("  " + empty))
		b.WriteString("\n")
	}
	for i, item := range items {
		if i == m.selected {
			b.WriteString(selectedItemStyle.Render("> " + item))
		} else {
			b.WriteString("  " + item)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderGrid draws the column header and the rows of the visible range. Rows are
// one line high, so the range is exactly what fits on screen.
func (m *Model) renderGrid() string {
	ctrl := m.ctrl
	cols := ctrl.Columns()
	focus := ctrl.Focus()
	editState, _ := ctrl.Editor()

	var b strings.Builder
	header := []string{gutterStyle.Render("#")}
	for _, col := range cols {
		header = append(header, headerCellStyle.Width(col.Width).MaxWidth(col.Width).Render(columnTitle(col.Field)))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, header...))
	b.WriteString("\n")

	r, rows := ctrl.Visible()
	for k, rec := range rows {
		i := r.Start + k
		line := []string{gutterStyle.Render(fmt.Sprint(i + 1))}
		for c, col := range cols {
			style := cellStyle
			value := ctrl.DisplayValue(rec, col.Field)
			if i == focus.Row && c == focus.Col {
				style = focusedCellStyle
				if editState == grid.Editing {
					style = editingCellStyle
					value = m.edit.View()
				}
			}
			if col.Field.Type == models.FieldTypeNumber {
				style = style.Align(lipgloss.Right)
			}
			line = append(line, style.Width(col.Width).MaxWidth(col.Width).Render(value))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, line...))
		b.WriteString("\n")
	}
	for k := len(rows); k < m.viewportHeight(); k++ {
		b.WriteString("\n")
	}
	return b.String()
}

func columnTitle(f *models.Field) string {
	if f.Type == models.FieldTypeNumber {
		return "# " + f.Name
	}
	return "A " + f.Name
}

// renderStatus shows, in order of precedence: the search prompt, errors, fetch
// progress, the last mutation, and the record count.
func (m *Model) renderStatus() string {
	if m.searching {
		return m.search.View()
	}
	if m.err != nil {
		return errorStyle.Render("error: " + m.err.Error())
	}
	if m.ctrl == nil {
		if m.loading {
			return m.spin.View() + " loading"
		}
		return ""
	}

	ctrl := m.ctrl
	if err := ctrl.LastError(); err != nil {
		if grid.IsTerminal(err) {
			return errorStyle.Render("table unavailable: " + err.Error())
		}
		return errorStyle.Render(err.Error() + "; press r to retry")
	}
	if err := ctrl.CellError(); err != nil {
		return errorStyle.Render(err.Error())
	}

	var parts []string
	if state := ctrl.State(); state != grid.Idle {
		parts = append(parts, m.spin.View()+" "+state.String())
	} else if p, ok := ctrl.PendingFocus(); ok {
		parts = append(parts, m.spin.View()+fmt.Sprintf(" loading row %d", p.Row+1))
	}
	loaded := len(ctrl.Rows())
	count := fmt.Sprintf("%d of %d records", loaded, ctrl.TotalCount())
	if s := ctrl.Search(); s != "" {
		count += fmt.Sprintf(" matching %q", s)
	}
	parts = append(parts, count)
	if m.live {
		parts = append(parts, statusStyle.Render("live"))
	} else {
		parts = append(parts, dimStyle.Render("offline"))
	}
	if m.status != "" {
		parts = append(parts, statusStyle.Render(m.status))
	}
	return strings.Join(parts, dimStyle.Render(" · "))
}

func (m *Model) renderHelp() string {
	bindings := m.keys.listHelp()
	if m.screen == screenGrid {
		bindings = m.keys.gridHelp()
	}
	return dimStyle.Render(helpLine(bindings))
}

func helpLine(bindings []key.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, "  ")
}
