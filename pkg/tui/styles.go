package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	headerCellStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#3C3C3C")).
			PaddingRight(1)

	cellStyle = lipgloss.NewStyle().
			PaddingRight(1)

	focusedCellStyle = cellStyle.
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#7D56F4"))

	editingCellStyle = cellStyle.
				Foreground(lipgloss.Color("#000000")).
				Background(lipgloss.Color("#F5C542"))

	gutterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Width(7).
			Align(lipgloss.Right).
			PaddingRight(1)

	selectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#7D56F4")).
				Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))
)
