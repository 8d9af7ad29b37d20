package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the browser's bindings. Enter, space and tab in the grid go to the
// grid controller, which owns editing and wrap-around navigation.
type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Left      key.Binding
	Right     key.Binding
	PageUp    key.Binding
	PageDown  key.Binding
	Top       key.Binding
	Select    key.Binding
	Back      key.Binding
	Add       key.Binding
	Delete    key.Binding
	Generate  key.Binding
	Refresh   key.Binding
	Search    key.Binding
	Views     key.Binding
	MoveLeft  key.Binding
	MoveRight key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:      key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right:     key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
		PageUp:    key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		PageDown:  key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		Top:       key.NewBinding(key.WithKeys("home"), key.WithHelp("home", "top")),
		Select:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open")),
		Back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Add:       key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add record")),
		Delete:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete record")),
		Generate:  key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "generate 100")),
		Refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Search:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Views:     key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "views")),
		MoveLeft:  key.NewBinding(key.WithKeys("<"), key.WithHelp("<", "")),
		MoveRight: key.NewBinding(key.WithKeys(">"), key.WithHelp("<>", "move column")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// gridHelp is the one-line key summary under the grid.
func (k keyMap) gridHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Add, k.Delete, k.Generate, k.Refresh, k.Search, k.Views, k.MoveRight, k.Back, k.Quit}
}

func (k keyMap) listHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Back, k.Refresh, k.Quit}
}
