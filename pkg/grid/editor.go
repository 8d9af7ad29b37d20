package grid

import (
	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

// Key names as reported by bubbletea.
const (
	KeyEnter    = "enter"
	KeyEscape   = "esc"
	KeyTab      = "tab"
	KeyShiftTab = "shift+tab"
	KeySpace    = " "
)

// EditorState is the mode of a CellEditor.
type EditorState int

const (
	Viewing EditorState = iota
	Editing
)

func (s EditorState) String() string {
	if s == Editing {
		return "editing"
	}
	return "viewing"
}

// Navigation is a focus move requested by the editor and carried out by the Controller.
type Navigation int

const (
	NavNone Navigation = iota
	NavNext
	NavPrev
)

// Action is what a key did to the editor.
type Action struct {
	// Handled is false for keys the editor does not interpret; they are text input.
	Handled bool
	// Write is the upsert to issue, nil when nothing changed.
	Write    *store.CellWrite
	Navigate Navigation
}

// CellEditor holds the display/edit state of the focused cell.
type CellEditor struct {
	state    EditorState
	recordID models.RecordID
	field    *models.Field
	original string
	buffer   string
}

func NewCellEditor() *CellEditor {
	return &CellEditor{}
}

// Begin switches to Editing with current as both the original and the buffer.
func (e *CellEditor) Begin(recordID models.RecordID, field *models.Field, current string) {
	e.state = Editing
	e.recordID = recordID
	e.field = field
	e.original = current
	e.buffer = current
}

// Input replaces the edit buffer.
func (e *CellEditor) Input(value string) {
	if e.state == Editing {
		e.buffer = value
	}
}

func (e *CellEditor) Value() string             { return e.buffer }
func (e *CellEditor) State() EditorState        { return e.state }
func (e *CellEditor) Editing() bool             { return e.state == Editing }
func (e *CellEditor) Field() *models.Field      { return e.field }
func (e *CellEditor) RecordID() models.RecordID { return e.recordID }

// Commit leaves Editing and returns the upsert for the buffer, or nil when the value
// did not change since Begin.
func (e *CellEditor) Commit() *store.CellWrite {
	if e.state != Editing {
		return nil
	}
	e.state = Viewing
	if e.unchanged() {
		return nil
	}
	w := &store.CellWrite{RecordID: e.recordID, FieldID: e.field.ID}
	switch e.field.Type {
	case models.FieldTypeNumber:
		if n, ok := store.ParseNumber(e.buffer); ok {
			w.NumberValue = &n
		}
	default:
		text := e.buffer
		w.TextValue = &text
	}
	e.original = e.buffer
	return w
}

// Cancel leaves Editing and discards the buffer.
func (e *CellEditor) Cancel() {
	e.state = Viewing
	e.buffer = e.original
}

// HandleKey applies a key while editing. Enter commits, Escape cancels, Tab and
// Shift+Tab commit and request navigation. In Viewing the editor handles nothing; the
// Controller begins edits because it knows the focused cell.
func (e *CellEditor) HandleKey(key string) Action {
	if e.state != Editing {
		return Action{}
	}
	switch key {
	case KeyEnter:
		return Action{Handled: true, Write: e.Commit()}
	case KeyEscape:
		e.Cancel()
		return Action{Handled: true}
	case KeyTab:
		return Action{Handled: true, Write: e.Commit(), Navigate: NavNext}
	case KeyShiftTab:
		return Action{Handled: true, Write: e.Commit(), Navigate: NavPrev}
	}
	return Action{}
}

func (e *CellEditor) unchanged() bool {
	if e.field.Type == models.FieldTypeNumber {
		a, aok := store.ParseNumber(e.original)
		b, bok := store.ParseNumber(e.buffer)
		return aok == bok && (!aok || a == b)
	}
	return e.original == e.buffer
}
