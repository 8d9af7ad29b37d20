package grid

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surrealgrid/pkg/models"
)

func TestEditorCommitOnlyWhenChanged(t *testing.T) {
	field := &models.Field{ID: models.NewFieldID(), Type: models.FieldTypeText}
	recordID := models.NewRecordID()
	e := NewCellEditor()

	e.Begin(recordID, field, "abc")
	require.True(t, e.Editing())
	require.Nil(t, e.Commit())
	require.False(t, e.Editing())

	e.Begin(recordID, field, "abc")
	e.Input("abcd")
	w := e.Commit()
	require.NotNil(t, w)
	require.Equal(t, recordID, w.RecordID)
	require.Equal(t, field.ID, w.FieldID)
	require.Equal(t, "abcd", *w.TextValue)
	require.Nil(t, w.NumberValue)

	require.Nil(t, e.Commit(), "committing again outside Editing is a no-op")
}

func TestEditorNumberParsing(t *testing.T) {
	field := &models.Field{ID: models.NewFieldID(), Type: models.FieldTypeNumber}
	e := NewCellEditor()

	for input, want := range map[string]*float64{
		"12.5":  ptr(12.5),
		" 7 ":   ptr(7),
		"":      nil,
		"abc":   nil,
		"NaN":   nil,
		"Inf":   nil,
		"-inf":  nil,
		"1e400": nil,
	} {
		e.Begin(models.NewRecordID(), field, "3")
		e.Input(input)
		w := e.Commit()
		require.NotNil(t, w, input)
		require.Nil(t, w.TextValue, input)
		if want == nil {
			require.Nil(t, w.NumberValue, input)
		} else {
			require.Equal(t, *want, *w.NumberValue, input)
		}
	}
}

func TestEditorNumberEquivalentSpellingIsUnchanged(t *testing.T) {
	field := &models.Field{ID: models.NewFieldID(), Type: models.FieldTypeNumber}
	e := NewCellEditor()
	e.Begin(models.NewRecordID(), field, "5")
	e.Input("5.0")
	require.Nil(t, e.Commit())

	e.Begin(models.NewRecordID(), field, "")
	e.Input("junk")
	require.Nil(t, e.Commit(), "empty and non-numeric both mean no value")
}

func TestEditorKeys(t *testing.T) {
	field := &models.Field{ID: models.NewFieldID(), Type: models.FieldTypeText}
	e := NewCellEditor()
	require.False(t, e.HandleKey(KeyEnter).Handled, "viewing editors handle nothing")

	e.Begin(models.NewRecordID(), field, "a")
	e.Input("b")
	act := e.HandleKey(KeyEscape)
	require.True(t, act.Handled)
	require.Nil(t, act.Write)
	require.Equal(t, "a", e.Value())
	require.Equal(t, Viewing, e.State())

	e.Begin(models.NewRecordID(), field, "a")
	e.Input("b")
	act = e.HandleKey(KeyShiftTab)
	require.NotNil(t, act.Write)
	require.Equal(t, NavPrev, act.Navigate)

	e.Begin(models.NewRecordID(), field, "a")
	act = e.HandleKey(KeyTab)
	require.Nil(t, act.Write)
	require.Equal(t, NavNext, act.Navigate)

	e.Begin(models.NewRecordID(), field, "a")
	require.False(t, e.HandleKey("x").Handled)
	require.True(t, e.Editing())
}

func ptr(f float64) *float64 { return &f }
