package store

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surrealgrid/pkg/models"
)

func TestValidateName(t *testing.T) {
	name, err := ValidateName("name", "  Leads ")
	require.NoError(t, err)
	require.Equal(t, "Leads", name)

	_, err = ValidateName("name", "   ")
	require.ErrorIs(t, err, ErrValidation)
	require.EqualError(t, err, "name: must not be empty")

	_, err = ValidateName("name", strings.Repeat("é", MaxNameLength))
	require.NoError(t, err)
	_, err = ValidateName("name", strings.Repeat("a", MaxNameLength+1))
	require.ErrorIs(t, err, ErrValidation)
}

func TestValidateBulkCount(t *testing.T) {
	n, err := ValidateBulkCount(0)
	require.NoError(t, err)
	require.Equal(t, DefaultBulkCount, n)

	n, err = ValidateBulkCount(MaxBulkCount)
	require.NoError(t, err)
	require.Equal(t, MaxBulkCount, n)

	for _, bad := range []int{-1, MaxBulkCount + 1} {
		_, err := ValidateBulkCount(bad)
		require.ErrorIs(t, err, ErrValidation)
	}
}

func TestValidateFieldType(t *testing.T) {
	require.NoError(t, ValidateFieldType(models.FieldTypeText))
	require.NoError(t, ValidateFieldType(models.FieldTypeNumber))
	require.ErrorIs(t, ValidateFieldType("date"), ErrValidation)
}

func TestNormalizeCell(t *testing.T) {
	text, number := "x", 2.5

	gotText, gotNumber := NormalizeCell(models.FieldTypeText, &text, &number)
	require.Equal(t, "x", *gotText)
	require.Nil(t, gotNumber)

	gotText, gotNumber = NormalizeCell(models.FieldTypeNumber, &text, &number)
	require.Nil(t, gotText)
	require.Equal(t, 2.5, *gotNumber)

	nan := math.NaN()
	gotText, gotNumber = NormalizeCell(models.FieldTypeNumber, nil, &nan)
	require.Nil(t, gotText)
	require.Nil(t, gotNumber)
}

func TestErrorHelpers(t *testing.T) {
	err := NotFoundf("table %s", "t1")
	require.ErrorIs(t, err, ErrNotFound)
	require.EqualError(t, err, "table t1: not found")

	var verr *ValidationError
	require.True(t, errors.As(Invalid("limit", "must be between 1 and %d", 100), &verr))
	require.Equal(t, "limit", verr.Field)
	require.False(t, errors.Is(verr, ErrNotFound))
}

func TestReadOnlyStoreRejectsWrites(t *testing.T) {
	readOnly := true
	// The wrapped store is never reached while read-only.
	s := NewReadOnlyStore(nil, func() bool { return readOnly })
	ctx := context.Background()

	require.ErrorIs(t, s.CreateBase(ctx, &models.Base{Name: "x"}), ErrReadOnly)
	require.ErrorIs(t, s.DeleteTable(ctx, models.NewTableID()), ErrReadOnly)
	_, err := s.RenameField(ctx, models.NewFieldID(), "y")
	require.ErrorIs(t, err, ErrReadOnly)
	_, err = s.UpsertCellValue(ctx, CellWrite{RecordID: models.NewRecordID(), FieldID: models.NewFieldID()})
	require.ErrorIs(t, err, ErrReadOnly)
	_, err = s.CreateRecordsBulk(ctx, models.NewTableID(), 10, nil)
	require.ErrorIs(t, err, ErrReadOnly)

	require.Nil(t, s.(*ReadOnlyStore).Unwrap())
}
