package cache_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surrealgrid/pkg/cache"
	"github.com/surrealdb/surrealgrid/pkg/models"
)

func TestSubscribeAndInvalidate(t *testing.T) {
	bus := cache.New()
	var got []string
	unsubscribe := bus.Subscribe("record.list:a", func(key string) { got = append(got, key) })

	bus.Invalidate("record.list:b")
	require.Empty(t, got)

	bus.Invalidate("record.list:a")
	require.Equal(t, []string{"record.list:a"}, got)

	unsubscribe()
	unsubscribe()
	bus.Invalidate("record.list:a")
	require.Len(t, got, 1)
	require.Zero(t, bus.Len())
}

func TestInvalidateNotifiesOncePerCall(t *testing.T) {
	bus := cache.New()
	calls := 0
	bus.SubscribePrefix("cellValue:", func(string) { calls++ })

	bus.Invalidate("cellValue:r1", "cellValue:r2", "field.list:t")
	require.Equal(t, 1, calls)
}

func TestListenersRunInSubscriptionOrder(t *testing.T) {
	bus := cache.New()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		bus.Subscribe("k", func(string) { order = append(order, i) })
	}
	bus.Invalidate("k")
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestListenerMayReenterBus(t *testing.T) {
	bus := cache.New()
	nested := 0
	bus.Subscribe("outer", func(string) {
		bus.Subscribe("inner", func(string) { nested++ })
		bus.Invalidate("inner")
	})
	bus.Invalidate("outer")
	require.Equal(t, 1, nested)
}

func TestKeys(t *testing.T) {
	tableID := models.NewTableID()
	recordID := models.NewRecordID()
	require.Equal(t, "record.list:"+tableID.String(), cache.RecordListKey(tableID))
	require.Equal(t, "field.list:"+tableID.String(), cache.FieldListKey(tableID))
	require.Equal(t, "cellValue:"+recordID.String(), cache.CellValueKey(recordID))
}
