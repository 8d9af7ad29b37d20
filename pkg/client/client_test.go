package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/surrealgrid/pkg/cache"
	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

func TestAPIErrorUnwrap(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{"forbidden code", http.StatusForbidden, CodeForbidden, store.ErrForbidden},
		{"not found code", http.StatusNotFound, CodeNotFound, store.ErrNotFound},
		{"bad request code", http.StatusBadRequest, CodeBadRequest, store.ErrValidation},
		{"unauthorized code", http.StatusUnauthorized, CodeUnauthorized, ErrUnauthorized},
		{"read only code", http.StatusServiceUnavailable, CodeReadOnly, store.ErrReadOnly},
		{"status only", http.StatusNotFound, "", store.ErrNotFound},
		{"unauthorized status", http.StatusUnauthorized, "", ErrUnauthorized},
		{"internal", http.StatusInternalServerError, CodeInternal, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &APIError{Status: tt.status, Code: tt.code}
			require.Equal(t, tt.want, errors.Unwrap(err))
		})
	}
}

func TestRecordQueryValues(t *testing.T) {
	fieldID := models.NewFieldID()
	v, err := RecordQueryValues(store.RecordQuery{
		TableID: models.NewTableID(),
		Cursor:  50,
		Limit:   25,
		Search:  "acme",
		Filters: []models.Filter{{FieldID: fieldID, Operator: models.OpContains, Value: "x"}},
		Sorts:   []models.Sort{{FieldID: fieldID, Direction: models.SortDesc}},
	})
	require.NoError(t, err)
	require.Equal(t, "50", v.Get("cursor"))
	require.Equal(t, "25", v.Get("limit"))
	require.Equal(t, "acme", v.Get("search"))

	var filters []models.Filter
	require.NoError(t, json.Unmarshal([]byte(v.Get("filters")), &filters))
	require.Equal(t, fieldID, filters[0].FieldID)
	var sorts []models.Sort
	require.NoError(t, json.Unmarshal([]byte(v.Get("sorts")), &sorts))
	require.Equal(t, models.SortDesc, sorts[0].Direction)

	empty, err := RecordQueryValues(store.RecordQuery{TableID: models.NewTableID()})
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestListRecordsSendsQueryAndToken(t *testing.T) {
	tableID := models.NewTableID()
	next := 2
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tables/"+tableID.String()+"/records", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.Equal(t, "2", r.URL.Query().Get("limit"))
		require.Equal(t, "row", r.URL.Query().Get("search"))
		_ = json.NewEncoder(w).Encode(store.RecordPage{
			Records:    []*models.Record{{ID: models.NewRecordID(), TableID: tableID}, {ID: models.NewRecordID(), TableID: tableID}},
			TotalCount: 5,
			NextCursor: &next,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	c.SetAuthToken("secret")
	page, err := c.ListRecords(context.Background(), store.RecordQuery{TableID: tableID, Limit: 2, Search: "row"})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	require.Equal(t, 5, page.TotalCount)
	require.Equal(t, 2, *page.NextCursor)
}

func TestErrorBodyIsDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "table not found", Code: CodeNotFound})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetTable(context.Background(), models.NewTableID())
	require.ErrorIs(t, err, store.ErrNotFound)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
	require.Equal(t, "table not found", apiErr.Message)
}

func TestPlainTextErrorFallsBackToStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ListBases(context.Background())
	require.ErrorIs(t, err, store.ErrForbidden)
	require.Contains(t, err.Error(), "nope")
}

func TestUnreachableServerIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).ListBases(context.Background())
	require.ErrorIs(t, err, ErrTransport)
}

func TestTimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL)
	c.SetTimeout(50 * time.Millisecond)
	start := time.Now()
	_, err := c.ListBases(context.Background())
	require.ErrorIs(t, err, ErrTransport)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestDeleteBaseAcceptsNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	bus := cache.New()
	var got []string
	bus.Subscribe(cache.BaseListKey, func(key string) { got = append(got, key) })

	c := NewClient(srv.URL).WithBus(bus)
	require.NoError(t, c.DeleteBase(context.Background(), models.NewBaseID()))
	require.Equal(t, []string{cache.BaseListKey}, got)
}

func TestMutationsPublishInvalidatedKeys(t *testing.T) {
	tableID := models.NewTableID()
	recordID := models.NewRecordID()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			_ = json.NewEncoder(w).Encode(models.Record{ID: recordID, TableID: tableID})
		case http.MethodPut:
			var body CellRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			_ = json.NewEncoder(w).Encode(models.CellValue{RecordID: recordID, TextValue: body.TextValue})
		}
	}))
	defer srv.Close()

	bus := cache.New()
	var mu sync.Mutex
	var got []string
	record := func(key string) {
		mu.Lock()
		got = append(got, key)
		mu.Unlock()
	}
	bus.Subscribe(cache.RecordListKey(tableID), record)
	bus.Subscribe(cache.CellValueKey(recordID), record)

	c := NewClient(srv.URL).WithBus(bus)
	_, err := c.CreateRecord(context.Background(), tableID)
	require.NoError(t, err)
	text := "hello"
	cell, err := c.UpsertCell(context.Background(), store.CellWrite{RecordID: recordID, FieldID: models.NewFieldID(), TextValue: &text})
	require.NoError(t, err)
	require.Equal(t, "hello", *cell.TextValue)

	require.Equal(t, []string{cache.RecordListKey(tableID), cache.CellValueKey(recordID)}, got)
}

func TestFailedMutationPublishesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "read-only mode", Code: CodeReadOnly})
	}))
	defer srv.Close()

	tableID := models.NewTableID()
	bus := cache.New()
	calls := 0
	bus.Subscribe(cache.RecordListKey(tableID), func(string) { calls++ })

	_, err := NewClient(srv.URL).WithBus(bus).CreateRecord(context.Background(), tableID)
	require.ErrorIs(t, err, store.ErrReadOnly)
	require.Zero(t, calls)
}

func TestWatchTablePublishesEvents(t *testing.T) {
	tableID := models.NewTableID()
	recordID := models.NewRecordID()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tables/"+tableID.String()+"/events", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.WriteJSON(Event{Type: EventCellUpdated, TableID: tableID, RecordID: &recordID}))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	bus := cache.New()
	var keys []string
	bus.SubscribePrefix("", func(key string) { keys = append(keys, key) })
	bus.Subscribe(cache.CellValueKey(recordID), func(key string) { keys = append(keys, key) })

	c := NewClient(srv.URL).WithBus(bus)
	c.SetAuthToken("secret")
	var events []Event
	err := c.WatchTable(context.Background(), tableID, func(ev Event) { events = append(events, ev) })
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventCellUpdated, events[0].Type)
	require.Contains(t, keys, cache.RecordListKey(tableID))
	require.Contains(t, keys, cache.CellValueKey(recordID))
}

func TestWatchTableRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "forbidden", Code: CodeForbidden})
	}))
	defer srv.Close()

	err := NewClient(srv.URL).WatchTable(context.Background(), models.NewTableID(), nil)
	require.ErrorIs(t, err, store.ErrForbidden)
}

func TestWatchTableStopsWithContext(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewClient(srv.URL).WatchTable(ctx, models.NewTableID(), nil) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("WatchTable did not return after cancel")
	}
}
