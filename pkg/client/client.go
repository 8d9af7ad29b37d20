// Package client provides a Go HTTP client library for programmatic access to the surrealgrid API.
//
// The client provides strongly-typed methods for all API endpoints with consistent error
// handling, token authentication and request/response serialization. It is what the
// terminal browser and the virtual users in
// [github.com/surrealdb/surrealgrid/pkg/surrealgridtesting] talk to the server through.
//
// # Client Architecture
//
// [Client] mirrors the server's endpoint structure:
//   - Authentication: sign up, sign in, sign out, current user
//   - Bases and tables: list, create, get, delete
//   - Fields: list, create, rename, delete
//   - Records: paged listing with search, filters and sorts, create, bulk generate, delete
//   - Cell values: upsert, get, batch lookup for many records
//   - Views: saved filter/sort/hidden-field presets
//   - Administration: health and read-only mode
//   - Events: [Client.WatchTable] follows a table's mutations over a websocket
//
// All operations use the same [github.com/surrealdb/surrealgrid/pkg/models] entities as
// the server. *Client satisfies [github.com/surrealdb/surrealgrid/pkg/grid.Source], so a
// grid controller pages through it directly.
//
// # Timeouts
//
// Every call is bounded by the client's timeout (15 seconds unless changed with
// [Client.SetTimeout]) in addition to the caller's context.
//
// # Error Handling
//
// Non-2xx responses are returned as [*APIError]. Its code maps onto the store's
// sentinels, so callers test failures the same way on both sides of the wire:
//
//	if errors.Is(err, store.ErrForbidden) { ... }
//	if errors.Is(err, store.ErrNotFound) { ... }
//	if errors.Is(err, client.ErrTransport) { ... } // network or deadline, safe to retry reads
//
// # Cache Invalidation
//
// A client created with a [cache.Bus] publishes the query keys each mutation makes
// stale (record.list for record creates and deletes, field.list for field changes,
// cellValue for cell upserts). [Client.WatchTable] publishes the keys of events made
// by other clients.
//
// # Usage Patterns
//
//	bus := cache.New()
//	c := client.NewClient("http://localhost:8080").WithBus(bus)
//	if _, err := c.SignIn(ctx, "user@example.com", "password"); err != nil {
//		return err
//	}
//	bases, err := c.ListBases(ctx)
//	page, err := c.ListRecords(ctx, store.RecordQuery{TableID: tableID, Limit: 50})
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/surrealdb/surrealgrid/pkg/cache"
	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 15 * time.Second

// Client provides strongly-typed access to the surrealgrid REST API.
//
// Client instances are safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	bus        *cache.Bus

	mu        sync.RWMutex
	authToken string
}

// NewClient creates a new surrealgrid API client.
//
// The baseURL should include the protocol and host (e.g., "http://localhost:8080")
// but should not include a trailing slash or API path prefix.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
	}
}

// WithBus makes mutations publish their invalidated query keys to bus.
func (c *Client) WithBus(bus *cache.Bus) *Client {
	c.bus = bus
	return c
}

// Bus returns the bus passed to WithBus, or nil.
func (c *Client) Bus() *cache.Bus { return c.bus }

// SetTimeout changes the per-request timeout. Zero or less restores the default.
func (c *Client) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	c.timeout = d
}

// SetAuthToken sets the authentication token for the client
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	c.authToken = token
	c.mu.Unlock()
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

func (c *Client) publish(keys ...string) {
	if c.bus != nil {
		c.bus.Invalidate(keys...)
	}
}

// doRequest performs an HTTP request with proper headers
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	return resp, nil
}

// decodeResponse decodes the JSON response into the target struct
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var payload ErrorResponse
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return fmt.Errorf("%w: %w", ErrTransport, err)
			}
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// call performs one request within the client's timeout and decodes the reply into target.
func (c *Client) call(ctx context.Context, method, path string, body, target any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return decodeResponse(resp, target)
}

// Health checks the health status of the server
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var result Health
	if err := c.call(ctx, http.MethodGet, "/api/health", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetReadOnly toggles the server's read-only mode and returns the new state.
func (c *Client) SetReadOnly(ctx context.Context, readOnly bool) (bool, error) {
	var result ReadOnlyRequest
	if err := c.call(ctx, http.MethodPost, "/api/admin/read-only", ReadOnlyRequest{ReadOnly: readOnly}, &result); err != nil {
		return false, err
	}
	return result.ReadOnly, nil
}

// Base management

// ListBases lists the current user's bases, most recently updated first.
func (c *Client) ListBases(ctx context.Context) ([]*models.Base, error) {
	var result []*models.Base
	if err := c.call(ctx, http.MethodGet, "/api/bases", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateBase creates a base owned by the current user.
func (c *Client) CreateBase(ctx context.Context, name string) (*models.Base, error) {
	var result models.Base
	if err := c.call(ctx, http.MethodPost, "/api/bases", NameRequest{Name: name}, &result); err != nil {
		return nil, err
	}
	c.publish(cache.BaseListKey)
	return &result, nil
}

// GetBase retrieves a base by ID
func (c *Client) GetBase(ctx context.Context, id models.BaseID) (*models.Base, error) {
	var result models.Base
	if err := c.call(ctx, http.MethodGet, "/api/bases/"+id.String(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteBase deletes a base with all of its tables.
func (c *Client) DeleteBase(ctx context.Context, id models.BaseID) error {
	if err := c.call(ctx, http.MethodDelete, "/api/bases/"+id.String(), nil, nil); err != nil {
		return err
	}
	c.publish(cache.BaseListKey, cache.TableListKeyFor(id))
	return nil
}

// Table management

// ListTables lists the tables of a base.
func (c *Client) ListTables(ctx context.Context, baseID models.BaseID) ([]*models.Table, error) {
	var result []*models.Table
	if err := c.call(ctx, http.MethodGet, "/api/bases/"+baseID.String()+"/tables", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateTable creates a table with its default fields.
func (c *Client) CreateTable(ctx context.Context, baseID models.BaseID, name string) (*models.Table, error) {
	var result models.Table
	if err := c.call(ctx, http.MethodPost, "/api/bases/"+baseID.String()+"/tables", NameRequest{Name: name}, &result); err != nil {
		return nil, err
	}
	c.publish(cache.TableListKeyFor(baseID))
	return &result, nil
}

// GetTable retrieves a table with its fields.
func (c *Client) GetTable(ctx context.Context, id models.TableID) (*models.Table, error) {
	var result models.Table
	if err := c.call(ctx, http.MethodGet, "/api/tables/"+id.String(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteTable deletes a table with its fields, records and views.
func (c *Client) DeleteTable(ctx context.Context, id models.TableID) error {
	var deleted models.Table
	if err := c.call(ctx, http.MethodDelete, "/api/tables/"+id.String(), nil, &deleted); err != nil {
		return err
	}
	c.publish(cache.TableListKeyFor(deleted.BaseID), cache.RecordListKey(id), cache.FieldListKey(id))
	return nil
}

// Field management

// ListFields lists a table's fields in display order.
func (c *Client) ListFields(ctx context.Context, tableID models.TableID) ([]*models.Field, error) {
	var result []*models.Field
	if err := c.call(ctx, http.MethodGet, "/api/tables/"+tableID.String()+"/fields", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateField appends a field to a table.
func (c *Client) CreateField(ctx context.Context, tableID models.TableID, name string, fieldType models.FieldType) (*models.Field, error) {
	var result models.Field
	body := NameRequest{Name: name, Type: fieldType}
	if err := c.call(ctx, http.MethodPost, "/api/tables/"+tableID.String()+"/fields", body, &result); err != nil {
		return nil, err
	}
	c.publish(cache.FieldListKey(tableID))
	return &result, nil
}

// RenameField changes a field's name.
func (c *Client) RenameField(ctx context.Context, id models.FieldID, name string) (*models.Field, error) {
	var result models.Field
	if err := c.call(ctx, http.MethodPatch, "/api/fields/"+id.String(), NameRequest{Name: name}, &result); err != nil {
		return nil, err
	}
	c.publish(cache.FieldListKey(result.TableID))
	return &result, nil
}

// DeleteField deletes a field and its cell values, returning the deleted field.
func (c *Client) DeleteField(ctx context.Context, id models.FieldID) (*models.Field, error) {
	var result models.Field
	if err := c.call(ctx, http.MethodDelete, "/api/fields/"+id.String(), nil, &result); err != nil {
		return nil, err
	}
	c.publish(cache.FieldListKey(result.TableID), cache.RecordListKey(result.TableID))
	return &result, nil
}

// Record management

// RecordQueryValues encodes a query as the record.list query string.
// Filters and sorts travel as JSON arrays.
func RecordQueryValues(q store.RecordQuery) (url.Values, error) {
	v := url.Values{}
	if q.Cursor != 0 {
		v.Set("cursor", strconv.Itoa(q.Cursor))
	}
	if q.Limit != 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if len(q.Filters) > 0 {
		b, err := json.Marshal(q.Filters)
		if err != nil {
			return nil, fmt.Errorf("failed to encode filters: %w", err)
		}
		v.Set("filters", string(b))
	}
	if len(q.Sorts) > 0 {
		b, err := json.Marshal(q.Sorts)
		if err != nil {
			return nil, fmt.Errorf("failed to encode sorts: %w", err)
		}
		v.Set("sorts", string(b))
	}
	return v, nil
}

// ListRecords fetches one page of a table's records with their cell values.
func (c *Client) ListRecords(ctx context.Context, q store.RecordQuery) (*store.RecordPage, error) {
	values, err := RecordQueryValues(q)
	if err != nil {
		return nil, err
	}
	path := "/api/tables/" + q.TableID.String() + "/records"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}

	var result store.RecordPage
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	if result.Records == nil {
		result.Records = []*models.Record{}
	}
	return &result, nil
}

// CreateRecord adds an empty record to a table.
func (c *Client) CreateRecord(ctx context.Context, tableID models.TableID) (*models.Record, error) {
	var result models.Record
	if err := c.call(ctx, http.MethodPost, "/api/tables/"+tableID.String()+"/records", nil, &result); err != nil {
		return nil, err
	}
	c.publish(cache.RecordListKey(tableID))
	return &result, nil
}

// CreateRecordsBulk generates count records with fake values and returns how many
// were inserted.
func (c *Client) CreateRecordsBulk(ctx context.Context, tableID models.TableID, count int) (int, error) {
	var result BulkResponse
	path := "/api/tables/" + tableID.String() + "/records/bulk"
	err := c.call(ctx, http.MethodPost, path, BulkRequest{Count: count}, &result)
	// Batches are committed independently, so a failed request may still have added rows.
	c.publish(cache.RecordListKey(tableID))
	if err != nil {
		return 0, err
	}
	return result.Count, nil
}

// DeleteRecord deletes a record and returns it as it was.
func (c *Client) DeleteRecord(ctx context.Context, id models.RecordID) (*models.Record, error) {
	var result models.Record
	if err := c.call(ctx, http.MethodDelete, "/api/records/"+id.String(), nil, &result); err != nil {
		return nil, err
	}
	c.publish(cache.RecordListKey(result.TableID), cache.CellValueKey(id))
	return &result, nil
}

// Cell values

func cellPath(recordID models.RecordID, fieldID models.FieldID) string {
	return "/api/records/" + recordID.String() + "/cells/" + fieldID.String()
}

// UpsertCell writes one cell.
func (c *Client) UpsertCell(ctx context.Context, w store.CellWrite) (*models.CellValue, error) {
	var result models.CellValue
	body := CellRequest{TextValue: w.TextValue, NumberValue: w.NumberValue}
	if err := c.call(ctx, http.MethodPut, cellPath(w.RecordID, w.FieldID), body, &result); err != nil {
		return nil, err
	}
	c.publish(cache.CellValueKey(w.RecordID))
	return &result, nil
}

// GetCellValue returns the cell at (record, field), or nil when it was never written.
func (c *Client) GetCellValue(ctx context.Context, recordID models.RecordID, fieldID models.FieldID) (*models.CellValue, error) {
	var result *models.CellValue
	if err := c.call(ctx, http.MethodGet, cellPath(recordID, fieldID), nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ListCellValues returns every cell of the given records.
func (c *Client) ListCellValues(ctx context.Context, recordIDs []models.RecordID) ([]*models.CellValue, error) {
	var result []*models.CellValue
	if err := c.call(ctx, http.MethodPost, "/api/cells/query", CellsQueryRequest{RecordIDs: recordIDs}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Views

// ListViews lists a table's saved views, newest first.
func (c *Client) ListViews(ctx context.Context, tableID models.TableID) ([]*models.View, error) {
	var result []*models.View
	if err := c.call(ctx, http.MethodGet, "/api/tables/"+tableID.String()+"/views", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateView saves a view preset on a table.
func (c *Client) CreateView(ctx context.Context, tableID models.TableID, req ViewRequest) (*models.View, error) {
	var result models.View
	if err := c.call(ctx, http.MethodPost, "/api/tables/"+tableID.String()+"/views", req, &result); err != nil {
		return nil, err
	}
	c.publish(cache.ViewListKey(tableID))
	return &result, nil
}

// UpdateView patches a view. See [ViewRequest] for which members are kept.
func (c *Client) UpdateView(ctx context.Context, id models.ViewID, req ViewRequest) (*models.View, error) {
	var result models.View
	if err := c.call(ctx, http.MethodPatch, "/api/views/"+id.String(), req, &result); err != nil {
		return nil, err
	}
	c.publish(cache.ViewListKey(result.TableID))
	return &result, nil
}

// DeleteView deletes a view and returns it as it was.
func (c *Client) DeleteView(ctx context.Context, id models.ViewID) (*models.View, error) {
	var result models.View
	if err := c.call(ctx, http.MethodDelete, "/api/views/"+id.String(), nil, &result); err != nil {
		return nil, err
	}
	c.publish(cache.ViewListKey(result.TableID))
	return &result, nil
}
