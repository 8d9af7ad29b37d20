package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/surrealdb/surrealgrid/pkg/cache"
	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

var (
	// ErrUnauthorized is returned when the server rejects or does not know the token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTransport wraps network failures and expired deadlines. The request may or
	// may not have reached the server.
	ErrTransport = errors.New("transport failure")
)

// Error codes carried in the "code" member of error bodies.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeReadOnly     = "READ_ONLY"
	CodeInternal     = "INTERNAL"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// APIError is a non-2xx response. errors.Is matches it against the store sentinels
// and [ErrUnauthorized] by its code.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case CodeForbidden:
		return store.ErrForbidden
	case CodeNotFound:
		return store.ErrNotFound
	case CodeBadRequest:
		return store.ErrValidation
	case CodeUnauthorized:
		return ErrUnauthorized
	case CodeReadOnly:
		return store.ErrReadOnly
	}
	switch e.Status {
	case http.StatusForbidden:
		return store.ErrForbidden
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusBadRequest:
		return store.ErrValidation
	case http.StatusUnauthorized:
		return ErrUnauthorized
	}
	return nil
}

// SignUpRequest represents a sign-up request
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// SignInRequest represents a sign-in request
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// NameRequest creates or renames a base, table or field.
type NameRequest struct {
	Name string           `json:"name"`
	Type models.FieldType `json:"type,omitempty"`
}

type BulkRequest struct {
	Count int `json:"count"`
}

type BulkResponse struct {
	Count int `json:"count"`
}

// CellRequest is the body of a cell upsert. Only the member matching the field's
// type is kept.
type CellRequest struct {
	TextValue   *string  `json:"text_value"`
	NumberValue *float64 `json:"number_value"`
}

type CellsQueryRequest struct {
	RecordIDs []models.RecordID `json:"record_ids"`
}

// ViewRequest creates a view or patches one. In a patch an empty name and null lists
// keep the current values.
type ViewRequest struct {
	Name         string           `json:"name"`
	Filters      []models.Filter  `json:"filters"`
	Sorts        []models.Sort    `json:"sorts"`
	HiddenFields []models.FieldID `json:"hidden_fields"`
}

type ReadOnlyRequest struct {
	ReadOnly bool `json:"read_only"`
}

// Health is the server status.
type Health struct {
	Status   string    `json:"status"`
	Mode     string    `json:"mode"`
	ReadOnly bool      `json:"read_only"`
	Store    string    `json:"store"`
	Time     time.Time `json:"time"`
}

// EventType names a mutation pushed on a table's event stream.
type EventType string

const (
	EventRecordCreated  EventType = "record.created"
	EventRecordsCreated EventType = "record.createBulk"
	EventRecordDeleted  EventType = "record.deleted"
	EventCellUpdated    EventType = "cellValue.upserted"
	EventFieldsChanged  EventType = "field.changed"
	EventViewsChanged   EventType = "view.changed"
	EventTableDeleted   EventType = "table.deleted"
)

// Event is one message on GET /api/tables/{id}/events.
type Event struct {
	Type     EventType        `json:"type"`
	TableID  models.TableID   `json:"table_id"`
	RecordID *models.RecordID `json:"record_id,omitempty"`
	FieldID  *models.FieldID  `json:"field_id,omitempty"`
	Count    int              `json:"count,omitempty"`
}

// Keys returns the query keys the event makes stale.
func (e Event) Keys() []string {
	switch e.Type {
	case EventRecordCreated, EventRecordsCreated, EventRecordDeleted, EventTableDeleted:
		return []string{cache.RecordListKey(e.TableID)}
	case EventCellUpdated:
		keys := []string{cache.RecordListKey(e.TableID)}
		if e.RecordID != nil {
			keys = append(keys, cache.CellValueKey(*e.RecordID))
		}
		return keys
	case EventFieldsChanged:
		return []string{cache.FieldListKey(e.TableID), cache.RecordListKey(e.TableID)}
	case EventViewsChanged:
		return []string{cache.ViewListKey(e.TableID)}
	}
	return nil
}
