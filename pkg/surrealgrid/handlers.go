package surrealgrid

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/surrealdb/surrealgrid/pkg/client"
	"github.com/surrealdb/surrealgrid/pkg/models"
	"github.com/surrealdb/surrealgrid/pkg/store"
)

// statusFor maps an error to its HTTP status and error code. It is the only place
// that knows the mapping; every handler replies through respondErr.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, client.CodeBadRequest
	case errors.Is(err, client.ErrUnauthorized):
		return http.StatusUnauthorized, client.CodeUnauthorized
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden, client.CodeForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, client.CodeNotFound
	case errors.Is(err, store.ErrReadOnly):
		return http.StatusServiceUnavailable, client.CodeReadOnly
	}
	return http.StatusInternalServerError, client.CodeInternal
}

// respondJSON sends payload as a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

// respondErr sends the standardized error body:
//
//	{"error": "table 9c1…: not found", "code": "NOT_FOUND"}
//
// Internal errors are logged; their message is not sent to the client.
func (a *App) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		message = http.StatusText(status)
	}
	respondJSON(w, status, client.ErrorResponse{Error: message, Code: code})
}

func badID(what string, err error) error {
	return store.Invalid("id", "invalid %s id: %v", what, err)
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return store.Invalid("body", "invalid request payload: %v", err)
	}
	return nil
}

// pathID parses the {name} path variable with parse.
func pathID[T any](r *http.Request, name, what string, parse func(string) (T, error)) (T, error) {
	id, err := parse(mux.Vars(r)[name])
	if err != nil {
		var zero T
		return zero, badID(what, err)
	}
	return id, nil
}

// emptyIfNil keeps list responses as [] instead of null.
func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// handleHealth reports service status for load balancers and the client.
//
//	GET /api/health
//	{"status":"healthy","mode":"read_write","read_only":false,"store":"sqlite","time":"..."}
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	mode := "read_write"
	if a.IsReadOnly() {
		mode = "read_only"
	}
	respondJSON(w, http.StatusOK, client.Health{
		Status:   "healthy",
		Mode:     mode,
		ReadOnly: a.IsReadOnly(),
		Store:    string(a.config.Backend),
		Time:     time.Now().UTC(),
	})
}

// handleSetReadOnly toggles read-only mode.
//
//	POST /api/admin/read-only {"read_only": true}
func (a *App) handleSetReadOnly(w http.ResponseWriter, r *http.Request) {
	var req client.ReadOnlyRequest
	if err := decodeBody(r, &req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	a.SetReadOnly(req.ReadOnly)
	respondJSON(w, http.StatusOK, client.ReadOnlyRequest{ReadOnly: a.IsReadOnly()})
}

// Base handlers

func (a *App) handleListBases(w http.ResponseWriter, r *http.Request) {
	bases, err := a.store.ListBases(r.Context(), currentUser(r).ID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, emptyIfNil(bases))
}

func (a *App) handleCreateBase(w http.ResponseWriter, r *http.Request) {
	var req client.NameRequest
	if err := decodeBody(r, &req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	base := &models.Base{Name: req.Name, OwnerID: currentUser(r).ID}
	if err := a.store.CreateBase(r.Context(), base); err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, base)
}

func (a *App) handleGetBase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "base", models.ParseBaseID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfBase(ctx, id)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	base, err := a.store.GetBase(ctx, id)
	if err == nil && base == nil {
		err = store.NotFoundf("base %s", id)
	}
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, base)
}

func (a *App) handleDeleteBase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "base", models.ParseBaseID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfBase(ctx, id)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	tables, err := a.store.ListTables(ctx, id)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	if err := a.store.DeleteBase(ctx, id); err != nil {
		a.respondErr(w, r, err)
		return
	}
	for _, t := range tables {
		a.events.publish(client.Event{Type: client.EventTableDeleted, TableID: t.ID})
	}
	w.WriteHeader(http.StatusNoContent)
}

// Table handlers

func (a *App) handleListTables(w http.ResponseWriter, r *http.Request) {
	baseID, err := pathID(r, "id", "base", models.ParseBaseID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfBase(ctx, baseID)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	tables, err := a.store.ListTables(ctx, baseID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, emptyIfNil(tables))
}

func (a *App) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	baseID, err := pathID(r, "id", "base", models.ParseBaseID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	var req client.NameRequest
	if err := decodeBody(r, &req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfBase(ctx, baseID)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	table := &models.Table{Name: req.Name, BaseID: baseID}
	if err := a.store.CreateTable(ctx, table); err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, table)
}

func (a *App) handleGetTable(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "table", models.ParseTableID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfTable(ctx, id)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	table, err := a.store.GetTable(ctx, id)
	if err == nil && table == nil {
		err = store.NotFoundf("table %s", id)
	}
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, table)
}

// handleDeleteTable deletes the table and replies with it as it was.
func (a *App) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "table", models.ParseTableID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfTable(ctx, id)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	table, err := a.store.GetTable(ctx, id)
	if err == nil && table == nil {
		err = store.NotFoundf("table %s", id)
	}
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	if err := a.store.DeleteTable(ctx, id); err != nil {
		a.respondErr(w, r, err)
		return
	}
	a.events.publish(client.Event{Type: client.EventTableDeleted, TableID: id})
	respondJSON(w, http.StatusOK, table)
}

// Field handlers

func (a *App) handleListFields(w http.ResponseWriter, r *http.Request) {
	tableID, err := pathID(r, "id", "table", models.ParseTableID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfTable(ctx, tableID)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	fields, err := a.store.ListFields(ctx, tableID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, emptyIfNil(fields))
}

func (a *App) handleCreateField(w http.ResponseWriter, r *http.Request) {
	tableID, err := pathID(r, "id", "table", models.ParseTableID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	var req client.NameRequest
	if err := decodeBody(r, &req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfTable(ctx, tableID)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	field := &models.Field{Name: req.Name, Type: req.Type, TableID: tableID}
	if err := a.store.CreateField(ctx, field); err != nil {
		a.respondErr(w, r, err)
		return
	}
	a.events.publish(client.Event{Type: client.EventFieldsChanged, TableID: tableID, FieldID: &field.ID})
	respondJSON(w, http.StatusCreated, field)
}

func (a *App) handleRenameField(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "field", models.ParseFieldID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	var req client.NameRequest
	if err := decodeBody(r, &req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfField(ctx, id)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	field, err := a.store.RenameField(ctx, id, req.Name)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	a.events.publish(client.Event{Type: client.EventFieldsChanged, TableID: field.TableID, FieldID: &field.ID})
	respondJSON(w, http.StatusOK, field)
}

// handleDeleteField deletes the field with its cell values and replies with the field.
func (a *App) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "field", models.ParseFieldID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfField(ctx, id)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	field, err := a.store.GetField(ctx, id)
	if err == nil && field == nil {
		err = store.NotFoundf("field %s", id)
	}
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	if err := a.store.DeleteField(ctx, id); err != nil {
		a.respondErr(w, r, err)
		return
	}
	a.events.publish(client.Event{Type: client.EventFieldsChanged, TableID: field.TableID, FieldID: &field.ID})
	respondJSON(w, http.StatusOK, field)
}

// Record handlers

// parseRecordQuery reads cursor, limit, search, filters and sorts from the query
// string. Filters and sorts are JSON arrays.
func parseRecordQuery(r *http.Request, tableID models.TableID) (store.RecordQuery, error) {
	values := r.URL.Query()
	q := store.RecordQuery{TableID: tableID, Search: values.Get("search")}

	for name, dst := range map[string]*int{"cursor": &q.Cursor, "limit": &q.Limit} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return q, store.Invalid(name, "must be an integer")
		}
		*dst = n
	}
	if raw := values.Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.Filters); err != nil {
			return q, store.Invalid("filters", "must be a JSON array of filters")
		}
	}
	if raw := values.Get("sorts"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.Sorts); err != nil {
			return q, store.Invalid("sorts", "must be a JSON array of sorts")
		}
	}
	return q, nil
}

// handleListRecords serves one page of the grid.
//
//	GET /api/tables/{id}/records?cursor=50&limit=50&search=foo
//	{"records":[...],"total_count":120,"next_cursor":100}
func (a *App) handleListRecords(w http.ResponseWriter, r *http.Request) {
	tableID, err := pathID(r, "id", "table", models.ParseTableID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	q, err := parseRecordQuery(r, tableID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfTable(ctx, tableID)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	page, err := a.store.ListRecords(ctx, q)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (a *App) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	tableID, err := pathID(r, "id", "table", models.ParseTableID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfTable(ctx, tableID)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	record := &models.Record{TableID: tableID}
	if err := a.store.CreateRecord(ctx, record); err != nil {
		a.respondErr(w, r, err)
		return
	}
	a.events.publish(client.Event{Type: client.EventRecordCreated, TableID: tableID, RecordID: &record.ID})
	respondJSON(w, http.StatusCreated, record)
}

// handleCreateRecordsBulk generates count records with fake values.
//
//	POST /api/tables/{id}/records/bulk {"count": 10000}
//	{"count": 10000}
func (a *App) handleCreateRecordsBulk(w http.ResponseWriter, r *http.Request) {
	tableID, err := pathID(r, "id", "table", models.ParseTableID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	var req client.BulkRequest
	if err := decodeBody(r, &req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfTable(ctx, tableID)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	n, err := a.store.CreateRecordsBulk(ctx, tableID, req.Count, a.generator)
	if n > 0 {
		a.events.publish(client.Event{Type: client.EventRecordsCreated, TableID: tableID, Count: n})
	}
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, client.BulkResponse{Count: n})
}

// handleDeleteRecord deletes the record with its cells and replies with the record.
func (a *App) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "record", models.ParseRecordID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfRecord(ctx, id)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	record, err := a.store.DeleteRecord(ctx, id)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	a.events.publish(client.Event{Type: client.EventRecordDeleted, TableID: record.TableID, RecordID: &record.ID})
	respondJSON(w, http.StatusOK, record)
}

// Cell value handlers

// cellTarget parses and authorizes the record and field of a cell route.
func (a *App) cellTarget(r *http.Request) (models.RecordID, models.FieldID, error) {
	recordID, err := pathID(r, "id", "record", models.ParseRecordID)
	if err != nil {
		return recordID, models.FieldID{}, err
	}
	fieldID, err := pathID(r, "fieldId", "field", models.ParseFieldID)
	if err != nil {
		return recordID, fieldID, err
	}
	check := ownedBy(currentUser(r))
	if err := check(a.store.OwnerOfRecord(r.Context(), recordID)); err != nil {
		return recordID, fieldID, err
	}
	return recordID, fieldID, check(a.store.OwnerOfField(r.Context(), fieldID))
}

// handleUpsertCell writes one cell; only the value matching the field type is kept.
//
//	PUT /api/records/{id}/cells/{fieldId} {"text_value": "hello", "number_value": null}
func (a *App) handleUpsertCell(w http.ResponseWriter, r *http.Request) {
	recordID, fieldID, err := a.cellTarget(r)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	var req client.CellRequest
	if err := decodeBody(r, &req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	cell, err := a.store.UpsertCellValue(ctx, store.CellWrite{
		RecordID:    recordID,
		FieldID:     fieldID,
		TextValue:   req.TextValue,
		NumberValue: req.NumberValue,
	})
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	if field, err := a.store.GetField(ctx, fieldID); err == nil && field != nil {
		a.events.publish(client.Event{Type: client.EventCellUpdated, TableID: field.TableID, RecordID: &recordID, FieldID: &fieldID})
	}
	respondJSON(w, http.StatusOK, cell)
}

// handleGetCell replies with the cell, or null when it was never written.
func (a *App) handleGetCell(w http.ResponseWriter, r *http.Request) {
	recordID, fieldID, err := a.cellTarget(r)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	cell, err := a.store.GetCellValue(r.Context(), recordID, fieldID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cell)
}

// handleQueryCells returns every cell of the listed records.
//
//	POST /api/cells/query {"record_ids": ["...", "..."]}
func (a *App) handleQueryCells(w http.ResponseWriter, r *http.Request) {
	var req client.CellsQueryRequest
	if err := decodeBody(r, &req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	check := ownedBy(currentUser(r))
	for _, id := range req.RecordIDs {
		if err := check(a.store.OwnerOfRecord(ctx, id)); err != nil {
			a.respondErr(w, r, err)
			return
		}
	}
	cells, err := a.store.ListCellValues(ctx, req.RecordIDs)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, emptyIfNil(cells))
}

// View handlers

func (a *App) handleListViews(w http.ResponseWriter, r *http.Request) {
	tableID, err := pathID(r, "id", "table", models.ParseTableID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfTable(ctx, tableID)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	views, err := a.store.ListViews(ctx, tableID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, emptyIfNil(views))
}

func (a *App) handleCreateView(w http.ResponseWriter, r *http.Request) {
	tableID, err := pathID(r, "id", "table", models.ParseTableID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	var req client.ViewRequest
	if err := decodeBody(r, &req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	if err := validateViewRequest(req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfTable(ctx, tableID)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	view := &models.View{
		Name:         req.Name,
		TableID:      tableID,
		Filters:      models.EncodeList(req.Filters),
		Sorts:        models.EncodeList(req.Sorts),
		HiddenFields: models.EncodeList(req.HiddenFields),
	}
	if err := a.store.CreateView(ctx, view); err != nil {
		a.respondErr(w, r, err)
		return
	}
	a.events.publish(client.Event{Type: client.EventViewsChanged, TableID: tableID})
	respondJSON(w, http.StatusCreated, view)
}

// handleUpdateView patches a view: an empty name and null lists keep the stored values.
func (a *App) handleUpdateView(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "view", models.ParseViewID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	var req client.ViewRequest
	if err := decodeBody(r, &req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	if err := validateViewRequest(req); err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfView(ctx, id)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	view, err := a.store.GetView(ctx, id)
	if err == nil && view == nil {
		err = store.NotFoundf("view %s", id)
	}
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	if req.Name != "" {
		view.Name = req.Name
	}
	if req.Filters != nil {
		view.Filters = models.EncodeList(req.Filters)
	}
	if req.Sorts != nil {
		view.Sorts = models.EncodeList(req.Sorts)
	}
	if req.HiddenFields != nil {
		view.HiddenFields = models.EncodeList(req.HiddenFields)
	}
	if err := a.store.UpdateView(ctx, view); err != nil {
		a.respondErr(w, r, err)
		return
	}
	a.events.publish(client.Event{Type: client.EventViewsChanged, TableID: view.TableID})
	respondJSON(w, http.StatusOK, view)
}

func (a *App) handleDeleteView(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id", "view", models.ParseViewID)
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	ctx := r.Context()
	if err := ownedBy(currentUser(r))(a.store.OwnerOfView(ctx, id)); err != nil {
		a.respondErr(w, r, err)
		return
	}
	view, err := a.store.GetView(ctx, id)
	if err == nil && view == nil {
		err = store.NotFoundf("view %s", id)
	}
	if err != nil {
		a.respondErr(w, r, err)
		return
	}
	if err := a.store.DeleteView(ctx, id); err != nil {
		a.respondErr(w, r, err)
		return
	}
	a.events.publish(client.Event{Type: client.EventViewsChanged, TableID: view.TableID})
	respondJSON(w, http.StatusOK, view)
}

func validateViewRequest(req client.ViewRequest) error {
	if err := store.ValidateFilters(req.Filters); err != nil {
		return err
	}
	return store.ValidateSorts(req.Sorts)
}
