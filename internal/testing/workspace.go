// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package testing

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// TestToken is the only credential the fake workspace accepts.
const TestToken = "secret_tabsync_integration_token"

// Workspace is an in-memory workspace served over HTTP. It implements
// the subset of the hosted API tabsync talks to: database get/create/
// update, paginated queries, page create/update, block children, the
// users listing and the file upload flow.
//
// All state access is guarded by one mutex, so a Workspace is safe for
// the concurrent clients an upload worker pool throws at it.
type Workspace struct {
	// Server is the underlying HTTP server. Tests normally reach it
	// through Client rather than directly.
	Server *httptest.Server

	mu        sync.Mutex
	databases map[string]*fakeDatabase
	users     []map[string]any
	botUser   map[string]any
	uploads   map[string]*fakeUpload

	conflictCreates      int
	conflictUpdates      int
	conflictSchemaPushes int
	queriesBeforeBreak   int // -1 means never break

	calls        map[string]int
	queryCursors []string
}

type fakeDatabase struct {
	id    string
	title string
	props map[string]map[string]any
	order []string
	pages map[string]*fakePage
}

type fakePage struct {
	id       string
	title    string
	archived bool
	props    map[string]any
	icon     map[string]any
	cover    map[string]any
	children []any
}

type fakeUpload struct {
	id       string
	mode     string
	filename string
	status   string
	content  []byte
}

// schemaTypes are the property types the fake recognizes in schema and
// value payloads.
var schemaTypes = map[string]bool{
	"title": true, "rich_text": true, "number": true,
	"select": true, "multi_select": true, "status": true,
	"date": true, "checkbox": true, "url": true, "email": true,
	"phone_number": true, "files": true, "people": true, "relation": true,
	"created_time": true, "last_edited_time": true,
	"created_by": true, "last_edited_by": true,
	"formula": true, "rollup": true,
}

func newWorkspace() *Workspace {
	w := &Workspace{
		databases:          make(map[string]*fakeDatabase),
		uploads:            make(map[string]*fakeUpload),
		calls:              make(map[string]int),
		queriesBeforeBreak: -1,
		botUser: map[string]any{
			"object": "user",
			"id":     uuid.NewString(),
			"name":   "tabsync integration",
			"type":   "bot",
			"bot":    map[string]any{},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/me", w.handleMe)
	mux.HandleFunc("GET /users", w.handleListUsers)
	mux.HandleFunc("POST /databases", w.handleCreateDatabase)
	mux.HandleFunc("GET /databases/{id}", w.handleGetDatabase)
	mux.HandleFunc("PATCH /databases/{id}", w.handleUpdateDatabase)
	mux.HandleFunc("POST /databases/{id}/query", w.handleQuery)
	mux.HandleFunc("POST /pages", w.handleCreatePage)
	mux.HandleFunc("PATCH /pages/{id}", w.handleUpdatePage)
	mux.HandleFunc("PATCH /blocks/{id}/children", w.handleAppendChildren)
	mux.HandleFunc("POST /file_uploads", w.handleUploadCreate)
	mux.HandleFunc("POST /file_uploads/{id}/send", w.handleUploadSend)
	mux.HandleFunc("POST /file_uploads/{id}/complete", w.handleUploadComplete)

	w.Server = httptest.NewServer(w.requireAuth(mux))
	return w
}

// requireAuth rejects requests that do not carry the test bearer token,
// the same way the hosted API rejects bad credentials.
func (w *Workspace) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+TestToken {
			writeError(rw, http.StatusUnauthorized, "unauthorized", "API token is invalid.")
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, message string) {
	writeJSON(rw, status, map[string]any{
		"object":  "error",
		"status":  status,
		"code":    code,
		"message": message,
	})
}

func writeConflict(rw http.ResponseWriter) {
	writeError(rw, http.StatusConflict, "conflict_error",
		"Conflict occurred while saving. Please try again.")
}

func decodeBody(r *http.Request) (map[string]any, error) {
	var m map[string]any
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil && err != io.EOF {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

func textSpan(s string) map[string]any {
	return map[string]any{
		"type":       "text",
		"text":       map[string]any{"content": s},
		"plain_text": s,
	}
}

// plainText flattens a rich text span array from a decoded JSON body.
func plainText(spans any) string {
	list, ok := spans.([]any)
	if !ok {
		return ""
	}
	out := ""
	for _, item := range list {
		span, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if pt, ok := span["plain_text"].(string); ok && pt != "" {
			out += pt
			continue
		}
		if text, ok := span["text"].(map[string]any); ok {
			if content, ok := text["content"].(string); ok {
				out += content
			}
		}
	}
	return out
}

// valueType finds the property type key of a value payload like
// {"select": {...}} or {"title": [...]}.
func valueType(v any) (string, any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", nil, false
	}
	for k, inner := range m {
		if schemaTypes[k] {
			return k, inner, true
		}
	}
	return "", nil, false
}

// titleFromProps extracts the row key from a properties payload.
func titleFromProps(props map[string]any) (string, bool) {
	for _, v := range props {
		if k, inner, ok := valueType(v); ok && k == "title" {
			return plainText(inner), true
		}
	}
	return "", false
}

// normalizeSchemaProperty turns a schema payload like {"select":
// {"options": [...]}} into a stored descriptor carrying id, name and
// type, assigning ids to options and groups that arrived without one.
func normalizeSchemaProperty(name, existingID string, payload map[string]any) (map[string]any, error) {
	var typ string
	var config any
	for k, v := range payload {
		if schemaTypes[k] {
			typ, config = k, v
			break
		}
	}
	if typ == "" {
		return nil, fmt.Errorf("property %q has no recognizable type payload", name)
	}

	if cm, ok := config.(map[string]any); ok {
		if opts, ok := cm["options"].([]any); ok {
			for _, o := range opts {
				ensureID(o)
			}
		}
		if groups, ok := cm["groups"].([]any); ok {
			for _, g := range groups {
				ensureID(g)
			}
		}
	}

	id := existingID
	if id == "" {
		id = uuid.NewString()
	}
	return map[string]any{
		"id":   id,
		"name": name,
		"type": typ,
		typ:    config,
	}, nil
}

func ensureID(item any) {
	m, ok := item.(map[string]any)
	if !ok {
		return
	}
	if id, ok := m["id"].(string); !ok || id == "" {
		m["id"] = uuid.NewString()
	}
}

func (w *Workspace) count(op string) {
	w.calls[op]++
}

func (w *Workspace) serveDatabase(db *fakeDatabase) map[string]any {
	props := make(map[string]any, len(db.props))
	for name, p := range db.props {
		props[name] = p
	}
	return map[string]any{
		"object":     "database",
		"id":         db.id,
		"title":      []any{textSpan(db.title)},
		"properties": props,
		"url":        "https://workspace.test/" + db.id,
	}
}

func (w *Workspace) servePage(p *fakePage) map[string]any {
	props := make(map[string]any, len(p.props))
	for name, v := range p.props {
		if k, inner, ok := valueType(v); ok {
			props[name] = map[string]any{"type": k, k: inner}
			continue
		}
		props[name] = v
	}
	return map[string]any{
		"object":     "page",
		"id":         p.id,
		"url":        "https://workspace.test/" + p.id,
		"archived":   p.archived,
		"properties": props,
	}
}

// findPage locates a page by id across all databases.
func (w *Workspace) findPage(id string) (*fakeDatabase, *fakePage) {
	for _, db := range w.databases {
		if p, ok := db.pages[id]; ok {
			return db, p
		}
	}
	return nil, nil
}

func (w *Workspace) handleMe(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	w.count("users.me")
	me := w.botUser
	w.mu.Unlock()
	writeJSON(rw, http.StatusOK, me)
}

func (w *Workspace) handleListUsers(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.count("users.list")

	pageSize := 100
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pageSize = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("start_cursor"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}

	all := append([]map[string]any{}, w.users...)
	all = append(all, w.botUser)

	end := offset + pageSize
	if end > len(all) {
		end = len(all)
	}
	results := []map[string]any{}
	if offset < len(all) {
		results = all[offset:end]
	}

	resp := map[string]any{
		"object":   "list",
		"results":  results,
		"has_more": end < len(all),
	}
	if end < len(all) {
		resp["next_cursor"] = strconv.Itoa(end)
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (w *Workspace) handleGetDatabase(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.count("databases.get")

	db, ok := w.databases[r.PathValue("id")]
	if !ok {
		writeError(rw, http.StatusNotFound, "object_not_found", "Could not find database.")
		return
	}
	writeJSON(rw, http.StatusOK, w.serveDatabase(db))
}

func (w *Workspace) handleCreateDatabase(rw http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, "validation_error", "Body is not valid JSON.")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.count("databases.create")

	props, _ := body["properties"].(map[string]any)
	db := &fakeDatabase{
		id:    uuid.NewString(),
		title: plainText(body["title"]),
		props: make(map[string]map[string]any, len(props)),
		pages: make(map[string]*fakePage),
	}

	titleCols := 0
	for name, raw := range props {
		payload, ok := raw.(map[string]any)
		if !ok {
			writeError(rw, http.StatusBadRequest, "validation_error",
				fmt.Sprintf("property %q is not an object", name))
			return
		}
		stored, err := normalizeSchemaProperty(name, "", payload)
		if err != nil {
			writeError(rw, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		if stored["type"] == "title" {
			titleCols++
		}
		db.props[name] = stored
	}
	if titleCols != 1 {
		writeError(rw, http.StatusBadRequest, "validation_error",
			"Database schema must have exactly one title property.")
		return
	}

	w.databases[db.id] = db
	writeJSON(rw, http.StatusOK, w.serveDatabase(db))
}

func (w *Workspace) handleUpdateDatabase(rw http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, "validation_error", "Body is not valid JSON.")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.count("databases.update")

	if w.conflictSchemaPushes > 0 {
		w.conflictSchemaPushes--
		writeConflict(rw)
		return
	}

	db, ok := w.databases[r.PathValue("id")]
	if !ok {
		writeError(rw, http.StatusNotFound, "object_not_found", "Could not find database.")
		return
	}

	if title, ok := body["title"]; ok {
		db.title = plainText(title)
	}
	if props, ok := body["properties"].(map[string]any); ok {
		for name, raw := range props {
			payload, ok := raw.(map[string]any)
			if !ok {
				writeError(rw, http.StatusBadRequest, "validation_error",
					fmt.Sprintf("property %q is not an object", name))
				return
			}
			existingID := ""
			if prev, ok := db.props[name]; ok {
				existingID, _ = prev["id"].(string)
			}
			stored, err := normalizeSchemaProperty(name, existingID, payload)
			if err != nil {
				writeError(rw, http.StatusBadRequest, "validation_error", err.Error())
				return
			}
			db.props[name] = stored
		}
	}
	writeJSON(rw, http.StatusOK, w.serveDatabase(db))
}

func (w *Workspace) handleQuery(rw http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, "validation_error", "Body is not valid JSON.")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.count("databases.query")

	cursor, _ := body["start_cursor"].(string)
	w.queryCursors = append(w.queryCursors, cursor)

	if w.queriesBeforeBreak == 0 {
		writeError(rw, http.StatusServiceUnavailable, "service_unavailable",
			"The workspace is unavailable, try again later.")
		return
	}
	if w.queriesBeforeBreak > 0 {
		w.queriesBeforeBreak--
	}

	db, ok := w.databases[r.PathValue("id")]
	if !ok {
		writeError(rw, http.StatusNotFound, "object_not_found", "Could not find database.")
		return
	}

	pageSize := 100
	if v, ok := body["page_size"].(float64); ok && v > 0 {
		pageSize = int(v)
	}
	offset := 0
	if cursor != "" {
		if n, err := strconv.Atoi(cursor); err == nil {
			offset = n
		}
	}

	var active []*fakePage
	for _, id := range db.order {
		if p := db.pages[id]; !p.archived {
			active = append(active, p)
		}
	}

	end := offset + pageSize
	if end > len(active) {
		end = len(active)
	}
	results := []any{}
	if offset < len(active) {
		for _, p := range active[offset:end] {
			results = append(results, w.servePage(p))
		}
	}

	resp := map[string]any{
		"object":   "list",
		"results":  results,
		"has_more": end < len(active),
	}
	if end < len(active) {
		resp["next_cursor"] = strconv.Itoa(end)
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (w *Workspace) handleCreatePage(rw http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, "validation_error", "Body is not valid JSON.")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.count("pages.create")

	if w.conflictCreates > 0 {
		w.conflictCreates--
		writeConflict(rw)
		return
	}

	parent, _ := body["parent"].(map[string]any)
	dbID, _ := parent["database_id"].(string)
	db, ok := w.databases[dbID]
	if !ok {
		writeError(rw, http.StatusNotFound, "object_not_found", "Could not find database.")
		return
	}

	props, _ := body["properties"].(map[string]any)
	title, _ := titleFromProps(props)
	page := &fakePage{
		id:    uuid.NewString(),
		title: title,
		props: props,
	}
	if props == nil {
		page.props = map[string]any{}
	}
	if icon, ok := body["icon"].(map[string]any); ok {
		page.icon = icon
	}
	if cover, ok := body["cover"].(map[string]any); ok {
		page.cover = cover
	}
	if children, ok := body["children"].([]any); ok {
		page.children = children
	}

	db.pages[page.id] = page
	db.order = append(db.order, page.id)
	writeJSON(rw, http.StatusOK, w.servePage(page))
}

func (w *Workspace) handleUpdatePage(rw http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, "validation_error", "Body is not valid JSON.")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.count("pages.update")

	if w.conflictUpdates > 0 {
		w.conflictUpdates--
		writeConflict(rw)
		return
	}

	_, page := w.findPage(r.PathValue("id"))
	if page == nil {
		writeError(rw, http.StatusNotFound, "object_not_found", "Could not find page.")
		return
	}

	if props, ok := body["properties"].(map[string]any); ok {
		for name, v := range props {
			page.props[name] = v
			if k, inner, ok := valueType(v); ok && k == "title" {
				page.title = plainText(inner)
			}
		}
	}
	if icon, ok := body["icon"].(map[string]any); ok {
		page.icon = icon
	}
	if cover, ok := body["cover"].(map[string]any); ok {
		page.cover = cover
	}
	if archived, ok := body["archived"].(bool); ok {
		page.archived = archived
	}
	writeJSON(rw, http.StatusOK, w.servePage(page))
}

func (w *Workspace) handleAppendChildren(rw http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, "validation_error", "Body is not valid JSON.")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.count("blocks.children.append")

	_, page := w.findPage(r.PathValue("id"))
	if page == nil {
		writeError(rw, http.StatusNotFound, "object_not_found", "Could not find block.")
		return
	}

	children, _ := body["children"].([]any)
	page.children = append(page.children, children...)
	writeJSON(rw, http.StatusOK, map[string]any{"object": "list", "results": children})
}

func (w *Workspace) handleUploadCreate(rw http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(rw, http.StatusBadRequest, "validation_error", "Body is not valid JSON.")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.count("file_uploads.create")

	mode, _ := body["mode"].(string)
	if mode == "" {
		mode = "single_part"
	}
	up := &fakeUpload{
		id:     uuid.NewString(),
		mode:   mode,
		status: "pending",
	}
	up.filename, _ = body["filename"].(string)
	w.uploads[up.id] = up
	writeJSON(rw, http.StatusOK, map[string]any{"id": up.id, "status": up.status})
}

func (w *Workspace) handleUploadSend(rw http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(rw, http.StatusBadRequest, "validation_error", "Body is not valid multipart form data.")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(rw, http.StatusBadRequest, "validation_error", "Form is missing the file field.")
		return
	}
	defer func() { _ = file.Close() }()
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(rw, http.StatusBadRequest, "validation_error", "Could not read file content.")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.count("file_uploads.send")

	up, ok := w.uploads[r.PathValue("id")]
	if !ok {
		writeError(rw, http.StatusNotFound, "object_not_found", "Could not find file upload.")
		return
	}

	up.content = append(up.content, content...)
	if up.mode == "single_part" {
		up.status = "uploaded"
	}
	writeJSON(rw, http.StatusOK, map[string]any{"id": up.id, "status": up.status})
}

func (w *Workspace) handleUploadComplete(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.count("file_uploads.complete")

	up, ok := w.uploads[r.PathValue("id")]
	if !ok {
		writeError(rw, http.StatusNotFound, "object_not_found", "Could not find file upload.")
		return
	}
	up.status = "uploaded"
	writeJSON(rw, http.StatusOK, map[string]any{"id": up.id, "status": up.status})
}
