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
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/tabsync/pkg/wsapi"
)

// SetupWorkspace starts a fake workspace API for testing. The server
// is automatically shut down when the test finishes.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    w := testing.SetupWorkspace(t)
//	    client := w.Client(t)
//
//	    dbID := w.SeedDatabase(t, "Tasks", map[string]string{
//	        "Name": "title",
//	    })
//	    // drive client code against dbID...
//	}
func SetupWorkspace(t *testing.T) *Workspace {
	t.Helper()
	w := newWorkspace()
	t.Cleanup(w.Server.Close)
	return w
}

// BaseURL returns the address of the fake API. Tests that need a
// misconfigured client (wrong token, tiny timeouts) build their own
// wsapi.Client against it.
func (w *Workspace) BaseURL() string {
	return w.Server.URL
}

// Client returns an API client wired to the fake workspace, with retry
// delays shrunk to keep tests fast.
func (w *Workspace) Client(t *testing.T) *wsapi.Client {
	t.Helper()
	client, err := wsapi.New(wsapi.Config{
		BaseURL: w.BaseURL(),
		Token:   TestToken,
		Retry:   wsapi.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("failed to create workspace client: %v", err)
	}
	return client
}

// SeedDatabase creates a collection directly in the fake's state and
// returns its id. columns maps column names to property types; exactly
// one column must be "title".
func (w *Workspace) SeedDatabase(t *testing.T, title string, columns map[string]string) string {
	t.Helper()

	db := &fakeDatabase{
		id:    uuid.NewString(),
		title: title,
		props: make(map[string]map[string]any, len(columns)),
		pages: make(map[string]*fakePage),
	}
	titleCols := 0
	for name, typ := range columns {
		if !schemaTypes[typ] {
			t.Fatalf("column %q has unknown type %q", name, typ)
		}
		if typ == "title" {
			titleCols++
		}
		db.props[name] = map[string]any{
			"id":   uuid.NewString(),
			"name": name,
			"type": typ,
			typ:    emptyConfig(typ),
		}
	}
	if titleCols != 1 {
		t.Fatalf("database %q needs exactly one title column, got %d", title, titleCols)
	}

	w.mu.Lock()
	w.databases[db.id] = db
	w.mu.Unlock()
	return db.id
}

func emptyConfig(typ string) map[string]any {
	switch typ {
	case "select", "multi_select":
		return map[string]any{"options": []any{}}
	case "status":
		return map[string]any{"options": []any{}, "groups": []any{}}
	case "relation":
		return map[string]any{"database_id": ""}
	default:
		return map[string]any{}
	}
}

// SeedOptions appends options to a select, multi_select or status
// column, the way a workspace admin would have configured them.
func (w *Workspace) SeedOptions(t *testing.T, dbID, column string, names ...string) {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()

	prop := w.seededColumn(t, dbID, column)
	typ, _ := prop["type"].(string)
	config, ok := prop[typ].(map[string]any)
	if !ok {
		t.Fatalf("column %q has no config payload", column)
	}
	opts, ok := config["options"].([]any)
	if !ok {
		t.Fatalf("column %q (%s) does not carry options", column, typ)
	}
	for _, name := range names {
		opts = append(opts, map[string]any{
			"id":    uuid.NewString(),
			"name":  name,
			"color": "default",
		})
	}
	config["options"] = opts
}

// SeedRelationColumn adds a relation column pointing at another
// collection.
func (w *Workspace) SeedRelationColumn(t *testing.T, dbID, name, targetDBID string) {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()

	db, ok := w.databases[dbID]
	if !ok {
		t.Fatalf("database %q not seeded", dbID)
	}
	db.props[name] = map[string]any{
		"id":       uuid.NewString(),
		"name":     name,
		"type":     "relation",
		"relation": map[string]any{"database_id": targetDBID},
	}
}

// SeedRow adds a row holding only its title and returns the page id.
// Rows with more cells are written through the client, the same path
// production code takes.
func (w *Workspace) SeedRow(t *testing.T, dbID, title string) string {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()

	db, ok := w.databases[dbID]
	if !ok {
		t.Fatalf("database %q not seeded", dbID)
	}
	titleCol := ""
	for name, prop := range db.props {
		if prop["type"] == "title" {
			titleCol = name
			break
		}
	}
	if titleCol == "" {
		t.Fatalf("database %q has no title column", dbID)
	}

	page := &fakePage{
		id:    uuid.NewString(),
		title: title,
		props: map[string]any{
			titleCol: map[string]any{"title": []any{textSpan(title)}},
		},
	}
	db.pages[page.id] = page
	db.order = append(db.order, page.id)
	return page.id
}

// SeedUser adds a workspace member and returns their id.
func (w *Workspace) SeedUser(t *testing.T, name, email string) string {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()

	id := uuid.NewString()
	w.users = append(w.users, map[string]any{
		"object": "user",
		"id":     id,
		"name":   name,
		"type":   "person",
		"person": map[string]any{"email": email},
	})
	return id
}

// seededColumn fetches a column descriptor, failing the test when the
// database or column is missing. Caller holds the lock.
func (w *Workspace) seededColumn(t *testing.T, dbID, column string) map[string]any {
	t.Helper()
	db, ok := w.databases[dbID]
	if !ok {
		t.Fatalf("database %q not seeded", dbID)
	}
	prop, ok := db.props[column]
	if !ok {
		t.Fatalf("column %q not found in database %q", column, dbID)
	}
	return prop
}

// ConflictNextCreates makes the next n page creations answer 409, as
// if a concurrent writer saved first.
func (w *Workspace) ConflictNextCreates(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conflictCreates = n
}

// ConflictNextUpdates makes the next n page updates answer 409.
func (w *Workspace) ConflictNextUpdates(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conflictUpdates = n
}

// ConflictNextSchemaPushes makes the next n database schema updates
// answer 409, as if another writer changed the schema first.
func (w *Workspace) ConflictNextSchemaPushes(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conflictSchemaPushes = n
}

// BreakQueriesAfter lets n more queries through and then answers 503
// to every query until Heal is called.
func (w *Workspace) BreakQueriesAfter(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queriesBeforeBreak = n
}

// Heal clears query failure injection.
func (w *Workspace) Heal() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queriesBeforeBreak = -1
}

// Calls returns how many requests hit an operation, keyed by the same
// names the client uses: "databases.query", "pages.create", ...
func (w *Workspace) Calls(op string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[op]
}

// QueryCursors returns the start_cursor of every query seen, in order.
// The first page of a fetch arrives with an empty cursor.
func (w *Workspace) QueryCursors() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string{}, w.queryCursors...)
}

// RowCount returns the number of live (non-archived) rows.
func (w *Workspace) RowCount(t *testing.T, dbID string) int {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()

	db, ok := w.databases[dbID]
	if !ok {
		t.Fatalf("database %q not seeded", dbID)
	}
	n := 0
	for _, p := range db.pages {
		if !p.archived {
			n++
		}
	}
	return n
}

// ArchivedCount returns the number of archived rows.
func (w *Workspace) ArchivedCount(t *testing.T, dbID string) int {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()

	db, ok := w.databases[dbID]
	if !ok {
		t.Fatalf("database %q not seeded", dbID)
	}
	n := 0
	for _, p := range db.pages {
		if p.archived {
			n++
		}
	}
	return n
}

// OptionNames returns the option names of a column in schema order.
func (w *Workspace) OptionNames(t *testing.T, dbID, column string) []string {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()

	prop := w.seededColumn(t, dbID, column)
	typ, _ := prop["type"].(string)
	config, _ := prop[typ].(map[string]any)
	opts, _ := config["options"].([]any)

	names := make([]string, 0, len(opts))
	for _, o := range opts {
		if m, ok := o.(map[string]any); ok {
			if name, ok := m["name"].(string); ok {
				names = append(names, name)
			}
		}
	}
	return names
}

// PageSnapshot is a copy of one stored row for assertions.
type PageSnapshot struct {
	ID         string
	Title      string
	Archived   bool
	Properties map[string]any
	Icon       map[string]any
	Cover      map[string]any
	Children   []any
}

// Page returns the live row with the given title, failing the test
// when no such row exists.
func (w *Workspace) Page(t *testing.T, dbID, title string) PageSnapshot {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()

	db, ok := w.databases[dbID]
	if !ok {
		t.Fatalf("database %q not seeded", dbID)
	}
	for _, id := range db.order {
		p := db.pages[id]
		if p.archived || p.title != title {
			continue
		}
		snap := PageSnapshot{
			ID:         p.id,
			Title:      p.title,
			Archived:   p.archived,
			Properties: make(map[string]any, len(p.props)),
			Icon:       p.icon,
			Cover:      p.cover,
			Children:   append([]any{}, p.children...),
		}
		for k, v := range p.props {
			snap.Properties[k] = v
		}
		return snap
	}
	t.Fatalf("no live row titled %q in database %q", title, dbID)
	return PageSnapshot{}
}

// UploadCount returns how many file uploads were created.
func (w *Workspace) UploadCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.uploads)
}

// UploadedBytes returns the content received for an upload id.
func (w *Workspace) UploadedBytes(t *testing.T, uploadID string) []byte {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()

	up, ok := w.uploads[uploadID]
	if !ok {
		t.Fatalf("upload %q not found", uploadID)
	}
	return append([]byte{}, up.content...)
}
