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
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/tabsync/pkg/wsapi"
)

// TestSetupWorkspace verifies the fake starts and answers the
// cheapest call.
func TestSetupWorkspace(t *testing.T) {
	w := SetupWorkspace(t)
	client := w.Client(t)

	me, err := client.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bot", me.Type)
	assert.Equal(t, 1, w.Calls("users.me"))
}

// TestAuthRequired verifies the fake rejects a wrong token the way the
// hosted API would.
func TestAuthRequired(t *testing.T) {
	w := SetupWorkspace(t)

	client, err := wsapi.New(wsapi.Config{
		BaseURL: w.BaseURL(),
		Token:   "secret_wrong_token",
		Retry:   wsapi.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond},
	})
	require.NoError(t, err)

	_, err = client.Me(context.Background())
	require.Error(t, err)
	assert.True(t, wsapi.IsUnauthorized(err))
}

// TestSeedDatabaseRoundtrip verifies seeded schema comes back through
// the real client.
func TestSeedDatabaseRoundtrip(t *testing.T) {
	w := SetupWorkspace(t)
	client := w.Client(t)

	dbID := w.SeedDatabase(t, "Tasks", map[string]string{
		"Name":  "title",
		"Stage": "select",
	})
	w.SeedOptions(t, dbID, "Stage", "Open", "Closed")

	db, err := client.GetDatabase(context.Background(), dbID)
	require.NoError(t, err)
	assert.Equal(t, "Tasks", db.TitleText())
	assert.Equal(t, "select", db.Properties["Stage"].Type)

	opts := db.Properties["Stage"].Options()
	require.Len(t, opts, 2)
	assert.Equal(t, "Open", opts[0].Name)
	assert.NotEmpty(t, opts[0].ID, "seeded options should carry ids")
}

// TestQueryPagination verifies cursored paging over seeded rows.
func TestQueryPagination(t *testing.T) {
	w := SetupWorkspace(t)
	client := w.Client(t)

	dbID := w.SeedDatabase(t, "Tasks", map[string]string{"Name": "title"})
	w.SeedRow(t, dbID, "Task A")
	w.SeedRow(t, dbID, "Task B")
	w.SeedRow(t, dbID, "Task C")

	// First page of two.
	res, err := client.QueryDatabase(context.Background(), dbID, wsapi.QueryRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	require.True(t, res.HasMore)
	assert.Equal(t, "Task A", res.Results[0].TitleText())

	// Remainder.
	res, err = client.QueryDatabase(context.Background(), dbID, wsapi.QueryRequest{
		PageSize:    2,
		StartCursor: res.NextCursor,
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.False(t, res.HasMore)
	assert.Equal(t, "Task C", res.Results[0].TitleText())

	assert.Equal(t, []string{"", "2"}, w.QueryCursors())
}

// TestConflictInjection verifies the two write paths react to 409 the
// way production is built to: creates retry through it, updates
// surface it.
func TestConflictInjection(t *testing.T) {
	w := SetupWorkspace(t)
	client := w.Client(t)
	dbID := w.SeedDatabase(t, "Tasks", map[string]string{"Name": "title"})

	// Creates are retried, so a single injected conflict heals itself.
	w.ConflictNextCreates(1)
	page, err := client.CreatePage(context.Background(), wsapi.CreatePageRequest{
		Parent:     wsapi.Parent{Type: "database_id", DatabaseID: dbID},
		Properties: map[string]any{"Name": map[string]any{"title": wsapi.Text("Task A")}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, w.Calls("pages.create"))

	// Updates are single-shot; the conflict reaches the caller.
	w.ConflictNextUpdates(1)
	_, err = client.UpdatePage(context.Background(), page.ID, wsapi.UpdatePageRequest{
		Properties: map[string]any{"Name": map[string]any{"title": wsapi.Text("Task A2")}},
	})
	require.Error(t, err)
	assert.True(t, wsapi.IsConflict(err))
	assert.Equal(t, 1, w.Calls("pages.update"))
}

// TestBreakQueriesAfter verifies query failure injection and healing.
func TestBreakQueriesAfter(t *testing.T) {
	w := SetupWorkspace(t)
	client := w.Client(t)
	dbID := w.SeedDatabase(t, "Tasks", map[string]string{"Name": "title"})

	w.BreakQueriesAfter(0)
	_, err := client.QueryDatabase(context.Background(), dbID, wsapi.QueryRequest{})
	require.Error(t, err)

	w.Heal()
	_, err = client.QueryDatabase(context.Background(), dbID, wsapi.QueryRequest{})
	require.NoError(t, err)
}

// TestSeedUserListing verifies seeded members and the bot both come
// back from the users listing.
func TestSeedUserListing(t *testing.T) {
	w := SetupWorkspace(t)
	client := w.Client(t)

	w.SeedUser(t, "Jane Doe", "jane@acme.test")
	w.SeedUser(t, "John Roe", "john@acme.test")

	users, err := client.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)
}

// TestUploadLifecycle verifies the single-part upload flow stores the
// file content.
func TestUploadLifecycle(t *testing.T) {
	w := SetupWorkspace(t)
	client := w.Client(t)

	path := filepath.Join(t.TempDir(), "cover.png")
	content := []byte("not really a png")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	up, err := client.UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "cover.png", up.Name)
	assert.Equal(t, content, w.UploadedBytes(t, up.ID))
	assert.Equal(t, 1, w.UploadCount())
}
