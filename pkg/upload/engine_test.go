// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package upload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wstest "github.com/kraklabs/tabsync/internal/testing"
	"github.com/kraklabs/tabsync/pkg/caption"
	"github.com/kraklabs/tabsync/pkg/collection"
	"github.com/kraklabs/tabsync/pkg/property"
	"github.com/kraklabs/tabsync/pkg/wsapi"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCache(t *testing.T, w *wstest.Workspace, dbID string) *collection.Cache {
	t.Helper()
	return collection.New(w.Client(t), dbID, collection.Options{Logger: discardLogger()})
}

// engineFor builds an engine over a fresh cache, with an uploader on
// the same client.
func engineFor(t *testing.T, w *wstest.Workspace, dbID string, merge bool) *Engine {
	t.Helper()
	client := w.Client(t)
	return NewEngine(EngineConfig{
		Cache:    collection.New(client, dbID, collection.Options{Logger: discardLogger()}),
		Uploader: wsapi.NewUploader(client),
		Merge:    merge,
		Logger:   discardLogger(),
	})
}

func simpleRow(key string) *Row {
	return &Row{
		Columns: []string{"Name"},
		Values:  map[string]any{"Name": key},
	}
}

// richText digs the plain content out of a stored rich_text property.
func richText(t *testing.T, snap wstest.PageSnapshot, column string) string {
	t.Helper()
	prop, ok := snap.Properties[column].(map[string]any)
	require.True(t, ok, "property %q missing", column)
	spans, _ := prop["rich_text"].([]any)
	require.NotEmpty(t, spans, "property %q has no spans", column)
	text, _ := spans[0].(map[string]any)["text"].(map[string]any)
	s, _ := text["content"].(string)
	return s
}

func TestEngineCreatesTypedRow(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Inventory", map[string]string{
		"Name":  "title",
		"Count": "number",
		"Done":  "checkbox",
		"Notes": "rich_text",
	})
	eng := engineFor(t, w, dbID, false)

	res := eng.Upload(context.Background(), &Row{
		Columns: []string{"Name", "Count", "Done", "Notes"},
		Values: map[string]any{
			"Name":  "Widget",
			"Count": int64(3),
			"Done":  true,
			"Notes": "first batch",
		},
	})
	require.NoError(t, res.Err)
	assert.True(t, res.Created)
	assert.Equal(t, "Widget", res.Key)
	assert.NotEmpty(t, res.Row.ID)

	snap := w.Page(t, dbID, "Widget")
	assert.Equal(t, float64(3), snap.Properties["Count"].(map[string]any)["number"])
	assert.Equal(t, true, snap.Properties["Done"].(map[string]any)["checkbox"])
	assert.Equal(t, "first batch", richText(t, snap, "Notes"))
}

func TestEngineMergeUpdatesExistingRow(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Inventory", map[string]string{
		"Name":  "title",
		"Notes": "rich_text",
	})
	w.SeedRow(t, dbID, "Widget")
	eng := engineFor(t, w, dbID, true)

	res := eng.Upload(context.Background(), &Row{
		Columns: []string{"Name", "Notes"},
		Values:  map[string]any{"Name": "Widget", "Notes": "updated"},
	})
	require.NoError(t, res.Err)
	assert.False(t, res.Created)
	assert.Equal(t, 0, w.Calls("pages.create"))
	assert.Equal(t, 1, w.RowCount(t, dbID))
	assert.Equal(t, "updated", richText(t, w.Page(t, dbID, "Widget"), "Notes"))
}

func TestEngineMergeCreatesMissingRow(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Inventory", map[string]string{"Name": "title"})
	eng := engineFor(t, w, dbID, true)

	res := eng.Upload(context.Background(), simpleRow("Widget"))
	require.NoError(t, res.Err)
	assert.True(t, res.Created)
	assert.Equal(t, 1, w.RowCount(t, dbID))
}

func TestEngineCreateConflictRecoversByUpdate(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Inventory", map[string]string{
		"Name":  "title",
		"Notes": "rich_text",
	})
	// The row a concurrent writer already landed.
	w.SeedRow(t, dbID, "Widget")
	eng := engineFor(t, w, dbID, false)

	// Three conflicts outlast the client's two retries, so the create
	// surfaces as a conflict and the engine has to recover.
	w.ConflictNextCreates(3)
	res := eng.Upload(context.Background(), &Row{
		Columns: []string{"Name", "Notes"},
		Values:  map[string]any{"Name": "Widget", "Notes": "mine anyway"},
	})
	require.NoError(t, res.Err)
	assert.False(t, res.Created, "recovery lands on the existing row")
	assert.Equal(t, 3, w.Calls("pages.create"))
	assert.Equal(t, 1, w.Calls("pages.update"))
	assert.Equal(t, 1, w.RowCount(t, dbID))
	assert.Equal(t, "mine anyway", richText(t, w.Page(t, dbID, "Widget"), "Notes"))
}

func TestEngineCreateConflictWithoutRowKeepsError(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Inventory", map[string]string{"Name": "title"})
	eng := engineFor(t, w, dbID, false)

	// Conflict with no row to recover onto: the refetch comes back
	// empty and the original error must survive.
	w.ConflictNextCreates(3)
	res := eng.Upload(context.Background(), simpleRow("Widget"))
	require.Error(t, res.Err)
	assert.True(t, wsapi.IsConflict(res.Err))
	assert.Equal(t, 0, w.RowCount(t, dbID))
	assert.Equal(t, 1, w.Calls("databases.query"), "recovery refetched once")
}

func TestEngineUpdateConflictRefetchesAndReapplies(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Inventory", map[string]string{
		"Name":  "title",
		"Notes": "rich_text",
	})
	w.SeedRow(t, dbID, "Widget")
	eng := engineFor(t, w, dbID, true)

	// Updates are not retried by the client, so a single conflict
	// reaches the engine directly.
	w.ConflictNextUpdates(1)
	res := eng.Upload(context.Background(), &Row{
		Columns: []string{"Name", "Notes"},
		Values:  map[string]any{"Name": "Widget", "Notes": "v2"},
	})
	require.NoError(t, res.Err)
	assert.False(t, res.Created)
	assert.Equal(t, 2, w.Calls("pages.update"))
	assert.Equal(t, 2, w.Calls("databases.query"), "initial fetch plus recovery refetch")
	assert.Equal(t, "v2", richText(t, w.Page(t, dbID, "Widget"), "Notes"))
}

func TestEngineAppliesIconAndImageBlocks(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Inventory", map[string]string{"Name": "title"})
	eng := engineFor(t, w, dbID, false)

	row := simpleRow("Widget")
	row.Extra = Extra{
		Icon: &property.Icon{Emoji: "🚀"},
		Images: []ImageRef{{
			File:    property.FileRef{Name: "pic.png", URL: "https://img.example/pic.png"},
			Caption: "hero shot",
		}},
	}
	res := eng.Upload(context.Background(), row)
	require.NoError(t, res.Err)

	snap := w.Page(t, dbID, "Widget")
	require.NotNil(t, snap.Icon)
	assert.Equal(t, "emoji", snap.Icon["type"])
	assert.Equal(t, "🚀", snap.Icon["emoji"])

	require.Len(t, snap.Children, 1)
	block := snap.Children[0].(map[string]any)
	assert.Equal(t, "image", block["type"])
	img := block["image"].(map[string]any)
	assert.Equal(t, "external", img["type"])
	assert.Equal(t, "https://img.example/pic.png", img["external"].(map[string]any)["url"])
	assert.NotContains(t, img, "name", "block wire carries no file name")

	spans := img["caption"].([]any)
	require.Len(t, spans, 1)
	text := spans[0].(map[string]any)["text"].(map[string]any)
	assert.Equal(t, "hero shot", text["content"])

	assert.Equal(t, 1, w.Calls("blocks.children.append"))
	assert.Equal(t, 1, w.Calls("pages.update"), "icon rides its own update")
}

func TestEngineSetsCover(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Inventory", map[string]string{"Name": "title"})
	eng := engineFor(t, w, dbID, false)

	cover := property.FileRef{Name: "cover.png", URL: "https://img.example/cover.png"}
	row := simpleRow("Widget")
	row.Extra = Extra{Cover: &cover}

	res := eng.Upload(context.Background(), row)
	require.NoError(t, res.Err)

	snap := w.Page(t, dbID, "Widget")
	require.NotNil(t, snap.Cover)
	assert.Equal(t, "external", snap.Cover["type"])
	assert.Equal(t, "https://img.example/cover.png", snap.Cover["external"].(map[string]any)["url"])
	assert.NotContains(t, snap.Cover, "name")
}

func TestEngineExtrasFailSoft(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Inventory", map[string]string{"Name": "title"})
	eng := engineFor(t, w, dbID, false)

	// An image pointing at a file that is not on disk cannot upload,
	// but the row itself must still land.
	row := simpleRow("Widget")
	row.Extra = Extra{Images: []ImageRef{{
		File: property.FileRef{Name: "ghost.png", Path: filepath.Join(t.TempDir(), "ghost.png")},
	}}}

	res := eng.Upload(context.Background(), row)
	require.NoError(t, res.Err)
	snap := w.Page(t, dbID, "Widget")
	assert.Empty(t, snap.Children)
	assert.Equal(t, 0, w.Calls("blocks.children.append"))
}

func TestEngineUploadsAndDedupesFiles(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Inventory", map[string]string{
		"Name": "title",
		"Docs": "files",
	})
	eng := engineFor(t, w, dbID, false)

	path := filepath.Join(t.TempDir(), "art.bin")
	require.NoError(t, os.WriteFile(path, []byte("blob"), 0o644))

	for _, key := range []string{"A", "B"} {
		res := eng.Upload(context.Background(), &Row{
			Columns: []string{"Name", "Docs"},
			Values: map[string]any{
				"Name": key,
				"Docs": []property.FileRef{{Name: "art.bin", Path: path}},
			},
		})
		require.NoError(t, res.Err)
	}

	assert.Equal(t, 1, w.UploadCount(), "identical content uploads once")

	snap := w.Page(t, dbID, "A")
	files := snap.Properties["Docs"].(map[string]any)["files"].([]any)
	require.Len(t, files, 1)
	f := files[0].(map[string]any)
	assert.Equal(t, "art.bin", f["name"])
	uploadID := f["file_upload"].(map[string]any)["id"].(string)
	assert.Equal(t, []byte("blob"), w.UploadedBytes(t, uploadID))
}

func TestEngineCaptionsImageIntoColumn(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Inventory", map[string]string{
		"Name":  "title",
		"Notes": "rich_text",
	})

	img := filepath.Join(t.TempDir(), "fox.png")
	require.NoError(t, os.WriteFile(img, []byte{0x89, 'P', 'N', 'G'}, 0o644))

	var gotFilename string
	client := w.Client(t)
	eng := NewEngine(EngineConfig{
		Cache:    collection.New(client, dbID, collection.Options{Logger: discardLogger()}),
		Uploader: wsapi.NewUploader(client),
		Captioner: &caption.MockCaptioner{
			CaptionFunc: func(ctx context.Context, req caption.CaptionRequest) (*caption.CaptionResponse, error) {
				gotFilename = req.Filename
				return &caption.CaptionResponse{Text: "a red fox", Model: "mock-model"}, nil
			},
		},
		Logger: discardLogger(),
	})

	res := eng.Upload(context.Background(), &Row{
		Columns: []string{"Name", "Notes"},
		Values:  map[string]any{"Name": "Fox", "Notes": ""},
		Caption: &CaptionJob{Column: "Notes", Image: property.FileRef{Name: "fox.png", Path: img}},
	})
	require.NoError(t, res.Err)
	assert.Equal(t, "fox.png", gotFilename)
	assert.Equal(t, "a red fox", richText(t, w.Page(t, dbID, "Fox"), "Notes"))
}

func TestEngineCaptionFailureKeepsRow(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Inventory", map[string]string{
		"Name":  "title",
		"Notes": "rich_text",
	})

	img := filepath.Join(t.TempDir(), "fox.png")
	require.NoError(t, os.WriteFile(img, []byte("img"), 0o644))

	client := w.Client(t)
	eng := NewEngine(EngineConfig{
		Cache: collection.New(client, dbID, collection.Options{Logger: discardLogger()}),
		Captioner: &caption.MockCaptioner{
			CaptionFunc: func(ctx context.Context, req caption.CaptionRequest) (*caption.CaptionResponse, error) {
				return nil, errors.New("model asleep")
			},
		},
		Logger: discardLogger(),
	})

	res := eng.Upload(context.Background(), &Row{
		Columns: []string{"Name", "Notes"},
		Values:  map[string]any{"Name": "Fox", "Notes": "hand written"},
		Caption: &CaptionJob{Column: "Notes", Image: property.FileRef{Name: "fox.png", Path: img}},
	})
	require.NoError(t, res.Err, "captioning is best effort")
	assert.Equal(t, "hand written", richText(t, w.Page(t, dbID, "Fox"), "Notes"))
}

func TestEngineCreatesMissingSelectOptions(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Inventory", map[string]string{
		"Name":  "title",
		"Stage": "select",
	})
	w.SeedOptions(t, dbID, "Stage", "Draft")
	eng := engineFor(t, w, dbID, false)

	res := eng.Upload(context.Background(), &Row{
		Columns: []string{"Name", "Stage"},
		Values:  map[string]any{"Name": "Widget", "Stage": "Launching"},
	})
	require.NoError(t, res.Err)
	assert.Contains(t, w.OptionNames(t, dbID, "Stage"), "Launching")
	assert.Equal(t, 1, w.Calls("databases.update"))
}
