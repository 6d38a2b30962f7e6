// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package collection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kraklabs/tabsync/pkg/property"
	"github.com/kraklabs/tabsync/pkg/wsapi"
)

// archiveDelay paces row archival to stay under the API rate limit.
const archiveDelay = 350 * time.Millisecond

// ColumnSpec names one column when creating a collection. The first
// column of a new collection is always the title.
type ColumnSpec struct {
	Name string
	Type property.Type
}

// CreateDatabase creates a collection under a parent page and returns
// a cache bound to it.
func CreateDatabase(ctx context.Context, client *wsapi.Client, parentPageID, title string, columns []ColumnSpec, opts Options) (*Cache, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("create collection: no columns")
	}

	props := make(map[string]any, len(columns))
	for i, col := range columns {
		if i == 0 {
			props[col.Name] = map[string]any{"title": map[string]any{}}
			continue
		}
		props[col.Name] = schemaPayload(col.Type)
	}

	db, err := client.CreateDatabase(ctx, wsapi.CreateDatabaseRequest{
		Parent:     wsapi.Parent{Type: "page_id", PageID: parentPageID},
		Title:      wsapi.Text(title),
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("create collection %q: %w", title, err)
	}

	cache := New(client, db.ID, opts)
	cache.mu.Lock()
	cache.db = db
	cache.schema = schemaFromWire(db)
	cache.rows = newRowIndex()
	cache.mu.Unlock()
	return cache, nil
}

// AddColumn adds a column to the collection schema.
func (c *Cache) AddColumn(ctx context.Context, name string, t property.Type) error {
	req := wsapi.UpdateDatabaseRequest{
		Properties: map[string]any{name: schemaPayload(t)},
	}
	if _, err := c.client.UpdateDatabase(ctx, c.id, req); err != nil {
		return fmt.Errorf("add column %q: %w", name, err)
	}

	c.mu.Lock()
	c.db = nil
	c.schema = nil
	c.mu.Unlock()

	c.log.Info("collection.column.added", "database_id", c.id, "column", name, "type", t)
	return nil
}

// schemaPayload builds the schema wire object for a new column.
func schemaPayload(t property.Type) map[string]any {
	switch t {
	case property.TypeSelect, property.TypeMultiSelect:
		return map[string]any{string(t): map[string]any{"options": []any{}}}
	case property.TypeStatus:
		return map[string]any{"status": statusScaffold()}
	case "":
		return map[string]any{"rich_text": map[string]any{}}
	default:
		return map[string]any{string(t): map[string]any{}}
	}
}

// statusScaffold is the default status layout: three options wired
// into the standard to-do/in-progress/complete groups. The API demands
// client-generated ids so the groups can reference their options.
func statusScaffold() map[string]any {
	notStarted := uuid.NewString()
	inProgress := uuid.NewString()
	done := uuid.NewString()

	return map[string]any{
		"options": []any{
			map[string]any{"id": notStarted, "name": "Not started"},
			map[string]any{"id": inProgress, "name": "In progress", "color": "blue"},
			map[string]any{"id": done, "name": "Done", "color": "green"},
		},
		"groups": []any{
			map[string]any{"id": uuid.NewString(), "name": "To-do", "color": "gray", "option_ids": []any{notStarted}},
			map[string]any{"id": uuid.NewString(), "name": "In progress", "color": "blue", "option_ids": []any{inProgress}},
			map[string]any{"id": uuid.NewString(), "name": "Complete", "color": "green", "option_ids": []any{done}},
		},
	}
}

// DeleteAllRows archives every row in the collection, pacing requests
// to respect the rate limit. Rows that fail to archive are skipped and
// counted out; progress, when non-nil, is called after each attempt.
func (c *Cache) DeleteAllRows(ctx context.Context, progress func(done, total int)) (int, error) {
	var pages []wsapi.Page
	cursor := ""
	for {
		res, err := c.client.QueryDatabase(ctx, c.id, wsapi.QueryRequest{StartCursor: cursor})
		if err != nil {
			return 0, fmt.Errorf("list rows: %w", err)
		}
		pages = append(pages, res.Results...)
		if !res.HasMore || res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}

	if len(pages) == 0 {
		c.log.Info("collection.wipe.empty", "database_id", c.id)
		return 0, nil
	}

	archived := true
	deleted := 0
	for i, page := range pages {
		if i > 0 {
			timer := time.NewTimer(archiveDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return deleted, ctx.Err()
			case <-timer.C:
			}
		}

		_, err := c.client.UpdatePage(ctx, page.ID, wsapi.UpdatePageRequest{Archived: &archived})
		if err != nil {
			c.log.Warn("collection.wipe.row.failed", "page_id", page.ID, "error", err)
		} else {
			deleted++
		}
		if progress != nil {
			progress(i+1, len(pages))
		}
	}

	c.InvalidateRows()
	return deleted, nil
}
