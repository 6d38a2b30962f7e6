// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package collection maintains a cache-coherent local view of one
// remote collection: its schema, its rows indexed by key, the
// workspace users and any related collections.
//
// A Cache is lazy. Nothing is fetched until first use, and a fetch
// that fails leaves the cache unfetched rather than half-filled: row
// pagination is buffered and installed only once the last page
// arrived. Successful writes patch the index in place so later lookups
// in the same run see them without refetching; InvalidateRows drops
// the index when a conflict proves it stale.
//
// Caches are safe for concurrent use, but the intended shape is one
// Cache per upload worker, cloned from a shared template after the
// first fetch.
package collection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kraklabs/tabsync/pkg/property"
	"github.com/kraklabs/tabsync/pkg/wsapi"
)

// Row is the handle of one remote row: enough to update it and to
// report where it lives.
type Row struct {
	ID  string
	Key string
	URL string
}

// rowIndex is the fetched row set keyed by title text. duplicates is
// set when the fetch saw the same key twice; merge mode refuses to run
// against such a collection.
type rowIndex struct {
	byKey      map[string]Row
	duplicates bool
}

func newRowIndex() *rowIndex {
	return &rowIndex{byKey: make(map[string]Row)}
}

// add keeps the first row seen for a key and flags later ones as
// duplicates, matching query order.
func (idx *rowIndex) add(row Row) {
	if _, exists := idx.byKey[row.Key]; exists {
		idx.duplicates = true
		return
	}
	idx.byKey[row.Key] = row
}

func (idx *rowIndex) put(row Row) {
	idx.byKey[row.Key] = row
}

func (idx *rowIndex) clone() *rowIndex {
	dup := &rowIndex{
		byKey:      make(map[string]Row, len(idx.byKey)),
		duplicates: idx.duplicates,
	}
	for k, v := range idx.byKey {
		dup.byKey[k] = v
	}
	return dup
}

// Options tunes cache behavior.
type Options struct {
	// RandomizeColors picks a random palette color for options created
	// on the fly instead of the workspace default.
	RandomizeColors bool

	Logger *slog.Logger
}

// Cache is the local view of one collection.
type Cache struct {
	client          *wsapi.Client
	id              string
	randomizeColors bool
	log             *slog.Logger

	mu     sync.Mutex
	db     *wsapi.Database // nil until fetched
	schema property.Schema // nil until fetched
	rows   *rowIndex       // nil until fetched
	users  []wsapi.User    // nil until fetched
	rels   map[string]*Cache
}

// New builds an unfetched cache over databaseID.
func New(client *wsapi.Client, databaseID string, opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		client:          client,
		id:              databaseID,
		randomizeColors: opts.RandomizeColors,
		log:             logger,
		rels:            make(map[string]*Cache),
	}
}

// ID returns the collection id the cache is bound to.
func (c *Cache) ID() string {
	return c.id
}

// Client exposes the underlying API client for side-channel calls
// (file uploads, block appends) that bypass the cache.
func (c *Cache) Client() *wsapi.Client {
	return c.client
}

// Clone gives a worker its own cache seeded with the current state, so
// clones skip the initial fetch the template already paid for.
func (c *Cache) Clone() *Cache {
	c.mu.Lock()
	defer c.mu.Unlock()

	dup := New(c.client.Clone(), c.id, Options{
		RandomizeColors: c.randomizeColors,
		Logger:          c.log,
	})
	dup.db = c.db
	dup.schema = c.schema
	dup.users = c.users
	if c.rows != nil {
		dup.rows = c.rows.clone()
	}
	return dup
}

// Schema returns the collection schema, fetching it on first use.
// The returned map is a shared snapshot; callers must not mutate it.
func (c *Cache) Schema(ctx context.Context) (property.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schemaLocked(ctx)
}

func (c *Cache) schemaLocked(ctx context.Context) (property.Schema, error) {
	if c.schema != nil {
		return c.schema, nil
	}
	db, err := c.client.GetDatabase(ctx, c.id)
	if err != nil {
		return nil, fmt.Errorf("fetch schema: %w", err)
	}
	c.db = db
	c.schema = schemaFromWire(db)
	return c.schema, nil
}

// Info returns the collection descriptor (title, URL, raw schema).
func (c *Cache) Info(ctx context.Context) (*wsapi.Database, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.schemaLocked(ctx); err != nil {
		return nil, err
	}
	return c.db, nil
}

// InvalidateSchema drops the cached schema so the next read refetches.
func (c *Cache) InvalidateSchema() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db = nil
	c.schema = nil
}

// RowByKey looks a row up by its key, fetching the full row set on
// first use.
func (c *Cache) RowByKey(ctx context.Context, key string) (Row, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadRowsLocked(ctx); err != nil {
		return Row{}, false, err
	}
	row, ok := c.rows.byKey[key]
	return row, ok, nil
}

// RowCount returns the number of fetched rows.
func (c *Cache) RowCount(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadRowsLocked(ctx); err != nil {
		return 0, err
	}
	return len(c.rows.byKey), nil
}

// HasDuplicateKeys reports whether the fetch saw the same key on more
// than one row.
func (c *Cache) HasDuplicateKeys(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadRowsLocked(ctx); err != nil {
		return false, err
	}
	return c.rows.duplicates, nil
}

// InvalidateRows drops the row index. The next lookup refetches the
// collection, picking up rows other writers created in the meantime.
func (c *Cache) InvalidateRows() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = nil
	recordCacheInvalidation()
}

// Invalidate drops everything the cache holds: schema, rows, users and
// related collections. The next read rebuilds the whole view from the
// workspace. This is the recovery step after a write conflict, when
// the cache can no longer say which parts are stale.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db = nil
	c.schema = nil
	c.rows = nil
	c.users = nil
	c.rels = make(map[string]*Cache)
	recordCacheInvalidation()
}

// loadRowsLocked pages through the collection into a fresh index and
// installs it only after the last page succeeded. A failed fetch
// leaves the cache unfetched, never half-filled.
func (c *Cache) loadRowsLocked(ctx context.Context) error {
	if c.rows != nil {
		return nil
	}

	idx := newRowIndex()
	cursor := ""
	for {
		res, err := c.client.QueryDatabase(ctx, c.id, wsapi.QueryRequest{StartCursor: cursor})
		if err != nil {
			return fmt.Errorf("fetch rows: %w", err)
		}
		recordCachePageFetched()
		for i := range res.Results {
			page := &res.Results[i]
			idx.add(Row{ID: page.ID, Key: page.TitleText(), URL: page.URL})
		}
		if !res.HasMore || res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}

	c.rows = idx
	c.log.Debug("collection.rows.loaded", "database_id", c.id, "rows", len(idx.byKey), "duplicate_keys", idx.duplicates)
	return nil
}

// AddRow creates a row and patches it into the index on success.
func (c *Cache) AddRow(ctx context.Context, key string, req wsapi.CreatePageRequest) (Row, error) {
	req.Parent = wsapi.Parent{Type: "database_id", DatabaseID: c.id}
	page, err := c.client.CreatePage(ctx, req)
	if err != nil {
		return Row{}, err
	}
	row := Row{ID: page.ID, Key: key, URL: page.URL}
	c.patchRow(row)
	return row, nil
}

// UpdateRow patches an existing row. Conflicts surface to the caller
// unretried; see the upload engine for the recovery protocol.
func (c *Cache) UpdateRow(ctx context.Context, row Row, req wsapi.UpdatePageRequest) (Row, error) {
	page, err := c.client.UpdatePage(ctx, row.ID, req)
	if err != nil {
		return Row{}, err
	}
	if page.URL != "" {
		row.URL = page.URL
	}
	c.patchRow(row)
	return row, nil
}

// patchRow records a successful write in the index, if one is loaded.
func (c *Cache) patchRow(row Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rows != nil {
		c.rows.put(row)
	}
}

// schemaFromWire converts a database descriptor into the field model.
func schemaFromWire(db *wsapi.Database) property.Schema {
	schema := make(property.Schema, len(db.Properties))
	for name, desc := range db.Properties {
		field := property.Field{
			ID:   desc.ID,
			Name: name,
			Type: property.Type(desc.Type),
		}
		for _, opt := range desc.Options() {
			field.Options = append(field.Options, property.Option{
				ID:    opt.ID,
				Name:  opt.Name,
				Color: opt.Color,
			})
		}
		if desc.Relation != nil {
			field.RelationID = desc.Relation.DatabaseID
		}
		schema[name] = field
	}
	return schema
}
