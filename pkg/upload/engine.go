// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package upload turns tabular records into collection rows.
//
// The pipeline has three stages. A Preparator validates the source
// against the collection and the upload rules, mutating the source
// (dropping columns and rows, adding missing columns) until both sides
// agree. A Converter parses the surviving cells into typed values and
// splits off each row's extras: icon, cover, image blocks, caption
// work. Engines then write the rows to the workspace, one engine per
// worker, each over its own client and cache clone, fanned out by
// Process.
//
// Writes follow merge semantics when asked: a row whose key is already
// in the collection is updated in place, anything else is created. A
// write that loses a race against another writer surfaces as a
// conflict; the engine invalidates its cache, refetches, and reapplies
// the row once against what is actually there. Extras ride a separate
// channel after the row write and fail soft: a broken icon never loses
// a row.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kraklabs/tabsync/pkg/caption"
	"github.com/kraklabs/tabsync/pkg/collection"
	"github.com/kraklabs/tabsync/pkg/property"
	"github.com/kraklabs/tabsync/pkg/wsapi"
)

// EngineConfig wires one engine. Cache is mandatory; the rest degrade:
// without an Uploader local files are rejected, without a Captioner
// caption work is skipped.
type EngineConfig struct {
	Cache *collection.Cache

	// Uploader deduplicates file uploads by content hash. Share one
	// across all engines of a run.
	Uploader *wsapi.Uploader

	// Captioner writes generated image captions into the row before
	// upload.
	Captioner    caption.Captioner
	CaptionModel string

	// Merge updates rows whose key already exists instead of creating
	// duplicates.
	Merge bool

	// Strict makes the engine fail a row when an option value cannot
	// be added to the collection instead of dropping the value.
	Strict bool

	Logger *slog.Logger
}

// Engine writes rows into one collection. An engine is single-caller;
// concurrency comes from running one engine per worker over cache
// clones.
type Engine struct {
	cache        *collection.Cache
	uploader     *wsapi.Uploader
	captioner    caption.Captioner
	captionModel string
	merge        bool
	coerce       property.Coercer
	log          *slog.Logger
}

// Result is the outcome of one row upload.
type Result struct {
	Key     string
	Row     collection.Row
	Created bool
	Err     error
}

// NewEngine builds an engine from its configuration.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cache:        cfg.Cache,
		uploader:     cfg.Uploader,
		captioner:    cfg.Captioner,
		captionModel: cfg.CaptionModel,
		merge:        cfg.Merge,
		coerce: property.Coercer{
			Options: cfg.Cache,
			Strict:  cfg.Strict,
			Log:     logger,
		},
		log: logger,
	}
}

// Upload writes one row and reports what happened to it. Errors are
// carried in the result rather than returned, so a pool can keep
// draining rows after one fails.
func (e *Engine) Upload(ctx context.Context, row *Row) Result {
	start := time.Now()
	res := e.upload(ctx, row)

	elapsed := time.Since(start)
	switch {
	case res.Err != nil:
		recordRowUploaded("failed", elapsed)
	case res.Created:
		recordRowUploaded("created", elapsed)
	default:
		recordRowUploaded("updated", elapsed)
	}
	return res
}

func (e *Engine) upload(ctx context.Context, row *Row) Result {
	key := row.Key()

	if err := e.applyCaption(ctx, row); err != nil {
		e.log.Warn("upload.caption.failed", "key", key, "error", err)
	}
	if err := e.uploadFiles(ctx, row); err != nil {
		return Result{Key: key, Err: fmt.Errorf("row %q: %w", key, err)}
	}
	props, err := e.payload(ctx, row)
	if err != nil {
		return Result{Key: key, Err: fmt.Errorf("row %q: %w", key, err)}
	}

	var target collection.Row
	var created bool
	if e.merge {
		target, created, err = e.mergeRow(ctx, key, props)
	} else {
		target, created, err = e.createRow(ctx, key, props)
	}
	if err != nil {
		return Result{Key: key, Err: fmt.Errorf("row %q: %w", key, err)}
	}

	e.applyExtras(ctx, target, row)
	return Result{Key: key, Row: target, Created: created}
}

// mergeRow updates the existing row for key, or creates one when the
// collection has none. A cached entry that somehow lacks an id cannot
// be addressed, so it counts as absent.
func (e *Engine) mergeRow(ctx context.Context, key string, props map[string]any) (collection.Row, bool, error) {
	existing, ok, err := e.cache.RowByKey(ctx, key)
	if err != nil {
		return collection.Row{}, false, err
	}
	if ok && existing.ID != "" {
		return e.updateRow(ctx, existing, props)
	}
	return e.createRow(ctx, key, props)
}

// createRow creates the row, recovering from a create that lost a race:
// when the workspace reports a conflict, some other writer already
// landed a row for this key, so drop the cache, look the row up fresh
// and update it instead. If the refetch still has no such row the
// conflict was something else; the original error stands. The bool
// reports whether a new row actually came into existence.
func (e *Engine) createRow(ctx context.Context, key string, props map[string]any) (collection.Row, bool, error) {
	created, err := e.cache.AddRow(ctx, key, wsapi.CreatePageRequest{Properties: props})
	if err == nil {
		e.log.Debug("upload.row.created", "key", key, "row_id", created.ID)
		return created, true, nil
	}
	if !wsapi.IsConflict(err) {
		return collection.Row{}, false, err
	}

	e.log.Warn("upload.row.conflict", "key", key, "op", "create", "error", err)
	e.cache.Invalidate()
	existing, ok, lookupErr := e.cache.RowByKey(ctx, key)
	if lookupErr != nil || !ok {
		return collection.Row{}, false, err
	}
	updated, updateErr := e.cache.UpdateRow(ctx, existing, wsapi.UpdatePageRequest{Properties: props})
	if updateErr != nil {
		return collection.Row{}, false, updateErr
	}
	recordConflictRecovered()
	e.log.Info("upload.row.recovered", "key", key, "row_id", updated.ID)
	return updated, false, nil
}

// updateRow patches target, recovering from a conflicting concurrent
// write: drop the cache, refetch, and reapply once against the row as
// it now stands. A row that vanished under us is recreated, which the
// bool reports.
func (e *Engine) updateRow(ctx context.Context, target collection.Row, props map[string]any) (collection.Row, bool, error) {
	updated, err := e.cache.UpdateRow(ctx, target, wsapi.UpdatePageRequest{Properties: props})
	if err == nil {
		e.log.Debug("upload.row.updated", "key", target.Key, "row_id", updated.ID)
		return updated, false, nil
	}
	if !wsapi.IsConflict(err) {
		return collection.Row{}, false, err
	}

	e.log.Warn("upload.row.conflict", "key", target.Key, "op", "update", "error", err)
	e.cache.Invalidate()
	existing, ok, lookupErr := e.cache.RowByKey(ctx, target.Key)
	if lookupErr != nil {
		return collection.Row{}, false, err
	}

	var recovered collection.Row
	created := !ok
	if ok {
		recovered, err = e.cache.UpdateRow(ctx, existing, wsapi.UpdatePageRequest{Properties: props})
	} else {
		recovered, err = e.cache.AddRow(ctx, target.Key, wsapi.CreatePageRequest{Properties: props})
	}
	if err != nil {
		return collection.Row{}, false, err
	}
	recordConflictRecovered()
	e.log.Info("upload.row.recovered", "key", target.Key, "row_id", recovered.ID)
	return recovered, created, nil
}

// payload builds the properties object for a row. Columns the schema
// does not know or cannot set are skipped; a nil coerced value omits
// the property.
func (e *Engine) payload(ctx context.Context, row *Row) (map[string]any, error) {
	schema, err := e.cache.Schema(ctx)
	if err != nil {
		return nil, err
	}
	props := make(map[string]any, len(row.Columns))
	for _, col := range row.Columns {
		field, ok := schema[col]
		if !ok || !field.Type.Settable() {
			continue
		}
		wire, err := e.coerce.Value(ctx, field, row.Values[col])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", col, err)
		}
		if wire == nil {
			continue
		}
		props[field.Name] = wire
	}
	return props, nil
}

// applyCaption runs the row's caption job, writing the generated text
// into the target column before the row is coerced.
func (e *Engine) applyCaption(ctx context.Context, row *Row) error {
	if row.Caption == nil || e.captioner == nil {
		return nil
	}
	f, err := os.Open(row.Caption.Image.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	resp, err := e.captioner.Caption(ctx, caption.CaptionRequest{
		Image:    f,
		Filename: row.Caption.Image.Name,
		Model:    e.captionModel,
	})
	if err != nil {
		return err
	}
	row.Values[row.Caption.Column] = resp.Text
	e.log.Debug("upload.caption.applied",
		"key", row.Key(),
		"column", row.Caption.Column,
		"model", resp.Model,
		"duration", resp.Duration,
	)
	return nil
}

// uploadFiles sends every local file referenced by the row's values.
// Unlike extras, these are part of the row payload, so a failed upload
// fails the row.
func (e *Engine) uploadFiles(ctx context.Context, row *Row) error {
	for col, v := range row.Values {
		refs, ok := v.([]property.FileRef)
		if !ok {
			continue
		}
		for i := range refs {
			if err := e.uploadRef(ctx, &refs[i]); err != nil {
				return fmt.Errorf("column %q: %w", col, err)
			}
		}
	}
	return nil
}

// uploadRef fills in the upload id of a local file reference.
func (e *Engine) uploadRef(ctx context.Context, ref *property.FileRef) error {
	if ref.Path == "" || ref.Uploaded() {
		return nil
	}
	if e.uploader == nil {
		return fmt.Errorf("file %q needs an upload client", ref.Name)
	}
	up, err := e.uploader.Upload(ctx, ref.Path)
	if err != nil {
		return err
	}
	ref.UploadID = up.ID
	if ref.Name == "" {
		ref.Name = up.Name
	}
	return nil
}

// applyExtras writes the row's side channel: image blocks, cover and
// icon, in that order. Each one fails soft; the row itself already
// landed.
func (e *Engine) applyExtras(ctx context.Context, target collection.Row, row *Row) {
	// TODO: on merge, replace image blocks appended by earlier runs
	// instead of appending again; needs block list and delete ops on
	// the client.
	if len(row.Extra.Images) > 0 {
		if err := e.appendImages(ctx, target, row.Extra.Images); err != nil {
			recordExtraFailure("image")
			e.log.Warn("upload.extra.image.failed", "key", target.Key, "error", err)
		}
	}
	if row.Extra.Cover != nil {
		if err := e.setCover(ctx, target, *row.Extra.Cover); err != nil {
			recordExtraFailure("cover")
			e.log.Warn("upload.extra.cover.failed", "key", target.Key, "error", err)
		}
	}
	if row.Extra.Icon != nil {
		if err := e.setIcon(ctx, target, *row.Extra.Icon); err != nil {
			recordExtraFailure("icon")
			e.log.Warn("upload.extra.icon.failed", "key", target.Key, "error", err)
		}
	}
}

func (e *Engine) appendImages(ctx context.Context, target collection.Row, images []ImageRef) error {
	children := make([]any, 0, len(images))
	for _, img := range images {
		if err := e.uploadRef(ctx, &img.File); err != nil {
			return err
		}
		children = append(children, imageBlock(img))
	}
	return e.cache.Client().AppendBlockChildren(ctx, target.ID, children)
}

func (e *Engine) setCover(ctx context.Context, target collection.Row, cover property.FileRef) error {
	if err := e.uploadRef(ctx, &cover); err != nil {
		return err
	}
	wire := cover.Wire()
	delete(wire, "name")
	_, err := e.cache.Client().UpdatePage(ctx, target.ID, wsapi.UpdatePageRequest{Cover: wire})
	return err
}

func (e *Engine) setIcon(ctx context.Context, target collection.Row, icon property.Icon) error {
	if err := e.uploadRef(ctx, &icon.File); err != nil {
		return err
	}
	_, err := e.cache.Client().UpdatePage(ctx, target.ID, wsapi.UpdatePageRequest{Icon: icon.Wire()})
	return err
}

// imageBlock builds the wire form of one captioned image block.
func imageBlock(img ImageRef) map[string]any {
	content := img.File.Wire()
	delete(content, "name")
	if img.Caption != "" {
		content["caption"] = wsapi.Text(img.Caption)
	}
	return map[string]any{"type": "image", "image": content}
}
