// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kraklabs/tabsync/pkg/collection"
	"github.com/kraklabs/tabsync/pkg/property"
	"github.com/kraklabs/tabsync/pkg/rowsource"
	"github.com/kraklabs/tabsync/pkg/wsapi"
)

// cellError is a problem with a cell's content, as opposed to one with
// the environment: lenient mode drops the value and keeps the row,
// while API, policy and filesystem failures abort the run either way.
type cellError struct{ err error }

func (e cellError) Error() string { return e.err.Error() }
func (e cellError) Unwrap() error { return e.err }

func badCell(err error) error { return cellError{err} }

func badCellf(format string, args ...any) error {
	return cellError{fmt.Errorf(format, args...)}
}

// Converter turns source records into upload rows: cells are parsed
// into their local forms by collection column type, relation and people
// values are resolved to row and user ids, and the icon, image and
// caption columns are folded into the row's side channel.
//
// Conversion is lenient by default: a cell that fails to parse is
// dropped with a warning and the row uploads without it. With
// FailOnConversionError the first bad cell aborts the run. Local file
// references that do not exist abort either way.
type Converter struct {
	cache *collection.Cache
	src   *rowsource.Source
	rules Rules
	log   *slog.Logger
}

// NewConverter builds a converter over one prepared source.
func NewConverter(cache *collection.Cache, src *rowsource.Source, rules Rules) *Converter {
	return &Converter{
		cache: cache,
		src:   src,
		rules: rules,
		log:   rules.logger(),
	}
}

// Convert builds one upload row per source record, in file order.
// Errors name the record they came from, 1-based.
func (c *Converter) Convert(ctx context.Context) ([]*Row, error) {
	schema, err := c.cache.Schema(ctx)
	if err != nil {
		return nil, err
	}

	defaultIcon, err := c.parseDefaultIcon()
	if err != nil {
		return nil, err
	}

	consumed := c.rules.consumedColumns()
	columns := make([]string, 0, len(c.src.Columns()))
	for _, col := range c.src.Columns() {
		if !consumed[col] {
			columns = append(columns, col)
		}
	}

	rows := make([]*Row, 0, c.src.Len())
	for i, rec := range c.src.Rows() {
		row, err := c.convertRecord(ctx, schema, columns, rec, defaultIcon)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *Converter) convertRecord(ctx context.Context, schema property.Schema, columns []string, rec rowsource.Record, defaultIcon *property.Icon) (*Row, error) {
	extra, err := c.extractExtras(rec, defaultIcon)
	if err != nil {
		return nil, err
	}
	job, err := c.captionJob(rec)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, len(columns))
	for _, col := range columns {
		field, ok := schema[col]
		if !ok {
			continue
		}

		v, err := c.parseCell(ctx, field, rec[col])
		if err != nil {
			var bad cellError
			if !errors.As(err, &bad) || c.rules.FailOnConversionError {
				return nil, fmt.Errorf("column %q: %w", col, err)
			}
			c.log.Warn("convert.cell.dropped", "column", col, "error", err)
			v = nil
		}
		if slices.Contains(c.rules.MandatoryColumns, col) && emptyParsed(v) {
			return nil, fmt.Errorf("mandatory column %q is empty", col)
		}
		values[col] = v
	}

	return &Row{
		Columns:   columns,
		Values:    values,
		KeyColumn: c.src.KeyColumn(),
		Extra:     extra,
		Caption:   job,
	}, nil
}

// parseCell maps one cell to its local value. A nil result means the
// property is omitted from the row payload.
func (c *Converter) parseCell(ctx context.Context, field property.Field, cell string) (any, error) {
	switch field.Type {
	case property.TypeCheckbox:
		if cell == "" {
			return nil, nil
		}
		if cell != "true" && cell != "false" {
			return nil, badCellf("%q is not a checkbox value (true or false)", cell)
		}
		return property.ParseCheckbox(cell), nil

	case property.TypeDate:
		if cell == "" {
			return nil, nil
		}
		d, err := property.ParseDate(cell)
		if err != nil {
			return nil, badCell(err)
		}
		return d, nil

	case property.TypeNumber:
		if cell == "" {
			return nil, nil
		}
		n, err := property.ParseNumber(cell)
		if err != nil {
			return nil, badCell(err)
		}
		return n, nil

	case property.TypeMultiSelect:
		return property.SplitList(cell, ","), nil

	case property.TypeFiles:
		if cell == "" {
			return nil, nil
		}
		items := property.SplitList(cell, ",")
		refs := make([]property.FileRef, 0, len(items))
		for _, item := range items {
			ref, err := c.fileRef(item)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
		return refs, nil

	case property.TypeRelation:
		return c.relationIDs(ctx, field, cell)

	case property.TypePeople:
		if cell == "" {
			return nil, nil
		}
		return c.peopleIDs(ctx, cell)

	default:
		return cell, nil
	}
}

// relationIDs resolves a relation cell to row ids of the related
// collection, applying the missing-relation policy to values that name
// no row.
func (c *Converter) relationIDs(ctx context.Context, field property.Field, cell string) (any, error) {
	names := property.SplitList(cell, ",")
	ids := make([]string, 0, len(names))
	if len(names) == 0 {
		return ids, nil
	}

	rel, err := c.cache.Relation(ctx, field)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		row, ok, err := rel.RowByKey(ctx, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			switch c.rules.relationPolicy() {
			case RelationAdd:
				row, err = c.addRelationRow(ctx, rel, name)
				if err != nil {
					return nil, err
				}
			case RelationFail:
				return nil, fmt.Errorf("%q is not a row of the collection behind relation %q", name, field.Name)
			default:
				c.log.Debug("convert.relation.ignored", "column", field.Name, "value", name)
				continue
			}
		}
		ids = append(ids, row.ID)
	}
	return ids, nil
}

// addRelationRow creates a key-only row in a related collection.
func (c *Converter) addRelationRow(ctx context.Context, rel *collection.Cache, key string) (collection.Row, error) {
	schema, err := rel.Schema(ctx)
	if err != nil {
		return collection.Row{}, err
	}
	keyField, ok := schema.Key()
	if !ok {
		return collection.Row{}, fmt.Errorf("related collection has no key column")
	}
	props := map[string]any{
		keyField.Name: map[string]any{"title": []any{
			map[string]any{"text": map[string]any{"content": key}},
		}},
	}
	row, err := rel.AddRow(ctx, key, wsapi.CreatePageRequest{Properties: props})
	if err != nil {
		return collection.Row{}, fmt.Errorf("add row %q to related collection: %w", key, err)
	}
	c.log.Info("convert.relation.row.added", "collection_id", rel.ID(), "key", key)
	return row, nil
}

// peopleIDs resolves a people cell to workspace user ids by exact name
// or email.
func (c *Converter) peopleIDs(ctx context.Context, cell string) (any, error) {
	names := property.SplitList(cell, ",")
	ids := make([]string, 0, len(names))
	for _, name := range names {
		user, ok, err := c.cache.FindUser(ctx, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, badCellf("%q does not match any workspace member", name)
		}
		ids = append(ids, user.ID)
	}
	return ids, nil
}

// extractExtras pulls the icon and image cells out of the record.
func (c *Converter) extractExtras(rec rowsource.Record, defaultIcon *property.Icon) (Extra, error) {
	var extra Extra

	caption := ""
	if col := c.rules.ImageCaptionColumn; col != "" {
		caption = strings.TrimSpace(rec[col])
	}

	var images []ImageRef
	for _, col := range c.rules.ImageColumns {
		cell := strings.TrimSpace(rec[col])
		if cell == "" {
			if slices.Contains(c.rules.MandatoryColumns, col) {
				return Extra{}, fmt.Errorf("mandatory column %q is empty", col)
			}
			continue
		}
		ref, err := c.fileRef(cell)
		if err != nil {
			return Extra{}, err
		}
		images = append(images, ImageRef{File: ref})
	}
	if len(images) > 0 {
		if caption != "" {
			images[0].Caption = caption
		}
		if c.rules.ImageMode == ImageModeCover {
			cover := images[0].File
			extra.Cover = &cover
		} else {
			extra.Images = images
		}
	}

	if col := c.rules.IconColumn; col != "" || c.rules.DefaultIcon != "" {
		cell := ""
		if col != "" {
			cell = strings.TrimSpace(rec[col])
		}
		switch {
		case cell != "":
			icon, err := c.parseIcon(cell)
			if err != nil {
				return Extra{}, err
			}
			extra.Icon = icon
		case col != "" && slices.Contains(c.rules.MandatoryColumns, col):
			return Extra{}, fmt.Errorf("mandatory column %q is empty", col)
		default:
			extra.Icon = defaultIcon
		}
	}
	return extra, nil
}

// captionJob pairs the row's caption image with the target column.
// Captioning reads image bytes, so only local files qualify.
func (c *Converter) captionJob(rec rowsource.Record) (*CaptionJob, error) {
	if c.rules.CaptionImageColumn == "" || c.rules.CaptionTargetColumn == "" {
		return nil, nil
	}
	cell := strings.TrimSpace(rec[c.rules.CaptionImageColumn])
	if cell == "" {
		return nil, nil
	}
	ref, err := c.fileRef(cell)
	if err != nil {
		return nil, err
	}
	if ref.Path == "" {
		c.log.Warn("convert.caption.skipped", "image", cell, "reason", "captioning needs a local file")
		return nil, nil
	}
	return &CaptionJob{Column: c.rules.CaptionTargetColumn, Image: ref}, nil
}

func (c *Converter) parseIcon(cell string) (*property.Icon, error) {
	icon := property.ParseIcon(cell)
	if icon.Emoji != "" {
		return &icon, nil
	}
	ref, err := c.fileRef(cell)
	if err != nil {
		return nil, err
	}
	return &property.Icon{File: ref}, nil
}

func (c *Converter) parseDefaultIcon() (*property.Icon, error) {
	if c.rules.DefaultIcon == "" {
		return nil, nil
	}
	icon, err := c.parseIcon(c.rules.DefaultIcon)
	if err != nil {
		return nil, fmt.Errorf("default icon: %w", err)
	}
	return icon, nil
}

// fileRef interprets one file cell value: a reference to an already
// uploaded attachment passes through, an http(s) URL becomes an
// external reference, anything else is a local path resolved against
// the search root and required to exist.
func (c *Converter) fileRef(item string) (property.FileRef, error) {
	if id, name, ok := wsapi.ParseRef(item); ok {
		return property.FileRef{Name: name, UploadID: id}, nil
	}
	ref := property.RefForValue(item)
	if ref.Path == "" {
		return ref, nil
	}

	path := ref.Path
	if !filepath.IsAbs(path) && c.rules.SearchRoot != "" {
		path = filepath.Join(c.rules.SearchRoot, path)
	}
	if _, err := os.Stat(path); err != nil {
		return property.FileRef{}, fmt.Errorf("file %s does not exist", filepath.Base(path))
	}
	ref.Path = path
	return ref, nil
}

// emptyParsed reports whether a parsed value carries nothing, for
// mandatory-column enforcement.
func emptyParsed(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []property.FileRef:
		return len(t) == 0
	}
	return false
}
