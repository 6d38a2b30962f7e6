// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kraklabs/tabsync/pkg/collection"
	"github.com/kraklabs/tabsync/pkg/property"
	"github.com/kraklabs/tabsync/pkg/rowsource"
)

// Preparator validates a source against the collection schema and
// trims it until every remaining column can upload. Steps run in a
// fixed order and the first hard failure aborts; lenient failures drop
// the offending column or value and log what was dropped.
type Preparator struct {
	cache *collection.Cache
	src   *rowsource.Source
	rules Rules
	log   *slog.Logger
}

// NewPreparator builds a preparator over one source and collection.
func NewPreparator(cache *collection.Cache, src *rowsource.Source, rules Rules) *Preparator {
	return &Preparator{
		cache: cache,
		src:   src,
		rules: rules,
		log:   rules.logger(),
	}
}

// Prepare runs the validation pipeline, mutating the source in place.
func (p *Preparator) Prepare(ctx context.Context) error {
	steps := []func(context.Context) error{
		p.checkImageColumns,
		p.checkImageCaptionColumn,
		p.checkIconColumn,
		p.checkCaptionColumns,
		p.checkMandatoryColumns,
		p.handleMerge,
		p.handleMissingColumns,
		p.handleUnsettableColumns,
		p.handleInaccessibleRelations,
		p.handleWrongStatusValues,
	}
	if p.rules.FailOnRelationDuplicates {
		steps = append(steps, p.checkRelationDuplicates)
	}
	if p.rules.FailOnDuplicates {
		steps = append(steps, p.checkSourceDuplicates, p.checkRemoteDuplicates)
	}
	steps = append(steps, p.checkColumnsLeft)

	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Preparator) checkImageColumns(context.Context) error {
	for _, col := range p.rules.ImageColumns {
		if !p.src.HasColumn(col) {
			return fmt.Errorf("image column %q not found in %s", col, p.src.Path())
		}
	}
	return nil
}

func (p *Preparator) checkImageCaptionColumn(context.Context) error {
	col := p.rules.ImageCaptionColumn
	if col != "" && !p.src.HasColumn(col) {
		return fmt.Errorf("image caption column %q not found in %s", col, p.src.Path())
	}
	return nil
}

func (p *Preparator) checkIconColumn(context.Context) error {
	col := p.rules.IconColumn
	if col != "" && !p.src.HasColumn(col) {
		return fmt.Errorf("icon column %q not found in %s", col, p.src.Path())
	}
	return nil
}

func (p *Preparator) checkCaptionColumns(context.Context) error {
	img, target := p.rules.CaptionImageColumn, p.rules.CaptionTargetColumn
	if img == "" && target == "" {
		return nil
	}
	if img == "" || target == "" {
		return fmt.Errorf("captioning needs both an image column and a target column")
	}
	if !p.src.HasColumn(img) {
		return fmt.Errorf("caption image column %q not found in %s", img, p.src.Path())
	}
	if !p.src.HasColumn(target) {
		return fmt.Errorf("caption target column %q not found in %s", target, p.src.Path())
	}
	return nil
}

func (p *Preparator) checkMandatoryColumns(context.Context) error {
	var missing []string
	for _, col := range p.rules.MandatoryColumns {
		if !p.src.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("mandatory column(s) %s not found in %s", quoteJoin(missing), p.src.Path())
	}
	return nil
}

// handleMerge validates the key column and applies the merge-only and
// skip-new trims.
func (p *Preparator) handleMerge(ctx context.Context) error {
	if !p.rules.Merge {
		return nil
	}

	schema, err := p.cache.Schema(ctx)
	if err != nil {
		return err
	}
	keyCol := p.src.KeyColumn()
	field, ok := schema[keyCol]
	if !ok {
		return fmt.Errorf("key column %q does not exist in the collection", keyCol)
	}
	if field.Type != property.TypeTitle {
		return fmt.Errorf("collection column %q is %s, not the key column", keyCol, field.Type)
	}

	// A collection with two rows on one key gives merge no row to pick.
	dup, err := p.cache.HasDuplicateKeys(ctx)
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("the collection has rows sharing a key, merge cannot pick which to update")
	}

	if len(p.rules.MergeOnlyColumns) > 0 {
		var missing []string
		only := make(map[string]bool, len(p.rules.MergeOnlyColumns))
		for _, col := range p.rules.MergeOnlyColumns {
			only[col] = true
			if !p.src.HasColumn(col) {
				missing = append(missing, col)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("merge-only column(s) %s not found in %s", quoteJoin(missing), p.src.Path())
		}

		var ignored []string
		for _, col := range p.src.ContentColumns() {
			if !only[col] {
				ignored = append(ignored, col)
			}
		}
		if len(ignored) > 0 {
			p.log.Debug("prepare.merge.columns.ignored", "columns", ignored)
			p.src.DropColumns(ignored...)
		}
	}

	if p.rules.MergeSkipNew {
		var skip []string
		for _, key := range p.src.ColumnValues(keyCol) {
			if _, ok, err := p.cache.RowByKey(ctx, key); err != nil {
				return err
			} else if !ok {
				skip = append(skip, key)
			}
		}
		if len(skip) > 0 {
			p.log.Info("prepare.merge.new_rows.skipped", "rows", len(skip))
			p.src.DropRows(skip...)
		}
	}
	return nil
}

// handleMissingColumns deals with source columns the collection does
// not have: added, fatal or dropped depending on the rules. Columns the
// converter consumes into the side channel are not counted missing.
func (p *Preparator) handleMissingColumns(ctx context.Context) error {
	schema, err := p.cache.Schema(ctx)
	if err != nil {
		return err
	}

	consumed := p.rules.consumedColumns()
	var missing []string
	for _, col := range p.src.Columns() {
		if _, ok := schema[col]; !ok && !consumed[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	switch {
	case p.rules.AddMissingColumns:
		p.log.Info("prepare.columns.adding", "columns", missing)
		for _, col := range missing {
			t, _ := p.src.ColumnType(col)
			if err := p.cache.AddColumn(ctx, col, t); err != nil {
				return err
			}
		}
	case p.rules.FailOnMissingColumns:
		return fmt.Errorf("source columns missing from the collection: %s", quoteJoin(missing))
	default:
		p.log.Warn("prepare.columns.dropped", "columns", missing, "reason", "missing from collection")
		p.src.DropColumns(missing...)
	}
	return nil
}

// handleUnsettableColumns drops columns whose collection type cannot be
// written through the API.
func (p *Preparator) handleUnsettableColumns(ctx context.Context) error {
	schema, err := p.cache.Schema(ctx)
	if err != nil {
		return err
	}

	var unsettable []string
	for _, col := range p.src.Columns() {
		field, ok := schema[col]
		if ok && !field.Type.Settable() {
			unsettable = append(unsettable, col)
			p.log.Warn("prepare.column.unsettable", "column", col, "type", field.Type)
		}
	}
	if len(unsettable) == 0 {
		return nil
	}
	if p.rules.FailOnUnsettableColumns {
		return fmt.Errorf("column(s) %s have types that cannot be written", quoteJoin(unsettable))
	}
	p.src.DropColumns(unsettable...)
	return nil
}

// handleInaccessibleRelations probes each relation column's target
// collection and drops columns whose target the credential cannot read.
func (p *Preparator) handleInaccessibleRelations(ctx context.Context) error {
	schema, err := p.cache.Schema(ctx)
	if err != nil {
		return err
	}

	var inaccessible []string
	for _, col := range p.src.Columns() {
		field, ok := schema[col]
		if !ok || field.Type != property.TypeRelation {
			continue
		}
		rel, err := p.cache.Relation(ctx, field)
		if err != nil {
			inaccessible = append(inaccessible, col)
			continue
		}
		if _, err := rel.Schema(ctx); err != nil {
			p.log.Warn("prepare.relation.inaccessible", "column", col, "error", err)
			inaccessible = append(inaccessible, col)
		}
	}
	if len(inaccessible) == 0 {
		return nil
	}
	if p.rules.FailOnInaccessibleRelations {
		return fmt.Errorf("relation column(s) %s point at collections this token cannot read", quoteJoin(inaccessible))
	}
	p.src.DropColumns(inaccessible...)
	return nil
}

// handleWrongStatusValues blanks status cells naming options the
// collection does not have: the API rejects unknown status values and,
// unlike select options, new ones cannot be pushed with the row.
func (p *Preparator) handleWrongStatusValues(ctx context.Context) error {
	schema, err := p.cache.Schema(ctx)
	if err != nil {
		return err
	}

	for _, col := range p.src.Columns() {
		field, ok := schema[col]
		if !ok || field.Type != property.TypeStatus {
			continue
		}

		wrong := make(map[string]bool)
		for _, v := range p.src.ColumnValues(col) {
			if v != "" && !field.HasOption(v) {
				wrong[v] = true
			}
		}
		if len(wrong) == 0 {
			continue
		}

		values := make([]string, 0, len(wrong))
		for v := range wrong {
			values = append(values, v)
		}
		sort.Strings(values)

		if p.rules.FailOnWrongStatusValues {
			return fmt.Errorf("column %q has values missing from the collection's status options: %s",
				col, quoteJoin(values))
		}
		p.log.Warn("prepare.status.values.blanked", "column", col, "values", values)
		p.src.RewriteColumn(col, func(v string) string {
			if wrong[v] {
				return ""
			}
			return v
		})
	}
	return nil
}

// checkRelationDuplicates refuses relation columns whose target
// collection has duplicate keys, since values could not be mapped to a
// single row.
func (p *Preparator) checkRelationDuplicates(ctx context.Context) error {
	schema, err := p.cache.Schema(ctx)
	if err != nil {
		return err
	}

	for _, col := range p.src.Columns() {
		field, ok := schema[col]
		if !ok || field.Type != property.TypeRelation {
			continue
		}
		rel, err := p.cache.Relation(ctx, field)
		if err != nil {
			return err
		}
		dup, err := rel.HasDuplicateKeys(ctx)
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("collection behind relation column %q has duplicate keys; values cannot be mapped unambiguously", col)
		}
	}
	return nil
}

func (p *Preparator) checkSourceDuplicates(context.Context) error {
	seen := make(map[string]bool, p.src.Len())
	for _, key := range p.src.ColumnValues(p.src.KeyColumn()) {
		if seen[key] {
			return fmt.Errorf("duplicate key %q in %s", key, p.src.Path())
		}
		seen[key] = true
	}
	return nil
}

func (p *Preparator) checkRemoteDuplicates(ctx context.Context) error {
	dup, err := p.cache.HasDuplicateKeys(ctx)
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("the collection has rows sharing a key")
	}
	return nil
}

func (p *Preparator) checkColumnsLeft(context.Context) error {
	if len(p.src.Columns()) == 0 {
		return fmt.Errorf("no columns left after validation, nothing to upload")
	}
	return nil
}

func quoteJoin(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(quoted, ", ")
}
