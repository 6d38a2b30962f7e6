// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package upload

import "log/slog"

// ImageMode selects where row images end up.
type ImageMode string

const (
	// ImageModeBlock embeds images as blocks in the page body.
	ImageModeBlock ImageMode = "block"

	// ImageModeCover sets the first image as the page cover.
	ImageModeCover ImageMode = "cover"
)

// RelationPolicy says what to do with relation values that name no row
// in the related collection.
type RelationPolicy string

const (
	// RelationIgnore drops the unresolved value from the cell.
	RelationIgnore RelationPolicy = "ignore"

	// RelationAdd creates a row in the related collection on the fly.
	RelationAdd RelationPolicy = "add"

	// RelationFail fails the run.
	RelationFail RelationPolicy = "fail"
)

// Rules drive the preparation and conversion of one source file. The
// zero value is a lenient, create-only upload.
type Rules struct {
	// Merge switches create-only upload to create-or-update keyed on
	// the collection's title column.
	Merge bool

	// MergeOnlyColumns restricts a merge to these content columns;
	// others are dropped from the source. Empty means all columns.
	MergeOnlyColumns []string

	// MergeSkipNew drops source rows whose key is not already in the
	// collection, so a merge only updates.
	MergeSkipNew bool

	// ImageColumns name cells holding an image URL or local path per
	// row. ImageMode picks between body blocks and the page cover.
	ImageColumns    []string
	ImageColumnKeep bool
	ImageMode       ImageMode

	// ImageCaptionColumn names the cell whose text captions the first
	// image block of the row.
	ImageCaptionColumn string
	ImageCaptionKeep   bool

	// IconColumn names the cell holding the page icon: an emoji, an
	// image URL or a local path. DefaultIcon is used for rows whose
	// icon cell is empty, and for every row when no column is named.
	IconColumn     string
	IconColumnKeep bool
	DefaultIcon    string

	// CaptionImageColumn and CaptionTargetColumn pair a cell holding a
	// local image with the column the generated description is written
	// to. Both must be set for captioning to run.
	CaptionImageColumn  string
	CaptionTargetColumn string

	// MandatoryColumns must exist in the source and be non-empty in
	// every row.
	MandatoryColumns []string

	// AddMissingColumns pushes source columns absent from the
	// collection schema into it instead of dropping them.
	AddMissingColumns    bool
	FailOnMissingColumns bool

	// MissingRelations picks the policy for unresolved relation
	// values. Empty means RelationIgnore.
	MissingRelations RelationPolicy

	FailOnConversionError       bool
	FailOnDuplicates            bool
	FailOnRelationDuplicates    bool
	FailOnUnsettableColumns     bool
	FailOnInaccessibleRelations bool
	FailOnWrongStatusValues     bool

	// SearchRoot is the directory relative cell paths resolve against,
	// normally the source file's directory.
	SearchRoot string

	Logger *slog.Logger
}

func (r Rules) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// consumedColumns returns the columns the converter folds into the row
// side channel instead of uploading as properties.
func (r Rules) consumedColumns() map[string]bool {
	consumed := make(map[string]bool)
	if !r.ImageColumnKeep {
		for _, col := range r.ImageColumns {
			consumed[col] = true
		}
	}
	if r.ImageCaptionColumn != "" && !r.ImageCaptionKeep {
		consumed[r.ImageCaptionColumn] = true
	}
	if r.IconColumn != "" && !r.IconColumnKeep {
		consumed[r.IconColumn] = true
	}
	if r.CaptionImageColumn != "" {
		consumed[r.CaptionImageColumn] = true
	}
	return consumed
}

// relationPolicy normalizes the zero value.
func (r Rules) relationPolicy() RelationPolicy {
	if r.MissingRelations == "" {
		return RelationIgnore
	}
	return r.MissingRelations
}
