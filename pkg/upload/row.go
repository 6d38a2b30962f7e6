// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package upload

import (
	"fmt"

	"github.com/kraklabs/tabsync/pkg/property"
)

// ImageRef is one image destined for the body of a row page.
type ImageRef struct {
	File property.FileRef

	// Caption is attached to the image block. Empty means no caption.
	Caption string
}

// Extra carries the side-channel parts of a row: icon, cover and body
// images are applied after the row write because the API requires the
// row to exist before blocks can be attached, and none of them roll
// back the row when they fail.
type Extra struct {
	Icon   *property.Icon
	Cover  *property.FileRef
	Images []ImageRef
}

// CaptionJob asks the engine to describe an image and write the text
// into a column before the row goes up.
type CaptionJob struct {
	// Column receives the generated text.
	Column string

	// Image is the local file to describe.
	Image property.FileRef
}

// Row is one unit of upload work: the parsed values of one source
// record plus its side channel. The converter builds each row exactly
// once and the engine consumes it exactly once.
type Row struct {
	// Columns preserves source column order; Values holds the parsed
	// local value per column. Values are local forms (string,
	// property.DateValue, []property.FileRef, ...), not wire objects.
	Columns []string
	Values  map[string]any

	// KeyColumn designates the column whose value identifies the row
	// in merge mode. Empty means the first column.
	KeyColumn string

	Extra   Extra
	Caption *CaptionJob
}

// Key returns the value that identifies this row in the collection:
// the designated key column's value, or the first column's when none
// is designated.
func (r *Row) Key() string {
	col := r.KeyColumn
	if col == "" {
		if len(r.Columns) == 0 {
			return ""
		}
		col = r.Columns[0]
	}
	v, ok := r.Values[col]
	if !ok {
		return ""
	}
	return valueString(v)
}

func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}
