// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package property models the fields of a remote collection and converts
// parsed cell values into their wire form.
//
// A collection schema is a set of named fields, each with a declared type
// from a closed enumeration. Option-bearing fields (select, multi_select,
// status) additionally carry a set of named options. The Coercer turns a
// locally parsed value into the JSON property object the workspace API
// expects, creating missing options on the fly through an OptionCreator.
package property

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
)

// Type is the declared type of a collection field, using the wire names
// of the workspace API.
type Type string

const (
	TypeTitle       Type = "title"
	TypeText        Type = "rich_text"
	TypeNumber      Type = "number"
	TypeCheckbox    Type = "checkbox"
	TypeDate        Type = "date"
	TypeURL         Type = "url"
	TypeEmail       Type = "email"
	TypePhone       Type = "phone_number"
	TypeSelect      Type = "select"
	TypeMultiSelect Type = "multi_select"
	TypeStatus      Type = "status"
	TypeFiles       Type = "files"
	TypePeople      Type = "people"
	TypeRelation    Type = "relation"

	// Read-only types. They appear in schemas fetched from the
	// workspace but values for them are never written.
	TypeCreatedTime    Type = "created_time"
	TypeCreatedBy      Type = "created_by"
	TypeLastEditedTime Type = "last_edited_time"
	TypeLastEditedBy   Type = "last_edited_by"
	TypeFormula        Type = "formula"
	TypeRollup         Type = "rollup"
)

// settableTypes holds every type a cell value may be written to,
// keyed by wire name.
var settableTypes = map[Type]bool{
	TypeTitle:       true,
	TypeText:        true,
	TypeNumber:      true,
	TypeCheckbox:    true,
	TypeDate:        true,
	TypeURL:         true,
	TypeEmail:       true,
	TypePhone:       true,
	TypeSelect:      true,
	TypeMultiSelect: true,
	TypeStatus:      true,
	TypeFiles:       true,
	TypePeople:      true,
	TypeRelation:    true,
}

// typeAliases maps the friendly names accepted on the command line to
// wire names.
var typeAliases = map[string]Type{
	"text":   TypeText,
	"phone":  TypePhone,
	"file":   TypeFiles,
	"person": TypePeople,
}

// Settable reports whether values of this type can be written through
// the API. Formulas, rollups and the audit fields are computed by the
// workspace and rejected on write.
func (t Type) Settable() bool {
	return settableTypes[t]
}

// OptionBearing reports whether the type carries a named option set.
func (t Type) OptionBearing() bool {
	return t == TypeSelect || t == TypeMultiSelect || t == TypeStatus
}

// ParseType resolves a user-supplied type name to its wire form. It
// accepts wire names ("rich_text") and the short aliases used by the
// CLI ("text", "file", "person", "phone").
func ParseType(s string) (Type, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if alias, ok := typeAliases[name]; ok {
		return alias, nil
	}
	t := Type(name)
	if settableTypes[t] {
		return t, nil
	}
	return "", fmt.Errorf("unknown column type %q (supported: %s)", s, strings.Join(SettableNames(), ", "))
}

// SettableNames returns the wire names of all settable types, sorted.
func SettableNames() []string {
	names := make([]string, 0, len(settableTypes))
	for t := range settableTypes {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}

// Option is one named choice of a select, multi_select or status field.
type Option struct {
	ID    string
	Name  string
	Color string
}

// Field describes one column of a collection schema.
type Field struct {
	ID      string
	Name    string
	Type    Type
	Options []Option // select, multi_select, status

	// RelationID is the collection a relation field points at.
	RelationID string
}

// HasOption reports whether the field has an option with exactly this
// name. Matching is case-sensitive: "Done" and "done" are distinct
// options on the remote side.
func (f Field) HasOption(name string) bool {
	for _, o := range f.Options {
		if o.Name == name {
			return true
		}
	}
	return false
}

// Schema maps field names to their definitions.
type Schema map[string]Field

// Key returns the title field of the schema. Every collection has
// exactly one.
func (s Schema) Key() (Field, bool) {
	for _, f := range s {
		if f.Type == TypeTitle {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns all field names in sorted order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OptionColors is the palette the workspace accepts for select options.
var OptionColors = []string{
	"blue", "brown", "default", "gray", "green",
	"orange", "pink", "purple", "red", "yellow",
}

// RandomColor picks a palette color for a new option.
func RandomColor() string {
	return OptionColors[rand.IntN(len(OptionColors))]
}

// DateValue is a parsed date cell: a start instant and an optional end.
// Values are ISO 8601 strings, date-only when the source carried no
// clock time.
type DateValue struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// FileRef names one attachment of a files property or an icon/cover
// image. Exactly one of URL, UploadID or Path is set: URL references an
// external file, UploadID a file already uploaded to the workspace, and
// Path a local file that still needs uploading before the value can go
// on the wire.
type FileRef struct {
	Name     string
	URL      string
	UploadID string
	Path     string
}

// Uploaded reports whether the reference can be sent as-is.
func (r FileRef) Uploaded() bool {
	return r.URL != "" || r.UploadID != ""
}

// Wire returns the JSON object form of the reference.
func (r FileRef) Wire() map[string]any {
	if r.UploadID != "" {
		return map[string]any{
			"name":        r.Name,
			"type":        "file_upload",
			"file_upload": map[string]any{"id": r.UploadID},
		}
	}
	return map[string]any{
		"name":     r.Name,
		"type":     "external",
		"external": map[string]any{"url": r.URL},
	}
}

// RefForValue builds a FileRef from a raw cell value: http(s) URLs
// become external references, anything else is treated as a local path
// relative to the source file.
func RefForValue(s string) FileRef {
	if IsURL(s) {
		return FileRef{Name: urlFilename(s), URL: s}
	}
	return FileRef{Name: filepath.Base(s), Path: s}
}

func urlFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return rawURL
	}
	return filepath.Base(u.Path)
}

// Icon is a parsed row icon: a single emoji, or an image reference.
type Icon struct {
	Emoji string
	File  FileRef // unset when Emoji is set
}

// Wire returns the JSON object form of the icon. Icons that still need
// uploading have no wire form until File.UploadID is filled in.
func (i Icon) Wire() map[string]any {
	if i.Emoji != "" {
		return map[string]any{"type": "emoji", "emoji": i.Emoji}
	}
	w := i.File.Wire()
	delete(w, "name")
	return w
}
