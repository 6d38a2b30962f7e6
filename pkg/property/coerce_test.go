// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package property

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingOptions counts EnsureOption calls and can be told to fail.
type recordingOptions struct {
	added []string
	err   error
}

func (r *recordingOptions) EnsureOption(_ context.Context, f Field, option string) error {
	if r.err != nil {
		return r.err
	}
	r.added = append(r.added, f.Name+"="+option)
	return nil
}

func TestCoercerValue_Text(t *testing.T) {
	c := &Coercer{}
	f := Field{Name: "Name", Type: TypeTitle}

	got, err := c.Value(context.Background(), f, "Row A")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": []any{
		map[string]any{"text": map[string]any{"content": "Row A"}},
	}}, got)

	got, err = c.Value(context.Background(), f, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": []any{}}, got)
}

func TestCoercerValue_Number(t *testing.T) {
	c := &Coercer{}
	f := Field{Name: "Count", Type: TypeNumber}

	got, err := c.Value(context.Background(), f, int64(42))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"number": int64(42)}, got)

	got, err = c.Value(context.Background(), f, 2.5)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"number": 2.5}, got)

	// Empty and unparseable cells omit the property instead of
	// writing a zero.
	got, err = c.Value(context.Background(), f, "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = c.Value(context.Background(), f, "banana")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCoercerValue_Checkbox(t *testing.T) {
	c := &Coercer{}
	f := Field{Name: "Done", Type: TypeCheckbox}

	got, err := c.Value(context.Background(), f, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"checkbox": true}, got)

	// An empty cell is an unchecked box, not an omitted property.
	got, err = c.Value(context.Background(), f, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"checkbox": false}, got)
}

func TestCoercerValue_DateDoesNotRewrap(t *testing.T) {
	c := &Coercer{}
	f := Field{Name: "When", Type: TypeDate}

	parsed, err := c.Value(context.Background(), f, DateValue{Start: "2001-08-12"})
	require.NoError(t, err)

	raw, err := c.Value(context.Background(), f, "2001-08-12")
	require.NoError(t, err)

	// A pre-structured value and a bare start string must produce the
	// same wire object: {"date": {"start": ...}} with no extra nesting.
	assert.Equal(t, parsed, raw)
	assert.Equal(t, map[string]any{"date": DateValue{Start: "2001-08-12"}}, parsed)

	ranged, err := c.Value(context.Background(), f, DateValue{Start: "2001-08-12", End: "2001-09-01"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"date": DateValue{Start: "2001-08-12", End: "2001-09-01"}}, ranged)
}

func TestCoercerValue_SelectCreatesMissingOption(t *testing.T) {
	opts := &recordingOptions{}
	c := &Coercer{Options: opts}
	f := Field{Name: "Stage", Type: TypeSelect, Options: []Option{{Name: "Open"}}}

	got, err := c.Value(context.Background(), f, "Closed")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"select": map[string]any{"name": "Closed"}}, got)
	assert.Equal(t, []string{"Stage=Closed"}, opts.added)

	// Known options are used without a schema push.
	opts.added = nil
	_, err = c.Value(context.Background(), f, "Open")
	require.NoError(t, err)
	assert.Empty(t, opts.added)
}

func TestCoercerValue_OptionNamesAreCaseSensitive(t *testing.T) {
	opts := &recordingOptions{}
	c := &Coercer{Options: opts}
	f := Field{Name: "Stage", Type: TypeSelect, Options: []Option{{Name: "Open"}}}

	_, err := c.Value(context.Background(), f, "open")
	require.NoError(t, err)
	assert.Equal(t, []string{"Stage=open"}, opts.added, "differently-cased option is a new option")
}

func TestCoercerValue_OptionFailureDropsValue(t *testing.T) {
	opts := &recordingOptions{err: errors.New("schema push rejected")}
	c := &Coercer{Options: opts}
	f := Field{Name: "Stage", Type: TypeStatus}

	got, err := c.Value(context.Background(), f, "Blocked")
	require.NoError(t, err, "lenient mode drops the value instead of failing the row")
	assert.Nil(t, got)

	c.Strict = true
	_, err = c.Value(context.Background(), f, "Blocked")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Stage")
}

func TestCoercerValue_MultiSelect(t *testing.T) {
	opts := &recordingOptions{}
	c := &Coercer{Options: opts}
	f := Field{Name: "Tags", Type: TypeMultiSelect, Options: []Option{{Name: "a"}}}

	got, err := c.Value(context.Background(), f, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"multi_select": []any{
		map[string]any{"name": "a"},
		map[string]any{"name": "b"},
	}}, got)
	assert.Equal(t, []string{"Tags=b"}, opts.added)

	// An empty cell writes an empty option list, clearing the field.
	got, err = c.Value(context.Background(), f, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"multi_select": []any{}}, got)
}

func TestCoercerValue_Files(t *testing.T) {
	c := &Coercer{}
	f := Field{Name: "Docs", Type: TypeFiles}

	got, err := c.Value(context.Background(), f, []FileRef{
		{Name: "a.pdf", URL: "https://example.com/a.pdf"},
		{Name: "b.pdf", UploadID: "up_123"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"files": []any{
		map[string]any{"name": "a.pdf", "type": "external", "external": map[string]any{"url": "https://example.com/a.pdf"}},
		map[string]any{"name": "b.pdf", "type": "file_upload", "file_upload": map[string]any{"id": "up_123"}},
	}}, got)

	// Local paths must be uploaded before coercion.
	_, err = c.Value(context.Background(), f, FileRef{Name: "c.pdf", Path: "/tmp/c.pdf"})
	require.Error(t, err)
}

func TestCoercerValue_PeopleAndRelations(t *testing.T) {
	c := &Coercer{}

	got, err := c.Value(context.Background(), Field{Name: "Owner", Type: TypePeople}, []string{"user-1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"people": []any{
		map[string]any{"object": "user", "id": "user-1"},
	}}, got)

	got, err = c.Value(context.Background(), Field{Name: "Parent", Type: TypeRelation}, []string{"row-1", "row-2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"relation": []any{
		map[string]any{"id": "row-1"},
		map[string]any{"id": "row-2"},
	}}, got)

	// Empty cells clear list-valued fields.
	got, err = c.Value(context.Background(), Field{Name: "Parent", Type: TypeRelation}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"relation": []any{}}, got)
}

func TestCoercerValue_UnknownTypeFallsBackToText(t *testing.T) {
	c := &Coercer{}
	got, err := c.Value(context.Background(), Field{Name: "X", Type: Type("exotic")}, "v")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"rich_text": []any{
		map[string]any{"text": map[string]any{"content": "v"}},
	}}, got)
}
