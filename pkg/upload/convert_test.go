// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wstest "github.com/kraklabs/tabsync/internal/testing"
	"github.com/kraklabs/tabsync/pkg/property"
	"github.com/kraklabs/tabsync/pkg/rowsource"
)

func convertRows(t *testing.T, w *wstest.Workspace, dbID string, src *rowsource.Source, rules Rules) ([]*Row, error) {
	t.Helper()
	if rules.Logger == nil {
		rules.Logger = discardLogger()
	}
	return NewConverter(testCache(t, w, dbID), src, rules).Convert(context.Background())
}

func TestConvertTypedCells(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Products", map[string]string{
		"Name":  "title",
		"Count": "number",
		"Done":  "checkbox",
		"When":  "date",
		"Tags":  "multi_select",
		"Site":  "url",
	})

	src := readSource(t, writeCSV(t,
		"Name,Count,Done,When,Tags,Site",
		`Widget,3,true,2024-05-01,"red, blue",https://example.com`,
	), rowsource.Options{})

	rows, err := convertRows(t, w, dbID, src, Rules{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "Widget", row.Key())
	assert.Equal(t, int64(3), row.Values["Count"])
	assert.Equal(t, true, row.Values["Done"])
	assert.Equal(t, property.DateValue{Start: "2024-05-01"}, row.Values["When"])
	assert.Equal(t, []string{"red", "blue"}, row.Values["Tags"])
	assert.Equal(t, "https://example.com", row.Values["Site"])
}

func TestConvertLenientDropsBadCells(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Products", map[string]string{
		"Name":  "title",
		"Count": "number",
	})

	src := readSource(t, writeCSV(t, "Name,Count", "Widget,abc"), rowsource.Options{})
	rows, err := convertRows(t, w, dbID, src, Rules{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Values["Count"], "unparseable cell is dropped, row survives")
}

func TestConvertStrictFailsOnBadCells(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Products", map[string]string{
		"Name":  "title",
		"Count": "number",
	})

	src := readSource(t, writeCSV(t, "Name,Count", "Widget,abc"), rowsource.Options{})
	_, err := convertRows(t, w, dbID, src, Rules{FailOnConversionError: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")
	assert.Contains(t, err.Error(), `"Count"`)
}

func TestConvertResolvesRelations(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	target := w.SeedDatabase(t, "Projects", map[string]string{"Name": "title"})
	alphaID := w.SeedRow(t, target, "Alpha")

	dbID := w.SeedDatabase(t, "Tasks", map[string]string{"Name": "title"})
	w.SeedRelationColumn(t, dbID, "Project", target)

	src := readSource(t, writeCSV(t, "Name,Project", "A,Alpha", "B,Beta"), rowsource.Options{})
	rows, err := convertRows(t, w, dbID, src, Rules{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{alphaID}, rows[0].Values["Project"])
	assert.Empty(t, rows[1].Values["Project"], "unknown value is ignored by default")
	assert.Equal(t, 1, w.RowCount(t, target))
}

func TestConvertRelationAddCreatesRow(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	target := w.SeedDatabase(t, "Projects", map[string]string{"Name": "title"})
	w.SeedRow(t, target, "Alpha")

	dbID := w.SeedDatabase(t, "Tasks", map[string]string{"Name": "title"})
	w.SeedRelationColumn(t, dbID, "Project", target)

	src := readSource(t, writeCSV(t, "Name,Project", "A,Beta"), rowsource.Options{})
	rows, err := convertRows(t, w, dbID, src, Rules{MissingRelations: RelationAdd})
	require.NoError(t, err)

	assert.Equal(t, 2, w.RowCount(t, target))
	beta := w.Page(t, target, "Beta")
	assert.Equal(t, []string{beta.ID}, rows[0].Values["Project"])
}

func TestConvertRelationFailAborts(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	target := w.SeedDatabase(t, "Projects", map[string]string{"Name": "title"})

	dbID := w.SeedDatabase(t, "Tasks", map[string]string{"Name": "title"})
	w.SeedRelationColumn(t, dbID, "Project", target)

	src := readSource(t, writeCSV(t, "Name,Project", "A,Beta"), rowsource.Options{})
	_, err := convertRows(t, w, dbID, src, Rules{MissingRelations: RelationFail})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Beta"`)
	assert.Equal(t, 0, w.RowCount(t, target))
}

func TestConvertResolvesPeople(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	adaID := w.SeedUser(t, "Ada Lovelace", "ada@example.com")
	dbID := w.SeedDatabase(t, "Tasks", map[string]string{
		"Name":  "title",
		"Owner": "people",
	})

	src := readSource(t, writeCSV(t, "Name,Owner", "A,ada@example.com", "B,nobody"), rowsource.Options{})
	rows, err := convertRows(t, w, dbID, src, Rules{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{adaID}, rows[0].Values["Owner"])
	assert.Nil(t, rows[1].Values["Owner"], "unknown member is dropped in lenient mode")
}

func TestConvertImageAndIconExtras(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Products", map[string]string{"Name": "title"})

	src := readSource(t, writeCSV(t,
		"Name,Image,Icon,Caption",
		"Widget,https://img.example/cat.png,🚀,hero shot",
	), rowsource.Options{})

	rows, err := convertRows(t, w, dbID, src, Rules{
		ImageColumns:       []string{"Image"},
		IconColumn:         "Icon",
		ImageCaptionColumn: "Caption",
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, []string{"Name"}, row.Columns, "side-channel columns leave the payload")
	require.Len(t, row.Extra.Images, 1)
	assert.Equal(t, "https://img.example/cat.png", row.Extra.Images[0].File.URL)
	assert.Equal(t, "hero shot", row.Extra.Images[0].Caption)
	require.NotNil(t, row.Extra.Icon)
	assert.Equal(t, "🚀", row.Extra.Icon.Emoji)
	assert.Nil(t, row.Extra.Cover)
}

func TestConvertImageModeCover(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Products", map[string]string{"Name": "title"})

	src := readSource(t, writeCSV(t,
		"Name,Image",
		"Widget,https://img.example/cat.png",
	), rowsource.Options{})

	rows, err := convertRows(t, w, dbID, src, Rules{
		ImageColumns: []string{"Image"},
		ImageMode:    ImageModeCover,
	})
	require.NoError(t, err)

	row := rows[0]
	require.NotNil(t, row.Extra.Cover)
	assert.Equal(t, "https://img.example/cat.png", row.Extra.Cover.URL)
	assert.Empty(t, row.Extra.Images)
}

func TestConvertDefaultIcon(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Products", map[string]string{"Name": "title"})

	// Without an icon column every row gets the default.
	src := readSource(t, writeCSV(t, "Name", "A", "B"), rowsource.Options{})
	rows, err := convertRows(t, w, dbID, src, Rules{DefaultIcon: "🎯"})
	require.NoError(t, err)
	for _, row := range rows {
		require.NotNil(t, row.Extra.Icon)
		assert.Equal(t, "🎯", row.Extra.Icon.Emoji)
	}

	// With one, the default only fills empty cells.
	src = readSource(t, writeCSV(t, "Name,Icon", "A,🚀", "B,"), rowsource.Options{})
	rows, err = convertRows(t, w, dbID, src, Rules{IconColumn: "Icon", DefaultIcon: "🎯"})
	require.NoError(t, err)
	assert.Equal(t, "🚀", rows[0].Extra.Icon.Emoji)
	assert.Equal(t, "🎯", rows[1].Extra.Icon.Emoji)
}

func TestConvertFileCells(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Products", map[string]string{
		"Name": "title",
		"Docs": "files",
	})

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "art.png"), []byte("png"), 0o644))

	src := readSource(t, writeCSV(t,
		"Name,Docs",
		`Widget,"art.png, https://files.example/spec.pdf, attachment:9f8a7b:report.pdf"`,
	), rowsource.Options{})

	rows, err := convertRows(t, w, dbID, src, Rules{SearchRoot: dir})
	require.NoError(t, err)

	refs, ok := rows[0].Values["Docs"].([]property.FileRef)
	require.True(t, ok)
	require.Len(t, refs, 3)

	assert.Equal(t, filepath.Join(dir, "art.png"), refs[0].Path)
	assert.Equal(t, "art.png", refs[0].Name)

	assert.Equal(t, "https://files.example/spec.pdf", refs[1].URL)
	assert.Equal(t, "spec.pdf", refs[1].Name)

	assert.Equal(t, "9f8a7b", refs[2].UploadID)
	assert.Equal(t, "report.pdf", refs[2].Name)
}

func TestConvertMissingFileFailsEvenLenient(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Products", map[string]string{
		"Name": "title",
		"Docs": "files",
	})

	src := readSource(t, writeCSV(t, "Name,Docs", "Widget,ghost.png"), rowsource.Options{})
	_, err := convertRows(t, w, dbID, src, Rules{SearchRoot: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestConvertMandatoryCellMustBeFilled(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Products", map[string]string{
		"Name":  "title",
		"Notes": "rich_text",
	})

	src := readSource(t, writeCSV(t, "Name,Notes", "Widget,"), rowsource.Options{})
	_, err := convertRows(t, w, dbID, src, Rules{MandatoryColumns: []string{"Notes"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mandatory column")
}

func TestConvertCaptionJobs(t *testing.T) {
	w := wstest.SetupWorkspace(t)
	dbID := w.SeedDatabase(t, "Products", map[string]string{
		"Name":  "title",
		"Notes": "rich_text",
	})

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fox.png"), []byte("png"), 0o644))

	src := readSource(t, writeCSV(t,
		"Name,Pic",
		"A,fox.png",
		"B,https://img.example/far.png",
	), rowsource.Options{})

	rows, err := convertRows(t, w, dbID, src, Rules{
		CaptionImageColumn:  "Pic",
		CaptionTargetColumn: "Notes",
		SearchRoot:          dir,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NotNil(t, rows[0].Caption)
	assert.Equal(t, "Notes", rows[0].Caption.Column)
	assert.Equal(t, filepath.Join(dir, "fox.png"), rows[0].Caption.Image.Path)

	assert.Nil(t, rows[1].Caption, "remote images cannot be read for captioning")
}
