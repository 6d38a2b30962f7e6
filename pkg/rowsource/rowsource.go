// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package rowsource loads tabular rows from local CSV and JSON files.
// Every cell is a string; column types come from an explicit list or
// are guessed from the values. The first column keys the rows unless
// an explicit key column is named, which JSON inputs usually need.
package rowsource

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/tabsync/pkg/property"
)

// Record is one row, keyed by column name.
type Record map[string]string

// Options tunes reading and typing.
type Options struct {
	// ColumnTypes types the content columns in order. Empty means
	// guess every column from its values.
	ColumnTypes []property.Type

	// KeyColumn names the column holding row keys. Defaults to the
	// first column; JSON objects have no reliable first column, so
	// JSON inputs normally set it.
	KeyColumn string

	// Delimiter overrides the CSV field separator. Zero means comma.
	Delimiter rune

	// FailOnDuplicateColumns makes duplicate header names fatal
	// instead of a warning.
	FailOnDuplicateColumns bool

	Logger *slog.Logger
}

// Source is a fully loaded input file: ordered columns, typed content
// columns and all rows in file order.
type Source struct {
	path    string
	columns []string
	rows    []Record
	types   map[string]property.Type
	keyCol  string
	log     *slog.Logger
}

// Read loads path, dispatching on the file extension.
func Read(path string, opts Options) (*Source, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReader(f)
	stripBOM(br)

	var columns []string
	var rows []Record
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case strings.Contains(ext, "csv"):
		columns, rows, err = readCSV(br, opts.Delimiter, opts.FailOnDuplicateColumns, logger)
	case strings.Contains(ext, "json"):
		columns, rows, err = readJSON(br)
	default:
		err = fmt.Errorf("unsupported input format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("read %s: input has no columns", path)
	}

	src := &Source{
		path:    path,
		columns: columns,
		rows:    rows,
		log:     logger,
	}

	src.keyCol = columns[0]
	if opts.KeyColumn != "" {
		if !src.HasColumn(opts.KeyColumn) {
			return nil, fmt.Errorf("read %s: key column %q not found in input", path, opts.KeyColumn)
		}
		src.keyCol = opts.KeyColumn
	}

	if err := src.assignTypes(opts.ColumnTypes); err != nil {
		return nil, err
	}

	logger.Debug("source.loaded",
		"path", path, "rows", len(rows), "columns", len(columns), "key", src.keyCol)
	return src, nil
}

// stripBOM discards a UTF-8 byte order mark, which spreadsheet exports
// love to prepend.
func stripBOM(br *bufio.Reader) {
	bom, err := br.Peek(3)
	if err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
}

func (s *Source) assignTypes(explicit []property.Type) error {
	content := s.ContentColumns()
	s.types = make(map[string]property.Type, len(content))

	if len(explicit) == 0 {
		for _, col := range content {
			s.types[col] = property.GuessType(s.ColumnValues(col))
		}
		return nil
	}

	if len(explicit) != len(content) {
		return fmt.Errorf("read %s: every column except the key needs a declared type: got %d types for %d content columns",
			s.path, len(explicit), len(content))
	}
	for i, col := range content {
		s.types[col] = explicit[i]
	}
	return nil
}

// Path returns the input file path. Relative attachment paths in cells
// resolve against its directory.
func (s *Source) Path() string {
	return s.path
}

// Len returns the number of rows.
func (s *Source) Len() int {
	return len(s.rows)
}

// Rows returns all rows in file order. Callers must not mutate them.
func (s *Source) Rows() []Record {
	return s.rows
}

// Columns returns the column names in file order.
func (s *Source) Columns() []string {
	return s.columns
}

// KeyColumn returns the column whose values key the rows.
func (s *Source) KeyColumn() string {
	return s.keyCol
}

// ContentColumns returns every column except the key, in file order.
func (s *Source) ContentColumns() []string {
	content := make([]string, 0, len(s.columns)-1)
	for _, col := range s.columns {
		if col != s.keyCol {
			content = append(content, col)
		}
	}
	return content
}

// HasColumn reports whether the input has a column with this name.
func (s *Source) HasColumn(name string) bool {
	for _, col := range s.columns {
		if col == name {
			return true
		}
	}
	return false
}

// ColumnType returns the declared or guessed type of a content column.
func (s *Source) ColumnType(name string) (property.Type, bool) {
	t, ok := s.types[name]
	return t, ok
}

// ColumnValues returns every row's value for one column, in row order.
func (s *Source) ColumnValues(name string) []string {
	values := make([]string, len(s.rows))
	for i, row := range s.rows {
		values[i] = row[name]
	}
	return values
}

// DropColumns removes columns from the source: from the column list,
// the type table and every row.
func (s *Source) DropColumns(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		drop[name] = true
	}

	kept := s.columns[:0]
	for _, col := range s.columns {
		if !drop[col] {
			kept = append(kept, col)
		}
	}
	s.columns = kept

	for _, name := range names {
		delete(s.types, name)
	}
	for _, row := range s.rows {
		for _, name := range names {
			delete(row, name)
		}
	}
}

// RewriteColumn applies fn to every cell of one column in place.
func (s *Source) RewriteColumn(name string, fn func(string) string) {
	if !s.HasColumn(name) {
		return
	}
	for _, row := range s.rows {
		row[name] = fn(row[name])
	}
}

// DropRows removes the rows whose key is in keys.
func (s *Source) DropRows(keys ...string) {
	drop := make(map[string]bool, len(keys))
	for _, key := range keys {
		drop[key] = true
	}
	kept := s.rows[:0]
	for _, row := range s.rows {
		if !drop[row[s.keyCol]] {
			kept = append(kept, row)
		}
	}
	s.rows = kept
}
