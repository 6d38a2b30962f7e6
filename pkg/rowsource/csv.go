// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package rowsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// readCSV parses a delimited file. Short rows are padded with empty
// cells, long rows are truncated to the header width, and a duplicated
// header name keeps the value of its last occurrence.
func readCSV(r io.Reader, delimiter rune, failOnDuplicates bool, log *slog.Logger) ([]string, []Record, error) {
	cr := csv.NewReader(r)
	if delimiter != 0 {
		cr.Comma = delimiter
	}
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("input has no columns")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	if dups := duplicateNames(header); len(dups) > 0 {
		if failOnDuplicates {
			return nil, nil, fmt.Errorf("duplicate columns: %s", strings.Join(dups, ", "))
		}
		log.Warn("source.columns.duplicate", "columns", dups)
	}

	columns := uniqueInOrder(header)

	var rows []Record
	warnedExcess := false
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if len(rec) > len(header) && !warnedExcess {
			log.Warn("source.rows.excess_cells",
				"row", len(rows)+2, "cells", len(rec), "columns", len(header))
			warnedExcess = true
		}

		row := make(Record, len(columns))
		for i, name := range header {
			if i < len(rec) {
				row[name] = rec[i]
			} else if _, ok := row[name]; !ok {
				row[name] = ""
			}
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

func duplicateNames(names []string) []string {
	seen := make(map[string]int, len(names))
	var dups []string
	for _, name := range names {
		seen[name]++
		if seen[name] == 2 {
			dups = append(dups, name)
		}
	}
	return dups
}

func uniqueInOrder(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
