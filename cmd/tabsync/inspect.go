// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/kraklabs/tabsync/internal/bootstrap"
	"github.com/kraklabs/tabsync/internal/errors"
	"github.com/kraklabs/tabsync/internal/output"
	"github.com/kraklabs/tabsync/internal/ui"
)

// InspectResult represents a database's identity and schema for JSON output.
type InspectResult struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	URL     string          `json:"url,omitempty"`
	Rows    int             `json:"rows"`
	Columns []InspectColumn `json:"columns"`
}

// InspectColumn is one schema column in an InspectResult.
type InspectColumn struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Options []string `json:"options,omitempty"`
}

// runInspect executes the 'inspect' CLI command, displaying a database's
// schema and row count.
//
// It fetches the database descriptor and pages through its rows once,
// which is the same view an upload run starts from. This helps users
// verify the integration can see the database and check column names
// and types before preparing an input file.
//
// Flags:
//   - --db: Database ID to inspect (required)
//   - --json: Output results as JSON (default: false)
//
// Examples:
//
//	tabsync inspect --db 8f2ab31c           Display formatted schema
//	tabsync inspect --db 8f2ab31c --json    Output as JSON for scripts
func runInspect(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	db := fs.String("db", "", "Database ID to inspect (required)")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	token := fs.String("token", "", "Integration token (overrides config and TABSYNC_TOKEN)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tabsync inspect [options]

Shows a database's columns, option sets and row count.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	asJSON := *jsonOutput || globals.JSON

	if *db == "" {
		fmt.Fprintf(os.Stderr, "Error: --db is required\n")
		fs.Usage()
		os.Exit(1)
	}

	ctx := context.Background()

	sess, err := bootstrap.Open(ctx, bootstrap.SessionConfig{
		ConfigPath: configPath,
		Token:      *token,
		Verbose:    globals.Verbose,
	})
	if err != nil {
		errors.FatalError(err, asJSON)
	}
	defer func() { _ = sess.Close() }()

	cache := sess.Collection(*db, false)

	info, err := cache.Info(ctx)
	if err != nil {
		errors.FatalError(promoteError("Cannot open the target database", err), asJSON)
	}
	schema, err := cache.Schema(ctx)
	if err != nil {
		errors.FatalError(promoteError("Cannot read the database schema", err), asJSON)
	}
	rows, err := cache.RowCount(ctx)
	if err != nil {
		errors.FatalError(promoteError("Cannot count the database rows", err), asJSON)
	}

	result := InspectResult{
		ID:    info.ID,
		Title: info.TitleText(),
		URL:   info.URL,
		Rows:  rows,
	}
	for _, name := range schema.Names() {
		field := schema[name]
		col := InspectColumn{Name: field.Name, Type: string(field.Type)}
		for _, opt := range field.Options {
			col.Options = append(col.Options, opt.Name)
		}
		result.Columns = append(result.Columns, col)
	}

	if asJSON {
		_ = output.JSON(result)
		return
	}
	printInspectResult(result)
}

// printInspectResult prints the schema as formatted text to stdout.
func printInspectResult(result InspectResult) {
	ui.Header(fmt.Sprintf("%s (%s)", result.Title, result.ID))
	if result.URL != "" {
		fmt.Printf("URL:   %s\n", result.URL)
	}
	fmt.Printf("Rows:  %d\n", result.Rows)
	fmt.Println()

	width := len("Column")
	for _, col := range result.Columns {
		if len(col.Name) > width {
			width = len(col.Name)
		}
	}

	fmt.Printf("  %-*s  %-12s  %s\n", width, "Column", "Type", "Options")
	for _, col := range result.Columns {
		opts := ""
		if len(col.Options) > 0 {
			opts = strings.Join(col.Options, ", ")
		}
		fmt.Printf("  %-*s  %-12s  %s\n", width, col.Name, col.Type, opts)
	}
}
