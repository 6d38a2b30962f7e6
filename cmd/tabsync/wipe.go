// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"

	"github.com/kraklabs/tabsync/internal/bootstrap"
	"github.com/kraklabs/tabsync/internal/errors"
	"github.com/kraklabs/tabsync/internal/output"
	"github.com/kraklabs/tabsync/internal/ui"
)

func runWipe(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("wipe", flag.ExitOnError)
	db := fs.String("db", "", "Database ID to wipe (required)")
	confirm := fs.Bool("yes", false, "Confirm the wipe (required)")
	token := fs.String("token", "", "Integration token (overrides config and TABSYNC_TOKEN)")
	logFile := fs.String("log", "", "Mirror the run log into this rotating file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tabsync wipe [options]

Archives every row of a database, leaving its schema in place.
This is useful before a full re-upload to ensure a clean slate.

Archived rows go to the workspace trash; the API offers no hard
delete, so they can still be restored from there for a while.

WARNING: This archives every row in the database!

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *db == "" {
		fmt.Fprintf(os.Stderr, "Error: --db is required\n")
		fs.Usage()
		os.Exit(1)
	}
	if !*confirm {
		fmt.Fprintf(os.Stderr, "Error: you must pass --yes to confirm the wipe\n")
		fmt.Fprintf(os.Stderr, "This will archive every row in database %s.\n", *db)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := bootstrap.Open(ctx, bootstrap.SessionConfig{
		ConfigPath: configPath,
		Token:      *token,
		LogFile:    *logFile,
		Verbose:    globals.Verbose,
	})
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	defer func() { _ = sess.Close() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		sess.Log.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	cache := sess.Collection(*db, false)
	info, err := cache.Info(ctx)
	if err != nil {
		errors.FatalError(promoteError("Cannot open the target database", err), globals.JSON)
	}
	title := info.TitleText()

	progress := NewProgressConfig(globals)
	var bar *progressbar.ProgressBar
	archived, err := cache.DeleteAllRows(ctx, func(done, total int) {
		// The row count is unknown until the first page comes back,
		// so the bar starts with the callback rather than before it.
		if bar == nil {
			bar = NewProgressBar(progress, int64(total), stageDescription("wipe"))
		}
		if bar != nil {
			_ = bar.Set(done)
		}
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		if archived > 0 && !globals.Quiet {
			ui.Warningf("Archived %d rows before the failure", archived)
		}
		errors.FatalError(promoteError("Wipe failed", err), globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(wipeReport{Database: *db, Title: title, Archived: archived})
		return
	}
	ui.Successf("Archived %d rows from %q", archived, title)
}

// wipeReport is the JSON summary printed by 'wipe --json'.
type wipeReport struct {
	Database string `json:"database"`
	Title    string `json:"title"`
	Archived int    `json:"archived"`
}
