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

// Package main implements the tabsync CLI for uploading and merging
// tabular data into hosted workspace databases.
//
// Usage:
//
//	tabsync init                    Create the configuration skeleton
//	tabsync upload [options] FILE   Upload or merge a CSV/JSON file
//	tabsync inspect --db ID         Show database schema and row count
//	tabsync wipe --db ID --yes      Archive every row in a database
//	tabsync completion bash         Generate shell completion script
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kraklabs/tabsync/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags carries the flags every command honors.
type GlobalFlags struct {
	// JSON switches output to machine-readable form; implies Quiet.
	JSON bool

	// Quiet suppresses progress bars and status glyphs.
	Quiet bool

	// NoColor disables ANSI colors everywhere.
	NoColor bool

	// Verbose widens logging: 0 warnings, 1 info, 2+ debug.
	Verbose int
}

// main parses global flags and dispatches to command handlers.
//
// Global flags:
//   - --version: Display version information and exit
//   - --config: Path to the configuration file
//   - --json: Machine-readable output (implies --quiet)
//   - --quiet: Suppress progress and status output
//   - --no-color: Disable colored output
//   - --verbose: Verbosity level (0-2)
//
// Commands:
//   - upload: Upload a CSV/JSON file into a database
//   - wipe: Archive every row in a database (destructive!)
//   - inspect: Show database schema and row count
//   - init: Create the configuration skeleton
//   - completion: Generate shell completion script
func main() {
	// Global flags
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		configPath  = flag.String("config", "", "Path to config.yaml (default: ~/.config/tabsync/config.yaml)")
		jsonOut     = flag.Bool("json", false, "Machine-readable output (implies --quiet)")
		quiet       = flag.Bool("quiet", false, "Suppress progress and status output")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
		verbose     = flag.Int("verbose", 0, "Verbosity: 0 warnings, 1 info, 2 debug")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `tabsync - upload tabular data into workspace databases

tabsync reads CSV or JSON record files and creates or updates rows in a
hosted workspace database over its HTTP API. Merge mode matches rows on
the database's key column, so re-running an upload updates rows instead
of duplicating them.

Usage:
  tabsync [global options] <command> [options]

Commands:
  upload        Upload a CSV/JSON file into a database
  wipe          Archive every row in a database (destructive!)
  inspect       Show database schema and row count
  init          Create the configuration skeleton
  completion    Generate shell completion script (bash|zsh|fish)

Global Options:
  --config      Path to config.yaml
  --json        Machine-readable output (implies --quiet)
  --quiet       Suppress progress and status output
  --no-color    Disable colored output
  --verbose     Verbosity level (0-2)
  --version     Show version and exit

Examples:
  tabsync init
  tabsync upload tasks.csv --db 8f2ab31c --merge
  tabsync upload tasks.csv --parent-page 77bc02ce --db-title "Tasks"
  tabsync upload posts.json --key-column slug --image-column Cover --image-mode cover
  tabsync inspect --db 8f2ab31c --json
  tabsync wipe --db 8f2ab31c --yes

Getting Started:
  1. Create the configuration:      tabsync init
  2. Paste your integration token:  $EDITOR ~/.config/tabsync/config.yaml
  3. Share the database with the integration, then upload:
       tabsync upload data.csv --db <database-id>

Environment Variables:
  TABSYNC_TOKEN       Integration token (overrides the config file)
  TABSYNC_BASE_URL    API endpoint (overrides the config file)
  HUGGING_FACE_TOKEN  Token for --caption-provider huggingface

For detailed command help: tabsync <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("tabsync version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	globals := GlobalFlags{
		JSON:    *jsonOut,
		Quiet:   *quiet || *jsonOut,
		NoColor: *noColor,
		Verbose: *verbose,
	}
	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "upload":
		runUpload(cmdArgs, *configPath, globals)
	case "wipe":
		runWipe(cmdArgs, *configPath, globals)
	case "inspect":
		runInspect(cmdArgs, *configPath, globals)
	case "init":
		runInit(cmdArgs, *configPath)
	case "completion":
		runCompletion(cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
