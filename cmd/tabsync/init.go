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
	"flag"
	"fmt"
	"os"

	"github.com/kraklabs/tabsync/internal/config"
)

// runInit executes the 'init' CLI command, writing a commented
// configuration skeleton to the config path.
//
// The skeleton documents every setting with its default; the only
// field a new user must fill in is the integration token. The command
// never touches an existing file unless --force is given.
//
// Flags:
//   - --force: Overwrite existing configuration (default: false)
//
// Examples:
//
//	tabsync init                        Write the default config file
//	tabsync --config ./t.yaml init      Write it somewhere else
//	tabsync init --force                Replace an existing file
func runInit(args []string, configPath string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite existing configuration")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tabsync init [options]

Creates the tabsync configuration file.

Examples:
  tabsync init                          # ~/.config/tabsync/config.yaml
  tabsync --config ./tabsync.yaml init  # custom location
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot resolve config path: %v\n", err)
			os.Exit(1)
		}
	}

	if *force {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error: cannot replace %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	if err := config.WriteSkeleton(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if !*force {
			fmt.Fprintf(os.Stderr, "Use --force to overwrite.\n")
		}
		os.Exit(1)
	}

	fmt.Printf("Created %s\n", path)
	printNextSteps()
}

func printNextSteps() {
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Paste your integration token into the config file")
	fmt.Println("  2. Share the target database with the integration")
	fmt.Println("  3. Run 'tabsync upload data.csv --db <id>'")
}
