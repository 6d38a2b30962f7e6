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

	"github.com/kraklabs/tabsync/internal/errors"
)

// bashCompletionTemplate is the bash completion script for tabsync.
//
// It provides command and flag completion for bash shells using the
// bash completion framework.
const bashCompletionTemplate = `#!/bin/bash

# Bash completion script for tabsync
# Installation:
#   source <(tabsync completion bash)
#   Or add to ~/.bashrc:
#   echo 'source <(tabsync completion bash)' >> ~/.bashrc

_tabsync_completion() {
    local cur prev commands
    commands="upload wipe inspect init completion"

    # Current word being completed
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    # Global flags
    if [ $COMP_CWORD -eq 1 ] && [[ ${cur} == -* ]] ; then
        COMPREPLY=( $(compgen -W "--version --config --json --quiet --no-color --verbose" -- ${cur}) )
        return 0
    fi

    # First argument: complete commands
    if [ $COMP_CWORD -eq 1 ]; then
        COMPREPLY=( $(compgen -W "${commands}" -- ${cur}) )
        return 0
    fi

    # Command-specific flag completion
    local cmd="${COMP_WORDS[1]}"
    case "${cmd}" in
        upload)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--db --parent-page --db-title --token --key-column --column-types --delimiter --merge --merge-only-column --merge-skip-new --image-column --image-mode --image-caption-column --icon-column --default-icon --caption-image-column --caption-target-column --caption-provider --caption-model --mandatory-column --add-missing-columns --missing-relations --fail-on-conversion-error --fail-on-duplicates --randomize-colors --workers --search-root --log --metrics --no-progress" -- ${cur}) )
            else
                # Positional argument is the input file
                COMPREPLY=( $(compgen -f -- ${cur}) )
            fi
            ;;
        wipe)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--db --yes --token --log" -- ${cur}) )
            fi
            ;;
        inspect)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--db --json --token" -- ${cur}) )
            fi
            ;;
        init)
            if [[ ${cur} == -* ]] ; then
                COMPREPLY=( $(compgen -W "--force" -- ${cur}) )
            fi
            ;;
        completion)
            # Complete shell names for completion command
            if [ $COMP_CWORD -eq 2 ]; then
                COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            fi
            ;;
    esac
}

complete -F _tabsync_completion tabsync
`

// zshCompletionTemplate is the zsh completion script for tabsync.
//
// It provides command and flag completion for zsh shells using the
// zsh completion system.
const zshCompletionTemplate = `#compdef tabsync

# Zsh completion script for tabsync
# Installation:
#   1. Ensure compinit is loaded (add to ~/.zshrc if not present):
#      autoload -U compinit; compinit
#   2. Save this script to a directory in your fpath:
#      tabsync completion zsh > "${fpath[1]}/_tabsync"
#   3. Reload completions:
#      rm -f ~/.zcompdump; compinit

_tabsync() {
    local -a commands
    commands=(
        'upload:Upload a CSV or JSON file into a database'
        'wipe:Archive every row of a database'
        'inspect:Show a database schema and row count'
        'init:Create the configuration file'
        'completion:Generate shell completion script'
    )

    _arguments -C \
        '(- *)--version[Show version and exit]' \
        '--config[Path to the config file]:config file:_files -g "*.yaml"' \
        '--json[Machine-readable output]' \
        '--quiet[Suppress progress and informational output]' \
        '--no-color[Disable colored output]' \
        '--verbose[Increase log verbosity (repeatable)]' \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                upload)
                    _arguments \
                        '--db[Database ID to upload into]:database id:' \
                        '--parent-page[Parent page for a created database]:page id:' \
                        '--db-title[Title for a created database]:title:' \
                        '--token[Integration token]:token:' \
                        '--key-column[Column holding row keys]:column:' \
                        '--column-types[Types for the content columns]:types:' \
                        '--delimiter[CSV field delimiter]:delimiter:' \
                        '--merge[Update matching rows instead of creating duplicates]' \
                        '--merge-only-column[Restrict a merge to this column]:column:' \
                        '--merge-skip-new[Skip rows not already in the database]' \
                        '--image-column[Column holding an image per row]:column:' \
                        '--image-mode[Where images go]:mode:(block cover)' \
                        '--icon-column[Column holding the page icon]:column:' \
                        '--caption-image-column[Column to describe with the caption provider]:column:' \
                        '--caption-target-column[Column receiving the description]:column:' \
                        '--caption-provider[Caption provider]:provider:(huggingface mock)' \
                        '--missing-relations[Unresolved relation policy]:policy:(ignore add fail)' \
                        '--workers[Parallel upload workers]:count:' \
                        '--metrics[Prometheus metrics listen address]:address:' \
                        '--log[Rotating log file]:file:_files' \
                        '--no-progress[Disable the progress bar]' \
                        '1:input file:_files -g "*.(csv|json)"'
                    ;;
                wipe)
                    _arguments \
                        '--db[Database ID to wipe]:database id:' \
                        '--yes[Confirm the wipe]' \
                        '--token[Integration token]:token:' \
                        '--log[Rotating log file]:file:_files'
                    ;;
                inspect)
                    _arguments \
                        '--db[Database ID to inspect]:database id:' \
                        '--json[Output as JSON]' \
                        '--token[Integration token]:token:'
                    ;;
                init)
                    _arguments \
                        '--force[Overwrite existing configuration]'
                    ;;
                completion)
                    _arguments \
                        '1:shell:(bash zsh fish)'
                    ;;
            esac
            ;;
    esac
}

_tabsync
`

// fishCompletionTemplate is the fish completion script for tabsync.
//
// It provides command and flag completion for fish shells using the
// fish completion system.
const fishCompletionTemplate = `# Fish completion script for tabsync
# Installation:
#   1. Load completions for current session:
#      tabsync completion fish | source
#   2. Install permanently:
#      tabsync completion fish > ~/.config/fish/completions/tabsync.fish

# Commands
complete -c tabsync -f -n "__fish_use_subcommand" -a "upload" -d "Upload a CSV or JSON file into a database"
complete -c tabsync -f -n "__fish_use_subcommand" -a "wipe" -d "Archive every row of a database (destructive!)"
complete -c tabsync -f -n "__fish_use_subcommand" -a "inspect" -d "Show a database schema and row count"
complete -c tabsync -f -n "__fish_use_subcommand" -a "init" -d "Create the configuration file"
complete -c tabsync -f -n "__fish_use_subcommand" -a "completion" -d "Generate shell completion script"

# Global flags
complete -c tabsync -l version -d "Show version and exit"
complete -c tabsync -l config -d "Path to the config file" -r
complete -c tabsync -l json -d "Machine-readable output"
complete -c tabsync -l quiet -d "Suppress progress and informational output"
complete -c tabsync -l no-color -d "Disable colored output"
complete -c tabsync -l verbose -d "Increase log verbosity (repeatable)"

# upload command flags
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l db -d "Database ID to upload into" -r
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l parent-page -d "Parent page for a created database" -r
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l db-title -d "Title for a created database" -r
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l merge -d "Update matching rows instead of creating duplicates"
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l key-column -d "Column holding row keys" -r
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l image-column -d "Column holding an image per row" -r
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l image-mode -d "Where images go (block or cover)" -r -f -a "block cover"
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l icon-column -d "Column holding the page icon" -r
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l caption-image-column -d "Column to describe with the caption provider" -r
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l caption-target-column -d "Column receiving the description" -r
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l caption-provider -d "Caption provider" -r -f -a "huggingface mock"
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l missing-relations -d "Unresolved relation policy" -r -f -a "ignore add fail"
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l workers -d "Parallel upload workers" -r
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l metrics -d "Prometheus metrics listen address" -r
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l log -d "Rotating log file" -r
complete -c tabsync -n "__fish_seen_subcommand_from upload" -l no-progress -d "Disable the progress bar"

# wipe command flags
complete -c tabsync -n "__fish_seen_subcommand_from wipe" -l db -d "Database ID to wipe" -r
complete -c tabsync -n "__fish_seen_subcommand_from wipe" -l yes -d "Confirm the wipe"
complete -c tabsync -n "__fish_seen_subcommand_from wipe" -l log -d "Rotating log file" -r

# inspect command flags
complete -c tabsync -n "__fish_seen_subcommand_from inspect" -l db -d "Database ID to inspect" -r
complete -c tabsync -n "__fish_seen_subcommand_from inspect" -l json -d "Output as JSON"

# init command flags
complete -c tabsync -n "__fish_seen_subcommand_from init" -l force -d "Overwrite existing configuration"

# completion command arguments
complete -c tabsync -n "__fish_seen_subcommand_from completion" -f -a "bash" -d "Generate bash completion script"
complete -c tabsync -n "__fish_seen_subcommand_from completion" -f -a "zsh" -d "Generate zsh completion script"
complete -c tabsync -n "__fish_seen_subcommand_from completion" -f -a "fish" -d "Generate fish completion script"
`

// runCompletion executes the 'completion' CLI command, generating shell-specific
// completion scripts for bash, zsh, or fish shells.
//
// The completion command outputs a shell-specific script to stdout that can be
// sourced to enable tab completion for tabsync commands and flags. Each shell
// has different completion syntax and installation requirements.
//
// Usage:
//
//	tabsync completion [bash|zsh|fish]
//
// Examples:
//
//	tabsync completion bash                          Output bash completion script
//	source <(tabsync completion bash)                Load bash completions in current shell
//	tabsync completion zsh > "${fpath[1]}/_tabsync"  Install zsh completions permanently
//	tabsync completion fish | source                 Load fish completions in current shell
func runCompletion(args []string) {
	fs := flag.NewFlagSet("completion", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tabsync completion <shell>

Description:
  Generate shell completion scripts for bash, zsh, or fish.

  Shell completions allow you to use Tab to autocomplete commands,
  flags, and arguments.

Arguments:
  shell    Shell type: bash, zsh, or fish (required)

Examples:
  # Load bash completions in current shell
  source <(tabsync completion bash)

  # Install bash completions permanently (Linux)
  tabsync completion bash > /etc/bash_completion.d/tabsync

  # Install zsh completions
  tabsync completion zsh > "${fpath[1]}/_tabsync"

  # Install fish completions
  tabsync completion fish > ~/.config/fish/completions/tabsync.fish

Notes:
  After installing completions, restart your shell or source your rc file.

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		errors.FatalError(errors.NewInputError(
			"Invalid arguments",
			"The completion command requires exactly one argument: the shell name",
			"Run 'tabsync completion bash', 'tabsync completion zsh', or 'tabsync completion fish'",
		), false)
	}

	shell := fs.Arg(0)

	switch shell {
	case "bash":
		fmt.Print(bashCompletionTemplate)
	case "zsh":
		fmt.Print(zshCompletionTemplate)
	case "fish":
		fmt.Print(fishCompletionTemplate)
	default:
		errors.FatalError(errors.NewInputError(
			"Unsupported shell",
			fmt.Sprintf("%q is not a supported shell", shell),
			"Supported shells: bash, zsh, fish",
		), false)
	}
}
