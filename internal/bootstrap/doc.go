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

// Package bootstrap wires a tabsync session: configuration, logger,
// API client, token verification.
//
// Every command that talks to the workspace starts the same way, so the
// sequence lives here instead of being repeated per command:
//
//	sess, err := bootstrap.Open(ctx, bootstrap.SessionConfig{
//	    ConfigPath: configPath,
//	    Workers:    workersFlag,
//	})
//	if err != nil {
//	    errors.FatalError(err, jsonMode)
//	}
//	defer sess.Close()
//
//	cache := sess.Collection(databaseID, randomizeColors)
//
// # Precedence
//
// Flags beat environment variables beat the configuration file. The
// config package applies file and environment layers; SessionConfig
// carries the flag layer.
//
// # Token verification
//
// Open probes users/me before returning, so a bad token fails once with
// a permission error instead of failing on the first real write deep in
// an upload run.
//
// # Errors
//
// Open returns *errors.UserError values. Packages below this one return
// plain wrapped errors; this is the layer where they become user-facing
// messages with exit codes.
package bootstrap
