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

// Package testing provides test helpers for tabsync integration tests.
//
// The centerpiece is a fake workspace API: an in-process HTTP server
// that speaks the same wire protocol as the hosted service (databases,
// pages, queries, users, file uploads) against in-memory state. Tests
// drive the real client and collection code against it without network
// access or a live workspace.
//
// # Quick Start
//
// Use SetupWorkspace to start a fake workspace, then seed it:
//
//	func TestMyFeature(t *testing.T) {
//	    w := testing.SetupWorkspace(t)
//	    client := w.Client(t)
//
//	    dbID := w.SeedDatabase(t, "Tasks", map[string]string{
//	        "Name":  "title",
//	        "Stage": "select",
//	    })
//	    w.SeedRow(t, dbID, "Existing task")
//
//	    // Exercise client / collection code against dbID...
//	}
//
// # Seeding State
//
// Seed helpers write straight into the fake's state, bypassing the
// HTTP surface:
//   - SeedDatabase: create a collection with a named schema
//   - SeedRow: add a row holding only its title
//   - SeedOptions: append options to a select/multi_select/status column
//   - SeedRelationColumn: add a relation column pointing at another collection
//   - SeedUser: add a workspace member
//
// # Failure Injection
//
// The fake can misbehave on demand to exercise error paths:
//   - ConflictNextCreates / ConflictNextUpdates: answer 409 to the next
//     n page writes, simulating a concurrent writer
//   - BreakQueriesAfter: let n more queries through, then answer 503
//     until Heal is called
//
// # Observing Traffic
//
// Calls counts requests per operation, QueryCursors records the cursor
// of every query seen, and Page/OptionNames/RowCount snapshot the state
// a test just wrote through the client.
package testing
