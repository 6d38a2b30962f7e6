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

// Package contract centralizes the workspace API limits tabsync must honor.
//
// The hosted API enforces hard caps on query page sizes and attachment
// uploads. Client code (pkg/wsapi, pkg/collection) reads the limits from
// here instead of scattering magic numbers, and tests can tighten them via
// environment variables to exercise edge behavior without multi-megabyte
// fixtures.
//
// # Upload Limits
//
// Attachments up to SinglePartUploadBytes (20 MiB) go up in one request;
// anything larger uses the multi-part flow up to MaxUploadBytes (100 MiB):
//
//	if err := contract.ValidateUploadSize(info.Size()); err != nil {
//	    return err
//	}
//
// # Configuration via Environment
//
// TABSYNC_MAX_UPLOAD_BYTES overrides the upload cap, which is useful for
// self-hosted API deployments with different limits:
//
//	export TABSYNC_MAX_UPLOAD_BYTES=268435456  # 256 MiB
//
// If the variable is unset or invalid, MaxUploadBytes applies.
package contract
