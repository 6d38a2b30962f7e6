// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"fmt"
	"os"
	"strconv"
)

const (
	// MaxQueryPageSize is the largest page size the query endpoint accepts.
	MaxQueryPageSize = 100

	// SinglePartUploadBytes is the attachment size ceiling for a
	// single-request upload. Larger files use the multi-part flow.
	SinglePartUploadBytes = 20 << 20 // 20 MiB

	// MaxUploadBytes is the absolute attachment size cap.
	MaxUploadBytes = 100 << 20 // 100 MiB

	// RequestIDMaxBytes is the maximum length for the X-Request-Id header.
	RequestIDMaxBytes = 128
)

// UploadLimitBytes returns the effective attachment size cap.
// Controlled via env TABSYNC_MAX_UPLOAD_BYTES; falls back to MaxUploadBytes.
func UploadLimitBytes() int64 {
	if v := os.Getenv("TABSYNC_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return MaxUploadBytes
}

// ValidateUploadSize checks a file size against the effective upload cap.
func ValidateUploadSize(size int64) error {
	if size == 0 {
		return fmt.Errorf("file is empty")
	}
	if limit := UploadLimitBytes(); size > limit {
		return fmt.Errorf("file size %d exceeds upload limit %d", size, limit)
	}
	return nil
}

// ClampPageSize bounds a requested query page size to what the API accepts.
// Zero or negative requests get the maximum (the API default).
func ClampPageSize(n int) int {
	if n <= 0 || n > MaxQueryPageSize {
		return MaxQueryPageSize
	}
	return n
}
