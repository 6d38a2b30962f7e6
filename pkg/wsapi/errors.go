// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package wsapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
)

// Error is a failed API call. Status and Code come from the response;
// RequestID identifies the request in workspace-side logs.
type Error struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("workspace API error (status %d, %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("workspace API error (status %d): %s", e.Status, e.Message)
}

// AsError extracts the *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

func statusIs(err error, status int) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.Status == status
}

// IsConflict reports whether the call lost a concurrent-save race.
func IsConflict(err error) bool {
	if statusIs(err, 409) {
		return true
	}
	apiErr, ok := AsError(err)
	return ok && apiErr.Code == "conflict_error"
}

// IsNotFound reports whether the target object does not exist or is
// not shared with the integration.
func IsNotFound(err error) bool {
	return statusIs(err, 404)
}

// IsUnauthorized reports whether the credential was rejected.
func IsUnauthorized(err error) bool {
	return statusIs(err, 401)
}

// IsForbidden reports whether the credential lacks access to the
// target object.
func IsForbidden(err error) bool {
	return statusIs(err, 403)
}

// IsRateLimited reports whether the workspace asked us to slow down.
func IsRateLimited(err error) bool {
	return statusIs(err, 429)
}

// IsValidation reports whether the request body was rejected.
func IsValidation(err error) bool {
	return statusIs(err, 400)
}

// Retryable classifies an error for the backoff policy. Server errors,
// rate limits and save conflicts are transient; other API errors are
// permanent. Transport-level failures (timeouts, refused or reset
// connections) are transient unless the caller's context was canceled.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if apiErr, ok := AsError(err); ok {
		return apiErr.Status >= 500 || apiErr.Status == 429 || apiErr.Status == 409
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
