// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package wsapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", &Error{Status: 500}, true},
		{"bad gateway", &Error{Status: 502}, true},
		{"rate limited", &Error{Status: 429}, true},
		{"conflict", &Error{Status: 409}, true},
		{"bad request", &Error{Status: 400}, false},
		{"unauthorized", &Error{Status: 401}, false},
		{"forbidden", &Error{Status: 403}, false},
		{"not found", &Error{Status: 404}, false},
		{"wrapped server error", fmt.Errorf("http request: %w", &Error{Status: 503}), true},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"eof", io.EOF, true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifiersUnwrap(t *testing.T) {
	conflict := fmt.Errorf("request failed after 15 attempts: %w", &Error{Status: 409, Code: "conflict_error"})
	if !IsConflict(conflict) {
		t.Error("IsConflict should see through wrapping")
	}
	if IsConflict(errors.New("conflict mentioned in text only")) {
		t.Error("IsConflict must not match message text")
	}

	if !IsUnauthorized(&Error{Status: 401}) || IsUnauthorized(&Error{Status: 403}) {
		t.Error("IsUnauthorized is status 401 only")
	}
	if !IsForbidden(&Error{Status: 403}) {
		t.Error("IsForbidden is status 403")
	}
	if !IsRateLimited(&Error{Status: 429}) {
		t.Error("IsRateLimited is status 429")
	}
	if !IsValidation(&Error{Status: 400}) {
		t.Error("IsValidation is status 400")
	}
}

func TestErrorString(t *testing.T) {
	e := &Error{Status: 409, Code: "conflict_error", Message: "saving in progress"}
	got := e.Error()
	want := "workspace API error (status 409, conflict_error): saving in progress"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	bare := &Error{Status: 500, Message: "boom"}
	if bare.Error() != "workspace API error (status 500): boom" {
		t.Errorf("unexpected bare format: %q", bare.Error())
	}
}
