// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package wsapi is a thin client for the hosted workspace API.
//
// It covers the handful of endpoints tabsync needs: database schema
// reads and writes, paginated row queries, page creation and update,
// user listing and file uploads. Mutating calls that are safe to repeat
// (page creation, database creation, file uploads) run under an
// exponential backoff retry policy; reads and page updates are
// single-shot so callers can react to conflicts themselves.
//
// API failures are returned as *Error values carrying the HTTP status
// and the machine-readable error code from the response body. Callers
// classify them with IsConflict, IsNotFound and friends instead of
// matching message text.
package wsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultAPIVersion is the wire protocol version sent with every
// request when the configuration does not pin one.
const DefaultAPIVersion = "2022-06-28"

// Config carries everything needed to build a Client.
type Config struct {
	// BaseURL is the API endpoint, e.g. "https://api.example.com/v1".
	BaseURL string

	// Token is the integration token used as a bearer credential.
	Token string

	// APIVersion overrides DefaultAPIVersion when set.
	APIVersion string

	// HTTPClient overrides the default client (60s timeout) when set.
	HTTPClient *http.Client

	// Retry is the backoff policy for retryable calls. A zero
	// MaxRetries disables retrying.
	Retry RetryPolicy

	Logger *slog.Logger
}

// Client talks to one workspace with one credential. Methods are safe
// for concurrent use; Clone gives each upload worker its own instance.
type Client struct {
	baseURL    string
	token      string
	apiVersion string
	http       *http.Client
	retry      RetryPolicy
	log        *slog.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("wsapi: base URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("wsapi: token is required")
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	retry := cfg.Retry
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = DefaultRetryPolicy().BaseDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		apiVersion: apiVersion,
		http:       httpClient,
		retry:      retry,
		log:        logger,
	}, nil
}

// Clone returns a client with its own HTTP client state for use by a
// single worker. The underlying transport and its connection pool are
// shared.
func (c *Client) Clone() *Client {
	dup := *c
	httpCopy := *c.http
	dup.http = &httpCopy
	return &dup
}

// call runs one API operation. When retryable is set, transient
// failures are retried under the client's backoff policy and the
// terminal error reports how many attempts were made.
func (c *Client) call(ctx context.Context, op, method, path string, body, out any, retryable bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	run := func(ctx context.Context) error {
		start := time.Now()
		err := c.roundTrip(ctx, method, path, payload, out)
		recordAPIRequest(op, err, time.Since(start))
		return err
	}
	if !retryable {
		return run(ctx)
	}
	return c.withRetry(ctx, op, run)
}

// withRetry runs fn under the client's backoff policy. Non-retryable
// failures return immediately; a retryable failure on the last attempt
// is wrapped with the attempt count.
func (c *Client) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := c.retry.MaxRetries + 1

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			sleep := c.retry.Delay(attempt - 1)
			recordAPIRetry()
			c.log.Warn("api.request.retry",
				"op", op,
				"attempt", attempt+1,
				"max_attempts", attempts,
				"sleep_ms", sleep.Milliseconds(),
				"error", lastErr)
			if err := sleepContext(ctx, sleep); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !Retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-API-Version", c.apiVersion)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return apiError(resp, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// apiError builds a structured *Error from an error response body of
// the form {"object":"error","code":...,"message":...}.
func apiError(resp *http.Response, body []byte) error {
	var wire struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &wire)
	if wire.Message == "" {
		wire.Message = strings.TrimSpace(string(body))
	}
	return &Error{
		Status:    resp.StatusCode,
		Code:      wire.Code,
		Message:   wire.Message,
		RequestID: resp.Header.Get("X-Request-Id"),
	}
}
