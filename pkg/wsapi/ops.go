// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package wsapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kraklabs/tabsync/internal/contract"
)

// Me returns the user behind the configured token. It is the cheapest
// way to validate a credential.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.call(ctx, "users.me", http.MethodGet, "/users/me", nil, &u, false); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns every member and bot of the workspace, following
// pagination cursors until the listing is complete.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	cursor := ""
	for {
		q := url.Values{}
		q.Set("page_size", fmt.Sprint(contract.MaxQueryPageSize))
		if cursor != "" {
			q.Set("start_cursor", cursor)
		}
		var page userList
		if err := c.call(ctx, "users.list", http.MethodGet, "/users?"+q.Encode(), nil, &page, false); err != nil {
			return nil, err
		}
		users = append(users, page.Results...)
		if !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return users, nil
}

// GetDatabase fetches a collection descriptor, including its schema.
func (c *Client) GetDatabase(ctx context.Context, id string) (*Database, error) {
	var db Database
	if err := c.call(ctx, "databases.get", http.MethodGet, "/databases/"+id, nil, &db, false); err != nil {
		return nil, err
	}
	return &db, nil
}

// CreateDatabase creates a collection under a parent page. The call is
// retried on transient failures.
func (c *Client) CreateDatabase(ctx context.Context, req CreateDatabaseRequest) (*Database, error) {
	var db Database
	if err := c.call(ctx, "databases.create", http.MethodPost, "/databases", req, &db, true); err != nil {
		return nil, err
	}
	return &db, nil
}

// UpdateDatabase patches a collection schema. Single-shot: an option
// push that loses a race surfaces the conflict to the caller, who
// holds the option lock and decides what to do.
func (c *Client) UpdateDatabase(ctx context.Context, id string, req UpdateDatabaseRequest) (*Database, error) {
	var db Database
	if err := c.call(ctx, "databases.update", http.MethodPatch, "/databases/"+id, req, &db, false); err != nil {
		return nil, err
	}
	return &db, nil
}

// QueryDatabase fetches one page of rows. PageSize is clamped to the
// API maximum; callers follow HasMore/NextCursor for the rest.
func (c *Client) QueryDatabase(ctx context.Context, id string, req QueryRequest) (*QueryResult, error) {
	if req.PageSize <= 0 {
		req.PageSize = contract.MaxQueryPageSize
	}
	req.PageSize = contract.ClampPageSize(req.PageSize)

	var result QueryResult
	if err := c.call(ctx, "databases.query", http.MethodPost, "/databases/"+id+"/query", req, &result, false); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreatePage adds a row to a collection. The call is retried on
// transient failures.
func (c *Client) CreatePage(ctx context.Context, req CreatePageRequest) (*Page, error) {
	var page Page
	if err := c.call(ctx, "pages.create", http.MethodPost, "/pages", req, &page, true); err != nil {
		return nil, err
	}
	return &page, nil
}

// UpdatePage patches a row. Single-shot: a 409 means another writer
// saved the page between our read and this write, and the upload
// engine recovers by refetching and reapplying.
func (c *Client) UpdatePage(ctx context.Context, id string, req UpdatePageRequest) (*Page, error) {
	var page Page
	if err := c.call(ctx, "pages.update", http.MethodPatch, "/pages/"+id, req, &page, false); err != nil {
		return nil, err
	}
	return &page, nil
}

// AppendBlockChildren appends content blocks (e.g. embedded images) to
// a page body.
func (c *Client) AppendBlockChildren(ctx context.Context, blockID string, children []any) error {
	body := map[string]any{"children": children}
	return c.call(ctx, "blocks.children.append", http.MethodPatch, "/blocks/"+blockID+"/children", body, nil, false)
}
