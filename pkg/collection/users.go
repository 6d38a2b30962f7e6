// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package collection

import (
	"context"
	"fmt"

	"github.com/kraklabs/tabsync/pkg/property"
	"github.com/kraklabs/tabsync/pkg/wsapi"
)

// Users lists the workspace members, fetching them on first use.
func (c *Cache) Users(ctx context.Context) ([]wsapi.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.users != nil {
		return c.users, nil
	}
	users, err := c.client.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	if users == nil {
		users = []wsapi.User{}
	}
	c.users = users
	return c.users, nil
}

// FindUser resolves a person cell to a workspace user by exact name or
// email.
func (c *Cache) FindUser(ctx context.Context, nameOrEmail string) (*wsapi.User, bool, error) {
	users, err := c.Users(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range users {
		u := &users[i]
		if u.Name == nameOrEmail {
			return u, true, nil
		}
		if u.Person != nil && u.Person.Email == nameOrEmail {
			return u, true, nil
		}
	}
	return nil, false, nil
}

// Relation returns a cache over the collection a relation field points
// at, building it lazily and reusing it across rows.
func (c *Cache) Relation(ctx context.Context, field property.Field) (*Cache, error) {
	if field.Type != property.TypeRelation {
		return nil, fmt.Errorf("column %q is %s, not a relation", field.Name, field.Type)
	}
	if field.RelationID == "" {
		return nil, fmt.Errorf("column %q has no target collection", field.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if rel, ok := c.rels[field.Name]; ok {
		return rel, nil
	}
	rel := New(c.client, field.RelationID, Options{
		RandomizeColors: c.randomizeColors,
		Logger:          c.log,
	})
	c.rels[field.Name] = rel
	return rel, nil
}
