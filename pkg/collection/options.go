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

// EnsureOption adds option to an option-bearing field of the remote
// schema if it is not already there. The check-and-push runs under the
// cache lock so concurrent coercions on the same cache cannot push the
// same option twice; an option that already exists is a no-op.
//
// Cache implements property.OptionCreator.
func (c *Cache) EnsureOption(ctx context.Context, field property.Field, option string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	schema, err := c.schemaLocked(ctx)
	if err != nil {
		return err
	}
	current, ok := schema[field.Name]
	if !ok {
		return fmt.Errorf("column %q not found in collection", field.Name)
	}
	if !current.Type.OptionBearing() {
		return fmt.Errorf("column %q is %s, not an option column", field.Name, current.Type)
	}
	if current.HasOption(option) {
		return nil
	}

	color := "default"
	if c.randomizeColors {
		color = property.RandomColor()
	}

	options := make([]wsapi.SelectOption, 0, len(current.Options)+1)
	for _, o := range current.Options {
		options = append(options, wsapi.SelectOption{ID: o.ID, Name: o.Name, Color: o.Color})
	}
	options = append(options, wsapi.SelectOption{Name: option, Color: color})

	req := wsapi.UpdateDatabaseRequest{
		Properties: map[string]any{
			field.Name: map[string]any{
				string(current.Type): map[string]any{"options": options},
			},
		},
	}
	if _, err := c.client.UpdateDatabase(ctx, c.id, req); err != nil {
		if wsapi.IsConflict(err) {
			return c.recheckOptionLocked(ctx, field.Name, option, err)
		}
		return fmt.Errorf("push option %q to column %q: %w", option, field.Name, err)
	}

	// Drop the cached schema so the next read sees the option with its
	// server-assigned id.
	c.db = nil
	c.schema = nil

	c.log.Debug("collection.option.added",
		"database_id", c.id, "column", field.Name, "option", option, "color", color)
	return nil
}

// recheckOptionLocked resolves a lost option-push race. Another writer
// changed the schema under us; if its change included this option the
// ensure is satisfied, otherwise the conflict stands.
func (c *Cache) recheckOptionLocked(ctx context.Context, column, option string, pushErr error) error {
	c.db = nil
	c.schema = nil

	schema, err := c.schemaLocked(ctx)
	if err != nil {
		return fmt.Errorf("push option %q to column %q: %w", option, column, pushErr)
	}
	if current, ok := schema[column]; ok && current.HasOption(option) {
		c.log.Debug("collection.option.race_won_elsewhere",
			"database_id", c.id, "column", column, "option", option)
		return nil
	}
	return fmt.Errorf("push option %q to column %q: %w", option, column, pushErr)
}
