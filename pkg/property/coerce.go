// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package property

import (
	"context"
	"fmt"
	"log/slog"
)

// OptionCreator adds a missing option to an option-bearing field of the
// remote schema. Implementations must be safe for concurrent use and
// must tolerate the option already existing.
type OptionCreator interface {
	EnsureOption(ctx context.Context, field Field, option string) error
}

// Coercer converts parsed cell values into wire property objects.
//
// Unknown select, multi_select and status options are created through
// Options before the value is used. When creation fails the value is
// dropped and the row still uploads without it, unless Strict is set,
// in which case the row fails.
type Coercer struct {
	Options OptionCreator
	Strict  bool
	Log     *slog.Logger
}

func (c *Coercer) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

// Value returns the wire form of v for field f. A nil result with a
// nil error means the property is omitted from the row payload.
func (c *Coercer) Value(ctx context.Context, f Field, v any) (any, error) {
	switch f.Type {
	case TypeTitle:
		return textValue("title", v), nil
	case TypeNumber:
		return numberValue(v), nil
	case TypeCheckbox:
		return map[string]any{"checkbox": boolValue(v)}, nil
	case TypeDate:
		return dateValue(v)
	case TypeURL, TypeEmail, TypePhone:
		if isEmptyValue(v) {
			return nil, nil
		}
		return map[string]any{string(f.Type): asString(v)}, nil
	case TypeSelect, TypeStatus:
		return c.optionValue(ctx, f, v)
	case TypeMultiSelect:
		return c.multiOptionValue(ctx, f, v)
	case TypeFiles:
		return filesValue(v)
	case TypePeople:
		return map[string]any{"people": peopleRefs(v)}, nil
	case TypeRelation:
		return map[string]any{"relation": idRefs(v)}, nil
	default:
		return textValue("rich_text", v), nil
	}
}

// optionValue handles select and status fields, which share the same
// wire shape and option semantics.
func (c *Coercer) optionValue(ctx context.Context, f Field, v any) (any, error) {
	if isEmptyValue(v) {
		return nil, nil
	}
	name := asString(v)
	if err := c.ensure(ctx, f, name); err != nil {
		if c.Strict {
			return nil, err
		}
		c.logger().Warn("property.option.rejected",
			"column", f.Name, "option", name, "error", err)
		return nil, nil
	}
	return map[string]any{string(f.Type): map[string]any{"name": name}}, nil
}

func (c *Coercer) multiOptionValue(ctx context.Context, f Field, v any) (any, error) {
	names := asStringList(v)
	accepted := make([]any, 0, len(names))
	for _, name := range names {
		if err := c.ensure(ctx, f, name); err != nil {
			if c.Strict {
				return nil, err
			}
			c.logger().Warn("property.option.rejected",
				"column", f.Name, "option", name, "error", err)
			continue
		}
		accepted = append(accepted, map[string]any{"name": name})
	}
	return map[string]any{"multi_select": accepted}, nil
}

func (c *Coercer) ensure(ctx context.Context, f Field, name string) error {
	if f.HasOption(name) || c.Options == nil {
		return nil
	}
	if err := c.Options.EnsureOption(ctx, f, name); err != nil {
		return fmt.Errorf("column %q: cannot add option %q: %w", f.Name, name, err)
	}
	return nil
}

func textValue(kind string, v any) map[string]any {
	if isEmptyValue(v) {
		return map[string]any{kind: []any{}}
	}
	return map[string]any{kind: []any{
		map[string]any{"text": map[string]any{"content": asString(v)}},
	}}
}

// numberValue keeps int64 and float64 apart so integers round-trip
// without a decimal point. Unparseable values are dropped, matching
// the lenient path of the row converter; strict parse failures are
// caught there before coercion.
func numberValue(v any) any {
	switch n := v.(type) {
	case nil:
		return nil
	case int:
		return map[string]any{"number": int64(n)}
	case int64:
		return map[string]any{"number": n}
	case float64:
		return map[string]any{"number": n}
	case string:
		if n == "" {
			return nil
		}
		parsed, err := ParseNumber(n)
		if err != nil {
			return nil
		}
		return map[string]any{"number": parsed}
	default:
		return nil
	}
}

func boolValue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return ParseCheckbox(b)
	default:
		return false
	}
}

// dateValue wraps an already-parsed date without re-wrapping: a
// DateValue goes on the wire as-is, and a bare string is taken as the
// start instant.
func dateValue(v any) (any, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case DateValue:
		return map[string]any{"date": d}, nil
	case *DateValue:
		if d == nil {
			return nil, nil
		}
		return map[string]any{"date": *d}, nil
	case map[string]any:
		start, _ := d["start"].(string)
		if start == "" {
			return nil, nil
		}
		end, _ := d["end"].(string)
		return map[string]any{"date": DateValue{Start: start, End: end}}, nil
	case string:
		if d == "" {
			return nil, nil
		}
		return map[string]any{"date": DateValue{Start: d}}, nil
	default:
		return nil, fmt.Errorf("cannot use %T as a date value", v)
	}
}

func filesValue(v any) (any, error) {
	var refs []FileRef
	switch t := v.(type) {
	case nil:
		return map[string]any{"files": []any{}}, nil
	case FileRef:
		refs = []FileRef{t}
	case []FileRef:
		refs = t
	case string:
		if t == "" {
			return map[string]any{"files": []any{}}, nil
		}
		refs = []FileRef{RefForValue(t)}
	case []string:
		for _, s := range t {
			refs = append(refs, RefForValue(s))
		}
	default:
		return nil, fmt.Errorf("cannot use %T as a files value", v)
	}

	wire := make([]any, 0, len(refs))
	for _, r := range refs {
		if !r.Uploaded() {
			return nil, fmt.Errorf("attachment %q has not been uploaded", r.Name)
		}
		wire = append(wire, r.Wire())
	}
	return map[string]any{"files": wire}, nil
}

func peopleRefs(v any) []any {
	ids := asStringList(v)
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, map[string]any{"object": "user", "id": id})
	}
	return out
}

func idRefs(v any) []any {
	ids := asStringList(v)
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, map[string]any{"id": id})
	}
	return out
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func asStringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, asString(item))
		}
		return out
	default:
		return []string{asString(v)}
	}
}
