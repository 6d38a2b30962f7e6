// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package property

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/gomoji"
)

// SplitList splits a multi-value cell on sep, trimming whitespace and
// dropping empty items.
func SplitList(s, sep string) []string {
	if sep == "" {
		sep = ","
	}
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ParseCheckbox maps a cell to a boolean. Only the literal "true" is
// truthy; everything else, including the empty string, is false.
func ParseCheckbox(s string) bool {
	return s == "true"
}

// ParseNumber parses a numeric cell, keeping integral values as int64
// so they round-trip without a decimal point.
func ParseNumber(s string) (any, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("not a finite number: %q", s)
	}
	if f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
		return int64(f), nil
	}
	return f, nil
}

// dateLayouts are tried in order when parsing a date cell. Layouts
// with a clock component come first so timestamps are not truncated
// to their date part.
var dateLayouts = []struct {
	layout   string
	hasClock bool
	hasZone  bool
}{
	{time.RFC3339, true, true},
	{"2006-01-02T15:04:05", true, false},
	{"2006-01-02 15:04:05", true, false},
	{"2006-01-02 15:04", true, false},
	{"01/02/2006 15:04", true, false},
	{"2006-01-02", false, false},
	{"2006/01/02", false, false},
	{"01/02/2006", false, false},
	{"Jan 2, 2006", false, false},
	{"January 2, 2006", false, false},
	{"2 Jan 2006", false, false},
	{"02.01.2006", false, false},
}

func parseInstant(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, l := range dateLayouts {
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		switch {
		case l.hasZone:
			return t.Format(time.RFC3339), nil
		case l.hasClock:
			return t.Format("2006-01-02T15:04:05"), nil
		default:
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}

// ParseDate parses a date cell. A cell holds one instant, or two
// comma-separated instants forming a range.
func ParseDate(s string) (DateValue, error) {
	parts := SplitList(s, ",")

	switch {
	case len(parts) == 0:
		return DateValue{}, fmt.Errorf("date cell is empty")
	case len(parts) > 2:
		return DateValue{}, fmt.Errorf("date cell has %d values, at most 2 (start, end) are supported", len(parts))
	}

	start, err := parseInstant(parts[0])
	if err != nil {
		return DateValue{}, err
	}
	d := DateValue{Start: start}

	if len(parts) == 2 {
		end, err := parseInstant(parts[1])
		if err != nil {
			return DateValue{}, err
		}
		d.End = end
	}
	return d, nil
}

// ParseIcon interprets an icon cell: a cell that is exactly one emoji
// and nothing else becomes an emoji icon, anything else is an image
// URL or a local image path.
func ParseIcon(s string) Icon {
	if e, ok := singleEmoji(s); ok {
		return Icon{Emoji: e}
	}
	return Icon{File: RefForValue(s)}
}

func singleEmoji(s string) (string, bool) {
	if strings.TrimSpace(gomoji.RemoveEmojis(s)) != "" {
		return "", false
	}
	found := gomoji.FindAll(s)
	if len(found) != 1 {
		return "", false
	}
	return found[0].Character, true
}
