// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package property

import (
	"regexp"
	"strings"
)

var (
	urlRe   = regexp.MustCompile(`^https?://`)
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)
)

// IsURL reports whether the cell is an http or https URL.
func IsURL(s string) bool {
	return urlRe.MatchString(s)
}

// guessRules are tried in order; the first rule every distinct
// non-empty value satisfies names the column type.
var guessRules = []struct {
	t     Type
	match func(string) bool
}{
	{TypeCheckbox, func(s string) bool { return s == "true" || s == "false" }},
	{TypeNumber, func(s string) bool { _, err := ParseNumber(s); return err == nil }},
	{TypeURL, IsURL},
	{TypeEmail, emailRe.MatchString},
}

// GuessType infers a column type from its values. A column where every
// distinct non-empty cell looks like the same narrow type gets that
// type; anything ambiguous, mixed or entirely empty falls back to plain
// text. It never fails: text accepts everything.
func GuessType(values []string) Type {
	distinct := make(map[string]bool)
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			distinct[v] = true
		}
	}
	if len(distinct) == 0 {
		return TypeText
	}

next:
	for _, rule := range guessRules {
		for v := range distinct {
			if !rule.match(v) {
				continue next
			}
		}
		return rule.t
	}
	return TypeText
}
