// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package rowsource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// readJSON parses an array of flat objects. Column order follows the
// first object; later objects may omit columns (padded empty) and
// their extra keys are ignored. Scalar values are stringified the way
// they appear in the document; arrays flatten to comma separated
// lists so downstream multi-value parsing recovers them.
func readJSON(r io.Reader) ([]string, []Record, error) {
	var items []json.RawMessage
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, nil, fmt.Errorf("parse JSON: %w", err)
	}
	if len(items) == 0 {
		return nil, nil, errors.New("input has no rows")
	}

	columns, err := objectKeys(items[0])
	if err != nil {
		return nil, nil, fmt.Errorf("row 1: %w", err)
	}
	known := make(map[string]bool, len(columns))
	for _, col := range columns {
		known[col] = true
	}

	rows := make([]Record, 0, len(items))
	for i, item := range items {
		dec := json.NewDecoder(bytes.NewReader(item))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i+1, err)
		}

		row := make(Record, len(columns))
		for _, col := range columns {
			row[col] = ""
		}
		for k, v := range obj {
			if !known[k] {
				continue
			}
			s, err := flattenValue(v)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d: column %q: %w", i+1, k, err)
			}
			row[k] = s
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

// objectKeys walks one object's tokens to recover its keys in document
// order, which a map decode would lose.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("rows must be JSON objects")
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.New("rows must be JSON objects")
		}
		keys = append(keys, key)
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

func flattenValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			s, err := flattenValue(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ", "), nil
	default:
		return "", errors.New("nested objects are not supported")
	}
}
