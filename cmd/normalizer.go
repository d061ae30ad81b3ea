package cmd

import (
	"encoding/json"
	"strings"
)

// looksEncoded reports whether a textual value plausibly holds a JSON-encoded
// object, array, or string.
func looksEncoded(s string) bool {
	switch {
	case strings.HasPrefix(s, "{"), strings.HasPrefix(s, "["), strings.HasPrefix(s, `"`):
		return true
	}
	return false
}

// decodeNestedValue turns a JSON-encoded string column value into its
// structured form. Values that were encoded twice (a string of a string) are
// decoded a second time. Any decode failure falls back to the original value;
// malformed or legacy rows must never abort a run.
func decodeNestedValue(value interface{}) interface{} {
	raw, ok := value.(string)
	if !ok {
		return value
	}

	trimmed := strings.TrimSpace(raw)
	if !looksEncoded(trimmed) {
		return value
	}

	var decoded interface{}
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return value
	}

	// String-of-a-string: one more decode gets the real structure.
	if inner, isString := decoded.(string); isString {
		var again interface{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(inner)), &again); err != nil {
			return value
		}
		return again
	}

	return decoded
}

// NormalizeRows rewrites the configured columns of each row so that
// JSON-encoded string values become structured values before serialization.
// The input rows are treated as immutable; normalized copies are returned.
func NormalizeRows(rows []map[string]interface{}, columns []string) []map[string]interface{} {
	if len(columns) == 0 {
		return rows
	}

	normalized := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		copied := make(map[string]interface{}, len(row))
		for k, v := range row {
			copied[k] = v
		}
		for _, column := range columns {
			if value, present := copied[column]; present {
				copied[column] = decodeNestedValue(value)
			}
		}
		normalized[i] = copied
	}

	return normalized
}
