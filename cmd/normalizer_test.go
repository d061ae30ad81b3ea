package cmd

import (
	"reflect"
	"testing"
)

func TestDecodeNestedValue(t *testing.T) {
	t.Run("DecodesEncodedObject", func(t *testing.T) {
		result := decodeNestedValue(`{"user_id": 42, "source": "api"}`)
		decoded, ok := result.(map[string]interface{})
		if !ok {
			t.Fatalf("expected map, got %T", result)
		}
		if decoded["source"] != "api" {
			t.Fatalf("unexpected decoded value: %v", decoded)
		}
	})

	t.Run("DecodesDoubleEncodedObject", func(t *testing.T) {
		// The value went through JSON encoding twice: the column holds a
		// JSON string whose content is itself a JSON object.
		result := decodeNestedValue(`"{\"a\": 1}"`)
		decoded, ok := result.(map[string]interface{})
		if !ok {
			t.Fatalf("expected map after double decode, got %T (%v)", result, result)
		}
		if decoded["a"] != float64(1) {
			t.Fatalf("unexpected decoded value: %v", decoded)
		}
	})

	t.Run("DecodesEncodedArray", func(t *testing.T) {
		result := decodeNestedValue(`[1, 2, 3]`)
		decoded, ok := result.([]interface{})
		if !ok {
			t.Fatalf("expected slice, got %T", result)
		}
		if len(decoded) != 3 {
			t.Fatalf("unexpected decoded value: %v", decoded)
		}
	})

	t.Run("PlainStringUnchanged", func(t *testing.T) {
		result := decodeNestedValue("hello world")
		if result != "hello world" {
			t.Fatalf("plain string should pass through, got %v", result)
		}
	})

	t.Run("MalformedJSONFallsBack", func(t *testing.T) {
		result := decodeNestedValue(`{"broken": `)
		if result != `{"broken": ` {
			t.Fatalf("malformed value should be returned unchanged, got %v", result)
		}
	})

	t.Run("NonStringUnchanged", func(t *testing.T) {
		for _, value := range []interface{}{42, 3.14, true, nil, map[string]interface{}{"a": 1}} {
			result := decodeNestedValue(value)
			if !reflect.DeepEqual(result, value) {
				t.Fatalf("non-string value %v should pass through, got %v", value, result)
			}
		}
	})
}

func TestNormalizeRows(t *testing.T) {
	t.Run("NormalizesConfiguredColumns", func(t *testing.T) {
		rows := []map[string]interface{}{
			{"id": 1, "context": `{"ip": "10.0.0.1"}`, "note": `{"keep": "me"}`},
		}

		normalized := NormalizeRows(rows, []string{"context"})
		context, ok := normalized[0]["context"].(map[string]interface{})
		if !ok {
			t.Fatalf("context should be decoded, got %T", normalized[0]["context"])
		}
		if context["ip"] != "10.0.0.1" {
			t.Fatalf("unexpected context: %v", context)
		}
		// Columns not listed must keep their raw value.
		if normalized[0]["note"] != `{"keep": "me"}` {
			t.Fatalf("unlisted column should stay raw, got %v", normalized[0]["note"])
		}
	})

	t.Run("InputRowsNotMutated", func(t *testing.T) {
		rows := []map[string]interface{}{
			{"id": 1, "context": `{"a": 1}`},
		}

		NormalizeRows(rows, []string{"context"})
		if rows[0]["context"] != `{"a": 1}` {
			t.Fatalf("input row was mutated: %v", rows[0]["context"])
		}
	})

	t.Run("MissingColumnIgnored", func(t *testing.T) {
		rows := []map[string]interface{}{
			{"id": 1},
		}

		normalized := NormalizeRows(rows, []string{"context"})
		if _, present := normalized[0]["context"]; present {
			t.Fatal("normalization must not invent columns")
		}
	})

	t.Run("NoColumnsReturnsInput", func(t *testing.T) {
		rows := []map[string]interface{}{
			{"id": 1, "context": `{"a": 1}`},
		}

		normalized := NormalizeRows(rows, nil)
		if len(normalized) != 1 || normalized[0]["context"] != `{"a": 1}` {
			t.Fatalf("rows should be unchanged when no columns are configured")
		}
	})
}
