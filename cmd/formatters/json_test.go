package formatters

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestGetFormatter(t *testing.T) {
	t.Run("KnownFormats", func(t *testing.T) {
		for _, format := range []string{FormatJSON, FormatParquet} {
			if _, err := GetFormatter(format); err != nil {
				t.Fatalf("format %s should be supported: %v", format, err)
			}
		}
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		_, err := GetFormatter("csv")
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("expected ErrUnsupportedFormat, got: %v", err)
		}
	})

	t.Run("UnknownFormatWithCompression", func(t *testing.T) {
		_, err := GetFormatterWithCompression("avro", "zstd")
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("expected ErrUnsupportedFormat, got: %v", err)
		}
	})
}

func TestUsesInternalCompression(t *testing.T) {
	if UsesInternalCompression(FormatJSON) {
		t.Fatal("json output is compressed externally")
	}
	if !UsesInternalCompression(FormatParquet) {
		t.Fatal("parquet handles compression internally")
	}
}

func TestJSONFormatter(t *testing.T) {
	formatter := NewJSONFormatter()

	t.Run("OneObjectPerLine", func(t *testing.T) {
		rows := []map[string]interface{}{
			{"id": 1, "name": "first"},
			{"id": 2, "name": "second"},
		}

		data, err := formatter.Format(rows)
		if err != nil {
			t.Fatalf("format failed: %v", err)
		}

		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		if len(lines) != 2 {
			t.Fatalf("expected 2 lines, got %d", len(lines))
		}
		for _, line := range lines {
			if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
				t.Fatalf("each line must be a self-contained object, got: %s", line)
			}
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		rows := []map[string]interface{}{
			{
				"id":         float64(1),
				"created_at": "2024-01-01T10:00:00Z",
				"context":    map[string]interface{}{"ip": "10.0.0.1", "depth": float64(2)},
				"tags":       []interface{}{"a", "b"},
			},
		}

		data, err := formatter.Format(rows)
		if err != nil {
			t.Fatalf("format failed: %v", err)
		}

		read, err := NewJSONReader(bytes.NewReader(data)).ReadAll()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if len(read) != 1 {
			t.Fatalf("expected 1 row, got %d", len(read))
		}
		if read[0]["id"] != float64(1) {
			t.Fatalf("id not preserved: %v", read[0]["id"])
		}
		context, ok := read[0]["context"].(map[string]interface{})
		if !ok {
			t.Fatalf("nested structure should survive the round trip, got %T", read[0]["context"])
		}
		if context["ip"] != "10.0.0.1" {
			t.Fatalf("nested value not preserved: %v", context)
		}
	})

	t.Run("EmptyRows", func(t *testing.T) {
		data, err := formatter.Format(nil)
		if err != nil {
			t.Fatalf("format failed: %v", err)
		}
		if len(data) != 0 {
			t.Fatalf("empty input should produce empty output, got %d bytes", len(data))
		}
	})

	t.Run("Metadata", func(t *testing.T) {
		if formatter.Extension() != ".json" {
			t.Fatalf("unexpected extension: %s", formatter.Extension())
		}
		if formatter.MIMEType() != "application/x-ndjson" {
			t.Fatalf("unexpected MIME type: %s", formatter.MIMEType())
		}
	})
}

func TestJSONReaderSkipsBlankLines(t *testing.T) {
	input := "{\"id\": 1}\n\n{\"id\": 2}\n"
	rows, err := NewJSONReader(strings.NewReader(input)).ReadAll()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
}
