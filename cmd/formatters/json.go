package formatters

import (
	"bytes"
	"encoding/json"
)

// JSONFormatter handles newline-delimited JSON output, one self-contained
// object per line.
type JSONFormatter struct{}

// NewJSONFormatter creates a new newline-delimited JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// Format converts rows to newline-delimited JSON. Column names and any nested
// structures produced by normalization are preserved as real JSON values.
func (f *JSONFormatter) Format(rows []map[string]interface{}) ([]byte, error) {
	var buffer bytes.Buffer

	for _, row := range rows {
		jsonData, err := json.Marshal(row)
		if err != nil {
			return nil, err
		}

		buffer.Write(jsonData)
		buffer.WriteByte('\n')
	}

	return buffer.Bytes(), nil
}

// Extension returns the file extension for newline-delimited JSON files
func (f *JSONFormatter) Extension() string {
	return ".json"
}

// MIMEType returns the MIME type for newline-delimited JSON
func (f *JSONFormatter) MIMEType() string {
	return "application/x-ndjson"
}
