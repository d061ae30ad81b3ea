package formatters

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// JSONReader reads newline-delimited JSON (one object per line)
type JSONReader struct {
	scanner *bufio.Scanner
}

// NewJSONReader creates a new newline-delimited JSON reader
func NewJSONReader(r io.Reader) *JSONReader {
	return &JSONReader{
		scanner: bufio.NewScanner(r),
	}
}

// ReadAll reads all remaining rows from the stream
func (r *JSONReader) ReadAll() ([]map[string]interface{}, error) {
	var rows []map[string]interface{}

	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 {
			continue // Skip empty lines
		}

		var row map[string]interface{}
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("failed to parse JSON line: %w", err)
		}

		rows = append(rows, row)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}

	return rows, nil
}
