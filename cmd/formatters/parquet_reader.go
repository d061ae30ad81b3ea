package formatters

import (
	"bytes"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// ParquetReader reads Parquet format
type ParquetReader struct {
	file *parquet.File
}

// NewParquetReader creates a new Parquet reader.
// Note: Parquet requires io.ReaderAt, so we read the entire file into memory.
func NewParquetReader(r io.Reader) (*ParquetReader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet data: %w", err)
	}

	readerAt := bytes.NewReader(data)

	file, err := parquet.OpenFile(readerAt, int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	return &ParquetReader{file: file}, nil
}

// ReadAll reads all rows from the Parquet file
func (r *ParquetReader) ReadAll() ([]map[string]interface{}, error) {
	var rows []map[string]interface{}

	schema := r.file.Schema()
	columnPaths := schema.Columns()

	columnNames := make([]string, len(columnPaths))
	for i, path := range columnPaths {
		if len(path) > 0 {
			columnNames[i] = path[len(path)-1]
		}
	}

	for _, rowGroup := range r.file.RowGroups() {
		rowReader := rowGroup.Rows()

		for {
			batch := make([]parquet.Row, 1000)
			n, err := rowReader.ReadRows(batch)
			if n > 0 {
				for rowIdx := 0; rowIdx < n; rowIdx++ {
					rows = append(rows, parquetRowToMap(batch[rowIdx], columnNames))
				}
			}
			if err == io.EOF || n == 0 {
				break
			}
			if err != nil {
				rowReader.Close()
				return nil, fmt.Errorf("failed to read parquet rows: %w", err)
			}
		}

		if err := rowReader.Close(); err != nil {
			return nil, fmt.Errorf("failed to close parquet row reader: %w", err)
		}
	}

	return rows, nil
}

// parquetRowToMap converts one parquet.Row into a column-name keyed map.
func parquetRowToMap(parquetRow parquet.Row, columnNames []string) map[string]interface{} {
	row := make(map[string]interface{})

	for i, val := range parquetRow {
		if i >= len(columnNames) {
			break
		}
		if val.IsNull() {
			row[columnNames[i]] = nil
			continue
		}
		switch val.Kind() {
		case parquet.Boolean:
			row[columnNames[i]] = val.Boolean()
		case parquet.Int32:
			row[columnNames[i]] = val.Int32()
		case parquet.Int64:
			row[columnNames[i]] = val.Int64()
		case parquet.Float:
			row[columnNames[i]] = val.Float()
		case parquet.Double:
			row[columnNames[i]] = val.Double()
		case parquet.ByteArray:
			row[columnNames[i]] = string(val.ByteArray())
		default:
			row[columnNames[i]] = string(val.ByteArray())
		}
	}

	return row
}
