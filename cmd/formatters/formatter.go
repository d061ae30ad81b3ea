package formatters

import (
	"errors"
	"fmt"
)

// Format type constants
const (
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

// ErrUnsupportedFormat is returned when an unsupported output format is requested
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Formatter defines the interface for output format handlers
type Formatter interface {
	// Format converts database rows to the target format
	Format(rows []map[string]interface{}) ([]byte, error)

	// Extension returns the file extension for this format (e.g., ".json", ".parquet")
	Extension() string

	// MIMEType returns the MIME type for this format
	MIMEType() string
}

// GetFormatter returns the appropriate formatter based on the format string.
// An unsupported format fails here, before any file I/O occurs.
func GetFormatter(format string) (Formatter, error) {
	switch format {
	case FormatJSON:
		return NewJSONFormatter(), nil
	case FormatParquet:
		return NewParquetFormatter(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// GetFormatterWithCompression returns the appropriate formatter with compression settings.
// For Parquet, this selects the internal compression codec. For JSON, the
// compression parameter is ignored; JSON output is compressed externally.
func GetFormatterWithCompression(format, compression string) (Formatter, error) {
	switch format {
	case FormatJSON:
		return NewJSONFormatter(), nil
	case FormatParquet:
		return NewParquetFormatterWithCompression(compression), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// UsesInternalCompression returns true if the format handles compression internally
func UsesInternalCompression(format string) bool {
	return format == FormatParquet
}
