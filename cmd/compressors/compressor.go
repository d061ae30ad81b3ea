package compressors

import (
	"errors"
	"fmt"
)

// ErrUnsupportedCompression is returned when an unknown compression type is requested
var ErrUnsupportedCompression = errors.New("unsupported compression type")

// Compressor turns one serialized partition into its compressed form.
type Compressor interface {
	// Compress compresses the data at the given level; 0 selects the
	// implementation's default
	Compress(data []byte, level int) ([]byte, error)

	// Extension is the suffix appended after the format extension
	// (".zst", ".lz4", ".gz"; empty for none)
	Extension() string

	// DefaultLevel is the level used when the caller passes 0
	DefaultLevel() int
}

// GetCompressor resolves a compression name to its handler. Unknown names
// fail here, before any partition is serialized.
func GetCompressor(compression string) (Compressor, error) {
	switch compression {
	case "zstd":
		return NewZstdCompressor(), nil
	case "lz4":
		return NewLZ4Compressor(), nil
	case "gzip":
		return NewGzipCompressor(), nil
	case "none":
		return NewNoneCompressor(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, compression)
	}
}
