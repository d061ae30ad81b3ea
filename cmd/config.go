package cmd

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/hashicorp/go-multierror"
)

// Static errors for configuration validation
var (
	ErrDatabaseHostRequired     = errors.New("database host is required")
	ErrDatabaseUserRequired     = errors.New("database user is required")
	ErrDatabasePasswordRequired = errors.New("database password is required")
	ErrDatabaseNameRequired     = errors.New("database name is required")
	ErrDatabasePortInvalid      = errors.New("database port must be between 1 and 65535")
	ErrS3BucketRequired         = errors.New("S3 bucket is required")
	ErrS3AccessKeyRequired      = errors.New("S3 access key is required")
	ErrS3SecretKeyRequired      = errors.New("S3 secret key is required")
	ErrS3RegionRequired         = errors.New("S3 region is required")
	ErrS3RegionInvalid          = errors.New("S3 region contains invalid characters or is too long")
	ErrTableNameRequired        = errors.New("table name is required")
	ErrTableNameInvalid         = errors.New("table name is invalid: must be 1-63 characters, start with a letter or underscore, and contain only letters, numbers, and underscores")
	ErrTimestampColumnRequired  = errors.New("timestamp column is required")
	ErrTimestampColumnInvalid   = errors.New("timestamp column is invalid: must start with a letter or underscore, and contain only letters, numbers, and underscores")
	ErrPrimaryKeyColumnInvalid  = errors.New("primary key column is invalid: must start with a letter or underscore, and contain only letters, numbers, and underscores")
	ErrNestedColumnInvalid      = errors.New("nested column is invalid: must start with a letter or underscore, and contain only letters, numbers, and underscores")
	ErrMinAgeHoursInvalid       = errors.New("minimum age in hours must be >= 0")
	ErrOutputFormatInvalid      = errors.New("output format must be one of: json, parquet")
	ErrCompressionInvalid       = errors.New("compression must be one of: zstd, lz4, gzip, none")
	ErrCompressionLevelInvalid  = errors.New("compression level must be between 0 and 22 (zstd), 0-9 (lz4/gzip)")
	ErrKeyTemplateRequired      = errors.New("object key template is required")
	ErrKeyTemplateInvalid       = errors.New("object key template must contain {table} placeholder")
)

const regionAuto = "auto"

// Output format constants
const (
	FormatJSON    = "json"
	FormatParquet = "parquet"
)

type Config struct {
	Debug            bool
	LogFormat        string
	DryRun           bool
	Database         DatabaseConfig
	S3               S3Config
	Table            string
	TimestampColumn  string
	PrimaryKeyColumn string
	NestedColumns    []string
	MinAgeHours      int
	OutputFormat     string
	Compression      string
	CompressionLevel int
	SpoolDir         string // Directory for serialized partition files ("" = os.TempDir)
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type S3Config struct {
	Endpoint    string
	Bucket      string
	AccessKey   string
	SecretKey   string
	Region      string
	KeyTemplate string
}

// validPostgreSQLIdentifier checks if a string is a valid PostgreSQL identifier
// to prevent SQL injection attacks
var validPostgreSQLIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidTableName validates that a table name is safe to use in SQL queries
func isValidTableName(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	return validPostgreSQLIdentifier.MatchString(name)
}

// isValidRegion validates that an S3 region is reasonable
func isValidRegion(region string) bool {
	if region == "" {
		return false
	}
	if len(region) > 50 {
		return false
	}
	matched, _ := regexp.MatchString(`^[a-zA-Z0-9_-]+$`, region)
	return matched
}

// isValidKeyTemplate validates that an object key template contains required placeholders
func isValidKeyTemplate(template string) bool {
	if template == "" {
		return false
	}
	return regexp.MustCompile(`\{table\}`).MatchString(template)
}

// isValidOutputFormat validates the output format
func isValidOutputFormat(format string) bool {
	validFormats := map[string]bool{
		FormatJSON:    true,
		FormatParquet: true,
	}
	return validFormats[format]
}

// isValidCompression validates the compression type
func isValidCompression(compression string) bool {
	validCompressions := map[string]bool{
		"zstd": true,
		"lz4":  true,
		"gzip": true,
		"none": true,
	}
	return validCompressions[compression]
}

// isValidCompressionLevel validates compression level based on compression type.
// Level 0 means "use the compressor's default".
func isValidCompressionLevel(compression string, level int) bool {
	switch compression {
	case "zstd":
		return level >= 0 && level <= 22
	case "lz4", "gzip":
		return level >= 0 && level <= 9
	case "none":
		return level == 0
	default:
		return false
	}
}

// Validate checks the full configuration and reports every missing or invalid
// setting at once, so operators see the complete list before any connection is
// attempted.
func (c *Config) Validate() error {
	var result *multierror.Error

	// Required database settings
	if c.Database.Host == "" {
		result = multierror.Append(result, ErrDatabaseHostRequired)
	}
	if c.Database.User == "" {
		result = multierror.Append(result, ErrDatabaseUserRequired)
	}
	if c.Database.Password == "" {
		result = multierror.Append(result, ErrDatabasePasswordRequired)
	}
	if c.Database.Name == "" {
		result = multierror.Append(result, ErrDatabaseNameRequired)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("%w, got %d", ErrDatabasePortInvalid, c.Database.Port))
	}

	// Required S3 settings
	if c.S3.Bucket == "" {
		result = multierror.Append(result, ErrS3BucketRequired)
	}
	if c.S3.AccessKey == "" {
		result = multierror.Append(result, ErrS3AccessKeyRequired)
	}
	if c.S3.SecretKey == "" {
		result = multierror.Append(result, ErrS3SecretKeyRequired)
	}
	if c.S3.Region == "" {
		result = multierror.Append(result, ErrS3RegionRequired)
	} else if c.S3.Region != regionAuto && !isValidRegion(c.S3.Region) {
		result = multierror.Append(result, fmt.Errorf("%w: %s", ErrS3RegionInvalid, c.S3.Region))
	}

	// Table and column names are interpolated into SQL, so they must be valid
	// identifiers even though they are quoted.
	if c.Table == "" {
		result = multierror.Append(result, ErrTableNameRequired)
	} else if !isValidTableName(c.Table) {
		result = multierror.Append(result, fmt.Errorf("%w: '%s'", ErrTableNameInvalid, c.Table))
	}

	if c.TimestampColumn == "" {
		result = multierror.Append(result, ErrTimestampColumnRequired)
	} else if !validPostgreSQLIdentifier.MatchString(c.TimestampColumn) {
		result = multierror.Append(result, fmt.Errorf("%w: '%s'", ErrTimestampColumnInvalid, c.TimestampColumn))
	}

	if c.PrimaryKeyColumn != "" && !validPostgreSQLIdentifier.MatchString(c.PrimaryKeyColumn) {
		result = multierror.Append(result, fmt.Errorf("%w: '%s'", ErrPrimaryKeyColumnInvalid, c.PrimaryKeyColumn))
	}

	for _, column := range c.NestedColumns {
		if !validPostgreSQLIdentifier.MatchString(column) {
			result = multierror.Append(result, fmt.Errorf("%w: '%s'", ErrNestedColumnInvalid, column))
		}
	}

	if c.MinAgeHours < 0 {
		result = multierror.Append(result, fmt.Errorf("%w, got %d", ErrMinAgeHoursInvalid, c.MinAgeHours))
	}

	if !isValidOutputFormat(c.OutputFormat) {
		result = multierror.Append(result, fmt.Errorf("%w: '%s'", ErrOutputFormatInvalid, c.OutputFormat))
	}

	if !isValidCompression(c.Compression) {
		result = multierror.Append(result, fmt.Errorf("%w: '%s'", ErrCompressionInvalid, c.Compression))
	} else if !isValidCompressionLevel(c.Compression, c.CompressionLevel) {
		result = multierror.Append(result, fmt.Errorf("%w for compression %s: got %d", ErrCompressionLevelInvalid, c.Compression, c.CompressionLevel))
	}

	if c.S3.KeyTemplate == "" {
		result = multierror.Append(result, ErrKeyTemplateRequired)
	} else if !isValidKeyTemplate(c.S3.KeyTemplate) {
		result = multierror.Append(result, fmt.Errorf("%w: '%s'", ErrKeyTemplateInvalid, c.S3.KeyTemplate))
	}

	return result.ErrorOrNil()
}
