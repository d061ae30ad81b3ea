package cmd

import (
	"errors"
	"strings"
	"testing"
)

func validTestConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			Name:     "testdb",
			SSLMode:  "disable",
		},
		S3: S3Config{
			Endpoint:    "https://s3.example.com",
			Bucket:      "test-bucket",
			AccessKey:   "access123",
			SecretKey:   "secret456",
			Region:      "us-east-1",
			KeyTemplate: DefaultKeyTemplate,
		},
		Table:            "events",
		TimestampColumn:  "created_at",
		PrimaryKeyColumn: "id",
		NestedColumns:    []string{"context"},
		MinAgeHours:      24,
		OutputFormat:     "json",
		Compression:      "none",
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		config := validTestConfig()

		err := config.Validate()
		if err != nil {
			t.Fatalf("valid config should not return error: %v", err)
		}
	})

	t.Run("MissingDatabaseUser", func(t *testing.T) {
		config := validTestConfig()
		config.Database.User = ""

		err := config.Validate()
		if err == nil {
			t.Fatal("should return error for missing database user")
		}
		if !errors.Is(err, ErrDatabaseUserRequired) {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("MultipleErrorsReportedTogether", func(t *testing.T) {
		config := validTestConfig()
		config.Database.Host = ""
		config.S3.Bucket = ""
		config.Table = ""

		err := config.Validate()
		if err == nil {
			t.Fatal("should return error for invalid config")
		}
		for _, want := range []error{ErrDatabaseHostRequired, ErrS3BucketRequired, ErrTableNameRequired} {
			if !errors.Is(err, want) {
				t.Fatalf("error should include %q, got: %v", want, err)
			}
		}
	})

	t.Run("InvalidDatabasePort", func(t *testing.T) {
		config := validTestConfig()
		config.Database.Port = 0

		err := config.Validate()
		if !errors.Is(err, ErrDatabasePortInvalid) {
			t.Fatalf("expected port error, got: %v", err)
		}
	})

	t.Run("InvalidTableName", func(t *testing.T) {
		config := validTestConfig()
		config.Table = "events; DROP TABLE users"

		err := config.Validate()
		if !errors.Is(err, ErrTableNameInvalid) {
			t.Fatalf("expected table name error, got: %v", err)
		}
	})

	t.Run("InvalidTimestampColumn", func(t *testing.T) {
		config := validTestConfig()
		config.TimestampColumn = "created-at"

		err := config.Validate()
		if !errors.Is(err, ErrTimestampColumnInvalid) {
			t.Fatalf("expected timestamp column error, got: %v", err)
		}
	})

	t.Run("InvalidNestedColumn", func(t *testing.T) {
		config := validTestConfig()
		config.NestedColumns = []string{"context", "1bad"}

		err := config.Validate()
		if !errors.Is(err, ErrNestedColumnInvalid) {
			t.Fatalf("expected nested column error, got: %v", err)
		}
		if !strings.Contains(err.Error(), "1bad") {
			t.Fatalf("error should name the offending column, got: %v", err)
		}
	})

	t.Run("InvalidOutputFormat", func(t *testing.T) {
		config := validTestConfig()
		config.OutputFormat = "csv"

		err := config.Validate()
		if !errors.Is(err, ErrOutputFormatInvalid) {
			t.Fatalf("expected output format error, got: %v", err)
		}
	})

	t.Run("InvalidCompression", func(t *testing.T) {
		config := validTestConfig()
		config.Compression = "brotli"

		err := config.Validate()
		if !errors.Is(err, ErrCompressionInvalid) {
			t.Fatalf("expected compression error, got: %v", err)
		}
	})

	t.Run("InvalidCompressionLevel", func(t *testing.T) {
		config := validTestConfig()
		config.Compression = "gzip"
		config.CompressionLevel = 42

		err := config.Validate()
		if !errors.Is(err, ErrCompressionLevelInvalid) {
			t.Fatalf("expected compression level error, got: %v", err)
		}
	})

	t.Run("ZstdAcceptsHighLevel", func(t *testing.T) {
		config := validTestConfig()
		config.Compression = "zstd"
		config.CompressionLevel = 19

		if err := config.Validate(); err != nil {
			t.Fatalf("zstd level 19 should be valid: %v", err)
		}
	})

	t.Run("RegionAutoAllowed", func(t *testing.T) {
		config := validTestConfig()
		config.S3.Region = "auto"

		if err := config.Validate(); err != nil {
			t.Fatalf("region auto should be valid: %v", err)
		}
	})

	t.Run("KeyTemplateWithoutTablePlaceholder", func(t *testing.T) {
		config := validTestConfig()
		config.S3.KeyTemplate = "exports/{date}"

		err := config.Validate()
		if !errors.Is(err, ErrKeyTemplateInvalid) {
			t.Fatalf("expected key template error, got: %v", err)
		}
	})

	t.Run("NegativeMinAge", func(t *testing.T) {
		config := validTestConfig()
		config.MinAgeHours = -1

		err := config.Validate()
		if !errors.Is(err, ErrMinAgeHoursInvalid) {
			t.Fatalf("expected min age error, got: %v", err)
		}
	})

	t.Run("EmptyPrimaryKeyColumnAllowed", func(t *testing.T) {
		config := validTestConfig()
		config.PrimaryKeyColumn = ""

		if err := config.Validate(); err != nil {
			t.Fatalf("empty primary key column should be valid: %v", err)
		}
	})
}
