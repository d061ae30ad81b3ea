package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information - set via ldflags during build
	Version = "dev"

	// signalContext is set by main() before Cobra initialization
	// This ensures signal handling is set up before any library can interfere
	signalContext context.Context

	cfgFile          string
	debug            bool
	logFormat        string
	dryRun           bool
	dbHost           string
	dbPort           int
	dbUser           string
	dbPassword       string
	dbName           string
	dbSSLMode        string
	s3Endpoint       string
	s3Bucket         string
	s3AccessKey      string
	s3SecretKey      string
	s3Region         string
	tableName        string
	timestampColumn  string
	primaryKeyColumn string
	nestedColumns    []string
	minAgeHours      int
	outputFormat     string
	compression      string
	compressionLevel int
	keyTemplate      string
	spoolDir         string

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true).
			Underline(true)

	logger *slog.Logger
)

// SetSignalContext stores the signal-aware context created in main().
// This must be called before Execute() to ensure proper signal handling.
func SetSignalContext(ctx context.Context) {
	signalContext = ctx
}

// textOnlyHandler is a custom slog handler that outputs human-readable text
// without key=value pairs, suitable for interactive terminal usage
type textOnlyHandler struct {
	opts   slog.HandlerOptions
	writer io.Writer
}

func newTextOnlyHandler(w io.Writer, opts *slog.HandlerOptions) *textOnlyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &textOnlyHandler{
		opts:   *opts,
		writer: w,
	}
}

func (h *textOnlyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *textOnlyHandler) Handle(_ context.Context, r slog.Record) error {
	// Format: YYYY-MM-DD HH:MM:SS LEVEL message
	timestamp := r.Time.Format("2006-01-02 15:04:05")
	level := r.Level.String()

	_, err := fmt.Fprintf(h.writer, "%s %s %s\n", timestamp, level, r.Message)
	return err
}

func (h *textOnlyHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	// Attributes are ignored in text-only mode
	return h
}

func (h *textOnlyHandler) WithGroup(_ string) slog.Handler {
	return h
}

// initLogger initializes the slog logger based on debug flag and log format
func initLogger(isDebug bool, format string) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if isDebug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "logfmt":
		// logfmt uses slog.TextHandler which outputs key=value pairs
		handler = slog.NewTextHandler(os.Stdout, opts)
	default: // "text" or anything else
		handler = newTextOnlyHandler(os.Stdout, opts)
	}

	logger = slog.New(handler)
}

var rootCmd = &cobra.Command{
	Use:     "pg-exporter",
	Version: Version,
	Short:   "📦 Export aged PostgreSQL rows to object storage, then delete them",
	Long: titleStyle.Render("PostgreSQL Exporter") + `

A CLI tool that periodically offloads old rows from a PostgreSQL table to S3.
Rows older than a configurable age are grouped by the calendar date of a
timestamp column, written as JSON or Parquet files, uploaded under a
structured key, and then deleted from the source table. Deletion only happens
for partitions whose upload succeeded.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// Show help when no subcommand is specified
		cmd.Help()
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run one export pass against the configured table",
	Long: `Run one export pass: read the table, keep rows older than the minimum age,
group them by the UTC date of the timestamp column, upload one file per date,
and delete the uploaded rows. Failed partitions keep their rows and their
local file; the run is safe to repeat.`,
	Run: func(_ *cobra.Command, _ []string) {
		runExport()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(exportCmd)

	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pg-exporter.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, logfmt, json)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "serialize only; skip upload and delete")

	// Export flags
	exportCmd.Flags().StringVar(&dbHost, "db-host", "localhost", "PostgreSQL host")
	exportCmd.Flags().IntVar(&dbPort, "db-port", 5432, "PostgreSQL port")
	exportCmd.Flags().StringVar(&dbUser, "db-user", "", "PostgreSQL user")
	exportCmd.Flags().StringVar(&dbPassword, "db-password", "", "PostgreSQL password")
	exportCmd.Flags().StringVar(&dbName, "db-name", "", "PostgreSQL database name")
	exportCmd.Flags().StringVar(&dbSSLMode, "db-sslmode", "disable", "PostgreSQL SSL mode (disable, require, verify-ca, verify-full)")

	exportCmd.Flags().StringVar(&s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint URL (empty = AWS)")
	exportCmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket name")
	exportCmd.Flags().StringVar(&s3AccessKey, "s3-access-key", "", "S3 access key")
	exportCmd.Flags().StringVar(&s3SecretKey, "s3-secret-key", "", "S3 secret key")
	exportCmd.Flags().StringVar(&s3Region, "s3-region", "", "S3 region")

	exportCmd.Flags().StringVar(&tableName, "table", "", "source table name (required)")
	exportCmd.Flags().StringVar(&timestampColumn, "timestamp-column", "created_at", "timestamp column used for age filtering and date partitioning")
	exportCmd.Flags().StringVar(&primaryKeyColumn, "primary-key-column", "id", "primary key column used for post-upload deletion")
	exportCmd.Flags().StringSliceVar(&nestedColumns, "nested-columns", []string{"context"}, "columns holding JSON-encoded strings to normalize before export")
	exportCmd.Flags().IntVar(&minAgeHours, "min-age-hours", 24, "only rows at least this many hours old are exported")
	exportCmd.Flags().StringVar(&outputFormat, "output-format", "json", "output format: json, parquet")
	exportCmd.Flags().StringVar(&compression, "compression", "none", "compression for json output: zstd, lz4, gzip, none")
	exportCmd.Flags().IntVar(&compressionLevel, "compression-level", 0, "compression level (0 = compressor default)")
	exportCmd.Flags().StringVar(&keyTemplate, "key-template", DefaultKeyTemplate, "object key prefix template with placeholders: {table}, {format}, {date}")
	exportCmd.Flags().StringVar(&spoolDir, "spool-dir", "", "directory for serialized partition files (default: system temp dir)")

	// Note: We don't use MarkFlagRequired because it checks before viper loads
	// the config file and environment. Validation happens in config.Validate()
	// after all config sources are loaded.

	// Bind persistent flags
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))

	// Bind export flags
	_ = viper.BindPFlag("db.host", exportCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("db.port", exportCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("db.user", exportCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("db.password", exportCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("db.name", exportCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("db.sslmode", exportCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("s3.endpoint", exportCmd.Flags().Lookup("s3-endpoint"))
	_ = viper.BindPFlag("s3.bucket", exportCmd.Flags().Lookup("s3-bucket"))
	_ = viper.BindPFlag("s3.access_key", exportCmd.Flags().Lookup("s3-access-key"))
	_ = viper.BindPFlag("s3.secret_key", exportCmd.Flags().Lookup("s3-secret-key"))
	_ = viper.BindPFlag("s3.region", exportCmd.Flags().Lookup("s3-region"))
	_ = viper.BindPFlag("s3.key_template", exportCmd.Flags().Lookup("key-template"))
	_ = viper.BindPFlag("table", exportCmd.Flags().Lookup("table"))
	_ = viper.BindPFlag("timestamp_column", exportCmd.Flags().Lookup("timestamp-column"))
	_ = viper.BindPFlag("primary_key_column", exportCmd.Flags().Lookup("primary-key-column"))
	_ = viper.BindPFlag("nested_columns", exportCmd.Flags().Lookup("nested-columns"))
	_ = viper.BindPFlag("min_age_hours", exportCmd.Flags().Lookup("min-age-hours"))
	_ = viper.BindPFlag("output_format", exportCmd.Flags().Lookup("output-format"))
	_ = viper.BindPFlag("compression", exportCmd.Flags().Lookup("compression"))
	_ = viper.BindPFlag("compression_level", exportCmd.Flags().Lookup("compression-level"))
	_ = viper.BindPFlag("spool_dir", exportCmd.Flags().Lookup("spool-dir"))
}

func initConfig() {
	// A local .env file is honored before the environment is read, matching
	// the deployment convention for this tool.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pg-exporter")
	}

	viper.SetEnvPrefix("EXPORT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && debug {
		if logger == nil {
			initLogger(debug, logFormat)
		}
		logger.Debug(fmt.Sprintf("📄 Using config file: %s", viper.ConfigFileUsed()))
	}
}

func runExport() {
	// Add panic recovery to catch any unexpected crashes
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n❌ PANIC: %v\n", r)
			os.Exit(1)
		}
	}()

	config := &Config{
		Debug:     viper.GetBool("debug"),
		LogFormat: viper.GetString("log_format"),
		DryRun:    viper.GetBool("dry_run"),
		Database: DatabaseConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetInt("db.port"),
			User:     viper.GetString("db.user"),
			Password: viper.GetString("db.password"),
			Name:     viper.GetString("db.name"),
			SSLMode:  viper.GetString("db.sslmode"),
		},
		S3: S3Config{
			Endpoint:    viper.GetString("s3.endpoint"),
			Bucket:      viper.GetString("s3.bucket"),
			AccessKey:   viper.GetString("s3.access_key"),
			SecretKey:   viper.GetString("s3.secret_key"),
			Region:      viper.GetString("s3.region"),
			KeyTemplate: viper.GetString("s3.key_template"),
		},
		Table:            viper.GetString("table"),
		TimestampColumn:  viper.GetString("timestamp_column"),
		PrimaryKeyColumn: viper.GetString("primary_key_column"),
		NestedColumns:    viper.GetStringSlice("nested_columns"),
		MinAgeHours:      viper.GetInt("min_age_hours"),
		OutputFormat:     viper.GetString("output_format"),
		Compression:      viper.GetString("compression"),
		CompressionLevel: viper.GetInt("compression_level"),
		SpoolDir:         viper.GetString("spool_dir"),
	}

	initLogger(config.Debug, config.LogFormat)

	logger.Info("")
	logger.Info(fmt.Sprintf("🚀 PostgreSQL Exporter v%s", Version))
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	logger.Debug("Validating configuration...")
	if err := config.Validate(); err != nil {
		logger.Error("❌ Configuration error:")
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				logger.Error(fmt.Sprintf("   - %s", e.Error()))
			}
		} else {
			logger.Error(fmt.Sprintf("   - %s", err.Error()))
		}
		os.Exit(1)
	}
	logger.Debug("Configuration validated successfully")

	// Use the signal context created in main() before Cobra initialization
	ctx := signalContext
	if ctx == nil {
		// Fallback if SetSignalContext wasn't called (shouldn't happen)
		logger.Warn("Signal context not set, creating fallback...")
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
	}

	logger.Debug("Creating exporter...")
	exporter := NewExporter(config, logger)
	logger.Debug("Starting export run...")

	err := exporter.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("")
			logger.Info("⚠️  Export cancelled by user")
			os.Exit(130)
		}
		logger.Error(fmt.Sprintf("❌ Export failed: %s", err.Error()))
		os.Exit(1)
	}

	logger.Info("")
	logger.Info("✅ Export completed successfully!")
}
