package cmd

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/coldline/postgresql-exporter/cmd/compressors"
	"github.com/coldline/postgresql-exporter/cmd/formatters"
	"github.com/lib/pq"
)

// Stage constants
const (
	StageSetup       = "Setup"
	StageSerializing = "Serializing"
	StageWriting     = "Writing"
	StageUploading   = "Uploading"
	StageDeleting    = "Deleting"
	StageComplete    = "Complete"
	StageCancelled   = "Cancelled"
)

// Error definitions
var (
	ErrUploadFailed           = errors.New("upload failed")
	ErrS3ClientNotInitialized = errors.New("S3 client not initialized")
	ErrPartitionsFailed       = errors.New("some partitions failed to export")
)

// objectStore transmits a blob to a destination key. Implementations must
// report failure rather than panic; the orchestrator decides what a failed
// upload means.
type objectStore interface {
	Put(key, contentType string, data []byte) error
}

// rowDeleter removes an exported partition's rows from the source table.
type rowDeleter interface {
	DeleteRows(ctx context.Context, table, pkColumn string, rows []map[string]interface{}) (int64, error)
}

// s3Store implements objectStore against an S3-compatible endpoint.
type s3Store struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
}

// Put writes the object byte-identically at the destination key. Files over
// 100MB go through the multipart uploader. Re-uploading the same key is an
// idempotent overwrite.
func (s *s3Store) Put(key, contentType string, data []byte) error {
	if len(data) > 100*1024*1024 {
		uploadInput := &s3manager.UploadInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		}
		_, err := s.uploader.Upload(uploadInput)
		return err
	}

	if s.client == nil {
		return ErrS3ClientNotInitialized
	}

	putInput := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	_, err := s.client.PutObject(putInput)
	return err
}

// sqlRowDeleter implements rowDeleter on a live database handle.
type sqlRowDeleter struct {
	db *sql.DB
}

func (d *sqlRowDeleter) DeleteRows(ctx context.Context, table, pkColumn string, rows []map[string]interface{}) (int64, error) {
	return DeleteExportedRows(ctx, d.db, table, pkColumn, rows)
}

type Exporter struct {
	config   *Config
	db       *sql.DB
	store    objectStore
	deleter  rowDeleter
	logger   *slog.Logger
	ctx      context.Context // Context for cancellation
	runStart time.Time       // Snapshot of "now" for the whole run
}

// PartitionResult reports the outcome of one partition's pipeline.
type PartitionResult struct {
	Date          time.Time
	DateKey       string
	RowCount      int
	BytesWritten  int64
	LocalPath     string
	ObjectKey     string
	Uploaded      bool
	Deleted       bool
	RowsDeleted   int64
	DeleteSkipped bool
	Skipped       bool
	SkipReason    string
	Stage         string
	Error         error
	Duration      time.Duration
}

func NewExporter(config *Config, logger *slog.Logger) *Exporter {
	return &Exporter{
		config: config,
		logger: logger,
	}
}

// Run executes one full export: query, filter, partition, then per partition
// normalize, serialize, upload, and delete iff the upload succeeded. Failed
// partitions are reported and the run continues with the rest.
func (e *Exporter) Run(ctx context.Context) error {
	e.ctx = ctx
	e.runStart = time.Now().UTC()

	// An unsupported format selector must fail before any file or network I/O.
	formatter, err := formatters.GetFormatterWithCompression(e.config.OutputFormat, e.config.Compression)
	if err != nil {
		return err
	}

	var compressor compressors.Compressor
	if formatters.UsesInternalCompression(e.config.OutputFormat) {
		compressor = compressors.NewNoneCompressor()
	} else {
		compressor, err = compressors.GetCompressor(e.config.Compression)
		if err != nil {
			return err
		}
	}

	if err := AcquireRunLock(); err != nil {
		return err
	}
	defer func() {
		_ = ReleaseRunLock()
	}()

	if err := e.connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if e.db != nil {
			e.db.Close()
			e.db = nil
		}
	}()

	e.logger.Debug(fmt.Sprintf("Reading table %s...", e.config.Table))
	rows, err := e.fetchRows(ctx)
	if err != nil {
		return fmt.Errorf("failed to read table: %w", err)
	}
	e.logger.Info(fmt.Sprintf("✅ Read %d rows from %s", len(rows), e.config.Table))

	return e.exportRows(ctx, formatter, compressor, rows)
}

// exportRows runs the snapshot of extracted rows through partitioning and the
// per-partition pipeline. A snapshot with nothing old enough is an
// informational no-op, not an error.
func (e *Exporter) exportRows(ctx context.Context, formatter formatters.Formatter, compressor compressors.Compressor, rows []map[string]interface{}) error {
	cutoff := e.runStart.Add(-time.Duration(e.config.MinAgeHours) * time.Hour)
	e.logger.Debug(fmt.Sprintf("Cutoff time: %s (min age %dh)", cutoff.Format(time.RFC3339), e.config.MinAgeHours))

	partitions, unparseable := PartitionByDate(rows, e.config.TimestampColumn, cutoff)
	if unparseable > 0 {
		e.logger.Warn(fmt.Sprintf("⚠️  %d rows have a missing or unparseable %s value and were left in place", unparseable, e.config.TimestampColumn))
	}

	if len(partitions) == 0 {
		e.logger.Info(fmt.Sprintf("No rows older than %dh, nothing to export", e.config.MinAgeHours))
		return nil
	}
	e.logger.Info(fmt.Sprintf("✅ Found %d partitions to export", len(partitions)))

	var results []PartitionResult
	if e.config.Debug {
		results = e.processPartitions(ctx, formatter, compressor, partitions, nil)
	} else {
		results = e.runWithProgress(ctx, formatter, compressor, partitions)
	}

	e.printSummary(results)

	if err := ctx.Err(); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrPartitionsFailed, failed, len(results))
	}

	return nil
}

// connect opens the database and object-store handles for the run. Both are
// long-lived and shared across partitions.
func (e *Exporter) connect(ctx context.Context) error {
	sslMode := e.config.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		e.config.Database.Host,
		e.config.Database.Port,
		e.config.Database.User,
		e.config.Database.Password,
		e.config.Database.Name,
		sslMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}

	e.db = db

	awsConfig := &aws.Config{
		Region:      aws.String(e.config.S3.Region),
		Credentials: credentials.NewStaticCredentials(e.config.S3.AccessKey, e.config.S3.SecretKey, ""),
	}
	if e.config.S3.Endpoint != "" {
		awsConfig.Endpoint = aws.String(e.config.S3.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		db.Close()
		e.db = nil
		return fmt.Errorf("failed to create S3 session: %w", err)
	}

	e.store = &s3Store{
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		bucket:   e.config.S3.Bucket,
	}
	e.deleter = &sqlRowDeleter{db: db}

	return nil
}

// fetchRows reads the whole source table into memory as generic rows. The age
// filter is applied afterwards against the run's cutoff snapshot.
func (e *Exporter) fetchRows(ctx context.Context) ([]map[string]interface{}, error) {
	quotedTable := pq.QuoteIdentifier(e.config.Table)
	query := fmt.Sprintf("SELECT row_to_json(t) FROM %s t", quotedTable) //nolint:gosec // Table name is quoted with pq.QuoteIdentifier

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		// Drivers sometimes surface a cancelled query as a connection error;
		// the context is the authority on whether this was a cancellation.
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.logger.Debug("  ⚠️  Query cancelled")
			return nil, ctxErr
		}
		return nil, err
	}
	defer rows.Close()

	var result []map[string]interface{}
	rowCount := 0

	for rows.Next() {
		if rowCount%100 == 0 {
			select {
			case <-ctx.Done():
				e.logger.Debug("  ⚠️  Cancellation detected during row extraction")
				return nil, ctx.Err()
			default:
			}
		}

		var jsonData json.RawMessage
		if err := rows.Scan(&jsonData); err != nil {
			return nil, err
		}

		var rowData map[string]interface{}
		if err := json.Unmarshal(jsonData, &rowData); err != nil {
			return nil, err
		}

		result = append(result, rowData)
		rowCount++
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// processPartitions runs each partition through the pipeline sequentially.
// notify, when set, feeds the progress display.
func (e *Exporter) processPartitions(ctx context.Context, formatter formatters.Formatter, compressor compressors.Compressor, partitions []Partition, notify func(msg interface{})) []PartitionResult {
	results := make([]PartitionResult, 0, len(partitions))

	for i, partition := range partitions {
		select {
		case <-ctx.Done():
			e.logger.Info("⚠️  Stopping partition processing due to cancellation")
			return results
		default:
		}

		if notify != nil {
			notify(partitionStartMsg{index: i, dateKey: partition.Key(), rowCount: len(partition.Rows)})
		} else {
			e.logger.Info(fmt.Sprintf("Processing partition %s (%d rows)", partition.Key(), len(partition.Rows)))
		}

		result := e.processPartition(ctx, formatter, compressor, partition)
		results = append(results, result)

		if notify != nil {
			notify(partitionDoneMsg{index: i, result: result})
		} else {
			switch {
			case result.Error != nil:
				e.logger.Error(fmt.Sprintf("  ❌ Failed at %s: %v", result.Stage, result.Error))
			case result.Skipped:
				e.logger.Info(fmt.Sprintf("  ⏭️  Skipped: %s", result.SkipReason))
			case result.DeleteSkipped:
				e.logger.Warn(fmt.Sprintf("  ⚠️  Uploaded %d bytes, delete skipped: %s", result.BytesWritten, result.SkipReason))
			default:
				e.logger.Info(fmt.Sprintf("  ✅ Uploaded %d bytes, deleted %d rows", result.BytesWritten, result.RowsDeleted))
			}
		}
	}

	return results
}

// processPartition normalizes, serializes, uploads, and conditionally deletes
// one partition. Deletion happens iff the upload succeeded; on upload failure
// the rows stay in the source and the local file stays on disk for inspection.
func (e *Exporter) processPartition(ctx context.Context, formatter formatters.Formatter, compressor compressors.Compressor, partition Partition) PartitionResult {
	startTime := time.Now()
	result := PartitionResult{
		Date:     partition.Date,
		DateKey:  partition.Key(),
		RowCount: len(partition.Rows),
		Stage:    StageSetup,
	}

	normalized := NormalizeRows(partition.Rows, e.config.NestedColumns)

	result.Stage = StageSerializing
	data, err := formatter.Format(normalized)
	if err != nil {
		result.Error = fmt.Errorf("serialization failed: %w", err)
		result.Duration = time.Since(startTime)
		return result
	}

	var compressionExt string
	if !formatters.UsesInternalCompression(e.config.OutputFormat) {
		compressionExt = compressor.Extension()
	}

	compressed, err := compressor.Compress(data, e.config.CompressionLevel)
	if err != nil {
		result.Error = fmt.Errorf("compression failed: %w", err)
		result.Duration = time.Since(startTime)
		return result
	}

	result.Stage = StageWriting
	localPath, err := e.writePartitionFile(partition, compressed, formatter.Extension(), compressionExt)
	if err != nil {
		result.Error = err
		result.Duration = time.Since(startTime)
		return result
	}
	result.LocalPath = localPath
	result.BytesWritten = int64(len(compressed))

	result.ObjectKey = GenerateObjectKey(
		e.config.S3.KeyTemplate,
		e.config.Table,
		e.config.OutputFormat,
		partition.Date,
		e.runStart,
		formatter.Extension(),
		compressionExt,
	)

	if e.config.DryRun {
		result.Skipped = true
		result.SkipReason = "dry-run: upload and delete skipped"
		result.Stage = StageComplete
		result.Duration = time.Since(startTime)
		return result
	}

	select {
	case <-ctx.Done():
		result.Error = ctx.Err()
		result.Stage = StageCancelled
		result.Duration = time.Since(startTime)
		return result
	default:
	}

	result.Stage = StageUploading
	if !e.uploadFile(localPath, result.ObjectKey, e.contentType(formatter, compressionExt)) {
		result.Error = fmt.Errorf("%w: %s", ErrUploadFailed, result.ObjectKey)
		result.Duration = time.Since(startTime)
		return result
	}
	result.Uploaded = true

	result.Stage = StageDeleting
	deleted, err := e.deleter.DeleteRows(ctx, e.config.Table, e.config.PrimaryKeyColumn, partition.Rows)
	switch {
	case errors.Is(err, ErrPrimaryKeyColumnMissing):
		// Reported, not fatal: the data is safely uploaded but stays in the
		// source table.
		result.DeleteSkipped = true
		result.SkipReason = err.Error()
		_ = os.Remove(localPath)
	case err != nil:
		// The transaction rolled back, so the partition is intact in the
		// source and a re-run will re-attempt the same keys.
		result.Error = err
		result.Duration = time.Since(startTime)
		return result
	default:
		result.Deleted = true
		result.RowsDeleted = deleted
		_ = os.Remove(localPath)
	}

	result.Stage = StageComplete
	result.Duration = time.Since(startTime)
	return result
}

// writePartitionFile serializes one partition to the spool directory and
// returns the file path.
func (e *Exporter) writePartitionFile(partition Partition, data []byte, formatExt, compressionExt string) (string, error) {
	dir := e.config.SpoolDir
	if dir == "" {
		dir = os.TempDir()
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create spool directory: %w", err)
	}

	filename := GenerateExportFilename(e.config.Table, partition.Date, e.runStart, formatExt, compressionExt)
	path := filepath.Join(dir, filename)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write partition file: %w", err)
	}

	return path, nil
}

// uploadFile transmits a serialized partition file to the object store. Any
// transport failure is reported and turned into a negative result so the
// orchestrator can decide not to delete; no retry happens here.
func (e *Exporter) uploadFile(localPath, key, contentType string) bool {
	data, err := os.ReadFile(localPath)
	if err != nil {
		e.logger.Error(fmt.Sprintf("  ❌ Failed to read %s for upload: %v", localPath, err))
		return false
	}

	e.logger.Debug(fmt.Sprintf("  ☁️  Uploading to s3://%s/%s (size: %d bytes)",
		e.config.S3.Bucket, key, len(data)))

	if err := e.store.Put(key, contentType, data); err != nil {
		e.logger.Error(fmt.Sprintf("  ❌ Upload of %s failed: %v", key, err))
		return false
	}

	return true
}

func (e *Exporter) contentType(formatter formatters.Formatter, compressionExt string) string {
	if compressionExt != "" {
		return "application/octet-stream"
	}
	return formatter.MIMEType()
}

func (e *Exporter) printSummary(results []PartitionResult) {
	var exported, failed, skipped int
	var totalBytes, totalRowsDeleted int64

	for _, r := range results {
		switch {
		case r.Error != nil:
			failed++
		case r.Skipped:
			skipped++
		default:
			exported++
			totalBytes += r.BytesWritten
			totalRowsDeleted += r.RowsDeleted
		}
	}

	e.logger.Info("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	e.logger.Info("📈 Summary")
	e.logger.Info(fmt.Sprintf("✅ Exported: %d", exported))
	if skipped > 0 {
		e.logger.Info(fmt.Sprintf("⏭️  Skipped: %d", skipped))
	}
	if failed > 0 {
		e.logger.Info(fmt.Sprintf("❌ Failed: %d", failed))
	}

	if totalBytes > 0 {
		e.logger.Info(fmt.Sprintf("💾 Total written: %.2f MB", float64(totalBytes)/(1024*1024)))
	}
	if totalRowsDeleted > 0 {
		e.logger.Info(fmt.Sprintf("🗑️  Rows deleted: %d", totalRowsDeleted))
	}

	for _, r := range results {
		if r.Error != nil {
			e.logger.Error(fmt.Sprintf("\n❌ %s (%s): %v", r.DateKey, r.Stage, r.Error))
			if r.LocalPath != "" && !r.Deleted {
				e.logger.Info(fmt.Sprintf("   File kept for inspection: %s", r.LocalPath))
			}
		}
	}
}
