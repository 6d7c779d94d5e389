// Package writer drains the snapshot fan-out channels into long-term
// storage: parquet files on S3 for the archive stream and a Kafka topic for
// downstream consumers.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	appconfig "volspike/config"
	"volspike/logger"
	"volspike/models"
)

// ParquetRecord is the archive row schema: one market-data row per record,
// stamped with the snapshot it came from.
type ParquetRecord struct {
	SnapshotID   string  `parquet:"name=snapshot_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	EmittedAt    int64   `parquet:"name=emitted_at, type=INT64"`
	Symbol       string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price        float64 `parquet:"name=price, type=DOUBLE"`
	Volume24h    float64 `parquet:"name=volume_24h, type=DOUBLE"`
	Change24h    float64 `parquet:"name=change_24h, type=DOUBLE"`
	FundingRate  float64 `parquet:"name=funding_rate, type=DOUBLE"`
	OpenInterest float64 `parquet:"name=open_interest, type=DOUBLE"`
	Timestamp    int64   `parquet:"name=timestamp, type=INT64"`
}

// memoryFileWriter implements ParquetFile for in-memory writing.
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(string) (source.ParquetFile, error)   { return mfw, nil }

func (mfw *memoryFileWriter) Seek(int64, int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// Archiver buffers emitted snapshots and periodically flushes them to S3 as
// parquet files partitioned by date and hour.
type Archiver struct {
	config      *appconfig.Config
	snapshots   <-chan models.Snapshot
	s3Client    *s3.Client
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
	buffer      []models.Snapshot
	flushTicker *time.Ticker
}

// NewArchiver constructs the S3 archiver from storage configuration.
func NewArchiver(cfg *appconfig.Config, snapshots <-chan models.Snapshot) (*Archiver, error) {
	log := logger.GetLogger()

	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	a := &Archiver{
		config:    cfg,
		snapshots: snapshots,
		s3Client:  s3Client,
		wg:        &sync.WaitGroup{},
		log:       log,
	}

	log.WithComponent("s3_writer").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("s3 archiver initialized")

	return a, nil
}

// Start begins consuming and flushing snapshots.
func (a *Archiver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("s3 archiver already running")
	}
	a.running = true
	a.ctx = ctx
	a.mu.Unlock()

	a.flushTicker = time.NewTicker(a.config.Writer.FlushInterval)

	a.wg.Add(1)
	go a.worker()

	a.log.WithComponent("s3_writer").Info("s3 archiver started")
	return nil
}

// Stop drains the buffer and shuts the workers down.
func (a *Archiver) Stop() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	if a.flushTicker != nil {
		a.flushTicker.Stop()
	}

	a.log.WithComponent("s3_writer").Info("stopping s3 archiver")
	a.wg.Wait()
	a.log.WithComponent("s3_writer").Info("s3 archiver stopped")
}

func (a *Archiver) worker() {
	defer a.wg.Done()

	log := a.log.WithComponent("s3_writer").WithFields(logger.Fields{"worker": "archive"})
	log.Info("starting archive worker")

	for {
		select {
		case <-a.ctx.Done():
			a.flush("shutdown")
			log.Info("archive worker stopped due to context cancellation")
			return
		case snap, ok := <-a.snapshots:
			if !ok {
				a.flush("channel closed")
				return
			}
			a.addSnapshot(snap)
		case <-a.flushTicker.C:
			a.flush("interval")
		}
	}
}

func (a *Archiver) addSnapshot(snap models.Snapshot) {
	if len(snap.Rows) == 0 {
		return
	}
	a.mu.Lock()
	a.buffer = append(a.buffer, snap)
	a.mu.Unlock()
}

func (a *Archiver) flush(reason string) {
	a.mu.Lock()
	buffered := a.buffer
	a.buffer = nil
	a.mu.Unlock()

	if len(buffered) == 0 {
		return
	}

	log := a.log.WithComponent("s3_writer").WithFields(logger.Fields{
		"snapshots": len(buffered),
		"reason":    reason,
	})
	log.Info("flushing snapshot buffer")

	batchID := uuid.New().String()
	now := time.Now().UTC()

	data, err := a.createParquetFile(batchID, buffered)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	key := a.generateS3Key(now, batchID)
	if err := a.uploadToS3(key, data); err != nil {
		log.WithError(err).
			WithEnv("S3_BUCKET").
			WithFields(logger.Fields{"bucket": a.config.Storage.S3.Bucket, "s3_key": key}).
			Error("failed to upload to S3")
		return
	}

	logger.IncrementArchiveWrite(int64(len(data)))
	log.WithFields(logger.Fields{
		"s3_key":    key,
		"file_size": len(data),
	}).Info("snapshot batch archived")
}

func (a *Archiver) generateS3Key(ts time.Time, batchID string) string {
	key := filepath.Join(
		"snapshots",
		fmt.Sprintf("date=%s", ts.Format("2006-01-02")),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("volspike_%s_%s.parquet", ts.Format("20060102150405"), batchID),
	)
	return filepath.ToSlash(key)
}

func (a *Archiver) createParquetFile(batchID string, snapshots []models.Snapshot) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := pqwriter.NewParquetWriter(fw, new(ParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch a.config.Writer.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, snap := range snapshots {
		for _, row := range snap.Rows {
			record := ParquetRecord{
				SnapshotID:   batchID,
				EmittedAt:    snap.EmittedAt,
				Symbol:       row.Symbol,
				Price:        row.Price,
				Volume24h:    row.Volume24h,
				Change24h:    row.Change24h,
				FundingRate:  row.FundingRate,
				OpenInterest: row.OpenInterest,
				Timestamp:    row.Timestamp,
			}
			if err := pw.Write(record); err != nil {
				pw.WriteStop()
				return nil, fmt.Errorf("failed to write parquet record: %w", err)
			}
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}

func (a *Archiver) uploadToS3(key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":     "parquet",
			"compression":      a.config.Writer.Compression,
			"volspike-version": a.config.Volspike.Version,
		},
	}

	ctx := context.WithoutCancel(a.ctx)
	if _, err := a.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", a.config.Storage.S3.Bucket, err)
	}
	return nil
}
