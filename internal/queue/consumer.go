/**
 * Queue Consumer for the Prescription Scan Worker
 *
 * Consumes scan-prescription tasks from Redis via Asynq, runs the local
 * OCR pipeline and persists the outcome. Decode, no-text and oversized
 * images are terminal and skip retries.
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Jitheswar/ruralAi/prescription-worker/internal/errors"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/logging"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/parser"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/storage"
)

// Extractor runs the OCR pipeline on one image
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (parser.Result, error)
}

// ResultCache stores results by image content
type ResultCache interface {
	Get(ctx context.Context, key string) (*parser.Result, bool, error)
	Set(ctx context.Context, key string, result *parser.Result) error
}

// ScanStore persists scan outcomes
type ScanStore interface {
	SaveScan(ctx context.Context, rec *storage.ScanRecord) error
}

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	extractor Extractor
	cache     ResultCache
	store     ScanStore
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Extractor         Extractor
	Cache             ResultCache // optional
	Store             ScanStore   // optional
	MaxImageSize      int64
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	consumer, err := newConsumer(cfg)
	if err != nil {
		return nil, err
	}
	logger := consumer.logger

	consumer.server = asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			Logger: asynqLogger{logger.With("source", "asynq")},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error",
					"type", task.Type(),
					"payload_bytes", len(task.Payload()),
					"error", err)
			}),
		},
	)

	consumer.mux = asynq.NewServeMux()
	consumer.mux.HandleFunc(TaskTypeScanPrescription, consumer.handleScanPrescription)

	return consumer, nil
}

// newConsumer validates the processing side of the configuration.
func newConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("Extractor is required")
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = 2 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("queue")
	}
	return &Consumer{
		extractor: cfg.Extractor,
		cache:     cfg.Cache,
		store:     cfg.Store,
		config:    cfg,
		logger:    logger,
	}, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency,
		"queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")

	c.server.Shutdown()

	c.logger.Info("Queue consumer stopped")
	return nil
}

func (c *Consumer) handleScanPrescription(ctx context.Context, task *asynq.Task) error {
	var job ScanPayload
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}

	if _, err := c.Process(ctx, &job); err != nil {
		var perr *errors.ProcessingError
		if stderrors.As(err, &perr) && !perr.Retryable() {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	return nil
}

// Process runs one scan job end to end: size check, cache lookup,
// extraction under the job timeout, persistence and caching.
func (c *Consumer) Process(ctx context.Context, job *ScanPayload) (*parser.Result, error) {
	startTime := time.Now()
	logger := c.logger.With("job_id", job.JobID)
	digest := storage.ImageDigest(job.Image)

	logger.Info("Processing prescription scan",
		"filename", job.Filename,
		"size", len(job.Image),
		"user", job.UserID)

	if limit := c.config.MaxImageSize; limit > 0 && int64(len(job.Image)) > limit {
		err := errors.NewImageTooLargeError(job.JobID, int64(len(job.Image)), limit)
		c.saveFailure(ctx, job, digest, err, time.Since(startTime))
		return nil, err
	}

	cacheKey := storage.CacheKey(job.Image)
	if c.cache != nil {
		cached, ok, err := c.cache.Get(ctx, cacheKey)
		if err != nil {
			logger.Warn("Result cache lookup failed", "error", err)
		} else if ok {
			logger.Info("Result served from cache", "engine", cached.OCREngine)
			c.save(ctx, &storage.ScanRecord{
				JobID:            job.JobID,
				UserID:           job.UserID,
				Filename:         job.Filename,
				MimeType:         job.MimeType,
				ImageSHA256:      digest,
				Status:           storage.StatusCompleted,
				Result:           cached,
				ProcessingTimeMs: time.Since(startTime).Milliseconds(),
			})
			return cached, nil
		}
	}

	processCtx, cancel := context.WithTimeout(ctx, c.config.ProcessingTimeout)
	defer cancel()

	result, err := c.extractor.Extract(processCtx, job.Image, job.MimeType)
	duration := time.Since(startTime)
	if err != nil {
		if stderrors.Is(processCtx.Err(), context.DeadlineExceeded) {
			logger.Error("Processing timed out", "duration", duration, "timeout", c.config.ProcessingTimeout)
			err = errors.NewProcessingTimeoutError(job.JobID, c.config.ProcessingTimeout, err)
		} else {
			logger.Error("Processing failed", "duration", duration, "error", err)
		}
		c.saveFailure(ctx, job, digest, err, duration)
		return nil, err
	}

	rec := &storage.ScanRecord{
		JobID:            job.JobID,
		UserID:           job.UserID,
		Filename:         job.Filename,
		MimeType:         job.MimeType,
		ImageSHA256:      digest,
		Status:           storage.StatusCompleted,
		Result:           &result,
		ProcessingTimeMs: duration.Milliseconds(),
	}
	if err := c.save(ctx, rec); err != nil {
		return nil, errors.NewStorageFailedError(job.JobID, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, &result); err != nil {
			logger.Warn("Failed to cache result", "error", err)
		}
	}

	logger.Info("Prescription scan completed",
		"duration", duration,
		"engine", result.OCREngine,
		"ocr_confidence", result.OCRConfidence,
		"medicines", len(result.Medicines),
		"confidence", result.Confidence)

	return &result, nil
}

func (c *Consumer) save(ctx context.Context, rec *storage.ScanRecord) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.SaveScan(ctx, rec); err != nil {
		c.logger.Warn("Failed to save scan", "job_id", rec.JobID, "status", rec.Status, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) saveFailure(ctx context.Context, job *ScanPayload, digest string, err error, duration time.Duration) {
	rec := &storage.ScanRecord{
		JobID:            job.JobID,
		UserID:           job.UserID,
		Filename:         job.Filename,
		MimeType:         job.MimeType,
		ImageSHA256:      digest,
		Status:           storage.StatusFailed,
		ErrorMessage:     errors.ToResult(err).Error,
		ProcessingTimeMs: duration.Milliseconds(),
	}
	var perr *errors.ProcessingError
	if stderrors.As(err, &perr) {
		rec.ErrorCode = string(perr.Code)
	}
	_ = c.save(ctx, rec)
}

// asynqLogger routes asynq's own logging through the worker logger.
type asynqLogger struct {
	l *logging.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{}) { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{}) { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }

func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency":  c.config.Concurrency,
		"queue":        c.config.QueueName,
		"maxImageSize": c.config.MaxImageSize,
		"timeout":      c.config.ProcessingTimeout.String(),
	}
}
