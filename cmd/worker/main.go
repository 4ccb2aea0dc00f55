/**
 * Prescription Scan Worker - Main Entry Point
 *
 * Architecture:
 * - Asynq consumer for Redis-backed scan-prescription jobs
 * - Local OCR pipeline: trained line recognizer with Tesseract fallback
 * - Medicine lexicon from a seed file or the medicines table
 * - PostgreSQL persistence of scan outcomes, Redis result cache
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Jitheswar/ruralAi/prescription-worker/internal/config"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/lexicon"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/logging"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/processor"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/queue"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/storage"
)

func main() {
	logger := logging.NewLogger("worker")

	if err := godotenv.Load(".env.prescription"); err != nil {
		logger.Warn(".env.prescription not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fatal(logger, "Failed to load configuration", err)
	}
	logging.SetLevel(cfg.LogLevel)

	logger.Info("Prescription worker starting",
		"engine", cfg.Engine,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency,
		"lexicon_source", cfg.LexiconSource)

	// PostgreSQL is optional unless it also serves the lexicon
	var db *storage.PostgresClient
	if cfg.DatabaseURL != "" {
		db, err = storage.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			if cfg.LexiconSource == config.LexiconSourcePostgres {
				fatal(logger, "Failed to connect to PostgreSQL", err)
			}
			logger.Warn("PostgreSQL unavailable, scan results will not be persisted", "error", err)
			db = nil
		} else {
			defer db.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := db.EnsureSchema(ctx); err != nil {
				logger.Warn("Failed to ensure scan table", "error", err)
			}
			cancel()
		}
	}

	var source lexicon.Source = lexicon.SeedFileSource{Path: cfg.MedicineSeedPath}
	if cfg.LexiconSource == config.LexiconSourcePostgres {
		source = db
	}
	normalizer := lexicon.NewNormalizer(source, lexicon.Options{}, logging.NewLogger("lexicon"))
	warmCtx, cancelWarm := context.WithTimeout(context.Background(), 30*time.Second)
	if err := normalizer.Warm(warmCtx); err != nil {
		logger.Warn("Medicine lexicon unavailable, names will not be normalized", "error", err)
	}
	cancelWarm()

	pipeline, err := processor.NewPrescriptionPipeline(cfg.ProcessorConfig(normalizer, logging.NewLogger("pipeline")))
	if err != nil {
		fatal(logger, "Failed to initialize prescription pipeline", err)
	}
	status := pipeline.Status()
	logger.Info("Prescription pipeline initialized",
		"preferred_engine", status.PreferredEngine,
		"model_dir_exists", status.ModelDirExists,
		"model_artifact_exists", status.ModelArtifactExists,
		"tesseract_available", status.TesseractAvailable)

	consumerCfg := &queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Extractor:         pipeline,
		MaxImageSize:      cfg.MaxImageSize,
		ProcessingTimeout: cfg.JobTimeout(),
		Logger:            logging.NewLogger("queue"),
	}
	if db != nil {
		consumerCfg.Store = db
	}
	if ttl := cfg.CacheTTL(); ttl > 0 {
		cache, err := storage.NewResultCache(cfg.RedisURL, ttl)
		if err != nil {
			logger.Warn("Result cache disabled", "error", err)
		} else {
			defer cache.Close()
			consumerCfg.Cache = cache
		}
	}

	consumer, err := queue.NewConsumer(consumerCfg)
	if err != nil {
		fatal(logger, "Failed to initialize queue consumer", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := consumer.Start(ctx); err != nil {
		fatal(logger, "Failed to start queue consumer", err)
	}
	logger.Info("Prescription worker ready, waiting for jobs", "queue", cfg.QueueName)

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	if err := consumer.Stop(context.Background()); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}
	logger.Info("Shutdown complete")
}

func fatal(logger *logging.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
