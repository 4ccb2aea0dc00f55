/**
 * Configuration for the Prescription Scan Worker
 *
 * Loads configuration from environment variables matching .env.prescription
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Jitheswar/ruralAi/prescription-worker/internal/lexicon"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/logging"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/processor"
)

// Lexicon sources
const (
	LexiconSourceFile     = "file"
	LexiconSourcePostgres = "postgres"
)

// Config holds worker configuration
type Config struct {
	// OCR engine configuration
	Engine        string
	ModelPath     string
	ModelDir      string
	MinConfidence float64
	MinEpochs     int
	BatchSize     int
	MaxNewTokens  int
	RuntimeURL    string
	RuntimeModel  string

	// Tesseract configuration
	TesseractLanguage      string
	TesseractPageTimeout   int
	TesseractSparseTimeout int
	TesseractLineTimeout   int
	TesseractMaxInFlight   int

	// Medicine lexicon
	MedicineSeedPath string
	LexiconSource    string

	// Line crops are dumped here when set
	DebugCropDir string

	// Redis configuration
	RedisURL string

	// PostgreSQL configuration
	DatabaseURL string

	// Worker configuration
	QueueName         string
	WorkerConcurrency int
	ProcessingTimeout int
	MaxImageSize      int64
	ResultCacheTTL    int

	LogLevel string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Engine:                 strings.ToLower(getEnvOrDefault("PRESCRIPTION_OCR_ENGINE", processor.PreferTrOCR)),
		ModelPath:              getEnvOrDefault("PRESCRIPTION_OCR_MODEL_PATH", "models/prescription_ocr_trocr_int8.onnx"),
		ModelDir:               getEnvOrDefault("PRESCRIPTION_OCR_MODEL_DIR", "models/prescription_ocr_trocr"),
		MinConfidence:          getEnvAsFloatOrDefault("PRESCRIPTION_OCR_MIN_CONFIDENCE", 0.45),
		MinEpochs:              getEnvAsIntOrDefault("PRESCRIPTION_OCR_MIN_TROCR_EPOCHS", 5),
		BatchSize:              getEnvAsIntOrDefault("PRESCRIPTION_OCR_BATCH_SIZE", 8),
		MaxNewTokens:           getEnvAsIntOrDefault("PRESCRIPTION_OCR_MAX_NEW_TOKENS", 48),
		RuntimeURL:             getEnvOrDefault("PRESCRIPTION_OCR_RUNTIME_URL", "http://localhost:11434"),
		RuntimeModel:           getEnvOrDefault("PRESCRIPTION_OCR_RUNTIME_MODEL", ""),
		TesseractLanguage:      getEnvOrDefault("TESSERACT_LANGUAGE", "eng"),
		TesseractPageTimeout:   getEnvAsIntOrDefault("TESSERACT_PAGE_TIMEOUT_MS", 600),
		TesseractSparseTimeout: getEnvAsIntOrDefault("TESSERACT_SPARSE_TIMEOUT_MS", 500),
		TesseractLineTimeout:   getEnvAsIntOrDefault("TESSERACT_LINE_TIMEOUT_MS", 350),
		TesseractMaxInFlight:   getEnvAsIntOrDefault("TESSERACT_MAX_INFLIGHT", 4),
		MedicineSeedPath:       getEnvOrDefault("MEDICINE_SEED_PATH", "supabase/seed-medicines.sql"),
		LexiconSource:          strings.ToLower(getEnvOrDefault("MEDICINE_LEXICON_SOURCE", LexiconSourceFile)),
		DebugCropDir:           getEnvOrDefault("OCR_DEBUG_CROP_DIR", ""),
		RedisURL:               getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:            getEnvOrDefault("DATABASE_URL", ""),
		QueueName:              getEnvOrDefault("QUEUE_NAME", "prescription:scans"),
		WorkerConcurrency:      getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout:      getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 120000), // 2 minutes
		MaxImageSize:           getEnvAsInt64OrDefault("MAX_IMAGE_SIZE", 10485760), // 10MB
		ResultCacheTTL:         getEnvAsIntOrDefault("RESULT_CACHE_TTL_SECONDS", 86400),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Engine != processor.PreferTrOCR && c.Engine != processor.PreferTesseract {
		return fmt.Errorf("PRESCRIPTION_OCR_ENGINE must be %q or %q, got %q",
			processor.PreferTrOCR, processor.PreferTesseract, c.Engine)
	}

	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("PRESCRIPTION_OCR_MIN_CONFIDENCE must be between 0 and 1, got %v", c.MinConfidence)
	}

	if c.MinEpochs < 0 {
		return fmt.Errorf("PRESCRIPTION_OCR_MIN_TROCR_EPOCHS must not be negative, got %d", c.MinEpochs)
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("PRESCRIPTION_OCR_BATCH_SIZE must be at least 1, got %d", c.BatchSize)
	}

	if c.MaxNewTokens < 1 {
		return fmt.Errorf("PRESCRIPTION_OCR_MAX_NEW_TOKENS must be at least 1, got %d", c.MaxNewTokens)
	}

	if c.TesseractMaxInFlight < 1 {
		return fmt.Errorf("TESSERACT_MAX_INFLIGHT must be at least 1, got %d", c.TesseractMaxInFlight)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.MaxImageSize < 1024 {
		return fmt.Errorf("MAX_IMAGE_SIZE must be at least 1KB, got %d", c.MaxImageSize)
	}

	switch c.LexiconSource {
	case LexiconSourceFile:
	case LexiconSourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when MEDICINE_LEXICON_SOURCE=%s", LexiconSourcePostgres)
		}
	default:
		return fmt.Errorf("MEDICINE_LEXICON_SOURCE must be %q or %q, got %q",
			LexiconSourceFile, LexiconSourcePostgres, c.LexiconSource)
	}

	return nil
}

// TesseractConfig returns the classical backend settings
func (c *Config) TesseractConfig() processor.TesseractConfig {
	return processor.TesseractConfig{
		Language:      c.TesseractLanguage,
		PageTimeout:   time.Duration(c.TesseractPageTimeout) * time.Millisecond,
		SparseTimeout: time.Duration(c.TesseractSparseTimeout) * time.Millisecond,
		LineTimeout:   time.Duration(c.TesseractLineTimeout) * time.Millisecond,
		MaxInFlight:   c.TesseractMaxInFlight,
	}
}

// ProcessorConfig returns the pipeline settings
func (c *Config) ProcessorConfig(normalizer *lexicon.Normalizer, logger *logging.Logger) *processor.ProcessorConfig {
	return &processor.ProcessorConfig{
		Engine:        c.Engine,
		ModelPath:     c.ModelPath,
		ModelDir:      c.ModelDir,
		MinConfidence: c.MinConfidence,
		MinEpochs:     c.MinEpochs,
		BatchSize:     c.BatchSize,
		MaxNewTokens:  c.MaxNewTokens,
		RuntimeURL:    c.RuntimeURL,
		RuntimeModel:  c.RuntimeModel,
		Tesseract:     c.TesseractConfig(),
		DebugCropDir:  c.DebugCropDir,
		Normalizer:    normalizer,
		Logger:        logger,
	}
}

// JobTimeout is the per-job processing deadline
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.ProcessingTimeout) * time.Millisecond
}

// CacheTTL is how long results stay cached; zero disables caching
func (c *Config) CacheTTL() time.Duration {
	if c.ResultCacheTTL <= 0 {
		return 0
	}
	return time.Duration(c.ResultCacheTTL) * time.Second
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}
