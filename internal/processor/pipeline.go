/**
 * Prescription Pipeline
 *
 * Orchestrates local prescription digitization:
 * - Page preprocessing (orientation, grayscale, upscale, contrast)
 * - Line segmentation by projection profiles
 * - Recognition with trained-model / Tesseract arbitration
 * - Structured parsing with lexicon-backed medicine names
 */

package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Jitheswar/ruralAi/prescription-worker/internal/errors"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/lexicon"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/logging"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/parser"
)

// LowConfidenceWarning is appended when OCR confidence is under the configured minimum.
const LowConfidenceWarning = "OCR confidence is low. Verify extracted medicines manually."

// ProcessorConfig holds pipeline configuration
type ProcessorConfig struct {
	Engine        string
	ModelPath     string
	ModelDir      string
	MinConfidence float64
	MinEpochs     int
	BatchSize     int
	MaxNewTokens  int
	RuntimeURL    string
	RuntimeModel  string
	Tesseract     TesseractConfig
	DebugCropDir  string
	Normalizer    *lexicon.Normalizer
	Logger        *logging.Logger
}

// ModelStatus reports which recognition backends are usable
type ModelStatus struct {
	PreferredEngine     string `json:"preferred_engine"`
	ModelArtifactPath   string `json:"model_artifact_path"`
	ModelArtifactExists bool   `json:"model_artifact_exists"`
	ModelDirPath        string `json:"model_dir_path"`
	ModelDirExists      bool   `json:"model_dir_exists"`
	TesseractAvailable  bool   `json:"tesseract_available"`
}

// PrescriptionPipeline turns prescription images into structured results.
// One pipeline is built per process and shared across calls.
type PrescriptionPipeline struct {
	engine    *RecognitionEngine
	parser    *parser.Parser
	tesseract *TesseractOCR
	dumper    *CropDumper
	status    ModelStatus
	minConf   float64
	logger    *logging.Logger
}

// NewPrescriptionPipeline wires the recognition backends, the arbiter and
// the parser from configuration.
func NewPrescriptionPipeline(cfg *ProcessorConfig) (*PrescriptionPipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("pipeline")
	}

	var names parser.NameMatcher
	if cfg.Normalizer != nil {
		names = cfg.Normalizer
	}
	p := parser.New(names, parser.Options{})

	tesseract := NewTesseractOCR(cfg.Tesseract, p, logger.With("backend", parser.EngineTesseract))

	var trained Recognizer
	if cfg.Engine == PreferTrOCR {
		runtime, err := NewOllamaRuntime(cfg.RuntimeURL, cfg.RuntimeModel)
		if err != nil {
			// Recognition falls back to Tesseract with a warning on every call.
			logger.Warn("Model runtime not configured", "error", err)
		}
		var mr ModelRuntime
		if runtime != nil {
			mr = runtime
		}
		trained = NewTrOCRRecognizer(TrOCRConfig{
			ModelDir:     cfg.ModelDir,
			MinEpochs:    cfg.MinEpochs,
			BatchSize:    cfg.BatchSize,
			MaxNewTokens: cfg.MaxNewTokens,
		}, mr, logger.With("backend", parser.EngineTrOCR))
	}

	engine, err := NewRecognitionEngine(EngineOptions{
		Preferred:    cfg.Engine,
		Trained:      trained,
		Classical:    tesseract,
		Scorer:       p,
		ArtifactPath: cfg.ModelPath,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create recognition engine: %w", err)
	}

	pipeline := NewPipeline(engine, p, cfg.MinConfidence, logger)
	pipeline.tesseract = tesseract
	pipeline.dumper = NewCropDumper(cfg.DebugCropDir)
	pipeline.status = ModelStatus{
		PreferredEngine:   cfg.Engine,
		ModelArtifactPath: cfg.ModelPath,
		ModelDirPath:      cfg.ModelDir,
	}
	return pipeline, nil
}

// NewPipeline assembles a pipeline from an existing engine and parser
func NewPipeline(engine *RecognitionEngine, p *parser.Parser, minConfidence float64, logger *logging.Logger) *PrescriptionPipeline {
	if logger == nil {
		logger = logging.Nop()
	}
	return &PrescriptionPipeline{
		engine:  engine,
		parser:  p,
		minConf: minConfidence,
		logger:  logger,
		status:  ModelStatus{PreferredEngine: engine.preferred},
	}
}

// Extract runs the full pipeline on one image. The MIME type is advisory.
func (p *PrescriptionPipeline) Extract(ctx context.Context, data []byte, mimeType string) (parser.Result, error) {
	startTime := time.Now()

	detected := detectImageType(data)
	if detected == "" {
		return parser.Result{}, errors.NewDecodeError(fmt.Errorf("%w (%d bytes)", ErrUnsupportedFormat, len(data)))
	}
	if mimeType != "" && detected != mimeType {
		p.logger.Debug("MIME hint differs from content", "hint", mimeType, "detected", detected)
	}

	page, err := Preprocess(data)
	if err != nil {
		return parser.Result{}, errors.NewDecodeError(err)
	}

	crops := Segment(page)
	p.logger.Debug("Page segmented",
		"width", page.Bounds().Dx(),
		"height", page.Bounds().Dy(),
		"lines", len(crops))

	if p.dumper != nil {
		if dir, err := p.dumper.Dump(crops); err != nil {
			p.logger.Warn("Failed to dump line crops", "error", err)
		} else {
			p.logger.Debug("Line crops dumped", "dir", dir)
		}
	}

	recognition, err := p.engine.Recognize(ctx, page, crops)
	if err != nil {
		return parser.Result{}, errors.NewOCRFailedError(p.engine.preferred, err)
	}

	rawText := strings.TrimSpace(recognition.Text())
	if rawText == "" {
		return parser.Result{}, errors.NewNoTextError(recognition.Engine)
	}

	result := p.parser.ParseLines(recognition.Lines, parser.Meta{
		RawText:    rawText,
		Engine:     recognition.Engine,
		Confidence: recognition.Confidence,
		Warnings:   recognition.Warnings,
	})
	if result.OCRConfidence < p.minConf {
		result.Warnings = append(result.Warnings, LowConfidenceWarning)
	}

	p.logger.Info("Prescription extracted",
		"engine", result.OCREngine,
		"ocr_confidence", result.OCRConfidence,
		"medicines", len(result.Medicines),
		"warnings", len(result.Warnings),
		"duration_ms", time.Since(startTime).Milliseconds())

	return result, nil
}

// ParseText parses already transcribed prescription text.
func (p *PrescriptionPipeline) ParseText(raw string) parser.Result {
	return p.parser.ParseText(raw)
}

// Status reports the configured engine and whether its artifacts exist.
func (p *PrescriptionPipeline) Status() ModelStatus {
	status := p.status
	status.ModelArtifactExists = status.ModelArtifactPath != "" && fileExists(status.ModelArtifactPath)
	status.ModelDirExists = status.ModelDirPath != "" && fileExists(status.ModelDirPath)
	status.TesseractAvailable = p.tesseract != nil && p.tesseract.Available()
	return status
}
