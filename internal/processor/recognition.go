package processor

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/Jitheswar/ruralAi/prescription-worker/internal/logging"
)

// Preferred engine settings.
const (
	PreferTrOCR     = "trocr"
	PreferTesseract = "tesseract"
)

// DefaultMinTrainedScore is the quality score trained-model output must
// reach before it is used without consulting the classical backend.
const DefaultMinTrainedScore = 1.0

// EngineOptions configure a RecognitionEngine
type EngineOptions struct {
	Preferred       string
	Trained         Recognizer
	Classical       Recognizer
	Scorer          Scorer
	ArtifactPath    string
	MinTrainedScore float64
	Logger          *logging.Logger
}

// RecognitionEngine picks between the trained and the classical backend
type RecognitionEngine struct {
	preferred       string
	trained         Recognizer
	classical       Recognizer
	scorer          Scorer
	artifactPath    string
	minTrainedScore float64
	logger          *logging.Logger
}

// NewRecognitionEngine creates an arbitrating recognition engine
func NewRecognitionEngine(opts EngineOptions) (*RecognitionEngine, error) {
	if opts.Classical == nil {
		return nil, fmt.Errorf("classical recognizer is required")
	}
	if opts.Scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if opts.MinTrainedScore <= 0 {
		opts.MinTrainedScore = DefaultMinTrainedScore
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &RecognitionEngine{
		preferred:       strings.ToLower(strings.TrimSpace(opts.Preferred)),
		trained:         opts.Trained,
		classical:       opts.Classical,
		scorer:          opts.Scorer,
		artifactPath:    opts.ArtifactPath,
		minTrainedScore: opts.MinTrainedScore,
		logger:          opts.Logger,
	}, nil
}

// Recognize runs the preferred backend and falls back to the classical one
// when the trained model is unavailable or its output scores poorly.
func (e *RecognitionEngine) Recognize(ctx context.Context, page *image.Gray, crops []LineCrop) (RecognitionResult, error) {
	var warnings []string

	if e.preferred == PreferTrOCR && e.trained != nil {
		result, err := e.recognizeTrained(ctx, page, crops)
		if err == nil {
			return result, nil
		}
		e.logger.Warn("Trained recognizer unavailable, using Tesseract", "error", err)
		warnings = append(warnings, fmt.Sprintf("TrOCR unavailable, fallback to Tesseract: %v", err))
	}

	result, err := e.classical.Recognize(ctx, page, crops)
	if err != nil {
		return RecognitionResult{}, err
	}
	result.Warnings = append(result.Warnings, warnings...)
	return result, nil
}

func (e *RecognitionEngine) recognizeTrained(ctx context.Context, page *image.Gray, crops []LineCrop) (RecognitionResult, error) {
	trained, err := e.trained.Recognize(ctx, page, crops)
	if err != nil {
		return RecognitionResult{}, err
	}

	artifactMissing := e.artifactPath != "" && !fileExists(e.artifactPath)
	if artifactMissing {
		trained.Warnings = append(trained.Warnings,
			fmt.Sprintf("Configured OCR artifact missing at %s. Running TrOCR from model directory.", e.artifactPath))
	}

	trainedScore := e.scorer.QualityScore(trained.Lines)
	if trainedScore >= e.minTrainedScore {
		return trained, nil
	}

	classical, err := e.classical.Recognize(ctx, page, crops)
	if err != nil {
		e.logger.Warn("Tesseract comparison run failed, keeping TrOCR output", "error", err)
		return trained, nil
	}

	classicalScore := e.scorer.QualityScore(classical.Lines)
	e.logger.Debug("Recognition quality compared",
		"trocr_score", trainedScore,
		"tesseract_score", classicalScore)
	if classicalScore < trainedScore {
		return trained, nil
	}

	classical.Warnings = append(classical.Warnings, "TrOCR output quality was low; switched to local Tesseract for this page.")
	if artifactMissing {
		classical.Warnings = append(classical.Warnings, fmt.Sprintf("Configured OCR artifact missing at %s.", e.artifactPath))
	}
	return classical, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
