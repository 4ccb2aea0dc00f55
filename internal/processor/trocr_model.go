/**
 * TrOCR backend - trained vision-to-text line recognizer
 *
 * The fine-tuned model lives in a model directory next to its
 * training_config.json. Models trained for fewer epochs than the
 * configured minimum are refused. The loaded handle is cached and reused
 * until the configured model directory changes.
 */

package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/Jitheswar/ruralAi/prescription-worker/internal/logging"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/parser"
)

// trainedConfidence is the fixed confidence reported for trained-model output.
const trainedConfidence = 0.78

// ModelRuntime loads a trained model directory for inference
type ModelRuntime interface {
	Load(ctx context.Context, modelDir string) (ModelHandle, error)
}

// ModelHandle decodes a batch of line images with greedy decoding,
// returning one string per image in order.
type ModelHandle interface {
	Decode(ctx context.Context, batch []image.Image, maxNewTokens int) ([]string, error)
}

// TrOCRConfig holds trained-model backend configuration
type TrOCRConfig struct {
	ModelDir     string
	MinEpochs    int
	BatchSize    int
	MaxNewTokens int
}

// TrOCRRecognizer runs the trained model over line crops
type TrOCRRecognizer struct {
	cfg     TrOCRConfig
	runtime ModelRuntime
	logger  *logging.Logger

	mu       sync.Mutex
	handle   ModelHandle
	handleID string
}

// NewTrOCRRecognizer creates the trained-model backend
func NewTrOCRRecognizer(cfg TrOCRConfig, runtime ModelRuntime, logger *logging.Logger) *TrOCRRecognizer {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.MaxNewTokens < 1 {
		cfg.MaxNewTokens = 48
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &TrOCRRecognizer{cfg: cfg, runtime: runtime, logger: logger}
}

func (r *TrOCRRecognizer) Name() string { return parser.EngineTrOCR }

// Recognize decodes every crop in fixed-size batches.
func (r *TrOCRRecognizer) Recognize(ctx context.Context, _ *image.Gray, crops []LineCrop) (RecognitionResult, error) {
	handle, err := r.load(ctx)
	if err != nil {
		return RecognitionResult{}, err
	}

	var lines []string
	for i := 0; i < len(crops); i += r.cfg.BatchSize {
		end := min(i+r.cfg.BatchSize, len(crops))
		batch := make([]image.Image, 0, end-i)
		for _, crop := range crops[i:end] {
			batch = append(batch, crop.Image)
		}

		decoded, err := handle.Decode(ctx, batch, r.cfg.MaxNewTokens)
		if err != nil {
			return RecognitionResult{}, fmt.Errorf("decode batch %d: %w", i/r.cfg.BatchSize, err)
		}
		for _, text := range decoded {
			if cleaned := parser.CleanLine(text); cleaned != "" {
				lines = append(lines, cleaned)
			}
		}
	}

	return RecognitionResult{
		Lines:      lines,
		Confidence: trainedConfidence,
		Engine:     parser.EngineTrOCR,
		Warnings:   []string{},
	}, nil
}

// load validates the model directory and returns the cached handle,
// loading it on first use or when the directory changed.
func (r *TrOCRRecognizer) load(ctx context.Context) (ModelHandle, error) {
	dir := r.cfg.ModelDir
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("TrOCR model directory not found: %s", dir)
	}

	if epochs, ok := readTrainedEpochs(dir); ok && epochs < r.cfg.MinEpochs {
		return nil, fmt.Errorf("TrOCR model is undertrained for production use (epochs=%d, required>=%d)", epochs, r.cfg.MinEpochs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle != nil && r.handleID == dir {
		return r.handle, nil
	}
	if r.runtime == nil {
		return nil, fmt.Errorf("no model runtime configured")
	}

	handle, err := r.runtime.Load(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("load TrOCR model: %w", err)
	}
	r.handle = handle
	r.handleID = dir
	r.logger.Info("TrOCR model loaded", "model_dir", dir)
	return handle, nil
}

// readTrainedEpochs reads "epochs" from training_config.json. The second
// return value is false when the file or value is missing or unreadable.
func readTrainedEpochs(modelDir string) (int, bool) {
	data, err := os.ReadFile(filepath.Join(modelDir, "training_config.json"))
	if err != nil {
		return 0, false
	}
	var payload struct {
		Epochs json.RawMessage `json:"epochs"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || len(payload.Epochs) == 0 {
		return 0, false
	}

	var n float64
	if err := json.Unmarshal(payload.Epochs, &n); err == nil {
		return int(n), true
	}
	var s string
	if err := json.Unmarshal(payload.Epochs, &s); err == nil {
		if v, err := strconv.Atoi(s); err == nil {
			return v, true
		}
	}
	return 0, false
}
