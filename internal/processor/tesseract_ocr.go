/**
 * Tesseract OCR - Classical recognition backend
 *
 * Whole-page recognition first (block mode, then sparse-text mode when the
 * page scores poorly), per-line recognition only when the page yields
 * nothing. Every call runs under its own timeout, and a bounded number of
 * library calls run at once.
 */

package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/Jitheswar/ruralAi/prescription-worker/internal/logging"
	"github.com/Jitheswar/ruralAi/prescription-worker/internal/parser"
)

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Language      string
	PageTimeout   time.Duration
	SparseTimeout time.Duration
	LineTimeout   time.Duration
	// MaxInFlight caps concurrent library calls, including calls whose
	// caller already timed out.
	MaxInFlight int
}

// tesseractCall runs one blocking recognition on an encoded image.
type tesseractCall func(img []byte, mode gosseract.PageSegMode, withWords bool) (tesseractOutput, error)

// TesseractOCR is the classical OCR backend
type TesseractOCR struct {
	cfg       TesseractConfig
	scorer    Scorer
	logger    *logging.Logger
	slots     chan struct{}
	call      tesseractCall
	languages func() ([]string, error)
}

// NewTesseractOCR creates a new Tesseract OCR instance
func NewTesseractOCR(cfg TesseractConfig, scorer Scorer, logger *logging.Logger) *TesseractOCR {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 600 * time.Millisecond
	}
	if cfg.SparseTimeout <= 0 {
		cfg.SparseTimeout = 500 * time.Millisecond
	}
	if cfg.LineTimeout <= 0 {
		cfg.LineTimeout = 350 * time.Millisecond
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 4
	}
	if logger == nil {
		logger = logging.Nop()
	}
	t := &TesseractOCR{
		cfg:       cfg,
		scorer:    scorer,
		logger:    logger,
		slots:     make(chan struct{}, cfg.MaxInFlight),
		languages: gosseract.GetAvailableLanguages,
	}
	t.call = t.recognizeBytes
	return t
}

func (t *TesseractOCR) Name() string { return parser.EngineTesseract }

// Available reports whether trained data for every configured language
// ("eng", "eng+hin") is installed.
func (t *TesseractOCR) Available() bool {
	installed, err := t.languages()
	if err != nil {
		t.logger.Debug("Listing Tesseract languages failed", "error", err)
		return false
	}
	for _, lang := range strings.Split(t.cfg.Language, "+") {
		if !slices.Contains(installed, strings.TrimSpace(lang)) {
			return false
		}
	}
	return true
}

type tesseractOutput struct {
	text  string
	words []float64
}

// Recognize performs OCR on the page, falling back to per-line crops.
func (t *TesseractOCR) Recognize(ctx context.Context, page *image.Gray, crops []LineCrop) (RecognitionResult, error) {
	var attempts, hardFailures int
	var lastErr error
	run := func(img image.Image, mode gosseract.PageSegMode, timeout time.Duration, withWords bool) (tesseractOutput, bool) {
		attempts++
		out, err := t.ocr(ctx, img, mode, timeout, withWords)
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				hardFailures++
				lastErr = err
			}
			t.logger.Debug("Tesseract call failed", "mode", int(mode), "error", err)
			return tesseractOutput{}, false
		}
		return out, true
	}

	if page != nil {
		var lines []string
		if out, ok := run(page, gosseract.PSM_SINGLE_BLOCK, t.cfg.PageTimeout, false); ok {
			lines = cleanedLines(out.text)
		}
		score := t.scorer.QualityScore(lines)

		if score < 1.0 {
			if out, ok := run(page, gosseract.PSM_SPARSE_TEXT, t.cfg.SparseTimeout, false); ok {
				sparse := cleanedLines(out.text)
				if sparseScore := t.scorer.QualityScore(sparse); sparseScore > score {
					lines = sparse
				}
			}
		}

		if len(lines) > 0 {
			return RecognitionResult{
				Lines:      lines,
				Confidence: pageConfidence(lines),
				Engine:     parser.EngineTesseract,
				Warnings:   []string{},
			}, nil
		}
	}

	var lines []string
	var confidences []float64
	for _, crop := range crops {
		out, ok := run(crop.Image, gosseract.PSM_SINGLE_LINE, t.cfg.LineTimeout, true)
		if !ok {
			continue
		}
		if text := parser.CleanLine(out.text); text != "" {
			lines = append(lines, text)
		}
		if len(out.words) > 0 {
			confidences = append(confidences, mean(out.words))
		}
	}

	if attempts > 0 && hardFailures == attempts {
		return RecognitionResult{}, fmt.Errorf("tesseract failed on every call: %w", lastErr)
	}

	return RecognitionResult{
		Lines:      lines,
		Confidence: mean(confidences),
		Engine:     parser.EngineTesseract,
		Warnings:   []string{},
	}, nil
}

// ocr runs one Tesseract call in the background and gives up after timeout.
// The library call cannot be interrupted, so an abandoned call keeps its
// slot until it returns; when every slot is busy the call times out
// without starting.
func (t *TesseractOCR) ocr(ctx context.Context, img image.Image, mode gosseract.PageSegMode, timeout time.Duration, withWords bool) (tesseractOutput, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return tesseractOutput{}, fmt.Errorf("encode image: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case t.slots <- struct{}{}:
	case <-ctx.Done():
		return tesseractOutput{}, ctx.Err()
	}

	type result struct {
		out tesseractOutput
		err error
	}
	done := make(chan result, 1)

	go func() {
		out, err := t.call(buf.Bytes(), mode, withWords)
		<-t.slots
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return tesseractOutput{}, ctx.Err()
	}
}

// recognizeBytes is the gosseract-backed tesseractCall.
func (t *TesseractOCR) recognizeBytes(img []byte, mode gosseract.PageSegMode, withWords bool) (tesseractOutput, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.cfg.Language); err != nil {
		return tesseractOutput{}, fmt.Errorf("set language: %w", err)
	}
	if err := client.SetPageSegMode(mode); err != nil {
		return tesseractOutput{}, fmt.Errorf("set page seg mode: %w", err)
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return tesseractOutput{}, fmt.Errorf("failed to set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return tesseractOutput{}, fmt.Errorf("tesseract OCR failed: %w", err)
	}
	out := tesseractOutput{text: text}
	if withWords {
		out.words = wordConfidences(client)
	}
	return out, nil
}

// wordConfidences returns per-word confidences in [0,1], skipping the
// negative values Tesseract reports for non-text boxes.
func wordConfidences(client *gosseract.Client) []float64 {
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil
	}
	out := make([]float64, 0, len(boxes))
	for _, b := range boxes {
		if b.Confidence >= 0 {
			out = append(out, b.Confidence/100.0)
		}
	}
	return out
}

func cleanedLines(text string) []string {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		if line := parser.CleanLine(raw); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// pageConfidence estimates confidence for whole-page output from the
// number of lines and their average length, bounded to [0.2, 0.95].
func pageConfidence(lines []string) float64 {
	if len(lines) == 0 {
		return 0
	}
	total := 0
	for _, line := range lines {
		total += len([]rune(line))
	}
	avgLen := float64(total) / float64(len(lines))
	return min(0.95, max(0.2, 0.25+0.06*float64(len(lines))+avgLen/140.0))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
