/**
 * OCR Types - Shared data structures for prescription recognition
 *
 * Used by the trained-model backend, the Tesseract backend and the
 * recognition engine that arbitrates between them.
 */

package processor

import (
	"context"
	"image"
	"strings"
)

// LineCrop is one text line cut out of a preprocessed page.
// Bounds are in page coordinates.
type LineCrop struct {
	Bounds image.Rectangle
	Image  *image.Gray
}

// RecognitionResult is the output of a single recognition attempt
type RecognitionResult struct {
	Lines      []string
	Confidence float64
	Engine     string
	Warnings   []string
}

// Text joins the recognized lines.
func (r RecognitionResult) Text() string {
	return strings.Join(r.Lines, "\n")
}

// Recognizer converts a page and its line crops into text lines
type Recognizer interface {
	Name() string
	Recognize(ctx context.Context, page *image.Gray, crops []LineCrop) (RecognitionResult, error)
}

// Scorer rates a candidate set of recognized lines; higher is better.
type Scorer interface {
	QualityScore(lines []string) float64
}
