package parser

import (
	"fmt"
	"math"
	"strings"
)

// Engine identifiers reported in results.
const (
	EngineTesseract = "local-tesseract"
	EngineTrOCR     = "local-trocr"
)

// Confidence labels.
const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// NameMatcher resolves a medicine name candidate against a lexicon.
type NameMatcher interface {
	Match(name string) (string, bool)
}

type passthrough struct{}

func (passthrough) Match(name string) (string, bool) {
	return strings.TrimSpace(name), false
}

// Options hold the tuned parser thresholds.
type Options struct {
	// Lines with no dosage, frequency or duration and at most this many
	// tokens are not medicines.
	ShortLineTokens int
	// Names that miss the lexicon are dropped at this many tokens.
	UnmatchedTokenLimit int
	// Fallback names are cut to this many characters.
	FallbackNameLength int
}

func (o Options) withDefaults() Options {
	if o.ShortLineTokens <= 0 {
		o.ShortLineTokens = 3
	}
	if o.UnmatchedTokenLimit <= 0 {
		o.UnmatchedTokenLimit = 3
	}
	if o.FallbackNameLength <= 0 {
		o.FallbackNameLength = 60
	}
	return o
}

// Parser turns recognized text lines into a structured prescription.
type Parser struct {
	names NameMatcher
	opts  Options
}

// New creates a parser. A nil matcher leaves names as extracted.
func New(names NameMatcher, opts Options) *Parser {
	if names == nil {
		names = passthrough{}
	}
	return &Parser{names: names, opts: opts.withDefaults()}
}

// Result is the structured output of one prescription scan.
type Result struct {
	Medicines     []Medicine `json:"medicines"`
	DoctorName    string     `json:"doctor_name,omitempty"`
	Date          string     `json:"date,omitempty"`
	Notes         string     `json:"notes"`
	Confidence    string     `json:"confidence"`
	RawText       string     `json:"raw_text"`
	OCREngine     string     `json:"ocr_engine"`
	OCRConfidence float64    `json:"ocr_confidence"`
	Warnings      []string   `json:"warnings"`
}

// Meta describes where a set of lines came from.
type Meta struct {
	RawText    string
	Engine     string
	Confidence float64
	Warnings   []string
}

// ParseLines cleans every line, extracts medicines and header fields, and
// shapes the result.
func (p *Parser) ParseLines(lines []string, meta Meta) Result {
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		if c := CleanLine(line); c != "" {
			cleaned = append(cleaned, c)
		}
	}

	medicines := make([]Medicine, 0)
	for _, line := range cleaned {
		if med, ok := p.ExtractMedicine(line); ok {
			medicines = append(medicines, med)
		}
	}
	if len(medicines) == 0 {
		medicines = append(medicines, p.fallbackMedicines(cleaned)...)
	}

	doctor := ExtractDoctorName(cleaned)
	warnings := make([]string, 0, len(meta.Warnings))
	warnings = append(warnings, meta.Warnings...)

	return Result{
		Medicines:     medicines,
		DoctorName:    doctor,
		Date:          ExtractDate(cleaned),
		Notes:         fmt.Sprintf("Extracted via %s. %d lines parsed.", meta.Engine, len(cleaned)),
		Confidence:    ConfidenceLabel(len(medicines), doctor),
		RawText:       meta.RawText,
		OCREngine:     meta.Engine,
		OCRConfidence: RoundConfidence(meta.Confidence),
		Warnings:      warnings,
	}
}

// ParseText parses already transcribed text, one entry per line.
func (p *Parser) ParseText(raw string) Result {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return p.ParseLines(lines, Meta{
		RawText: strings.TrimSpace(raw),
		Engine:  EngineTesseract,
	})
}

// QualityScore rates a candidate line set: medicine lines count one each,
// plus the unique-line ratio, plus 0.35 each for a doctor name and a date.
func (p *Parser) QualityScore(lines []string) float64 {
	if len(lines) == 0 {
		return 0
	}
	score := 0.0
	unique := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := p.ExtractMedicine(line); ok {
			score++
		}
		unique[strings.ToLower(line)] = struct{}{}
	}
	score += float64(len(unique)) / float64(len(lines))
	if ExtractDoctorName(lines) != "" {
		score += 0.35
	}
	if ExtractDate(lines) != "" {
		score += 0.35
	}
	return score
}

// ConfidenceLabel summarizes extraction reliability.
func ConfidenceLabel(medicines int, doctor string) string {
	switch {
	case medicines > 0 && doctor != "":
		return ConfidenceHigh
	case medicines > 0:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// RoundConfidence clamps a confidence to [0,1] and rounds it to 4 decimals.
func RoundConfidence(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return math.Round(v*10000) / 10000
}
