package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// A pass is one rewrite step over a line of text. Passes run in order.
type pass func(string) string

func applyPasses(s string, passes []pass) string {
	for _, p := range passes {
		s = p(s)
	}
	return s
}

var (
	dashReplacer = strings.NewReplacer("—", "-", "–", "-")

	dosageFormJoin    = regexp.MustCompile(`(?i)\b(tab|cap|syp|syr|inj|oint|drops|drop|gel)([a-z])`)
	frequencyMultiple = regexp.MustCompile(`(?i)\b(OD|BD|TDS|QID|SOS|HS|PRN)\s*[xX]\b`)

	dosageFormPrefix = regexp.MustCompile(`(?i)^(?:Tab|Cap|Syp|Syr|Inj|Ini|Oint|Cream|Drops?|Gel)\.?\s*`)
	dosagePattern    = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*(?:mg|ml|g|mcg|%)\b`)
	frequencyPattern = regexp.MustCompile(`(?i)\b(OD|BD|TDS|QID|SOS|HS|PRN|[01]-[01]-[01]|once|twice|thrice|\d+\s*times?\s*(?:a|per)\s*day)(?:[xX])?\b`)
	durationPattern  = regexp.MustCompile(`(?i)(?:\bfor\b|\bx\b)?\s*(\d+\s*(?:days?|weeks?|months?))\b`)
	durationPhrase   = regexp.MustCompile(`(?i)(?:\bfor\b|\bx\b)?\s*\d+\s*(?:days?|weeks?|months?)\b`)

	strayNumber   = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	strayFollower = regexp.MustCompile(`(?i)^\s*(?:OD|BD|TDS|QID|SOS|HS|PRN|[01]-[01]-[01]|x|for|$)`)
	nameNoise     = regexp.MustCompile(`[^A-Za-z0-9\-\s+]`)
)

// cleanPasses normalize a raw recognized line before anything else reads it.
var cleanPasses = []pass{
	normalizeDashes,
	splitDosageForm,
	splitFrequencyMultiplier,
	collapseSpaces,
}

// CleanLine normalizes one recognized line: dashes become "-", run-on
// dosage forms ("TabParacetamol") and multipliers ("BDx") are split, and
// whitespace is collapsed.
func CleanLine(line string) string {
	return applyPasses(line, cleanPasses)
}

func normalizeDashes(s string) string {
	return dashReplacer.Replace(s)
}

func splitDosageForm(s string) string {
	return dosageFormJoin.ReplaceAllStringFunc(s, func(m string) string {
		// "Drops" on its own is the plural form, not "Drop" joined to "s...".
		if strings.EqualFold(m, "drops") {
			return m
		}
		_, size := utf8.DecodeLastRuneInString(m)
		return m[:len(m)-size] + " " + m[len(m)-size:]
	})
}

func splitFrequencyMultiplier(s string) string {
	return frequencyMultiple.ReplaceAllString(s, "${1} x")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StripDosageForm removes a leading dosage-form word such as "Tab." or "Syp".
func StripDosageForm(s string) string {
	return dosageFormPrefix.ReplaceAllString(s, "")
}

// namePasses reduce a line core to its medicine-name residue.
var namePasses = []pass{
	removeDosage,
	removeFrequency,
	removeDuration,
	removeStrayNumbers,
	removeSymbols,
	func(s string) string { return strings.Trim(collapseSpaces(s), " .,-") },
}

func removeDosage(s string) string {
	return dosagePattern.ReplaceAllString(s, " ")
}

func removeFrequency(s string) string {
	return frequencyPattern.ReplaceAllString(s, " ")
}

func removeDuration(s string) string {
	return durationPhrase.ReplaceAllString(s, " ")
}

// removeStrayNumbers blanks bare numbers (a dose missing its unit) that
// sit right before a frequency marker, "x", "for" or the end of the text.
func removeStrayNumbers(s string) string {
	locs := strayNumber.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, loc := range locs {
		if !strayFollower.MatchString(s[loc[1]:]) {
			continue
		}
		b.WriteString(s[last:loc[0]])
		b.WriteByte(' ')
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

func removeSymbols(s string) string {
	return nameNoise.ReplaceAllString(s, " ")
}
