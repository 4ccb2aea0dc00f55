package parser

import (
	"regexp"
	"strings"
	"unicode"
)

// Medicine is one extracted prescription entry.
type Medicine struct {
	BrandName   string  `json:"brand_name"`
	GenericName *string `json:"generic_name"`
	Dosage      string  `json:"dosage"`
	Frequency   string  `json:"frequency"`
	Duration    string  `json:"duration"`
}

var unitNoise = map[string]struct{}{
	"mg": {}, "ml": {}, "mi": {}, "g": {}, "mcg": {}, "%": {},
	"day": {}, "days": {}, "week": {}, "weeks": {}, "month": {}, "months": {},
}

var vitaminLetters = map[string]struct{}{
	"a": {}, "b": {}, "c": {}, "d": {}, "e": {}, "k": {},
}

var (
	letterDigit = regexp.MustCompile(`([A-Za-z])(\d)`)
	digitLetter = regexp.MustCompile(`(\d)([A-Za-z])`)

	bareNumber   = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	numericRange = regexp.MustCompile(`^\d+(?:-\d+){1,2}$`)
	numberUnit   = regexp.MustCompile(`^\d+(?:mg|ml|g|mcg|%)$`)
)

// A tokenRule drops a token from a name candidate when it returns true.
type tokenRule func(low string) bool

var tokenRules = []tokenRule{
	isUnitNoise,
	LooksLikeFrequencyToken,
	bareNumber.MatchString,
	numericRange.MatchString,
	numberUnit.MatchString,
	func(low string) bool { return low == "x" || low == "for" },
}

func isUnitNoise(low string) bool {
	_, ok := unitNoise[low]
	return ok
}

// CleanupCandidate removes dose and frequency residue from a name
// candidate token by token. Single letters are dropped unless they follow
// "vitamin", in which case they are kept uppercased ("Vitamin D").
func CleanupCandidate(candidate string) string {
	candidate = letterDigit.ReplaceAllString(candidate, "${1} ${2}")
	candidate = digitLetter.ReplaceAllString(candidate, "${1} ${2}")
	tokens := strings.Fields(candidate)

	kept := make([]string, 0, len(tokens))
next:
	for i, raw := range tokens {
		token := strings.Trim(raw, " .,:;()[]{}")
		if token == "" {
			continue
		}
		low := strings.ToLower(token)
		for _, drop := range tokenRules {
			if drop(low) {
				continue next
			}
		}
		if len(low) == 1 && unicode.IsLetter(rune(low[0])) {
			if i > 0 && strings.HasPrefix(strings.ToLower(tokens[i-1]), "vitamin") {
				if _, ok := vitaminLetters[low]; ok {
					kept = append(kept, strings.ToUpper(low))
				}
			}
			continue
		}
		kept = append(kept, token)
	}
	return strings.Trim(strings.Join(kept, " "), " .,-")
}

// ExtractMedicine reads one line as a medicine entry. The second return
// value is false when the line is a header, noise, or too short to trust.
func (p *Parser) ExtractMedicine(line string) (Medicine, bool) {
	line = CleanLine(line)
	if line == "" {
		return Medicine{}, false
	}

	lower := strings.ToLower(line)
	if isHeaderLine(lower) {
		return Medicine{}, false
	}
	if strings.HasPrefix(lower, "or ") && len(strings.Fields(lower)) <= 4 {
		return Medicine{}, false
	}

	core := StripDosageForm(line)

	var med Medicine
	dosageMatch := dosagePattern.FindString(core)
	freqMatch := frequencyPattern.FindStringSubmatch(core)
	durationMatch := durationPattern.FindStringSubmatch(core)

	med.Dosage = strings.TrimSpace(dosageMatch)
	if freqMatch != nil {
		med.Frequency = NormalizeFrequency(freqMatch[1])
	}
	if durationMatch != nil {
		med.Duration = strings.TrimSpace(durationMatch[1])
	}

	if dosageMatch == "" && freqMatch == nil && durationMatch == nil {
		if len(strings.Fields(core)) <= p.opts.ShortLineTokens {
			return Medicine{}, false
		}
	}

	candidate := CleanupCandidate(applyPasses(core, namePasses))
	if len(candidate) < 2 {
		return Medicine{}, false
	}

	name, matched := p.names.Match(candidate)
	if !matched {
		// Unmatched long or bare names are almost always OCR noise.
		if len(strings.Fields(candidate)) >= p.opts.UnmatchedTokenLimit {
			return Medicine{}, false
		}
		if med.Dosage == "" && med.Frequency == "" {
			return Medicine{}, false
		}
	}
	med.BrandName = name
	return med, true
}

var fallbackForms = []string{"tab", "cap", "syp", "syr", "inj", "oint", "cream", "drops", "gel"}

// fallbackMedicines accepts any line mentioning a dosage form, using the
// line itself as the name.
func (p *Parser) fallbackMedicines(lines []string) []Medicine {
	var meds []Medicine
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, form := range fallbackForms {
			if !strings.Contains(lower, form) {
				continue
			}
			name, _ := p.names.Match(truncateRunes(strings.TrimSpace(line), p.opts.FallbackNameLength))
			meds = append(meds, Medicine{BrandName: name})
			break
		}
	}
	return meds
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
