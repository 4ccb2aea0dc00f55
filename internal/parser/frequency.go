package parser

import (
	"regexp"
	"strings"
)

// frequencyPhrases is the closed set of canonical frequency phrases.
var frequencyPhrases = map[string]string{
	"OD":     "once daily",
	"BD":     "twice daily",
	"TDS":    "three times daily",
	"QID":    "four times daily",
	"SOS":    "as needed",
	"HS":     "at bedtime",
	"PRN":    "as needed",
	"1-0-1":  "twice daily (morning-evening)",
	"1-1-1":  "three times daily",
	"1-0-0":  "once daily (morning)",
	"0-0-1":  "once daily (night)",
	"0-1-0":  "once daily (afternoon)",
	"ONCE":   "once daily",
	"TWICE":  "twice daily",
	"THRICE": "three times daily",
}

var frequencyNoise = map[string]struct{}{
	"od": {}, "bd": {}, "tds": {}, "qid": {}, "sos": {}, "hs": {}, "prn": {},
	"once": {}, "twice": {}, "thrice": {},
	"1-0-1": {}, "1-1-1": {}, "1-0-0": {}, "0-1-0": {}, "0-0-1": {},
}

// OCR misreads of frequency markers seen on real prescriptions.
var frequencyMisreads = map[string]struct{}{
	"tos": {}, "tosx": {}, "tdsx": {}, "tdscx": {}, "bdx": {}, "odx": {},
	"qidx": {}, "bdfor": {}, "sofor": {}, "sobfor": {},
}

var (
	frequencyStrip = regexp.MustCompile(`[^A-Za-z0-9\- ]+`)
	tokenStrip     = regexp.MustCompile(`[^a-z0-9\-]+`)
	misreadDigits  = strings.NewReplacer("8D", "BD", "0D", "OD")
	misreadLower   = strings.NewReplacer("8d", "bd", "0d", "od")
)

// NormalizeFrequency maps a matched frequency marker to its canonical
// phrase. Markers outside the closed set pass through lowercased.
func NormalizeFrequency(raw string) string {
	token := strings.ToUpper(strings.TrimSpace(frequencyStrip.ReplaceAllString(raw, "")))
	token = strings.ReplaceAll(token, "  ", " ")
	token = misreadDigits.Replace(token)
	if !strings.Contains(token, "TIMES") {
		token = strings.Split(token, " ")[0]
	}
	if phrase, ok := frequencyPhrases[token]; ok {
		return phrase
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// LooksLikeFrequencyToken reports whether a single token is a frequency
// marker or a common OCR corruption of one.
func LooksLikeFrequencyToken(token string) bool {
	token = tokenStrip.ReplaceAllString(strings.ToLower(token), "")
	if token == "" {
		return false
	}
	token = misreadLower.Replace(token)
	if _, ok := frequencyNoise[token]; ok {
		return true
	}
	if base, found := strings.CutSuffix(token, "x"); found {
		if _, ok := frequencyNoise[base]; ok {
			return true
		}
	}
	if _, ok := frequencyMisreads[token]; ok {
		return true
	}
	if len(token) <= 8 {
		for _, part := range []string{"odx", "bdx", "tdsx", "qidx", "sos"} {
			if strings.Contains(token, part) {
				return true
			}
		}
	}
	return false
}
