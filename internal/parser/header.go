package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	doctorPattern      = regexp.MustCompile(`(?i)\b(?:Dr\b\.?|Doctor\b)\s*[:\-]?\s*([A-Za-z][A-Za-z.\s]{1,60})`)
	numericDatePattern = regexp.MustCompile(`(\d{1,2})[/-](\d{1,3})[/-](\d{2,4})`)
	textualDatePattern = regexp.MustCompile(`(?i)(\d{1,2})\s+(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\w*\s+(\d{2,4})`)

	headerHint = regexp.MustCompile(`(?i)\b(?:date|dote|dt|doctor|dr)\b`)
	shortDate  = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`)
)

var monthNumbers = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// ExtractDoctorName returns the first "Dr"/"Doctor" name found in lines.
func ExtractDoctorName(lines []string) string {
	for _, line := range lines {
		m := doctorPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.Trim(collapseSpaces(m[1]), " .,-")
		if name != "" {
			return name
		}
	}
	return ""
}

// ExtractDate returns the first valid date in lines as DD/MM/YYYY.
func ExtractDate(lines []string) string {
	for _, line := range lines {
		if date := NormalizeDate(line); date != "" {
			return date
		}
	}
	return ""
}

// NormalizeDate finds a numeric or month-name date in value and formats it
// as DD/MM/YYYY. A middle segment longer than two digits keeps its last two
// ("12/002/2026" is 12/02/2026). Two-digit years are taken as 20YY.
// Returns "" when no valid date is present.
func NormalizeDate(value string) string {
	if m := numericDatePattern.FindStringSubmatch(value); m != nil {
		monthRaw := m[2]
		if len(monthRaw) > 2 {
			monthRaw = monthRaw[len(monthRaw)-2:]
		}
		if date, ok := formatDate(m[1], monthRaw, m[3]); ok {
			return date
		}
	}

	if m := textualDatePattern.FindStringSubmatch(value); m != nil {
		month := monthNumbers[strings.ToLower(m[2])]
		if date, ok := formatDate(m[1], strconv.Itoa(month), m[3]); ok {
			return date
		}
	}
	return ""
}

func formatDate(dayRaw, monthRaw, yearRaw string) (string, bool) {
	day, err := strconv.Atoi(dayRaw)
	if err != nil {
		return "", false
	}
	month, err := strconv.Atoi(monthRaw)
	if err != nil {
		return "", false
	}
	year, err := strconv.Atoi(yearRaw)
	if err != nil {
		return "", false
	}
	if year < 100 {
		year += 2000
	}
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return "", false
	}
	return fmt.Sprintf("%02d/%02d/%04d", day, month, year), true
}

// isHeaderLine reports whether a line is a doctor/date header that should
// never be read as a medicine.
func isHeaderLine(lower string) bool {
	if !headerHint.MatchString(lower) {
		return false
	}
	return shortDate.MatchString(lower) || len(strings.Fields(lower)) <= 5
}
