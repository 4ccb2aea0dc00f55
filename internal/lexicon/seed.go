package lexicon

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// The first two quoted values of each INSERT row are brand and generic name.
var seedTuple = regexp.MustCompile(`\(\s*'((?:''|[^'])*)'\s*,\s*'((?:''|[^'])*)'`)

// ParseSeed extracts (brand, generic) pairs from seed SQL text.
// Rows that do not match the quoted-tuple shape are skipped.
func ParseSeed(content string) []Entry {
	matches := seedTuple.FindAllStringSubmatch(content, -1)
	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		entries = append(entries, Entry{
			Brand:   strings.ReplaceAll(m[1], "''", "'"),
			Generic: strings.ReplaceAll(m[2], "''", "'"),
		})
	}
	return entries
}

// SeedFileSource reads entries from a seed SQL file on disk.
// A missing file yields an empty lexicon, not an error.
type SeedFileSource struct {
	Path string
}

func (s SeedFileSource) LoadEntries(_ context.Context) ([]Entry, error) {
	content, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read medicine seed %s: %w", s.Path, err)
	}
	return ParseSeed(string(content)), nil
}

// StaticSource serves a fixed entry list.
type StaticSource []Entry

func (s StaticSource) LoadEntries(_ context.Context) ([]Entry, error) {
	return s, nil
}
