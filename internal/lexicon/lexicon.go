package lexicon

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// Entry is one (brand, generic) pair from a seed source.
type Entry struct {
	Brand   string
	Generic string
}

// Source supplies the raw entries a Lexicon is built from.
type Source interface {
	LoadEntries(ctx context.Context) ([]Entry, error)
}

// Pair couples a canonical name with its normalized token.
type Pair struct {
	Canonical string
	Token     string
}

// Lexicon is the read-only set of known medicine names.
type Lexicon struct {
	names      []string
	normalized map[string]string
	pairs      []Pair
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeToken lowercases a value, collapses every non-alphanumeric run
// into one space and trims the result.
func NormalizeToken(value string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToLower(value), " "))
}

// New builds a lexicon from entries. Empty names are skipped; the first
// name seen for a normalized token is the canonical one.
func New(entries []Entry) *Lexicon {
	seen := make(map[string]struct{})
	normalized := make(map[string]string)

	for _, e := range entries {
		for _, item := range []string{strings.TrimSpace(e.Brand), strings.TrimSpace(e.Generic)} {
			if item == "" {
				continue
			}
			seen[item] = struct{}{}
			token := NormalizeToken(item)
			if _, ok := normalized[token]; !ok {
				normalized[token] = item
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]Pair, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, Pair{Canonical: name, Token: NormalizeToken(name)})
	}

	return &Lexicon{names: names, normalized: normalized, pairs: pairs}
}

// Names returns the sorted distinct canonical names.
func (l *Lexicon) Names() []string {
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// Lookup returns the canonical name for an already normalized token.
func (l *Lexicon) Lookup(token string) (string, bool) {
	name, ok := l.normalized[token]
	return name, ok
}

// Pairs returns the canonical/token pairs used for similarity search.
func (l *Lexicon) Pairs() []Pair {
	return l.pairs
}

// Len returns the number of distinct canonical names.
func (l *Lexicon) Len() int {
	return len(l.names)
}
