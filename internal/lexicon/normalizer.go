package lexicon

import (
	"context"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/Jitheswar/ruralAi/prescription-worker/internal/logging"
)

// Options tune fuzzy matching. Zero values fall back to the defaults.
type Options struct {
	// Minimum similarity for a single-token query.
	SingleTokenThreshold float64
	// Minimum similarity for a multi-token query.
	MultiTokenThreshold float64
	// The memo is cleared once it holds this many entries.
	MemoLimit int
}

const (
	DefaultSingleTokenThreshold = 0.74
	DefaultMultiTokenThreshold  = 0.82
	DefaultMemoLimit            = 10000
)

func (o Options) withDefaults() Options {
	if o.SingleTokenThreshold <= 0 {
		o.SingleTokenThreshold = DefaultSingleTokenThreshold
	}
	if o.MultiTokenThreshold <= 0 {
		o.MultiTokenThreshold = DefaultMultiTokenThreshold
	}
	if o.MemoLimit <= 0 {
		o.MemoLimit = DefaultMemoLimit
	}
	return o
}

type memoEntry struct {
	name    string
	matched bool
}

// Normalizer maps noisy medicine names onto lexicon entries.
// The lexicon is loaded from its source on first use and kept for the
// lifetime of the Normalizer. Safe for concurrent use.
type Normalizer struct {
	source Source
	opts   Options
	logger *logging.Logger

	once    sync.Once
	lex     *Lexicon
	loadErr error

	mu   sync.Mutex
	memo map[string]memoEntry
}

// NewNormalizer creates a normalizer backed by source. A nil source gives
// an empty lexicon, in which case every name passes through unchanged.
func NewNormalizer(source Source, opts Options, logger *logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Normalizer{
		source: source,
		opts:   opts.withDefaults(),
		logger: logger,
		memo:   make(map[string]memoEntry),
	}
}

// Warm loads the lexicon now instead of on first lookup.
func (n *Normalizer) Warm(ctx context.Context) error {
	n.load(ctx)
	return n.loadErr
}

// Lexicon returns the loaded lexicon, loading it if needed.
func (n *Normalizer) Lexicon() *Lexicon {
	n.load(context.Background())
	return n.lex
}

func (n *Normalizer) load(ctx context.Context) {
	n.once.Do(func() {
		var entries []Entry
		if n.source != nil {
			entries, n.loadErr = n.source.LoadEntries(ctx)
		}
		if n.loadErr != nil {
			n.logger.Warn("Medicine lexicon unavailable, names will pass through", "error", n.loadErr)
			entries = nil
		}
		n.lex = New(entries)
		n.logger.Info("Medicine lexicon loaded", "names", n.lex.Len())
	})
}

// Normalize returns the canonical lexicon name for name, or name trimmed
// when nothing in the lexicon is close enough.
func (n *Normalizer) Normalize(name string) string {
	out, _ := n.Match(name)
	return out
}

// Match is Normalize that also reports whether the result came from the lexicon.
func (n *Normalizer) Match(name string) (string, bool) {
	if name == "" {
		return name, false
	}
	lex := n.Lexicon()

	token := NormalizeToken(name)
	if token == "" {
		return strings.TrimSpace(name), false
	}

	n.mu.Lock()
	if hit, ok := n.memo[token]; ok {
		n.mu.Unlock()
		return hit.name, hit.matched
	}
	n.mu.Unlock()

	result := n.resolve(lex, token, name)

	n.mu.Lock()
	if len(n.memo) >= n.opts.MemoLimit {
		n.memo = make(map[string]memoEntry)
	}
	n.memo[token] = result
	n.mu.Unlock()

	return result.name, result.matched
}

func (n *Normalizer) resolve(lex *Lexicon, token, name string) memoEntry {
	if canonical, ok := lex.Lookup(token); ok {
		return memoEntry{name: canonical, matched: true}
	}

	best := ""
	bestScore := 0.0
	query := strings.Split(token, "")
	for _, p := range lex.Pairs() {
		if p.Token == "" || p.Token[0] != token[0] {
			continue
		}
		if abs(len(p.Token)-len(token)) > max(6, int(float64(len(p.Token))*0.45)) {
			continue
		}
		score := Similarity(query, strings.Split(p.Token, ""))
		if score > bestScore {
			best = p.Canonical
			bestScore = score
		}
	}

	threshold := n.opts.MultiTokenThreshold
	if len(strings.Fields(token)) == 1 {
		threshold = n.opts.SingleTokenThreshold
	}
	if best != "" && bestScore >= threshold {
		return memoEntry{name: best, matched: true}
	}
	return memoEntry{name: strings.TrimSpace(name), matched: false}
}

// Similarity is the character-sequence match ratio 2*M/T of two rune sequences.
func Similarity(a, b []string) float64 {
	return difflib.NewMatcher(a, b).Ratio()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
