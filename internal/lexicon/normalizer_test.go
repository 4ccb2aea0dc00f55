package lexicon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

const seedSQL = `
INSERT INTO medicines (brand_name, generic_name, category, price) VALUES
  ('Crocin', 'Paracetamol', 'analgesic', 30.00),
  ('Mox', 'Amoxicillin', 'antibiotic', 85.50),
  ('Cetzine', 'Cetirizine', 'antihistamine', 22.00),
  ('D''Cold Total', 'Paracetamol', 'cold', 40.00),
  ('Shelcal', 'Vitamin D3', 'supplement', 110.00),
  ('', 'Metformin', 'antidiabetic', 45.00),
  ( broken row without quotes ),
  ('Calpol', 'Paracetamol', 'analgesic', 28.00);
`

func TestParseSeed(t *testing.T) {
	entries := ParseSeed(seedSQL)
	if len(entries) != 7 {
		t.Fatalf("expected 7 entries, got %d: %+v", len(entries), entries)
	}
	if entries[3].Brand != "D'Cold Total" {
		t.Errorf("escaped quote not unescaped: %q", entries[3].Brand)
	}
	if entries[5].Brand != "" || entries[5].Generic != "Metformin" {
		t.Errorf("unexpected entry: %+v", entries[5])
	}
}

func TestLexiconBuild(t *testing.T) {
	lex := New(ParseSeed(seedSQL))

	// Paracetamol appears three times but is one canonical name.
	want := []string{"Amoxicillin", "Calpol", "Cetirizine", "Cetzine", "Crocin", "D'Cold Total", "Metformin", "Mox", "Paracetamol", "Shelcal", "Vitamin D3"}
	got := lex.Names()
	if len(got) != len(want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if name, ok := lex.Lookup("d cold total"); !ok || name != "D'Cold Total" {
		t.Errorf("Lookup(d cold total) = %q, %v", name, ok)
	}
}

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Paracetamol", "paracetamol"},
		{"  D'Cold   Total!! ", "d cold total"},
		{"Vitamin-D3", "vitamin d3"},
		{"...", ""},
	}
	for _, tt := range tests {
		if got := NormalizeToken(tt.in); got != tt.want {
			t.Errorf("NormalizeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func newTestNormalizer() *Normalizer {
	return NewNormalizer(StaticSource(ParseSeed(seedSQL)), Options{}, nil)
}

func TestNormalizerMatch(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name        string
		input       string
		want        string
		wantMatched bool
	}{
		{"exact", "paracetamol", "Paracetamol", true},
		{"exact with noise", "  AMOXICILLIN. ", "Amoxicillin", true},
		{"single token typo", "Paracetamo1", "Paracetamol", true},
		{"single token typo 2", "Amoxycillin", "Amoxicillin", true},
		{"first letter differs", "Baracetamol", "Baracetamol", false},
		{"multi token close", "Vitamin D 3", "Vitamin D3", true},
		{"unknown", "  Zyloric  ", "Zyloric", false},
		{"empty", "", "", false},
		{"punctuation only", " -- ", "--", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, matched := n.Match(tt.input)
			if got != tt.want || matched != tt.wantMatched {
				t.Errorf("Match(%q) = %q, %v; want %q, %v", tt.input, got, matched, tt.want, tt.wantMatched)
			}
		})
	}
}

func TestNormalizerIdempotent(t *testing.T) {
	n := newTestNormalizer()
	for _, name := range n.Lexicon().Names() {
		if got := n.Normalize(name); got != name {
			t.Errorf("Normalize(%q) = %q, want unchanged", name, got)
		}
		if got := n.Normalize(n.Normalize(name)); got != name {
			t.Errorf("double Normalize(%q) = %q", name, got)
		}
	}
}

func TestNormalizerThresholdsConfigurable(t *testing.T) {
	strict := NewNormalizer(StaticSource(ParseSeed(seedSQL)), Options{SingleTokenThreshold: 0.99}, nil)
	if got, matched := strict.Match("Paracetamo1"); matched || got != "Paracetamo1" {
		t.Errorf("strict Match = %q, %v; want passthrough", got, matched)
	}
}

func TestNormalizerMemoBounded(t *testing.T) {
	n := NewNormalizer(StaticSource(ParseSeed(seedSQL)), Options{MemoLimit: 3}, nil)
	for _, name := range []string{"aaa", "bbb", "ccc", "ddd", "eee"} {
		n.Normalize(name)
	}
	n.mu.Lock()
	size := len(n.memo)
	n.mu.Unlock()
	if size > 3 {
		t.Errorf("memo size = %d, want <= 3", size)
	}
}

type countingSource struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingSource) LoadEntries(_ context.Context) ([]Entry, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return ParseSeed(seedSQL), nil
}

func TestNormalizerLoadsOnceConcurrently(t *testing.T) {
	src := &countingSource{}
	n := NewNormalizer(src, Options{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := n.Normalize("Cetrizine"); got != "Cetirizine" {
				t.Errorf("Normalize(Cetrizine) = %q", got)
			}
		}()
	}
	wg.Wait()

	if src.calls != 1 {
		t.Errorf("source loaded %d times, want 1", src.calls)
	}
}

func TestNormalizerSourceFailure(t *testing.T) {
	src := &countingSource{err: errors.New("connection refused")}
	n := NewNormalizer(src, Options{}, nil)

	if err := n.Warm(context.Background()); err == nil {
		t.Fatal("expected Warm to surface the load error")
	}
	if got, matched := n.Match("Paracetamol"); matched || got != "Paracetamol" {
		t.Errorf("Match after failed load = %q, %v", got, matched)
	}
}

func TestSeedFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed-medicines.sql")
	if err := os.WriteFile(path, []byte(seedSQL), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := SeedFileSource{Path: path}.LoadEntries(context.Background())
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if len(entries) != 7 {
		t.Errorf("got %d entries, want 7", len(entries))
	}

	missing, err := SeedFileSource{Path: filepath.Join(dir, "absent.sql")}.LoadEntries(context.Background())
	if err != nil || len(missing) != 0 {
		t.Errorf("missing seed = %v, %v; want empty, nil", missing, err)
	}
}
