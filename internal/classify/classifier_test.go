package classify

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"aerocrawl/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newDefaultClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := New(DefaultCategories(), DefaultExclusions(), DefaultThreshold, testLogger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// --- Scoring ---

func TestClassifyOperationsTitle(t *testing.T) {
	c := newDefaultClassifier(t)

	res := c.Classify("Flight Operations Officer - OCC")
	if !res.Match {
		t.Fatal("expected match")
	}
	if res.Score < 1.5 {
		t.Errorf("expected score >= 1.5, got %v", res.Score)
	}
	if res.Primary != "operations" {
		t.Errorf("expected primary category operations, got %q", res.Primary)
	}
}

func TestClassifyExclusionWins(t *testing.T) {
	c := newDefaultClassifier(t)

	// Exclusion patterns run before scoring: any match is score 0, even if
	// keywords would otherwise overlap.
	res := c.Classify("Cabin Crew - Flight Operations Support")
	if res.Match {
		t.Error("expected non-match for excluded title")
	}
	if res.Score != 0 {
		t.Errorf("expected score 0, got %v", res.Score)
	}
	if !res.Excluded {
		t.Error("expected excluded flag")
	}
}

func TestClassifyPhraseDoubleWeight(t *testing.T) {
	c, err := New([]Category{
		{FilterType: "ops", DisplayName: "Ops", Weight: 1.0, Keywords: []string{"flight operations", "dispatcher"}},
	}, nil, 1.5, testLogger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Phrase alone: 1.0 * 2 = 2.0
	res := c.Classify("Head of Flight Operations")
	if res.Score != 2.0 {
		t.Errorf("phrase score = %v, want 2.0", res.Score)
	}

	// Single word alone: 1.0, below threshold
	res = c.Classify("Dispatcher")
	if res.Score != 1.0 {
		t.Errorf("word score = %v, want 1.0", res.Score)
	}
	if res.Match {
		t.Error("single word below threshold should not match")
	}
}

func TestClassifyPrimaryTieBreak(t *testing.T) {
	c, err := New([]Category{
		{FilterType: "first", DisplayName: "First", Weight: 1.0, Keywords: []string{"alpha"}},
		{FilterType: "second", DisplayName: "Second", Weight: 1.0, Keywords: []string{"beta"}},
	}, nil, 1.5, testLogger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := c.Classify("alpha beta alpha beta")
	if res.Primary != "first" {
		t.Errorf("tie should resolve to first-configured category, got %q", res.Primary)
	}
}

func TestClassifyNoMatch(t *testing.T) {
	c := newDefaultClassifier(t)

	res := c.Classify("Senior Accountant")
	if res.Match || res.Score != 0 || res.Primary != "" {
		t.Errorf("unexpected result for irrelevant title: %+v", res)
	}
}

// --- FilterJobs ---

func TestFilterJobs(t *testing.T) {
	c := newDefaultClassifier(t)

	items := []types.PartialJob{
		{Title: "Flight Operations Officer - OCC", URL: "https://a.example/1"},
		{Title: "Cabin Crew", URL: "https://a.example/2"},
		{Title: "Senior Accountant", URL: "https://a.example/3"},
		{Title: "Flight Dispatcher", URL: "https://a.example/4"},
	}

	matched, rejected, stats := c.FilterJobs(items)

	if len(matched) != 2 {
		t.Fatalf("expected 2 matched, got %d", len(matched))
	}
	if len(rejected) != 2 {
		t.Fatalf("expected 2 rejected, got %d", len(rejected))
	}
	if stats.Total != 4 || stats.Matched != 2 || stats.Rejected != 2 {
		t.Errorf("bad stats: %+v", stats)
	}
	if stats.Excluded != 1 {
		t.Errorf("expected 1 excluded, got %d", stats.Excluded)
	}
	if stats.ByCategory["operations"] != 2 {
		t.Errorf("expected 2 operations matches, got %d", stats.ByCategory["operations"])
	}

	for _, m := range matched {
		if !m.FilterMatch || m.FilterScore < c.Threshold() {
			t.Errorf("matched item missing annotations: %+v", m)
		}
	}
	for _, r := range rejected {
		if r.FilterMatch {
			t.Errorf("rejected item flagged as match: %+v", r)
		}
	}
}

// --- Filter File ---

func TestLoadFilterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.json")
	content := `{
		"Filters": [
			{"FilterType": "ops", "DisplayName": "Ops", "Description": "x", "Keywords": ["flight operations"]},
			{"FilterType": "safety", "DisplayName": "Safety", "Weight": 2.0, "Keywords": ["safety officer"]}
		],
		"Exclusions": ["\\bcabin crew\\b"]
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cats, excl, err := LoadFilterFile(path)
	if err != nil {
		t.Fatalf("LoadFilterFile: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cats))
	}
	if cats[0].Weight != 1.0 {
		t.Errorf("missing weight should default to 1.0, got %v", cats[0].Weight)
	}
	if cats[1].Weight != 2.0 {
		t.Errorf("explicit weight lost: %v", cats[1].Weight)
	}
	if len(excl) != 1 {
		t.Errorf("expected 1 exclusion, got %d", len(excl))
	}
}

func TestLoadFilterFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.json")
	if err := os.WriteFile(path, []byte(`{"Filters": [`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := LoadFilterFile(path)
	if err == nil {
		t.Fatal("expected error for malformed filter file")
	}
	var cfgErr *types.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigError, got %T", err)
	}
}

// --- Benchmarks ---

func BenchmarkClassify(b *testing.B) {
	c, _ := New(DefaultCategories(), DefaultExclusions(), DefaultThreshold, testLogger)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Classify("Flight Operations Officer - OCC")
	}
}
