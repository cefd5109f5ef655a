package persist

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"aerocrawl/internal/cache"
	"aerocrawl/internal/store"
	"aerocrawl/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func job(url, title, company, status string) *types.JobRecord {
	return &types.JobRecord{
		URL:     url,
		Title:   title,
		Company: company,
		Source:  "testsource",
		Status:  status,
	}
}

// --- Flush Semantics ---

func TestFlushCreatesAndUpdates(t *testing.T) {
	ms := store.NewMemStore()
	p := New(ms, nil, 10, testLogger)
	ctx := context.Background()

	// Seed one existing record.
	if _, _, err := ms.InsertJobs(ctx, []*types.JobRecord{
		job("https://a.example/old", "Old Title", "Acme Air", types.StatusActive),
	}); err != nil {
		t.Fatal(err)
	}

	p.Add(ctx, job("https://a.example/new", "Flight Ops Officer", "Acme Air", types.StatusActive))
	p.Add(ctx, job("https://a.example/old", "New Title", "Acme Air", types.StatusActive))

	res, err := p.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if res.Created != 1 || res.Updated != 1 || res.Errors != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	updated, ok := ms.Job("https://a.example/old")
	if !ok || updated.Title != "New Title" {
		t.Errorf("existing record not refreshed: %+v", updated)
	}
}

func TestFlushPreservesProtectedStatus(t *testing.T) {
	ms := store.NewMemStore()
	p := New(ms, nil, 10, testLogger)
	ctx := context.Background()

	if _, _, err := ms.InsertJobs(ctx, []*types.JobRecord{
		job("https://a.example/closed", "Closed Role", "Acme Air", types.StatusClosed),
	}); err != nil {
		t.Fatal(err)
	}

	// Re-ingestion sees the posting as active again and with new fields.
	fresh := job("https://a.example/closed", "Closed Role", "Acme Air", types.StatusActive)
	fresh.Description = "reappeared on the site"
	p.Add(ctx, fresh)
	p.Add(ctx, job("https://a.example/new", "Flight Ops Officer", "Acme Air", types.StatusActive))

	res, err := p.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if res.Created != 1 || res.Updated != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	got, _ := ms.Job("https://a.example/closed")
	if got.Status != types.StatusClosed {
		t.Errorf("protected status overwritten: got %q, want %q", got.Status, types.StatusClosed)
	}
	if got.Description != "reappeared on the site" {
		t.Errorf("other fields should still refresh, got %q", got.Description)
	}
}

func TestFlushIdempotent(t *testing.T) {
	ms := store.NewMemStore()
	p := New(ms, nil, 10, testLogger)
	ctx := context.Background()

	batch := []*types.JobRecord{
		job("https://a.example/1", "Role One", "Acme Air", types.StatusActive),
		job("https://a.example/2", "Role Two", "Acme Air", types.StatusActive),
	}

	for _, j := range batch {
		p.Add(ctx, j)
	}
	first, err := p.Flush(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Created != 2 {
		t.Fatalf("first flush created = %d, want 2", first.Created)
	}

	for _, j := range batch {
		p.Add(ctx, j)
	}
	second, err := p.Flush(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.Created != 0 || second.Updated != 2 {
		t.Errorf("second flush = %+v, want created=0 updated=2", second)
	}
}

func TestAddAutoFlushesAtBatchSize(t *testing.T) {
	ms := store.NewMemStore()
	p := New(ms, nil, 2, testLogger)
	ctx := context.Background()

	if res, _ := p.Add(ctx, job("https://a.example/1", "One", "Acme Air", types.StatusActive)); res.Created != 0 {
		t.Errorf("first add should only buffer, got %+v", res)
	}
	if p.Pending() != 1 {
		t.Errorf("pending = %d, want 1", p.Pending())
	}

	res, err := p.Add(ctx, job("https://a.example/2", "Two", "Acme Air", types.StatusActive))
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 2 {
		t.Errorf("auto flush created = %d, want 2", res.Created)
	}
	if p.Pending() != 0 {
		t.Errorf("pending = %d after auto flush, want 0", p.Pending())
	}
}

func TestFlushEmptyBuffer(t *testing.T) {
	p := New(store.NewMemStore(), nil, 5, testLogger)
	res, err := p.Flush(context.Background())
	if err != nil || res != (FlushResult{}) {
		t.Errorf("empty flush = %+v, %v", res, err)
	}
}

// --- Transient Store Outage ---

// flakyStore fails the first existence query, simulating a transient
// store outage mid-run.
type flakyStore struct {
	*store.MemStore
	failed bool
}

func (s *flakyStore) ExistsByURLs(ctx context.Context, urls []string) (map[string]string, error) {
	if !s.failed {
		s.failed = true
		return nil, errors.New("transient store outage")
	}
	return s.MemStore.ExistsByURLs(ctx, urls)
}

func TestFlushRebuffersOnExistenceQueryError(t *testing.T) {
	fs := &flakyStore{MemStore: store.NewMemStore()}
	p := New(fs, nil, 10, testLogger)
	ctx := context.Background()

	p.Add(ctx, job("https://a.example/1", "One", "Acme Air", types.StatusActive))
	p.Add(ctx, job("https://a.example/2", "Two", "Acme Air", types.StatusActive))

	if _, err := p.Flush(ctx); err == nil {
		t.Fatal("first flush should surface the store error")
	}
	if p.Pending() != 2 {
		t.Fatalf("pending = %d after failed flush, want records re-buffered", p.Pending())
	}

	res, err := p.Flush(ctx)
	if err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if res.Created != 2 {
		t.Errorf("retry flush created = %d, want 2", res.Created)
	}
	if fs.Len() != 2 {
		t.Errorf("store has %d records after retry, want 2", fs.Len())
	}
}

// --- Conflict Conversion ---

// racingStore inserts a record between the existence query and the bulk
// insert, simulating a concurrent flush winning the url race.
type racingStore struct {
	*store.MemStore
	raceURL string
	raced   bool
}

func (s *racingStore) ExistsByURLs(ctx context.Context, urls []string) (map[string]string, error) {
	known, err := s.MemStore.ExistsByURLs(ctx, urls)
	if err != nil {
		return nil, err
	}
	if !s.raced {
		s.raced = true
		winner := job(s.raceURL, "Winner", "Rival Air", types.StatusActive)
		if _, _, err := s.MemStore.InsertJobs(ctx, []*types.JobRecord{winner}); err != nil {
			return nil, err
		}
	}
	return known, nil
}

func TestFlushConvertsInsertConflictToUpdate(t *testing.T) {
	rs := &racingStore{MemStore: store.NewMemStore(), raceURL: "https://a.example/raced"}
	p := New(rs, nil, 10, testLogger)
	ctx := context.Background()

	p.Add(ctx, job("https://a.example/raced", "Loser Copy", "Rival Air", types.StatusActive))
	res, err := p.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if res.Created != 0 || res.Updated != 1 || res.Errors != 0 {
		t.Fatalf("conflict should convert to update: %+v", res)
	}

	got, _ := rs.Job("https://a.example/raced")
	if got.Title != "Loser Copy" {
		t.Errorf("retried update not applied: %+v", got)
	}
}

// --- Cache Invalidation ---

func TestFlushInvalidatesStatsCache(t *testing.T) {
	ms := store.NewMemStore()
	sc := cache.New(testLogger)
	p := New(ms, sc, 10, testLogger)
	ctx := context.Background()

	if _, err := sc.ComputeAndCache(ctx, "totals", 300*time.Second, func(ctx context.Context) (any, error) {
		return 7, nil
	}); err != nil {
		t.Fatal(err)
	}

	p.Add(ctx, job("https://a.example/1", "One", "Acme Air", types.StatusActive))
	if _, err := p.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	if _, ok := sc.Get("totals"); ok {
		t.Error("stats cache should be invalidated after a successful flush")
	}
}

// --- Company Mappings ---

func TestFlushUpsertsCompanyMappings(t *testing.T) {
	ms := store.NewMemStore()
	p := New(ms, nil, 10, testLogger)
	ctx := context.Background()

	p.Add(ctx, job("https://a.example/1", "One", "Acme Air Ltd.", types.StatusActive))
	p.Add(ctx, job("https://a.example/2", "Two", "ACME AIR LTD", types.StatusActive))
	if _, err := p.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	mappings := ms.CompanyMappings()
	if len(mappings) != 1 {
		t.Fatalf("expected 1 normalized mapping, got %d: %v", len(mappings), mappings)
	}
	m, ok := mappings["acme air"]
	if !ok {
		t.Fatalf("expected key 'acme air', got %v", mappings)
	}
	if !m.NeedsReview {
		t.Error("new mapping should be flagged for review")
	}
}
