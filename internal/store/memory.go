package store

import (
	"context"
	"errors"
	"sync"

	"aerocrawl/internal/types"
)

// MemStore is a map-backed JobStore for tests and dry runs. It enforces
// the same url uniqueness and protected-status semantics as the real store.
type MemStore struct {
	mu        sync.RWMutex
	jobs      map[string]*types.JobRecord
	companies map[string]CompanyMapping
	crawlLogs []types.CrawlSessionStats
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		jobs:      make(map[string]*types.JobRecord),
		companies: make(map[string]CompanyMapping),
	}
}

func (s *MemStore) ExistsByURLs(ctx context.Context, urls []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	known := make(map[string]string, len(urls))
	for _, u := range urls {
		if j, ok := s.jobs[u]; ok {
			known[u] = j.Status
		}
	}
	return known, nil
}

func (s *MemStore) InsertJobs(ctx context.Context, jobs []*types.JobRecord) (int, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	var conflicts []string
	for _, j := range jobs {
		if _, exists := s.jobs[j.URL]; exists {
			conflicts = append(conflicts, j.URL)
			continue
		}
		clone := *j
		s.jobs[j.URL] = &clone
		inserted++
	}
	return inserted, conflicts, nil
}

func (s *MemStore) UpdateJob(ctx context.Context, job *types.JobRecord, keepStatus bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[job.URL]
	if !ok {
		return &types.ConflictError{URL: job.URL, Err: errors.New("no such record")}
	}

	clone := *job
	if keepStatus {
		clone.Status = existing.Status
	}
	s.jobs[job.URL] = &clone
	return nil
}

func (s *MemStore) UpsertCompanyMapping(ctx context.Context, m CompanyMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.companies[m.NormalizedName]; ok {
		existing.DisplayName = m.DisplayName
		existing.UpdatedAt = m.UpdatedAt
		s.companies[m.NormalizedName] = existing
		return nil
	}
	m.NeedsReview = true
	s.companies[m.NormalizedName] = m
	return nil
}

func (s *MemStore) AppendCrawlLog(ctx context.Context, stats types.CrawlSessionStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crawlLogs = append(s.crawlLogs, stats)
	return nil
}

func (s *MemStore) Close(ctx context.Context) error { return nil }

// Job returns a stored record by url, for assertions.
func (s *MemStore) Job(url string) (*types.JobRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[url]
	if !ok {
		return nil, false
	}
	clone := *j
	return &clone, true
}

// Len returns the number of stored jobs.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// CompanyMappings returns a snapshot of the stored mappings.
func (s *MemStore) CompanyMappings() map[string]CompanyMapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]CompanyMapping, len(s.companies))
	for k, v := range s.companies {
		out[k] = v
	}
	return out
}

// CrawlLogs returns the appended run logs.
func (s *MemStore) CrawlLogs() []types.CrawlSessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.CrawlSessionStats(nil), s.crawlLogs...)
}
