// Package persist buffers job records and flushes them to the store in
// bounded batches. A flush is atomic per batch: a failure never rolls back
// previously committed flushes.
package persist

import (
	"context"
	"log/slog"
	"time"

	"aerocrawl/internal/cache"
	"aerocrawl/internal/store"
	"aerocrawl/internal/types"
)

// FlushResult summarizes one flush. The orchestrator accumulates these
// across flushes into the run's CrawlSessionStats.
type FlushResult struct {
	Created int
	Updated int
	Errors  int
}

// Add merges another result into r.
func (r *FlushResult) Add(other FlushResult) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Errors += other.Errors
}

// BatchPersister buffers incoming records up to batchSize and writes them
// through the JobStore contract.
type BatchPersister struct {
	store     store.JobStore
	cache     *cache.StatsCache
	batchSize int
	buffer    []*types.JobRecord
	logger    *slog.Logger
}

// New creates a BatchPersister. The stats cache may be nil when no
// aggregate caching is wired (dry runs).
func New(js store.JobStore, statsCache *cache.StatsCache, batchSize int, logger *slog.Logger) *BatchPersister {
	if batchSize < 1 {
		batchSize = 1
	}
	return &BatchPersister{
		store:     js,
		cache:     statsCache,
		batchSize: batchSize,
		buffer:    make([]*types.JobRecord, 0, batchSize),
		logger:    logger.With("component", "batch_persister"),
	}
}

// Add buffers one record, flushing automatically when the buffer reaches
// the batch size.
func (p *BatchPersister) Add(ctx context.Context, job *types.JobRecord) (FlushResult, error) {
	p.buffer = append(p.buffer, job)
	if len(p.buffer) >= p.batchSize {
		return p.Flush(ctx)
	}
	return FlushResult{}, nil
}

// Pending returns the number of buffered, unflushed records.
func (p *BatchPersister) Pending() int { return len(p.buffer) }

// Flush writes the buffered records: one batched existence query, a
// partition into creates and updates, a bulk insert, and field updates.
// Records whose stored status is a protected terminal value keep that
// status; every other field still refreshes. An insert that loses a
// uniqueness race against a concurrent flush is converted into an update
// and retried once.
func (p *BatchPersister) Flush(ctx context.Context) (FlushResult, error) {
	if len(p.buffer) == 0 {
		return FlushResult{}, nil
	}
	batch := p.buffer
	p.buffer = make([]*types.JobRecord, 0, p.batchSize)

	var res FlushResult

	urls := make([]string, len(batch))
	for i, j := range batch {
		urls[i] = j.URL
	}
	known, err := p.store.ExistsByURLs(ctx, urls)
	if err != nil {
		// Nothing has been written yet; put the batch back so a later
		// flush retries it instead of dropping fetched records.
		p.buffer = append(batch, p.buffer...)
		return res, err
	}

	byURL := make(map[string]*types.JobRecord, len(batch))
	var creates []*types.JobRecord
	var updates []*types.JobRecord
	for _, j := range batch {
		byURL[j.URL] = j
		if _, exists := known[j.URL]; exists {
			updates = append(updates, j)
		} else {
			creates = append(creates, j)
		}
	}

	inserted, conflicts, err := p.store.InsertJobs(ctx, creates)
	res.Created += inserted
	if err != nil {
		res.Errors += len(creates) - inserted
		p.logger.Error("bulk insert failed", "error", err, "batch_size", len(creates))
	}

	// A conflicting URL was inserted by a racing flush after our existence
	// query; its stored status is unknown here, so treat it as protected.
	for _, u := range conflicts {
		if job := byURL[u]; job != nil {
			if updErr := p.store.UpdateJob(ctx, job, true); updErr != nil {
				res.Errors++
				p.logger.Warn("conflict retry failed", "url", u, "error", updErr)
				continue
			}
			res.Updated++
		}
	}

	for _, job := range updates {
		keepStatus := types.ProtectedStatuses[known[job.URL]]
		if err := p.store.UpdateJob(ctx, job, keepStatus); err != nil {
			res.Errors++
			p.logger.Warn("update failed", "url", job.URL, "error", err)
			continue
		}
		res.Updated++
	}

	p.upsertCompanies(ctx, batch)

	if p.cache != nil && res.Created+res.Updated > 0 {
		p.cache.InvalidateAll()
	}

	p.logger.Debug("batch flushed",
		"size", len(batch),
		"created", res.Created,
		"updated", res.Updated,
		"errors", res.Errors,
	)
	return res, nil
}

// upsertCompanies refreshes company mappings for every distinct company in
// the batch. Mapping failures are logged, not counted against the flush.
func (p *BatchPersister) upsertCompanies(ctx context.Context, batch []*types.JobRecord) {
	seen := make(map[string]bool)
	now := time.Now()
	for _, job := range batch {
		if job.Company == "" {
			continue
		}
		normalized := store.NormalizeCompanyName(job.Company)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true

		err := p.store.UpsertCompanyMapping(ctx, store.CompanyMapping{
			NormalizedName: normalized,
			DisplayName:    job.Company,
			Operation:      "unclassified",
			UpdatedAt:      now,
		})
		if err != nil {
			p.logger.Warn("company mapping upsert failed", "company", normalized, "error", err)
		}
	}
}
