// Package orchestrator drives one crawl run as a state machine: listing,
// title filtering, URL dedup against the store, windowed detail fetching,
// and batched persistence. One run drives one browser session; detail
// fetches within a window run concurrently and the whole window is awaited
// before the next starts.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"aerocrawl/internal/adapter"
	"aerocrawl/internal/cache"
	"aerocrawl/internal/classify"
	"aerocrawl/internal/config"
	"aerocrawl/internal/dedup"
	"aerocrawl/internal/normalize"
	"aerocrawl/internal/persist"
	"aerocrawl/internal/store"
	"aerocrawl/internal/types"
)

// State represents the run's current pipeline stage.
type State int32

const (
	StateIdle        State = 0
	StateListing     State = 1
	StateFiltering   State = 2
	StateDeduping    State = 3
	StateDetailFetch State = 4
	StatePersisting  State = 5
	StateDone        State = 6
	StateFailed      State = 7
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListing:
		return "listing"
	case StateFiltering:
		return "filtering"
	case StateDeduping:
		return "deduping"
	case StateDetailFetch:
		return "detail_fetch"
	case StatePersisting:
		return "persisting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SessionFactory opens a browsing session for one run. The orchestrator
// closes the session when the run ends.
type SessionFactory func(ctx context.Context) (adapter.Session, error)

// Orchestrator runs crawls against registered sources. It is safe for one
// run at a time per instance; the store may be shared across instances.
type Orchestrator struct {
	cfg        *config.Config
	classifier *classify.Classifier
	store      store.JobStore
	statsCache *cache.StatsCache
	sessions   SessionFactory
	retry      RetryPolicy
	logger     *slog.Logger

	state   atomic.Int32
	stopped atomic.Bool
	jobSeq  atomic.Int64

	// now is swappable for deterministic date normalization in tests.
	now func() time.Time
}

// New creates an orchestrator. classifier may be nil when title filtering
// is disabled; statsCache may be nil.
func New(cfg *config.Config, classifier *classify.Classifier, js store.JobStore, statsCache *cache.StatsCache, sessions SessionFactory, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		classifier: classifier,
		store:      js,
		statsCache: statsCache,
		sessions:   sessions,
		retry:      NewRetryPolicy(cfg.Crawler.MaxRetries+1, cfg.Crawler.RetryDelay),
		logger:     logger.With("component", "orchestrator"),
		now:        time.Now,
	}
}

// State returns the current pipeline stage.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Stop requests a cooperative stop. The signal is checked between detail
// windows; the in-flight window finishes and its results are flushed.
func (o *Orchestrator) Stop() {
	o.stopped.Store(true)
}

// Run executes one crawl against one source and returns its stats. The
// returned error is types.ErrRunStopped after a cooperative stop, or the
// fatal transport error when the run failed; partial results flushed
// before the failure stay committed either way.
func (o *Orchestrator) Run(ctx context.Context, site adapter.SiteAdapter) (types.CrawlSessionStats, error) {
	start := o.now()
	stats := types.CrawlSessionStats{
		Source:    site.Name(),
		StartedAt: start,
	}
	logger := o.logger.With("source", site.Name())
	o.stopped.Store(false)

	sess, err := o.sessions(ctx)
	if err != nil {
		return o.fail(ctx, stats, start, fmt.Errorf("%w: %w", types.ErrNoSession, err))
	}
	defer sess.Close()

	limits := o.cfg.Limits(site.Name())
	logger.Info("crawl starting", "max_jobs", limits.MaxJobs, "max_pages", limits.MaxPages)

	// Listing.
	o.state.Store(int32(StateListing))
	items, listErrs, err := o.collectListing(ctx, site, sess, limits)
	if err != nil {
		return o.fail(ctx, stats, start, err)
	}
	stats.Found = len(items)
	stats.Errors += listErrs
	logger.Info("listing complete", "found", stats.Found, "errors", listErrs)

	// Filtering.
	o.state.Store(int32(StateFiltering))
	matched := items
	if o.cfg.Crawler.UseFilter && o.classifier != nil {
		var rejected []types.PartialJob
		var fstats classify.FilterStats
		matched, rejected, fstats = o.classifier.FilterJobs(items)
		logger.Info("title filter applied",
			"matched", len(matched),
			"rejected", len(rejected),
			"high", fstats.High, "medium", fstats.Medium, "low", fstats.Low,
		)
	}
	stats.Matched = len(matched)

	// Deduping: known URLs skip the detail fetch entirely.
	o.state.Store(int32(StateDeduping))
	fresh, skipped, err := o.dedupeAgainstStore(ctx, matched)
	if err != nil {
		return o.fail(ctx, stats, start, err)
	}
	fresh, relisted := collapseListing(fresh)
	stats.DedupSkipped = skipped + relisted
	logger.Info("dedup complete", "fresh", len(fresh), "known", skipped, "relisted", relisted)

	// DetailFetch + Persisting, windowed.
	persister := persist.New(o.store, o.statsCache, o.cfg.Crawler.BatchSize, logger)
	o.state.Store(int32(StateDetailFetch))

	stoppedEarly := false
	for offset := 0; offset < len(fresh); offset += o.cfg.Crawler.BatchSize {
		if o.stopped.Load() || ctx.Err() != nil {
			stoppedEarly = true
			break
		}
		end := min(offset+o.cfg.Crawler.BatchSize, len(fresh))
		window := fresh[offset:end]

		jobs, windowErrs := o.fetchWindow(ctx, site, sess, window)
		stats.Errors += windowErrs

		for _, job := range jobs {
			flushed, err := persister.Add(ctx, job)
			stats.Created += flushed.Created
			stats.Updated += flushed.Updated
			stats.Errors += flushed.Errors
			if err != nil {
				logger.Error("flush failed", "error", err)
				stats.Errors++
			}
		}
	}

	// Final flush covers the in-flight remainder, stop or not.
	o.state.Store(int32(StatePersisting))
	flushed, err := persister.Flush(ctx)
	stats.Created += flushed.Created
	stats.Updated += flushed.Updated
	stats.Errors += flushed.Errors
	if err != nil {
		// A failed final flush leaves its batch buffered with nowhere
		// left to retry; every pending record counts as an error.
		logger.Error("final flush failed", "error", err, "pending", persister.Pending())
		stats.Errors += persister.Pending()
	}

	o.state.Store(int32(StateDone))
	stats.State = types.RunDone
	stats.DurationSeconds = o.now().Sub(start).Seconds()
	if stoppedEarly {
		stats.Message = "stopped before completion"
	}
	o.appendCrawlLog(ctx, stats, logger)

	logger.Info("crawl complete",
		"found", stats.Found,
		"matched", stats.Matched,
		"dedup_skipped", stats.DedupSkipped,
		"created", stats.Created,
		"updated", stats.Updated,
		"errors", stats.Errors,
		"duration_s", stats.DurationSeconds,
	)
	if stoppedEarly {
		return stats, types.ErrRunStopped
	}
	return stats, nil
}

// collectListing drains the adapter's listing sequence. Item-level
// extraction errors are counted and skipped; a transport error aborts the
// listing.
func (o *Orchestrator) collectListing(ctx context.Context, site adapter.SiteAdapter, sess adapter.Session, limits config.SourceLimits) ([]types.PartialJob, int, error) {
	var items []types.PartialJob
	errs := 0

	for result := range site.FetchListing(ctx, sess, limits) {
		if result.Err != nil {
			if types.IsTransport(result.Err) {
				return nil, errs, result.Err
			}
			o.logger.Warn("listing item failed", "error", result.Err)
			errs++
			continue
		}
		item := result.Job
		item.URL = dedup.CanonicalURL(item.URL)
		item.JobID = fmt.Sprintf("%s-%03d", site.Name(), o.jobSeq.Add(1))
		items = append(items, item)
	}
	if err := ctx.Err(); err != nil {
		return nil, errs, err
	}
	return items, errs, nil
}

// dedupeAgainstStore partitions items into unseen ones and a count of
// already-stored URLs, using one batched existence query.
func (o *Orchestrator) dedupeAgainstStore(ctx context.Context, items []types.PartialJob) ([]types.PartialJob, int, error) {
	if len(items) == 0 {
		return nil, 0, nil
	}
	urls := make([]string, len(items))
	for i, item := range items {
		urls[i] = item.URL
	}
	known, err := o.store.ExistsByURLs(ctx, urls)
	if err != nil {
		return nil, 0, fmt.Errorf("dedup query: %w", err)
	}

	fresh := make([]types.PartialJob, 0, len(items))
	skipped := 0
	for _, item := range items {
		if _, ok := known[item.URL]; ok {
			skipped++
			continue
		}
		fresh = append(fresh, item)
	}
	return fresh, skipped, nil
}

// collapseListing drops items that restate an earlier listing in the same
// run under a different URL, using the fuzzy title/company/date tier.
// Sites re-list the same posting through promoted slots and search
// variants; only the first occurrence proceeds to detail fetch.
func collapseListing(items []types.PartialJob) ([]types.PartialJob, int) {
	kept := make([]types.PartialJob, 0, len(items))
	dropped := 0
	for _, item := range items {
		dup := false
		for _, prev := range kept {
			if dedup.IsDuplicate(item.Title, item.Company, item.PostedDate, prev.Title, prev.Company, prev.PostedDate) {
				dup = true
				break
			}
		}
		if dup {
			dropped++
			continue
		}
		kept = append(kept, item)
	}
	return kept, dropped
}

// fetchWindow runs the detail fetches for one window concurrently and
// waits for all of them. Every item yields a record: a failed fetch keeps
// the listing fields and carries the error in FetchError.
func (o *Orchestrator) fetchWindow(ctx context.Context, site adapter.SiteAdapter, sess adapter.Session, window []types.PartialJob) ([]*types.JobRecord, int) {
	jobs := make([]*types.JobRecord, len(window))
	var mu sync.Mutex
	errs := 0

	var g errgroup.Group
	for i, item := range window {
		g.Go(func() error {
			var job *types.JobRecord
			err := o.retry.Do(ctx, func() error {
				var fetchErr error
				job, fetchErr = site.FetchDetail(ctx, sess, item)
				return fetchErr
			})
			if err != nil {
				o.logger.Warn("detail fetch failed", "url", item.URL, "error", err)
				if job == nil {
					job = types.FromPartial(item, site.Name())
				}
				job.FetchError = err.Error()
				mu.Lock()
				errs++
				mu.Unlock()
			}
			o.normalizeDates(job)
			jobs[i] = job
			return nil
		})
	}
	g.Wait()
	return jobs, errs
}

// normalizeDates canonicalizes the record's date fields; unparseable
// values become empty.
func (o *Orchestrator) normalizeDates(job *types.JobRecord) {
	now := o.now()
	if iso, ok := normalize.ParseDate(job.PostedDate, now); ok {
		job.PostedDate = iso
	} else {
		job.PostedDate = ""
	}
	if iso, ok := normalize.ParseDate(job.ClosingDate, now); ok {
		job.ClosingDate = iso
	} else {
		job.ClosingDate = ""
	}
}

func (o *Orchestrator) appendCrawlLog(ctx context.Context, stats types.CrawlSessionStats, logger *slog.Logger) {
	if err := o.store.AppendCrawlLog(ctx, stats); err != nil {
		logger.Warn("crawl log append failed", "error", err)
	}
}

// fail records a fatal run failure. Previously flushed batches stay
// committed.
func (o *Orchestrator) fail(ctx context.Context, stats types.CrawlSessionStats, start time.Time, err error) (types.CrawlSessionStats, error) {
	o.state.Store(int32(StateFailed))
	stats.State = types.RunFailed
	stats.Message = err.Error()
	stats.DurationSeconds = o.now().Sub(start).Seconds()
	o.appendCrawlLog(ctx, stats, o.logger.With("source", stats.Source))
	o.logger.Error("crawl failed", "source", stats.Source, "error", err)
	return stats, err
}
