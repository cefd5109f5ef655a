// Package adapter defines the per-site extraction interface the engine
// consumes, plus two data-driven implementations that cover most sources:
// a selector-driven browser adapter and a JSON API adapter. Bespoke
// adapters for markup that genuinely needs custom control flow live
// outside the core and plug into the same interface.
package adapter

import (
	"context"
	"time"

	"github.com/go-rod/rod"

	"aerocrawl/internal/config"
	"aerocrawl/internal/types"
)

// Session is the slice of the stealth session adapters need. The concrete
// implementation lives in internal/stealth.
type Session interface {
	Think(ctx context.Context, min, max time.Duration) error
	ThinkDefault(ctx context.Context) error
	NewPage(ctx context.Context, url string, timeout time.Duration) (*rod.Page, error)
	SimulateInteraction(page *rod.Page)
	Close() error
}

// ListingResult is one element of the lazy listing sequence: a partial job
// or an error encountered while producing it.
type ListingResult struct {
	Job types.PartialJob
	Err error
}

// SiteAdapter extracts postings from one external site. The engine never
// knows the selectors; adapters are configuration-like mappings behind
// this interface.
type SiteAdapter interface {
	Name() string

	// FetchListing streams listing items lazily. The sequence is finite
	// and non-restartable: the channel closes when the listing is
	// exhausted, limits are reached, or ctx is canceled. Every item
	// carries at least Title and URL.
	FetchListing(ctx context.Context, sess Session, limits config.SourceLimits) <-chan ListingResult

	// FetchDetail fills the remaining fields for one listing item. An
	// ExtractionError is isolated to the item and never fatal for the run.
	FetchDetail(ctx context.Context, sess Session, item types.PartialJob) (*types.JobRecord, error)
}
