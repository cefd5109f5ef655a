// Package store defines the long-term job store contract and its
// implementations. The engine owns only this contract; the datastore
// behind it is an external collaborator.
package store

import (
	"context"
	"regexp"
	"strings"
	"time"

	"aerocrawl/internal/types"
)

// CompanyMapping classifies a normalized company name. Mappings are
// consumed by the surrounding application; the engine only upserts them as
// new companies appear in flushed records.
type CompanyMapping struct {
	NormalizedName string    `bson:"normalized_name" json:"normalized_name"`
	DisplayName    string    `bson:"display_name"    json:"display_name"`
	Operation      string    `bson:"operation"       json:"operation"`
	NeedsReview    bool      `bson:"needs_review"    json:"needs_review"`
	UpdatedAt      time.Time `bson:"updated_at"      json:"updated_at"`
}

// JobStore is the persistence contract the engine depends on. URL is the
// sole identity: the store enforces uniqueness at that level.
type JobStore interface {
	// ExistsByURLs returns the stored status for each known URL in one
	// batched round trip. Unknown URLs are absent from the result.
	ExistsByURLs(ctx context.Context, urls []string) (map[string]string, error)

	// InsertJobs bulk-inserts new records. URLs that lose a uniqueness
	// race are reported in conflicts so the caller can retry them as
	// updates; the remaining inserts still land.
	InsertJobs(ctx context.Context, jobs []*types.JobRecord) (inserted int, conflicts []string, err error)

	// UpdateJob refreshes an existing record's fields. When keepStatus is
	// set, the stored status is left untouched (protected terminal states
	// must not be reopened by re-ingestion).
	UpdateJob(ctx context.Context, job *types.JobRecord, keepStatus bool) error

	// UpsertCompanyMapping creates or refreshes a company mapping keyed by
	// normalized name.
	UpsertCompanyMapping(ctx context.Context, m CompanyMapping) error

	// AppendCrawlLog records one run's immutable stats.
	AppendCrawlLog(ctx context.Context, stats types.CrawlSessionStats) error

	Close(ctx context.Context) error
}

var (
	companyPunct    = regexp.MustCompile(`[^a-z0-9 ]+`)
	companySuffixes = []string{
		"limited", "ltd", "llc", "inc", "incorporated", "plc", "pty",
		"gmbh", "sa", "bv", "group", "holdings", "co",
	}
)

// NormalizeCompanyName reduces a display name to the unique mapping key:
// lowercase, punctuation stripped, trailing legal suffixes removed.
func NormalizeCompanyName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = companyPunct.ReplaceAllString(s, " ")
	words := strings.Fields(s)

	for len(words) > 1 {
		last := words[len(words)-1]
		trimmed := false
		for _, suffix := range companySuffixes {
			if last == suffix {
				words = words[:len(words)-1]
				trimmed = true
				break
			}
		}
		if !trimmed {
			break
		}
	}
	return strings.Join(words, " ")
}
