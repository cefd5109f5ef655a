package types

import "time"

// Run outcome states recorded on CrawlSessionStats.
const (
	RunDone   = "done"
	RunFailed = "failed"
)

// CrawlSessionStats summarizes one crawl run. It is created once per run
// and is immutable once returned.
type CrawlSessionStats struct {
	Source          string  `bson:"source"           json:"source"`
	State           string  `bson:"state"            json:"state"`
	Found           int     `bson:"found"            json:"found"`
	Matched         int     `bson:"matched"          json:"matched"`
	DedupSkipped    int     `bson:"dedup_skipped"    json:"dedup_skipped"`
	Created         int     `bson:"created"          json:"created"`
	Updated         int     `bson:"updated"          json:"updated"`
	Errors          int     `bson:"errors"           json:"errors"`
	DurationSeconds float64 `bson:"duration_seconds" json:"duration_seconds"`

	// Message carries the failure reason when State is "failed".
	Message string `bson:"message,omitempty" json:"message,omitempty"`

	StartedAt time.Time `bson:"started_at" json:"started_at"`
}
