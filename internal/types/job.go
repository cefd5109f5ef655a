package types

import (
	"time"
)

// Job status values stored on persisted records. A crawl run only ever
// writes StatusActive; the protected terminal values are set by a human
// through the surrounding application and must survive re-ingestion.
const (
	StatusActive   = "active"
	StatusClosed   = "closed"
	StatusRejected = "rejected"
	StatusArchived = "archived"
)

// ProtectedStatuses are terminal states that persistence must never
// overwrite back to an active state.
var ProtectedStatuses = map[string]bool{
	StatusClosed:   true,
	StatusRejected: true,
	StatusArchived: true,
}

// PartialJob is the listing-phase view of a posting: whatever the listing
// page exposes before the detail fetch pays for the rest. Title and URL are
// always present; everything else is best effort.
type PartialJob struct {
	JobID      string `bson:"job_id"     json:"job_id"`
	Title      string `bson:"title"      json:"title"`
	URL        string `bson:"url"        json:"url"`
	Company    string `bson:"company"    json:"company"`
	Location   string `bson:"location"   json:"location"`
	PostedDate string `bson:"posted_date" json:"posted_date"`

	// Classifier annotations, filled during the filtering stage.
	FilterMatch       bool     `bson:"filter_match"       json:"filter_match"`
	FilterScore       float64  `bson:"filter_score"       json:"filter_score"`
	MatchedCategories []string `bson:"matched_categories" json:"matched_categories"`
	PrimaryCategory   string   `bson:"primary_category"   json:"primary_category"`
}

// JobRecord is the in-flight representation of one scraped posting. It is
// created transient during a run, progressively filled (listing fields,
// then detail fields), handed to the batch persister, then discarded; the
// store's row is the durable representation thereafter.
//
// URL is the sole identity for upsert. JobID is an ephemeral per-run
// correlation id, never a durable key.
type JobRecord struct {
	URL   string `bson:"url"    json:"url"`
	JobID string `bson:"job_id" json:"job_id"`

	Title      string `bson:"title"      json:"title"`
	Company    string `bson:"company"    json:"company"`
	Source     string `bson:"source"     json:"source"`
	Location   string `bson:"location"   json:"location"`
	JobType    string `bson:"job_type"   json:"job_type"`
	Department string `bson:"department" json:"department"`

	// Canonical ISO dates (YYYY-MM-DD); empty means unparseable/unknown.
	PostedDate  string `bson:"posted_date"  json:"posted_date"`
	ClosingDate string `bson:"closing_date" json:"closing_date"`

	Description    string `bson:"description"    json:"description"`
	Requirements   string `bson:"requirements"   json:"requirements"`
	Qualifications string `bson:"qualifications" json:"qualifications"`

	Status    string    `bson:"status"    json:"status"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`

	FilterMatch       bool     `bson:"filter_match"       json:"filter_match"`
	FilterScore       float64  `bson:"filter_score"       json:"filter_score"`
	MatchedCategories []string `bson:"matched_categories" json:"matched_categories"`
	PrimaryCategory   string   `bson:"primary_category"   json:"primary_category"`

	// FetchError records a per-item soft failure (extraction error or
	// detail-fetch timeout). The record is still persisted with whatever
	// fields were filled.
	FetchError string `bson:"fetch_error,omitempty" json:"fetch_error,omitempty"`
}

// FromPartial creates a JobRecord seeded with listing-phase fields.
func FromPartial(p PartialJob, source string) *JobRecord {
	return &JobRecord{
		URL:               p.URL,
		JobID:             p.JobID,
		Title:             p.Title,
		Company:           p.Company,
		Source:            source,
		Location:          p.Location,
		PostedDate:        p.PostedDate,
		Status:            StatusActive,
		Timestamp:         time.Now(),
		FilterMatch:       p.FilterMatch,
		FilterScore:       p.FilterScore,
		MatchedCategories: p.MatchedCategories,
		PrimaryCategory:   p.PrimaryCategory,
	}
}

// AgeDays returns the number of whole days between the posting date and
// now, or -1 when the posting date is unknown.
func (j *JobRecord) AgeDays(now time.Time) int {
	if j.PostedDate == "" {
		return -1
	}
	posted, err := time.Parse("2006-01-02", j.PostedDate)
	if err != nil {
		return -1
	}
	return int(now.Sub(posted).Hours() / 24)
}

// HasDetail reports whether any detail-page field was filled.
func (j *JobRecord) HasDetail() bool {
	return j.Description != "" || j.Requirements != "" || j.Qualifications != ""
}
