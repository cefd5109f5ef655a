package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"aerocrawl/internal/config"
	"aerocrawl/internal/types"
)

// MongoStore implements JobStore over MongoDB.
type MongoStore struct {
	client    *mongo.Client
	jobs      *mongo.Collection
	companies *mongo.Collection
	crawlLogs *mongo.Collection
	logger    *slog.Logger
}

// NewMongoStore connects, pings, and ensures the uniqueness indexes the
// identity model relies on.
func NewMongoStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:    client,
		jobs:      db.Collection(cfg.JobsCollection),
		companies: db.Collection(cfg.CompanyCollection),
		crawlLogs: db.Collection(cfg.CrawlLogCollection),
		logger:    logger.With("component", "mongo_store"),
	}

	if err := s.ensureIndexes(connectCtx); err != nil {
		return nil, fmt.Errorf("mongodb indexes: %w", err)
	}
	return s, nil
}

// ensureIndexes creates the unique url index (the identity constraint the
// whole dedup/upsert model depends on) and the company mapping key.
func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.jobs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "url", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = s.companies.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "normalized_name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// ExistsByURLs resolves the stored status of every known URL in a single
// $in query, not one round trip per record.
func (s *MongoStore) ExistsByURLs(ctx context.Context, urls []string) (map[string]string, error) {
	known := make(map[string]string, len(urls))
	if len(urls) == 0 {
		return known, nil
	}

	cursor, err := s.jobs.Find(ctx,
		bson.M{"url": bson.M{"$in": urls}},
		options.Find().SetProjection(bson.M{"url": 1, "status": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongodb exists query: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var row struct {
			URL    string `bson:"url"`
			Status string `bson:"status"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("mongodb exists decode: %w", err)
		}
		known[row.URL] = row.Status
	}
	return known, cursor.Err()
}

// InsertJobs bulk-inserts with ordered=false so one duplicate-key loss
// does not sink the rest of the batch. Conflicting URLs are returned for a
// retried update by the caller.
func (s *MongoStore) InsertJobs(ctx context.Context, jobs []*types.JobRecord) (int, []string, error) {
	if len(jobs) == 0 {
		return 0, nil, nil
	}

	docs := make([]any, len(jobs))
	for i, j := range jobs {
		docs[i] = j
	}

	res, err := s.jobs.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	inserted := 0
	if res != nil {
		inserted = len(res.InsertedIDs)
	}
	if err == nil {
		return inserted, nil, nil
	}

	bwe, ok := err.(mongo.BulkWriteException)
	if !ok {
		return inserted, nil, fmt.Errorf("mongodb insert: %w", err)
	}

	var conflicts []string
	for _, we := range bwe.WriteErrors {
		// 11000 is the duplicate-key code; anything else is a real failure.
		if we.Code != 11000 {
			return inserted, nil, fmt.Errorf("mongodb insert: %w", err)
		}
		if we.Index >= 0 && we.Index < len(jobs) {
			conflicts = append(conflicts, jobs[we.Index].URL)
		}
	}
	// Unordered insert: everything not in WriteErrors landed.
	inserted = len(jobs) - len(conflicts)
	s.logger.Debug("insert conflicts converted", "conflicts", len(conflicts))
	return inserted, conflicts, nil
}

// UpdateJob refreshes an existing record by url. With keepStatus the
// stored status field is excluded from the update entirely.
func (s *MongoStore) UpdateJob(ctx context.Context, job *types.JobRecord, keepStatus bool) error {
	set := bson.M{
		"job_id":             job.JobID,
		"title":              job.Title,
		"company":            job.Company,
		"source":             job.Source,
		"location":           job.Location,
		"job_type":           job.JobType,
		"department":         job.Department,
		"posted_date":        job.PostedDate,
		"closing_date":       job.ClosingDate,
		"description":        job.Description,
		"requirements":       job.Requirements,
		"qualifications":     job.Qualifications,
		"timestamp":          job.Timestamp,
		"filter_match":       job.FilterMatch,
		"filter_score":       job.FilterScore,
		"matched_categories": job.MatchedCategories,
		"primary_category":   job.PrimaryCategory,
		"fetch_error":        job.FetchError,
	}
	if !keepStatus {
		set["status"] = job.Status
	}

	res, err := s.jobs.UpdateOne(ctx, bson.M{"url": job.URL}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("mongodb update: %w", err)
	}
	if res.MatchedCount == 0 {
		return &types.ConflictError{URL: job.URL, Err: mongo.ErrNoDocuments}
	}
	return nil
}

func (s *MongoStore) UpsertCompanyMapping(ctx context.Context, m CompanyMapping) error {
	_, err := s.companies.UpdateOne(ctx,
		bson.M{"normalized_name": m.NormalizedName},
		bson.M{
			"$set": bson.M{
				"display_name": m.DisplayName,
				"updated_at":   m.UpdatedAt,
			},
			// Operation classification and the review flag belong to the
			// humans reviewing mappings; only seed them on first sight.
			"$setOnInsert": bson.M{
				"operation":    m.Operation,
				"needs_review": true,
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongodb company upsert: %w", err)
	}
	return nil
}

func (s *MongoStore) AppendCrawlLog(ctx context.Context, stats types.CrawlSessionStats) error {
	if _, err := s.crawlLogs.InsertOne(ctx, stats); err != nil {
		return fmt.Errorf("mongodb crawl log: %w", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	disconnectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Disconnect(disconnectCtx)
}
