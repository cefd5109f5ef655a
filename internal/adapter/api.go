package adapter

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"

	"aerocrawl/internal/config"
	"aerocrawl/internal/dedup"
	"aerocrawl/internal/types"
)

const maxAPIBodySize = 10 << 20

// APIAdapter extracts postings from JSON career APIs. Field paths map
// dotted JSON paths into job fields; the raw item object is kept so
// FetchDetail can fill detail fields without a second round trip when the
// listing payload already carries them.
type APIAdapter struct {
	src        config.SourceConfig
	client     *http.Client
	userAgents []string
	logger     *slog.Logger

	mu  sync.Mutex
	raw map[string]map[string]any // dedup.Key(url) -> raw listing item
}

// NewAPIAdapter creates a JSON-API adapter for one source.
func NewAPIAdapter(src config.SourceConfig, stealth config.StealthConfig, timeout time.Duration, logger *slog.Logger) *APIAdapter {
	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		// Decompression handled below so brotli responses work too.
		DisableCompression: true,
	}
	return &APIAdapter{
		src: src,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		userAgents: stealth.UserAgents,
		logger:     logger.With("component", "api_adapter", "source", src.Name),
		raw:        make(map[string]map[string]any),
	}
}

func (a *APIAdapter) Name() string { return a.src.Name }

// FetchListing pages through the API, emitting one PartialJob per item.
// A "{page}" placeholder in the listing URL enables pagination; without it
// a single request is made.
func (a *APIAdapter) FetchListing(ctx context.Context, sess Session, limits config.SourceLimits) <-chan ListingResult {
	out := make(chan ListingResult)

	go func() {
		defer close(out)

		paged := strings.Contains(a.src.ListingURL, "{page}")
		maxPages := limits.MaxPages
		if !paged {
			maxPages = 1
		}
		emitted := 0

		for pageNum := 1; pageNum <= maxPages; pageNum++ {
			if ctx.Err() != nil {
				return
			}
			if err := sess.ThinkDefault(ctx); err != nil {
				return
			}

			reqURL := strings.ReplaceAll(a.src.ListingURL, "{page}", strconv.Itoa(pageNum))
			payload, err := a.fetchJSON(ctx, reqURL)
			if err != nil {
				out <- ListingResult{Err: err}
				return
			}

			items := asSlice(jsonPath(payload, a.path("items", "items")))
			if len(items) == 0 {
				return
			}
			a.logger.Debug("listing page fetched", "page", pageNum, "items", len(items))

			for _, entry := range items {
				obj, ok := entry.(map[string]any)
				if !ok {
					continue
				}
				item, ok := a.itemFromJSON(obj)
				if !ok {
					continue
				}
				if emitted >= limits.MaxJobs {
					return
				}
				select {
				case out <- ListingResult{Job: item}:
					emitted++
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// itemFromJSON maps one raw listing object into a PartialJob and caches
// the raw object for detail extraction.
func (a *APIAdapter) itemFromJSON(obj map[string]any) (types.PartialJob, bool) {
	item := types.PartialJob{
		Title:      asString(jsonPath(obj, a.path("title", "title"))),
		URL:        asString(jsonPath(obj, a.path("url", "url"))),
		Company:    asString(jsonPath(obj, a.path("company", ""))),
		Location:   asString(jsonPath(obj, a.path("location", ""))),
		PostedDate: asString(jsonPath(obj, a.path("date", ""))),
	}
	if item.Company == "" {
		item.Company = a.src.Name
	}
	if item.Title == "" || item.URL == "" {
		return types.PartialJob{}, false
	}

	// Keyed by canonical URL: the engine canonicalizes item URLs between
	// listing and detail fetch.
	a.mu.Lock()
	a.raw[dedup.Key(item.URL)] = obj
	a.mu.Unlock()
	return item, true
}

// FetchDetail fills detail fields from the cached listing object, making
// a second request only when a "detail_url" path is configured.
func (a *APIAdapter) FetchDetail(ctx context.Context, sess Session, item types.PartialJob) (*types.JobRecord, error) {
	a.mu.Lock()
	obj := a.raw[dedup.Key(item.URL)]
	a.mu.Unlock()
	if obj == nil {
		return nil, &types.ExtractionError{URL: item.URL, Err: fmt.Errorf("no cached listing payload")}
	}

	if detailPath := a.path("detail_url", ""); detailPath != "" {
		detailURL := asString(jsonPath(obj, detailPath))
		if detailURL != "" {
			if err := sess.ThinkDefault(ctx); err != nil {
				return nil, err
			}
			payload, err := a.fetchJSON(ctx, detailURL)
			if err != nil {
				return nil, err
			}
			if m, ok := payload.(map[string]any); ok {
				obj = m
			}
		}
	}

	job := types.FromPartial(item, a.src.Name)
	job.Description = asString(jsonPath(obj, a.path("description", "")))
	job.Requirements = asString(jsonPath(obj, a.path("requirements", "")))
	job.Qualifications = asString(jsonPath(obj, a.path("qualifications", "")))
	job.ClosingDate = asString(jsonPath(obj, a.path("closing_date", "")))
	job.JobType = asString(jsonPath(obj, a.path("job_type", "")))
	job.Department = asString(jsonPath(obj, a.path("department", "")))

	if a.path("description", "") != "" && !job.HasDetail() {
		return job, &types.ExtractionError{
			URL:   item.URL,
			Field: "description",
			Err:   fmt.Errorf("no configured field path matched"),
		}
	}
	return job, nil
}

// fetchJSON GETs a URL with browser-like headers and decodes the JSON body.
func (a *APIAdapter) fetchJSON(ctx context.Context, reqURL string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &types.TransportError{URL: reqURL, Err: err}
	}
	req.Header.Set("User-Agent", a.userAgent())
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Connection", "keep-alive")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &types.TransportError{URL: reqURL, Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &types.TransportError{
			URL:       reqURL,
			Err:       fmt.Errorf("HTTP %d", resp.StatusCode),
			Retryable: true,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &types.TransportError{
			URL: reqURL,
			Err: fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	}

	reader, err := decompressReader(resp, io.LimitReader(resp.Body, maxAPIBodySize))
	if err != nil {
		return nil, &types.TransportError{URL: reqURL, Err: err}
	}

	var payload any
	if err := json.NewDecoder(reader).Decode(&payload); err != nil {
		return nil, &types.ExtractionError{URL: reqURL, Err: fmt.Errorf("decode json: %w", err)}
	}
	return payload, nil
}

func (a *APIAdapter) userAgent() string {
	if len(a.userAgents) == 0 {
		return "aerocrawl/1.0"
	}
	return a.userAgents[0]
}

// path returns the configured dotted path for a field, or a fallback.
func (a *APIAdapter) path(field, fallback string) string {
	if p, ok := a.src.FieldPaths[field]; ok {
		return p
	}
	return fallback
}

// decompressReader wraps a response body with the decompressor matching
// its Content-Encoding. gzip, deflate, and brotli are handled.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// jsonPath walks a decoded JSON value by dotted path. Numeric segments
// index arrays. An empty path returns nil.
func jsonPath(value any, path string) any {
	if path == "" {
		return nil
	}
	cur := value
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[seg]
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			cur = node[idx]
		default:
			return nil
		}
	}
	return cur
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", s))
	}
}

func asSlice(v any) []any {
	if s, ok := v.([]any); ok {
		return s
	}
	return nil
}
