package adapter

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"aerocrawl/internal/config"
	"aerocrawl/internal/dedup"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func selectorSource() config.SourceConfig {
	return config.SourceConfig{
		Name:       "skyjobs",
		Type:       "selector",
		BaseURL:    "https://careers.skyjobs.example",
		ListingURL: "https://careers.skyjobs.example/vacancies",
		Selectors: config.SelectorSet{
			Item:        "div.vacancy",
			Title:       "h3 a",
			URL:         "h3 a",
			Company:     ".company",
			Location:    ".location",
			Date:        ".posted",
			NextPage:    "a.next",
			Description: "div.description",
		},
	}
}

// --- Selector listing parsing ---

const listingHTML = `<html><body>
<div class="vacancy">
  <h3><a href="/jobs/occ-officer-101">Flight Operations Officer - OCC</a></h3>
  <span class="company">Acme Air</span>
  <span class="location">Dublin</span>
  <span class="posted">3 days ago</span>
</div>
<div class="vacancy">
  <h3><a href="https://careers.skyjobs.example/jobs/dispatcher-102">Flight Dispatcher</a></h3>
  <span class="location">Shannon</span>
  <span class="posted">2025-06-01</span>
</div>
<div class="vacancy">
  <h3><a href="/jobs/broken-103"></a></h3>
</div>
<a class="next" href="/vacancies?page=2">Next</a>
</body></html>`

func TestParseListingCSS(t *testing.T) {
	a := NewSelectorAdapter(selectorSource(), 10*time.Second, testLogger)

	items, next, err := a.parseListing(listingHTML, a.src.ListingURL)
	if err != nil {
		t.Fatalf("parseListing: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2 (titleless item skipped)", len(items))
	}

	first := items[0]
	if first.Title != "Flight Operations Officer - OCC" {
		t.Errorf("title = %q", first.Title)
	}
	if first.URL != "https://careers.skyjobs.example/jobs/occ-officer-101" {
		t.Errorf("relative href not resolved: %q", first.URL)
	}
	if first.Company != "Acme Air" || first.Location != "Dublin" {
		t.Errorf("company/location = %q/%q", first.Company, first.Location)
	}
	if first.PostedDate != "3 days ago" {
		t.Errorf("posted date passed through raw, got %q", first.PostedDate)
	}

	// Missing company falls back to the source name.
	if items[1].Company != "skyjobs" {
		t.Errorf("company fallback = %q, want source name", items[1].Company)
	}

	if next != "https://careers.skyjobs.example/vacancies?page=2" {
		t.Errorf("next page = %q", next)
	}
}

func TestParseListingXPath(t *testing.T) {
	src := selectorSource()
	src.Selectors.Item = "xpath://div[@class='vacancy']"
	src.Selectors.Title = "xpath:.//h3/a"
	src.Selectors.URL = "xpath:.//h3/a"
	src.Selectors.Company = "xpath:.//span[@class='company']"
	src.Selectors.Location = "xpath:.//span[@class='location']"
	src.Selectors.Date = "xpath:.//span[@class='posted']"
	a := NewSelectorAdapter(src, 10*time.Second, testLogger)

	items, _, err := a.parseListing(listingHTML, src.ListingURL)
	if err != nil {
		t.Fatalf("parseListing: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Title != "Flight Operations Officer - OCC" {
		t.Errorf("xpath title = %q", items[0].Title)
	}
	if items[0].URL != "https://careers.skyjobs.example/jobs/occ-officer-101" {
		t.Errorf("xpath url = %q", items[0].URL)
	}
}

func TestResolveURL(t *testing.T) {
	a := NewSelectorAdapter(selectorSource(), time.Second, testLogger)

	cases := []struct{ href, want string }{
		{"/jobs/1", "https://careers.skyjobs.example/jobs/1"},
		{"jobs/2", "https://careers.skyjobs.example/jobs/2"},
		{"https://other.example/j/3", "https://other.example/j/3"},
		{"", ""},
	}
	for _, c := range cases {
		if got := a.resolveURL(c.href); got != c.want {
			t.Errorf("resolveURL(%q) = %q, want %q", c.href, got, c.want)
		}
	}
}

// --- API field-path mapping ---

func apiSource() config.SourceConfig {
	return config.SourceConfig{
		Name:       "aerojobs-api",
		Type:       "api",
		ListingURL: "https://api.aerojobs.example/v1/jobs?page={page}",
		FieldPaths: map[string]string{
			"items":       "data.jobs",
			"title":       "attributes.title",
			"url":         "attributes.url",
			"company":     "attributes.airline.name",
			"location":    "attributes.base",
			"date":        "attributes.posted",
			"description": "attributes.body",
		},
	}
}

func TestJSONPath(t *testing.T) {
	var payload any
	raw := `{"data":{"jobs":[{"attributes":{"title":"OCC Duty Manager","airline":{"name":"Acme Air"}}}]},"total":42}`
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatal(err)
	}

	if got := asString(jsonPath(payload, "data.jobs.0.attributes.title")); got != "OCC Duty Manager" {
		t.Errorf("nested path = %q", got)
	}
	if got := asString(jsonPath(payload, "total")); got != "42" {
		t.Errorf("numeric leaf = %q, want \"42\"", got)
	}
	if got := jsonPath(payload, "data.jobs.5.attributes"); got != nil {
		t.Errorf("out-of-range index = %v, want nil", got)
	}
	if got := jsonPath(payload, "data.missing.deep"); got != nil {
		t.Errorf("missing key = %v, want nil", got)
	}
	if got := jsonPath(payload, ""); got != nil {
		t.Errorf("empty path = %v, want nil", got)
	}
}

func TestItemFromJSON(t *testing.T) {
	a := NewAPIAdapter(apiSource(), config.StealthConfig{}, time.Second, testLogger)

	var obj map[string]any
	raw := `{"attributes":{"title":"Flight Dispatcher","url":"https://api.aerojobs.example/jobs/7",
		"airline":{"name":"Acme Air"},"base":"Dublin","posted":"2025-06-01","body":"Dispatch flights."}}`
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		t.Fatal(err)
	}

	item, ok := a.itemFromJSON(obj)
	if !ok {
		t.Fatal("itemFromJSON rejected a complete item")
	}
	if item.Title != "Flight Dispatcher" || item.Company != "Acme Air" || item.Location != "Dublin" {
		t.Errorf("mapped item = %+v", item)
	}

	// The raw object is cached under the url hash for detail extraction,
	// reachable from the canonicalized url the pipeline carries.
	a.mu.Lock()
	cached := a.raw[dedup.Key(dedup.CanonicalURL(item.URL))]
	a.mu.Unlock()
	if cached == nil {
		t.Error("raw listing object not cached by url key")
	}

	// Items without a title or url are dropped.
	if _, ok := a.itemFromJSON(map[string]any{"attributes": map[string]any{"title": "No URL"}}); ok {
		t.Error("item without url accepted")
	}
}

// --- Registry ---

func TestRegistry(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sources = []config.SourceConfig{selectorSource(), apiSource()}

	reg, err := NewRegistry(cfg, testLogger)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if _, err := reg.Get("skyjobs"); err != nil {
		t.Errorf("Get(skyjobs): %v", err)
	}
	if _, err := reg.Get("nope"); err == nil {
		t.Error("Get(nope) succeeded, want error")
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "aerojobs-api" || names[1] != "skyjobs" {
		t.Errorf("Names() = %v", names)
	}

	cfg.Sources[0].Type = "rss"
	if _, err := NewRegistry(cfg, testLogger); err == nil {
		t.Error("unknown adapter type accepted")
	}
}
