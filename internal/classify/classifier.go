// Package classify scores posting titles for relevance before the run pays
// the detail-fetch cost for them.
package classify

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"aerocrawl/internal/types"
)

// Score tiers used for observability buckets only, never for routing.
const (
	tierHigh   = 5.0
	tierMedium = 3.0
)

// DefaultThreshold is the minimum total score for a match.
const DefaultThreshold = 1.5

// Category is one weighted keyword group. Order matters: ties on the
// primary category resolve to the first-configured one.
type Category struct {
	FilterType  string
	DisplayName string
	Description string
	Weight      float64
	Keywords    []string
}

// Result is the classification of a single title.
type Result struct {
	Match      bool
	Score      float64
	Categories []string
	Primary    string
	Excluded   bool
}

// FilterStats buckets one run's classification outcomes by score tier and
// category.
type FilterStats struct {
	Total      int
	Matched    int
	Rejected   int
	Excluded   int
	High       int
	Medium     int
	Low        int
	ByCategory map[string]int
}

type compiledKeyword struct {
	re     *regexp.Regexp
	phrase bool
}

// Classifier is a weighted keyword/phrase scorer with exclusion patterns.
type Classifier struct {
	categories []Category
	keywords   [][]compiledKeyword
	exclusions []*regexp.Regexp
	threshold  float64
	logger     *slog.Logger
}

// New compiles a classifier from ordered categories and exclusion patterns.
// A malformed exclusion pattern is a configuration error and fails fast.
func New(categories []Category, exclusions []string, threshold float64, logger *slog.Logger) (*Classifier, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	c := &Classifier{
		categories: categories,
		keywords:   make([][]compiledKeyword, len(categories)),
		threshold:  threshold,
		logger:     logger.With("component", "classifier"),
	}

	for i, cat := range categories {
		if cat.Weight <= 0 {
			return nil, &types.ConfigError{
				File: "filters",
				Err:  fmt.Errorf("category %q has non-positive weight %v", cat.FilterType, cat.Weight),
			}
		}
		for _, kw := range cat.Keywords {
			compiled, phrase, err := compileKeyword(kw)
			if err != nil {
				return nil, &types.ConfigError{File: "filters", Err: err}
			}
			c.keywords[i] = append(c.keywords[i], compiledKeyword{re: compiled, phrase: phrase})
		}
	}

	for _, pattern := range exclusions {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, &types.ConfigError{
				File: "filters",
				Err:  fmt.Errorf("bad exclusion pattern %q: %w", pattern, err),
			}
		}
		c.exclusions = append(c.exclusions, re)
	}

	c.logger.Debug("classifier ready",
		"categories", len(categories),
		"exclusions", len(c.exclusions),
		"threshold", threshold,
	)
	return c, nil
}

// compileKeyword builds a case-insensitive word-boundary matcher. Keywords
// containing whitespace are phrases: higher-precision signals worth double
// weight, with flexible whitespace between words.
func compileKeyword(kw string) (*regexp.Regexp, bool, error) {
	words := strings.Fields(strings.TrimSpace(kw))
	if len(words) == 0 {
		return nil, false, fmt.Errorf("empty keyword")
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	re, err := regexp.Compile(`(?i)\b` + strings.Join(quoted, `\s+`) + `\b`)
	if err != nil {
		return nil, false, fmt.Errorf("bad keyword %q: %w", kw, err)
	}
	return re, len(words) > 1, nil
}

// Classify scores one title. Exclusion patterns run first: any match is an
// immediate non-match with score 0, regardless of keyword overlap.
func (c *Classifier) Classify(title string) Result {
	for _, re := range c.exclusions {
		if re.MatchString(title) {
			return Result{Excluded: true}
		}
	}

	var res Result
	categoryScores := make([]float64, len(c.categories))

	for i, cat := range c.categories {
		// Phrases first, then single words.
		for _, pass := range []bool{true, false} {
			for _, kw := range c.keywords[i] {
				if kw.phrase != pass {
					continue
				}
				if !kw.re.MatchString(title) {
					continue
				}
				contribution := cat.Weight
				if kw.phrase {
					contribution *= 2
				}
				categoryScores[i] += contribution
				res.Score += contribution
			}
		}
	}

	var best float64
	for i, score := range categoryScores {
		if score <= 0 {
			continue
		}
		res.Categories = append(res.Categories, c.categories[i].FilterType)
		// Strict > keeps the first-configured category on ties.
		if score > best {
			best = score
			res.Primary = c.categories[i].FilterType
		}
	}

	res.Match = res.Score >= c.threshold
	if !res.Match {
		res.Primary = ""
	}
	return res
}

// FilterJobs classifies listing items in place and splits them into matched
// and rejected sets. Rejected items are never detail-fetched.
func (c *Classifier) FilterJobs(items []types.PartialJob) (matched, rejected []types.PartialJob, stats FilterStats) {
	stats.ByCategory = make(map[string]int)
	stats.Total = len(items)

	for _, item := range items {
		res := c.Classify(item.Title)

		item.FilterMatch = res.Match
		item.FilterScore = res.Score
		item.MatchedCategories = res.Categories
		item.PrimaryCategory = res.Primary

		if !res.Match {
			if res.Excluded {
				stats.Excluded++
			}
			stats.Rejected++
			rejected = append(rejected, item)
			continue
		}

		stats.Matched++
		switch {
		case res.Score >= tierHigh:
			stats.High++
		case res.Score >= tierMedium:
			stats.Medium++
		default:
			stats.Low++
		}
		if res.Primary != "" {
			stats.ByCategory[res.Primary]++
		}
		matched = append(matched, item)
	}

	c.logger.Debug("titles filtered",
		"total", stats.Total,
		"matched", stats.Matched,
		"rejected", stats.Rejected,
		"excluded", stats.Excluded,
	)
	return matched, rejected, stats
}

// Threshold returns the configured match threshold.
func (c *Classifier) Threshold() float64 { return c.threshold }
