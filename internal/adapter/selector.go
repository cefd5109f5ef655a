package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"aerocrawl/internal/config"
	"aerocrawl/internal/types"
)

// SelectorAdapter extracts postings through a browsing session using a
// configured selector mapping. A selector prefixed with "xpath:" is
// evaluated as XPath; anything else as CSS.
type SelectorAdapter struct {
	src     config.SourceConfig
	timeout time.Duration
	logger  *slog.Logger
}

// NewSelectorAdapter creates a selector-driven adapter for one source.
func NewSelectorAdapter(src config.SourceConfig, timeout time.Duration, logger *slog.Logger) *SelectorAdapter {
	return &SelectorAdapter{
		src:     src,
		timeout: timeout,
		logger:  logger.With("component", "selector_adapter", "source", src.Name),
	}
}

func (a *SelectorAdapter) Name() string { return a.src.Name }

// FetchListing walks listing pages, emitting one PartialJob per item node
// until limits are reached or pagination runs out.
func (a *SelectorAdapter) FetchListing(ctx context.Context, sess Session, limits config.SourceLimits) <-chan ListingResult {
	out := make(chan ListingResult)

	go func() {
		defer close(out)

		pageURL := a.src.ListingURL
		emitted := 0

		for pageNum := 1; pageNum <= limits.MaxPages && pageURL != ""; pageNum++ {
			if ctx.Err() != nil {
				return
			}
			if err := sess.ThinkDefault(ctx); err != nil {
				return
			}

			page, err := sess.NewPage(ctx, pageURL, a.timeout)
			if err != nil {
				out <- ListingResult{Err: err}
				return
			}
			sess.SimulateInteraction(page)
			htmlText, err := page.HTML()
			_ = page.Close()
			if err != nil {
				out <- ListingResult{Err: &types.TransportError{URL: pageURL, Err: err, Retryable: true}}
				return
			}

			items, nextURL, err := a.parseListing(htmlText, pageURL)
			if err != nil {
				out <- ListingResult{Err: err}
				return
			}
			a.logger.Debug("listing page parsed", "page", pageNum, "items", len(items))

			for _, item := range items {
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

			pageURL = nextURL
		}
	}()

	return out
}

// parseListing extracts listing items and the next-page URL from one
// page. The item selector's dialect decides how the whole listing set is
// evaluated.
func (a *SelectorAdapter) parseListing(htmlText, pageURL string) ([]types.PartialJob, string, error) {
	sel := a.src.Selectors

	if strings.HasPrefix(sel.Item, "xpath:") {
		root, err := html.Parse(strings.NewReader(htmlText))
		if err != nil {
			return nil, "", &types.ExtractionError{URL: pageURL, Err: err}
		}
		next := ""
		if sel.NextPage != "" {
			next = a.resolveURL(extractXPath(root, sel.NextPage, "href"))
		}
		return a.parseListingXPath(root), next, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, "", &types.ExtractionError{URL: pageURL, Err: err}
	}

	var items []types.PartialJob
	doc.Find(sel.Item).Each(func(i int, node *goquery.Selection) {
		item := types.PartialJob{
			Title:      extractCSS(node, sel.Title, ""),
			URL:        a.resolveURL(extractCSS(node, sel.URL, "href")),
			Company:    extractCSS(node, sel.Company, ""),
			Location:   extractCSS(node, sel.Location, ""),
			PostedDate: extractCSS(node, sel.Date, ""),
		}
		if item.Company == "" {
			item.Company = a.src.Name
		}
		if item.Title == "" || item.URL == "" {
			a.logger.Debug("listing item missing title or url, skipped", "index", i)
			return
		}
		items = append(items, item)
	})

	next := ""
	if sel.NextPage != "" {
		next = a.resolveURL(extractCSS(doc.Selection, sel.NextPage, "href"))
	}
	return items, next, nil
}

// parseListingXPath handles sources whose markup is only addressable by
// XPath (nested tables, unclassed nodes).
func (a *SelectorAdapter) parseListingXPath(root *html.Node) []types.PartialJob {
	sel := a.src.Selectors
	nodes, err := htmlquery.QueryAll(root, strings.TrimPrefix(sel.Item, "xpath:"))
	if err != nil {
		a.logger.Warn("bad xpath item selector", "error", err)
		return nil
	}

	var items []types.PartialJob
	for _, n := range nodes {
		item := types.PartialJob{
			Title:      extractXPath(n, sel.Title, ""),
			URL:        a.resolveURL(extractXPath(n, sel.URL, "href")),
			Company:    extractXPath(n, sel.Company, ""),
			Location:   extractXPath(n, sel.Location, ""),
			PostedDate: extractXPath(n, sel.Date, ""),
		}
		if item.Company == "" {
			item.Company = a.src.Name
		}
		if item.Title != "" && item.URL != "" {
			items = append(items, item)
		}
	}
	return items
}

// FetchDetail navigates to the item's page and fills the detail fields.
func (a *SelectorAdapter) FetchDetail(ctx context.Context, sess Session, item types.PartialJob) (*types.JobRecord, error) {
	if err := sess.ThinkDefault(ctx); err != nil {
		return nil, err
	}

	page, err := sess.NewPage(ctx, item.URL, a.timeout)
	if err != nil {
		return nil, err
	}
	defer page.Close()
	sess.SimulateInteraction(page)

	htmlText, err := page.HTML()
	if err != nil {
		return nil, &types.TransportError{URL: item.URL, Err: err, Retryable: true}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, &types.ExtractionError{URL: item.URL, Err: err}
	}

	job := types.FromPartial(item, a.src.Name)
	sel := a.src.Selectors
	job.Description = extractAny(doc, htmlText, sel.Description)
	job.Requirements = extractAny(doc, htmlText, sel.Requirements)
	job.Qualifications = extractAny(doc, htmlText, sel.Qualifications)
	job.ClosingDate = extractAny(doc, htmlText, sel.ClosingDate)
	job.JobType = extractAny(doc, htmlText, sel.JobType)
	job.Department = extractAny(doc, htmlText, sel.Department)

	// A detail page yielding none of its configured fields almost always
	// means the markup changed under us.
	if sel.Description != "" && !job.HasDetail() {
		return job, &types.ExtractionError{
			URL:   item.URL,
			Field: "description",
			Err:   fmt.Errorf("no configured detail selector matched"),
		}
	}
	return job, nil
}

// resolveURL makes a possibly-relative href absolute against the base URL.
func (a *SelectorAdapter) resolveURL(href string) string {
	if href == "" {
		return ""
	}
	base, err := url.Parse(a.src.BaseURL)
	if err != nil || a.src.BaseURL == "" {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// extractAny evaluates a selector in either dialect against a full page.
func extractAny(doc *goquery.Document, htmlText, selector string) string {
	if selector == "" {
		return ""
	}
	if strings.HasPrefix(selector, "xpath:") {
		root, err := html.Parse(strings.NewReader(htmlText))
		if err != nil {
			return ""
		}
		return extractXPath(root, selector, "")
	}
	return extractCSS(doc.Selection, selector, "")
}

// extractCSS returns trimmed text (or an attribute) for the first match of
// a CSS selector under node.
func extractCSS(node *goquery.Selection, selector, attr string) string {
	if selector == "" {
		return ""
	}
	found := node.Find(selector).First()
	if found.Length() == 0 {
		return ""
	}
	if attr != "" {
		val, _ := found.Attr(attr)
		return strings.TrimSpace(val)
	}
	return strings.TrimSpace(found.Text())
}

// extractXPath returns trimmed text (or an attribute) for the first match
// of an "xpath:"-prefixed expression under node.
func extractXPath(node *html.Node, selector, attr string) string {
	if selector == "" {
		return ""
	}
	expr := strings.TrimPrefix(selector, "xpath:")
	found, err := htmlquery.Query(node, expr)
	if err != nil || found == nil {
		return ""
	}
	if attr != "" {
		return strings.TrimSpace(htmlquery.SelectAttr(found, attr))
	}
	return strings.TrimSpace(htmlquery.InnerText(found))
}
