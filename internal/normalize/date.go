// Package normalize converts heterogeneous scraped field text into
// canonical forms. Everything here is pure and deterministic given "now".
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const isoDate = "2006-01-02"

var (
	// The input is lowercased before matching, so the separator branch
	// must accept a lowercase t.
	isoRegex      = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})([t ].*)?$`)
	relativeRegex = regexp.MustCompile(`^(?:about\s+|over\s+|more than\s+)?(\d+)(\+)?\s*(minute|min|hour|hr|day|week|month|year)s?\s+ago$`)
	// "more than 30" with no unit or "ago" suffix, seen on listing pages
	// that cap the displayed age.
	openEndedRegex = regexp.MustCompile(`^more than\s+(\d+)(?:\s+days?)?$`)
	ordinalRegex  = regexp.MustCompile(`\b(\d{1,2})(st|nd|rd|th)\b`)
	prefixRegex   = regexp.MustCompile(`^(?:posted|published|date posted|posted on|closing|closes)[:\s]+`)
)

// absoluteLayouts are tried in order against the cleaned input. Ambiguous
// slash dates are read day-first, matching the sources this feeds from.
var absoluteLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"2 Jan 2006",
	"2 Jan 06",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Jan 2, 06",
	"2 January 2006",
	"2 January 06",
	"January 2, 2006",
	"January 2 2006",
}

// ParseDate converts free-form date text into a canonical ISO date
// (YYYY-MM-DD). The second return value is false when the text could not be
// parsed or the result fails the sanity bounds.
//
// Relative phrasing ("3 days ago", "2 weeks ago") is resolved against now.
// Months count as 30 days and years as 365; "30+ days ago" and "more than
// 30 days ago" resolve to exactly 30 days ago even though the true age may
// be far greater. That truncation is long-standing source behavior and is
// kept as-is.
func ParseDate(text string, now time.Time) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return "", false
	}
	s = prefixRegex.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	// Already-ISO input passes through verbatim, so normalization is
	// idempotent for anything this function has produced before.
	if m := isoRegex.FindStringSubmatch(s); m != nil {
		if _, err := time.Parse(isoDate, m[1]); err == nil {
			return m[1], true
		}
		return "", false
	}

	switch s {
	case "today", "just now", "now", "recently":
		return now.Format(isoDate), true
	case "yesterday":
		return now.AddDate(0, 0, -1).Format(isoDate), true
	}

	if m := relativeRegex.FindStringSubmatch(s); m != nil {
		return parseRelative(m, now)
	}
	if m := openEndedRegex.FindStringSubmatch(s); m != nil {
		return parseRelative([]string{m[0], m[1], "+", "day"}, now)
	}

	cleaned := capitalizeWords(ordinalRegex.ReplaceAllString(s, "$1"))
	for _, layout := range absoluteLayouts {
		t, err := time.Parse(layout, cleaned)
		if err != nil {
			continue
		}
		if !saneAbsolute(t, now) {
			return "", false
		}
		return t.Format(isoDate), true
	}

	return "", false
}

// parseRelative resolves "<N> <unit> ago" phrasing.
func parseRelative(m []string, now time.Time) (string, bool) {
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return "", false
	}

	// "30+ days ago" means at least 30; resolve to exactly 30.
	var t time.Time
	switch m[3] {
	case "minute", "min":
		// sub-hour ages round to today
		t = now
	case "hour", "hr":
		t = now.Add(-time.Duration(n) * time.Hour)
	case "day":
		t = now.AddDate(0, 0, -n)
	case "week":
		t = now.AddDate(0, 0, -7*n)
	case "month":
		t = now.AddDate(0, 0, -30*n)
	case "year":
		t = now.AddDate(0, 0, -365*n)
	default:
		return "", false
	}

	if !saneRelative(t, now) {
		return "", false
	}
	return t.Format(isoDate), true
}

// saneRelative bounds a derived date to [-10 years, +30 days] of now.
// Anything outside is treated as unparseable rather than propagated.
func saneRelative(t, now time.Time) bool {
	return !t.Before(now.AddDate(-10, 0, 0)) && !t.After(now.AddDate(0, 0, 30))
}

// saneAbsolute bounds an explicit date. Closing dates legitimately sit
// months ahead, so the future window is wider than for derived dates.
func saneAbsolute(t, now time.Time) bool {
	return !t.Before(now.AddDate(-10, 0, 0)) && !t.After(now.AddDate(2, 0, 0))
}

// capitalizeWords uppercases the first letter of each word so month names
// survive time.Parse's case-sensitive layouts.
func capitalizeWords(s string) string {
	out := []rune(s)
	prevSpace := true
	for i, r := range out {
		if prevSpace && unicode.IsLetter(r) {
			out[i] = unicode.ToUpper(r)
		}
		prevSpace = unicode.IsSpace(r)
	}
	return string(out)
}
