// Package dedup implements the two-tier duplicate policy: canonical URL
// identity, and a fuzzy title/company/date comparison for postings that
// reappear under different URLs.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// SimilarityThreshold is the minimum normalized title similarity for the
// fuzzy tier.
const SimilarityThreshold = 0.90

// CanonicalURL normalizes a URL for identity comparison:
// - lowercases scheme and host
// - removes fragment
// - sorts query parameters
// - removes trailing slash (except root)
// - removes default ports (80 for http, 443 for https)
func CanonicalURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	host := u.Hostname()
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	}

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sorted []string
		for _, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for _, v := range vals {
				sorted = append(sorted, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(sorted, "&")
	}

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}

// Key returns a compact 128-bit hash of the canonical URL.
func Key(rawURL string) string {
	h := sha256.Sum256([]byte(CanonicalURL(rawURL)))
	return hex.EncodeToString(h[:16])
}

// IsDuplicate reports whether two postings describe the same job. Either
// the title/company/date triple matches exactly (case-insensitive), or the
// titles are near-identical with the same company and date.
//
// Empty dates compare equal to each other. Two undated postings from the
// same company with similar titles therefore dedupe against each other;
// that permissive policy is long-standing behavior and is kept as-is.
func IsDuplicate(titleA, companyA, dateA, titleB, companyB, dateB string) bool {
	sameCompany := strings.EqualFold(strings.TrimSpace(companyA), strings.TrimSpace(companyB))
	sameDate := dateA == dateB
	if !sameCompany || !sameDate {
		return false
	}

	ta := strings.TrimSpace(titleA)
	tb := strings.TrimSpace(titleB)
	if strings.EqualFold(ta, tb) {
		return true
	}
	return Similarity(strings.ToLower(ta), strings.ToLower(tb)) >= SimilarityThreshold
}

// Similarity returns a normalized string-similarity ratio in [0, 1] based
// on edit distance: 1 means identical, 0 means nothing in common.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(editDistance(ra, rb))/float64(longest)
}

// editDistance computes the Levenshtein distance with a rolling row.
func editDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
