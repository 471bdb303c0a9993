// Package filter keeps postings whose position mentions any keyword.
package filter

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/jobscraper/internal/jobs"
)

// Matcher holds one case-insensitive alternation of every keyword.
type Matcher struct {
	keywords []string
	pattern  *regexp.Regexp
}

// New compiles keywords into a Matcher. Blank and repeated keywords are
// ignored; a Matcher without keywords keeps every record with a position.
func New(keywords []string) *Matcher {
	kws := normalizeKeywords(keywords)
	m := &Matcher{keywords: kws}
	if len(kws) == 0 {
		return m
	}
	quoted := make([]string, len(kws))
	for i, kw := range kws {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	m.pattern = regexp.MustCompile("(?i)(?:" + strings.Join(quoted, "|") + ")")
	return m
}

// Keywords returns the effective keyword list.
func (m *Matcher) Keywords() []string {
	return append([]string(nil), m.keywords...)
}

// Match reports whether position contains any keyword. An empty position
// never matches.
func (m *Matcher) Match(position string) bool {
	if position == "" {
		return false
	}
	if m.pattern == nil {
		return true
	}
	return m.pattern.MatchString(position)
}

// Apply returns a new slice holding the matching records in input order.
func (m *Matcher) Apply(records []jobs.Record) []jobs.Record {
	out := make([]jobs.Record, 0, len(records))
	for _, r := range records {
		if m.Match(r.Position) {
			out = append(out, r)
		}
	}
	return out
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, kw := range in {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
	}
	return out
}
