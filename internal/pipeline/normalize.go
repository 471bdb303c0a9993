package pipeline

import (
	"sort"

	"github.com/JakeFAU/jobscraper/internal/jobs"
)

// normalize drops repeated urls (first occurrence wins) and orders the batch
// newest first. The sort is stable so equal dates keep upstream order.
func normalize(records []jobs.Record) []jobs.Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]jobs.Record, 0, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.URL]; dup {
			continue
		}
		seen[rec.URL] = struct{}{}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PostedAt.After(out[j].PostedAt)
	})
	return out
}
