// Package master maintains the cumulative, url-deduplicated CSV of every
// posting seen across runs.
package master

import "github.com/JakeFAU/jobscraper/internal/jobs"

// Merge appends the incoming records whose url is not yet in existing, in
// arrival order. Duplicates inside incoming are collapsed to their first
// occurrence. existing is never modified; the returned slice is fresh.
func Merge(existing, incoming []jobs.Record) (merged []jobs.Record, appended []jobs.Record) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.URL] = struct{}{}
	}
	for _, r := range incoming {
		if _, ok := seen[r.URL]; ok {
			continue
		}
		seen[r.URL] = struct{}{}
		appended = append(appended, r)
	}
	merged = make([]jobs.Record, 0, len(existing)+len(appended))
	merged = append(merged, existing...)
	merged = append(merged, appended...)
	return merged, appended
}
