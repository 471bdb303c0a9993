// Package parse projects raw API objects onto jobs.Record values.
package parse

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/JakeFAU/jobscraper/internal/jobs"
)

// Result carries the parsed records and the number of rows dropped because
// their date could not be coerced.
type Result struct {
	Records []jobs.Record
	Dropped int
}

// Parse keeps only the date, company, position, location and url fields.
// Missing fields become empty strings; rows with an unusable date are dropped.
func Parse(raw []jobs.RawRecord) Result {
	out := Result{Records: make([]jobs.Record, 0, len(raw))}
	for _, row := range raw {
		postedAt, ok := Date(field(row, "date"))
		if !ok {
			out.Dropped++
			continue
		}
		out.Records = append(out.Records, jobs.Record{
			PostedAt: postedAt,
			Company:  field(row, "company"),
			Position: field(row, "position"),
			Location: field(row, "location"),
			URL:      field(row, "url"),
		})
	}
	return out
}

// Date leniently coerces s to a UTC timestamp. Inputs without a zone are
// read as UTC.
func Date(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func field(row jobs.RawRecord, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
