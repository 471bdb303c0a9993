package jobs

import (
	"fmt"
	"strings"
	"time"
)

// Columns is the fixed column order used by every tabular encoding.
var Columns = []string{"date", "company", "position", "location", "url"}

// RawRecord is one decoded JSON object as returned by the upstream API.
type RawRecord map[string]any

// Record is a single job posting after parsing.
type Record struct {
	PostedAt time.Time `json:"date"`
	Company  string    `json:"company"`
	Position string    `json:"position"`
	Location string    `json:"location"`
	URL      string    `json:"url"`
}

// Day returns the UTC calendar day the posting was published.
func (r Record) Day() time.Time {
	t := r.PostedAt.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Format selects the snapshot encoding.
type Format string

// Supported snapshot formats.
const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatJSON    Format = "json"
)

// Formats lists every supported format in display order.
var Formats = []Format{FormatCSV, FormatParquet, FormatJSON}

// ParseFormat validates a user-supplied format name.
func ParseFormat(raw string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(raw)))
	switch f {
	case FormatCSV, FormatParquet, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q (want csv, parquet or json)", ErrUnknownFormat, raw)
	}
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string {
	return string(f)
}

// ContentType returns the MIME type used when mirroring files to blob storage.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/x-ndjson"
	case FormatParquet:
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}
