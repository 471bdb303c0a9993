package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/JakeFAU/jobscraper/internal/jobs"
	"github.com/JakeFAU/jobscraper/internal/parse"
)

// CSVCodec reads and writes UTF-8 CSV with a header row and RFC 3339 dates.
type CSVCodec struct{}

// Encode writes the header followed by one row per record.
func (CSVCodec) Encode(w io.Writer, records []jobs.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(jobs.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.PostedAt.UTC().Format(time.RFC3339),
			r.Company,
			r.Position,
			r.Location,
			r.URL,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %q: %w", r.URL, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Decode reads records back. Columns are located by header name, so extra or
// reordered columns are tolerated; a missing column or unparseable date is an
// error.
func (CSVCodec) Decode(r io.Reader) ([]jobs.Record, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("csv is empty: missing header")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}
	cr.FieldsPerRecord = len(header)

	var out []jobs.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		postedAt, ok := parse.Date(row[idx["date"]])
		if !ok {
			return nil, fmt.Errorf("csv line %d: invalid date %q", line, row[idx["date"]])
		}
		out = append(out, jobs.Record{
			PostedAt: postedAt,
			Company:  row[idx["company"]],
			Position: row[idx["position"]],
			Location: row[idx["location"]],
			URL:      row[idx["url"]],
		})
	}
	return out, nil
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, col := range jobs.Columns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("csv header missing column(s): %s", strings.Join(missing, ", "))
	}
	return idx, nil
}
