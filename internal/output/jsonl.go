package output

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/JakeFAU/jobscraper/internal/jobs"
)

// JSONLinesCodec writes one JSON object per line with RFC 3339 timestamps.
type JSONLinesCodec struct{}

// Encode writes records as newline-delimited JSON.
func (JSONLinesCodec) Encode(w io.Writer, records []jobs.Record) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		r.PostedAt = r.PostedAt.UTC()
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode json line %q: %w", r.URL, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush json lines: %w", err)
	}
	return nil
}

// Decode reads newline-delimited JSON records.
func (JSONLinesCodec) Decode(r io.Reader) ([]jobs.Record, error) {
	dec := json.NewDecoder(r)
	var out []jobs.Record
	for {
		var rec jobs.Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode json line %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
}
