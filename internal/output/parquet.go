package output

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/JakeFAU/jobscraper/internal/jobs"
)

// ParquetCodec stores records in a single Parquet row group. Timestamps keep
// millisecond precision.
type ParquetCodec struct{}

type parquetRow struct {
	Date     time.Time `parquet:"date,timestamp(millisecond)"`
	Company  string    `parquet:"company"`
	Position string    `parquet:"position"`
	Location string    `parquet:"location"`
	URL      string    `parquet:"url"`
}

// Encode writes records as a Parquet file.
func (ParquetCodec) Encode(w io.Writer, records []jobs.Record) error {
	rows := make([]parquetRow, len(records))
	for i, r := range records {
		rows[i] = parquetRow{
			Date:     r.PostedAt.UTC(),
			Company:  r.Company,
			Position: r.Position,
			Location: r.Location,
			URL:      r.URL,
		}
	}
	if err := parquet.Write(w, rows); err != nil {
		return fmt.Errorf("write parquet: %w", err)
	}
	return nil
}

// Decode reads a whole Parquet file into memory and returns its rows.
func (ParquetCodec) Decode(r io.Reader) ([]jobs.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	rows, err := parquet.Read[parquetRow](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decode parquet: %w", err)
	}
	out := make([]jobs.Record, len(rows))
	for i, row := range rows {
		out[i] = jobs.Record{
			PostedAt: row.Date.UTC(),
			Company:  row.Company,
			Position: row.Position,
			Location: row.Location,
			URL:      row.URL,
		}
	}
	return out, nil
}
