// Package output encodes record sets into tabular files and writes the dated
// snapshot for each run.
package output

import (
	"fmt"
	"io"

	"github.com/JakeFAU/jobscraper/internal/jobs"
)

// Codec converts records to and from one file format.
type Codec interface {
	Encode(w io.Writer, records []jobs.Record) error
	Decode(r io.Reader) ([]jobs.Record, error)
}

// CodecFor returns the codec implementing format.
func CodecFor(format jobs.Format) (Codec, error) {
	switch format {
	case jobs.FormatCSV:
		return CSVCodec{}, nil
	case jobs.FormatParquet:
		return ParquetCodec{}, nil
	case jobs.FormatJSON:
		return JSONLinesCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", jobs.ErrUnknownFormat, format)
	}
}
