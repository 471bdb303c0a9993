package output

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscraper/internal/jobs"
)

// Writer persists per-run snapshot files.
type Writer struct {
	clock  jobs.Clock
	logger *zap.Logger
}

// NewWriter returns a Writer that dates files with clock.
func NewWriter(clock jobs.Clock, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{clock: clock, logger: logger}
}

// SnapshotName returns {prefix}_{YYYYMMDD}.{ext} for the UTC date of now.
func SnapshotName(prefix string, format jobs.Format, now time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, now.UTC().Format("20060102"), format.Ext())
}

// Write encodes records into dir, replacing any snapshot already written today,
// and returns the file path.
func (w *Writer) Write(ctx context.Context, records []jobs.Record, dir, prefix string, format jobs.Format) (string, error) {
	codec, err := CodecFor(format)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, SnapshotName(prefix, format, w.clock.Now()))
	if err := ctx.Err(); err != nil {
		return "", &jobs.WriteError{Path: path, Err: err}
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", &jobs.WriteError{Path: path, Err: fmt.Errorf("create output dir: %w", err)}
	}
	if err := WriteFileAtomic(path, func(out io.Writer) error {
		return codec.Encode(out, records)
	}); err != nil {
		return "", &jobs.WriteError{Path: path, Err: err}
	}
	w.logger.Info("Saved snapshot",
		zap.Int("rows", len(records)),
		zap.String("path", path),
		zap.String("format", string(format)),
	)
	return path, nil
}

// ReadFile decodes a file previously written in format.
func ReadFile(path string, format jobs.Format) ([]jobs.Record, error) {
	codec, err := CodecFor(format)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is built from operator-supplied output settings.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return codec.Decode(bufio.NewReader(f))
}

// WriteFileAtomic writes through a temp file in the target directory and
// renames it over path, so readers never observe a partial file.
func WriteFileAtomic(path string, fill func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = fill(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err = os.Chmod(tmpName, 0o640); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
