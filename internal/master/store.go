package master

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscraper/internal/jobs"
	"github.com/JakeFAU/jobscraper/internal/output"
)

// Config locates the master file.
type Config struct {
	Dir    string
	Prefix string
	// Lock takes an advisory lock beside the master file for the duration of
	// a refresh so that overlapping runs fail instead of losing rows.
	Lock bool
}

// Result describes the outcome of a refresh.
type Result struct {
	Path     string
	Total    int
	Appended []jobs.Record
	Written  bool
}

// Store reads and rewrites the master CSV.
type Store struct {
	path   string
	lock   bool
	codec  output.CSVCodec
	logger *zap.Logger
}

// Path returns {dir}/{prefix}_master.csv.
func Path(dir, prefix string) string {
	return filepath.Join(dir, prefix+"_master.csv")
}

// NewStore builds a Store for cfg.
func NewStore(cfg Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		path:   Path(cfg.Dir, cfg.Prefix),
		lock:   cfg.Lock,
		logger: logger,
	}
}

// Path returns the master file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted master set. A missing file yields an empty set;
// any other read or decode failure is a *jobs.MasterLoadError.
func (s *Store) Load() ([]jobs.Record, error) {
	// #nosec G304 -- master path is derived from operator configuration.
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &jobs.MasterLoadError{Path: s.path, Err: err}
	}
	defer func() { _ = f.Close() }()

	records, err := s.codec.Decode(f)
	if err != nil {
		return nil, &jobs.MasterLoadError{Path: s.path, Err: err}
	}
	if dup := firstDuplicateURL(records); dup != "" {
		s.logger.Warn("Master file already contains a duplicate url", zap.String("url", dup))
	}
	return records, nil
}

// Refresh merges incoming into the persisted set and rewrites the file only
// when something was appended. A run with nothing new touches no files, the
// lock file included; otherwise the lock is taken and the master re-read
// under it before writing.
func (s *Store) Refresh(ctx context.Context, incoming []jobs.Record) (Result, error) {
	res := Result{Path: s.path}
	existing, err := s.Load()
	if err != nil {
		return res, err
	}
	merged, appended := Merge(existing, incoming)
	res.Total = len(merged)
	res.Appended = appended

	if len(appended) == 0 {
		s.logger.Info("No new jobs to append", zap.Int("master_total", res.Total))
		return res, nil
	}
	if s.lock {
		unlock, err := s.acquire()
		if err != nil {
			return res, err
		}
		defer unlock()
		if existing, err = s.Load(); err != nil {
			return res, err
		}
		merged, appended = Merge(existing, incoming)
		res.Total = len(merged)
		res.Appended = appended
		if len(appended) == 0 {
			s.logger.Info("No new jobs to append", zap.Int("master_total", res.Total))
			return res, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return res, &jobs.WriteError{Path: s.path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return res, &jobs.WriteError{Path: s.path, Err: fmt.Errorf("create master dir: %w", err)}
	}
	if err := output.WriteFileAtomic(s.path, func(w io.Writer) error {
		return s.codec.Encode(w, merged)
	}); err != nil {
		return res, &jobs.WriteError{Path: s.path, Err: err}
	}
	res.Written = true
	s.logger.Info("Appended new jobs to master",
		zap.Int("appended", len(appended)),
		zap.Int("master_total", res.Total),
		zap.String("path", s.path),
	)
	return res, nil
}

func (s *Store) acquire() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return nil, &jobs.WriteError{Path: s.path, Err: fmt.Errorf("create master dir: %w", err)}
	}
	lk := flock.New(s.path + ".lock")
	ok, err := lk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock master %s: %w", s.path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobs.ErrMasterLocked, lk.Path())
	}
	return func() {
		if err := lk.Unlock(); err != nil {
			s.logger.Warn("Failed to release master lock", zap.Error(err))
		}
	}, nil
}

func firstDuplicateURL(records []jobs.Record) string {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, ok := seen[r.URL]; ok {
			return r.URL
		}
		seen[r.URL] = struct{}{}
	}
	return ""
}
