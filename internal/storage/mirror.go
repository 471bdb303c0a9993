// Package storage copies finished output files into a blob store so runs on
// ephemeral hosts leave their results somewhere durable.
package storage

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscraper/internal/jobs"
)

// Mirror uploads local files under a key prefix.
type Mirror struct {
	store  jobs.BlobStore
	prefix string
	logger *zap.Logger
}

// NewMirror returns a Mirror writing to store. prefix may be empty.
func NewMirror(store jobs.BlobStore, prefix string, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{store: store, prefix: prefix, logger: logger}
}

// ObjectPath returns the blob key used for localPath.
func (m *Mirror) ObjectPath(localPath string) string {
	return path.Join(m.prefix, filepath.Base(localPath))
}

// Upload copies localPath to the blob store and returns its URI.
func (m *Mirror) Upload(ctx context.Context, localPath, contentType string) (string, error) {
	// #nosec G304 -- localPath is a file this process just wrote.
	f, err := os.Open(localPath)
	if err != nil {
		return "", &jobs.WriteError{Path: localPath, Err: fmt.Errorf("open for mirror: %w", err)}
	}
	defer func() { _ = f.Close() }()

	key := m.ObjectPath(localPath)
	uri, err := m.store.PutObject(ctx, key, contentType, bufio.NewReader(f))
	if err != nil {
		return "", &jobs.WriteError{Path: key, Err: err}
	}
	m.logger.Info("Mirrored output", zap.String("path", localPath), zap.String("uri", uri))
	return uri, nil
}
