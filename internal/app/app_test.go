package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobscraper/internal/app"
	"github.com/JakeFAU/jobscraper/internal/config"
	"github.com/JakeFAU/jobscraper/internal/jobs"
	"github.com/JakeFAU/jobscraper/internal/pipeline"
)

func testConfig(t *testing.T, url string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Source.URL = url
	cfg.HTTP.MaxRetries = 0
	cfg.Output.Dir = t.TempDir()
	return cfg
}

func TestNewWithLocalMirror(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"legal":"x"},{"date":"2024-05-01T00:00:00Z","company":"A","position":"Golang Dev","location":"R","url":"https://x/1"}]`))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Storage.Backend = config.StorageLocal
	cfg.Storage.BaseDir = t.TempDir()
	cfg.Storage.Prefix = "daily"
	cfg.Metrics.TextfilePath = filepath.Join(t.TempDir(), "scrape.prom")

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Runner())
	assert.Equal(t, cfg, a.Config())

	summary, err := a.Runner().Run(context.Background(), pipeline.Options{
		Keywords: []string{"golang"},
		OutDir:   cfg.Output.Dir,
		Prefix:   "jobs",
		Format:   jobs.FormatCSV,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Appended)
	require.Len(t, summary.MirroredURIs, 2)

	_, err = os.Stat(filepath.Join(cfg.Storage.BaseDir, "daily", filepath.Base(summary.SnapshotPath)))
	require.NoError(t, err)

	prom, err := os.ReadFile(cfg.Metrics.TextfilePath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "jobscraper_fetch_attempts_total 1")
}

func TestNewLocalMirrorUnwritable(t *testing.T) {
	cfg := testConfig(t, "https://example.com/api")
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	cfg.Storage.Backend = config.StorageLocal
	cfg.Storage.BaseDir = filepath.Join(blocker, "mirror")

	_, err := app.New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize storage")
}

func TestNewUnknownBackend(t *testing.T) {
	cfg := testConfig(t, "https://example.com/api")
	cfg.Storage.Backend = "s3"

	_, err := app.New(context.Background(), cfg, nil)
	require.Error(t, err)
}
