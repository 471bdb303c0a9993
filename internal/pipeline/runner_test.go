package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobscraper/internal/clock"
	collyfetcher "github.com/JakeFAU/jobscraper/internal/fetcher/colly"
	"github.com/JakeFAU/jobscraper/internal/jobs"
	"github.com/JakeFAU/jobscraper/internal/output"
	"github.com/JakeFAU/jobscraper/internal/pipeline"
	"github.com/JakeFAU/jobscraper/internal/policy/retry"
	memorypub "github.com/JakeFAU/jobscraper/internal/publisher/memory"
	"github.com/JakeFAU/jobscraper/internal/storage"
	memoryblob "github.com/JakeFAU/jobscraper/internal/storage/memory"
)

const listing = `[
	{"legal": "terms"},
	{"date": "2024-02-28T09:00:00+00:00", "company": "Acme", "position": "Python Engineer", "location": "Remote", "url": "https://x/1"},
	{"date": "2024-02-29T12:30:00+00:00", "company": "Gopher Co", "position": "Senior Go Developer", "location": "EU", "url": "https://x/2"},
	{"date": "2024-02-27T08:00:00+00:00", "company": "Acme", "position": "Python Engineer (repost)", "location": "Remote", "url": "https://x/1"},
	{"date": "2024-02-29T10:00:00+00:00", "company": "Shop", "position": "Sales Manager", "location": "US", "url": "https://x/3"},
	{"date": "not-a-date", "company": "Broken", "position": "Python Data", "location": "?", "url": "https://x/4"}
]`

var runDay = time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

type recordingPostings struct {
	batches [][]jobs.Record
	err     error
}

func (p *recordingPostings) InsertPostings(_ context.Context, records []jobs.Record) (int64, error) {
	if p.err != nil {
		return 0, p.err
	}
	p.batches = append(p.batches, records)
	return int64(len(records)), nil
}

type harness struct {
	dir       string
	chart     *bytes.Buffer
	blobs     *memoryblob.BlobStore
	publisher *memorypub.Publisher
	postings  *recordingPostings
	runner    *pipeline.Runner
	metrics   string
}

func newHarness(t *testing.T, url string) *harness {
	t.Helper()
	h := &harness{
		dir:       t.TempDir(),
		chart:     &bytes.Buffer{},
		blobs:     memoryblob.NewBlobStore(),
		publisher: memorypub.New(),
		postings:  &recordingPostings{},
	}
	h.metrics = filepath.Join(t.TempDir(), "jobscraper.prom")
	fetcher := collyfetcher.New(collyfetcher.Config{URL: url, Timeout: 5 * time.Second},
		retry.New(retry.Config{MaxRetries: 1, BaseDelay: time.Millisecond}), nil,
		collyfetcher.WithSleep(func(context.Context, time.Duration) error { return nil }))
	runner, err := pipeline.New(pipeline.Deps{
		Fetcher:     fetcher,
		Mirror:      storage.NewMirror(h.blobs, "mirror", nil),
		Postings:    h.postings,
		Publisher:   h.publisher,
		Topic:       "scrapes",
		MetricsPath: h.metrics,
		ChartOut:    h.chart,
		ChartWidth:  10,
		LockMaster:  true,
		Clock:       clock.Fixed{At: runDay},
		IDs:         &seqIDs{},
	})
	require.NoError(t, err)
	h.runner = runner
	return h
}

func (h *harness) options(keywords ...string) pipeline.Options {
	return pipeline.Options{Keywords: keywords, OutDir: h.dir, Prefix: "jobs", Format: jobs.FormatCSV, Plot: true}
}

func listingServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunFirstScrape(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listingServer(t, listing).URL)
	summary, err := h.runner.Run(context.Background(), h.options("python", "go"))
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 5, summary.Fetched)
	assert.Equal(t, 4, summary.Parsed)
	assert.Equal(t, 1, summary.Dropped)
	assert.Equal(t, 3, summary.Matched)
	assert.Equal(t, 2, summary.Unique)
	assert.Equal(t, 2, summary.Appended)
	assert.Equal(t, 2, summary.MasterTotal)
	assert.True(t, summary.MasterWritten)
	assert.Equal(t, int64(2), summary.PostingsInserted)

	wantSnapshot := filepath.Join(h.dir, "jobs_20240301.csv")
	assert.Equal(t, wantSnapshot, summary.SnapshotPath)
	snapshot, err := output.ReadFile(wantSnapshot, jobs.FormatCSV)
	require.NoError(t, err)
	require.Len(t, snapshot, 2)
	assert.Equal(t, "https://x/2", snapshot[0].URL, "newest first")
	assert.Equal(t, "Python Engineer", snapshot[1].Position, "first occurrence of a url wins")

	master, err := output.ReadFile(filepath.Join(h.dir, "jobs_master.csv"), jobs.FormatCSV)
	require.NoError(t, err)
	assert.Len(t, master, 2)

	assert.Equal(t, []string{"mirror/jobs_20240301.csv", "mirror/jobs_master.csv"}, h.blobs.Paths())
	assert.Equal(t, []string{"memory://mirror/jobs_20240301.csv", "memory://mirror/jobs_master.csv"}, summary.MirroredURIs)

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "scrapes", msgs[0].Topic)
	var published pipeline.Summary
	require.NoError(t, json.Unmarshal(msgs[0].Data, &published))
	assert.Equal(t, "run-1", published.RunID)
	assert.Equal(t, 2, published.Appended)

	chart := h.chart.String()
	assert.Contains(t, chart, "Jobs per Day")
	assert.Contains(t, chart, "2024-02-28 | ")
	assert.Contains(t, chart, "2024-02-29 | ")

	prom, err := os.ReadFile(h.metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `jobscraper_runs_total{outcome="success"} 1`)
	assert.Contains(t, string(prom), "jobscraper_records_appended_total 2")
}

func TestRunSecondScrapeAppendsNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listingServer(t, listing).URL)
	_, err := h.runner.Run(context.Background(), h.options("python", "go"))
	require.NoError(t, err)

	summary, err := h.runner.Run(context.Background(), h.options("python", "go"))
	require.NoError(t, err)
	assert.Equal(t, "run-2", summary.RunID)
	assert.Equal(t, 0, summary.Appended)
	assert.Equal(t, 2, summary.MasterTotal)
	assert.False(t, summary.MasterWritten)
	assert.Equal(t, []string{"memory://mirror/jobs_20240301.csv"}, summary.MirroredURIs)
	assert.Len(t, h.postings.batches, 1, "no postings inserted on a run with nothing new")

	snapshot, err := output.ReadFile(summary.SnapshotPath, jobs.FormatCSV)
	require.NoError(t, err)
	assert.Len(t, snapshot, 2, "snapshot holds every match, not just new ones")
}

func TestRunZeroMatchesWritesEmptySnapshot(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listingServer(t, listing).URL)
	opts := h.options("haskell")
	opts.Format = jobs.FormatJSON
	summary, err := h.runner.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Matched)
	assert.Equal(t, filepath.Join(h.dir, "jobs_20240301.json"), summary.SnapshotPath)
	info, err := os.Stat(summary.SnapshotPath)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
	_, err = os.Stat(filepath.Join(h.dir, "jobs_master.csv"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "master untouched when nothing is new")
	assert.Empty(t, h.chart.String())
}

func TestRunWithoutKeywordsKeepsEverything(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listingServer(t, listing).URL)
	summary, err := h.runner.Run(context.Background(), h.options())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Matched)
	assert.Equal(t, 3, summary.Unique)
	assert.Equal(t, 3, summary.Appended)
}

func TestRunMalformedMasterAborts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listingServer(t, listing).URL)
	masterPath := filepath.Join(h.dir, "jobs_master.csv")
	require.NoError(t, os.WriteFile(masterPath, []byte("not,a,master\n1,2,3\n"), 0o600))

	_, err := h.runner.Run(context.Background(), h.options("python"))
	var loadErr *jobs.MasterLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, masterPath, loadErr.Path)

	_, statErr := os.Stat(filepath.Join(h.dir, "jobs_20240301.csv"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "no snapshot after a master failure")
	assert.Empty(t, h.publisher.Messages())

	prom, readErr := os.ReadFile(h.metrics)
	require.NoError(t, readErr)
	assert.Contains(t, string(prom), `jobscraper_runs_total{outcome="failure"} 1`)
}

func TestRunFetchFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	h := newHarness(t, srv.URL)
	_, err := h.runner.Run(context.Background(), h.options("python"))
	var fetchErr *jobs.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)

	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunPostingsFailureStopsBeforeSnapshot(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listingServer(t, listing).URL)
	h.postings.err = errors.New("db down")

	_, err := h.runner.Run(context.Background(), h.options("python"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert postings")
	_, statErr := os.Stat(filepath.Join(h.dir, "jobs_20240301.csv"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestRunPublishFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listingServer(t, listing).URL)
	h.publisher.FailWith(errors.New("topic gone"))

	summary, err := h.runner.Run(context.Background(), h.options("go"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "publish run summary"))
	assert.NotEmpty(t, summary.SnapshotPath, "outputs are written before notification")
}

func TestRunRejectsBadOptions(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listingServer(t, listing).URL)
	opts := h.options("go")
	opts.Prefix = ""
	_, err := h.runner.Run(context.Background(), opts)
	require.Error(t, err)

	opts = h.options("go")
	opts.Format = "xlsx"
	_, err = h.runner.Run(context.Background(), opts)
	require.ErrorIs(t, err, jobs.ErrUnknownFormat)
}

func TestNewRequiresFetcher(t *testing.T) {
	t.Parallel()
	_, err := pipeline.New(pipeline.Deps{})
	require.Error(t, err)
}
