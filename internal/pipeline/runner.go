// Package pipeline runs one scrape end to end: fetch, parse, filter, merge
// into the master file, write the dated snapshot, then the optional mirror,
// postings sink, notification, chart and metrics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscraper/internal/clock"
	"github.com/JakeFAU/jobscraper/internal/filter"
	uuidgen "github.com/JakeFAU/jobscraper/internal/id/uuid"
	"github.com/JakeFAU/jobscraper/internal/jobs"
	"github.com/JakeFAU/jobscraper/internal/logging"
	"github.com/JakeFAU/jobscraper/internal/master"
	"github.com/JakeFAU/jobscraper/internal/metrics"
	"github.com/JakeFAU/jobscraper/internal/output"
	"github.com/JakeFAU/jobscraper/internal/parse"
	"github.com/JakeFAU/jobscraper/internal/report"
	"github.com/JakeFAU/jobscraper/internal/storage"
)

// ChartTitle heads the per-day chart.
const ChartTitle = "Jobs per Day"

// Options are the per-run inputs, usually taken from CLI flags.
type Options struct {
	Keywords []string
	OutDir   string
	Prefix   string
	Format   jobs.Format
	Plot     bool
}

// Summary reports what a run did. It is also the notification payload.
type Summary struct {
	RunID            string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Keywords         []string  `json:"keywords"`
	Format           string    `json:"format"`
	Fetched          int       `json:"fetched"`
	Parsed           int       `json:"parsed"`
	Dropped          int       `json:"dropped"`
	Matched          int       `json:"matched"`
	Unique           int       `json:"unique"`
	Appended         int       `json:"appended"`
	MasterTotal      int       `json:"master_total"`
	MasterPath       string    `json:"master_path"`
	MasterWritten    bool      `json:"master_written"`
	SnapshotPath     string    `json:"snapshot_path"`
	MirroredURIs     []string  `json:"mirrored_uris,omitempty"`
	PostingsInserted int64     `json:"postings_inserted"`
}

// Deps wires the runner. Only Fetcher is required.
type Deps struct {
	Fetcher   jobs.Fetcher
	Writer    *output.Writer
	Mirror    *storage.Mirror
	Postings  jobs.PostingStore
	Publisher jobs.Publisher
	Topic     string
	Recorder  *metrics.Recorder
	// MetricsPath, when set, receives the registry after every run.
	MetricsPath string
	ChartOut    io.Writer
	ChartWidth  int
	LockMaster  bool
	Clock       jobs.Clock
	IDs         jobs.IDGenerator
	Logger      *zap.Logger
}

// Runner executes scrape runs.
type Runner struct {
	deps Deps
}

// New validates deps and fills defaults.
func New(deps Deps) (*Runner, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("pipeline: fetcher is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.IDs == nil {
		deps.IDs = uuidgen.New()
	}
	if deps.Writer == nil {
		deps.Writer = output.NewWriter(deps.Clock, deps.Logger)
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.New()
	}
	if deps.ChartOut == nil {
		deps.ChartOut = os.Stdout
	}
	return &Runner{deps: deps}, nil
}

// Run executes every stage in order. The master is refreshed before the
// snapshot is written, so a failed snapshot leaves a consistent master.
func (r *Runner) Run(ctx context.Context, opts Options) (summary Summary, err error) {
	runID, err := r.deps.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := logging.WithRun(r.deps.Logger, runID)

	if opts.Format == "" {
		opts.Format = jobs.FormatCSV
	}
	if opts.OutDir == "" {
		opts.OutDir = "."
	}
	summary = Summary{
		RunID:     runID,
		StartedAt: r.deps.Clock.Now(),
		Format:    string(opts.Format),
	}
	defer func() {
		summary.FinishedAt = r.deps.Clock.Now()
		r.finish(logger, summary, err)
	}()

	if strings.TrimSpace(opts.Prefix) == "" {
		return summary, errors.New("output prefix must be set")
	}
	if _, err = jobs.ParseFormat(string(opts.Format)); err != nil {
		return summary, err
	}

	logger.Info("Starting scrape", zap.String("out", opts.OutDir), zap.String("prefix", opts.Prefix), zap.String("format", string(opts.Format)))

	start := time.Now()
	raw, err := r.deps.Fetcher.Fetch(ctx)
	r.deps.Recorder.ObserveStage(metrics.StageFetch, time.Since(start))
	if err != nil {
		return summary, fmt.Errorf("fetch listing: %w", err)
	}
	summary.Fetched = len(raw)
	r.deps.Recorder.ObserveFetch(len(raw))
	logger.Info("Fetched listing", zap.Int("records", len(raw)))

	start = time.Now()
	parsed := parse.Parse(raw)
	r.deps.Recorder.ObserveStage(metrics.StageParse, time.Since(start))
	r.deps.Recorder.ObserveParse(parsed.Dropped)
	summary.Parsed = len(parsed.Records)
	summary.Dropped = parsed.Dropped
	if parsed.Dropped > 0 {
		logger.Warn("Dropped records with unparseable dates", zap.Int("dropped", parsed.Dropped))
	}

	start = time.Now()
	matcher := filter.New(opts.Keywords)
	matched := matcher.Apply(parsed.Records)
	batch := normalize(matched)
	r.deps.Recorder.ObserveStage(metrics.StageFilter, time.Since(start))
	r.deps.Recorder.ObserveFilter(len(matched))
	summary.Keywords = matcher.Keywords()
	summary.Matched = len(matched)
	summary.Unique = len(batch)
	logger.Info("Filtered postings",
		zap.Strings("keywords", matcher.Keywords()),
		zap.Int("matched", len(matched)),
		zap.Int("unique", len(batch)),
	)

	start = time.Now()
	store := master.NewStore(master.Config{Dir: opts.OutDir, Prefix: opts.Prefix, Lock: r.deps.LockMaster}, logger)
	merged, err := store.Refresh(ctx, batch)
	r.deps.Recorder.ObserveStage(metrics.StageMerge, time.Since(start))
	summary.MasterPath = store.Path()
	if err != nil {
		return summary, err
	}
	r.deps.Recorder.ObserveMerge(len(merged.Appended), merged.Total)
	summary.Appended = len(merged.Appended)
	summary.MasterTotal = merged.Total
	summary.MasterWritten = merged.Written

	if r.deps.Postings != nil && len(merged.Appended) > 0 {
		start = time.Now()
		inserted, err := r.deps.Postings.InsertPostings(ctx, merged.Appended)
		r.deps.Recorder.ObserveStage(metrics.StageSink, time.Since(start))
		if err != nil {
			return summary, fmt.Errorf("insert postings: %w", err)
		}
		summary.PostingsInserted = inserted
		logger.Info("Inserted postings", zap.Int64("inserted", inserted))
	}

	start = time.Now()
	snapshot, err := r.deps.Writer.Write(ctx, batch, opts.OutDir, opts.Prefix, opts.Format)
	r.deps.Recorder.ObserveStage(metrics.StageWrite, time.Since(start))
	if err != nil {
		return summary, err
	}
	summary.SnapshotPath = snapshot

	if r.deps.Mirror != nil {
		start = time.Now()
		uris, err := r.mirror(ctx, summary, opts.Format)
		r.deps.Recorder.ObserveStage(metrics.StageMirror, time.Since(start))
		summary.MirroredURIs = uris
		if err != nil {
			return summary, err
		}
	}

	if opts.Plot {
		start = time.Now()
		chart := report.NewChart(r.deps.ChartOut, ChartTitle, r.deps.ChartWidth, logger)
		err = chart.Render(batch)
		r.deps.Recorder.ObserveStage(metrics.StageReport, time.Since(start))
		if err != nil {
			return summary, fmt.Errorf("render chart: %w", err)
		}
	}

	if r.deps.Publisher != nil && r.deps.Topic != "" {
		summary.FinishedAt = r.deps.Clock.Now()
		msgID, err := r.deps.Publisher.Publish(ctx, r.deps.Topic, summary)
		if err != nil {
			return summary, fmt.Errorf("publish run summary: %w", err)
		}
		logger.Info("Published run summary", zap.String("topic", r.deps.Topic), zap.String("message_id", msgID))
	}

	return summary, nil
}

func (r *Runner) mirror(ctx context.Context, summary Summary, format jobs.Format) ([]string, error) {
	uris := make([]string, 0, 2)
	uri, err := r.deps.Mirror.Upload(ctx, summary.SnapshotPath, format.ContentType())
	if err != nil {
		return uris, err
	}
	uris = append(uris, uri)
	if summary.MasterWritten {
		uri, err = r.deps.Mirror.Upload(ctx, summary.MasterPath, jobs.FormatCSV.ContentType())
		if err != nil {
			return uris, err
		}
		uris = append(uris, uri)
	}
	return uris, nil
}

func (r *Runner) finish(logger *zap.Logger, summary Summary, err error) {
	r.deps.Recorder.ObserveRun(err, summary.FinishedAt)
	if r.deps.MetricsPath != "" {
		if werr := r.deps.Recorder.WriteTextfile(r.deps.MetricsPath); werr != nil {
			logger.Warn("Failed to write metrics textfile", zap.Error(werr))
		}
	}
	if err != nil {
		logger.Error("Scrape failed", zap.Error(err))
		return
	}
	logger.Info("Scrape complete",
		zap.Int("appended", summary.Appended),
		zap.Int("master_total", summary.MasterTotal),
		zap.String("snapshot", summary.SnapshotPath),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
}
