// Package metrics exposes Prometheus collectors for a scrape run.
//
// A run is a short-lived process, so collectors live on a private registry
// that is flushed to a node_exporter textfile at the end of the run instead of
// being served over HTTP.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Stage names used for the stage duration histogram.
const (
	StageFetch  = "fetch"
	StageParse  = "parse"
	StageFilter = "filter"
	StageMerge  = "merge"
	StageWrite  = "write"
	StageMirror = "mirror"
	StageSink   = "sink"
	StageReport = "report"
)

// Recorder owns the collectors for one run.
type Recorder struct {
	registry *prometheus.Registry

	recordsFetched  prometheus.Counter
	recordsDropped  prometheus.Counter
	recordsMatched  prometheus.Counter
	recordsAppended prometheus.Counter
	fetchAttempts   prometheus.Counter
	runsTotal       *prometheus.CounterVec
	masterRecords   prometheus.Gauge
	lastSuccess     prometheus.Gauge
	stageDuration   *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		recordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobscraper_records_fetched_total",
			Help: "Raw listing elements returned by the upstream API, sentinel excluded.",
		}),
		recordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobscraper_records_dropped_total",
			Help: "Listing elements dropped because their date could not be parsed.",
		}),
		recordsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobscraper_records_matched_total",
			Help: "Postings whose position matched a keyword.",
		}),
		recordsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobscraper_records_appended_total",
			Help: "Postings appended to the master file.",
		}),
		fetchAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobscraper_fetch_attempts_total",
			Help: "HTTP attempts made against the upstream API.",
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobscraper_runs_total",
			Help: "Completed runs, labeled by outcome.",
		}, []string{"outcome"}),
		masterRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobscraper_master_records",
			Help: "Rows in the master file after the run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jobscraper_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobscraper_stage_duration_seconds",
			Help:    "Wall time spent in each pipeline stage.",
			Buckets: []float64{0.005, 0.05, 0.25, 1, 5, 15, 60},
		}, []string{"stage"}),
	}
	reg.MustRegister(
		r.recordsFetched,
		r.recordsDropped,
		r.recordsMatched,
		r.recordsAppended,
		r.fetchAttempts,
		r.runsTotal,
		r.masterRecords,
		r.lastSuccess,
		r.stageDuration,
		collectors.NewGoCollector(),
	)
	return r
}

// Registry exposes the underlying registry (for tests and custom exporters).
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveFetch records the elements returned by the fetcher.
func (r *Recorder) ObserveFetch(records int) {
	r.recordsFetched.Add(float64(records))
}

// ObserveFetchAttempt counts one HTTP attempt.
func (r *Recorder) ObserveFetchAttempt() {
	r.fetchAttempts.Inc()
}

// ObserveParse records rows dropped for an unusable date.
func (r *Recorder) ObserveParse(dropped int) {
	r.recordsDropped.Add(float64(dropped))
}

// ObserveFilter records the keyword match count.
func (r *Recorder) ObserveFilter(matched int) {
	r.recordsMatched.Add(float64(matched))
}

// ObserveMerge records the merge outcome.
func (r *Recorder) ObserveMerge(appended, total int) {
	r.recordsAppended.Add(float64(appended))
	r.masterRecords.Set(float64(total))
}

// ObserveStage records how long a stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRun records the run outcome; successful runs also set the last success time.
func (r *Recorder) ObserveRun(err error, now time.Time) {
	if err != nil {
		r.runsTotal.WithLabelValues("failure").Inc()
		return
	}
	r.runsTotal.WithLabelValues("success").Inc()
	r.lastSuccess.Set(float64(now.Unix()))
}

// WriteTextfile writes the registry in the text exposition format to path,
// for pickup by the node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
