package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounters(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObserveFetchAttempt()
	r.ObserveFetchAttempt()
	r.ObserveFetch(10)
	r.ObserveParse(2)
	r.ObserveFilter(3)
	r.ObserveMerge(1, 42)
	r.ObserveStage(StageFetch, 150*time.Millisecond)

	checks := map[string]float64{
		"attempts": testutil.ToFloat64(r.fetchAttempts),
		"fetched":  testutil.ToFloat64(r.recordsFetched),
		"dropped":  testutil.ToFloat64(r.recordsDropped),
		"matched":  testutil.ToFloat64(r.recordsMatched),
		"appended": testutil.ToFloat64(r.recordsAppended),
		"master":   testutil.ToFloat64(r.masterRecords),
	}
	want := map[string]float64{"attempts": 2, "fetched": 10, "dropped": 2, "matched": 3, "appended": 1, "master": 42}
	for name, got := range checks {
		if got != want[name] {
			t.Errorf("%s = %v, want %v", name, got, want[name])
		}
	}
	if n := testutil.CollectAndCount(r.stageDuration); n != 1 {
		t.Errorf("expected one stage series, got %d", n)
	}
}

func TestObserveRun(t *testing.T) {
	t.Parallel()

	r := New()
	now := time.Unix(1700000000, 0)
	r.ObserveRun(nil, now)
	r.ObserveRun(errors.New("fetch failed"), now.Add(time.Hour))

	if got := testutil.ToFloat64(r.runsTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("success runs = %v", got)
	}
	if got := testutil.ToFloat64(r.runsTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("failure runs = %v", got)
	}
	if got := testutil.ToFloat64(r.lastSuccess); got != 1700000000 {
		t.Errorf("last success = %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	r := New()
	r.ObserveMerge(3, 7)
	path := filepath.Join(t.TempDir(), "jobscraper.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	// #nosec G304 -- test temp dir
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "jobscraper_master_records 7") {
		t.Fatalf("textfile missing gauge:\n%s", data)
	}

	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
