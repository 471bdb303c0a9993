// Package report renders a per-day posting count as a text bar chart.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscraper/internal/jobs"
)

const defaultWidth = 50

// DayCount is the number of postings published on one UTC day.
type DayCount struct {
	Day   time.Time
	Count int
}

// Chart draws bar charts to an io.Writer.
type Chart struct {
	out    io.Writer
	title  string
	width  int
	logger *zap.Logger
}

// NewChart returns a Chart writing to out. width is the length of the longest
// bar; values <= 0 fall back to the default.
func NewChart(out io.Writer, title string, width int, logger *zap.Logger) *Chart {
	if width <= 0 {
		width = defaultWidth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chart{out: out, title: title, width: width, logger: logger}
}

// CountByDay groups records by UTC calendar day in ascending order.
func CountByDay(records []jobs.Record) []DayCount {
	counts := make(map[time.Time]int)
	for _, r := range records {
		counts[r.Day()]++
	}
	out := make([]DayCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, DayCount{Day: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out
}

// Render draws one bar per day. An empty record set only logs a warning.
func (c *Chart) Render(records []jobs.Record) error {
	if len(records) == 0 {
		c.logger.Warn("No data to plot, skipping chart.")
		return nil
	}
	days := CountByDay(records)
	maxCount := 0
	for _, d := range days {
		if d.Count > maxCount {
			maxCount = d.Count
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", c.title)
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", len(c.title)))
	for _, d := range days {
		bar := d.Count * c.width / maxCount
		if bar == 0 {
			bar = 1
		}
		fmt.Fprintf(&b, "%s | %s %d\n", d.Day.Format("2006-01-02"), strings.Repeat("█", bar), d.Count)
	}
	if _, err := io.WriteString(c.out, b.String()); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
