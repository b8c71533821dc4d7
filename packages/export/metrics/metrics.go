// Package metrics exports run metrics derived from a TAP report.
package metrics

import (
	"errors"
	"time"

	"github.com/abdul-hamid-achik/taplogger/packages/stats"
)

// RunMetrics is the aggregate exported for one run
type RunMetrics struct {
	RunID          string         `json:"run_id"`
	Total          int64          `json:"total"`
	Passed         int64          `json:"passed"`
	Failed         int64          `json:"failed"`
	Skipped        int64          `json:"skipped"`
	Aborted        bool           `json:"aborted"`
	ElapsedMs      float64        `json:"elapsed_ms"`
	MinDurationMs  float64        `json:"min_duration_ms"`
	MaxDurationMs  float64        `json:"max_duration_ms"`
	MeanDurationMs float64        `json:"mean_duration_ms"`
	P50DurationMs  float64        `json:"p50_duration_ms"`
	P95DurationMs  float64        `json:"p95_duration_ms"`
	P99DurationMs  float64        `json:"p99_duration_ms"`
	Slowest        []TestDuration `json:"slowest,omitempty"`
}

// TestDuration is one entry of the slowest-tests list
type TestDuration struct {
	Name       string  `json:"name"`
	DurationMs float64 `json:"duration_ms"`
}

// FromSummary builds RunMetrics from a stats summary
func FromSummary(runID string, s stats.Summary, elapsed time.Duration, aborted bool) *RunMetrics {
	m := &RunMetrics{
		RunID:          runID,
		Total:          s.Total,
		Passed:         s.Passed,
		Failed:         s.Failed,
		Skipped:        s.Skipped,
		Aborted:        aborted,
		ElapsedMs:      ms(elapsed),
		MinDurationMs:  ms(s.Min),
		MaxDurationMs:  ms(s.Max),
		MeanDurationMs: ms(s.Mean),
		P50DurationMs:  ms(s.P50),
		P95DurationMs:  ms(s.P95),
		P99DurationMs:  ms(s.P99),
	}
	for _, td := range s.Slowest {
		m.Slowest = append(m.Slowest, TestDuration{Name: td.Name, DurationMs: ms(td.Duration)})
	}
	return m
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Exporter is the interface for metrics exporters
type Exporter interface {
	// Export exports metrics to the target destination
	Export(metrics *RunMetrics) error

	// Close releases the exporter's resources
	Close() error
}

// Collector fans metrics out to several exporters
type Collector struct {
	exporters []Exporter
}

// NewCollector creates a new metrics collector
func NewCollector(exporters ...Exporter) *Collector {
	return &Collector{exporters: exporters}
}

// Export sends m to every exporter. All exporters run; errors are joined.
func (c *Collector) Export(m *RunMetrics) error {
	var errs []error
	for _, exp := range c.exporters {
		if err := exp.Export(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all exporters
func (c *Collector) Close() error {
	var errs []error
	for _, exp := range c.exporters {
		if err := exp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
