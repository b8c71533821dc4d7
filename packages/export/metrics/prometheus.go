package metrics

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// PrometheusExporter writes metrics in the Prometheus text exposition format,
// suitable for the node_exporter textfile collector.
type PrometheusExporter struct {
	writer   io.Writer
	filePath string
	prefix   string
}

// PrometheusOption is a functional option for PrometheusExporter
type PrometheusOption func(*PrometheusExporter)

// WithPrometheusWriter sets the output writer for Prometheus metrics
func WithPrometheusWriter(w io.Writer) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.writer = w
	}
}

// WithPrometheusFile writes metrics to path, replacing it atomically
func WithPrometheusFile(path string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.filePath = path
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter
func NewPrometheusExporter(opts ...PrometheusOption) *PrometheusExporter {
	p := &PrometheusExporter{prefix: "taplogger"}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Export writes the exposition text
func (p *PrometheusExporter) Export(m *RunMetrics) error {
	if p.filePath != "" {
		return p.exportFile(m)
	}

	w := p.writer
	if w == nil {
		w = os.Stdout
	}
	bw := bufio.NewWriter(w)
	p.writeMetrics(bw, m)
	return bw.Flush()
}

func (p *PrometheusExporter) exportFile(m *RunMetrics) error {
	tmp := p.filePath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}

	bw := bufio.NewWriter(f)
	p.writeMetrics(bw, m)
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close metrics file: %w", err)
	}
	return os.Rename(tmp, p.filePath)
}

func (p *PrometheusExporter) writeMetrics(w io.Writer, m *RunMetrics) {
	run := fmt.Sprintf("run_id=%q", m.RunID)

	fmt.Fprintf(w, "# HELP %s_tests_total Tests reported, by outcome\n", p.prefix)
	fmt.Fprintf(w, "# TYPE %s_tests_total gauge\n", p.prefix)
	fmt.Fprintf(w, "%s_tests_total{%s,outcome=\"passed\"} %d\n", p.prefix, run, m.Passed)
	fmt.Fprintf(w, "%s_tests_total{%s,outcome=\"failed\"} %d\n", p.prefix, run, m.Failed)
	fmt.Fprintf(w, "%s_tests_total{%s,outcome=\"skipped\"} %d\n", p.prefix, run, m.Skipped)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP %s_run_aborted Whether the run ended before all tests finished\n", p.prefix)
	fmt.Fprintf(w, "# TYPE %s_run_aborted gauge\n", p.prefix)
	fmt.Fprintf(w, "%s_run_aborted{%s} %d\n", p.prefix, run, boolToInt(m.Aborted))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP %s_run_duration_ms Wall time of the run in milliseconds\n", p.prefix)
	fmt.Fprintf(w, "# TYPE %s_run_duration_ms gauge\n", p.prefix)
	fmt.Fprintf(w, "%s_run_duration_ms{%s} %.2f\n", p.prefix, run, m.ElapsedMs)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP %s_test_duration_ms Test duration in milliseconds\n", p.prefix)
	fmt.Fprintf(w, "# TYPE %s_test_duration_ms gauge\n", p.prefix)
	for _, q := range []struct {
		label string
		value float64
	}{
		{"min", m.MinDurationMs},
		{"0.50", m.P50DurationMs},
		{"0.95", m.P95DurationMs},
		{"0.99", m.P99DurationMs},
		{"max", m.MaxDurationMs},
		{"mean", m.MeanDurationMs},
	} {
		fmt.Fprintf(w, "%s_test_duration_ms{%s,quantile=\"%s\"} %.2f\n", p.prefix, run, q.label, q.value)
	}

	if len(m.Slowest) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "# HELP %s_slowest_test_duration_ms Duration of the slowest tests in milliseconds\n", p.prefix)
		fmt.Fprintf(w, "# TYPE %s_slowest_test_duration_ms gauge\n", p.prefix)
		for _, td := range m.Slowest {
			fmt.Fprintf(w, "%s_slowest_test_duration_ms{%s,test=\"%s\"} %.2f\n", p.prefix, run, escapeLabel(td.Name), td.DurationMs)
		}
	}
}

// Close is a no-op; Export writes synchronously
func (p *PrometheusExporter) Close() error {
	return nil
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
