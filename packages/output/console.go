package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/taplogger/packages/collector"
	"github.com/abdul-hamid-achik/taplogger/packages/events"
	"github.com/abdul-hamid-achik/taplogger/packages/stats"
	"github.com/fatih/color"
)

// maxMessageLen bounds failure messages printed under a result
const maxMessageLen = 200

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// Subscribe prints each result as it arrives on source
func (f *ConsoleFormatter) Subscribe(source events.Source) {
	source.OnTestResult(f.FormatResult)
	if f.verbose {
		source.OnRunMessage(f.FormatRunMessage)
	}
}

// FormatResult prints one result line
func (f *ConsoleFormatter) FormatResult(r events.TestResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	name := r.TestCase.DisplayName
	switch r.Outcome {
	case events.OutcomeSkipped:
		fmt.Fprintf(f.writer, "  %s %s", yellow("-"), name)
		if len(r.Messages) > 0 && r.Messages[0].Text != "" {
			fmt.Fprintf(f.writer, " (%s)", truncate(r.Messages[0].Text, maxMessageLen))
		}
		fmt.Fprintf(f.writer, "\n")
		return
	case events.OutcomeFailed:
		fmt.Fprintf(f.writer, "  %s %s %s\n", red("✗"), name, cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))
		if r.ErrorMessage != "" {
			fmt.Fprintf(f.writer, "    %s %s\n", red("→"), truncate(r.ErrorMessage, maxMessageLen))
		}
		if f.verbose && r.ErrorStackTrace != "" {
			for _, line := range strings.Split(strings.TrimRight(r.ErrorStackTrace, "\n"), "\n") {
				fmt.Fprintf(f.writer, "      %s\n", line)
			}
		}
		return
	}

	fmt.Fprintf(f.writer, "  %s %s %s\n", green("✓"), name, cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))
}

// FormatRunMessage prints a host diagnostic
func (f *ConsoleFormatter) FormatRunMessage(m events.RunMessage) {
	faint := color.New(color.Faint).SprintFunc()
	fmt.Fprintf(f.writer, "  %s\n", faint(fmt.Sprintf("[%s] %s", m.Level, m.Text)))
}

// FormatSummary prints totals, duration percentiles and the report location
func (f *ConsoleFormatter) FormatSummary(s collector.Summary, d stats.Summary, reportPath string) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Tests: ")
	if s.Passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", s.Passed)))
	}
	if s.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", s.Failed)))
	}
	if s.Skipped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", s.Skipped)))
	}
	fmt.Fprintf(f.writer, "%d total\n", s.Total)
	fmt.Fprintf(f.writer, "Time:  %dms\n", s.Elapsed.Milliseconds())

	if d.Total > 0 {
		fmt.Fprintf(f.writer, "Durations: p50 %s, p95 %s, p99 %s, max %s\n",
			round(d.P50), round(d.P95), round(d.P99), round(d.Max))
	}

	if f.verbose && len(d.Slowest) > 0 {
		fmt.Fprintf(f.writer, "Slowest:\n")
		for _, td := range d.Slowest {
			fmt.Fprintf(f.writer, "  %s %s\n", round(td.Duration), td.Name)
		}
	}

	if s.Aborted {
		fmt.Fprintf(f.writer, "%s\n", yellow("Run aborted before all tests finished"))
	}
	if reportPath != "" {
		fmt.Fprintf(f.writer, "%s %s\n", bold("Report:"), reportPath)
	}
	fmt.Fprintf(f.writer, "\n")
}

func round(d time.Duration) time.Duration {
	switch {
	case d >= time.Second:
		return d.Round(time.Millisecond)
	case d >= time.Millisecond:
		return d.Round(10 * time.Microsecond)
	default:
		return d
	}
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version, source string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("taplogger"), version)
	if source != "" {
		fmt.Fprintf(f.writer, "\n%s\n\n", bold("Converting: "+source))
	}
}
