package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/taplogger/packages/collector"
	"github.com/abdul-hamid-achik/taplogger/packages/core/config"
	"github.com/abdul-hamid-achik/taplogger/packages/events"
	"github.com/abdul-hamid-achik/taplogger/packages/export/metrics"
	"github.com/abdul-hamid-achik/taplogger/packages/history"
	"github.com/abdul-hamid-achik/taplogger/packages/ingest"
	"github.com/abdul-hamid-achik/taplogger/packages/notify"
	"github.com/abdul-hamid-achik/taplogger/packages/output"
	"github.com/abdul-hamid-achik/taplogger/packages/stats"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert [file|-]",
	Short: "Convert a test event stream into a TAP report",
	Long: `Convert a test event stream into a TAP version 13 report.

The stream is read from the given file, or from stdin when the argument is
"-" or omitted. The report is written to <results-dir>/TestResults.txt.

Input formats:
  gotest   output of "go test -json" (default)
  native   taplogger JSON lines (message, result and complete events)

Examples:
  go test -json ./... | taplogger convert
  taplogger convert results.jsonl --format native -r out
  taplogger convert test.json --watch
  taplogger convert test.json --history sqlite://.taplogger/history.db --notify slack`,
	Args: cobra.MaximumNArgs(1),
	RunE: convertCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond

	// slowestTests is how many of the slowest tests the summary keeps
	slowestTests = 5
)

var (
	formatFlag     string
	resultsDirFlag string
	configFlag     string
	noColorFlag    bool
	quietFlag      bool
	verboseFlag    bool
	watchFlag      bool
	historyFlag    string

	// Notification flags
	notifyFlag       string
	notifyOnFlag     string
	slackWebhookFlag string
	slackChannelFlag string
	teamsWebhookFlag string

	// Metrics flags
	metricsFlag       string
	metricsFileFlag   string
	datadogAPIKeyFlag string
	datadogSiteFlag   string
	datadogTagsFlag   string
)

func init() {
	convertCmd.Flags().StringVar(&formatFlag, "format", getEnvString("TAPLOGGER_FORMAT", "gotest"), "Input format: gotest, native (env: TAPLOGGER_FORMAT)")
	convertCmd.Flags().StringVarP(&resultsDirFlag, "results-dir", "r", getEnvString("TAPLOGGER_RESULTS_DIR", config.DefaultResultsDirectory), "Directory for TestResults.txt (env: TAPLOGGER_RESULTS_DIR)")
	convertCmd.Flags().StringVar(&configFlag, "config", getEnvString("TAPLOGGER_CONFIG", ""), "Path to config file (env: TAPLOGGER_CONFIG)")

	// Output flags
	convertCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("TAPLOGGER_NO_COLOR", false), "Disable colored output (env: TAPLOGGER_NO_COLOR)")
	convertCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", getEnvBool("TAPLOGGER_QUIET", false), "Suppress all output except errors (env: TAPLOGGER_QUIET)")
	convertCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show run messages, stack traces and slowest tests")
	convertCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch the input file and convert again on every change")

	convertCmd.Flags().StringVar(&historyFlag, "history", getEnvString("TAPLOGGER_HISTORY", ""), "Record runs in a SQLite database, e.g. sqlite://history.db (env: TAPLOGGER_HISTORY)")

	// Notification flags
	convertCmd.Flags().StringVar(&notifyFlag, "notify", getEnvString("TAPLOGGER_NOTIFY", ""), "Notification services: slack, teams (env: TAPLOGGER_NOTIFY)")
	convertCmd.Flags().StringVar(&notifyOnFlag, "notify-on", getEnvString("TAPLOGGER_NOTIFY_ON", "failure"), "When to notify: always, failure, success, recovery (env: TAPLOGGER_NOTIFY_ON)")
	convertCmd.Flags().StringVar(&slackWebhookFlag, "slack-webhook", getEnvString("SLACK_WEBHOOK", ""), "Slack webhook URL (env: SLACK_WEBHOOK)")
	convertCmd.Flags().StringVar(&slackChannelFlag, "slack-channel", getEnvString("SLACK_CHANNEL", ""), "Slack channel override (env: SLACK_CHANNEL)")
	convertCmd.Flags().StringVar(&teamsWebhookFlag, "teams-webhook", getEnvString("TEAMS_WEBHOOK", ""), "Microsoft Teams webhook URL (env: TEAMS_WEBHOOK)")

	// Metrics flags
	convertCmd.Flags().StringVar(&metricsFlag, "metrics", getEnvString("TAPLOGGER_METRICS", ""), "Metrics export formats: json, prometheus, datadog (env: TAPLOGGER_METRICS)")
	convertCmd.Flags().StringVar(&metricsFileFlag, "metrics-file", getEnvString("TAPLOGGER_METRICS_FILE", ""), "Output file for json or prometheus metrics (env: TAPLOGGER_METRICS_FILE)")
	convertCmd.Flags().StringVar(&datadogAPIKeyFlag, "datadog-api-key", getEnvString("DD_API_KEY", ""), "DataDog API key (env: DD_API_KEY)")
	convertCmd.Flags().StringVar(&datadogSiteFlag, "datadog-site", getEnvString("DD_SITE", "datadoghq.com"), "DataDog site (env: DD_SITE)")
	convertCmd.Flags().StringVar(&datadogTagsFlag, "datadog-tags", getEnvString("DD_TAGS", ""), "Comma-separated DataDog tags (env: DD_TAGS)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

// flagConfig holds the settings given on the command line or through
// TAPLOGGER_* variables. Unset flags leave the config file in charge.
func flagConfig(cmd *cobra.Command) *config.Config {
	set := func(name, env string) bool {
		return cmd.Flags().Changed(name) || (env != "" && os.Getenv(env) != "")
	}

	cfg := &config.Config{}
	if set("results-dir", "TAPLOGGER_RESULTS_DIR") {
		cfg.ResultsDirectory = resultsDirFlag
	}
	if set("format", "TAPLOGGER_FORMAT") {
		cfg.Format = formatFlag
	}
	if set("no-color", "TAPLOGGER_NO_COLOR") {
		cfg.NoColor = config.BoolPtr(noColorFlag)
	}
	if set("quiet", "TAPLOGGER_QUIET") {
		cfg.Quiet = config.BoolPtr(quietFlag)
	}
	if set("history", "TAPLOGGER_HISTORY") {
		cfg.HistoryDatabase = historyFlag
	}

	n := &config.NotifyConfig{}
	if set("notify", "TAPLOGGER_NOTIFY") {
		n.Services = splitList(notifyFlag)
	}
	if set("notify-on", "TAPLOGGER_NOTIFY_ON") {
		n.On = notifyOnFlag
	}
	if set("slack-webhook", "SLACK_WEBHOOK") {
		n.SlackWebhook = slackWebhookFlag
	}
	if set("slack-channel", "SLACK_CHANNEL") {
		n.SlackChannel = slackChannelFlag
	}
	if set("teams-webhook", "TEAMS_WEBHOOK") {
		n.TeamsWebhook = teamsWebhookFlag
	}
	if len(n.Services) > 0 || n.On != "" || n.SlackWebhook != "" || n.SlackChannel != "" || n.TeamsWebhook != "" {
		cfg.Notify = n
	}

	m := &config.MetricsConfig{}
	if set("metrics", "TAPLOGGER_METRICS") {
		m.Formats = splitList(metricsFlag)
	}
	if set("metrics-file", "TAPLOGGER_METRICS_FILE") {
		m.File = metricsFileFlag
	}
	if len(m.Formats) > 0 || m.File != "" {
		cfg.Metrics = m
	}

	return cfg
}

// resolveConfig loads the config file and applies command line overrides
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, &exitError{code: ExitConfigError, err: fmt.Errorf("cannot load config: %w", err)}
	}
	cfg := fileConfig.Merge(flagConfig(cmd))
	if err := cfg.Validate(); err != nil {
		return nil, &exitError{code: ExitUsageError, err: err}
	}
	return cfg, nil
}

func convertCommand(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	input := "-"
	if len(args) == 1 {
		input = args[0]
	}
	if watchFlag && input == "-" {
		return &exitError{code: ExitUsageError, err: errors.New("--watch needs an input file")}
	}

	conv, err := newConverter(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer conv.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !cfg.GetQuiet() {
		conv.formatter.FormatHeader(version, input)
	}

	return conv.run(ctx, input, watchFlag)
}

// run converts input once and, when watching, keeps converting it on every
// change. A failed first conversion does not stop watch mode.
func (c *converter) run(ctx context.Context, input string, watching bool) error {
	outcome, err := c.convertPath(ctx, input)
	if !watching {
		if err != nil {
			return err
		}
		if outcome.Summary.Failed > 0 {
			return &exitError{code: ExitTestFailure, err: fmt.Errorf("%d test(s) failed", outcome.Summary.Failed), silent: true}
		}
		return nil
	}

	if err != nil {
		c.formatter.FormatError(err)
	}
	return c.watch(ctx, input)
}

// converter turns one input stream into a report per run. Sinks that outlive
// a run (history, notifications, metrics) are shared across watch re-runs.
type converter struct {
	cfg       *config.Config
	format    ingest.Format
	formatter *output.ConsoleFormatter
	out       io.Writer
	stderr    io.Writer

	history  *history.Store
	notifier *notify.Manager
	metrics  *metrics.Collector
}

// conversion is the result of one run
type conversion struct {
	RunID      string
	ReportPath string
	Summary    collector.Summary
	Durations  stats.Summary
	Ingest     ingest.Stats
}

func newConverter(cfg *config.Config, stdout, stderr io.Writer) (*converter, error) {
	format, err := ingest.ParseFormat(cfg.Format)
	if err != nil {
		return nil, &exitError{code: ExitUsageError, err: err}
	}

	out := stdout
	if cfg.GetQuiet() {
		out = io.Discard
	}

	c := &converter{
		cfg:    cfg,
		format: format,
		formatter: output.NewConsoleFormatter(
			output.WithWriter(out),
			output.WithVerbose(verboseFlag),
			output.WithNoColor(cfg.GetNoColor()),
		),
		out:    out,
		stderr: stderr,
	}

	if err := c.setupNotify(); err != nil {
		return nil, &exitError{code: ExitUsageError, err: err}
	}
	if err := c.setupMetrics(); err != nil {
		return nil, &exitError{code: ExitUsageError, err: err}
	}
	if cfg.HistoryDatabase != "" {
		store, err := history.Open(cfg.HistoryDatabase)
		if err != nil {
			return nil, &exitError{code: ExitConfigError, err: err}
		}
		c.history = store
		if c.notifier != nil {
			if last, err := store.Last(context.Background()); err == nil {
				c.notifier.SetLastState(last.Succeeded())
			}
		}
	}

	return c, nil
}

func (c *converter) setupNotify() error {
	n := c.cfg.Notify
	if n == nil || len(n.Services) == 0 {
		return nil
	}

	on, err := notify.ParseNotifyOn(n.On)
	if err != nil {
		return err
	}

	manager := notify.NewManager(on, nil)
	for _, service := range n.Services {
		switch service {
		case "slack":
			if n.SlackWebhook == "" {
				return fmt.Errorf("--slack-webhook is required when using --notify slack")
			}
			var opts []notify.SlackOption
			if n.SlackChannel != "" {
				opts = append(opts, notify.WithSlackChannel(n.SlackChannel))
			}
			manager.AddNotifier(notify.NewSlackNotifier(n.SlackWebhook, opts...))
		case "teams":
			if n.TeamsWebhook == "" {
				return fmt.Errorf("--teams-webhook is required when using --notify teams")
			}
			manager.AddNotifier(notify.NewTeamsNotifier(n.TeamsWebhook))
		default:
			return fmt.Errorf("unknown notification service %q", service)
		}
	}

	c.notifier = manager
	return nil
}

func (c *converter) setupMetrics() error {
	m := c.cfg.Metrics
	if m == nil || len(m.Formats) == 0 {
		return nil
	}

	var exporters []metrics.Exporter
	for _, format := range m.Formats {
		switch format {
		case "json":
			opts := []metrics.JSONOption{metrics.WithJSONVersion(version)}
			if m.File != "" {
				opts = append(opts, metrics.WithJSONFile(m.File))
			} else {
				opts = append(opts, metrics.WithJSONWriter(c.stderr))
			}
			exporters = append(exporters, metrics.NewJSONExporter(opts...))
		case "prometheus":
			var opts []metrics.PrometheusOption
			if m.File != "" {
				opts = append(opts, metrics.WithPrometheusFile(m.File))
			} else {
				opts = append(opts, metrics.WithPrometheusWriter(c.stderr))
			}
			exporters = append(exporters, metrics.NewPrometheusExporter(opts...))
		case "datadog":
			opts := []metrics.DataDogOption{metrics.WithDataDogSite(datadogSiteFlag)}
			if datadogAPIKeyFlag != "" {
				opts = append(opts, metrics.WithDataDogAPIKey(datadogAPIKeyFlag))
			}
			if tags := splitList(datadogTagsFlag); len(tags) > 0 {
				opts = append(opts, metrics.WithDataDogTags(tags))
			}
			exporters = append(exporters, metrics.NewDataDogExporter(opts...))
		default:
			return fmt.Errorf("unknown metrics format %q", format)
		}
	}

	c.metrics = metrics.NewCollector(exporters...)
	return nil
}

func (c *converter) warnf(format string, args ...any) {
	fmt.Fprintf(c.stderr, "warning: "+format+"\n", args...)
}

// convertPath opens input ("-" for stdin) and converts it
func (c *converter) convertPath(ctx context.Context, input string) (*conversion, error) {
	if input == "-" {
		return c.convert(ctx, os.Stdin, "stdin")
	}

	f, err := os.Open(input)
	if err != nil {
		return nil, &exitError{code: ExitUsageError, err: fmt.Errorf("cannot open input: %w", err)}
	}
	defer f.Close()

	return c.convert(ctx, f, input)
}

// convert runs one full report cycle over r with a fresh collector
func (c *converter) convert(ctx context.Context, r io.Reader, source string) (*conversion, error) {
	bus := events.NewBus()

	col := collector.New(collector.WithWarnFunc(c.warnf))
	if err := col.Initialize(bus, c.cfg.ResultsDirectory); err != nil {
		return nil, &exitError{code: ExitWriteError, err: err}
	}

	recorder := stats.NewRecorder(slowestTests)
	recorder.Subscribe(bus)
	c.formatter.Subscribe(bus)

	ingested, err := ingest.Replay(ctx, r, c.format, bus)

	result := &conversion{
		RunID:      col.RunID(),
		ReportPath: col.ReportPath(),
		Summary:    col.Summary(),
		Durations:  recorder.Summary(),
		Ingest:     ingested,
	}

	if err != nil {
		var reportErr *collector.ReportError
		var decodeErr *ingest.DecodeError
		switch {
		case errors.As(err, &reportErr):
			return result, &exitError{code: ExitWriteError, err: err}
		case errors.As(err, &decodeErr):
			return result, &exitError{code: ExitDecodeError, err: err}
		case ctx.Err() != nil:
			return result, &exitError{code: ExitInterrupted, err: err}
		default:
			return result, &exitError{code: ExitDecodeError, err: err}
		}
	}

	c.formatter.FormatSummary(result.Summary, result.Durations, result.ReportPath)
	c.afterRun(ctx, source, result)

	return result, nil
}

// afterRun feeds the finished run to history, notifications and metrics.
// Failures there are warnings; the report is already on disk.
func (c *converter) afterRun(ctx context.Context, source string, r *conversion) {
	s := r.Summary

	if c.history != nil {
		err := c.history.Record(ctx, history.Run{
			ID:         r.RunID,
			ReportPath: r.ReportPath,
			Source:     source,
			Total:      s.Total,
			Passed:     s.Passed,
			Failed:     s.Failed,
			Skipped:    s.Skipped,
			Aborted:    s.Aborted,
			Duration:   s.Elapsed,
		})
		if err != nil {
			c.warnf("failed to record history: %v", err)
		}
	}

	if c.notifier != nil {
		err := c.notifier.Notify(ctx, &notify.RunSummary{
			RunID:        r.RunID,
			ReportPath:   r.ReportPath,
			TotalTests:   s.Total,
			PassedTests:  s.Passed,
			FailedTests:  s.Failed,
			SkippedTests: s.Skipped,
			Duration:     s.Elapsed,
			Aborted:      s.Aborted,
			FailedNames:  s.FailedTests,
		})
		if err != nil {
			c.warnf("failed to send notification: %v", err)
		}
	}

	if c.metrics != nil {
		if err := c.metrics.Export(metrics.FromSummary(r.RunID, r.Durations, s.Elapsed, s.Aborted)); err != nil {
			c.warnf("failed to export metrics: %v", err)
		}
	}
}

// Close releases the history store and metric exporters
func (c *converter) Close() error {
	var errs []error
	if c.metrics != nil {
		errs = append(errs, c.metrics.Close())
	}
	if c.history != nil {
		errs = append(errs, c.history.Close())
	}
	return errors.Join(errs...)
}
