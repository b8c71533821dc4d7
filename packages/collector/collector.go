package collector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/taplogger/packages/events"
	"github.com/abdul-hamid-achik/taplogger/packages/tap"
	"github.com/google/uuid"
)

var (
	// ErrNilSource is returned by Initialize when no event source is given
	ErrNilSource = errors.New("collector: event source is nil")

	// ErrAlreadyInitialized is returned when Initialize is called twice
	ErrAlreadyInitialized = errors.New("collector: already initialized")

	// ErrNotInitialized is returned when a run completes before Initialize
	ErrNotInitialized = errors.New("collector: not initialized")

	// ErrAlreadyCompleted is returned when a run completes twice
	ErrAlreadyCompleted = errors.New("collector: run already completed")
)

// State is the collector's position in the run lifecycle
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateCollecting
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateCollecting:
		return "collecting"
	case StateCompleted:
		return "completed"
	default:
		return "uninitialized"
	}
}

// WarnFunc receives non-fatal diagnostics
type WarnFunc func(format string, args ...any)

// Summary counts the results of a run
type Summary struct {
	Total       int
	Passed      int
	Failed      int
	Skipped     int
	FailedTests []string
	Elapsed     time.Duration
	Aborted     bool
}

// Collector buffers the results of one run and writes the TAP report when
// the run completes. Create one per run.
type Collector struct {
	mu         sync.Mutex
	state      State
	runID      string
	fileName   string
	reportPath string
	records    []tap.Record
	summary    Summary
	warn       WarnFunc
}

// Option is a functional option for Collector
type Option func(*Collector)

// WithWarnFunc sets the function that receives warnings
func WithWarnFunc(fn WarnFunc) Option {
	return func(c *Collector) {
		c.warn = fn
	}
}

// WithFileName overrides the report file name inside the results directory
func WithFileName(name string) Option {
	return func(c *Collector) {
		if name != "" {
			c.fileName = name
		}
	}
}

// New creates an uninitialized collector
func New(opts ...Option) *Collector {
	c := &Collector{
		fileName: tap.DefaultFileName,
		warn:     func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize subscribes the collector to source and prepares the results
// directory, creating it if needed.
func (c *Collector) Initialize(source events.Source, resultsDir string) error {
	if source == nil {
		return ErrNilSource
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUninitialized {
		return ErrAlreadyInitialized
	}

	if err := os.MkdirAll(resultsDir, 0755); err != nil {
		return fmt.Errorf("cannot create results directory: %w", err)
	}

	source.OnRunMessage(c.OnRunMessage)
	source.OnTestResult(c.OnTestResult)
	source.OnRunComplete(c.OnRunComplete)

	c.records = make([]tap.Record, 0)
	c.summary = Summary{}
	c.runID = uuid.NewString()
	c.reportPath = filepath.Join(resultsDir, c.fileName)
	c.state = StateInitialized

	return nil
}

// OnRunMessage does not change collector state. Warnings and errors from the
// host are passed on to the warn function.
func (c *Collector) OnRunMessage(msg events.RunMessage) {
	switch msg.Level {
	case events.LevelWarning, events.LevelError:
		c.warn("%s: %s", msg.Level, msg.Text)
	}
}

// OnTestResult appends a record for result
func (c *Collector) OnTestResult(result events.TestResult) {
	record := tap.RecordFromResult(result)

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateUninitialized:
		c.warn("result %q received before initialization, ignoring", result.TestCase.DisplayName)
		return
	case StateCompleted:
		c.warn("result %q received after run completed, ignoring", result.TestCase.DisplayName)
		return
	}

	c.state = StateCollecting
	c.records = append(c.records, record)
	c.count(result)
}

func (c *Collector) count(result events.TestResult) {
	c.summary.Total++
	switch result.Outcome {
	case events.OutcomeFailed:
		c.summary.Failed++
		c.summary.FailedTests = append(c.summary.FailedTests, result.TestCase.DisplayName)
	case events.OutcomeSkipped:
		c.summary.Skipped++
	default:
		c.summary.Passed++
	}
}

// OnRunComplete writes the report, truncating any previous file at the
// report path. The file is closed on every path.
func (c *Collector) OnRunComplete(ev events.RunComplete) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateUninitialized:
		return ErrNotInitialized
	case StateCompleted:
		return ErrAlreadyCompleted
	}

	c.state = StateCompleted
	c.summary.Elapsed = ev.Elapsed
	c.summary.Aborted = ev.Aborted

	return writeFile(c.reportPath, c.records)
}

// ReportError is returned by OnRunComplete when the report file cannot be
// written
type ReportError struct {
	Path string
	Err  error
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("cannot write report %s: %v", e.Path, e.Err)
}

func (e *ReportError) Unwrap() error {
	return e.Err
}

func writeFile(path string, records []tap.Record) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return &ReportError{Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &ReportError{Path: path, Err: cerr}
		}
	}()

	if err := tap.WriteReport(f, records); err != nil {
		return &ReportError{Path: path, Err: err}
	}
	return nil
}

// Records returns a copy of the buffered records in arrival order
func (c *Collector) Records() []tap.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]tap.Record(nil), c.records...)
}

// Summary returns the counts collected so far
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.summary
	s.FailedTests = append([]string(nil), c.summary.FailedTests...)
	return s
}

// ReportPath is the file written on run completion
func (c *Collector) ReportPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reportPath
}

// RunID identifies this run. It is assigned by Initialize.
func (c *Collector) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
