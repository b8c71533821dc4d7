// Package stats aggregates test durations for run summaries.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/abdul-hamid-achik/taplogger/packages/events"
)

const (
	minTrackable = 1             // 1us
	maxTrackable = 3_600_000_000 // 1h in microseconds
	sigFigs      = 3
)

// Recorder collects per-test durations in an HDR histogram
type Recorder struct {
	mu        sync.Mutex
	histogram *hdrhistogram.Histogram
	slowest   []TestDuration
	keep      int
	total     int64
	passed    int64
	failed    int64
	skipped   int64
}

// TestDuration pairs a test name with its duration
type TestDuration struct {
	Name     string
	Duration time.Duration
}

// Summary is a snapshot of a Recorder
type Summary struct {
	Total   int64
	Passed  int64
	Failed  int64
	Skipped int64

	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
	P50  time.Duration
	P95  time.Duration
	P99  time.Duration

	Slowest []TestDuration
}

// NewRecorder creates a Recorder that remembers the keep slowest tests
func NewRecorder(keep int) *Recorder {
	if keep < 0 {
		keep = 0
	}
	return &Recorder{
		histogram: hdrhistogram.New(minTrackable, maxTrackable, sigFigs),
		keep:      keep,
	}
}

// Subscribe registers the recorder for test results on source
func (r *Recorder) Subscribe(source events.Source) {
	source.OnTestResult(r.Record)
}

// Record adds one result
func (r *Recorder) Record(result events.TestResult) {
	us := clamp(result.Duration.Microseconds())

	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	switch result.Outcome {
	case events.OutcomeFailed:
		r.failed++
	case events.OutcomeSkipped:
		r.skipped++
	default:
		r.passed++
	}

	// us is clamped to the trackable range, so RecordValue cannot fail
	_ = r.histogram.RecordValue(us)
	r.trackSlowest(TestDuration{Name: result.TestCase.DisplayName, Duration: result.Duration})
}

func (r *Recorder) trackSlowest(td TestDuration) {
	if r.keep == 0 {
		return
	}
	r.slowest = append(r.slowest, td)
	sort.SliceStable(r.slowest, func(i, j int) bool {
		return r.slowest[i].Duration > r.slowest[j].Duration
	})
	if len(r.slowest) > r.keep {
		r.slowest = r.slowest[:r.keep]
	}
}

// Summary returns the current aggregate. Durations are zero when nothing was
// recorded.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{
		Total:   r.total,
		Passed:  r.passed,
		Failed:  r.failed,
		Skipped: r.skipped,
		Slowest: append([]TestDuration(nil), r.slowest...),
	}
	if r.total == 0 {
		return s
	}

	s.Min = micros(r.histogram.Min())
	s.Max = micros(r.histogram.Max())
	s.Mean = time.Duration(r.histogram.Mean() * float64(time.Microsecond))
	s.P50 = micros(r.histogram.ValueAtQuantile(50))
	s.P95 = micros(r.histogram.ValueAtQuantile(95))
	s.P99 = micros(r.histogram.ValueAtQuantile(99))
	return s
}

func clamp(us int64) int64 {
	if us < minTrackable {
		return minTrackable
	}
	if us > maxTrackable {
		return maxTrackable
	}
	return us
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
