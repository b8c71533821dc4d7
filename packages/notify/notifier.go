// Package notify sends run summaries to chat services.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// NotifyOn specifies when to send notifications
type NotifyOn string

const (
	// NotifyAlways sends notifications for every run
	NotifyAlways NotifyOn = "always"
	// NotifyFailure sends notifications only when tests fail
	NotifyFailure NotifyOn = "failure"
	// NotifySuccess sends notifications only when tests pass
	NotifySuccess NotifyOn = "success"
	// NotifyRecovery sends notifications on failure and when a run passes
	// after a failed one
	NotifyRecovery NotifyOn = "recovery"
)

// ParseNotifyOn validates a policy name
func ParseNotifyOn(s string) (NotifyOn, error) {
	switch n := NotifyOn(s); n {
	case NotifyAlways, NotifyFailure, NotifySuccess, NotifyRecovery:
		return n, nil
	case "":
		return NotifyFailure, nil
	default:
		return "", fmt.Errorf("unknown notify policy %q (use always, failure, success or recovery)", s)
	}
}

// RunSummary is the payload of a notification
type RunSummary struct {
	RunID        string        `json:"run_id"`
	ReportPath   string        `json:"report_path"`
	TotalTests   int           `json:"total_tests"`
	PassedTests  int           `json:"passed_tests"`
	FailedTests  int           `json:"failed_tests"`
	SkippedTests int           `json:"skipped_tests"`
	Duration     time.Duration `json:"duration"`
	Aborted      bool          `json:"aborted,omitempty"`
	FailedNames  []string      `json:"failed_names,omitempty"`
	IsRecovery   bool          `json:"is_recovery,omitempty"`
}

// Succeeded reports whether the run had no failures
func (s *RunSummary) Succeeded() bool {
	return s.FailedTests == 0 && !s.Aborted
}

// maxListedFailures bounds the failed test names included in a message
const maxListedFailures = 10

func (s *RunSummary) listedFailures() (names []string, more int) {
	if len(s.FailedNames) <= maxListedFailures {
		return s.FailedNames, 0
	}
	return s.FailedNames[:maxListedFailures], len(s.FailedNames) - maxListedFailures
}

// Notifier is the interface for notification services
type Notifier interface {
	// Notify sends a notification about a run
	Notify(ctx context.Context, summary *RunSummary) error

	// Name returns the name of the notifier
	Name() string
}

// Manager applies the NotifyOn policy and fans out to notifiers. Sends are
// throttled by a shared limiter since chat webhooks rate-limit per hook.
type Manager struct {
	mu        sync.Mutex
	notifiers []Notifier
	notifyOn  NotifyOn
	lastState bool // true if last run was successful
	limiter   *rate.Limiter
}

// ManagerOption is a functional option for Manager
type ManagerOption func(*Manager)

// WithRateLimit sets how many notifications may be sent per second
func WithRateLimit(perSecond float64, burst int) ManagerOption {
	return func(m *Manager) {
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewManager creates a new notification manager
func NewManager(notifyOn NotifyOn, notifiers []Notifier, opts ...ManagerOption) *Manager {
	m := &Manager{
		notifiers: notifiers,
		notifyOn:  notifyOn,
		lastState: true, // Assume success initially
		limiter:   rate.NewLimiter(rate.Limit(1), 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddNotifier adds a notifier to the manager
func (m *Manager) AddNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// SetLastState seeds the outcome of the previous run, e.g. from history
func (m *Manager) SetLastState(succeeded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastState = succeeded
}

// ShouldNotify applies the policy to summary and records it as the last
// state. It marks recoveries on summary.
func (m *Manager) ShouldNotify(summary *RunSummary) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := summary.Succeeded()
	should := false

	switch m.notifyOn {
	case NotifyAlways:
		should = true
	case NotifyFailure:
		should = !current
	case NotifySuccess:
		should = current
	case NotifyRecovery:
		if !m.lastState && current {
			should = true
			summary.IsRecovery = true
		}
		if !current {
			should = true
		}
	}

	m.lastState = current
	return should
}

// Notify sends notifications based on the configured policy. Every notifier
// is tried; their errors are joined.
func (m *Manager) Notify(ctx context.Context, summary *RunSummary) error {
	if !m.ShouldNotify(summary) {
		return nil
	}

	m.mu.Lock()
	notifiers := append([]Notifier(nil), m.notifiers...)
	m.mu.Unlock()

	var errs []error
	for _, n := range notifiers {
		if err := m.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			break
		}
		if err := n.Notify(ctx, summary); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}
