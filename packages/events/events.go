package events

import (
	"strings"
	"time"
)

// Outcome is the classification of a single test execution
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomePassed
	OutcomeFailed
	OutcomeSkipped
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomePassed:
		return "passed"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeNotFound:
		return "notfound"
	default:
		return "none"
	}
}

// ParseOutcome maps an outcome name to its Outcome. Unknown names map to
// OutcomeNone, which consumers treat like any other non-failed outcome.
func ParseOutcome(s string) Outcome {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "passed", "pass", "ok":
		return OutcomePassed
	case "failed", "fail", "error":
		return OutcomeFailed
	case "skipped", "skip":
		return OutcomeSkipped
	case "notfound", "not_found":
		return OutcomeNotFound
	default:
		return OutcomeNone
	}
}

// Run message levels
const (
	LevelInformational = "informational"
	LevelWarning       = "warning"
	LevelError         = "error"
)

// Message is a free-text diagnostic attached to a test result
type Message struct {
	Category string
	Text     string
}

// TestCase identifies a test
type TestCase struct {
	DisplayName        string
	FullyQualifiedName string
	Source             string
}

// TestResult is delivered once per finished test
type TestResult struct {
	TestCase        TestCase
	Outcome         Outcome
	Messages        []Message
	ErrorMessage    string
	ErrorStackTrace string
	Duration        time.Duration
}

// RunMessage is a run-level diagnostic from the host
type RunMessage struct {
	Level string
	Text  string
}

// RunComplete is delivered once when the host finishes the run
type RunComplete struct {
	Elapsed time.Duration
	Aborted bool
}
