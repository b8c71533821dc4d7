package tap

import (
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/taplogger/packages/events"
)

// Record is one finished test's outcome. Empty strings stand for absent
// optional values.
type Record struct {
	Passed       bool
	Description  string
	SkipReason   string
	ErrorMessage string
	StackTrace   string
}

// NewRecord builds a record from an outcome. firstMessage is only used as the
// skip reason when the outcome is skipped.
func NewRecord(outcome events.Outcome, description, firstMessage, errorMessage, stackTrace string) Record {
	r := Record{
		Passed:       outcome != events.OutcomeFailed,
		Description:  description,
		ErrorMessage: errorMessage,
		StackTrace:   stackTrace,
	}
	if outcome == events.OutcomeSkipped {
		r.SkipReason = firstMessage
	}
	return r
}

// RecordFromResult derives a record from a host result. A skipped result with
// no messages gets an empty skip reason.
func RecordFromResult(result events.TestResult) Record {
	var first string
	if len(result.Messages) > 0 {
		first = result.Messages[0].Text
	}
	return NewRecord(
		result.Outcome,
		result.TestCase.DisplayName,
		first,
		result.ErrorMessage,
		result.ErrorStackTrace,
	)
}

// Skipped reports whether the record carries a skip directive
func (r Record) Skipped() bool {
	return !isBlank(r.SkipReason)
}

// HasError reports whether the record carries an error diagnostic block
func (r Record) HasError() bool {
	return !isBlank(r.ErrorMessage)
}

// Format renders the test point line for this record. Error details are not
// part of the line.
func (r Record) Format(testNumber int) string {
	var b strings.Builder
	if r.Passed {
		b.WriteString("ok ")
	} else {
		b.WriteString("not ok ")
	}
	b.WriteString(strconv.Itoa(testNumber))
	b.WriteByte(' ')
	b.WriteString(r.Description)
	if r.Skipped() {
		b.WriteString(" # skip ")
		b.WriteString(r.SkipReason)
	}
	return b.String()
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
