package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/taplogger/packages/events"
)

// Format names an input event stream format
type Format string

const (
	// FormatGoTest is the output of `go test -json` (test2json)
	FormatGoTest Format = "gotest"
	// FormatNative is one taplogger event object per line
	FormatNative Format = "native"
)

// maxLineSize bounds a single input line
const maxLineSize = 4 * 1024 * 1024

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatGoTest, "go", "test2json", "":
		return FormatGoTest, nil
	case FormatNative, "json", "jsonl":
		return FormatNative, nil
	default:
		return "", fmt.Errorf("unknown input format %q (use gotest or native)", s)
	}
}

// DecodeError reports a line that could not be decoded
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Stats describes a replayed stream
type Stats struct {
	Lines    int
	Results  int
	Messages int
	Aborted  bool
	Elapsed  time.Duration
}

// decoder turns lines into bus notifications
type decoder interface {
	// decode handles one line. done ends the stream early.
	decode(line []byte) (done bool, err error)
	// finish flushes pending state and reports how the run ended
	finish() events.RunComplete
}

// publisher wraps the bus and counts what was published
type publisher struct {
	bus   *events.Bus
	stats *Stats
}

func (p publisher) message(level, text string) {
	p.stats.Messages++
	p.bus.PublishRunMessage(events.RunMessage{Level: level, Text: text})
}

func (p publisher) result(r events.TestResult) {
	p.stats.Results++
	p.bus.PublishTestResult(r)
}

// Replay reads r line by line and publishes the events it describes on bus,
// then publishes run completion exactly once. The run is marked aborted when
// ctx is cancelled, a line fails to decode, or tests were still running at
// end of input. The returned error joins any decode, read or context error
// with the run-complete handlers' error.
func Replay(ctx context.Context, r io.Reader, format Format, bus *events.Bus) (Stats, error) {
	var stats Stats
	pub := publisher{bus: bus, stats: &stats}

	var dec decoder
	switch format {
	case FormatGoTest:
		dec = newGoTestDecoder(pub)
	case FormatNative:
		d, err := newNativeDecoder(pub)
		if err != nil {
			return stats, err
		}
		dec = d
	default:
		return stats, fmt.Errorf("unknown input format %q", format)
	}

	start := time.Now()
	readErr := scan(ctx, r, dec, &stats)

	complete := dec.finish()
	if readErr != nil {
		complete.Aborted = true
	}
	if complete.Elapsed == 0 {
		complete.Elapsed = time.Since(start)
	}
	stats.Aborted = complete.Aborted
	stats.Elapsed = complete.Elapsed

	return stats, errors.Join(readErr, bus.PublishRunComplete(complete))
}

func scan(ctx context.Context, r io.Reader, dec decoder, stats *Stats) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats.Lines++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		done, err := dec.decode(line)
		if err != nil {
			return &DecodeError{Line: stats.Lines, Err: err}
		}
		if done {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return ctx.Err()
}
