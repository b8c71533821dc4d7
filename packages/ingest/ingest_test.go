package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/taplogger/packages/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	messages []events.RunMessage
	results  []events.TestResult
	complete []events.RunComplete
}

func capture(bus *events.Bus) *captured {
	c := &captured{}
	bus.OnRunMessage(func(m events.RunMessage) { c.messages = append(c.messages, m) })
	bus.OnTestResult(func(r events.TestResult) { c.results = append(c.results, r) })
	bus.OnRunComplete(func(ev events.RunComplete) error {
		c.complete = append(c.complete, ev)
		return nil
	})
	return c
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatGoTest, false},
		{"gotest", FormatGoTest, false},
		{"test2json", FormatGoTest, false},
		{"native", FormatNative, false},
		{"JSONL", FormatNative, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

const goTestStream = `{"Time":"2024-01-01T10:00:00Z","Action":"start","Package":"example.com/calc"}
{"Time":"2024-01-01T10:00:00.1Z","Action":"run","Package":"example.com/calc","Test":"TestAdd"}
{"Time":"2024-01-01T10:00:00.1Z","Action":"output","Package":"example.com/calc","Test":"TestAdd","Output":"=== RUN   TestAdd\n"}
{"Time":"2024-01-01T10:00:00.2Z","Action":"output","Package":"example.com/calc","Test":"TestAdd","Output":"--- PASS: TestAdd (0.00s)\n"}
{"Time":"2024-01-01T10:00:00.2Z","Action":"pass","Package":"example.com/calc","Test":"TestAdd","Elapsed":0.01}
{"Time":"2024-01-01T10:00:00.3Z","Action":"run","Package":"example.com/calc","Test":"TestDiv"}
{"Time":"2024-01-01T10:00:00.3Z","Action":"output","Package":"example.com/calc","Test":"TestDiv","Output":"=== RUN   TestDiv\n"}
{"Time":"2024-01-01T10:00:00.3Z","Action":"output","Package":"example.com/calc","Test":"TestDiv","Output":"    calc_test.go:21: division by zero   \n"}
{"Time":"2024-01-01T10:00:00.3Z","Action":"output","Package":"example.com/calc","Test":"TestDiv","Output":"    calc_test.go:22: got 0 want 1\n"}
{"Time":"2024-01-01T10:00:00.4Z","Action":"output","Package":"example.com/calc","Test":"TestDiv","Output":"--- FAIL: TestDiv (0.02s)\n"}
{"Time":"2024-01-01T10:00:00.4Z","Action":"fail","Package":"example.com/calc","Test":"TestDiv","Elapsed":0.02}
{"Time":"2024-01-01T10:00:00.5Z","Action":"run","Package":"example.com/calc","Test":"TestSlow"}
{"Time":"2024-01-01T10:00:00.5Z","Action":"output","Package":"example.com/calc","Test":"TestSlow","Output":"=== RUN   TestSlow\n"}
{"Time":"2024-01-01T10:00:00.5Z","Action":"output","Package":"example.com/calc","Test":"TestSlow","Output":"    calc_test.go:30: slow\n"}
{"Time":"2024-01-01T10:00:00.5Z","Action":"output","Package":"example.com/calc","Test":"TestSlow","Output":"--- SKIP: TestSlow (0.00s)\n"}
{"Time":"2024-01-01T10:00:00.5Z","Action":"skip","Package":"example.com/calc","Test":"TestSlow","Elapsed":0}
{"Time":"2024-01-01T10:00:00.6Z","Action":"output","Package":"example.com/calc","Output":"FAIL\n"}
{"Time":"2024-01-01T10:00:01Z","Action":"fail","Package":"example.com/calc","Elapsed":1}
`

func TestReplay_GoTest(t *testing.T) {
	bus := events.NewBus()
	c := capture(bus)

	stats, err := Replay(context.Background(), strings.NewReader(goTestStream), FormatGoTest, bus)
	require.NoError(t, err)

	require.Len(t, c.results, 3)

	add := c.results[0]
	assert.Equal(t, "example.com/calc/TestAdd", add.TestCase.DisplayName)
	assert.Equal(t, "example.com/calc.TestAdd", add.TestCase.FullyQualifiedName)
	assert.Equal(t, events.OutcomePassed, add.Outcome)
	assert.Equal(t, 10*time.Millisecond, add.Duration)
	assert.Empty(t, add.Messages)

	div := c.results[1]
	assert.Equal(t, events.OutcomeFailed, div.Outcome)
	assert.Equal(t, "division by zero", div.ErrorMessage)
	assert.Equal(t, "calc_test.go:21: division by zero\ncalc_test.go:22: got 0 want 1", div.ErrorStackTrace)

	slow := c.results[2]
	assert.Equal(t, events.OutcomeSkipped, slow.Outcome)
	require.Len(t, slow.Messages, 1)
	assert.Equal(t, "slow", slow.Messages[0].Text)

	require.Len(t, c.complete, 1)
	assert.False(t, c.complete[0].Aborted)
	assert.Equal(t, time.Second, c.complete[0].Elapsed)

	assert.Equal(t, 3, stats.Results)
	assert.Equal(t, 18, stats.Lines)

	require.Len(t, c.messages, 2)
	assert.Equal(t, events.RunMessage{Level: events.LevelInformational, Text: "FAIL"}, c.messages[0])
	assert.Equal(t, events.LevelError, c.messages[1].Level)
}

func TestReplay_GoTestFailureWithoutOutput(t *testing.T) {
	stream := `{"Action":"run","Package":"p","Test":"TestX"}
{"Action":"fail","Package":"p","Test":"TestX","Elapsed":0}
`
	bus := events.NewBus()
	c := capture(bus)
	_, err := Replay(context.Background(), strings.NewReader(stream), FormatGoTest, bus)
	require.NoError(t, err)

	require.Len(t, c.results, 1)
	assert.Equal(t, "test failed", c.results[0].ErrorMessage)
	assert.Empty(t, c.results[0].ErrorStackTrace)
}

func TestReplay_GoTestMultiLineError(t *testing.T) {
	stream := `{"Action":"run","Package":"gen","Test":"TestFail"}
{"Action":"output","Package":"gen","Test":"TestFail","Output":"=== RUN   TestFail\n"}
{"Action":"output","Package":"gen","Test":"TestFail","Output":"    x_test.go:4: \n"}
{"Action":"output","Package":"gen","Test":"TestFail","Output":"        \tError Trace:\tx\n"}
{"Action":"output","Package":"gen","Test":"TestFail","Output":"        \tError:      \tboom\n"}
{"Action":"output","Package":"gen","Test":"TestFail","Output":"--- FAIL: TestFail (0.00s)\n"}
{"Action":"fail","Package":"gen","Test":"TestFail","Elapsed":0}
`
	bus := events.NewBus()
	c := capture(bus)
	_, err := Replay(context.Background(), strings.NewReader(stream), FormatGoTest, bus)
	require.NoError(t, err)

	require.Len(t, c.results, 1)
	fail := c.results[0]
	assert.Equal(t, "Error Trace:\tx", fail.ErrorMessage)
	require.Len(t, fail.Messages, 2)
	assert.Equal(t, "Error Trace:\tx", fail.Messages[0].Text)
	assert.Equal(t, "x_test.go:4:\nError Trace:\tx\nError:      \tboom", fail.ErrorStackTrace)
}

func TestReplay_GoTestPlainTextLines(t *testing.T) {
	stream := "# example.com/broken\nbroken.go:3:1: syntax error\n"
	bus := events.NewBus()
	c := capture(bus)

	_, err := Replay(context.Background(), strings.NewReader(stream), FormatGoTest, bus)
	require.NoError(t, err)
	assert.Empty(t, c.results)
	require.Len(t, c.messages, 2)
	assert.Equal(t, "# example.com/broken", c.messages[0].Text)
}

func TestReplay_GoTestUnfinished(t *testing.T) {
	stream := `{"Action":"run","Package":"p","Test":"TestHang"}
{"Action":"output","Package":"p","Test":"TestHang","Output":"=== RUN   TestHang\n"}
`
	bus := events.NewBus()
	c := capture(bus)

	stats, err := Replay(context.Background(), strings.NewReader(stream), FormatGoTest, bus)
	require.NoError(t, err)
	assert.True(t, stats.Aborted)
	require.Len(t, c.complete, 1)
	assert.True(t, c.complete[0].Aborted)
	require.Len(t, c.messages, 1)
	assert.Equal(t, events.LevelWarning, c.messages[0].Level)
	assert.Contains(t, c.messages[0].Text, "p/TestHang")
}

func TestReplay_Native(t *testing.T) {
	stream := `{"type":"message","level":"warning","text":"low disk"}
{"type":"result","name":"A","outcome":"passed","durationMs":3}
{"type":"result","name":"B","outcome":"failed","errorMessage":"boom","stackTrace":"at X\nat Y"}
{"type":"result","name":"C","outcome":"skipped","messages":["slow","other"]}
{"type":"complete","elapsedMs":1500}
{"type":"result","name":"ignored","outcome":"passed"}
`
	bus := events.NewBus()
	c := capture(bus)

	stats, err := Replay(context.Background(), strings.NewReader(stream), FormatNative, bus)
	require.NoError(t, err)

	require.Len(t, c.results, 3)
	assert.Equal(t, 3*time.Millisecond, c.results[0].Duration)
	assert.Equal(t, events.OutcomeFailed, c.results[1].Outcome)
	assert.Equal(t, "at X\nat Y", c.results[1].ErrorStackTrace)
	assert.Equal(t, []events.Message{{Text: "slow"}, {Text: "other"}}, c.results[2].Messages)

	require.Len(t, c.messages, 1)
	assert.Equal(t, events.LevelWarning, c.messages[0].Level)

	require.Len(t, c.complete, 1)
	assert.Equal(t, 1500*time.Millisecond, c.complete[0].Elapsed)
	assert.Equal(t, 5, stats.Lines)
}

func TestReplay_NativeInvalid(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not json", `type=result`},
		{"unknown type", `{"type":"progress"}`},
		{"result without outcome", `{"type":"result","name":"A"}`},
		{"message without text", `{"type":"message"}`},
		{"negative duration", `{"type":"result","name":"A","outcome":"passed","durationMs":-1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := `{"type":"result","name":"ok","outcome":"passed"}` + "\n" + tt.line + "\n"
			bus := events.NewBus()
			c := capture(bus)

			_, err := Replay(context.Background(), strings.NewReader(stream), FormatNative, bus)
			require.Error(t, err)

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr))
			assert.Equal(t, 2, decodeErr.Line)

			// the run still completes so a partial report is written
			require.Len(t, c.complete, 1)
			assert.True(t, c.complete[0].Aborted)
			assert.Len(t, c.results, 1)
		})
	}
}

func TestReplay_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	bus := events.NewBus()
	c := capture(bus)
	_, err := Replay(ctx, strings.NewReader(`{"type":"result","name":"A","outcome":"passed"}`+"\n"), FormatNative, bus)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, c.complete, 1)
	assert.True(t, c.complete[0].Aborted)
	assert.Empty(t, c.results)
}

func TestReplay_RunCompleteErrorReturned(t *testing.T) {
	bus := events.NewBus()
	writeErr := errors.New("disk full")
	bus.OnRunComplete(func(events.RunComplete) error { return writeErr })

	_, err := Replay(context.Background(), strings.NewReader(""), FormatNative, bus)
	assert.ErrorIs(t, err, writeErr)
}

func TestReplay_UnknownFormat(t *testing.T) {
	_, err := Replay(context.Background(), strings.NewReader(""), Format("xml"), events.NewBus())
	assert.Error(t, err)
}
