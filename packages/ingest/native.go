package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/taplogger/packages/events"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// NativeSchema describes one line of the native event format
const NativeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"enum": ["message", "result", "complete"]},
    "level": {"enum": ["informational", "warning", "error"]},
    "text": {"type": "string"},
    "name": {"type": "string"},
    "fullyQualifiedName": {"type": "string"},
    "source": {"type": "string"},
    "outcome": {"type": "string"},
    "messages": {"type": "array", "items": {"type": "string"}},
    "errorMessage": {"type": "string"},
    "stackTrace": {"type": "string"},
    "durationMs": {"type": "number", "minimum": 0},
    "elapsedMs": {"type": "number", "minimum": 0},
    "aborted": {"type": "boolean"}
  },
  "oneOf": [
    {"properties": {"type": {"enum": ["message"]}}, "required": ["text"]},
    {"properties": {"type": {"enum": ["result"]}}, "required": ["name", "outcome"]},
    {"properties": {"type": {"enum": ["complete"]}}}
  ]
}`

type nativeDecoder struct {
	pub      publisher
	schema   *gojsonschema.Schema
	complete *events.RunComplete
}

func newNativeDecoder(pub publisher) (*nativeDecoder, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(NativeSchema))
	if err != nil {
		return nil, fmt.Errorf("invalid native event schema: %w", err)
	}
	return &nativeDecoder{pub: pub, schema: schema}, nil
}

func (d *nativeDecoder) decode(line []byte) (bool, error) {
	if !gjson.ValidBytes(line) {
		return false, fmt.Errorf("invalid JSON")
	}

	result, err := d.schema.Validate(gojsonschema.NewBytesLoader(line))
	if err != nil {
		return false, err
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return false, fmt.Errorf("event does not match schema: %s", strings.Join(msgs, "; "))
	}

	ev := gjson.ParseBytes(line)
	switch ev.Get("type").String() {
	case "message":
		level := ev.Get("level").String()
		if level == "" {
			level = events.LevelInformational
		}
		d.pub.message(level, ev.Get("text").String())
	case "result":
		d.pub.result(nativeResult(ev))
	case "complete":
		d.complete = &events.RunComplete{
			Elapsed: millis(ev.Get("elapsedMs").Float()),
			Aborted: ev.Get("aborted").Bool(),
		}
		return true, nil
	}
	return false, nil
}

func (d *nativeDecoder) finish() events.RunComplete {
	if d.complete != nil {
		return *d.complete
	}
	return events.RunComplete{}
}

func nativeResult(ev gjson.Result) events.TestResult {
	r := events.TestResult{
		TestCase: events.TestCase{
			DisplayName:        ev.Get("name").String(),
			FullyQualifiedName: ev.Get("fullyQualifiedName").String(),
			Source:             ev.Get("source").String(),
		},
		Outcome:         events.ParseOutcome(ev.Get("outcome").String()),
		ErrorMessage:    ev.Get("errorMessage").String(),
		ErrorStackTrace: ev.Get("stackTrace").String(),
		Duration:        millis(ev.Get("durationMs").Float()),
	}
	for _, m := range ev.Get("messages").Array() {
		r.Messages = append(r.Messages, events.Message{Text: m.String()})
	}
	return r
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
