package ingest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/taplogger/packages/events"
	"github.com/tidwall/gjson"
)

// framingPattern matches the lines go test prints around each test
var framingPattern = regexp.MustCompile(`^(=== (RUN|PAUSE|CONT|NAME)|--- (PASS|FAIL|SKIP)):? `)

// locationPattern matches the file:line prefix of t.Log/t.Skip/t.Error output
var locationPattern = regexp.MustCompile(`^[\w./-]+\.go:\d+:(\s|$)`)

type pendingTest struct {
	pkg    string
	name   string
	output []string
}

type goTestDecoder struct {
	pub     publisher
	pending map[string]*pendingTest
	first   time.Time
	last    time.Time
}

func newGoTestDecoder(pub publisher) *goTestDecoder {
	return &goTestDecoder{
		pub:     pub,
		pending: make(map[string]*pendingTest),
	}
}

func (d *goTestDecoder) decode(line []byte) (bool, error) {
	if !gjson.ValidBytes(line) {
		// go test interleaves plain text (build output, panics) with JSON
		d.pub.message(events.LevelInformational, strings.TrimRight(string(line), "\r\n"))
		return false, nil
	}

	ev := gjson.ParseBytes(line)
	if !ev.IsObject() {
		return false, fmt.Errorf("expected a JSON object")
	}
	d.trackTime(ev.Get("Time").String())

	action := ev.Get("Action").String()
	pkg := ev.Get("Package").String()
	test := ev.Get("Test").String()

	if test == "" {
		d.packageEvent(action, pkg, ev)
		return false, nil
	}

	key := pkg + "\x00" + test
	switch action {
	case "run":
		d.get(key, pkg, test)
	case "output":
		p := d.get(key, pkg, test)
		p.output = append(p.output, ev.Get("Output").String())
	case "pass", "fail", "skip":
		p := d.get(key, pkg, test)
		delete(d.pending, key)
		elapsed := time.Duration(ev.Get("Elapsed").Float() * float64(time.Second))
		d.pub.result(p.result(action, elapsed))
	}
	return false, nil
}

func (d *goTestDecoder) packageEvent(action, pkg string, ev gjson.Result) {
	switch action {
	case "output":
		text := strings.TrimRight(ev.Get("Output").String(), "\r\n")
		if strings.TrimSpace(text) != "" {
			d.pub.message(events.LevelInformational, text)
		}
	case "fail":
		d.pub.message(events.LevelError, fmt.Sprintf("package %s failed", pkg))
	}
}

func (d *goTestDecoder) get(key, pkg, test string) *pendingTest {
	p, ok := d.pending[key]
	if !ok {
		p = &pendingTest{pkg: pkg, name: test}
		d.pending[key] = p
	}
	return p
}

func (d *goTestDecoder) trackTime(s string) {
	if s == "" {
		return
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return
	}
	if d.first.IsZero() || t.Before(d.first) {
		d.first = t
	}
	if t.After(d.last) {
		d.last = t
	}
}

func (d *goTestDecoder) finish() events.RunComplete {
	complete := events.RunComplete{}
	if !d.first.IsZero() {
		complete.Elapsed = d.last.Sub(d.first)
	}

	if len(d.pending) > 0 {
		complete.Aborted = true
		names := make([]string, 0, len(d.pending))
		for _, p := range d.pending {
			names = append(names, displayName(p.pkg, p.name))
		}
		sort.Strings(names)
		for _, n := range names {
			d.pub.message(events.LevelWarning, fmt.Sprintf("test %s did not finish", n))
		}
	}
	return complete
}

func (p *pendingTest) result(action string, elapsed time.Duration) events.TestResult {
	r := events.TestResult{
		TestCase: events.TestCase{
			DisplayName:        displayName(p.pkg, p.name),
			FullyQualifiedName: strings.TrimPrefix(p.pkg+"."+p.name, "."),
			Source:             p.pkg,
		},
		Duration: elapsed,
	}

	var lines []string
	for _, out := range p.output {
		for _, l := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
			l = strings.TrimSpace(l)
			if l == "" || framingPattern.MatchString(l+" ") {
				continue
			}
			lines = append(lines, l)
		}
	}
	for _, l := range lines {
		// multi-line t.Errorf output leaves the location alone on its line
		text := strings.TrimSpace(locationPattern.ReplaceAllString(l, ""))
		if text == "" {
			continue
		}
		r.Messages = append(r.Messages, events.Message{Category: "output", Text: text})
	}

	switch action {
	case "pass":
		r.Outcome = events.OutcomePassed
	case "skip":
		r.Outcome = events.OutcomeSkipped
	case "fail":
		r.Outcome = events.OutcomeFailed
		r.ErrorMessage = "test failed"
		if len(r.Messages) > 0 {
			r.ErrorMessage = r.Messages[0].Text
		}
		r.ErrorStackTrace = strings.Join(lines, "\n")
	}
	return r
}

func displayName(pkg, test string) string {
	if pkg == "" {
		return test
	}
	return pkg + "/" + test
}
