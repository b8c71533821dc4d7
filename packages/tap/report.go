package tap

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
)

const (
	// Version is the first line of every report
	Version = "TAP version 13"

	// DefaultFileName is the report file written inside the results directory
	DefaultFileName = "TestResults.txt"
)

// WriteReport renders records as a TAP version 13 document. Test numbers are
// assigned 1..N in slice order. Output depends only on records.
func WriteReport(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, Version)
	fmt.Fprintf(bw, "1..%d\n", len(records))

	for i, r := range records {
		fmt.Fprintln(bw, r.Format(i+1))
		if r.HasError() {
			writeDiagnostic(bw, r)
		}
	}

	return bw.Flush()
}

// writeDiagnostic writes the YAML block that follows a result with an error.
// An empty stack trace yields an empty data section.
func writeDiagnostic(w io.Writer, r Record) {
	fmt.Fprintln(w, "  ---")
	fmt.Fprintf(w, "  message: '%s'\n", r.ErrorMessage)
	fmt.Fprintln(w, "  severity: fail")
	fmt.Fprintln(w, "  data:")
	for _, line := range stackLines(r.StackTrace) {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w, "  ...")
}

func stackLines(trace string) []string {
	if trace == "" {
		return nil
	}
	lines := strings.Split(trace, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRightFunc(l, unicode.IsSpace)
	}
	return lines
}
