package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// JSONExporter exports metrics to JSON format
type JSONExporter struct {
	writer   io.Writer
	filePath string
	pretty   bool
	version  string
}

// JSONOption is a functional option for JSONExporter
type JSONOption func(*JSONExporter)

// WithJSONWriter sets the output writer for JSON metrics
func WithJSONWriter(w io.Writer) JSONOption {
	return func(j *JSONExporter) {
		j.writer = w
	}
}

// WithJSONFile sets the output file for JSON metrics
func WithJSONFile(path string) JSONOption {
	return func(j *JSONExporter) {
		j.filePath = path
	}
}

// WithJSONPretty enables pretty-printed JSON output
func WithJSONPretty(pretty bool) JSONOption {
	return func(j *JSONExporter) {
		j.pretty = pretty
	}
}

// WithJSONVersion records the tool version in the metadata
func WithJSONVersion(v string) JSONOption {
	return func(j *JSONExporter) {
		j.version = v
	}
}

// NewJSONExporter creates a new JSON metrics exporter
func NewJSONExporter(opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{
		pretty:  true,
		version: "dev",
	}

	for _, opt := range opts {
		opt(j)
	}

	return j
}

// JSONMetricsOutput is the complete JSON output structure
type JSONMetricsOutput struct {
	Metadata JSONMetadata `json:"metadata"`
	Run      *RunMetrics  `json:"run"`
}

// JSONMetadata contains metadata about the export
type JSONMetadata struct {
	GeneratedAt string `json:"generated_at"`
	Version     string `json:"version"`
}

// Export writes metrics to the configured file or writer
func (j *JSONExporter) Export(metrics *RunMetrics) error {
	output := JSONMetricsOutput{
		Metadata: JSONMetadata{
			GeneratedAt: time.Now().Format(time.RFC3339),
			Version:     j.version,
		},
		Run: metrics,
	}

	var (
		data []byte
		err  error
	)
	if j.pretty {
		data, err = json.MarshalIndent(output, "", "  ")
	} else {
		data, err = json.Marshal(output)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	data = append(data, '\n')

	if j.filePath != "" {
		if err := os.WriteFile(j.filePath, data, 0644); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
		return nil
	}

	w := j.writer
	if w == nil {
		w = os.Stdout
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// Close is a no-op; Export writes synchronously
func (j *JSONExporter) Close() error {
	return nil
}
