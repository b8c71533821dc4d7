package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// DataDogExporter submits metrics to the DataDog series API
type DataDogExporter struct {
	apiKey   string
	site     string // e.g., "datadoghq.com", "datadoghq.eu"
	endpoint string
	tags     []string
	prefix   string
	client   *http.Client
}

// DataDogOption is a functional option for DataDogExporter
type DataDogOption func(*DataDogExporter)

// WithDataDogAPIKey sets the DataDog API key
func WithDataDogAPIKey(apiKey string) DataDogOption {
	return func(d *DataDogExporter) {
		d.apiKey = apiKey
	}
}

// WithDataDogSite sets the DataDog site (e.g., "datadoghq.com", "datadoghq.eu")
func WithDataDogSite(site string) DataDogOption {
	return func(d *DataDogExporter) {
		d.site = site
	}
}

// WithDataDogEndpoint overrides the full series URL
func WithDataDogEndpoint(url string) DataDogOption {
	return func(d *DataDogExporter) {
		d.endpoint = url
	}
}

// WithDataDogTags sets additional tags for all metrics
func WithDataDogTags(tags []string) DataDogOption {
	return func(d *DataDogExporter) {
		d.tags = tags
	}
}

// NewDataDogExporter creates a new DataDog metrics exporter
func NewDataDogExporter(opts ...DataDogOption) *DataDogExporter {
	d := &DataDogExporter{
		site:   "datadoghq.com",
		prefix: "taplogger",
		client: &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.apiKey == "" {
		d.apiKey = os.Getenv("DD_API_KEY")
	}
	if d.endpoint == "" {
		d.endpoint = fmt.Sprintf("https://api.%s/api/v1/series", d.site)
	}

	return d
}

type datadogMetric struct {
	Metric string   `json:"metric"`
	Type   string   `json:"type"`
	Points [][]any  `json:"points"`
	Tags   []string `json:"tags,omitempty"`
}

type datadogPayload struct {
	Series []datadogMetric `json:"series"`
}

// Export submits the run metrics as one series batch
func (d *DataDogExporter) Export(m *RunMetrics) error {
	if d.apiKey == "" {
		return fmt.Errorf("DataDog API key not configured")
	}

	now := float64(time.Now().Unix())
	tags := append([]string{"run_id:" + m.RunID}, d.tags...)

	point := func(name, typ string, v float64, extra ...string) datadogMetric {
		return datadogMetric{
			Metric: d.prefix + "." + name,
			Type:   typ,
			Points: [][]any{{now, v}},
			Tags:   append(append([]string(nil), tags...), extra...),
		}
	}

	series := []datadogMetric{
		point("tests.total", "gauge", float64(m.Total)),
		point("tests.by_outcome", "gauge", float64(m.Passed), "outcome:passed"),
		point("tests.by_outcome", "gauge", float64(m.Failed), "outcome:failed"),
		point("tests.by_outcome", "gauge", float64(m.Skipped), "outcome:skipped"),
		point("run.duration", "gauge", m.ElapsedMs),
		point("run.aborted", "gauge", float64(boolToInt(m.Aborted))),
		point("test.duration.mean", "gauge", m.MeanDurationMs),
		point("test.duration.p50", "gauge", m.P50DurationMs),
		point("test.duration.p95", "gauge", m.P95DurationMs),
		point("test.duration.p99", "gauge", m.P99DurationMs),
		point("test.duration.max", "gauge", m.MaxDurationMs),
	}

	return d.send(series)
}

func (d *DataDogExporter) send(series []datadogMetric) error {
	jsonData, err := json.Marshal(datadogPayload{Series: series})
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, d.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("DD-API-KEY", d.apiKey)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send metrics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("DataDog API returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Close closes the DataDog exporter
func (d *DataDogExporter) Close() error {
	return nil
}
