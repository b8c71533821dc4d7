package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFindAndLoadConfig_Defaults(t *testing.T) {
	cfg, err := FindAndLoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.True(t, cfg.IsDefault())
	assert.Equal(t, DefaultResultsDirectory, cfg.ResultsDirectory)
}

func TestFindAndLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "taplogger.yaml", `
resultsDirectory: out
format: native
noColor: true
notify:
  services: [slack]
  on: recovery
  slackWebhook: https://hooks.example/x
metrics:
  formats: [json, prometheus]
  file: metrics.json
`)

	cfg, err := FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "out", cfg.ResultsDirectory)
	assert.Equal(t, "native", cfg.Format)
	assert.True(t, cfg.GetNoColor())
	assert.False(t, cfg.GetQuiet())
	require.NotNil(t, cfg.Notify)
	assert.Equal(t, []string{"slack"}, cfg.Notify.Services)
	assert.Equal(t, "recovery", cfg.Notify.On)
	require.NotNil(t, cfg.Metrics)
	assert.Equal(t, []string{"json", "prometheus"}, cfg.Metrics.Formats)
}

func TestFindAndLoadConfig_SearchOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".taplogger.json", `{"resultsDirectory": "from-json"}`)
	writeFile(t, dir, "taplogger.yml", "resultsDirectory: from-yml\n")

	cfg, err := FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-yml", cfg.ResultsDirectory)
}

func TestLoadConfig_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "custom.json", `{"quiet": true, "historyDatabase": "runs.db"}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.GetQuiet())
	assert.Equal(t, "runs.db", cfg.HistoryDatabase)
	assert.Equal(t, "gotest", cfg.Format, "defaults survive partial files")
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"bad yaml", "a.yaml", "format: [\n"},
		{"bad json", "a.json", "{"},
		{"unknown format", "a.yaml", "format: xml\n"},
		{"unknown notify on", "a.yaml", "notify:\n  on: sometimes\n"},
		{"unknown service", "a.yaml", "notify:\n  services: [email]\n"},
		{"unknown metrics format", "a.yaml", "metrics:\n  formats: [statsd]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.Notify = &NotifyConfig{Services: []string{"teams"}, TeamsWebhook: "https://t"}

	merged := base.Merge(&Config{
		ResultsDirectory: "override",
		Quiet:            BoolPtr(true),
		Notify:           &NotifyConfig{On: "always"},
		Metrics:          &MetricsConfig{Formats: []string{"json"}},
	})

	assert.Equal(t, "override", merged.ResultsDirectory)
	assert.Equal(t, "gotest", merged.Format)
	assert.True(t, merged.GetQuiet())
	assert.Equal(t, []string{"teams"}, merged.Notify.Services)
	assert.Equal(t, "always", merged.Notify.On)
	assert.Equal(t, "https://t", merged.Notify.TeamsWebhook)
	assert.Equal(t, []string{"json"}, merged.Metrics.Formats)

	assert.Empty(t, base.Notify.On, "base is not modified")
	assert.Same(t, base, base.Merge(nil))
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	for _, name := range []string{"taplogger.yaml", "taplogger.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := DefaultConfig()
			cfg.ResultsDirectory = "reports"
			require.NoError(t, cfg.SaveConfig(path))

			loaded, err := LoadConfig(path)
			require.NoError(t, err)
			assert.Equal(t, "reports", loaded.ResultsDirectory)
		})
	}
}
