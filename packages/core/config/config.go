package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the taplogger configuration
type Config struct {
	ResultsDirectory string         `json:"resultsDirectory,omitempty" yaml:"resultsDirectory,omitempty"`
	Format           string         `json:"format,omitempty" yaml:"format,omitempty"` // gotest or native
	NoColor          *bool          `json:"noColor,omitempty" yaml:"noColor,omitempty"`
	Quiet            *bool          `json:"quiet,omitempty" yaml:"quiet,omitempty"`
	HistoryDatabase  string         `json:"historyDatabase,omitempty" yaml:"historyDatabase,omitempty"`
	Notify           *NotifyConfig  `json:"notify,omitempty" yaml:"notify,omitempty"`
	Metrics          *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// NotifyConfig selects notification services and when they fire
type NotifyConfig struct {
	Services     []string `json:"services,omitempty" yaml:"services,omitempty"` // slack, teams
	On           string   `json:"on,omitempty" yaml:"on,omitempty"`             // always, failure, success, recovery
	SlackWebhook string   `json:"slackWebhook,omitempty" yaml:"slackWebhook,omitempty"`
	SlackChannel string   `json:"slackChannel,omitempty" yaml:"slackChannel,omitempty"`
	TeamsWebhook string   `json:"teamsWebhook,omitempty" yaml:"teamsWebhook,omitempty"`
}

// MetricsConfig selects metric exporters
type MetricsConfig struct {
	Formats []string `json:"formats,omitempty" yaml:"formats,omitempty"` // json, prometheus, datadog
	File    string   `json:"file,omitempty" yaml:"file,omitempty"`
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// GetQuiet returns the quiet setting, defaulting to false
func (c *Config) GetQuiet() bool {
	return getBool(c.Quiet, false)
}

// ConfigFilenames contains the possible config file names, in search order
var ConfigFilenames = []string{
	"taplogger.yaml",
	".taplogger.yaml",
	"taplogger.yml",
	".taplogger.yml",
	"taplogger.json",
	".taplogger.json",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if isJSON(path) {
		err = json.Unmarshal(data, config)
	} else {
		err = yaml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}

// Validate checks enumerated fields
func (c *Config) Validate() error {
	switch c.Format {
	case "", "gotest", "native":
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}
	if c.Notify != nil {
		switch c.Notify.On {
		case "", "always", "failure", "success", "recovery":
		default:
			return fmt.Errorf("unknown notify.on %q", c.Notify.On)
		}
		for _, s := range c.Notify.Services {
			if s != "slack" && s != "teams" {
				return fmt.Errorf("unknown notify service %q", s)
			}
		}
	}
	if c.Metrics != nil {
		for _, f := range c.Metrics.Formats {
			switch f {
			case "json", "prometheus", "datadog":
			default:
				return fmt.Errorf("unknown metrics format %q", f)
			}
		}
	}
	return nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.ResultsDirectory != "" {
		result.ResultsDirectory = other.ResultsDirectory
	}
	if other.Format != "" {
		result.Format = other.Format
	}
	if other.HistoryDatabase != "" {
		result.HistoryDatabase = other.HistoryDatabase
	}

	// Boolean flags - only override if explicitly set in other config
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}
	if other.Quiet != nil {
		result.Quiet = other.Quiet
	}

	if other.Notify != nil {
		n := NotifyConfig{}
		if result.Notify != nil {
			n = *result.Notify
		}
		if len(other.Notify.Services) > 0 {
			n.Services = other.Notify.Services
		}
		if other.Notify.On != "" {
			n.On = other.Notify.On
		}
		if other.Notify.SlackWebhook != "" {
			n.SlackWebhook = other.Notify.SlackWebhook
		}
		if other.Notify.SlackChannel != "" {
			n.SlackChannel = other.Notify.SlackChannel
		}
		if other.Notify.TeamsWebhook != "" {
			n.TeamsWebhook = other.Notify.TeamsWebhook
		}
		result.Notify = &n
	}

	if other.Metrics != nil {
		m := MetricsConfig{}
		if result.Metrics != nil {
			m = *result.Metrics
		}
		if len(other.Metrics.Formats) > 0 {
			m.Formats = other.Metrics.Formats
		}
		if other.Metrics.File != "" {
			m.File = other.Metrics.File
		}
		result.Metrics = &m
	}

	return &result
}

// SaveConfig saves the configuration to a file, as JSON when path ends in
// .json and YAML otherwise
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
