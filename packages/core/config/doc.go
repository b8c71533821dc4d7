// Package config handles configuration loading and management for taplogger.
//
// It provides functionality for:
//   - Loading configuration from taplogger.yaml, taplogger.yml or taplogger.json
//   - Default configuration values
//   - Merging file settings with command line overrides
package config
