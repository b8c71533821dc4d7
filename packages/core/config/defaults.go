package config

// DefaultResultsDirectory is where TestResults.txt is written when no
// directory is configured
const DefaultResultsDirectory = "TestResults"

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		ResultsDirectory: DefaultResultsDirectory,
		Format:           "gotest",
		NoColor:          BoolPtr(false),
		Quiet:            BoolPtr(false),
		HistoryDatabase:  "",
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.ResultsDirectory == defaults.ResultsDirectory &&
		c.Format == defaults.Format &&
		c.GetNoColor() == defaults.GetNoColor() &&
		c.GetQuiet() == defaults.GetQuiet() &&
		c.HistoryDatabase == defaults.HistoryDatabase &&
		c.Notify == nil &&
		c.Metrics == nil
}
