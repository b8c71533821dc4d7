package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/taplogger/packages/core/config"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize taplogger in the current directory",
	Long: `Initialize taplogger in the current directory.

This creates:
  - taplogger.yaml   - Configuration file with default settings
  - example.jsonl    - Example run in the native event format

Examples:
  taplogger init
  taplogger init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

const exampleContent = `{"type":"message","level":"informational","text":"example run started"}
{"type":"result","name":"math/TestAdd","fullyQualifiedName":"math.TestAdd","outcome":"passed","durationMs":3}
{"type":"result","name":"math/TestDivide","fullyQualifiedName":"math.TestDivide","outcome":"failed","durationMs":5,"errorMessage":"division by zero","stackTrace":"math_test.go:21\nmath_test.go:9"}
{"type":"result","name":"math/TestSqrt","fullyQualifiedName":"math.TestSqrt","outcome":"skipped","messages":["not implemented"]}
{"type":"complete","elapsedMs":12}
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, "taplogger.yaml")
	exampleFile := filepath.Join(cwd, "example.jsonl")

	if !forceInit {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return &exitError{code: ExitUsageError, err: fmt.Errorf("file already exists: %s (use --force to overwrite)", f)}
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.HistoryDatabase = "sqlite://.taplogger/history.db"
	cfg.Notify = &config.NotifyConfig{On: "failure"}

	if err := cfg.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(exampleFile, []byte(exampleContent), 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\ntaplogger initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'taplogger convert example.jsonl --format native' to write an example report.\n")

	return nil
}
