// Package cmd implements the taplogger CLI commands using Cobra.
//
// Available commands:
//   - convert: Turn a go test -json or native event stream into TestResults.txt
//   - history: List recent runs recorded in the history database
//   - init: Create a taplogger.yaml with default settings
//   - version: Show taplogger version information
//   - completion: Generate shell completion scripts
//
// convert supports a watch mode that converts the input again whenever it
// changes, and can record history, send notifications and export metrics
// after each run.
package cmd
