// Package output prints human-readable run progress and summaries.
//
// The ConsoleFormatter can subscribe to an event source and print each
// result as it arrives, then print totals, duration percentiles and the
// location of the TAP report once the run completes.
package output
