// Package collector implements the TAP report listener.
//
// A Collector subscribes to an events.Source, buffers one tap.Record per test
// result in arrival order and, when the run completes, writes
// <resultsDir>/TestResults.txt.
//
// Lifecycle:
//
//	Uninitialized -> Initialized -> Collecting -> Completed
//
// Completed is terminal. Handlers are safe to call from multiple goroutines.
package collector
