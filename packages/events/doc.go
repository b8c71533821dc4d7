// Package events defines the test-run lifecycle a report listener subscribes to.
//
// A host delivers three kinds of notifications:
//   - RunMessage: run-level diagnostics
//   - TestResult: one per finished test, in arrival order
//   - RunComplete: once, when the run ends
//
// Source abstracts the host's registration points. Bus is an in-process
// Source that hosts (and tests) publish to directly.
package events
