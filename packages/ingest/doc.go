// Package ingest replays recorded test-run event streams onto an events.Bus.
//
// Supported formats:
//   - gotest: `go test -json` output. Non-JSON lines become run messages.
//   - native: one JSON object per line, validated against NativeSchema:
//
//	{"type":"message","level":"warning","text":"..."}
//	{"type":"result","name":"A","outcome":"failed","messages":["..."],
//	 "errorMessage":"boom","stackTrace":"at X\nat Y","durationMs":12}
//	{"type":"complete","elapsedMs":340}
//
// Replay never executes tests; it only translates what a host already
// recorded.
package ingest
