package cmd

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerunner_WaitBlocksOnInFlightRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	r := &rerunner{ctx: ctx, run: func() {
		close(started)
		<-release
		finished.Store(true)
	}}

	go r.fire()
	<-started
	cancel()

	waited := make(chan struct{})
	go func() {
		r.wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("wait returned while a run was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after the run finished")
	}
	assert.True(t, finished.Load())
}

func TestRerunner_SkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	r := &rerunner{ctx: ctx, run: func() { calls.Add(1) }}
	r.fire()
	r.wait()
	assert.Zero(t, calls.Load())
}

func TestConverter_RunWatchSurvivesFirstError(t *testing.T) {
	input := filepath.Join(t.TempDir(), "run.jsonl")
	require.NoError(t, os.WriteFile(input, []byte("{\"type\":\"result\",\"name\":\"A\",\"outcome\":\"passed\"}\nnot json\n"), 0644))

	conv, stdout, _ := newTestConverter(t, testConfig(t))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, conv.run(ctx, input, true))
	assert.Contains(t, stdout.String(), "Error: line 2")
	assert.Contains(t, stdout.String(), "Watching for changes...")
}

func TestConverter_RunWithoutWatchReturnsError(t *testing.T) {
	input := filepath.Join(t.TempDir(), "run.jsonl")
	require.NoError(t, os.WriteFile(input, []byte("not json\n"), 0644))

	conv, _, _ := newTestConverter(t, testConfig(t))
	err := conv.run(context.Background(), input, false)
	require.Error(t, err)
	assert.Equal(t, ExitDecodeError, exitCode(err))
}
