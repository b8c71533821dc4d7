package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watch converts input again each time it is written, until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are still seen.
func (c *converter) watch(ctx context.Context, input string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	out := c.formatter
	fmt.Fprintf(c.out, "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	reruns := &rerunner{ctx: ctx, run: func() {
		fmt.Fprintf(c.out, "\nFile changed: %s\nConverting again...\n\n", input)
		if _, err := c.convertPath(ctx, input); err != nil {
			out.FormatError(err)
		}
		fmt.Fprintf(c.out, "\nWatching for changes... (press Ctrl+C to stop)\n")
	}}
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			reruns.wait()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				reruns.wait()
				return nil
			}

			name, err := filepath.Abs(event.Name)
			if err != nil || name != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			// Debounce: reset timer on each event
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(WatchDebounceDelay, reruns.fire)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			out.FormatError(fmt.Errorf("watcher error: %w", err))
		}
	}
}

// rerunner serializes watch re-runs. A change during a run schedules another
// one once the current run returns.
type rerunner struct {
	mu  sync.Mutex
	ctx context.Context
	run func()
}

func (r *rerunner) fire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx.Err() != nil {
		return
	}
	r.run()
}

// wait blocks until an in-flight run has returned. Runs fired after ctx is
// done do nothing, so the shared sinks can be closed once wait returns.
func (r *rerunner) wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
}
