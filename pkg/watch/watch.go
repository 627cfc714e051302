// Package watch follows transcript files with fsnotify and reports their
// context usage after each burst of writes.
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"work/pkg/transcript"
)

// Sample is the context usage read after a transcript changed.
type Sample struct {
	Path    string
	Percent int
	Known   bool
}

// Watcher follows one transcript. The parent directory is watched rather
// than the file so that a transcript created or replaced after Run starts
// is still picked up.
type Watcher struct {
	Path     string
	Debounce time.Duration // default 200ms
	Poll     time.Duration // fallback poll interval, default 30s
	OnSample func(ctx context.Context, s Sample)
}

func (w *Watcher) withDefaults() Watcher {
	out := *w
	if out.Debounce <= 0 {
		out.Debounce = 200 * time.Millisecond
	}
	if out.Poll <= 0 {
		out.Poll = 30 * time.Second
	}
	return out
}

// Run blocks until ctx is cancelled. It returns an error only when the
// transcript's directory does not exist. If fsnotify cannot be set up the
// watcher falls back to polling.
func (w *Watcher) Run(ctx context.Context) error {
	cfg := w.withDefaults()
	dir := filepath.Dir(cfg.Path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("watch %s: %w", cfg.Path, err)
	}

	poll := time.NewTicker(cfg.Poll)
	defer poll.Stop()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("fsnotify: failed to create watcher: %v (falling back to polling)", err)
		return cfg.pollLoop(ctx, poll)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(dir); err != nil {
		log.Printf("fsnotify: failed to watch %s: %v (falling back to polling)", dir, err)
		return cfg.pollLoop(ctx, poll)
	}

	debounce := newDebounceTimer()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return cfg.pollLoop(ctx, poll)
			}
			if filepath.Clean(ev.Name) != filepath.Clean(cfg.Path) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				resetDebounceTimer(debounce, cfg.Debounce)
			}
		case <-debounce.C:
			cfg.sample(ctx)
		case <-poll.C:
			cfg.sample(ctx)
		case err, ok := <-fsw.Errors:
			if !ok {
				return cfg.pollLoop(ctx, poll)
			}
			log.Printf("fsnotify: watcher error: %v", err)
		}
	}
}

func (w *Watcher) pollLoop(ctx context.Context, poll *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poll.C:
			w.sample(ctx)
		}
	}
}

func (w *Watcher) sample(ctx context.Context) {
	if w.OnSample == nil {
		return
	}
	pct, ok := transcript.PercentageFile(w.Path)
	w.OnSample(ctx, Sample{Path: w.Path, Percent: pct, Known: ok})
}

// All runs every watcher in its own goroutine and waits for them. The first
// setup error cancels the others.
func All(ctx context.Context, watchers []*Watcher) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range watchers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}

// newDebounceTimer returns a stopped timer with a drained channel.
func newDebounceTimer() *time.Timer {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	return timer
}

func resetDebounceTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}
