package orchestrator

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces editor write bursts into one rebuild pass.
const debounceDelay = 300 * time.Millisecond

// Watch runs an initial build pass, then blocks rebuilding the stale subset
// whenever a tracked source file changes, until the context is canceled.
//
// The tracked file list is snapshotted when the loop starts: a brand-new
// file matching the naming convention is not picked up until restart.
func (o *Orchestrator) Watch(ctx context.Context, targets []Target) error {
	o.Run(ctx, targets)

	tracked, err := o.watchSet(targets)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// Sources are flat in the book dir; style overrides may live in the
	// support dir.
	if err := watcher.Add(o.bookDir); err != nil {
		return err
	}
	if o.etcDir != "" {
		if err := watcher.Add(o.etcDir); err != nil {
			o.logger.Warn("watch add failed", "dir", o.etcDir, "error", err)
		}
	}
	o.logger.Info("watching for changes", "dir", o.bookDir, "files", len(tracked))

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !tracked[filepath.Clean(ev.Name)] {
				continue
			}
			o.logger.Debug("change detected", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounceDelay)
				timerC = timer.C
			} else {
				timer.Reset(debounceDelay)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			o.logger.Warn("watcher error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			o.Run(ctx, targets)
		}
	}
}

// watchSet is the union of every requested target's dependency set at loop
// start.
func (o *Orchestrator) watchSet(targets []Target) (map[string]bool, error) {
	tracked := map[string]bool{}
	for _, t := range targets {
		deps, err := o.Dependencies(t)
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			tracked[filepath.Clean(dep)] = true
		}
	}
	return tracked, nil
}
