package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces bursts of filesystem events (editors often write
// a file via rename-into-place, which fires more than one event) into a
// single reload.
const debounceWindow = 200 * time.Millisecond

// Watch watches config.toml under graphDir for changes and invokes cb with
// the freshly loaded Config after each debounced change. cb is also invoked
// once immediately with the initial load. Errors from the watcher itself or
// from a reload attempt are reported via errCb; Watch keeps running after an
// error so a transient parse failure doesn't kill the hot-reload loop.
//
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, graphDir string, cb func(Config), errCb func(error)) {
	initial, err := Load(graphDir)
	if err != nil {
		errCb(err)
	} else {
		cb(initial)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		errCb(err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(graphDir); err != nil {
		errCb(err)
		return
	}

	target := Path(graphDir)
	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) == target {
				debounce.Reset(debounceWindow)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			errCb(err)
		case <-debounce.C:
			cfg, err := Load(graphDir)
			if err != nil {
				errCb(err)
				continue
			}
			cb(cfg)
		}
	}
}
