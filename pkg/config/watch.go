package config

import (
	"context"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/aye-aye-dev/fossa-node/pkg/logging"
)

// Watcher applies live edits to DEBUG and logging.level from a config
// file without touching the write-once whitelist (the governor only
// ever sees the Config values it was started with for anything
// structural). Grounded on the teacher's pkg/sync/file_watcher.go use
// of fsnotify for a single-file watch loop.
type Watcher struct {
	path    string
	logger  *logging.FieldLogger
	mu      sync.Mutex
	current *Config
	onChange func(*Config)
}

// NewWatcher builds a Watcher over path, seeded with the currently
// loaded config. onChange is invoked with the newly reloaded config
// after each filesystem write event.
func NewWatcher(path string, initial *Config, logger *logging.Logger, onChange func(*Config)) *Watcher {
	return &Watcher{
		path:     path,
		logger:   logger.WithComponent("config.watch"),
		current:  initial,
		onChange: onChange,
	}
}

// Run blocks, watching path for writes until ctx is cancelled. Only
// Debug, LogToStdout, and Logging fields are applied from a reload;
// any other field change is ignored without a log line, since the rest
// of the config is only ever read once at boot.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.path); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	reloaded := DefaultConfig()
	if err := reloaded.loadFromFile(w.path); err != nil {
		w.logger.Errorf("reload failed, keeping previous config: %v", err)
		return
	}
	reloaded.applyEnvironmentOverrides()
	if err := reloaded.Validate(); err != nil {
		w.logger.Errorf("reloaded config is invalid, keeping previous config: %v", err)
		return
	}

	w.mu.Lock()
	w.current.Debug = reloaded.Debug
	w.current.LogToStdout = reloaded.LogToStdout
	w.current.Logging = reloaded.Logging
	snapshot := *w.current
	w.mu.Unlock()

	w.logger.Infof("applied live config reload: debug=%v log_level=%s", snapshot.Debug, snapshot.Logging.Level)
	if w.onChange != nil {
		w.onChange(&snapshot)
	}
}
