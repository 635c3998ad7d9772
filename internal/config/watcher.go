package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] polls its files.
const DefaultWatchInterval = 5 * time.Second

// ChangeFunc receives every effective change seen by a [Watcher]. It runs
// on the watcher goroutine; a slow callback delays the next poll.
type ChangeFunc func(old, new *Config, d ConfigDiff)

// fileState identifies one version of a watched file.
type fileState struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// Watcher polls a configuration file, and the rule catalog it names in
// tajweed.catalog_path, and reports effective changes. Rewrites that leave
// every setting as it was (a touch, a new comment, reformatting) are
// swallowed. An edited catalog file is reported as a Tajweed change with
// CatalogChanged set even when the configuration itself is unchanged.
// Invalid configurations are logged and skipped; the last valid one stays
// current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange ChangeFunc
	logger   *slog.Logger

	mu      sync.Mutex
	current *Config
	config  fileState
	catalog fileState

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides [DefaultWatchInterval]. Non-positive values are
// ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLogger sets the logger for reload and failure messages.
func WithLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher loads path, failing when it is missing or invalid, and starts
// polling it. onChange may be nil. Call Stop to end polling.
func NewWatcher(path string, onChange ChangeFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		onChange: onChange,
		logger:   slog.Default(),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	cfg, state, err := readConfig(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current, w.config = cfg, state
	if p := cfg.Tajweed.CatalogPath; p != "" {
		if w.catalog, err = stat(p); err != nil {
			return nil, fmt.Errorf("config: watch catalog %s: %w", p, err)
		}
	}

	go w.run()
	return w, nil
}

// Current returns the last valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and waits for an in-flight callback to return. It is
// safe to call more than once.
func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stop) })
	<-w.stopped
}

func (w *Watcher) run() {
	defer close(w.stopped)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.poll()
		}
	}
}

// poll compares both files with their last known state and dispatches one
// callback for whatever changed.
func (w *Watcher) poll() {
	w.mu.Lock()
	old, cfgState, catState := w.current, w.config, w.catalog
	w.mu.Unlock()

	next := old
	d := ConfigDiff{}
	if info, err := os.Stat(w.path); err != nil {
		w.logger.Warn("config watcher: cannot stat config", "path", w.path, "err", err)
		return
	} else if !info.ModTime().Equal(cfgState.mtime) {
		cfg, state, err := readConfig(w.path)
		if err != nil {
			w.logger.Warn("config watcher: ignoring invalid config", "path", w.path, "err", err)
			return
		}
		if state.sum != cfgState.sum {
			next, d = cfg, Diff(old, cfg)
		}
		cfgState = state
	}

	if p := next.Tajweed.CatalogPath; p != "" {
		state, err := stat(p)
		switch {
		case err != nil:
			w.logger.Warn("config watcher: cannot read rule catalog", "path", p, "err", err)
		case p != old.Tajweed.CatalogPath:
			// A new path is already reported by Diff.
			catState = state
		case state.sum != catState.sum:
			d.TajweedChanged, d.CatalogChanged = true, true
			catState = state
		default:
			catState = state
		}
	}

	w.mu.Lock()
	w.current, w.config, w.catalog = next, cfgState, catState
	w.mu.Unlock()

	if !d.HasChanges() {
		return
	}
	w.logger.Info("config watcher: configuration changed",
		"path", w.path,
		"log_level_changed", d.LogLevelChanged,
		"tajweed_changed", d.TajweedChanged,
		"catalog_changed", d.CatalogChanged,
		"restart_required", d.RestartRequired,
	)
	if w.onChange != nil {
		w.onChange(old, next, d)
	}
}

// readConfig parses and validates path and returns it with its state.
func readConfig(path string) (*Config, fileState, error) {
	data, state, err := read(path)
	if err != nil {
		return nil, fileState{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileState{}, err
	}
	return cfg, state, nil
}

func stat(path string) (fileState, error) {
	_, state, err := read(path)
	return state, err
}

func read(path string) ([]byte, fileState, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileState{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileState{}, err
	}
	return data, fileState{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
