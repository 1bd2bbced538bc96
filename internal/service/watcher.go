package core

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"giftvault/server/pkg/config"
)

// ConfigWatcher hot-reloads pool targets when the configuration file
// changes. Only target/min/amount of existing tiers can change at runtime;
// anything else requires a restart.
type ConfigWatcher struct {
	path    string
	reg     *Registry
	watcher *fsnotify.Watcher
	stop    chan struct{}

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewConfigWatcher starts watching the config file.
func NewConfigWatcher(path string, reg *Registry) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &ConfigWatcher{
		path:    path,
		reg:     reg,
		watcher: watcher,
		stop:    make(chan struct{}),
	}
	go w.loop()
	log.Info().Str("path", path).Msg("Config watcher started")
	return w, nil
}

// Stop ends the watch loop.
func (w *ConfigWatcher) Stop() {
	close(w.stop)
	w.watcher.Close()
}

func (w *ConfigWatcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.scheduleReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		case <-w.stop:
			return
		}
	}
}

// scheduleReload debounces bursts of write events from editors.
func (w *ConfigWatcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(500*time.Millisecond, w.reload)
}

func (w *ConfigWatcher) reload() {
	cfg, err := config.Load(w.path)
	if err != nil {
		log.Error().Err(err).Str("path", w.path).Msg("Config reload failed, keeping previous values")
		return
	}
	w.reg.UpdatePools(cfg.Pools)
	log.Info().Int("pools", len(cfg.Pools)).Msg("Pool configuration reloaded")
}
