// Package config provides a runtime-reloadable configuration manager for the
// registry service. It loads a JSON file and watches it for changes.
//
// The file currently carries the reserved-name denylist used to filter cog
// candidates. Changes take effect on the next validation pass, no restart
// needed.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/orels1/api.v3.cogs.red/internal/registry/names"
)

// Conf represents the configuration structure.
type Conf struct {
	ReservedNames []string `json:"reservedNames"`
}

// Manager is a struct that manages the configuration.
//
// Manager implements the name-checker contract of the tree validator:
// Valid delegates to a validator rebuilt on every successful load.
type Manager struct {
	config    Conf
	validator *names.Validator
	lock      sync.RWMutex

	configPath string

	log *slog.Logger
}

type options struct {
	Logger *slog.Logger
}

// Options represents an optional function to override Manager default values.
type Options func(*options)

// New creates a new configuration manager with the specified path. An empty
// path keeps the built-in defaults; Load and Watch become no-ops.
func New(path string, args ...Options) *Manager {
	opts := options{
		Logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Manager{
		configPath: path,
		validator:  names.New(nil),
		log:        opts.Logger,
	}
}

// Load reads the configuration from the specified file and updates the
// internal state.
func (cm *Manager) Load() error {
	if cm.configPath == "" {
		return nil
	}

	file, err := os.Open(cm.configPath)
	if err != nil {
		return fmt.Errorf("opening config file: %w", err)
	}
	defer file.Close()

	var newConfig Conf
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&newConfig); err != nil {
		return fmt.Errorf("decoding config JSON: %w", err)
	}

	cm.lock.Lock()
	cm.config = newConfig
	cm.validator = names.New(newConfig.ReservedNames)
	cm.lock.Unlock()

	cm.log.Info("Configuration loaded", "reservedNames", len(newConfig.ReservedNames))
	return nil
}

// ReservedNames returns the reserved-name denylist from the configuration.
func (cm *Manager) ReservedNames() []string {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.config.ReservedNames
}

// Valid reports whether name is acceptable as a cog name under the current
// configuration.
func (cm *Manager) Valid(name string) bool {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.validator.Valid(name)
}

// Watch starts watching the configuration file for changes.
//
// It returns two channels: one for configuration changes which result in a
// successful load and another for unrecoverable watcher errors.
func (cm *Manager) Watch(ctx context.Context) (changes <-chan struct{}, errs <-chan error, err error) {
	changesCh := make(chan struct{}, 1)
	errorsCh := make(chan error, 1)

	if cm.configPath == "" {
		// Nothing to watch; the channels stay open until the context ends.
		go func() {
			<-ctx.Done()
			close(changesCh)
			close(errorsCh)
		}()
		return changesCh, errorsCh, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	configDir, _ := filepath.Split(cm.configPath)
	if configDir == "" {
		configDir = "."
	}
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to add directory %s to watcher: %v", configDir, err)
	}

	cm.log.Info("Watching configuration directory", "dir", configDir)

	// Initial load of the configuration
	if err := cm.Load(); err != nil {
		cm.log.Warn("Error loading initial config", "err", err)
	}

	go func() {
		defer close(changesCh)
		defer close(errorsCh)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				cm.log.Info("Configuration watcher stopped")
				return
			case event, ok := <-watcher.Events:
				if !ok {
					errorsCh <- fmt.Errorf("watcher events channel closed unexpectedly")
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if event.Name != cm.configPath {
					continue
				}

				cm.log.Debug("Configuration file changed. Reloading...")
				if err := cm.Load(); err != nil {
					cm.log.Warn("Error reloading config", "err", err)
					continue
				}

				select {
				case changesCh <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					errorsCh <- fmt.Errorf("watcher errors channel closed unexpectedly")
					return
				}
				cm.log.Warn("Watcher error", "err", err)
			}
		}
	}()

	return changesCh, errorsCh, nil
}
