package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/unionco/idbridge/pkg/observability"
)

// Toggles holds per-validator enabled flags that can change at runtime.
// Reads are lock-free; the watcher goroutine is the only writer.
type Toggles struct {
	jwtEnabled  atomic.Bool
	samlEnabled atomic.Bool
}

// NewToggles creates toggles seeded from static configuration
func NewToggles(jwtEnabled, samlEnabled bool) *Toggles {
	t := &Toggles{}
	t.jwtEnabled.Store(jwtEnabled)
	t.samlEnabled.Store(samlEnabled)
	return t
}

// JWTEnabled reports whether the JWT validator should run
func (t *Toggles) JWTEnabled() bool { return t.jwtEnabled.Load() }

// SAMLEnabled reports whether the SAML validator should run
func (t *Toggles) SAMLEnabled() bool { return t.samlEnabled.Load() }

type togglesFile struct {
	JWTEnabled  *bool `json:"jwt_enabled,omitempty"`
	SAMLEnabled *bool `json:"saml_enabled,omitempty"`
}

// LoadFromFile applies flags from a JSON toggles file. Absent fields keep
// their current value.
func (t *Toggles) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read toggles file: %w", err)
	}

	var tf togglesFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("failed to parse toggles file: %w", err)
	}

	if tf.JWTEnabled != nil {
		t.jwtEnabled.Store(*tf.JWTEnabled)
	}
	if tf.SAMLEnabled != nil {
		t.samlEnabled.Store(*tf.SAMLEnabled)
	}

	return nil
}

// Watch reloads the toggles file whenever it changes, until stop is closed.
// Editors often replace files rather than write in place, so the parent
// directory is watched and events are filtered by name.
func (t *Toggles) Watch(path string, logger *observability.Logger, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := t.LoadFromFile(path); err != nil {
					logger.WithError(err).Warn("Failed to reload validator toggles")
					continue
				}
				logger.WithFields(map[string]interface{}{
					"jwt_enabled":  t.JWTEnabled(),
					"saml_enabled": t.SAMLEnabled(),
				}).Info("Reloaded validator toggles")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("Toggles watcher error")
			case <-stop:
				return
			}
		}
	}()

	return nil
}
