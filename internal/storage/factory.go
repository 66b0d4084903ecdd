// internal/storage/factory.go
package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vidsync/engine/internal/config"
	"github.com/vidsync/engine/internal/logging"
)

// Factory creates a backend from its configuration section.
type Factory func(cfg config.StorageConfig, log *logging.Manager) (Backend, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a backend factory available under the given type name.
// Backend packages call it from init; importing a backend is enough to
// make it selectable by configuration.
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if factory == nil {
		panic("storage: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("storage: Register called twice for backend " + name)
	}
	factories[name] = factory
}

// Types returns the registered backend type names in sorted order.
func Types() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBackend creates a storage backend based on configuration.
func NewBackend(cfg config.StorageConfig, log *logging.Manager) (Backend, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown storage type: %q (registered: %s)",
			cfg.Type, strings.Join(Types(), ", "))
	}
	return factory(cfg, log)
}
