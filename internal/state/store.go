// Package state persists run history, failure clusters and decisions.
//
// Backends register themselves by name (sqlite, postgres, memory) and are
// opened through Open. The SQL backends share one implementation and differ
// only in driver, placeholder style and goose dialect.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leapstack-labs/rqg/pkg/core"
)

// Options configures a backend connection.
type Options struct {
	// Path is the database file for file-based backends. ":memory:" is allowed.
	Path string
	// DSN is the connection string for network backends.
	DSN string
}

// Backend is a history store that can be opened.
type Backend interface {
	core.HistoryStore
	Open(ctx context.Context, opts Options) error
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func(*slog.Logger) Backend)
)

// Register adds a backend factory to the registry.
// Called by backend implementations in their init() functions.
func Register(name string, factory func(*slog.Logger) Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get retrieves a backend factory by name.
func Get(name string) (func(*slog.Logger) Backend, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// ListBackends returns all registered backend names (sorted).
func ListBackends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// Open creates and opens the named backend.
// The logger parameter is passed to the backend constructor (nil uses discard logger).
func Open(ctx context.Context, name string, opts Options, logger *slog.Logger) (core.HistoryStore, error) {
	if name == "" {
		return nil, fmt.Errorf("store backend not specified")
	}
	factory, ok := Get(name)
	if !ok {
		return nil, &UnknownStoreError{Name: name, Available: ListBackends()}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	backend := factory(logger)
	if err := backend.Open(ctx, opts); err != nil {
		return nil, err
	}
	return backend, nil
}

// UnknownStoreError is returned when an unknown backend is requested.
type UnknownStoreError struct {
	Name      string
	Available []string
}

func (e *UnknownStoreError) Error() string {
	return fmt.Sprintf("unknown store backend %q\nAvailable backends: %v\nHint: Check store in .rqg/config.yaml", e.Name, e.Available)
}
