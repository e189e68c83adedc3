package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/florentcollect/flototext/internal/history"
	"github.com/florentcollect/flototext/pkg/stt"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested name.
var ErrNotRegistered = errors.New("config: backend not registered")

// EngineFactory builds a transcription engine from its config entry. The
// factory runs inside an stt.Loader goroutine, so it may block on model load.
type EngineFactory func(EngineEntry) (stt.Engine, error)

// HistoryFactory builds a history store from its config entry.
type HistoryFactory func(ctx context.Context, cfg HistoryConfig) (history.Store, error)

// Registry maps backend names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]EngineFactory
	history map[string]HistoryFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]EngineFactory),
		history: make(map[string]HistoryFactory),
	}
}

// RegisterEngine registers an engine factory under name. Subsequent calls
// with the same name overwrite the previous registration.
func (r *Registry) RegisterEngine(name string, factory EngineFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[name] = factory
}

// RegisterHistory registers a history store factory under name.
func (r *Registry) RegisterHistory(name string, factory HistoryFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[name] = factory
}

// CreateEngine instantiates an engine using the factory registered under
// entry.Name. Returns [ErrNotRegistered] when no factory matches.
func (r *Registry) CreateEngine(entry EngineEntry) (stt.Engine, error) {
	r.mu.RLock()
	factory, ok := r.engines[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: engine/%q", ErrNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateHistory instantiates a history store using the factory registered
// under cfg.Backend. Returns [ErrNotRegistered] when no factory matches.
func (r *Registry) CreateHistory(ctx context.Context, cfg HistoryConfig) (history.Store, error) {
	r.mu.RLock()
	factory, ok := r.history[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: history/%q", ErrNotRegistered, cfg.Backend)
	}
	return factory(ctx, cfg)
}
