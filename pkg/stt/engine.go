// Package stt defines the Engine interface for speech-to-text backends.
//
// An Engine takes one finished audio clip and returns its transcript. This is
// deliberately a batch contract rather than a streaming one: a push-to-talk
// session produces a single bounded clip, and batch inference on the whole
// clip gives the model full context.
//
// Model load can take many seconds, so engines are started through a Loader
// that loads in the background and reports readiness; callers that hit the
// engine before the load finishes get ErrNotReady instead of blocking.
package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/florentcollect/flototext/pkg/audio"
)

// ErrNotReady is returned by Loader.Transcribe while the engine has not
// finished loading, or after a load failure until Reinitialize succeeds.
var ErrNotReady = errors.New("stt: engine not ready")

// Engine is the abstraction over any transcription backend.
//
// Implementations must be safe for concurrent use, though the controller
// serializes transcriptions and never runs two at once.
type Engine interface {
	// Transcribe runs inference on the full clip and returns the recognised
	// text, trimmed. An empty string with a nil error means the engine heard
	// nothing it could transcribe.
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)

	// Close releases the backend's resources (model memory, connections).
	Close() error
}

// Loader owns an Engine's lifecycle: it runs the load in a background
// goroutine so application startup is not blocked on model load, and it
// gates Transcribe on readiness.
//
// Loader itself implements Engine, so the controller holds a Loader where
// it would hold an Engine.
type Loader struct {
	factory func() (Engine, error)

	mu      sync.Mutex
	engine  Engine
	loadErr error
	loading bool
	closed  bool
	done    chan struct{}
}

var _ Engine = (*Loader)(nil)

// NewLoader creates a Loader around the given engine factory. The factory is
// not called until Load.
func NewLoader(factory func() (Engine, error)) *Loader {
	return &Loader{factory: factory, done: make(chan struct{})}
}

// Load starts the background load. Calling Load while a load is in flight or
// after a successful load is a no-op; calling it after a failed load retries.
func (l *Loader) Load() {
	l.mu.Lock()
	if l.loading || l.closed || l.engine != nil {
		l.mu.Unlock()
		return
	}
	l.loading = true
	l.loadErr = nil
	done := make(chan struct{})
	l.done = done
	l.mu.Unlock()

	go func() {
		started := time.Now()
		engine, err := l.factory()

		l.mu.Lock()
		l.loading = false
		switch {
		case err != nil:
			l.loadErr = fmt.Errorf("stt: load engine: %w", err)
			slog.Error("engine load failed", "err", err, "elapsed", time.Since(started))
		case l.closed:
			// Closed while loading; release the engine we just built.
			if cerr := engine.Close(); cerr != nil {
				slog.Warn("discarded engine close failed", "err", cerr)
			}
		default:
			l.engine = engine
			slog.Info("engine loaded", "elapsed", time.Since(started))
		}
		l.mu.Unlock()
		close(done)
	}()
}

// Ready reports whether the engine finished loading successfully.
func (l *Loader) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine != nil
}

// Err returns the error from the most recent failed load, or nil.
func (l *Loader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadErr
}

// Wait blocks until the current load attempt settles or ctx is cancelled.
// It returns the load error, if any.
func (l *Loader) Wait(ctx context.Context) error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
		return l.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transcribe delegates to the loaded engine, or returns ErrNotReady when the
// load has not completed.
func (l *Loader) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	l.mu.Lock()
	engine := l.engine
	l.mu.Unlock()

	if engine == nil {
		return "", ErrNotReady
	}
	return engine.Transcribe(ctx, clip)
}

// Close releases the loaded engine, if any. A load still in flight finishes
// on its own; its result is discarded and closed.
func (l *Loader) Close() error {
	l.mu.Lock()
	engine := l.engine
	l.engine = nil
	l.closed = true
	l.mu.Unlock()

	if engine == nil {
		return nil
	}
	return engine.Close()
}
