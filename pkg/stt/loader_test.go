package stt_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/florentcollect/flototext/pkg/audio"
	"github.com/florentcollect/flototext/pkg/stt"
	"github.com/florentcollect/flototext/pkg/stt/mock"
)

func TestLoaderNotReadyBeforeLoad(t *testing.T) {
	t.Parallel()

	l := stt.NewLoader(func() (stt.Engine, error) {
		return &mock.Engine{Fallback: "hello"}, nil
	})

	if l.Ready() {
		t.Fatal("loader reported ready before Load")
	}
	_, err := l.Transcribe(context.Background(), audio.Clip{Samples: []float32{0.1}})
	if !errors.Is(err, stt.ErrNotReady) {
		t.Fatalf("Transcribe error = %v, want ErrNotReady", err)
	}
}

func TestLoaderDelegatesOnceLoaded(t *testing.T) {
	t.Parallel()

	engine := &mock.Engine{Fallback: "bonjour"}
	l := stt.NewLoader(func() (stt.Engine, error) {
		return engine, nil
	})
	l.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !l.Ready() {
		t.Fatal("loader not ready after successful load")
	}

	got, err := l.Transcribe(ctx, audio.Clip{Samples: []float32{0.1}})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "bonjour" {
		t.Fatalf("Transcribe = %q, want %q", got, "bonjour")
	}

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if engine.CloseCalls != 1 {
		t.Fatalf("engine Close calls = %d, want 1", engine.CloseCalls)
	}
}

func TestLoaderLoadFailureThenRetry(t *testing.T) {
	t.Parallel()

	loadErr := errors.New("model file missing")
	attempts := 0
	l := stt.NewLoader(func() (stt.Engine, error) {
		attempts++
		if attempts == 1 {
			return nil, loadErr
		}
		return &mock.Engine{Fallback: "ok"}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l.Load()
	if err := l.Wait(ctx); !errors.Is(err, loadErr) {
		t.Fatalf("Wait after failed load = %v, want %v", err, loadErr)
	}
	if l.Ready() {
		t.Fatal("loader ready after failed load")
	}
	if _, err := l.Transcribe(ctx, audio.Clip{Samples: []float32{0.1}}); !errors.Is(err, stt.ErrNotReady) {
		t.Fatalf("Transcribe after failed load = %v, want ErrNotReady", err)
	}

	// Reinitialisation: a second Load retries the factory.
	l.Load()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait after retry: %v", err)
	}
	if !l.Ready() {
		t.Fatal("loader not ready after retry")
	}
	if attempts != 2 {
		t.Fatalf("factory attempts = %d, want 2", attempts)
	}
}

func TestLoaderLoadIsIdempotentOnceReady(t *testing.T) {
	t.Parallel()

	attempts := 0
	l := stt.NewLoader(func() (stt.Engine, error) {
		attempts++
		return &mock.Engine{}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l.Load()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	l.Load()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait after redundant Load: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("factory attempts = %d, want 1", attempts)
	}
}
