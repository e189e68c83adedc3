package corrector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "corrections.json")
	if err := os.WriteFile(path, []byte(`{"corrections": {"a": "b"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	dict, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	corr := New(dict)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- NewWatcher(path, corr).Run(ctx) }()

	// Give the watcher a moment to establish the directory watch.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(`{"corrections": {"a": "b", "c": "d"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for corr.Snapshot().Len() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("dictionary not reloaded, rules = %d", corr.Snapshot().Len())
		}
		time.Sleep(20 * time.Millisecond)
	}

	// A broken save keeps the previous dictionary.
	if err := os.WriteFile(path, []byte(`{"corrections": [`), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := corr.Snapshot().Len(); got != 2 {
		t.Fatalf("broken file replaced dictionary, rules = %d", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
