package insert

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClipboard records writes and serves a fixed initial content.
type fakeClipboard struct {
	content  string
	readErr  error
	writeErr error
	writes   []string
}

func (f *fakeClipboard) read() (string, error) {
	if f.readErr != nil {
		return "", f.readErr
	}
	return f.content, nil
}

func (f *fakeClipboard) write(s string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, s)
	f.content = s
	return nil
}

func newTestInserter(clip *fakeClipboard, paste func() error) *Inserter {
	return New(
		WithClipboard(clip.read, clip.write),
		WithPaste(paste),
		WithSleep(func(time.Duration) {}),
	)
}

func TestInsertPastesAndRestoresClipboard(t *testing.T) {
	t.Parallel()

	clip := &fakeClipboard{content: "contenu précédent"}
	pastes := 0
	ins := newTestInserter(clip, func() error { pastes++; return nil })

	if err := ins.Insert(context.Background(), "texte dicté"); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if pastes != 1 {
		t.Fatalf("paste calls = %d, want 1", pastes)
	}
	want := []string{"texte dicté", "contenu précédent"}
	if len(clip.writes) != 2 || clip.writes[0] != want[0] || clip.writes[1] != want[1] {
		t.Fatalf("clipboard writes = %v, want %v", clip.writes, want)
	}
}

func TestInsertPasteFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	clip := &fakeClipboard{content: "avant"}
	ins := newTestInserter(clip, func() error { return errors.New("no focused window") })

	if err := ins.Insert(context.Background(), "texte"); err != nil {
		t.Fatalf("Insert = %v, want nil despite paste failure", err)
	}
	// The dictated text must stay on the clipboard as the manual fallback.
	if clip.content != "texte" {
		t.Fatalf("clipboard content = %q, want %q", clip.content, "texte")
	}
}

func TestInsertClipboardWriteFailureFails(t *testing.T) {
	t.Parallel()

	clip := &fakeClipboard{writeErr: errors.New("clipboard busy")}
	ins := newTestInserter(clip, func() error {
		t.Fatal("paste must not run when the clipboard write failed")
		return nil
	})

	if err := ins.Insert(context.Background(), "texte"); err == nil {
		t.Fatal("expected error when clipboard write fails")
	}
}

func TestInsertClipboardReadFailureIsTolerated(t *testing.T) {
	t.Parallel()

	clip := &fakeClipboard{readErr: errors.New("clipboard locked")}
	ins := newTestInserter(clip, func() error { return nil })

	if err := ins.Insert(context.Background(), "texte"); err != nil {
		t.Fatalf("Insert = %v, want nil despite read failure", err)
	}
}

func TestInsertEmptyTextIsNoop(t *testing.T) {
	t.Parallel()

	clip := &fakeClipboard{content: "intact"}
	ins := newTestInserter(clip, func() error {
		t.Fatal("paste must not run for empty text")
		return nil
	})

	if err := ins.Insert(context.Background(), ""); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if len(clip.writes) != 0 {
		t.Fatalf("clipboard writes = %v, want none", clip.writes)
	}
}
