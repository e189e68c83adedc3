// Package insert places resolved text into the application the user is
// dictating into. The transport is the clipboard plus a synthetic Ctrl-V:
// simulated keystrokes cannot type arbitrary unicode reliably, but every
// application accepts a paste.
package insert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-vgo/robotgo"
)

// restoreDelay is how long to wait after the paste keystroke before putting
// the previous clipboard content back. Pasting reads the clipboard
// asynchronously in the target application; restoring too early races it.
const restoreDelay = 300 * time.Millisecond

// Inserter delivers text via clipboard and paste keystroke.
//
// Delivery is deliberately lenient: once the text is on the clipboard the
// insertion counts as successful even if the paste keystroke fails, because
// the user can still paste by hand. Only a clipboard write failure is a real
// failure — then the text exists nowhere the user can reach.
type Inserter struct {
	readClipboard  func() (string, error)
	writeClipboard func(string) error
	paste          func() error
	sleep          func(time.Duration)
}

// Option is a functional option for Inserter, used by tests to stub the
// clipboard and keystroke transports.
type Option func(*Inserter)

// WithClipboard replaces the clipboard read/write functions.
func WithClipboard(read func() (string, error), write func(string) error) Option {
	return func(i *Inserter) {
		i.readClipboard = read
		i.writeClipboard = write
	}
}

// WithPaste replaces the paste keystroke function.
func WithPaste(paste func() error) Option {
	return func(i *Inserter) {
		i.paste = paste
	}
}

// WithSleep replaces the restore-delay sleep.
func WithSleep(sleep func(time.Duration)) Option {
	return func(i *Inserter) {
		i.sleep = sleep
	}
}

// New creates an Inserter using the system clipboard and keyboard.
func New(opts ...Option) *Inserter {
	i := &Inserter{
		readClipboard:  robotgo.ReadAll,
		writeClipboard: robotgo.WriteAll,
		paste: func() error {
			return robotgo.KeyTap("v", "ctrl")
		},
		sleep: time.Sleep,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Insert puts text into the focused application.
//
// The previous clipboard content is restored after a successful paste. When
// the paste keystroke fails the text is left on the clipboard on purpose:
// that clipboard copy is the fallback the lenient policy relies on.
func (i *Inserter) Insert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("insert: context already cancelled: %w", err)
	}
	if text == "" {
		return nil
	}

	previous, err := i.readClipboard()
	if err != nil {
		// Restore becomes impossible but delivery can still proceed.
		slog.Warn("clipboard read failed, previous content will not be restored", "err", err)
		previous = ""
	}

	if err := i.writeClipboard(text); err != nil {
		return fmt.Errorf("insert: write clipboard: %w", err)
	}

	if err := i.paste(); err != nil {
		slog.Warn("paste keystroke failed, text left on clipboard", "err", err)
		return nil
	}

	i.sleep(restoreDelay)
	if err := i.writeClipboard(previous); err != nil {
		slog.Warn("clipboard restore failed", "err", err)
	}
	return nil
}
