// Package hotkey turns a global push-to-talk key into press and release
// callbacks. The key is registered system-wide, so dictation works no matter
// which application has focus.
package hotkey

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.design/x/hotkey"
)

// Binding is a parsed hotkey specification.
type Binding struct {
	Key  hotkey.Key
	Mods []hotkey.Modifier
}

var keyNames = map[string]hotkey.Key{
	"f1": hotkey.KeyF1, "f2": hotkey.KeyF2, "f3": hotkey.KeyF3,
	"f4": hotkey.KeyF4, "f5": hotkey.KeyF5, "f6": hotkey.KeyF6,
	"f7": hotkey.KeyF7, "f8": hotkey.KeyF8, "f9": hotkey.KeyF9,
	"f10": hotkey.KeyF10, "f11": hotkey.KeyF11, "f12": hotkey.KeyF12,
	"space":  hotkey.KeySpace,
	"return": hotkey.KeyReturn,
	"escape": hotkey.KeyEscape,
	"tab":    hotkey.KeyTab,
	"a":      hotkey.KeyA, "b": hotkey.KeyB, "c": hotkey.KeyC,
	"d": hotkey.KeyD, "e": hotkey.KeyE, "f": hotkey.KeyF,
	"g": hotkey.KeyG, "h": hotkey.KeyH, "i": hotkey.KeyI,
	"j": hotkey.KeyJ, "k": hotkey.KeyK, "l": hotkey.KeyL,
	"m": hotkey.KeyM, "n": hotkey.KeyN, "o": hotkey.KeyO,
	"p": hotkey.KeyP, "q": hotkey.KeyQ, "r": hotkey.KeyR,
	"s": hotkey.KeyS, "t": hotkey.KeyT, "u": hotkey.KeyU,
	"v": hotkey.KeyV, "w": hotkey.KeyW, "x": hotkey.KeyX,
	"y": hotkey.KeyY, "z": hotkey.KeyZ,
}

var modNames = map[string]hotkey.Modifier{
	"ctrl":  hotkey.ModCtrl,
	"shift": hotkey.ModShift,
	"alt":   hotkey.ModAlt,
	"win":   hotkey.ModWin,
}

// ParseBinding parses specs like "f2", "ctrl+shift+space". The last segment
// is the key; everything before it is a modifier. Matching is
// case-insensitive.
func ParseBinding(spec string) (Binding, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(spec)), "+")
	if len(parts) == 0 || parts[0] == "" {
		return Binding{}, fmt.Errorf("hotkey: empty binding")
	}

	var b Binding
	for _, part := range parts[:len(parts)-1] {
		part = strings.TrimSpace(part)
		mod, ok := modNames[part]
		if !ok {
			return Binding{}, fmt.Errorf("hotkey: unknown modifier %q in %q", part, spec)
		}
		b.Mods = append(b.Mods, mod)
	}

	name := strings.TrimSpace(parts[len(parts)-1])
	key, ok := keyNames[name]
	if !ok {
		return Binding{}, fmt.Errorf("hotkey: unknown key %q in %q", name, spec)
	}
	b.Key = key
	return b, nil
}

// Listener registers the binding and forwards press/release transitions to
// the given callbacks.
type Listener struct {
	binding Binding
	onDown  func()
	onUp    func()
}

// NewListener creates a listener. Callbacks run on the listener goroutine
// and must not block.
func NewListener(binding Binding, onDown, onUp func()) *Listener {
	return &Listener{binding: binding, onDown: onDown, onUp: onUp}
}

// Run registers the hotkey and forwards events until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	hk := hotkey.New(l.binding.Mods, l.binding.Key)
	if err := hk.Register(); err != nil {
		return fmt.Errorf("hotkey: register %v: %w", hk, err)
	}
	defer func() {
		if err := hk.Unregister(); err != nil {
			slog.Warn("hotkey unregister failed", "err", err)
		}
	}()
	slog.Info("push-to-talk key registered", "hotkey", hk.String())

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hk.Keydown():
			l.onDown()
		case <-hk.Keyup():
			l.onUp()
		}
	}
}
