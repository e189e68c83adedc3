package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Muter silences system output for the duration of a recording so that
// speaker playback does not bleed into the microphone.
//
// Enter and Exit form a nest, not a toggle: Enter records the endpoint's
// mute state and Exit restores exactly that state. If the user had already
// muted their output before recording, it stays muted afterwards. Both
// calls are idempotent — repeated Enter while held, or Exit while not held,
// are no-ops — which lets the controller run Exit unconditionally on every
// session exit path.
type Muter struct {
	endpoint Endpoint
	enabled  bool

	mu       sync.Mutex
	held     bool
	wasMuted bool
}

// NewMuter creates a Muter over the given endpoint. When enabled is false
// the muter does nothing; the controller keeps calling it regardless.
func NewMuter(endpoint Endpoint, enabled bool) *Muter {
	return &Muter{endpoint: endpoint, enabled: enabled}
}

// SetEnabled turns muting on or off at runtime. Disabling while held
// releases the mute immediately so the user is not left silenced.
func (m *Muter) SetEnabled(enabled bool) {
	m.mu.Lock()
	m.enabled = enabled
	restore := !enabled && m.held
	m.mu.Unlock()

	if restore {
		if err := m.Exit(); err != nil {
			slog.Warn("muter: release on disable failed", "err", err)
		}
	}
}

// Enter saves the current mute state and mutes the output. Returns nil when
// muting is disabled or already held.
func (m *Muter) Enter() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled || m.endpoint == nil || m.held {
		return nil
	}

	muted, err := m.endpoint.Muted()
	if err != nil {
		return fmt.Errorf("muter: read mute state: %w", err)
	}
	m.wasMuted = muted

	if !muted {
		if err := m.endpoint.SetMuted(true); err != nil {
			return fmt.Errorf("muter: mute: %w", err)
		}
	}
	m.held = true
	return nil
}

// Exit restores the mute state saved by the matching Enter. A no-op when
// the muter is not held.
func (m *Muter) Exit() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.held {
		return nil
	}
	m.held = false

	if m.endpoint == nil || m.wasMuted {
		// Output was muted before we entered; leave it that way.
		return nil
	}
	if err := m.endpoint.SetMuted(false); err != nil {
		return fmt.Errorf("muter: unmute: %w", err)
	}
	return nil
}

// NopEndpoint is an [Endpoint] that controls nothing. Used on platforms
// without a supported mute control and in tests that don't care about mute.
type NopEndpoint struct{}

func (NopEndpoint) Muted() (bool, error) { return false, nil }
func (NopEndpoint) SetMuted(bool) error { return nil }
