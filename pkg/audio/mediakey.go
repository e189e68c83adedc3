package audio

import (
	"fmt"
	"sync"

	"github.com/go-vgo/robotgo"
)

// MediaKeyEndpoint drives the system mute through the keyboard's mute media
// key. The key is a toggle and the OS offers no way to read the current
// state through it, so the endpoint tracks its own toggles and assumes the
// output starts unmuted. External mute changes made while a session holds
// the muter are therefore not observed — an accepted limitation of the
// media-key transport; a proper endpoint can replace this one without
// touching the [Muter] nesting logic.
type MediaKeyEndpoint struct {
	mu    sync.Mutex
	muted bool
}

// NewMediaKeyEndpoint returns an endpoint assuming the output is unmuted.
func NewMediaKeyEndpoint() *MediaKeyEndpoint {
	return &MediaKeyEndpoint{}
}

// Muted reports the state as tracked by this endpoint's own toggles.
func (e *MediaKeyEndpoint) Muted() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted, nil
}

// SetMuted toggles the media key when the tracked state differs.
func (e *MediaKeyEndpoint) SetMuted(muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.muted == muted {
		return nil
	}
	if err := robotgo.KeyTap("audio_mute"); err != nil {
		return fmt.Errorf("media key tap: %w", err)
	}
	e.muted = muted
	return nil
}
