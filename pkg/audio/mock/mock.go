// Package mock provides in-memory mock implementations of the
// [audio.Capture] and [audio.Endpoint] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
package mock

import (
	"context"
	"sync"

	"github.com/florentcollect/flototext/pkg/audio"
)

// Capture is a scripted [audio.Capture]. Set StartErr or StopErr to make
// the next Start or Stop fail and NextClip to control what Stop returns.
type Capture struct {
	mu sync.Mutex

	// StartErr, when non-nil, is returned (and cleared) by the next Start.
	StartErr error

	// StopErr, when non-nil, is returned (and cleared) by the next Stop of
	// a running capture. The capture still stops; a dead device does not
	// keep recording.
	StopErr error

	// NextClip is returned by Stop while the capture is running.
	NextClip audio.Clip

	running    bool
	StartCalls int
	StopCalls  int
}

var _ audio.Capture = (*Capture)(nil)

func (c *Capture) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.StartCalls++
	if c.StartErr != nil {
		err := c.StartErr
		c.StartErr = nil
		return err
	}
	c.running = true
	return nil
}

func (c *Capture) Stop() (audio.Clip, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.StopCalls++
	if !c.running {
		return audio.Clip{SampleRate: audio.DefaultSampleRate}, nil
	}
	c.running = false
	if c.StopErr != nil {
		err := c.StopErr
		c.StopErr = nil
		return audio.Clip{}, err
	}
	return c.NextClip, nil
}

// Running reports whether the mock capture is currently started.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Endpoint is a scripted [audio.Endpoint] that records every SetMuted call.
type Endpoint struct {
	mu sync.Mutex

	// MutedState is the state reported by Muted. Tests may flip it
	// directly to simulate an external mute change.
	MutedState bool

	// MutedErr and SetErr force the corresponding call to fail.
	MutedErr error
	SetErr   error

	// SetCalls records the sequence of SetMuted arguments.
	SetCalls []bool
}

var _ audio.Endpoint = (*Endpoint)(nil)

func (e *Endpoint) Muted() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.MutedErr != nil {
		return false, e.MutedErr
	}
	return e.MutedState, nil
}

func (e *Endpoint) SetMuted(muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SetErr != nil {
		return e.SetErr
	}
	e.SetCalls = append(e.SetCalls, muted)
	e.MutedState = muted
	return nil
}
