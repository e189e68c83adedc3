// Package events defines the one-way event stream emitted by the session
// controller and consumed by downstream observers (tray icon, notifications,
// logging). Observers never feed anything back: the controller resolves
// sessions on its own schedule and the stream is delivered best-effort, so
// consumers must tolerate events arriving after some delay.
package events

import (
	"time"

	"github.com/rs/xid"
)

// State is the controller's externally visible state.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateProcessing State = "processing"
	StateError      State = "error"
)

// Status is the terminal outcome of one push-to-talk session.
type Status string

const (
	// StatusSuccess means text was delivered to the user. Clipboard-only
	// delivery still counts: the success criterion is "text available",
	// not "text visibly inserted".
	StatusSuccess Status = "success"

	// StatusEmptyAudio means the gesture was too short to contain speech.
	// Sessions ending this way are silent — no error is raised.
	StatusEmptyAudio Status = "empty_audio"

	// StatusEngineError means the transcription engine failed.
	StatusEngineError Status = "engine_error"

	// StatusCancelled means the session was aborted before resolution,
	// e.g. because the capture device dropped out mid-recording.
	StatusCancelled Status = "cancelled"
)

// Type discriminates event payloads in an [Envelope].
type Type string

const (
	TypeStateChanged    Type = "state_changed"
	TypeSessionResolved Type = "session_resolved"
	TypeErrorRaised     Type = "error_raised"
)

// StateChanged reports a controller state transition.
type StateChanged struct {
	Previous State
	Current  State
}

// SessionResolved reports the terminal outcome of a session. Text is the
// corrected transcription for successful sessions and empty otherwise.
type SessionResolved struct {
	Status   Status
	Text     string
	Duration time.Duration
}

// ErrorRaised carries a user-visible error description. Emitted for device
// and engine failures only; empty-audio sessions and insertion or
// persistence failures never raise one.
type ErrorRaised struct {
	Reason string
}

// Envelope wraps one event with its identity and emission time.
type Envelope struct {
	ID        string
	Type      Type
	Timestamp time.Time

	// Data is one of [StateChanged], [SessionResolved], or [ErrorRaised],
	// according to Type.
	Data any
}

// newEnvelope stamps a payload with a fresh ID and the current time.
func newEnvelope(t Type, data any) Envelope {
	return Envelope{
		ID:        xid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
