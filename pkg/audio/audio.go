// Package audio defines the microphone capture and system-mute contracts
// used by the session controller.
//
// A Capture is a scoped resource: Start opens the device and begins
// buffering, Stop closes it and hands the accumulated waveform back. Both
// operations are idempotent so the controller can call them defensively on
// every exit path without tracking device state itself. The waveform is
// owned exclusively by one session until it is handed to the transcription
// engine.
package audio

import (
	"context"
	"time"
)

// DefaultSampleRate is the capture sample rate in Hz. Speech models are
// trained on 16 kHz mono, so the device is opened at that rate directly
// instead of resampling afterwards.
const DefaultSampleRate = 16000

// Clip is the waveform accumulated by one capture session: 32-bit float
// mono PCM samples in [-1, 1].
type Clip struct {
	// Samples is the raw mono waveform. May be empty when the device
	// produced no data or Stop was called on a not-started capture.
	Samples []float32

	// SampleRate is the rate Samples was captured at, in Hz.
	SampleRate int

	// Duration is the wall-clock length of the capture, measured from
	// Start to Stop. It may exceed the sample-derived duration when the
	// device drops frames.
	Duration time.Duration
}

// Empty reports whether the clip contains no audio at all.
func (c Clip) Empty() bool {
	return len(c.Samples) == 0
}

// Capture records from the default input device.
//
// Implementations must be safe for concurrent use; the controller calls
// Start and Stop from its control goroutine while the device delivers
// samples on its own thread.
type Capture interface {
	// Start opens the input device and begins buffering. Starting an
	// already-running capture is a no-op. Returns an error when the device
	// cannot be opened (treated as a DeviceError by the controller).
	Start(ctx context.Context) error

	// Stop closes the device and returns everything buffered since Start.
	// Stopping a capture that is not running returns an empty Clip rather
	// than an error.
	Stop() (Clip, error)
}

// Endpoint abstracts the system output mute control. Muted reports the
// current state; SetMuted forces it. Implementations that cannot read the
// real device state may track their own toggles instead.
type Endpoint interface {
	Muted() (bool, error)
	SetMuted(muted bool) error
}
