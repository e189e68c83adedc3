// Package portaudio implements the audio.Capture contract on top of the
// PortAudio bindings, reading from the system's default input device.
package portaudio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/florentcollect/flototext/pkg/audio"
)

// framesPerBuffer is the PortAudio callback granularity: 512 frames at
// 16 kHz is 32 ms per callback.
const framesPerBuffer = 512

// library initialisation is process-wide and must happen exactly once
// before the first stream is opened.
var (
	initOnce sync.Once
	initErr  error
)

func ensureInit() error {
	initOnce.Do(func() {
		initErr = portaudio.Initialize()
	})
	return initErr
}

// Capture records 16-bit-depth-equivalent float32 mono audio from the
// default input device. It implements [audio.Capture].
type Capture struct {
	sampleRate int

	mu        sync.Mutex
	stream    *portaudio.Stream
	samples   []float32
	running   bool
	startedAt time.Time
}

// Compile-time assertion that Capture satisfies audio.Capture.
var _ audio.Capture = (*Capture)(nil)

// New creates a Capture at the given sample rate. Pass 0 for the default
// 16 kHz.
func New(sampleRate int) *Capture {
	if sampleRate <= 0 {
		sampleRate = audio.DefaultSampleRate
	}
	return &Capture{sampleRate: sampleRate}
}

// Start opens the default input device and begins buffering samples.
// Starting a running capture is a no-op.
func (c *Capture) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("portaudio: context already cancelled: %w", err)
	}
	if err := ensureInit(); err != nil {
		return fmt.Errorf("portaudio: initialise library: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	stream, err := portaudio.OpenDefaultStream(
		1, 0, float64(c.sampleRate), framesPerBuffer, c.onInput,
	)
	if err != nil {
		return fmt.Errorf("portaudio: open default input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("portaudio: start stream: %w", err)
	}

	c.stream = stream
	c.samples = c.samples[:0]
	c.running = true
	c.startedAt = time.Now()
	return nil
}

// onInput is the PortAudio callback. It runs on the audio thread; the only
// work done here is appending to the buffer under the lock.
func (c *Capture) onInput(in []float32) {
	c.mu.Lock()
	if c.running {
		c.samples = append(c.samples, in...)
	}
	c.mu.Unlock()
}

// Stop closes the device and returns the accumulated waveform. Stopping a
// capture that is not running returns an empty clip.
func (c *Capture) Stop() (audio.Clip, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return audio.Clip{SampleRate: c.sampleRate}, nil
	}
	c.running = false
	duration := time.Since(c.startedAt)

	if err := c.stream.Stop(); err != nil {
		slog.Warn("portaudio: stream stop error", "err", err)
	}
	if err := c.stream.Close(); err != nil {
		slog.Warn("portaudio: stream close error", "err", err)
	}
	c.stream = nil

	clip := audio.Clip{
		Samples:    c.samples,
		SampleRate: c.sampleRate,
		Duration:   duration,
	}
	c.samples = nil
	return clip, nil
}
