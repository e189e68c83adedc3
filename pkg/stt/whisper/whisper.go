// This file contains the Engine implementation backed by the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/florentcollect/flototext/pkg/audio"
	"github.com/florentcollect/flototext/pkg/stt"
)

const defaultLanguage = "fr"

// Compile-time assertion that Engine satisfies stt.Engine.
var _ stt.Engine = (*Engine)(nil)

// Engine implements stt.Engine using whisper.cpp Go bindings (CGO), so no
// transcription service needs to run alongside the application. The model is
// loaded once in New and shared by every transcription.
type Engine struct {
	model    whisperlib.Model
	language string
	threads  uint
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the BCP-47 language code for transcription (e.g. "en",
// "de", "fr"). Defaults to "fr".
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithThreads caps the number of CPU threads used per inference. Zero lets
// whisper.cpp pick.
func WithThreads(n uint) Option {
	return func(e *Engine) { e.threads = n }
}

// New creates an Engine that loads the whisper.cpp model from the given file
// path. Loading a medium model takes seconds and hundreds of megabytes of
// memory; run it through an stt.Loader. The caller must call Close when the
// engine is no longer needed.
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	e := &Engine{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Close releases the whisper model.
func (e *Engine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}

// Transcribe runs whisper.cpp inference on the whole clip using a fresh
// context and returns the concatenated segment text. Each context is NOT
// thread-safe, but the model can be shared across goroutines.
func (e *Engine) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if clip.Empty() {
		return "", nil
	}

	samples := clip.Samples
	if clip.SampleRate != audio.DefaultSampleRate {
		// whisper.cpp only accepts 16 kHz input.
		samples = audio.Resample(samples, clip.SampleRate, audio.DefaultSampleRate)
	}

	wctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(e.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", e.language, "err", err)
	}
	if e.threads > 0 {
		wctx.SetThreads(e.threads)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
