// Package openai provides a transcription engine backed by the OpenAI
// audio API (or any compatible server, such as a local whisper server
// exposing /v1/audio/transcriptions).
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/florentcollect/flototext/pkg/audio"
	"github.com/florentcollect/flototext/pkg/stt"
)

// Compile-time assertion that Engine satisfies stt.Engine.
var _ stt.Engine = (*Engine)(nil)

// Engine implements stt.Engine over the OpenAI transcription endpoint.
type Engine struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the engine.
type config struct {
	baseURL  string
	timeout  time.Duration
	language string
}

// Option is a functional option for Engine.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, e.g. to point at a
// local OpenAI-compatible transcription server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithLanguage sets the ISO-639-1 language hint sent with each request.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// New constructs a remote transcription Engine.
func New(apiKey string, model string, opts ...Option) (*Engine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = string(oai.AudioModelWhisper1)
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Engine{client: client, model: model, language: cfg.language}, nil
}

// Transcribe wraps the clip as a 16-bit WAV and posts it to the
// transcription endpoint.
func (e *Engine) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if clip.Empty() {
		return "", nil
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(encodeWAV(clip)), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(e.model),
	}
	if e.language != "" {
		params.Language = oai.String(e.language)
	}

	resp, err := e.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Close implements stt.Engine. The HTTP client holds no resources that need
// explicit release.
func (e *Engine) Close() error {
	return nil
}
