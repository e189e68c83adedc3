// Package controller implements the push-to-talk session state machine.
//
// A single control goroutine owns the state and processes events (key
// presses, engine completions, reinitialisation requests) strictly in
// arrival order. Transcription runs on its own goroutine and reports back
// as an event, so a slow inference never blocks key handling. The
// controller guarantees at most one open capture and at most one in-flight
// transcription at any time.
package controller

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/florentcollect/flototext/internal/corrector"
	"github.com/florentcollect/flototext/internal/history"
	"github.com/florentcollect/flototext/internal/observe"
	"github.com/florentcollect/flototext/pkg/audio"
	"github.com/florentcollect/flototext/pkg/events"
	"github.com/florentcollect/flototext/pkg/stt"
)

// DefaultMinDuration is the shortest capture worth transcribing. Shorter
// presses are accidental taps and resolve silently.
const DefaultMinDuration = 200 * time.Millisecond

// Inserter delivers resolved text to the focused application.
type Inserter interface {
	Insert(ctx context.Context, text string) error
}

type eventKind int

const (
	evKeyDown eventKind = iota
	evKeyUp
	evEngineDone
	evLoadFailed
	evReinit
	evReinitDone
)

// event is one unit of work for the control goroutine.
type event struct {
	kind eventKind

	// engine completion
	text       string
	err        error
	engineTime time.Duration
}

// session tracks the gesture currently owned by the control goroutine.
type session struct {
	startedAt  time.Time
	captureDur time.Duration
}

// Config holds all dependencies for a [Controller].
type Config struct {
	Capture   audio.Capture
	Muter     *audio.Muter
	Engine    stt.Engine
	Corrector *corrector.Corrector
	Inserter  Inserter

	// History may be nil; appends are then skipped.
	History history.Store

	// Publisher receives the UI event stream. May be nil.
	Publisher *events.Publisher

	// Metrics may be nil; no metrics are recorded then.
	Metrics *observe.Metrics

	// Ready reports whether the engine can accept work. Nil means always
	// ready. LoadErr distinguishes "still loading" (nil) from "load failed"
	// (non-nil); a failed load puts the controller in a persistent error
	// state that only Reinitialize clears.
	Ready   func() bool
	LoadErr func() error

	// Reload retries the engine load for Reinitialize. Nil disables
	// reinitialisation.
	Reload func(ctx context.Context) error

	// MinDuration overrides [DefaultMinDuration] when positive.
	MinDuration time.Duration
}

// Controller is the push-to-talk session state machine. Create with [New],
// drive with [Controller.Run], and feed it through [Controller.KeyDown],
// [Controller.KeyUp], and [Controller.Reinitialize].
type Controller struct {
	capture   audio.Capture
	muter     *audio.Muter
	engine    stt.Engine
	corrector *corrector.Corrector
	inserter  Inserter
	store     history.Store
	publisher *events.Publisher
	metrics   *observe.Metrics

	ready   func() bool
	loadErr func() error
	reload  func(ctx context.Context) error

	// minDuration in nanoseconds; read by the control goroutine, written by
	// config reload.
	minDuration atomic.Int64

	events chan event

	// stateMu guards state for external readers; the control goroutine is
	// the only writer.
	stateMu sync.Mutex
	state   events.State

	// control-goroutine-only fields
	cur     session
	pending bool
	sticky  bool

	wg sync.WaitGroup
}

// New creates a Controller in the Idle state. Run must be called before
// events are processed.
func New(cfg Config) *Controller {
	c := &Controller{
		capture:   cfg.Capture,
		muter:     cfg.Muter,
		engine:    cfg.Engine,
		corrector: cfg.Corrector,
		inserter:  cfg.Inserter,
		store:     cfg.History,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		ready:     cfg.Ready,
		loadErr:   cfg.LoadErr,
		reload:    cfg.Reload,
		events:    make(chan event, 128),
		state:     events.StateIdle,
	}
	min := cfg.MinDuration
	if min <= 0 {
		min = DefaultMinDuration
	}
	c.minDuration.Store(int64(min))
	return c
}

// KeyDown reports that the push-to-talk key went down.
func (c *Controller) KeyDown() { c.enqueue(event{kind: evKeyDown}) }

// KeyUp reports that the push-to-talk key was released.
func (c *Controller) KeyUp() { c.enqueue(event{kind: evKeyUp}) }

// Reinitialize retries the engine load after a persistent failure.
func (c *Controller) Reinitialize() { c.enqueue(event{kind: evReinit}) }

// EngineLoadFailed reports that the background engine load failed. The
// controller enters the persistent Error state until Reinitialize succeeds.
func (c *Controller) EngineLoadFailed(err error) {
	c.enqueue(event{kind: evLoadFailed, err: err})
}

// SetMinDuration changes the empty-audio threshold at runtime.
func (c *Controller) SetMinDuration(d time.Duration) {
	if d >= 0 {
		c.minDuration.Store(int64(d))
	}
}

// State returns the current controller state.
func (c *Controller) State() events.State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Controller) enqueue(ev event) {
	select {
	case c.events <- ev:
	default:
		// The loop never blocks longer than a mute toggle or a clipboard
		// write, so a full queue means something is badly wrong upstream.
		slog.Warn("controller event dropped: queue full", "kind", ev.kind)
	}
}

// Run processes events until ctx is cancelled. It is the only goroutine
// that mutates controller state.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

func (c *Controller) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evKeyDown:
		c.onKeyDown(ctx)
	case evKeyUp:
		c.onKeyUp(ctx)
	case evEngineDone:
		c.onEngineDone(ctx, ev)
	case evLoadFailed:
		c.onLoadFailed(ev)
	case evReinit:
		c.onReinit(ctx)
	case evReinitDone:
		c.onReinitDone(ev)
	}
}

func (c *Controller) onKeyDown(ctx context.Context) {
	switch c.State() {
	case events.StateIdle:
		c.startSession(ctx)
	case events.StateRecording:
		// Key repeat from the OS while held; one physical press, one session.
	case events.StateProcessing:
		// Remember at most one retrigger; a newer press simply replaces it.
		c.pending = true
	case events.StateError:
		slog.Debug("key press rejected: engine unavailable until reinitialisation")
	}
}

func (c *Controller) onKeyUp(ctx context.Context) {
	switch c.State() {
	case events.StateRecording:
		c.stopRecording(ctx)
	case events.StateProcessing:
		if c.pending {
			// The retrigger press was released before the current session
			// resolved. Honouring it now would open a capture no KeyUp will
			// ever close; a press that short resolves as empty audio anyway.
			c.pending = false
		}
	default:
		// Stray release (e.g. the key was down before startup).
	}
}

// startSession begins a new capture, or raises the appropriate error when
// the engine is unavailable.
func (c *Controller) startSession(ctx context.Context) {
	if c.ready != nil && !c.ready() {
		if c.loadErr != nil && c.loadErr() != nil {
			c.enterPersistentError("transcription engine failed to load: " + c.loadErr().Error())
			return
		}
		c.raiseTransientError("transcription engine is still loading")
		return
	}

	if err := c.muter.Enter(); err != nil {
		// Recording without muting is degraded, not broken.
		slog.Warn("system mute failed, recording anyway", "err", err)
	}
	if err := c.capture.Start(ctx); err != nil {
		if exitErr := c.muter.Exit(); exitErr != nil {
			slog.Warn("mute release failed", "err", exitErr)
		}
		c.raiseTransientError("microphone unavailable: " + err.Error())
		return
	}

	c.cur = session{startedAt: time.Now()}
	if c.metrics != nil {
		c.metrics.ActiveRecordings.Add(ctx, 1)
	}
	c.setState(events.StateRecording)
}

// stopRecording closes the capture and either resolves the session as empty
// audio or hands the clip to the engine.
func (c *Controller) stopRecording(ctx context.Context) {
	clip, err := c.capture.Stop()
	if exitErr := c.muter.Exit(); exitErr != nil {
		slog.Warn("mute release failed", "err", exitErr)
	}
	if c.metrics != nil {
		c.metrics.ActiveRecordings.Add(ctx, -1)
	}

	if err != nil {
		c.raiseTransientError("capture device error: " + err.Error())
		c.resolve(ctx, events.StatusCancelled, "", 0)
		return
	}

	c.cur.captureDur = clip.Duration
	if c.metrics != nil {
		c.metrics.CaptureDuration.Record(ctx, clip.Duration.Seconds())
	}

	if clip.Empty() || clip.Duration < time.Duration(c.minDuration.Load()) {
		// Too short to contain speech; resolve silently without touching
		// the engine.
		c.resolve(ctx, events.StatusEmptyAudio, "", 0)
		return
	}

	c.setState(events.StateProcessing)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		started := time.Now()
		text, err := c.engine.Transcribe(ctx, clip)
		c.enqueue(event{
			kind:       evEngineDone,
			text:       text,
			err:        err,
			engineTime: time.Since(started),
		})
	}()
}

// onEngineDone finishes the Processing state: correction, insertion, and
// history for successes; a visible error for failures.
func (c *Controller) onEngineDone(ctx context.Context, ev event) {
	if c.State() != events.StateProcessing {
		// Completion for a session torn down during shutdown.
		return
	}

	if ev.err != nil {
		c.raiseTransientError("transcription failed: " + ev.err.Error())
		c.resolve(ctx, events.StatusEngineError, "", ev.engineTime)
		return
	}

	text := strings.TrimSpace(ev.text)
	if text == "" {
		// The engine heard nothing usable; same silent outcome as a short
		// press.
		c.resolve(ctx, events.StatusEmptyAudio, "", ev.engineTime)
		return
	}

	corrected := c.corrector.Snapshot().Apply(text)
	if err := c.inserter.Insert(ctx, corrected); err != nil {
		// Insertion problems never fail the session.
		slog.Error("text insertion failed", "err", err)
	}
	c.appendHistory(corrected)
	c.resolve(ctx, events.StatusSuccess, corrected, ev.engineTime)
}

// appendHistory persists the transcription in the background. Failures are
// logged and counted, never surfaced.
func (c *Controller) appendHistory(text string) {
	if c.store == nil {
		return
	}
	at := time.Now()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := c.store.Append(ctx, text, at); err != nil {
			slog.Error("history append failed", "err", err)
			if c.metrics != nil {
				c.metrics.HistoryAppendFailures.Add(ctx, 1)
			}
		}
	}()
}

// resolve reports the session outcome, returns to Idle, and honours a
// pending retrigger.
func (c *Controller) resolve(ctx context.Context, status events.Status, text string, engineTime time.Duration) {
	c.emit(events.TypeSessionResolved, events.SessionResolved{
		Status:   status,
		Text:     text,
		Duration: c.cur.captureDur,
	})
	if c.metrics != nil {
		c.metrics.RecordSessionResolved(ctx, string(status), engineTime)
	}
	c.cur = session{}
	c.setState(events.StateIdle)

	if c.pending {
		c.pending = false
		c.startSession(ctx)
	}
}

// raiseTransientError surfaces a recoverable failure: the state dips into
// Error just long enough to emit the signal, then returns to Idle.
func (c *Controller) raiseTransientError(reason string) {
	c.setState(events.StateError)
	c.emit(events.TypeErrorRaised, events.ErrorRaised{Reason: reason})
	if c.metrics != nil {
		c.metrics.RecordSessionError(context.Background(), reason)
	}
	c.setState(events.StateIdle)
}

// enterPersistentError puts the controller in the rejecting Error state
// that only a successful Reinitialize clears.
func (c *Controller) enterPersistentError(reason string) {
	c.sticky = true
	c.setState(events.StateError)
	c.emit(events.TypeErrorRaised, events.ErrorRaised{Reason: reason})
	if c.metrics != nil {
		c.metrics.RecordSessionError(context.Background(), reason)
	}
}

// onLoadFailed surfaces a failed background engine load without waiting for
// a key press.
func (c *Controller) onLoadFailed(ev event) {
	if c.sticky {
		return
	}
	if st := c.State(); st != events.StateIdle && st != events.StateError {
		// A session is live against a previously working engine; the
		// failure will surface on the next press.
		return
	}
	c.enterPersistentError("transcription engine failed to load: " + ev.err.Error())
}

func (c *Controller) onReinit(ctx context.Context) {
	if c.reload == nil {
		slog.Warn("reinitialisation requested but no reload is configured")
		return
	}
	slog.Info("reinitialising transcription engine")
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.reload(ctx)
		c.enqueue(event{kind: evReinitDone, err: err})
	}()
}

func (c *Controller) onReinitDone(ev event) {
	if ev.err != nil {
		slog.Error("engine reinitialisation failed", "err", ev.err)
		if c.sticky {
			c.emit(events.TypeErrorRaised, events.ErrorRaised{
				Reason: "reinitialisation failed: " + ev.err.Error(),
			})
		}
		return
	}
	slog.Info("engine reinitialised")
	if c.sticky {
		c.sticky = false
		c.setState(events.StateIdle)
	}
}

// shutdown releases the capture and mute if a recording was open when the
// context was cancelled, then waits for background work to settle.
func (c *Controller) shutdown() {
	if c.State() == events.StateRecording {
		if _, err := c.capture.Stop(); err != nil {
			slog.Warn("capture stop during shutdown failed", "err", err)
		}
		if err := c.muter.Exit(); err != nil {
			slog.Warn("mute release during shutdown failed", "err", err)
		}
	}
	c.wg.Wait()
}

func (c *Controller) setState(next events.State) {
	c.stateMu.Lock()
	prev := c.state
	c.state = next
	c.stateMu.Unlock()

	if prev == next {
		return
	}
	c.emit(events.TypeStateChanged, events.StateChanged{Previous: prev, Current: next})
}

func (c *Controller) emit(t events.Type, data any) {
	if c.publisher != nil {
		c.publisher.Emit(t, data)
	}
}
