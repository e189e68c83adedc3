package controller_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/florentcollect/flototext/internal/controller"
	"github.com/florentcollect/flototext/internal/corrector"
	histmock "github.com/florentcollect/flototext/internal/history/mock"
	"github.com/florentcollect/flototext/pkg/audio"
	audiomock "github.com/florentcollect/flototext/pkg/audio/mock"
	"github.com/florentcollect/flototext/pkg/events"
	sttmock "github.com/florentcollect/flototext/pkg/stt/mock"
)

const waitTimeout = 5 * time.Second

// fakeInserter records inserted texts and optionally fails.
type fakeInserter struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeInserter) Insert(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeInserter) inserted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// harness wires a controller to mocks and a running event loop.
type harness struct {
	capture  *audiomock.Capture
	endpoint *audiomock.Endpoint
	engine   *sttmock.Engine
	store    *histmock.Store
	inserter *fakeInserter
	dict     *corrector.Corrector
	ctrl     *controller.Controller
	sub      <-chan events.Envelope
}

func newHarness(t *testing.T, mutate func(*controller.Config)) *harness {
	t.Helper()

	h := &harness{
		capture:  &audiomock.Capture{},
		endpoint: &audiomock.Endpoint{},
		engine:   &sttmock.Engine{},
		store:    histmock.New(),
		inserter: &fakeInserter{},
		dict:     corrector.New(nil),
	}

	pub := events.NewPublisher()
	h.sub = pub.Subscribe("test", 128)

	cfg := controller.Config{
		Capture:   h.capture,
		Muter:     audio.NewMuter(h.endpoint, true),
		Engine:    h.engine,
		Corrector: h.dict,
		Inserter:  h.inserter,
		History:   h.store,
		Publisher: pub,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.ctrl = controller.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(waitTimeout):
			t.Error("controller did not shut down")
		}
		pub.Close()
	})
	return h
}

// clipOf builds a clip of the given duration with non-empty samples.
func clipOf(d time.Duration) audio.Clip {
	n := int(d.Seconds() * float64(audio.DefaultSampleRate))
	if n < 1 {
		n = 1
	}
	return audio.Clip{
		Samples:    make([]float32, n),
		SampleRate: audio.DefaultSampleRate,
		Duration:   d,
	}
}

// waitResolved blocks until a SessionResolved event arrives.
func (h *harness) waitResolved(t *testing.T) events.SessionResolved {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case env, ok := <-h.sub:
			if !ok {
				t.Fatal("event stream closed")
			}
			if env.Type == events.TypeSessionResolved {
				return env.Data.(events.SessionResolved)
			}
		case <-deadline:
			t.Fatal("timed out waiting for session resolution")
		}
	}
}

// waitState blocks until the controller transitions into the given state.
func (h *harness) waitState(t *testing.T, want events.State) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case env, ok := <-h.sub:
			if !ok {
				t.Fatal("event stream closed")
			}
			if env.Type == events.TypeStateChanged && env.Data.(events.StateChanged).Current == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

// drainErrors collects every ErrorRaised already emitted plus those arriving
// before the next SessionResolved.
func (h *harness) resolveCollectingErrors(t *testing.T) (events.SessionResolved, []events.ErrorRaised) {
	t.Helper()
	var errs []events.ErrorRaised
	deadline := time.After(waitTimeout)
	for {
		select {
		case env, ok := <-h.sub:
			if !ok {
				t.Fatal("event stream closed")
			}
			switch env.Type {
			case events.TypeErrorRaised:
				errs = append(errs, env.Data.(events.ErrorRaised))
			case events.TypeSessionResolved:
				return env.Data.(events.SessionResolved), errs
			}
		case <-deadline:
			t.Fatal("timed out waiting for session resolution")
		}
	}
}

func TestSuccessfulSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.capture.NextClip = clipOf(3 * time.Second)
	h.engine.Results = []sttmock.Result{{Text: "bonjour le monde"}}

	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	h.ctrl.KeyUp()

	res := h.waitResolved(t)
	if res.Status != events.StatusSuccess {
		t.Fatalf("status = %s, want success", res.Status)
	}
	if res.Text != "bonjour le monde" {
		t.Fatalf("text = %q", res.Text)
	}

	if got := h.inserter.inserted(); len(got) != 1 || got[0] != "bonjour le monde" {
		t.Fatalf("inserted = %v", got)
	}

	select {
	case rec := <-h.store.Appended:
		if rec.Text != "bonjour le monde" {
			t.Fatalf("history text = %q", rec.Text)
		}
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for history append")
	}

	h.waitState(t, events.StateIdle)
	if got := h.ctrl.State(); got != events.StateIdle {
		t.Fatalf("final state = %s, want idle", got)
	}
}

func TestShortPressResolvesSilently(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.capture.NextClip = clipOf(50 * time.Millisecond)

	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	h.ctrl.KeyUp()

	res, errs := h.resolveCollectingErrors(t)
	if res.Status != events.StatusEmptyAudio {
		t.Fatalf("status = %s, want empty_audio", res.Status)
	}
	if len(errs) != 0 {
		t.Fatalf("errors raised = %v, want none", errs)
	}
	if h.engine.CallCount() != 0 {
		t.Fatal("engine was called for a short press")
	}
	if h.store.Len() != 0 {
		t.Fatal("history record written for empty audio")
	}
	h.waitState(t, events.StateIdle)
}

func TestRepeatedKeyDownStartsOneCapture(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.capture.NextClip = clipOf(time.Second)
	h.engine.Fallback = "ok"

	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	// OS auto-repeat while the key is held.
	h.ctrl.KeyDown()
	h.ctrl.KeyDown()
	h.ctrl.KeyUp()
	h.waitResolved(t)

	if h.capture.StartCalls != 1 {
		t.Fatalf("capture starts = %d, want 1", h.capture.StartCalls)
	}
}

func TestEngineErrorRecoversToIdle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.capture.NextClip = clipOf(time.Second)
	h.engine.Results = []sttmock.Result{
		{Err: errors.New("inference blew up")},
		{Text: "ça marche"},
	}

	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	h.ctrl.KeyUp()

	res, errs := h.resolveCollectingErrors(t)
	if res.Status != events.StatusEngineError {
		t.Fatalf("status = %s, want engine_error", res.Status)
	}
	if len(errs) == 0 {
		t.Fatal("no error raised for engine failure")
	}
	if h.store.Len() != 0 {
		t.Fatal("history record written for a failed session")
	}
	if got := h.ctrl.State(); got != events.StateIdle {
		t.Fatalf("state after engine error = %s, want idle", got)
	}

	// The controller accepts new sessions after the failure.
	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	h.ctrl.KeyUp()
	res = h.waitResolved(t)
	if res.Status != events.StatusSuccess || res.Text != "ça marche" {
		t.Fatalf("second session = %+v", res)
	}
}

func TestPendingRetriggerQueueDepthOne(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.capture.NextClip = clipOf(time.Second)
	block := make(chan struct{})
	h.engine.Block = block
	h.engine.Fallback = "texte"

	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	h.ctrl.KeyUp()
	h.waitState(t, events.StateProcessing)

	// Two presses arrive before resolution; only one retrigger is honoured.
	h.ctrl.KeyDown()
	h.ctrl.KeyDown()

	close(block)
	h.engine.Block = nil
	h.waitResolved(t)

	// The retrigger re-enters Recording immediately after resolution.
	h.waitState(t, events.StateRecording)
	if h.capture.StartCalls != 2 {
		t.Fatalf("capture starts = %d, want 2", h.capture.StartCalls)
	}

	h.ctrl.KeyUp()
	res := h.waitResolved(t)
	if res.Status != events.StatusSuccess {
		t.Fatalf("retriggered session status = %s", res.Status)
	}
	if h.engine.CallCount() != 2 {
		t.Fatalf("engine calls = %d, want 2", h.engine.CallCount())
	}
	if got := h.engine.MaxConcurrent(); got != 1 {
		t.Fatalf("max concurrent transcriptions = %d, want 1", got)
	}
	if h.capture.Running() {
		t.Fatal("capture still running after both sessions resolved")
	}
	if h.capture.StopCalls != 2 {
		t.Fatalf("capture stops = %d, want 2", h.capture.StopCalls)
	}
}

func TestReleasedRetriggerIsDropped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.capture.NextClip = clipOf(time.Second)
	block := make(chan struct{})
	h.engine.Block = block
	h.engine.Fallback = "texte"

	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	h.ctrl.KeyUp()
	h.waitState(t, events.StateProcessing)

	// A quick tap during processing: down then up before resolution. Such a
	// press would be below the speech threshold anyway, so it is dropped.
	h.ctrl.KeyDown()
	h.ctrl.KeyUp()

	close(block)
	h.engine.Block = nil
	h.waitResolved(t)
	h.waitState(t, events.StateIdle)

	if h.capture.StartCalls != 1 {
		t.Fatalf("capture starts = %d, want 1", h.capture.StartCalls)
	}
}

func TestMuteRestoredAroundSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.capture.NextClip = clipOf(time.Second)
	h.engine.Fallback = "ok"

	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	if muted, _ := h.endpoint.Muted(); !muted {
		t.Fatal("output not muted while recording")
	}
	h.ctrl.KeyUp()
	h.waitResolved(t)

	if muted, _ := h.endpoint.Muted(); muted {
		t.Fatal("output still muted after session")
	}
}

func TestCaptureStartFailureRaisesAndRecovers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.capture.StartErr = errors.New("device unplugged")
	h.capture.NextClip = clipOf(time.Second)
	h.engine.Fallback = "ok"

	h.ctrl.KeyDown()

	// ErrorRaised arrives and the controller returns to Idle.
	deadline := time.After(waitTimeout)
	sawError := false
	for !sawError {
		select {
		case env := <-h.sub:
			if env.Type == events.TypeErrorRaised {
				sawError = true
			}
		case <-deadline:
			t.Fatal("no error raised for capture failure")
		}
	}
	h.waitState(t, events.StateIdle)

	// Mute must not be left held after the failed start.
	if muted, _ := h.endpoint.Muted(); muted {
		t.Fatal("output left muted after failed capture start")
	}

	// StartErr is one-shot in the mock; the next press succeeds.
	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	h.ctrl.KeyUp()
	if res := h.waitResolved(t); res.Status != events.StatusSuccess {
		t.Fatalf("recovery session status = %s", res.Status)
	}
}

func TestCaptureStopFailureCancelsSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.capture.StopErr = errors.New("device unplugged mid-recording")
	h.engine.Fallback = "jamais"

	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	h.ctrl.KeyUp()

	res, errs := h.resolveCollectingErrors(t)
	if res.Status != events.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", res.Status)
	}
	if len(errs) == 0 {
		t.Fatal("no error raised for capture stop failure")
	}
	if h.engine.CallCount() != 0 {
		t.Fatal("engine was called without a clip")
	}
	if h.store.Len() != 0 {
		t.Fatal("history record written for a cancelled session")
	}
	if muted, _ := h.endpoint.Muted(); muted {
		t.Fatal("output left muted after failed capture stop")
	}
	if got := h.ctrl.State(); got != events.StateIdle {
		t.Fatalf("state after stop failure = %s, want idle", got)
	}

	// StopErr is one-shot in the mock; the next session succeeds.
	h.capture.NextClip = clipOf(time.Second)
	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	h.ctrl.KeyUp()
	if res := h.waitResolved(t); res.Status != events.StatusSuccess {
		t.Fatalf("recovery session status = %s", res.Status)
	}
}

func TestEngineLoadFailureIsPersistentUntilReinitialize(t *testing.T) {
	t.Parallel()

	var ready atomic.Bool
	loadErr := errors.New("model file corrupt")
	var loadErrMu sync.Mutex
	currentLoadErr := loadErr

	h := newHarness(t, func(cfg *controller.Config) {
		cfg.Ready = ready.Load
		cfg.LoadErr = func() error {
			loadErrMu.Lock()
			defer loadErrMu.Unlock()
			return currentLoadErr
		}
		cfg.Reload = func(context.Context) error {
			loadErrMu.Lock()
			currentLoadErr = nil
			loadErrMu.Unlock()
			ready.Store(true)
			return nil
		}
	})
	h.capture.NextClip = clipOf(time.Second)
	h.engine.Fallback = "enfin"

	h.ctrl.KeyDown()
	h.waitState(t, events.StateError)

	// Presses are rejected while the load failure persists.
	h.ctrl.KeyDown()
	time.Sleep(50 * time.Millisecond)
	if h.capture.StartCalls != 0 {
		t.Fatal("capture started while engine unavailable")
	}
	if got := h.ctrl.State(); got != events.StateError {
		t.Fatalf("state = %s, want error", got)
	}

	h.ctrl.Reinitialize()
	h.waitState(t, events.StateIdle)

	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	h.ctrl.KeyUp()
	if res := h.waitResolved(t); res.Status != events.StatusSuccess || res.Text != "enfin" {
		t.Fatalf("post-reinit session = %+v", res)
	}
}

func TestLoadFailureSignalEntersPersistentError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *controller.Config) {
		cfg.Reload = func(context.Context) error { return nil }
	})
	h.capture.NextClip = clipOf(time.Second)
	h.engine.Fallback = "ok"

	h.ctrl.EngineLoadFailed(errors.New("model file corrupt"))
	h.waitState(t, events.StateError)

	h.ctrl.KeyDown()
	time.Sleep(50 * time.Millisecond)
	if h.capture.StartCalls != 0 {
		t.Fatal("capture started while engine failed")
	}

	h.ctrl.Reinitialize()
	h.waitState(t, events.StateIdle)

	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	h.ctrl.KeyUp()
	if res := h.waitResolved(t); res.Status != events.StatusSuccess {
		t.Fatalf("post-reinit session status = %s", res.Status)
	}
}

func TestEmptyTranscriptIsSilent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.capture.NextClip = clipOf(time.Second)
	h.engine.Results = []sttmock.Result{{Text: "   "}}

	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	h.ctrl.KeyUp()

	res, errs := h.resolveCollectingErrors(t)
	if res.Status != events.StatusEmptyAudio {
		t.Fatalf("status = %s, want empty_audio", res.Status)
	}
	if len(errs) != 0 {
		t.Fatalf("errors raised = %v, want none", errs)
	}
	if len(h.inserter.inserted()) != 0 {
		t.Fatal("text inserted for an empty transcript")
	}
}

func TestInsertionFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.capture.NextClip = clipOf(time.Second)
	h.engine.Fallback = "texte"
	h.inserter.err = errors.New("clipboard denied")

	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	h.ctrl.KeyUp()

	res, errs := h.resolveCollectingErrors(t)
	if res.Status != events.StatusSuccess {
		t.Fatalf("status = %s, want success despite insertion failure", res.Status)
	}
	if len(errs) != 0 {
		t.Fatalf("errors raised = %v, want none", errs)
	}

	// History still gets the record.
	select {
	case <-h.store.Appended:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for history append")
	}
}

func TestHistoryFailureDoesNotAffectSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.capture.NextClip = clipOf(time.Second)
	h.engine.Fallback = "texte"
	h.store.AppendErr = errors.New("disk full")

	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	h.ctrl.KeyUp()

	res, errs := h.resolveCollectingErrors(t)
	if res.Status != events.StatusSuccess {
		t.Fatalf("status = %s, want success despite history failure", res.Status)
	}
	if len(errs) != 0 {
		t.Fatalf("errors raised = %v, want none", errs)
	}
}

func TestCorrectionsAppliedBeforeInsertion(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.dict.Replace(corrector.NewDictionary([]corrector.Rule{
		{Pattern: "pie torche", Replacement: "PyTorch"},
		{Pattern: "torche", Replacement: "Torch"},
	}))
	h.capture.NextClip = clipOf(time.Second)
	h.engine.Fallback = "utilise pie torche ici"

	h.ctrl.KeyDown()
	h.waitState(t, events.StateRecording)
	h.ctrl.KeyUp()

	res := h.waitResolved(t)
	if res.Text != "utilise PyTorch ici" {
		t.Fatalf("corrected text = %q, want %q", res.Text, "utilise PyTorch ici")
	}
	if got := h.inserter.inserted(); len(got) != 1 || got[0] != "utilise PyTorch ici" {
		t.Fatalf("inserted = %v", got)
	}
}
