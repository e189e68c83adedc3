// Package mock provides a scripted in-memory implementation of the
// [stt.Engine] interface for use in unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/florentcollect/flototext/pkg/audio"
	"github.com/florentcollect/flototext/pkg/stt"
)

// Engine is a scripted [stt.Engine]. Results are consumed in order; once the
// script runs out, Transcribe returns Fallback with no error.
type Engine struct {
	mu sync.Mutex

	// Results is the script: each Transcribe call pops the next entry.
	Results []Result

	// Fallback is returned once Results is exhausted.
	Fallback string

	// Block, when non-nil, is closed by the test to release an in-flight
	// Transcribe. It lets tests hold a transcription open deliberately.
	Block chan struct{}

	// Calls records the clips passed to Transcribe, in order.
	Calls []audio.Clip

	// CloseCalls counts Close invocations.
	CloseCalls int

	inFlight int
	maxSeen  int
}

// Result is one scripted Transcribe outcome.
type Result struct {
	Text string
	Err  error
}

var _ stt.Engine = (*Engine)(nil)

func (e *Engine) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	e.mu.Lock()
	e.Calls = append(e.Calls, clip)
	e.inFlight++
	if e.inFlight > e.maxSeen {
		e.maxSeen = e.inFlight
	}
	var res Result
	if len(e.Results) > 0 {
		res = e.Results[0]
		e.Results = e.Results[1:]
	} else {
		res = Result{Text: e.Fallback}
	}
	block := e.Block
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			e.endCall()
			return "", ctx.Err()
		}
	}

	e.endCall()
	return res.Text, res.Err
}

func (e *Engine) endCall() {
	e.mu.Lock()
	e.inFlight--
	e.mu.Unlock()
}

// MaxConcurrent reports the highest number of Transcribe calls that were
// ever in flight at once.
func (e *Engine) MaxConcurrent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxSeen
}

// CallCount reports how many Transcribe calls were made.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Calls)
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.CloseCalls++
	return nil
}
