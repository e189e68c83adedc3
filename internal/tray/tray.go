// Package tray runs the system tray icon. It is a pure consumer of the
// controller's event stream: it reflects the current state in the tooltip
// and offers a small menu (copy the last transcription, reinitialise the
// engine after a failure, quit). Nothing here feeds back into the session
// state machine except the explicit Reinitialize menu action.
package tray

import (
	"context"
	"log/slog"

	"github.com/getlantern/systray"
	"github.com/go-vgo/robotgo"

	"github.com/florentcollect/flototext/internal/history"
	"github.com/florentcollect/flototext/pkg/events"
)

const appTitle = "FloToText"

// Controller is the subset of the session controller the tray needs.
type Controller interface {
	Reinitialize()
}

// Config holds the tray's dependencies.
type Config struct {
	// Events is the subscription feeding tooltip updates. Required.
	Events <-chan events.Envelope

	// History backs the "copy last transcription" action. May be nil; the
	// action then reports that no history is available.
	History history.Store

	// Controller receives the Reinitialize menu action. May be nil.
	Controller Controller

	// WriteClipboard defaults to robotgo.WriteAll.
	WriteClipboard func(text string) error

	// OnQuit runs when the user picks Quit, before the tray loop exits.
	OnQuit func()
}

// Tray owns the systray icon and menu.
type Tray struct {
	events     <-chan events.Envelope
	store      history.Store
	controller Controller
	writeClip  func(string) error
	onQuit     func()
}

// New creates a Tray. Call Run to show the icon.
func New(cfg Config) *Tray {
	t := &Tray{
		events:     cfg.Events,
		store:      cfg.History,
		controller: cfg.Controller,
		writeClip:  cfg.WriteClipboard,
		onQuit:     cfg.OnQuit,
	}
	if t.writeClip == nil {
		t.writeClip = robotgo.WriteAll
	}
	return t
}

// Run shows the tray icon and blocks until ctx is cancelled or the user
// quits. systray requires running on the process's main thread on some
// platforms; callers arrange for that.
func (t *Tray) Run(ctx context.Context) {
	systray.Run(t.onReady(ctx), nil)
}

func (t *Tray) onReady(ctx context.Context) func() {
	return func() {
		systray.SetTitle(appTitle)
		systray.SetTooltip(tooltipFor(events.StateIdle))

		mStatus := systray.AddMenuItem(tooltipFor(events.StateIdle), "Current state")
		mStatus.Disable()
		systray.AddSeparator()
		mCopy := systray.AddMenuItem("Copy last transcription", "Put the most recent transcription on the clipboard")
		mReinit := systray.AddMenuItem("Reinitialize engine", "Retry loading the transcription engine")
		systray.AddSeparator()
		mQuit := systray.AddMenuItem("Quit", "Stop dictation and exit")

		go func() {
			for {
				select {
				case <-ctx.Done():
					systray.Quit()
					return
				case env, ok := <-t.events:
					if !ok {
						systray.Quit()
						return
					}
					t.handleEvent(env, mStatus)
				case <-mCopy.ClickedCh:
					if err := t.copyLast(ctx); err != nil {
						slog.Warn("copy last transcription failed", "err", err)
					}
				case <-mReinit.ClickedCh:
					if t.controller != nil {
						t.controller.Reinitialize()
					}
				case <-mQuit.ClickedCh:
					if t.onQuit != nil {
						t.onQuit()
					}
					systray.Quit()
					return
				}
			}
		}()
	}
}

func (t *Tray) handleEvent(env events.Envelope, status *systray.MenuItem) {
	switch env.Type {
	case events.TypeStateChanged:
		sc := env.Data.(events.StateChanged)
		tip := tooltipFor(sc.Current)
		systray.SetTooltip(tip)
		status.SetTitle(tip)
	case events.TypeErrorRaised:
		er := env.Data.(events.ErrorRaised)
		status.SetTitle("Error: " + er.Reason)
	}
}

// copyLast puts the most recent transcription on the clipboard.
func (t *Tray) copyLast(ctx context.Context) error {
	if t.store == nil {
		slog.Info("no history store configured")
		return nil
	}
	rec, err := t.store.Last(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		slog.Info("history is empty, nothing to copy")
		return nil
	}
	return t.writeClip(rec.Text)
}

// tooltipFor maps a controller state to the tooltip shown to the user.
func tooltipFor(s events.State) string {
	switch s {
	case events.StateRecording:
		return appTitle + " — recording"
	case events.StateProcessing:
		return appTitle + " — transcribing"
	case events.StateError:
		return appTitle + " — error"
	default:
		return appTitle + " — ready"
	}
}
