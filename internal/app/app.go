// Package app wires all subsystems into the running dictation service.
//
// The App struct owns the full lifecycle: New creates and connects the
// subsystems, Run executes them until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithCapture, WithHistory, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/florentcollect/flototext/internal/config"
	"github.com/florentcollect/flototext/internal/controller"
	"github.com/florentcollect/flototext/internal/corrector"
	"github.com/florentcollect/flototext/internal/health"
	"github.com/florentcollect/flototext/internal/history"
	historypg "github.com/florentcollect/flototext/internal/history/postgres"
	historysqlite "github.com/florentcollect/flototext/internal/history/sqlite"
	"github.com/florentcollect/flototext/internal/hotkey"
	"github.com/florentcollect/flototext/internal/insert"
	"github.com/florentcollect/flototext/internal/observe"
	"github.com/florentcollect/flototext/pkg/audio"
	"github.com/florentcollect/flototext/pkg/audio/portaudio"
	"github.com/florentcollect/flototext/pkg/events"
	"github.com/florentcollect/flototext/pkg/stt"
	sttopenai "github.com/florentcollect/flototext/pkg/stt/openai"
	sttwhisper "github.com/florentcollect/flototext/pkg/stt/whisper"
)

// purgeInterval is how often expired history records are cleaned up after
// the startup purge.
const purgeInterval = 6 * time.Hour

// DefaultRegistry returns a registry with every built-in engine and history
// backend registered.
func DefaultRegistry() *config.Registry {
	r := config.NewRegistry()

	r.RegisterEngine("whisper-native", func(entry config.EngineEntry) (stt.Engine, error) {
		var opts []sttwhisper.Option
		if entry.Language != "" {
			opts = append(opts, sttwhisper.WithLanguage(entry.Language))
		}
		if entry.Threads > 0 {
			opts = append(opts, sttwhisper.WithThreads(uint(entry.Threads)))
		}
		return sttwhisper.New(entry.ModelPath, opts...)
	})
	r.RegisterEngine("openai", func(entry config.EngineEntry) (stt.Engine, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if entry.Language != "" {
			opts = append(opts, sttopenai.WithLanguage(entry.Language))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	r.RegisterHistory("sqlite", func(_ context.Context, cfg config.HistoryConfig) (history.Store, error) {
		return historysqlite.Open(cfg.Path)
	})
	r.RegisterHistory("postgres", func(ctx context.Context, cfg config.HistoryConfig) (history.Store, error) {
		return historypg.Open(ctx, cfg.PostgresDSN)
	})

	return r
}

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	registry *config.Registry

	publisher *events.Publisher
	loader    *stt.Loader
	store     history.Store
	corr      *corrector.Corrector
	capture   audio.Capture
	endpoint  audio.Endpoint
	muter     *audio.Muter
	inserter  controller.Inserter
	ctrl      *controller.Controller
	listener  *hotkey.Listener
	metrics   *observe.Metrics

	// configPath enables live config reloading when non-empty.
	configPath string

	// hotkeyEnabled is cleared in tests that cannot register a global key.
	hotkeyEnabled bool

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCapture injects an audio capture instead of opening the default
// microphone.
func WithCapture(c audio.Capture) Option {
	return func(a *App) { a.capture = c }
}

// WithMuteEndpoint injects the system output mute control.
func WithMuteEndpoint(e audio.Endpoint) Option {
	return func(a *App) { a.endpoint = e }
}

// WithHistory injects a history store instead of creating one from config.
func WithHistory(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithInserter injects a text inserter instead of the clipboard-paste one.
func WithInserter(i controller.Inserter) Option {
	return func(a *App) { a.inserter = i }
}

// WithConfigWatch enables live reloading of the config file at path.
func WithConfigWatch(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithoutHotkey disables global hotkey registration. Tests drive the
// controller directly.
func WithoutHotkey() Option {
	return func(a *App) { a.hotkeyEnabled = false }
}

// New creates an App by wiring all subsystems together. Use Option
// functions to inject test doubles for any subsystem.
//
// The engine model load is started in the background; New returns before it
// completes so the tray appears immediately.
func New(ctx context.Context, cfg *config.Config, registry *config.Registry, opts ...Option) (*App, error) {
	a := &App{
		cfg:           cfg,
		registry:      registry,
		publisher:     events.NewPublisher(),
		metrics:       observe.DefaultMetrics(),
		hotkeyEnabled: true,
	}
	for _, o := range opts {
		o(a)
	}
	a.closers = append(a.closers, func() error {
		a.publisher.Close()
		return nil
	})

	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}
	a.initCorrector()
	a.initEngine()
	a.initAudio()
	a.initController()

	if a.hotkeyEnabled {
		binding, err := hotkey.ParseBinding(cfg.Hotkey.Binding)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.listener = hotkey.NewListener(binding, a.ctrl.KeyDown, a.ctrl.KeyUp)
	}

	return a, nil
}

func (a *App) initHistory(ctx context.Context) error {
	if a.store == nil {
		store, err := a.registry.CreateHistory(ctx, a.cfg.History)
		if err != nil {
			return err
		}
		a.store = store
	}
	a.closers = append(a.closers, a.store.Close)
	return nil
}

// initCorrector loads the correction dictionary, creating the file with a
// starter template when missing. A broken file degrades to no corrections
// rather than failing startup.
func (a *App) initCorrector() {
	path := a.cfg.Corrections.Path
	if created, err := corrector.EnsureFile(path); err != nil {
		slog.Warn("could not create corrections file", "path", path, "err", err)
	} else if created {
		slog.Info("created corrections file from template", "path", path)
	}

	dict, err := corrector.Load(path)
	if err != nil {
		slog.Warn("corrections file unusable, continuing without corrections",
			"path", path, "err", err)
		dict = corrector.NewDictionary(nil)
	}
	a.corr = corrector.New(dict)
}

// initEngine wraps the configured engine factory in a loader so model load
// happens off the startup path.
func (a *App) initEngine() {
	entry := a.cfg.Engine
	a.loader = stt.NewLoader(func() (stt.Engine, error) {
		return a.registry.CreateEngine(entry)
	})
	a.loader.Load()
	a.closers = append(a.closers, a.loader.Close)
}

func (a *App) initAudio() {
	if a.capture == nil {
		a.capture = portaudio.New(a.cfg.Audio.SampleRate)
	}
	if a.endpoint == nil {
		a.endpoint = audio.NewMediaKeyEndpoint()
	}
	a.muter = audio.NewMuter(a.endpoint, a.cfg.Audio.MuteWhileRecording)
	if a.inserter == nil {
		a.inserter = insert.New()
	}
}

func (a *App) initController() {
	a.ctrl = controller.New(controller.Config{
		Capture:   a.capture,
		Muter:     a.muter,
		Engine:    a.loader,
		Corrector: a.corr,
		Inserter:  a.inserter,
		History:   a.store,
		Publisher: a.publisher,
		Metrics:   a.metrics,
		Ready:     a.loader.Ready,
		LoadErr:   a.loader.Err,
		Reload: func(ctx context.Context) error {
			a.loader.Load()
			return a.loader.Wait(ctx)
		},
		MinDuration: time.Duration(a.cfg.Audio.MinDurationMs) * time.Millisecond,
	})
}

// Events subscribes a consumer to the controller's event stream.
func (a *App) Events(id string) <-chan events.Envelope {
	return a.publisher.Subscribe(id, 64)
}

// Controller exposes the session controller for tray actions.
func (a *App) Controller() *controller.Controller { return a.ctrl }

// History exposes the transcription log for tray actions. May be nil.
func (a *App) History() history.Store { return a.store }

// Run executes all subsystems until ctx is cancelled. It always returns the
// context's cause, never nil, once the group has drained.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.ctrl.Run(ctx) })

	// Surface a failed model load without waiting for the first key press.
	g.Go(func() error {
		if err := a.loader.Wait(ctx); err != nil && ctx.Err() == nil {
			a.ctrl.EngineLoadFailed(err)
		}
		return nil
	})

	if a.listener != nil {
		g.Go(func() error { return a.listener.Run(ctx) })
	}

	if a.cfg.Corrections.Watch {
		w := corrector.NewWatcher(a.cfg.Corrections.Path, a.corr)
		g.Go(func() error {
			if err := w.Run(ctx); err != nil {
				// A dead watcher only means edits stop applying live.
				slog.Warn("corrections watcher stopped", "err", err)
			}
			return nil
		})
	}

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.applyConfigChange)
		if err != nil {
			slog.Warn("config watcher unavailable", "err", err)
		} else {
			g.Go(func() error {
				<-ctx.Done()
				w.Stop()
				return nil
			})
		}
	}

	g.Go(func() error {
		a.purgeLoop(ctx)
		return nil
	})

	if addr := a.cfg.Server.DebugAddr; addr != "" {
		g.Go(func() error { return a.serveDebug(ctx, addr) })
	}

	slog.Info("dictation service running",
		"engine", a.cfg.Engine.Name,
		"history", a.cfg.History.Backend,
		"hotkey", a.cfg.Hotkey.Binding)
	return g.Wait()
}

// applyConfigChange applies a reloaded config. Settings that cannot change
// at runtime are logged and ignored until the next restart.
func (a *App) applyConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.Empty() {
		return
	}

	if d.LogLevelChanged {
		slog.SetLogLoggerLevel(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.MinDurationChanged {
		a.ctrl.SetMinDuration(time.Duration(d.NewMinDurationMs) * time.Millisecond)
		slog.Info("minimum capture duration changed", "ms", d.NewMinDurationMs)
	}
	if d.MuteChanged {
		a.muter.SetEnabled(d.NewMute)
		slog.Info("mute while recording changed", "enabled", d.NewMute)
	}
	if d.CorrectionsChanged {
		dict, err := corrector.Load(new.Corrections.Path)
		if err != nil {
			slog.Warn("new corrections file unusable, keeping current dictionary",
				"path", new.Corrections.Path, "err", err)
		} else {
			a.corr.Replace(dict)
			slog.Info("corrections reloaded", "path", new.Corrections.Path, "rules", dict.Len())
		}
	}
	if d.RestartRequired {
		slog.Warn("config change requires a restart to take effect")
	}
	a.cfg = new
}

// purgeLoop removes history entries older than the retention window, once
// at startup and then periodically.
func (a *App) purgeLoop(ctx context.Context) {
	if a.store == nil {
		return
	}
	purge := func() {
		pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		n, err := a.store.PurgeOlderThan(pctx, time.Now().Add(-history.RetentionWindow))
		if err != nil {
			slog.Warn("history purge failed", "err", err)
			return
		}
		if n > 0 {
			slog.Info("purged expired history entries", "count", n)
		}
	}

	purge()
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}

// serveDebug runs the local health and metrics listener.
func (a *App) serveDebug(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	health.New(a.healthCheckers()...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	slog.Info("debug endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("app: debug server: %w", err)
	}
	return nil
}

func (a *App) healthCheckers() []health.Checker {
	return []health.Checker{
		{Name: "engine", Check: func(context.Context) error {
			if a.loader.Ready() {
				return nil
			}
			if err := a.loader.Err(); err != nil {
				return err
			}
			return errors.New("engine still loading")
		}},
		{Name: "history", Check: func(ctx context.Context) error {
			if a.store == nil {
				return nil
			}
			_, err := a.store.Last(ctx)
			return err
		}},
	}
}

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, the rest are skipped.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
