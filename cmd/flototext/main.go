// Command flototext is the push-to-talk dictation service. It sits in the
// system tray, listens for the global push-to-talk key, and types the
// transcription into whichever application has focus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/florentcollect/flototext/internal/app"
	"github.com/florentcollect/flototext/internal/config"
	"github.com/florentcollect/flototext/internal/observe"
	"github.com/florentcollect/flototext/internal/tray"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	noTray := flag.Bool("no-tray", false, "run without the system tray icon")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	watchPath := *configPath
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "flototext: %v\n", err)
			return 1
		}
		// No config file is fine for first runs; defaults give a local
		// whisper model and a sqlite history next to the binary.
		cfg = config.Default()
		watchPath = ""
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("flototext starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Single instance guard ─────────────────────────────────────────────────
	releaseLock, err := app.AcquireLock(filepath.Join(os.TempDir(), "flototext.lock"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "flototext: %v\n", err)
		return 1
	}
	defer releaseLock()

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics provider ──────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Warn("metrics provider unavailable", "err", err)
	} else {
		defer func() {
			mctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(mctx)
		}()
	}

	// ── Application ───────────────────────────────────────────────────────────
	var opts []app.Option
	if watchPath != "" {
		opts = append(opts, app.WithConfigWatch(watchPath))
	}
	application, err := app.New(ctx, cfg, app.DefaultRegistry(), opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	// ── System tray ───────────────────────────────────────────────────────────
	if !*noTray {
		t := tray.New(tray.Config{
			Events:     application.Events("tray"),
			History:    application.History(),
			Controller: application.Controller(),
			OnQuit:     stop,
		})
		go t.Run(ctx)
	}

	slog.Info("ready — hold the push-to-talk key to dictate, Ctrl+C to quit")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        FloToText — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("Hotkey", cfg.Hotkey.Binding)
	printEntry("Engine", engineLabel(cfg.Engine))
	printEntry("Language", cfg.Engine.Language)
	printEntry("History", cfg.History.Backend)
	printEntry("Corrections", filepath.Base(cfg.Corrections.Path))
	if cfg.Audio.MuteWhileRecording {
		printEntry("Mute on record", "yes")
	} else {
		printEntry("Mute on record", "no")
	}
	if cfg.Server.DebugAddr != "" {
		printEntry("Debug addr", cfg.Server.DebugAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func engineLabel(e config.EngineEntry) string {
	if e.Model != "" {
		return e.Name + " / " + e.Model
	}
	if e.ModelPath != "" {
		return e.Name + " / " + filepath.Base(e.ModelPath)
	}
	return e.Name
}

func printEntry(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", kind, value)
}
