package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/florentcollect/flototext/internal/hotkey"
)

// Defaults applied by [LoadFromReader] for fields left empty.
const (
	DefaultBinding       = "f2"
	DefaultSampleRate    = 16000
	DefaultMinDurationMs = 200
	DefaultLanguage      = "fr"
	DefaultEngineName    = "whisper-native"
	DefaultHistory       = "sqlite"
	DefaultHistoryPath   = "flototext.db"
	DefaultCorrections   = "corrections.json"
)

// KnownEngineNames and KnownHistoryBackends list the implementations wired
// in by default. [Validate] warns about names outside these lists rather
// than failing, since the registry may carry third-party additions.
var (
	KnownEngineNames     = []string{"whisper-native", "openai"}
	KnownHistoryBackends = []string{"sqlite", "postgres"}
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied, used when no config
// file exists yet.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Hotkey.Binding == "" {
		cfg.Hotkey.Binding = DefaultBinding
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.MinDurationMs == 0 {
		cfg.Audio.MinDurationMs = DefaultMinDurationMs
	}
	if cfg.Engine.Name == "" {
		cfg.Engine.Name = DefaultEngineName
	}
	if cfg.Engine.Language == "" {
		cfg.Engine.Language = DefaultLanguage
	}
	if cfg.Corrections.Path == "" {
		cfg.Corrections.Path = DefaultCorrections
	}
	if cfg.History.Backend == "" {
		cfg.History.Backend = DefaultHistory
	}
	if cfg.History.Backend == "sqlite" && cfg.History.Path == "" {
		cfg.History.Path = DefaultHistoryPath
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if _, err := hotkey.ParseBinding(cfg.Hotkey.Binding); err != nil {
		errs = append(errs, fmt.Errorf("hotkey.binding: %w", err))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.MinDurationMs < 0 {
		errs = append(errs, fmt.Errorf("audio.min_duration_ms %d must not be negative", cfg.Audio.MinDurationMs))
	}

	switch cfg.Engine.Name {
	case "whisper-native":
		if cfg.Engine.ModelPath == "" {
			errs = append(errs, errors.New("engine.model_path is required for the whisper-native engine"))
		}
	case "openai":
		if cfg.Engine.APIKey == "" {
			errs = append(errs, errors.New("engine.api_key is required for the openai engine"))
		}
	default:
		warnUnknownName("engine", cfg.Engine.Name, KnownEngineNames)
	}

	switch cfg.History.Backend {
	case "sqlite":
		if cfg.History.Path == "" {
			errs = append(errs, errors.New("history.path is required for the sqlite backend"))
		}
	case "postgres":
		if cfg.History.PostgresDSN == "" {
			errs = append(errs, errors.New("history.postgres_dsn is required for the postgres backend"))
		}
	default:
		warnUnknownName("history", cfg.History.Backend, KnownHistoryBackends)
	}

	if cfg.Corrections.Path == "" {
		errs = append(errs, errors.New("corrections.path is required"))
	}

	return errors.Join(errs...)
}

// warnUnknownName logs a warning when name is not in the known list; it may
// be a typo or a third-party registration.
func warnUnknownName(kind, name string, known []string) {
	if name == "" || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown backend name — may be a typo or third-party backend",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
