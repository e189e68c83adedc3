package config

import "testing"

func TestDiff(t *testing.T) {
	t.Parallel()

	base := func() *Config { return Default() }

	t.Run("identical configs produce empty diff", func(t *testing.T) {
		t.Parallel()
		d := Diff(base(), base())
		if !d.Empty() {
			t.Fatalf("diff = %+v, want empty", d)
		}
	})

	t.Run("hot-reloadable fields", func(t *testing.T) {
		t.Parallel()
		old, new := base(), base()
		new.Server.LogLevel = LogDebug
		new.Audio.MuteWhileRecording = true
		new.Audio.MinDurationMs = 500
		new.Corrections.Watch = true

		d := Diff(old, new)
		if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
			t.Errorf("log level diff = %+v", d)
		}
		if !d.MuteChanged || !d.NewMute {
			t.Errorf("mute diff = %+v", d)
		}
		if !d.MinDurationChanged || d.NewMinDurationMs != 500 {
			t.Errorf("min duration diff = %+v", d)
		}
		if !d.CorrectionsChanged {
			t.Errorf("corrections diff = %+v", d)
		}
		if d.RestartRequired {
			t.Error("RestartRequired set for hot-reloadable changes")
		}
	})

	t.Run("structural fields require restart", func(t *testing.T) {
		t.Parallel()
		old, new := base(), base()
		new.Hotkey.Binding = "ctrl+shift+space"
		d := Diff(old, new)
		if !d.RestartRequired {
			t.Error("hotkey change did not set RestartRequired")
		}

		old, new = base(), base()
		new.Engine.ModelPath = "/other.bin"
		if d := Diff(old, new); !d.RestartRequired {
			t.Error("engine change did not set RestartRequired")
		}

		old, new = base(), base()
		new.History.Backend = "postgres"
		new.History.PostgresDSN = "postgres://localhost/flototext"
		if d := Diff(old, new); !d.RestartRequired {
			t.Error("history change did not set RestartRequired")
		}
	})
}
