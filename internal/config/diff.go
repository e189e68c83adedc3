package config

// ConfigDiff describes what changed between two configs. Only fields that
// can be applied without restarting the application are tracked
// individually; RestartRequired flags the rest.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	MuteChanged bool
	NewMute     bool

	MinDurationChanged bool
	NewMinDurationMs   int

	CorrectionsChanged bool

	// RestartRequired is set when a change touches something wired at
	// startup: the hotkey binding, the engine, the history backend, or the
	// debug listener address.
	RestartRequired bool
}

// Empty reports whether the diff carries no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.MuteChanged && !d.MinDurationChanged &&
		!d.CorrectionsChanged && !d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Audio.MuteWhileRecording != new.Audio.MuteWhileRecording {
		d.MuteChanged = true
		d.NewMute = new.Audio.MuteWhileRecording
	}
	if old.Audio.MinDurationMs != new.Audio.MinDurationMs {
		d.MinDurationChanged = true
		d.NewMinDurationMs = new.Audio.MinDurationMs
	}
	if old.Corrections != new.Corrections {
		d.CorrectionsChanged = true
	}

	if old.Hotkey != new.Hotkey ||
		old.Engine != new.Engine ||
		old.History != new.History ||
		old.Server.DebugAddr != new.Server.DebugAddr ||
		old.Audio.SampleRate != new.Audio.SampleRate {
		d.RestartRequired = true
	}

	return d
}
