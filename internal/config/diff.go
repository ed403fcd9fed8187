package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs, split into what the
// running server applies immediately and what needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged and InterviewChanged are applied to sessions and live
	// connections started after the reload.
	VADChanged       bool
	InterviewChanged bool

	// RestartRequired names the sections whose changes are ignored until the
	// process restarts.
	RestartRequired []string
}

// HotReloadable reports whether d contains anything the server applies
// without a restart.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.VADChanged || d.InterviewChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.VADChanged = old.VAD != new.VAD
	d.InterviewChanged = old.Interview != new.Interview

	if !sameServer(old.Server, new.Server) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Analysis != new.Analysis {
		d.RestartRequired = append(d.RestartRequired, "analysis")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	return d
}

// sameServer ignores the log level, which is hot-reloadable.
func sameServer(a, b ServerConfig) bool {
	if a.ListenAddr != b.ListenAddr || a.ShutdownTimeout != b.ShutdownTimeout {
		return false
	}
	if (a.TLS == nil) != (b.TLS == nil) || (a.TLS != nil && *a.TLS != *b.TLS) {
		return false
	}
	return slices.Equal(a.AllowedOrigins, b.AllowedOrigins)
}
