package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Tajweed and log
// level changes can be applied to a running server; everything else is
// listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TajweedChanged is true if any field of the tajweed section changed.
	// The engine must be rebuilt with [TajweedConfig.Engine].
	TajweedChanged bool

	// CatalogChanged is true when the file named by tajweed.catalog_path
	// was edited. Only a [Watcher] sets it; TajweedChanged is set with it.
	CatalogChanged bool

	// RestartRequired names the changed sections that only take effect after
	// a restart (e.g. "analysis", "providers").
	RestartRequired []string
}

// HasChanges reports whether anything at all changed.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.TajweedChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.TajweedChanged = tajweedChanged(old.Tajweed, new.Tajweed)

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.TraceSampleRatio != new.Server.TraceSampleRatio ||
		!reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Analysis != new.Analysis {
		d.RestartRequired = append(d.RestartRequired, "analysis")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}
	if old.History != new.History {
		d.RestartRequired = append(d.RestartRequired, "history")
	}
	return d
}

// tajweedChanged compares two tajweed sections.
func tajweedChanged(old, new TajweedConfig) bool {
	return old.IsEnabled() != new.IsEnabled() ||
		old.CatalogPath != new.CatalogPath ||
		old.CountDuration != new.CountDuration ||
		!slices.Equal(old.Categories, new.Categories)
}
