package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// LogLevelChanged is applied immediately.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionChanged means session, tts or agent tunables differ. New
	// sessions pick them up; running sessions keep theirs.
	SessionChanged bool

	// ProvidersChanged means providers, MCP servers, memory or the listen
	// address differ. These are only applied on restart.
	ProvidersChanged bool

	// RestartSections names the changed sections that need a restart.
	RestartSections []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Session != new.Session || old.TTS != new.TTS || old.Agent != new.Agent {
		d.SessionChanged = true
	}

	restart := []struct {
		name    string
		changed bool
	}{
		{"server", old.Server.ListenAddr != new.Server.ListenAddr ||
			!reflect.DeepEqual(old.Server.AllowedOrigins, new.Server.AllowedOrigins) ||
			!reflect.DeepEqual(old.Server.TLS, new.Server.TLS)},
		{"providers", !reflect.DeepEqual(old.Providers, new.Providers)},
		{"mcp", !reflect.DeepEqual(old.MCP, new.MCP)},
		{"memory", old.Memory != new.Memory},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartSections = append(d.RestartSections, r.name)
		}
	}
	d.ProvidersChanged = len(d.RestartSections) > 0
	return d
}
