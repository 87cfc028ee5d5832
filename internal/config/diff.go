package config

import "fmt"

// ConfigDiff describes what changed between two configs. Only the log level
// and the agent section are applied at runtime; everything else is reported
// in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AgentChanged is true when any agent setting changed. NewAgent holds the
	// new section.
	AgentChanged bool
	NewAgent     AgentConfig

	// RestartRequired names the top-level sections that changed but only
	// take effect after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.AgentChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Agent != new.Agent {
		d.AgentChanged = true
		d.NewAgent = new.Agent
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !serverEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Travel != new.Travel {
		d.RestartRequired = append(d.RestartRequired, "travel")
	}
	if old.Cache != new.Cache {
		d.RestartRequired = append(d.RestartRequired, "cache")
	}
	if old.RAG != new.RAG {
		d.RestartRequired = append(d.RestartRequired, "rag")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}
	if old.Sessions != new.Sessions {
		d.RestartRequired = append(d.RestartRequired, "sessions")
	}
	return d
}

func serverEqual(a, b ServerConfig) bool {
	if a.ListenAddr != b.ListenAddr || a.TurnTimeout != b.TurnTimeout || a.ShutdownTimeout != b.ShutdownTimeout {
		return false
	}
	return stringsEqual(a.AllowedOrigins, b.AllowedOrigins)
}

func providersEqual(a, b ProvidersConfig) bool {
	if !entryEqual(a.LLM, b.LLM) || !entryEqual(a.Embeddings, b.Embeddings) {
		return false
	}
	if len(a.LLMFallbacks) != len(b.LLMFallbacks) {
		return false
	}
	for i := range a.LLMFallbacks {
		if !entryEqual(a.LLMFallbacks[i], b.LLMFallbacks[i]) {
			return false
		}
	}
	return true
}

// entryEqual compares entries; Options are compared shallowly by key and
// formatted value.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || !optionEqual(av, bv) {
			return false
		}
	}
	return true
}

func optionEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any, []any:
		return fmt.Sprint(av) == fmt.Sprint(b)
	default:
		return a == b
	}
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
