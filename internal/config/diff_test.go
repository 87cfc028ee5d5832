package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/travelgenie/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo, AllowedOrigins: []string{"a.example.com"}},
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o", Options: map[string]any{"max_retries": 2}},
		},
		Agent: config.AgentConfig{MaxIterations: 8, Temperature: 0.3},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if !d.Empty() {
		t.Errorf("Diff of identical configs = %+v, want empty", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level change should not require a restart, got %v", d.RestartRequired)
	}
}

func TestDiff_AgentChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Agent.MaxIterations = 4
	new.Agent.SystemPrompt = "Be brief."

	d := config.Diff(old, new)
	if !d.AgentChanged {
		t.Fatal("expected AgentChanged=true")
	}
	if d.NewAgent.MaxIterations != 4 || d.NewAgent.SystemPrompt != "Be brief." {
		t.Errorf("NewAgent = %+v", d.NewAgent)
	}
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   []string
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9999" }, []string{"server"}},
		{"origins", func(c *config.Config) { c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, "b.example.com") }, []string{"server"}},
		{"llm model", func(c *config.Config) { c.Providers.LLM.Model = "gpt-4o-mini" }, []string{"providers"}},
		{"llm option", func(c *config.Config) { c.Providers.LLM.Options["max_retries"] = 5 }, []string{"providers"}},
		{"fallback added", func(c *config.Config) {
			c.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "anthropic"}}
		}, []string{"providers"}},
		{"travel key", func(c *config.Config) { c.Travel.Duffel.APIKey = "k" }, []string{"travel"}},
		{"cache and rag", func(c *config.Config) {
			c.Cache.RedisAddr = "localhost:6379"
			c.RAG.TopK = 3
		}, []string{"cache", "rag"}},
		{"mcp", func(c *config.Config) { c.MCP.Enabled = true }, []string{"mcp"}},
		{"sessions", func(c *config.Config) { c.Sessions.IdleTimeout = 1 }, []string{"sessions"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(), baseConfig()
			tt.mutate(new)
			d := config.Diff(old, new)
			if !slices.Equal(d.RestartRequired, tt.want) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tt.want)
			}
			if d.AgentChanged || d.LogLevelChanged {
				t.Errorf("unexpected hot changes: %+v", d)
			}
		})
	}
}
