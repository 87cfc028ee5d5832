// Package config provides the configuration schema, loader, watcher and
// provider registry for the TravelGenie concierge.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Travel    TravelConfig    `yaml:"travel"`
	Agent     AgentConfig     `yaml:"agent"`
	Cache     CacheConfig     `yaml:"cache"`
	RAG       RAGConfig       `yaml:"rag"`
	MCP       MCPConfig       `yaml:"mcp"`
	Sessions  SessionsConfig  `yaml:"sessions"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists extra origin patterns accepted by the WebSocket
	// stream, e.g. "app.example.com".
	AllowedOrigins []string `yaml:"allowed_origins"`

	// TurnTimeout bounds one chat turn. Default 5m.
	TurnTimeout time.Duration `yaml:"turn_timeout"`

	// ShutdownTimeout bounds graceful shutdown. Default 15s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProvidersConfig selects the model backends. Each entry names a factory
// registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order when the primary LLM fails or its
	// circuit breaker is open.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// Embeddings is required by the RAG service.
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered provider (e.g. "openai", "anthropic").
	Name string `yaml:"name"`

	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	Model string `yaml:"model"`

	// Options holds provider-specific values. Decode them with [DecodeOptions].
	Options map[string]any `yaml:"options"`
}

// TravelConfig holds the credentials of each travel data API. An API without
// a key is left unconfigured and its tools report that instead of failing.
type TravelConfig struct {
	Duffel       APIConfig `yaml:"duffel"`
	Booking      APIConfig `yaml:"booking"`
	OpenWeather  APIConfig `yaml:"openweather"`
	Places       APIConfig `yaml:"places"`
	SerpAPI      APIConfig `yaml:"serpapi"`
	Ticketmaster APIConfig `yaml:"ticketmaster"`
}

// APIConfig configures one REST client.
type APIConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// RatePerSecond limits outbound requests; zero disables limiting.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// Configured reports whether the API has credentials.
func (a APIConfig) Configured() bool { return a.APIKey != "" }

// AgentConfig tunes the agent loop. All fields are hot-reloadable.
type AgentConfig struct {
	// MaxIterations bounds decision steps per turn. Default 8.
	MaxIterations int `yaml:"max_iterations"`

	// DecisionTimeout bounds one model call. Default 60s.
	DecisionTimeout time.Duration `yaml:"decision_timeout"`

	// ToolTimeout bounds one tool call unless the tool declares its own.
	// Default 30s.
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// ToolConcurrency caps concurrent tool calls per batch; zero runs every
	// call of a batch at once.
	ToolConcurrency int `yaml:"tool_concurrency"`

	// SystemPrompt replaces the built-in concierge prompt when set.
	SystemPrompt string `yaml:"system_prompt"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// CacheConfig selects the tool-result cache. Redis is used when RedisAddr is
// set; otherwise an in-process cache.
type CacheConfig struct {
	Disabled      bool   `yaml:"disabled"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Prefix namespaces Redis keys. Default "travelgenie:tool:".
	Prefix string `yaml:"prefix"`

	// MaxEntries bounds the in-process cache. Default 1024.
	MaxEntries int `yaml:"max_entries"`
}

// RAGConfig configures the retrieval service. It is enabled when PostgresDSN
// is set.
type RAGConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`

	// Collection is the default collection. Default "documents".
	Collection string `yaml:"collection"`

	// EmbeddingDimensions must match providers.embeddings. Default 1536.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`

	// TopK is the number of retrieved documents. Default 5.
	TopK int `yaml:"top_k"`
}

// Enabled reports whether the RAG service should be started.
func (r RAGConfig) Enabled() bool { return r.PostgresDSN != "" }

// MCPConfig controls the MCP endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is where the streamable HTTP handler is mounted. Default "/mcp".
	Path string `yaml:"path"`
}

// SessionsConfig tunes the chat session store.
type SessionsConfig struct {
	// IdleTimeout evicts idle sessions. Default 30m; negative disables.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}
