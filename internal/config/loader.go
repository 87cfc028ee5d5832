package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per kind. [Validate] warns
// about names outside this list.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai"},
}

// Environment variables consulted when the matching api_key is empty.
const (
	EnvDuffel       = "DUFFEL_API_KEY"
	EnvBooking      = "RAPIDAPI_KEY"
	EnvOpenWeather  = "OPENWEATHERMAP_API_KEY"
	EnvPlaces       = "GOOGLE_PLACES_API_KEY"
	EnvSerpAPI      = "SERPAPI_API_KEY"
	EnvTicketmaster = "TICKETMASTER_API_KEY"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr          = ":8080"
	DefaultTurnTimeout         = 5 * time.Minute
	DefaultShutdownTimeout     = 15 * time.Second
	DefaultMaxIterations       = 8
	DefaultDecisionTimeout     = 60 * time.Second
	DefaultToolTimeout         = 30 * time.Second
	DefaultTemperature         = 0.3
	DefaultMaxTokens           = 4096
	DefaultCachePrefix         = "travelgenie:tool:"
	DefaultCacheEntries        = 1024
	DefaultCollection          = "documents"
	DefaultEmbeddingDimensions = 1536
	DefaultTopK                = 5
	DefaultMCPPath             = "/mcp"
	DefaultIdleTimeout         = 30 * time.Minute
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
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

// LoadFromReader expands ${VAR} references, decodes a YAML config from r,
// applies defaults and validates the result. An empty document yields the
// default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} with environment values.
// Bare $VAR is left alone so prices such as "$100" in prompts survive.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := envRef.FindSubmatch(m)
		if v, ok := os.LookupEnv(string(sub[1])); ok && v != "" {
			return []byte(v)
		}
		return sub[2]
	})
}

// ApplyDefaults fills unset fields with their defaults and pulls missing
// credentials from the environment.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.TurnTimeout == 0 {
		cfg.Server.TurnTimeout = DefaultTurnTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	envKey(&cfg.Travel.Duffel, EnvDuffel)
	envKey(&cfg.Travel.Booking, EnvBooking)
	envKey(&cfg.Travel.OpenWeather, EnvOpenWeather)
	envKey(&cfg.Travel.Places, EnvPlaces)
	envKey(&cfg.Travel.SerpAPI, EnvSerpAPI)
	envKey(&cfg.Travel.Ticketmaster, EnvTicketmaster)

	a := &cfg.Agent
	if a.MaxIterations == 0 {
		a.MaxIterations = DefaultMaxIterations
	}
	if a.DecisionTimeout == 0 {
		a.DecisionTimeout = DefaultDecisionTimeout
	}
	if a.ToolTimeout == 0 {
		a.ToolTimeout = DefaultToolTimeout
	}
	if a.Temperature == 0 {
		a.Temperature = DefaultTemperature
	}
	if a.MaxTokens == 0 {
		a.MaxTokens = DefaultMaxTokens
	}

	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = DefaultCachePrefix
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultCacheEntries
	}

	if cfg.RAG.PostgresDSN == "" {
		cfg.RAG.PostgresDSN = dsnFromEnv()
	}
	if cfg.RAG.Collection == "" {
		cfg.RAG.Collection = DefaultCollection
	}
	if cfg.RAG.EmbeddingDimensions == 0 {
		cfg.RAG.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = DefaultTopK
	}

	if cfg.MCP.Path == "" {
		cfg.MCP.Path = DefaultMCPPath
	}
	if cfg.Sessions.IdleTimeout == 0 {
		cfg.Sessions.IdleTimeout = DefaultIdleTimeout
	}
}

func envKey(a *APIConfig, name string) {
	if a.APIKey == "" {
		a.APIKey = os.Getenv(name)
	}
}

// dsnFromEnv builds a PostgreSQL DSN from DB_HOST, DB_PORT, DB_USER,
// DB_PASSWORD and DB_NAME. It returns "" unless host, user and name are set.
func dsnFromEnv() string {
	host, user, name := os.Getenv("DB_HOST"), os.Getenv("DB_USER"), os.Getenv("DB_NAME")
	if host == "" || user == "" || name == "" {
		return ""
	}
	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, os.Getenv("DB_PASSWORD")),
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + name,
	}
	return u.String()
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TurnTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.turn_timeout must not be negative"))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; the concierge cannot answer chat messages")
	}

	travel := []struct {
		key string
		api APIConfig
	}{
		{"duffel", cfg.Travel.Duffel},
		{"booking", cfg.Travel.Booking},
		{"openweather", cfg.Travel.OpenWeather},
		{"places", cfg.Travel.Places},
		{"serpapi", cfg.Travel.SerpAPI},
		{"ticketmaster", cfg.Travel.Ticketmaster},
	}
	for _, t := range travel {
		if t.api.Timeout < 0 {
			errs = append(errs, fmt.Errorf("travel.%s.timeout must not be negative", t.key))
		}
		if t.api.RatePerSecond < 0 {
			errs = append(errs, fmt.Errorf("travel.%s.rate_per_second must not be negative", t.key))
		}
		if t.api.Burst < 0 {
			errs = append(errs, fmt.Errorf("travel.%s.burst must not be negative", t.key))
		}
	}

	a := cfg.Agent
	if a.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("agent.max_iterations %d must be at least 1", a.MaxIterations))
	}
	if a.DecisionTimeout < 0 || a.ToolTimeout < 0 {
		errs = append(errs, fmt.Errorf("agent timeouts must not be negative"))
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature %.2f is out of range [0, 2]", a.Temperature))
	}
	if a.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("agent.max_tokens must not be negative"))
	}
	if a.ToolConcurrency < 0 {
		errs = append(errs, fmt.Errorf("agent.tool_concurrency must not be negative"))
	}

	if cfg.Cache.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("cache.redis_db must not be negative"))
	}

	if cfg.RAG.Enabled() {
		if cfg.Providers.Embeddings.Name == "" {
			errs = append(errs, fmt.Errorf("rag.postgres_dsn is set but providers.embeddings is not configured"))
		}
		if cfg.RAG.EmbeddingDimensions <= 0 {
			errs = append(errs, fmt.Errorf("rag.embedding_dimensions must be positive"))
		}
	}
	if cfg.RAG.TopK < 0 {
		errs = append(errs, fmt.Errorf("rag.top_k must not be negative"))
	}

	if cfg.MCP.Enabled && !strings.HasPrefix(cfg.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", cfg.MCP.Path))
	}

	return errors.Join(errs...)
}

// validateProviderName warns when name is set but not a known provider.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// DecodeOptions decodes a provider's free-form options into out, a pointer
// to a struct with mapstructure tags. Strings are converted to numbers,
// booleans and durations where the target field requires it; unknown keys
// are an error.
func DecodeOptions(options map[string]any, out any) error {
	if len(options) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("config: options decoder: %w", err)
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("config: decode options: %w", err)
	}
	return nil
}
