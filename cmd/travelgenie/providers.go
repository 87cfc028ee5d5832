package main

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/travelgenie/internal/app"
	"github.com/MrWong99/travelgenie/internal/config"
	"github.com/MrWong99/travelgenie/pkg/provider/embeddings"
	oaembed "github.com/MrWong99/travelgenie/pkg/provider/embeddings/openai"
	"github.com/MrWong99/travelgenie/pkg/provider/llm"
	"github.com/MrWong99/travelgenie/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/travelgenie/pkg/provider/llm/openai"
)

// openAIOptions are the provider options understood by the native OpenAI
// chat client.
type openAIOptions struct {
	Organization string        `mapstructure:"organization"`
	MaxRetries   int           `mapstructure:"max_retries"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// embeddingOptions are the provider options understood by the OpenAI
// embeddings client.
type embeddingOptions struct {
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// OpenAI gets the native SDK client; it supports organization and retry
	// tuning that the generic backend does not expose.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		o := openAIOptions{MaxRetries: -1}
		if err := config.DecodeOptions(entry.Options, &o); err != nil {
			return nil, err
		}
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if o.Organization != "" {
			opts = append(opts, oaillm.WithOrganization(o.Organization))
		}
		if o.Timeout > 0 {
			opts = append(opts, oaillm.WithTimeout(o.Timeout))
		}
		opts = append(opts, oaillm.WithMaxRetries(o.MaxRetries))
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// Every other vendor goes through any-llm-go with an optional APIKey and
	// BaseURL. For ollama the BaseURL is the server address.
	for _, name := range anyllm.Backends() {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var o embeddingOptions
		if err := config.DecodeOptions(entry.Options, &o); err != nil {
			return nil, err
		}
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if o.Timeout > 0 {
			opts = append(opts, oaembed.WithTimeout(o.Timeout))
		}
		if o.Dimensions > 0 {
			opts = append(opts, oaembed.WithDimensions(o.Dimensions))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})
}

// buildProviders instantiates every configured provider. Names without a
// registered factory are skipped with a warning so the rest of the server
// still starts.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("provider not available, skipping", "kind", "llm", "name", name, "known", reg.LLMNames())
		case err != nil:
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		default:
			ps.LLM = p
			ps.LLMName = name
			slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.Providers.LLM.Model)
		}
	}

	for i, entry := range cfg.Providers.LLMFallbacks {
		p, err := reg.CreateLLM(entry)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("provider not available, skipping", "kind", "llm_fallback", "name", entry.Name)
		case err != nil:
			return nil, fmt.Errorf("create llm fallback %d (%q): %w", i, entry.Name, err)
		default:
			ps.LLMFallbacks = append(ps.LLMFallbacks, app.NamedLLM{Name: entry.Name, Provider: p})
			slog.Info("provider created", "kind", "llm_fallback", "name", entry.Name, "model", entry.Model)
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(embeddingsEntry(cfg))
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("provider not available, skipping", "kind", "embeddings", "name", name, "known", reg.EmbeddingsNames())
		case err != nil:
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		default:
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name, "dimensions", p.Dimensions())
		}
	}

	return ps, nil
}

// embeddingsEntry returns the embeddings entry with rag.embedding_dimensions
// applied when the entry does not pick its own size. The default matches the
// native size of text-embedding-3-small and is not requested explicitly.
func embeddingsEntry(cfg *config.Config) config.ProviderEntry {
	entry := cfg.Providers.Embeddings
	dims := cfg.RAG.EmbeddingDimensions
	if _, ok := entry.Options["dimensions"]; ok || dims <= 0 || dims == config.DefaultEmbeddingDimensions {
		return entry
	}
	opts := maps.Clone(entry.Options)
	if opts == nil {
		opts = make(map[string]any, 1)
	}
	opts["dimensions"] = dims
	entry.Options = opts
	return entry
}
