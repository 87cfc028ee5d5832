// Package app wires all TravelGenie subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds and connects all
// subsystems, Run serves HTTP until its context is done, and Shutdown tears
// everything down in reverse order.
//
// For testing, inject doubles via functional options (WithVectorStore,
// WithCache, WithTravelClients, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/travelgenie/internal/agent"
	"github.com/MrWong99/travelgenie/internal/chat"
	"github.com/MrWong99/travelgenie/internal/config"
	"github.com/MrWong99/travelgenie/internal/health"
	"github.com/MrWong99/travelgenie/internal/mcp/mcpserver"
	"github.com/MrWong99/travelgenie/internal/observe"
	"github.com/MrWong99/travelgenie/internal/rag"
	"github.com/MrWong99/travelgenie/internal/resilience"
	"github.com/MrWong99/travelgenie/internal/session"
	"github.com/MrWong99/travelgenie/internal/tool"
	"github.com/MrWong99/travelgenie/internal/tool/cache"
	"github.com/MrWong99/travelgenie/pkg/provider/embeddings"
	"github.com/MrWong99/travelgenie/pkg/provider/llm"
	"github.com/MrWong99/travelgenie/pkg/types"
	"github.com/MrWong99/travelgenie/pkg/vectorstore"
	"github.com/MrWong99/travelgenie/pkg/vectorstore/postgres"
)

// NamedLLM is an LLM provider with the name it is reported under.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// Providers holds the model backends. Nil means the provider is not
// configured. Populated by main.go via the config registry.
type Providers struct {
	LLM     llm.Provider
	LLMName string

	// LLMFallbacks are tried in order when LLM fails.
	LLMFallbacks []NamedLLM

	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	level     *slog.LevelVar

	travel      *TravelClients
	registry    *tool.Registry
	cache       cache.Cache
	executor    *tool.Executor
	loop        *agent.Loop
	sessions    *session.Manager
	store       vectorstore.Store
	rag         *rag.Service
	mcp         *mcpserver.Server
	health      *health.Handler
	metricsHTTP http.Handler

	mux     *http.ServeMux
	handler http.Handler

	srvMu  sync.Mutex
	server *http.Server

	// closers run in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithVectorStore injects a vector store instead of connecting to PostgreSQL.
// The RAG service is enabled whenever a store is injected.
func WithVectorStore(s vectorstore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithCache injects the tool result cache.
func WithCache(c cache.Cache) Option {
	return func(a *App) { a.cache = c }
}

// WithTravelClients injects the travel data clients instead of building them
// from cfg.Travel.
func WithTravelClients(c TravelClients) Option {
	return func(a *App) { a.travel = &c }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets ApplyConfig change the log level of the handler that
// reads lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetricsHandler replaces the promhttp handler mounted at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHTTP = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New performs all initialisation synchronously: tool registration, cache
// and vector store connection, agent and session setup, and route
// registration. On error every subsystem created so far is closed.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (_ *App, err error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		mux:       http.NewServeMux(),
		health:    health.New(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(Level(cfg.Server.LogLevel))
	}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	// ── 1. Tools ─────────────────────────────────────────────────────────
	if err := a.initTools(); err != nil {
		return nil, fmt.Errorf("app: init tools: %w", err)
	}

	// ── 2. Result cache ──────────────────────────────────────────────────
	if err := a.initCache(ctx); err != nil {
		return nil, fmt.Errorf("app: init cache: %w", err)
	}

	// ── 3. Executor, decider, loop ───────────────────────────────────────
	if err := a.initAgent(); err != nil {
		return nil, fmt.Errorf("app: init agent: %w", err)
	}

	// ── 4. Sessions + chat API ───────────────────────────────────────────
	if err := a.initChat(); err != nil {
		return nil, fmt.Errorf("app: init chat: %w", err)
	}

	// ── 5. RAG ───────────────────────────────────────────────────────────
	if err := a.initRAG(ctx); err != nil {
		return nil, fmt.Errorf("app: init rag: %w", err)
	}

	// ── 6. MCP ───────────────────────────────────────────────────────────
	if cfg.MCP.Enabled {
		a.mcp = mcpserver.New(a.registry, a.executor)
		path := cfg.MCP.Path
		if path == "" {
			path = mcpserver.DefaultPath
		}
		a.mux.Handle(path, a.mcp.Handler())
		slog.Info("MCP endpoint enabled", "path", path, "tools", len(a.mcp.Tools()))
	}

	// ── 7. Health + metrics ──────────────────────────────────────────────
	a.health.Register(a.mux)
	if a.metricsHTTP == nil {
		a.metricsHTTP = promhttp.Handler()
	}
	a.mux.Handle("GET /metrics", a.metricsHTTP)

	a.handler = observe.Middleware(a.metrics)(a.mux)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initTools() error {
	if a.travel == nil {
		c := NewTravelClients(a.cfg.Travel)
		a.travel = &c
	}
	reg, err := BuildRegistry(*a.travel, resilience.FallbackConfig{})
	if err != nil {
		return err
	}
	a.registry = reg
	return nil
}

// initCache picks Redis when an address is configured and an in-process
// cache otherwise. An unreachable Redis is not fatal: the cache degrades to
// misses and /readyz reports a warning.
func (a *App) initCache(ctx context.Context) error {
	cc := a.cfg.Cache
	if a.cache != nil || cc.Disabled {
		return nil
	}
	if cc.RedisAddr == "" {
		a.cache = cache.NewMemory(cache.WithMaxEntries(cc.MaxEntries))
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cc.RedisAddr,
		Password: cc.RedisPassword,
		DB:       cc.RedisDB,
	})
	rc := cache.NewRedis(client, cc.Prefix)
	a.closers = append(a.closers, rc.Close)
	a.health.Add(health.Checker{Name: "redis", Check: rc.Ping, Optional: true})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		slog.Warn("redis unreachable, tool results will not be cached until it recovers", "addr", cc.RedisAddr, "err", err)
	}
	a.cache = rc
	return nil
}

func (a *App) initAgent() error {
	ac := a.cfg.Agent
	execOpts := []tool.ExecutorOption{
		tool.WithTimeout(ac.ToolTimeout),
		tool.WithConcurrency(ac.ToolConcurrency),
		tool.WithMetrics(a.metrics),
	}
	if a.cache != nil {
		execOpts = append(execOpts, tool.WithCache(a.cache))
	}
	a.executor = tool.NewExecutor(a.registry, execOpts...)

	var decider agent.Decider
	if p := a.chatModel(); p != nil {
		decider = agent.NewLLMDecider(p,
			agent.WithDecisionTimeout(ac.DecisionTimeout),
			agent.WithTemperature(ac.Temperature),
			agent.WithMaxTokens(ac.MaxTokens),
			agent.WithDeciderMetrics(a.metrics),
		)
	} else {
		decider = unconfiguredDecider{}
	}

	loop, err := agent.NewLoop(agent.Config{
		Decider:  decider,
		Executor: a.executor,
		Tools:    a.registry,
		Policy:   policy(ac),
		Metrics:  a.metrics,
	})
	if err != nil {
		return err
	}
	a.loop = loop
	return nil
}

// chatModel returns the primary LLM wrapped in its fallback chain, or nil.
func (a *App) chatModel() llm.Provider {
	p := a.providers
	if p.LLM == nil {
		return nil
	}
	if len(p.LLMFallbacks) == 0 {
		return p.LLM
	}
	name := p.LLMName
	if name == "" {
		name = "primary"
	}
	fb := resilience.NewLLMFallback(p.LLM, name, resilience.FallbackConfig{})
	for _, f := range p.LLMFallbacks {
		if f.Provider != nil {
			fb.AddFallback(f.Name, f.Provider)
		}
	}
	return fb
}

func (a *App) initChat() error {
	mgr, err := session.NewManager(session.Config{
		Runner:      a.loop,
		IdleTimeout: a.cfg.Sessions.IdleTimeout,
		Metrics:     a.metrics,
	})
	if err != nil {
		return err
	}
	a.sessions = mgr
	a.closers = append(a.closers, mgr.Close)

	chat.New(mgr, a.registry,
		chat.WithTurnTimeout(a.cfg.Server.TurnTimeout),
		chat.WithOriginPatterns(a.cfg.Server.AllowedOrigins...),
	).Register(a.mux)
	return nil
}

func (a *App) initRAG(ctx context.Context) error {
	rc := a.cfg.RAG
	if a.store == nil && !rc.Enabled() {
		return nil
	}
	if a.providers.Embeddings == nil {
		return errors.New("an embeddings provider is required for the RAG service")
	}
	if a.store == nil {
		store, err := postgres.NewStore(ctx, rc.PostgresDSN, rc.EmbeddingDimensions)
		if err != nil {
			return err
		}
		a.store = store
		a.health.Add(health.Checker{Name: "vectorstore", Check: store.Ping})
	}
	store := a.store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})

	svc, err := rag.NewService(rag.Config{
		Store:      a.store,
		Embedder:   a.providers.Embeddings,
		LLM:        a.chatModel(),
		Collection: rc.Collection,
		TopK:       rc.TopK,
		Metrics:    a.metrics,
	})
	if err != nil {
		return err
	}
	a.rag = svc
	rag.NewHandler(svc, a.metrics).Register(a.mux)
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler with the observability middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Registry returns the tool registry.
func (a *App) Registry() *tool.Registry { return a.registry }

// Sessions returns the chat session manager.
func (a *App) Sessions() *session.Manager { return a.sessions }

// Loop returns the agent loop.
func (a *App) Loop() *agent.Loop { return a.loop }

// RAG returns the RAG service, or nil when it is disabled.
func (a *App) RAG() *rag.Service { return a.rag }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on cfg.Server.ListenAddr and serves until ctx is cancelled or
// the server fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is cancelled. It returns ctx's error on
// cancellation; the server itself is stopped by Shutdown.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	a.srvMu.Lock()
	a.server = srv
	a.srvMu.Unlock()

	a.sessions.Start(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("app running", "addr", ln.Addr().String(), "tools", len(a.registry.List()), "rag", a.rag != nil, "mcp", a.mcp != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the runtime-changeable parts of new: the log level and
// the agent policy. It returns the diff so callers can report sections that
// need a restart.
func (a *App) ApplyConfig(old, new *config.Config) config.ConfigDiff {
	d := config.Diff(old, new)
	if d.LogLevelChanged {
		a.level.Set(Level(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.AgentChanged {
		a.loop.SetPolicy(policy(d.NewAgent))
		slog.Info("agent policy updated", "max_iterations", d.NewAgent.MaxIterations)
		if old.Agent.DecisionTimeout != new.Agent.DecisionTimeout || old.Agent.ToolTimeout != new.Agent.ToolTimeout ||
			old.Agent.Temperature != new.Agent.Temperature || old.Agent.MaxTokens != new.Agent.MaxTokens ||
			old.Agent.ToolConcurrency != new.Agent.ToolConcurrency {
			slog.Warn("agent timeouts and sampling settings take effect after a restart")
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("configuration changes need a restart", "sections", d.RestartRequired)
	}
	a.cfg = new
	return d
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server and then closes subsystems in reverse-init
// order. It respects the context deadline: if ctx expires, remaining closers
// are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.srvMu.Lock()
		srv := a.server
		a.srvMu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
				shutdownErr = err
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// Level converts a config log level to a slog level. Unknown values map to
// info.
func Level(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func policy(ac config.AgentConfig) agent.Policy {
	return agent.Policy{SystemPrompt: ac.SystemPrompt, MaxIterations: ac.MaxIterations}
}

// unconfiguredDecider fails every decision step. The loop reports it as a
// model error, so chat requests get 502 and the conversation is untouched.
type unconfiguredDecider struct{}

func (unconfiguredDecider) Decide(context.Context, string, *agent.Conversation, []types.ToolDefinition) (agent.Decision, error) {
	return nil, errNoLLM
}

var errNoLLM = errors.New("no LLM provider configured (set providers.llm)")
