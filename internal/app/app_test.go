package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/MrWong99/travelgenie/internal/app"
	"github.com/MrWong99/travelgenie/internal/config"
	"github.com/MrWong99/travelgenie/internal/tool"
	embmock "github.com/MrWong99/travelgenie/pkg/provider/embeddings/mock"
	"github.com/MrWong99/travelgenie/pkg/provider/llm"
	llmmock "github.com/MrWong99/travelgenie/pkg/provider/llm/mock"
	weathermock "github.com/MrWong99/travelgenie/pkg/provider/weather/mock"
	vsmock "github.com/MrWong99/travelgenie/pkg/vectorstore/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

// testConfig returns a defaulted config with no external services.
func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Travel = config.TravelConfig{}
	cfg.RAG.PostgresDSN = ""
	return cfg
}

var stubMetrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	io.WriteString(w, "# metrics\n")
})

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithMetricsHandler(stubMetrics)}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/v1/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		ID string `json:"session_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil || out.ID == "" {
		t.Fatalf("decode session: %v (%s)", err, rec.Body.String())
	}
	return out.ID
}

// ── New ──────────────────────────────────────────────────────────────────────

func TestNew_NothingConfigured(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(), nil)

	statuses := a.Registry().Statuses()
	if len(statuses) != len(tool.IDs()) {
		t.Fatalf("statuses = %d, want every tool listed", len(statuses))
	}
	for _, s := range statuses {
		if s.Configured {
			t.Errorf("%s should be unconfigured", s.Name)
		}
		if !strings.Contains(s.Reason, "not set") && !strings.Contains(s.Reason, "is set") {
			t.Errorf("%s reason = %q, want the missing env var", s.Name, s.Reason)
		}
	}
	if a.RAG() != nil {
		t.Error("RAG should be disabled without a store")
	}

	h := a.Handler()
	for _, path := range []string{"/healthz", "/readyz", "/v1/tools", "/metrics"} {
		if rec := do(t, h, http.MethodGet, path, nil); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
	if rec := do(t, h, http.MethodPost, "/retrieve", map[string]string{"question": "x"}); rec.Code != http.StatusNotFound {
		t.Errorf("POST /retrieve = %d, want 404 with RAG disabled", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/mcp", nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET /mcp = %d, want 404 with MCP disabled", rec.Code)
	}
}

func TestNew_WithoutLLMChatFailsCleanly(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(), nil)
	h := a.Handler()
	id := createSession(t, h)

	rec := do(t, h, http.MethodPost, "/v1/sessions/"+id+"/messages", map[string]string{"message": "Weather in Rome?"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("message = %d, want 502: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "no LLM provider configured") {
		t.Errorf("body = %s", rec.Body.String())
	}
	if hist, _ := a.Sessions().History(id); len(hist) != 0 {
		t.Errorf("history = %d turns, want 0 after a failed turn", len(hist))
	}
}

func TestNew_ChatWithInjectedClients(t *testing.T) {
	t.Parallel()
	model := &llmmock.Provider{
		Script: []llmmock.Step{
			{Response: &llm.CompletionResponse{Content: "Pack an umbrella for Rome."}},
		},
	}
	a := newApp(t, testConfig(), &app.Providers{LLM: model, LLMName: "mock"},
		app.WithTravelClients(app.TravelClients{Weather: &weathermock.Provider{}}),
	)

	configured := map[string]bool{}
	for _, s := range a.Registry().Statuses() {
		configured[s.Name] = s.Configured
	}
	if !configured[tool.GetWeather.String()] || !configured[tool.CreateItinerary.String()] {
		t.Errorf("weather-backed tools should be configured: %v", configured)
	}
	if configured[tool.SearchFlights.String()] {
		t.Error("search_flights should stay unconfigured")
	}

	h := a.Handler()
	id := createSession(t, h)
	rec := do(t, h, http.MethodPost, "/v1/sessions/"+id+"/messages", map[string]string{"message": "Going to Rome"})
	if rec.Code != http.StatusOK {
		t.Fatalf("message = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Pack an umbrella for Rome.") {
		t.Errorf("body = %s", rec.Body.String())
	}

	calls := model.Calls()
	if len(calls) != 1 {
		t.Fatalf("LLM calls = %d, want 1", len(calls))
	}
	names := map[string]bool{}
	for _, d := range calls[0].Req.Tools {
		names[d.Name] = true
	}
	if len(names) != len(tool.IDs()) {
		t.Errorf("advertised tools = %v, want all of them", names)
	}
}

func TestNew_LLMFallbackChain(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{CompleteErr: errors.New("rate limited")}
	backup := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "From the backup model."}}

	a := newApp(t, testConfig(), &app.Providers{
		LLM:          primary,
		LLMName:      "openai",
		LLMFallbacks: []app.NamedLLM{{Name: "anthropic", Provider: backup}},
	})
	h := a.Handler()
	id := createSession(t, h)

	rec := do(t, h, http.MethodPost, "/v1/sessions/"+id+"/messages", map[string]string{"message": "Hi"})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "From the backup model.") {
		t.Fatalf("message = %d: %s", rec.Code, rec.Body.String())
	}
	if len(primary.Calls()) != 1 || len(backup.Calls()) != 1 {
		t.Errorf("calls primary=%d backup=%d, want 1 each", len(primary.Calls()), len(backup.Calls()))
	}
}

func TestNew_RAGWithInjectedStore(t *testing.T) {
	t.Parallel()
	store := vsmock.New()
	emb := &embmock.Provider{
		Vectors: map[string][]float32{
			"Lisbon trams run late.":  {1, 0, 0},
			"Porto has port cellars.": {0, 1, 0},
			"When do trams stop?":     {0.9, 0.1, 0},
		},
		DimensionsValue: 3,
	}
	model := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Around midnight."}}
	a := newApp(t, testConfig(), &app.Providers{LLM: model, Embeddings: emb}, app.WithVectorStore(store))
	h := a.Handler()

	rec := do(t, h, http.MethodPost, "/add_texts", map[string]any{
		"texts": []string{"Lisbon trams run late.", "Porto has port cellars."},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add_texts = %d: %s", rec.Code, rec.Body.String())
	}
	if store.Len("documents") != 2 {
		t.Errorf("stored = %d, want 2 in the default collection", store.Len("documents"))
	}

	rec = do(t, h, http.MethodPost, "/rag_answer", map[string]string{"question": "When do trams stop?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rag_answer = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Answer  string `json:"answer"`
		Sources []struct {
			PageContent string `json:"page_content"`
		} `json:"source_documents"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Answer != "Around midnight." {
		t.Errorf("answer = %q", out.Answer)
	}
	if len(out.Sources) == 0 || out.Sources[0].PageContent != "Lisbon trams run late." {
		t.Errorf("sources = %+v", out.Sources)
	}

	if rec := do(t, h, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d", rec.Code)
	}
}

func TestNew_RAGRequiresEmbeddings(t *testing.T) {
	t.Parallel()
	_, err := app.New(context.Background(), testConfig(), nil, app.WithVectorStore(vsmock.New()))
	if err == nil {
		t.Fatal("expected error for RAG without embeddings")
	}
	if !strings.Contains(err.Error(), "embeddings") {
		t.Errorf("error should mention embeddings, got: %v", err)
	}
}

func TestNew_MCPEnabled(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MCP.Enabled = true
	a := newApp(t, cfg, nil)

	if rec := do(t, a.Handler(), http.MethodGet, "/mcp", nil); rec.Code == http.StatusNotFound {
		t.Error("GET /mcp = 404, want the MCP handler mounted")
	}
}

func TestNew_RedisCacheHealth(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Cache.RedisAddr = mr.Addr()
	a := newApp(t, cfg, nil)
	h := a.Handler()

	rec := do(t, h, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"redis":"ok"`) {
		t.Fatalf("readyz = %d: %s", rec.Code, rec.Body.String())
	}

	mr.Close()
	rec = do(t, h, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200 because redis is optional", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"redis":"warn: `) {
		t.Errorf("readyz body = %s, want redis warning", rec.Body.String())
	}
}

// ── Serve / Shutdown ─────────────────────────────────────────────────────────

func TestServeAndShutdown(t *testing.T) {
	t.Parallel()
	store := vsmock.New()
	a, err := app.New(context.Background(), testConfig(), &app.Providers{Embeddings: &embmock.Provider{}},
		app.WithVectorStore(store), app.WithMetricsHandler(stubMetrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	if err := a.Shutdown(sctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if !store.Closed() {
		t.Error("vector store should be closed on shutdown")
	}
	if err := a.Shutdown(sctx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
	if _, err := a.Sessions().Create(context.Background()); err == nil {
		t.Error("sessions should be closed after shutdown")
	}
}

func TestShutdown_ExpiredContext(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), testConfig(), nil, app.WithMetricsHandler(stubMetrics))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown = %v, want context.Canceled", err)
	}
}

// ── ApplyConfig ──────────────────────────────────────────────────────────────

func TestApplyConfig(t *testing.T) {
	t.Parallel()
	lv := new(slog.LevelVar)
	old := testConfig()
	a := newApp(t, old, nil, app.WithLevelVar(lv))

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Agent.MaxIterations = 3
	next.Agent.SystemPrompt = "Answer in one sentence."
	next.Cache.Disabled = true

	d := a.ApplyConfig(old, next)
	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %s, want debug", lv.Level())
	}
	p := a.Loop().Policy()
	if p.MaxIterations != 3 || p.SystemPrompt != "Answer in one sentence." {
		t.Errorf("policy = %+v", p)
	}
	if len(d.RestartRequired) != 1 || d.RestartRequired[0] != "cache" {
		t.Errorf("RestartRequired = %v, want [cache]", d.RestartRequired)
	}
}

func TestLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.Level(tt.in); got != tt.want {
			t.Errorf("Level(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
