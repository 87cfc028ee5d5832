package anyllm

import (
	"slices"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/travelgenie/pkg/provider/llm"
	"github.com/MrWong99/travelgenie/pkg/types"
)

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage_Roles(t *testing.T) {
	t.Parallel()
	for _, role := range []string{types.RoleSystem, types.RoleUser, types.RoleAssistant} {
		got := convertMessage(types.Message{Role: role, Content: "hello"})
		if got.Role != role {
			t.Errorf("role %s: got %q", role, got.Role)
		}
		if got.ContentString() != "hello" {
			t.Errorf("role %s: content %q", role, got.ContentString())
		}
	}
}

func TestConvertMessage_AssistantWithToolCalls(t *testing.T) {
	t.Parallel()
	got := convertMessage(types.Message{
		Role: types.RoleAssistant,
		ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "get_events", Arguments: `{"location":"Paris"}`},
		},
	})
	if len(got.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(got.ToolCalls))
	}
	tc := got.ToolCalls[0]
	if tc.ID != "call_1" || tc.Type != "function" {
		t.Errorf("unexpected tool call header %+v", tc)
	}
	if tc.Function.Name != "get_events" || tc.Function.Arguments != `{"location":"Paris"}` {
		t.Errorf("unexpected function %+v", tc.Function)
	}
}

func TestConvertMessage_ToolResult(t *testing.T) {
	t.Parallel()
	got := convertMessage(types.Message{Role: types.RoleTool, Content: `{"error":"tool not found"}`, ToolCallID: "call_9"})
	if got.ToolCallID != "call_9" {
		t.Errorf("expected ToolCallID call_9, got %q", got.ToolCallID)
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "claude-sonnet-4-5"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "sys",
		Messages:     []types.Message{{Role: types.RoleUser, Content: "hi"}},
		Tools:        []types.ToolDefinition{{Name: "get_weather", Parameters: map[string]any{"type": "object"}}},
		Temperature:  0.3,
		MaxTokens:    512,
	})
	if len(params.Messages) != 2 || params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Fatalf("expected system prompt prepended, got %+v", params.Messages)
	}
	if params.Temperature == nil || *params.Temperature != 0.3 {
		t.Errorf("unexpected temperature %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 512 {
		t.Errorf("unexpected max tokens %v", params.MaxTokens)
	}
	if len(params.Tools) != 1 || params.Tools[0].Function.Name != "get_weather" {
		t.Errorf("unexpected tools %+v", params.Tools)
	}
}

func TestBuildParams_ZeroValuesOmitted(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "llama3"}
	params := p.buildParams(llm.CompletionRequest{Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}}})
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Error("expected nil temperature and max tokens")
	}
	if len(params.Messages) != 1 {
		t.Errorf("expected no system message, got %d messages", len(params.Messages))
	}
}

// ── modelCapabilities ─────────────────────────────────────────────────────────

func TestModelCapabilities(t *testing.T) {
	t.Parallel()
	tests := []struct {
		model  string
		window int
		tools  bool
	}{
		{"gpt-4o-mini", 128_000, true},
		{"GPT-4", 8_192, true},
		{"o1-mini", 128_000, false},
		{"claude-sonnet-4-5", 200_000, true},
		{"gemini-1.5-pro", 2_097_152, true},
		{"gemini-2.0-flash", 1_048_576, true},
		{"something-else", 128_000, true},
	}
	for _, tt := range tests {
		caps := modelCapabilities(tt.model)
		if caps.ContextWindow != tt.window {
			t.Errorf("%s: ContextWindow = %d, want %d", tt.model, caps.ContextWindow, tt.window)
		}
		if caps.SupportsToolCalling != tt.tools {
			t.Errorf("%s: SupportsToolCalling = %v, want %v", tt.model, caps.SupportsToolCalling, tt.tools)
		}
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty providerName")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy")); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		name  string
		model string
		opts  []anyllmlib.Option
	}{
		{"openai", "gpt-4o", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{"Anthropic", "claude-sonnet-4-5", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{"ollama", "llama3", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.name, tt.model, tt.opts...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.model != tt.model {
				t.Errorf("model = %q, want %q", p.model, tt.model)
			}
		})
	}
}

func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestBackends_Sorted(t *testing.T) {
	t.Parallel()
	names := Backends()
	if !slices.IsSorted(names) {
		t.Errorf("Backends not sorted: %v", names)
	}
	if !slices.Contains(names, "anthropic") || len(names) != 9 {
		t.Errorf("unexpected backends: %v", names)
	}
}

func TestCountTokens(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "gpt-4o"}
	empty, _ := p.CountTokens(nil)
	if empty != 0 {
		t.Errorf("empty count = %d, want 0", empty)
	}
	n, _ := p.CountTokens([]types.Message{{Role: types.RoleUser, Content: "Find flights from NYC to Paris"}})
	if n <= 4 {
		t.Errorf("expected more than overhead, got %d", n)
	}
}
