package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/travelgenie/internal/agent"
	agentmock "github.com/MrWong99/travelgenie/internal/agent/mock"
	"github.com/MrWong99/travelgenie/internal/tool"
	toolmock "github.com/MrWong99/travelgenie/internal/tool/mock"
)

type fixture struct {
	reg     *tool.Registry
	decider *agentmock.Decider
	loop    *agent.Loop
}

func newFixture(t *testing.T, policy agent.Policy, caps ...*toolmock.Capability) *fixture {
	t.Helper()
	m, _ := testMetrics(t)
	reg := tool.NewRegistry()
	for _, c := range caps {
		if err := reg.Register(c); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	f := &fixture{reg: reg, decider: &agentmock.Decider{}}
	t.Cleanup(reg.Freeze)

	loop, err := agent.NewLoop(agent.Config{
		Decider:  f.decider,
		Executor: tool.NewExecutor(reg, tool.WithMetrics(m)),
		Tools:    reg,
		Policy:   policy,
		Metrics:  m,
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	f.loop = loop
	return f
}

func requests(reqs ...agent.ToolRequest) agent.Decision {
	return agent.ToolRequests{Requests: reqs}
}

func req(id, name, args string) agent.ToolRequest {
	return agent.ToolRequest{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func roles(turns []agent.Turn) string {
	parts := make([]string, len(turns))
	for i, t := range turns {
		parts[i] = t.Role()
	}
	return strings.Join(parts, ",")
}

// ── Transitions ──────────────────────────────────────────────────────────────

func TestRun_DirectAnswer(t *testing.T) {
	t.Parallel()
	f := newFixture(t, agent.Policy{})
	f.decider.Script = []agentmock.Step{{Decision: agent.FinalAnswer{Text: "Hello, traveller!"}}}

	conv := agent.NewConversation()
	res, err := f.loop.Run(context.Background(), conv, "  hi  ")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Answer != "Hello, traveller!" || res.Iterations != 1 || res.ToolCalls != 0 || res.LimitHit {
		t.Errorf("unexpected result %+v", res)
	}
	if want := []agent.State{agent.AwaitDecision, agent.Done}; !reflect.DeepEqual(res.Transitions, want) {
		t.Errorf("transitions = %v, want %v", res.Transitions, want)
	}
	turns := conv.Turns()
	if roles(turns) != "user,assistant" || turns[0].(agent.UserTurn).Content != "hi" {
		t.Errorf("history = %+v", turns)
	}
}

func TestRun_FlightScenario(t *testing.T) {
	t.Parallel()
	flights := toolmock.New(tool.SearchFlights)
	flights.Payload = map[string]any{"origin": "JFK", "destination": "CDG", "flights_found": 0, "flights": []any{}}
	f := newFixture(t, agent.Policy{SystemPrompt: "concierge"}, flights)
	f.decider.Script = []agentmock.Step{
		{Decision: requests(req("c1", "search_flights", `{"origin":"NYC","destination":"Paris","departure_date":"2026-01-20"}`))},
		{Decision: agent.FinalAnswer{Text: "I found no flights from JFK to CDG on that date."}},
	}

	conv := agent.NewConversation()
	res, err := f.loop.Run(context.Background(), conv, "Find flights from NYC to Paris for 2026-01-20")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []agent.State{agent.AwaitDecision, agent.ExecuteTools, agent.AwaitDecision, agent.Done}
	if !reflect.DeepEqual(res.Transitions, want) {
		t.Errorf("transitions = %v, want %v", res.Transitions, want)
	}
	if res.Iterations != 2 || res.ToolCalls != 1 {
		t.Errorf("iterations = %d, tool calls = %d", res.Iterations, res.ToolCalls)
	}
	if flights.CallCount() != 1 {
		t.Errorf("flight search called %d times", flights.CallCount())
	}

	turns := conv.Turns()
	if roles(turns) != "user,assistant,tool,assistant" {
		t.Fatalf("history roles = %s", roles(turns))
	}
	result := turns[2].(agent.ToolResultTurn)
	if result.CallID != "c1" || result.Name != "search_flights" || !strings.Contains(result.Content, `"CDG"`) {
		t.Errorf("tool result = %+v", result)
	}

	calls := f.decider.Calls()
	if len(calls) != 2 {
		t.Fatalf("decider called %d times", len(calls))
	}
	if calls[0].System != "concierge" || len(calls[0].Tools) != 1 {
		t.Errorf("first call system = %q, tools = %d", calls[0].System, len(calls[0].Tools))
	}
	if roles(calls[1].Turns) != "user,assistant,tool" {
		t.Errorf("second decision saw %s, want tool results", roles(calls[1].Turns))
	}
}

func TestRun_BatchKeepsRequestOrder(t *testing.T) {
	t.Parallel()
	delayed := func(id tool.ID, d time.Duration) *toolmock.Capability {
		c := toolmock.New(id)
		c.Fn = func(ctx context.Context, _ json.RawMessage) (any, error) {
			select {
			case <-time.After(d):
				return map[string]string{"tool": id.String()}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return c
	}
	f := newFixture(t, agent.Policy{},
		delayed(tool.SearchFlights, 60*time.Millisecond),
		delayed(tool.GetWeather, 5*time.Millisecond),
		delayed(tool.GetAttractions, 30*time.Millisecond),
	)
	f.decider.Script = []agentmock.Step{
		{Decision: requests(
			req("a", "search_flights", `{}`),
			req("b", "get_weather", `{}`),
			req("c", "get_attractions", `{}`),
		)},
		{Decision: agent.FinalAnswer{Text: "done"}},
	}

	conv := agent.NewConversation()
	if _, err := f.loop.Run(context.Background(), conv, "plan my trip"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	turns := conv.Turns()
	if roles(turns) != "user,assistant,tool,tool,tool,assistant" {
		t.Fatalf("roles = %s", roles(turns))
	}
	for i, want := range []string{"a", "b", "c"} {
		got := turns[2+i].(agent.ToolResultTurn)
		if got.CallID != want {
			t.Errorf("result %d call id = %q, want %q", i, got.CallID, want)
		}
	}
}

// ── Failures surfaced to the model ───────────────────────────────────────────

func TestRun_ToolFailuresReachTheModel(t *testing.T) {
	t.Parallel()
	places := toolmock.New(tool.GetAttractions)
	places.Err = errors.New("upstream 500")
	f := newFixture(t, agent.Policy{}, places)
	weatherDesc := toolmock.New(tool.GetWeather).Desc
	if err := f.reg.MarkUnconfigured(weatherDesc, "OPENWEATHERMAP_API_KEY not set"); err != nil {
		t.Fatalf("MarkUnconfigured: %v", err)
	}
	f.decider.Script = []agentmock.Step{
		{Decision: requests(
			req("w", "get_weather", `{"location":"Paris"}`),
			req("p", "get_attractions", `{"location":"Paris"}`),
			req("x", "book_spaceship", `{}`),
		)},
		{Decision: agent.FinalAnswer{Text: "Sorry, I could not look those up right now."}},
	}

	conv := agent.NewConversation()
	res, err := f.loop.Run(context.Background(), conv, "weather and sights in Paris")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Answer != "Sorry, I could not look those up right now." {
		t.Errorf("answer = %q", res.Answer)
	}

	turns := conv.Turns()
	got := map[string]string{}
	for _, turn := range turns {
		if r, ok := turn.(agent.ToolResultTurn); ok {
			got[r.CallID] = r.Content
		}
	}
	if !strings.Contains(got["w"], "get_weather is not configured: OPENWEATHERMAP_API_KEY not set") {
		t.Errorf("weather result = %s", got["w"])
	}
	if !strings.Contains(got["p"], "upstream 500") {
		t.Errorf("attractions result = %s", got["p"])
	}
	if got["x"] != `{"error":"tool not found"}` {
		t.Errorf("unknown tool result = %s", got["x"])
	}
}

// ── Iteration bound ──────────────────────────────────────────────────────────

func TestRun_IterationLimit(t *testing.T) {
	t.Parallel()
	weather := toolmock.New(tool.GetWeather)
	weather.Payload = map[string]string{"ok": "yes"}
	f := newFixture(t, agent.Policy{MaxIterations: 3}, weather)
	f.decider.Default = requests(req("again", "get_weather", `{}`))

	conv := agent.NewConversation()
	res, err := f.loop.Run(context.Background(), conv, "loop forever")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.LimitHit || res.Answer != agent.LimitMessage {
		t.Errorf("result = %+v, want limit hit", res)
	}
	if res.Limit == nil || res.Limit.Limit != 3 {
		t.Errorf("Limit = %+v, want 3", res.Limit)
	}
	if res.Iterations != 3 || f.decider.CallCount() != 3 {
		t.Errorf("iterations = %d, decider calls = %d, want 3", res.Iterations, f.decider.CallCount())
	}
	if res.ToolCalls != 3 || weather.CallCount() != 3 {
		t.Errorf("tool calls = %d, invocations = %d", res.ToolCalls, weather.CallCount())
	}
	if last := res.Transitions[len(res.Transitions)-1]; last != agent.Done {
		t.Errorf("last transition = %v", last)
	}
	turns := conv.Turns()
	if a, ok := turns[len(turns)-1].(agent.AssistantTurn); !ok || a.Content != agent.LimitMessage || len(a.Requests) != 0 {
		t.Errorf("last turn = %+v", turns[len(turns)-1])
	}
	if conv.Pending() != 0 {
		t.Errorf("Pending = %d, every request must be answered", conv.Pending())
	}
}

func TestRun_TerminatesWithinBound(t *testing.T) {
	t.Parallel()
	weather := toolmock.New(tool.GetWeather)
	for steps := 1; steps <= agent.DefaultMaxIterations; steps++ {
		f := newFixture(t, agent.Policy{}, weather)
		for i := 1; i < steps; i++ {
			f.decider.Script = append(f.decider.Script, agentmock.Step{Decision: requests(req("c", "get_weather", `{}`))})
		}
		f.decider.Script = append(f.decider.Script, agentmock.Step{Decision: agent.FinalAnswer{Text: "fine"}})

		res, err := f.loop.Run(context.Background(), agent.NewConversation(), "go")
		if err != nil {
			t.Fatalf("steps=%d: Run: %v", steps, err)
		}
		if res.LimitHit || res.Iterations != steps {
			t.Errorf("steps=%d: iterations = %d, limit hit = %v", steps, res.Iterations, res.LimitHit)
		}
	}
}

// ── Rollback ─────────────────────────────────────────────────────────────────

func TestRun_ModelErrorRestoresConversation(t *testing.T) {
	t.Parallel()
	weather := toolmock.New(tool.GetWeather)
	f := newFixture(t, agent.Policy{}, weather)
	upstream := errors.New("model overloaded")
	f.decider.Script = []agentmock.Step{
		{Decision: agent.FinalAnswer{Text: "first answer"}},
		{Decision: requests(req("c1", "get_weather", `{}`))},
		{Err: &agent.ModelInvocationError{Err: upstream}},
	}

	conv := agent.NewConversation()
	if _, err := f.loop.Run(context.Background(), conv, "first"); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	before := conv.Turns()

	_, err := f.loop.Run(context.Background(), conv, "second")
	var mie *agent.ModelInvocationError
	if !errors.As(err, &mie) {
		t.Fatalf("error = %v, want ModelInvocationError", err)
	}
	if mie.Iteration != 2 || !errors.Is(err, upstream) {
		t.Errorf("iteration = %d, err = %v", mie.Iteration, err)
	}
	if !reflect.DeepEqual(conv.Turns(), before) {
		t.Errorf("history not restored:\n got %+v\nwant %+v", conv.Turns(), before)
	}
}

func TestRun_PlainDeciderErrorIsWrapped(t *testing.T) {
	t.Parallel()
	f := newFixture(t, agent.Policy{})
	f.decider.DefaultErr = errors.New("socket closed")

	conv := agent.NewConversation()
	_, err := f.loop.Run(context.Background(), conv, "hi")
	var mie *agent.ModelInvocationError
	if !errors.As(err, &mie) || mie.Iteration != 1 {
		t.Fatalf("error = %v, want ModelInvocationError at iteration 1", err)
	}
	if conv.Len() != 0 {
		t.Errorf("Len = %d, the user turn must be rolled back", conv.Len())
	}
}

func TestRun_CancellationRestoresConversation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	weather := toolmock.New(tool.GetWeather)
	weather.Fn = func(context.Context, json.RawMessage) (any, error) {
		cancel()
		return map[string]string{"ok": "yes"}, nil
	}
	f := newFixture(t, agent.Policy{}, weather)
	f.decider.Script = []agentmock.Step{{Decision: requests(req("c1", "get_weather", `{}`))}}

	conv := agent.NewConversation()
	_, err := f.loop.Run(ctx, conv, "weather?")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if conv.Len() != 0 || conv.Pending() != 0 {
		t.Errorf("Len = %d, Pending = %d after cancellation", conv.Len(), conv.Pending())
	}
}

func TestRun_InvalidDecisionRestoresConversation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, agent.Policy{})
	f.decider.Script = []agentmock.Step{{Decision: requests(req("a", "get_weather", `{}`), req("a", "get_events", `{}`))}}

	conv := agent.NewConversation()
	_, err := f.loop.Run(context.Background(), conv, "hi")
	if !errors.Is(err, agent.ErrInvalidTurn) {
		t.Fatalf("error = %v, want ErrInvalidTurn", err)
	}
	if conv.Len() != 0 {
		t.Errorf("Len = %d after rejected decision", conv.Len())
	}
}

func TestRun_EmptyMessage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, agent.Policy{})
	if _, err := f.loop.Run(context.Background(), agent.NewConversation(), " \n "); !errors.Is(err, agent.ErrEmptyMessage) {
		t.Fatalf("error = %v, want ErrEmptyMessage", err)
	}
	if f.decider.CallCount() != 0 {
		t.Error("decider called for an empty message")
	}
}

// ── Observer ─────────────────────────────────────────────────────────────────

func TestRun_Observer(t *testing.T) {
	t.Parallel()
	weather := toolmock.New(tool.GetWeather)
	weather.Payload = map[string]string{"temp": "21"}
	f := newFixture(t, agent.Policy{}, weather)
	f.decider.Script = []agentmock.Step{
		{Decision: requests(req("c1", "get_weather", `{}`))},
		{Decision: agent.FinalAnswer{Text: "warm"}},
	}

	var (
		mu      sync.Mutex
		states  []agent.State
		results []tool.Result
	)
	obs := agent.ObserverFuncs{
		Transition: func(s agent.State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
		ToolResults: func(rs []tool.Result) {
			mu.Lock()
			results = append(results, rs...)
			mu.Unlock()
		},
	}

	res, err := f.loop.Run(context.Background(), agent.NewConversation(), "weather", agent.WithObserver(obs))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(states, res.Transitions) {
		t.Errorf("observed %v, result has %v", states, res.Transitions)
	}
	if len(results) != 1 || results[0].CallID != "c1" || !results[0].Outcome.OK() {
		t.Errorf("observed results = %+v", results)
	}
}

// ── Construction and policy ──────────────────────────────────────────────────

func TestNewLoop_Validation(t *testing.T) {
	t.Parallel()
	reg := tool.NewRegistry()
	exec := tool.NewExecutor(reg)
	dec := &agentmock.Decider{}

	tests := []struct {
		name string
		cfg  agent.Config
	}{
		{name: "no decider", cfg: agent.Config{Executor: exec, Tools: reg}},
		{name: "no executor", cfg: agent.Config{Decider: dec, Tools: reg}},
		{name: "no tools", cfg: agent.Config{Decider: dec, Executor: exec}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := agent.NewLoop(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoop_SetPolicy(t *testing.T) {
	t.Parallel()
	f := newFixture(t, agent.Policy{})
	if p := f.loop.Policy(); p.SystemPrompt != agent.DefaultSystemPrompt || p.MaxIterations != agent.DefaultMaxIterations {
		t.Errorf("default policy = %+v", p)
	}
	f.loop.SetPolicy(agent.Policy{SystemPrompt: "terse", MaxIterations: 2})
	if p := f.loop.Policy(); p.SystemPrompt != "terse" || p.MaxIterations != 2 {
		t.Errorf("policy = %+v", p)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[agent.State]string{
		agent.AwaitDecision: "await_decision",
		agent.ExecuteTools:  "execute_tools",
		agent.Done:          "done",
		agent.State(42):     "State(42)",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
