package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/travelgenie/internal/agent"
	"github.com/MrWong99/travelgenie/internal/observe"
	"github.com/MrWong99/travelgenie/internal/session"
)

// echoRunner appends the user turn and an echo answer. When gate is non-nil
// it blocks until gate is closed.
type echoRunner struct {
	gate    chan struct{}
	started chan struct{}
	err     error
}

func (r *echoRunner) Run(ctx context.Context, conv *agent.Conversation, text string, _ ...agent.RunOption) (agent.Result, error) {
	if r.started != nil {
		r.started <- struct{}{}
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return agent.Result{}, ctx.Err()
		}
	}
	if r.err != nil {
		return agent.Result{}, r.err
	}
	if err := conv.Append(agent.UserTurn{Content: text}, agent.AssistantTurn{Content: "echo: " + text}); err != nil {
		return agent.Result{}, err
	}
	return agent.Result{Answer: "echo: " + text, Iterations: 1}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManager(t *testing.T, r session.Runner, cfg session.Config) (*session.Manager, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	cfg.Runner = r
	cfg.Metrics = m
	mgr, err := session.NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr, reader
}

func activeSessions(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "travelgenie.active_sessions" {
				var v int64
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					v += dp.Value
				}
				return v
			}
		}
	}
	return 0
}

// ── Lifecycle ────────────────────────────────────────────────────────────────

func TestManager_CreateSendHistory(t *testing.T) {
	t.Parallel()
	mgr, reader := newManager(t, &echoRunner{}, session.Config{})
	ctx := context.Background()

	info, err := mgr.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if info.ID == "" || info.CreatedAt.IsZero() {
		t.Fatalf("unexpected info %+v", info)
	}

	res, err := mgr.Send(ctx, info.ID, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.Answer != "echo: hello" {
		t.Errorf("answer = %q", res.Answer)
	}

	hist, err := mgr.History(info.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Errorf("history length = %d, want 2", len(hist))
	}
	got, _ := mgr.Get(info.ID)
	if got.Turns != 2 || got.Busy {
		t.Errorf("Get = %+v", got)
	}
	if n := activeSessions(t, reader); n != 1 {
		t.Errorf("active sessions = %d, want 1", n)
	}
}

func TestManager_UnknownSession(t *testing.T) {
	t.Parallel()
	mgr, _ := newManager(t, &echoRunner{}, session.Config{})
	ctx := context.Background()

	if _, err := mgr.Send(ctx, "nope", "hi"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Send = %v", err)
	}
	if _, err := mgr.History("nope"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("History = %v", err)
	}
	if err := mgr.Clear("nope"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Clear = %v", err)
	}
	if err := mgr.Delete(ctx, "nope"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Delete = %v", err)
	}
}

func TestManager_ClearAndDelete(t *testing.T) {
	t.Parallel()
	mgr, reader := newManager(t, &echoRunner{}, session.Config{})
	ctx := context.Background()
	info, _ := mgr.Create(ctx)
	_, _ = mgr.Send(ctx, info.ID, "hi")

	if err := mgr.Clear(info.ID); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if hist, _ := mgr.History(info.ID); len(hist) != 0 {
		t.Errorf("history after Clear = %d turns", len(hist))
	}

	if err := mgr.Delete(ctx, info.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := mgr.Get(info.ID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Get after Delete = %v", err)
	}
	if n := activeSessions(t, reader); n != 0 {
		t.Errorf("active sessions = %d, want 0", n)
	}
}

func TestManager_ListOldestFirst(t *testing.T) {
	t.Parallel()
	clk := &clock{now: time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)}
	mgr, _ := newManager(t, &echoRunner{}, session.Config{Now: clk.Now})
	ctx := context.Background()

	first, _ := mgr.Create(ctx)
	clk.Advance(time.Second)
	second, _ := mgr.Create(ctx)

	list := mgr.List()
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Errorf("List = %+v", list)
	}
}

// ── Single writer ────────────────────────────────────────────────────────────

func TestManager_BusyWhileTurnInFlight(t *testing.T) {
	t.Parallel()
	r := &echoRunner{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	mgr, _ := newManager(t, r, session.Config{})
	ctx := context.Background()
	info, _ := mgr.Create(ctx)

	errc := make(chan error, 1)
	go func() {
		_, err := mgr.Send(ctx, info.ID, "first")
		errc <- err
	}()
	<-r.started

	if _, err := mgr.Send(ctx, info.ID, "second"); !errors.Is(err, session.ErrSessionBusy) {
		t.Errorf("concurrent Send = %v, want ErrSessionBusy", err)
	}
	if err := mgr.Clear(info.ID); !errors.Is(err, session.ErrSessionBusy) {
		t.Errorf("Clear during turn = %v, want ErrSessionBusy", err)
	}
	if got, _ := mgr.Get(info.ID); !got.Busy {
		t.Error("session not reported busy")
	}

	close(r.gate)
	if err := <-errc; err != nil {
		t.Fatalf("first Send: %v", err)
	}
	r.started = nil
	if _, err := mgr.Send(ctx, info.ID, "third"); err != nil {
		t.Errorf("Send after turn finished: %v", err)
	}
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	t.Parallel()
	mgr, _ := newManager(t, &echoRunner{}, session.Config{})
	ctx := context.Background()

	ids := make([]string, 8)
	for i := range ids {
		info, _ := mgr.Create(ctx)
		ids[i] = info.ID
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mgr.Send(ctx, id, "hi"); err != nil {
				t.Errorf("Send(%s): %v", id, err)
			}
		}()
	}
	wg.Wait()
	for _, id := range ids {
		if hist, _ := mgr.History(id); len(hist) != 2 {
			t.Errorf("session %s has %d turns, want 2", id, len(hist))
		}
	}
}

func TestManager_RunnerErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := &agent.ModelInvocationError{Err: errors.New("down")}
	mgr, _ := newManager(t, &echoRunner{err: boom}, session.Config{})
	ctx := context.Background()
	info, _ := mgr.Create(ctx)

	_, err := mgr.Send(ctx, info.ID, "hi")
	var mie *agent.ModelInvocationError
	if !errors.As(err, &mie) {
		t.Fatalf("Send = %v, want ModelInvocationError", err)
	}
	if got, _ := mgr.Get(info.ID); got.Busy {
		t.Error("session still busy after failed turn")
	}
}

// ── Eviction ─────────────────────────────────────────────────────────────────

func TestManager_SweepEvictsIdle(t *testing.T) {
	t.Parallel()
	clk := &clock{now: time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)}
	mgr, reader := newManager(t, &echoRunner{}, session.Config{IdleTimeout: 10 * time.Minute, Now: clk.Now})
	ctx := context.Background()

	stale, _ := mgr.Create(ctx)
	clk.Advance(8 * time.Minute)
	fresh, _ := mgr.Create(ctx)
	clk.Advance(3 * time.Minute)

	if n := mgr.Sweep(ctx); n != 1 {
		t.Fatalf("Sweep evicted %d, want 1", n)
	}
	if _, err := mgr.Get(stale.ID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("stale session still present: %v", err)
	}
	if _, err := mgr.Get(fresh.ID); err != nil {
		t.Errorf("fresh session evicted: %v", err)
	}
	if n := activeSessions(t, reader); n != 1 {
		t.Errorf("active sessions = %d, want 1", n)
	}
}

func TestManager_SweepKeepsBusy(t *testing.T) {
	t.Parallel()
	clk := &clock{now: time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)}
	r := &echoRunner{gate: make(chan struct{}), started: make(chan struct{}, 1)}
	mgr, _ := newManager(t, r, session.Config{IdleTimeout: time.Minute, Now: clk.Now})
	ctx := context.Background()
	info, _ := mgr.Create(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = mgr.Send(ctx, info.ID, "slow")
	}()
	<-r.started
	clk.Advance(time.Hour)

	if n := mgr.Sweep(ctx); n != 0 {
		t.Errorf("Sweep evicted %d busy sessions", n)
	}
	close(r.gate)
	<-done
}

func TestManager_SweepDisabled(t *testing.T) {
	t.Parallel()
	clk := &clock{now: time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)}
	mgr, _ := newManager(t, &echoRunner{}, session.Config{IdleTimeout: -1, Now: clk.Now})
	ctx := context.Background()
	_, _ = mgr.Create(ctx)
	clk.Advance(24 * time.Hour)
	if n := mgr.Sweep(ctx); n != 0 {
		t.Errorf("Sweep evicted %d with eviction disabled", n)
	}
}

func TestManager_BackgroundSweeper(t *testing.T) {
	t.Parallel()
	mgr, _ := newManager(t, &echoRunner{}, session.Config{
		IdleTimeout:   20 * time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)

	_, _ = mgr.Create(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for mgr.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("idle session never evicted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManager_Close(t *testing.T) {
	t.Parallel()
	mgr, reader := newManager(t, &echoRunner{}, session.Config{})
	ctx := context.Background()
	mgr.Start(ctx)
	_, _ = mgr.Create(ctx)
	_, _ = mgr.Create(ctx)

	if err := mgr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := mgr.Create(ctx); !errors.Is(err, session.ErrClosed) {
		t.Errorf("Create after Close = %v, want ErrClosed", err)
	}
	if n := activeSessions(t, reader); n != 0 {
		t.Errorf("active sessions = %d after Close", n)
	}
	if err := mgr.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestNewManager_RequiresRunner(t *testing.T) {
	t.Parallel()
	if _, err := session.NewManager(session.Config{}); err == nil {
		t.Error("expected error for nil Runner")
	}
}
