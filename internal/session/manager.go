// Package session keeps the in-memory chat sessions of the travel concierge.
//
// Each session owns one [agent.Conversation]. The [Manager] serialises turns
// per session: a second message sent while a turn is still in flight is
// rejected with [ErrSessionBusy] rather than queued, so a conversation only
// ever has a single writer. Sessions that stay idle longer than the configured
// timeout are evicted by a background sweeper. Nothing survives a restart.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/travelgenie/internal/agent"
	"github.com/MrWong99/travelgenie/internal/observe"
)

// Defaults for [Config].
const (
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

var (
	// ErrSessionNotFound is returned for unknown or evicted session IDs.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrSessionBusy is returned when a session already has a turn in flight.
	ErrSessionBusy = errors.New("session: a turn is already in progress")

	// ErrClosed is returned after [Manager.Close].
	ErrClosed = errors.New("session: manager closed")
)

// Runner processes one user turn against a conversation. [*agent.Loop]
// implements it.
type Runner interface {
	Run(ctx context.Context, conv *agent.Conversation, text string, opts ...agent.RunOption) (agent.Result, error)
}

// Info describes a session.
type Info struct {
	ID         string    `json:"session_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	Turns      int       `json:"turns"`
	Busy       bool      `json:"busy"`
}

// Config holds the dependencies of a [Manager].
type Config struct {
	// Runner is required.
	Runner Runner

	// IdleTimeout evicts sessions without activity for this long. Zero uses
	// DefaultIdleTimeout; negative disables eviction.
	IdleTimeout time.Duration

	// SweepInterval is how often idle sessions are looked for. Zero uses
	// DefaultSweepInterval, capped at IdleTimeout.
	SweepInterval time.Duration

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

type chat struct {
	id      string
	created time.Time
	conv    *agent.Conversation

	// turn is held for the duration of a Send and while the history is
	// cleared.
	turn sync.Mutex

	// mu guards lastActive and busy.
	mu         sync.Mutex
	lastActive time.Time
	busy       bool
}

func (c *chat) info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{ID: c.id, CreatedAt: c.created, LastActive: c.lastActive, Turns: c.conv.Len(), Busy: c.busy}
}

func (c *chat) acquire(now time.Time) bool {
	if !c.turn.TryLock() {
		return false
	}
	c.mu.Lock()
	c.busy = true
	c.lastActive = now
	c.mu.Unlock()
	return true
}

func (c *chat) release(now time.Time) {
	c.mu.Lock()
	c.busy = false
	c.lastActive = now
	c.mu.Unlock()
	c.turn.Unlock()
}

// Manager owns every live session. All exported methods are safe for
// concurrent use.
type Manager struct {
	runner        Runner
	idleTimeout   time.Duration
	sweepInterval time.Duration
	metrics       *observe.Metrics
	now           func() time.Time

	mu       sync.RWMutex
	sessions map[string]*chat
	closed   bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager returns a Manager. Call [Manager.Start] to begin idle eviction.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Runner == nil {
		return nil, errors.New("session: Runner must not be nil")
	}
	m := &Manager{
		runner:        cfg.Runner,
		idleTimeout:   cfg.IdleTimeout,
		sweepInterval: cfg.SweepInterval,
		metrics:       cfg.Metrics,
		now:           cfg.Now,
		sessions:      make(map[string]*chat),
		done:          make(chan struct{}),
	}
	if m.idleTimeout == 0 {
		m.idleTimeout = DefaultIdleTimeout
	}
	if m.sweepInterval <= 0 {
		m.sweepInterval = DefaultSweepInterval
	}
	if m.idleTimeout > 0 && m.sweepInterval > m.idleTimeout {
		m.sweepInterval = m.idleTimeout
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Start launches the idle sweeper. It stops when ctx is done or the manager
// is closed. Start is a no-op when eviction is disabled.
func (m *Manager) Start(ctx context.Context) {
	if m.idleTimeout < 0 {
		return
	}
	m.wg.Add(1)
	go m.sweepLoop(ctx)
}

func (m *Manager) sweepLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep evicts every session idle for longer than the idle timeout and
// returns how many were removed. Sessions with a turn in flight are kept.
func (m *Manager) Sweep(ctx context.Context) int {
	if m.idleTimeout < 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	var evicted []string
	for id, c := range m.sessions {
		c.mu.Lock()
		idle := !c.busy && c.lastActive.Before(cutoff)
		c.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}
	m.mu.Unlock()

	for _, id := range evicted {
		m.metrics.ActiveSessions.Add(ctx, -1)
		slog.Info("session evicted", "session_id", id, "idle_timeout", m.idleTimeout)
	}
	return len(evicted)
}

// Create starts a new, empty session.
func (m *Manager) Create(ctx context.Context) (Info, error) {
	now := m.now()
	c := &chat{
		id:         uuid.NewString(),
		created:    now,
		lastActive: now,
		conv:       agent.NewConversation(),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Info{}, ErrClosed
	}
	m.sessions[c.id] = c
	m.mu.Unlock()

	m.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session created", "session_id", c.id)
	return c.info(), nil
}

func (m *Manager) lookup(id string) (*chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	c, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// Get returns the session's metadata.
func (m *Manager) Get(id string) (Info, error) {
	c, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return c.info(), nil
}

// Send runs one user turn in the session. It fails fast with
// [ErrSessionBusy] when another turn is in flight.
func (m *Manager) Send(ctx context.Context, id, text string, opts ...agent.RunOption) (agent.Result, error) {
	c, err := m.lookup(id)
	if err != nil {
		return agent.Result{}, err
	}
	if !c.acquire(m.now()) {
		return agent.Result{}, ErrSessionBusy
	}
	defer func() { c.release(m.now()) }()

	return m.runner.Run(observe.WithSessionID(ctx, id), c.conv, text, opts...)
}

// History returns a copy of the session's turns.
func (m *Manager) History(id string) ([]agent.Turn, error) {
	c, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return c.conv.Turns(), nil
}

// Clear empties the session's history. It fails with [ErrSessionBusy] while
// a turn is in flight.
func (m *Manager) Clear(id string) error {
	c, err := m.lookup(id)
	if err != nil {
		return err
	}
	if !c.acquire(m.now()) {
		return ErrSessionBusy
	}
	defer func() { c.release(m.now()) }()
	c.conv.Clear()
	slog.Info("session history cleared", "session_id", id)
	return nil
}

// Delete removes the session. It fails with [ErrSessionBusy] while a turn is
// in flight.
func (m *Manager) Delete(ctx context.Context, id string) error {
	c, err := m.lookup(id)
	if err != nil {
		return err
	}
	if !c.acquire(m.now()) {
		return ErrSessionBusy
	}
	defer func() { c.release(m.now()) }()

	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.metrics.ActiveSessions.Add(ctx, -1)
	slog.Info("session deleted", "session_id", id)
	return nil
}

// List returns every live session, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, c := range m.sessions {
		out = append(out, c.info())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the sweeper and drops every session. In-flight turns finish on
// their own; their sessions are already gone when they do.
func (m *Manager) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	m.wg.Wait()

	m.mu.Lock()
	n := len(m.sessions)
	m.sessions = make(map[string]*chat)
	m.closed = true
	m.mu.Unlock()

	if n > 0 {
		m.metrics.ActiveSessions.Add(context.Background(), int64(-n))
	}
	slog.Info("session manager closed", "sessions", n)
	return nil
}
