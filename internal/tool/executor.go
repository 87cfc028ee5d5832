package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/travelgenie/internal/observe"
	"github.com/MrWong99/travelgenie/internal/tool/cache"
)

// DefaultTimeout bounds a tool call whose descriptor declares no
// MaxDurationMs.
const DefaultTimeout = 30 * time.Second

// ─────────────────────────────────────────────────────────────────────────────
// Options
// ─────────────────────────────────────────────────────────────────────────────

// ExecutorOption configures an [Executor].
type ExecutorOption func(*Executor)

// WithTimeout sets the default per-call timeout.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithCache enables result caching for idempotent tools that declare a
// positive CacheableSeconds.
func WithCache(c cache.Cache) ExecutorOption {
	return func(e *Executor) { e.cache = c }
}

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithConcurrency caps how many calls of one batch run at once. Zero or
// negative means unlimited.
func WithConcurrency(n int) ExecutorOption {
	return func(e *Executor) { e.concurrency = n }
}

// ─────────────────────────────────────────────────────────────────────────────
// Executor
// ─────────────────────────────────────────────────────────────────────────────

// Executor shapes tool invocations into Results. It never returns an error
// and never lets one request affect its siblings.
type Executor struct {
	reg         *Registry
	cache       cache.Cache
	metrics     *observe.Metrics
	timeout     time.Duration
	concurrency int

	// schemas caches compiled argument schemas by tool name.
	schemas sync.Map
}

// NewExecutor returns an Executor dispatching through reg.
func NewExecutor(reg *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{reg: reg, timeout: DefaultTimeout}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Execute runs reqs concurrently and returns one Result per request, in
// request order, with call identifiers preserved. It blocks until every call
// has finished.
func (e *Executor) Execute(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))
	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = e.ExecuteOne(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ExecuteOne runs a single request.
func (e *Executor) ExecuteOne(ctx context.Context, req Request) Result {
	ctx, span := observe.StartSpan(ctx, "tool.execute")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", req.Name), attribute.String("tool.call_id", req.ID))

	start := time.Now()
	outcome := e.run(ctx, req)

	status := observe.StatusOK
	if !outcome.OK() {
		status = observe.StatusError
		span.SetStatus(codes.Error, outcome.Reason())
		observe.Logger(ctx).Info("tool call failed", "tool", req.Name, "call_id", req.ID, "reason", outcome.Reason())
	}
	e.metrics.RecordToolCall(ctx, req.Name, status, time.Since(start))

	return Result{CallID: req.ID, Name: req.Name, Outcome: outcome}
}

func (e *Executor) run(ctx context.Context, req Request) Outcome {
	c, st, err := e.reg.Lookup(req.Name)
	if err != nil {
		// The model sees only the sentinel text, not the name it made up.
		return Outcome{reason: ErrNotFound.Error(), err: err}
	}
	if !st.Configured || c == nil {
		return FailureErr(&ConfigurationError{Tool: req.Name, Reason: st.Reason})
	}
	desc := c.Descriptor()

	args := req.Arguments
	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage("{}")
	}
	if err := e.validate(desc, args); err != nil {
		return Failure("invalid arguments: " + err.Error())
	}

	cacheable := e.cache != nil && desc.Definition.Idempotent && desc.Definition.CacheableSeconds > 0
	var key string
	if cacheable {
		key = cache.Key(req.Name, args)
		if b, ok := e.cache.Get(ctx, key); ok {
			e.metrics.RecordToolCache(ctx, req.Name, true)
			return Success(json.RawMessage(b))
		}
		e.metrics.RecordToolCache(ctx, req.Name, false)
	}

	timeout := e.timeout
	if ms := desc.Definition.MaxDurationMs; ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	payload, err := invoke(ctx, c, args, timeout)
	if err != nil {
		return FailureErr(classify(err))
	}

	if cacheable {
		if b, err := json.Marshal(payload); err == nil {
			e.cache.Set(ctx, key, b, time.Duration(desc.Definition.CacheableSeconds)*time.Second)
		} else {
			slog.Warn("tool: result not cacheable", "tool", req.Name, "err", err)
		}
	}
	return Success(payload)
}

// invoke calls c under timeout and converts panics into errors.
func invoke(ctx context.Context, c Capability, args json.RawMessage, timeout time.Duration) (payload any, err error) {
	name := c.Descriptor().Name()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			payload, err = nil, fmt.Errorf("%s panicked: %v", name, r)
		}
	}()

	payload, err = c.Invoke(callCtx, args)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%s timed out after %s", name, timeout)
		}
		return nil, err
	}
	return payload, nil
}

func (e *Executor) validate(desc Descriptor, args json.RawMessage) error {
	if len(desc.Definition.Parameters) == 0 {
		if !json.Valid(args) {
			return errors.New("arguments are not valid JSON")
		}
		return nil
	}
	schema, err := e.schema(desc)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", desc.Name(), err)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return err
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, re := range res.Errors() {
		msgs = append(msgs, re.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}

func (e *Executor) schema(desc Descriptor) (*gojsonschema.Schema, error) {
	if s, ok := e.schemas.Load(desc.Name()); ok {
		return s.(*gojsonschema.Schema), nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(desc.Definition.Parameters))
	if err != nil {
		return nil, err
	}
	actual, _ := e.schemas.LoadOrStore(desc.Name(), s)
	return actual.(*gojsonschema.Schema), nil
}
