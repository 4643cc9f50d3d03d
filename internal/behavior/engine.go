package behavior

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/aide/internal/contextstore"
	"github.com/haasonsaas/aide/internal/dispatch"
	"github.com/haasonsaas/aide/internal/observability"
)

// Engine drives behavior evaluation: a periodic tick for time- and
// pattern-kind behaviors, immediate dispatch for event-kind behaviors,
// and re-evaluation of context-kind behaviors on context updates.
//
// The engine imposes no built-in cooldown. Throttling is implemented
// inside conditions by reading a context key the action itself writes,
// so cooldown policy stays behavior-specific.
type Engine struct {
	registry      *Registry
	store         *contextstore.Store
	dispatcher    *dispatch.Dispatcher
	logger        *slog.Logger
	metrics       *observability.Metrics
	now           func() time.Time
	tickInterval  time.Duration
	actionTimeout time.Duration

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger configures the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDispatcher wires firing notifications to a dispatcher.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(e *Engine) {
		if d != nil {
			e.dispatcher = d
		}
	}
}

// WithMetrics wires firing counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTickInterval overrides the scheduler tick interval.
func WithTickInterval(interval time.Duration) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.tickInterval = interval
		}
	}
}

// WithActionTimeout bounds each action execution.
func WithActionTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.actionTimeout = timeout
		}
	}
}

// NewEngine creates an engine over the given registry and store.
func NewEngine(registry *Registry, store *contextstore.Store, opts ...Option) *Engine {
	e := &Engine{
		registry:      registry,
		store:         store,
		logger:        slog.Default().With("component", "behavior"),
		now:           time.Now,
		tickInterval:  time.Minute,
		actionTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's behavior registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Store returns the shared context store.
func (e *Engine) Store() *contextstore.Store { return e.store }

// Start begins the tick loop until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.RunTick(ctx)
			}
		}
	}()
}

// Stop waits for the tick loop to exit.
func (e *Engine) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunTick evaluates all time- and pattern-kind behaviors against one
// snapshot, in descending priority order, firing each whose condition
// holds. Returns the number of behaviors fired. Exposed for tests and
// for manual invocation.
func (e *Engine) RunTick(ctx context.Context) int {
	return e.evaluate(ctx, nil, e.registry.byKind(KindTime, KindPattern))
}

// PublishEvent immediately evaluates all event-kind behaviors against
// the event, bypassing the tick wait.
func (e *Engine) PublishEvent(ctx context.Context, evt *Event) int {
	if evt == nil {
		return 0
	}
	return e.evaluate(ctx, evt, e.registry.byKind(KindEvent))
}

// UpdateContext merges updates into the context store and re-evaluates
// all context-kind behaviors. This is the mutation entry point the
// gateway uses; actions writing their own throttle keys go through
// Store().Set directly and do not re-trigger.
func (e *Engine) UpdateContext(ctx context.Context, updates map[string]any) int {
	e.store.Update(updates)
	return e.evaluate(ctx, nil, e.registry.byKind(KindContext))
}

// Trigger force-fires one behavior by name, bypassing its condition.
// The action always runs; its result is returned.
func (e *Engine) Trigger(ctx context.Context, name string) (any, error) {
	b, ok := e.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e.fire(ctx, b, nil)
}

// evaluate runs one evaluation pass over behaviors, which must already
// be in priority order. All conditions see the same snapshot; a firing
// failure is logged and does not stop the pass.
func (e *Engine) evaluate(ctx context.Context, evt *Event, behaviors []*Behavior) int {
	snap := e.store.Snapshot()
	fired := 0
	for _, b := range behaviors {
		if ctx.Err() != nil {
			return fired
		}
		if !e.safeEvaluate(b, snap, evt) {
			continue
		}
		if _, err := e.fire(ctx, b, evt); err != nil {
			e.logger.Warn("behavior action failed",
				"behavior", b.Name, "error", err)
			continue
		}
		fired++
	}
	return fired
}

// safeEvaluate guards against panicking conditions so one bad behavior
// cannot take down the tick.
func (e *Engine) safeEvaluate(b *Behavior, snap contextstore.Snapshot, evt *Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("behavior condition panicked",
				"behavior", b.Name, "panic", r)
			ok = false
		}
	}()
	return b.Condition.Evaluate(snap, evt)
}

// fire executes a behavior's action with the configured timeout,
// updates its counters on success, and publishes a behavior_fired
// event.
func (e *Engine) fire(ctx context.Context, b *Behavior, evt *Event) (result any, err error) {
	actionCtx := ctx
	if e.actionTimeout > 0 {
		var cancel context.CancelFunc
		actionCtx, cancel = context.WithTimeout(ctx, e.actionTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("behavior %s action panicked: %v", b.Name, r)
		}
		status := "success"
		if err != nil {
			status = "error"
		}
		if e.metrics != nil {
			e.metrics.BehaviorFirings.WithLabelValues(b.Name, status).Inc()
		}
	}()

	result, err = b.Action.Execute(actionCtx, e.store, evt)
	if err != nil {
		return nil, err
	}

	now := e.now()
	e.registry.markFired(b, now)
	e.logger.Info("behavior fired", "behavior", b.Name, "kind", string(b.Kind))
	if e.dispatcher != nil {
		e.dispatcher.Publish(dispatch.EventBehaviorFired, map[string]any{
			"name":   b.Name,
			"result": result,
		})
	}
	return result, nil
}
