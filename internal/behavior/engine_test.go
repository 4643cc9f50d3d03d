package behavior

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/aide/internal/contextstore"
	"github.com/haasonsaas/aide/internal/dispatch"
)

// fakeClock is a mutable clock shared by store, engine and dispatcher.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func alwaysTrue() Condition {
	return ConditionFunc(func(contextstore.Snapshot, *Event) bool { return true })
}

func noopAction() Action {
	return ActionFunc(func(context.Context, *contextstore.Store, *Event) (any, error) {
		return "ok", nil
	})
}

func newTestEngine(t *testing.T, clock *fakeClock) *Engine {
	t.Helper()
	store := contextstore.New(contextstore.WithNow(clock.Now))
	return NewEngine(NewRegistry(), store, WithNow(clock.Now))
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	b := &Behavior{Name: "check_in", Kind: KindTime, Priority: 5,
		Condition: alwaysTrue(), Action: noopAction()}
	if err := r.Register(b); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	dup := &Behavior{Name: "check_in", Kind: KindEvent, Priority: 1,
		Condition: alwaysTrue(), Action: noopAction()}
	err := r.Register(dup)
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Register duplicate = %v, want ErrDuplicateName", err)
	}

	// The original registration is left intact.
	got, ok := r.Get("check_in")
	if !ok || got.Kind != KindTime {
		t.Errorf("existing behavior was replaced: %+v", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	cases := []struct {
		name string
		b    *Behavior
	}{
		{"empty name", &Behavior{Kind: KindTime, Priority: 5, Condition: alwaysTrue(), Action: noopAction()}},
		{"bad kind", &Behavior{Name: "x", Kind: Kind("bogus"), Priority: 5, Condition: alwaysTrue(), Action: noopAction()}},
		{"nil condition", &Behavior{Name: "x", Kind: KindTime, Priority: 5, Action: noopAction()}},
		{"priority too low", &Behavior{Name: "x", Kind: KindTime, Priority: 0, Condition: alwaysTrue(), Action: noopAction()}},
		{"priority too high", &Behavior{Name: "x", Kind: KindTime, Priority: 11, Condition: alwaysTrue(), Action: noopAction()}},
	}
	for _, tc := range cases {
		if err := r.Register(tc.b); err == nil {
			t.Errorf("%s: expected registration to fail", tc.name)
		}
	}
}

func TestListOrdersByPriorityDesc(t *testing.T) {
	r := NewRegistry()
	for _, spec := range []struct {
		name     string
		priority int
	}{
		{"low", 2}, {"high", 9}, {"mid", 5},
	} {
		b := &Behavior{Name: spec.name, Kind: KindTime, Priority: spec.priority,
			Condition: alwaysTrue(), Action: noopAction()}
		if err := r.Register(b); err != nil {
			t.Fatalf("Register %s: %v", spec.name, err)
		}
	}

	list := r.List()
	want := []string{"high", "mid", "low"}
	for i, name := range want {
		if list[i].Name != name {
			t.Errorf("List[%d] = %s, want %s", i, list[i].Name, name)
		}
	}
}

func TestTickFiresInPriorityOrder(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	e := newTestEngine(t, clock)

	var fired []string
	record := func(name string) Action {
		return ActionFunc(func(context.Context, *contextstore.Store, *Event) (any, error) {
			fired = append(fired, name)
			return nil, nil
		})
	}
	for _, spec := range []struct {
		name     string
		priority int
	}{
		{"second", 5}, {"first", 10}, {"third", 1},
	} {
		b := &Behavior{Name: spec.name, Kind: KindTime, Priority: spec.priority,
			Condition: alwaysTrue(), Action: record(spec.name)}
		if err := e.Registry().Register(b); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	if n := e.RunTick(context.Background()); n != 3 {
		t.Fatalf("RunTick fired %d, want 3", n)
	}
	want := []string{"first", "second", "third"}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("firing order[%d] = %s, want %s", i, fired[i], want[i])
		}
	}
}

func TestTriggerCountIncrementsOncePerFiring(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	e := newTestEngine(t, clock)

	b := &Behavior{Name: "counter", Kind: KindTime, Priority: 5,
		Condition: alwaysTrue(), Action: noopAction()}
	if err := e.Registry().Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for i := 0; i < 3; i++ {
		e.RunTick(context.Background())
	}

	list := e.Registry().List()
	if list[0].TriggerCount != 3 {
		t.Errorf("TriggerCount = %d, want 3", list[0].TriggerCount)
	}
	if list[0].LastTriggered == nil {
		t.Error("LastTriggered not set")
	}
}

func TestFailedActionDoesNotCountOrStopTick(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	e := newTestEngine(t, clock)

	failing := &Behavior{Name: "failing", Kind: KindTime, Priority: 10,
		Condition: alwaysTrue(),
		Action: ActionFunc(func(context.Context, *contextstore.Store, *Event) (any, error) {
			return nil, errors.New("boom")
		})}
	healthy := &Behavior{Name: "healthy", Kind: KindTime, Priority: 5,
		Condition: alwaysTrue(), Action: noopAction()}
	for _, b := range []*Behavior{failing, healthy} {
		if err := e.Registry().Register(b); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	if n := e.RunTick(context.Background()); n != 1 {
		t.Errorf("RunTick fired %d, want 1", n)
	}
	for _, s := range e.Registry().List() {
		switch s.Name {
		case "failing":
			if s.TriggerCount != 0 {
				t.Errorf("failing TriggerCount = %d, want 0", s.TriggerCount)
			}
		case "healthy":
			if s.TriggerCount != 1 {
				t.Errorf("healthy TriggerCount = %d, want 1", s.TriggerCount)
			}
		}
	}
}

func TestPanickingConditionIsContained(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	e := newTestEngine(t, clock)

	panicky := &Behavior{Name: "panicky", Kind: KindTime, Priority: 10,
		Condition: ConditionFunc(func(contextstore.Snapshot, *Event) bool {
			panic("bad condition")
		}),
		Action: noopAction()}
	healthy := &Behavior{Name: "healthy", Kind: KindTime, Priority: 5,
		Condition: alwaysTrue(), Action: noopAction()}
	for _, b := range []*Behavior{panicky, healthy} {
		if err := e.Registry().Register(b); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	if n := e.RunTick(context.Background()); n != 1 {
		t.Errorf("RunTick fired %d, want 1", n)
	}
}

func TestThrottledBehaviorFiresOncePerWindow(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	e := newTestEngine(t, clock)

	const key = "last_ping"
	b := &Behavior{Name: "ping", Kind: KindTime, Priority: 5,
		Condition: ThrottleCondition(key, time.Hour),
		Action: ActionFunc(func(_ context.Context, store *contextstore.Store, _ *Event) (any, error) {
			MarkFired(store, key, clock.Now())
			return nil, nil
		})}
	if err := e.Registry().Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	if n := e.RunTick(ctx); n != 1 {
		t.Fatalf("first tick fired %d, want 1", n)
	}
	// Within the window nothing fires however many ticks run.
	clock.Advance(30 * time.Minute)
	if n := e.RunTick(ctx); n != 0 {
		t.Errorf("tick inside window fired %d, want 0", n)
	}
	clock.Advance(31 * time.Minute)
	if n := e.RunTick(ctx); n != 1 {
		t.Errorf("tick after window fired %d, want 1", n)
	}
}

func TestEventBehaviorsEvaluateImmediately(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	e := newTestEngine(t, clock)

	var seen *Event
	b := &Behavior{Name: "on_event", Kind: KindEvent, Priority: 5,
		Condition: ConditionFunc(func(_ contextstore.Snapshot, evt *Event) bool {
			return evt != nil && evt.Type == "message_received"
		}),
		Action: ActionFunc(func(_ context.Context, _ *contextstore.Store, evt *Event) (any, error) {
			seen = evt
			return nil, nil
		})}
	if err := e.Registry().Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}

	n := e.PublishEvent(context.Background(), &Event{
		Type:    "message_received",
		Payload: map[string]any{"sender": "alice"},
	})
	if n != 1 {
		t.Fatalf("PublishEvent fired %d, want 1", n)
	}
	if seen == nil || seen.Payload["sender"] != "alice" {
		t.Errorf("action saw event %+v", seen)
	}

	// Event behaviors are not evaluated on ticks.
	if n := e.RunTick(context.Background()); n != 0 {
		t.Errorf("RunTick fired %d, want 0", n)
	}
}

func TestContextBehaviorsEvaluateOnUpdate(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	e := newTestEngine(t, clock)

	b := &Behavior{Name: "on_state_change", Kind: KindContext, Priority: 5,
		Condition: ConditionFunc(func(snap contextstore.Snapshot, _ *Event) bool {
			return snap.String(KeyUserState) == "away"
		}),
		Action: noopAction()}
	if err := e.Registry().Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	if n := e.UpdateContext(ctx, map[string]any{KeyUserState: "active"}); n != 0 {
		t.Errorf("fired %d for non-matching update, want 0", n)
	}
	if n := e.UpdateContext(ctx, map[string]any{KeyUserState: "away"}); n != 1 {
		t.Errorf("fired %d for matching update, want 1", n)
	}
}

func TestTriggerBypassesCondition(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	e := newTestEngine(t, clock)

	never := ConditionFunc(func(contextstore.Snapshot, *Event) bool { return false })
	b := &Behavior{Name: "manual", Kind: KindTime, Priority: 5,
		Condition: never, Action: noopAction()}
	if err := e.Registry().Register(b); err != nil {
		t.Fatalf("Register: %v", err)
	}

	result, err := e.Trigger(context.Background(), "manual")
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if result != "ok" {
		t.Errorf("result = %v, want ok", result)
	}

	if _, err := e.Trigger(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Trigger missing = %v, want ErrNotFound", err)
	}
}

func TestDailySummaryScenario(t *testing.T) {
	// Register daily_summary, advance the clock past the next 9 AM and
	// tick: exactly one behavior_fired event for it, once.
	clock := newFakeClock(time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC))
	store := contextstore.New(contextstore.WithNow(clock.Now))
	dispatcher := dispatch.New(dispatch.WithNow(clock.Now))
	e := NewEngine(NewRegistry(), store,
		WithNow(clock.Now), WithDispatcher(dispatcher))

	defaults, err := DefaultBehaviors(clock.Now)
	if err != nil {
		t.Fatalf("DefaultBehaviors: %v", err)
	}
	for _, b := range defaults {
		if b.Name != "daily_summary" {
			continue
		}
		if err := e.Registry().Register(b); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	events, cancel := dispatcher.Subscribe(8)
	defer cancel()

	ctx := context.Background()
	// First tick: never fired before, so immediately eligible.
	if n := e.RunTick(ctx); n != 1 {
		t.Fatalf("first tick fired %d, want 1", n)
	}
	// Same day again: throttled until the next 9 AM.
	clock.Advance(time.Hour)
	if n := e.RunTick(ctx); n != 0 {
		t.Errorf("same-day tick fired %d, want 0", n)
	}
	// Past the next 9 AM.
	clock.Advance(24*time.Hour + time.Second)
	if n := e.RunTick(ctx); n != 1 {
		t.Errorf("next-day tick fired %d, want 1", n)
	}

	var firings int
	for drained := false; !drained; {
		select {
		case evt := <-events:
			if evt.Type != dispatch.EventBehaviorFired {
				continue
			}
			payload := evt.Payload.(map[string]any)
			if payload["name"] == "daily_summary" {
				firings++
			}
		default:
			drained = true
		}
	}
	if firings != 2 {
		t.Errorf("behavior_fired events = %d, want 2", firings)
	}
}

func TestImportantMessageDetection(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	e := newTestEngine(t, clock)

	defaults, err := DefaultBehaviors(clock.Now)
	if err != nil {
		t.Fatalf("DefaultBehaviors: %v", err)
	}
	for _, b := range defaults {
		if b.Name != "important_message_detection" {
			continue
		}
		if err := e.Registry().Register(b); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	e.Store().Set(KeyMessageQueue, []any{
		map[string]any{"priority": "high", "processed": false, "subject": "server down"},
		map[string]any{"priority": "low", "processed": false},
	})

	evt := &Event{Type: "queue_updated"}
	if n := e.PublishEvent(context.Background(), evt); n != 1 {
		t.Fatalf("fired %d, want 1", n)
	}
	// The action marks the queue processed, so a second event is quiet.
	if n := e.PublishEvent(context.Background(), evt); n != 0 {
		t.Errorf("second event fired %d, want 0", n)
	}
}
