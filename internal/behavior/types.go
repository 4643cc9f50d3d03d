// Package behavior implements the reactive behavior registry and the
// trigger scheduler that drives it.
package behavior

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/aide/internal/contextstore"
)

var (
	// ErrDuplicateName is returned when registering a behavior whose
	// name is already taken. The existing behavior is left intact.
	ErrDuplicateName = errors.New("behavior name already registered")

	// ErrNotFound is returned when a named behavior does not exist.
	ErrNotFound = errors.New("behavior not found")
)

// Kind identifies what drives a behavior's evaluation.
type Kind string

const (
	// KindTime behaviors are evaluated on every scheduler tick.
	KindTime Kind = "time"
	// KindEvent behaviors are evaluated immediately when an event is
	// published, bypassing the tick wait.
	KindEvent Kind = "event"
	// KindPattern behaviors are evaluated on every scheduler tick.
	KindPattern Kind = "pattern"
	// KindContext behaviors are re-evaluated whenever the context
	// store is updated through the engine.
	KindContext Kind = "context"
)

// Valid reports whether k is a defined kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTime, KindEvent, KindPattern, KindContext:
		return true
	}
	return false
}

// Event is an external occurrence published to the engine. Evt is nil
// for tick- and context-driven evaluations.
type Event struct {
	Type    string
	Payload map[string]any
}

// Condition decides whether a behavior should fire. Conditions must be
// pure functions of the snapshot (and event, when present): they must
// not mutate shared state.
type Condition interface {
	Evaluate(snap contextstore.Snapshot, evt *Event) bool
}

// ConditionFunc adapts a function to a Condition.
type ConditionFunc func(snap contextstore.Snapshot, evt *Event) bool

// Evaluate evaluates the condition function.
func (f ConditionFunc) Evaluate(snap contextstore.Snapshot, evt *Event) bool {
	return f(snap, evt)
}

// Action is a behavior's effect. Actions may write context keys (for
// example their own throttle markers) through the store.
type Action interface {
	Execute(ctx context.Context, store *contextstore.Store, evt *Event) (any, error)
}

// ActionFunc adapts a function to an Action.
type ActionFunc func(ctx context.Context, store *contextstore.Store, evt *Event) (any, error)

// Execute executes the action function.
func (f ActionFunc) Execute(ctx context.Context, store *contextstore.Store, evt *Event) (any, error) {
	return f(ctx, store, evt)
}

// Behavior is a named condition+action pair. Behaviors are registered
// once and live for the process lifetime; only TriggerCount and
// LastTriggered mutate after registration, and only the engine mutates
// them.
type Behavior struct {
	Name        string
	Kind        Kind
	Description string
	Priority    int // 1-10, higher fires first within a tick
	Condition   Condition
	Action      Action

	triggerCount  int64
	lastTriggered time.Time
}

// Summary is the read-only projection of a behavior returned by the
// API.
type Summary struct {
	Name          string     `json:"name"`
	Kind          Kind       `json:"kind"`
	Description   string     `json:"description"`
	Priority      int        `json:"priority"`
	TriggerCount  int64      `json:"trigger_count"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
}
