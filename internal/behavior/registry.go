package behavior

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry is the process-wide behavior catalog. Safe for concurrent
// use; the engine and the gateway share one instance.
type Registry struct {
	mu        sync.RWMutex
	behaviors map[string]*Behavior
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{behaviors: make(map[string]*Behavior)}
}

// Register adds a behavior. Returns ErrDuplicateName if the name is
// taken; the existing behavior is left untouched.
func (r *Registry) Register(b *Behavior) error {
	if b == nil {
		return fmt.Errorf("behavior is nil")
	}
	name := strings.TrimSpace(b.Name)
	if name == "" {
		return fmt.Errorf("behavior name required")
	}
	if !b.Kind.Valid() {
		return fmt.Errorf("behavior %s: invalid kind %q", name, b.Kind)
	}
	if b.Condition == nil || b.Action == nil {
		return fmt.Errorf("behavior %s: condition and action required", name)
	}
	if b.Priority < 1 || b.Priority > 10 {
		return fmt.Errorf("behavior %s: priority must be 1-10, got %d", name, b.Priority)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.behaviors[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	r.behaviors[name] = b
	return nil
}

// Get returns the behavior by name.
func (r *Registry) Get(name string) (*Behavior, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.behaviors[name]
	return b, ok
}

// List returns summaries ordered by priority descending, then name.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.behaviors))
	for _, b := range r.behaviors {
		out = append(out, r.summaryLocked(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// byKind returns behaviors of the given kinds ordered by priority
// descending, then name. The slice holds live pointers for the engine.
func (r *Registry) byKind(kinds ...Kind) []*Behavior {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	r.mu.RLock()
	out := make([]*Behavior, 0, len(r.behaviors))
	for _, b := range r.behaviors {
		if want[b.Kind] {
			out = append(out, b)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (r *Registry) summaryLocked(b *Behavior) Summary {
	s := Summary{
		Name:         b.Name,
		Kind:         b.Kind,
		Description:  b.Description,
		Priority:     b.Priority,
		TriggerCount: b.triggerCount,
	}
	if !b.lastTriggered.IsZero() {
		t := b.lastTriggered
		s.LastTriggered = &t
	}
	return s
}

// markFired records a successful firing. Only the engine calls this.
func (r *Registry) markFired(b *Behavior, at time.Time) {
	r.mu.Lock()
	b.triggerCount++
	b.lastTriggered = at
	r.mu.Unlock()
}
