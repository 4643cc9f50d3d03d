// Package autonomy holds the per-platform autonomy state machine. Every
// transition from "would send" to "actually sends" passes through
// Gate.Deliver; no other component can mint the SendToken connectors
// require, so the level check cannot be bypassed.
package autonomy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/haasonsaas/aide/internal/dispatch"
	"github.com/haasonsaas/aide/pkg/models"
)

// ErrAutonomyViolation is returned when a send is attempted on a
// platform whose autonomy level does not permit it.
var ErrAutonomyViolation = errors.New("autonomy level does not permit sending")

// ErrNoConnector is returned when no connector is registered for the
// target platform.
var ErrNoConnector = errors.New("no connector for platform")

// SendToken proves a send was authorized by the gate. The unexported
// field keeps other packages from constructing a usable value.
type SendToken struct {
	granted bool
}

// Granted reports whether the token was minted by the gate.
func (t SendToken) Granted() bool { return t.granted }

// Sender is the transmit half of a platform connector.
type Sender interface {
	Send(ctx context.Context, token SendToken, messageID, text string) error
}

// Decision is what the gate resolved for a classified message.
type Decision int

const (
	// DecisionRecord stores the message, nothing else.
	DecisionRecord Decision = iota
	// DecisionNotify drafts a response and surfaces it to the user.
	DecisionNotify
	// DecisionDraft drafts a response pending explicit confirmation.
	DecisionDraft
	// DecisionSend auto-sends the response.
	DecisionSend
)

// String returns the action name used in message records and events.
func (d Decision) String() string {
	switch d {
	case DecisionRecord:
		return "recorded"
	case DecisionNotify:
		return "notified"
	case DecisionDraft:
		return "drafted"
	case DecisionSend:
		return "sent"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Gate is the autonomy state machine. Safe for concurrent use.
type Gate struct {
	mu           sync.RWMutex
	levels       map[models.Platform]models.AutonomyLevel
	defaultLevel models.AutonomyLevel
	highUrgency  float64
	senders      map[models.Platform]Sender

	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
}

// Option configures the gate.
type Option func(*Gate)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithDispatcher publishes autonomy_changed events on SetLevel.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(g *Gate) { g.dispatcher = d }
}

// New creates a gate seeded with per-platform levels. highUrgency is
// the threshold at or above which AutoRespond falls back to Draft.
func New(levels map[models.Platform]models.AutonomyLevel, defaultLevel models.AutonomyLevel, highUrgency float64, opts ...Option) *Gate {
	g := &Gate{
		levels:       make(map[models.Platform]models.AutonomyLevel, len(levels)),
		defaultLevel: defaultLevel,
		highUrgency:  highUrgency,
		senders:      make(map[models.Platform]Sender),
		logger:       slog.Default(),
	}
	for p, l := range levels {
		if l.Valid() {
			g.levels[p] = l
		}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RegisterSender attaches a connector's transmit side for a platform.
// Later registrations replace earlier ones.
func (g *Gate) RegisterSender(platform models.Platform, s Sender) {
	g.mu.Lock()
	g.senders[platform] = s
	g.mu.Unlock()
}

// Level returns the current autonomy level for a platform.
func (g *Gate) Level(platform models.Platform) models.AutonomyLevel {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if l, ok := g.levels[platform]; ok {
		return l
	}
	return g.defaultLevel
}

// Levels returns a copy of all explicitly configured levels.
func (g *Gate) Levels() map[models.Platform]models.AutonomyLevel {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[models.Platform]models.AutonomyLevel, len(g.levels))
	for p, l := range g.levels {
		out[p] = l
	}
	return out
}

// SetLevel changes a platform's autonomy level. Levels never change on
// their own; this is the only mutation path.
func (g *Gate) SetLevel(platform models.Platform, level models.AutonomyLevel) error {
	if !level.Valid() {
		return fmt.Errorf("invalid autonomy level %d", int(level))
	}
	g.mu.Lock()
	prev, had := g.levels[platform]
	if !had {
		prev = g.defaultLevel
	}
	g.levels[platform] = level
	g.mu.Unlock()

	g.logger.Info("autonomy level changed",
		"platform", platform, "from", prev.String(), "to", level.String())
	if g.dispatcher != nil {
		g.dispatcher.Publish(dispatch.EventAutonomyChanged, map[string]any{
			"platform": string(platform),
			"from":     prev.String(),
			"to":       level.String(),
		})
	}
	return nil
}

// Decide resolves the action for a classified message on the given
// platform. AutonomyOff can never yield DecisionSend.
func (g *Gate) Decide(platform models.Platform, cls *models.Classification) Decision {
	level := g.Level(platform)
	switch level {
	case models.AutonomyOff:
		return DecisionRecord
	case models.AutonomyNotify:
		return DecisionNotify
	case models.AutonomyDraft:
		return DecisionDraft
	case models.AutonomyAutoRespond:
		if cls != nil && (cls.Urgency >= g.highUrgency || cls.IsVIP) {
			return DecisionDraft
		}
		return DecisionSend
	case models.AutonomyFull:
		return DecisionSend
	default:
		return DecisionRecord
	}
}

// Deliver is the single choke point for sending. It re-checks the
// platform's level at send time, mints the token and hands the text to
// the registered connector. A caller that reaches here while the level
// forbids sending gets ErrAutonomyViolation.
func (g *Gate) Deliver(ctx context.Context, platform models.Platform, messageID, text string) error {
	level := g.Level(platform)
	if level < models.AutonomyAutoRespond {
		g.logger.Error("send blocked by autonomy level",
			"platform", platform, "level", level.String(), "message_id", messageID)
		return fmt.Errorf("%w: platform %s at level %s", ErrAutonomyViolation, platform, level)
	}

	g.mu.RLock()
	sender := g.senders[platform]
	g.mu.RUnlock()
	if sender == nil {
		return fmt.Errorf("%w: %s", ErrNoConnector, platform)
	}

	if err := sender.Send(ctx, SendToken{granted: true}, messageID, text); err != nil {
		return fmt.Errorf("send on %s: %w", platform, err)
	}
	g.logger.Info("response sent", "platform", platform, "message_id", messageID)
	return nil
}
