// Package connectors defines the platform connector boundary. A
// connector's Send requires a SendToken minted by the autonomy gate,
// so no caller can transmit around the level check.
package connectors

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/haasonsaas/aide/internal/autonomy"
	"github.com/haasonsaas/aide/pkg/models"
)

// ErrTokenNotGranted is returned when Send is called with a token that
// did not come from the gate.
var ErrTokenNotGranted = errors.New("send token not granted")

// Connector is one messaging platform integration.
type Connector interface {
	Platform() models.Platform
	Send(ctx context.Context, token autonomy.SendToken, messageID, text string) error
}

// Registry holds the configured connectors. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	connectors map[models.Platform]Connector
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[models.Platform]Connector)}
}

// Register adds a connector, replacing any existing one for the same
// platform.
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	r.connectors[c.Platform()] = c
	r.mu.Unlock()
}

// Get returns the connector for a platform.
func (r *Registry) Get(platform models.Platform) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[platform]
	return c, ok
}

// Platforms lists the registered platforms in unspecified order.
func (r *Registry) Platforms() []models.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Platform, 0, len(r.connectors))
	for p := range r.connectors {
		out = append(out, p)
	}
	return out
}

// AttachAll registers every connector's transmit side with the gate.
func (r *Registry) AttachAll(gate *autonomy.Gate) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for p, c := range r.connectors {
		gate.RegisterSender(p, c)
	}
}

// SentRecord is one transmission captured by the loopback connector.
type SentRecord struct {
	MessageID string
	Text      string
}

// Loopback is an in-process connector that records what it would have
// transmitted. It backs the generic platform and tests.
type Loopback struct {
	platform models.Platform

	mu   sync.Mutex
	sent []SentRecord
}

// NewLoopback creates a loopback connector for a platform.
func NewLoopback(platform models.Platform) *Loopback {
	return &Loopback{platform: platform}
}

// Platform returns the connector's platform.
func (l *Loopback) Platform() models.Platform { return l.platform }

// Send records the transmission. Rejects ungranted tokens.
func (l *Loopback) Send(_ context.Context, token autonomy.SendToken, messageID, text string) error {
	if !token.Granted() {
		return fmt.Errorf("%w: %s", ErrTokenNotGranted, l.platform)
	}
	l.mu.Lock()
	l.sent = append(l.sent, SentRecord{MessageID: messageID, Text: text})
	l.mu.Unlock()
	return nil
}

// Sent returns a copy of everything transmitted so far.
func (l *Loopback) Sent() []SentRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SentRecord, len(l.sent))
	copy(out, l.sent)
	return out
}
