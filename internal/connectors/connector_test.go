package connectors

import (
	"context"
	"errors"
	"testing"

	"github.com/haasonsaas/aide/internal/autonomy"
	"github.com/haasonsaas/aide/pkg/models"
)

func TestLoopbackRejectsUngrantedToken(t *testing.T) {
	lb := NewLoopback(models.PlatformGeneric)

	err := lb.Send(context.Background(), autonomy.SendToken{}, "m1", "hello")
	if !errors.Is(err, ErrTokenNotGranted) {
		t.Errorf("Send = %v, want ErrTokenNotGranted", err)
	}
	if len(lb.Sent()) != 0 {
		t.Error("ungranted send was recorded")
	}
}

func TestLoopbackRecordsGrantedSends(t *testing.T) {
	// The only way to obtain a granted token is through the gate.
	gate := autonomy.New(map[models.Platform]models.AutonomyLevel{
		models.PlatformGeneric: models.AutonomyFull,
	}, models.AutonomyOff, 0.7)

	lb := NewLoopback(models.PlatformGeneric)
	registry := NewRegistry()
	registry.Register(lb)
	registry.AttachAll(gate)

	if err := gate.Deliver(context.Background(), models.PlatformGeneric, "m1", "hello"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	sent := lb.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %d records, want 1", len(sent))
	}
	if sent[0].MessageID != "m1" || sent[0].Text != "hello" {
		t.Errorf("recorded %+v", sent[0])
	}
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry()
	registry.Register(NewLoopback(models.PlatformSlack))

	if _, ok := registry.Get(models.PlatformSlack); !ok {
		t.Error("expected slack connector")
	}
	if _, ok := registry.Get(models.PlatformEmail); ok {
		t.Error("unexpected email connector")
	}
	if got := registry.Platforms(); len(got) != 1 {
		t.Errorf("Platforms = %v", got)
	}
}
