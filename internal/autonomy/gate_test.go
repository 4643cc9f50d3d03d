package autonomy

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/haasonsaas/aide/internal/dispatch"
	"github.com/haasonsaas/aide/pkg/models"
)

type recordingSender struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingSender) Send(_ context.Context, token SendToken, _, _ string) error {
	if !token.Granted() {
		return errors.New("token not granted")
	}
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return nil
}

func (r *recordingSender) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestGate(levels map[models.Platform]models.AutonomyLevel) *Gate {
	return New(levels, models.AutonomyNotify, 0.7)
}

func TestDecideTable(t *testing.T) {
	cases := []struct {
		name  string
		level models.AutonomyLevel
		cls   *models.Classification
		want  Decision
	}{
		{"off records", models.AutonomyOff, &models.Classification{}, DecisionRecord},
		{"notify drafts and shows", models.AutonomyNotify, &models.Classification{}, DecisionNotify},
		{"draft requires confirmation", models.AutonomyDraft, &models.Classification{}, DecisionDraft},
		{"auto_respond sends routine", models.AutonomyAutoRespond, &models.Classification{Urgency: 0.3}, DecisionSend},
		{"auto_respond holds high urgency", models.AutonomyAutoRespond, &models.Classification{Urgency: 0.9}, DecisionDraft},
		{"auto_respond holds at threshold", models.AutonomyAutoRespond, &models.Classification{Urgency: 0.7}, DecisionDraft},
		{"auto_respond holds VIP", models.AutonomyAutoRespond, &models.Classification{Urgency: 0.9, IsVIP: true}, DecisionDraft},
		{"full sends unconditionally", models.AutonomyFull, &models.Classification{Urgency: 1.0, IsVIP: true}, DecisionSend},
	}
	for _, tc := range cases {
		g := newTestGate(map[models.Platform]models.AutonomyLevel{
			models.PlatformEmail: tc.level,
		})
		if got := g.Decide(models.PlatformEmail, tc.cls); got != tc.want {
			t.Errorf("%s: Decide = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestLevelZeroNeverSends(t *testing.T) {
	g := newTestGate(map[models.Platform]models.AutonomyLevel{
		models.PlatformEmail: models.AutonomyOff,
	})
	sender := &recordingSender{}
	g.RegisterSender(models.PlatformEmail, sender)

	// No classification reaches Send through Decide.
	extremes := []*models.Classification{
		{Urgency: 1.0, IsVIP: true},
		{Urgency: 0.0},
		nil,
	}
	for _, cls := range extremes {
		if got := g.Decide(models.PlatformEmail, cls); got == DecisionSend {
			t.Fatalf("Decide(%+v) = send at level off", cls)
		}
	}

	// And a direct Deliver attempt is rejected.
	err := g.Deliver(context.Background(), models.PlatformEmail, "m1", "hi")
	if !errors.Is(err, ErrAutonomyViolation) {
		t.Errorf("Deliver = %v, want ErrAutonomyViolation", err)
	}
	if sender.Calls() != 0 {
		t.Errorf("sender called %d times at level off", sender.Calls())
	}
}

func TestDeliverAtFullSendsOnce(t *testing.T) {
	g := newTestGate(map[models.Platform]models.AutonomyLevel{
		models.PlatformSlack: models.AutonomyFull,
	})
	sender := &recordingSender{}
	g.RegisterSender(models.PlatformSlack, sender)

	if err := g.Deliver(context.Background(), models.PlatformSlack, "m1", "on it"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if sender.Calls() != 1 {
		t.Errorf("sender calls = %d, want 1", sender.Calls())
	}
}

func TestDeliverWithoutConnector(t *testing.T) {
	g := newTestGate(map[models.Platform]models.AutonomyLevel{
		models.PlatformSlack: models.AutonomyFull,
	})
	err := g.Deliver(context.Background(), models.PlatformSlack, "m1", "on it")
	if !errors.Is(err, ErrNoConnector) {
		t.Errorf("Deliver = %v, want ErrNoConnector", err)
	}
}

func TestSetLevelValidatesAndPublishes(t *testing.T) {
	dispatcher := dispatch.New()
	g := New(nil, models.AutonomyNotify, 0.7, WithDispatcher(dispatcher))
	events, cancel := dispatcher.Subscribe(4)
	defer cancel()

	if err := g.SetLevel(models.PlatformEmail, models.AutonomyLevel(9)); err == nil {
		t.Error("expected invalid level to be rejected")
	}

	if err := g.SetLevel(models.PlatformEmail, models.AutonomyDraft); err != nil {
		t.Fatalf("SetLevel: %v", err)
	}
	if got := g.Level(models.PlatformEmail); got != models.AutonomyDraft {
		t.Errorf("Level = %v, want draft", got)
	}

	evt := <-events
	if evt.Type != dispatch.EventAutonomyChanged {
		t.Errorf("event type = %q, want %q", evt.Type, dispatch.EventAutonomyChanged)
	}
}

func TestDefaultLevelForUnknownPlatform(t *testing.T) {
	g := newTestGate(nil)
	if got := g.Level(models.PlatformWhatsApp); got != models.AutonomyNotify {
		t.Errorf("Level = %v, want default notify", got)
	}
}
