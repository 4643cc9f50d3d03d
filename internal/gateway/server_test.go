package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haasonsaas/aide/internal/auth"
	"github.com/haasonsaas/aide/internal/autonomy"
	"github.com/haasonsaas/aide/internal/behavior"
	"github.com/haasonsaas/aide/internal/classifier"
	"github.com/haasonsaas/aide/internal/config"
	"github.com/haasonsaas/aide/internal/connectors"
	"github.com/haasonsaas/aide/internal/contextstore"
	"github.com/haasonsaas/aide/internal/dispatch"
	"github.com/haasonsaas/aide/internal/learning"
	"github.com/haasonsaas/aide/internal/llm"
	"github.com/haasonsaas/aide/internal/storage"
	"github.com/haasonsaas/aide/pkg/models"
)

// stubProvider returns canned completions without degrading.
type stubProvider struct {
	response string
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(context.Context, *llm.Request) (string, error) {
	return p.response, nil
}

func (p *stubProvider) AnalyzeIntent(context.Context, string) (*llm.IntentHint, error) {
	return &llm.IntentHint{Intent: models.IntentQuestion, Urgency: 0.4}, nil
}

type testHarness struct {
	handler   http.Handler
	store     *storage.MemoryStore
	gate      *autonomy.Gate
	engine    *behavior.Engine
	processor *Processor
	sent      *connectors.Loopback
}

func newTestHarness(t *testing.T, cfg *config.Config, provider llm.Provider) *testHarness {
	t.Helper()
	store := storage.NewMemoryStore()
	ctxStore := contextstore.New()
	engine := behavior.NewEngine(behavior.NewRegistry(), ctxStore)
	gate := autonomy.New(cfg.AutonomyLevels(),
		models.AutonomyLevel(cfg.Autonomy.DefaultLevel), cfg.Autonomy.HighUrgency)

	loopback := connectors.NewLoopback(models.PlatformGeneric)
	registry := connectors.NewRegistry()
	registry.Register(loopback)
	registry.AttachAll(gate)

	learner := learning.NewService(store, cfg.Learning.MinSamples, cfg.Learning.ConfidenceThreshold)
	processor := NewProcessor(ProcessorDeps{
		Classifier: classifier.New(cfg.Classifier, ctxStore, provider),
		Provider:   provider,
		Learner:    learner,
		Gate:       gate,
		Messages:   store,
		Engine:     engine,
	})
	server := NewServer(ServerDeps{
		Config:     cfg,
		Engine:     engine,
		Processor:  processor,
		Learner:    learner,
		Gate:       gate,
		Messages:   store,
		Dispatcher: dispatch.New(),
		JWT:        auth.NewJWTService(cfg.Auth.Secret, cfg.Auth.TokenExpiry),
	})
	return &testHarness{
		handler:   server.Handler(),
		store:     store,
		gate:      gate,
		engine:    engine,
		processor: processor,
		sent:      loopback,
	}
}

func (h *testHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestHarness(t, config.Default(), nil)
	rec := h.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != `{"status":"ok"}` {
		t.Errorf("body = %q", got)
	}
}

func TestProcessMessageDegraded(t *testing.T) {
	// No provider: heuristic classification and template drafts.
	h := newTestHarness(t, config.Default(), nil)

	rec := h.do(t, http.MethodPost, "/messages/process", map[string]any{
		"content":  "are we still on for the meeting tomorrow?",
		"platform": "email",
		"sender":   "bob@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var result ProcessResult
	decodeInto(t, rec, &result)
	if result.ActionTaken != "notified" {
		t.Errorf("action_taken = %q, want notified", result.ActionTaken)
	}
	if result.Confidence != confidenceDegraded {
		t.Errorf("confidence = %v, want %v", result.Confidence, confidenceDegraded)
	}
	if result.SuggestedResponse == "" {
		t.Error("suggested_response is empty")
	}
	if result.Classification == nil || !result.Classification.Degraded {
		t.Errorf("classification = %+v, want degraded", result.Classification)
	}

	rec = h.do(t, http.MethodGet, "/messages/"+result.MessageID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get message status = %d", rec.Code)
	}
	var msg models.Message
	decodeInto(t, rec, &msg)
	if !msg.Processed || msg.ActionTaken != "notified" {
		t.Errorf("stored message = %+v, want processed/notified", msg)
	}

	rec = h.do(t, http.MethodGet, "/messages?limit=10", nil)
	var list struct {
		Messages []models.Message `json:"messages"`
	}
	decodeInto(t, rec, &list)
	if len(list.Messages) != 1 {
		t.Errorf("listed %d messages, want 1", len(list.Messages))
	}
}

func TestProcessMessageValidation(t *testing.T) {
	h := newTestHarness(t, config.Default(), nil)

	tests := []map[string]any{
		{"platform": "email", "sender": "bob"},
		{"content": "hello there", "platform": "email"},
	}
	for _, body := range tests {
		if rec := h.do(t, http.MethodPost, "/messages/process", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %v: status = %d, want 400", body, rec.Code)
		}
	}

	// Validation failures carry the sentinel so the handler can map
	// them to 400 without inspecting message text.
	_, err := h.processor.Process(context.Background(), &ProcessRequest{Platform: "email", Sender: "bob"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Process without content = %v, want ErrInvalidRequest", err)
	}
	_, err = h.processor.Process(context.Background(), &ProcessRequest{Content: "hello there"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Process without sender = %v, want ErrInvalidRequest", err)
	}
}

func TestProcessMessageRecordOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Autonomy.DefaultLevel = int(models.AutonomyOff)
	h := newTestHarness(t, cfg, nil)

	rec := h.do(t, http.MethodPost, "/messages/process", map[string]any{
		"content": "fyi the invoice went out", "platform": "email", "sender": "bob",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result ProcessResult
	decodeInto(t, rec, &result)
	if result.ActionTaken != "recorded" || result.Confidence != 0 || result.SuggestedResponse != "" {
		t.Errorf("result = %+v, want recorded with no draft", result)
	}
}

func TestProcessMessageAutoSend(t *testing.T) {
	cfg := config.Default()
	cfg.Autonomy.DefaultLevel = int(models.AutonomyFull)
	provider := &stubProvider{response: "Sounds good, see you then."}
	h := newTestHarness(t, cfg, provider)

	rec := h.do(t, http.MethodPost, "/messages/process", map[string]any{
		"content": "lunch on friday?", "platform": "generic", "sender": "bob",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result ProcessResult
	decodeInto(t, rec, &result)
	if result.ActionTaken != "sent" {
		t.Errorf("action_taken = %q, want sent", result.ActionTaken)
	}
	if result.Confidence != confidenceSent {
		t.Errorf("confidence = %v, want %v", result.Confidence, confidenceSent)
	}

	sent := h.sent.Sent()
	if len(sent) != 1 || sent[0].Text != provider.response {
		t.Errorf("loopback sends = %+v, want one with the drafted text", sent)
	}
}

func TestFeedbackEndpoints(t *testing.T) {
	h := newTestHarness(t, config.Default(), nil)

	rec := h.do(t, http.MethodPost, "/messages/process", map[string]any{
		"content": "status update?", "platform": "email", "sender": "bob",
	})
	var result ProcessResult
	decodeInto(t, rec, &result)

	rec = h.do(t, http.MethodPost, "/learning/feedback", map[string]any{
		"message_id":        result.MessageID,
		"kind":              "approved",
		"original_response": result.SuggestedResponse,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("feedback status = %d, body %s", rec.Code, rec.Body.String())
	}
	var fbResp struct {
		Insights []models.Insight `json:"insights"`
	}
	decodeInto(t, rec, &fbResp)
	if fbResp.Insights == nil {
		t.Error("insights missing from response")
	}

	rec = h.do(t, http.MethodPost, "/learning/feedback", map[string]any{
		"message_id": "ghost", "kind": "approved", "original_response": "x",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown message feedback status = %d, want 400", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/learning/trends?days=7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("trends status = %d", rec.Code)
	}
	var report learning.TrendsReport
	decodeInto(t, rec, &report)
	if report.TotalFeedback != 1 {
		t.Errorf("total_feedback = %d, want 1", report.TotalFeedback)
	}
}

func TestBehaviorEndpoints(t *testing.T) {
	h := newTestHarness(t, config.Default(), nil)

	fired := 0
	err := h.engine.Registry().Register(&behavior.Behavior{
		Name:        "ping",
		Kind:        behavior.KindTime,
		Priority:    5,
		Description: "test behavior",
		Condition: behavior.ConditionFunc(func(contextstore.Snapshot, *behavior.Event) bool {
			return false
		}),
		Action: behavior.ActionFunc(func(context.Context, *contextstore.Store, *behavior.Event) (any, error) {
			fired++
			return "pong", nil
		}),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	rec := h.do(t, http.MethodGet, "/behaviors", nil)
	var list struct {
		Behaviors []behavior.Summary `json:"behaviors"`
	}
	decodeInto(t, rec, &list)
	if len(list.Behaviors) != 1 || list.Behaviors[0].Name != "ping" {
		t.Errorf("behaviors = %+v", list.Behaviors)
	}

	if rec := h.do(t, http.MethodPost, "/behaviors/ping/trigger", nil); rec.Code != http.StatusOK {
		t.Errorf("trigger status = %d", rec.Code)
	}
	if fired != 1 {
		t.Errorf("behavior fired %d times, want 1", fired)
	}
	if rec := h.do(t, http.MethodPost, "/behaviors/ghost/trigger", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown trigger status = %d, want 404", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/behaviors/context", map[string]any{"user_state": "active"})
	if rec.Code != http.StatusOK {
		t.Errorf("context update status = %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPost, "/behaviors/context", map[string]any{}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty context update status = %d, want 400", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/behaviors/simulate-event", map[string]any{
		"type": "message_received", "urgency": 0.9,
	})
	if rec.Code != http.StatusOK {
		t.Errorf("simulate-event status = %d", rec.Code)
	}
	if rec := h.do(t, http.MethodPost, "/behaviors/simulate-event", map[string]any{"urgency": 0.9}); rec.Code != http.StatusBadRequest {
		t.Errorf("typeless simulate-event status = %d, want 400", rec.Code)
	}
}

func TestAutonomyEndpoints(t *testing.T) {
	cfg := config.Default()
	cfg.Autonomy.Levels = map[string]int{"email": int(models.AutonomyDraft)}
	h := newTestHarness(t, cfg, nil)

	rec := h.do(t, http.MethodGet, "/autonomy", nil)
	var got struct {
		Platforms map[string]struct {
			Level int    `json:"level"`
			Name  string `json:"name"`
		} `json:"platforms"`
	}
	decodeInto(t, rec, &got)
	if p, ok := got.Platforms["email"]; !ok || p.Level != 2 || p.Name != "draft" {
		t.Errorf("platforms = %+v", got.Platforms)
	}

	rec = h.do(t, http.MethodPut, "/autonomy/email", map[string]any{"level": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("set numeric level status = %d, body %s", rec.Code, rec.Body.String())
	}
	if h.gate.Level(models.PlatformEmail) != models.AutonomyAutoRespond {
		t.Errorf("level = %v, want auto_respond", h.gate.Level(models.PlatformEmail))
	}

	rec = h.do(t, http.MethodPut, "/autonomy/email", map[string]any{"level": "notify"})
	if rec.Code != http.StatusOK {
		t.Fatalf("set named level status = %d, body %s", rec.Code, rec.Body.String())
	}
	if h.gate.Level(models.PlatformEmail) != models.AutonomyNotify {
		t.Errorf("level = %v, want notify", h.gate.Level(models.PlatformEmail))
	}

	if rec := h.do(t, http.MethodPut, "/autonomy/email", map[string]any{"level": 9}); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid level status = %d, want 400", rec.Code)
	}
}

func TestAuthProtectsRoutes(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Secret = "test-secret"
	cfg.Auth.BootstrapToken = "bootstrap-123"
	h := newTestHarness(t, cfg, nil)

	// Health stays public, API routes do not.
	if rec := h.do(t, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
	if rec := h.do(t, http.MethodGet, "/behaviors", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	rec := h.do(t, http.MethodPost, "/auth/token", map[string]any{"bootstrap_token": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong bootstrap status = %d, want 401", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/auth/token", map[string]any{"bootstrap_token": "bootstrap-123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("token exchange status = %d, body %s", rec.Code, rec.Body.String())
	}
	var tokenResp struct {
		Token string `json:"token"`
	}
	decodeInto(t, rec, &tokenResp)
	if tokenResp.Token == "" {
		t.Fatal("empty token")
	}

	req := httptest.NewRequest(http.MethodGet, "/behaviors", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", tokenResp.Token))
	out := httptest.NewRecorder()
	h.handler.ServeHTTP(out, req)
	if out.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", out.Code)
	}
}
