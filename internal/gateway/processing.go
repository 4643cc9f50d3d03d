package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/aide/internal/autonomy"
	"github.com/haasonsaas/aide/internal/behavior"
	"github.com/haasonsaas/aide/internal/classifier"
	"github.com/haasonsaas/aide/internal/dispatch"
	"github.com/haasonsaas/aide/internal/learning"
	"github.com/haasonsaas/aide/internal/llm"
	"github.com/haasonsaas/aide/internal/observability"
	"github.com/haasonsaas/aide/internal/storage"
	"github.com/haasonsaas/aide/pkg/models"
)

// ErrInvalidRequest marks a request rejected by validation before any
// state was written.
var ErrInvalidRequest = errors.New("invalid request")

// Response confidence by outcome. The degraded value signals a
// template-generated draft regardless of the action taken.
const (
	confidenceSent     = 0.95
	confidenceDraft    = 0.8
	confidenceNotify   = 0.7
	confidenceDegraded = 0.3
)

// ProcessRequest is one inbound message to run through the pipeline.
type ProcessRequest struct {
	Content  string  `json:"content"`
	Platform string  `json:"platform"`
	Sender   string  `json:"sender"`
	Urgency  float64 `json:"urgency,omitempty"`
}

// ProcessResult is the pipeline outcome returned to the caller.
type ProcessResult struct {
	MessageID         string                 `json:"message_id"`
	ActionTaken       string                 `json:"action_taken"`
	Confidence        float64                `json:"confidence"`
	SuggestedResponse string                 `json:"suggested_response,omitempty"`
	Classification    *models.Classification `json:"classification"`
}

// Processor runs the message pipeline: classify, persist, draft,
// enhance, gate, deliver.
type Processor struct {
	classifier *classifier.Classifier
	provider   llm.Provider
	fallback   *llm.TemplateProvider
	learner    *learning.Service
	gate       *autonomy.Gate
	messages   storage.MessageStore
	engine     *behavior.Engine
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

// ProcessorDeps wires a Processor. Provider may be nil; the template
// fallback then serves every draft.
type ProcessorDeps struct {
	Classifier *classifier.Classifier
	Provider   llm.Provider
	Learner    *learning.Service
	Gate       *autonomy.Gate
	Messages   storage.MessageStore
	Engine     *behavior.Engine
	Dispatcher *dispatch.Dispatcher
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	Now        func() time.Time
}

// NewProcessor creates the pipeline.
func NewProcessor(deps ProcessorDeps) *Processor {
	p := &Processor{
		classifier: deps.Classifier,
		provider:   deps.Provider,
		fallback:   llm.NewTemplateProvider(),
		learner:    deps.Learner,
		gate:       deps.Gate,
		messages:   deps.Messages,
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		now:        deps.Now,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Process runs one message end to end. It returns an error only for
// validation and persistence failures; provider trouble degrades to the
// template path instead.
func (p *Processor) Process(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	if req == nil || req.Content == "" {
		return nil, fmt.Errorf("%w: content required", ErrInvalidRequest)
	}
	if req.Sender == "" {
		return nil, fmt.Errorf("%w: sender required", ErrInvalidRequest)
	}
	started := p.now()

	msg := &models.Message{
		ID:         uuid.NewString(),
		Platform:   models.NormalizePlatform(req.Platform),
		Sender:     req.Sender,
		Content:    req.Content,
		Urgency:    req.Urgency,
		ReceivedAt: started,
	}

	cls := p.classifier.Classify(ctx, msg)
	msg.Classification = cls
	msg.Urgency = cls.Urgency

	if err := p.messages.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	result := &ProcessResult{MessageID: msg.ID, Classification: cls}
	decision := p.gate.Decide(msg.Platform, cls)

	if decision == autonomy.DecisionRecord {
		// Autonomy Off records the message and requests no draft.
		result.ActionTaken = decision.String()
		result.Confidence = 0
		p.finish(ctx, msg, result, started)
		return result, nil
	}

	draft, degraded := p.generateDraft(ctx, msg, cls)
	enhanced, err := p.learner.Enhance(ctx, msg.ID, draft)
	if err != nil {
		p.logger.Warn("draft enhancement failed", "message_id", msg.ID, "error", err)
		enhanced = draft
	}
	result.SuggestedResponse = enhanced

	if decision == autonomy.DecisionSend {
		if err := p.gate.Deliver(ctx, msg.Platform, msg.ID, enhanced); err != nil {
			switch {
			case errors.Is(err, autonomy.ErrAutonomyViolation):
				// The decision table should make this unreachable.
				return nil, err
			case errors.Is(err, autonomy.ErrNoConnector):
				p.logger.Warn("no connector, downgrading to draft",
					"platform", msg.Platform, "message_id", msg.ID)
				decision = autonomy.DecisionDraft
			default:
				p.logger.Warn("send failed, downgrading to draft",
					"platform", msg.Platform, "message_id", msg.ID, "error", err)
				decision = autonomy.DecisionDraft
			}
		}
	}

	result.ActionTaken = decision.String()
	switch decision {
	case autonomy.DecisionSend:
		result.Confidence = confidenceSent
	case autonomy.DecisionDraft:
		result.Confidence = confidenceDraft
	case autonomy.DecisionNotify:
		result.Confidence = confidenceNotify
	}
	if degraded {
		result.Confidence = confidenceDegraded
	}

	p.finish(ctx, msg, result, started)
	return result, nil
}

// generateDraft asks the configured provider for a response, falling
// back to the template provider on any failure. The second return
// reports whether the fallback served the draft.
func (p *Processor) generateDraft(ctx context.Context, msg *models.Message, cls *models.Classification) (string, bool) {
	prompt := fmt.Sprintf("Reply to this %s message from %s:\n\n%s",
		msg.Platform, msg.Sender, msg.Content)
	req := &llm.Request{
		Prompt:      prompt,
		Persona:     "You are a helpful personal assistant replying on the user's behalf. Be concise and natural.",
		Temperature: 0.7,
	}

	if p.provider != nil {
		draft, err := p.provider.Generate(ctx, req)
		if p.metrics != nil {
			status := "success"
			if err != nil {
				status = "error"
			}
			p.metrics.LLMRequests.WithLabelValues(p.provider.Name(), status).Inc()
		}
		if err == nil && draft != "" {
			return draft, cls.Degraded
		}
		if err != nil {
			p.logger.Warn("draft generation failed, using template",
				"provider", p.provider.Name(), "error", err)
		}
	}

	draft, _ := p.fallback.Generate(ctx, req)
	return draft, true
}

// finish marks the message processed, refreshes interaction context and
// publishes the message_processed event.
func (p *Processor) finish(ctx context.Context, msg *models.Message, result *ProcessResult, started time.Time) {
	if err := p.messages.MarkProcessed(ctx, msg.ID, result.ActionTaken); err != nil {
		p.logger.Error("mark processed failed", "message_id", msg.ID, "error", err)
	}

	if p.engine != nil {
		p.engine.UpdateContext(ctx, map[string]any{
			behavior.KeyLastInteraction: p.now(),
		})
	}

	if p.dispatcher != nil {
		p.dispatcher.Publish(dispatch.EventMessageProcessed, map[string]any{
			"message_id":   msg.ID,
			"platform":     string(msg.Platform),
			"action_taken": result.ActionTaken,
			"confidence":   result.Confidence,
		})
	}
	if p.metrics != nil {
		p.metrics.MessagesProcessed.WithLabelValues(string(msg.Platform), result.ActionTaken).Inc()
		p.metrics.ProcessingDuration.WithLabelValues(string(msg.Platform)).
			Observe(p.now().Sub(started).Seconds())
	}
	p.logger.Info("message processed",
		"message_id", msg.ID, "platform", msg.Platform,
		"action", result.ActionTaken, "confidence", result.Confidence)
}
