// Package learning records user feedback, extracts correction patterns
// into confidence-weighted preferences, and applies those preferences
// to freshly generated drafts.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/aide/internal/dispatch"
	"github.com/haasonsaas/aide/internal/observability"
	"github.com/haasonsaas/aide/internal/storage"
	"github.com/haasonsaas/aide/pkg/models"
)

// ErrInvalidFeedback is returned when a submission fails validation.
var ErrInvalidFeedback = errors.New("invalid feedback")

// DefaultUserID scopes preferences in the single-owner deployment.
const DefaultUserID = "default"

// confidenceStep is the per-feedback confidence adjustment.
const confidenceStep = 0.1

// confidenceBase seeds a preference on first observation. Five
// corroborating edits then reach 0.8, clearing the default 0.7
// application threshold together with the sample gate.
const confidenceBase = 0.3

// influenceLimit bounds the in-memory influence index. Oldest entries
// are evicted first; reinforcement for evicted messages is lost, which
// is acceptable for best-effort learning.
const influenceLimit = 256

// Service is the learning and feedback system. Safe for concurrent use.
type Service struct {
	messages storage.MessageStore
	feedback storage.FeedbackStore
	prefs    storage.PreferenceStore

	minSamples          int
	confidenceThreshold float64

	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
	metrics    *observability.Metrics
	now        func() time.Time

	mu        sync.Mutex
	influence map[string][]string // message id -> preference keys applied
	order     []string            // message ids, oldest first
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDispatcher publishes preference_updated events.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithMetrics records feedback and preference counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the learning service. minSamples and
// confidenceThreshold gate when a preference starts applying.
func NewService(store storage.Store, minSamples int, confidenceThreshold float64, opts ...Option) *Service {
	s := &Service{
		messages:            store,
		feedback:            store,
		prefs:               store,
		minSamples:          minSamples,
		confidenceThreshold: confidenceThreshold,
		logger:              slog.Default(),
		now:                 time.Now,
		influence:           make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitFeedback validates and appends one feedback record, updates the
// affected preferences and returns immediate insights.
func (s *Service) SubmitFeedback(ctx context.Context, fb *models.Feedback) ([]models.Insight, error) {
	if err := s.validate(ctx, fb); err != nil {
		return nil, err
	}
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.SubmittedAt.IsZero() {
		fb.SubmittedAt = s.now()
	}
	if err := s.feedback.AppendFeedback(ctx, fb); err != nil {
		return nil, fmt.Errorf("append feedback: %w", err)
	}
	if s.metrics != nil {
		s.metrics.FeedbackReceived.WithLabelValues(string(fb.Kind)).Inc()
	}

	var (
		insights []models.Insight
		updated  []string
		err      error
	)
	switch fb.Kind {
	case models.FeedbackEdited:
		insights, updated, err = s.learnFromEdit(ctx, fb)
	case models.FeedbackApproved:
		updated, err = s.adjustInfluencers(ctx, fb.MessageID, confidenceStep)
	case models.FeedbackRejected:
		updated, err = s.adjustInfluencers(ctx, fb.MessageID, -confidenceStep)
	case models.FeedbackRating:
		// Ratings feed the trend projections only.
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("feedback recorded",
		"message_id", fb.MessageID, "kind", fb.Kind, "preferences_updated", len(updated))
	if len(updated) > 0 && s.dispatcher != nil {
		s.dispatcher.Publish(dispatch.EventPreferenceUpdated, map[string]any{
			"message_id": fb.MessageID,
			"kind":       string(fb.Kind),
			"keys":       updated,
		})
	}
	return insights, nil
}

func (s *Service) validate(ctx context.Context, fb *models.Feedback) error {
	if fb == nil {
		return fmt.Errorf("%w: nil submission", ErrInvalidFeedback)
	}
	if _, err := models.ParseFeedbackKind(string(fb.Kind)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFeedback, err)
	}
	if fb.MessageID == "" {
		return fmt.Errorf("%w: message_id required", ErrInvalidFeedback)
	}
	if fb.Kind == models.FeedbackEdited && fb.Edited == "" {
		return fmt.Errorf("%w: edited feedback requires edited_response", ErrInvalidFeedback)
	}
	if fb.Kind == models.FeedbackRating && (fb.Rating < 0 || fb.Rating > 1) {
		return fmt.Errorf("%w: rating must be in [0,1]", ErrInvalidFeedback)
	}
	if s.messages != nil {
		if _, err := s.messages.GetMessage(ctx, fb.MessageID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: unknown message %s", ErrInvalidFeedback, fb.MessageID)
			}
			return fmt.Errorf("lookup message: %w", err)
		}
	}
	return nil
}

// learnFromEdit extracts correction patterns from a non-trivial edit
// and reinforces the matching preferences.
func (s *Service) learnFromEdit(ctx context.Context, fb *models.Feedback) ([]models.Insight, []string, error) {
	ratio := editRatio(fb.Original, fb.Edited)
	if !nonTrivialEdit(ratio) {
		return nil, nil, nil
	}

	patterns := extractPatterns(fb.Original, fb.Edited)
	updated := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if err := s.reinforce(ctx, p.Key, p.Value); err != nil {
			return nil, nil, err
		}
		updated = append(updated, p.Key)
	}
	return insightsFor(patterns), updated, nil
}

// reinforce bumps a preference's confidence by one step, creating it at
// the base confidence on first sight.
func (s *Service) reinforce(ctx context.Context, key, value string) error {
	pref, err := s.prefs.GetPreference(ctx, DefaultUserID, key)
	if errors.Is(err, storage.ErrNotFound) {
		pref = &models.Preference{UserID: DefaultUserID, Key: key, Confidence: confidenceBase}
	} else if err != nil {
		return fmt.Errorf("get preference: %w", err)
	}
	pref.Value = value
	pref.Confidence = min(1.0, pref.Confidence+confidenceStep)
	pref.Samples++
	pref.LastUpdated = s.now()
	if err := s.prefs.UpsertPreference(ctx, pref); err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	if s.metrics != nil {
		s.metrics.PreferenceUpdates.Inc()
	}
	return nil
}

// adjustInfluencers shifts the confidence of every preference that
// influenced the given message's draft. Positive delta also counts a
// corroborating sample; negative delta floors at zero.
func (s *Service) adjustInfluencers(ctx context.Context, messageID string, delta float64) ([]string, error) {
	keys := s.influencersOf(messageID)
	var updated []string
	for _, key := range keys {
		pref, err := s.prefs.GetPreference(ctx, DefaultUserID, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("get preference: %w", err)
		}
		pref.Confidence = max(0, min(1.0, pref.Confidence+delta))
		if delta > 0 {
			pref.Samples++
		}
		pref.LastUpdated = s.now()
		if err := s.prefs.UpsertPreference(ctx, pref); err != nil {
			return nil, fmt.Errorf("upsert preference: %w", err)
		}
		if s.metrics != nil {
			s.metrics.PreferenceUpdates.Inc()
		}
		updated = append(updated, key)
	}
	return updated, nil
}

// recordInfluence remembers which preference keys shaped a draft so
// later approve/reject feedback can adjust them.
func (s *Service) recordInfluence(messageID string, keys []string) {
	if messageID == "" || len(keys) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.influence[messageID]; !exists {
		s.order = append(s.order, messageID)
	}
	s.influence[messageID] = keys
	for len(s.order) > influenceLimit {
		evict := s.order[0]
		s.order = s.order[1:]
		delete(s.influence, evict)
	}
}

func (s *Service) influencersOf(messageID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.influence[messageID]
}

// insightsFor turns extracted patterns into human-readable insights.
func insightsFor(patterns []extractedPattern) []models.Insight {
	var insights []models.Insight
	for _, p := range patterns {
		switch p.Key {
		case PatternShorterResponses:
			insights = append(insights, models.Insight{
				Type: "response_length", Message: "User prefers shorter responses", Confidence: 0.8})
		case PatternLongerResponses:
			insights = append(insights, models.Insight{
				Type: "response_length", Message: "User prefers more detailed responses", Confidence: 0.8})
		case PatternAddGreeting:
			insights = append(insights, models.Insight{
				Type: "style", Message: "User adds greetings to responses", Confidence: 0.7})
		case PatternDropGreeting:
			insights = append(insights, models.Insight{
				Type: "style", Message: "User removes greetings from responses", Confidence: 0.7})
		case PatternMoreFormal:
			insights = append(insights, models.Insight{
				Type: "tone", Message: "User prefers a more formal tone", Confidence: 0.7})
		case PatternLessFormal:
			insights = append(insights, models.Insight{
				Type: "tone", Message: "User prefers a more casual tone", Confidence: 0.7})
		case PatternPhraseSwap:
			insights = append(insights, models.Insight{
				Type: "vocabulary", Message: fmt.Sprintf("User replaced wording: %s", p.Value), Confidence: 0.7})
		}
	}
	return insights
}
