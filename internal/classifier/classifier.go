// Package classifier derives intent, urgency, VIP status and category
// for inbound messages. Language understanding is delegated to the
// completion provider; the scoring decisions stay here.
package classifier

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/aide/internal/config"
	"github.com/haasonsaas/aide/internal/contextstore"
	"github.com/haasonsaas/aide/internal/llm"
	"github.com/haasonsaas/aide/pkg/models"
)

// vipFloor is the minimum urgency assigned to a VIP sender.
const vipFloor = 0.7

// keywordUrgency is the urgency assigned when an urgent keyword is
// present in the message body.
const keywordUrgency = 0.9

// baseUrgency is the starting urgency for an unremarkable message.
const baseUrgency = 0.5

// offHoursPenalty is subtracted from urgency outside business hours.
const offHoursPenalty = 0.1

// Classifier scores inbound messages. Safe for concurrent use.
type Classifier struct {
	store          *contextstore.Store
	provider       llm.Provider
	logger         *slog.Logger
	urgentKeywords []string
	hoursStart     int
	hoursEnd       int
	now            func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Classifier. provider may be nil, in which case every
// classification takes the heuristic-only path.
func New(cfg config.ClassifierConfig, store *contextstore.Store, provider llm.Provider, opts ...Option) *Classifier {
	c := &Classifier{
		store:          store,
		provider:       provider,
		logger:         slog.Default(),
		urgentKeywords: cfg.UrgentKeywords,
		hoursStart:     cfg.BusinessHoursStart,
		hoursEnd:       cfg.BusinessHoursEnd,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify scores msg and returns its classification. Provider failure
// degrades to the keyword/VIP heuristic; Classify itself never fails.
func (c *Classifier) Classify(ctx context.Context, msg *models.Message) *models.Classification {
	cls := &models.Classification{
		Intent:   llm.HeuristicIntent(msg.Content),
		IsVIP:    c.isVIP(msg.Sender),
		Category: categorize(msg.Content),
	}
	cls.Urgency = c.heuristicUrgency(msg, cls.IsVIP)

	if c.provider == nil {
		cls.Degraded = true
		return cls
	}

	hint, err := c.provider.AnalyzeIntent(ctx, msg.Content)
	if err != nil {
		c.logger.Warn("intent analysis unavailable, using heuristics",
			"provider", c.provider.Name(), "error", err)
		cls.Degraded = true
		return cls
	}
	if hint.Intent != "" {
		cls.Intent = hint.Intent
	}
	cls.Urgency = clip01((cls.Urgency + clip01(hint.Urgency)) / 2)
	return cls
}

// heuristicUrgency combines the explicit signals: urgent keywords,
// VIP floor, explicit message urgency and time of day.
func (c *Classifier) heuristicUrgency(msg *models.Message, isVIP bool) float64 {
	urgency := baseUrgency
	if msg.Urgency > 0 {
		urgency = msg.Urgency
	}
	lower := strings.ToLower(msg.Content)
	for _, kw := range c.urgentKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			urgency = max(urgency, keywordUrgency)
			break
		}
	}
	if isVIP {
		urgency = max(urgency, vipFloor)
	}
	if !c.withinBusinessHours() {
		urgency -= offHoursPenalty
	}
	return clip01(urgency)
}

func (c *Classifier) withinBusinessHours() bool {
	hour := c.now().Hour()
	return hour >= c.hoursStart && hour < c.hoursEnd
}

// isVIP looks the sender up in the vip_contacts context key.
func (c *Classifier) isVIP(sender string) bool {
	if c.store == nil {
		return false
	}
	snap := c.store.Snapshot()
	sender = strings.ToLower(strings.TrimSpace(sender))
	for _, vip := range snap.Strings("vip_contacts") {
		if strings.ToLower(strings.TrimSpace(vip)) == sender {
			return true
		}
	}
	return false
}

var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"work", []string{"meeting", "project", "deadline", "report", "client", "office"}},
	{"finance", []string{"invoice", "payment", "bill", "bank", "transfer", "budget"}},
	{"scheduling", []string{"schedule", "calendar", "appointment", "reschedule", "available", "tomorrow"}},
	{"personal", []string{"dinner", "family", "weekend", "birthday", "vacation", "friend"}},
}

// categorize assigns a coarse category from keyword hits, first match
// in table order wins.
func categorize(content string) string {
	lower := strings.ToLower(content)
	for _, entry := range categoryKeywords {
		for _, w := range entry.words {
			if strings.Contains(lower, w) {
				return entry.category
			}
		}
	}
	return "general"
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
