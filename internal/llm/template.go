package llm

import (
	"context"
	"strings"

	"github.com/haasonsaas/aide/pkg/models"
)

// TemplateProvider is the always-available fallback: canned responses
// chosen by keyword intent detection. It never returns an error, which
// makes it the terminal element of any degradation chain.
type TemplateProvider struct{}

// NewTemplateProvider creates the fallback provider.
func NewTemplateProvider() *TemplateProvider { return &TemplateProvider{} }

// Name returns "template".
func (p *TemplateProvider) Name() string { return "template" }

var responseTemplates = map[models.Intent]string{
	models.IntentQuestion:    "Thank you for reaching out. I'll look into your question and get back to you shortly.",
	models.IntentRequest:     "Got it, I'll take care of that and follow up with you.",
	models.IntentInformation: "Thanks for the update, noted.",
	models.IntentComplaint:   "Thank you for flagging this. I'll review it and get back to you as soon as possible.",
	models.IntentOther:       "Thank you for your message. I'll get back to you shortly.",
}

// Generate returns a canned response matched to the prompt's apparent
// intent. Never fails.
func (p *TemplateProvider) Generate(_ context.Context, req *Request) (string, error) {
	hint := HeuristicIntent(req.Prompt)
	return responseTemplates[hint], nil
}

// AnalyzeIntent runs the keyword heuristic. Never fails.
func (p *TemplateProvider) AnalyzeIntent(_ context.Context, text string) (*IntentHint, error) {
	return &IntentHint{Intent: HeuristicIntent(text), Urgency: 0.5}, nil
}

// HeuristicIntent is the keyword-based intent detector shared with the
// classifier's degraded path.
func HeuristicIntent(text string) models.Intent {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "?") ||
		containsAny(lower, "what", "how", "why", "when", "where"):
		return models.IntentQuestion
	case containsAny(lower, "please", "could you", "can you", "need", "required"):
		return models.IntentRequest
	case containsAny(lower, "complaint", "disappointed", "unacceptable", "not working", "broken"):
		return models.IntentComplaint
	case containsAny(lower, "fyi", "update", "letting you know", "heads up"):
		return models.IntentInformation
	default:
		return models.IntentOther
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
