package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/aide/pkg/models"
)

const intentAnalysisPersona = "You classify messages. Respond with compact JSON only, no prose."

func intentAnalysisPrompt(text string) string {
	return fmt.Sprintf(`Classify this message.

Message: %s

Respond with JSON: {"intent": one of "question"|"request"|"information"|"complaint"|"other", "urgency": number between 0 and 1}`, text)
}

// parseIntentHint extracts the JSON object from a model response,
// tolerating surrounding prose or code fences.
func parseIntentHint(raw string) (*IntentHint, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in intent analysis", ErrUnavailable)
	}

	var parsed struct {
		Intent  string  `json:"intent"`
		Urgency float64 `json:"urgency"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed intent analysis: %v", ErrUnavailable, err)
	}

	hint := &IntentHint{Urgency: clip01(parsed.Urgency)}
	switch models.Intent(strings.ToLower(strings.TrimSpace(parsed.Intent))) {
	case models.IntentQuestion:
		hint.Intent = models.IntentQuestion
	case models.IntentRequest:
		hint.Intent = models.IntentRequest
	case models.IntentInformation:
		hint.Intent = models.IntentInformation
	case models.IntentComplaint:
		hint.Intent = models.IntentComplaint
	default:
		hint.Intent = models.IntentOther
	}
	return hint, nil
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
