package models

import (
	"fmt"
	"strings"
	"time"
)

// FeedbackKind is the kind of user feedback on a generated response.
type FeedbackKind string

const (
	FeedbackApproved FeedbackKind = "approved"
	FeedbackRejected FeedbackKind = "rejected"
	FeedbackEdited   FeedbackKind = "edited"
	FeedbackRating   FeedbackKind = "rating"
)

// ParseFeedbackKind validates a raw feedback kind string.
func ParseFeedbackKind(raw string) (FeedbackKind, error) {
	k := FeedbackKind(strings.ToLower(strings.TrimSpace(raw)))
	switch k {
	case FeedbackApproved, FeedbackRejected, FeedbackEdited, FeedbackRating:
		return k, nil
	default:
		return "", fmt.Errorf("unknown feedback kind %q", raw)
	}
}

// Feedback is one user judgement on a generated response. Records are
// append-only and never mutated once written.
type Feedback struct {
	ID          string       `json:"id"`
	MessageID   string       `json:"message_id"`
	Kind        FeedbackKind `json:"kind"`
	Original    string       `json:"original_response"`
	Edited      string       `json:"edited_response,omitempty"`
	Rating      float64      `json:"rating,omitempty"`
	Platform    Platform     `json:"platform"`
	Sender      string       `json:"sender,omitempty"`
	SubmittedAt time.Time    `json:"submitted_at"`
}

// QualityScore maps feedback onto a 0..1 response quality signal.
// Edited feedback is scored by the caller from edit similarity; this
// covers the kinds with a fixed score.
func (f *Feedback) QualityScore(editSimilarity float64) float64 {
	switch f.Kind {
	case FeedbackApproved:
		return 1.0
	case FeedbackRejected:
		return 0.0
	case FeedbackRating:
		if f.Rating < 0 {
			return 0
		}
		if f.Rating > 1 {
			return 1
		}
		return f.Rating
	case FeedbackEdited:
		return editSimilarity
	default:
		return 0.5
	}
}

// Preference is a learned, confidence-weighted adjustment to generated
// responses, unique per (UserID, Key).
type Preference struct {
	UserID      string    `json:"user_id"`
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Confidence  float64   `json:"confidence"` // 0..1
	Samples     int       `json:"samples"`
	LastUpdated time.Time `json:"last_updated"`
}

// Insight is a human-readable observation derived from feedback.
type Insight struct {
	Type       string  `json:"type"`
	Message    string  `json:"message"`
	Confidence float64 `json:"confidence"`
}
