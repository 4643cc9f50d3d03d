package models

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies the messaging platform a message arrived on.
type Platform string

const (
	PlatformEmail    Platform = "email"
	PlatformSMS      Platform = "sms"
	PlatformSlack    Platform = "slack"
	PlatformDiscord  Platform = "discord"
	PlatformWhatsApp Platform = "whatsapp"
	PlatformTeams    Platform = "teams"
	PlatformGeneric  Platform = "generic"
)

// NormalizePlatform maps a raw platform string onto a known Platform,
// falling back to PlatformGeneric for anything unrecognized.
func NormalizePlatform(raw string) Platform {
	p := Platform(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case PlatformEmail, PlatformSMS, PlatformSlack, PlatformDiscord,
		PlatformWhatsApp, PlatformTeams:
		return p
	default:
		return PlatformGeneric
	}
}

// Intent classifies what an inbound message is asking for.
type Intent string

const (
	IntentQuestion    Intent = "question"
	IntentRequest     Intent = "request"
	IntentInformation Intent = "information"
	IntentComplaint   Intent = "complaint"
	IntentOther       Intent = "other"
)

// Classification is the classifier's verdict on an inbound message.
type Classification struct {
	Intent   Intent  `json:"intent"`
	Urgency  float64 `json:"urgency"` // 0..1
	IsVIP    bool    `json:"is_vip"`
	Category string  `json:"category"`

	// Degraded is set when the external completion provider was
	// unavailable and the classification came from heuristics alone.
	Degraded bool `json:"degraded,omitempty"`
}

// Message is an inbound message flowing through the processing pipeline.
// Once Processed is set the record is never mutated again.
type Message struct {
	ID             string          `json:"id"`
	Platform       Platform        `json:"platform"`
	Sender         string          `json:"sender"`
	Content        string          `json:"content"`
	Urgency        float64         `json:"urgency"`
	ReceivedAt     time.Time       `json:"received_at"`
	Classification *Classification `json:"classification,omitempty"`
	Processed      bool            `json:"processed"`
	ActionTaken    string          `json:"action_taken,omitempty"`
}

// AutonomyLevel bounds how independently the system may act on a
// platform. Levels are ordered: each level permits everything the
// previous one does plus more.
type AutonomyLevel int

const (
	// AutonomyOff records messages only. No draft is requested and no
	// response notification is emitted.
	AutonomyOff AutonomyLevel = iota
	// AutonomyNotify drafts a response and shows it to the user.
	AutonomyNotify
	// AutonomyDraft drafts a response that requires explicit user
	// confirmation before sending.
	AutonomyDraft
	// AutonomyAutoRespond auto-sends unless the message is high urgency
	// or from a VIP, in which case it behaves like AutonomyDraft.
	AutonomyAutoRespond
	// AutonomyFull auto-sends unconditionally.
	AutonomyFull
)

// String returns the human-readable level name.
func (l AutonomyLevel) String() string {
	switch l {
	case AutonomyOff:
		return "off"
	case AutonomyNotify:
		return "notify"
	case AutonomyDraft:
		return "draft"
	case AutonomyAutoRespond:
		return "auto_respond"
	case AutonomyFull:
		return "full"
	default:
		return fmt.Sprintf("autonomy(%d)", int(l))
	}
}

// Valid reports whether the level is inside the defined 0-4 range.
func (l AutonomyLevel) Valid() bool {
	return l >= AutonomyOff && l <= AutonomyFull
}

// ParseAutonomyLevel accepts either a numeric level ("3") or a level
// name ("auto_respond").
func ParseAutonomyLevel(raw string) (AutonomyLevel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "0", "off":
		return AutonomyOff, nil
	case "1", "notify":
		return AutonomyNotify, nil
	case "2", "draft":
		return AutonomyDraft, nil
	case "3", "auto_respond", "autorespond":
		return AutonomyAutoRespond, nil
	case "4", "full":
		return AutonomyFull, nil
	default:
		return AutonomyOff, fmt.Errorf("unknown autonomy level %q", raw)
	}
}
