// Package storage defines the persistence boundary and its two
// implementations: an in-memory store for tests and degraded startup,
// and a sqlite-backed store for durable operation.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/aide/pkg/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when inserting over an existing key.
var ErrAlreadyExists = errors.New("record already exists")

// MessageStore persists inbound messages and their processing outcome.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// MarkProcessed finalizes a message with the action taken. The
	// record is immutable afterwards.
	MarkProcessed(ctx context.Context, id, actionTaken string) error
	ListMessages(ctx context.Context, limit int) ([]*models.Message, error)
}

// FeedbackStore is the append-only feedback log.
type FeedbackStore interface {
	AppendFeedback(ctx context.Context, fb *models.Feedback) error
	// ListFeedbackSince returns feedback submitted at or after cutoff,
	// oldest first.
	ListFeedbackSince(ctx context.Context, cutoff time.Time) ([]*models.Feedback, error)
}

// PreferenceStore persists learned preferences, unique per
// (UserID, Key).
type PreferenceStore interface {
	UpsertPreference(ctx context.Context, pref *models.Preference) error
	GetPreference(ctx context.Context, userID, key string) (*models.Preference, error)
	ListPreferences(ctx context.Context, userID string) ([]*models.Preference, error)
}

// Store bundles the three persistence concerns behind one handle.
type Store interface {
	MessageStore
	FeedbackStore
	PreferenceStore
	Close() error
}
