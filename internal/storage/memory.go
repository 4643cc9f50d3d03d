package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/aide/pkg/models"
)

// MemoryStore is an in-memory Store. Safe for concurrent use. Used in
// tests and when no storage path is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]*models.Message
	order    []string // message ids in insertion order
	feedback []*models.Feedback
	prefs    map[string]*models.Preference // keyed userID + "\x00" + key
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]*models.Message),
		prefs:    make(map[string]*models.Preference),
	}
}

func prefKey(userID, key string) string { return userID + "\x00" + key }

// SaveMessage inserts a new message record.
func (s *MemoryStore) SaveMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.ID]; ok {
		return fmt.Errorf("%w: message %s", ErrAlreadyExists, msg.ID)
	}
	cp := *msg
	s.messages[msg.ID] = &cp
	s.order = append(s.order, msg.ID)
	return nil
}

// GetMessage returns a copy of the stored message.
func (s *MemoryStore) GetMessage(_ context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	cp := *msg
	return &cp, nil
}

// MarkProcessed finalizes the message. A second call is a no-op so the
// record stays immutable once processed.
func (s *MemoryStore) MarkProcessed(_ context.Context, id, actionTaken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	if msg.Processed {
		return nil
	}
	msg.Processed = true
	msg.ActionTaken = actionTaken
	return nil
}

// ListMessages returns the most recent messages, newest first.
func (s *MemoryStore) ListMessages(_ context.Context, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.order) {
		limit = len(s.order)
	}
	out := make([]*models.Message, 0, limit)
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.messages[s.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}

// AppendFeedback appends to the feedback log.
func (s *MemoryStore) AppendFeedback(_ context.Context, fb *models.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *fb
	s.feedback = append(s.feedback, &cp)
	return nil
}

// ListFeedbackSince returns feedback at or after cutoff, oldest first.
func (s *MemoryStore) ListFeedbackSince(_ context.Context, cutoff time.Time) ([]*models.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Feedback
	for _, fb := range s.feedback {
		if !fb.SubmittedAt.Before(cutoff) {
			cp := *fb
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

// UpsertPreference inserts or replaces the preference for its
// (UserID, Key).
func (s *MemoryStore) UpsertPreference(_ context.Context, pref *models.Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *pref
	s.prefs[prefKey(pref.UserID, pref.Key)] = &cp
	return nil
}

// GetPreference returns a copy of the preference.
func (s *MemoryStore) GetPreference(_ context.Context, userID, key string) (*models.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pref, ok := s.prefs[prefKey(userID, key)]
	if !ok {
		return nil, fmt.Errorf("%w: preference %s/%s", ErrNotFound, userID, key)
	}
	cp := *pref
	return &cp, nil
}

// ListPreferences returns all of a user's preferences sorted by key.
func (s *MemoryStore) ListPreferences(_ context.Context, userID string) ([]*models.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Preference
	for _, pref := range s.prefs {
		if pref.UserID == userID {
			cp := *pref
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
