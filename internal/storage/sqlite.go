package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/aide/pkg/models"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore is the durable Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures
// the schema exists. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc.org/sqlite serializes access per connection; a single
	// connection avoids SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			platform TEXT NOT NULL,
			sender TEXT NOT NULL,
			content TEXT NOT NULL,
			urgency REAL NOT NULL,
			received_at DATETIME NOT NULL,
			classification TEXT,
			processed INTEGER NOT NULL DEFAULT 0,
			action_taken TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_received ON messages(received_at)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			original TEXT NOT NULL,
			edited TEXT,
			rating REAL,
			platform TEXT,
			sender TEXT,
			submitted_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_submitted ON feedback(submitted_at)`,
		`CREATE TABLE IF NOT EXISTS preferences (
			user_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			confidence REAL NOT NULL,
			samples INTEGER NOT NULL,
			last_updated DATETIME NOT NULL,
			PRIMARY KEY (user_id, key)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// SaveMessage inserts a new message record.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	var cls any
	if msg.Classification != nil {
		raw, err := json.Marshal(msg.Classification)
		if err != nil {
			return fmt.Errorf("marshal classification: %w", err)
		}
		cls = string(raw)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, platform, sender, content, urgency, received_at, classification, processed, action_taken)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, string(msg.Platform), msg.Sender, msg.Content, msg.Urgency,
		msg.ReceivedAt.UTC(), cls, msg.Processed, msg.ActionTaken,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: message %s", ErrAlreadyExists, msg.ID)
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage returns the stored message.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, platform, sender, content, urgency, received_at, classification, processed, action_taken
		FROM messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	return msg, err
}

// MarkProcessed finalizes the message. Already-processed records are
// left untouched.
func (s *SQLiteStore) MarkProcessed(ctx context.Context, id, actionTaken string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET processed = 1, action_taken = ?
		WHERE id = ? AND processed = 0`, actionTaken, id)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM messages WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("%w: message %s", ErrNotFound, id)
		}
	}
	return nil
}

// ListMessages returns the most recent messages, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, platform, sender, content, urgency, received_at, classification, processed, action_taken
		FROM messages ORDER BY received_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg         models.Message
		platform    string
		cls         sql.NullString
		actionTaken sql.NullString
	)
	err := row.Scan(&msg.ID, &platform, &msg.Sender, &msg.Content, &msg.Urgency,
		&msg.ReceivedAt, &cls, &msg.Processed, &actionTaken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	msg.Platform = models.Platform(platform)
	msg.ActionTaken = actionTaken.String
	if cls.Valid && cls.String != "" {
		var c models.Classification
		if err := json.Unmarshal([]byte(cls.String), &c); err != nil {
			return nil, fmt.Errorf("unmarshal classification: %w", err)
		}
		msg.Classification = &c
	}
	return &msg, nil
}

// AppendFeedback appends to the feedback log.
func (s *SQLiteStore) AppendFeedback(ctx context.Context, fb *models.Feedback) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, message_id, kind, original, edited, rating, platform, sender, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.MessageID, string(fb.Kind), fb.Original, fb.Edited, fb.Rating,
		string(fb.Platform), fb.Sender, fb.SubmittedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	return nil
}

// ListFeedbackSince returns feedback at or after cutoff, oldest first.
func (s *SQLiteStore) ListFeedbackSince(ctx context.Context, cutoff time.Time) ([]*models.Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, kind, original, edited, rating, platform, sender, submitted_at
		FROM feedback WHERE submitted_at >= ? ORDER BY submitted_at ASC`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var out []*models.Feedback
	for rows.Next() {
		var (
			fb       models.Feedback
			kind     string
			platform sql.NullString
			edited   sql.NullString
			sender   sql.NullString
			rating   sql.NullFloat64
		)
		if err := rows.Scan(&fb.ID, &fb.MessageID, &kind, &fb.Original, &edited,
			&rating, &platform, &sender, &fb.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		fb.Kind = models.FeedbackKind(kind)
		fb.Edited = edited.String
		fb.Rating = rating.Float64
		fb.Platform = models.Platform(platform.String)
		fb.Sender = sender.String
		out = append(out, &fb)
	}
	return out, rows.Err()
}

// UpsertPreference inserts or replaces the preference for its
// (UserID, Key).
func (s *SQLiteStore) UpsertPreference(ctx context.Context, pref *models.Preference) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, key, value, confidence, samples, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, key) DO UPDATE SET
			value = excluded.value,
			confidence = excluded.confidence,
			samples = excluded.samples,
			last_updated = excluded.last_updated`,
		pref.UserID, pref.Key, pref.Value, pref.Confidence, pref.Samples, pref.LastUpdated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

// GetPreference returns the preference for (userID, key).
func (s *SQLiteStore) GetPreference(ctx context.Context, userID, key string) (*models.Preference, error) {
	var pref models.Preference
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, key, value, confidence, samples, last_updated
		FROM preferences WHERE user_id = ? AND key = ?`, userID, key).
		Scan(&pref.UserID, &pref.Key, &pref.Value, &pref.Confidence, &pref.Samples, &pref.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: preference %s/%s", ErrNotFound, userID, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get preference: %w", err)
	}
	return &pref, nil
}

// ListPreferences returns all of a user's preferences sorted by key.
func (s *SQLiteStore) ListPreferences(ctx context.Context, userID string) ([]*models.Preference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, key, value, confidence, samples, last_updated
		FROM preferences WHERE user_id = ? ORDER BY key ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	var out []*models.Preference
	for rows.Next() {
		var pref models.Preference
		if err := rows.Scan(&pref.UserID, &pref.Key, &pref.Value, &pref.Confidence,
			&pref.Samples, &pref.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		out = append(out, &pref)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures in the message
	// text; there is no stable sentinel to match on.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
