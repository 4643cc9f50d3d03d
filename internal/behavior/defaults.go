package behavior

import (
	"context"
	"time"

	"github.com/haasonsaas/aide/internal/contextstore"
)

// Context keys the default behaviors read and write.
const (
	KeyUserState           = "user_state"
	KeyLastInteraction     = "last_interaction"
	KeyMessageQueue        = "message_queue"
	KeyVIPContacts         = "vip_contacts"
	KeyLastDailySummary    = "last_daily_summary"
	KeyLastInactivityAlert = "last_inactivity_alert"
	KeyLastRoutineAlert    = "last_routine_alert"
)

// DefaultBehaviors returns the stock behavior set. The clock is
// injected so actions stamp throttle keys consistently with the
// engine's (possibly simulated) time.
func DefaultBehaviors(now func() time.Time) ([]*Behavior, error) {
	if now == nil {
		now = time.Now
	}

	dailyCond, err := CronCondition("0 9 * * *", KeyLastDailySummary)
	if err != nil {
		return nil, err
	}

	return []*Behavior{
		{
			Name:        "daily_summary",
			Kind:        KindTime,
			Description: "Generates a daily summary at 9 AM",
			Priority:    8,
			Condition:   dailyCond,
			Action: ActionFunc(func(_ context.Context, store *contextstore.Store, _ *Event) (any, error) {
				ts := now()
				pending := 0
				if queue, ok := store.Get(KeyMessageQueue); ok {
					if items, ok := queue.([]any); ok {
						pending = len(items)
					}
				}
				MarkFired(store, KeyLastDailySummary, ts)
				return map[string]any{
					"type":      "daily_summary",
					"timestamp": ts.Format(time.RFC3339),
					"content": map[string]any{
						"pending_messages": pending,
						"today_priorities": []string{
							"Check important emails",
							"Review calendar",
						},
						"suggested_actions": []string{
							"Respond to urgent messages",
							"Prepare for meetings",
						},
					},
				}, nil
			}),
		},
		{
			Name:        "inactivity_alert",
			Kind:        KindTime,
			Description: "Alerts about inactivity during work hours",
			Priority:    5,
			Condition: And(
				ConditionFunc(func(snap contextstore.Snapshot, _ *Event) bool {
					last, ok := snap.Time(KeyLastInteraction)
					if !ok {
						return false
					}
					hour := snap.TakenAt.Hour()
					return snap.TakenAt.Sub(last) > 2*time.Hour && hour >= 9 && hour <= 17
				}),
				ThrottleCondition(KeyLastInactivityAlert, time.Hour),
			),
			Action: ActionFunc(func(_ context.Context, store *contextstore.Store, _ *Event) (any, error) {
				ts := now()
				MarkFired(store, KeyLastInactivityAlert, ts)
				return map[string]any{
					"type":      "inactivity_alert",
					"timestamp": ts.Format(time.RFC3339),
					"content": map[string]any{
						"message": "You've been inactive for a while. Any tasks I can help with?",
						"suggestions": []string{
							"Check messages", "Review todo list", "Take a break",
						},
					},
				}, nil
			}),
		},
		{
			Name:        "important_message_detection",
			Kind:        KindEvent,
			Description: "Detects and alerts about important messages",
			Priority:    10,
			Condition: ConditionFunc(func(snap contextstore.Snapshot, _ *Event) bool {
				return len(unprocessedImportant(snap)) > 0
			}),
			Action: ActionFunc(func(_ context.Context, store *contextstore.Store, _ *Event) (any, error) {
				important := unprocessedImportant(store.Snapshot())
				if len(important) > 3 {
					important = important[:3]
				}
				markQueueProcessed(store)
				return map[string]any{
					"type":      "important_message_alert",
					"timestamp": now().Format(time.RFC3339),
					"content": map[string]any{
						"count":           len(important),
						"messages":        important,
						"action_required": true,
					},
				}, nil
			}),
		},
		{
			Name:        "routine_disruption_detection",
			Kind:        KindPattern,
			Description: "Detects disruptions in user routine",
			Priority:    6,
			Condition: And(
				ConditionFunc(func(snap contextstore.Snapshot, _ *Event) bool {
					hour := snap.TakenAt.Hour()
					expected := "idle"
					if hour >= 9 && hour <= 17 {
						expected = "active"
					}
					actual := snap.String(KeyUserState)
					if actual == "" {
						actual = "active"
					}
					return expected != actual
				}),
				ThrottleCondition(KeyLastRoutineAlert, time.Hour),
			),
			Action: ActionFunc(func(_ context.Context, store *contextstore.Store, _ *Event) (any, error) {
				ts := now()
				MarkFired(store, KeyLastRoutineAlert, ts)
				return map[string]any{
					"type":      "routine_disruption",
					"timestamp": ts.Format(time.RFC3339),
					"content": map[string]any{
						"message":          "Noticed a change in your usual pattern. Everything okay?",
						"detected_pattern": "Unusual activity state for this time",
						"suggestions": []string{
							"Update your status", "Set away message", "Continue as normal",
						},
					},
				}, nil
			}),
		},
	}, nil
}

// unprocessedImportant extracts high-priority unprocessed entries from
// the message_queue context key.
func unprocessedImportant(snap contextstore.Snapshot) []map[string]any {
	queue, ok := snap.Get(KeyMessageQueue)
	if !ok {
		return nil
	}
	items, ok := queue.([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, item := range items {
		msg, ok := item.(map[string]any)
		if !ok {
			continue
		}
		processed, _ := msg["processed"].(bool)
		if msg["priority"] == "high" && !processed {
			out = append(out, msg)
		}
	}
	return out
}

// markQueueProcessed replaces the message queue with a copy in which
// every high-priority entry is marked processed. The queue value is
// replaced, not mutated, per the context store convention.
func markQueueProcessed(store *contextstore.Store) {
	queue, ok := store.Get(KeyMessageQueue)
	if !ok {
		return
	}
	items, ok := queue.([]any)
	if !ok {
		return
	}
	next := make([]any, 0, len(items))
	for _, item := range items {
		msg, ok := item.(map[string]any)
		if !ok || msg["priority"] != "high" {
			next = append(next, item)
			continue
		}
		updated := make(map[string]any, len(msg))
		for k, v := range msg {
			updated[k] = v
		}
		updated["processed"] = true
		next = append(next, updated)
	}
	store.Set(KeyMessageQueue, next)
}
