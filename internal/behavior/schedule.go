package behavior

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/aide/internal/contextstore"
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronCondition builds a time-kind condition from a cron expression
// and a throttle context key.
//
// The condition holds when the snapshot clock has passed the next
// scheduled time after the last firing recorded under throttleKey. A
// behavior that has never fired (key absent) is immediately eligible.
// The paired action must write the firing time to throttleKey (see
// MarkFired) since the engine itself imposes no cooldown.
func CronCondition(expr, throttleKey string) (Condition, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return ConditionFunc(func(snap contextstore.Snapshot, _ *Event) bool {
		last, ok := snap.Time(throttleKey)
		if !ok {
			return true
		}
		return !snap.TakenAt.Before(schedule.Next(last))
	}), nil
}

// ThrottleCondition holds when at least window has elapsed since the
// time recorded under throttleKey. An absent key is always eligible.
func ThrottleCondition(throttleKey string, window time.Duration) Condition {
	return ConditionFunc(func(snap contextstore.Snapshot, _ *Event) bool {
		last, ok := snap.Time(throttleKey)
		if !ok {
			return true
		}
		return snap.TakenAt.Sub(last) >= window
	})
}

// And combines conditions; all must hold.
func And(conds ...Condition) Condition {
	return ConditionFunc(func(snap contextstore.Snapshot, evt *Event) bool {
		for _, c := range conds {
			if !c.Evaluate(snap, evt) {
				return false
			}
		}
		return true
	})
}

// MarkFired records the snapshot-independent firing time under key.
// Actions call this so their own condition's throttle sees it on the
// next evaluation.
func MarkFired(store *contextstore.Store, key string, at time.Time) {
	store.Set(key, at)
}
