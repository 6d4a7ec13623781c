package schedule

import (
	"sort"
	"time"
)

// NotificationDays is an immutable sorted set of reminder offsets, in days
// before the due date, ordered descending (earliest trigger first). An offset
// of zero means "remind on the due date itself". Treat values as read-only:
// With and Without return new sets and never mutate the receiver.
type NotificationDays []int

// NewNotificationDays normalizes the given offsets into a sorted, deduplicated
// set. Negative offsets are dropped; validation rejects them upstream.
func NewNotificationDays(days ...int) NotificationDays {
	seen := make(map[int]struct{}, len(days))
	out := make(NotificationDays, 0, len(days))
	for _, d := range days {
		if d < 0 {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// With returns a new set containing d.
func (n NotificationDays) With(d int) NotificationDays {
	return NewNotificationDays(append(n.copy(), d)...)
}

// Without returns a new set with d removed.
func (n NotificationDays) Without(d int) NotificationDays {
	out := make([]int, 0, len(n))
	for _, v := range n {
		if v != d {
			out = append(out, v)
		}
	}
	return NewNotificationDays(out...)
}

func (n NotificationDays) Contains(d int) bool {
	for _, v := range n {
		if v == d {
			return true
		}
	}
	return false
}

func (n NotificationDays) copy() []int {
	out := make([]int, len(n))
	copy(out, n)
	return out
}

// NotificationTrigger is a single planned reminder for one billing cycle.
type NotificationTrigger struct {
	TriggerDate time.Time
	DaysBefore  int
}

// NotificationTriggers derives the reminder plan for the cycle due on
// nextBillingDate: one trigger per offset, earliest first. Stateless; callers
// re-derive the plan whenever the due date moves.
func NotificationTriggers(nextBillingDate time.Time, days NotificationDays) []NotificationTrigger {
	nextBillingDate = DateOnly(nextBillingDate)
	triggers := make([]NotificationTrigger, 0, len(days))
	for _, d := range days {
		triggers = append(triggers, NotificationTrigger{
			TriggerDate: nextBillingDate.AddDate(0, 0, -d),
			DaysBefore:  d,
		})
	}
	return triggers
}
