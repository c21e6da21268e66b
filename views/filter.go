package views

import (
	"fmt"
	"strings"
	"time"

	"prism-tasks/domain"
)

// Bucket is a named due-date filter.
type Bucket string

const (
	BucketDay  Bucket = "day"
	BucketWeek Bucket = "week"
	BucketAll  Bucket = "all"
)

const week = 7 * 24 * time.Hour

// ParseBucket maps a bucket name onto a Bucket.
func ParseBucket(s string) (Bucket, error) {
	switch b := Bucket(strings.ToLower(strings.TrimSpace(s))); b {
	case BucketDay, BucketWeek, BucketAll:
		return b, nil
	case "":
		return BucketAll, nil
	}
	return "", fmt.Errorf("unknown date bucket %q", s)
}

func filter(tasks []domain.Task, keep func(domain.Task) bool) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// Search keeps tasks whose title contains query, ignoring case. A blank query
// keeps everything.
func Search(tasks []domain.Task, query string) []domain.Task {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return tasks
	}
	return filter(tasks, func(t domain.Task) bool {
		return strings.Contains(strings.ToLower(t.Title), q)
	})
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateFilter applies a due-date bucket. Day compares calendar days in now's
// location. Week keeps everything due before now plus seven days, overdue
// tasks included.
func DateFilter(tasks []domain.Task, bucket Bucket, now time.Time) []domain.Task {
	switch bucket {
	case BucketDay:
		return filter(tasks, func(t domain.Task) bool {
			return t.DueDate != nil && sameDay(t.DueDate.In(now.Location()), now)
		})
	case BucketWeek:
		limit := now.Add(week)
		return filter(tasks, func(t domain.Task) bool {
			return t.DueDate != nil && t.DueDate.Before(limit)
		})
	}
	return tasks
}

// OnDay keeps tasks due on the calendar day of day, in day's location.
func OnDay(tasks []domain.Task, day time.Time) []domain.Task {
	return filter(tasks, func(t domain.Task) bool {
		return t.DueDate != nil && sameDay(t.DueDate.In(day.Location()), day)
	})
}

// Ack identifies one acknowledged reminder. A reminder moved to another
// instant is a new reminder.
type Ack struct {
	TaskID string
	At     int64
}

// AckOf returns the acknowledgment key of t's current reminder.
func AckOf(t domain.Task) (Ack, bool) {
	if !t.HasReminder() {
		return Ack{}, false
	}
	return Ack{TaskID: t.ID, At: t.RemindMe.UnixNano()}, true
}

// AckSet holds acknowledged reminders.
type AckSet map[Ack]struct{}

// Has reports whether t's current reminder was acknowledged.
func (s AckSet) Has(t domain.Task) bool {
	a, ok := AckOf(t)
	if !ok {
		return false
	}
	_, found := s[a]
	return found
}

// Due returns tasks whose reminder is strictly before now and not yet
// acknowledged.
func Due(tasks []domain.Task, now time.Time, acknowledged AckSet) []domain.Task {
	return filter(tasks, func(t domain.Task) bool {
		return t.HasReminder() && t.RemindMe.Before(now) && !acknowledged.Has(t)
	})
}
