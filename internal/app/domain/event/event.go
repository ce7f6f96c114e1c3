// Package event defines the typed action log that every derived structure in
// the credit layer reduces over.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies an event type from the closed registry.
type Kind string

// Registered event kinds. The registry is closed: events with any other key
// are dropped without error.
const (
	AttendanceLogged    Kind = "edu.attendance.logged"
	GradePosted         Kind = "edu.grade.posted"
	MicrocertEarned     Kind = "edu.microcert.earned"
	AssignmentSubmitted Kind = "eng.assignment.submitted"
	SocialAction        Kind = "social.action"
	PaymentPosted       Kind = "credit.payment.posted"
	DisputeResolved     Kind = "credit.dispute.resolved"
	DerogAdded          Kind = "credit.derog.added"
	LessonComplete      Kind = "lesson.complete"
	MissionComplete     Kind = "civic.mission.complete"
	GameComplete        Kind = "arcade.game.complete"
	CustomEarn          Kind = "custom.earn"
)

var registry = map[Kind]struct{}{
	AttendanceLogged:    {},
	GradePosted:         {},
	MicrocertEarned:     {},
	AssignmentSubmitted: {},
	SocialAction:        {},
	PaymentPosted:       {},
	DisputeResolved:     {},
	DerogAdded:          {},
	LessonComplete:      {},
	MissionComplete:     {},
	GameComplete:        {},
	CustomEarn:          {},
}

// IsKind reports whether key belongs to the registry.
func IsKind(key Kind) bool {
	_, ok := registry[key]
	return ok
}

// Kinds returns the registered kinds in no particular order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

// MaxLogEntries bounds the per-user event log. The oldest entries are evicted
// silently once the cap is exceeded.
const MaxLogEntries = 2000

// Event is a single immutable action. TS is epoch milliseconds.
type Event struct {
	ID     string         `json:"id"`
	Key    Kind           `json:"key"`
	TS     int64          `json:"ts"`
	UserID string         `json:"userId,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
	TaskID string         `json:"taskId,omitempty"`
	Source string         `json:"source,omitempty"`
}

// Normalize fills defaults on a raw event and stamps the caller's identity.
// It returns false when the key is not registered; callers drop such events
// silently. A missing TS defaults to now; a missing TaskID defaults to the
// key so caps have a stable identifier to count against.
func Normalize(ev Event, userID string, now time.Time) (Event, bool) {
	if !IsKind(ev.Key) {
		return Event{}, false
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.TS == 0 {
		ev.TS = now.UnixMilli()
	}
	if ev.TaskID == "" {
		ev.TaskID = string(ev.Key)
	}
	if ev.Meta == nil {
		ev.Meta = map[string]any{}
	}
	ev.UserID = userID
	return ev, true
}

// Trim returns the most recent MaxLogEntries events, evicting the oldest.
func Trim(events []Event) []Event {
	if len(events) <= MaxLogEntries {
		return events
	}
	return events[len(events)-MaxLogEntries:]
}
