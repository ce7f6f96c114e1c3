// Package task models the repeatable reward tasks surfaced to users and the
// sliding-window cap guard that disables exhausted ones.
package task

import (
	"fmt"
	"time"

	"github.com/shf-platform/credit_layer/internal/app/domain/event"
	"github.com/shf-platform/credit_layer/internal/app/domain/score"
)

// Task is a repeatable reward-granting action. Completing it appends an
// event of Kind Event with Params as metadata.
type Task struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Event     event.Kind     `json:"event"`
	Params    map[string]any `json:"params,omitempty"`
	EstPoints int            `json:"estPoints,omitempty"`
}

// CapState tells the UI whether a task is currently disabled and the
// tightest remaining allowance.
type CapState struct {
	Disabled bool   `json:"disabled"`
	Hint     string `json:"hint,omitempty"`
}

// EstimatePoints predicts the points a completion is worth: the explicit
// estimate when present, else the largest non-negative weight of the rule.
func EstimatePoints(t Task, rule *score.Rule) int {
	if t.EstPoints != 0 {
		return t.EstPoints
	}
	if rule == nil {
		return 0
	}
	best := 0
	for _, w := range rule.Weights {
		if w > best {
			best = w
		}
	}
	return best
}

// EvaluateCap computes cap state for the task against the applied score log.
// Only delta != 0 entries count, so rejected probes never extend a cap. The
// hint reports the tightest active window; on exact ties the earlier-checked
// window (week before month before quarter) wins.
func EvaluateCap(t Task, rule *score.Rule, log []score.LogEntry, now time.Time) CapState {
	if rule == nil || rule.Cap == nil {
		return CapState{}
	}
	cap := rule.Cap

	const unlimited = int(^uint(0) >> 1)
	weekLeft, monthLeft, quarterLeft := unlimited, unlimited, unlimited

	if cap.PerWeek > 0 {
		weekLeft = remaining(cap.PerWeek, log, t.Event, t.ID, score.Week, now)
	}
	if cap.PerMonth > 0 {
		monthLeft = remaining(cap.PerMonth, log, t.Event, t.ID, score.Month, now)
	}
	if cap.PerQuarter > 0 {
		quarterLeft = remaining(cap.PerQuarter, log, t.Event, t.ID, score.Quarter, now)
	}

	state := CapState{
		Disabled: (cap.PerWeek > 0 && weekLeft <= 0) ||
			(cap.PerMonth > 0 && monthLeft <= 0) ||
			(cap.PerQuarter > 0 && quarterLeft <= 0),
	}

	if cap.PerWeek > 0 {
		state.Hint = fmt.Sprintf("%d/%d this week", weekLeft, cap.PerWeek)
	}
	if cap.PerMonth > 0 && (state.Hint == "" || monthLeft < weekLeft) {
		state.Hint = fmt.Sprintf("%d/%d this month", monthLeft, cap.PerMonth)
	}
	if cap.PerQuarter > 0 && (state.Hint == "" || (quarterLeft < weekLeft && quarterLeft < monthLeft)) {
		state.Hint = fmt.Sprintf("%d/%d this quarter", quarterLeft, cap.PerQuarter)
	}

	return state
}

func remaining(limit int, log []score.LogEntry, key event.Kind, taskID string, window time.Duration, now time.Time) int {
	left := limit - score.CountInWindow(log, key, taskID, window, now)
	if left < 0 {
		return 0
	}
	return left
}

// DefaultFeed is the platform task feed.
func DefaultFeed() []Task {
	return []Task{
		{
			ID:     "attend-class",
			Title:  "Attend a class session",
			Event:  event.AttendanceLogged,
			Params: map[string]any{"present": true},
		},
		{
			ID:     "submit-assignment",
			Title:  "Submit an assignment on time",
			Event:  event.AssignmentSubmitted,
			Params: map[string]any{"onTime": true},
		},
		{
			ID:     "share-progress",
			Title:  "Share your progress with the cohort",
			Event:  event.SocialAction,
			Params: map[string]any{"action": "share"},
		},
		{
			ID:     "mentor-peer",
			Title:  "Mentor a peer",
			Event:  event.SocialAction,
			Params: map[string]any{"action": "mentor"},
		},
		{
			ID:        "finish-lesson",
			Title:     "Finish a lesson",
			Event:     event.LessonComplete,
			Params:    map[string]any{"scoreDelta": 6},
			EstPoints: 6,
		},
		{
			ID:        "civic-mission",
			Title:     "Complete a civic mission",
			Event:     event.MissionComplete,
			Params:    map[string]any{"credits": 5},
			EstPoints: 5,
		},
	}
}
