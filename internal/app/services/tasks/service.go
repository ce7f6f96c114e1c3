// Package tasks surfaces the reward task feed and turns completions into
// credit events.
package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/shf-platform/credit_layer/internal/app/domain/event"
	"github.com/shf-platform/credit_layer/internal/app/domain/score"
	"github.com/shf-platform/credit_layer/internal/app/domain/task"
	"github.com/shf-platform/credit_layer/internal/app/services/events"
	"github.com/shf-platform/credit_layer/pkg/logger"
)

// FeedItem is a task decorated with the user's live cap and estimate.
type FeedItem struct {
	task.Task
	EstPoints int    `json:"estPoints"`
	Disabled  bool   `json:"disabled"`
	Hint      string `json:"hint,omitempty"`
}

// CompleteResult reports the outcome of a task completion. Applied is false
// when a cap swallowed the completion; the event is still logged with a zero
// delta so the attempt stays auditable.
type CompleteResult struct {
	Event   event.Event `json:"event"`
	State   score.State `json:"state"`
	Applied bool        `json:"applied"`
	Reason  string      `json:"reason"`
}

// Service hands out the feed and routes completions through the events
// service.
type Service struct {
	events *events.Service
	feed   []task.Task
	log    *logger.Logger
	now    func() time.Time
}

// New builds the tasks service over the events pipeline. A nil feed falls
// back to the platform defaults.
func New(ev *events.Service, feed []task.Task, log *logger.Logger) *Service {
	if feed == nil {
		feed = task.DefaultFeed()
	}
	if log == nil {
		log = logger.NewDefault("tasks-service")
	}
	return &Service{
		events: ev,
		feed:   feed,
		log:    log,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Feed returns the full task feed with each task's cap state and point
// estimate computed against the user's current score log.
func (s *Service) Feed(ctx context.Context, userID string) []FeedItem {
	st := s.events.Score(ctx, userID)
	rules := s.events.Rules()
	now := s.now()

	out := make([]FeedItem, 0, len(s.feed))
	for _, t := range s.feed {
		rule := score.RuleFor(t.Event, rules)
		cap := task.EvaluateCap(t, rule, st.Log, now)
		out = append(out, FeedItem{
			Task:      t,
			EstPoints: task.EstimatePoints(t, rule),
			Disabled:  cap.Disabled,
			Hint:      cap.Hint,
		})
	}
	return out
}

// Find returns the feed task with the id.
func (s *Service) Find(taskID string) (task.Task, bool) {
	for _, t := range s.feed {
		if t.ID == taskID {
			return t, true
		}
	}
	return task.Task{}, false
}

// Complete appends the task's event to the user's log. The cap guard inside
// scoring decides whether the completion earns points.
func (s *Service) Complete(ctx context.Context, userID, taskID string) (CompleteResult, error) {
	t, ok := s.Find(taskID)
	if !ok {
		return CompleteResult{}, fmt.Errorf("unknown task %q", taskID)
	}

	ev, st, ok := s.events.Append(ctx, userID, event.Event{
		Key:    t.Event,
		Meta:   t.Params,
		TaskID: t.ID,
		Source: "task",
	})
	if !ok {
		return CompleteResult{}, fmt.Errorf("event %q rejected", t.Event)
	}

	res := CompleteResult{Event: ev, State: st, Applied: true, Reason: "ok"}
	for _, entry := range st.Log {
		if entry.ID == ev.ID {
			res.Applied = entry.Reason == "ok"
			res.Reason = entry.Reason
			break
		}
	}
	return res, nil
}
