// Package events implements the append-only event store: normalization,
// bounded per-user logs, best-effort persistence, synchronous score
// recomputation, and the fire-and-forget backend mirror.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/shf-platform/credit_layer/internal/app/domain/event"
	"github.com/shf-platform/credit_layer/internal/app/domain/score"
	"github.com/shf-platform/credit_layer/internal/app/metrics"
	"github.com/shf-platform/credit_layer/internal/app/storage"
	"github.com/shf-platform/credit_layer/pkg/logger"
)

// Subscriber observes successful appends. Notification is synchronous, in
// append order, with the freshly derived state.
type Subscriber interface {
	EventAppended(userID string, ev event.Event, st score.State)
}

// Service owns the per-user event logs. The in-memory log is authoritative
// for the session; persistence is best-effort and write failures are
// swallowed.
type Service struct {
	store  storage.EventStore
	rules  []score.Rule
	bounds score.Bounds
	log    *logger.Logger
	now    func() time.Time

	mu     sync.Mutex
	cache  map[string][]event.Event
	loaded map[string]bool
	subs   []Subscriber
	mirror *Mirror
}

// New constructs the event service. A nil store keeps state purely in
// memory.
func New(store storage.EventStore, rules []score.Rule, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("events")
	}
	if rules == nil {
		rules = score.DefaultRules()
	}
	return &Service{
		store:  store,
		rules:  rules,
		bounds: score.DefaultBounds,
		log:    log,
		now:    time.Now,
		cache:  make(map[string][]event.Event),
		loaded: make(map[string]bool),
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithMirror attaches the backend mirror. Call before serving traffic.
func (s *Service) WithMirror(m *Mirror) *Service {
	s.mirror = m
	return s
}

// Subscribe registers an observer for successful appends. Call before
// serving traffic.
func (s *Service) Subscribe(sub Subscriber) {
	s.subs = append(s.subs, sub)
}

// Rules exposes the scoring table the service reduces with.
func (s *Service) Rules() []score.Rule {
	return s.rules
}

// Append validates, normalizes, and appends an event. Unknown keys are
// dropped silently: ok is false and nothing mutates. On success the derived
// state is recomputed and subscribers are notified before Append returns.
func (s *Service) Append(ctx context.Context, userID string, raw event.Event) (event.Event, score.State, bool) {
	ev, ok := event.Normalize(raw, userID, s.now())
	if !ok {
		metrics.RecordEventDropped(string(raw.Key))
		return event.Event{}, score.State{}, false
	}

	s.mu.Lock()
	s.loadLocked(ctx, userID)
	s.cache[userID] = event.Trim(append(s.cache[userID], ev))
	events := append([]event.Event(nil), s.cache[userID]...)
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.AppendEvent(ctx, userID, ev); err != nil {
			// in-memory log stays authoritative
			s.log.WithError(err).WithField("user", userID).Warn("persist event")
		}
	}

	st := score.Compute(events, s.rules, s.bounds, s.now())
	metrics.RecordEventAppended(string(ev.Key))
	metrics.RecordScoreRecompute()
	for _, entry := range st.Log {
		if entry.ID == ev.ID && entry.Delta == 0 && entry.Reason != "ok" {
			metrics.RecordCapRejection(entry.Reason)
		}
	}

	for _, sub := range s.subs {
		sub.EventAppended(userID, ev, st)
	}

	if s.mirror != nil {
		s.mirror.Forward(ev)
	}
	return ev, st, true
}

// List returns a copy of the user's event log.
func (s *Service) List(ctx context.Context, userID string) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx, userID)
	return append([]event.Event(nil), s.cache[userID]...)
}

// Score derives the current reputation state for the user.
func (s *Service) Score(ctx context.Context, userID string) score.State {
	events := s.List(ctx, userID)
	return score.Compute(events, s.rules, s.bounds, s.now())
}

// Clear irreversibly empties the user's log and its persisted copy. Used
// only as an explicit reset, never implicitly.
func (s *Service) Clear(ctx context.Context, userID string) {
	s.mu.Lock()
	delete(s.cache, userID)
	s.loaded[userID] = true
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.ClearEvents(ctx, userID); err != nil {
			s.log.WithError(err).WithField("user", userID).Warn("clear persisted events")
		}
	}
}

// Reload merges persisted state into the in-memory logs for every user seen
// so far, picking up writes from other instances. In-memory events missing
// from the store survive the merge.
func (s *Service) Reload(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	users := make([]string, 0, len(s.cache))
	for userID := range s.cache {
		users = append(users, userID)
	}
	s.mu.Unlock()

	for _, userID := range users {
		persisted, err := s.store.ListEvents(ctx, userID)
		if err != nil {
			s.log.WithError(err).WithField("user", userID).Warn("reload events")
			continue
		}
		s.mu.Lock()
		s.cache[userID] = event.Trim(mergeByID(s.cache[userID], persisted))
		s.mu.Unlock()
	}
}

// loadLocked pulls the persisted log into memory on first touch. Read
// failures degrade to an empty log.
func (s *Service) loadLocked(ctx context.Context, userID string) {
	if s.loaded[userID] || s.store == nil {
		s.loaded[userID] = true
		return
	}
	s.loaded[userID] = true
	persisted, err := s.store.ListEvents(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user", userID).Warn("load persisted events")
		return
	}
	s.cache[userID] = event.Trim(persisted)
}

func mergeByID(memory, persisted []event.Event) []event.Event {
	seen := make(map[string]struct{}, len(memory))
	merged := append([]event.Event(nil), memory...)
	for _, ev := range memory {
		seen[ev.ID] = struct{}{}
	}
	for _, ev := range persisted {
		if _, dup := seen[ev.ID]; !dup {
			merged = append(merged, ev)
		}
	}
	for i := 1; i < len(merged); i++ {
		for j := i; j > 0 && merged[j].TS < merged[j-1].TS; j-- {
			merged[j], merged[j-1] = merged[j-1], merged[j]
		}
	}
	return merged
}
