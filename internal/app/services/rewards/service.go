// Package rewards exposes the badge service: scoped catalogs, award history,
// progress views, and notification fan-out on unlocks.
package rewards

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shf-platform/credit_layer/internal/app/domain/badge"
	"github.com/shf-platform/credit_layer/internal/app/domain/event"
	"github.com/shf-platform/credit_layer/internal/app/domain/score"
	"github.com/shf-platform/credit_layer/internal/app/metrics"
	"github.com/shf-platform/credit_layer/internal/app/storage"
	"github.com/shf-platform/credit_layer/pkg/logger"
)

// Publisher receives unlock notifications. The websocket hub implements it
// in production; tests use a recorder.
type Publisher interface {
	Publish(topic string, payload any)
}

// Unlock is the payload published when a badge unlocks.
type Unlock struct {
	Scope   badge.Scope `json:"scope"`
	UserID  string      `json:"userId"`
	BadgeID string      `json:"badgeId"`
	TS      int64       `json:"ts"`
}

// Service owns badge state per scope and user. Awards are idempotent and
// never revoked; unlock state is always recomputed from history.
type Service struct {
	store    storage.AwardStore
	catalogs map[badge.Scope][]badge.Badge
	pub      Publisher
	log      *logger.Logger
	now      func() time.Time

	mu sync.Mutex
}

// New builds the rewards service. Nil catalogs fall back to the defaults.
func New(store storage.AwardStore, catalogs map[badge.Scope][]badge.Badge, log *logger.Logger) *Service {
	if catalogs == nil {
		catalogs = badge.DefaultCatalogs()
	}
	if log == nil {
		log = logger.NewDefault("rewards-service")
	}
	return &Service{
		store:    store,
		catalogs: catalogs,
		log:      log,
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithPublisher wires unlock notifications.
func (s *Service) WithPublisher(pub Publisher) *Service {
	s.pub = pub
	return s
}

// Catalog returns the badge catalog for a scope, nil for an unknown scope.
func (s *Service) Catalog(scope badge.Scope) []badge.Badge {
	return s.catalogs[scope]
}

// History returns the scope history for a user, oldest first.
func (s *Service) History(ctx context.Context, scope badge.Scope, userID string) []badge.HistoryEntry {
	history, err := s.store.ListHistory(ctx, scope, userID)
	if err != nil {
		s.log.WithError(err).Warn("listing badge history failed")
		return nil
	}
	badge.SortHistory(history)
	return history
}

// IsUnlocked evaluates one badge's rule against the user's current history.
func (s *Service) IsUnlocked(ctx context.Context, scope badge.Scope, userID, badgeID string) bool {
	b, ok := s.find(scope, badgeID)
	if !ok {
		return false
	}
	return badge.Unlocked(scope, b, s.History(ctx, scope, userID))
}

// List computes the progress view for every badge in the scope catalog.
func (s *Service) List(ctx context.Context, scope badge.Scope, userID string) []badge.Progress {
	history := s.History(ctx, scope, userID)
	catalog := s.catalogs[scope]
	out := make([]badge.Progress, 0, len(catalog))
	for _, b := range catalog {
		out = append(out, badge.ProgressFor(scope, b, history))
	}
	return out
}

// Award records a badge award. Awards are idempotent: a second award of the
// same badge is a no-op and reports false. Only the first award appends
// history, publishes notifications, and counts in metrics.
func (s *Service) Award(ctx context.Context, scope badge.Scope, userID, badgeID string, meta map[string]any) (bool, error) {
	if !badge.KnownScope(scope) {
		return false, fmt.Errorf("unknown scope %q", scope)
	}
	if _, ok := s.find(scope, badgeID); !ok {
		return false, fmt.Errorf("unknown badge %q in scope %q", badgeID, scope)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awardLocked(ctx, scope, userID, badgeID, meta)
}

func (s *Service) awardLocked(ctx context.Context, scope badge.Scope, userID, badgeID string, meta map[string]any) (bool, error) {
	history := s.History(ctx, scope, userID)
	if badge.Count(history, badgeID) > 0 {
		return false, nil
	}

	entry := badge.NewEntry(badgeID, meta, s.now())
	if err := s.store.AppendHistory(ctx, scope, userID, entry); err != nil {
		return false, err
	}

	metrics.RecordBadgeUnlock(string(scope))
	s.publish(Unlock{Scope: scope, UserID: userID, BadgeID: badgeID, TS: entry.TS})
	return true, nil
}

// RecordActivity appends an activity marker to the scope history and awards
// any catalog badge whose rule the new history now satisfies.
func (s *Service) RecordActivity(ctx context.Context, scope badge.Scope, userID, key string, meta map[string]any) {
	if !badge.KnownScope(scope) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := badge.NewEntry(key, meta, s.now())
	if err := s.store.AppendHistory(ctx, scope, userID, entry); err != nil {
		s.log.WithError(err).WithField("scope", scope).Warn("recording activity failed")
		return
	}

	history := s.History(ctx, scope, userID)
	for _, b := range s.catalogs[scope] {
		if badge.Count(history, b.ID) > 0 {
			continue
		}
		if !badge.Unlocked(scope, b, history) {
			continue
		}
		if _, err := s.awardLocked(ctx, scope, userID, b.ID, nil); err != nil {
			s.log.WithError(err).WithField("badge", b.ID).Warn("auto-award failed")
		}
	}
}

// EventAppended routes credit events into the scope histories they feed, so
// counter and streak badges advance as activity happens.
func (s *Service) EventAppended(userID string, ev event.Event, _ score.State) {
	ctx := context.Background()
	for _, scope := range scopesFor(ev.Key) {
		s.RecordActivity(ctx, scope, userID, string(ev.Key), nil)
	}
}

func (s *Service) find(scope badge.Scope, badgeID string) (badge.Badge, bool) {
	for _, b := range s.catalogs[scope] {
		if b.ID == badgeID {
			return b, true
		}
	}
	return badge.Badge{}, false
}

func (s *Service) publish(u Unlock) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(fmt.Sprintf("rewards:%s:badge:unlocked", u.Scope), u)
	s.pub.Publish("rewards:badge:unlocked", u)
}

// scopesFor maps an event kind to the scope histories it advances.
func scopesFor(key event.Kind) []badge.Scope {
	switch key {
	case event.LessonComplete, event.MissionComplete, event.AttendanceLogged:
		return []badge.Scope{badge.ScopeCivic}
	case event.AssignmentSubmitted, event.MicrocertEarned, event.SocialAction:
		return []badge.Scope{badge.ScopeCareer}
	case event.GameComplete:
		return []badge.Scope{badge.ScopeArcade}
	}
	return nil
}
