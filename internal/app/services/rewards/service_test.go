package rewards

import (
	"context"
	"testing"
	"time"

	"github.com/shf-platform/credit_layer/internal/app/domain/badge"
	"github.com/shf-platform/credit_layer/internal/app/domain/event"
	"github.com/shf-platform/credit_layer/internal/app/domain/score"
	"github.com/shf-platform/credit_layer/internal/app/storage/memory"
	"github.com/shf-platform/credit_layer/pkg/testutil"
)

func TestAwardIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pub := &testutil.Publisher{}
	svc := New(memory.New(), nil, nil).WithPublisher(pub)

	first, err := svc.Award(ctx, badge.ScopeCivic, "u1", "first_reflection", nil)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if !first {
		t.Fatal("first award reported no-op")
	}

	second, err := svc.Award(ctx, badge.ScopeCivic, "u1", "first_reflection", nil)
	if err != nil {
		t.Fatalf("repeat award: %v", err)
	}
	if second {
		t.Fatal("repeat award appended again")
	}

	if got := len(svc.History(ctx, badge.ScopeCivic, "u1")); got != 1 {
		t.Fatalf("history entries = %d, want 1", got)
	}
	topics := pub.Topics()
	if len(topics) != 2 || topics[0] != "rewards:civic:badge:unlocked" || topics[1] != "rewards:badge:unlocked" {
		t.Fatalf("published topics = %v", topics)
	}
}

func TestAwardRejectsUnknownScopeAndBadge(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil, nil)

	if _, err := svc.Award(ctx, "galaxy", "u1", "first_reflection", nil); err == nil {
		t.Fatal("unknown scope accepted")
	}
	if _, err := svc.Award(ctx, badge.ScopeCivic, "u1", "nope", nil); err == nil {
		t.Fatal("unknown badge accepted")
	}
}

func TestScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil, nil)

	svc.Award(ctx, badge.ScopeCivic, "u1", "first_reflection", nil)
	if svc.IsUnlocked(ctx, badge.ScopeCareer, "u1", "first_reflection") {
		t.Fatal("award leaked across scopes")
	}
}

func TestActivityAutoAwardsCounterBadge(t *testing.T) {
	ctx := context.Background()
	pub := &testutil.Publisher{}
	svc := New(memory.New(), nil, nil).WithPublisher(pub)

	for i := 0; i < 5; i++ {
		svc.RecordActivity(ctx, badge.ScopeCivic, "u1", string(event.LessonComplete), nil)
	}

	if !svc.IsUnlocked(ctx, badge.ScopeCivic, "u1", "five_lessons") {
		t.Fatal("five_lessons not unlocked after 5 completions")
	}
	// the award itself must have been appended exactly once
	if got := badge.Count(svc.History(ctx, badge.ScopeCivic, "u1"), "five_lessons"); got != 1 {
		t.Fatalf("award entries = %d, want 1", got)
	}
}

func TestEventAppendedRoutesToScopes(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil, nil)

	svc.EventAppended("u1", event.Event{Key: event.GameComplete}, score.State{})
	svc.EventAppended("u1", event.Event{Key: event.LessonComplete}, score.State{})
	svc.EventAppended("u1", event.Event{Key: event.PaymentPosted}, score.State{})

	if got := len(svc.History(ctx, badge.ScopeArcade, "u1")); got < 1 {
		t.Fatal("game event missing from arcade history")
	}
	if got := len(svc.History(ctx, badge.ScopeCivic, "u1")); got < 1 {
		t.Fatal("lesson event missing from civic history")
	}
	if got := len(svc.History(ctx, badge.ScopeCareer, "u1")); got != 0 {
		t.Fatalf("payment event landed in career history: %d entries", got)
	}
	// first_game is a once badge keyed on the activity
	if !svc.IsUnlocked(ctx, badge.ScopeArcade, "u1", "first_game") {
		t.Fatal("first_game not unlocked")
	}
}

func TestStreakBadgeUnlocksAcrossDays(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := New(memory.New(), nil, nil).WithClock(clock.Now)

	for day := 0; day < 3; day++ {
		svc.RecordActivity(ctx, badge.ScopeCivic, "u1", string(event.LessonComplete), nil)
		clock.Advance(24 * time.Hour)
	}

	if !svc.IsUnlocked(ctx, badge.ScopeCivic, "u1", "streak_3") {
		t.Fatal("streak_3 not unlocked after 3 consecutive days")
	}
	if svc.IsUnlocked(ctx, badge.ScopeCivic, "u1", "streak_7") {
		t.Fatal("streak_7 unlocked early")
	}
}

func TestAwardedStreakBadgeStaysUnlocked(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := New(memory.New(), nil, nil).WithClock(clock.Now)

	for day := 0; day < 3; day++ {
		svc.RecordActivity(ctx, badge.ScopeCivic, "u1", string(event.LessonComplete), nil)
		clock.Advance(24 * time.Hour)
	}
	if !svc.IsUnlocked(ctx, badge.ScopeCivic, "u1", "streak_3") {
		t.Fatal("streak_3 not unlocked after 3 consecutive days")
	}

	// a week off breaks the run; the awarded badge must not flip back
	clock.Advance(7 * 24 * time.Hour)
	svc.RecordActivity(ctx, badge.ScopeCivic, "u1", string(event.LessonComplete), nil)

	if !svc.IsUnlocked(ctx, badge.ScopeCivic, "u1", "streak_3") {
		t.Fatal("streak_3 was revoked after the run broke")
	}
	for _, p := range svc.List(ctx, badge.ScopeCivic, "u1") {
		if p.ID == "streak_3" && !p.Unlocked {
			t.Fatalf("list reports streak_3 locked: %+v", p)
		}
	}
}

func TestListReportsProgress(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil, nil)

	svc.RecordActivity(ctx, badge.ScopeCivic, "u1", string(event.LessonComplete), nil)
	svc.RecordActivity(ctx, badge.ScopeCivic, "u1", string(event.LessonComplete), nil)

	var lessons badge.Progress
	for _, p := range svc.List(ctx, badge.ScopeCivic, "u1") {
		if p.ID == "five_lessons" {
			lessons = p
		}
	}
	if lessons.ID == "" {
		t.Fatal("five_lessons missing from list")
	}
	if lessons.Unlocked || lessons.Progress != 2 || lessons.Percent != 40 {
		t.Fatalf("progress = %+v", lessons)
	}
}
