package memory

import (
	"context"
	"testing"

	"github.com/shf-platform/credit_layer/internal/app/domain/badge"
	"github.com/shf-platform/credit_layer/internal/app/domain/event"
	"github.com/shf-platform/credit_layer/internal/app/domain/wallet"
)

func TestEventLogIsPerUserAndBounded(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := 0; i < event.MaxLogEntries+5; i++ {
		if err := s.AppendEvent(ctx, "u1", event.Event{Key: event.CustomEarn, TS: int64(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	_ = s.AppendEvent(ctx, "u2", event.Event{Key: event.LessonComplete, TS: 1})

	u1, err := s.ListEvents(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(u1) != event.MaxLogEntries {
		t.Fatalf("u1 log = %d entries, want cap %d", len(u1), event.MaxLogEntries)
	}
	if u1[0].TS != 5 {
		t.Fatalf("oldest surviving ts = %d, want 5", u1[0].TS)
	}

	u2, _ := s.ListEvents(ctx, "u2")
	if len(u2) != 1 {
		t.Fatalf("u2 log = %d entries, want 1", len(u2))
	}

	if err := s.ClearEvents(ctx, "u1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	u1, _ = s.ListEvents(ctx, "u1")
	if len(u1) != 0 {
		t.Fatalf("log not cleared: %d entries", len(u1))
	}
}

func TestWalletEntriesAreSealedInOrder(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.AppendEntry(ctx, wallet.Entry{ActorID: "u1", Action: wallet.ActionEarn, CurrencyDelta: 25})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.Prev != wallet.GenesisHash {
		t.Fatalf("first.Prev = %q", first.Prev)
	}
	second, _ := s.AppendEntry(ctx, wallet.Entry{ActorID: "u1", Action: wallet.ActionSpend, CurrencyDelta: -5})
	if second.Prev != first.Hash {
		t.Fatalf("chain broken: %q != %q", second.Prev, first.Hash)
	}

	entries, _ := s.ListEntries(ctx, "")
	if idx := wallet.Verify(entries); idx != -1 {
		t.Fatalf("stored chain broken at %d", idx)
	}
}

func TestListEntriesFiltersByActor(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.AppendEntry(ctx, wallet.Entry{ActorID: "u1", CurrencyDelta: 10})
	_, _ = s.AppendEntry(ctx, wallet.Entry{ActorID: "u2", CurrencyDelta: 20})

	got, _ := s.ListEntries(ctx, "u2")
	if len(got) != 1 || got[0].CurrencyDelta != 20 {
		t.Fatalf("filtered entries = %+v", got)
	}
}

func TestHistoryIsScopedPerUser(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.AppendHistory(ctx, badge.ScopeCivic, "u1", badge.HistoryEntry{Key: "streak_3", TS: 1})
	_ = s.AppendHistory(ctx, badge.ScopeArcade, "u1", badge.HistoryEntry{Key: "first_game", TS: 2})

	civic, _ := s.ListHistory(ctx, badge.ScopeCivic, "u1")
	if len(civic) != 1 || civic[0].Key != "streak_3" {
		t.Fatalf("civic history = %+v", civic)
	}
	arcade, _ := s.ListHistory(ctx, badge.ScopeArcade, "u1")
	if len(arcade) != 1 || arcade[0].Key != "first_game" {
		t.Fatalf("arcade history = %+v", arcade)
	}
}

func TestKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "k", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, _ := s.Get(ctx, "k")
	if !ok || string(v) != `{"a":1}` {
		t.Fatalf("get = %q ok=%v", v, ok)
	}
	if err := s.Remove(ctx, "k"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("key survived remove")
	}
}
