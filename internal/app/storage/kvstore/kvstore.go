// Package kvstore adapts the flat KV abstraction into the typed storage
// interfaces. State lives in JSON arrays under stable keys, mirroring the
// layout the browser clients persisted.
package kvstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shf-platform/credit_layer/internal/app/domain/badge"
	"github.com/shf-platform/credit_layer/internal/app/domain/event"
	"github.com/shf-platform/credit_layer/internal/app/domain/wallet"
	"github.com/shf-platform/credit_layer/internal/app/storage"
)

const (
	eventKeyPrefix  = "credit:events:"
	ledgerKey       = "wallet:ledger"
	historyPrefix   = "rewards:"
	historySepToken = ":"
)

// Store implements the typed storage interfaces over a KV backend.
// Malformed persisted JSON soft-resets the affected key instead of failing.
type Store struct {
	kv storage.KV
}

var _ storage.EventStore = (*Store)(nil)
var _ storage.WalletStore = (*Store)(nil)
var _ storage.AwardStore = (*Store)(nil)

// New wraps a KV backend.
func New(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// loadSlice reads and decodes a JSON array, soft-resetting the key when the
// payload does not parse.
func loadSlice[T any](ctx context.Context, kv storage.KV, key string) ([]T, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		_ = kv.Remove(ctx, key)
		return nil, nil
	}
	return out, nil
}

func saveSlice[T any](ctx context.Context, kv storage.KV, key string, items []T) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return kv.Set(ctx, key, raw)
}

// EventStore implementation ---------------------------------------------------

func eventKey(userID string) string { return eventKeyPrefix + userID }

func (s *Store) AppendEvent(ctx context.Context, userID string, ev event.Event) error {
	events, err := loadSlice[event.Event](ctx, s.kv, eventKey(userID))
	if err != nil {
		return err
	}
	return saveSlice(ctx, s.kv, eventKey(userID), event.Trim(append(events, ev)))
}

func (s *Store) ListEvents(ctx context.Context, userID string) ([]event.Event, error) {
	return loadSlice[event.Event](ctx, s.kv, eventKey(userID))
}

func (s *Store) ClearEvents(ctx context.Context, userID string) error {
	return s.kv.Remove(ctx, eventKey(userID))
}

// WalletStore implementation --------------------------------------------------

func (s *Store) AppendEntry(ctx context.Context, e wallet.Entry) (wallet.Entry, error) {
	entries, err := loadSlice[wallet.Entry](ctx, s.kv, ledgerKey)
	if err != nil {
		return wallet.Entry{}, err
	}
	sealed := wallet.Seal(e, wallet.LastHash(entries), time.Now())
	if err := saveSlice(ctx, s.kv, ledgerKey, append(entries, sealed)); err != nil {
		return wallet.Entry{}, err
	}
	return sealed, nil
}

func (s *Store) ListEntries(ctx context.Context, actorID string) ([]wallet.Entry, error) {
	entries, err := loadSlice[wallet.Entry](ctx, s.kv, ledgerKey)
	if err != nil {
		return nil, err
	}
	if actorID == "" {
		return entries, nil
	}
	out := make([]wallet.Entry, 0, len(entries))
	for _, e := range entries {
		if e.ActorID == actorID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ClearEntries(ctx context.Context) error {
	return s.kv.Remove(ctx, ledgerKey)
}

// AwardStore implementation ---------------------------------------------------

func historyKey(scope badge.Scope, userID string) string {
	return historyPrefix + string(scope) + historySepToken + userID
}

func (s *Store) AppendHistory(ctx context.Context, scope badge.Scope, userID string, entry badge.HistoryEntry) error {
	key := historyKey(scope, userID)
	history, err := loadSlice[badge.HistoryEntry](ctx, s.kv, key)
	if err != nil {
		return err
	}
	return saveSlice(ctx, s.kv, key, append(history, entry))
}

func (s *Store) ListHistory(ctx context.Context, scope badge.Scope, userID string) ([]badge.HistoryEntry, error) {
	return loadSlice[badge.HistoryEntry](ctx, s.kv, historyKey(scope, userID))
}

func (s *Store) ClearHistory(ctx context.Context, scope badge.Scope, userID string) error {
	return s.kv.Remove(ctx, historyKey(scope, userID))
}
