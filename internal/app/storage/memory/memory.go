// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shf-platform/credit_layer/internal/app/domain/badge"
	"github.com/shf-platform/credit_layer/internal/app/domain/event"
	"github.com/shf-platform/credit_layer/internal/app/domain/wallet"
	"github.com/shf-platform/credit_layer/internal/app/storage"
)

// Store is the in-memory implementation of every storage interface.
type Store struct {
	mu      sync.RWMutex
	events  map[string][]event.Event
	ledger  []wallet.Entry
	history map[string][]badge.HistoryEntry
	kv      map[string][]byte
}

var _ storage.EventStore = (*Store)(nil)
var _ storage.WalletStore = (*Store)(nil)
var _ storage.AwardStore = (*Store)(nil)
var _ storage.KV = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		events:  make(map[string][]event.Event),
		history: make(map[string][]badge.HistoryEntry),
		kv:      make(map[string][]byte),
	}
}

// EventStore implementation ---------------------------------------------------

func (s *Store) AppendEvent(_ context.Context, userID string, ev event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[userID] = event.Trim(append(s.events[userID], ev))
	return nil
}

func (s *Store) ListEvents(_ context.Context, userID string) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]event.Event(nil), s.events[userID]...), nil
}

func (s *Store) ClearEvents(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, userID)
	return nil
}

// WalletStore implementation --------------------------------------------------

func (s *Store) AppendEntry(_ context.Context, e wallet.Entry) (wallet.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sealed := wallet.Seal(e, wallet.LastHash(s.ledger), time.Now())
	s.ledger = append(s.ledger, sealed)
	return sealed, nil
}

func (s *Store) ListEntries(_ context.Context, actorID string) ([]wallet.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if actorID == "" {
		return append([]wallet.Entry(nil), s.ledger...), nil
	}
	out := make([]wallet.Entry, 0)
	for _, e := range s.ledger {
		if e.ActorID == actorID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ClearEntries(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = nil
	return nil
}

// AwardStore implementation ---------------------------------------------------

func historyKey(scope badge.Scope, userID string) string {
	return string(scope) + ":" + userID
}

func (s *Store) AppendHistory(_ context.Context, scope badge.Scope, userID string, entry badge.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := historyKey(scope, userID)
	s.history[key] = append(s.history[key], entry)
	return nil
}

func (s *Store) ListHistory(_ context.Context, scope badge.Scope, userID string) ([]badge.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]badge.HistoryEntry(nil), s.history[historyKey(scope, userID)]...), nil
}

func (s *Store) ClearHistory(_ context.Context, scope badge.Scope, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, historyKey(scope, userID))
	return nil
}

// KV implementation -----------------------------------------------------------

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.kv[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	return nil
}
