package storage

import (
	"context"

	"github.com/shf-platform/credit_layer/internal/app/domain/badge"
	"github.com/shf-platform/credit_layer/internal/app/domain/event"
	"github.com/shf-platform/credit_layer/internal/app/domain/wallet"
)

// EventStore persists per-user event logs. Implementations keep logs
// append-only and bounded to event.MaxLogEntries.
type EventStore interface {
	AppendEvent(ctx context.Context, userID string, ev event.Event) error
	ListEvents(ctx context.Context, userID string) ([]event.Event, error)
	ClearEvents(ctx context.Context, userID string) error
}

// WalletStore persists the hash-chained wallet sub-ledger. AppendEntry seals
// the entry against the current chain tip and returns the sealed copy.
type WalletStore interface {
	AppendEntry(ctx context.Context, e wallet.Entry) (wallet.Entry, error)
	ListEntries(ctx context.Context, actorID string) ([]wallet.Entry, error)
	ClearEntries(ctx context.Context) error
}

// AwardStore persists per-scope, per-user badge history.
type AwardStore interface {
	AppendHistory(ctx context.Context, scope badge.Scope, userID string, entry badge.HistoryEntry) error
	ListHistory(ctx context.Context, scope badge.Scope, userID string) ([]badge.HistoryEntry, error)
	ClearHistory(ctx context.Context, scope badge.Scope, userID string) error
}

// KV is the flat key/value abstraction engines persist through. Values are
// JSON payloads; a Get for a missing key returns (nil, false, nil).
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}
