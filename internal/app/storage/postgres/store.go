// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"

	"github.com/shf-platform/credit_layer/internal/app/domain/badge"
	"github.com/shf-platform/credit_layer/internal/app/domain/event"
	"github.com/shf-platform/credit_layer/internal/app/domain/wallet"
	"github.com/shf-platform/credit_layer/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.EventStore = (*Store)(nil)
var _ storage.WalletStore = (*Store)(nil)
var _ storage.AwardStore = (*Store)(nil)
var _ storage.KV = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL, verifies the connection, and applies pending
// migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// Close releases the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- EventStore -------------------------------------------------------------

func (s *Store) AppendEvent(ctx context.Context, userID string, ev event.Event) error {
	metaJSON, err := json.Marshal(ev.Meta)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_events (id, user_id, key, ts, meta, task_id, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.ID, userID, string(ev.Key), ev.TS, metaJSON, ev.TaskID, ev.Source)
	if err != nil {
		return err
	}

	// keep only the newest entries for the user
	_, err = tx.ExecContext(ctx, `
		DELETE FROM credit_events
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM credit_events
			WHERE user_id = $1
			ORDER BY ts DESC, id DESC
			LIMIT $2
		)
	`, userID, event.MaxLogEntries)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListEvents(ctx context.Context, userID string) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, key, ts, meta, task_id, source
		FROM credit_events
		WHERE user_id = $1
		ORDER BY ts ASC, id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var ev event.Event
		var key string
		var metaJSON []byte
		if err := rows.Scan(&ev.ID, &ev.UserID, &key, &ev.TS, &metaJSON, &ev.TaskID, &ev.Source); err != nil {
			return nil, err
		}
		ev.Key = event.Kind(key)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &ev.Meta); err != nil {
				ev.Meta = map[string]any{}
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *Store) ClearEvents(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credit_events WHERE user_id = $1`, userID)
	return err
}

// --- WalletStore ------------------------------------------------------------

// walletChainLockID keys the advisory lock that serializes chain-tip reads
// across server instances. Without it two instances could seal against the
// same tip and fork the hash chain.
const walletChainLockID int64 = 0x77616c6c

func (s *Store) AppendEntry(ctx context.Context, e wallet.Entry) (wallet.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wallet.Entry{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, walletChainLockID); err != nil {
		return wallet.Entry{}, err
	}

	var prev string
	err = tx.QueryRowContext(ctx, `
		SELECT hash FROM wallet_ledger ORDER BY seq DESC LIMIT 1
	`).Scan(&prev)
	if err == sql.ErrNoRows {
		prev = wallet.GenesisHash
	} else if err != nil {
		return wallet.Entry{}, err
	}

	sealed := wallet.Seal(e, prev, time.Now())

	tokensJSON, err := json.Marshal(sealed.Tokens)
	if err != nil {
		return wallet.Entry{}, err
	}
	metaJSON, err := json.Marshal(sealed.Meta)
	if err != nil {
		return wallet.Entry{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_ledger (id, ts, actor_id, actor_role, action, credits, tokens, currency_delta, meta, prev, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, sealed.ID, sealed.TS, sealed.ActorID, sealed.ActorRole, sealed.Action,
		sealed.Credits, tokensJSON, sealed.CurrencyDelta, metaJSON, sealed.Prev, sealed.Hash)
	if err != nil {
		return wallet.Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return wallet.Entry{}, err
	}
	return sealed, nil
}

func (s *Store) ListEntries(ctx context.Context, actorID string) ([]wallet.Entry, error) {
	query := `
		SELECT id, ts, actor_id, actor_role, action, credits, tokens, currency_delta, meta, prev, hash
		FROM wallet_ledger
	`
	args := []any{}
	if actorID != "" {
		query += ` WHERE actor_id = $1`
		args = append(args, actorID)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []wallet.Entry
	for rows.Next() {
		var e wallet.Entry
		var tokensJSON, metaJSON []byte
		if err := rows.Scan(&e.ID, &e.TS, &e.ActorID, &e.ActorRole, &e.Action,
			&e.Credits, &tokensJSON, &e.CurrencyDelta, &metaJSON, &e.Prev, &e.Hash); err != nil {
			return nil, err
		}
		if len(tokensJSON) > 0 {
			_ = json.Unmarshal(tokensJSON, &e.Tokens)
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &e.Meta)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) ClearEntries(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wallet_ledger`)
	return err
}

// --- AwardStore -------------------------------------------------------------

func (s *Store) AppendHistory(ctx context.Context, scope badge.Scope, userID string, entry badge.HistoryEntry) error {
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO badge_history (scope, user_id, key, ts, meta)
		VALUES ($1, $2, $3, $4, $5)
	`, string(scope), userID, entry.Key, entry.TS, metaJSON)
	return err
}

func (s *Store) ListHistory(ctx context.Context, scope badge.Scope, userID string) ([]badge.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, ts, meta FROM badge_history
		WHERE scope = $1 AND user_id = $2
		ORDER BY ts ASC, seq ASC
	`, string(scope), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []badge.HistoryEntry
	for rows.Next() {
		var h badge.HistoryEntry
		var metaJSON []byte
		if err := rows.Scan(&h.Key, &h.TS, &metaJSON); err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &h.Meta)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func (s *Store) ClearHistory(ctx context.Context, scope badge.Scope, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM badge_history WHERE scope = $1 AND user_id = $2
	`, string(scope), userID)
	return err
}

// --- KV ----------------------------------------------------------------------

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = $1`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	return err
}

func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv_state WHERE key = $1`, key)
	return err
}
