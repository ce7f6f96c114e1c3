package wallet

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenesisHash is the prev sentinel of the first ledger entry.
const GenesisHash = "genesis"

// Canonical ledger actions. Free-form actions are allowed; these are the
// ones the platform itself appends.
const (
	ActionEarn           = "earn"
	ActionSpend          = "spend"
	ActionConvert        = "convert.to.shf"
	ActionDebtOpen       = "debt.open"
	ActionDebtPayment    = "debt.payment"
	ActionDisputeOpen    = "dispute.open"
	ActionDisputeResolve = "dispute.resolve"
)

// Entry is one immutable record in the wallet sub-ledger. Entries chain via
// Prev/Hash for tamper evidence; balances are a pure reduction over them.
type Entry struct {
	ID            string         `json:"id"`
	TS            int64          `json:"ts"`
	ActorID       string         `json:"actorId"`
	ActorRole     string         `json:"actorRole"`
	Action        string         `json:"action"`
	Credits       int            `json:"credits"`
	Tokens        map[string]int `json:"tokens,omitempty"`
	CurrencyDelta int            `json:"currencyDelta"`
	Meta          map[string]any `json:"meta,omitempty"`
	Prev          string         `json:"prev"`
	Hash          string         `json:"hash"`
}

// Seal assigns defaults, links the entry to prev, and computes its hash.
// The hash covers every field except Hash itself.
func Seal(e Entry, prev string, now time.Time) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.TS == 0 {
		e.TS = now.UnixMilli()
	}
	if e.ActorID == "" {
		e.ActorID = "anon"
	}
	if e.ActorRole == "" {
		e.ActorRole = "student"
	}
	if e.Action == "" {
		e.Action = "misc"
	}
	if prev == "" {
		prev = GenesisHash
	}
	e.Prev = prev
	e.Hash = hashEntry(e)
	return e
}

// Verify walks the chain and reports the first entry whose link or hash does
// not hold, or -1 when the chain is intact.
func Verify(entries []Entry) int {
	prev := GenesisHash
	for i, e := range entries {
		if e.Prev != prev {
			return i
		}
		if hashEntry(e) != e.Hash {
			return i
		}
		prev = e.Hash
	}
	return -1
}

// LastHash returns the chain tip, or the genesis sentinel for an empty chain.
func LastHash(entries []Entry) string {
	if len(entries) == 0 {
		return GenesisHash
	}
	return entries[len(entries)-1].Hash
}

func hashEntry(e Entry) string {
	e.Hash = ""
	raw, err := json.Marshal(e)
	if err != nil {
		raw = []byte(e.ID)
	}
	return hashString(raw)
}

// hashString is an FNV-flavoured 32-bit mix, rendered as lowercase hex.
func hashString(b []byte) string {
	h := uint32(2166136261)
	for _, c := range b {
		h ^= uint32(c)
		h += (h << 1) + (h << 4) + (h << 7) + (h << 8) + (h << 24)
	}
	return fmt.Sprintf("%x", h)
}

// Balances is the reduction of a ledger: token counts plus the shf balance.
type Balances struct {
	Tokens   map[string]int `json:"tokens"`
	Currency int            `json:"currency"`
}

// Reduce aggregates balances over entries, optionally filtered by actor.
func Reduce(entries []Entry, actorID string) Balances {
	out := Balances{Tokens: map[string]int{}}
	for _, e := range entries {
		if actorID != "" && e.ActorID != actorID {
			continue
		}
		for token, count := range e.Tokens {
			out.Tokens[token] += count
		}
		out.Currency += e.CurrencyDelta
	}
	return out
}

// Stats aggregates ledger activity over a trailing window.
type Stats struct {
	Actors   int            `json:"actors"`
	Credits  int            `json:"credits"`
	Minted   int            `json:"minted"`
	Spent    int            `json:"spent"`
	ByAction map[string]int `json:"byAction"`
	Entries  int            `json:"entries"`
}

// WindowStats summarises entries whose timestamp falls within the trailing
// sinceDays window ending at now.
func WindowStats(entries []Entry, sinceDays int, now time.Time) Stats {
	if sinceDays <= 0 {
		sinceDays = 30
	}
	cutoff := now.UnixMilli() - int64(sinceDays)*86_400_000
	actors := map[string]struct{}{}
	stats := Stats{ByAction: map[string]int{}}
	for _, e := range entries {
		if e.TS < cutoff {
			continue
		}
		actors[e.ActorID] = struct{}{}
		stats.Credits += e.Credits
		if e.CurrencyDelta > 0 {
			stats.Minted += e.CurrencyDelta
		}
		if e.CurrencyDelta < 0 {
			stats.Spent += -e.CurrencyDelta
		}
		stats.ByAction[e.Action]++
		stats.Entries++
	}
	stats.Actors = len(actors)
	return stats
}
