// Package badge defines scoped achievement catalogs and the rules that
// decide unlock state from award history.
package badge

import (
	"sort"
	"time"
)

// Scope namespaces a badge catalog. Catalogs never merge across scopes; the
// same badge id in two scopes names two unrelated badges.
type Scope string

const (
	ScopeCivic  Scope = "civic"
	ScopeCareer Scope = "career"
	ScopeArcade Scope = "arcade"
)

// KnownScope reports whether s names one of the platform scopes.
func KnownScope(s Scope) bool {
	switch s {
	case ScopeCivic, ScopeCareer, ScopeArcade:
		return true
	}
	return false
}

// Kind describes how a badge's progress is measured.
type Kind string

const (
	KindOnce    Kind = "once"
	KindCounter Kind = "counter"
	KindStreak  Kind = "streak"
	KindKPI     Kind = "kpi"
)

// HistoryEntry is one record in a scope's history: either a badge award
// (Key is the badge id) or an activity marker rules count over (Key is the
// activity name).
type HistoryEntry struct {
	Key  string         `json:"key"`
	TS   int64          `json:"ts"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Eval is the context a rule sees: the scope, the badge under evaluation,
// and the current history snapshot.
type Eval struct {
	Scope   Scope
	Badge   Badge
	History []HistoryEntry
}

// Rule decides unlock state from an evaluation context. It is a closed
// variant: Static for flag badges, Predicate for computed ones.
type Rule interface {
	Unlocked(Eval) bool
}

// Static is a rule that is always the same answer.
type Static bool

// Unlocked implements Rule.
func (s Static) Unlocked(Eval) bool { return bool(s) }

// Predicate evaluates a function against the current history snapshot.
type Predicate func(Eval) bool

// Unlocked implements Rule.
func (p Predicate) Unlocked(e Eval) bool {
	if p == nil {
		return false
	}
	return p(e)
}

// Badge is a catalog entry. IDs are stable; UIs and deep links rely on them.
// CountKey names the activity a counter/kpi badge measures; it defaults to
// the badge id.
type Badge struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Desc     string `json:"desc"`
	Icon     string `json:"icon"`
	Kind     Kind   `json:"kind"`
	Target   int    `json:"target"`
	CountKey string `json:"-"`
	Rule     Rule   `json:"-"`
}

func (b Badge) countKey() string {
	if b.CountKey != "" {
		return b.CountKey
	}
	return b.ID
}

// Progress is the UI-facing view of a badge against a history snapshot.
type Progress struct {
	Badge
	Unlocked bool  `json:"unlocked"`
	Progress int   `json:"progress"`
	Percent  int   `json:"percent"`
	AwardTS  int64 `json:"awardTs,omitempty"`
}

// Unlocked evaluates the badge's rule against the history snapshot on every
// call. There is no cached unlocked bit beyond the award entry itself: an
// award in the history is the durable unlock record, so a badge whose rule
// stops holding (a broken streak, say) stays unlocked once awarded.
func Unlocked(scope Scope, b Badge, history []HistoryEntry) bool {
	if Count(history, b.ID) > 0 {
		return true
	}
	if b.Rule == nil {
		return false
	}
	return b.Rule.Unlocked(Eval{Scope: scope, Badge: b, History: history})
}

// ProgressFor computes the progress view for a badge.
func ProgressFor(scope Scope, b Badge, history []HistoryEntry) Progress {
	unlocked := Unlocked(scope, b, history)
	target := b.Target

	var progress int
	switch b.Kind {
	case KindStreak:
		progress = StreakDays(history)
	case KindCounter, KindKPI:
		progress = Count(history, b.countKey())
	default:
		target = 1
		if unlocked {
			progress = 1
		}
	}

	percent := 0
	if target > 0 {
		percent = progress * 100 / target
		if percent > 100 {
			percent = 100
		}
		if percent < 0 {
			percent = 0
		}
	} else if unlocked {
		percent = 100
	}

	return Progress{
		Badge:    b,
		Unlocked: unlocked,
		Progress: progress,
		Percent:  percent,
		AwardTS:  FirstTS(history, b.ID),
	}
}

// Count returns how many history entries carry the key.
func Count(history []HistoryEntry, key string) int {
	n := 0
	for _, h := range history {
		if h.Key == key {
			n++
		}
	}
	return n
}

// FirstTS returns the timestamp of the earliest entry with the key, 0 if none.
func FirstTS(history []HistoryEntry, key string) int64 {
	for _, h := range history {
		if h.Key == key {
			return h.TS
		}
	}
	return 0
}

// StreakDays computes the current run of consecutive UTC days, ending on the
// day of the most recent entry, that have at least one history entry.
func StreakDays(history []HistoryEntry) int {
	if len(history) == 0 {
		return 0
	}
	days := make(map[int64]struct{}, len(history))
	var latest int64
	for _, h := range history {
		day := h.TS / 86_400_000
		days[day] = struct{}{}
		if day > latest {
			latest = day
		}
	}
	streak := 0
	for day := latest; ; day-- {
		if _, ok := days[day]; !ok {
			break
		}
		streak++
	}
	return streak
}

// Rule constructors ----------------------------------------------------------

// Once unlocks after any history entry with the key.
func Once(key string) Rule {
	return Predicate(func(e Eval) bool { return Count(e.History, key) > 0 })
}

// Counter unlocks once at least target entries with the key exist.
func Counter(key string, target int) Rule {
	return Predicate(func(e Eval) bool { return Count(e.History, key) >= target })
}

// Streak unlocks once the consecutive-day run reaches target.
func Streak(target int) Rule {
	return Predicate(func(e Eval) bool { return StreakDays(e.History) >= target })
}

// NewEntry builds a history entry stamped at now.
func NewEntry(key string, meta map[string]any, now time.Time) HistoryEntry {
	return HistoryEntry{Key: key, TS: now.UnixMilli(), Meta: meta}
}

// SortHistory orders entries oldest first.
func SortHistory(history []HistoryEntry) {
	sort.SliceStable(history, func(i, j int) bool { return history[i].TS < history[j].TS })
}
