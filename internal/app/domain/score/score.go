// Package score reduces an event log into the derived reputation state:
// points, a bounded 300-850 score, and a pricing tier.
package score

import (
	"math"
	"sort"
	"time"

	"github.com/shf-platform/credit_layer/internal/app/domain/event"
)

// Score bounds and logistic curve parameters. The inflection at 400 points
// centres typical early totals near the middle of the range.
const (
	MinScore = 300
	MaxScore = 850

	curveRate   = 0.0045
	curveCentre = 400
)

// Sliding cap windows, fixed milliseconds rather than calendar-aligned.
const (
	Day     = 24 * time.Hour
	Week    = 7 * Day
	Month   = 30 * Day
	Quarter = 90 * Day
)

// Bounds clamp the running points total before the score mapping.
type Bounds struct {
	MinPoints int
	MaxPoints int
}

// DefaultBounds matches the platform configuration.
var DefaultBounds = Bounds{MinPoints: -1000, MaxPoints: 3000}

// Tier is the named pricing band a score falls into.
type Tier struct {
	Name string `json:"name"`
	Band string `json:"band"`
}

// TierForScore maps a score to its tier, first match from the top, so
// boundary scores resolve to the higher tier.
func TierForScore(score int) Tier {
	switch {
	case score >= 780:
		return Tier{Name: "Platinum", Band: "A+"}
	case score >= 740:
		return Tier{Name: "Gold", Band: "A"}
	case score >= 700:
		return Tier{Name: "Silver", Band: "B"}
	case score >= 660:
		return Tier{Name: "Bronze", Band: "C"}
	default:
		return Tier{Name: "Foundation", Band: "D"}
	}
}

// PointsToScore maps abstract points onto the public 300-850 range with a
// logistic curve, giving diminishing returns on high-frequency actions.
func PointsToScore(points int) int {
	s := 1 / (1 + math.Exp(-curveRate*float64(points-curveCentre)))
	return int(math.Round(MinScore + (MaxScore-MinScore)*s))
}

// LogEntry records how a single event was applied during a reduction.
// Delta is zero for events that were cap-rejected or carried no weight.
type LogEntry struct {
	event.Event
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

// State is the derived reputation snapshot. It is recomputed from the full
// event log and never mutated directly.
type State struct {
	Points int        `json:"points"`
	Score  int        `json:"score"`
	Tier   Tier       `json:"tier"`
	Log    []LogEntry `json:"log"`
}

// Compute reduces events into derived state. It is a pure function of its
// inputs; now anchors the sliding cap windows.
func Compute(events []event.Event, rules []Rule, bounds Bounds, now time.Time) State {
	list := make([]event.Event, 0, len(events))
	for _, ev := range events {
		if !event.IsKind(ev.Key) {
			continue
		}
		if ev.TaskID == "" {
			ev.TaskID = string(ev.Key)
		}
		list = append(list, ev)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].TS < list[j].TS })

	log := make([]LogEntry, 0, len(list))
	points := 0

	for _, ev := range list {
		rule := RuleFor(ev.Key, rules)
		delta := evalDelta(ev, rule)

		if rule != nil && rule.Cap != nil {
			if reason, capped := capReason(log, ev, rule.Cap, now); capped {
				log = append(log, LogEntry{Event: ev, Delta: 0, Reason: reason})
				continue
			}
		}

		points += delta
		log = append(log, LogEntry{Event: ev, Delta: delta, Reason: "ok"})
	}

	if points < bounds.MinPoints {
		points = bounds.MinPoints
	}
	if points > bounds.MaxPoints {
		points = bounds.MaxPoints
	}

	sc := PointsToScore(points)
	return State{Points: points, Score: sc, Tier: TierForScore(sc), Log: log}
}

// CountInWindow counts applied (delta != 0) completions of the {key, taskID}
// pair inside the window ending at now. Cap-rejected zero-delta entries never
// count, so probing a capped task cannot extend its own cap.
func CountInWindow(log []LogEntry, key event.Kind, taskID string, window time.Duration, now time.Time) int {
	cutoff := now.UnixMilli() - window.Milliseconds()
	n := 0
	for _, e := range log {
		if e.Key != key || e.Delta == 0 {
			continue
		}
		if taskID != "" && e.TaskID != taskID {
			continue
		}
		if e.TS >= cutoff {
			n++
		}
	}
	return n
}

func capReason(log []LogEntry, ev event.Event, cap *CapRule, now time.Time) (string, bool) {
	if cap.PerWeek > 0 && CountInWindow(log, ev.Key, ev.TaskID, Week, now) >= cap.PerWeek {
		return "cap.perWeek", true
	}
	if cap.PerMonth > 0 && CountInWindow(log, ev.Key, ev.TaskID, Month, now) >= cap.PerMonth {
		return "cap.perMonth", true
	}
	if cap.PerQuarter > 0 && CountInWindow(log, ev.Key, ev.TaskID, Quarter, now) >= cap.PerQuarter {
		return "cap.perQuarter", true
	}
	return "", false
}

func evalDelta(ev event.Event, rule *Rule) int {
	if rule == nil {
		return metaDelta(ev.Meta)
	}
	switch ev.Key {
	case event.AttendanceLogged:
		if metaBool(ev.Meta, "present") {
			return rule.Weights["present"]
		}
		return rule.Weights["absent"]
	case event.GradePosted:
		min := rule.Thresholds["minPct"]
		if min == 0 {
			min = 70
		}
		if metaNumber(ev.Meta, "pct") >= min {
			return rule.Weights["good"]
		}
		return rule.Weights["poor"]
	case event.MicrocertEarned:
		return rule.Weights["earned"]
	case event.AssignmentSubmitted:
		if metaBool(ev.Meta, "onTime") {
			return rule.Weights["onTime"]
		}
		return rule.Weights["late"]
	case event.SocialAction:
		return rule.Weights[metaString(ev.Meta, "action")]
	case event.PaymentPosted:
		if metaBool(ev.Meta, "onTime") {
			return rule.Weights["onTime"]
		}
		return rule.Weights["late"]
	case event.DisputeResolved:
		return rule.Weights[metaString(ev.Meta, "outcome")]
	case event.DerogAdded:
		if w, ok := rule.Weights[metaString(ev.Meta, "type")]; ok {
			return w
		}
		if w, ok := rule.Weights["generic"]; ok {
			return w
		}
		return -30
	default:
		return rule.Weights["default"]
	}
}

// metaDelta reads a numeric credits or scoreDelta field out of event
// metadata; unrecognised events contribute 0.
func metaDelta(meta map[string]any) int {
	if v, ok := numeric(meta["credits"]); ok {
		return v
	}
	if v, ok := numeric(meta["scoreDelta"]); ok {
		return v
	}
	return 0
}

func numeric(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func metaBool(meta map[string]any, key string) bool {
	b, _ := meta[key].(bool)
	return b
}

func metaNumber(meta map[string]any, key string) float64 {
	switch n := meta[key].(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func metaString(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}
