package score

import "github.com/shf-platform/credit_layer/internal/app/domain/event"

// CapRule limits how many applied completions of a {key, taskId} pair may
// land inside each sliding window. Zero means the window is unconfigured.
type CapRule struct {
	PerWeek    int `json:"perWeek,omitempty" yaml:"per_week"`
	PerMonth   int `json:"perMonth,omitempty" yaml:"per_month"`
	PerQuarter int `json:"perQuarter,omitempty" yaml:"per_quarter"`
}

// Rule maps an event kind to scoring weights, optional thresholds, and an
// optional cap.
type Rule struct {
	Key        event.Kind
	Weights    map[string]int
	Thresholds map[string]float64
	Cap        *CapRule
}

// RuleFor returns the rule for key, or nil when scoring falls back to the
// event's own credits/scoreDelta metadata.
func RuleFor(key event.Kind, rules []Rule) *Rule {
	for i := range rules {
		if rules[i].Key == key {
			return &rules[i]
		}
	}
	return nil
}

// DefaultRules is the platform scoring table. Kinds absent from the table
// (lesson, mission, arcade, custom earn) score through their metadata.
func DefaultRules() []Rule {
	return []Rule{
		{
			Key:     event.AttendanceLogged,
			Weights: map[string]int{"present": 2, "absent": -3},
			Cap:     &CapRule{PerWeek: 5},
		},
		{
			Key:        event.GradePosted,
			Weights:    map[string]int{"good": 8, "poor": -4},
			Thresholds: map[string]float64{"minPct": 70},
		},
		{
			Key:     event.MicrocertEarned,
			Weights: map[string]int{"earned": 15},
			Cap:     &CapRule{PerMonth: 4},
		},
		{
			Key:     event.AssignmentSubmitted,
			Weights: map[string]int{"onTime": 6, "late": 1},
			Cap:     &CapRule{PerWeek: 3},
		},
		{
			Key:     event.SocialAction,
			Weights: map[string]int{"share": 2, "mentor": 5, "volunteer": 4},
			Cap:     &CapRule{PerWeek: 3},
		},
		{
			Key:     event.PaymentPosted,
			Weights: map[string]int{"onTime": 10, "late": -12},
		},
		{
			Key:     event.DisputeResolved,
			Weights: map[string]int{"upheld": 12, "denied": -6},
		},
		{
			Key:     event.DerogAdded,
			Weights: map[string]int{"collection": -40, "latefee": -15, "generic": -30},
		},
	}
}
