package badge

import "github.com/shf-platform/credit_layer/internal/app/domain/event"

// DefaultCatalogs builds the per-scope catalogs. Badge ids are stable.
func DefaultCatalogs() map[Scope][]Badge {
	return map[Scope][]Badge{
		ScopeCivic: {
			{
				ID:     "streak_3",
				Title:  "3-Day Streak",
				Desc:   "Log learning activity 3 days in a row.",
				Icon:   "🔥",
				Kind:   KindStreak,
				Target: 3,
				Rule:   Streak(3),
			},
			{
				ID:     "streak_7",
				Title:  "7-Day Streak",
				Desc:   "Keep the streak going for a full week.",
				Icon:   "⚡",
				Kind:   KindStreak,
				Target: 7,
				Rule:   Streak(7),
			},
			{
				ID:    "first_reflection",
				Title: "Thoughtful Starter",
				Desc:  "Write your first 120+ character reflection.",
				Icon:  "📝",
				Kind:  KindOnce,
				Rule:  Once("first_reflection"),
			},
			{
				ID:       "five_lessons",
				Title:    "Lesson Finisher",
				Desc:     "Mark 5 lessons complete.",
				Icon:     "✅",
				Kind:     KindCounter,
				Target:   5,
				CountKey: string(event.LessonComplete),
				Rule:     Counter(string(event.LessonComplete), 5),
			},
			{
				ID:       "micro_5",
				Title:    "Micro-Lesson Sprinter",
				Desc:     "Complete 5 micro-lessons.",
				Icon:     "🏁",
				Kind:     KindKPI,
				Target:   5,
				CountKey: string(event.MissionComplete),
				Rule:     Counter(string(event.MissionComplete), 5),
			},
			{
				ID:       "micro_20",
				Title:    "Micro-Lesson Marathon",
				Desc:     "Complete 20 micro-lessons.",
				Icon:     "🏆",
				Kind:     KindKPI,
				Target:   20,
				CountKey: string(event.MissionComplete),
				Rule:     Counter(string(event.MissionComplete), 20),
			},
		},
		ScopeCareer: {
			{
				ID:    "first_assignment",
				Title: "First Submission",
				Desc:  "Submit your first assignment.",
				Icon:  "📬",
				Kind:  KindOnce,
				Rule:  Once(string(event.AssignmentSubmitted)),
			},
			{
				ID:       "cert_collector",
				Title:    "Cert Collector",
				Desc:     "Earn 3 micro-certifications.",
				Icon:     "🎓",
				Kind:     KindCounter,
				Target:   3,
				CountKey: string(event.MicrocertEarned),
				Rule:     Counter(string(event.MicrocertEarned), 3),
			},
			{
				ID:       "mentor",
				Title:    "Mentor",
				Desc:     "Help 5 peers through social actions.",
				Icon:     "🤝",
				Kind:     KindCounter,
				Target:   5,
				CountKey: string(event.SocialAction),
				Rule:     Counter(string(event.SocialAction), 5),
			},
		},
		ScopeArcade: {
			{
				ID:    "first_game",
				Title: "Player One",
				Desc:  "Finish your first arcade game.",
				Icon:  "🕹️",
				Kind:  KindOnce,
				Rule:  Once(string(event.GameComplete)),
			},
			{
				ID:       "ten_games",
				Title:    "High Scorer",
				Desc:     "Finish 10 arcade games.",
				Icon:     "🏅",
				Kind:     KindCounter,
				Target:   10,
				CountKey: string(event.GameComplete),
				Rule:     Counter(string(event.GameComplete), 10),
			},
			{
				ID:     "arcade_streak_3",
				Title:  "Warmed Up",
				Desc:   "Play 3 days in a row.",
				Icon:   "🔥",
				Kind:   KindStreak,
				Target: 3,
				Rule:   Streak(3),
			},
		},
	}
}
