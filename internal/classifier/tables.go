package classifier

import "github.com/carlosmarte/repometrics/internal/domain"

// Built-in rule tables. Each table encodes one of the heuristics the
// report scripts repeated with hand-written conditionals; here they are
// data evaluated by the shared engine.

// InactivityTable classifies why a pull request has gone quiet.
// days_inactive and the structural flags come from the source adapter.
func InactivityTable() RuleTable {
	return RuleTable{
		Name:            "inactivity",
		MinScore:        1.0,
		Default:         "active",
		DefaultPriority: domain.PriorityLow,
		Categories: []Category{
			{
				Name:     "abandoned",
				Priority: domain.PriorityCritical,
				Predicates: []Predicate{
					{Weight: 2.0, NumberField: "days_inactive", Min: float(30)},
					{Weight: 1.0, Flag: "is_draft"},
					{Weight: 0.5, NumberField: "comment_count", Max: float(0)},
				},
			},
			{
				Name:     "failing_ci",
				Priority: domain.PriorityHigh,
				Predicates: []Predicate{
					{Weight: 2.0, Flag: "failing_ci"},
					{Weight: 0.5, NumberField: "days_inactive", Min: float(7)},
				},
			},
			{
				Name:     "awaiting_review",
				Priority: domain.PriorityMedium,
				Predicates: []Predicate{
					{Weight: 1.5, NumberField: "review_count", Max: float(0)},
					{Weight: 0.5, NumberField: "days_inactive", Min: float(3)},
				},
			},
			{
				Name:     "outdated",
				Priority: domain.PriorityMedium,
				Predicates: []Predicate{
					{Weight: 1.5, Flag: "has_conflicts"},
					{Weight: 0.5, NumberField: "days_inactive", Min: float(14)},
				},
			},
		},
	}
}

// SentimentTable flags discussion tone in comment and review bodies.
func SentimentTable() RuleTable {
	return RuleTable{
		Name:            "sentiment",
		MinScore:        1.0,
		Default:         "neutral",
		DefaultPriority: domain.PriorityLow,
		Categories: []Category{
			{
				Name:     "conflict",
				Priority: domain.PriorityCritical,
				Predicates: []Predicate{
					{Weight: 2.0, AnyKeyword: []string{"strongly disagree", "this is wrong", "absolutely not", "unacceptable"}},
					{Weight: 1.0, AnyKeyword: []string{"disagree", "objection", "veto"}},
				},
			},
			{
				Name:     "negative",
				Priority: domain.PriorityHigh,
				Predicates: []Predicate{
					{Weight: 1.0, AnyKeyword: []string{"broken", "doesn't work", "does not work", "regression", "bad idea", "confusing"}},
					{Weight: 0.5, AnyKeyword: []string{"concern", "problem", "issue with", "not sure this"}},
				},
			},
			{
				Name:     "urgent",
				Priority: domain.PriorityHigh,
				Predicates: []Predicate{
					{Weight: 1.5, AnyKeyword: []string{"urgent", "asap", "blocker", "blocking", "hotfix", "critical"}},
				},
			},
			{
				Name:     "positive",
				Priority: domain.PriorityLow,
				Predicates: []Predicate{
					{Weight: 1.0, AnyKeyword: []string{"lgtm", "looks good", "nice work", "great", "thanks", "ship it"}},
				},
			},
		},
	}
}

// AutomationTable detects bot accounts and automated changes, so reports
// can separate human activity from machine noise.
func AutomationTable() RuleTable {
	return RuleTable{
		Name:            "automation",
		MinScore:        1.0,
		Default:         "human",
		DefaultPriority: domain.PriorityLow,
		Categories: []Category{
			{
				Name:     "bot",
				Priority: domain.PriorityMedium,
				Predicates: []Predicate{
					{Weight: 2.0, Flag: "is_bot_author"},
					{Weight: 1.0, AnyKeyword: []string{"dependabot", "renovate", "github-actions", "snyk-bot"}},
				},
			},
			{
				Name:     "automated_change",
				Priority: domain.PriorityLow,
				Predicates: []Predicate{
					{Weight: 1.0, AnyKeyword: []string{"bump ", "update dependency", "auto-generated", "automated release"}, TextField: "message"},
					{Weight: 0.5, Flag: "is_merge"},
				},
			},
		},
	}
}

// BuiltinTables returns the rule tables shipped with the engine, keyed by
// name for config lookup.
func BuiltinTables() map[string]RuleTable {
	return map[string]RuleTable{
		"inactivity": InactivityTable(),
		"sentiment":  SentimentTable(),
		"automation": AutomationTable(),
	}
}
