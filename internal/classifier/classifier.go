// Package classifier scores records against declarative rule tables.
// One generic engine serves inactivity, sentiment and automation
// classification; only the tables differ.
package classifier

import (
	"strings"

	"github.com/carlosmarte/repometrics/internal/domain"
)

// Predicate is one weighted trigger. A predicate fires when every matcher
// it configures holds; unset matchers are ignored.
type Predicate struct {
	Weight float64

	// AnyKeyword fires when any keyword appears (case-insensitive) in the
	// text fields. TextField restricts the search to one field; empty
	// searches all of them.
	AnyKeyword []string
	TextField  string

	// NumberField fires when the named numeric field falls inside
	// [Min, Max]. Nil bounds are open.
	NumberField string
	Min         *float64
	Max         *float64

	// Flag fires when the named structural flag is set.
	Flag string
}

func (p Predicate) matches(rec domain.Record) bool {
	if len(p.AnyKeyword) > 0 && !p.matchKeyword(rec) {
		return false
	}
	if p.NumberField != "" {
		v, ok := rec.Numbers[p.NumberField]
		if !ok {
			return false
		}
		if p.Min != nil && v < *p.Min {
			return false
		}
		if p.Max != nil && v > *p.Max {
			return false
		}
	}
	if p.Flag != "" && !rec.Flag(p.Flag) {
		return false
	}
	return true
}

func (p Predicate) matchKeyword(rec domain.Record) bool {
	var haystacks []string
	if p.TextField != "" {
		haystacks = []string{rec.Text(p.TextField)}
	} else {
		for _, text := range rec.Texts {
			haystacks = append(haystacks, text)
		}
	}
	for _, haystack := range haystacks {
		lower := strings.ToLower(haystack)
		for _, kw := range p.AnyKeyword {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

// Category is a named outcome with its trigger predicates. Category order
// inside a table is significant: ties on score resolve to the earlier
// category.
type Category struct {
	Name       string
	Priority   domain.Priority
	Predicates []Predicate
}

func (c Category) score(rec domain.Record) float64 {
	var score float64
	for _, p := range c.Predicates {
		if p.matches(rec) {
			score += p.Weight
		}
	}
	return score
}

// RuleTable is a complete classifier definition: ordered categories, the
// minimum winning score, and the fallback category.
type RuleTable struct {
	Name            string
	MinScore        float64
	Default         string
	DefaultPriority domain.Priority
	Categories      []Category
}

// Classify scores rec against every category and returns the
// highest-scoring one at or above MinScore, with ties broken by table
// order. Below MinScore the table's default applies. The function is
// deterministic and stateless.
func (t RuleTable) Classify(rec domain.Record) domain.Classification {
	best := domain.Classification{
		Table:    t.Name,
		Category: t.Default,
		Priority: t.DefaultPriority,
	}
	bestScore := 0.0

	for _, cat := range t.Categories {
		score := cat.score(rec)
		if score < t.MinScore {
			continue
		}
		// Strict greater-than keeps the earliest category on ties.
		if score > bestScore {
			bestScore = score
			best.Category = cat.Name
			best.Priority = cat.Priority
			best.Score = score
		}
	}

	return best
}

// ClassifyAll classifies every record, returning enriched views without
// touching the originals.
func (t RuleTable) ClassifyAll(records []domain.Record) []domain.ClassifiedRecord {
	out := make([]domain.ClassifiedRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, domain.ClassifiedRecord{Record: rec, Result: t.Classify(rec)})
	}
	return out
}

// float is a convenience for table literals.
func float(v float64) *float64 { return &v }
