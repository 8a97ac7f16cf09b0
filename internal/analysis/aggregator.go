// Package analysis turns a collected record stream into grouped
// accumulators, summary statistics and period trends.
package analysis

import (
	"sort"

	"github.com/carlosmarte/repometrics/internal/domain"
)

// KeyFunc derives a grouping key from a record. Several KeyFuncs run over
// the same stream in one pass, which is why a single generic aggregator
// exists instead of one aggregation per report.
type KeyFunc struct {
	Name string
	Fn   func(domain.Record) string
}

// ByActor groups records by actor identifier.
func ByActor() KeyFunc {
	return KeyFunc{Name: "actor", Fn: func(r domain.Record) string { return r.Actor }}
}

// ByRepo groups records by repository.
func ByRepo() KeyFunc {
	return KeyFunc{Name: "repo", Fn: func(r domain.Record) string { return r.Repo }}
}

// ByKind groups records by record kind.
func ByKind() KeyFunc {
	return KeyFunc{Name: "kind", Fn: func(r domain.Record) string { return string(r.Kind) }}
}

// ByPeriod groups records by the time bucket of tr's granularity.
func ByPeriod(tr domain.TimeRange) KeyFunc {
	return KeyFunc{Name: "period", Fn: func(r domain.Record) string { return tr.PeriodKey(r.Timestamp) }}
}

// Accumulator is the per-group running state: counts, sums, and the raw
// sample lists statistics need. It is mutated append-only until Finish.
type Accumulator struct {
	Key     string
	Count   int
	Kinds   map[domain.Kind]int
	Sums    map[string]float64
	Samples map[string][]float64
}

func newAccumulator(key string) *Accumulator {
	return &Accumulator{
		Key:     key,
		Kinds:   make(map[domain.Kind]int),
		Sums:    make(map[string]float64),
		Samples: make(map[string][]float64),
	}
}

func (a *Accumulator) add(rec domain.Record) {
	a.Count++
	a.Kinds[rec.Kind]++
	for field, value := range rec.Numbers {
		a.Sums[field] += value
		a.Samples[field] = append(a.Samples[field], value)
	}
}

// Grouping is the frozen result of one KeyFunc: key -> accumulator.
type Grouping map[string]*Accumulator

// Keys returns the group keys in sorted order for deterministic output.
func (g Grouping) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Aggregator consumes a finite record stream and builds one Grouping per
// KeyFunc in a single pass. It is owned by one aggregation pass and never
// shared across concurrent writers.
type Aggregator struct {
	keyFns    []KeyFunc
	groupings map[string]Grouping
	finished  bool
}

// NewAggregator creates an aggregator over the given key functions.
func NewAggregator(keyFns ...KeyFunc) *Aggregator {
	groupings := make(map[string]Grouping, len(keyFns))
	for _, kf := range keyFns {
		groupings[kf.Name] = make(Grouping)
	}
	return &Aggregator{keyFns: keyFns, groupings: groupings}
}

// Add routes the record into the accumulator of every key function,
// creating accumulators lazily on first use. Add panics if called after
// Finish: frozen groupings must not grow.
func (a *Aggregator) Add(rec domain.Record) {
	if a.finished {
		panic("analysis: Add after Finish")
	}
	for _, kf := range a.keyFns {
		key := kf.Fn(rec)
		grouping := a.groupings[kf.Name]
		acc, ok := grouping[key]
		if !ok {
			acc = newAccumulator(key)
			grouping[key] = acc
		}
		acc.add(rec)
	}
}

// AddAll feeds a whole slice through Add.
func (a *Aggregator) AddAll(records []domain.Record) {
	for _, rec := range records {
		a.Add(rec)
	}
}

// Finish freezes the accumulators and returns one Grouping per KeyFunc,
// indexed by the KeyFunc name.
func (a *Aggregator) Finish() map[string]Grouping {
	a.finished = true
	return a.groupings
}
