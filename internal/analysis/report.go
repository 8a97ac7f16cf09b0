package analysis

import (
	"time"

	"github.com/carlosmarte/repometrics/internal/classifier"
	"github.com/carlosmarte/repometrics/internal/domain"
)

// GroupReport is one group's frozen accumulator plus the statistics
// derived from its sample lists.
type GroupReport struct {
	Key        string              `json:"key"`
	Count      int                 `json:"count"`
	Kinds      map[domain.Kind]int `json:"kinds"`
	FieldStats map[string]Summary  `json:"field_stats"`
}

// Report is the assembled input for an external report renderer: grouped
// statistics, period trends and per-record classifications. Rendering
// (tables, JSON, charts) happens outside this package.
type Report struct {
	Source      string           `json:"source"`
	TimeRange   domain.TimeRange `json:"time_range"`
	GeneratedAt time.Time        `json:"generated_at"`
	RecordCount int              `json:"record_count"`

	Groups          map[string][]GroupReport             `json:"groups"`
	Trends          map[string]Trend                     `json:"trends"`
	CategoryCounts  map[string]map[string]int            `json:"category_counts"`
	Classifications map[string][]domain.ClassifiedRecord `json:"classifications"`
}

// BuildReport runs the full derivation pipeline over an already-collected
// record stream: one aggregation pass for all key functions, statistics
// per group, a trend per period series, and one classification pass per
// rule table.
func BuildReport(source string, records []domain.Record, tr domain.TimeRange, keyFns []KeyFunc, tables []classifier.RuleTable) *Report {
	report := &Report{
		Source:          source,
		TimeRange:       tr,
		GeneratedAt:     time.Now(),
		RecordCount:     len(records),
		Groups:          make(map[string][]GroupReport),
		Trends:          make(map[string]Trend),
		CategoryCounts:  make(map[string]map[string]int),
		Classifications: make(map[string][]domain.ClassifiedRecord),
	}

	// Always include the period grouping so trends have a series to fit,
	// even when the caller only asked for entity groupings. A caller-supplied
	// period KeyFunc must not be doubled: two KeyFuncs sharing a name would
	// feed the same accumulators twice.
	allKeyFns := keyFns
	hasPeriod := false
	for _, kf := range keyFns {
		if kf.Name == "period" {
			hasPeriod = true
			break
		}
	}
	if !hasPeriod {
		allKeyFns = append([]KeyFunc{ByPeriod(tr)}, keyFns...)
	}

	agg := NewAggregator(allKeyFns...)
	agg.AddAll(records)
	groupings := agg.Finish()

	for name, grouping := range groupings {
		reports := make([]GroupReport, 0, len(grouping))
		for _, key := range grouping.Keys() {
			acc := grouping[key]
			fieldStats := make(map[string]Summary, len(acc.Samples))
			for field, samples := range acc.Samples {
				fieldStats[field] = Summarize(samples)
			}
			reports = append(reports, GroupReport{
				Key:        acc.Key,
				Count:      acc.Count,
				Kinds:      acc.Kinds,
				FieldStats: fieldStats,
			})
		}
		report.Groups[name] = reports
	}

	periods := groupings["period"]
	report.Trends["count"] = AnalyzeTrend(PeriodCounts(periods), DefaultSlopeEpsilon)
	for _, field := range periodFields(periods) {
		report.Trends[field] = AnalyzeTrend(PeriodSums(periods, field), DefaultSlopeEpsilon)
	}

	for _, table := range tables {
		classified := table.ClassifyAll(records)
		report.Classifications[table.Name] = classified

		counts := make(map[string]int)
		for _, cr := range classified {
			counts[cr.Result.Category]++
		}
		report.CategoryCounts[table.Name] = counts
	}

	return report
}

// periodFields collects the numeric fields present in any period bucket.
func periodFields(grouping Grouping) []string {
	seen := make(map[string]struct{})
	var fields []string
	for _, key := range grouping.Keys() {
		for field := range grouping[key].Sums {
			if _, ok := seen[field]; ok {
				continue
			}
			seen[field] = struct{}{}
			fields = append(fields, field)
		}
	}
	return fields
}
