package analysis

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlosmarte/repometrics/internal/classifier"
	"github.com/carlosmarte/repometrics/internal/domain"
)

// growingStream builds a record stream whose weekly volume grows: 10, 20,
// then 30 records across three consecutive ISO weeks.
func growingStream() ([]domain.Record, domain.TimeRange) {
	tr := domain.TimeRange{
		Start:       time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2025, 6, 22, 23, 59, 59, 0, time.UTC),
		Granularity: "week",
	}

	var records []domain.Record
	id := 0
	for week, volume := range []int{10, 20, 30} {
		weekStart := tr.Start.AddDate(0, 0, week*7)
		for i := 0; i < volume; i++ {
			id++
			records = append(records, domain.Record{
				ID:        fmt.Sprintf("rec-%04d", id),
				Kind:      domain.KindCommit,
				Source:    "acme/widgets",
				Repo:      "widgets",
				Actor:     fmt.Sprintf("dev-%d", id%3),
				Timestamp: weekStart.Add(time.Duration(i) * time.Hour),
				Numbers:   map[string]float64{"additions": float64(10 + i)},
				Texts:     map[string]string{"message": "change"},
			})
		}
	}
	return records, tr
}

func TestBuildReport_EndToEnd(t *testing.T) {
	records, tr := growingStream()

	report := BuildReport("acme/widgets", records, tr,
		[]KeyFunc{ByActor()},
		[]classifier.RuleTable{classifier.AutomationTable()})

	assert.Equal(t, "acme/widgets", report.Source)
	assert.Equal(t, 60, report.RecordCount)

	// Period grouping is always present alongside the requested ones.
	require.Contains(t, report.Groups, "period")
	require.Contains(t, report.Groups, "actor")
	assert.Len(t, report.Groups["period"], 3)
	assert.Len(t, report.Groups["actor"], 3)

	// 60 records round-robined over 3 actors.
	for _, g := range report.Groups["actor"] {
		assert.Equal(t, 20, g.Count)
		stats := g.FieldStats["additions"]
		assert.Equal(t, 20, stats.Count)
		assert.GreaterOrEqual(t, stats.Min, 10.0)
	}

	// Weekly volume 10 -> 20 -> 30 fits an increasing count trend.
	require.Contains(t, report.Trends, "count")
	assert.Equal(t, DirectionIncreasing, report.Trends["count"].Direction)
	assert.InDelta(t, 10, report.Trends["count"].Slope, 1e-9)

	// Per-field trends exist for every numeric field seen in any period.
	require.Contains(t, report.Trends, "additions")
	assert.Equal(t, DirectionIncreasing, report.Trends["additions"].Direction)

	// Human-authored records all land in the automation table's default.
	require.Contains(t, report.CategoryCounts, "automation")
	assert.Equal(t, map[string]int{"human": 60}, report.CategoryCounts["automation"])
	assert.Len(t, report.Classifications["automation"], 60)
}

func TestBuildReport_EmptyStream(t *testing.T) {
	tr := domain.TimeRange{
		Start:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		Granularity: "week",
	}

	report := BuildReport("acme/widgets", nil, tr, []KeyFunc{ByActor()}, nil)

	assert.Equal(t, 0, report.RecordCount)
	assert.Empty(t, report.Groups["actor"])
	assert.Equal(t, DirectionInsufficientData, report.Trends["count"].Direction)
	assert.Empty(t, report.CategoryCounts)
}

func TestBuildReport_GroupsSortedByKey(t *testing.T) {
	records, tr := growingStream()
	report := BuildReport("acme/widgets", records, tr, []KeyFunc{ByActor()}, nil)

	groups := report.Groups["actor"]
	require.Len(t, groups, 3)
	for i := 1; i < len(groups); i++ {
		assert.Less(t, groups[i-1].Key, groups[i].Key)
	}
}

func TestBuildReport_ExplicitPeriodKeyFuncNotDoubled(t *testing.T) {
	records, tr := growingStream()
	report := BuildReport("acme/widgets", records, tr, []KeyFunc{ByPeriod(tr)}, nil)

	groups := report.Groups["period"]
	require.Len(t, groups, 3)
	total := 0
	for _, g := range groups {
		total += g.Count
	}
	assert.Equal(t, len(records), total)
}
