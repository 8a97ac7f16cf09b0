package analysis

import (
	"github.com/montanaflynn/stats"
)

// Direction classifies how a metric moves across ordered periods
type Direction string

const (
	DirectionIncreasing       Direction = "increasing"
	DirectionDecreasing       Direction = "decreasing"
	DirectionStable           Direction = "stable"
	DirectionInsufficientData Direction = "insufficient_data"
)

// DefaultSlopeEpsilon is the slope magnitude below which a trend counts as
// stable. Tunable per report; not a hidden constant.
const DefaultSlopeEpsilon = 0.1

// TrendPoint is one (period, value) observation. Points must already be in
// period order.
type TrendPoint struct {
	Period string  `json:"period"`
	Value  float64 `json:"value"`
}

// Trend is the fitted direction and slope for a series.
type Trend struct {
	Direction Direction `json:"direction"`
	Slope     float64   `json:"slope"`
}

// AnalyzeTrend fits an ordinary least-squares line over the index-ordered
// points (x = sequential index, not calendar time, so gaps between sparse
// periods do not distort the slope) and classifies the direction against
// epsilon. Fewer than 2 points yields InsufficientData.
func AnalyzeTrend(points []TrendPoint, epsilon float64) Trend {
	if len(points) < 2 {
		return Trend{Direction: DirectionInsufficientData}
	}

	series := make(stats.Series, len(points))
	for i, pt := range points {
		series[i] = stats.Coordinate{X: float64(i), Y: pt.Value}
	}
	fitted, err := stats.LinearRegression(series)
	if err != nil {
		return Trend{Direction: DirectionInsufficientData}
	}

	// Indexes are spaced 1 apart, so the slope is the fitted step.
	slope := fitted[1].Y - fitted[0].Y

	switch {
	case slope > epsilon:
		return Trend{Direction: DirectionIncreasing, Slope: slope}
	case slope < -epsilon:
		return Trend{Direction: DirectionDecreasing, Slope: slope}
	default:
		return Trend{Direction: DirectionStable, Slope: slope}
	}
}

// PeriodCounts converts a period grouping into an ordered count series,
// ready for AnalyzeTrend. Periods sort lexically, which matches
// chronological order for the fixed-width period keys domain.TimeRange
// produces.
func PeriodCounts(grouping Grouping) []TrendPoint {
	keys := grouping.Keys()
	points := make([]TrendPoint, 0, len(keys))
	for _, key := range keys {
		points = append(points, TrendPoint{Period: key, Value: float64(grouping[key].Count)})
	}
	return points
}

// PeriodSums converts a period grouping into an ordered series of one
// numeric field's per-period sums.
func PeriodSums(grouping Grouping, field string) []TrendPoint {
	keys := grouping.Keys()
	points := make([]TrendPoint, 0, len(keys))
	for _, key := range keys {
		points = append(points, TrendPoint{Period: key, Value: grouping[key].Sums[field]})
	}
	return points
}
