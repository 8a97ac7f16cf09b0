package domain

import (
	"fmt"
	"time"
)

// TimeRange represents a time range for collection and aggregation
type TimeRange struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Granularity string    `json:"granularity"` // "day", "week", "month"
}

// Contains reports whether t falls inside the range (inclusive bounds).
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && !t.After(tr.End)
}

// PeriodKey returns the bucket label for t under the range's granularity.
// Week keys use ISO year/week so records near year boundaries land in a
// single bucket regardless of calendar year.
func (tr TimeRange) PeriodKey(t time.Time) string {
	switch tr.Granularity {
	case "week":
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case "month":
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// TruncatePeriod truncates t to the start of its period.
func (tr TimeRange) TruncatePeriod(t time.Time) time.Time {
	switch tr.Granularity {
	case "week":
		weekday := int(t.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return time.Date(t.Year(), t.Month(), t.Day()-weekday+1, 0, 0, 0, 0, t.Location())
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
}

// NextPeriod returns the start of the period after t.
func (tr TimeRange) NextPeriod(t time.Time) time.Time {
	switch tr.Granularity {
	case "week":
		return t.AddDate(0, 0, 7)
	case "month":
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}
