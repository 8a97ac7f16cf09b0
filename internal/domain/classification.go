package domain

// Priority indicates how urgently a classified record deserves attention
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Classification is the result of running a record through a rule table.
// It is derived per record and never mutates the record itself.
type Classification struct {
	Table    string   `json:"table"`
	Category string   `json:"category"`
	Priority Priority `json:"priority"`
	Score    float64  `json:"score"`
}

// ClassifiedRecord is the enriched view of a record: the original record
// plus the classification attached to it.
type ClassifiedRecord struct {
	Record Record         `json:"record"`
	Result Classification `json:"result"`
}
