package domain

import "time"

// CollectionRun records one collection pass against a source, so reports
// can tell how fresh the cached records are.
type CollectionRun struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Records   int       `json:"records"`
	Partial   bool      `json:"partial"` // collection aborted but partial results were kept
	Status    string    `json:"status"`  // "in_progress", "completed", "failed"
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
