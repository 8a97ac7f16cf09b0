package domain

import "time"

// Kind represents the type of collected activity record
type Kind string

const (
	KindCommit      Kind = "commit"
	KindPullRequest Kind = "pull_request"
	KindReview      Kind = "review"
	KindComment     Kind = "comment"
)

// Record is one unit of collected activity. It is created by a source
// adapter, immutable once collected, and flows through the pipeline
// exactly once (collect -> group -> derive -> assemble).
type Record struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Source    string    `json:"source"` // "owner/repo" the record was collected from
	Repo      string    `json:"repo"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`

	// Free-form payload. Numeric fields (additions, deletions, days_open),
	// textual fields (message, title, body) and structural flags
	// (is_merged, is_draft, failing_ci) populated by the source adapter.
	Numbers map[string]float64 `json:"numbers,omitempty"`
	Texts   map[string]string  `json:"texts,omitempty"`
	Flags   map[string]bool    `json:"flags,omitempty"`
}

// Number returns the named numeric field, or 0 when absent.
func (r Record) Number(name string) float64 {
	return r.Numbers[name]
}

// Text returns the named textual field, or "" when absent.
func (r Record) Text(name string) string {
	return r.Texts[name]
}

// Flag returns the named structural flag, or false when absent.
func (r Record) Flag(name string) bool {
	return r.Flags[name]
}
