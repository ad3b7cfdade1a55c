package events

import "time"

// RunCompletedEvent announces a finished posting run with its aggregate
// counts. Consumers fan it out to users holding the configured roles.
type RunCompletedEvent struct {
	RunID                   string    `json:"run_id"`
	CompanyCode             string    `json:"company_code"`
	TotalProcessed          int       `json:"total_processed"`
	TotalPosted             int       `json:"total_posted"`
	TotalLinked             int       `json:"total_linked"`
	TotalSkipped            int       `json:"total_skipped"`
	TotalNeedsRule          int       `json:"total_needs_rule"`
	TotalDuplicateSuspected int       `json:"total_duplicate_suspected"`
	TotalFailed             int       `json:"total_failed"`
	CompletedAt             time.Time `json:"completed_at"`
}
