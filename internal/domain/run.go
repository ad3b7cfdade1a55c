package domain

import "time"

// RunStatus is the lifecycle state of a posting run.
type RunStatus string

const (
	RunProcessing RunStatus = "PROCESSING"
	RunCompleted  RunStatus = "COMPLETED"
	RunFailed     RunStatus = "FAILED"
)

// PostingRun is one batch execution of the auto-posting engine.
type PostingRun struct {
	ID                      int64     `json:"id" db:"id"`
	RunID                   string    `json:"run_id" db:"run_id"`
	CompanyCode             string    `json:"company_code" db:"company_code"`
	Status                  RunStatus `json:"status" db:"status"`
	TotalProcessed          int       `json:"total_processed" db:"total_processed"`
	TotalPosted             int       `json:"total_posted" db:"total_posted"`
	TotalLinked             int       `json:"total_linked" db:"total_linked"`
	TotalSkipped            int       `json:"total_skipped" db:"total_skipped"`
	TotalNeedsRule          int       `json:"total_needs_rule" db:"total_needs_rule"`
	TotalDuplicateSuspected int       `json:"total_duplicate_suspected" db:"total_duplicate_suspected"`
	TotalFailed             int       `json:"total_failed" db:"total_failed"`
	ErrorMessage            *string   `json:"error_message,omitempty" db:"error_message"`
	TriggeredBy             int64     `json:"triggered_by" db:"triggered_by"`
	CreatedAt               time.Time `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time `json:"updated_at" db:"updated_at"`
}

// Count increments the counter matching a terminal status.
func (r *PostingRun) Count(status PostingStatus) {
	r.TotalProcessed++
	switch status {
	case StatusPosted:
		r.TotalPosted++
	case StatusLinked:
		r.TotalLinked++
	case StatusSkipped:
		r.TotalSkipped++
	case StatusNeedsRule:
		r.TotalNeedsRule++
	case StatusDuplicateSuspected:
		r.TotalDuplicateSuspected++
	case StatusFailed:
		r.TotalFailed++
	}
}

// RunItem is the per-line outcome of a posting run.
type RunItem struct {
	ID            int64         `json:"id" db:"id"`
	RunID         string        `json:"run_id" db:"run_id"`
	LineID        int64         `json:"line_id" db:"line_id"`
	Status        PostingStatus `json:"status" db:"status"`
	VoucherNumber *string       `json:"voucher_number,omitempty" db:"voucher_number"`
	ErrorText     *string       `json:"error_text,omitempty" db:"error_text"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// ConfirmationTask asks a user to review one run's results.
type ConfirmationTask struct {
	ID        int64     `json:"id" db:"id"`
	RunID     string    `json:"run_id" db:"run_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Summary   string    `json:"summary" db:"summary"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
