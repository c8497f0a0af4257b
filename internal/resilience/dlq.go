package resilience

import (
	"time"
)

// DLQEntry records a failed form submission for operator review. Submissions
// are never retried automatically, so the entry carries diagnostics only;
// ErrorType classifies the fault for triage.
type DLQEntry struct {
	ID           string    `json:"id"`
	ReportID     string    `json:"report_id"`
	Category     string    `json:"category"`
	FormURL      string    `json:"form_url,omitempty"`
	Error        string    `json:"error"`
	ErrorType    string    `json:"error_type"` // "transient" or "permanent"
	FailedStage  string    `json:"failed_stage,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastFailedAt time.Time `json:"last_failed_at"`
}

// DLQFilter specifies criteria for querying the dead letter queue.
type DLQFilter struct {
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	Limit     int    `json:"limit,omitempty"`
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
