package resilience

import (
	"encoding/json"
	"time"
)

// Error classes recorded on dead letters.
const (
	ErrorTypeTransient = "transient"
	ErrorTypePermanent = "permanent"
)

// DeadLetter records a lead whose import could not be completed, with the
// raw record so it can be replayed once the cause is fixed.
type DeadLetter struct {
	ID          string          `json:"id"`
	ImportID    string          `json:"import_id"`
	RecordIndex int             `json:"record_index"`
	ContactID   string          `json:"contact_id,omitempty"`
	Record      json.RawMessage `json:"record"`
	Error       string          `json:"error"`
	ErrorType   string          `json:"error_type"`
	FailedStep  string          `json:"failed_step"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DeadLetterFilter specifies criteria for listing dead letters.
type DeadLetterFilter struct {
	ImportID  string `json:"import_id,omitempty"`
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	Limit     int    `json:"limit,omitempty"`
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return ErrorTypeTransient
	}
	return ErrorTypePermanent
}
