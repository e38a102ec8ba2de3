package ingest

import (
	"time"
)

// RecordStatus is the final state of one record.
type RecordStatus string

// Record statuses.
const (
	StatusSucceeded RecordStatus = "succeeded"
	StatusPartial   RecordStatus = "partial"
	StatusSkipped   RecordStatus = "skipped"
	StatusFailed    RecordStatus = "failed"
)

// RecordOutcome describes what happened to one record. A record is partial
// when its contact was written but a custom field or tag write failed.
type RecordOutcome struct {
	Index     int          `json:"index"`
	ContactID string       `json:"contact_id,omitempty"`
	Status    RecordStatus `json:"status"`
	Reason    string       `json:"reason,omitempty"`

	FieldsWritten  int  `json:"fields_written"`
	FieldsSkipped  int  `json:"fields_skipped"`
	FieldsFailed   int  `json:"fields_failed"`
	TagsAssociated int  `json:"tags_associated"`
	TagsFailed     bool `json:"tags_failed,omitempty"`
}

func (o *RecordOutcome) settle() {
	if o.Status != "" {
		return
	}
	if o.FieldsFailed > 0 || o.TagsFailed {
		o.Status = StatusPartial
		return
	}
	o.Status = StatusSucceeded
}

// Summary is the aggregate result of one import.
type Summary struct {
	ImportID          string        `json:"importId"`
	Message           string        `json:"message"`
	TotalRecords      int           `json:"totalRecords"`
	InsertedRecords   int           `json:"insertedRecords"`
	Skipped           int           `json:"skippedRecords"`
	Failed            int           `json:"failedRecords"`
	Partial           int           `json:"partialRecords"`
	CustomFieldValues int           `json:"customFieldValues"`
	Tags              int           `json:"tagsAssociated"`
	Chunks            int           `json:"chunks"`
	Duration          time.Duration `json:"-"`
	DurationMs        int64         `json:"durationMs"`
}

// Summary messages.
const (
	MessageProcessed   = "File processed successfully"
	MessageInterrupted = "File processing interrupted"
)

func (s *Summary) add(o RecordOutcome) {
	switch o.Status {
	case StatusSucceeded:
		s.InsertedRecords++
	case StatusPartial:
		s.InsertedRecords++
		s.Partial++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
	s.CustomFieldValues += o.FieldsWritten
	s.Tags += o.TagsAssociated
}

func (s *Summary) finish(start time.Time) {
	s.Duration = time.Since(start)
	s.DurationMs = s.Duration.Milliseconds()
}
