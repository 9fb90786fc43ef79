package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/resume-ingest/constants"
)

// FailureRecord is an item that terminated in error and still needs attention.
// ID is distinct from ItemID: the registry keeps one record per logical item.
type FailureRecord struct {
	ID           string              `json:"id"`
	ItemID       string              `json:"item_id"`
	DisplayName  string              `json:"display_name"`
	ErrorKind    constants.ErrorKind `json:"error_kind"`
	ErrorMessage string              `json:"error_message"`
	Source       Source              `json:"-"`
	RetryCount   int                 `json:"retry_count"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// NewFailureRecord captures a failed item. The outcome must be Failed.
func NewFailureRecord(item *WorkItem, o Outcome) FailureRecord {
	st := item.State()
	now := time.Now().UTC()
	return FailureRecord{
		ID:           uuid.NewString(),
		ItemID:       item.ID,
		DisplayName:  item.DisplayName,
		ErrorKind:    o.ErrorKind,
		ErrorMessage: o.ErrorMessage,
		Source:       item.Source,
		RetryCount:   st.RetryCount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// SourceURI is the persisted form of Source.
func (r FailureRecord) SourceURI() string {
	if r.Source == nil {
		return ""
	}
	return r.Source.URI()
}
