package entity

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/resume-ingest/constants"
)

// WorkItem describes one file to ingest plus the state of its current attempt.
// ID, Source and DisplayName never change; the rest is guarded by mu.
type WorkItem struct {
	ID          string
	Source      Source
	DisplayName string

	mu         sync.Mutex
	status     constants.ItemStatus
	errorKind  constants.ErrorKind
	errorMsg   string
	recordID   string
	retryCount int
}

// ItemState is a consistent copy of a work item's mutable state.
type ItemState struct {
	ID           string               `json:"id"`
	DisplayName  string               `json:"display_name"`
	Status       constants.ItemStatus `json:"status"`
	ErrorKind    constants.ErrorKind  `json:"error_kind,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	RecordID     string               `json:"record_id,omitempty"`
	RetryCount   int                  `json:"retry_count"`
}

func NewWorkItem(src Source) *WorkItem {
	return &WorkItem{
		ID:          uuid.NewString(),
		Source:      src,
		DisplayName: src.Name(),
		status:      constants.ItemPending,
	}
}

// NewWorkItems wraps each source in a pending work item.
func NewWorkItems(srcs []Source) []*WorkItem {
	items := make([]*WorkItem, 0, len(srcs))
	for _, s := range srcs {
		items = append(items, NewWorkItem(s))
	}
	return items
}

// RestoreWorkItem rebuilds a failed item from a failure record so it can be resubmitted.
func RestoreWorkItem(rec FailureRecord) *WorkItem {
	return &WorkItem{
		ID:          rec.ItemID,
		Source:      rec.Source,
		DisplayName: rec.DisplayName,
		status:      constants.ItemFailed,
		errorKind:   rec.ErrorKind,
		errorMsg:    rec.ErrorMessage,
		retryCount:  rec.RetryCount,
	}
}

// Begin moves a pending item in flight.
func (w *WorkItem) Begin() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != constants.ItemPending {
		return fmt.Errorf("work item %s: cannot begin from %s", w.ID, w.status)
	}
	w.status = constants.ItemInFlight
	return nil
}

// Complete records the outcome of the in-flight attempt.
func (w *WorkItem) Complete(o Outcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != constants.ItemInFlight {
		return fmt.Errorf("work item %s: cannot complete from %s", w.ID, w.status)
	}
	w.status = o.Status
	w.recordID = o.RecordID
	if o.Status == constants.ItemFailed {
		w.errorKind, w.errorMsg = o.ErrorKind, o.ErrorMessage
	} else {
		w.errorKind, w.errorMsg = constants.ErrorNone, ""
	}
	return nil
}

// Resubmit starts a new attempt for a failed item.
func (w *WorkItem) Resubmit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != constants.ItemFailed {
		return fmt.Errorf("work item %s: only failed items can be resubmitted, got %s", w.ID, w.status)
	}
	w.status = constants.ItemPending
	w.retryCount++
	return nil
}

func (w *WorkItem) Status() constants.ItemStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *WorkItem) State() ItemState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ItemState{
		ID:           w.ID,
		DisplayName:  w.DisplayName,
		Status:       w.status,
		ErrorKind:    w.errorKind,
		ErrorMessage: w.errorMsg,
		RecordID:     w.recordID,
		RetryCount:   w.retryCount,
	}
}
