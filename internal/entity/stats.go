package entity

import "github.com/joseph-ayodele/resume-ingest/constants"

// BatchStats is the progress snapshot of one submission.
type BatchStats struct {
	BatchID     string          `json:"batch_id"`
	Total       int             `json:"total"`
	Completed   int             `json:"completed"`
	Successful  int             `json:"successful"`
	Updated     int             `json:"updated"`
	Failed      int             `json:"failed"`
	Retrying    int             `json:"retrying"`
	CurrentFile string          `json:"current_file,omitempty"`
	Stage       constants.Stage `json:"stage"`
}

// Percent returns completion as a percentage (0–100).
func (s BatchStats) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total) * 100
}

// Terminal reports whether the batch has reached Complete or Error.
func (s BatchStats) Terminal() bool {
	return s.Stage.Terminal()
}

// SessionTotals accumulates outcomes across every batch and retry of a session.
type SessionTotals struct {
	Batches    int `json:"batches"`
	Successful int `json:"successful"`
	Updated    int `json:"updated"`
	Failed     int `json:"failed"`
	Retried    int `json:"retried"`
	Recovered  int `json:"recovered"`
}

// Add folds one outcome into the totals.
func (t *SessionTotals) Add(o Outcome) {
	switch o.Status {
	case constants.ItemSucceeded:
		t.Successful++
	case constants.ItemUpdated:
		t.Updated++
	case constants.ItemFailed:
		t.Failed++
	}
}
