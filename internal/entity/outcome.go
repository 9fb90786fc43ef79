package entity

import "github.com/joseph-ayodele/resume-ingest/constants"

// Outcome is the terminal classification of one upload attempt.
type Outcome struct {
	Status       constants.ItemStatus `json:"status"`
	ErrorKind    constants.ErrorKind  `json:"error_kind,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	// RecordID is the identifier the remote service assigned, when reported.
	RecordID string `json:"record_id,omitempty"`
	// Retries is server-side retry telemetry, when reported.
	Retries int `json:"retries,omitempty"`
}

func Succeeded(recordID string) Outcome {
	return Outcome{Status: constants.ItemSucceeded, RecordID: recordID}
}

func Updated(recordID string) Outcome {
	return Outcome{Status: constants.ItemUpdated, RecordID: recordID}
}

func Failed(kind constants.ErrorKind, message string) Outcome {
	if kind == constants.ErrorNone {
		kind = constants.ErrorUnknown
	}
	return Outcome{Status: constants.ItemFailed, ErrorKind: kind, ErrorMessage: message}
}

// OK reports whether the attempt reached the remote service successfully.
func (o Outcome) OK() bool {
	return o.Status == constants.ItemSucceeded || o.Status == constants.ItemUpdated
}
