package constants

// ItemStatus is the lifecycle state of a single work item attempt.
type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemInFlight  ItemStatus = "IN_FLIGHT"
	ItemSucceeded ItemStatus = "SUCCEEDED" // new candidate record created
	ItemUpdated   ItemStatus = "UPDATED"   // existing candidate record modified
	ItemFailed    ItemStatus = "FAILED"
)

// Terminal reports whether the status ends an attempt.
func (s ItemStatus) Terminal() bool {
	return s == ItemSucceeded || s == ItemUpdated || s == ItemFailed
}

// Stage is the processing stage of a whole batch.
type Stage string

const (
	StageIdle       Stage = "IDLE"
	StageStarting   Stage = "STARTING"
	StageProcessing Stage = "PROCESSING"
	StageFinalizing Stage = "FINALIZING"
	StageComplete   Stage = "COMPLETE"
	StageError      Stage = "ERROR"
)

// Terminal reports whether no further mutation may happen after this stage.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

// ErrorKind classifies a failed upload attempt.
type ErrorKind string

const (
	ErrorNone       ErrorKind = ""
	ErrorNetwork    ErrorKind = "network"    // transport/connectivity, timeouts, empty responses
	ErrorValidation ErrorKind = "validation" // remote rejected content or shape
	ErrorServer     ErrorKind = "server"     // remote-side failure (5xx)
	ErrorUnknown    ErrorKind = "unknown"
)

// ParseErrorKind maps a wire value to an ErrorKind, falling back to ErrorUnknown.
func ParseErrorKind(s string) ErrorKind {
	switch ErrorKind(s) {
	case ErrorNetwork, ErrorValidation, ErrorServer, ErrorUnknown:
		return ErrorKind(s)
	}
	return ErrorUnknown
}

// Result statuses reported per file by the upload endpoint.
const (
	ResultSuccess = "success"
	ResultUpdated = "updated"
	ResultError   = "error"
)
