package upload

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/resume-ingest/constants"
	"github.com/joseph-ayodele/resume-ingest/internal/entity"
)

// Response is the upload endpoint's reply: one result per file it processed.
type Response struct {
	Results []Result `json:"results"`
}

type Result struct {
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
	ID        json.RawMessage `json:"id,omitempty"`
	Retries   int             `json:"retries,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
}

// RecordID returns the assigned identifier whether it was sent as a string or a number.
func (r Result) RecordID() string {
	if len(r.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.ID, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(r.ID, &n); err == nil {
		return n.String()
	}
	return strings.Trim(string(r.ID), `"`)
}

// Outcome converts the first result of the response.
func (r Response) Outcome() entity.Outcome {
	if len(r.Results) == 0 {
		return entity.Failed(constants.ErrorNetwork, "upload endpoint returned no results")
	}
	res := r.Results[0]
	var o entity.Outcome
	switch res.Status {
	case constants.ResultSuccess:
		o = entity.Succeeded(res.RecordID())
	case constants.ResultUpdated:
		o = entity.Updated(res.RecordID())
	default:
		kind := constants.ErrorValidation
		if res.ErrorKind != "" {
			kind = constants.ParseErrorKind(res.ErrorKind)
		}
		msg := res.Message
		if msg == "" {
			msg = "upload rejected"
		}
		o = entity.Failed(kind, msg)
	}
	o.Retries = res.Retries
	return o
}

// statusOutcome classifies a non-2xx HTTP reply.
func statusOutcome(code int, body []byte) entity.Outcome {
	msg := fmt.Sprintf("upload endpoint returned %d", code)
	if detail := errorDetail(body); detail != "" {
		msg += ": " + detail
	}
	switch {
	case code >= 500:
		return entity.Failed(constants.ErrorServer, msg)
	case code >= 400:
		return entity.Failed(constants.ErrorValidation, msg)
	}
	return entity.Failed(constants.ErrorUnknown, msg)
}

// errorDetail extracts a short message from an error body, if it carries one.
func errorDetail(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, s := range []string{payload.Error, payload.Message, payload.Detail} {
			if s != "" {
				return s
			}
		}
	}
	text := strings.Join(strings.Fields(string(body)), " ")
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
