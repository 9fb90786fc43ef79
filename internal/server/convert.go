package server

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/resume-ingest/internal/entity"
	"github.com/joseph-ayodele/resume-ingest/internal/failures"
)

// toStruct encodes v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// BatchUpdate is one SubmitBatch stream message.
type BatchUpdate struct {
	entity.BatchStats
	Summary string `json:"summary,omitempty"`
}

// FailureView is a failure record as sent over the wire.
type FailureView struct {
	entity.FailureRecord
	SourceURI string `json:"source_uri,omitempty"`
}

// FailureViews attaches the persisted source URI to each record.
func FailureViews(recs []entity.FailureRecord) []FailureView {
	out := make([]FailureView, 0, len(recs))
	for _, r := range recs {
		out = append(out, FailureView{FailureRecord: r, SourceURI: r.SourceURI()})
	}
	return out
}

// RetryView is one retry result as sent over the wire.
type RetryView struct {
	RecordID    string         `json:"record_id"`
	DisplayName string         `json:"display_name"`
	Outcome     entity.Outcome `json:"outcome"`
	Error       string         `json:"error,omitempty"`
}

func RetryViews(results []failures.RetryResult) []RetryView {
	out := make([]RetryView, 0, len(results))
	for _, r := range results {
		v := RetryView{RecordID: r.RecordID, DisplayName: r.DisplayName, Outcome: r.Outcome}
		if r.Err != nil {
			v.Error = r.Err.Error()
		}
		out = append(out, v)
	}
	return out
}

// SubmitRequest is the SubmitBatch request body.
type SubmitRequest struct {
	Paths      []string     `json:"paths,omitempty"`
	Directory  string       `json:"directory,omitempty"`
	SkipHidden bool         `json:"skip_hidden,omitempty"`
	Extensions []string     `json:"extensions,omitempty"`
	Files      []InlineFile `json:"files,omitempty"`
}

// InlineFile carries a payload in the request itself. Data is base64 in JSON.
type InlineFile struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

type idRequest struct {
	ID string `json:"id"`
}
