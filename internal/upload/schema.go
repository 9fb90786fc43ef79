package upload

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/resume-ingest/constants"
)

// BuildResponseSchema returns the JSON-Schema the upload endpoint's reply must satisfy.
// An empty results array is valid here; it is classified later.
func BuildResponseSchema() map[string]any {
	result := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{
				"type": "string",
				"enum": []string{constants.ResultSuccess, constants.ResultUpdated, constants.ResultError},
			},
			"message":    map[string]any{"type": "string"},
			"id":         map[string]any{"type": []string{"string", "integer"}},
			"retries":    map[string]any{"type": "integer", "minimum": 0},
			"error_kind": map[string]any{"type": "string"},
		},
		"required": []string{"status"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"results": map[string]any{
				"type":  "array",
				"items": result,
			},
		},
		"required": []string{"results"},
	}
}

// compileSchema compiles schemaMap once so every response can be validated against it.
func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("upload_response.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("upload_response.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateResponse checks raw against schema.
func validateResponse(schema *jsonschema.Schema, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	return nil
}
