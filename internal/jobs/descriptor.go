// Package jobs defines the queue message handed from intake to workers.
package jobs

import (
	"encoding/json"
	"fmt"
)

// Descriptor is the minimal payload that triggers processing of one job.
// It is created once by intake and never mutated.
type Descriptor struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
}

// BuildDescriptorJSONSchema returns the schema (draft 2020-12 subset) used to
// validate queue payloads at the consume boundary.
func BuildDescriptorJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"job_id": map[string]any{
				"type":    "string",
				"pattern": `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`,
			},
			"filename": map[string]any{"type": "string", "minLength": 1},
		},
		"required": []string{"job_id", "filename"},
	}
}

// Encode serializes the descriptor for publishing.
func (d Descriptor) Encode() ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode descriptor: %w", err)
	}
	return b, nil
}

// Decode validates body against the descriptor schema and unmarshals it.
// A payload that fails validation is a malformed (poison) message, not a
// transient failure.
func Decode(body []byte) (Descriptor, error) {
	if err := ValidateJSONAgainstSchema(BuildDescriptorJSONSchema(), body); err != nil {
		return Descriptor{}, fmt.Errorf("invalid job descriptor: %w", err)
	}
	var d Descriptor
	if err := json.Unmarshal(body, &d); err != nil {
		return Descriptor{}, fmt.Errorf("decode descriptor: %w", err)
	}
	return d, nil
}
