// Package validate checks inbound activity records against a JSON
// schema once, at ingestion, so everything past the store boundary can
// rely on a well-formed shape.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"uebaguard/internal/model"
)

const recordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["timestamp", "agent_name", "agent_id", "action", "endpoint", "target_resource", "status_code"],
  "properties": {
    "timestamp": {"type": "string", "minLength": 1},
    "agent_name": {"type": "string", "minLength": 1},
    "agent_id": {"type": "string", "minLength": 1},
    "action": {"type": "string"},
    "endpoint": {"type": "string"},
    "target_resource": {"type": "string"},
    "status_code": {"type": "integer", "minimum": 0},
    "payload_size": {"type": "integer", "minimum": 0},
    "latency_ms": {"type": "integer", "minimum": 0},
    "extra": {"type": "object"}
  },
  "additionalProperties": false
}`

type RecordValidator struct {
	schema *jsonschema.Schema
}

func NewRecordValidator() (*RecordValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("activity_record.json", strings.NewReader(recordSchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("activity_record.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &RecordValidator{schema: schema}, nil
}

// Parse validates raw JSON against the record schema and decodes it.
// Absent payload_size and latency_ms default to zero via the struct
// zero values.
func (v *RecordValidator) Parse(raw []byte) (model.ActivityRecord, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return model.ActivityRecord{}, fmt.Errorf("decode record: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return model.ActivityRecord{}, fmt.Errorf("validate record: %w", err)
	}
	var rec model.ActivityRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.ActivityRecord{}, fmt.Errorf("decode record: %w", err)
	}
	if _, err := model.ParseTimestamp(rec.Timestamp); err != nil {
		return model.ActivityRecord{}, fmt.Errorf("validate record: %w", err)
	}
	return rec, nil
}
