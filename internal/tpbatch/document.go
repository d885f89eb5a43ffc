package tpbatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const batchSchema = `{
  "type": "object",
  "properties": {
    "id":               {"type": "string"},
    "course_id":        {"type": "string"},
    "title":            {"type": "string"},
    "sequential_order": {"type": "boolean"},
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "item_id":              {"type": "string", "minLength": 1},
          "position":             {"type": "integer"},
          "is_required":          {"type": "boolean"},
          "prerequisite_item_id": {"type": ["string", "null"]}
        },
        "required": ["item_id", "position"]
      }
    }
  },
  "required": ["items"]
}`

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

// ParseDocument checks an authored JSON batch against the expected shape and
// validates it into a Batch.
func ParseDocument(raw []byte) (Batch, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(batchSchema))
	})
	if schemaErr != nil {
		return Batch{}, fmt.Errorf("compile batch schema: %w", schemaErr)
	}

	res, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return Batch{}, &ConfigError{Reason: fmt.Sprintf("unreadable document: %v", err)}
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Batch{}, &ConfigError{Reason: strings.Join(msgs, "; ")}
	}

	var in BatchInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return Batch{}, &ConfigError{Reason: fmt.Sprintf("decode document: %v", err)}
	}
	return NewBatch(in)
}
