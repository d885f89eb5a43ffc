package evaluation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const configSchema = `{
  "type": "object",
  "properties": {
    "passingScore": {"type": "integer"},
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "itemId":    {"type": "string"},
          "title":     {"type": "string"},
          "weight":    {"type": "integer"},
          "threshold": {"type": ["integer", "null"]}
        },
        "required": ["itemId", "weight"]
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

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(configSchema))
	})
	return schema, schemaErr
}

// ParseDocument checks a JSON configuration document (as stored in the
// courses.evaluations_config column) against the expected shape and then
// validates it into a Config. An empty or null document yields a Config
// with no entries.
func ParseDocument(raw []byte) (Config, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return NewConfig(ConfigInput{})
	}

	s, err := compiledSchema()
	if err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return Config{}, &ConfigError{Index: -1, Reason: fmt.Sprintf("unreadable document: %v", err)}
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Config{}, &ConfigError{Index: -1, Reason: strings.Join(msgs, "; ")}
	}

	var in ConfigInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return Config{}, &ConfigError{Index: -1, Reason: fmt.Sprintf("decode document: %v", err)}
	}
	return NewConfig(in)
}
