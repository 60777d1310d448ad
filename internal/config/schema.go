package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// schemaJSON constrains the service config the way validation.go
// constrains request bodies in the teacher repo, applied here to the
// config file instead.
const schemaJSON = `{
  "type": "object",
  "properties": {
    "server": {
      "type": "object",
      "properties": {
        "port": {"type": "integer", "minimum": 1, "maximum": 65535},
        "metrics_port": {"type": "integer", "minimum": 1, "maximum": 65535},
        "log_level": {"type": "string", "enum": ["debug", "info", "warn", "error"]},
        "log_format": {"type": "string", "enum": ["json", "console"]},
        "rate_limit_rps": {"type": "number", "exclusiveMinimum": 0},
        "rate_limit_burst": {"type": "integer", "minimum": 1}
      }
    },
    "batcher": {
      "type": "object",
      "properties": {
        "max_batch_size": {"type": "integer"},
        "max_queue_size": {"type": "integer"},
        "concurrency": {"type": "integer"}
      }
    },
    "adapter": {
      "type": "object",
      "properties": {
        "kind": {"type": "string", "enum": ["objectstore", "sqlbulk", "inference", "webhook"]}
      },
      "required": ["kind"]
    }
  },
  "required": ["adapter"]
}`

// Validate checks c against schemaJSON. It round-trips c through JSON
// rather than YAML since gojsonschema only understands JSON documents.
func (c *Config) Validate() error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal for validation: %w", err)
	}

	schemaLoader := gojsonschema.NewStringLoader(schemaJSON)
	docLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("config: schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("config: invalid configuration: %s", strings.Join(msgs, "; "))
	}

	return nil
}
