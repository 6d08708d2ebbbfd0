// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ruleListSchema describes the strict detection payload: a JSON array of
// rule-id shaped strings (UPPERCASE segments joined by dots).
const ruleListSchema = `{
  "type": "array",
  "items": {
    "type": "string",
    "pattern": "^[A-Z0-9]+(\\.[A-Z0-9_]+)+$"
  }
}`

// reportSchema describes the aggregated run report artifact
const reportSchema = `{
  "type": "object",
  "required": ["generated_at", "total_files", "results"],
  "properties": {
    "generated_at": {"type": "string"},
    "total_files": {"type": "integer", "minimum": 0},
    "results": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["file"],
        "properties": {
          "file": {"type": "string"},
          "rules": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["rule", "status"],
              "properties": {
                "rule": {"type": "string"},
                "status": {
                  "type": "string",
                  "enum": ["applied", "no_change", "skipped", "missing_rule", "failed"]
                }
              }
            }
          }
        }
      }
    }
  }
}`

// ValidateRuleList validates a raw JSON payload against the strict
// rule-list schema
func ValidateRuleList(data []byte) error {
	return validate(ruleListSchema, data)
}

// ValidateReport validates a serialized run report document
func ValidateReport(data []byte) error {
	return validate(reportSchema, data)
}

func validate(schema string, document []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		errorMsg := "document validation failed:\n"
		for _, verr := range result.Errors() {
			errorMsg += fmt.Sprintf("- %s\n", verr)
		}
		return fmt.Errorf("%s", errorMsg)
	}

	return nil
}
