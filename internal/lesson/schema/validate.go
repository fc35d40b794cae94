package schema

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// documentSchema constrains the shape of module documents. Field types are
// left open: unknown types load and render as no-ops.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["module_id", "fields"],
  "properties": {
    "module_id": {"type": "string", "minLength": 1},
    "course_id": {"type": "string"},
    "title": {"type": "string"},
    "position": {"type": "integer", "minimum": 0},
    "video_url": {"type": "string"},
    "notes": {"type": "string"},
    "deck_url": {"type": "string"},
    "complete_on_submit": {"type": "boolean"},
    "resources": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["url"],
        "properties": {
          "title": {"type": "string"},
          "url": {"type": "string", "minLength": 1},
          "kind": {"type": "string"}
        }
      }
    },
    "fields": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "type": {"type": "string", "minLength": 1},
          "label": {"type": "string"},
          "required": {"type": "boolean"},
          "placeholder": {"type": "string"},
          "description": {"type": "string"},
          "options": {"type": "array", "items": {"type": "string"}},
          "min": {"type": "number"},
          "max": {"type": "number"},
          "step": {"type": "number", "exclusiveMinimum": 0},
          "external_section_ref": {"type": "string"}
        }
      }
    }
  }
}`

var documentSchemaLoader = gojsonschema.NewStringLoader(documentSchema)

// Validate checks a decoded document against the module document schema.
// raw is the generic form produced by a YAML or JSON decoder.
func Validate(raw any) error {
	result, err := gojsonschema.Validate(documentSchemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("validating module document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid module document: %s", strings.Join(msgs, "; "))
}

// checkNames rejects documents whose field names collide.
func checkNames(fields []FieldDefinition) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name] {
			return fmt.Errorf("duplicate field name %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}
