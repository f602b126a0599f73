package docstore

import (
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// documentSchemaJSON describes the wire format: a bare array of tasks.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "description", "done"],
    "properties": {
      "id": {"type": "string"},
      "description": {"type": "string"},
      "done": {"type": "boolean"}
    }
  }
}`

var documentSchema = jsonschema.MustCompileString("tasks.schema.json", documentSchemaJSON)
