package intent

import (
	"github.com/xeipuuv/gojsonschema"
)

// schemaJSON describes the reply shape the prompt asks for. Types are loose
// where models are known to drift (ids as strings, tags as lists); Decode
// coerces those.
const schemaJSON = `{
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": {"type": "string"},
    "taskId": {"type": ["integer", "string", "null"]},
    "projectId": {"type": ["integer", "string", "null"]},
    "projectName": {"type": ["string", "null"]},
    "title": {"type": ["string", "null"]},
    "description": {"type": ["string", "null"]},
    "status": {"type": ["string", "null"]},
    "priority": {"type": ["string", "null"]},
    "tags": {"type": ["string", "array", "null"]},
    "startDate": {"type": ["string", "null"]},
    "dueDate": {"type": ["string", "null"]},
    "assignee": {"type": ["string", "null"]},
    "assigneeUserId": {"type": ["integer", "string", "null"]},
    "updatedFields": {"type": ["object", "null"]},
    "deleteReason": {"type": ["string", "null"]},
    "needsClarification": {"type": ["boolean", "string", "null"]},
    "followUpQuestion": {"type": ["string", "null"]}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(schemaJSON)

// Validate checks obj against the intent schema and returns the problems
// found. Problems are advisory: Decode still accepts the object.
func Validate(obj string) []string {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(obj))
	if err != nil {
		return []string{err.Error()}
	}
	if result.Valid() {
		return nil
	}
	issues := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		issues = append(issues, desc.String())
	}
	return issues
}
