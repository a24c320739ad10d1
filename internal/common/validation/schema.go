package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// QueryRequestSchema describes the body of POST /api/v1/query.
const QueryRequestSchema = `{
  "type": "object",
  "properties": {
    "question": {"type": "string", "minLength": 3, "maxLength": 500},
    "context": {"type": ["object", "null"]}
  },
  "required": ["question"]
}`

// ClassifyInputSchema describes the variables of the classify-intent job.
const ClassifyInputSchema = `{
  "type": "object",
  "properties": {
    "question": {"type": "string", "minLength": 1, "maxLength": 500},
    "context": {"type": ["object", "null"]}
  },
  "required": ["question"]
}`

// PlanInputSchema describes the variables of the query-postgresql job.
const PlanInputSchema = `{
  "type": "object",
  "properties": {
    "intent": {"type": "string", "minLength": 1},
    "parameters": {"type": ["object", "null"]},
    "roles": {"type": "array", "items": {"type": "string"}, "minItems": 1}
  },
  "required": ["intent", "roles"]
}`

// SynthesisInputSchema describes the variables of the llm-synthesis job.
const SynthesisInputSchema = `{
  "type": "object",
  "properties": {
    "question": {"type": "string", "minLength": 1},
    "intent": {"type": "string"},
    "rows": {"type": ["array", "null"], "items": {"type": "object"}}
  },
  "required": ["question"]
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

var (
	schemaMu    sync.Mutex
	schemaCache = map[string]*gojsonschema.Schema{}
)

func compile(schemaJSON string) (*gojsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	if s, ok := schemaCache[schemaJSON]; ok {
		return s, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	schemaCache[schemaJSON] = s
	return s, nil
}

// ValidateInput validates a decoded document against a JSON schema.
func ValidateInput(input interface{}, schemaJSON string) (*ValidationResult, error) {
	schema, err := compile(schemaJSON)
	if err != nil {
		return nil, err
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// Error joins all messages; useful when a single error value is needed.
func (vr *ValidationResult) Error() string {
	return strings.Join(vr.GetErrorMessages(), "; ")
}
