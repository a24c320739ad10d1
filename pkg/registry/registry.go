// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"erp-nlquery/internal/common/validation"
)

// Version of the built-in catalog.
const Version = "1.0.0"

// LoadRegistry reads a registry file, e.g. one exported for the modeler.
func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	return &reg, reg.Validate()
}

// Default returns the activities served by the nlquery workers.
func Default() *ActivityRegistry {
	return &ActivityRegistry{
		Version: Version,
		Activities: []Activity{
			{
				ID:          "classify-intent",
				DisplayName: "Classify Intent",
				Description: "Maps a question onto a supported intent and extracts its parameters",
				Category:    "nl-query",
				TaskType:    "classify-intent",
				InputSchema: json.RawMessage(validation.ClassifyInputSchema),
				Outputs:     []string{"intent", "parameters", "confidence", "classifierSource"},
				ErrorCodes:  []string{"INVALID_REQUEST"},
				Tags:        []string{"classification"},
			},
			{
				ID:          "query-postgresql",
				DisplayName: "Query ERP Database",
				Description: "Checks the caller's roles, plans the intent's SQL template and runs it read-only",
				Category:    "data-access",
				TaskType:    "query-postgresql",
				InputSchema: json.RawMessage(validation.PlanInputSchema),
				Outputs:     []string{"rows", "columns", "rowCount", "queryExecutionTime"},
				ErrorCodes: []string{
					"INVALID_REQUEST", "FORBIDDEN", "UNKNOWN_INTENT",
					"TEMPLATE_NOT_FOUND", "QUERY_EXECUTION_FAILED", "QUERY_TIMEOUT",
				},
				Tags: []string{"postgresql", "audited"},
			},
			{
				ID:          "llm-synthesis",
				DisplayName: "Synthesize Answer",
				Description: "Turns result rows into a natural language answer",
				Category:    "ai-conversation",
				TaskType:    "llm-synthesis",
				InputSchema: json.RawMessage(validation.SynthesisInputSchema),
				Outputs:     []string{"answer", "rowsCount"},
				ErrorCodes:  []string{"INVALID_REQUEST"},
				Tags:        []string{"gemini"},
			},
		},
	}
}

// Find looks an activity up by task type.
func (r *ActivityRegistry) Find(taskType string) (Activity, bool) {
	for _, a := range r.Activities {
		if a.TaskType == taskType {
			return a, true
		}
	}
	return Activity{}, false
}

// TaskTypes lists the task types in registry order.
func (r *ActivityRegistry) TaskTypes() []string {
	out := make([]string, 0, len(r.Activities))
	for _, a := range r.Activities {
		out = append(out, a.TaskType)
	}
	return out
}

// Validate checks ids and task types are present and unique and that every
// input schema is JSON.
func (r *ActivityRegistry) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(r.Activities))
	for i, a := range r.Activities {
		if a.ID == "" || a.TaskType == "" {
			errs = append(errs, fmt.Errorf("activity %d: id and taskType are required", i))
			continue
		}
		if seen[a.TaskType] {
			errs = append(errs, fmt.Errorf("activity %s: duplicate task type %q", a.ID, a.TaskType))
		}
		seen[a.TaskType] = true
		if len(a.InputSchema) > 0 && !json.Valid(a.InputSchema) {
			errs = append(errs, fmt.Errorf("activity %s: input schema is not valid JSON", a.ID))
		}
	}
	return errors.Join(errs...)
}
