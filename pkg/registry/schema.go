// pkg/registry/schema.go
package registry

import "encoding/json"

// ActivityRegistry describes the job types this service can work on.
type ActivityRegistry struct {
	Version    string     `json:"version"`
	Activities []Activity `json:"activities"`
}

// Activity is one BPMN service task backed by a worker.
type Activity struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"displayName"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	TaskType    string          `json:"taskType"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Outputs     []string        `json:"outputs"`
	ErrorCodes  []string        `json:"errorCodes"`
	Tags        []string        `json:"tags,omitempty"`
}
