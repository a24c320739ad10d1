package classifyintent

type Input struct {
	Question string                 `json:"question"`
	Context  map[string]interface{} `json:"context"`
}

type Output struct {
	Intent     string                 `json:"intent"`
	Parameters map[string]interface{} `json:"parameters"`
	Confidence float64                `json:"confidence"`
	Source     string                 `json:"classifierSource"`
}
