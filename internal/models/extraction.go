// internal/models/extraction.go
package models

// PatternConfidence is reported for every rule-based match. It is a fixed
// signal, not a calibrated probability.
const PatternConfidence = 0.8

// IntentExtraction is the result of classifying one question.
type IntentExtraction struct {
	Intent     Intent  `json:"intent"`
	Parameters Params  `json:"parameters"`
	Confidence float64 `json:"confidence"`
}

// UnknownExtraction is the terminal "not understood" result.
func UnknownExtraction() IntentExtraction {
	return IntentExtraction{
		Intent:     IntentUnknown,
		Parameters: Params{},
		Confidence: 0.0,
	}
}

func (e IntentExtraction) IsUnknown() bool {
	return e.Intent == IntentUnknown
}

// Row is one result row keyed by column name.
type Row map[string]interface{}

// ResultSet is the outcome of one executed plan. Columns keeps the select
// order, which Row alone cannot.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}
