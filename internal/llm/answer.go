package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"erp-nlquery/internal/common/config"
	"erp-nlquery/internal/common/logger"
	"erp-nlquery/internal/models"
)

const (
	promptRowLimit   = 50
	fallbackRowLimit = 10

	NoRecordsAnswer = "No records found in the database for your query."
)

const answerSystemPrompt = `You are a factual assistant for a School ERP system.

CRITICAL RULES:
1. Use ONLY the data provided in the 'DATABASE RESULTS' section below
2. Do NOT guess, invent, or assume any information
3. If the data is insufficient, say "I don't have enough information in the ERP records to answer that"
4. Provide brief, clear answers
5. For each fact you use, include a source reference like [table_name:row_id]
6. Do NOT output any sensitive fields like passwords or private medical information
7. Format your response in a clear, professional manner
8. If there are no results, clearly state that no records were found

Your goal is to help teachers, administrators, and staff quickly find information from the database.`

// AnswerGenerator turns a result set into prose. It always returns an answer:
// when the model fails the rows are formatted directly.
type AnswerGenerator struct {
	gen         Generator
	temperature float32
	maxTokens   int32
	logger      logger.Logger
}

// NewAnswerGenerator accepts a nil Generator, in which case every answer is
// the raw formatting.
func NewAnswerGenerator(gen Generator, cfg config.GenAIConfig, log logger.Logger) *AnswerGenerator {
	return &AnswerGenerator{
		gen:         gen,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
		logger:      logger.Component(log, "answer-generator"),
	}
}

func (a *AnswerGenerator) GenerateAnswer(ctx context.Context, question string, rs *models.ResultSet, in models.Intent) string {
	if a.gen == nil {
		return FormatRaw(rs)
	}

	prompt := fmt.Sprintf("%s\n\nUSER QUESTION: %s\n\n"+
		"Please provide a clear, concise answer based ONLY on the database results above. Include source references.",
		FormatForPrompt(rs, in.String()), question)

	answer, err := a.gen.Generate(ctx, Request{
		Purpose:     "answer",
		System:      answerSystemPrompt,
		Prompt:      prompt,
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	})
	if err != nil {
		a.logger.Error("LLM generation failed", map[string]interface{}{
			"error":  err,
			"intent": in,
		})
		return FormatRaw(rs)
	}

	a.logger.Info("generated answer", map[string]interface{}{"chars": len(answer)})
	return answer
}

// FormatForPrompt renders at most the first 50 rows as the model's context.
func FormatForPrompt(rs *models.ResultSet, tableHint string) string {
	if rs.Len() == 0 {
		return "No records found in the database."
	}

	rows := rs.Rows
	if len(rows) > promptRowLimit {
		rows = rows[:promptRowLimit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "DATABASE RESULTS (%d records from %s):\n\n", len(rows), tableHint)
	writeRecords(&b, rs.Columns, rows, "-")
	if rs.Len() > promptRowLimit {
		fmt.Fprintf(&b, "\n(Note: Showing first %d of %d total records)\n", promptRowLimit, rs.Len())
	}
	return b.String()
}

// FormatRaw is the deterministic answer used without a model.
func FormatRaw(rs *models.ResultSet) string {
	if rs.Len() == 0 {
		return NoRecordsAnswer
	}

	rows := rs.Rows
	if len(rows) > fallbackRowLimit {
		rows = rows[:fallbackRowLimit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d record(s):\n\n", rs.Len())
	writeRecords(&b, rs.Columns, rows, "•")
	if rs.Len() > fallbackRowLimit {
		fmt.Fprintf(&b, "(Showing first %d of %d records)\n", fallbackRowLimit, rs.Len())
	}
	b.WriteString("\nNote: AI answer generation is temporarily unavailable. Showing raw data.")
	return b.String()
}

func writeRecords(b *strings.Builder, columns []string, rows []models.Row, bullet string) {
	for i, row := range rows {
		fmt.Fprintf(b, "Record %d:\n", i+1)
		for _, col := range columnsOf(columns, row) {
			fmt.Fprintf(b, "  %s %s: %s\n", bullet, col, formatValue(row[col]))
		}
		b.WriteString("\n")
	}
}

// columnsOf prefers the select order and falls back to sorted keys for rows
// built without it (cached or hand-made result sets).
func columnsOf(columns []string, row models.Row) []string {
	if len(columns) > 0 {
		return columns
	}
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(models.DateLayout)
		}
		return x.Format(time.RFC3339)
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
