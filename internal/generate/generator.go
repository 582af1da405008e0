// Package generate produces SQL (and, for visualization intent, a chart
// spec) from a question and its retrieved schema context.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/queryloom/queryloom/internal/intent"
	"github.com/queryloom/queryloom/internal/llm"
	"github.com/queryloom/queryloom/internal/schema"
	"github.com/queryloom/queryloom/internal/viz"
)

// Query is one generation attempt. Repair replaces it wholesale.
type Query struct {
	SQL   string
	Chart *viz.ChartSpec
}

// Failure is the structured reason that defeated the previous attempt.
// Only the single most recent failure is carried forward, to bound
// prompt growth.
type Failure struct {
	Stage  string
	Reason string
	SQL    string
}

type Input struct {
	Question string
	Context  schema.Context
	Allowed  schema.AllowedObjects
	Intent   intent.Intent
	RowLimit int
	Failure  *Failure
}

type Generator interface {
	Generate(ctx context.Context, in Input) (Query, error)
}

type LLMGenerator struct {
	Chat        llm.ChatClient
	Model       string
	Temperature float64
}

func (g *LLMGenerator) Generate(ctx context.Context, in Input) (Query, error) {
	if in.Intent == intent.Visualization {
		return g.generateVisualization(ctx, in)
	}
	return g.generateRetrieval(ctx, in)
}

func (g *LLMGenerator) generateRetrieval(ctx context.Context, in Input) (Query, error) {
	system := retrievalSystemPrompt(in)

	resp, err := g.Chat.Complete(ctx, llm.ChatRequest{
		Model: g.Model,
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: userPrompt(in)},
		},
		Temperature: g.Temperature,
	})
	if err != nil {
		return Query{}, fmt.Errorf("generate sql: %w", err)
	}

	sql := llm.StripMarkdownFence(resp.Content)
	if strings.TrimSpace(sql) == "" {
		return Query{}, fmt.Errorf("model returned empty SQL")
	}
	return Query{SQL: sql}, nil
}

func (g *LLMGenerator) generateVisualization(ctx context.Context, in Input) (Query, error) {
	system := visualizationSystemPrompt(in)

	resp, err := g.Chat.Complete(ctx, llm.ChatRequest{
		Model: g.Model,
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: userPrompt(in)},
		},
		Temperature: g.Temperature,
	})
	if err != nil {
		return Query{}, fmt.Errorf("generate visualization plan: %w", err)
	}

	content := llm.StripMarkdownFence(resp.Content)
	var plan struct {
		SQL   string        `json:"sql"`
		Chart viz.ChartSpec `json:"chart"`
	}
	if err := json.Unmarshal([]byte(content), &plan); err != nil {
		return Query{}, fmt.Errorf("decode visualization plan: %w", err)
	}
	if strings.TrimSpace(plan.SQL) == "" {
		return Query{}, fmt.Errorf("visualization plan missing sql")
	}
	if plan.Chart.Type == "" || plan.Chart.X == "" {
		return Query{}, fmt.Errorf("visualization plan missing chart mapping")
	}
	chart := plan.Chart
	return Query{SQL: plan.SQL, Chart: &chart}, nil
}

func retrievalSystemPrompt(in Input) string {
	allowed := strings.Join(in.Allowed.Tables(), ", ")
	if allowed == "" {
		allowed = "(none retrieved; no object is permitted)"
	}

	var b strings.Builder
	b.WriteString("You are an expert PostgreSQL query generator.\n\n")
	b.WriteString("You MUST follow these rules:\n")
	fmt.Fprintf(&b, "1. Only query the allowed tables/views: %s\n", allowed)
	b.WriteString("2. Only generate a single read-only SELECT statement.\n")
	b.WriteString("3. Use PostgreSQL syntax.\n")
	b.WriteString("4. Use explicit WHERE, GROUP BY, ORDER BY clauses as needed.\n")
	fmt.Fprintf(&b, "5. Always include an explicit LIMIT of at most %d rows.\n", in.RowLimit)
	b.WriteString("6. Do NOT modify data (no INSERT, UPDATE, DELETE, CREATE, DROP, etc.).\n")
	b.WriteString("7. Respond with ONLY the SQL query. No explanations, comments, or markdown.\n\n")
	b.WriteString("Schema context (vector retrieval only):\n")
	if text := in.Context.PromptText(); text != "" {
		b.WriteString(text)
	} else {
		b.WriteString("None retrieved.")
	}
	return b.String()
}

func visualizationSystemPrompt(in Input) string {
	allowed := strings.Join(in.Allowed.Tables(), ", ")
	if allowed == "" {
		allowed = "(none retrieved; no object is permitted)"
	}

	var b strings.Builder
	b.WriteString("You are a data visualization assistant. Given a user question, return JSON with two keys:\n")
	b.WriteString(`- "sql": a safe read-only SELECT that answers the question` + "\n")
	b.WriteString(`- "chart": an object with keys "type" (one of ["bar","line","scatter","pie"]), "x", "y" (not needed for pie) and "title"` + "\n\n")
	b.WriteString("Rules:\n")
	fmt.Fprintf(&b, "- Only query the allowed tables/views: %s\n", allowed)
	b.WriteString("- Only SELECT; no DDL/DML.\n")
	fmt.Fprintf(&b, "- Keep result sets small; include a LIMIT of at most %d.\n", in.RowLimit)
	b.WriteString("- Respond with ONLY the JSON object.\n\n")
	b.WriteString("Schema context (vector retrieval only):\n")
	if text := in.Context.PromptText(); text != "" {
		b.WriteString(text)
	} else {
		b.WriteString("None retrieved.")
	}
	return b.String()
}

func userPrompt(in Input) string {
	if in.Failure == nil {
		return in.Question
	}
	return fmt.Sprintf(
		"Question: %s\nPrevious SQL: %s\nIt failed during %s with: %s\nReturn a corrected query that avoids this failure.",
		in.Question, in.Failure.SQL, in.Failure.Stage, in.Failure.Reason,
	)
}
