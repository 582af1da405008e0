// Package intent labels a question before generation: plain retrieval,
// chart request, or unsupported.
package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/queryloom/queryloom/internal/llm"
)

type Intent string

const (
	Retrieval     Intent = "retrieval"
	Visualization Intent = "visualization"
	Unsupported   Intent = "unsupported"
)

// ClassificationError marks a failed model call. It is distinct from an
// Unsupported label: the model never answered.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("intent classification failed: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// Chart vocabulary short-circuits the model call for obvious
// visualization requests.
var vizKeywords = []*regexp.Regexp{
	regexp.MustCompile(`\bplot\b`),
	regexp.MustCompile(`\bchart\b`),
	regexp.MustCompile(`\bgraph\b`),
	regexp.MustCompile(`\bvisual`),
	regexp.MustCompile(`\bscatter\b`),
	regexp.MustCompile(`\bpie\b`),
	regexp.MustCompile(`\bhistogram\b`),
}

const systemPrompt = "You classify user questions.\n" +
	"- If the question can be answered by running a read-only SQL query over the described schema, respond with exactly: retrieval\n" +
	"- If the user is asking for a chart, graph, plot or any visualization, respond with exactly: visualization\n" +
	"- Otherwise respond with exactly: unsupported\n" +
	"Return only the single word label."

type Classifier struct {
	Chat  llm.ChatClient
	Model string
}

// Classify returns the intent for a question. contextSummary is the
// rendered schema context; it grounds the "can SQL answer this" call.
// Output that maps to no known label is Unsupported, never a guess.
func (c *Classifier) Classify(ctx context.Context, question, contextSummary string) (Intent, error) {
	lowered := strings.ToLower(question)
	for _, pattern := range vizKeywords {
		if pattern.MatchString(lowered) {
			return Visualization, nil
		}
	}

	user := question
	if strings.TrimSpace(contextSummary) != "" {
		user = "Available schema:\n" + contextSummary + "\n\nQuestion:\n" + question
	}

	resp, err := c.Chat.Complete(ctx, llm.ChatRequest{
		Model: c.Model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
		Temperature: 0,
		MaxTokens:   3,
	})
	if err != nil {
		return Unsupported, &ClassificationError{Err: err}
	}

	return parseLabel(resp.Content), nil
}

func parseLabel(raw string) Intent {
	label := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(label, "visual"):
		return Visualization
	case strings.Contains(label, "retrieval"):
		return Retrieval
	default:
		return Unsupported
	}
}
