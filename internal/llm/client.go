package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/APIExplore/api-explore-backend/internal/reporter"
)

const summarySystemPrompt = "You are a QA engineer reviewing exploratory runs of an HTTP API. " +
	"Answer in plain prose, at most one short paragraph."

// Summarizer asks a language model to describe a sequence run
type Summarizer struct {
	client Client
	logger *zap.Logger
}

// NewSummarizer creates a new summarizer
func NewSummarizer(client Client, logger *zap.Logger) *Summarizer {
	return &Summarizer{client: client, logger: logger}
}

// callLine is the compact view of one call sent to the model
type callLine struct {
	Operation     string   `json:"op"`
	Method        string   `json:"method"`
	Status        int      `json:"status,omitempty"`
	Relationships []string `json:"rel,omitempty"`
}

// Summarize implements reporter.Summarizer
func (s *Summarizer) Summarize(ctx context.Context, report *reporter.Report) (string, error) {
	prompt, err := summaryPrompt(report)
	if err != nil {
		return "", err
	}

	summary, err := s.client.Complete(ctx, summarySystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to summarize run: %w", err)
	}
	s.logger.Debug("run summarized", zap.String("sequence", report.Sequence), zap.Int("length", len(summary)))
	return strings.TrimSpace(summary), nil
}

func summaryPrompt(report *reporter.Report) (string, error) {
	calls := make([]callLine, 0, len(report.Calls))
	for _, call := range report.Calls {
		line := callLine{Operation: call.OperationID, Method: call.Method}
		if call.Response != nil {
			line.Status = call.Response.Status
		}
		for kind := range call.Relationships {
			line.Relationships = append(line.Relationships, string(kind))
		}
		sort.Strings(line.Relationships)
		calls = append(calls, line)
	}

	metrics, err := json.Marshal(report.Metrics)
	if err != nil {
		return "", err
	}
	callsJSON, err := json.Marshal(calls)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Call sequence %q against API %q.\n", report.Sequence, report.Schema)
	fmt.Fprintf(&b, "Metrics: %s\n", metrics)
	if len(calls) > 0 {
		fmt.Fprintf(&b, "Calls: %s\n", callsJSON)
	}
	if len(report.Warnings) > 0 {
		b.WriteString("Differences from the previous run:\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(&b, "- %s\n", w.Warning)
		}
	}
	b.WriteString("Summarize what happened, point out failed calls and server errors, and what changed since the previous run.")
	return b.String(), nil
}
