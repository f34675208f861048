package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/triagekit/triage/internal/provider"
	"github.com/triagekit/triage/pkg/protocol"
)

const systemPrompt = "You are a support operations analyst. You triage customer support tickets precisely and answer only in the requested format."

const classifyPrompt = `Analyze this support ticket and provide categorization:

Ticket: Title: %s | Description: %s

For this ticket, provide category (billing/bug/feature_request/authentication/other), priority (high/medium/low), and brief notes.
Respond with a valid JSON object inside a ` + "```json" + ` code block, for example:
{"category": "billing", "priority": "high", "notes": "Payment processing issue"}`

const summaryPrompt = `Analyze the following support tickets and provide a concise summary in markdown format.

TICKETS:
%s

INSTRUCTIONS:
- Identify common patterns and trends across tickets
- Highlight the most critical issues by priority and frequency
- Keep the summary under 200 words
- Format your response as clean markdown within a code block:

` + "```md" + `
## Ticket Analysis Summary

**Key Issues:**
- [Key issues as bullets with supporting figures]
- [The most common issues in detail]
` + "```"

func classifyWithLLM(ctx context.Context, p provider.Provider, t protocol.Ticket) (Classification, error) {
	reply, err := provider.CompleteJSON(ctx, p, systemPrompt, fmt.Sprintf(classifyPrompt, t.Title, t.Description))
	if err != nil {
		return Classification{}, err
	}
	return parseClassification(reply)
}

func parseClassification(reply string) (Classification, error) {
	var raw struct {
		Category string `json:"category"`
		Priority string `json:"priority"`
		Notes    string `json:"notes"`
	}
	body := provider.ExtractFenced(reply, "json")
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Classification{}, fmt.Errorf("decode classification: %w", err)
	}

	category := strings.ToLower(strings.TrimSpace(raw.Category))
	if !validCategory(category) {
		return Classification{}, fmt.Errorf("unknown category %q", raw.Category)
	}
	prio, ok := protocol.ParsePriority(raw.Priority)
	if !ok {
		return Classification{}, fmt.Errorf("unknown priority %q", raw.Priority)
	}
	return Classification{Category: category, Priority: prio, Notes: strings.TrimSpace(raw.Notes)}, nil
}

func validCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

func summarizeWithLLM(ctx context.Context, p provider.Provider, tickets []protocol.Ticket) (string, error) {
	lines := make([]string, len(tickets))
	for i, t := range tickets {
		lines[i] = fmt.Sprintf("Ticket %d: Title: %s | Description: %s", i+1, t.Title, t.Description)
	}
	reply, err := provider.Complete(ctx, p, systemPrompt, fmt.Sprintf(summaryPrompt, strings.Join(lines, "\n")))
	if err != nil {
		return "", err
	}
	summary := provider.ExtractFenced(reply, "md")
	if summary == "" {
		return "", fmt.Errorf("empty summary")
	}
	return summary, nil
}
