// Package provider abstracts the LLM APIs used to classify and summarize
// tickets.
package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/triagekit/triage/pkg/protocol"
)

// Provider is the abstraction over LLM APIs.
type Provider interface {
	Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error)
	Name() string
}

// Config selects and configures a provider.
type Config struct {
	Type    string // "anthropic" or "openai" (default)
	APIKey  string
	BaseURL string
	Model   string
}

// New builds the provider named by cfg.Type.
func New(cfg Config) (Provider, error) {
	switch cfg.Type {
	case "anthropic":
		var opts []AnthropicOption
		if cfg.BaseURL != "" {
			opts = append(opts, WithAnthropicBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, WithAnthropicModel(cfg.Model))
		}
		return NewAnthropic(cfg.APIKey, opts...), nil
	case "openai", "":
		var opts []OpenAIOption
		if cfg.BaseURL != "" {
			opts = append(opts, WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, WithModel(cfg.Model))
		}
		return NewOpenAI(cfg.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("provider: unknown type %q", cfg.Type)
	}
}

// Complete sends a single-turn prompt and returns the text reply.
func Complete(ctx context.Context, p Provider, system, prompt string) (string, error) {
	return complete(ctx, p, protocol.ChatRequest{System: system}, prompt)
}

// CompleteJSON is Complete with the provider's JSON reply mode enabled.
func CompleteJSON(ctx context.Context, p Provider, system, prompt string) (string, error) {
	return complete(ctx, p, protocol.ChatRequest{System: system, JSON: true}, prompt)
}

func complete(ctx context.Context, p Provider, req protocol.ChatRequest, prompt string) (string, error) {
	req.Messages = []protocol.ChatMessage{{Role: "user", Content: prompt}}
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

var fenceRe = regexp.MustCompile("(?s)```([A-Za-z]*)[ \t]*\n(.*?)\n?```")

// ExtractFenced returns the body of the first fenced block tagged lang. When
// no block carries that tag, the first untagged block is used, and when the
// reply has no fences at all the trimmed reply is returned.
func ExtractFenced(reply, lang string) string {
	matches := fenceRe.FindAllStringSubmatch(reply, -1)
	for _, m := range matches {
		if strings.EqualFold(m[1], lang) {
			return strings.TrimSpace(m[2])
		}
	}
	for _, m := range matches {
		if m[1] == "" {
			return strings.TrimSpace(m[2])
		}
	}
	if len(matches) > 0 {
		return strings.TrimSpace(matches[0][2])
	}
	return strings.TrimSpace(reply)
}
