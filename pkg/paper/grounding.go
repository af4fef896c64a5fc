package paper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Quantum-369/arxiv-scribe-view/pkg/ai"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"
)

// SystemPrompt builds the grounding prompt for p. With a positive
// tokenBudget the full text is cut to that many o200k tokens. A nil paper
// yields the generic research assistant prompt.
func SystemPrompt(p *Paper, tokenBudget int) string {
	if p == nil {
		return GenericPrompt
	}

	var b strings.Builder
	fmt.Fprintf(&b, GroundingPrompt,
		p.Title,
		strings.Join(p.Authors, ", "),
		p.Category,
		p.PublishedDate,
		p.Abstract,
	)

	if p.HasFullText() {
		text, cut := ai.TruncateTokens(p.FullText, tokenBudget)
		fmt.Fprintf(&b, FullTextSection, text)
		if cut {
			logger.Debug("[Chat] full text truncated for grounding", "paper", p.ID, "budget", tokenBudget)
			b.WriteString(TruncatedNote)
		}
	} else {
		note := MetadataOnlyNote
		if p.TextExtractionError != "" {
			note = fmt.Sprintf(ExtractionFailedNote, p.TextExtractionError)
		}
		fmt.Fprintf(&b, MetadataOnlySection, note)
	}

	b.WriteString(ResponseGuidelines)
	return b.String()
}

const (
	DefaultTemperature    = 0.7
	DefaultMaxReplyTokens = 4096
)

var ErrNoQuestion = errors.New("conversation does not end with a user message")

// Assistant answers questions about a paper through a chat backend.
type Assistant struct {
	client         ai.ChatClient
	tokenBudget    int
	maxReplyTokens int
	temperature    float64
	thinking       string
}

// NewAssistantParams configures an Assistant. TokenBudget of zero sends the
// full text uncut. Thinking is passed to the backend as reasoning effort
// (openai) or think level (ollama); empty disables it.
type NewAssistantParams struct {
	Client         ai.ChatClient
	TokenBudget    int
	MaxReplyTokens int
	Temperature    float64
	Thinking       string
}

func NewAssistant(params NewAssistantParams) *Assistant {
	a := &Assistant{
		client:         params.Client,
		tokenBudget:    params.TokenBudget,
		maxReplyTokens: params.MaxReplyTokens,
		temperature:    params.Temperature,
		thinking:       params.Thinking,
	}
	if a.maxReplyTokens <= 0 {
		a.maxReplyTokens = DefaultMaxReplyTokens
	}
	if a.temperature <= 0 {
		a.temperature = DefaultTemperature
	}
	return a
}

// Reply answers the last user message of messages, grounded on p. opts are
// applied after the assistant's own settings and may override them.
func (a *Assistant) Reply(ctx context.Context, p *Paper, messages []ai.ChatMessage, opts ...ai.GenerateOption) (string, error) {
	if len(messages) == 0 || messages[len(messages)-1].Role != "user" {
		return "", ErrNoQuestion
	}

	options := []ai.GenerateOption{
		ai.WithSystemPrompts(SystemPrompt(p, a.tokenBudget)),
		ai.WithTemperature(a.temperature),
		ai.WithMaxTokens(a.maxReplyTokens),
	}
	if a.thinking != "" {
		options = append(options, ai.WithThinking(a.thinking))
	}
	options = append(options, opts...)

	reply, err := a.client.GenerateChat(ctx, messages, options...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// Usage returns the token usage the backend accumulated since the last reset.
func (a *Assistant) Usage() ai.ModelMetrics {
	return a.client.GetMetrics()
}

// ResetUsage zeroes the accumulated usage.
func (a *Assistant) ResetUsage() {
	a.client.ResetMetrics()
}
