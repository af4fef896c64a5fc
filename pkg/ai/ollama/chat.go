package ollama

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Quantum-369/arxiv-scribe-view/pkg/ai"

	"github.com/ollama/ollama/api"
)

const (
	defaultContext = 4096
	// replyReserve leaves room for the answer on top of the prompt.
	replyReserve = 1024
)

// GenerateChat sends a multi-turn chat conversation to the model and
// returns the assistant's reply as plain text. Requests beyond
// MaxConcurrentRequests wait for a free slot.
func (c *ChatOllamaClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.GenerateOptions{
		Model:         c.chatModel,
		SystemPrompts: []string{},
		Temperature:   0.7,
		Thinking:      "",
	}
	for _, o := range opts {
		o(&options)
	}

	msgs := make([]api.Message, 0, len(options.SystemPrompts)+len(messages))
	for _, sys := range options.SystemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sys})
	}
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		msgs = append(msgs, api.Message{Role: role, Content: m.Message})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.MaxTokens > 0 {
		req.Options["num_predict"] = options.MaxTokens
	}

	if options.Thinking != "" {
		// "true"/"false" toggle thinking, anything else is a level
		var think any = options.Thinking
		if on, err := strconv.ParseBool(options.Thinking); err == nil {
			think = on
		}
		req.Think = &api.ThinkValue{
			Value: think,
		}
	}

	if numCtx := c.contextWindow(msgs); numCtx > defaultContext {
		req.Options["num_ctx"] = numCtx
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.Client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}

	metrics := ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	}
	c.modifyMetrics(metrics)

	return final.Message.Content, nil
}

func (c *ChatOllamaClient) contextWindow(msgs []api.Message) int {
	if c.contextTokens > 0 {
		return c.contextTokens
	}
	tokens := replyReserve
	for _, m := range msgs {
		tokens += ai.CountTokens(m.Content)
	}
	return tokens
}
