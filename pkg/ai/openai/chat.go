package openai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Quantum-369/arxiv-scribe-view/pkg/ai"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

var errNoChoices = errors.New("no choices in response from model")

// GenerateChat sends a multi-turn chat conversation to the model and
// returns the assistant's reply as plain text.
//
// System prompts from the options go first, followed by the conversation.
// Messages with an unknown role are skipped.
//
// Example:
//
//	msgs := []ai.ChatMessage{
//		{Role: "user", Message: "What is the main contribution?"},
//	}
//	resp, err := client.GenerateChat(ctx, msgs, ai.WithSystemPrompts(grounding))
func (c *ChatOpenAIClient) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	client := c.ChatClient

	options := ai.GenerateOptions{
		Model:         c.chatModel,
		SystemPrompts: []string{},
		Temperature:   0.7,
		Thinking:      "",
	}
	for _, o := range opts {
		o(&options)
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(options.SystemPrompts)+len(messages))
	for _, message := range options.SystemPrompts {
		msgs = append(msgs, openai.SystemMessage(message))
	}
	for _, message := range messages {
		switch message.Role {
		case "user":
			msgs = append(msgs, openai.UserMessage(message.Message))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(message.Message))
		default:
			logger.Debug("[AI] skipping message with unknown role", "role", message.Role)
		}
	}

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    msgs,
		Temperature: openai.Float(options.Temperature),
	}
	if options.MaxTokens > 0 {
		body.MaxCompletionTokens = openai.Int(int64(options.MaxTokens))
	}

	if effort := reasoningEffort(options.Thinking); effort != "" {
		// reasoning models on api.openai.com reject any temperature but 1.0
		if c.chatURL == "" {
			body.Temperature = openai.Float(1.0)
		}
		body.ReasoningEffort = effort
	}

	start := time.Now()
	response, err := client.Chat.Completions.New(ctx, body)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	duration := time.Since(start).Milliseconds()

	metrics := ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   duration,
	}
	c.modifyMetrics(metrics)

	if len(response.Choices) == 0 {
		return "", errNoChoices
	}
	return response.Choices[0].Message.Content, nil
}

// reasoningEffort maps a thinking setting to an effort level. "true" selects
// medium and "false" disables reasoning.
func reasoningEffort(thinking string) shared.ReasoningEffort {
	if on, err := strconv.ParseBool(thinking); err == nil {
		if !on {
			return ""
		}
		return shared.ReasoningEffort("medium")
	}
	return shared.ReasoningEffort(thinking)
}
