package openai

import (
	"sync"

	"github.com/Quantum-369/arxiv-scribe-view/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// ChatOpenAIClient answers paper questions through any OpenAI compatible
// chat completions endpoint.
//
// A ChatOpenAIClient should be created using NewChatOpenAIClient.
type ChatOpenAIClient struct {
	chatModel string
	chatURL   string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient *openai.Client
}

// NewChatOpenAIClientParams defines the configuration parameters for creating
// a new ChatOpenAIClient.
//
// ChatURL may be left empty to talk to api.openai.com. MaxRetries of zero
// keeps the SDK default.
type NewChatOpenAIClientParams struct {
	ChatModel  string
	ChatURL    string
	ChatKey    string
	MaxRetries int
}

// NewChatOpenAIClient creates a ChatOpenAIClient. It returns nil when no key
// is configured.
//
// Example:
//
//	client := openai.NewChatOpenAIClient(openai.NewChatOpenAIClientParams{
//		ChatModel: "gpt-4o-mini",
//		ChatKey:   os.Getenv("AI_CHAT_KEY"),
//	})
func NewChatOpenAIClient(params NewChatOpenAIClientParams) *ChatOpenAIClient {
	chatClient := newOpenaiClient(params.ChatURL, params.ChatKey, params.MaxRetries)
	if chatClient == nil {
		return nil
	}

	return &ChatOpenAIClient{
		chatModel: params.ChatModel,
		chatURL:   params.ChatURL,

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		ChatClient: chatClient,
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
	maxRetries int,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	if maxRetries > 0 {
		options = append(options, option.WithMaxRetries(maxRetries))
	}

	client := openai.NewClient(options...)

	return &client
}
