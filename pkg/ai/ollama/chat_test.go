package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Quantum-369/arxiv-scribe-view/pkg/ai"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Options map[string]any  `json:"options"`
	Think   json.RawMessage `json:"think"`
}

func newTestServer(t *testing.T, got *chatRequest, auth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		*auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","created_at":"2024-01-01T00:00:00Z",` +
			`"message":{"role":"assistant","content":"the answer"},"done":true,` +
			`"total_duration":2000000000,"prompt_eval_count":30,"eval_count":10}` + "\n"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateChat(t *testing.T) {
	var got chatRequest
	var auth string
	srv := newTestServer(t, &got, &auth)

	client, err := NewChatOllamaClient(NewChatOllamaClientParams{
		ChatModel:     "llama3",
		ContextTokens: 8192,
		BaseURL:       srv.URL,
		ApiKey:        "secret",
	})
	if err != nil {
		t.Fatalf("NewChatOllamaClient() error = %v", err)
	}

	reply, err := client.GenerateChat(context.Background(),
		[]ai.ChatMessage{
			{Role: "user", Message: "hi"},
			{Role: "assistant", Message: "hello"},
			{Role: "user", Message: "what is it about?"},
		},
		ai.WithSystemPrompts("grounding"),
		ai.WithTemperature(0.5),
	)
	if err != nil {
		t.Fatalf("GenerateChat() error = %v", err)
	}
	if reply != "the answer" {
		t.Fatalf("reply = %q", reply)
	}
	if auth != "Bearer secret" {
		t.Fatalf("Authorization = %q", auth)
	}
	if got.Model != "llama3" {
		t.Fatalf("model = %q", got.Model)
	}
	if len(got.Messages) != 4 || got.Messages[0].Role != "system" || got.Messages[0].Content != "grounding" {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if got.Messages[3].Content != "what is it about?" {
		t.Fatalf("last message = %+v", got.Messages[3])
	}
	if got.Options["num_ctx"] != float64(8192) {
		t.Fatalf("num_ctx = %v", got.Options["num_ctx"])
	}
	if got.Options["temperature"] != 0.5 {
		t.Fatalf("temperature = %v", got.Options["temperature"])
	}

	m := client.GetMetrics()
	if m.InputTokens != 30 || m.OutputTokens != 10 || m.TotalTokens != 40 || m.DurationMs != 2000 {
		t.Fatalf("metrics = %+v", m)
	}
	if m.TokenPerSecond != 20 {
		t.Fatalf("tokens/s = %v", m.TokenPerSecond)
	}
	client.ResetMetrics()
	if client.GetMetrics() != (ai.ModelMetrics{}) {
		t.Fatalf("metrics not reset")
	}
}

func TestGenerateChatSmallContext(t *testing.T) {
	var got chatRequest
	var auth string
	srv := newTestServer(t, &got, &auth)

	client, err := NewChatOllamaClient(NewChatOllamaClientParams{
		ChatModel:     "llama3",
		ContextTokens: 2048,
		BaseURL:       srv.URL,
	})
	if err != nil {
		t.Fatalf("NewChatOllamaClient() error = %v", err)
	}
	if _, err := client.GenerateChat(context.Background(), []ai.ChatMessage{{Role: "user", Message: "hi"}}); err != nil {
		t.Fatalf("GenerateChat() error = %v", err)
	}
	if _, ok := got.Options["num_ctx"]; ok {
		t.Fatalf("num_ctx set for a small conversation: %v", got.Options)
	}
	if auth != "" {
		t.Fatalf("Authorization sent without key: %q", auth)
	}
}

func TestGenerateChatCancelledWhileQueued(t *testing.T) {
	var got chatRequest
	var auth string
	srv := newTestServer(t, &got, &auth)

	client, err := NewChatOllamaClient(NewChatOllamaClientParams{
		ChatModel:     "llama3",
		ContextTokens: 2048,
		BaseURL:       srv.URL,
	})
	if err != nil {
		t.Fatalf("NewChatOllamaClient() error = %v", err)
	}
	if err := client.reqLock.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer client.reqLock.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.GenerateChat(ctx, []ai.ChatMessage{{Role: "user", Message: "hi"}}); err == nil {
		t.Fatalf("expected error for a cancelled request waiting on a slot")
	}
}

func TestGenerateChatThinking(t *testing.T) {
	tests := []struct {
		thinking string
		want     string
	}{
		{thinking: "", want: ""},
		{thinking: "true", want: "true"},
		{thinking: "false", want: "false"},
		{thinking: "high", want: `"high"`},
	}
	for _, tt := range tests {
		t.Run(tt.thinking, func(t *testing.T) {
			var got chatRequest
			var auth string
			srv := newTestServer(t, &got, &auth)

			client, err := NewChatOllamaClient(NewChatOllamaClientParams{ChatModel: "qwen3", BaseURL: srv.URL})
			if err != nil {
				t.Fatalf("NewChatOllamaClient() error = %v", err)
			}
			_, err = client.GenerateChat(context.Background(),
				[]ai.ChatMessage{{Role: "user", Message: "q"}},
				ai.WithThinking(tt.thinking),
			)
			if err != nil {
				t.Fatalf("GenerateChat() error = %v", err)
			}
			if string(got.Think) != tt.want {
				t.Fatalf("think = %s, want %s", got.Think, tt.want)
			}
		})
	}
}
