package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cairn/internal/provider"
)

func serve(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return New(Config{Endpoint: server.URL, Model: "test-model", Timeout: 10 * time.Second})
}

func TestProvider_Name(t *testing.T) {
	assert.Equal(t, "ollama", New(DefaultConfig()).Name())
}

func TestProvider_Chat(t *testing.T) {
	p := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "Hello", req.Messages[1].Content)

		json.NewEncoder(w).Encode(ollamaResponse{
			Message:         ollamaMessage{Role: "assistant", Content: "Hi!"},
			Done:            true,
			PromptEvalCount: 5,
			EvalCount:       10,
		})
	})

	resp, err := p.Chat(context.Background(), provider.ChatRequest{
		System:   "be brief",
		Messages: []provider.Message{{Role: provider.RoleUser, Content: "Hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi!", resp.Content)
	assert.Equal(t, provider.FinishReasonStop, resp.FinishReason)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestProvider_ChatWithTools(t *testing.T) {
	p := serve(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Tools, 1)
		assert.Equal(t, "function", req.Tools[0].Type)
		assert.Equal(t, "get_weather", req.Tools[0].Function.Name)

		// Prior tool calls are sent back as objects with the tool name on results.
		require.Len(t, req.Messages, 3)
		assert.JSONEq(t, `{"city":"Paris"}`, string(req.Messages[1].ToolCalls[0].Function.Arguments))
		assert.Equal(t, "get_weather", req.Messages[2].ToolName)

		w.Write([]byte(`{"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_9","function":{"name":"get_weather","arguments":{"city":"NYC"}}}]},"done":true}`))
	})

	resp, err := p.Chat(context.Background(), provider.ChatRequest{
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: "weather?"},
			{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{{ID: "c1", Name: "get_weather", Arguments: `{"city":"Paris"}`}}},
			{Role: provider.RoleTool, Content: "sunny", ToolCallID: "c1", Name: "get_weather"},
		},
		Tools: []provider.Tool{{Name: "get_weather", Parameters: json.RawMessage(`{"type":"object"}`)}},
	})
	require.NoError(t, err)
	assert.Equal(t, provider.FinishReasonToolCalls, resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_9", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"city":"NYC"}`, resp.ToolCalls[0].Arguments)
}

func TestProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   provider.Class
	}{
		{http.StatusNotFound, `{"error":"model 'x' not found"}`, provider.ClassModelUnavailable},
		{http.StatusTooManyRequests, `{"error":"busy"}`, provider.ClassRateLimit},
		{http.StatusServiceUnavailable, `overloaded`, provider.ClassModelUnavailable},
		{http.StatusGatewayTimeout, ``, provider.ClassTimeout},
		{http.StatusBadRequest, `{"error":"input exceeds context length"}`, provider.ClassContextLength},
		{http.StatusInternalServerError, `{"error":"boom"}`, provider.ClassUnknown},
	}
	for _, tt := range tests {
		p := serve(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(tt.body))
		})
		_, err := p.Chat(context.Background(), provider.ChatRequest{Messages: []provider.Message{{Role: "user", Content: "x"}}})
		require.Error(t, err, tt.status)
		assert.Equal(t, tt.want, provider.Classify(err), tt.status)

		_, err = p.Stream(context.Background(), provider.ChatRequest{Messages: []provider.Message{{Role: "user", Content: "x"}}})
		assert.Equal(t, tt.want, provider.Classify(err), tt.status)
	}
}

func TestProvider_Stream(t *testing.T) {
	p := serve(t, func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		w.Write([]byte("{\"message\":{\"role\":\"assistant\",\"content\":\"he\"},\"done\":false}\n{\"message\":{\"role\":\"assistant\",\"content\":\"y\"},\"done\":true}\n"))
	})
	events, err := p.Stream(context.Background(), provider.ChatRequest{Model: "ollama:test-model", Messages: []provider.Message{{Role: "user", Content: "x"}}})
	require.NoError(t, err)
	resp, err := provider.Collect(events, nil)
	require.NoError(t, err)
	assert.Equal(t, "hey", resp.Content)
}

func TestProvider_ModelsAndPing(t *testing.T) {
	p := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"llama3.2"},{"name":"qwen2.5"}]}`))
	})
	assert.Equal(t, []string{"llama3.2", "qwen2.5"}, p.Models())
	assert.NoError(t, p.Ping(context.Background()))
}

func TestProvider_ConnectionFailed(t *testing.T) {
	p := New(Config{Endpoint: "http://127.0.0.1:1", Timeout: time.Second})
	_, err := p.Chat(context.Background(), provider.ChatRequest{Messages: []provider.Message{{Role: "user", Content: "x"}}})
	require.Error(t, err)
	assert.Equal(t, provider.ClassModelUnavailable, provider.Classify(err))
	assert.Error(t, p.Ping(context.Background()))
	assert.Empty(t, p.Models())
}

func TestBuildRequest(t *testing.T) {
	p := New(Config{Model: "default-model", KeepAlive: "1m"})
	req := p.buildRequest(provider.ChatRequest{
		Messages: []provider.Message{
			{Role: provider.RoleUser, Content: "x"},
			{Role: provider.RoleAssistant, ToolCalls: []provider.ToolCall{{ID: "c1", Name: "t", Arguments: `{"broken`}}},
			{Role: provider.RoleTool, Content: "r", ToolCallID: "c1"},
		},
		Temperature: 0.2,
		MaxTokens:   64,
	}, true)

	assert.Equal(t, "default-model", req.Model)
	assert.Equal(t, "1m", req.KeepAlive)
	// Broken tool call pairs are dropped before translation.
	require.Len(t, req.Messages, 1)
	require.NotNil(t, req.Options)
	assert.Equal(t, 64, req.Options.NumPredict)
}

func TestFactoryPinsModel(t *testing.T) {
	prov, err := Factory(DefaultConfig())("qwen2.5")
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5", prov.(*Provider).model)
}
