package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cairn/internal/provider"
	"cairn/pkg/logger"
)

const name = "ollama"

// Provider talks to the Ollama chat API.
type Provider struct {
	endpoint   string
	model      string
	httpClient *http.Client
	keepAlive  string

	modelsCache []string
	modelsMu    sync.RWMutex
	modelsTime  time.Time
}

// New creates an Ollama provider. Missing fields take their defaults.
func New(cfg Config) *Provider {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.KeepAlive == "" {
		cfg.KeepAlive = DefaultKeepAlive
	}
	return &Provider{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		keepAlive:  cfg.KeepAlive,
	}
}

// Factory returns a pool factory creating one provider per model.
func Factory(cfg Config) provider.Factory {
	return func(model string) (provider.Provider, error) {
		c := cfg
		c.Model = model
		return New(c), nil
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return name
}

// Models returns the models installed on the server, cached for five minutes.
func (p *Provider) Models() []string {
	p.modelsMu.RLock()
	if time.Since(p.modelsTime) < 5*time.Minute && len(p.modelsCache) > 0 {
		models := p.modelsCache
		p.modelsMu.RUnlock()
		return models
	}
	p.modelsMu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	models, err := p.fetchModels(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to fetch ollama models, returning cached")
		p.modelsMu.RLock()
		defer p.modelsMu.RUnlock()
		return p.modelsCache
	}

	p.modelsMu.Lock()
	p.modelsCache = models
	p.modelsTime = time.Now()
	p.modelsMu.Unlock()
	return models
}

// Chat sends a chat request and returns the buffered response.
func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	body, err := p.post(ctx, "/api/chat", p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, provider.NewProviderError(provider.ErrCodeNetworkError, err.Error(), name, true)
	}
	var resp ollamaResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		logger.Error().Err(err).Str("body", string(data)).Msg("failed to parse ollama response")
		return nil, provider.NewProviderError(provider.ErrCodeUnknown, "invalid response: "+err.Error(), name, false)
	}
	if resp.Error != "" {
		return nil, classify(http.StatusOK, resp.Error)
	}
	return convertResponse(&resp), nil
}

// Stream sends a streaming chat request.
func (p *Provider) Stream(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	body, err := p.post(ctx, "/api/chat", p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}
	return ProcessStream(body), nil
}

// Ping checks that the server answers.
func (p *Provider) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/api/tags", nil)
	if err != nil {
		return provider.NewProviderError(provider.ErrCodeNetworkError, err.Error(), name, true)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return provider.NewProviderError(provider.ErrCodeServiceUnavailable, "ollama is not running or unreachable", name, true)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return provider.NewProviderError(provider.ErrCodeServiceUnavailable,
			fmt.Sprintf("ollama returned status %d", resp.StatusCode), name, true)
	}
	return nil
}

func (p *Provider) buildRequest(req provider.ChatRequest, stream bool) *ollamaRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	model = strings.TrimPrefix(model, name+":")

	out := &ollamaRequest{
		Model:     model,
		Stream:    stream,
		KeepAlive: p.keepAlive,
	}
	if req.System != "" {
		out.Messages = append(out.Messages, ollamaMessage{Role: provider.RoleSystem, Content: req.System})
	}
	for _, msg := range provider.SanitizeMessages(req.Messages) {
		om := ollamaMessage{Role: msg.Role, Content: msg.Content}
		if msg.Role == provider.RoleTool {
			om.ToolName = msg.Name
		}
		for _, tc := range msg.ToolCalls {
			var otc ollamaToolCall
			otc.ID = tc.ID
			otc.Function.Name = tc.Name
			otc.Function.Arguments = json.RawMessage(tc.Arguments)
			if tc.Arguments == "" {
				otc.Function.Arguments = json.RawMessage(`{}`)
			}
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		out.Messages = append(out.Messages, om)
	}
	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, ollamaTool{
			Type: "function",
			Function: ollamaToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		out.Options = &ollamaOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens}
	}
	return out
}

// post sends body and returns the response body of a 200 reply. Other
// replies are converted to classified provider errors.
func (p *Provider) post(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, provider.NewProviderError(provider.ErrCodeTimeout, err.Error(), name, true)
		}
		return nil, provider.NewProviderError(provider.ErrCodeNetworkError, err.Error(), name, true)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		msg := string(raw)
		var errResp ollamaErrorResponse
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		logger.Debug().Int("status", resp.StatusCode).Str("error", msg).Msg("ollama error response")
		return nil, classify(resp.StatusCode, msg)
	}
	return resp.Body, nil
}

// classify maps an HTTP status and server message to a provider error.
func classify(status int, msg string) *provider.ProviderError {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "context length") || strings.Contains(lower, "context window"):
		return provider.NewProviderError(provider.ErrCodeContextWindowExceeded, msg, name, false)
	case status == http.StatusNotFound:
		return provider.NewProviderError(provider.ErrCodeModelNotFound, msg, name, false)
	case status == http.StatusTooManyRequests:
		return provider.NewProviderError(provider.ErrCodeRateLimited, msg, name, true)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return provider.NewProviderError(provider.ErrCodeTimeout, msg, name, true)
	case status == http.StatusServiceUnavailable || status == http.StatusBadGateway:
		return provider.NewProviderError(provider.ErrCodeServiceUnavailable, msg, name, true)
	case status == http.StatusBadRequest:
		return provider.NewProviderError(provider.ErrCodeInvalidRequest, msg, name, false)
	default:
		return provider.NewProviderError(provider.ErrCodeUnknown, fmt.Sprintf("status %d: %s", status, msg), name, false)
	}
}

func convertToolCall(tc ollamaToolCall) provider.ToolCall {
	id := tc.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	args := string(tc.Function.Arguments)
	if args == "" || args == "null" {
		args = "{}"
	}
	return provider.ToolCall{ID: id, Name: tc.Function.Name, Arguments: args}
}

func convertUsage(resp *ollamaResponse) *provider.Usage {
	if resp.PromptEvalCount == 0 && resp.EvalCount == 0 {
		return nil
	}
	return &provider.Usage{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
}

func finishReason(doneReason string, toolCalls int) string {
	switch {
	case toolCalls > 0:
		return provider.FinishReasonToolCalls
	case doneReason == "length":
		return provider.FinishReasonLength
	default:
		return provider.FinishReasonStop
	}
}

func convertResponse(resp *ollamaResponse) *provider.ChatResponse {
	out := &provider.ChatResponse{Content: resp.Message.Content, Usage: convertUsage(resp)}
	for _, tc := range resp.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, convertToolCall(tc))
	}
	out.FinishReason = finishReason(resp.DoneReason, len(out.ToolCalls))
	return out
}

func (p *Provider) fetchModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, provider.NewProviderError(provider.ErrCodeNetworkError, err.Error(), name, true)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch models: status %d", resp.StatusCode)
	}

	var list ollamaModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}
	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.Name)
	}
	return models, nil
}
