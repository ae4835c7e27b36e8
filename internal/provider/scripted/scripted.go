// Package scripted provides a deterministic Provider that replays a fixed
// sequence of turns. It backs the engine tests and the CLI's offline mode.
package scripted

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"cairn/internal/provider"
)

// ToolCall is a scripted tool call.
type ToolCall struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Arguments string `yaml:"arguments"`
}

// Failure is a scripted provider error.
type Failure struct {
	Code    provider.ErrorCode `yaml:"code"`
	Message string             `yaml:"message"`
}

// Turn configures one model reply.
type Turn struct {
	Content   string     `yaml:"content"`
	ToolCalls []ToolCall `yaml:"tool_calls"`
	Fail      *Failure   `yaml:"fail"`

	// Err takes precedence over Fail; it is only settable from Go.
	Err error `yaml:"-"`
}

// Script is the on-disk form of a scripted session.
type Script struct {
	Name  string `yaml:"name"`
	Turns []Turn `yaml:"turns"`
}

// Provider replays turns in order. It is safe for concurrent use.
type Provider struct {
	name string

	mu       sync.Mutex
	turns    []Turn
	index    int
	requests []provider.ChatRequest
}

var _ provider.Provider = (*Provider)(nil)

// New creates a scripted provider.
func New(name string, turns ...Turn) *Provider {
	if name == "" {
		name = "scripted"
	}
	return &Provider{name: name, turns: append([]Turn(nil), turns...)}
}

// Load reads a YAML script file.
func Load(path string) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	return New(s.Name, s.Turns...), nil
}

// Text is a shorthand for a plain assistant reply.
func Text(content string) Turn {
	return Turn{Content: content}
}

// Call is a shorthand for a reply requesting a single tool call.
func Call(id, name, args string) Turn {
	return Turn{ToolCalls: []ToolCall{{ID: id, Name: name, Arguments: args}}}
}

// Fail is a shorthand for a reply that fails with a typed provider error.
func Fail(code provider.ErrorCode, message string) Turn {
	return Turn{Fail: &Failure{Code: code, Message: message}}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// Models returns the models this provider answers for.
func (p *Provider) Models() []string { return []string{p.name} }

// Requests returns a copy of every request received so far.
func (p *Provider) Requests() []provider.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.ChatRequest(nil), p.requests...)
}

// Calls returns how many turns have been consumed.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

func (p *Provider) next(req provider.ChatRequest) (Turn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req.Messages = provider.CloneMessages(req.Messages)
	p.requests = append(p.requests, req)
	if p.index >= len(p.turns) {
		return Turn{}, fmt.Errorf("%w (turn %d)", provider.ErrScriptExhausted, p.index+1)
	}
	t := p.turns[p.index]
	p.index++
	switch {
	case t.Err != nil:
		return Turn{}, t.Err
	case t.Fail != nil:
		retryable := t.Fail.Code != provider.ErrCodeInvalidRequest && t.Fail.Code != provider.ErrCodeAuthFailed
		return Turn{}, provider.NewProviderError(t.Fail.Code, t.Fail.Message, p.name, retryable)
	}
	return t, nil
}

func (t Turn) response() *provider.ChatResponse {
	resp := &provider.ChatResponse{Content: t.Content, FinishReason: provider.FinishReasonStop}
	for _, c := range t.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, provider.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = provider.FinishReasonToolCalls
	}
	completion := len(strings.Fields(t.Content)) + 8*len(t.ToolCalls)
	resp.Usage = &provider.Usage{PromptTokens: 10, CompletionTokens: completion, TotalTokens: 10 + completion}
	return resp
}

// Chat returns the next scripted turn.
func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := p.next(req)
	if err != nil {
		return nil, err
	}
	return t.response(), nil
}

// Stream emits the next scripted turn word by word.
func (p *Provider) Stream(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := p.next(req)
	if err != nil {
		return nil, err
	}
	resp := t.response()

	ch := make(chan provider.ChatEvent, 16)
	go func() {
		defer close(ch)
		send := func(ev provider.ChatEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		words := strings.SplitAfter(resp.Content, " ")
		for _, w := range words {
			if w == "" {
				continue
			}
			if !send(provider.ChatEvent{Type: provider.EventTypeContent, Delta: w}) {
				return
			}
		}
		for i := range resp.ToolCalls {
			call := resp.ToolCalls[i]
			if !send(provider.ChatEvent{Type: provider.EventTypeToolCall, ToolCall: &call}) {
				return
			}
		}
		send(provider.ChatEvent{Type: provider.EventTypeDone, Usage: resp.Usage, FinishReason: resp.FinishReason})
	}()
	return ch, nil
}
