// Package provider defines the model-calling boundary: message types, the
// Provider interface, error classification and model pools.
package provider

import "context"

// Provider is an external model-calling service.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Models returns the list of supported models.
	Models() []string

	// Chat sends a request and returns the buffered response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Stream sends a request and returns a channel of streaming events.
	// The channel is closed after a done or error event.
	Stream(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
}

// Collect drains a stream into a buffered response, invoking onEvent for
// every event. It is how buffered callers reuse a streaming-only provider.
func Collect(events <-chan ChatEvent, onEvent func(ChatEvent)) (*ChatResponse, error) {
	resp := &ChatResponse{}
	for ev := range events {
		if onEvent != nil {
			onEvent(ev)
		}
		switch ev.Type {
		case EventTypeContent:
			resp.Content += ev.Delta
		case EventTypeToolCall:
			if ev.ToolCall != nil {
				resp.ToolCalls = append(resp.ToolCalls, *ev.ToolCall)
			}
		case EventTypeDone:
			resp.Usage = ev.Usage
			resp.FinishReason = ev.FinishReason
		case EventTypeError:
			return resp, ev.Error
		}
	}
	if resp.FinishReason == "" {
		if len(resp.ToolCalls) > 0 {
			resp.FinishReason = FinishReasonToolCalls
		} else {
			resp.FinishReason = FinishReasonStop
		}
	}
	return resp, nil
}
