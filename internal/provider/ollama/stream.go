package ollama

import (
	"bufio"
	"encoding/json"
	"io"

	"cairn/internal/provider"
	"cairn/pkg/logger"
)

// ProcessStream turns Ollama's newline-delimited JSON stream into chat
// events. The channel is closed after a done or error event.
func ProcessStream(r io.ReadCloser) <-chan provider.ChatEvent {
	events := make(chan provider.ChatEvent)

	go func() {
		defer close(events)
		defer r.Close()

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		toolCalls := 0
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var resp ollamaResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				logger.Error().Err(err).Str("line", string(line)).Msg("failed to parse ollama stream line")
				events <- provider.ChatEvent{
					Type:  provider.EventTypeError,
					Error: provider.NewProviderError(provider.ErrCodeUnknown, "invalid stream line: "+err.Error(), name, false),
				}
				return
			}
			// Errors can arrive inline after a 200 status.
			if resp.Error != "" {
				events <- provider.ChatEvent{Type: provider.EventTypeError, Error: classify(200, resp.Error)}
				return
			}

			if resp.Message.Content != "" {
				events <- provider.ChatEvent{Type: provider.EventTypeContent, Delta: resp.Message.Content}
			}
			for _, tc := range resp.Message.ToolCalls {
				call := convertToolCall(tc)
				toolCalls++
				events <- provider.ChatEvent{Type: provider.EventTypeToolCall, ToolCall: &call}
			}

			if resp.Done {
				events <- provider.ChatEvent{
					Type:         provider.EventTypeDone,
					Usage:        convertUsage(&resp),
					FinishReason: finishReason(resp.DoneReason, toolCalls),
				}
				return
			}
		}

		err := scanner.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		events <- provider.ChatEvent{
			Type:  provider.EventTypeError,
			Error: provider.NewProviderError(provider.ErrCodeNetworkError, "stream ended early: "+err.Error(), name, true),
		}
	}()

	return events
}
