package agent

import (
	"encoding/json"
	"errors"
	"strings"
)

// parseJSONOutput extracts a JSON value from model text, accepting an
// optional markdown code fence around it.
func parseJSONOutput(text string) (json.RawMessage, error) {
	s := strings.TrimSpace(text)
	if rest, ok := strings.CutPrefix(s, "```"); ok {
		rest = strings.TrimPrefix(rest, "json")
		if body, _, found := strings.Cut(rest, "```"); found {
			s = strings.TrimSpace(body)
		}
	}
	if s == "" {
		return nil, errors.New("empty output")
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return json.RawMessage(s), nil
}
