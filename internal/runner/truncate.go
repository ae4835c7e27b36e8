package runner

import (
	"fmt"
	"regexp"
)

// DefaultMaxToolResultBytes caps a tool result before it enters the transcript.
const DefaultMaxToolResultBytes = 64 * 1024

var dataURIPattern = regexp.MustCompile(`data:[a-zA-Z0-9+/=\-]+;base64,[A-Za-z0-9+/=]{64,}`)

// TruncateOutput shrinks an oversized tool result: inline base64 payloads
// are dropped first, then the middle of the text is elided.
func TruncateOutput(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	s = dataURIPattern.ReplaceAllStringFunc(s, func(m string) string {
		return fmt.Sprintf("[base64 data removed, %d bytes]", len(m))
	})
	if len(s) <= limit {
		return s
	}
	keep := limit * 2 / 5
	removed := len(s) - 2*keep
	return s[:keep] + fmt.Sprintf("\n\n[... %d bytes truncated ...]\n\n", removed) + s[len(s)-keep:]
}
