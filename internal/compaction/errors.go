// Package compaction shrinks a transcript that approaches the model's
// context window by summarizing older messages.
package compaction

import "errors"

// Compaction errors.
var (
	// ErrSummaryFailed indicates that summary generation failed.
	ErrSummaryFailed = errors.New("compaction: summary generation failed")

	// ErrMessagesTooShort indicates that there are not enough messages to compact.
	ErrMessagesTooShort = errors.New("compaction: not enough messages to compact")
)
