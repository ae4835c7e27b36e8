package compaction

// Config holds configuration for transcript compaction.
type Config struct {
	// Enabled turns threshold-driven compaction on. Emergency compaction
	// after a context-length failure runs regardless.
	Enabled bool `json:"enabled" mapstructure:"enabled" yaml:"enabled"`

	// MaxContextTokens is the context budget the estimate is compared to.
	MaxContextTokens int `json:"max_context_tokens" mapstructure:"max_context_tokens" yaml:"max_context_tokens"`

	// TriggerThreshold is the fraction of MaxContextTokens that triggers compaction.
	TriggerThreshold float64 `json:"trigger_threshold" mapstructure:"trigger_threshold" yaml:"trigger_threshold"`

	// KeepRecentCount is the number of recent messages kept verbatim.
	KeepRecentCount int `json:"keep_recent_count" mapstructure:"keep_recent_count" yaml:"keep_recent_count"`

	// SummaryMaxTokens bounds each summary reply.
	SummaryMaxTokens int `json:"summary_max_tokens" mapstructure:"summary_max_tokens" yaml:"summary_max_tokens"`

	// ChunkMaxTokens bounds the history sent per summarization call.
	ChunkMaxTokens int `json:"chunk_max_tokens" mapstructure:"chunk_max_tokens" yaml:"chunk_max_tokens"`

	// Model used for summaries; empty means the generation model.
	Model string `json:"model,omitempty" mapstructure:"model" yaml:"model,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		MaxContextTokens: 100000,
		TriggerThreshold: 0.8,
		KeepRecentCount:  10,
		SummaryMaxTokens: 500,
		ChunkMaxTokens:   4000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = d.MaxContextTokens
	}
	if c.TriggerThreshold <= 0 || c.TriggerThreshold > 1 {
		c.TriggerThreshold = d.TriggerThreshold
	}
	if c.KeepRecentCount <= 0 {
		c.KeepRecentCount = d.KeepRecentCount
	}
	if c.SummaryMaxTokens <= 0 {
		c.SummaryMaxTokens = d.SummaryMaxTokens
	}
	if c.ChunkMaxTokens <= 0 {
		c.ChunkMaxTokens = d.ChunkMaxTokens
	}
	return c
}
