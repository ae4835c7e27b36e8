package config

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults registers the default of every configuration key.
func SetDefaults() {
	viper.SetDefault("version", "1")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")

	viper.SetDefault("agent.model", "scripted:default")
	viper.SetDefault("agent.max_steps", 25)
	viper.SetDefault("agent.max_retries", 3)
	viper.SetDefault("agent.retry_delay", 500*time.Millisecond)
	viper.SetDefault("agent.permission_mode", "default")
	viper.SetDefault("agent.wait_for_background_tasks", false)
	viper.SetDefault("agent.hook_timeout", 60*time.Second)
	viper.SetDefault("agent.log_hooks", false)

	viper.SetDefault("provider.default", "scripted")
	viper.SetDefault("provider.ollama.endpoint", "http://localhost:11434")
	viper.SetDefault("provider.ollama.timeout", 5*time.Minute)
	viper.SetDefault("provider.ollama.keep_alive", "5m")

	viper.SetDefault("checkpoint.driver", DriverSQLite)
	dataPath, err := DefaultDataPath()
	if err != nil {
		dataPath = "~/" + HomeDirName + "/" + CheckpointFile
	}
	viper.SetDefault("checkpoint.path", dataPath)
	viper.SetDefault("checkpoint.prefix", "cairn:checkpoint:")
	viper.SetDefault("checkpoint.retention", 30*24*time.Hour)
	viper.SetDefault("checkpoint.prune_schedule", "@daily")
	viper.SetDefault("checkpoint.prune_pending", false)

	viper.SetDefault("compaction.enabled", true)
	viper.SetDefault("compaction.max_context_tokens", 100000)
	viper.SetDefault("compaction.trigger_threshold", 0.8)
	viper.SetDefault("compaction.keep_recent_count", 10)
	viper.SetDefault("compaction.summary_max_tokens", 500)
	viper.SetDefault("compaction.chunk_max_tokens", 4000)

	viper.SetDefault("jsvm.pool_size", 4)
	viper.SetDefault("jsvm.timeout", 30*time.Second)
	viper.SetDefault("jsvm.idle_timeout", 5*time.Minute)
	viper.SetDefault("jsvm.acquire_timeout", 5*time.Second)

	viper.SetDefault("server.listen", "127.0.0.1:8420")
	viper.SetDefault("server.rate_limit.enabled", true)
	viper.SetDefault("server.rate_limit.requests_per_minute", 120)
	viper.SetDefault("server.rate_limit.burst", 20)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.service_name", "cairn")
	viper.SetDefault("tracing.sample_ratio", 1.0)
}
