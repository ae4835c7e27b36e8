package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"cairn/internal/compaction"
	"cairn/internal/permission"
	"cairn/internal/provider/ollama"
	"cairn/internal/tracing"
	"cairn/pkg/logger"
)

// Config is the root configuration.
type Config struct {
	Version    string            `mapstructure:"version" yaml:"version"`
	Log        logger.LogConfig  `mapstructure:"log" yaml:"log"`
	Agent      AgentConfig       `mapstructure:"agent" yaml:"agent"`
	Provider   ProviderConfig    `mapstructure:"provider" yaml:"provider"`
	Checkpoint CheckpointConfig  `mapstructure:"checkpoint" yaml:"checkpoint"`
	Compaction compaction.Config `mapstructure:"compaction" yaml:"compaction"`
	Hooks      []HookConfig      `mapstructure:"hooks" yaml:"hooks,omitempty"`
	JSVM       JSVMConfig        `mapstructure:"jsvm" yaml:"jsvm"`
	Server     ServerConfig      `mapstructure:"server" yaml:"server"`
	Metrics    MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Tracing    tracing.Config    `mapstructure:"tracing" yaml:"tracing"`
}

// AgentConfig holds the agent defaults.
type AgentConfig struct {
	Model                  string        `mapstructure:"model" yaml:"model"`
	FallbackModel          string        `mapstructure:"fallback_model" yaml:"fallback_model,omitempty"`
	SystemPrompt           string        `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
	Temperature            float64       `mapstructure:"temperature" yaml:"temperature,omitempty"`
	MaxTokens              int           `mapstructure:"max_tokens" yaml:"max_tokens,omitempty"`
	MaxSteps               int           `mapstructure:"max_steps" yaml:"max_steps"`
	MaxRetries             int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelay             time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	PermissionMode         string        `mapstructure:"permission_mode" yaml:"permission_mode"`
	AllowedTools           []string      `mapstructure:"allowed_tools" yaml:"allowed_tools,omitempty"`
	DisallowedTools        []string      `mapstructure:"disallowed_tools" yaml:"disallowed_tools,omitempty"`
	// ApprovalTools pause for an external approval in the default mode.
	ApprovalTools          []string      `mapstructure:"approval_tools" yaml:"approval_tools,omitempty"`
	WaitForBackgroundTasks bool          `mapstructure:"wait_for_background_tasks" yaml:"wait_for_background_tasks"`
	DisableCoreTools       bool          `mapstructure:"disable_core_tools" yaml:"disable_core_tools,omitempty"`
	HookTimeout            time.Duration `mapstructure:"hook_timeout" yaml:"hook_timeout"`
	LogHooks               bool          `mapstructure:"log_hooks" yaml:"log_hooks,omitempty"`
	MaxToolResultBytes     int           `mapstructure:"max_tool_result_bytes" yaml:"max_tool_result_bytes,omitempty"`
}

// ToolFilter returns the allow and deny lists as a permission filter.
func (c AgentConfig) ToolFilter() permission.Filter {
	return permission.Filter{Allow: c.AllowedTools, Deny: c.DisallowedTools}
}

// ProviderConfig selects model backends. Model names of the form
// "<backend>:<model>" go to that backend, others to Default.
type ProviderConfig struct {
	Default string        `mapstructure:"default" yaml:"default"`
	Script  string        `mapstructure:"script" yaml:"script,omitempty"` // scripted backend turns file
	Ollama  ollama.Config `mapstructure:"ollama" yaml:"ollama"`
}

// Checkpoint drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// CheckpointConfig selects and configures the checkpoint store.
type CheckpointConfig struct {
	Driver   string        `mapstructure:"driver" yaml:"driver"`
	Path     string        `mapstructure:"path" yaml:"path,omitempty"`         // sqlite
	DSN      string        `mapstructure:"dsn" yaml:"dsn,omitempty"`           // postgres
	Addr     string        `mapstructure:"addr" yaml:"addr,omitempty"`         // redis
	Password string        `mapstructure:"password" yaml:"password,omitempty"` // redis
	DB       int           `mapstructure:"db" yaml:"db,omitempty"`             // redis
	Prefix   string        `mapstructure:"prefix" yaml:"prefix,omitempty"`     // redis key prefix
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl,omitempty"`           // redis key expiry

	// Retention is the age after which the janitor prunes a thread. Zero
	// disables pruning.
	Retention     time.Duration `mapstructure:"retention" yaml:"retention"`
	PruneSchedule string        `mapstructure:"prune_schedule" yaml:"prune_schedule"`
	PrunePending  bool          `mapstructure:"prune_pending" yaml:"prune_pending"`
}

// HookConfig declares a JavaScript hook handler.
type HookConfig struct {
	Event   string        `mapstructure:"event" yaml:"event"`
	Matcher string        `mapstructure:"matcher" yaml:"matcher,omitempty"`
	Path    string        `mapstructure:"path" yaml:"path"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// JSVMConfig sizes the script runtime used by hook scripts.
type JSVMConfig struct {
	PoolSize       int           `mapstructure:"pool_size" yaml:"pool_size"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen    string          `mapstructure:"listen" yaml:"listen"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig configures per-client request limiting.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int  `mapstructure:"burst" yaml:"burst"`
}

// MetricsConfig configures the Prometheus endpoint of the HTTP API.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.Agent.Model == "" {
		errs = append(errs, errors.New("agent.model is required"))
	}
	if c.Agent.PermissionMode != "" {
		if _, err := permission.ParseMode(c.Agent.PermissionMode); err != nil {
			errs = append(errs, fmt.Errorf("agent.permission_mode: %w", err))
		}
	}
	switch c.Checkpoint.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Checkpoint.DSN == "" {
			errs = append(errs, errors.New("checkpoint.dsn is required for the postgres driver"))
		}
	case DriverRedis:
		if c.Checkpoint.Addr == "" {
			errs = append(errs, errors.New("checkpoint.addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("checkpoint.driver: unknown driver %q", c.Checkpoint.Driver))
	}
	for i, h := range c.Hooks {
		if h.Event == "" || h.Path == "" {
			errs = append(errs, fmt.Errorf("hooks[%d]: event and path are required", i))
		}
	}
	return errors.Join(errs...)
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load reads the configuration. Precedence: env > file > defaults. A
// missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("CAIRN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", expandedPath, err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the last loaded configuration.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Path returns the file the configuration was loaded from.
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// Get returns any configuration value.
func Get(key string) any {
	return viper.Get(key)
}

// GetString returns a string configuration value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an integer configuration value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a boolean configuration value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// Set sets a value and persists it when a config file is in use.
func Set(key string, value any) error {
	mu.Lock()
	defer mu.Unlock()

	viper.Set(key, value)
	if configPath != "" {
		return save()
	}
	return nil
}

// Save writes the current settings to the config file.
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

// save writes the settings; callers hold mu.
func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	// 0600: the file may hold store credentials.
	return os.WriteFile(configPath, data, 0o600)
}

// SaveTo writes cfg to path.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Reset clears loaded state. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}

// SetTestConfig installs cfg as the global configuration. Tests only.
func SetTestConfig(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = cfg
}
