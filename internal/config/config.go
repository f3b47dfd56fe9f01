package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"webbot/internal/survival"
)

// Config holds the runtime settings read from settings.yaml in the state
// directory. Identity lives separately in config.json.
type Config struct {
	// Turn loop
	Loop LoopConfig `yaml:"loop"`

	// Heartbeat cadence per tier
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`

	// Inference provider
	LLM LLMConfig `yaml:"llm"`

	// Blockchain RPC
	Chain ChainConfig `yaml:"chain"`

	// Tool execution limits
	Tools ToolsConfig `yaml:"tools"`

	// Self-modification policy
	SelfModify SelfModifyConfig `yaml:"self_modify"`

	// Replication
	Replication ReplicationConfig `yaml:"replication"`

	// Persistence
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LoopConfig configures the turn loop.
type LoopConfig struct {
	TurnDelay     string `yaml:"turn_delay"`
	HistoryWindow int    `yaml:"history_window"`
}

// HeartbeatConfig configures heartbeat intervals.
type HeartbeatConfig struct {
	Normal     string `yaml:"normal"`
	LowCompute string `yaml:"low_compute"`
	Critical   string `yaml:"critical"`
}

// LLMConfig configures the inference client.
type LLMConfig struct {
	Provider  string            `yaml:"provider"` // anthropic, gemini
	APIKey    string            `yaml:"api_key"`
	BaseURL   string            `yaml:"base_url"`
	Timeout   string            `yaml:"timeout"`
	MaxTokens int               `yaml:"max_tokens"`
	Models    map[string]string `yaml:"models"` // tier -> model
}

// ChainConfig configures the Solana RPC client.
type ChainConfig struct {
	// RPCURL overrides the endpoint stored in the identity when set.
	RPCURL         string `yaml:"rpc_url"`
	ConfirmTimeout string `yaml:"confirm_timeout"`
}

// ToolsConfig bounds tool execution.
type ToolsConfig struct {
	ShellTimeout   string `yaml:"shell_timeout"`
	HTTPTimeout    string `yaml:"http_timeout"`
	MaxOutputBytes int    `yaml:"max_output_bytes"`
}

// SelfModifyConfig is the self-modification policy.
type SelfModifyConfig struct {
	Limit          int      `yaml:"limit"`
	Window         string   `yaml:"window"`
	ProtectedPaths []string `yaml:"protected_paths"`
}

// ReplicationConfig configures child provisioning.
type ReplicationConfig struct {
	ChildrenDir string `yaml:"children_dir"`
}

// StorageConfig configures the sqlite database.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level   string `yaml:"level"` // debug, info, warn, error
	Console bool   `yaml:"console"`
}

// DefaultProtectedPaths are never writable through self_modify.
var DefaultProtectedPaths = []string{
	"constitution.md",
	"internal/prompt/prompt.go",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Loop: LoopConfig{
			TurnDelay:     "5s",
			HistoryWindow: 20,
		},
		Heartbeat: HeartbeatConfig{
			Normal:     "30s",
			LowCompute: "60s",
			Critical:   "120s",
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			BaseURL:   "https://api.anthropic.com/v1",
			Timeout:   "120s",
			MaxTokens: 4096,
			Models: map[string]string{
				string(survival.TierNormal):     "claude-opus-4-6",
				string(survival.TierLowCompute): "claude-sonnet-4-6",
				string(survival.TierCritical):   "claude-haiku-4-5-20251001",
			},
		},
		Chain: ChainConfig{
			ConfirmTimeout: "60s",
		},
		Tools: ToolsConfig{
			ShellTimeout:   "30s",
			HTTPTimeout:    "30s",
			MaxOutputBytes: 50000,
		},
		SelfModify: SelfModifyConfig{
			Limit:          10,
			Window:         "60m",
			ProtectedPaths: append([]string(nil), DefaultProtectedPaths...),
		},
		Replication: ReplicationConfig{},
		Storage: StorageConfig{
			DatabasePath: "state.db",
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && (c.LLM.Provider == "" || c.LLM.Provider == "anthropic") {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.Provider == "gemini" {
		c.LLM.APIKey = key
	}
	if provider := os.Getenv("WEB_LLM_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
	if url := os.Getenv("WEB_RPC_URL"); url != "" {
		c.Chain.RPCURL = url
	}
	if path := os.Getenv("WEB_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
	if level := os.Getenv("WEB_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetTurnDelay returns the base delay between turns.
func (c *Config) GetTurnDelay() time.Duration {
	return parseDuration(c.Loop.TurnDelay, 5*time.Second)
}

// GetHistoryWindow returns how many past turns feed each inference.
func (c *Config) GetHistoryWindow() int {
	if c.Loop.HistoryWindow <= 0 {
		return 20
	}
	return c.Loop.HistoryWindow
}

// HeartbeatIntervals returns the heartbeat cadence per tier. Dead maps to zero.
func (c *Config) HeartbeatIntervals() map[survival.Tier]time.Duration {
	return map[survival.Tier]time.Duration{
		survival.TierNormal:     parseDuration(c.Heartbeat.Normal, survival.HeartbeatInterval(survival.TierNormal)),
		survival.TierLowCompute: parseDuration(c.Heartbeat.LowCompute, survival.HeartbeatInterval(survival.TierLowCompute)),
		survival.TierCritical:   parseDuration(c.Heartbeat.Critical, survival.HeartbeatInterval(survival.TierCritical)),
		survival.TierDead:       0,
	}
}

// ModelFor returns the model for a tier. Dead falls back to the critical model.
func (c *Config) ModelFor(tier survival.Tier) string {
	if tier == survival.TierDead {
		tier = survival.TierCritical
	}
	if m := c.LLM.Models[string(tier)]; m != "" {
		return m
	}
	return DefaultConfig().LLM.Models[string(tier)]
}

// GetLLMTimeout returns the inference timeout.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetConfirmTimeout returns how long a transfer may wait for confirmation.
func (c *Config) GetConfirmTimeout() time.Duration {
	return parseDuration(c.Chain.ConfirmTimeout, 60*time.Second)
}

// GetShellTimeout returns the shell_exec hard timeout.
func (c *Config) GetShellTimeout() time.Duration {
	return parseDuration(c.Tools.ShellTimeout, 30*time.Second)
}

// GetHTTPTimeout returns the http_request timeout.
func (c *Config) GetHTTPTimeout() time.Duration {
	return parseDuration(c.Tools.HTTPTimeout, 30*time.Second)
}

// GetSelfModifyWindow returns the trailing window for the self-modify limit.
func (c *Config) GetSelfModifyWindow() time.Duration {
	return parseDuration(c.SelfModify.Window, time.Hour)
}

// ValidProviders lists all supported inference providers.
var ValidProviders = []string{"anthropic", "gemini"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.SelfModify.Limit <= 0 {
		return fmt.Errorf("self_modify.limit must be positive, got %d", c.SelfModify.Limit)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path is required")
	}
	return nil
}
