// Package config defines the aide server configuration schema, loading
// and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/aide/pkg/models"
)

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Auth       AuthConfig       `yaml:"auth" json:"auth"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Autonomy   AutonomyConfig   `yaml:"autonomy" json:"autonomy"`
	Engine     EngineConfig     `yaml:"engine" json:"engine"`
	Classifier ClassifierConfig `yaml:"classifier" json:"classifier"`
	Learning   LearningConfig   `yaml:"learning" json:"learning"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host     string `yaml:"host" json:"host"`
	HTTPPort int    `yaml:"http_port" json:"http_port"`
}

// AuthConfig configures gateway authentication. Auth is disabled when
// Secret is empty.
type AuthConfig struct {
	Secret         string        `yaml:"secret" json:"secret"`
	TokenExpiry    time.Duration `yaml:"token_expiry" json:"token_expiry"`
	BootstrapToken string        `yaml:"bootstrap_token" json:"bootstrap_token"`
}

// Enabled reports whether gateway auth is on.
func (a AuthConfig) Enabled() bool {
	return strings.TrimSpace(a.Secret) != ""
}

// LLMConfig selects and configures the external completion provider.
type LLMConfig struct {
	// Provider is "anthropic", "openai" or "template".
	Provider    string          `yaml:"provider" json:"provider"`
	Anthropic   AnthropicConfig `yaml:"anthropic" json:"anthropic"`
	OpenAI      OpenAIConfig    `yaml:"openai" json:"openai"`
	MaxTokens   int             `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64         `yaml:"temperature" json:"temperature"`
	MaxRetries  int             `yaml:"max_retries" json:"max_retries"`
	RetryDelay  time.Duration   `yaml:"retry_delay" json:"retry_delay"`
}

// AnthropicConfig holds Anthropic credentials and model selection.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key" json:"api_key"`
	Model  string `yaml:"model" json:"model"`
}

// OpenAIConfig holds OpenAI credentials and model selection.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key" json:"api_key"`
	Model  string `yaml:"model" json:"model"`
}

// AutonomyConfig sets the initial autonomy levels and the gate's
// high-urgency threshold.
type AutonomyConfig struct {
	// DefaultLevel applies to platforms absent from Levels. 0-4.
	DefaultLevel int `yaml:"default_level" json:"default_level"`

	// Levels maps platform name to level, e.g. {email: 2, slack: 3}.
	Levels map[string]int `yaml:"levels" json:"levels"`

	// HighUrgency is the urgency at or above which level 3 falls back
	// to drafting instead of auto-sending.
	HighUrgency float64 `yaml:"high_urgency" json:"high_urgency"`
}

// EngineConfig configures the trigger scheduler.
type EngineConfig struct {
	TickInterval  time.Duration `yaml:"tick_interval" json:"tick_interval"`
	ActionTimeout time.Duration `yaml:"action_timeout" json:"action_timeout"`
}

// ClassifierConfig configures the message classifier heuristics.
type ClassifierConfig struct {
	BusinessHoursStart int      `yaml:"business_hours_start" json:"business_hours_start"` // hour 0-23
	BusinessHoursEnd   int      `yaml:"business_hours_end" json:"business_hours_end"`     // hour 0-23
	UrgentKeywords     []string `yaml:"urgent_keywords" json:"urgent_keywords"`
}

// LearningConfig configures the feedback learning loop.
type LearningConfig struct {
	// MinSamples is how many corroborating feedback samples a
	// preference needs before it is applied.
	MinSamples int `yaml:"min_samples" json:"min_samples"`

	// ConfidenceThreshold is the minimum confidence for applying a
	// preference.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`
}

// StorageConfig selects the durable store.
type StorageConfig struct {
	// Path is the sqlite database path, or ":memory:" for an
	// in-process store.
	Path string `yaml:"path" json:"path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", HTTPPort: 8780},
		Auth:   AuthConfig{TokenExpiry: 24 * time.Hour},
		LLM: LLMConfig{
			Provider:    "template",
			Anthropic:   AnthropicConfig{Model: "claude-sonnet-4-20250514"},
			OpenAI:      OpenAIConfig{Model: "gpt-4o"},
			MaxTokens:   500,
			Temperature: 0.5,
			MaxRetries:  3,
			RetryDelay:  time.Second,
		},
		Autonomy: AutonomyConfig{
			DefaultLevel: int(models.AutonomyNotify),
			Levels:       map[string]int{},
			HighUrgency:  0.7,
		},
		Engine: EngineConfig{
			TickInterval:  time.Minute,
			ActionTimeout: 30 * time.Second,
		},
		Classifier: ClassifierConfig{
			BusinessHoursStart: 9,
			BusinessHoursEnd:   17,
			UrgentKeywords: []string{
				"urgent", "asap", "immediately", "critical", "emergency",
			},
		},
		Learning: LearningConfig{
			MinSamples:          5,
			ConfidenceThreshold: 0.7,
		},
		Storage: StorageConfig{Path: "aide.db"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic":
		if strings.TrimSpace(c.LLM.Anthropic.APIKey) == "" {
			return fmt.Errorf("llm.anthropic.api_key required for anthropic provider")
		}
	case "openai":
		if strings.TrimSpace(c.LLM.OpenAI.APIKey) == "" {
			return fmt.Errorf("llm.openai.api_key required for openai provider")
		}
	case "template", "":
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	if !models.AutonomyLevel(c.Autonomy.DefaultLevel).Valid() {
		return fmt.Errorf("autonomy.default_level out of range: %d", c.Autonomy.DefaultLevel)
	}
	for platform, level := range c.Autonomy.Levels {
		if !models.AutonomyLevel(level).Valid() {
			return fmt.Errorf("autonomy.levels.%s out of range: %d", platform, level)
		}
	}
	if c.Autonomy.HighUrgency <= 0 || c.Autonomy.HighUrgency > 1 {
		return fmt.Errorf("autonomy.high_urgency must be in (0,1]: %v", c.Autonomy.HighUrgency)
	}
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("engine.tick_interval must be positive")
	}
	if c.Classifier.BusinessHoursStart < 0 || c.Classifier.BusinessHoursStart > 23 ||
		c.Classifier.BusinessHoursEnd < 0 || c.Classifier.BusinessHoursEnd > 23 {
		return fmt.Errorf("classifier business hours out of range")
	}
	if c.Learning.MinSamples < 1 {
		return fmt.Errorf("learning.min_samples must be at least 1")
	}
	if c.Learning.ConfidenceThreshold <= 0 || c.Learning.ConfidenceThreshold > 1 {
		return fmt.Errorf("learning.confidence_threshold must be in (0,1]")
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path required")
	}
	return nil
}

// AutonomyLevels converts the configured levels to typed values.
func (c *Config) AutonomyLevels() map[models.Platform]models.AutonomyLevel {
	out := make(map[models.Platform]models.AutonomyLevel, len(c.Autonomy.Levels))
	for platform, level := range c.Autonomy.Levels {
		out[models.NormalizePlatform(platform)] = models.AutonomyLevel(level)
	}
	return out
}
