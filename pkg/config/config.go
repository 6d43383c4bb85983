// Package config loads the orchestrator configuration. Components receive the
// resulting struct (or a slice of it) at construction; there is no process-wide
// mutable configuration state.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	// Remote analysis service
	RemoteBaseURL  string        `yaml:"remote_base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PollPerSecond  float64       `yaml:"poll_per_second"`
	PollBurst      int           `yaml:"poll_burst"`

	// Session store
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`

	// Polling cadences
	AnalysisPollInterval time.Duration `yaml:"analysis_poll_interval"`
	QueryPollInterval    time.Duration `yaml:"query_poll_interval"`
	EvictionInterval     time.Duration `yaml:"eviction_interval"`
	InactivityThreshold  time.Duration `yaml:"inactivity_threshold"`

	// Chat behavior
	MaxQuestionLen        int  `yaml:"max_question_len"`
	EnablePrivateChat     bool `yaml:"enable_private_chat"`
	EnableGroupChat       bool `yaml:"enable_group_chat"`
	RequireMentionInGroup bool `yaml:"require_mention_in_group"`

	// Opaque pass-through configuration for the remote service
	EmbeddingConfig map[string]any `yaml:"embedding_config"`
	LLMConfig       map[string]any `yaml:"llm_config"`

	// HTTP surface (inbound messages, health, metrics)
	HTTPPort int `yaml:"http_port"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		RemoteBaseURL:         "http://localhost:8000",
		RequestTimeout:        30 * time.Second,
		PollPerSecond:         20,
		PollBurst:             10,
		AnalysisPollInterval:  10 * time.Second,
		QueryPollInterval:     5 * time.Second,
		EvictionInterval:      time.Hour,
		InactivityThreshold:   24 * time.Hour,
		MaxQuestionLen:        2000,
		EnablePrivateChat:     true,
		EnableGroupChat:       true,
		RequireMentionInGroup: true,
		HTTPPort:              8080,
	}
}

// Load reads configuration from a YAML file, filling gaps with defaults and
// environment fallbacks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("REPOINSIGHT_REMOTE_URL"); v != "" {
		c.RemoteBaseURL = v
	}
	if v := os.Getenv("REPOINSIGHT_REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REPOINSIGHT_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.RemoteBaseURL == "" {
		return fmt.Errorf("remote_base_url is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.AnalysisPollInterval <= 0 || c.QueryPollInterval <= 0 {
		return fmt.Errorf("poll intervals must be positive")
	}
	if c.EvictionInterval <= 0 || c.InactivityThreshold <= 0 {
		return fmt.Errorf("eviction settings must be positive")
	}
	if c.MaxQuestionLen <= 0 {
		return fmt.Errorf("max_question_len must be positive")
	}
	if !c.EnablePrivateChat && !c.EnableGroupChat {
		return fmt.Errorf("at least one chat surface must be enabled")
	}
	return nil
}
