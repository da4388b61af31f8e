// Package config provides configuration loading and management for civicreport.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete civicreport configuration
type Config struct {
	Gemini GeminiConfig `yaml:"gemini"`
	Assist AssistConfig `yaml:"assist"`
	NATS   NATSConfig   `yaml:"nats"`
	Auth   AuthConfig   `yaml:"auth"`
	Notify NotifyConfig `yaml:"notify"`
	Server ServerConfig `yaml:"server"`
	Photos PhotosConfig `yaml:"photos"`
}

// GeminiConfig configures the generative AI endpoint
type GeminiConfig struct {
	// Endpoint is the API base URL (default: https://generativelanguage.googleapis.com)
	Endpoint string `yaml:"endpoint"`
	// Model is the model name (default: gemini-2.0-flash)
	Model string `yaml:"model"`
	// APIKey authenticates requests. Usually supplied via GEMINI_API_KEY.
	APIKey string `yaml:"api_key,omitempty"`
	// Timeout bounds a single HTTP attempt
	Timeout time.Duration `yaml:"timeout"`
}

// TaskConfig configures one AI task
type TaskConfig struct {
	Temperature     float64         `yaml:"temperature"`
	MaxOutputTokens int             `yaml:"max_output_tokens"`
	RetryDelays     []time.Duration `yaml:"retry_delays"`
	// ExhaustedMessage is shown when every attempt was rate limited
	ExhaustedMessage string `yaml:"exhausted_message"`
}

// AssistConfig configures the AI helpers
type AssistConfig struct {
	Description    TaskConfig `yaml:"description"`
	Classification TaskConfig `yaml:"classification"`
	// MinConfidence flags classifications below it (0 disables)
	MinConfidence float64 `yaml:"min_confidence"`
	// RateLimit caps AI requests per second across all tasks (0 = unlimited)
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the limiter burst size
	RateBurst int `yaml:"rate_burst"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = in-memory store)
	URL string `yaml:"url"`
}

// AuthConfig configures session tokens
type AuthConfig struct {
	// TokenSecret signs session tokens. Usually supplied via CIVIC_TOKEN_SECRET.
	TokenSecret string `yaml:"token_secret,omitempty"`
	// TokenTTL is the session lifetime
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// NotifyConfig configures the complaint e-mail
type NotifyConfig struct {
	// Recipient is the municipal address complaints are sent to
	Recipient string `yaml:"recipient"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// UploadDir stores photos uploaded with reports
	UploadDir string `yaml:"upload_dir"`
}

// PhotosConfig configures the capture directory watcher
type PhotosConfig struct {
	Dir      string        `yaml:"dir"`
	Patterns []string      `yaml:"patterns"`
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Gemini: GeminiConfig{
			Endpoint: "https://generativelanguage.googleapis.com",
			Model:    "gemini-2.0-flash",
			Timeout:  60 * time.Second,
		},
		Assist: AssistConfig{
			Description: TaskConfig{
				Temperature:      0.4,
				MaxOutputTokens:  256,
				RetryDelays:      []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second},
				ExhaustedMessage: "Rate limit exceeded. Please wait a minute and try again.",
			},
			Classification: TaskConfig{
				Temperature:      0.1,
				MaxOutputTokens:  100,
				RetryDelays:      []time.Duration{5 * time.Second, 10 * time.Second},
				ExhaustedMessage: "Rate limit exceeded. Please select category manually.",
			},
			MinConfidence: 0.5,
			RateBurst:     1,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Notify: NotifyConfig{
			Recipient: "complaints@municipality.example",
		},
		Server: ServerConfig{
			Addr:      ":8080",
			UploadDir: "uploads",
		},
		Photos: PhotosConfig{
			Dir:      "photos",
			Patterns: []string{"**/*.{jpg,jpeg,png}"},
			Debounce: 500 * time.Millisecond,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Gemini.Endpoint == "" {
		return fmt.Errorf("gemini.endpoint is required")
	}
	if c.Gemini.Model == "" {
		return fmt.Errorf("gemini.model is required")
	}
	if err := c.Assist.Description.validate("assist.description"); err != nil {
		return err
	}
	if err := c.Assist.Classification.validate("assist.classification"); err != nil {
		return err
	}
	if c.Assist.MinConfidence < 0 || c.Assist.MinConfidence > 1 {
		return fmt.Errorf("assist.min_confidence must be between 0 and 1")
	}
	if c.Assist.RateLimit < 0 {
		return fmt.Errorf("assist.rate_limit must not be negative")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	return nil
}

func (t TaskConfig) validate(section string) error {
	if t.Temperature < 0 || t.Temperature > 2 {
		return fmt.Errorf("%s.temperature must be between 0 and 2", section)
	}
	if t.MaxOutputTokens <= 0 {
		return fmt.Errorf("%s.max_output_tokens must be positive", section)
	}
	for _, d := range t.RetryDelays {
		if d < 0 {
			return fmt.Errorf("%s.retry_delays must not be negative", section)
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Secrets may be present, keep the file private
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
