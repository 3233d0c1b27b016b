package config

import (
	"errors"
	"os"
)

// LLMConfig holds configuration for the run summary model
type LLMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // e.g., "openai"
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`    // e.g., "gpt-4"
	BaseURL  string `yaml:"base_url"` // Optional, for custom endpoints
}

func (c *LLMConfig) applyEnv() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.APIKey = key
	}
}

func (c *LLMConfig) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Model == "" {
		c.Model = "gpt-4"
	}
}

// Validate checks the settings of an enabled model
func (c *LLMConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Provider != "openai" {
		return errors.New("unsupported LLM provider: " + c.Provider)
	}
	if c.APIKey == "" {
		return errors.New("LLM API key is required")
	}
	return nil
}
