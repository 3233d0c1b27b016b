package llm

// Config represents the configuration for LLM integration
type Config struct {
	// Provider specifies which LLM provider to use (e.g., "openai")
	Provider string

	// APIKey is the API key for the LLM provider
	APIKey string

	// Model specifies which model to use (e.g., "gpt-4")
	Model string

	// BaseURL points the client at a compatible endpoint. Empty means the provider default.
	BaseURL string

	// Temperature controls the randomness of the output (0.0 to 1.0)
	Temperature float64

	// MaxTokens limits the length of the generated response
	MaxTokens int
}

// NewDefaultConfig returns a default configuration
func NewDefaultConfig() *Config {
	return &Config{
		Provider:    "openai",
		Model:       "gpt-4",
		Temperature: 0.2,
		MaxTokens:   600,
	}
}
