package llm

import (
	"context"
	"time"
)

// Client is a chat-completion language model.
type Client interface {
	// Generate produces a completion for a single prompt.
	Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error)

	// Chat produces a completion for a multi-turn conversation.
	Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error)

	// Name returns the provider name.
	Name() string
}

// Config holds LLM client settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxRetries  int
	MaxTokens   int
	Temperature float32
	TopP        float32
}

// DefaultConfig returns the default LLM configuration.
// Temperature 0 keeps answers grounded in the retrieved context.
func DefaultConfig() *Config {
	return &Config{
		Model:       ModelGPT35Turbo,
		Timeout:     60 * time.Second,
		MaxRetries:  3,
		MaxTokens:   1024,
		Temperature: 0,
		TopP:        1,
	}
}

// Option mutates a Config.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(apiKey string) Option {
	return func(c *Config) {
		c.APIKey = apiKey
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithMaxRetries sets how often rate-limited requests are retried.
func WithMaxRetries(retries int) Option {
	return func(c *Config) {
		c.MaxRetries = retries
	}
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(tokens int) Option {
	return func(c *Config) {
		c.MaxTokens = tokens
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float32) Option {
	return func(c *Config) {
		c.Temperature = temp
	}
}

// WithTopP sets the nucleus sampling threshold.
func WithTopP(topP float32) Option {
	return func(c *Config) {
		c.TopP = topP
	}
}

// NewConfig builds a config from the defaults plus options.
func NewConfig(opts ...Option) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// GenerateOption overrides request parameters for a single Generate call.
type GenerateOption func(*GenerateOptions)

// GenerateOptions collects per-request overrides; nil means use the
// client default.
type GenerateOptions struct {
	MaxTokens   *int
	Temperature *float32
	TopP        *float32
}

// WithGenerateMaxTokens sets the token limit for one request.
func WithGenerateMaxTokens(tokens int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = &tokens
	}
}

// WithGenerateTemperature sets the temperature for one request.
func WithGenerateTemperature(temp float32) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = &temp
	}
}

// WithGenerateTopP sets the nucleus sampling threshold for one request.
func WithGenerateTopP(topP float32) GenerateOption {
	return func(o *GenerateOptions) {
		o.TopP = &topP
	}
}

// ChatOption overrides request parameters for a single Chat call.
type ChatOption func(*ChatOptions)

// ChatOptions collects per-request overrides for Chat calls.
type ChatOptions struct {
	MaxTokens   *int
	Temperature *float32
	TopP        *float32
}

// WithChatMaxTokens sets the token limit for one request.
func WithChatMaxTokens(tokens int) ChatOption {
	return func(o *ChatOptions) {
		o.MaxTokens = &tokens
	}
}

// WithChatTemperature sets the temperature for one request.
func WithChatTemperature(temp float32) ChatOption {
	return func(o *ChatOptions) {
		o.Temperature = &temp
	}
}

// WithChatTopP sets the nucleus sampling threshold for one request.
func WithChatTopP(topP float32) ChatOption {
	return func(o *ChatOptions) {
		o.TopP = &topP
	}
}

// Factory builds a Client.
type Factory func(opts ...Option) (Client, error)

var clientFactories = make(map[string]Factory)

// RegisterClient registers an LLM client factory under a name.
func RegisterClient(name string, factory Factory) {
	clientFactories[name] = factory
}

// NewClient creates the LLM client registered under name.
func NewClient(name string, opts ...Option) (Client, error) {
	factory, exists := clientFactories[name]
	if !exists {
		return nil, NewLLMError(
			ErrCodeInvalidRequest,
			"llm client type not registered: "+name)
	}
	return factory(opts...)
}
