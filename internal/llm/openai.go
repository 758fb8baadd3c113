package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient calls the OpenAI chat completions API.
type OpenAIClient struct {
	client *openai.Client
	config *Config
}

// NewOpenAIClient creates a new OpenAI chat client.
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Generate produces a completion for a single prompt.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if prompt == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	opts := &GenerateOptions{}
	for _, opt := range options {
		opt(opts)
	}

	messages := []Message{{Role: RoleUser, Content: prompt}}
	return c.complete(ctx, messages, opts.MaxTokens, opts.Temperature, opts.TopP)
}

// Chat produces a completion for a multi-turn conversation.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "messages cannot be empty")
	}

	opts := &ChatOptions{}
	for _, opt := range options {
		opt(opts)
	}

	return c.complete(ctx, messages, opts.MaxTokens, opts.Temperature, opts.TopP)
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// complete sends the request, retrying rate-limited calls with
// exponential backoff.
func (c *OpenAIClient) complete(ctx context.Context, messages []Message, maxTokens *int, temperature, topP *float32) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		TopP:        c.config.TopP,
	}
	if maxTokens != nil {
		req.MaxTokens = *maxTokens
	}
	if temperature != nil {
		req.Temperature = *temperature
	}
	if topP != nil {
		req.TopP = *topP
	}

	var resp openai.ChatCompletionResponse
	var err error

	backoff := time.Second
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		if !isRetryableError(err) {
			return nil, classifyAPIError(err)
		}
	}
	if err != nil {
		return nil, NewLLMError(ErrCodeRateLimited, ErrMsgRateLimited)
	}

	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ErrCodeServerError, "no choices in response")
	}

	text := resp.Choices[0].Message.Content
	return &Response{
		Text:       text,
		Messages:   append(messages, Message{Role: RoleAssistant, Content: text}),
		TokenCount: resp.Usage.TotalTokens,
		ModelName:  resp.Model,
		FinishTime: time.Now(),
	}, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		result[i] = openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    m.Name,
		}
	}
	return result
}

// isRetryableError reports whether err is a 429 or an overload error.
func isRetryableError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode == http.StatusServiceUnavailable
	}
	return false
}

// classifyAPIError maps provider errors onto LLM error codes.
func classifyAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized:
			return NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
		case apiErr.HTTPStatusCode == http.StatusBadRequest:
			return NewLLMError(ErrCodeInvalidRequest, apiErr.Message)
		case apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return NewLLMError(ErrCodeServerError, apiErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewLLMError(ErrCodeTimeout, ErrMsgTimeout)
	}
	return NewLLMError(ErrCodeNetworkError, err.Error())
}

func init() {
	RegisterClient("openai", NewOpenAIClient)
}
