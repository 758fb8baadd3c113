package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// NoAnswerFallback is returned when the retrieved context cannot
// support an answer.
const NoAnswerFallback = "Sorry, I could not find relevant information in the document."

// DefaultRAGTemplate is the answer prompt.
// Variables: {{.Question}} and {{.Context}}.
const DefaultRAGTemplate = `You are a helpful assistant answering questions about a document.
Answer the question using only the reference context below.
If the context does not contain enough information, reply exactly with
"` + NoAnswerFallback + `" and nothing else. Do not guess or invent facts.

Reference context:
{{.Context}}

Question: {{.Question}}

Answer directly. Do not repeat the question or mention the context.`

// CondenseQuestionTemplate rewrites a follow-up question into a
// standalone one, so retrieval works without the chat history.
// Variables: {{.History}} and {{.Question}}.
const CondenseQuestionTemplate = `Given the following conversation and a follow-up question,
rephrase the follow-up question to be a standalone question that keeps its original meaning
and language. Reply with the standalone question only.

Conversation:
{{.History}}

Follow-up question: {{.Question}}

Standalone question:`

// formatContext numbers the retrieved passages.
func formatContext(contexts []string) string {
	var b strings.Builder
	for i, ctx := range contexts {
		b.WriteString(fmt.Sprintf("[%d] %s\n\n", i+1, ctx))
	}
	return b.String()
}

// formatHistory renders conversation turns for the condense prompt.
func formatHistory(history []Message) string {
	var b strings.Builder
	for _, m := range history {
		switch m.Role {
		case RoleUser:
			b.WriteString("Human: ")
		case RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// RAGConfig configures answer generation.
type RAGConfig struct {
	Template       string
	MaxTokens      int
	Temperature    float32
	Timeout        time.Duration
	IncludeSources bool
}

// DefaultRAGConfig returns the default RAG configuration.
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		Template:       DefaultRAGTemplate,
		MaxTokens:      2048,
		Temperature:    0,
		Timeout:        30 * time.Second,
		IncludeSources: true,
	}
}

// RAGService turns retrieved passages plus a question into a grounded
// answer.
type RAGService struct {
	Client Client
	config *RAGConfig
	mu     sync.RWMutex
}

// NewRAG creates a new RAG service.
func NewRAG(client Client, opts ...RAGOption) *RAGService {
	cfg := DefaultRAGConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &RAGService{
		Client: client,
		config: cfg,
	}
}

// RAGOption mutates a RAGConfig.
type RAGOption func(*RAGConfig)

// WithTemplate sets the answer prompt template.
func WithTemplate(template string) RAGOption {
	return func(c *RAGConfig) {
		c.Template = template
	}
}

// WithRAGMaxTokens sets the completion token limit.
func WithRAGMaxTokens(tokens int) RAGOption {
	return func(c *RAGConfig) {
		c.MaxTokens = tokens
	}
}

// WithRAGTemperature sets the sampling temperature.
func WithRAGTemperature(temp float32) RAGOption {
	return func(c *RAGConfig) {
		c.Temperature = temp
	}
}

// WithRAGTimeout sets the per-call timeout.
func WithRAGTimeout(timeout time.Duration) RAGOption {
	return func(c *RAGConfig) {
		c.Timeout = timeout
	}
}

// WithSources toggles source references in responses.
func WithSources(include bool) RAGOption {
	return func(c *RAGConfig) {
		c.IncludeSources = include
	}
}

// Answer generates an answer for the question from the given contexts.
func (r *RAGService) Answer(ctx context.Context, question string, contexts []string) (*RAGResponse, error) {
	if question == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	r.mu.RLock()
	cfg := r.config
	r.mu.RUnlock()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	prompt := r.buildPrompt(question, contexts)

	response, err := r.Client.Generate(
		ctxWithTimeout,
		prompt,
		WithGenerateMaxTokens(cfg.MaxTokens),
		WithGenerateTemperature(cfg.Temperature),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	ragResponse := &RAGResponse{
		Answer: response.Text,
	}

	if cfg.IncludeSources && len(contexts) > 0 {
		sources := make([]SourceReference, len(contexts))
		for i, c := range contexts {
			sources[i] = SourceReference{
				ID:      fmt.Sprintf("src-%d", i+1),
				Content: c,
			}
		}
		ragResponse.Sources = sources
	}

	return ragResponse, nil
}

// CondenseQuestion rewrites a follow-up question into a standalone
// question using the conversation history. With no history the
// question passes through unchanged.
func (r *RAGService) CondenseQuestion(ctx context.Context, question string, history []Message) (string, error) {
	if question == "" {
		return "", NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}
	if len(history) == 0 {
		return question, nil
	}

	r.mu.RLock()
	cfg := r.config
	r.mu.RUnlock()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	prompt := CondenseQuestionTemplate
	prompt = strings.ReplaceAll(prompt, "{{.History}}", formatHistory(history))
	prompt = strings.ReplaceAll(prompt, "{{.Question}}", question)

	response, err := r.Client.Generate(
		ctxWithTimeout,
		prompt,
		WithGenerateTemperature(0),
	)
	if err != nil {
		return "", fmt.Errorf("failed to condense question: %w", err)
	}

	condensed := strings.TrimSpace(response.Text)
	if condensed == "" {
		return question, nil
	}
	return condensed, nil
}

// buildPrompt fills the answer template.
func (r *RAGService) buildPrompt(question string, contexts []string) string {
	r.mu.RLock()
	template := r.config.Template
	r.mu.RUnlock()

	prompt := template
	prompt = strings.ReplaceAll(prompt, "{{.Question}}", question)
	prompt = strings.ReplaceAll(prompt, "{{.Context}}", formatContext(contexts))
	return prompt
}

// SetTemplate replaces the answer prompt template.
func (r *RAGService) SetTemplate(template string) *RAGService {
	r.mu.Lock()
	r.config.Template = template
	r.mu.Unlock()
	return r
}
