package llm

import "time"

// MessageRole is the author of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
	Name    string      `json:"name,omitempty"`
}

// Response is the unified completion result.
type Response struct {
	Text       string
	Messages   []Message
	TokenCount int
	ModelName  string
	FinishTime time.Time
}

// RAGResponse is a grounded answer with its supporting passages.
type RAGResponse struct {
	Answer  string
	Sources []SourceReference
}

// SourceReference points at the passage an answer was grounded on.
// Page is the 1-based source page in the original document.
type SourceReference struct {
	ID       string
	FileID   string
	FileName string
	Page     int
	Content  string
	Score    float32
	Metadata map[string]interface{}
}

// Chat model names.
const (
	ModelGPT35Turbo = "gpt-3.5-turbo"
	ModelGPT4o      = "gpt-4o"
	ModelGPT4oMini  = "gpt-4o-mini"
)
