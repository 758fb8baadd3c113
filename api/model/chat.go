package model

import "time"

// CreateChatRequest starts a new chat session. Title is optional, a
// default one is generated. FileID pins the session to a document,
// when empty the session follows the currently indexed document.
type CreateChatRequest struct {
	Title  string `json:"title,omitempty"`
	FileID string `json:"file_id,omitempty"`
}

// CreateMessageRequest appends a message to a session. A user message
// triggers an assistant reply generated from the document.
type CreateMessageRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Role      string `json:"role" binding:"required,chatrole"`
	Content   string `json:"content" binding:"required"`
}

// GetChatHistoryRequest fetches a session's messages.
type GetChatHistoryRequest struct {
	SessionID string `uri:"session_id" binding:"required"`
	PaginationRequest
}

// ChatListRequest lists chat sessions.
type ChatListRequest struct {
	PaginationRequest
}

// RenameChatRequest changes a session's title.
type RenameChatRequest struct {
	SessionID string `uri:"session_id"`
	Title     string `json:"title" binding:"required"`
}

// DeleteChatRequest removes a session and its messages.
type DeleteChatRequest struct {
	SessionID string `uri:"session_id" binding:"required"`
}

// CreateChatResponse describes a freshly created session.
type CreateChatResponse struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	FileID    string    `json:"file_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageInfo is one message in a chat history.
type MessageInfo struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	Sources   []QASourceInfo `json:"sources,omitempty"`
}

// ChatHistoryResponse is a session with its messages.
type ChatHistoryResponse struct {
	SessionID string        `json:"session_id"`
	Title     string        `json:"title"`
	FileID    string        `json:"file_id,omitempty"`
	Total     int64         `json:"total"`
	Messages  []MessageInfo `json:"messages"`
}

// ChatInfo is one entry in the session list.
type ChatInfo struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	FileID       string    `json:"file_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// ChatListResponse lists sessions with pagination info.
type ChatListResponse struct {
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	Chats    []ChatInfo `json:"chats"`
}

// ChatMessageReply pairs the stored user message with the generated
// assistant reply.
type ChatMessageReply struct {
	SessionID        string      `json:"session_id"`
	UserMessage      MessageInfo `json:"user_message"`
	AssistantMessage MessageInfo `json:"assistant_message"`
}

// DeleteChatResponse acknowledges a session delete.
type DeleteChatResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}
