package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageRole is the author of a stored chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleSystem    MessageRole = "system"
	RoleAssistant MessageRole = "assistant"
)

// ChatSession groups the messages of one conversation.
type ChatSession struct {
	ID        string         `gorm:"primaryKey"`
	Title     string         `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
	UserID    string         `gorm:"index"`
	FileID    string         `gorm:"index"` // document the session talks about
	Tags      string         `gorm:"type:varchar(255)"`
	Metadata  datatypes.JSON `gorm:"type:json"`
}

// BeforeCreate fills in timestamps on insert.
func (cs *ChatSession) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = now
	}
	cs.UpdatedAt = now
	return nil
}

// BeforeUpdate refreshes the update timestamp.
func (cs *ChatSession) BeforeUpdate(tx *gorm.DB) (err error) {
	cs.UpdatedAt = time.Now()
	return nil
}

// TableName pins the table name.
func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatMessage is one stored turn of a conversation. Assistant messages
// carry Sources, the page citations the answer was grounded on.
type ChatMessage struct {
	ID        uint           `gorm:"primaryKey;autoIncrement"`
	SessionID string         `gorm:"not null;index"`
	Role      MessageRole    `gorm:"not null;type:varchar(20)"`
	Content   string         `gorm:"type:text;not null"`
	CreatedAt time.Time      `gorm:"not null"`
	Metadata  datatypes.JSON `gorm:"type:json"`
	Sources   datatypes.JSON `gorm:"type:json"`
}

// BeforeCreate fills in the creation timestamp.
func (cm *ChatMessage) BeforeCreate(tx *gorm.DB) (err error) {
	if cm.CreatedAt.IsZero() {
		cm.CreatedAt = time.Now()
	}
	return nil
}

// TableName pins the table name.
func (ChatMessage) TableName() string {
	return "chat_messages"
}

// Source is one citation attached to an assistant message.
// Page is the 1-based page of the original document.
type Source struct {
	FileID   string  `json:"file_id"`
	FileName string  `json:"file_name"`
	Page     int     `json:"page"`
	Position int     `json:"position"`
	Text     string  `json:"text"`
	Score    float32 `json:"score,omitempty"`
}
