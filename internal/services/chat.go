package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leeszeyu/pdfchat/internal/llm"
	"github.com/leeszeyu/pdfchat/internal/models"
	"github.com/leeszeyu/pdfchat/internal/repository"
	"github.com/sirupsen/logrus"
)

// ChatService manages chat sessions and their message history.
type ChatService struct {
	repo   repository.ChatRepository
	logger *logrus.Logger
}

// ChatOption configures a ChatService.
type ChatOption func(*ChatService)

// NewChatService creates a chat service.
func NewChatService(repo repository.ChatRepository, opts ...ChatOption) *ChatService {
	service := &ChatService{
		repo:   repo,
		logger: logrus.New(),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// WithChatLogger sets the logger.
func WithChatLogger(logger *logrus.Logger) ChatOption {
	return func(s *ChatService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// CreateChat starts a new session. fileID names the document the
// conversation is about and may be empty until an upload completes.
func (s *ChatService) CreateChat(ctx context.Context, title string, fileID string) (*models.ChatSession, error) {
	if title == "" {
		title = "New chat " + time.Now().Format("2006-01-02 15:04:05")
	}

	session := &models.ChatSession{
		ID:        uuid.New().String(),
		Title:     title,
		FileID:    fileID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := s.repo.CreateSession(session); err != nil {
		s.logger.WithError(err).Error("Failed to create chat session")
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	s.logger.WithField("session_id", session.ID).Info("Chat session created")
	return session, nil
}

// GetChatSession returns a session by id.
func (s *ChatService) GetChatSession(ctx context.Context, sessionID string) (*models.ChatSession, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	session, err := s.repo.GetSession(sessionID)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to get chat session")
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}

	return session, nil
}

// ListChatSessions returns sessions matching the filters, paginated.
func (s *ChatService) ListChatSessions(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.ChatSession, int64, error) {
	sessions, total, err := s.repo.ListSessions(offset, limit, filters)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list chat sessions")
		return nil, 0, fmt.Errorf("failed to list chat sessions: %w", err)
	}

	return sessions, total, nil
}

// UpdateChatSession saves session changes.
func (s *ChatService) UpdateChatSession(ctx context.Context, session *models.ChatSession) error {
	if session.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	session.UpdatedAt = time.Now()

	if err := s.repo.UpdateSession(session); err != nil {
		s.logger.WithError(err).WithField("session_id", session.ID).Error("Failed to update chat session")
		return fmt.Errorf("failed to update chat session: %w", err)
	}

	return nil
}

// AttachDocument points a session at a document. Called when a new
// upload replaces the index so follow-up questions target it.
func (s *ChatService) AttachDocument(ctx context.Context, sessionID string, fileID string) error {
	session, err := s.GetChatSession(ctx, sessionID)
	if err != nil {
		return err
	}

	session.FileID = fileID
	return s.UpdateChatSession(ctx, session)
}

// DeleteChatSession removes a session and its messages.
func (s *ChatService) DeleteChatSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	if err := s.repo.DeleteSession(sessionID); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to delete chat session")
		return fmt.Errorf("failed to delete chat session: %w", err)
	}

	s.logger.WithField("session_id", sessionID).Info("Chat session deleted")
	return nil
}

// AddMessage appends a message to a session.
func (s *ChatService) AddMessage(ctx context.Context, message *models.ChatMessage) error {
	if message.SessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if message.Content == "" {
		return errors.New("message content cannot be empty")
	}

	if message.Role != models.RoleUser &&
		message.Role != models.RoleSystem &&
		message.Role != models.RoleAssistant {
		message.Role = models.RoleUser
	}

	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	if err := s.repo.CreateMessage(message); err != nil {
		s.logger.WithError(err).
			WithFields(logrus.Fields{
				"session_id": message.SessionID,
				"role":       message.Role,
			}).Error("Failed to add chat message")
		return fmt.Errorf("failed to add chat message: %w", err)
	}

	return nil
}

// SaveMessageWithSources appends an assistant message together with
// the chunks its answer was grounded on.
func (s *ChatService) SaveMessageWithSources(ctx context.Context, message *models.ChatMessage, sources []models.Source) error {
	if message.SessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if message.Content == "" {
		return errors.New("message content cannot be empty")
	}

	if len(sources) > 0 {
		sourcesJSON, err := json.Marshal(sources)
		if err != nil {
			s.logger.WithError(err).Error("Failed to marshal sources")
			return fmt.Errorf("failed to marshal sources: %w", err)
		}
		message.Sources = sourcesJSON
	}

	if err := s.repo.CreateMessage(message); err != nil {
		s.logger.WithError(err).WithField("session_id", message.SessionID).Error("Failed to save message with sources")
		return fmt.Errorf("failed to save message with sources: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id":    message.SessionID,
		"sources_count": len(sources),
	}).Debug("Message with sources saved")
	return nil
}

// GetChatMessages returns a session's messages, paginated.
func (s *ChatService) GetChatMessages(ctx context.Context, sessionID string, offset, limit int) ([]*models.ChatMessage, int64, error) {
	if sessionID == "" {
		return nil, 0, errors.New("session ID cannot be empty")
	}

	messages, total, err := s.repo.GetMessages(sessionID, offset, limit)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to get chat messages")
		return nil, 0, fmt.Errorf("failed to get chat messages: %w", err)
	}

	return messages, total, nil
}

// GetHistory returns a session's recent turns in the form the RAG
// layer consumes for question condensing. limit counts messages, the
// newest ones win, order stays chronological.
func (s *ChatService) GetHistory(ctx context.Context, sessionID string, limit int) ([]llm.Message, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}
	if limit <= 0 {
		limit = 10
	}

	total, err := s.repo.CountMessages(sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count chat messages: %w", err)
	}

	offset := 0
	if int(total) > limit {
		offset = int(total) - limit
	}

	messages, _, err := s.repo.GetMessages(sessionID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat messages: %w", err)
	}

	history := make([]llm.Message, 0, len(messages))
	for _, msg := range messages {
		var role llm.MessageRole
		switch msg.Role {
		case models.RoleUser:
			role = llm.RoleUser
		case models.RoleAssistant:
			role = llm.RoleAssistant
		case models.RoleSystem:
			role = llm.RoleSystem
		default:
			continue
		}
		history = append(history, llm.Message{
			Role:    role,
			Content: msg.Content,
		})
	}

	return history, nil
}

// GetRecentMessages returns the newest messages across all sessions.
func (s *ChatService) GetRecentMessages(ctx context.Context, limit int) ([]*models.ChatMessage, error) {
	if limit <= 0 {
		limit = 10
	}

	messages, err := s.repo.GetRecentMessages(limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to get recent messages")
		return nil, fmt.Errorf("failed to get recent messages: %w", err)
	}

	return messages, nil
}

// CountChatMessages counts a session's messages.
func (s *ChatService) CountChatMessages(ctx context.Context, sessionID string) (int64, error) {
	if sessionID == "" {
		return 0, errors.New("session ID cannot be empty")
	}

	count, err := s.repo.CountMessages(sessionID)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to count chat messages")
		return 0, fmt.Errorf("failed to count chat messages: %w", err)
	}

	return count, nil
}

// RenameChatSession changes a session's title.
func (s *ChatService) RenameChatSession(ctx context.Context, sessionID string, newTitle string) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if newTitle == "" {
		return errors.New("new title cannot be empty")
	}

	session, err := s.repo.GetSession(sessionID)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to get chat session for rename")
		return fmt.Errorf("failed to get chat session: %w", err)
	}

	session.Title = newTitle
	session.UpdatedAt = time.Now()

	if err := s.repo.UpdateSession(session); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to rename chat session")
		return fmt.Errorf("failed to rename chat session: %w", err)
	}

	return nil
}

// GetChatsWithMessageCount returns sessions annotated with their
// message counts.
func (s *ChatService) GetChatsWithMessageCount(ctx context.Context, offset, limit int) ([]map[string]interface{}, int64, error) {
	sessions, total, err := s.repo.ListSessions(offset, limit, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list chat sessions: %w", err)
	}

	result := make([]map[string]interface{}, len(sessions))
	for i, session := range sessions {
		count, err := s.repo.CountMessages(session.ID)
		if err != nil {
			s.logger.WithError(err).WithField("session_id", session.ID).Warn("Failed to count messages")
			count = 0
		}

		result[i] = map[string]interface{}{
			"id":            session.ID,
			"title":         session.Title,
			"file_id":       session.FileID,
			"created_at":    session.CreatedAt,
			"updated_at":    session.UpdatedAt,
			"message_count": count,
		}
	}

	return result, total, nil
}
