package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leeszeyu/pdfchat/internal/database"
	"github.com/leeszeyu/pdfchat/internal/models"
)

// ChatRepository stores chat sessions and their messages.
type ChatRepository interface {
	// CreateSession inserts a session record.
	CreateSession(session *models.ChatSession) error

	// GetSession returns the session with the given id.
	GetSession(id string) (*models.ChatSession, error)

	// ListSessions returns sessions matching the filters, paginated.
	ListSessions(offset, limit int, filters map[string]interface{}) ([]*models.ChatSession, int64, error)

	// UpdateSession saves a session record.
	UpdateSession(session *models.ChatSession) error

	// DeleteSession removes a session and its messages.
	DeleteSession(id string) error

	// CreateMessage inserts a message and touches the session.
	CreateMessage(message *models.ChatMessage) error

	// GetMessages returns a session's messages in chronological order.
	GetMessages(sessionID string, offset, limit int) ([]*models.ChatMessage, int64, error)

	// GetRecentMessages returns the newest messages across sessions.
	GetRecentMessages(limit int) ([]*models.ChatMessage, error)

	// CountMessages counts the messages of a session.
	CountMessages(sessionID string) (int64, error)

	// WithContext returns a repository bound to ctx.
	WithContext(ctx context.Context) ChatRepository
}

// chatRepo is the gorm-backed ChatRepository.
type chatRepo struct {
	db *gorm.DB
}

// NewChatRepository creates a repository on the global database.
func NewChatRepository() ChatRepository {
	return &chatRepo{
		db: database.MustDB(),
	}
}

// NewChatRepositoryWithDB creates a repository on the given connection.
func NewChatRepositoryWithDB(db *gorm.DB) ChatRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &chatRepo{
		db: db,
	}
}

// WithContext returns a repository bound to ctx.
func (r *chatRepo) WithContext(ctx context.Context) ChatRepository {
	return &chatRepo{
		db: r.db.WithContext(ctx),
	}
}

// CreateSession inserts a session record, generating an id if absent.
func (r *chatRepo) CreateSession(session *models.ChatSession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	return r.db.Create(session).Error
}

// GetSession returns the session with the given id.
func (r *chatRepo) GetSession(id string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
		}
		return nil, err
	}
	return &session, nil
}

// ListSessions returns sessions matching the filters, paginated.
func (r *chatRepo) ListSessions(offset, limit int, filters map[string]interface{}) ([]*models.ChatSession, int64, error) {
	var sessions []*models.ChatSession
	var total int64

	query := r.db.Model(&models.ChatSession{})

	if filters != nil {
		if userID, ok := filters["user_id"].(string); ok && userID != "" {
			query = query.Where("user_id = ?", userID)
		}

		if fileID, ok := filters["file_id"].(string); ok && fileID != "" {
			query = query.Where("file_id = ?", fileID)
		}

		if tags, ok := filters["tags"].(string); ok && tags != "" {
			query = query.Where("tags LIKE ?", "%"+tags+"%")
		}

		if startTime, ok := filters["start_time"].(time.Time); ok {
			query = query.Where("created_at >= ?", startTime)
		}

		if endTime, ok := filters["end_time"].(time.Time); ok {
			query = query.Where("created_at <= ?", endTime)
		}

		if title, ok := filters["title"].(string); ok && title != "" {
			query = query.Where("title LIKE ?", "%"+title+"%")
		}
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.Order("updated_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&sessions).Error

	if err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}

// UpdateSession saves a session record.
func (r *chatRepo) UpdateSession(session *models.ChatSession) error {
	if session.ID == "" {
		return errors.New("session ID cannot be empty")
	}

	session.UpdatedAt = time.Now()

	return r.db.Save(session).Error
}

// DeleteSession removes a session and its messages.
func (r *chatRepo) DeleteSession(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}

		return tx.Where("id = ?", id).Delete(&models.ChatSession{}).Error
	})
}

// CreateMessage inserts a message and touches the session's updated_at.
func (r *chatRepo) CreateMessage(message *models.ChatMessage) error {
	if message.SessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	if err := r.db.Create(message).Error; err != nil {
		return err
	}

	return r.db.Model(&models.ChatSession{}).
		Where("id = ?", message.SessionID).
		Update("updated_at", time.Now()).Error
}

// GetMessages returns a session's messages in chronological order.
func (r *chatRepo) GetMessages(sessionID string, offset, limit int) ([]*models.ChatMessage, int64, error) {
	var messages []*models.ChatMessage
	var total int64

	var exists int64
	err := r.db.Model(&models.ChatSession{}).
		Where("id = ?", sessionID).
		Count(&exists).Error

	if err != nil {
		return nil, 0, err
	}

	if exists == 0 {
		return nil, 0, fmt.Errorf("%w: %s", models.ErrSessionNotFound, sessionID)
	}

	err = r.db.Model(&models.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Count(&total).Error

	if err != nil {
		return nil, 0, err
	}

	err = r.db.Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error

	if err != nil {
		return nil, 0, err
	}

	return messages, total, nil
}

// GetRecentMessages returns the newest messages across all sessions.
func (r *chatRepo) GetRecentMessages(limit int) ([]*models.ChatMessage, error) {
	var messages []*models.ChatMessage

	err := r.db.Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error

	if err != nil {
		return nil, err
	}

	return messages, nil
}

// CountMessages counts the messages of a session.
func (r *chatRepo) CountMessages(sessionID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.ChatMessage{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error

	return count, err
}
