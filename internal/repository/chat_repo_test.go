package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/leeszeyu/pdfchat/internal/database"
	"github.com/leeszeyu/pdfchat/internal/models"
)

func setupChatTestDB(t *testing.T) (*gorm.DB, func()) {
	dbName := fmt.Sprintf("file:memdb_chat_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to open in-memory database")

	err = db.AutoMigrate(&models.ChatSession{}, &models.ChatMessage{})
	require.NoError(t, err, "Failed to run migrations")

	originalDB := database.DB
	database.DB = db

	cleanup := func() {
		database.DB = originalDB
	}

	return db, cleanup
}

func TestChatRepository_CreateSession(t *testing.T) {
	_, cleanup := setupChatTestDB(t)
	defer cleanup()

	repo := NewChatRepository()

	session := &models.ChatSession{
		ID:        "test-session-1",
		Title:     "Test Session",
		FileID:    "doc-1",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	err := repo.CreateSession(session)
	assert.NoError(t, err, "Session creation should succeed")

	savedSession, err := repo.GetSession(session.ID)
	assert.NoError(t, err, "Should be able to retrieve created session")
	assert.Equal(t, session.ID, savedSession.ID, "Session ID should match")
	assert.Equal(t, session.Title, savedSession.Title, "Session title should match")
	assert.Equal(t, "doc-1", savedSession.FileID, "Session file ID should match")
}

func TestChatRepository_CreateSessionGeneratesID(t *testing.T) {
	_, cleanup := setupChatTestDB(t)
	defer cleanup()

	repo := NewChatRepository()

	session := &models.ChatSession{Title: "Untitled"}
	err := repo.CreateSession(session)
	assert.NoError(t, err)
	assert.NotEmpty(t, session.ID, "An ID should be generated when absent")
}

func TestChatRepository_GetSession(t *testing.T) {
	_, cleanup := setupChatTestDB(t)
	defer cleanup()

	repo := NewChatRepository()

	session, err := repo.GetSession("non-existing")
	assert.Error(t, err, "Should return error for non-existing session")
	assert.True(t, errors.Is(err, models.ErrSessionNotFound), "Error should wrap ErrSessionNotFound")
	assert.Nil(t, session, "Should return nil for non-existing session")

	testSession := &models.ChatSession{
		ID:        "test-session-2",
		Title:     "Test Session",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	err = repo.CreateSession(testSession)
	require.NoError(t, err)

	session, err = repo.GetSession("test-session-2")
	assert.NoError(t, err, "Should retrieve existing session without error")
	assert.NotNil(t, session, "Should return session object")
	assert.Equal(t, "Test Session", session.Title, "Session title should match")
}

func TestChatRepository_ListSessions(t *testing.T) {
	_, cleanup := setupChatTestDB(t)
	defer cleanup()

	repo := NewChatRepository()

	sessions := []*models.ChatSession{
		{
			ID:        "test-session-3",
			Title:     "Session 1",
			Tags:      "important,first",
			FileID:    "doc-a",
			CreatedAt: time.Now().Add(-2 * time.Hour),
			UpdatedAt: time.Now().Add(-2 * time.Hour),
		},
		{
			ID:        "test-session-4",
			Title:     "Session 2",
			Tags:      "important",
			FileID:    "doc-b",
			CreatedAt: time.Now().Add(-1 * time.Hour),
			UpdatedAt: time.Now().Add(-1 * time.Hour),
		},
		{
			ID:        "test-session-5",
			Title:     "Session 3",
			Tags:      "archive",
			FileID:    "doc-b",
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
	}

	for _, session := range sessions {
		err := repo.CreateSession(session)
		require.NoError(t, err)
	}

	resultSessions, total, err := repo.ListSessions(0, 10, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), total, "Total count should be 3")
	assert.Len(t, resultSessions, 3, "Should return 3 sessions")

	resultSessions, total, err = repo.ListSessions(1, 2, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), total, "Total count should still be 3")
	assert.Len(t, resultSessions, 2, "Should return 2 sessions with offset 1")

	filters := map[string]interface{}{
		"tags": "important",
	}
	resultSessions, total, err = repo.ListSessions(0, 10, filters)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), total, "Total count should be 2")
	assert.Len(t, resultSessions, 2, "Should return 2 sessions with important tag")

	filters = map[string]interface{}{
		"file_id": "doc-b",
	}
	resultSessions, total, err = repo.ListSessions(0, 10, filters)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), total, "Total count should be 2")
	assert.Len(t, resultSessions, 2, "Should return 2 sessions for doc-b")
}

func TestChatRepository_UpdateSession(t *testing.T) {
	_, cleanup := setupChatTestDB(t)
	defer cleanup()

	repo := NewChatRepository()

	session := &models.ChatSession{
		ID:        "test-session-6",
		Title:     "Original Title",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	err := repo.CreateSession(session)
	require.NoError(t, err, "Session creation should succeed")

	session.Title = "Updated Title"
	session.Tags = "important,updated"

	err = repo.UpdateSession(session)
	assert.NoError(t, err, "Session update should succeed")

	updatedSession, err := repo.GetSession(session.ID)
	assert.NoError(t, err)
	assert.Equal(t, "Updated Title", updatedSession.Title, "Title should be updated")
	assert.Equal(t, "important,updated", updatedSession.Tags, "Tags should be updated")
	assert.True(t, updatedSession.UpdatedAt.After(session.CreatedAt) ||
		updatedSession.UpdatedAt.Equal(session.CreatedAt),
		"Updated time should not precede creation time")
}

func TestChatRepository_DeleteSession(t *testing.T) {
	_, cleanup := setupChatTestDB(t)
	defer cleanup()

	repo := NewChatRepository()

	session := &models.ChatSession{
		ID:        "test-session-7",
		Title:     "Test Session",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	err := repo.CreateSession(session)
	require.NoError(t, err)

	message := &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   "Test message",
		CreatedAt: time.Now(),
	}
	err = repo.CreateMessage(message)
	require.NoError(t, err)

	err = repo.DeleteSession(session.ID)
	assert.NoError(t, err, "Delete should succeed")

	_, err = repo.GetSession(session.ID)
	assert.Error(t, err, "Session should no longer exist")

	messages, _, err := repo.GetMessages(session.ID, 0, 10)
	assert.Error(t, err, "GetMessages should error on deleted session")
	assert.True(t, errors.Is(err, models.ErrSessionNotFound))
	assert.Empty(t, messages, "Messages should be empty")
}

func TestChatRepository_CreateMessage(t *testing.T) {
	_, cleanup := setupChatTestDB(t)
	defer cleanup()

	repo := NewChatRepository()

	session := &models.ChatSession{
		ID:        "test-session-8",
		Title:     "Test Session",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	err := repo.CreateSession(session)
	require.NoError(t, err)

	message := &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   "Hello, world!",
		CreatedAt: time.Now(),
	}

	err = repo.CreateMessage(message)
	assert.NoError(t, err, "Message creation should succeed")
	assert.Greater(t, message.ID, uint(0), "Message should have an ID assigned")

	updatedSession, err := repo.GetSession(session.ID)
	assert.NoError(t, err)
	assert.True(t, updatedSession.UpdatedAt.After(session.UpdatedAt) ||
		updatedSession.UpdatedAt.Equal(session.UpdatedAt),
		"Session updated time should be updated")
}

func TestChatRepository_GetMessages(t *testing.T) {
	_, cleanup := setupChatTestDB(t)
	defer cleanup()

	repo := NewChatRepository()

	session := &models.ChatSession{
		ID:        "test-session-9",
		Title:     "Test Session",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	err := repo.CreateSession(session)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		message := &models.ChatMessage{
			SessionID: session.ID,
			Role:      models.RoleUser,
			Content:   fmt.Sprintf("Message %d", i+1),
			CreatedAt: time.Now(),
		}
		err = repo.CreateMessage(message)
		require.NoError(t, err)
	}

	messages, count, err := repo.GetMessages(session.ID, 0, 10)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), count, "Total message count should be 5")
	assert.Len(t, messages, 5, "Should return 5 messages")

	messages, count, err = repo.GetMessages(session.ID, 2, 2)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), count, "Total message count should be 5")
	assert.Len(t, messages, 2, "Should return 2 messages with offset 2")
}

func TestChatRepository_GetRecentMessages(t *testing.T) {
	_, cleanup := setupChatTestDB(t)
	defer cleanup()

	repo := NewChatRepository()

	session1 := &models.ChatSession{
		ID:        "test-session-10",
		Title:     "Session 1",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	session2 := &models.ChatSession{
		ID:        "test-session-11",
		Title:     "Session 2",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	err := repo.CreateSession(session1)
	require.NoError(t, err)
	err = repo.CreateSession(session2)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		message := &models.ChatMessage{
			SessionID: session1.ID,
			Role:      models.RoleUser,
			Content:   fmt.Sprintf("Session 1 Message %d", i+1),
			CreatedAt: time.Now().Add(time.Duration(-3+i) * time.Second),
		}
		err = repo.CreateMessage(message)
		require.NoError(t, err)
	}

	for i := 0; i < 3; i++ {
		message := &models.ChatMessage{
			SessionID: session2.ID,
			Role:      models.RoleUser,
			Content:   fmt.Sprintf("Session 2 Message %d", i+1),
			CreatedAt: time.Now(),
		}
		err = repo.CreateMessage(message)
		require.NoError(t, err)
	}

	messages, err := repo.GetRecentMessages(4)
	assert.NoError(t, err)
	assert.Len(t, messages, 4, "Should return 4 recent messages")

	assert.Equal(t, session2.ID, messages[0].SessionID, "Most recent message should be from session 2")
}

func TestChatRepository_CountMessages(t *testing.T) {
	_, cleanup := setupChatTestDB(t)
	defer cleanup()

	repo := NewChatRepository()

	session := &models.ChatSession{
		ID:        "test-session-12",
		Title:     "Test Session",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	err := repo.CreateSession(session)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		message := &models.ChatMessage{
			SessionID: session.ID,
			Role:      models.RoleUser,
			Content:   fmt.Sprintf("Message %d", i+1),
			CreatedAt: time.Now(),
		}
		err = repo.CreateMessage(message)
		require.NoError(t, err)
	}

	count, err := repo.CountMessages(session.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), count, "Message count should be 3")
}

func TestChatRepository_WithContext(t *testing.T) {
	_, cleanup := setupChatTestDB(t)
	defer cleanup()

	repo := NewChatRepository()

	repoWithCtx := repo.WithContext(context.Background())
	assert.NotNil(t, repoWithCtx, "Repository with context should not be nil")

	session := &models.ChatSession{
		ID:        "test-session-13",
		Title:     "Test With Context",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	err := repoWithCtx.CreateSession(session)
	assert.NoError(t, err, "Creating session with context should succeed")

	retrievedSession, err := repoWithCtx.GetSession(session.ID)
	assert.NoError(t, err)
	assert.Equal(t, session.ID, retrievedSession.ID)
}
