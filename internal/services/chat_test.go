package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/leeszeyu/pdfchat/internal/llm"
	"github.com/leeszeyu/pdfchat/internal/models"
	"github.com/leeszeyu/pdfchat/internal/repository"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupChatService(t *testing.T) *ChatService {
	t.Helper()

	setupTestDB(t)

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return NewChatService(repository.NewChatRepository(), WithChatLogger(logger))
}

func TestCreateChat(t *testing.T) {
	service := setupChatService(t)
	ctx := context.Background()

	session, err := service.CreateChat(ctx, "Quarterly report", "doc-1")
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "Quarterly report", session.Title)
	assert.Equal(t, "doc-1", session.FileID)

	fetched, err := service.GetChatSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, fetched.ID)
}

func TestCreateChatDefaultTitle(t *testing.T) {
	service := setupChatService(t)

	session, err := service.CreateChat(context.Background(), "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Title)
}

func TestGetChatSessionMissing(t *testing.T) {
	service := setupChatService(t)

	_, err := service.GetChatSession(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrSessionNotFound))
}

func TestAttachDocument(t *testing.T) {
	service := setupChatService(t)
	ctx := context.Background()

	session, err := service.CreateChat(ctx, "chat", "")
	require.NoError(t, err)

	require.NoError(t, service.AttachDocument(ctx, session.ID, "doc-9"))

	fetched, err := service.GetChatSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "doc-9", fetched.FileID)
}

func TestAddAndGetMessages(t *testing.T) {
	service := setupChatService(t)
	ctx := context.Background()

	session, err := service.CreateChat(ctx, "chat", "doc-1")
	require.NoError(t, err)

	require.NoError(t, service.AddMessage(ctx, &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   "What is the summary?",
	}))
	require.NoError(t, service.AddMessage(ctx, &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   "The document describes the migration plan.",
	}))

	messages, total, err := service.GetChatMessages(ctx, session.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, models.RoleAssistant, messages[1].Role)

	count, err := service.CountChatMessages(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestAddMessageValidation(t *testing.T) {
	service := setupChatService(t)
	ctx := context.Background()

	err := service.AddMessage(ctx, &models.ChatMessage{Role: models.RoleUser, Content: "hi"})
	assert.Error(t, err, "session id is required")

	err = service.AddMessage(ctx, &models.ChatMessage{SessionID: "s", Role: models.RoleUser})
	assert.Error(t, err, "content is required")
}

func TestAddMessageNormalizesRole(t *testing.T) {
	service := setupChatService(t)
	ctx := context.Background()

	session, err := service.CreateChat(ctx, "chat", "")
	require.NoError(t, err)

	msg := &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.MessageRole("bogus"),
		Content:   "hello",
	}
	require.NoError(t, service.AddMessage(ctx, msg))
	assert.Equal(t, models.RoleUser, msg.Role)
}

func TestSaveMessageWithSources(t *testing.T) {
	service := setupChatService(t)
	ctx := context.Background()

	session, err := service.CreateChat(ctx, "chat", "doc-1")
	require.NoError(t, err)

	sources := []models.Source{
		{FileID: "doc-1", FileName: "report.pdf", Page: 3, Position: 7, Text: "the cited passage", Score: 0.92},
		{FileID: "doc-1", FileName: "report.pdf", Page: 5, Position: 12, Text: "another passage", Score: 0.88},
	}

	err = service.SaveMessageWithSources(ctx, &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   "The plan is described on pages 3 and 5.",
	}, sources)
	require.NoError(t, err)

	messages, _, err := service.GetChatMessages(ctx, session.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	var stored []models.Source
	require.NoError(t, json.Unmarshal(messages[0].Sources, &stored))
	require.Len(t, stored, 2)
	assert.Equal(t, 3, stored[0].Page)
	assert.Equal(t, 5, stored[1].Page)
}

func TestGetHistory(t *testing.T) {
	service := setupChatService(t)
	ctx := context.Background()

	session, err := service.CreateChat(ctx, "chat", "doc-1")
	require.NoError(t, err)

	turns := []struct {
		role    models.MessageRole
		content string
	}{
		{models.RoleUser, "first question"},
		{models.RoleAssistant, "first answer"},
		{models.RoleUser, "second question"},
		{models.RoleAssistant, "second answer"},
	}
	for _, turn := range turns {
		require.NoError(t, service.AddMessage(ctx, &models.ChatMessage{
			SessionID: session.ID,
			Role:      turn.role,
			Content:   turn.content,
		}))
	}

	history, err := service.GetHistory(ctx, session.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, llm.RoleUser, history[0].Role)
	assert.Equal(t, "first question", history[0].Content)
	assert.Equal(t, llm.RoleAssistant, history[3].Role)

	// A small limit keeps only the newest turns, still in order.
	history, err = service.GetHistory(ctx, session.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "second question", history[0].Content)
	assert.Equal(t, "second answer", history[1].Content)
}

func TestRenameChatSession(t *testing.T) {
	service := setupChatService(t)
	ctx := context.Background()

	session, err := service.CreateChat(ctx, "old title", "")
	require.NoError(t, err)

	require.NoError(t, service.RenameChatSession(ctx, session.ID, "new title"))

	fetched, err := service.GetChatSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "new title", fetched.Title)
}

func TestDeleteChatSession(t *testing.T) {
	service := setupChatService(t)
	ctx := context.Background()

	session, err := service.CreateChat(ctx, "chat", "")
	require.NoError(t, err)

	require.NoError(t, service.AddMessage(ctx, &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   "hello",
	}))

	require.NoError(t, service.DeleteChatSession(ctx, session.ID))

	_, err = service.GetChatSession(ctx, session.ID)
	assert.Error(t, err)
}

func TestListChatSessionsAndCounts(t *testing.T) {
	service := setupChatService(t)
	ctx := context.Background()

	first, err := service.CreateChat(ctx, "first", "doc-1")
	require.NoError(t, err)
	_, err = service.CreateChat(ctx, "second", "doc-1")
	require.NoError(t, err)

	require.NoError(t, service.AddMessage(ctx, &models.ChatMessage{
		SessionID: first.ID,
		Role:      models.RoleUser,
		Content:   "hi",
	}))

	sessions, total, err := service.ListChatSessions(ctx, 0, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, sessions, 2)

	withCounts, total, err := service.GetChatsWithMessageCount(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, withCounts, 2)

	var found bool
	for _, entry := range withCounts {
		if entry["id"] == first.ID {
			found = true
			assert.Equal(t, int64(1), entry["message_count"])
		}
	}
	assert.True(t, found)
}
