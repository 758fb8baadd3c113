package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leeszeyu/pdfchat/api/middleware"
	"github.com/leeszeyu/pdfchat/api/model"
	"github.com/leeszeyu/pdfchat/internal/models"
	"github.com/leeszeyu/pdfchat/internal/services"
	"github.com/sirupsen/logrus"
)

// ChatHandler serves the chat session endpoints.
type ChatHandler struct {
	chatService     *services.ChatService
	qaService       *services.QAService
	documentService *services.DocumentService
	logger          *logrus.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(
	chatService *services.ChatService,
	qaService *services.QAService,
	documentService *services.DocumentService,
) *ChatHandler {
	return &ChatHandler{
		chatService:     chatService,
		qaService:       qaService,
		documentService: documentService,
		logger:          middleware.GetLogger(),
	}
}

// CreateChat starts a new chat session. Without an explicit file id
// the session is attached to the currently indexed document.
// POST /api/chats
func (h *ChatHandler) CreateChat(c *gin.Context) {
	// The body is optional, both title and file id have defaults.
	var req model.CreateChatRequest
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()

	fileID := req.FileID
	if fileID == "" && h.documentService != nil {
		if doc, err := h.documentService.ActiveDocument(ctx); err == nil {
			fileID = doc.ID
		}
	}

	session, err := h.chatService.CreateChat(ctx, req.Title, fileID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create chat session")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to create chat session",
		))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.CreateChatResponse{
		SessionID: session.ID,
		Title:     session.Title,
		FileID:    session.FileID,
		CreatedAt: session.CreatedAt,
	}))
}

// GetChatHistory returns a session and its messages.
// GET /api/chats/:session_id
func (h *ChatHandler) GetChatHistory(c *gin.Context) {
	var req model.GetChatHistoryRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"missing session id",
		))
		return
	}
	if err := c.ShouldBindQuery(&req.PaginationRequest); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"invalid pagination parameters",
		))
		return
	}

	ctx := c.Request.Context()

	session, err := h.chatService.GetChatSession(ctx, req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(
			http.StatusNotFound,
			"chat session not found",
		))
		return
	}

	offset := (req.GetPage() - 1) * req.GetPageSize()
	messages, total, err := h.chatService.GetChatMessages(ctx, req.SessionID, offset, req.GetPageSize())
	if err != nil {
		h.logger.WithError(err).WithField("session_id", req.SessionID).Error("Failed to get chat messages")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to load chat messages",
		))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ChatHistoryResponse{
		SessionID: session.ID,
		Title:     session.Title,
		FileID:    session.FileID,
		Total:     total,
		Messages:  toMessageInfos(messages),
	}))
}

// ListChats lists sessions with their message counts.
// GET /api/chats
func (h *ChatHandler) ListChats(c *gin.Context) {
	var req model.ChatListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"invalid list parameters",
		))
		return
	}

	offset := (req.GetPage() - 1) * req.GetPageSize()
	chats, total, err := h.chatService.GetChatsWithMessageCount(c.Request.Context(), offset, req.GetPageSize())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list chat sessions")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to list chat sessions",
		))
		return
	}

	chatInfos := make([]model.ChatInfo, 0, len(chats))
	for _, chat := range chats {
		info := model.ChatInfo{
			ID:    chat["id"].(string),
			Title: chat["title"].(string),
		}
		if fileID, ok := chat["file_id"].(string); ok {
			info.FileID = fileID
		}
		if createdAt, ok := chat["created_at"].(time.Time); ok {
			info.CreatedAt = createdAt
		}
		if updatedAt, ok := chat["updated_at"].(time.Time); ok {
			info.UpdatedAt = updatedAt
		}
		if count, ok := chat["message_count"].(int64); ok {
			info.MessageCount = int(count)
		}
		chatInfos = append(chatInfos, info)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ChatListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Chats:    chatInfos,
	}))
}

// AddMessage appends a message to a session. A user message triggers
// a history-aware answer about the session's document.
// POST /api/chats/messages
func (h *ChatHandler) AddMessage(c *gin.Context) {
	var req model.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid add message request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"session_id, role and content are required",
		))
		return
	}

	ctx := c.Request.Context()

	session, err := h.chatService.GetChatSession(ctx, req.SessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, model.NewErrorResponse(
			http.StatusNotFound,
			"chat session not found",
		))
		return
	}

	if models.MessageRole(req.Role) != models.RoleUser {
		if err := h.chatService.AddMessage(ctx, &models.ChatMessage{
			SessionID: req.SessionID,
			Role:      models.MessageRole(req.Role),
			Content:   req.Content,
		}); err != nil {
			h.logger.WithError(err).WithField("session_id", req.SessionID).Error("Failed to add message")
			c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
				http.StatusInternalServerError,
				"failed to add message",
			))
			return
		}

		c.JSON(http.StatusOK, model.NewSuccessResponse(map[string]interface{}{
			"success": true,
		}))
		return
	}

	fileID := session.FileID
	if fileID == "" && h.documentService != nil {
		if doc, err := h.documentService.ActiveDocument(ctx); err == nil {
			fileID = doc.ID
		}
	}

	history, err := h.chatService.GetHistory(ctx, session.ID, historyWindow)
	if err != nil {
		h.logger.WithError(err).WithField("session_id", session.ID).Warn("Failed to load chat history")
		history = nil
	}

	answer, sources, err := h.qaService.AnswerWithHistory(ctx, req.Content, fileID, history)
	if err != nil {
		h.logger.WithError(err).WithField("session_id", session.ID).Error("Failed to generate answer")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to generate answer",
		))
		return
	}

	if err := h.chatService.AddMessage(ctx, &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   req.Content,
	}); err != nil {
		h.logger.WithError(err).WithField("session_id", session.ID).Error("Failed to record question")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to record question",
		))
		return
	}

	if err := h.chatService.SaveMessageWithSources(ctx, &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   answer,
	}, convertSources(sources)); err != nil {
		h.logger.WithError(err).WithField("session_id", session.ID).Error("Failed to record answer")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to record answer",
		))
		return
	}

	count, err := h.chatService.CountChatMessages(ctx, session.ID)
	if err != nil {
		count = 2
	}
	offset := int(count) - 2
	if offset < 0 {
		offset = 0
	}

	messages, _, err := h.chatService.GetChatMessages(ctx, session.ID, offset, 2)
	if err != nil || len(messages) < 2 {
		c.JSON(http.StatusOK, model.NewSuccessResponse(map[string]interface{}{
			"success": true,
			"answer":  answer,
		}))
		return
	}

	infos := toMessageInfos(messages)
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ChatMessageReply{
		SessionID:        session.ID,
		UserMessage:      infos[0],
		AssistantMessage: infos[1],
	}))
}

// RenameChat changes a session's title.
// PATCH /api/chats/:session_id
func (h *ChatHandler) RenameChat(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"missing session id",
		))
		return
	}

	var req model.RenameChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"title is required",
		))
		return
	}

	ctx := c.Request.Context()

	if err := h.chatService.RenameChatSession(ctx, sessionID, req.Title); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"session_id": sessionID,
			"new_title":  req.Title,
		}).Error("Failed to rename chat session")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to rename chat session",
		))
		return
	}

	session, err := h.chatService.GetChatSession(ctx, sessionID)
	if err != nil {
		c.JSON(http.StatusOK, model.NewSuccessResponse(map[string]interface{}{
			"success":    true,
			"session_id": sessionID,
			"title":      req.Title,
		}))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(map[string]interface{}{
		"success":    true,
		"session_id": session.ID,
		"title":      session.Title,
		"updated_at": session.UpdatedAt,
	}))
}

// DeleteChat removes a session and its messages.
// DELETE /api/chats/:session_id
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	var req model.DeleteChatRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"missing session id",
		))
		return
	}

	if err := h.chatService.DeleteChatSession(c.Request.Context(), req.SessionID); err != nil {
		h.logger.WithError(err).WithField("session_id", req.SessionID).Error("Failed to delete chat session")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to delete chat session",
		))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DeleteChatResponse{
		Success:   true,
		SessionID: req.SessionID,
	}))
}

// toMessageInfos maps stored messages to response entries, decoding
// any persisted citations.
func toMessageInfos(messages []*models.ChatMessage) []model.MessageInfo {
	infos := make([]model.MessageInfo, 0, len(messages))
	for _, msg := range messages {
		var sources []model.QASourceInfo
		if len(msg.Sources) > 0 {
			var stored []models.Source
			if err := json.Unmarshal(msg.Sources, &stored); err == nil {
				for _, src := range stored {
					sources = append(sources, model.QASourceInfo{
						FileID:   src.FileID,
						FileName: src.FileName,
						Page:     src.Page,
						Position: src.Position,
						Text:     model.SourceSnippet(src.Text),
						Score:    src.Score,
					})
				}
			}
		}

		infos = append(infos, model.MessageInfo{
			ID:        strconv.Itoa(int(msg.ID)),
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
			Sources:   sources,
		})
	}
	return infos
}
