package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/leeszeyu/pdfchat/api/middleware"
	"github.com/leeszeyu/pdfchat/api/model"
	"github.com/leeszeyu/pdfchat/internal/models"
	"github.com/leeszeyu/pdfchat/internal/services"
	"github.com/leeszeyu/pdfchat/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// historyWindow limits how many past messages feed follow-up
// condensation.
const historyWindow = 10

// QAHandler answers questions about the indexed document. With a
// session id the question is treated as part of a conversation and
// the exchange is persisted to that session.
type QAHandler struct {
	qaService       *services.QAService
	chatService     *services.ChatService
	documentService *services.DocumentService
	logger          *logrus.Logger
}

// NewQAHandler creates a QA handler. Chat and document services may
// be nil for a bare question endpoint without sessions.
func NewQAHandler(
	qaService *services.QAService,
	chatService *services.ChatService,
	documentService *services.DocumentService,
) *QAHandler {
	return &QAHandler{
		qaService:       qaService,
		chatService:     chatService,
		documentService: documentService,
		logger:          middleware.GetLogger(),
	}
}

// AnswerQuestion answers a question with page citations.
// POST /api/qa
func (h *QAHandler) AnswerQuestion(c *gin.Context) {
	var req model.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid QA request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"question is required",
		))
		return
	}

	ctx := c.Request.Context()

	var session *models.ChatSession
	if req.SessionID != "" {
		if h.chatService == nil {
			c.JSON(http.StatusBadRequest, model.NewErrorResponse(
				http.StatusBadRequest,
				"chat sessions are not enabled",
			))
			return
		}

		var err error
		session, err = h.chatService.GetChatSession(ctx, req.SessionID)
		if err != nil {
			h.logger.WithError(err).WithField("session_id", req.SessionID).Warn("Chat session not found")
			c.JSON(http.StatusNotFound, model.NewErrorResponse(
				http.StatusNotFound,
				"chat session not found",
			))
			return
		}
	}

	fileID := h.resolveFileID(c, &req, session)

	var (
		answer  string
		sources []vectordb.Document
		err     error
	)

	switch {
	case session != nil:
		answer, sources, err = h.answerInSession(c, &req, session, fileID)
	case len(req.Metadata) > 0:
		answer, sources, err = h.qaService.AnswerWithMetadata(ctx, req.Question, req.Metadata)
	case fileID != "":
		answer, sources, err = h.qaService.AnswerWithFile(ctx, req.Question, fileID)
	default:
		answer, sources, err = h.qaService.Answer(ctx, req.Question)
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to answer question")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to generate answer",
		))
		return
	}

	resp := model.QAResponse{
		Question: req.Question,
		Answer:   answer,
		Sources:  model.ConvertToSourceInfo(sources),
	}
	if session != nil {
		resp.SessionID = session.ID
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// resolveFileID picks the document to answer from: the request, then
// the session, then the currently indexed document.
func (h *QAHandler) resolveFileID(c *gin.Context, req *model.QARequest, session *models.ChatSession) string {
	if req.FileID != "" {
		return req.FileID
	}
	if session != nil && session.FileID != "" {
		return session.FileID
	}
	if h.documentService == nil {
		return ""
	}

	doc, err := h.documentService.ActiveDocument(c.Request.Context())
	if err != nil {
		if !errors.Is(err, models.ErrDocumentNotFound) {
			h.logger.WithError(err).Warn("Failed to resolve active document")
		}
		return ""
	}
	return doc.ID
}

// answerInSession answers with conversation history and records both
// sides of the exchange.
func (h *QAHandler) answerInSession(c *gin.Context, req *model.QARequest, session *models.ChatSession, fileID string) (string, []vectordb.Document, error) {
	ctx := c.Request.Context()

	history, err := h.chatService.GetHistory(ctx, session.ID, historyWindow)
	if err != nil {
		h.logger.WithError(err).WithField("session_id", session.ID).Warn("Failed to load chat history")
		history = nil
	}

	answer, sources, err := h.qaService.AnswerWithHistory(ctx, req.Question, fileID, history)
	if err != nil {
		return "", nil, err
	}

	if err := h.chatService.AddMessage(ctx, &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   req.Question,
	}); err != nil {
		h.logger.WithError(err).WithField("session_id", session.ID).Error("Failed to record question")
	}

	if err := h.chatService.SaveMessageWithSources(ctx, &models.ChatMessage{
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   answer,
	}, convertSources(sources)); err != nil {
		h.logger.WithError(err).WithField("session_id", session.ID).Error("Failed to record answer")
	}

	return answer, sources, nil
}

// convertSources maps retrieved chunks to persisted citations.
func convertSources(docs []vectordb.Document) []models.Source {
	sources := make([]models.Source, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, models.Source{
			FileID:   doc.FileID,
			FileName: doc.FileName,
			Page:     doc.PageNumber,
			Position: doc.Position,
			Text:     doc.Text,
		})
	}
	return sources
}
