package handler

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leeszeyu/pdfchat/api/middleware"
	"github.com/leeszeyu/pdfchat/api/model"
	"github.com/leeszeyu/pdfchat/internal/services"
	"github.com/leeszeyu/pdfchat/pkg/storage"
	"github.com/sirupsen/logrus"
)

// DocumentHandler serves the document upload and status endpoints.
type DocumentHandler struct {
	storage         storage.Storage
	documentService *services.DocumentService
	qaService       *services.QAService
	logger          *logrus.Logger
}

// NewDocumentHandler creates a document handler. The QA service may be
// nil, it is only used to drop stale cached answers on upload.
func NewDocumentHandler(
	storageService storage.Storage,
	documentService *services.DocumentService,
	qaService *services.QAService,
) *DocumentHandler {
	return &DocumentHandler{
		storage:         storageService,
		documentService: documentService,
		qaService:       qaService,
		logger:          middleware.GetLogger(),
	}
}

// supported upload extensions
var allowedFileTypes = map[string]bool{
	".pdf":      true,
	".md":       true,
	".markdown": true,
	".txt":      true,
}

func isValidFileType(filename string) bool {
	return allowedFileTypes[strings.ToLower(filepath.Ext(filename))]
}

// UploadDocument accepts a file and starts indexing it. Uploading a
// new document replaces the previous one: its vectors, records and
// cached answers are dropped first.
// POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	var req model.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid upload request")
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"missing file in upload request",
		))
		return
	}

	if !isValidFileType(req.File.Filename) {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"unsupported file type, expected pdf, markdown or txt",
		))
		return
	}

	ctx := c.Request.Context()

	// One document at a time: clear the previous index before
	// registering the new upload.
	if err := h.documentService.ResetIndex(ctx); err != nil {
		h.logger.WithError(err).Error("Failed to reset index for new upload")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to replace previous document",
		))
		return
	}
	if h.qaService != nil {
		if err := h.qaService.ClearCache(); err != nil {
			h.logger.WithError(err).Warn("Failed to clear answer cache")
		}
	}

	file, err := req.File.Open()
	if err != nil {
		h.logger.WithError(err).Error("Failed to open uploaded file")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to read uploaded file",
		))
		return
	}
	defer file.Close()

	info, err := h.storage.Save(file, req.File.Filename)
	if err != nil {
		h.logger.WithError(err).Error("Failed to save uploaded file")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to store uploaded file",
		))
		return
	}

	if err := h.documentService.RegisterUpload(ctx, info.ID, req.File.Filename, info.Path, info.Size); err != nil {
		h.logger.WithError(err).Error("Failed to record uploaded document")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to record uploaded document",
		))
		return
	}

	if req.Tags != "" {
		if err := h.documentService.UpdateDocumentTags(ctx, info.ID, req.Tags); err != nil {
			h.logger.WithError(err).Warn("Failed to set document tags")
		}
	}

	// Indexing runs after the response; the client polls the status
	// endpoint or the task API.
	go func(fileID, filePath string) {
		bgCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := h.documentService.ProcessDocument(bgCtx, fileID, filePath); err != nil {
			h.logger.WithError(err).WithField("file_id", fileID).Error("Document processing failed")
		}
	}(info.ID, info.Path)

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentUploadResponse{
		FileID:   info.ID,
		FileName: req.File.Filename,
		Status:   "processing",
	}))
}

// GetDocumentStatus reports processing progress for a document.
// GET /api/documents/:id/status
func (h *DocumentHandler) GetDocumentStatus(c *gin.Context) {
	var req model.DocumentStatusRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"missing document id",
		))
		return
	}

	doc, err := h.documentService.GetDocument(c.Request.Context(), req.ID)
	if err != nil {
		h.logger.WithError(err).WithField("file_id", req.ID).Warn("Document not found")
		c.JSON(http.StatusNotFound, model.NewErrorResponse(
			http.StatusNotFound,
			"document not found",
		))
		return
	}

	resp := model.DocumentStatusResponse{
		FileID:    doc.ID,
		Status:    string(doc.Status),
		FileName:  doc.FileName,
		Progress:  doc.Progress,
		Stage:     string(doc.CurrentStage),
		Error:     doc.Error,
		Pages:     doc.PageCount,
		Segments:  doc.SegmentCount,
		CreatedAt: doc.UploadedAt.Format(time.RFC3339),
		UpdatedAt: doc.UpdatedAt.Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// ListDocuments returns the stored documents, newest first.
// GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	var req model.DocumentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"invalid list parameters",
		))
		return
	}

	filters := make(map[string]interface{})
	if req.Status != "" {
		filters["status"] = req.Status
	}
	if req.Tags != "" {
		filters["tags"] = req.Tags
	}

	offset := (req.GetPage() - 1) * req.GetPageSize()
	docs, total, err := h.documentService.ListDocuments(c.Request.Context(), offset, req.GetPageSize(), filters)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list documents")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to list documents",
		))
		return
	}

	infos := make([]model.DocumentInfo, 0, len(docs))
	for _, doc := range docs {
		infos = append(infos, model.DocumentInfo{
			FileID:     doc.ID,
			FileName:   doc.FileName,
			Status:     string(doc.Status),
			Tags:       doc.Tags,
			UploadTime: doc.UploadedAt,
			Pages:      doc.PageCount,
			Segments:   doc.SegmentCount,
		})
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentListResponse{
		Total:     total,
		Page:      req.GetPage(),
		PageSize:  req.GetPageSize(),
		Documents: infos,
	}))
}

// DeleteDocument removes a document, its segments and vectors.
// DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	var req model.DocumentDeleteRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"missing document id",
		))
		return
	}

	if err := h.documentService.DeleteDocument(c.Request.Context(), req.ID); err != nil {
		h.logger.WithError(err).WithField("file_id", req.ID).Error("Failed to delete document")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"failed to delete document",
		))
		return
	}

	if h.qaService != nil {
		if err := h.qaService.ClearCache(); err != nil {
			h.logger.WithError(err).Warn("Failed to clear answer cache")
		}
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentDeleteResponse{
		Success: true,
		FileID:  req.ID,
	}))
}
