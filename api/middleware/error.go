package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/leeszeyu/pdfchat/api/model"
	"github.com/sirupsen/logrus"
)

// Error categories handlers can attach to the context.
const (
	ErrorTypeValidation = "VALIDATION_ERROR"
	ErrorTypeNotFound   = "NOT_FOUND_ERROR"
	ErrorTypeInternal   = "INTERNAL_ERROR"
	ErrorTypeBusiness   = "BUSINESS_ERROR"
)

// AppError carries a category and an HTTP status alongside the message.
type AppError struct {
	Type    string
	Message string
	Details string
	Code    int
}

func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError builds a 400 validation error.
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewNotFoundError builds a 404 error.
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewInternalError builds a 500 error.
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// NewBusinessError builds a 400 error for a domain rule violation.
func NewBusinessError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeBusiness,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// ErrorMiddleware recovers from panics and turns context errors into
// JSON error responses.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithFields(logrus.Fields{
					"error": err,
					"stack": string(debug.Stack()),
					"path":  c.Request.URL.Path,
				}).Error("Panic recovered in API request")

				errResp := model.NewErrorResponse(
					http.StatusInternalServerError,
					"An unexpected error occurred",
				)
				if gin.Mode() == gin.DebugMode {
					errResp.Message = fmt.Sprintf("Panic: %v", err)
				}
				if traceID, exists := c.Get("TraceID"); exists {
					errResp.TraceID = traceID.(string)
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, errResp)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err

		traceID := ""
		if traceIDValue, exists := c.Get("TraceID"); exists {
			traceID = traceIDValue.(string)
		}

		switch e := err.(type) {
		case AppError:
			writeAppError(c, e, traceID)
		case *AppError:
			writeAppError(c, *e, traceID)
		default:
			log.WithFields(logrus.Fields{
				"trace_id": traceID,
				"path":     c.Request.URL.Path,
			}).Error(err.Error())

			errResp := model.NewErrorResponse(
				http.StatusInternalServerError,
				"Internal server error",
			)
			errResp.TraceID = traceID
			if gin.Mode() == gin.DebugMode {
				errResp.Message = err.Error()
			}

			c.JSON(http.StatusInternalServerError, errResp)
		}

		c.Abort()
	}
}

func writeAppError(c *gin.Context, e AppError, traceID string) {
	log.WithFields(logrus.Fields{
		"error_type": e.Type,
		"trace_id":   traceID,
		"path":       c.Request.URL.Path,
	}).Error(e.Message)

	errResp := model.NewErrorResponse(e.Code, e.Message)
	errResp.TraceID = traceID

	c.JSON(e.Code, errResp)
}

// HandleError attaches an error to the context for ErrorMiddleware.
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
}
