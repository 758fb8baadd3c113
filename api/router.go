package api

import (
	"github.com/gin-gonic/gin"
	"github.com/leeszeyu/pdfchat/api/handler"
	"github.com/leeszeyu/pdfchat/api/middleware"
	"github.com/leeszeyu/pdfchat/api/model"
)

// SetupRouter wires every API endpoint and the global middleware.
// The chat and task handlers are optional, their routes are only
// registered when present.
func SetupRouter(
	docHandler *handler.DocumentHandler,
	qaHandler *handler.QAHandler,
	chatHandler *handler.ChatHandler,
	taskHandler *handler.TaskHandler,
) *gin.Engine {
	model.RegisterValidations()

	router := gin.Default()

	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())

	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	api := router.Group("/api")
	{
		docGroup := api.Group("/documents")
		{
			docGroup.POST("", docHandler.UploadDocument)
			docGroup.GET("", docHandler.ListDocuments)
			docGroup.GET("/:id/status", docHandler.GetDocumentStatus)
			docGroup.DELETE("/:id", docHandler.DeleteDocument)

			if taskHandler != nil {
				docGroup.GET("/:id/tasks", taskHandler.GetDocumentTasks)
			}
		}

		api.POST("/qa", qaHandler.AnswerQuestion)

		if chatHandler != nil {
			chatGroup := api.Group("/chats")
			{
				chatGroup.POST("", chatHandler.CreateChat)
				chatGroup.GET("", chatHandler.ListChats)
				chatGroup.GET("/:session_id", chatHandler.GetChatHistory)
				chatGroup.PATCH("/:session_id", chatHandler.RenameChat)
				chatGroup.DELETE("/:session_id", chatHandler.DeleteChat)
				chatGroup.POST("/messages", chatHandler.AddMessage)
			}
		}

		if taskHandler != nil {
			api.GET("/tasks/:id", taskHandler.GetTaskStatus)
		}

		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}

// RegisterWebUI serves the bundled single page chat UI.
func RegisterWebUI(router *gin.Engine, dir string) {
	if dir == "" {
		dir = "./web"
	}
	router.StaticFile("/", dir+"/index.html")
	router.Static("/static", dir+"/static")
}

// Cors allows cross origin requests, useful when the UI is served
// from another host during development.
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
