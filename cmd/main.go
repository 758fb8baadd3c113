package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/leeszeyu/pdfchat/api"
	"github.com/leeszeyu/pdfchat/api/handler"
	"github.com/leeszeyu/pdfchat/api/middleware"
	appconfig "github.com/leeszeyu/pdfchat/config"
	"github.com/leeszeyu/pdfchat/internal/cache"
	"github.com/leeszeyu/pdfchat/internal/database"
	"github.com/leeszeyu/pdfchat/internal/document"
	"github.com/leeszeyu/pdfchat/internal/embedding"
	"github.com/leeszeyu/pdfchat/internal/llm"
	"github.com/leeszeyu/pdfchat/internal/repository"
	"github.com/leeszeyu/pdfchat/internal/services"
	"github.com/leeszeyu/pdfchat/internal/vectordb"
	"github.com/leeszeyu/pdfchat/pkg/storage"
	"github.com/leeszeyu/pdfchat/pkg/taskqueue"
)

func main() {
	configFile := flag.String("config", "", "path to config file")
	mode := flag.String("mode", "release", "run mode (debug/release)")
	logLevel := flag.String("log-level", "info", "log level (debug/info/warn/error)")
	logFile := flag.String("log-file", "", "path of the rotated log file, empty logs to stdout only")
	webDir := flag.String("web", "./web", "directory of the web UI, empty disables it")
	flag.Parse()

	// A local .env is optional, the environment wins either way.
	_ = godotenv.Load()

	cfg, err := appconfig.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	gin.SetMode(*mode)
	logger := setupLogger(*logLevel)
	if *logFile != "" {
		middleware.EnableLogRotation(*logFile)
	}
	logger.Info("starting pdfchat server...")

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	if err := setupDatabase(cfg, logger); err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	defer database.Close()

	fileStorage, err := setupStorage(cfg)
	if err != nil {
		logger.Fatalf("failed to initialize storage: %v", err)
	}

	vectorDB, err := setupVectorDB(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to initialize vector database: %v", err)
	}
	defer vectorDB.Close()

	embedder, err := embedding.NewClient(cfg.Embed.Provider,
		embedding.WithAPIKey(cfg.Embed.APIKey),
		embedding.WithBaseURL(cfg.Embed.Endpoint),
		embedding.WithModel(cfg.Embed.Model),
		embedding.WithDimensions(cfg.Embed.Dimensions),
		embedding.WithBatchSize(cfg.Embed.BatchSize),
	)
	if err != nil {
		logger.Fatalf("failed to initialize embedding client: %v", err)
	}

	llmClient, err := llm.NewClient(cfg.LLM.Provider,
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithBaseURL(cfg.LLM.Endpoint),
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(cfg.LLM.Temperature),
	)
	if err != nil {
		logger.Fatalf("failed to initialize LLM client: %v", err)
	}

	ragService := llm.NewRAG(llmClient,
		llm.WithRAGMaxTokens(cfg.LLM.MaxTokens),
		llm.WithRAGTemperature(cfg.LLM.Temperature),
	)

	cacheService, err := setupCache(cfg)
	if err != nil {
		logger.Fatalf("failed to initialize cache: %v", err)
	}

	var queue taskqueue.Queue
	if cfg.Queue.Enable {
		queue, err = taskqueue.NewRedisQueue(&taskqueue.Config{
			RedisAddr:     cfg.Queue.RedisAddr,
			RedisPassword: cfg.Queue.RedisPassword,
			RedisDB:       cfg.Queue.RedisDB,
			Concurrency:   cfg.Queue.Concurrency,
			RetryLimit:    cfg.Queue.RetryLimit,
			RetryDelay:    time.Duration(cfg.Queue.RetryDelay) * time.Second,
		})
		if err != nil {
			logger.Fatalf("failed to initialize task queue: %v", err)
		}
		defer queue.Close()
		logger.WithFields(logrus.Fields{
			"redis_addr":  cfg.Queue.RedisAddr,
			"concurrency": cfg.Queue.Concurrency,
		}).Info("task queue enabled, documents will be indexed asynchronously")
	}

	var repo repository.DocumentRepository
	if queue != nil {
		repo = repository.NewDocumentRepositoryWithQueue(database.MustDB(), queue)
	} else {
		repo = repository.NewDocumentRepository()
	}
	statusManager := services.NewDocumentStatusManager(repo, logger)

	splitter := document.NewTextSplitter(document.SplitterConfig{
		SplitType:    document.ByParagraph,
		ChunkSize:    cfg.Document.ChunkSize,
		ChunkOverlap: cfg.Document.ChunkOverlap,
	})

	documentOptions := []services.DocumentOption{
		services.WithDocumentRepository(repo),
		services.WithStatusManager(statusManager),
		services.WithBatchSize(cfg.Embed.BatchSize),
		services.WithLogger(logger),
	}
	if queue != nil {
		documentOptions = append(documentOptions,
			services.WithTaskQueue(queue),
			services.WithAsyncProcessing(true),
		)
	}

	documentService := services.NewDocumentService(
		fileStorage,
		splitter,
		embedder,
		vectorDB,
		documentOptions...,
	)

	var worker taskqueue.Worker
	if queue != nil {
		redisQueue, ok := queue.(*taskqueue.RedisQueue)
		if !ok {
			logger.Fatal("task queue does not support workers")
		}
		worker = taskqueue.NewRedisWorker(redisQueue, nil)
		documentService.RegisterWorker(worker, logger)
		if err := worker.Start(); err != nil {
			logger.Fatalf("failed to start task worker: %v", err)
		}
		defer worker.Stop()
	}

	qaService := services.NewQAService(
		embedder,
		vectorDB,
		llmClient,
		ragService,
		cacheService,
		services.WithSearchLimit(cfg.Search.Limit),
		services.WithMinScore(cfg.Search.MinScore),
		services.WithCacheTTL(time.Duration(cfg.Cache.TTL)*time.Second),
		services.WithQALogger(logger),
	)

	chatService := services.NewChatService(
		repository.NewChatRepository(),
		services.WithChatLogger(logger),
	)

	docHandler := handler.NewDocumentHandler(fileStorage, documentService, qaService)
	qaHandler := handler.NewQAHandler(qaService, chatService, documentService)
	chatHandler := handler.NewChatHandler(chatService, qaService, documentService)
	var taskHandler *handler.TaskHandler
	if queue != nil {
		taskHandler = handler.NewTaskHandler(queue)
	}

	router := api.SetupRouter(docHandler, qaHandler, chatHandler, taskHandler)
	if *webDir != "" {
		api.RegisterWebUI(router, *webDir)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		logger.Infof("server is listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("server forced to shutdown: %v", err)
	}

	logger.Info("server exited")
}

func setupLogger(level string) *logrus.Logger {
	logger := middleware.GetLogger()

	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}

func setupDatabase(cfg *appconfig.Config, logger *logrus.Logger) error {
	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %v", err)
	}

	return database.Setup(&database.Config{
		Type: cfg.Database.Type,
		DSN:  cfg.Database.DSN,
	}, logger)
}

func setupStorage(cfg *appconfig.Config) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case "minio":
		return storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
	default:
		return storage.NewLocalStorage(storage.LocalConfig{
			Path: cfg.Storage.Path,
		})
	}
}

func setupVectorDB(cfg *appconfig.Config, logger *logrus.Logger) (vectordb.Repository, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.VectorDB.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create vector database directory: %v", err)
	}

	repo, err := vectordb.NewRepository(vectordb.Config{
		Type:              cfg.VectorDB.Type,
		Path:              cfg.VectorDB.Path,
		CollectionName:    cfg.VectorDB.Collection,
		Dimension:         cfg.VectorDB.Dim,
		DistanceType:      distanceType(cfg.VectorDB.Distance),
		CreateIfNotExists: true,
	})
	if err != nil {
		// Persistence failed, keep serving from memory.
		logger.Warnf("failed to open %s vector database: %v, falling back to in-memory store", cfg.VectorDB.Type, err)
		return vectordb.NewRepository(vectordb.Config{
			Type:         "memory",
			Dimension:    cfg.VectorDB.Dim,
			DistanceType: distanceType(cfg.VectorDB.Distance),
		})
	}

	return repo, nil
}

func distanceType(name string) vectordb.DistanceType {
	switch name {
	case "l2":
		return vectordb.Euclidean
	case "dot":
		return vectordb.DotProduct
	default:
		return vectordb.Cosine
	}
}

func setupCache(cfg *appconfig.Config) (cache.Cache, error) {
	cacheConfig := cache.Config{
		Type:            cfg.Cache.Type,
		DefaultTTL:      time.Duration(cfg.Cache.TTL) * time.Second,
		CleanupInterval: 10 * time.Minute,
	}
	if cfg.Cache.Type == "redis" {
		cacheConfig.RedisAddr = cfg.Cache.Address
		cacheConfig.RedisPassword = cfg.Cache.Password
		cacheConfig.RedisDB = cfg.Cache.DB
	}

	return cache.NewCache(cacheConfig)
}
