package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leeszeyu/pdfchat/internal/cache"
	"github.com/leeszeyu/pdfchat/internal/embedding"
	"github.com/leeszeyu/pdfchat/internal/llm"
	"github.com/leeszeyu/pdfchat/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// QAService answers questions about indexed documents. It embeds the
// question, retrieves the most similar chunks and lets the RAG layer
// generate a grounded answer with page references.
type QAService struct {
	embedder    embedding.Client
	vectorDB    vectordb.Repository
	llm         llm.Client
	rag         *llm.RAGService
	cache       cache.Cache
	cacheTTL    time.Duration
	searchLimit int
	minScore    float32
	logger      *logrus.Logger
}

// QAOption configures a QAService.
type QAOption func(*QAService)

// NewQAService creates a question answering service.
func NewQAService(
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	llmClient llm.Client,
	rag *llm.RAGService,
	qaCache cache.Cache,
	opts ...QAOption,
) *QAService {
	service := &QAService{
		embedder:    embedder,
		vectorDB:    vectorDB,
		llm:         llmClient,
		rag:         rag,
		cache:       qaCache,
		cacheTTL:    24 * time.Hour,
		searchLimit: 3,
		minScore:    0.7,
		logger:      logrus.New(),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// WithCacheTTL sets how long answers stay cached.
func WithCacheTTL(ttl time.Duration) QAOption {
	return func(s *QAService) {
		s.cacheTTL = ttl
	}
}

// WithSearchLimit sets how many chunks are retrieved per question.
func WithSearchLimit(limit int) QAOption {
	return func(s *QAService) {
		if limit > 0 {
			s.searchLimit = limit
		}
	}
}

// WithMinScore sets the minimum similarity score for retrieved chunks.
func WithMinScore(score float32) QAOption {
	return func(s *QAService) {
		s.minScore = score
	}
}

// WithQALogger sets the logger.
func WithQALogger(logger *logrus.Logger) QAOption {
	return func(s *QAService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Answer answers a standalone question against the whole index.
// Results are cached by question text.
func (s *QAService) Answer(ctx context.Context, question string) (string, []vectordb.Document, error) {
	if question == "" {
		return "", nil, fmt.Errorf("question cannot be empty")
	}

	cacheKey := cache.GenerateCacheKey("qa", question)
	if answer, sources, ok := s.cachedAnswer(cacheKey); ok {
		return answer, sources, nil
	}

	filter := vectordb.SearchFilter{
		MinScore:   s.minScore,
		MaxResults: s.searchLimit,
	}

	answer, sources, err := s.answerWithFilter(ctx, question, filter)
	if err != nil {
		return "", nil, err
	}

	s.storeAnswer(cacheKey, answer, sources)
	return answer, sources, nil
}

// AnswerWithFile answers a standalone question restricted to one
// document. Results are cached by file id and question text.
func (s *QAService) AnswerWithFile(ctx context.Context, question string, fileID string) (string, []vectordb.Document, error) {
	if question == "" {
		return "", nil, fmt.Errorf("question cannot be empty")
	}
	if fileID == "" {
		return "", nil, fmt.Errorf("fileID cannot be empty")
	}

	cacheKey := cache.GenerateCacheKey("qa_file", fileID, question)
	if answer, sources, ok := s.cachedAnswer(cacheKey); ok {
		return answer, sources, nil
	}

	filter := vectordb.SearchFilter{
		FileIDs:    []string{fileID},
		MinScore:   s.minScore,
		MaxResults: s.searchLimit,
	}

	answer, sources, err := s.answerWithFilter(ctx, question, filter)
	if err != nil {
		return "", nil, err
	}

	s.storeAnswer(cacheKey, answer, sources)
	return answer, sources, nil
}

// AnswerWithHistory answers a follow-up question in a conversation.
// The question is first condensed with the history into a standalone
// one so retrieval still works. History-dependent answers are not
// cached, the same words can mean different things mid-conversation.
func (s *QAService) AnswerWithHistory(ctx context.Context, question string, fileID string, history []llm.Message) (string, []vectordb.Document, error) {
	if question == "" {
		return "", nil, fmt.Errorf("question cannot be empty")
	}

	if len(history) == 0 {
		if fileID != "" {
			return s.AnswerWithFile(ctx, question, fileID)
		}
		return s.Answer(ctx, question)
	}

	standalone, err := s.rag.CondenseQuestion(ctx, question, history)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to condense question, using it as-is")
		standalone = question
	}

	s.logger.WithFields(logrus.Fields{
		"question":   question,
		"standalone": standalone,
	}).Debug("Condensed follow-up question")

	filter := vectordb.SearchFilter{
		MinScore:   s.minScore,
		MaxResults: s.searchLimit,
	}
	if fileID != "" {
		filter.FileIDs = []string{fileID}
	}

	return s.answerWithFilter(ctx, standalone, filter)
}

// AnswerWithMetadata answers a question restricted by chunk metadata.
func (s *QAService) AnswerWithMetadata(ctx context.Context, question string, metadata map[string]interface{}) (string, []vectordb.Document, error) {
	if question == "" {
		return "", nil, fmt.Errorf("question cannot be empty")
	}

	metadataKey := ""
	for k, v := range metadata {
		metadataKey += fmt.Sprintf("%s:%v;", k, v)
	}
	cacheKey := cache.GenerateCacheKey("qa_meta", metadataKey, question)
	if answer, sources, ok := s.cachedAnswer(cacheKey); ok {
		return answer, sources, nil
	}

	filter := vectordb.SearchFilter{
		Metadata:   metadata,
		MinScore:   s.minScore,
		MaxResults: s.searchLimit,
	}

	answer, sources, err := s.answerWithFilter(ctx, question, filter)
	if err != nil {
		return "", nil, err
	}

	s.storeAnswer(cacheKey, answer, sources)
	return answer, sources, nil
}

// answerWithFilter embeds the question, retrieves chunks matching the
// filter and generates the answer.
func (s *QAService) answerWithFilter(ctx context.Context, question string, filter vectordb.SearchFilter) (string, []vectordb.Document, error) {
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	results, err := s.vectorDB.Search(vector, filter)
	if err != nil {
		return "", nil, fmt.Errorf("search failed: %w", err)
	}

	var relevant []vectordb.SearchResult
	for _, result := range results {
		if result.Score >= s.minScore {
			relevant = append(relevant, result)
		}
	}

	if len(relevant) == 0 {
		return llm.NoAnswerFallback, nil, nil
	}

	contexts := make([]string, len(relevant))
	sources := make([]vectordb.Document, len(relevant))
	for i, result := range relevant {
		contexts[i] = result.Document.Text
		sources[i] = result.Document
	}

	ragResponse, err := s.rag.Answer(ctx, question, contexts)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	// The model declining to answer carries no citations.
	if ragResponse.Answer == llm.NoAnswerFallback {
		return ragResponse.Answer, nil, nil
	}

	return ragResponse.Answer, sources, nil
}

// cachedAnswer looks up an answer and its sources in the cache.
func (s *QAService) cachedAnswer(cacheKey string) (string, []vectordb.Document, bool) {
	answer, found, err := s.cache.Get(cacheKey)
	if err != nil || !found {
		return "", nil, false
	}

	var sources []vectordb.Document
	docsJSON, docsFound, docsErr := s.cache.Get(cacheKey + ":docs")
	if docsErr == nil && docsFound {
		if err := json.Unmarshal([]byte(docsJSON), &sources); err != nil {
			s.logger.WithError(err).Warn("Failed to unmarshal cached sources")
			sources = nil
		}
	}

	return answer, sources, true
}

// storeAnswer caches an answer and its sources.
func (s *QAService) storeAnswer(cacheKey string, answer string, sources []vectordb.Document) {
	if err := s.cache.Set(cacheKey, answer, s.cacheTTL); err != nil {
		s.logger.WithError(err).Warn("Failed to cache answer")
		return
	}

	if len(sources) == 0 {
		return
	}

	if docsJSON, err := json.Marshal(sources); err == nil {
		if err := s.cache.Set(cacheKey+":docs", string(docsJSON), s.cacheTTL); err != nil {
			s.logger.WithError(err).Warn("Failed to cache answer sources")
		}
	}
}

// ClearCache drops every cached answer. Called when the index is
// replaced by a new upload.
func (s *QAService) ClearCache() error {
	return s.cache.Clear()
}
