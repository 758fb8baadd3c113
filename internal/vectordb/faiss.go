//go:build faiss

package vectordb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissRepository stores vectors in a flat faiss index with a JSON
// metadata sidecar for document fields. Deleted documents are dropped
// from the metadata only; their index slots stay until the next Reset.
type FaissRepository struct {
	mu             sync.RWMutex
	index          faiss.Index
	documents      map[string]Document
	fileToDocIDs   map[string][]string
	idToPosition   map[string]int
	positionToID   map[int]string
	indexPath      string
	metaPath       string
	dimension      int
	distanceType   DistanceType
	saveOnClose    bool
	autoSave       bool
	autoSaveCount  int
	operationCount int
}

// NewFaissRepository creates a faiss-backed vector store.
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}

	if config.Path != "" && !config.InMemory {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	indexPath := config.Path
	metaPath := ""
	if indexPath != "" {
		metaPath = indexPath + ".meta.json"
	}

	repo := &FaissRepository{
		documents:     make(map[string]Document),
		fileToDocIDs:  make(map[string][]string),
		idToPosition:  make(map[string]int),
		positionToID:  make(map[int]string),
		indexPath:     indexPath,
		metaPath:      metaPath,
		dimension:     config.Dimension,
		distanceType:  distType,
		saveOnClose:   true,
		autoSave:      true,
		autoSaveCount: 100,
	}

	var index faiss.Index
	var err error

	if indexPath != "" && !config.InMemory && fileExists(indexPath) {
		index, err = faiss.ReadIndex(indexPath, 0)
		if err != nil {
			if config.CreateIfNotExists {
				index, err = createFaissIndex(config.Dimension, distType)
				if err != nil {
					return nil, fmt.Errorf("failed to create faiss index: %w", err)
				}
			} else {
				return nil, fmt.Errorf("failed to read index file: %w", err)
			}
		} else {
			if err := repo.loadMetadata(metaPath); err != nil {
				return nil, fmt.Errorf("failed to load document metadata: %w", err)
			}
		}
	} else {
		index, err = createFaissIndex(config.Dimension, distType)
		if err != nil {
			return nil, fmt.Errorf("failed to create faiss index: %w", err)
		}
	}

	repo.index = index
	return repo, nil
}

// createFaissIndex builds a flat index with the metric matching the
// distance type. Cosine uses inner product over normalized vectors.
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	var metric int
	switch distType {
	case Cosine, DotProduct:
		metric = faiss.MetricInnerProduct
	case Euclidean:
		metric = faiss.MetricL2
	default:
		metric = faiss.MetricL2
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// Add stores a single document.
func (r *FaissRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch stores documents in one operation.
func (r *FaissRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	for i := range docs {
		if err := ValidateVector(docs[i].Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for document %s: %w", docs[i].ID, err)
		}
		if r.distanceType == Cosine {
			docs[i].Vector = normalizeVector(docs[i].Vector)
		}
		if docs[i].CreatedAt.IsZero() {
			docs[i].CreatedAt = time.Now()
		}
		if docs[i].Metadata == nil {
			docs[i].Metadata = make(map[string]interface{})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	startPos := int(r.index.Ntotal())
	for _, doc := range docs {
		if err := r.index.Add(doc.Vector); err != nil {
			return fmt.Errorf("failed to add vector to index: %w", err)
		}
	}

	for i, doc := range docs {
		position := startPos + i
		r.documents[doc.ID] = doc
		r.idToPosition[doc.ID] = position
		r.positionToID[position] = doc.ID
		r.fileToDocIDs[doc.FileID] = append(r.fileToDocIDs[doc.FileID], doc.ID)
	}

	r.operationCount += len(docs)
	if r.autoSave && r.operationCount >= r.autoSaveCount {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("auto-save failed: %w", err)
		}
		r.operationCount = 0
	}
	return nil
}

// Get returns the document with the given ID.
func (r *FaissRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, exists := r.documents[id]
	if !exists {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete removes a single document's metadata.
func (r *FaissRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, exists := r.documents[id]
	if !exists {
		return ErrDocumentNotFound
	}
	r.removeLocked(id, doc.FileID)
	r.operationCount++
	return nil
}

// DeleteByFileID removes every chunk of a file.
func (r *FaissRepository) DeleteByFileID(fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	docIDs, exists := r.fileToDocIDs[fileID]
	if !exists {
		return nil
	}
	for _, id := range docIDs {
		if pos, ok := r.idToPosition[id]; ok {
			delete(r.positionToID, pos)
		}
		delete(r.documents, id)
		delete(r.idToPosition, id)
	}
	delete(r.fileToDocIDs, fileID)
	r.operationCount += len(docIDs)
	return nil
}

func (r *FaissRepository) removeLocked(id, fileID string) {
	if pos, ok := r.idToPosition[id]; ok {
		delete(r.positionToID, pos)
	}
	delete(r.documents, id)
	delete(r.idToPosition, id)

	if fileIDs, ok := r.fileToDocIDs[fileID]; ok {
		updated := make([]string, 0, len(fileIDs))
		for _, docID := range fileIDs {
			if docID != id {
				updated = append(updated, docID)
			}
		}
		if len(updated) == 0 {
			delete(r.fileToDocIDs, fileID)
		} else {
			r.fileToDocIDs[fileID] = updated
		}
	}
}

// Search returns the most similar documents for the query vector.
// The index is oversampled so filtered-out slots do not starve the
// result set.
func (r *FaissRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if r.distanceType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.documents) == 0 {
		return []SearchResult{}, nil
	}

	k := filter.MaxResults
	if k <= 0 {
		k = 3
	}
	queryLimit := k * 2
	total := int(r.index.Ntotal())
	if queryLimit > total {
		queryLimit = total
	}
	if queryLimit == 0 {
		return []SearchResult{}, nil
	}

	distances, indices, err := r.index.Search(vector, int64(queryLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	var results []SearchResult
	for i := 0; i < len(indices); i++ {
		idx := indices[i]
		if idx < 0 {
			continue
		}
		docID, ok := r.positionToID[int(idx)]
		if !ok {
			continue
		}
		doc, exists := r.documents[docID]
		if !exists {
			continue
		}
		if len(filter.FileIDs) > 0 {
			match := false
			for _, id := range filter.FileIDs {
				if doc.FileID == id {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		if !matchMetadata(doc.Metadata, filter.Metadata) {
			continue
		}

		dist := distances[i]
		score := DistanceToScore(dist, r.distanceType)
		if score < filter.MinScore {
			continue
		}
		results = append(results, SearchResult{
			Document: doc,
			Score:    score,
			Distance: dist,
		})
		if len(results) >= k {
			break
		}
	}

	SortSearchResults(results)
	return results, nil
}

// Count returns the number of stored documents.
func (r *FaissRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// GetDimension returns the vector dimension.
func (r *FaissRepository) GetDimension() int {
	return r.dimension
}

// Reset drops every stored document and recreates the index.
func (r *FaissRepository) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, err := createFaissIndex(r.dimension, r.distanceType)
	if err != nil {
		return fmt.Errorf("failed to recreate faiss index: %w", err)
	}

	r.index = index
	r.documents = make(map[string]Document)
	r.fileToDocIDs = make(map[string][]string)
	r.idToPosition = make(map[string]int)
	r.positionToID = make(map[int]string)
	r.operationCount = 0

	if r.indexPath != "" {
		return r.saveIndex()
	}
	return nil
}

// Close persists the index if a path is configured.
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveOnClose && r.indexPath != "" {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("failed to save index on close: %w", err)
		}
	}
	return nil
}

// saveIndex writes the index and its metadata sidecar.
func (r *FaissRepository) saveIndex() error {
	if r.indexPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.indexPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := faiss.WriteIndex(r.index, r.indexPath); err != nil {
		return fmt.Errorf("failed to write index to file: %w", err)
	}
	return r.saveMetadata()
}

type faissMetadata struct {
	Documents      map[string]Document `json:"documents"`
	FileToDocIDs   map[string][]string `json:"file_to_doc_ids"`
	IDToPosition   map[string]int      `json:"id_to_position"`
	OperationCount int                 `json:"operation_count"`
}

func (r *FaissRepository) saveMetadata() error {
	if r.metaPath == "" {
		return nil
	}
	metadata := faissMetadata{
		Documents:      r.documents,
		FileToDocIDs:   r.fileToDocIDs,
		IDToPosition:   r.idToPosition,
		OperationCount: r.operationCount,
	}
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(r.metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

func (r *FaissRepository) loadMetadata(path string) error {
	if path == "" || !fileExists(path) {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %w", err)
	}
	var metadata faissMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	r.documents = metadata.Documents
	r.fileToDocIDs = metadata.FileToDocIDs
	r.idToPosition = metadata.IDToPosition
	r.operationCount = metadata.OperationCount
	r.positionToID = make(map[int]string, len(r.idToPosition))
	for id, pos := range r.idToPosition {
		r.positionToID[pos] = id
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
