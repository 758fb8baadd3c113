package vectordb

import (
	"sync"
	"time"
)

// MemoryRepository is an in-process vector store backed by a map and a
// brute-force scan. It is the fallback backend and the one tests use.
type MemoryRepository struct {
	mu           sync.RWMutex
	documents    map[string]Document
	fileToDocIDs map[string][]string
	dimension    int
	distanceType DistanceType
}

// NewMemoryRepository creates an in-memory vector store.
func NewMemoryRepository(config Config) (Repository, error) {
	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}
	return &MemoryRepository{
		documents:    make(map[string]Document),
		fileToDocIDs: make(map[string][]string),
		dimension:    config.Dimension,
		distanceType: distType,
	}, nil
}

// Add stores a single document.
func (r *MemoryRepository) Add(doc Document) error {
	if doc.ID == "" {
		return ErrInvalidID
	}
	if err := ValidateVector(doc.Vector, r.dimension); err != nil {
		return err
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.documents[doc.ID]; !exists {
		r.fileToDocIDs[doc.FileID] = append(r.fileToDocIDs[doc.FileID], doc.ID)
	}
	r.documents[doc.ID] = doc
	return nil
}

// AddBatch stores documents one by one; the scan has no batch path.
func (r *MemoryRepository) AddBatch(docs []Document) error {
	for _, doc := range docs {
		if err := r.Add(doc); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the document with the given ID.
func (r *MemoryRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, exists := r.documents[id]
	if !exists {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete removes a single document.
func (r *MemoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, exists := r.documents[id]
	if !exists {
		return ErrDocumentNotFound
	}
	delete(r.documents, id)

	ids := r.fileToDocIDs[doc.FileID]
	updated := make([]string, 0, len(ids))
	for _, docID := range ids {
		if docID != id {
			updated = append(updated, docID)
		}
	}
	if len(updated) == 0 {
		delete(r.fileToDocIDs, doc.FileID)
	} else {
		r.fileToDocIDs[doc.FileID] = updated
	}
	return nil
}

// DeleteByFileID removes every chunk of a file.
func (r *MemoryRepository) DeleteByFileID(fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.fileToDocIDs[fileID] {
		delete(r.documents, id)
	}
	delete(r.fileToDocIDs, fileID)
	return nil
}

// Search scans every stored document and ranks by similarity.
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	r.mu.RLock()
	docs := make([]Document, 0, len(r.documents))
	for _, doc := range r.documents {
		docs = append(docs, doc)
	}
	r.mu.RUnlock()

	candidates := FilterDocuments(docs, filter)

	var results []SearchResult
	for _, doc := range candidates {
		dist, err := ComputeDistance(vector, doc.Vector, r.distanceType)
		if err != nil {
			return nil, err
		}
		score := DistanceToScore(dist, r.distanceType)
		if score < filter.MinScore {
			continue
		}
		results = append(results, SearchResult{
			Document: doc,
			Score:    score,
			Distance: dist,
		})
	}

	SortSearchResults(results)

	k := filter.MaxResults
	if k <= 0 {
		k = 3
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of stored documents.
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// GetDimension returns the vector dimension.
func (r *MemoryRepository) GetDimension() int {
	return r.dimension
}

// Reset drops every stored document.
func (r *MemoryRepository) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = make(map[string]Document)
	r.fileToDocIDs = make(map[string][]string)
	return nil
}

// Close is a no-op for the in-memory store.
func (r *MemoryRepository) Close() error {
	return nil
}

func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
