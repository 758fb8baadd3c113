package vectordb

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
)

// DefaultCollectionName is the single collection holding the active
// document's chunks.
const DefaultCollectionName = "pdf_chat_collection"

// ChromemRepository is the default backend, a persistent embedded
// vector store. One collection holds the chunks of the active file.
type ChromemRepository struct {
	mu             sync.RWMutex
	db             *chromem.DB
	collection     *chromem.Collection
	collectionName string
	dimension      int
	path           string
	inMemory       bool
}

// NewChromemRepository opens (or creates) a chromem store.
func NewChromemRepository(config Config) (Repository, error) {
	name := config.CollectionName
	if name == "" {
		name = DefaultCollectionName
	}

	var db *chromem.DB
	var err error
	if config.InMemory || config.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(config.Path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", name, err)
	}

	return &ChromemRepository{
		db:             db,
		collection:     collection,
		collectionName: name,
		dimension:      config.Dimension,
		path:           config.Path,
		inMemory:       config.InMemory || config.Path == "",
	}, nil
}

// Add stores a single document.
func (r *ChromemRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch stores documents in one operation.
func (r *ChromemRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	chromemDocs := make([]chromem.Document, 0, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			return ErrInvalidID
		}
		if err := ValidateVector(doc.Vector, r.dimension); err != nil {
			return fmt.Errorf("invalid vector for document %s: %w", doc.ID, err)
		}
		chromemDocs = append(chromemDocs, chromem.Document{
			ID:        doc.ID,
			Content:   doc.Text,
			Metadata:  encodeMetadata(doc),
			Embedding: doc.Vector,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.collection.AddDocuments(context.Background(), chromemDocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Get returns the document with the given ID.
func (r *ChromemRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, err := r.collection.GetByID(context.Background(), id)
	if err != nil {
		return Document{}, ErrDocumentNotFound
	}
	return decodeDocument(doc.ID, doc.Content, doc.Metadata, doc.Embedding), nil
}

// Delete removes a single document.
func (r *ChromemRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.collection.Delete(context.Background(), nil, nil, id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// DeleteByFileID removes every chunk of a file.
func (r *ChromemRepository) DeleteByFileID(fileID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	where := map[string]string{"file_id": fileID}
	if err := r.collection.Delete(context.Background(), where, nil); err != nil {
		return fmt.Errorf("failed to delete documents of file %s: %w", fileID, err)
	}
	return nil
}

// Search returns the most similar documents for the query vector.
func (r *ChromemRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	count := r.collection.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}

	k := filter.MaxResults
	if k <= 0 {
		k = 3
	}

	// The collection is scanned exhaustively either way, so query the
	// whole of it and apply the filters here. chromem rejects an
	// nResults larger than the collection.
	hits, err := r.collection.QueryEmbedding(context.Background(), vector, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	var results []SearchResult
	for _, hit := range hits {
		doc := decodeDocument(hit.ID, hit.Content, hit.Metadata, hit.Embedding)
		if len(filter.FileIDs) > 0 && !containsString(filter.FileIDs, doc.FileID) {
			continue
		}
		if !matchMetadata(doc.Metadata, filter.Metadata) {
			continue
		}
		if hit.Similarity < filter.MinScore {
			continue
		}
		results = append(results, SearchResult{
			Document: doc,
			Score:    hit.Similarity,
			Distance: 1 - hit.Similarity,
		})
		if len(results) >= k {
			break
		}
	}

	SortSearchResults(results)
	return results, nil
}

// Count returns the number of stored documents.
func (r *ChromemRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collection.Count(), nil
}

// GetDimension returns the vector dimension.
func (r *ChromemRepository) GetDimension() int {
	return r.dimension
}

// Reset drops the collection and recreates it empty.
func (r *ChromemRepository) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.DeleteCollection(r.collectionName); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", r.collectionName, err)
	}
	collection, err := r.db.GetOrCreateCollection(r.collectionName, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to recreate collection %s: %w", r.collectionName, err)
	}
	r.collection = collection
	return nil
}

// Close is a no-op, chromem persists on write.
func (r *ChromemRepository) Close() error {
	return nil
}

// encodeMetadata flattens a Document into chromem's string metadata.
func encodeMetadata(doc Document) map[string]string {
	meta := map[string]string{
		"file_id":     doc.FileID,
		"file_name":   doc.FileName,
		"page_number": strconv.Itoa(doc.PageNumber),
		"position":    strconv.Itoa(doc.Position),
		"created_at":  doc.CreatedAt.Format(time.RFC3339Nano),
	}
	for k, v := range doc.Metadata {
		meta["x_"+k] = fmt.Sprint(v)
	}
	return meta
}

// decodeDocument rebuilds a Document from chromem fields.
func decodeDocument(id, content string, meta map[string]string, embedding []float32) Document {
	doc := Document{
		ID:       id,
		Text:     content,
		Vector:   embedding,
		Metadata: make(map[string]interface{}),
	}
	for k, v := range meta {
		switch k {
		case "file_id":
			doc.FileID = v
		case "file_name":
			doc.FileName = v
		case "page_number":
			doc.PageNumber, _ = strconv.Atoi(v)
		case "position":
			doc.Position, _ = strconv.Atoi(v)
		case "created_at":
			doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
		default:
			if len(k) > 2 && k[:2] == "x_" {
				doc.Metadata[k[2:]] = v
			}
		}
	}
	return doc
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func init() {
	RegisterRepository("chromem", NewChromemRepository)
}
