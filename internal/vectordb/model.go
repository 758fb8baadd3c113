package vectordb

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidID        = errors.New("invalid document ID")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
)

// Document is one embedded chunk with its metadata.
// PageNumber is the 1-based source page, used for citations.
type Document struct {
	ID         string
	FileID     string
	FileName   string
	PageNumber int
	Position   int // chunk position within the file
	Text       string
	Vector     []float32
	CreatedAt  time.Time
	Metadata   map[string]interface{}
}

// DistanceType selects how vector distance is computed.
type DistanceType string

const (
	Cosine     DistanceType = "cosine"
	DotProduct DistanceType = "dot"
	Euclidean  DistanceType = "l2"
)

// SearchResult is one retrieval hit.
type SearchResult struct {
	Document Document
	Score    float32 // similarity in [0, 1], higher is better
	Distance float32
}

// SearchFilter restricts a similarity search.
type SearchFilter struct {
	FileIDs    []string
	Metadata   map[string]interface{}
	MinScore   float32
	MaxResults int
}

// DefaultSearchFilter returns the default search filter.
func DefaultSearchFilter() SearchFilter {
	return SearchFilter{
		MinScore:   0.0,
		MaxResults: 3,
	}
}

// Repository stores embedded chunks and answers similarity searches.
type Repository interface {
	// Add stores a single document.
	Add(doc Document) error

	// AddBatch stores documents in one operation.
	AddBatch(docs []Document) error

	// Get returns the document with the given ID.
	Get(id string) (Document, error)

	// Delete removes a single document.
	Delete(id string) error

	// DeleteByFileID removes every chunk belonging to a file.
	DeleteByFileID(fileID string) error

	// Search returns the most similar documents for the query vector.
	Search(vector []float32, filter SearchFilter) ([]SearchResult, error)

	// Count returns the number of stored documents.
	Count() (int, error)

	// GetDimension returns the vector dimension.
	GetDimension() int

	// Reset drops every stored document. Indexing a new file starts
	// from an empty store, it never merges with the previous one.
	Reset() error

	// Close releases backend resources.
	Close() error
}

// Config configures a vector store backend.
type Config struct {
	Type              string // "chromem", "faiss" or "memory"
	Path              string // persistence path for on-disk backends
	CollectionName    string // collection name for backends that have one
	Dimension         int
	DistanceType      DistanceType
	CreateIfNotExists bool
	InMemory          bool
}

// Factory builds a Repository from a Config.
type Factory func(config Config) (Repository, error)

// RepositoryRegistry holds the registered backends.
var RepositoryRegistry = map[string]Factory{}

// RegisterRepository registers a vector store factory under a name.
func RegisterRepository(name string, factory Factory) {
	RepositoryRegistry[name] = factory
}

// NewRepository creates the backend named in the config.
func NewRepository(config Config) (Repository, error) {
	factory, ok := RepositoryRegistry[config.Type]
	if !ok {
		return nil, fmt.Errorf("unknown vector store type: %s", config.Type)
	}
	return factory(config)
}
