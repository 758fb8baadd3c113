package vectordb

import (
	"fmt"
	"math"
)

// ComputeDistance computes the distance between two vectors.
func ComputeDistance(v1, v2 []float32, distType DistanceType) (float32, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("vector dimensions do not match: %d vs %d", len(v1), len(v2))
	}

	switch distType {
	case Cosine:
		return cosineDistance(v1, v2), nil
	case DotProduct:
		return dotProduct(v1, v2), nil
	case Euclidean:
		return euclideanDistance(v1, v2), nil
	default:
		return 0, fmt.Errorf("unsupported distance type: %s", distType)
	}
}

// cosineDistance is 1 minus cosine similarity.
func cosineDistance(v1, v2 []float32) float32 {
	dot := dotProduct(v1, v2)
	norm1 := vectorNorm(v1)
	norm2 := vectorNorm(v2)

	if norm1 == 0 || norm2 == 0 {
		return 1.0
	}

	similarity := dot / (norm1 * norm2)
	if similarity > 1.0 {
		similarity = 1.0
	}

	return 1.0 - similarity
}

func dotProduct(v1, v2 []float32) float32 {
	var dot float32
	for i := 0; i < len(v1); i++ {
		dot += v1[i] * v2[i]
	}
	return dot
}

func euclideanDistance(v1, v2 []float32) float32 {
	var sum float32
	for i := 0; i < len(v1); i++ {
		d := v1[i] - v2[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// vectorNorm is the L2 norm.
func vectorNorm(v []float32) float32 {
	var sum float32
	for _, val := range v {
		sum += val * val
	}
	return float32(math.Sqrt(float64(sum)))
}

// normalizeVector scales v to unit length. Zero vectors pass through.
func normalizeVector(v []float32) []float32 {
	norm := vectorNorm(v)
	if norm == 0 {
		return v
	}

	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}

// FilterDocuments applies file ID and metadata filters.
func FilterDocuments(docs []Document, filter SearchFilter) []Document {
	if len(docs) == 0 {
		return nil
	}

	fileIDMap := make(map[string]bool)
	for _, id := range filter.FileIDs {
		fileIDMap[id] = true
	}

	var result []Document
	for _, doc := range docs {
		if len(fileIDMap) > 0 && !fileIDMap[doc.FileID] {
			continue
		}
		if !matchMetadata(doc.Metadata, filter.Metadata) {
			continue
		}
		result = append(result, doc)
	}

	return result
}

// matchMetadata reports whether docMeta satisfies every filter entry.
func matchMetadata(docMeta map[string]interface{}, filterMeta map[string]interface{}) bool {
	if len(filterMeta) == 0 {
		return true
	}

	for key, filterValue := range filterMeta {
		docValue, exists := docMeta[key]
		if !exists || docValue != filterValue {
			return false
		}
	}

	return true
}

// SortSearchResults orders results by score, highest first.
// Insertion sort, result sets are small.
func SortSearchResults(results []SearchResult) {
	for i := 1; i < len(results); i++ {
		current := results[i]
		j := i - 1
		for j >= 0 && results[j].Score < current.Score {
			results[j+1] = results[j]
			j--
		}
		results[j+1] = current
	}
}

// DistanceToScore converts a distance into a score in [0, 1].
func DistanceToScore(distance float32, distType DistanceType) float32 {
	switch distType {
	case Cosine:
		return 1 - distance
	case DotProduct:
		// Normalized vectors give values in [-1, 1].
		return (distance + 1) / 2
	case Euclidean:
		return float32(math.Exp(-float64(distance)))
	default:
		return 0
	}
}

// ValidateVector checks the vector is non-empty and has the expected
// dimension.
func ValidateVector(vector []float32, expectedDim int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}

	if expectedDim > 0 && len(vector) != expectedDim {
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", expectedDim, len(vector))
	}

	return nil
}
