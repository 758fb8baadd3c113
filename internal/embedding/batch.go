package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchProcessor embeds many texts by splitting them into batches and
// running the batches in parallel.
type BatchProcessor interface {
	Process(ctx context.Context, texts []string) ([][]float32, error)
}

// DefaultBatchProcessor fans batches out over a worker pool.
// Empty texts are skipped and come back as nil vectors at their
// original positions.
type DefaultBatchProcessor struct {
	client     Client
	batchSize  int
	maxWorkers int
	skipEmpty  bool
}

// NewBatchProcessor creates a batch processor around client.
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *DefaultBatchProcessor {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	return &DefaultBatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
		skipEmpty:  true,
	}
}

// Process embeds texts, preserving input order in the output.
func (p *DefaultBatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var filteredTexts []string
	var emptyIndices []int

	if p.skipEmpty {
		filteredTexts = make([]string, 0, len(texts))
		for i, text := range texts {
			if text != "" {
				filteredTexts = append(filteredTexts, text)
			} else {
				emptyIndices = append(emptyIndices, i)
			}
		}
	} else {
		filteredTexts = texts
	}

	if len(filteredTexts) == 0 {
		return make([][]float32, len(texts)), nil
	}

	batches := splitIntoBatches(filteredTexts, p.batchSize)

	wp := workerpool.New(p.maxWorkers)
	resultsMu := sync.Mutex{}
	batchVectors := make([][][]float32, len(batches))
	var processingErr error
	var errOnce sync.Once

	for i, batch := range batches {
		i, batch := i, batch
		wp.Submit(func() {
			select {
			case <-ctx.Done():
				errOnce.Do(func() {
					processingErr = ctx.Err()
				})
				return
			default:
			}

			vectors, err := p.client.EmbedBatch(ctx, batch)

			resultsMu.Lock()
			defer resultsMu.Unlock()

			if err != nil {
				errOnce.Do(func() {
					processingErr = fmt.Errorf("batch %d processing error: %w", i, err)
				})
				return
			}
			batchVectors[i] = vectors
		})
	}

	wp.StopWait()

	if processingErr != nil {
		return nil, processingErr
	}

	var allVectors [][]float32
	for _, vectors := range batchVectors {
		allVectors = append(allVectors, vectors...)
	}

	if len(emptyIndices) > 0 {
		finalResults := make([][]float32, len(texts))
		vectorIndex := 0
		for i := 0; i < len(texts); i++ {
			if containsInt(emptyIndices, i) {
				finalResults[i] = nil
			} else if vectorIndex < len(allVectors) {
				finalResults[i] = allVectors[vectorIndex]
				vectorIndex++
			}
		}
		return finalResults, nil
	}

	return allVectors, nil
}

// splitIntoBatches cuts texts into slices of at most batchSize.
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}

func containsInt(slice []int, val int) bool {
	for _, item := range slice {
		if item == val {
			return true
		}
	}
	return false
}
