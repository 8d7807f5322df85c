package ai

import (
	"context"
	"fmt"
	"strings"

	"gopherai-kbqa/internal/apperr"
)

const defaultEmbeddingBatchSize = 100

// EmbeddingClient is the raw embedding service boundary.
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, cfg EmbeddingConfig, inputs []string) ([][]float32, error)
}

// Embedder turns text into fixed-dimension vectors. Blank input maps to an
// all-zero vector without calling the service; callers treat such a vector
// as "no semantic content".
type Embedder struct {
	client    EmbeddingClient
	cfg       EmbeddingConfig
	dimension int
	batchSize int
}

func NewEmbedder(client EmbeddingClient, cfg EmbeddingConfig, dimension, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = defaultEmbeddingBatchSize
	}
	return &Embedder{
		client:    client,
		cfg:       cfg,
		dimension: dimension,
		batchSize: batchSize,
	}
}

func (e *Embedder) Dimension() int {
	return e.dimension
}

func (e *Embedder) Model() string {
	return e.cfg.Model
}

// Embed returns the embedding of a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text}, 1)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in requests of at most batchSize items and returns
// exactly one vector per input, in input order. batchSize <= 0 or above the
// configured service limit uses the configured size.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 || batchSize > e.batchSize {
		batchSize = e.batchSize
	}

	result := make([][]float32, len(texts))
	pending := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, text := range texts {
		cleaned := preprocess(text)
		if cleaned == "" {
			result[i] = make([]float32, e.dimension)
			continue
		}
		pending = append(pending, cleaned)
		positions = append(positions, i)
	}

	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		vectors, err := e.client.CreateEmbeddings(ctx, e.cfg, pending[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: embed batch [%d:%d] failed: %w", apperr.ErrEmbeddingService, start, end, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("%w: embedding count mismatch: sent %d, got %d", apperr.ErrEmbeddingService, end-start, len(vectors))
		}
		for offset, vec := range vectors {
			if e.dimension > 0 && len(vec) != e.dimension {
				return nil, fmt.Errorf("%w: embedding dimension %d, expected %d", apperr.ErrEmbeddingService, len(vec), e.dimension)
			}
			result[positions[start+offset]] = vec
		}
	}
	return result, nil
}

func preprocess(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
}
