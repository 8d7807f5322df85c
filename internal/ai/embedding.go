package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// EmbeddingConfig holds API settings for text-embedding (OpenAI-compatible).
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// CreateEmbeddings sends one /embeddings request with an array input and
// returns the vectors in input order.
func (c *OpenAICompatibleClient) CreateEmbeddings(ctx context.Context, cfg EmbeddingConfig, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	reqBody := map[string]interface{}{
		"model": cfg.Model,
		"input": inputs,
	}
	resp, err := c.post(ctx, cfg.BaseURL, "/embeddings", cfg.APIKey, reqBody)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding response status %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}
	if len(parsed.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(inputs), len(parsed.Data))
	}

	// Providers are allowed to return items out of order.
	sort.SliceStable(parsed.Data, func(i, j int) bool {
		return parsed.Data[i].Index < parsed.Data[j].Index
	})
	result := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		result[i] = parsed.Data[i].Embedding
	}
	return result, nil
}
