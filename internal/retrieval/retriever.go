// Package retrieval turns a question into a deduplicated, confidence-gated
// list of indexed chunks.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"gopherai-kbqa/internal/apperr"
	"gopherai-kbqa/internal/vectorindex"
)

const (
	overFetchFactor = 3
	filterFactor    = 2

	rerankBoostPerTerm = 0.05
	rerankMaxBoost     = 0.15
)

// QueryEmbedder embeds one query string.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// IndexSource hands out the active index snapshot.
type IndexSource interface {
	Current() *vectorindex.FlatIndex
}

// Outcome names how a retrieval ended. Low confidence is a normal outcome,
// not an error.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeEmpty
	OutcomeLowConfidence
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeEmpty:
		return "empty"
	case OutcomeLowConfidence:
		return "low_confidence"
	default:
		return "unknown"
	}
}

// Result is one retrieved chunk. Score is the cosine similarity clamped to [0,1].
type Result struct {
	Content  string               `json:"content"`
	Metadata vectorindex.Metadata `json:"metadata"`
	Score    float64              `json:"score"`
}

type Retrieval struct {
	Results  []Result
	MaxScore float64
	Outcome  Outcome
}

type Config struct {
	TopK                int
	SimilarityThreshold float64
	// EdgeCaseMinScore is the floor the best candidate must reach for the
	// query to count as answerable from the knowledge base.
	EdgeCaseMinScore float64
	Rerank           bool
}

func DefaultConfig() Config {
	return Config{
		TopK:                5,
		SimilarityThreshold: 0.75,
		EdgeCaseMinScore:    0.80,
	}
}

type Retriever struct {
	embedder QueryEmbedder
	index    IndexSource
	cfg      Config
	logger   *slog.Logger
}

func NewRetriever(embedder QueryEmbedder, index IndexSource, cfg Config, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		logger:   logger.With("component", "retriever"),
	}
}

func (r *Retriever) Config() Config {
	return r.cfg
}

// Retrieve embeds query, over-fetches topK*3 candidates and keeps at most
// topK results with distinct sources and score >= threshold. When the best
// candidate scores below the edge-case floor the result list is empty and
// Outcome is OutcomeLowConfidence.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, threshold float64) (*Retrieval, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d: %w", topK, apperr.ErrValidation)
	}

	ix := r.index.Current()
	if ix == nil {
		return nil, fmt.Errorf("%w: vector index not loaded", apperr.ErrConfiguration)
	}
	if ix.Len() == 0 {
		return &Retrieval{Outcome: OutcomeEmpty}, nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := ix.Search(vectorindex.Normalize(queryVec), topK*overFetchFactor)
	if err != nil {
		return nil, fmt.Errorf("search index failed: %w", err)
	}

	results := make([]Result, 0, topK)
	seenSources := make(map[string]struct{}, len(hits))
	maxScore := 0.0
	for _, hit := range hits {
		score := clamp01(float64(hit.Similarity))
		if score > maxScore {
			maxScore = score
		}

		record, err := ix.Record(hit.Handle)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrConfiguration, err)
		}

		// The source is marked before the threshold check so a source is
		// represented only by its best-ranked chunk.
		source := record.Metadata.Source()
		if _, seen := seenSources[source]; seen {
			continue
		}
		seenSources[source] = struct{}{}

		if score >= threshold {
			results = append(results, Result{
				Content:  record.Content,
				Metadata: record.Metadata,
				Score:    score,
			})
		}
		if len(results) >= topK {
			break
		}
	}

	if maxScore < r.cfg.EdgeCaseMinScore {
		r.logger.Warn("low retrieval confidence, treating query as out of scope",
			"max_score", maxScore, "edge_case_min_score", r.cfg.EdgeCaseMinScore)
		return &Retrieval{MaxScore: maxScore, Outcome: OutcomeLowConfidence}, nil
	}
	if len(results) == 0 {
		return &Retrieval{MaxScore: maxScore, Outcome: OutcomeEmpty}, nil
	}

	if r.cfg.Rerank {
		results = Rerank(query, results)
	}
	r.logger.Debug("retrieved documents",
		"count", len(results), "max_score", maxScore, "threshold", threshold)
	return &Retrieval{Results: results, MaxScore: maxScore, Outcome: OutcomeOK}, nil
}

// RetrieveFiltered retrieves 2*topK results and keeps those whose metadata
// matches every key/value in filter.
func (r *Retriever) RetrieveFiltered(ctx context.Context, query string, filter map[string]string, topK int) (*Retrieval, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d: %w", topK, apperr.ErrValidation)
	}
	retrieval, err := r.Retrieve(ctx, query, topK*filterFactor, r.cfg.SimilarityThreshold)
	if err != nil {
		return nil, err
	}

	filtered := make([]Result, 0, topK)
	for _, res := range retrieval.Results {
		if matchesFilter(res.Metadata, filter) {
			filtered = append(filtered, res)
		}
		if len(filtered) == topK {
			break
		}
	}
	retrieval.Results = filtered
	if retrieval.Outcome == OutcomeOK && len(filtered) == 0 {
		retrieval.Outcome = OutcomeEmpty
	}
	return retrieval, nil
}

// Rerank adds a keyword boost of 0.05 per query term found in the content,
// at most 0.15, caps scores at 1.0 and re-sorts descending.
func Rerank(query string, results []Result) []Result {
	terms := uniqueTerms(query)
	out := make([]Result, len(results))
	copy(out, results)
	for i := range out {
		content := strings.ToLower(out[i].Content)
		matches := 0
		for _, term := range terms {
			if strings.Contains(content, term) {
				matches++
			}
		}
		boost := float64(matches) * rerankBoostPerTerm
		if boost > rerankMaxBoost {
			boost = rerankMaxBoost
		}
		out[i].Score = clamp01(out[i].Score + boost)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func matchesFilter(meta vectorindex.Metadata, filter map[string]string) bool {
	for key, want := range filter {
		if meta.String(key) != want {
			return false
		}
	}
	return true
}

func uniqueTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
