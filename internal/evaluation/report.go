package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"gopherai-kbqa/internal/app"
	"gopherai-kbqa/internal/model"
)

var ErrNoMainResults = errors.New("no valid main query results")

type Querier interface {
	Query(ctx context.Context, input app.QueryInput) (*app.AnswerRecord, error)
}

type QueryResult struct {
	Question       string  `json:"question"`
	Category       string  `json:"category,omitempty"`
	Answer         string  `json:"answer,omitempty"`
	Metrics        Metrics `json:"metrics"`
	NumSources     int     `json:"num_sources"`
	TopSourceScore float64 `json:"top_source_score"`
	IsGreeting     bool    `json:"is_greeting"`
	IsIntro        bool    `json:"is_intro"`
	Error          string  `json:"error,omitempty"`
}

type VarianceAnalysis struct {
	FaithfulnessStdDev float64 `json:"faithfulness_std_dev"`
	FaithfulnessMin    float64 `json:"faithfulness_min"`
	FaithfulnessMax    float64 `json:"faithfulness_max"`
	CompletenessStdDev float64 `json:"completeness_std_dev"`
	CompletenessMin    float64 `json:"completeness_min"`
	CompletenessMax    float64 `json:"completeness_max"`
	RelevanceStdDev    float64 `json:"relevance_std_dev"`
}

type Summary struct {
	AvgRetrievalScore float64 `json:"avg_retrieval_score"`
	AvgFaithfulness   float64 `json:"avg_faithfulness"`
	AvgRelevance      float64 `json:"avg_relevance"`
	AvgCompleteness   float64 `json:"avg_completeness"`
	AvgOverallScore   float64 `json:"avg_overall_score"`
	TotalQueries      int     `json:"total_queries"`
	EdgeCaseQueries   int     `json:"edge_case_queries"`
	GreetingQueries   int     `json:"greeting_queries"`
	FailedQueries     int     `json:"failed_queries"`

	// Ratios are nil when the category was not tested.
	EdgeCaseHandling *float64 `json:"edge_case_handling,omitempty"`
	GreetingHandling *float64 `json:"greeting_handling,omitempty"`

	Variance VarianceAnalysis `json:"variance_analysis"`
}

type Report struct {
	RunID     string        `json:"run_id"`
	Timestamp time.Time     `json:"timestamp"`
	Summary   Summary       `json:"summary"`
	Queries   []QueryResult `json:"queries"`
}

// Runner answers every case through the pipeline and scores the answers.
type Runner struct {
	querier   Querier
	evaluator *Evaluator
	topK      int
	logger    *slog.Logger
}

func NewRunner(querier Querier, evaluator *Evaluator, topK int, logger *slog.Logger) *Runner {
	if evaluator == nil {
		evaluator = NewEvaluator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		querier:   querier,
		evaluator: evaluator,
		topK:      topK,
		logger:    logger.With("component", "evaluation"),
	}
}

func (r *Runner) Run(ctx context.Context, cases []Case) (*Report, error) {
	r.logger.Info("starting evaluation", "cases", len(cases))

	var (
		results []QueryResult
		main    []Metrics
		edges   []QueryResult
		greets  []QueryResult
		failed  int
	)
	for i, tc := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(tc.Question) == "" {
			r.logger.Warn("skipping case without question", "index", i+1)
			continue
		}
		r.logger.Info("evaluating case", "index", i+1, "total", len(cases), "question", truncate(tc.Question, 60))

		result := r.evaluateCase(ctx, tc)
		results = append(results, result)

		switch {
		case result.Error != "":
			failed++
		case tc.IsGreetingCategory():
			greets = append(greets, result)
		case tc.IsEdgeCategory():
			edges = append(edges, result)
		default:
			main = append(main, result.Metrics)
		}
	}

	if len(main) == 0 {
		return nil, ErrNoMainResults
	}

	summary := summarize(main)
	summary.EdgeCaseQueries = len(edges)
	summary.GreetingQueries = len(greets)
	summary.FailedQueries = failed
	if len(edges) > 0 {
		handled := 0
		for _, e := range edges {
			if isDecline(e.Answer) {
				handled++
			}
		}
		ratio := float64(handled) / float64(len(edges))
		summary.EdgeCaseHandling = &ratio
	}
	if len(greets) > 0 {
		handled := 0
		for _, g := range greets {
			if g.IsGreeting || g.IsIntro {
				handled++
			}
		}
		ratio := float64(handled) / float64(len(greets))
		summary.GreetingHandling = &ratio
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Timestamp: time.Now(),
		Summary:   summary,
		Queries:   results,
	}
	r.logger.Info("evaluation complete",
		"run_id", report.RunID,
		"main_queries", summary.TotalQueries,
		"avg_overall", summary.AvgOverallScore,
		"failed", failed)
	return report, nil
}

func (r *Runner) evaluateCase(ctx context.Context, tc Case) QueryResult {
	result := QueryResult{Question: tc.Question, Category: tc.Category}

	record, err := r.querier.Query(ctx, app.QueryInput{Question: tc.Question, TopK: r.topK})
	if err != nil {
		r.logger.Error("evaluate query failed", "question", tc.Question, "error", err)
		result.Error = err.Error()
		return result
	}

	result.Answer = record.Answer
	result.NumSources = len(record.RetrievedDocs)
	result.IsGreeting = record.IsGreeting
	result.IsIntro = record.IsIntro
	if len(record.RetrievedDocs) > 0 {
		result.TopSourceScore = record.RetrievedDocs[0].Score
	}

	if record.IsGreeting || record.IsIntro {
		result.Metrics = Perfect()
		return result
	}

	result.Metrics = r.evaluator.Evaluate(Input{
		Question:         tc.Question,
		Answer:           record.Answer,
		Retrieved:        record.RetrievedDocs,
		ExpectedKeywords: tc.ExpectedKeywords,
		ExpectedTopics:   tc.ExpectedTopics,
	})
	if tc.IsEdgeCategory() && isDecline(record.Answer) {
		result.Metrics.Faithfulness = 1
		result.Metrics.Relevance = 1
		result.Metrics.Completeness = 1
		result.Metrics = result.Metrics.WithOverall()
	}
	return result
}

func summarize(main []Metrics) Summary {
	n := float64(len(main))
	var s Summary
	faith := make([]float64, len(main))
	compl := make([]float64, len(main))
	rel := make([]float64, len(main))
	for i, m := range main {
		s.AvgRetrievalScore += m.RetrievalScore / n
		s.AvgFaithfulness += m.Faithfulness / n
		s.AvgRelevance += m.Relevance / n
		s.AvgCompleteness += m.Completeness / n
		s.AvgOverallScore += m.Overall / n
		faith[i] = m.Faithfulness
		compl[i] = m.Completeness
		rel[i] = m.Relevance
	}
	s.TotalQueries = len(main)
	s.Variance = VarianceAnalysis{
		FaithfulnessStdDev: stdDev(faith),
		FaithfulnessMin:    minOf(faith),
		FaithfulnessMax:    maxOf(faith),
		CompletenessStdDev: stdDev(compl),
		CompletenessMin:    minOf(compl),
		CompletenessMax:    maxOf(compl),
		RelevanceStdDev:    stdDev(rel),
	}
	return s
}

// SaveReport writes the report as indented JSON under dir and returns the
// file path.
func SaveReport(report *Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir failed: %w", err)
	}
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report failed: %w", err)
	}
	name := fmt.Sprintf("evaluation_%s_%s.json", report.Timestamp.Format("20060102_150405"), report.RunID[:8])
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write report failed: %w", err)
	}
	return path, nil
}

// Record condenses the report into the row stored per run.
func (r *Report) Record(reportPath string) *model.EvaluationRun {
	run := &model.EvaluationRun{
		RunID:              r.RunID,
		TotalQuestions:     r.Summary.TotalQueries,
		AvgRetrievalScore:  r.Summary.AvgRetrievalScore,
		AvgFaithfulness:    r.Summary.AvgFaithfulness,
		AvgAnswerRelevance: r.Summary.AvgRelevance,
		AvgKeywordCoverage: r.Summary.AvgCompleteness,
		AvgOverallScore:    r.Summary.AvgOverallScore,
		ReportPath:         reportPath,
		CreatedAt:          r.Timestamp,
	}
	if r.Summary.EdgeCaseHandling != nil {
		run.EdgeCaseSuccessRate = *r.Summary.EdgeCaseHandling
	}
	return run
}

func isDecline(answer string) bool {
	lower := strings.ToLower(answer)
	return strings.Contains(lower, "couldn't find") || strings.Contains(lower, "don't have")
}

// stdDev is the sample standard deviation; zero for fewer than two values.
func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(values)-1))
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		m = min(m, v)
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		m = max(m, v)
	}
	return m
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
