package app

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gopherai-kbqa/internal/ai"
	"gopherai-kbqa/internal/apperr"
	"gopherai-kbqa/internal/model"
	"gopherai-kbqa/internal/prompt"
	"gopherai-kbqa/internal/retrieval"
)

const (
	GreetingAnswer = `Hello! I'm the Knowledge Q&A Assistant.

I can help you find information about:
- Mission, values and culture
- Company policies and procedures
- Time off, leave types and benefits
- Remote work practices
- Training and professional development
- And much more from the knowledge base!

What would you like to know today?`

	IntroAnswer = `I'm an AI assistant specialized in your organization's internal knowledge base!

**What I can do:**
- Answer questions about policies, procedures and culture
- Explain company values and operating principles
- Guide you through HR processes (PTO, benefits, etc.)
- Share information about remote work practices
- Provide training and development resources

**How to use me:**
- Ask specific questions like "How do I request time off?"
- Inquire about policies like "What is our mission?"

**What I can't do:**
- Answer questions outside the knowledge base
- Provide personal advice or opinions
- Access external information or real-time data`

	// NoInfoAnswer is returned when retrieval finds nothing usable.
	NoInfoAnswer = "I don't have enough information in the knowledge base to answer this question. Could you try rephrasing or ask something else?"

	// StreamFallbackAnswer is the single fragment streamed when retrieval
	// finds nothing usable.
	StreamFallbackAnswer = "I'm sorry, I couldn't find any relevant information to answer your question."
)

// Outcome labels used for logs, events and metrics.
const (
	OutcomeGreeting      = "greeting"
	OutcomeIntroduction  = "introduction"
	OutcomeNoInfo        = "no_info"
	OutcomeLowConfidence = "low_confidence"
	OutcomeAnswered      = "answered"
	OutcomeCacheHit      = "cache_hit"
	OutcomeError         = "error"
)

type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, threshold float64) (*retrieval.Retrieval, error)
}

type PromptBuilder interface {
	Build(question string, results []retrieval.Result, history []prompt.ChatTurn) string
}

type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string, opts ai.GenerateOptions) (string, error)
	Stream(ctx context.Context, prompt, systemPrompt string, opts ai.GenerateOptions) iter.Seq2[string, error]
	Model() string
}

type AnswerCache interface {
	GetAnswer(ctx context.Context, question string, topK int) (*AnswerRecord, bool, error)
	SetAnswer(ctx context.Context, question string, topK int, record *AnswerRecord) error
}

type QueryEventPublisher interface {
	Publish(ctx context.Context, event model.QueryEvent) error
}

type QueryRecorder interface {
	ObserveQuery(intent, outcome string, latency time.Duration)
	ObserveRetrieval(maxScore float64)
	UnfaithfulAnswer()
}

type PipelineConfig struct {
	TopK                int
	SimilarityThreshold float64
	SystemPrompt        string
	Temperature         float64
	MaxTokens           int
	IncludeSources      bool
}

type QueryInput struct {
	Question    string
	ChatHistory []prompt.ChatTurn
	// TopK <= 0 selects the configured default; negative values are rejected.
	TopK int
}

// AnswerRecord is the full result of one query.
type AnswerRecord struct {
	Answer        string             `json:"answer"`
	Sources       []Source           `json:"sources"`
	RetrievedDocs []retrieval.Result `json:"retrieved_docs"`
	Model         string             `json:"model"`
	IsGreeting    bool               `json:"is_greeting"`
	IsIntro       bool               `json:"is_intro"`
	NoInfo        bool               `json:"no_info"`
	MaxScore      float64            `json:"max_score"`
}

// QueryPipeline classifies, retrieves, gates, generates and attributes.
// It holds no per-request state and is safe for concurrent use.
type QueryPipeline struct {
	retriever Retriever
	builder   PromptBuilder
	generator Generator
	cache     AnswerCache
	publisher QueryEventPublisher
	recorder  QueryRecorder
	cfg       PipelineConfig
	logger    *slog.Logger
}

// NewQueryPipeline wires the pipeline. cache, publisher and recorder are
// optional and may be nil.
func NewQueryPipeline(
	retriever Retriever,
	builder PromptBuilder,
	generator Generator,
	cache AnswerCache,
	publisher QueryEventPublisher,
	recorder QueryRecorder,
	cfg PipelineConfig,
	logger *slog.Logger,
) *QueryPipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultConfig().TopK
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = prompt.SystemPrompt
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryPipeline{
		retriever: retriever,
		builder:   builder,
		generator: generator,
		cache:     cache,
		publisher: publisher,
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger.With("component", "query_pipeline"),
	}
}

func (p *QueryPipeline) Model() string {
	return p.generator.Model()
}

// Query answers one question.
func (p *QueryPipeline) Query(ctx context.Context, input QueryInput) (*AnswerRecord, error) {
	start := time.Now()
	question, topK, err := p.validate(input)
	if err != nil {
		return nil, err
	}

	intent := ClassifyIntent(question)
	switch intent {
	case IntentGreeting:
		record := p.cannedRecord(GreetingAnswer)
		record.IsGreeting = true
		p.finish(ctx, question, intent, OutcomeGreeting, record, start)
		return record, nil
	case IntentIntroduction:
		record := p.cannedRecord(IntroAnswer)
		record.IsIntro = true
		p.finish(ctx, question, intent, OutcomeIntroduction, record, start)
		return record, nil
	}

	cacheable := p.cache != nil && len(input.ChatHistory) == 0
	if cacheable {
		cached, hit, cacheErr := p.cache.GetAnswer(ctx, question, topK)
		if cacheErr != nil {
			p.logger.Warn("answer cache lookup failed", "error", cacheErr)
		} else if hit {
			p.finish(ctx, question, intent, OutcomeCacheHit, cached, start)
			return cached, nil
		}
	}

	found, err := p.retriever.Retrieve(ctx, question, topK, p.cfg.SimilarityThreshold)
	if err != nil {
		p.observe(intent.String(), OutcomeError, start)
		return nil, fmt.Errorf("retrieve failed: %w", err)
	}
	if p.recorder != nil {
		p.recorder.ObserveRetrieval(found.MaxScore)
	}
	if found.Outcome != retrieval.OutcomeOK {
		p.logger.Info("no usable context for question", "outcome", found.Outcome.String(), "max_score", found.MaxScore)
		record := p.cannedRecord(NoInfoAnswer)
		record.NoInfo = true
		record.MaxScore = found.MaxScore
		p.finish(ctx, question, intent, noInfoOutcome(found.Outcome), record, start)
		return record, nil
	}

	promptText := p.builder.Build(question, found.Results, input.ChatHistory)
	answer, err := p.generator.Generate(ctx, promptText, p.cfg.SystemPrompt, p.generateOptions())
	if err != nil {
		p.observe(intent.String(), OutcomeError, start)
		return nil, fmt.Errorf("generate answer failed: %w", err)
	}

	record := &AnswerRecord{
		Answer:        answer,
		Sources:       []Source{},
		RetrievedDocs: found.Results,
		Model:         p.generator.Model(),
		MaxScore:      found.MaxScore,
	}
	if p.cfg.IncludeSources {
		record.Sources = ExtractSources(found.Results)
	}
	p.checkFaithfulness(answer)

	if cacheable {
		if err := p.cache.SetAnswer(ctx, question, topK, record); err != nil {
			p.logger.Warn("answer cache store failed", "error", err)
		}
	}
	p.finish(ctx, question, intent, OutcomeAnswered, record, start)
	return record, nil
}

// StreamQuery is the streaming form of Query. Greetings, introductions and
// unanswerable questions produce a single fragment. A generation failure is
// yielded last, after any fragments already produced.
func (p *QueryPipeline) StreamQuery(ctx context.Context, input QueryInput) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := time.Now()
		question, topK, err := p.validate(input)
		if err != nil {
			yield("", err)
			return
		}

		intent := ClassifyIntent(question)
		switch intent {
		case IntentGreeting:
			p.observe(intent.String(), OutcomeGreeting, start)
			yield(GreetingAnswer, nil)
			return
		case IntentIntroduction:
			p.observe(intent.String(), OutcomeIntroduction, start)
			yield(IntroAnswer, nil)
			return
		}

		found, err := p.retriever.Retrieve(ctx, question, topK, p.cfg.SimilarityThreshold)
		if err != nil {
			p.observe(intent.String(), OutcomeError, start)
			yield("", fmt.Errorf("retrieve failed: %w", err))
			return
		}
		if p.recorder != nil {
			p.recorder.ObserveRetrieval(found.MaxScore)
		}
		if found.Outcome != retrieval.OutcomeOK {
			record := p.cannedRecord(StreamFallbackAnswer)
			record.NoInfo = true
			record.MaxScore = found.MaxScore
			p.finish(ctx, question, intent, noInfoOutcome(found.Outcome), record, start)
			yield(StreamFallbackAnswer, nil)
			return
		}

		promptText := p.builder.Build(question, found.Results, input.ChatHistory)
		var full strings.Builder
		for fragment, err := range p.generator.Stream(ctx, promptText, p.cfg.SystemPrompt, p.generateOptions()) {
			if err != nil {
				p.observe(intent.String(), OutcomeError, start)
				yield("", fmt.Errorf("stream answer failed: %w", err))
				return
			}
			full.WriteString(fragment)
			if !yield(fragment, nil) {
				p.logger.Info("stream abandoned by consumer", "received_chars", full.Len())
				return
			}
		}

		answer := full.String()
		p.checkFaithfulness(answer)
		record := &AnswerRecord{
			Answer:        answer,
			Sources:       []Source{},
			RetrievedDocs: found.Results,
			Model:         p.generator.Model(),
			MaxScore:      found.MaxScore,
		}
		if p.cfg.IncludeSources {
			record.Sources = ExtractSources(found.Results)
		}
		p.finish(ctx, question, intent, OutcomeAnswered, record, start)
	}
}

func (p *QueryPipeline) validate(input QueryInput) (string, int, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return "", 0, fmt.Errorf("question is empty: %w", apperr.ErrValidation)
	}
	topK := input.TopK
	if topK < 0 {
		return "", 0, fmt.Errorf("top_k must be positive, got %d: %w", topK, apperr.ErrValidation)
	}
	if topK == 0 {
		topK = p.cfg.TopK
	}
	return question, topK, nil
}

func (p *QueryPipeline) cannedRecord(answer string) *AnswerRecord {
	return &AnswerRecord{
		Answer:        answer,
		Sources:       []Source{},
		RetrievedDocs: []retrieval.Result{},
		Model:         p.generator.Model(),
	}
}

func (p *QueryPipeline) generateOptions() ai.GenerateOptions {
	return ai.GenerateOptions{Temperature: p.cfg.Temperature, MaxTokens: p.cfg.MaxTokens}
}

func (p *QueryPipeline) checkFaithfulness(answer string) {
	phrases := DetectUnfaithfulPhrases(answer)
	if len(phrases) == 0 {
		return
	}
	p.logger.Warn("generated answer may be unfaithful", "phrases", phrases)
	if p.recorder != nil {
		p.recorder.UnfaithfulAnswer()
	}
}

func (p *QueryPipeline) observe(intent, outcome string, start time.Time) {
	if p.recorder != nil {
		p.recorder.ObserveQuery(intent, outcome, time.Since(start))
	}
}

// finish records metrics and publishes the query event. Publishing is best
// effort: a broker failure is logged and never fails the query.
func (p *QueryPipeline) finish(ctx context.Context, question string, intent Intent, outcome string, record *AnswerRecord, start time.Time) {
	latency := time.Since(start)
	p.observe(intent.String(), outcome, start)
	p.logger.Info("query processed",
		"intent", intent.String(), "outcome", outcome,
		"sources", len(record.Sources), "latency_ms", latency.Milliseconds())

	if p.publisher == nil {
		return
	}
	filenames := make([]string, 0, len(record.Sources))
	for _, s := range record.Sources {
		filenames = append(filenames, s.Filename)
	}
	event := model.QueryEvent{
		ID:        uuid.NewString(),
		Question:  question,
		Intent:    intent.String(),
		Outcome:   outcome,
		MaxScore:  record.MaxScore,
		Sources:   filenames,
		Model:     record.Model,
		LatencyMS: latency.Milliseconds(),
		CreatedAt: time.Now(),
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("publish query event failed", "event_id", event.ID, "error", err)
	}
}

func noInfoOutcome(o retrieval.Outcome) string {
	if o == retrieval.OutcomeLowConfidence {
		return OutcomeLowConfidence
	}
	return OutcomeNoInfo
}
