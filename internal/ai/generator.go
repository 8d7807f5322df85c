package ai

import (
	"context"
	"fmt"
	"iter"

	"gopherai-kbqa/internal/apperr"
)

// ChatClient is the generation service boundary.
type ChatClient interface {
	Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage, opts GenerateOptions) (string, error)
	Stream(ctx context.Context, cfg ChatConfig, messages []ChatMessage, opts GenerateOptions) iter.Seq2[string, error]
}

// Generator binds a chat client to one model.
type Generator struct {
	client ChatClient
	cfg    ChatConfig
}

func NewGenerator(client ChatClient, cfg ChatConfig) *Generator {
	return &Generator{client: client, cfg: cfg}
}

func (g *Generator) Model() string {
	return g.cfg.Model
}

// Generate blocks until the full completion is available.
func (g *Generator) Generate(ctx context.Context, prompt, systemPrompt string, opts GenerateOptions) (string, error) {
	answer, err := g.client.Complete(ctx, g.cfg, buildMessages(prompt, systemPrompt), opts)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperr.ErrGenerationService, err)
	}
	return answer, nil
}

// Stream yields completion fragments in arrival order. A service failure is
// yielded once as the last element; fragments before it stay valid.
func (g *Generator) Stream(ctx context.Context, prompt, systemPrompt string, opts GenerateOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for fragment, err := range g.client.Stream(ctx, g.cfg, buildMessages(prompt, systemPrompt), opts) {
			if err != nil {
				yield("", fmt.Errorf("%w: %w", apperr.ErrGenerationService, err))
				return
			}
			if !yield(fragment, nil) {
				return
			}
		}
	}
}

func buildMessages(prompt, systemPrompt string) []ChatMessage {
	messages := make([]ChatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: systemPrompt})
	}
	return append(messages, ChatMessage{Role: "user", Content: prompt})
}
