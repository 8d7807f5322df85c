// Package prompt assembles the generation prompt from retrieved chunks and
// optional chat history.
package prompt

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopherai-kbqa/internal/retrieval"
)

const (
	DefaultMaxContextLength = 5000
	MaxHistoryTurns         = 5
	unknownFilename         = "Unknown"
)

// ChatTurn is one prior message supplied by the caller.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Builder struct {
	maxContextLength int
	logger           *slog.Logger
}

func NewBuilder(maxContextLength int, logger *slog.Logger) *Builder {
	if maxContextLength <= 0 {
		maxContextLength = DefaultMaxContextLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{maxContextLength: maxContextLength, logger: logger}
}

func (b *Builder) MaxContextLength() int {
	return b.maxContextLength
}

// Build renders the prompt. Only the context block is ever truncated; the
// question is always included verbatim.
func (b *Builder) Build(question string, results []retrieval.Result, history []ChatTurn) string {
	context := b.TruncateContext(FormatContext(results))
	if len(history) > 0 {
		return fmt.Sprintf(chatTemplate, context, FormatChatHistory(history), question)
	}
	return fmt.Sprintf(queryTemplate, context, question)
}

// TruncateContext cuts context to the configured number of characters and
// appends TruncationMarker when anything was removed.
func (b *Builder) TruncateContext(context string) string {
	length := utf8.RuneCountInString(context)
	if length <= b.maxContextLength {
		return context
	}
	b.logger.Warn("context truncated", "from_chars", length, "to_chars", b.maxContextLength)
	runes := []rune(context)
	return string(runes[:b.maxContextLength]) + TruncationMarker
}

// FormatContext renders each result as a numbered source block.
func FormatContext(results []retrieval.Result) string {
	parts := make([]string, 0, len(results))
	for i, res := range results {
		filename := res.Metadata.Filename()
		if filename == "" {
			filename = unknownFilename
		}
		parts = append(parts, fmt.Sprintf("[Source %d: %s (relevance: %.2f)]\n%s\n", i+1, filename, res.Score, res.Content))
	}
	return strings.Join(parts, "\n")
}

// FormatChatHistory renders the last MaxHistoryTurns turns oldest first.
func FormatChatHistory(history []ChatTurn) string {
	if len(history) == 0 {
		return NoHistoryMarker
	}
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		lines = append(lines, capitalize(turn.Role)+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}

func capitalize(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return "User"
	}
	r, size := utf8.DecodeRuneInString(role)
	return string(unicode.ToUpper(r)) + role[size:]
}
