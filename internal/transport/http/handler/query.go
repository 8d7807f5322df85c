package handler

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"gopherai-kbqa/internal/app"
	"gopherai-kbqa/internal/prompt"
	"gopherai-kbqa/internal/retrieval"
	"gopherai-kbqa/internal/transport/http/response"
)

type QueryService interface {
	Query(ctx context.Context, input app.QueryInput) (*app.AnswerRecord, error)
	StreamQuery(ctx context.Context, input app.QueryInput) iter.Seq2[string, error]
}

type QueryHandler struct {
	service QueryService
	logger  *slog.Logger
}

type ChatTurnRequest struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content"`
}

type QueryRequest struct {
	Question    string            `json:"question" binding:"required,max=2000"`
	ChatHistory []ChatTurnRequest `json:"chat_history" binding:"omitempty,dive"`
	TopK        *int              `json:"top_k" binding:"omitempty,min=1,max=20"`
}

type QueryResponse struct {
	Answer        string             `json:"answer"`
	Sources       []app.Source       `json:"sources"`
	Model         string             `json:"model"`
	IsGreeting    bool               `json:"is_greeting"`
	IsIntro       bool               `json:"is_intro"`
	NoInfo        bool               `json:"no_info"`
	RetrievedDocs []retrieval.Result `json:"retrieved_docs"`
	QueryTimeMS   int64              `json:"query_time_ms"`
}

func NewQueryHandler(service QueryService, logger *slog.Logger) *QueryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryHandler{service: service, logger: logger}
}

func (h *QueryHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	start := time.Now()
	record, err := h.service.Query(c.Request.Context(), req.toInput())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	response.OK(c, QueryResponse{
		Answer:        record.Answer,
		Sources:       record.Sources,
		Model:         record.Model,
		IsGreeting:    record.IsGreeting,
		IsIntro:       record.IsIntro,
		NoInfo:        record.NoInfo,
		RetrievedDocs: record.RetrievedDocs,
		QueryTimeMS:   time.Since(start).Milliseconds(),
	})
}

// Stream answers over server-sent events: one data event per fragment,
// then "done" with the full answer, or "error" with a safe message.
func (h *QueryHandler) Stream(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	var full strings.Builder
	for fragment, err := range h.service.StreamQuery(c.Request.Context(), req.toInput()) {
		if err != nil {
			status, _, message := classify(err)
			logRequestError(c, h.logger, err, status)
			if _, writeErr := fmt.Fprintf(c.Writer, "event: error\ndata: %s\n\n", sanitizeSSE(message)); writeErr == nil {
				flusher.Flush()
			}
			return
		}
		full.WriteString(fragment)
		if _, writeErr := c.Writer.Write([]byte("data: " + sanitizeSSE(fragment) + "\n\n")); writeErr != nil {
			return
		}
		flusher.Flush()
	}

	if _, writeErr := c.Writer.Write([]byte("event: done\ndata: " + sanitizeSSE(full.String()) + "\n\n")); writeErr == nil {
		flusher.Flush()
	}
}

func (r QueryRequest) toInput() app.QueryInput {
	input := app.QueryInput{Question: r.Question}
	if r.TopK != nil {
		input.TopK = *r.TopK
	}
	for _, turn := range r.ChatHistory {
		input.ChatHistory = append(input.ChatHistory, prompt.ChatTurn{Role: turn.Role, Content: turn.Content})
	}
	return input
}
