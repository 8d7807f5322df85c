package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"
)

const (
	defaultChatTimeout = 90 * time.Second
	maxErrorBodyBytes  = 4096
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// GenerateOptions are the sampling parameters sent with every chat request.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// OpenAICompatibleClient talks to any service exposing the OpenAI
// /chat/completions and /embeddings endpoints.
type OpenAICompatibleClient struct {
	httpClient *http.Client
}

func NewOpenAICompatibleClient(timeout time.Duration) *OpenAICompatibleClient {
	if timeout <= 0 {
		timeout = defaultChatTimeout
	}
	return &OpenAICompatibleClient{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewOpenAICompatibleClientWithHTTP lets callers supply their own transport.
func NewOpenAICompatibleClientWithHTTP(httpClient *http.Client) *OpenAICompatibleClient {
	return &OpenAICompatibleClient{httpClient: httpClient}
}

func (c *OpenAICompatibleClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage, opts GenerateOptions) (string, error) {
	resp, err := c.post(ctx, cfg.BaseURL, "/chat/completions", cfg.APIKey, chatRequestBody(cfg, messages, opts, false))
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llm response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm response status %d: %s", resp.StatusCode, truncateBody(raw))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse llm json failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty llm choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// Stream returns a lazy sequence of completion fragments. The request is
// sent when iteration starts and the response body is closed when the
// iteration ends, including when the consumer stops early. A failure after
// some fragments were yielded arrives as a final ("", err) pair. Ranging
// over the sequence again issues a new request.
func (c *OpenAICompatibleClient) Stream(ctx context.Context, cfg ChatConfig, messages []ChatMessage, opts GenerateOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := c.post(ctx, cfg.BaseURL, "/chat/completions", cfg.APIKey, chatRequestBody(cfg, messages, opts, true))
		if err != nil {
			yield("", fmt.Errorf("llm stream request failed: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			yield("", fmt.Errorf("llm stream status %d: %s", resp.StatusCode, string(raw)))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}

			var chunk struct {
				Choices []struct {
					Delta struct {
						Content string `json:"content"`
					} `json:"delta"`
				} `json:"choices"`
				Error *struct {
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				yield("", fmt.Errorf("llm stream error: %s", chunk.Error.Message))
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(chunk.Choices[0].Delta.Content, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("scan llm stream failed: %w", err))
		}
	}
}

func (c *OpenAICompatibleClient) post(ctx context.Context, baseURL, path, apiKey string, body any) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := c.httpClient
	if client == nil {
		client = &http.Client{Timeout: defaultChatTimeout}
	}
	return client.Do(req)
}

func chatRequestBody(cfg ChatConfig, messages []ChatMessage, opts GenerateOptions, stream bool) map[string]interface{} {
	reqBody := map[string]interface{}{
		"model":       cfg.Model,
		"messages":    messages,
		"stream":      stream,
		"temperature": opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		reqBody["max_tokens"] = opts.MaxTokens
	}
	return reqBody
}

func truncateBody(raw []byte) string {
	if len(raw) > maxErrorBodyBytes {
		return string(raw[:maxErrorBodyBytes])
	}
	return string(raw)
}
