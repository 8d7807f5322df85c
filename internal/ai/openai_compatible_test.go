package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func sseBody(lines ...string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n\n")
	}
	return b.String()
}

func deltaLine(content string) string {
	payload, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"delta": map[string]string{"content": content}}},
	})
	return "data: " + string(payload)
}

func TestComplete(t *testing.T) {
	t.Run("Sends model, sampling options and bearer token", func(t *testing.T) {
		var captured map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/chat/completions", r.URL.Path, "Expected chat completions path")
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"), "Expected bearer token")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"the answer"}}]}`))
		}))
		defer server.Close()

		client := NewOpenAICompatibleClient(0)
		answer, err := client.Complete(context.Background(),
			ChatConfig{BaseURL: server.URL + "/v1/", APIKey: "secret", Model: "gpt-4"},
			[]ChatMessage{{Role: "user", Content: "hi"}},
			GenerateOptions{Temperature: 0.7, MaxTokens: 2000},
		)

		require.NoError(t, err)
		assert.Equal(t, "the answer", answer)
		assert.Equal(t, "gpt-4", captured["model"])
		assert.Equal(t, false, captured["stream"])
		assert.InDelta(t, 0.7, captured["temperature"], 1e-9)
		assert.InDelta(t, 2000, captured["max_tokens"], 1e-9)
	})

	t.Run("Non-2xx status becomes an error with the body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`rate limited`))
		}))
		defer server.Close()

		client := NewOpenAICompatibleClient(0)
		_, err := client.Complete(context.Background(), ChatConfig{BaseURL: server.URL}, nil, GenerateOptions{})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
		assert.Contains(t, err.Error(), "rate limited")
	})

	t.Run("Empty choices is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer server.Close()

		client := NewOpenAICompatibleClient(0)
		_, err := client.Complete(context.Background(), ChatConfig{BaseURL: server.URL}, nil, GenerateOptions{})

		assert.EqualError(t, err, "empty llm choices")
	})
}

func TestStream(t *testing.T) {
	t.Run("Yields fragments in arrival order until DONE", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, sseBody(
				": keep-alive",
				deltaLine("Hel"),
				`data: {"choices":[{"delta":{}}]}`,
				deltaLine("lo"),
				"data: [DONE]",
				deltaLine("ignored"),
			))
		}))
		defer server.Close()

		client := NewOpenAICompatibleClient(0)
		var fragments []string
		for fragment, err := range client.Stream(context.Background(), ChatConfig{BaseURL: server.URL}, nil, GenerateOptions{}) {
			require.NoError(t, err)
			fragments = append(fragments, fragment)
		}

		assert.Equal(t, []string{"Hel", "lo"}, fragments)
	})

	t.Run("Mid-stream failure arrives after the yielded fragments", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, sseBody(
				deltaLine("partial "),
				deltaLine("answer"),
				`data: {"error":{"message":"upstream overloaded"}}`,
				deltaLine("never"),
			))
		}))
		defer server.Close()

		client := NewOpenAICompatibleClient(0)
		var fragments []string
		var errs []error
		for fragment, err := range client.Stream(context.Background(), ChatConfig{BaseURL: server.URL}, nil, GenerateOptions{}) {
			if err != nil {
				errs = append(errs, err)
				continue
			}
			fragments = append(fragments, fragment)
		}

		assert.Equal(t, []string{"partial ", "answer"}, fragments)
		require.Len(t, errs, 1, "Expected exactly one terminal error")
		assert.Contains(t, errs[0].Error(), "upstream overloaded")
	})

	t.Run("Stopping early closes the response body", func(t *testing.T) {
		body := &trackingBody{Reader: strings.NewReader(sseBody(deltaLine("a"), deltaLine("b"), deltaLine("c")))}
		httpClient := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return &http.Response{StatusCode: http.StatusOK, Body: body, Header: http.Header{}}, nil
		})}

		client := NewOpenAICompatibleClientWithHTTP(httpClient)
		for fragment, err := range client.Stream(context.Background(), ChatConfig{BaseURL: "http://llm.local"}, nil, GenerateOptions{}) {
			require.NoError(t, err)
			assert.Equal(t, "a", fragment)
			break
		}

		assert.True(t, body.closed, "Expected the body to be closed after an early break")
	})

	t.Run("Each iteration issues a new request", func(t *testing.T) {
		calls := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			_, _ = io.WriteString(w, sseBody(deltaLine(fmt.Sprintf("call-%d", calls)), "data: [DONE]"))
		}))
		defer server.Close()

		client := NewOpenAICompatibleClient(0)
		seq := client.Stream(context.Background(), ChatConfig{BaseURL: server.URL}, nil, GenerateOptions{})
		for range seq {
		}
		for range seq {
		}

		assert.Equal(t, 2, calls, "Expected one request per iteration")
	})

	t.Run("Non-2xx status is yielded as the only element", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("bad key"))
		}))
		defer server.Close()

		client := NewOpenAICompatibleClient(0)
		count := 0
		for fragment, err := range client.Stream(context.Background(), ChatConfig{BaseURL: server.URL}, nil, GenerateOptions{}) {
			count++
			assert.Empty(t, fragment)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "401")
		}
		assert.Equal(t, 1, count)
	})
}

func TestCreateEmbeddings(t *testing.T) {
	t.Run("Restores input order from the index field", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/embeddings", r.URL.Path)
			var req struct {
				Input []string `json:"input"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []string{"first", "second"}, req.Input)
			_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
		}))
		defer server.Close()

		client := NewOpenAICompatibleClient(0)
		vectors, err := client.CreateEmbeddings(context.Background(), EmbeddingConfig{BaseURL: server.URL}, []string{"first", "second"})

		require.NoError(t, err)
		assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
	})

	t.Run("Count mismatch is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
		}))
		defer server.Close()

		client := NewOpenAICompatibleClient(0)
		_, err := client.CreateEmbeddings(context.Background(), EmbeddingConfig{BaseURL: server.URL}, []string{"a", "b"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "embedding count mismatch")
	})
}
