package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-kbqa/internal/model"
)

type memoryStore struct {
	logs []model.QueryLog
	err  error
}

func (s *memoryStore) Create(ctx context.Context, log *model.QueryLog) error {
	if s.err != nil {
		return s.err
	}
	s.logs = append(s.logs, *log)
	return nil
}

func TestQueryLogWorkerHandle(t *testing.T) {
	t.Run("Persists a decoded event", func(t *testing.T) {
		store := &memoryStore{}
		w := NewQueryLogWorker(nil, store, "kbqa.query_events", nil)
		created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		body, err := json.Marshal(model.QueryEvent{
			ID:        "6f1c1c8e-9a53-4a7e-8a1c-3c1f6d0b7e11",
			Question:  "What is our mission?",
			Intent:    "knowledge_query",
			Outcome:   "answered",
			MaxScore:  0.91,
			Sources:   []string{"mission.md", "values.md"},
			Model:     "gpt-4",
			LatencyMS: 820,
			CreatedAt: created,
		})
		require.NoError(t, err)

		require.NoError(t, w.handle(context.Background(), body))

		require.Len(t, store.logs, 1)
		got := store.logs[0]
		assert.Equal(t, "6f1c1c8e-9a53-4a7e-8a1c-3c1f6d0b7e11", got.EventID)
		assert.Equal(t, "mission.md,values.md", got.Sources)
		assert.Equal(t, "answered", got.Outcome)
		assert.Equal(t, int64(820), got.LatencyMS)
		assert.True(t, created.Equal(got.CreatedAt))
	})

	t.Run("Malformed payload is rejected", func(t *testing.T) {
		store := &memoryStore{}
		w := NewQueryLogWorker(nil, store, "q", nil)

		err := w.handle(context.Background(), []byte("{not json"))

		require.Error(t, err)
		assert.Empty(t, store.logs)
	})

	t.Run("Event without id is rejected", func(t *testing.T) {
		w := NewQueryLogWorker(nil, &memoryStore{}, "q", nil)

		err := w.handle(context.Background(), []byte(`{"question":"x"}`))

		assert.EqualError(t, err, "query event has no id")
	})

	t.Run("Store failure is returned", func(t *testing.T) {
		w := NewQueryLogWorker(nil, &memoryStore{err: errors.New("db down")}, "q", nil)

		err := w.handle(context.Background(), []byte(`{"id":"abc"}`))

		assert.EqualError(t, err, "db down")
	})
}
