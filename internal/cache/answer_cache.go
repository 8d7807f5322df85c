package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

const answerKeyPrefix = "kbqa:answer:"

// AnswerCache stores finished answers keyed by normalized question and top_k.
type AnswerCache[T any] struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewAnswerCache[T any](client *redisv9.Client, ttl time.Duration) *AnswerCache[T] {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &AnswerCache[T]{
		client: client,
		ttl:    ttl,
	}
}

func (c *AnswerCache[T]) GetAnswer(ctx context.Context, question string, topK int) (*T, bool, error) {
	raw, err := c.client.Get(ctx, AnswerKey(question, topK)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get answer failed: %w", err)
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached answer failed: %w", err)
	}
	return &value, true, nil
}

func (c *AnswerCache[T]) SetAnswer(ctx context.Context, question string, topK int, value *T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal answer cache failed: %w", err)
	}
	if err := c.client.Set(ctx, AnswerKey(question, topK), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set answer failed: %w", err)
	}
	return nil
}

// Purge drops every cached answer. Called after the index is replaced.
func (c *AnswerCache[T]) Purge(ctx context.Context) (int, error) {
	removed := 0
	iter := c.client.Scan(ctx, 0, answerKeyPrefix+"*", 200).Iterator()
	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			n, err := c.client.Del(ctx, batch...).Result()
			if err != nil {
				return removed, fmt.Errorf("redis delete answers failed: %w", err)
			}
			removed += int(n)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan answers failed: %w", err)
	}
	if len(batch) > 0 {
		n, err := c.client.Del(ctx, batch...).Result()
		if err != nil {
			return removed, fmt.Errorf("redis delete answers failed: %w", err)
		}
		removed += int(n)
	}
	return removed, nil
}

// AnswerKey is case and whitespace insensitive on the question.
func AnswerKey(question string, topK int) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	sum := sha256.Sum256([]byte(normalized + "\x00" + strconv.Itoa(topK)))
	return answerKeyPrefix + hex.EncodeToString(sum[:])
}
