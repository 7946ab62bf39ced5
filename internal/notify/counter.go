package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"catalog-import-service/internal/models"

	"github.com/redis/go-redis/v9"
)

// Counter numbers outgoing messages per type. Peek returns the number the
// next message will carry; Commit records that it was sent.
type Counter interface {
	Peek(ctx context.Context, emailType models.EmailType) (int64, error)
	Commit(ctx context.Context, emailType models.EmailType) (models.EmailMetric, error)
}

// RedisCounter keeps counters in redis so every replica shares the sequence.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func countKey(t models.EmailType) string {
	return fmt.Sprintf("catalog:email_metrics:%s:count", t)
}

func lastSentKey(t models.EmailType) string {
	return fmt.Sprintf("catalog:email_metrics:%s:last_sent_at", t)
}

func (c *RedisCounter) Peek(ctx context.Context, emailType models.EmailType) (int64, error) {
	count, err := c.client.Get(ctx, countKey(emailType)).Int64()
	if errors.Is(err, redis.Nil) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s counter: %w", emailType, err)
	}
	return count + 1, nil
}

func (c *RedisCounter) Commit(ctx context.Context, emailType models.EmailType) (models.EmailMetric, error) {
	now := time.Now().UTC()

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, countKey(emailType))
	pipe.Set(ctx, lastSentKey(emailType), now.Format(time.RFC3339), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return models.EmailMetric{}, fmt.Errorf("update %s counter: %w", emailType, err)
	}
	return models.EmailMetric{Type: emailType, Count: incr.Val(), LastSentAt: &now}, nil
}

// MemoryCounter is the single-process fallback when redis is unavailable.
type MemoryCounter struct {
	mu      sync.Mutex
	metrics map[models.EmailType]models.EmailMetric
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{metrics: make(map[models.EmailType]models.EmailMetric)}
}

func (c *MemoryCounter) Peek(ctx context.Context, emailType models.EmailType) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics[emailType].Count + 1, nil
}

func (c *MemoryCounter) Commit(ctx context.Context, emailType models.EmailType) (models.EmailMetric, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	metric := c.metrics[emailType]
	metric.Type = emailType
	metric.Count++
	metric.LastSentAt = &now
	c.metrics[emailType] = metric
	return metric, nil
}
