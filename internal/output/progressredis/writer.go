package progressredis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"ocelbridge/pkg/models"
)

// Config configures the Redis progress writer. Key may contain {run_id},
// which is replaced per message.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
	MaxLen   int64
	TTL      time.Duration
	Timeout  time.Duration
}

// Writer pushes progress messages onto Redis lists for a presentation layer
// to consume with BLPOP.
type Writer struct {
	client  *redis.Client
	key     string
	maxLen  int64
	ttl     time.Duration
	timeout time.Duration
}

// NewWriter creates a Redis progress writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Writer{
		client:  client,
		key:     cfg.Key,
		maxLen:  cfg.MaxLen,
		ttl:     cfg.TTL,
		timeout: cfg.Timeout,
	}, nil
}

// KeyFor returns the list key for a run.
func (w *Writer) KeyFor(runID string) string {
	return keyFor(w.key, runID)
}

func keyFor(template, runID string) string {
	return strings.ReplaceAll(template, "{run_id}", runID)
}

// WriteProgress RPUSHes a batch in one round trip and trims or expires the
// touched lists.
func (w *Writer) WriteProgress(batch []*models.Progress) error {
	if len(batch) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	grouped, order, err := encode(w.key, batch)
	if err != nil {
		return err
	}

	pipe := w.client.Pipeline()
	for _, key := range order {
		pipe.RPush(ctx, key, grouped[key]...)
		if w.maxLen > 0 {
			pipe.LTrim(ctx, key, -w.maxLen, -1)
		}
		if w.ttl > 0 {
			pipe.Expire(ctx, key, w.ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push progress to redis: %w", err)
	}
	return nil
}

func encode(template string, batch []*models.Progress) (map[string][]any, []string, error) {
	grouped := make(map[string][]any)
	var order []string
	for _, p := range batch {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode progress: %w", err)
		}
		key := keyFor(template, p.RunID)
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], data)
	}
	return grouped, order, nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
