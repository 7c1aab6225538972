package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sqlagent/sqlagent/internal/observability"
)

// redisClient is the subset of *redis.Client used by RedisLog.
type redisClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisLog stores one session's entries as a JSON list so that several API
// replicas can serve the same session. The key expires ttl after the last
// write.
type RedisLog struct {
	client redisClient
	key    string
	ttl    time.Duration
}

func NewRedisLog(client redisClient, key string, ttl time.Duration) *RedisLog {
	return &RedisLog{client: client, key: key, ttl: ttl}
}

func (r *RedisLog) Record(ctx context.Context, entry Entry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode memory entry: %w", err)
	}
	if err := r.client.RPush(ctx, r.key, payload).Err(); err != nil {
		return fmt.Errorf("append memory entry: %w", err)
	}
	if r.ttl > 0 {
		if err := r.client.Expire(ctx, r.key, r.ttl).Err(); err != nil {
			return fmt.Errorf("refresh memory ttl: %w", err)
		}
	}
	return nil
}

func (r *RedisLog) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}
	raw, err := r.client.LRange(ctx, r.key, int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read memory entries: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("decode memory entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *RedisLog) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("reset memory: %w", err)
	}
	return nil
}

type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	MaxRetries int
}

// ConnectRedis pings with exponential backoff until the server answers or
// the attempts run out.
func ConnectRedis(ctx context.Context, opts RedisOptions, logger *slog.Logger) (*redis.Client, error) {
	logger = observability.OrDiscard(logger)
	client := redis.NewClient(&redis.Options{
		Addr:            opts.Addr,
		Password:        opts.Password,
		DB:              opts.DB,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
	})

	attempts := opts.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := time.Duration(1<<uint(i)) * time.Second
			logger.InfoContext(ctx, "waiting before redis retry", slog.String("backoff", backoff.String()))
			select {
			case <-ctx.Done():
				_ = client.Close()
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err = client.Ping(ctx).Err(); err == nil {
			logger.InfoContext(ctx, "redis connected", slog.String("addr", opts.Addr), slog.Int("attempts", i+1))
			return client, nil
		}
		logger.WarnContext(ctx, "redis ping failed", slog.String("error", err.Error()), slog.Int("attempt", i+1))
	}
	_ = client.Close()
	return nil, fmt.Errorf("connect to redis after %d attempts: %w", attempts, err)
}
