package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix   = "lock:"
	statusKeyPrefix = "status:"
	cancelKeyPrefix = "cancel:"
)

// releaseScript deletes the lock only when it is still owned by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisBoard is a Board shared between processes through Redis.
type RedisBoard struct {
	client    redis.UniversalClient
	prefix    string
	statusTTL time.Duration
}

// RedisBoardOption configures a RedisBoard.
type RedisBoardOption func(*RedisBoard)

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(prefix string) RedisBoardOption {
	return func(b *RedisBoard) { b.prefix = prefix }
}

// WithStatusTTL sets how long snapshots and cancel requests are kept.
func WithStatusTTL(ttl time.Duration) RedisBoardOption {
	return func(b *RedisBoard) { b.statusTTL = ttl }
}

// NewRedisBoard constructs a Redis-backed board.
func NewRedisBoard(client redis.UniversalClient, opts ...RedisBoardOption) *RedisBoard {
	b := &RedisBoard{
		client:    client,
		prefix:    "fileno:",
		statusTTL: 24 * time.Hour,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// NewRedisClient parses the URL and pings the server. It returns nil when url is empty.
func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.DialTimeoutSeconds > 0 {
		opts.DialTimeout = time.Duration(cfg.DialTimeoutSeconds) * time.Second
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (b *RedisBoard) key(kind, id string) string {
	return b.prefix + kind + id
}

func (b *RedisBoard) Acquire(ctx context.Context, target, runID string, ttl time.Duration) error {
	key := b.key(lockKeyPrefix, target)
	ok, err := b.client.SetNX(ctx, key, runID, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", target, err)
	}
	if ok {
		return nil
	}

	// Re-entrant for the same run
	holder, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return b.Acquire(ctx, target, runID, ttl)
	}
	if err != nil {
		return fmt.Errorf("failed to read lock on %s: %w", target, err)
	}
	if holder == runID {
		return b.client.Expire(ctx, key, ttl).Err()
	}
	return fmt.Errorf("%w: %s held by %s", ErrLocked, target, holder)
}

func (b *RedisBoard) Release(ctx context.Context, target, runID string) error {
	if err := releaseScript.Run(ctx, b.client, []string{b.key(lockKeyPrefix, target)}, runID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock on %s: %w", target, err)
	}
	return nil
}

func (b *RedisBoard) Publish(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return b.client.Set(ctx, b.key(statusKeyPrefix, snap.RunID), data, b.statusTTL).Err()
}

func (b *RedisBoard) Status(ctx context.Context, runID string) (*Snapshot, error) {
	data, err := b.client.Get(ctx, b.key(statusKeyPrefix, runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status of %s: %w", runID, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode status of %s: %w", runID, err)
	}
	return &snap, nil
}

func (b *RedisBoard) RequestCancel(ctx context.Context, runID string) error {
	return b.client.Set(ctx, b.key(cancelKeyPrefix, runID), "1", b.statusTTL).Err()
}

func (b *RedisBoard) CancelRequested(ctx context.Context, runID string) (bool, error) {
	n, err := b.client.Exists(ctx, b.key(cancelKeyPrefix, runID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
