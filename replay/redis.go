package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a replay guard backed by Redis, letting multiple gateway
// instances share one guard. SET NX supplies the conditional-put; the record
// TTL doubles as garbage collection.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisStore creates a Redis-backed guard from a redis URL
// (redis://host:port/db).
func NewRedisStore(redisURL string, retention time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{
		client:    client,
		prefix:    "x402:replay:",
		retention: retention,
	}, nil
}

// NewRedisStoreFromClient wraps an existing client, for pooled setups.
func NewRedisStoreFromClient(client *redis.Client, retention time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "x402:replay:", retention: retention}
}

func (s *RedisStore) key(paymentID string) string {
	return s.prefix + paymentID
}

// TryConsume inserts the record with SET NX; exactly one caller wins.
func (s *RedisStore) TryConsume(ctx context.Context, paymentID, transactionReference string) (bool, error) {
	record := Record{
		PaymentID:            paymentID,
		TransactionReference: transactionReference,
		ConsumedAt:           time.Now(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return false, err
	}

	ok, err := s.client.SetNX(ctx, s.key(paymentID), data, s.retention).Result()
	if err != nil {
		return false, fmt.Errorf("replay guard setnx: %w", err)
	}
	return ok, nil
}

// HasConsumed reports whether paymentID has a record.
func (s *RedisStore) HasConsumed(ctx context.Context, paymentID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(paymentID)).Result()
	if err != nil {
		return false, fmt.Errorf("replay guard exists: %w", err)
	}
	return n > 0, nil
}

// Get returns the record for paymentID, or nil.
func (s *RedisStore) Get(ctx context.Context, paymentID string) (*Record, error) {
	data, err := s.client.Get(ctx, s.key(paymentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("replay guard get: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("replay guard decode: %w", err)
	}
	return &record, nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
