package x402

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// SettlementCache coalesces concurrent settlement attempts for the same
// payload and caches successful receipts so a client retry after a slow
// response observes the original receipt instead of triggering a duplicate
// ledger submission.
type SettlementCache struct {
	mu       sync.Mutex
	results  map[string]*SettlementReceipt
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
}

// NewSettlementCache creates a settlement cache with the specified TTL.
func NewSettlementCache(ttl time.Duration) *SettlementCache {
	return &SettlementCache{
		results:  make(map[string]*SettlementReceipt),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
	}
}

// GenerateSettlementKey creates a unique key from payment payload bytes.
// The payload embeds the signed transaction, so the hash is unique per
// payment attempt.
func GenerateSettlementKey(payloadBytes []byte) string {
	hash := sha256.Sum256(payloadBytes)
	return hex.EncodeToString(hash[:])
}

// SettlementStatus represents the result of checking the cache.
type SettlementStatus int

const (
	// StatusNotFound means no cached result and no in-flight request.
	StatusNotFound SettlementStatus = iota
	// StatusCached means a cached receipt was found.
	StatusCached
	// StatusInFlight means another request is currently settling this payload.
	StatusInFlight
)

// CheckAndMark atomically checks the cache and marks the key as in-flight if
// needed. Returns StatusCached with the receipt, StatusInFlight with a wait
// channel, or StatusNotFound with a done channel the caller must later pass
// to Complete or Fail.
func (c *SettlementCache) CheckAndMark(key string) (SettlementStatus, *SettlementReceipt, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, exists := c.expiry[key]; exists {
		if time.Now().Before(expiry) {
			if result, ok := c.results[key]; ok {
				return StatusCached, result, nil
			}
		}
		delete(c.results, key)
		delete(c.expiry, key)
	}

	if done, exists := c.inFlight[key]; exists {
		return StatusInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[key] = done
	return StatusNotFound, nil, done
}

// WaitForResult waits for an in-flight attempt to complete, respecting
// context cancellation. Returns nil if the attempt failed without caching.
func (c *SettlementCache) WaitForResult(ctx context.Context, key string, done chan struct{}) (*SettlementReceipt, error) {
	select {
	case <-done:
		return c.get(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *SettlementCache) get(key string) *SettlementReceipt {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, exists := c.expiry[key]
	if !exists {
		return nil
	}
	if time.Now().After(expiry) {
		delete(c.results, key)
		delete(c.expiry, key)
		return nil
	}
	return c.results[key]
}

// Complete caches the receipt, clears the in-flight marker, and signals
// waiters.
func (c *SettlementCache) Complete(key string, receipt *SettlementReceipt, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = receipt
	c.expiry[key] = time.Now().Add(c.ttl)
	delete(c.inFlight, key)
	close(done)

	c.cleanupExpiredLocked()
}

// Fail clears the in-flight marker without caching, allowing a retry.
func (c *SettlementCache) Fail(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)
	close(done)
}

// cleanupExpiredLocked removes expired entries. Must be called with lock held.
func (c *SettlementCache) cleanupExpiredLocked() {
	now := time.Now()
	for key, expiry := range c.expiry {
		if now.After(expiry) {
			delete(c.results, key)
			delete(c.expiry, key)
		}
	}
}
