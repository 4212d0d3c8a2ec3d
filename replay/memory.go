package replay

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process replay guard suitable for single-instance
// deployments. For load-balanced gateways sharing one guard, use RedisStore.
//
// Entries are garbage-collected a safety margin after their retention
// window: an expired paymentId can never be legitimately resubmitted, so
// keeping its record past expiry plus one challenge-timeout window buys
// nothing.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]*Record
	expiry    map[string]time.Time
	retention time.Duration
}

// NewMemoryStore creates a memory guard. Retention should be at least the
// longest challenge expiry plus one challenge-timeout window.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]*Record),
		expiry:    make(map[string]time.Time),
		retention: retention,
	}
}

// TryConsume atomically inserts a record for paymentID.
func (s *MemoryStore) TryConsume(_ context.Context, paymentID, transactionReference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[paymentID]; exists {
		return false, nil
	}

	s.records[paymentID] = &Record{
		PaymentID:            paymentID,
		TransactionReference: transactionReference,
		ConsumedAt:           time.Now(),
	}
	s.expiry[paymentID] = time.Now().Add(s.retention)

	s.collectLocked()
	return true, nil
}

// HasConsumed reports whether paymentID has a record.
func (s *MemoryStore) HasConsumed(_ context.Context, paymentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.records[paymentID]
	return exists, nil
}

// Get returns the record for paymentID, or nil.
func (s *MemoryStore) Get(_ context.Context, paymentID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[paymentID], nil
}

// collectLocked drops records past retention. Must be called with lock held.
func (s *MemoryStore) collectLocked() {
	now := time.Now()
	for id, deadline := range s.expiry {
		if now.After(deadline) {
			delete(s.records, id)
			delete(s.expiry, id)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
