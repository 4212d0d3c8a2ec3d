package http

import (
	"sync"
	"time"

	"github.com/google/uuid"

	x402 "github.com/x402-foundation/x402-facilitator"
)

// ChallengeStore tracks outstanding payment requirements keyed by paymentId.
// A challenge is issued per unpaid request, consumed on settlement, and
// discarded on rejection or expiry. Rejected challenges are never reissued;
// the gateway always mints a fresh paymentId.
type ChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]x402.PaymentRequirements
	ttl        time.Duration
}

// NewChallengeStore creates a challenge store with the given challenge
// lifetime.
func NewChallengeStore(ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{
		challenges: make(map[string]x402.PaymentRequirements),
		ttl:        ttl,
	}
}

// Issue mints a challenge for a resource at the given price. The paymentId is
// a fresh UUID; ExpiresAt is strictly after issuance.
func (s *ChallengeStore) Issue(resource string, price x402.Price, maxTimeoutSeconds int, extra map[string]interface{}) x402.PaymentRequirements {
	requirements := x402.PaymentRequirements{
		Scheme:            price.Scheme,
		Network:           price.Network,
		Asset:             price.Asset,
		MaxAmountRequired: price.Amount,
		PayTo:             price.PayTo,
		Resource:          resource,
		MaxTimeoutSeconds: maxTimeoutSeconds,
		PaymentID:         uuid.NewString(),
		ExpiresAt:         time.Now().Add(s.ttl),
		Extra:             extra,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[requirements.PaymentID] = requirements
	s.collectLocked()

	return requirements
}

// Get returns the outstanding challenge for paymentID. Expired challenges
// are still returned so verification can reject them with payment_expired
// rather than treating them as unknown ids; they are garbage-collected a
// safety margin after expiry.
func (s *ChallengeStore) Get(paymentID string) (x402.PaymentRequirements, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requirements, ok := s.challenges[paymentID]
	if !ok {
		return x402.PaymentRequirements{}, false
	}
	return requirements, true
}

// Remove discards a challenge. Called on settlement success and on every
// rejection; either way the paymentId is dead.
func (s *ChallengeStore) Remove(paymentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, paymentID)
}

// Len returns the number of outstanding challenges.
func (s *ChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

// collectLocked drops challenges one full lifetime past expiry. The margin
// keeps the expired entry around long enough for a late submission to be
// rejected as expired instead of unknown.
func (s *ChallengeStore) collectLocked() {
	now := time.Now()
	for id, requirements := range s.challenges {
		if now.After(requirements.ExpiresAt.Add(s.ttl)) {
			delete(s.challenges, id)
		}
	}
}
