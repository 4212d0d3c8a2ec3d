// Package notify delivers settlement events to downstream systems. Delivery
// is strictly fire-and-forget: a slow or failing sink never delays the
// client-facing response.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	x402 "github.com/x402-foundation/x402-facilitator"
)

// WebhookSink posts settlement events as JSON to a webhook URL. Events are
// queued on a bounded buffer and delivered by a background worker; when the
// buffer is full, events are dropped and logged.
type WebhookSink struct {
	url     string
	client  *http.Client
	events  chan x402.SettlementEvent
	logger  *slog.Logger
	wg      sync.WaitGroup
	closed  chan struct{}
	closeMu sync.Mutex
	done    bool
}

// NewWebhookSink creates a sink delivering to url. bufferSize bounds the
// number of undelivered events held in memory.
func NewWebhookSink(url string, bufferSize int, logger *slog.Logger) *WebhookSink {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		events: make(chan x402.SettlementEvent, bufferSize),
		logger: logger,
		closed: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.deliver()

	return s
}

// Notify queues an event. Never blocks; events are dropped when the buffer is
// full.
func (s *WebhookSink) Notify(event x402.SettlementEvent) {
	select {
	case s.events <- event:
	default:
		s.logger.Warn("notification buffer full, dropping event",
			"paymentId", event.PaymentID, "resource", event.Resource)
	}
}

// Close stops the worker after draining queued events.
func (s *WebhookSink) Close() {
	s.closeMu.Lock()
	if !s.done {
		s.done = true
		close(s.closed)
	}
	s.closeMu.Unlock()
	s.wg.Wait()
}

func (s *WebhookSink) deliver() {
	defer s.wg.Done()

	for {
		select {
		case event := <-s.events:
			if err := s.post(event); err != nil {
				s.logger.Warn("webhook delivery failed",
					"paymentId", event.PaymentID, "error", err)
			}
		case <-s.closed:
			// Drain what is already queued, then exit.
			for {
				select {
				case event := <-s.events:
					if err := s.post(event); err != nil {
						s.logger.Warn("webhook delivery failed",
							"paymentId", event.PaymentID, "error", err)
					}
				default:
					return
				}
			}
		}
	}
}

func (s *WebhookSink) post(event x402.SettlementEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

var _ x402.NotificationSink = (*WebhookSink)(nil)
