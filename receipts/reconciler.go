package receipts

import (
	"context"
	"log/slog"
	"time"

	x402 "github.com/x402-foundation/x402-facilitator"
)

// TxStatus is the reconciler's view of a submitted transaction.
type TxStatus int

const (
	// TxPending: no finality verdict yet.
	TxPending TxStatus = iota
	// TxFinalized: the ledger finalized the transaction.
	TxFinalized
	// TxFailed: the ledger rejected the transaction, or its blockhash expired
	// without inclusion.
	TxFailed
)

// StatusFunc checks the finality status of a transaction on a network.
type StatusFunc func(ctx context.Context, network, txRef string) (TxStatus, error)

// Reconciler resolves settlements that timed out after submission. A timeout
// leaves the replay guard unconsumed while the transaction may still land on
// the ledger; the reconciler periodically rechecks those transactions and,
// when one finalized, consumes the guard and flips the receipt to success so
// a replayed payload is rejected rather than double-settled.
type Reconciler struct {
	store    *Store
	guard    x402.ReplayGuard
	check    StatusFunc
	interval time.Duration

	// maxAge bounds how long a pending transaction is rechecked. Past it the
	// blockhash has long expired and the row is abandoned.
	maxAge time.Duration

	logger *slog.Logger
	stop   chan struct{}
	done   chan struct{}
}

// NewReconciler creates a reconciler polling at the given interval.
func NewReconciler(store *Store, guard x402.ReplayGuard, check StatusFunc, interval, maxAge time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:    store,
		guard:    guard,
		check:    check,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the reconciliation loop.
func (r *Reconciler) Start() {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), r.interval)
				if err := r.RunOnce(ctx); err != nil {
					r.logger.Error("reconciliation pass failed", "error", err)
				}
				cancel()
			}
		}
	}()
}

// Stop halts the loop and waits for the current pass to finish.
func (r *Reconciler) Stop() {
	close(r.stop)
	<-r.done
}

// RunOnce performs a single reconciliation pass.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	// Only rows that stopped moving get rechecked; a settlement still inside
	// its timeout window is the settle path's business, not ours.
	unresolved, err := r.store.ListUnresolved(ctx, time.Now().Add(-r.interval))
	if err != nil {
		return err
	}

	for _, record := range unresolved {
		if err := r.reconcile(ctx, record); err != nil {
			r.logger.Warn("could not reconcile settlement",
				"paymentId", record.PaymentID, "txRef", record.TransactionReference, "error", err)
		}
	}
	return nil
}

func (r *Reconciler) reconcile(ctx context.Context, record Receipt) error {
	status, err := r.check(ctx, record.NetworkID, record.TransactionReference)
	if err != nil {
		return err
	}

	switch status {
	case TxFinalized:
		consumed, err := r.guard.TryConsume(ctx, record.PaymentID, record.TransactionReference)
		if err != nil {
			return err
		}
		if !consumed {
			// A concurrent settle attempt beat us to it; the receipt is
			// already being handled there.
			r.logger.Info("guard already consumed during reconciliation", "paymentId", record.PaymentID)
		}
		r.logger.Info("reconciled timed-out settlement",
			"paymentId", record.PaymentID, "txRef", record.TransactionReference)
		return r.store.MarkResolved(ctx, record.PaymentID, time.Now())

	case TxFailed:
		r.logger.Info("timed-out settlement failed on ledger", "paymentId", record.PaymentID)
		return r.store.MarkAbandoned(ctx, record.PaymentID)

	default:
		if time.Since(record.CreatedAt) > r.maxAge {
			r.logger.Info("abandoning stale settlement", "paymentId", record.PaymentID)
			return r.store.MarkAbandoned(ctx, record.PaymentID)
		}
		return nil
	}
}
