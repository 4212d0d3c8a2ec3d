// Package receipts persists settlement outcomes. The store doubles as the
// audit log and as the work queue for the reconciler, which resolves
// settlements that timed out with a transaction still in flight.
package receipts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	x402 "github.com/x402-foundation/x402-facilitator"
)

// Receipt is the persisted settlement outcome for one payment attempt.
type Receipt struct {
	ID                   uint   `gorm:"primaryKey"`
	PaymentID            string `gorm:"uniqueIndex;size:64"`
	Resource             string
	Success              bool
	TransactionReference string `gorm:"index"`
	NetworkID            string
	Payer                string
	ErrorReason          string
	ConfirmedAt          time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Store persists receipts in a relational database.
type Store struct {
	db *gorm.DB
}

// Open creates a store backed by a SQLite file.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open receipts db: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing gorm connection and migrates the schema.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Receipt{}); err != nil {
		return nil, fmt.Errorf("migrate receipts schema: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordSettlement upserts the settlement outcome for a payment. A later
// outcome for the same paymentId overwrites an earlier timeout row, which is
// how reconciled settlements flip to success.
func (s *Store) RecordSettlement(ctx context.Context, paymentID, resource string, receipt x402.SettlementReceipt) error {
	record := Receipt{
		PaymentID:            paymentID,
		Resource:             resource,
		Success:              receipt.Success,
		TransactionReference: receipt.TransactionReference,
		NetworkID:            string(receipt.NetworkID),
		Payer:                receipt.Payer,
		ErrorReason:          receipt.ErrorReason,
		ConfirmedAt:          receipt.ConfirmedAt,
	}

	var existing Receipt
	err := s.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.WithContext(ctx).Create(&record).Error
	case err != nil:
		return fmt.Errorf("load receipt: %w", err)
	}

	record.ID = existing.ID
	record.CreatedAt = existing.CreatedAt
	return s.db.WithContext(ctx).Save(&record).Error
}

// Get returns the receipt for a paymentId, or nil.
func (s *Store) Get(ctx context.Context, paymentID string) (*Receipt, error) {
	var record Receipt
	err := s.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load receipt: %w", err)
	}
	return &record, nil
}

// ListUnresolved returns timed-out settlements that still have a transaction
// reference: the transaction was submitted but finality was never observed.
// These are the reconciler's work items.
func (s *Store) ListUnresolved(ctx context.Context, olderThan time.Time) ([]Receipt, error) {
	var records []Receipt
	err := s.db.WithContext(ctx).
		Where("success = ? AND error_reason = ? AND transaction_reference <> '' AND updated_at < ?",
			false, x402.ReasonSettlementTimeout, olderThan).
		Order("updated_at asc").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list unresolved receipts: %w", err)
	}
	return records, nil
}

// MarkResolved rewrites a timed-out row as a confirmed settlement.
func (s *Store) MarkResolved(ctx context.Context, paymentID string, confirmedAt time.Time) error {
	return s.db.WithContext(ctx).Model(&Receipt{}).
		Where("payment_id = ?", paymentID).
		Updates(map[string]interface{}{
			"success":      true,
			"error_reason": "",
			"confirmed_at": confirmedAt,
		}).Error
}

// MarkAbandoned rewrites a timed-out row as terminally failed, ending
// reconciliation for it.
func (s *Store) MarkAbandoned(ctx context.Context, paymentID string) error {
	return s.db.WithContext(ctx).Model(&Receipt{}).
		Where("payment_id = ?", paymentID).
		Update("error_reason", x402.ReasonSettlementRejected).Error
}

var _ x402.SettlementRecorder = (*Store)(nil)
