package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rental/internal/domain"
	"rental/internal/repository"
)

// CommissionService posts the platform's share of paid bookings.
type CommissionService struct {
	store  repository.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewCommissionService creates a new CommissionService.
func NewCommissionService(store repository.Store, logger *zap.Logger) *CommissionService {
	return &CommissionService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// CreateRevenueRecords writes one commission and one platform fee record for a completed
// payment, using the split stored on the booking. Zero amounts are recorded too. Records
// are unique per booking, payment and type, so a repeated call returns the existing ones.
func (s *CommissionService) CreateRevenueRecords(ctx context.Context, bookingID, paymentID string) ([]*domain.RevenueRecord, error) {
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}
	if paymentID == "" {
		return nil, ErrInvalidPaymentID
	}

	var records []*domain.RevenueRecord
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		booking, err := tx.Bookings().GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		payment, err := tx.Payments().GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.BookingID != booking.ID {
			return fmt.Errorf("%w: payment %s belongs to another booking", ErrInvalidPaymentID, paymentID)
		}
		if payment.Status != domain.PaymentStatusCompleted {
			return fmt.Errorf("%w: payment %s is %s", ErrInvalidStatusTransition, paymentID, payment.Status)
		}

		ownerID := ""
		vehicle, err := tx.Vehicles().GetByID(ctx, booking.VehicleID)
		switch {
		case err == nil:
			ownerID = vehicle.OwnerID
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		now := s.now()
		newRecord := func(t domain.RevenueType, amount, rate float64) *domain.RevenueRecord {
			return &domain.RevenueRecord{
				ID:          uuid.New().String(),
				BookingID:   booking.ID,
				PaymentID:   payment.ID,
				OwnerID:     ownerID,
				RevenueType: t,
				Amount:      amount,
				Rate:        rate,
				Status:      domain.RevenueStatusPending,
				CreatedAt:   now,
			}
		}

		err = tx.Revenue().CreateBatch(ctx, []*domain.RevenueRecord{
			newRecord(domain.RevenueTypeCommission, booking.Commission, booking.CommissionRate),
			newRecord(domain.RevenueTypePlatformFee, booking.PlatformFee, booking.PlatformFeeRate),
		})
		if err != nil {
			return err
		}

		records, err = tx.Revenue().ListByPayment(ctx, booking.ID, payment.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("revenue records posted",
		zap.String("booking_id", bookingID),
		zap.String("payment_id", paymentID),
		zap.Int("count", len(records)))
	return records, nil
}

// Settle marks pending records as settled for a payout period such as "2026-06".
func (s *CommissionService) Settle(ctx context.Context, recordIDs []string, period string) (int64, error) {
	if len(recordIDs) == 0 {
		return 0, nil
	}
	return s.store.Revenue().Settle(ctx, recordIDs, period, s.now())
}

// CancelForBooking cancels a booking's unsettled records.
func (s *CommissionService) CancelForBooking(ctx context.Context, bookingID string) (int64, error) {
	if bookingID == "" {
		return 0, ErrInvalidBookingID
	}
	return s.store.Revenue().CancelPendingByBooking(ctx, bookingID)
}
