package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rental/internal/domain"
	"rental/internal/repository"
)

// CancellationService cancels bookings and compensates their side effects: the refund,
// the posted revenue and the cached availability.
type CancellationService struct {
	store         repository.Store
	availability  *AvailabilityChecker
	payments      *PaymentService
	commission    *CommissionService
	notifications *NotificationService
	logger        *zap.Logger
	now           func() time.Time
}

// NewCancellationService creates a new CancellationService.
func NewCancellationService(
	store repository.Store,
	availability *AvailabilityChecker,
	payments *PaymentService,
	commission *CommissionService,
	notifications *NotificationService,
	logger *zap.Logger,
) *CancellationService {
	return &CancellationService{
		store:         store,
		availability:  availability,
		payments:      payments,
		commission:    commission,
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}
}

// Cancel cancels a booking on behalf of its renter or the vehicle owner.
//
// The booking is cancelled first and stays cancelled even if the refund fails afterwards;
// a failed refund is logged for manual follow-up.
func (s *CancellationService) Cancel(ctx context.Context, bookingID, actingUserID, reason string) (*domain.Booking, error) {
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}
	if actingUserID == "" {
		return nil, ErrInvalidUserID
	}

	current, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var booking *domain.Booking
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		vehicle, err := tx.LockVehicle(ctx, current.VehicleID)
		if err != nil {
			return err
		}
		booking, err = tx.Bookings().GetByID(ctx, bookingID)
		if err != nil {
			return err
		}

		if booking.RenterID != actingUserID && vehicle.OwnerID != actingUserID {
			return ErrNotBookingParty
		}
		switch booking.Status {
		case domain.BookingStatusCancelled:
			return ErrBookingAlreadyCancelled
		case domain.BookingStatusCompleted:
			return ErrBookingCompleted
		}
		if !booking.Status.CanTransitionTo(domain.BookingStatusCancelled) {
			return fmt.Errorf("%w: booking %s to %s", ErrInvalidStatusTransition, booking.Status, domain.BookingStatusCancelled)
		}

		wasActive := booking.Status == domain.BookingStatusActive
		now := s.now()
		booking.Status = domain.BookingStatusCancelled
		booking.CancellationReason = reason
		booking.CancelledAt = now
		booking.UpdatedAt = now
		if err := tx.Bookings().Update(ctx, booking); err != nil {
			return err
		}

		if wasActive {
			return tx.Vehicles().UpdateStatus(ctx, vehicle.ID, domain.VehicleStatusAvailable)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.availability.Invalidate(ctx, booking.VehicleID)

	s.logger.Info("booking cancelled",
		zap.String("booking_id", booking.ID),
		zap.String("cancelled_by", actingUserID),
		zap.String("reason", reason))

	refunded := s.refund(ctx, booking, reason)

	if s.commission != nil {
		if _, err := s.commission.CancelForBooking(ctx, booking.ID); err != nil {
			s.logger.Error("failed to cancel revenue records", zap.String("booking_id", booking.ID), zap.Error(err))
		}
	}

	s.notifications.NotifyBookingCancelled(ctx, booking, actingUserID, refunded)
	return booking, nil
}

// refund returns the booking's payment if money was taken. It returns the refunded
// payment, or nil when nothing was refunded.
func (s *CancellationService) refund(ctx context.Context, booking *domain.Booking, reason string) *domain.Payment {
	payment, err := s.store.Payments().GetByBookingID(ctx, booking.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.logger.Error("failed to load payment for refund", zap.String("booking_id", booking.ID), zap.Error(err))
		return nil
	}
	if payment.Status != domain.PaymentStatusCompleted {
		return nil
	}

	if reason == "" {
		reason = "Booking cancelled"
	}
	refunded, err := s.payments.Refund(ctx, RefundRequest{PaymentID: payment.ID, Reason: reason})
	if err != nil {
		s.logger.Error("refund failed after cancellation",
			zap.String("booking_id", booking.ID),
			zap.String("payment_id", payment.ID),
			zap.String("method", string(payment.Method)),
			zap.Float64("amount", payment.Amount),
			zap.Error(err))
		return nil
	}
	return refunded
}
