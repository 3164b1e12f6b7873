package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"rental/internal/domain"
	"rental/internal/events"
)

// EventPublisher delivers domain events to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// NotificationService publishes booking and payment events without blocking the caller.
// Delivery failures are logged and dropped.
type NotificationService struct {
	publisher EventPublisher
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time

	wg sync.WaitGroup
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(publisher EventPublisher, timeout time.Duration, logger *zap.Logger) *NotificationService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NotificationService{
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// NotifyBookingConfirmed announces that a booking has been paid for.
func (s *NotificationService) NotifyBookingConfirmed(ctx context.Context, booking *domain.Booking, payment *domain.Payment) {
	if s == nil {
		return
	}
	s.send(ctx, events.TopicBookingConfirmed, events.BookingConfirmed{
		BookingID:  booking.ID,
		RenterID:   booking.RenterID,
		VehicleID:  booking.VehicleID,
		PaymentID:  payment.ID,
		Method:     string(payment.Method),
		Amount:     payment.Amount,
		Currency:   payment.Currency,
		StartDate:  booking.StartDate,
		EndDate:    booking.EndDate,
		OccurredAt: s.now(),
	})
}

// NotifyBookingCancelled announces a cancellation. refunded is the payment after a
// successful refund, or nil.
func (s *NotificationService) NotifyBookingCancelled(ctx context.Context, booking *domain.Booking, cancelledBy string, refunded *domain.Payment) {
	if s == nil {
		return
	}
	event := events.BookingCancelled{
		BookingID:   booking.ID,
		RenterID:    booking.RenterID,
		VehicleID:   booking.VehicleID,
		CancelledBy: cancelledBy,
		Reason:      booking.CancellationReason,
		OccurredAt:  s.now(),
	}
	if refunded != nil {
		event.Refunded = true
		event.RefundAmount = refunded.RefundAmount
	}
	s.send(ctx, events.TopicBookingCancelled, event)
}

// NotifyPaymentFailed announces a failed payment attempt.
func (s *NotificationService) NotifyPaymentFailed(ctx context.Context, payment *domain.Payment) {
	if s == nil {
		return
	}
	s.send(ctx, events.TopicPaymentFailed, events.PaymentFailed{
		PaymentID:  payment.ID,
		BookingID:  payment.BookingID,
		UserID:     payment.UserID,
		Method:     string(payment.Method),
		Amount:     payment.Amount,
		Reason:     payment.FailureReason,
		OccurredAt: s.now(),
	})
}

// Wait blocks until every in-flight publish has finished.
func (s *NotificationService) Wait() {
	if s == nil {
		return
	}
	s.wg.Wait()
}

// send publishes off the request path. The request context is detached so a finished
// request does not cancel delivery.
func (s *NotificationService) send(ctx context.Context, topic string, payload any) {
	if s.publisher == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		if err := s.publisher.Publish(ctx, topic, payload); err != nil {
			s.logger.Warn("failed to publish notification", zap.String("topic", topic), zap.Error(err))
		}
	}()
}
