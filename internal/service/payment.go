package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"rental/internal/domain"
	"rental/internal/gateway"
	"rental/internal/repository"
)

// Locker serializes work on a key across processes.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl, wait time.Duration) (func(), error)
}

const (
	gatewayLockTTL  = 30 * time.Second
	gatewayLockWait = 5 * time.Second
)

// PaymentService dispatches booking payments to a strategy per method and handles
// gateway notifications and refunds.
type PaymentService struct {
	store         repository.Store
	strategies    map[domain.PaymentMethod]PaymentStrategy
	gateway       CheckoutGateway
	commission    *CommissionService
	notifications *NotificationService
	locker        Locker
	validate      *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// PaymentServiceDeps contains the collaborators of PaymentService.
type PaymentServiceDeps struct {
	Store         repository.Store
	Gateway       CheckoutGateway
	Installments  *InstallmentService
	Commission    *CommissionService
	Notifications *NotificationService
	Locker        Locker // Optional.
	Country       string
	Logger        *zap.Logger
}

// NewPaymentService creates a new PaymentService with the wallet, gateway and installment strategies.
func NewPaymentService(deps PaymentServiceDeps) *PaymentService {
	checkout := gatewayStrategy{gateway: deps.Gateway, country: deps.Country}

	return &PaymentService{
		store: deps.Store,
		strategies: map[domain.PaymentMethod]PaymentStrategy{
			domain.PaymentMethodWallet:  walletStrategy{},
			domain.PaymentMethodGateway: checkout,
			domain.PaymentMethodCard:    checkout,
			domain.PaymentMethodBNPL:    installmentStrategy{kind: domain.InstallmentKindBNPL, installments: deps.Installments},
			domain.PaymentMethodEMI:     installmentStrategy{kind: domain.InstallmentKindEMI, installments: deps.Installments},
		},
		gateway:       deps.Gateway,
		commission:    deps.Commission,
		notifications: deps.Notifications,
		locker:        deps.Locker,
		validate:      validator.New(),
		logger:        deps.Logger,
		now:           time.Now,
	}
}

// Supports reports whether method has a registered strategy.
func (s *PaymentService) Supports(method domain.PaymentMethod) bool {
	_, ok := s.strategies[method]
	return ok
}

// ProcessPaymentRequest contains the parameters for paying a booking.
type ProcessPaymentRequest struct {
	UserID    string
	BookingID string
	Method    domain.PaymentMethod
	Params    PaymentParams
}

// PaymentResult contains the outcome of a payment attempt.
type PaymentResult struct {
	Payment     *domain.Payment
	Booking     *domain.Booking
	CheckoutURL string
	Plan        *domain.InstallmentPlan
}

// ProcessPayment pays a pending booking with the requested method.
//
// The strategy runs in one transaction holding the vehicle, payment and (for wallets) wallet
// locks. If the strategy fails the transaction rolls back, the payment is marked failed in a
// separate transaction and the booking stays pending so the renter can retry.
func (s *PaymentService) ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (*PaymentResult, error) {
	if req.UserID == "" {
		return nil, ErrInvalidUserID
	}
	if req.BookingID == "" {
		return nil, ErrInvalidBookingID
	}
	strategy, ok := s.strategies[req.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, req.Method)
	}

	var (
		result  *PaymentResult
		execErr error
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		booking, payment, err := s.lockBookingPayment(ctx, tx, req.BookingID)
		if err != nil {
			return err
		}
		if booking.RenterID != req.UserID {
			return ErrNotBookingParty
		}
		if payment.Status.Settled() {
			return fmt.Errorf("%w: payment %s is %s", ErrAlreadyProcessed, payment.ID, payment.Status)
		}
		if booking.Status != domain.BookingStatusPending {
			return fmt.Errorf("%w: booking %s is %s", ErrBookingNotPending, booking.ID, booking.Status)
		}
		if !payment.Status.CanTransitionTo(domain.PaymentStatusProcessing) {
			return fmt.Errorf("%w: payment %s to %s", ErrInvalidStatusTransition, payment.Status, domain.PaymentStatusProcessing)
		}

		renter, err := tx.Users().GetByID(ctx, booking.RenterID)
		if err != nil {
			return err
		}

		now := s.now()
		payment.Method = req.Method
		payment.Status = domain.PaymentStatusProcessing
		payment.FailureReason = ""

		outcome, err := strategy.Execute(ctx, &PaymentContext{
			Tx:      tx,
			Booking: booking,
			Payment: payment,
			Renter:  renter,
			Params:  req.Params,
			Now:     now,
		})
		if err != nil {
			execErr = err
			return err
		}

		payment.TransactionID = outcome.TransactionID
		payment.UpdatedAt = now
		switch outcome.Status {
		case domain.PaymentStatusCompleted:
			payment.Status = domain.PaymentStatusCompleted
			payment.CompletedAt = now
			if err := confirmBooking(ctx, tx, booking, now); err != nil {
				return err
			}
		case domain.PaymentStatusProcessing:
			payment.CheckoutURL = outcome.CheckoutURL
		default:
			return fmt.Errorf("%w: strategy returned %s", ErrInvalidStatusTransition, outcome.Status)
		}

		if err := tx.Payments().Update(ctx, payment); err != nil {
			return err
		}

		result = &PaymentResult{
			Payment:     payment,
			Booking:     booking,
			CheckoutURL: outcome.CheckoutURL,
			Plan:        outcome.Plan,
		}
		return nil
	})
	if err != nil {
		if execErr != nil {
			s.markFailed(ctx, req.BookingID, req.Method, execErr)
		}
		return nil, err
	}

	s.logger.Info("payment processed",
		zap.String("booking_id", result.Booking.ID),
		zap.String("payment_id", result.Payment.ID),
		zap.String("method", string(req.Method)),
		zap.String("status", string(result.Payment.Status)))

	if result.Payment.Status == domain.PaymentStatusCompleted {
		s.afterCompleted(ctx, result.Booking, result.Payment)
	}
	return result, nil
}

// lockBookingPayment locks the booking's vehicle, re-reads the booking under that lock and
// locks its payment, creating the payment shell if it does not exist yet.
func (s *PaymentService) lockBookingPayment(ctx context.Context, tx repository.Tx, bookingID string) (*domain.Booking, *domain.Payment, error) {
	booking, err := tx.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := tx.LockVehicle(ctx, booking.VehicleID); err != nil {
		return nil, nil, err
	}
	booking, err = tx.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}

	payment, err := tx.LockPayment(ctx, booking.ID)
	if errors.Is(err, repository.ErrNotFound) {
		payment = newPaymentShell(booking, s.now())
		if err := tx.Payments().Create(ctx, payment); err != nil {
			return nil, nil, err
		}
		return booking, payment, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return booking, payment, nil
}

func newPaymentShell(booking *domain.Booking, now time.Time) *domain.Payment {
	return &domain.Payment{
		ID:        uuid.New().String(),
		BookingID: booking.ID,
		UserID:    booking.RenterID,
		Amount:    booking.TotalPrice,
		Currency:  booking.Currency,
		Status:    domain.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func confirmBooking(ctx context.Context, tx repository.Tx, booking *domain.Booking, now time.Time) error {
	if !booking.Status.CanTransitionTo(domain.BookingStatusConfirmed) {
		return fmt.Errorf("%w: booking %s to %s", ErrInvalidStatusTransition, booking.Status, domain.BookingStatusConfirmed)
	}
	booking.Status = domain.BookingStatusConfirmed
	booking.UpdatedAt = now
	return tx.Bookings().Update(ctx, booking)
}

// markFailed records a failed attempt in its own transaction.
func (s *PaymentService) markFailed(ctx context.Context, bookingID string, method domain.PaymentMethod, cause error) {
	var failed *domain.Payment
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		booking, err := tx.Bookings().GetByID(ctx, bookingID)
		if err != nil {
			return err
		}

		now := s.now()
		payment, err := tx.LockPayment(ctx, bookingID)
		if errors.Is(err, repository.ErrNotFound) {
			payment = newPaymentShell(booking, now)
			payment.Method = method
			payment.Status = domain.PaymentStatusFailed
			payment.FailureReason = cause.Error()
			failed = payment
			return tx.Payments().Create(ctx, payment)
		}
		if err != nil {
			return err
		}
		if !payment.Status.CanTransitionTo(domain.PaymentStatusFailed) {
			return nil
		}

		payment.Method = method
		payment.Status = domain.PaymentStatusFailed
		payment.FailureReason = cause.Error()
		payment.UpdatedAt = now
		failed = payment
		return tx.Payments().Update(ctx, payment)
	})
	if err != nil {
		s.logger.Error("failed to record payment failure",
			zap.String("booking_id", bookingID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	if failed == nil {
		return
	}

	s.logger.Warn("payment failed",
		zap.String("booking_id", bookingID),
		zap.String("payment_id", failed.ID),
		zap.String("method", string(method)),
		zap.String("reason", failed.FailureReason))
	s.notifications.NotifyPaymentFailed(ctx, failed)
}

// afterCompleted runs the best-effort side effects of a completed payment.
func (s *PaymentService) afterCompleted(ctx context.Context, booking *domain.Booking, payment *domain.Payment) {
	if s.commission != nil {
		if _, err := s.commission.CreateRevenueRecords(ctx, booking.ID, payment.ID); err != nil {
			s.logger.Error("failed to post revenue records",
				zap.String("booking_id", booking.ID),
				zap.String("payment_id", payment.ID),
				zap.Error(err))
		}
	}
	s.notifications.NotifyBookingConfirmed(ctx, booking, payment)
}

// GetPayment retrieves a booking's payment for one of its parties.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID, userID string) (*domain.Payment, error) {
	if paymentID == "" {
		return nil, ErrInvalidPaymentID
	}
	payment, err := s.store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, ErrNotBookingParty
	}
	return payment, nil
}

// HandleGatewayNotification applies a signed gateway status notification. order_id is the
// booking id. Notifications for the same order are serialized.
func (s *PaymentService) HandleGatewayNotification(ctx context.Context, n gateway.Notification) (*domain.Payment, error) {
	if err := s.validate.Struct(n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	if !s.gateway.VerifyNotification(n) {
		return nil, ErrInvalidSignature
	}
	amount, err := strconv.ParseFloat(n.Amount, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q", ErrInvalidNotification, n.Amount)
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, "payhere:"+n.OrderID, gatewayLockTTL, gatewayLockWait)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", repository.ErrLockTimeout, err)
		}
		defer release()
	}

	var (
		payment *domain.Payment
		booking *domain.Booking
		stray   bool
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		booking, payment, err = s.lockBookingPayment(ctx, tx, n.OrderID)
		if err != nil {
			return err
		}
		if payment.Status.Settled() {
			// A capture under another reference means the booking was paid twice, e.g. by
			// wallet after the checkout was opened.
			stray = n.StatusCode == gateway.StatusSuccess && n.PaymentID != "" && n.PaymentID != payment.GatewayRef
			return fmt.Errorf("%w: payment %s is %s", ErrAlreadyProcessed, payment.ID, payment.Status)
		}
		if domain.Cents(amount) != domain.Cents(payment.Amount) || !strings.EqualFold(n.Currency, payment.Currency) {
			return fmt.Errorf("%w: got %s %s, expected %.2f %s", ErrAmountMismatch, n.Amount, n.Currency, payment.Amount, payment.Currency)
		}

		now := s.now()
		if n.PaymentID != "" {
			payment.GatewayRef = n.PaymentID
		}
		if payment.Method == "" {
			payment.Method = domain.PaymentMethodGateway
		}
		payment.UpdatedAt = now

		switch n.StatusCode {
		case gateway.StatusSuccess:
			payment.Status = domain.PaymentStatusCompleted
			payment.CompletedAt = now
			payment.FailureReason = ""
			if booking.Status == domain.BookingStatusPending {
				if err := confirmBooking(ctx, tx, booking, now); err != nil {
					return err
				}
			}
		case gateway.StatusPending:
			payment.Status = domain.PaymentStatusProcessing
		default:
			payment.Status = domain.PaymentStatusFailed
			payment.FailureReason = gatewayFailureReason(n)
		}

		return tx.Payments().Update(ctx, payment)
	})
	if stray {
		s.refundStrayCapture(ctx, payment, n, amount)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("gateway notification applied",
		zap.String("booking_id", booking.ID),
		zap.String("payment_id", payment.ID),
		zap.String("gateway_ref", payment.GatewayRef),
		zap.String("status_code", n.StatusCode),
		zap.String("payment_status", string(payment.Status)))

	switch {
	case payment.Status == domain.PaymentStatusCompleted && booking.Status == domain.BookingStatusConfirmed:
		s.afterCompleted(ctx, booking, payment)
	case payment.Status == domain.PaymentStatusCompleted:
		// Captured after the booking left pending, typically a cancellation; give the money back.
		s.logger.Warn("payment captured for inactive booking, refunding",
			zap.String("booking_id", booking.ID),
			zap.String("booking_status", string(booking.Status)))
		if refunded, err := s.Refund(ctx, RefundRequest{PaymentID: payment.ID, Reason: "Booking no longer active"}); err != nil {
			s.logger.Error("automatic refund failed", zap.String("payment_id", payment.ID), zap.Error(err))
		} else {
			payment = refunded
		}
	case payment.Status == domain.PaymentStatusFailed:
		s.notifications.NotifyPaymentFailed(ctx, payment)
	}

	return payment, nil
}

// refundStrayCapture returns a gateway capture that arrived after the payment was already
// settled by other means. The payment record is left as is.
func (s *PaymentService) refundStrayCapture(ctx context.Context, payment *domain.Payment, n gateway.Notification, amount float64) {
	log := s.logger.With(
		zap.String("booking_id", n.OrderID),
		zap.String("payment_id", payment.ID),
		zap.String("gateway_ref", n.PaymentID),
		zap.Float64("amount", amount))

	log.Warn("gateway captured an already settled payment, refunding")
	ok, err := s.gateway.Refund(ctx, n.PaymentID, amount, "Duplicate payment for booking "+n.OrderID)
	if err != nil || !ok {
		log.Error("duplicate capture refund failed", zap.Bool("accepted", ok), zap.Error(err))
	}
}

func gatewayFailureReason(n gateway.Notification) string {
	label := map[string]string{
		gateway.StatusCancelled:   "cancelled",
		gateway.StatusFailed:      "failed",
		gateway.StatusChargedBack: "charged back",
	}[n.StatusCode]

	reason := "gateway payment " + label
	if n.StatusMessage != "" {
		reason += ": " + n.StatusMessage
	}
	return reason
}

// RefundRequest contains the parameters for refunding a payment.
type RefundRequest struct {
	PaymentID string
	Amount    float64 // Zero refunds the full amount.
	Reason    string
}

// Refund returns money for a completed payment through its original channel: a wallet
// credit, a gateway refund, or cancellation of the installment plan.
func (s *PaymentService) Refund(ctx context.Context, req RefundRequest) (*domain.Payment, error) {
	if req.PaymentID == "" {
		return nil, ErrInvalidPaymentID
	}

	payment, err := s.store.Payments().GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: payment %s is %s", ErrPaymentNotRefundable, payment.ID, payment.Status)
	}

	amount := req.Amount
	if amount == 0 {
		amount = payment.Amount
	}
	if amount < 0 || domain.Cents(amount) > domain.Cents(payment.Amount) {
		return nil, fmt.Errorf("%w: %.2f of %.2f", ErrInvalidRefundAmount, amount, payment.Amount)
	}
	amount = domain.Round2(amount)

	switch payment.Method {
	case domain.PaymentMethodWallet:
		return s.refundToWallet(ctx, payment.BookingID, amount, req.Reason)
	case domain.PaymentMethodBNPL, domain.PaymentMethodEMI:
		return s.markRefunded(ctx, payment.BookingID, amount, func(ctx context.Context, tx repository.Tx, p *domain.Payment) error {
			return cancelPlan(ctx, tx, p.ID)
		})
	default:
		return s.refundThroughGateway(ctx, payment, amount, req.Reason)
	}
}

func (s *PaymentService) refundToWallet(ctx context.Context, bookingID string, amount float64, reason string) (*domain.Payment, error) {
	return s.markRefunded(ctx, bookingID, amount, func(ctx context.Context, tx repository.Tx, p *domain.Payment) error {
		wallet, err := tx.LockWallet(ctx, p.UserID)
		if err != nil {
			return err
		}

		now := s.now()
		before := wallet.Balance
		wallet.Balance = domain.Round2(wallet.Balance + amount)
		wallet.TotalSpent = domain.Round2(max(wallet.TotalSpent-amount, 0))
		wallet.UpdatedAt = now
		if err := tx.Wallets().UpdateBalance(ctx, wallet); err != nil {
			return err
		}

		description := "Refund for payment " + p.ID
		if reason != "" {
			description += ": " + reason
		}
		return tx.Wallets().AppendTransaction(ctx, &domain.WalletTransaction{
			ID:            uuid.New().String(),
			WalletID:      wallet.ID,
			Type:          domain.WalletTransactionCredit,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  wallet.Balance,
			BookingID:     p.BookingID,
			PaymentID:     p.ID,
			Description:   description,
			CreatedAt:     now,
		})
	})
}

// refundThroughGateway calls the gateway outside any transaction, then records the refund.
func (s *PaymentService) refundThroughGateway(ctx context.Context, payment *domain.Payment, amount float64, reason string) (*domain.Payment, error) {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, "refund:"+payment.ID, gatewayLockTTL, gatewayLockWait)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", repository.ErrLockTimeout, err)
		}
		defer release()

		// Another refund may have finished while we waited.
		current, err := s.store.Payments().GetByID(ctx, payment.ID)
		if err != nil {
			return nil, err
		}
		if current.Status != domain.PaymentStatusCompleted {
			return nil, fmt.Errorf("%w: payment %s is %s", ErrPaymentNotRefundable, current.ID, current.Status)
		}
	}

	ok, err := s.gateway.Refund(ctx, payment.GatewayRef, amount, reason)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: payment %s", ErrRefundFailed, payment.ID)
	}

	return s.markRefunded(ctx, payment.BookingID, amount, nil)
}

// markRefunded moves a completed payment to refunded, running apply under the payment lock first.
func (s *PaymentService) markRefunded(
	ctx context.Context,
	bookingID string,
	amount float64,
	apply func(ctx context.Context, tx repository.Tx, p *domain.Payment) error,
) (*domain.Payment, error) {
	var refunded *domain.Payment
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		payment, err := tx.LockPayment(ctx, bookingID)
		if err != nil {
			return err
		}
		if payment.Status == domain.PaymentStatusRefunded {
			return fmt.Errorf("%w: payment %s already refunded", ErrAlreadyProcessed, payment.ID)
		}
		if !payment.Status.CanTransitionTo(domain.PaymentStatusRefunded) {
			return fmt.Errorf("%w: payment %s is %s", ErrPaymentNotRefundable, payment.ID, payment.Status)
		}

		if apply != nil {
			if err := apply(ctx, tx, payment); err != nil {
				return err
			}
		}

		now := s.now()
		payment.Status = domain.PaymentStatusRefunded
		payment.RefundAmount = amount
		payment.RefundedAt = now
		payment.UpdatedAt = now
		refunded = payment
		return tx.Payments().Update(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment refunded",
		zap.String("payment_id", refunded.ID),
		zap.String("method", string(refunded.Method)),
		zap.Float64("amount", amount))
	return refunded, nil
}
