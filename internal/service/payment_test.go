package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental/internal/domain"
	"rental/internal/events"
	"rental/internal/gateway"
)

func TestProcessPayment_RejectsSettledPayment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result := f.book(t, domain.PaymentMethodWallet, day(time.June, 1), day(time.June, 5))
	require.NoError(t, result.PaymentError)

	_, err := f.payments.ProcessPayment(context.Background(), ProcessPaymentRequest{
		UserID:    "renter-1",
		BookingID: result.Booking.ID,
		Method:    domain.PaymentMethodWallet,
	})
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, 5000.0, f.wallet(t).Balance, "wallet must be debited once")
}

func TestProcessPayment_RetryAfterFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.setBalance(100)
	result := f.book(t, domain.PaymentMethodWallet, day(time.June, 1), day(time.June, 5))
	require.ErrorIs(t, result.PaymentError, ErrInsufficientFunds)

	f.setBalance(30000)
	paid, err := f.payments.ProcessPayment(context.Background(), ProcessPaymentRequest{
		UserID:    "renter-1",
		BookingID: result.Booking.ID,
		Method:    domain.PaymentMethodWallet,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusCompleted, paid.Payment.Status)
	assert.Empty(t, paid.Payment.FailureReason)
	assert.Equal(t, domain.BookingStatusConfirmed, paid.Booking.Status)
	assert.Equal(t, 10000.0, f.wallet(t).Balance)
}

func TestProcessPayment_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	result := f.book(t, domain.PaymentMethodGateway, day(time.June, 1), day(time.June, 5))

	_, err := f.payments.ProcessPayment(ctx, ProcessPaymentRequest{UserID: "renter-1", BookingID: result.Booking.ID, Method: "crypto"})
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)

	_, err = f.payments.ProcessPayment(ctx, ProcessPaymentRequest{UserID: "owner-1", BookingID: result.Booking.ID, Method: domain.PaymentMethodWallet})
	assert.ErrorIs(t, err, ErrNotBookingParty)

	_, err = f.payments.ProcessPayment(ctx, ProcessPaymentRequest{UserID: "renter-1", Method: domain.PaymentMethodWallet})
	assert.ErrorIs(t, err, ErrInvalidBookingID)
}

func TestProcessPayment_CancelledBookingIsNotPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	result := f.book(t, domain.PaymentMethodGateway, day(time.June, 1), day(time.June, 5))

	_, err := f.cancellations.Cancel(ctx, result.Booking.ID, "renter-1", "changed plans")
	require.NoError(t, err)

	_, err = f.payments.ProcessPayment(ctx, ProcessPaymentRequest{
		UserID:    "renter-1",
		BookingID: result.Booking.ID,
		Method:    domain.PaymentMethodWallet,
	})
	assert.ErrorIs(t, err, ErrBookingNotPending)
	assert.Equal(t, 25000.0, f.wallet(t).Balance)
}

func TestHandleGatewayNotification_Success(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	result := f.book(t, domain.PaymentMethodGateway, day(time.June, 1), day(time.June, 5))

	p, err := f.payments.HandleGatewayNotification(ctx, notification(result.Booking.ID, "20000.00", gateway.StatusSuccess))
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusCompleted, p.Status)
	assert.Equal(t, "320025071278", p.GatewayRef)
	assert.Equal(t, domain.BookingStatusConfirmed, f.booking(t, result.Booking.ID).Status)

	records, err := f.store.Revenue().ListByPayment(ctx, result.Booking.ID, p.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Contains(t, f.topics(), events.TopicBookingConfirmed)

	_, err = f.payments.HandleGatewayNotification(ctx, notification(result.Booking.ID, "20000.00", gateway.StatusSuccess))
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestHandleGatewayNotification_Rejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	result := f.book(t, domain.PaymentMethodGateway, day(time.June, 1), day(time.June, 5))
	orderID := result.Booking.ID

	testCases := []struct {
		name    string
		mutate  func(n *gateway.Notification)
		wantErr error
	}{
		{
			name:    "bad signature",
			mutate:  func(n *gateway.Notification) { n.MD5Sig = "FORGED" },
			wantErr: ErrInvalidSignature,
		},
		{
			name:    "missing order id",
			mutate:  func(n *gateway.Notification) { n.OrderID = "" },
			wantErr: ErrInvalidNotification,
		},
		{
			name:    "unknown status code",
			mutate:  func(n *gateway.Notification) { n.StatusCode = "7" },
			wantErr: ErrInvalidNotification,
		},
		{
			name:    "amount differs",
			mutate:  func(n *gateway.Notification) { n.Amount = "19999.99" },
			wantErr: ErrAmountMismatch,
		},
		{
			name:    "currency differs",
			mutate:  func(n *gateway.Notification) { n.Currency = "USD" },
			wantErr: ErrAmountMismatch,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			n := notification(orderID, "20000.00", gateway.StatusSuccess)
			tc.mutate(&n)

			_, err := f.payments.HandleGatewayNotification(ctx, n)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	assert.Equal(t, domain.PaymentStatusProcessing, f.payment(t, orderID).Status)
	assert.Equal(t, domain.BookingStatusPending, f.booking(t, orderID).Status)
}

func TestHandleGatewayNotification_FailureThenSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	result := f.book(t, domain.PaymentMethodGateway, day(time.June, 1), day(time.June, 5))

	n := notification(result.Booking.ID, "20000.00", gateway.StatusFailed)
	n.StatusMessage = "Card declined"
	p, err := f.payments.HandleGatewayNotification(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
	assert.Equal(t, "gateway payment failed: Card declined", p.FailureReason)
	assert.Equal(t, domain.BookingStatusPending, f.booking(t, result.Booking.ID).Status)
	assert.Contains(t, f.topics(), events.TopicPaymentFailed)

	p, err = f.payments.HandleGatewayNotification(ctx, notification(result.Booking.ID, "20000", gateway.StatusSuccess))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, p.Status)
	assert.Equal(t, domain.BookingStatusConfirmed, f.booking(t, result.Booking.ID).Status)
}

func TestHandleGatewayNotification_PendingKeepsProcessing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result := f.book(t, domain.PaymentMethodGateway, day(time.June, 1), day(time.June, 5))

	p, err := f.payments.HandleGatewayNotification(context.Background(), notification(result.Booking.ID, "20000.00", gateway.StatusPending))
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusProcessing, p.Status)
	assert.Equal(t, domain.BookingStatusPending, f.booking(t, result.Booking.ID).Status)
}

func TestHandleGatewayNotification_CapturedAfterCancellationIsRefunded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	result := f.book(t, domain.PaymentMethodGateway, day(time.June, 1), day(time.June, 5))

	_, err := f.cancellations.Cancel(ctx, result.Booking.ID, "renter-1", "")
	require.NoError(t, err)
	assert.Zero(t, f.gateway.refundCount())

	p, err := f.payments.HandleGatewayNotification(ctx, notification(result.Booking.ID, "20000.00", gateway.StatusSuccess))
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusRefunded, p.Status)
	assert.Equal(t, 1, f.gateway.refundCount())
	assert.Equal(t, "320025071278", f.gateway.refunds[0].paymentRef)
	assert.Equal(t, domain.BookingStatusCancelled, f.booking(t, result.Booking.ID).Status)
}

func TestHandleGatewayNotification_CaptureAfterWalletPaymentIsRefunded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	result := f.book(t, domain.PaymentMethodGateway, day(time.June, 1), day(time.June, 5))

	paid, err := f.payments.ProcessPayment(ctx, ProcessPaymentRequest{
		UserID:    "renter-1",
		BookingID: result.Booking.ID,
		Method:    domain.PaymentMethodWallet,
	})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusCompleted, paid.Payment.Status)
	assert.Equal(t, 5000.0, f.wallet(t).Balance)

	// The renter then finishes the checkout opened earlier.
	_, err = f.payments.HandleGatewayNotification(ctx, notification(result.Booking.ID, "20000.00", gateway.StatusSuccess))
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	require.Equal(t, 1, f.gateway.refundCount())
	assert.Equal(t, "320025071278", f.gateway.refunds[0].paymentRef)
	assert.Equal(t, 20000.0, f.gateway.refunds[0].amount)

	p := f.payment(t, result.Booking.ID)
	assert.Equal(t, domain.PaymentStatusCompleted, p.Status)
	assert.Equal(t, domain.PaymentMethodWallet, p.Method)
	assert.Equal(t, 5000.0, f.wallet(t).Balance)
}

func TestHandleGatewayNotification_RedeliveredCaptureIsNotRefunded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	result := f.book(t, domain.PaymentMethodGateway, day(time.June, 1), day(time.June, 5))

	_, err := f.payments.HandleGatewayNotification(ctx, notification(result.Booking.ID, "20000.00", gateway.StatusSuccess))
	require.NoError(t, err)
	_, err = f.payments.HandleGatewayNotification(ctx, notification(result.Booking.ID, "20000.00", gateway.StatusSuccess))
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	assert.Zero(t, f.gateway.refundCount())
}

func TestRefund_WalletCreditsLedger(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	result := f.book(t, domain.PaymentMethodWallet, day(time.June, 1), day(time.June, 5))
	require.NoError(t, result.PaymentError)

	refunded, err := f.payments.Refund(ctx, RefundRequest{PaymentID: result.Payment.ID, Reason: "goodwill"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, refunded.Status)
	assert.Equal(t, 20000.0, refunded.RefundAmount)
	assert.Equal(t, testNow, refunded.RefundedAt)

	w := f.wallet(t)
	assert.Equal(t, 25000.0, w.Balance)
	assert.Zero(t, w.TotalSpent)

	ledger, err := f.store.Wallets().ListTransactions(ctx, w.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, domain.WalletTransactionCredit, ledger[1].Type)
	assert.Equal(t, 20000.0, ledger[1].Amount)
	assert.Equal(t, 5000.0, ledger[1].BalanceBefore)
	assert.Equal(t, 25000.0, ledger[1].BalanceAfter)

	_, err = f.payments.Refund(ctx, RefundRequest{PaymentID: result.Payment.ID})
	assert.ErrorIs(t, err, ErrPaymentNotRefundable)
	assert.Equal(t, 25000.0, f.wallet(t).Balance)
}

func TestRefund_PartialAmount(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result := f.book(t, domain.PaymentMethodWallet, day(time.June, 1), day(time.June, 5))

	refunded, err := f.payments.Refund(context.Background(), RefundRequest{PaymentID: result.Payment.ID, Amount: 5000})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, refunded.RefundAmount)

	w := f.wallet(t)
	assert.Equal(t, 10000.0, w.Balance)
	assert.Equal(t, 15000.0, w.TotalSpent)
}

func TestRefund_InvalidRequests(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	paid := f.book(t, domain.PaymentMethodWallet, day(time.June, 1), day(time.June, 5))
	pending := f.book(t, domain.PaymentMethodGateway, day(time.June, 10), day(time.June, 12))

	_, err := f.payments.Refund(ctx, RefundRequest{PaymentID: paid.Payment.ID, Amount: 20000.01})
	assert.ErrorIs(t, err, ErrInvalidRefundAmount)

	_, err = f.payments.Refund(ctx, RefundRequest{PaymentID: paid.Payment.ID, Amount: -1})
	assert.ErrorIs(t, err, ErrInvalidRefundAmount)

	_, err = f.payments.Refund(ctx, RefundRequest{PaymentID: pending.Payment.ID})
	assert.ErrorIs(t, err, ErrPaymentNotRefundable)

	_, err = f.payments.Refund(ctx, RefundRequest{})
	assert.ErrorIs(t, err, ErrInvalidPaymentID)

	assert.Equal(t, 5000.0, f.wallet(t).Balance)
}

func TestRefund_GatewayOutcomes(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	result := f.book(t, domain.PaymentMethodGateway, day(time.June, 1), day(time.June, 5))
	p, err := f.payments.HandleGatewayNotification(ctx, notification(result.Booking.ID, "20000.00", gateway.StatusSuccess))
	require.NoError(t, err)

	f.gateway.refundErr = errors.New("connection reset")
	_, err = f.payments.Refund(ctx, RefundRequest{PaymentID: p.ID})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	f.gateway.refundErr = nil
	f.gateway.refundOK = false
	_, err = f.payments.Refund(ctx, RefundRequest{PaymentID: p.ID})
	assert.ErrorIs(t, err, ErrRefundFailed)
	assert.Equal(t, domain.PaymentStatusCompleted, f.payment(t, result.Booking.ID).Status)

	f.gateway.refundOK = true
	refunded, err := f.payments.Refund(ctx, RefundRequest{PaymentID: p.ID, Amount: 7500, Reason: "early return"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, refunded.Status)
	assert.Equal(t, 7500.0, refunded.RefundAmount)

	last := f.gateway.refunds[len(f.gateway.refunds)-1]
	assert.Equal(t, 7500.0, last.amount)
	assert.Equal(t, "early return", last.reason)
}

func TestGetPayment_RenterOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	result := f.book(t, domain.PaymentMethodGateway, day(time.June, 1), day(time.June, 5))

	p, err := f.payments.GetPayment(context.Background(), result.Payment.ID, "renter-1")
	require.NoError(t, err)
	assert.Equal(t, result.Booking.ID, p.BookingID)

	_, err = f.payments.GetPayment(context.Background(), result.Payment.ID, "owner-1")
	assert.ErrorIs(t, err, ErrNotBookingParty)
}
