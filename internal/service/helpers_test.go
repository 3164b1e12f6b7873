package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"rental/internal/domain"
	"rental/internal/gateway"
	"rental/internal/repository/memory"
)

var testNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func day(month time.Month, d int) time.Time {
	return time.Date(2026, month, d, 0, 0, 0, 0, time.UTC)
}

const validSig = "VALID"

// fakeGateway stands in for PayHere. Notifications verify when md5sig is validSig.
type fakeGateway struct {
	mu        sync.Mutex
	buildErr  error
	refundOK  bool
	refundErr error
	refunds   []fakeRefund
}

type fakeRefund struct {
	paymentRef string
	amount     float64
	reason     string
}

func (g *fakeGateway) BuildCheckoutURL(req gateway.CheckoutRequest) (string, error) {
	if g.buildErr != nil {
		return "", g.buildErr
	}
	return "https://checkout.test/pay?order_id=" + req.OrderID, nil
}

func (g *fakeGateway) VerifyNotification(n gateway.Notification) bool {
	return n.MD5Sig == validSig
}

func (g *fakeGateway) Refund(ctx context.Context, paymentRef string, amount float64, reason string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return false, g.refundErr
	}
	g.refunds = append(g.refunds, fakeRefund{paymentRef: paymentRef, amount: amount, reason: reason})
	return g.refundOK, nil
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []any
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

type fixture struct {
	store         *memory.Store
	gateway       *fakeGateway
	publisher     *recordingPublisher
	notifications *NotificationService
	availability  *AvailabilityChecker
	commission    *CommissionService
	installments  *InstallmentService
	payments      *PaymentService
	bookings      *BookingService
	cancellations *CancellationService
}

// newFixture wires every service over an in-memory store seeded with one approved
// 5000/day vehicle, its owner, and a renter holding 25000 in their wallet.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zaptest.NewLogger(t)
	clock := func() time.Time { return testNow }

	store := memory.NewStore()
	store.AddVehicle(&domain.Vehicle{
		ID:                 "vehicle-1",
		OwnerID:            "owner-1",
		Name:               "Toyota Axio",
		City:               "Colombo",
		VehicleType:        "sedan",
		PricePerDay:        5000,
		Status:             domain.VehicleStatusAvailable,
		VerificationStatus: domain.VerificationApproved,
	})
	store.AddUser(&domain.User{ID: "renter-1", FirstName: "Nimal", LastName: "Perera", Email: "nimal@example.com", City: "Colombo"})
	store.AddUser(&domain.User{ID: "owner-1", FirstName: "Kamala", LastName: "Silva"})
	store.AddWallet(&domain.Wallet{ID: "wallet-1", UserID: "renter-1", Balance: 25000, Currency: "LKR"})

	f := &fixture{
		store:     store,
		gateway:   &fakeGateway{refundOK: true},
		publisher: &recordingPublisher{},
	}

	f.notifications = NewNotificationService(f.publisher, time.Second, logger)
	f.notifications.now = clock
	t.Cleanup(f.notifications.Wait)

	f.availability = NewAvailabilityChecker(store.Bookings(), nil, time.Minute, logger)

	f.commission = NewCommissionService(store, logger)
	f.commission.now = clock

	f.installments = NewInstallmentService(store, DefaultInstallmentConfig(), logger)
	f.installments.now = clock

	f.payments = NewPaymentService(PaymentServiceDeps{
		Store:         store,
		Gateway:       f.gateway,
		Installments:  f.installments,
		Commission:    f.commission,
		Notifications: f.notifications,
		Country:       "Sri Lanka",
		Logger:        logger,
	})
	f.payments.now = clock

	f.bookings = NewBookingService(store, f.availability, NewPricingEngine(DefaultCommissionRate, DefaultPlatformFeeRate), f.payments, nil, "LKR", logger)
	f.bookings.now = clock

	f.cancellations = NewCancellationService(store, f.availability, f.payments, f.commission, f.notifications, logger)
	f.cancellations.now = clock

	return f
}

// book creates a booking of vehicle-1 for renter-1 and requires it to be stored.
func (f *fixture) book(t *testing.T, method domain.PaymentMethod, start, end time.Time) *CreateBookingResult {
	t.Helper()

	result, err := f.bookings.CreateBooking(context.Background(), CreateBookingRequest{
		RenterID:       "renter-1",
		VehicleID:      "vehicle-1",
		StartDate:      start,
		EndDate:        end,
		PickupLocation: "Colombo Fort",
		PaymentMethod:  method,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Booking)
	return result
}

func (f *fixture) wallet(t *testing.T) *domain.Wallet {
	t.Helper()
	w, err := f.store.Wallets().GetByUserID(context.Background(), "renter-1")
	require.NoError(t, err)
	return w
}

func (f *fixture) setBalance(balance float64) {
	f.store.AddWallet(&domain.Wallet{ID: "wallet-1", UserID: "renter-1", Balance: balance, Currency: "LKR"})
}

func (f *fixture) payment(t *testing.T, bookingID string) *domain.Payment {
	t.Helper()
	p, err := f.store.Payments().GetByBookingID(context.Background(), bookingID)
	require.NoError(t, err)
	return p
}

func (f *fixture) booking(t *testing.T, bookingID string) *domain.Booking {
	t.Helper()
	b, err := f.store.Bookings().GetByID(context.Background(), bookingID)
	require.NoError(t, err)
	return b
}

func (f *fixture) topics() []string {
	f.notifications.Wait()
	return f.publisher.Topics()
}

func notification(orderID, amount, status string) gateway.Notification {
	return gateway.Notification{
		MerchantID: "1211149",
		OrderID:    orderID,
		PaymentID:  "320025071278",
		Amount:     amount,
		Currency:   "LKR",
		StatusCode: status,
		MD5Sig:     validSig,
	}
}
