package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rental/internal/domain"
	"rental/internal/gateway"
	"rental/internal/repository"
)

// PaymentParams carries method-specific options.
type PaymentParams struct {
	InstallmentCount int    // BNPL
	Provider         string // BNPL
	BankName         string // EMI
	TenureMonths     int    // EMI
}

// PaymentContext is what a strategy sees while the booking's locks are held.
type PaymentContext struct {
	Tx      repository.Tx
	Booking *domain.Booking
	Payment *domain.Payment
	Renter  *domain.User
	Params  PaymentParams
	Now     time.Time
}

// PaymentOutcome is the result of a strategy. Status is completed when money has moved,
// or processing when the payer still has to act.
type PaymentOutcome struct {
	Status        domain.PaymentStatus
	TransactionID string
	CheckoutURL   string
	Plan          *domain.InstallmentPlan
}

// PaymentStrategy executes one payment method inside the payment transaction.
// It must not make network calls.
type PaymentStrategy interface {
	Execute(ctx context.Context, pc *PaymentContext) (*PaymentOutcome, error)
}

// walletStrategy debits the renter's wallet and appends a ledger entry.
type walletStrategy struct{}

func (walletStrategy) Execute(ctx context.Context, pc *PaymentContext) (*PaymentOutcome, error) {
	wallet, err := pc.Tx.LockWallet(ctx, pc.Booking.RenterID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: no wallet for user %s", ErrInsufficientFunds, pc.Booking.RenterID)
	}
	if err != nil {
		return nil, err
	}

	amount := pc.Payment.Amount
	if domain.Cents(wallet.Balance) < domain.Cents(amount) {
		return nil, fmt.Errorf("%w: balance %.2f, due %.2f", ErrInsufficientFunds, wallet.Balance, amount)
	}

	before := wallet.Balance
	wallet.Balance = domain.Round2(wallet.Balance - amount)
	wallet.TotalSpent = domain.Round2(wallet.TotalSpent + amount)
	wallet.UpdatedAt = pc.Now
	if err := pc.Tx.Wallets().UpdateBalance(ctx, wallet); err != nil {
		return nil, err
	}

	entry := &domain.WalletTransaction{
		ID:            uuid.New().String(),
		WalletID:      wallet.ID,
		Type:          domain.WalletTransactionDebit,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  wallet.Balance,
		BookingID:     pc.Booking.ID,
		PaymentID:     pc.Payment.ID,
		Description:   "Payment for booking " + pc.Booking.ID,
		CreatedAt:     pc.Now,
	}
	if err := pc.Tx.Wallets().AppendTransaction(ctx, entry); err != nil {
		return nil, err
	}

	return &PaymentOutcome{Status: domain.PaymentStatusCompleted, TransactionID: entry.ID}, nil
}

// CheckoutGateway is a hosted-checkout payment gateway.
type CheckoutGateway interface {
	BuildCheckoutURL(req gateway.CheckoutRequest) (string, error)
	VerifyNotification(n gateway.Notification) bool
	Refund(ctx context.Context, paymentRef string, amount float64, reason string) (bool, error)
}

// gatewayStrategy signs a hosted-checkout link. Completion arrives later by notification.
type gatewayStrategy struct {
	gateway CheckoutGateway
	country string
}

func (s gatewayStrategy) Execute(ctx context.Context, pc *PaymentContext) (*PaymentOutcome, error) {
	req := gateway.CheckoutRequest{
		OrderID:  pc.Booking.ID,
		Items:    fmt.Sprintf("Vehicle rental %s to %s", pc.Booking.StartDate.Format(time.DateOnly), pc.Booking.EndDate.Format(time.DateOnly)),
		Amount:   pc.Payment.Amount,
		Currency: pc.Payment.Currency,
		Country:  s.country,
		Address:  pc.Booking.PickupLocation,
	}
	if pc.Renter != nil {
		req.FirstName = pc.Renter.FirstName
		req.LastName = pc.Renter.LastName
		req.Email = pc.Renter.Email
		req.Phone = pc.Renter.Phone
		req.City = pc.Renter.City
	}

	url, err := s.gateway.BuildCheckoutURL(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return &PaymentOutcome{Status: domain.PaymentStatusProcessing, CheckoutURL: url}, nil
}

// installmentStrategy finances the payment through a BNPL or EMI plan. The platform
// fronts the full amount, so the payment completes immediately.
type installmentStrategy struct {
	kind         domain.InstallmentKind
	installments *InstallmentService
}

func (s installmentStrategy) Execute(ctx context.Context, pc *PaymentContext) (*PaymentOutcome, error) {
	var (
		plan     *domain.InstallmentPlan
		schedule []*domain.Installment
		err      error
	)

	switch s.kind {
	case domain.InstallmentKindBNPL:
		if err := s.installments.CheckBNPLEligibility(ctx, pc.Tx.Installments(), pc.Booking.RenterID, pc.Payment.Amount); err != nil {
			return nil, err
		}
		plan, schedule, err = s.installments.PlanBNPL(pc.Payment, pc.Params.InstallmentCount, pc.Params.Provider)
	case domain.InstallmentKindEMI:
		if err := s.installments.CheckEMIEligibility(pc.Payment.Amount); err != nil {
			return nil, err
		}
		plan, schedule, err = s.installments.PlanEMI(pc.Payment, pc.Params.BankName, pc.Params.TenureMonths)
	default:
		return nil, ErrInvalidPaymentMethod
	}
	if err != nil {
		return nil, err
	}

	if err := pc.Tx.Installments().CreatePlan(ctx, plan, schedule); err != nil {
		return nil, err
	}
	return &PaymentOutcome{Status: domain.PaymentStatusCompleted, TransactionID: plan.ID, Plan: plan}, nil
}
