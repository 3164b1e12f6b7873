package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rental/internal/domain"
	"rental/internal/repository"
)

// InstallmentConfig holds the eligibility limits of installment financing.
type InstallmentConfig struct {
	BNPLMinAmount      float64
	BNPLMaxAmount      float64
	BNPLMaxActivePlans int
	EMIMinAmount       float64
}

// DefaultInstallmentConfig returns the standard financing limits.
func DefaultInstallmentConfig() InstallmentConfig {
	return InstallmentConfig{
		BNPLMinAmount:      5000,
		BNPLMaxAmount:      100000,
		BNPLMaxActivePlans: 2,
		EMIMinAmount:       10000,
	}
}

// BNPLInstallmentCounts are the supported buy-now-pay-later schedules.
var BNPLInstallmentCounts = []int{3, 6, 9, 12}

const (
	defaultBNPLInstallments = 3
	defaultBNPLProvider     = "internal"
	bnplFirstDueOffset      = 30 * 24 * time.Hour
)

// EMIBank is a partner bank offering equated monthly installments.
type EMIBank struct {
	Name          string
	InterestRate  float64 // Annual, in percent.
	Tenures       []int   // Months.
	ProcessingFee float64
}

// EMIBanks lists the partner banks.
var EMIBanks = []EMIBank{
	{Name: "Commercial Bank", InterestRate: 12.0, Tenures: []int{3, 6, 9, 12, 18, 24}, ProcessingFee: 500},
	{Name: "People's Bank", InterestRate: 11.5, Tenures: []int{3, 6, 9, 12, 18, 24}, ProcessingFee: 500},
	{Name: "Sampath Bank", InterestRate: 12.5, Tenures: []int{3, 6, 9, 12, 18, 24}, ProcessingFee: 500},
}

// EMIBreakdown is one line of an amortization schedule.
type EMIBreakdown struct {
	Number    int
	Principal float64
	Interest  float64
	Amount    float64
	Balance   float64
}

// EMICalculation is a full amortization of a principal.
type EMICalculation struct {
	Principal     float64
	InterestRate  float64
	TenureMonths  int
	EMIAmount     float64
	TotalAmount   float64
	TotalInterest float64
	Breakdown     []EMIBreakdown
}

// CalculateEMI amortizes principal at an annual rate over tenure months.
func CalculateEMI(principal, annualRate float64, tenure int) EMICalculation {
	r := annualRate / 12 / 100

	emi := principal / float64(tenure)
	if r > 0 {
		growth := math.Pow(1+r, float64(tenure))
		emi = principal * r * growth / (growth - 1)
	}

	breakdown := make([]EMIBreakdown, 0, tenure)
	balance := principal
	for i := 1; i <= tenure; i++ {
		interest := balance * r
		principalPart := emi - interest
		balance -= principalPart
		breakdown = append(breakdown, EMIBreakdown{
			Number:    i,
			Principal: domain.Round2(principalPart),
			Interest:  domain.Round2(interest),
			Amount:    domain.Round2(emi),
			Balance:   domain.Round2(math.Max(balance, 0)),
		})
	}

	total := emi * float64(tenure)
	return EMICalculation{
		Principal:     principal,
		InterestRate:  annualRate,
		TenureMonths:  tenure,
		EMIAmount:     domain.Round2(emi),
		TotalAmount:   domain.Round2(total),
		TotalInterest: domain.Round2(total - principal),
		Breakdown:     breakdown,
	}
}

// FindEMIBank looks a partner bank up by name, ignoring case.
func FindEMIBank(name string) (EMIBank, bool) {
	for _, bank := range EMIBanks {
		if strings.EqualFold(bank.Name, strings.TrimSpace(name)) {
			return bank, true
		}
	}
	return EMIBank{}, false
}

// InstallmentService plans BNPL and EMI schedules and tracks their repayment.
type InstallmentService struct {
	store  repository.Store
	cfg    InstallmentConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewInstallmentService creates a new InstallmentService.
func NewInstallmentService(store repository.Store, cfg InstallmentConfig, logger *zap.Logger) *InstallmentService {
	return &InstallmentService{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// CheckBNPLEligibility verifies amount bounds and the active plan limit.
func (s *InstallmentService) CheckBNPLEligibility(ctx context.Context, plans repository.InstallmentRepository, userID string, amount float64) error {
	if amount < s.cfg.BNPLMinAmount {
		return fmt.Errorf("%w: minimum amount for BNPL is %.2f", ErrNotEligible, s.cfg.BNPLMinAmount)
	}
	if amount > s.cfg.BNPLMaxAmount {
		return fmt.Errorf("%w: maximum amount for BNPL is %.2f", ErrNotEligible, s.cfg.BNPLMaxAmount)
	}

	active, err := plans.CountActivePlans(ctx, userID, domain.InstallmentKindBNPL)
	if err != nil {
		return err
	}
	if active >= s.cfg.BNPLMaxActivePlans {
		return fmt.Errorf("%w: maximum of %d active BNPL plans reached", ErrNotEligible, s.cfg.BNPLMaxActivePlans)
	}
	return nil
}

// CheckEMIEligibility verifies the EMI minimum amount.
func (s *InstallmentService) CheckEMIEligibility(amount float64) error {
	if amount < s.cfg.EMIMinAmount {
		return fmt.Errorf("%w: minimum amount for EMI is %.2f", ErrNotEligible, s.cfg.EMIMinAmount)
	}
	return nil
}

// PlanBNPL builds an interest-free schedule. The rounding remainder goes on the last installment.
func (s *InstallmentService) PlanBNPL(payment *domain.Payment, count int, provider string) (*domain.InstallmentPlan, []*domain.Installment, error) {
	if count == 0 {
		count = defaultBNPLInstallments
	}
	if !slices.Contains(BNPLInstallmentCounts, count) {
		return nil, nil, fmt.Errorf("%w: %d installments", ErrInvalidInstallmentOption, count)
	}
	if provider == "" {
		provider = defaultBNPLProvider
	}

	now := s.now()
	amount := domain.Round2(payment.Amount)
	each := domain.Round2(amount / float64(count))
	first := now.Add(bnplFirstDueOffset)

	plan := &domain.InstallmentPlan{
		ID:                uuid.New().String(),
		Kind:              domain.InstallmentKindBNPL,
		PaymentID:         payment.ID,
		BookingID:         payment.BookingID,
		UserID:            payment.UserID,
		Provider:          provider,
		PrincipalAmount:   amount,
		InstallmentCount:  count,
		InstallmentAmount: each,
		TotalAmount:       amount,
		FirstDueDate:      first,
		Status:            domain.PlanStatusActive,
		CreatedAt:         now,
	}

	installments := make([]*domain.Installment, 0, count)
	for i := 0; i < count; i++ {
		due := each
		if i == count-1 {
			due = domain.Round2(amount - each*float64(count-1))
		}
		installments = append(installments, &domain.Installment{
			ID:        uuid.New().String(),
			PlanID:    plan.ID,
			Number:    i + 1,
			Principal: due,
			Amount:    due,
			DueDate:   first.AddDate(0, i, 0),
			Status:    domain.InstallmentStatusPending,
		})
	}
	return plan, installments, nil
}

// PlanEMI builds an amortized schedule with a partner bank. The first installment is due
// one month out. TotalAmount includes the bank's processing fee.
func (s *InstallmentService) PlanEMI(payment *domain.Payment, bankName string, tenure int) (*domain.InstallmentPlan, []*domain.Installment, error) {
	bank, ok := FindEMIBank(bankName)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown bank %q", ErrInvalidInstallmentOption, bankName)
	}
	if !slices.Contains(bank.Tenures, tenure) {
		return nil, nil, fmt.Errorf("%w: %s does not offer %d months", ErrInvalidInstallmentOption, bank.Name, tenure)
	}

	now := s.now()
	calc := CalculateEMI(domain.Round2(payment.Amount), bank.InterestRate, tenure)
	first := now.AddDate(0, 1, 0)
	total := domain.Round2(calc.TotalAmount + bank.ProcessingFee)

	plan := &domain.InstallmentPlan{
		ID:                uuid.New().String(),
		Kind:              domain.InstallmentKindEMI,
		PaymentID:         payment.ID,
		BookingID:         payment.BookingID,
		UserID:            payment.UserID,
		Provider:          bank.Name,
		PrincipalAmount:   calc.Principal,
		InterestRate:      bank.InterestRate,
		ProcessingFee:     bank.ProcessingFee,
		InstallmentCount:  tenure,
		InstallmentAmount: calc.EMIAmount,
		TotalAmount:       total,
		FirstDueDate:      first,
		Status:            domain.PlanStatusActive,
		CreatedAt:         now,
	}

	// The processing fee is collected with the first installment and rounding drift is folded
	// into the last, so the schedule sums to TotalAmount.
	installments := make([]*domain.Installment, 0, tenure)
	scheduled := 0.0
	for i, line := range calc.Breakdown {
		amount := line.Amount
		if i == 0 {
			amount = domain.Round2(amount + bank.ProcessingFee)
		}
		if i == len(calc.Breakdown)-1 {
			amount = domain.Round2(total - scheduled)
		}
		scheduled = domain.Round2(scheduled + amount)

		installments = append(installments, &domain.Installment{
			ID:        uuid.New().String(),
			PlanID:    plan.ID,
			Number:    line.Number,
			Principal: line.Principal,
			Interest:  line.Interest,
			Amount:    amount,
			DueDate:   first.AddDate(0, i, 0),
			Status:    domain.InstallmentStatusPending,
		})
	}
	return plan, installments, nil
}

// RecordInstallmentPayment marks an installment paid and completes the plan once every
// installment is paid.
func (s *InstallmentService) RecordInstallmentPayment(ctx context.Context, installmentID, paymentRef string) (*domain.Installment, error) {
	if installmentID == "" {
		return nil, ErrInvalidInstallmentID
	}

	var paid *domain.Installment
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		inst, err := tx.Installments().GetInstallment(ctx, installmentID)
		if err != nil {
			return err
		}
		switch inst.Status {
		case domain.InstallmentStatusPaid:
			return fmt.Errorf("%w: installment %d already paid", ErrAlreadyProcessed, inst.Number)
		case domain.InstallmentStatusCancelled:
			return fmt.Errorf("%w: installment %d belongs to a cancelled plan", ErrInvalidStatusTransition, inst.Number)
		}

		now := s.now()
		if err := tx.Installments().MarkInstallmentPaid(ctx, inst.ID, paymentRef, now); err != nil {
			return err
		}
		inst.Status = domain.InstallmentStatusPaid
		inst.PaidAt = now
		inst.PaymentRef = paymentRef

		schedule, err := tx.Installments().ListInstallments(ctx, inst.PlanID)
		if err != nil {
			return err
		}
		for _, other := range schedule {
			if other.ID != inst.ID && other.Status != domain.InstallmentStatusPaid {
				paid = inst
				return nil
			}
		}

		if err := tx.Installments().UpdatePlanStatus(ctx, inst.PlanID, domain.PlanStatusCompleted); err != nil {
			return err
		}
		paid = inst
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("installment paid",
		zap.String("installment_id", paid.ID),
		zap.String("plan_id", paid.PlanID),
		zap.Int("number", paid.Number))
	return paid, nil
}

// MarkOverdue moves pending installments due before asOf to overdue.
func (s *InstallmentService) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	n, err := s.store.Installments().MarkOverdue(ctx, asOf)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("installments marked overdue", zap.Int64("count", n), zap.Time("as_of", asOf))
	}
	return n, nil
}

// cancelPlan cancels the plan financing a payment, if any.
func cancelPlan(ctx context.Context, tx repository.Tx, paymentID string) error {
	plan, err := tx.Installments().GetPlanByPayment(ctx, paymentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if plan.Status != domain.PlanStatusActive {
		return nil
	}
	if _, err := tx.Installments().CancelUnpaid(ctx, plan.ID); err != nil {
		return err
	}
	return tx.Installments().UpdatePlanStatus(ctx, plan.ID, domain.PlanStatusCancelled)
}
