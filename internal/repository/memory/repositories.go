package memory

import (
	"context"
	"sort"
	"time"

	"rental/internal/domain"
	"rental/internal/repository"
)

// ──────────────────────────────────────────────
// VEHICLES
// ──────────────────────────────────────────────

type vehicleRepo struct {
	s *Store
	t *txn
}

func (r *vehicleRepo) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vehicles[id]
	if !ok || v.IsDeleted() {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r *vehicleRepo) UpdateStatus(ctx context.Context, id string, status domain.VehicleStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpVehicleUpdate); err != nil {
		return err
	}
	v, ok := r.s.vehicles[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.Status = status
	v.UpdatedAt = time.Now()
	put(r.s, r.t, r.s.vehicles, id, v)
	return nil
}

// ──────────────────────────────────────────────
// BOOKINGS
// ──────────────────────────────────────────────

type bookingRepo struct {
	s *Store
	t *txn
}

func (r *bookingRepo) Create(ctx context.Context, booking *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpBookingCreate); err != nil {
		return err
	}
	if _, exists := r.s.bookings[booking.ID]; exists {
		return repository.ErrConflict
	}
	put(r.s, r.t, r.s.bookings, booking.ID, *booking)
	return nil
}

func (r *bookingRepo) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (r *bookingRepo) Update(ctx context.Context, booking *domain.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpBookingUpdate); err != nil {
		return err
	}
	if _, ok := r.s.bookings[booking.ID]; !ok {
		return repository.ErrNotFound
	}
	put(r.s, r.t, r.s.bookings, booking.ID, *booking)
	return nil
}

func (r *bookingRepo) FindOverlapping(ctx context.Context, vehicleID string, start, end time.Time, excludeID string) ([]*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []*domain.Booking
	for _, b := range r.s.bookings {
		if b.VehicleID != vehicleID || (excludeID != "" && b.ID == excludeID) {
			continue
		}
		if b.ConflictsWith(start, end) {
			b := b
			result = append(result, &b)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.Before(result[j].StartDate) })
	return result, nil
}

func (r *bookingRepo) ListStartingBefore(ctx context.Context, t time.Time, limit int) ([]*domain.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []*domain.Booking
	for _, b := range r.s.bookings {
		if b.Status != domain.BookingStatusConfirmed && b.Status != domain.BookingStatusPaid {
			continue
		}
		if b.StartDate.After(t) {
			continue
		}
		b := b
		result = append(result, &b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.Before(result[j].StartDate) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ──────────────────────────────────────────────
// PAYMENTS
// ──────────────────────────────────────────────

type paymentRepo struct {
	s *Store
	t *txn
}

func (r *paymentRepo) Create(ctx context.Context, payment *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpPaymentCreate); err != nil {
		return err
	}
	for _, p := range r.s.payments {
		if p.ID == payment.ID || p.BookingID == payment.BookingID {
			return repository.ErrConflict
		}
	}
	put(r.s, r.t, r.s.payments, payment.ID, *payment)
	return nil
}

func (r *paymentRepo) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *paymentRepo) GetByBookingID(ctx context.Context, bookingID string) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.BookingID == bookingID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *paymentRepo) Update(ctx context.Context, payment *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpPaymentUpdate); err != nil {
		return err
	}
	if _, ok := r.s.payments[payment.ID]; !ok {
		return repository.ErrNotFound
	}
	put(r.s, r.t, r.s.payments, payment.ID, *payment)
	return nil
}

// ──────────────────────────────────────────────
// WALLETS
// ──────────────────────────────────────────────

type walletRepo struct {
	s *Store
	t *txn
}

func (r *walletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, w := range r.s.wallets {
		if w.UserID == userID {
			return &w, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *walletRepo) UpdateBalance(ctx context.Context, wallet *domain.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpWalletUpdate); err != nil {
		return err
	}
	w, ok := r.s.wallets[wallet.ID]
	if !ok {
		return repository.ErrNotFound
	}
	w.Balance = wallet.Balance
	w.TotalSpent = wallet.TotalSpent
	w.UpdatedAt = wallet.UpdatedAt
	put(r.s, r.t, r.s.wallets, w.ID, w)
	return nil
}

func (r *walletRepo) AppendTransaction(ctx context.Context, txn *domain.WalletTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpWalletAppend); err != nil {
		return err
	}
	if _, exists := r.s.walletTxns[txn.ID]; exists {
		return repository.ErrConflict
	}
	put(r.s, r.t, r.s.walletTxns, txn.ID, walletEntry{seq: r.s.nextSeq(), txn: *txn})
	return nil
}

func (r *walletRepo) ListTransactions(ctx context.Context, walletID string) ([]*domain.WalletTransaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var entries []walletEntry
	for _, e := range r.s.walletTxns {
		if e.txn.WalletID == walletID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	result := make([]*domain.WalletTransaction, 0, len(entries))
	for _, e := range entries {
		txn := e.txn
		result = append(result, &txn)
	}
	return result, nil
}

// ──────────────────────────────────────────────
// REVENUE
// ──────────────────────────────────────────────

type revenueRepo struct {
	s *Store
	t *txn
}

func (r *revenueRepo) CreateBatch(ctx context.Context, records []*domain.RevenueRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpRevenueCreate); err != nil {
		return err
	}

	for _, rec := range records {
		duplicate := false
		for _, existing := range r.s.revenue {
			if existing.BookingID == rec.BookingID && existing.PaymentID == rec.PaymentID && existing.RevenueType == rec.RevenueType {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		put(r.s, r.t, r.s.revenue, rec.ID, *rec)
	}
	return nil
}

func (r *revenueRepo) ListByPayment(ctx context.Context, bookingID, paymentID string) ([]*domain.RevenueRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []*domain.RevenueRecord
	for _, rec := range r.s.revenue {
		if rec.BookingID == bookingID && rec.PaymentID == paymentID {
			rec := rec
			result = append(result, &rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RevenueType < result[j].RevenueType })
	return result, nil
}

func (r *revenueRepo) CancelPendingByBooking(ctx context.Context, bookingID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpRevenueCancel); err != nil {
		return 0, err
	}

	var n int64
	for id, rec := range r.s.revenue {
		if rec.BookingID != bookingID || rec.Status != domain.RevenueStatusPending {
			continue
		}
		rec.Status = domain.RevenueStatusCancelled
		put(r.s, r.t, r.s.revenue, id, rec)
		n++
	}
	return n, nil
}

func (r *revenueRepo) Settle(ctx context.Context, ids []string, period string, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, id := range ids {
		rec, ok := r.s.revenue[id]
		if !ok || rec.Status != domain.RevenueStatusPending {
			continue
		}
		rec.Status = domain.RevenueStatusSettled
		rec.SettlementPeriod = period
		rec.SettledAt = at
		put(r.s, r.t, r.s.revenue, id, rec)
		n++
	}
	return n, nil
}

// ──────────────────────────────────────────────
// INSTALLMENTS
// ──────────────────────────────────────────────

type installmentRepo struct {
	s *Store
	t *txn
}

func (r *installmentRepo) CreatePlan(ctx context.Context, plan *domain.InstallmentPlan, installments []*domain.Installment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpInstallmentCreate); err != nil {
		return err
	}
	if _, exists := r.s.plans[plan.ID]; exists {
		return repository.ErrConflict
	}
	put(r.s, r.t, r.s.plans, plan.ID, *plan)
	for _, inst := range installments {
		put(r.s, r.t, r.s.installments, inst.ID, *inst)
	}
	return nil
}

func (r *installmentRepo) GetPlanByPayment(ctx context.Context, paymentID string) (*domain.InstallmentPlan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.plans {
		if p.PaymentID == paymentID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *installmentRepo) GetInstallment(ctx context.Context, id string) (*domain.Installment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inst, ok := r.s.installments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &inst, nil
}

func (r *installmentRepo) ListInstallments(ctx context.Context, planID string) ([]*domain.Installment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []*domain.Installment
	for _, inst := range r.s.installments {
		if inst.PlanID == planID {
			inst := inst
			result = append(result, &inst)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number < result[j].Number })
	return result, nil
}

func (r *installmentRepo) CountActivePlans(ctx context.Context, userID string, kind domain.InstallmentKind) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	n := 0
	for _, p := range r.s.plans {
		if p.UserID == userID && p.Kind == kind && p.Status == domain.PlanStatusActive {
			n++
		}
	}
	return n, nil
}

func (r *installmentRepo) UpdatePlanStatus(ctx context.Context, planID string, status domain.PlanStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.plans[planID]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = status
	put(r.s, r.t, r.s.plans, planID, p)
	return nil
}

func (r *installmentRepo) MarkInstallmentPaid(ctx context.Context, id, paymentRef string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inst, ok := r.s.installments[id]
	if !ok {
		return repository.ErrNotFound
	}
	inst.Status = domain.InstallmentStatusPaid
	inst.PaymentRef = paymentRef
	inst.PaidAt = at
	put(r.s, r.t, r.s.installments, id, inst)
	return nil
}

func (r *installmentRepo) CancelUnpaid(ctx context.Context, planID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, inst := range r.s.installments {
		if inst.PlanID != planID {
			continue
		}
		if inst.Status != domain.InstallmentStatusPending && inst.Status != domain.InstallmentStatusOverdue {
			continue
		}
		inst.Status = domain.InstallmentStatusCancelled
		put(r.s, r.t, r.s.installments, id, inst)
		n++
	}
	return n, nil
}

func (r *installmentRepo) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, inst := range r.s.installments {
		if inst.Status != domain.InstallmentStatusPending || !inst.DueDate.Before(asOf) {
			continue
		}
		if plan, ok := r.s.plans[inst.PlanID]; ok && plan.Status != domain.PlanStatusActive {
			continue
		}
		inst.Status = domain.InstallmentStatusOverdue
		put(r.s, r.t, r.s.installments, id, inst)
		n++
	}
	return n, nil
}

// ──────────────────────────────────────────────
// PRICING RULES & USERS
// ──────────────────────────────────────────────

type pricingRuleRepo struct {
	s *Store
	t *txn
}

func (r *pricingRuleRepo) ListActive(ctx context.Context, ruleType domain.RuleType, at time.Time) ([]*domain.PricingRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpPricingRuleListing); err != nil {
		return nil, err
	}

	var result []*domain.PricingRule
	for _, rule := range r.s.rules {
		if rule.RuleType == ruleType && rule.ActiveAt(at) {
			rule := rule
			result = append(result, &rule)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Priority != result[j].Priority {
			return result[i].Priority > result[j].Priority
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

type userRepo struct {
	s *Store
	t *txn
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}
