// Package memory is an in-process implementation of repository.Store. It honours row locks
// with a bounded wait and undoes every write of a rolled-back transaction, which makes it
// suitable for exercising the booking and payment protocols without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"rental/internal/domain"
	"rental/internal/repository"
)

// DefaultLockWait bounds how long a transaction waits for a row lock.
const DefaultLockWait = 2 * time.Second

// Operation names accepted by FailOn.
const (
	OpBookingCreate      = "bookings.create"
	OpBookingUpdate      = "bookings.update"
	OpPaymentCreate      = "payments.create"
	OpPaymentUpdate      = "payments.update"
	OpWalletUpdate       = "wallets.update"
	OpWalletAppend       = "wallets.append"
	OpRevenueCreate      = "revenue.create"
	OpRevenueCancel      = "revenue.cancel"
	OpInstallmentCreate  = "installments.create"
	OpVehicleUpdate      = "vehicles.update"
	OpPricingRuleListing = "pricing_rules.list"
)

// Store is a concurrency-safe in-memory repository.Store.
type Store struct {
	mu sync.Mutex

	vehicles     map[string]domain.Vehicle
	bookings     map[string]domain.Booking
	payments     map[string]domain.Payment
	wallets      map[string]domain.Wallet
	walletTxns   map[string]walletEntry
	revenue      map[string]domain.RevenueRecord
	plans        map[string]domain.InstallmentPlan
	installments map[string]domain.Installment
	rules        map[string]domain.PricingRule
	users        map[string]domain.User

	seq      int64
	failures map[string]error

	locks    *rowLocks
	lockWait time.Duration
}

type walletEntry struct {
	seq int64
	txn domain.WalletTransaction
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		vehicles:     make(map[string]domain.Vehicle),
		bookings:     make(map[string]domain.Booking),
		payments:     make(map[string]domain.Payment),
		wallets:      make(map[string]domain.Wallet),
		walletTxns:   make(map[string]walletEntry),
		revenue:      make(map[string]domain.RevenueRecord),
		plans:        make(map[string]domain.InstallmentPlan),
		installments: make(map[string]domain.Installment),
		rules:        make(map[string]domain.PricingRule),
		users:        make(map[string]domain.User),
		failures:     make(map[string]error),
		locks:        newRowLocks(),
		lockWait:     DefaultLockWait,
	}
}

// SetLockWait changes the bounded wait for row locks.
func (s *Store) SetLockWait(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockWait = d
}

// FailOn makes every subsequent call of op return err. A nil err clears the failure.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// AddVehicle seeds a vehicle.
func (s *Store) AddVehicle(v *domain.Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vehicles[v.ID] = *v
}

// AddUser seeds a user.
func (s *Store) AddUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
}

// AddWallet seeds a wallet.
func (s *Store) AddWallet(w *domain.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[w.ID] = *w
}

// AddPricingRule seeds a pricing rule.
func (s *Store) AddPricingRule(r *domain.PricingRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = *r
}

// CountBookings returns the number of stored bookings.
func (s *Store) CountBookings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bookings)
}

// CountPayments returns the number of stored payments.
func (s *Store) CountPayments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

func (s *Store) Vehicles() repository.VehicleRepository         { return &vehicleRepo{s: s} }
func (s *Store) Bookings() repository.BookingRepository         { return &bookingRepo{s: s} }
func (s *Store) Payments() repository.PaymentRepository         { return &paymentRepo{s: s} }
func (s *Store) Wallets() repository.WalletRepository           { return &walletRepo{s: s} }
func (s *Store) Revenue() repository.RevenueRepository          { return &revenueRepo{s: s} }
func (s *Store) Installments() repository.InstallmentRepository { return &installmentRepo{s: s} }
func (s *Store) PricingRules() repository.PricingRuleRepository { return &pricingRuleRepo{s: s} }
func (s *Store) Users() repository.UserRepository               { return &userRepo{s: s} }

// WithinTx implements repository.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := &txn{held: make(map[string]bool)}
	defer func() {
		if p := recover(); p != nil {
			s.rollback(t)
			panic(p)
		}
		if err != nil {
			s.rollback(t)
			return
		}
		s.release(t)
	}()

	return fn(ctx, &Tx{s: s, t: t})
}

// txn tracks the undo log and held locks of one transaction.
type txn struct {
	undo []func()
	held map[string]bool
}

func (s *Store) rollback(t *txn) {
	s.mu.Lock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
	s.mu.Unlock()
	s.release(t)
}

func (s *Store) release(t *txn) {
	for key := range t.held {
		s.locks.release(key)
	}
	t.held = nil
}

// record registers an undo step. Callers hold s.mu.
func (s *Store) record(t *txn, undo func()) {
	if t != nil {
		t.undo = append(t.undo, undo)
	}
}

// fail returns the injected error for op. Callers hold s.mu.
func (s *Store) fail(op string) error {
	return s.failures[op]
}

func (s *Store) nextSeq() int64 {
	s.seq++
	return s.seq
}

func put[T any](s *Store, t *txn, m map[string]T, id string, v T) {
	prev, had := m[id]
	m[id] = v
	s.record(t, func() {
		if had {
			m[id] = prev
		} else {
			delete(m, id)
		}
	})
}

// Tx implements repository.Tx.
type Tx struct {
	s *Store
	t *txn
}

func (tx *Tx) Vehicles() repository.VehicleRepository         { return &vehicleRepo{s: tx.s, t: tx.t} }
func (tx *Tx) Bookings() repository.BookingRepository         { return &bookingRepo{s: tx.s, t: tx.t} }
func (tx *Tx) Payments() repository.PaymentRepository         { return &paymentRepo{s: tx.s, t: tx.t} }
func (tx *Tx) Wallets() repository.WalletRepository           { return &walletRepo{s: tx.s, t: tx.t} }
func (tx *Tx) Revenue() repository.RevenueRepository          { return &revenueRepo{s: tx.s, t: tx.t} }
func (tx *Tx) Installments() repository.InstallmentRepository { return &installmentRepo{s: tx.s, t: tx.t} }
func (tx *Tx) PricingRules() repository.PricingRuleRepository { return &pricingRuleRepo{s: tx.s, t: tx.t} }
func (tx *Tx) Users() repository.UserRepository               { return &userRepo{s: tx.s, t: tx.t} }

func (tx *Tx) lock(ctx context.Context, key string) error {
	if tx.t.held[key] {
		return nil
	}
	tx.s.mu.Lock()
	wait := tx.s.lockWait
	tx.s.mu.Unlock()

	if err := tx.s.locks.acquire(ctx, key, wait); err != nil {
		return err
	}
	tx.t.held[key] = true
	return nil
}

// LockVehicle implements repository.Tx.
func (tx *Tx) LockVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	if err := tx.lock(ctx, "vehicle:"+vehicleID); err != nil {
		return nil, err
	}
	return tx.Vehicles().GetByID(ctx, vehicleID)
}

// LockPayment implements repository.Tx.
func (tx *Tx) LockPayment(ctx context.Context, bookingID string) (*domain.Payment, error) {
	if err := tx.lock(ctx, "payment:"+bookingID); err != nil {
		return nil, err
	}
	return tx.Payments().GetByBookingID(ctx, bookingID)
}

// LockWallet implements repository.Tx.
func (tx *Tx) LockWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	if err := tx.lock(ctx, "wallet:"+userID); err != nil {
		return nil, err
	}
	return tx.Wallets().GetByUserID(ctx, userID)
}

// rowLocks is a set of exclusive named locks with bounded acquisition.
type rowLocks struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func newRowLocks() *rowLocks {
	return &rowLocks{held: make(map[string]chan struct{})}
}

func (l *rowLocks) acquire(ctx context.Context, key string, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		l.mu.Lock()
		released, busy := l.held[key]
		if !busy {
			l.held[key] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-released:
		case <-timer.C:
			return repository.ErrLockTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *rowLocks) release(key string) {
	l.mu.Lock()
	ch, ok := l.held[key]
	delete(l.held, key)
	l.mu.Unlock()
	if ok {
		close(ch)
	}
}

var (
	_ repository.Store = (*Store)(nil)
	_ repository.Tx    = (*Tx)(nil)
)
