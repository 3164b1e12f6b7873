package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"rental/internal/domain"
	"rental/internal/repository"
)

// Store is a PostgreSQL implementation of repository.Store.
type Store struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewStore creates a Store. lockTimeout bounds every row-lock wait inside WithinTx;
// zero leaves the server default in place.
func NewStore(db *sqlx.DB, lockTimeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: lockTimeout}
}

func (s *Store) Vehicles() repository.VehicleRepository         { return NewVehicleRepository(s.db) }
func (s *Store) Bookings() repository.BookingRepository         { return NewBookingRepository(s.db) }
func (s *Store) Payments() repository.PaymentRepository         { return NewPaymentRepository(s.db) }
func (s *Store) Wallets() repository.WalletRepository           { return NewWalletRepository(s.db) }
func (s *Store) Revenue() repository.RevenueRepository          { return NewRevenueRepository(s.db) }
func (s *Store) Installments() repository.InstallmentRepository { return NewInstallmentRepository(s.db) }
func (s *Store) PricingRules() repository.PricingRuleRepository { return NewPricingRuleRepository(s.db) }
func (s *Store) Users() repository.UserRepository               { return NewUserRepository(s.db) }

// WithinTx runs fn inside a READ COMMITTED transaction. READ COMMITTED is required: a
// statement issued after a row lock is granted must see the rows committed by the
// previous holder of that lock.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if s.lockTimeout > 0 {
		// SET does not accept bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err = sqlTx.ExecContext(ctx, stmt); err != nil {
			return mapError(err)
		}
	}

	if err = fn(ctx, &Tx{tx: sqlTx}); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return mapError(err)
	}

	return nil
}

// Tx is a PostgreSQL implementation of repository.Tx.
type Tx struct {
	tx *sqlx.Tx
}

func (t *Tx) Vehicles() repository.VehicleRepository         { return NewVehicleRepositoryWithTx(t.tx) }
func (t *Tx) Bookings() repository.BookingRepository         { return NewBookingRepositoryWithTx(t.tx) }
func (t *Tx) Payments() repository.PaymentRepository         { return NewPaymentRepositoryWithTx(t.tx) }
func (t *Tx) Wallets() repository.WalletRepository           { return NewWalletRepositoryWithTx(t.tx) }
func (t *Tx) Revenue() repository.RevenueRepository          { return NewRevenueRepositoryWithTx(t.tx) }
func (t *Tx) Installments() repository.InstallmentRepository { return NewInstallmentRepositoryWithTx(t.tx) }
func (t *Tx) PricingRules() repository.PricingRuleRepository { return NewPricingRuleRepositoryWithTx(t.tx) }
func (t *Tx) Users() repository.UserRepository               { return NewUserRepositoryWithTx(t.tx) }

// LockVehicle implements repository.Tx.
func (t *Tx) LockVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	return NewVehicleRepositoryWithTx(t.tx).getForUpdate(ctx, vehicleID)
}

// LockPayment implements repository.Tx.
func (t *Tx) LockPayment(ctx context.Context, bookingID string) (*domain.Payment, error) {
	return NewPaymentRepositoryWithTx(t.tx).getByBookingForUpdate(ctx, bookingID)
}

// LockWallet implements repository.Tx.
func (t *Tx) LockWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	return NewWalletRepositoryWithTx(t.tx).getByUserForUpdate(ctx, userID)
}

var (
	_ repository.Store = (*Store)(nil)
	_ repository.Tx    = (*Tx)(nil)
)
