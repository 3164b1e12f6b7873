package repository

import (
	"context"

	"rental/internal/domain"
)

// Repositories groups the persistence operations available inside and outside a transaction.
type Repositories interface {
	Vehicles() VehicleRepository
	Bookings() BookingRepository
	Payments() PaymentRepository
	Wallets() WalletRepository
	Revenue() RevenueRepository
	Installments() InstallmentRepository
	PricingRules() PricingRuleRepository
	Users() UserRepository
}

// Store is the entry point to persistence. Reads outside WithinTx are not isolated.
type Store interface {
	Repositories

	// WithinTx runs fn in a single transaction. The transaction commits when fn returns nil
	// and rolls back on error or panic; row locks taken through tx are released either way.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is a unit of work holding row locks until it ends.
// Locks must be taken in the order vehicle, payment, wallet.
type Tx interface {
	Repositories

	// LockVehicle locks the vehicle row for the rest of the transaction and returns it.
	// Soft-deleted vehicles are reported as ErrNotFound.
	LockVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error)

	// LockPayment locks the payment attached to a booking.
	LockPayment(ctx context.Context, bookingID string) (*domain.Payment, error)

	// LockWallet locks the wallet owned by a user.
	LockWallet(ctx context.Context, userID string) (*domain.Wallet, error)
}
