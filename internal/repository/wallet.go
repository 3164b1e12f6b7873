package repository

import (
	"context"

	"rental/internal/domain"
)

// WalletRepository defines the persistence operations for wallets and their ledger.
type WalletRepository interface {
	// GetByUserID retrieves the wallet owned by a user.
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)

	// UpdateBalance writes balance and total spent.
	UpdateBalance(ctx context.Context, wallet *domain.Wallet) error

	// AppendTransaction adds a ledger entry. Entries are never updated.
	AppendTransaction(ctx context.Context, txn *domain.WalletTransaction) error

	// ListTransactions returns a wallet's ledger, oldest first.
	ListTransactions(ctx context.Context, walletID string) ([]*domain.WalletTransaction, error)
}
