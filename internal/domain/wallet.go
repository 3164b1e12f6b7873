package domain

import "time"

// WalletTransactionType is the direction of a ledger entry.
type WalletTransactionType string

const (
	WalletTransactionDebit  WalletTransactionType = "debit"
	WalletTransactionCredit WalletTransactionType = "credit"
)

// Wallet holds a user's prepaid balance.
type Wallet struct {
	ID         string
	UserID     string
	Balance    float64
	TotalSpent float64
	Currency   string
	UpdatedAt  time.Time
}

// WalletTransaction is an append-only ledger entry for one wallet mutation.
type WalletTransaction struct {
	ID            string
	WalletID      string
	Type          WalletTransactionType
	Amount        float64
	BalanceBefore float64
	BalanceAfter  float64
	BookingID     string
	PaymentID     string
	Description   string
	CreatedAt     time.Time
}
