package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"rental/internal/domain"
)

// WalletRepository is a PostgreSQL implementation of repository.WalletRepository.
type WalletRepository struct {
	q Querier
}

// NewWalletRepository creates a new PostgreSQL wallet repository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{q: db}
}

// NewWalletRepositoryWithTx creates a wallet repository using a transaction.
func NewWalletRepositoryWithTx(tx *sqlx.Tx) *WalletRepository {
	return &WalletRepository{q: tx}
}

const walletColumns = `id, user_id, balance, total_spent, currency, updated_at`

type walletRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Balance    float64   `db:"balance"`
	TotalSpent float64   `db:"total_spent"`
	Currency   string    `db:"currency"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r walletRow) toDomain() *domain.Wallet {
	return &domain.Wallet{
		ID:         r.ID,
		UserID:     r.UserID,
		Balance:    r.Balance,
		TotalSpent: r.TotalSpent,
		Currency:   r.Currency,
		UpdatedAt:  r.UpdatedAt,
	}
}

const walletTransactionColumns = `id, wallet_id, type, amount, balance_before, balance_after, booking_id,
	payment_id, description, created_at`

type walletTransactionRow struct {
	ID            string         `db:"id"`
	WalletID      string         `db:"wallet_id"`
	Type          string         `db:"type"`
	Amount        float64        `db:"amount"`
	BalanceBefore float64        `db:"balance_before"`
	BalanceAfter  float64        `db:"balance_after"`
	BookingID     sql.NullString `db:"booking_id"`
	PaymentID     sql.NullString `db:"payment_id"`
	Description   string         `db:"description"`
	CreatedAt     time.Time      `db:"created_at"`
}

// GetByUserID retrieves the wallet owned by a user.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`

	var row walletRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, userID); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// getByUserForUpdate locks a user's wallet row until the surrounding transaction ends.
func (r *WalletRepository) getByUserForUpdate(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`

	var row walletRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, userID); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// UpdateBalance writes balance and total spent.
func (r *WalletRepository) UpdateBalance(ctx context.Context, wallet *domain.Wallet) error {
	query := `UPDATE wallets SET balance = $1, total_spent = $2, updated_at = $3 WHERE id = $4`
	return expectRows(r.q.ExecContext(ctx, query, wallet.Balance, wallet.TotalSpent, wallet.UpdatedAt, wallet.ID))
}

// AppendTransaction adds a ledger entry.
func (r *WalletRepository) AppendTransaction(ctx context.Context, txn *domain.WalletTransaction) error {
	query := `
		INSERT INTO wallet_transactions (` + walletTransactionColumns + `)
		VALUES (:id, :wallet_id, :type, :amount, :balance_before, :balance_after, :booking_id,
			:payment_id, :description, :created_at)
	`

	row := walletTransactionRow{
		ID:            txn.ID,
		WalletID:      txn.WalletID,
		Type:          string(txn.Type),
		Amount:        txn.Amount,
		BalanceBefore: txn.BalanceBefore,
		BalanceAfter:  txn.BalanceAfter,
		BookingID:     nullString(txn.BookingID),
		PaymentID:     nullString(txn.PaymentID),
		Description:   txn.Description,
		CreatedAt:     txn.CreatedAt,
	}

	_, err := sqlx.NamedExecContext(ctx, r.q, query, row)
	return mapError(err)
}

// ListTransactions returns a wallet's ledger, oldest first.
func (r *WalletRepository) ListTransactions(ctx context.Context, walletID string) ([]*domain.WalletTransaction, error) {
	query := `SELECT ` + walletTransactionColumns + ` FROM wallet_transactions WHERE wallet_id = $1 ORDER BY created_at, id`

	var rows []walletTransactionRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, walletID); err != nil {
		return nil, mapError(err)
	}

	txns := make([]*domain.WalletTransaction, 0, len(rows))
	for _, row := range rows {
		txns = append(txns, &domain.WalletTransaction{
			ID:            row.ID,
			WalletID:      row.WalletID,
			Type:          domain.WalletTransactionType(row.Type),
			Amount:        row.Amount,
			BalanceBefore: row.BalanceBefore,
			BalanceAfter:  row.BalanceAfter,
			BookingID:     row.BookingID.String,
			PaymentID:     row.PaymentID.String,
			Description:   row.Description,
			CreatedAt:     row.CreatedAt,
		})
	}
	return txns, nil
}
