package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"rental/internal/domain"
)

// PaymentRepository is a PostgreSQL implementation of repository.PaymentRepository.
type PaymentRepository struct {
	q Querier
}

// NewPaymentRepository creates a new PostgreSQL payment repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{q: db}
}

// NewPaymentRepositoryWithTx creates a payment repository using a transaction.
func NewPaymentRepositoryWithTx(tx *sqlx.Tx) *PaymentRepository {
	return &PaymentRepository{q: tx}
}

const paymentColumns = `id, booking_id, user_id, amount, currency, method, status, gateway_ref, transaction_id,
	checkout_url, failure_reason, refund_amount, refunded_at, completed_at, created_at, updated_at`

type paymentRow struct {
	ID            string         `db:"id"`
	BookingID     string         `db:"booking_id"`
	UserID        string         `db:"user_id"`
	Amount        float64        `db:"amount"`
	Currency      string         `db:"currency"`
	Method        sql.NullString `db:"method"`
	Status        string         `db:"status"`
	GatewayRef    sql.NullString `db:"gateway_ref"`
	TransactionID sql.NullString `db:"transaction_id"`
	CheckoutURL   sql.NullString `db:"checkout_url"`
	FailureReason sql.NullString `db:"failure_reason"`
	RefundAmount  float64        `db:"refund_amount"`
	RefundedAt    sql.NullTime   `db:"refunded_at"`
	CompletedAt   sql.NullTime   `db:"completed_at"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func newPaymentRow(p *domain.Payment) paymentRow {
	return paymentRow{
		ID:            p.ID,
		BookingID:     p.BookingID,
		UserID:        p.UserID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Method:        nullString(string(p.Method)),
		Status:        string(p.Status),
		GatewayRef:    nullString(p.GatewayRef),
		TransactionID: nullString(p.TransactionID),
		CheckoutURL:   nullString(p.CheckoutURL),
		FailureReason: nullString(p.FailureReason),
		RefundAmount:  p.RefundAmount,
		RefundedAt:    nullTime(p.RefundedAt),
		CompletedAt:   nullTime(p.CompletedAt),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (r paymentRow) toDomain() *domain.Payment {
	return &domain.Payment{
		ID:            r.ID,
		BookingID:     r.BookingID,
		UserID:        r.UserID,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Method:        domain.PaymentMethod(r.Method.String),
		Status:        domain.PaymentStatus(r.Status),
		GatewayRef:    r.GatewayRef.String,
		TransactionID: r.TransactionID.String,
		CheckoutURL:   r.CheckoutURL.String,
		FailureReason: r.FailureReason.String,
		RefundAmount:  r.RefundAmount,
		RefundedAt:    timeOf(r.RefundedAt),
		CompletedAt:   timeOf(r.CompletedAt),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// Create persists a new payment.
func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES (:id, :booking_id, :user_id, :amount, :currency, :method, :status, :gateway_ref, :transaction_id,
			:checkout_url, :failure_reason, :refund_amount, :refunded_at, :completed_at, :created_at, :updated_at)
	`

	_, err := sqlx.NamedExecContext(ctx, r.q, query, newPaymentRow(payment))
	return mapError(err)
}

// GetByID retrieves a payment by ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	var row paymentRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, id); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// GetByBookingID retrieves the payment attached to a booking.
func (r *PaymentRepository) GetByBookingID(ctx context.Context, bookingID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1`

	var row paymentRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, bookingID); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// getByBookingForUpdate locks a booking's payment row until the surrounding transaction ends.
func (r *PaymentRepository) getByBookingForUpdate(ctx context.Context, bookingID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1 FOR UPDATE`

	var row paymentRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, bookingID); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// Update writes the mutable fields of a payment.
func (r *PaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET method = :method, status = :status, gateway_ref = :gateway_ref, transaction_id = :transaction_id,
			checkout_url = :checkout_url, failure_reason = :failure_reason, refund_amount = :refund_amount,
			refunded_at = :refunded_at, completed_at = :completed_at, updated_at = :updated_at
		WHERE id = :id
	`

	return expectRows(sqlx.NamedExecContext(ctx, r.q, query, newPaymentRow(payment)))
}
