package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"rental/internal/domain"
)

// RevenueRepository is a PostgreSQL implementation of repository.RevenueRepository.
type RevenueRepository struct {
	q Querier
}

// NewRevenueRepository creates a new PostgreSQL revenue repository.
func NewRevenueRepository(db *sqlx.DB) *RevenueRepository {
	return &RevenueRepository{q: db}
}

// NewRevenueRepositoryWithTx creates a revenue repository using a transaction.
func NewRevenueRepositoryWithTx(tx *sqlx.Tx) *RevenueRepository {
	return &RevenueRepository{q: tx}
}

const revenueColumns = `id, booking_id, payment_id, owner_id, revenue_type, amount, rate, status,
	settlement_period, settled_at, created_at`

type revenueRow struct {
	ID               string         `db:"id"`
	BookingID        string         `db:"booking_id"`
	PaymentID        string         `db:"payment_id"`
	OwnerID          string         `db:"owner_id"`
	RevenueType      string         `db:"revenue_type"`
	Amount           float64        `db:"amount"`
	Rate             float64        `db:"rate"`
	Status           string         `db:"status"`
	SettlementPeriod sql.NullString `db:"settlement_period"`
	SettledAt        sql.NullTime   `db:"settled_at"`
	CreatedAt        time.Time      `db:"created_at"`
}

// CreateBatch persists records, skipping any already posted for the same
// booking, payment and revenue type.
func (r *RevenueRepository) CreateBatch(ctx context.Context, records []*domain.RevenueRecord) error {
	query := `
		INSERT INTO revenue_records (` + revenueColumns + `)
		VALUES (:id, :booking_id, :payment_id, :owner_id, :revenue_type, :amount, :rate, :status,
			:settlement_period, :settled_at, :created_at)
		ON CONFLICT (booking_id, payment_id, revenue_type) DO NOTHING
	`

	for _, rec := range records {
		row := revenueRow{
			ID:               rec.ID,
			BookingID:        rec.BookingID,
			PaymentID:        rec.PaymentID,
			OwnerID:          rec.OwnerID,
			RevenueType:      string(rec.RevenueType),
			Amount:           rec.Amount,
			Rate:             rec.Rate,
			Status:           string(rec.Status),
			SettlementPeriod: nullString(rec.SettlementPeriod),
			SettledAt:        nullTime(rec.SettledAt),
			CreatedAt:        rec.CreatedAt,
		}
		if _, err := sqlx.NamedExecContext(ctx, r.q, query, row); err != nil {
			return mapError(err)
		}
	}
	return nil
}

// ListByPayment returns the records posted for a booking payment.
func (r *RevenueRepository) ListByPayment(ctx context.Context, bookingID, paymentID string) ([]*domain.RevenueRecord, error) {
	query := `
		SELECT ` + revenueColumns + ` FROM revenue_records
		WHERE booking_id = $1 AND payment_id = $2
		ORDER BY revenue_type
	`

	var rows []revenueRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, bookingID, paymentID); err != nil {
		return nil, mapError(err)
	}

	records := make([]*domain.RevenueRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, &domain.RevenueRecord{
			ID:               row.ID,
			BookingID:        row.BookingID,
			PaymentID:        row.PaymentID,
			OwnerID:          row.OwnerID,
			RevenueType:      domain.RevenueType(row.RevenueType),
			Amount:           row.Amount,
			Rate:             row.Rate,
			Status:           domain.RevenueStatus(row.Status),
			SettlementPeriod: row.SettlementPeriod.String,
			SettledAt:        timeOf(row.SettledAt),
			CreatedAt:        row.CreatedAt,
		})
	}
	return records, nil
}

// CancelPendingByBooking moves a booking's pending records to cancelled.
func (r *RevenueRepository) CancelPendingByBooking(ctx context.Context, bookingID string) (int64, error) {
	query := `UPDATE revenue_records SET status = 'cancelled' WHERE booking_id = $1 AND status = 'pending'`

	result, err := r.q.ExecContext(ctx, query, bookingID)
	if err != nil {
		return 0, mapError(err)
	}
	return result.RowsAffected()
}

// Settle moves pending records to settled for a settlement period.
func (r *RevenueRepository) Settle(ctx context.Context, ids []string, period string, at time.Time) (int64, error) {
	query := `
		UPDATE revenue_records
		SET status = 'settled', settlement_period = $1, settled_at = $2
		WHERE id = ANY($3) AND status = 'pending'
	`

	result, err := r.q.ExecContext(ctx, query, period, at, pq.Array(ids))
	if err != nil {
		return 0, mapError(err)
	}
	return result.RowsAffected()
}
