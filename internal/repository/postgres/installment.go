package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"rental/internal/domain"
)

// InstallmentRepository is a PostgreSQL implementation of repository.InstallmentRepository.
type InstallmentRepository struct {
	q Querier
}

// NewInstallmentRepository creates a new PostgreSQL installment repository.
func NewInstallmentRepository(db *sqlx.DB) *InstallmentRepository {
	return &InstallmentRepository{q: db}
}

// NewInstallmentRepositoryWithTx creates an installment repository using a transaction.
func NewInstallmentRepositoryWithTx(tx *sqlx.Tx) *InstallmentRepository {
	return &InstallmentRepository{q: tx}
}

const planColumns = `id, kind, payment_id, booking_id, user_id, provider, principal_amount, interest_rate,
	processing_fee, installment_count, installment_amount, total_amount, first_due_date, status, created_at`

type planRow struct {
	ID                string    `db:"id"`
	Kind              string    `db:"kind"`
	PaymentID         string    `db:"payment_id"`
	BookingID         string    `db:"booking_id"`
	UserID            string    `db:"user_id"`
	Provider          string    `db:"provider"`
	PrincipalAmount   float64   `db:"principal_amount"`
	InterestRate      float64   `db:"interest_rate"`
	ProcessingFee     float64   `db:"processing_fee"`
	InstallmentCount  int       `db:"installment_count"`
	InstallmentAmount float64   `db:"installment_amount"`
	TotalAmount       float64   `db:"total_amount"`
	FirstDueDate      time.Time `db:"first_due_date"`
	Status            string    `db:"status"`
	CreatedAt         time.Time `db:"created_at"`
}

const installmentColumns = `id, plan_id, number, principal, interest, amount, due_date, status, paid_at, payment_ref`

type installmentRow struct {
	ID         string         `db:"id"`
	PlanID     string         `db:"plan_id"`
	Number     int            `db:"number"`
	Principal  float64        `db:"principal"`
	Interest   float64        `db:"interest"`
	Amount     float64        `db:"amount"`
	DueDate    time.Time      `db:"due_date"`
	Status     string         `db:"status"`
	PaidAt     sql.NullTime   `db:"paid_at"`
	PaymentRef sql.NullString `db:"payment_ref"`
}

func (r installmentRow) toDomain() *domain.Installment {
	return &domain.Installment{
		ID:         r.ID,
		PlanID:     r.PlanID,
		Number:     r.Number,
		Principal:  r.Principal,
		Interest:   r.Interest,
		Amount:     r.Amount,
		DueDate:    r.DueDate,
		Status:     domain.InstallmentStatus(r.Status),
		PaidAt:     timeOf(r.PaidAt),
		PaymentRef: r.PaymentRef.String,
	}
}

// CreatePlan persists a plan together with its schedule.
func (r *InstallmentRepository) CreatePlan(ctx context.Context, plan *domain.InstallmentPlan, installments []*domain.Installment) error {
	planQuery := `
		INSERT INTO installment_plans (` + planColumns + `)
		VALUES (:id, :kind, :payment_id, :booking_id, :user_id, :provider, :principal_amount, :interest_rate,
			:processing_fee, :installment_count, :installment_amount, :total_amount, :first_due_date, :status, :created_at)
	`

	_, err := sqlx.NamedExecContext(ctx, r.q, planQuery, planRow{
		ID:                plan.ID,
		Kind:              string(plan.Kind),
		PaymentID:         plan.PaymentID,
		BookingID:         plan.BookingID,
		UserID:            plan.UserID,
		Provider:          plan.Provider,
		PrincipalAmount:   plan.PrincipalAmount,
		InterestRate:      plan.InterestRate,
		ProcessingFee:     plan.ProcessingFee,
		InstallmentCount:  plan.InstallmentCount,
		InstallmentAmount: plan.InstallmentAmount,
		TotalAmount:       plan.TotalAmount,
		FirstDueDate:      plan.FirstDueDate,
		Status:            string(plan.Status),
		CreatedAt:         plan.CreatedAt,
	})
	if err != nil {
		return mapError(err)
	}

	installmentQuery := `
		INSERT INTO installments (` + installmentColumns + `)
		VALUES (:id, :plan_id, :number, :principal, :interest, :amount, :due_date, :status, :paid_at, :payment_ref)
	`

	for _, inst := range installments {
		_, err := sqlx.NamedExecContext(ctx, r.q, installmentQuery, installmentRow{
			ID:         inst.ID,
			PlanID:     inst.PlanID,
			Number:     inst.Number,
			Principal:  inst.Principal,
			Interest:   inst.Interest,
			Amount:     inst.Amount,
			DueDate:    inst.DueDate,
			Status:     string(inst.Status),
			PaidAt:     nullTime(inst.PaidAt),
			PaymentRef: nullString(inst.PaymentRef),
		})
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

// GetPlanByPayment retrieves the plan financing a payment.
func (r *InstallmentRepository) GetPlanByPayment(ctx context.Context, paymentID string) (*domain.InstallmentPlan, error) {
	query := `SELECT ` + planColumns + ` FROM installment_plans WHERE payment_id = $1`

	var row planRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, paymentID); err != nil {
		return nil, mapError(err)
	}

	return &domain.InstallmentPlan{
		ID:                row.ID,
		Kind:              domain.InstallmentKind(row.Kind),
		PaymentID:         row.PaymentID,
		BookingID:         row.BookingID,
		UserID:            row.UserID,
		Provider:          row.Provider,
		PrincipalAmount:   row.PrincipalAmount,
		InterestRate:      row.InterestRate,
		ProcessingFee:     row.ProcessingFee,
		InstallmentCount:  row.InstallmentCount,
		InstallmentAmount: row.InstallmentAmount,
		TotalAmount:       row.TotalAmount,
		FirstDueDate:      row.FirstDueDate,
		Status:            domain.PlanStatus(row.Status),
		CreatedAt:         row.CreatedAt,
	}, nil
}

// GetInstallment retrieves one installment by ID.
func (r *InstallmentRepository) GetInstallment(ctx context.Context, id string) (*domain.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installments WHERE id = $1`

	var row installmentRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, id); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// ListInstallments returns a plan's schedule ordered by number.
func (r *InstallmentRepository) ListInstallments(ctx context.Context, planID string) ([]*domain.Installment, error) {
	query := `SELECT ` + installmentColumns + ` FROM installments WHERE plan_id = $1 ORDER BY number`

	var rows []installmentRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, planID); err != nil {
		return nil, mapError(err)
	}

	installments := make([]*domain.Installment, 0, len(rows))
	for _, row := range rows {
		installments = append(installments, row.toDomain())
	}
	return installments, nil
}

// CountActivePlans counts a user's active plans of the given kind.
func (r *InstallmentRepository) CountActivePlans(ctx context.Context, userID string, kind domain.InstallmentKind) (int, error) {
	query := `SELECT COUNT(*) FROM installment_plans WHERE user_id = $1 AND kind = $2 AND status = 'active'`

	var n int
	if err := sqlx.GetContext(ctx, r.q, &n, query, userID, kind); err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

// UpdatePlanStatus updates the status of a plan.
func (r *InstallmentRepository) UpdatePlanStatus(ctx context.Context, planID string, status domain.PlanStatus) error {
	query := `UPDATE installment_plans SET status = $1 WHERE id = $2`
	return expectRows(r.q.ExecContext(ctx, query, status, planID))
}

// MarkInstallmentPaid records payment of an installment.
func (r *InstallmentRepository) MarkInstallmentPaid(ctx context.Context, id, paymentRef string, at time.Time) error {
	query := `UPDATE installments SET status = 'paid', payment_ref = $1, paid_at = $2 WHERE id = $3`
	return expectRows(r.q.ExecContext(ctx, query, paymentRef, at, id))
}

// CancelUnpaid moves a plan's pending and overdue installments to cancelled.
func (r *InstallmentRepository) CancelUnpaid(ctx context.Context, planID string) (int64, error) {
	query := `UPDATE installments SET status = 'cancelled' WHERE plan_id = $1 AND status IN ('pending', 'overdue')`

	result, err := r.q.ExecContext(ctx, query, planID)
	if err != nil {
		return 0, mapError(err)
	}
	return result.RowsAffected()
}

// MarkOverdue moves pending installments of active plans due before asOf to overdue.
func (r *InstallmentRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	query := `UPDATE installments SET status = 'overdue'
		WHERE status = 'pending' AND due_date < $1
		AND plan_id IN (SELECT id FROM installment_plans WHERE status = 'active')`

	result, err := r.q.ExecContext(ctx, query, asOf)
	if err != nil {
		return 0, mapError(err)
	}
	return result.RowsAffected()
}
