package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental/internal/domain"
	"rental/internal/repository"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return sqlx.NewDb(db, "postgres"), mock
}

var vehicleRowColumns = []string{
	"id", "owner_id", "name", "brand", "model", "city", "vehicle_type", "price_per_day", "seats", "fuel_type",
	"transmission", "status", "verification_status", "is_blacklisted", "deleted_at", "created_at", "updated_at",
}

func TestStore_WithinTxSetsLockTimeoutAndCommits(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	store := NewStore(db, 3*time.Second)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL lock_timeout = '3000ms'")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM vehicles WHERE id = \$1 AND deleted_at IS NULL FOR UPDATE`).
		WithArgs("vehicle-1").
		WillReturnRows(sqlmock.NewRows(vehicleRowColumns).AddRow(
			"vehicle-1", "owner-1", "Axio", "Toyota", "Axio", "Colombo", "sedan", 5000.0, 5, "petrol",
			"auto", "available", "approved", false, nil, now, now,
		))
	mock.ExpectCommit()

	var locked *domain.Vehicle
	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		v, err := tx.LockVehicle(ctx, "vehicle-1")
		locked = v
		return err
	})

	require.NoError(t, err)
	require.NotNil(t, locked)
	assert.Equal(t, "owner-1", locked.OwnerID)
	assert.Equal(t, 5000.0, locked.PricePerDay)
	assert.False(t, locked.IsDeleted())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LockNotAvailableMapsToLockTimeout(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	store := NewStore(db, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM vehicles WHERE id = \$1 AND deleted_at IS NULL FOR UPDATE`).
		WillReturnError(&pq.Error{Code: codeLockNotAvailable, Message: "canceling statement due to lock timeout"})
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.LockVehicle(ctx, "vehicle-1")
		return err
	})

	assert.ErrorIs(t, err, repository.ErrLockTimeout)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CallbackErrorRollsBack(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	store := NewStore(db, 0)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_FindOverlappingExcludesBooking(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM bookings\s+WHERE vehicle_id = \$1 AND status = ANY\(\$2\) AND start_date < \$3 AND end_date > \$4\s+AND id <> \$5 ORDER BY start_date`).
		WithArgs("vehicle-1", sqlmock.AnyArg(), end, start, "booking-9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "vehicle_id", "start_date", "end_date", "status"}).
			AddRow("booking-1", "vehicle-1", start.AddDate(0, 0, 2), end.AddDate(0, 0, 2), "confirmed"))

	bookings, err := repo.FindOverlapping(context.Background(), "vehicle-1", start, end, "booking-9")

	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, "booking-1", bookings[0].ID)
	assert.Equal(t, domain.BookingStatusConfirmed, bookings[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_UpdateMissingRow(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	mock.ExpectExec(`UPDATE bookings`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &domain.Booking{ID: "missing", Status: domain.BookingStatusCancelled})

	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepository_CreateDuplicateBookingIsConflict(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := NewPaymentRepository(db)

	mock.ExpectExec(`INSERT INTO payments`).
		WillReturnError(&pq.Error{Code: codeUniqueViolation, Constraint: "payments_booking_id_key"})

	err := repo.Create(context.Background(), &domain.Payment{ID: "p1", BookingID: "b1", Status: domain.PaymentStatusPending})

	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevenueRepository_CreateBatchIgnoresDuplicates(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := NewRevenueRepository(db)

	mock.ExpectExec(`INSERT INTO revenue_records .+ ON CONFLICT \(booking_id, payment_id, revenue_type\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO revenue_records .+ ON CONFLICT \(booking_id, payment_id, revenue_type\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CreateBatch(context.Background(), []*domain.RevenueRecord{
		{ID: "r1", BookingID: "b1", PaymentID: "p1", RevenueType: domain.RevenueTypeCommission, Status: domain.RevenueStatusPending},
		{ID: "r2", BookingID: "b1", PaymentID: "p1", RevenueType: domain.RevenueTypePlatformFee, Status: domain.RevenueStatusPending},
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstallmentRepository_MarkOverdue(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := NewInstallmentRepository(db)
	asOf := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE installments SET status = 'overdue'\s+WHERE status = 'pending' AND due_date < \$1\s+AND plan_id IN \(SELECT id FROM installment_plans WHERE status = 'active'\)`).
		WithArgs(asOf).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.MarkOverdue(context.Background(), asOf)

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInstallmentRepository_CancelUnpaid(t *testing.T) {
	t.Parallel()

	db, mock := newMockDB(t)
	repo := NewInstallmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE installments SET status = 'cancelled' WHERE plan_id = $1 AND status IN ('pending', 'overdue')`)).
		WithArgs("plan-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.CancelUnpaid(context.Background(), "plan-1")

	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
