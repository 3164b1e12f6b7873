package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"rental/internal/domain"
)

// BookingRepository is a PostgreSQL implementation of repository.BookingRepository.
type BookingRepository struct {
	q Querier
}

// NewBookingRepository creates a new PostgreSQL booking repository.
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{q: db}
}

// NewBookingRepositoryWithTx creates a booking repository using a transaction.
func NewBookingRepositoryWithTx(tx *sqlx.Tx) *BookingRepository {
	return &BookingRepository{q: tx}
}

const bookingColumns = `id, renter_id, vehicle_id, start_date, end_date, pickup_location, dropoff_location,
	days, price_per_day, total_price, currency, commission_rate, commission, platform_fee_rate, platform_fee,
	driver_earnings, status, cancellation_reason, cancelled_at, created_at, updated_at`

type bookingRow struct {
	ID                 string         `db:"id"`
	RenterID           string         `db:"renter_id"`
	VehicleID          string         `db:"vehicle_id"`
	StartDate          time.Time      `db:"start_date"`
	EndDate            time.Time      `db:"end_date"`
	PickupLocation     string         `db:"pickup_location"`
	DropoffLocation    string         `db:"dropoff_location"`
	Days               int            `db:"days"`
	PricePerDay        float64        `db:"price_per_day"`
	TotalPrice         float64        `db:"total_price"`
	Currency           string         `db:"currency"`
	CommissionRate     float64        `db:"commission_rate"`
	Commission         float64        `db:"commission"`
	PlatformFeeRate    float64        `db:"platform_fee_rate"`
	PlatformFee        float64        `db:"platform_fee"`
	DriverEarnings     float64        `db:"driver_earnings"`
	Status             string         `db:"status"`
	CancellationReason sql.NullString `db:"cancellation_reason"`
	CancelledAt        sql.NullTime   `db:"cancelled_at"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func newBookingRow(b *domain.Booking) bookingRow {
	return bookingRow{
		ID:                 b.ID,
		RenterID:           b.RenterID,
		VehicleID:          b.VehicleID,
		StartDate:          b.StartDate,
		EndDate:            b.EndDate,
		PickupLocation:     b.PickupLocation,
		DropoffLocation:    b.DropoffLocation,
		Days:               b.Days,
		PricePerDay:        b.PricePerDay,
		TotalPrice:         b.TotalPrice,
		Currency:           b.Currency,
		CommissionRate:     b.CommissionRate,
		Commission:         b.Commission,
		PlatformFeeRate:    b.PlatformFeeRate,
		PlatformFee:        b.PlatformFee,
		DriverEarnings:     b.DriverEarnings,
		Status:             string(b.Status),
		CancellationReason: nullString(b.CancellationReason),
		CancelledAt:        nullTime(b.CancelledAt),
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

func (r bookingRow) toDomain() *domain.Booking {
	return &domain.Booking{
		ID:                 r.ID,
		RenterID:           r.RenterID,
		VehicleID:          r.VehicleID,
		StartDate:          r.StartDate,
		EndDate:            r.EndDate,
		PickupLocation:     r.PickupLocation,
		DropoffLocation:    r.DropoffLocation,
		Days:               r.Days,
		PricePerDay:        r.PricePerDay,
		TotalPrice:         r.TotalPrice,
		Currency:           r.Currency,
		CommissionRate:     r.CommissionRate,
		Commission:         r.Commission,
		PlatformFeeRate:    r.PlatformFeeRate,
		PlatformFee:        r.PlatformFee,
		DriverEarnings:     r.DriverEarnings,
		Status:             domain.BookingStatus(r.Status),
		CancellationReason: r.CancellationReason.String,
		CancelledAt:        timeOf(r.CancelledAt),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func bookingsFromRows(rows []bookingRow) []*domain.Booking {
	bookings := make([]*domain.Booking, 0, len(rows))
	for _, row := range rows {
		bookings = append(bookings, row.toDomain())
	}
	return bookings
}

// Create persists a new booking.
func (r *BookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES (:id, :renter_id, :vehicle_id, :start_date, :end_date, :pickup_location, :dropoff_location,
			:days, :price_per_day, :total_price, :currency, :commission_rate, :commission, :platform_fee_rate,
			:platform_fee, :driver_earnings, :status, :cancellation_reason, :cancelled_at, :created_at, :updated_at)
	`

	_, err := sqlx.NamedExecContext(ctx, r.q, query, newBookingRow(booking))
	return mapError(err)
}

// GetByID retrieves a booking by ID.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	var row bookingRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, id); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// Update writes the mutable fields of a booking.
func (r *BookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	query := `
		UPDATE bookings
		SET status = :status, commission_rate = :commission_rate, commission = :commission,
			platform_fee_rate = :platform_fee_rate, platform_fee = :platform_fee,
			driver_earnings = :driver_earnings, cancellation_reason = :cancellation_reason,
			cancelled_at = :cancelled_at, updated_at = :updated_at
		WHERE id = :id
	`

	return expectRows(sqlx.NamedExecContext(ctx, r.q, query, newBookingRow(booking)))
}

// FindOverlapping returns blocking bookings of a vehicle intersecting [start, end).
func (r *BookingRepository) FindOverlapping(ctx context.Context, vehicleID string, start, end time.Time, excludeID string) ([]*domain.Booking, error) {
	statuses := make([]string, 0, len(domain.BlockingBookingStatuses))
	for _, s := range domain.BlockingBookingStatuses {
		statuses = append(statuses, string(s))
	}

	query := `
		SELECT ` + bookingColumns + ` FROM bookings
		WHERE vehicle_id = $1 AND status = ANY($2) AND start_date < $3 AND end_date > $4
	`
	args := []any{vehicleID, pq.Array(statuses), end, start}
	if excludeID != "" {
		query += ` AND id <> $5`
		args = append(args, excludeID)
	}
	query += ` ORDER BY start_date`

	var rows []bookingRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, mapError(err)
	}
	return bookingsFromRows(rows), nil
}

// ListStartingBefore returns paid-up bookings whose rental period has begun.
func (r *BookingRepository) ListStartingBefore(ctx context.Context, t time.Time, limit int) ([]*domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + ` FROM bookings
		WHERE status IN ('confirmed', 'paid') AND start_date <= $1
		ORDER BY start_date
		LIMIT $2
	`

	var rows []bookingRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, t, limit); err != nil {
		return nil, mapError(err)
	}
	return bookingsFromRows(rows), nil
}
