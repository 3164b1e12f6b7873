package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"rental/internal/domain"
)

// VehicleRepository is a PostgreSQL implementation of repository.VehicleRepository.
type VehicleRepository struct {
	q Querier
}

// NewVehicleRepository creates a new PostgreSQL vehicle repository.
func NewVehicleRepository(db *sqlx.DB) *VehicleRepository {
	return &VehicleRepository{q: db}
}

// NewVehicleRepositoryWithTx creates a vehicle repository using a transaction.
func NewVehicleRepositoryWithTx(tx *sqlx.Tx) *VehicleRepository {
	return &VehicleRepository{q: tx}
}

const vehicleColumns = `id, owner_id, name, brand, model, city, vehicle_type, price_per_day, seats, fuel_type,
	transmission, status, verification_status, is_blacklisted, deleted_at, created_at, updated_at`

type vehicleRow struct {
	ID                 string       `db:"id"`
	OwnerID            string       `db:"owner_id"`
	Name               string       `db:"name"`
	Brand              string       `db:"brand"`
	Model              string       `db:"model"`
	City               string       `db:"city"`
	VehicleType        string       `db:"vehicle_type"`
	PricePerDay        float64      `db:"price_per_day"`
	Seats              int          `db:"seats"`
	FuelType           string       `db:"fuel_type"`
	Transmission       string       `db:"transmission"`
	Status             string       `db:"status"`
	VerificationStatus string       `db:"verification_status"`
	IsBlacklisted      bool         `db:"is_blacklisted"`
	DeletedAt          sql.NullTime `db:"deleted_at"`
	CreatedAt          time.Time    `db:"created_at"`
	UpdatedAt          time.Time    `db:"updated_at"`
}

func (r vehicleRow) toDomain() *domain.Vehicle {
	return &domain.Vehicle{
		ID:                 r.ID,
		OwnerID:            r.OwnerID,
		Name:               r.Name,
		Brand:              r.Brand,
		Model:              r.Model,
		City:               r.City,
		VehicleType:        r.VehicleType,
		PricePerDay:        r.PricePerDay,
		Seats:              r.Seats,
		FuelType:           r.FuelType,
		Transmission:       r.Transmission,
		Status:             domain.VehicleStatus(r.Status),
		VerificationStatus: domain.VerificationStatus(r.VerificationStatus),
		IsBlacklisted:      r.IsBlacklisted,
		DeletedAt:          timeOf(r.DeletedAt),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// GetByID retrieves a live vehicle by ID.
func (r *VehicleRepository) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1 AND deleted_at IS NULL`

	var row vehicleRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, id); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// getForUpdate locks the vehicle row until the surrounding transaction ends.
func (r *VehicleRepository) getForUpdate(ctx context.Context, id string) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`

	var row vehicleRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, id); err != nil {
		return nil, mapError(err)
	}
	return row.toDomain(), nil
}

// UpdateStatus updates the display status of a vehicle.
func (r *VehicleRepository) UpdateStatus(ctx context.Context, id string, status domain.VehicleStatus) error {
	query := `UPDATE vehicles SET status = $1, updated_at = NOW() WHERE id = $2`
	return expectRows(r.q.ExecContext(ctx, query, status, id))
}
