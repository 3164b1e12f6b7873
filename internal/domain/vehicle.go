package domain

import "time"

// VehicleStatus is the display status of a vehicle. Booking rows remain the source of truth
// for availability.
type VehicleStatus string

const (
	VehicleStatusAvailable   VehicleStatus = "available"
	VehicleStatusRented      VehicleStatus = "rented"
	VehicleStatusMaintenance VehicleStatus = "maintenance"
)

// VerificationStatus represents the admin review state of a vehicle listing.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

// Vehicle represents a vehicle listed for rent by its owner.
type Vehicle struct {
	ID                 string
	OwnerID            string
	Name               string
	Brand              string
	Model              string
	City               string
	VehicleType        string
	PricePerDay        float64
	Seats              int
	FuelType           string
	Transmission       string
	Status             VehicleStatus
	VerificationStatus VerificationStatus
	IsBlacklisted      bool
	DeletedAt          time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsDeleted reports whether the vehicle has been soft-deleted.
func (v *Vehicle) IsDeleted() bool {
	return !v.DeletedAt.IsZero()
}

// Bookable reports whether the listing may take new reservations at all.
func (v *Vehicle) Bookable() bool {
	return !v.IsBlacklisted && v.VerificationStatus == VerificationApproved
}
