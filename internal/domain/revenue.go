package domain

import "time"

// RevenueType identifies the platform's share recorded by a revenue record.
type RevenueType string

const (
	RevenueTypeCommission  RevenueType = "commission"
	RevenueTypePlatformFee RevenueType = "platform_fee"
)

// RevenueStatus represents the settlement state of a revenue record.
type RevenueStatus string

const (
	RevenueStatusPending   RevenueStatus = "pending"
	RevenueStatusSettled   RevenueStatus = "settled"
	RevenueStatusCancelled RevenueStatus = "cancelled"
)

// RevenueRecord is the platform revenue attributed to one paid booking.
type RevenueRecord struct {
	ID               string
	BookingID        string
	PaymentID        string
	OwnerID          string
	RevenueType      RevenueType
	Amount           float64
	Rate             float64
	Status           RevenueStatus
	SettlementPeriod string
	SettledAt        time.Time
	CreatedAt        time.Time
}
