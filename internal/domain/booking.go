package domain

import "time"

// BookingStatus represents the current status of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// BlockingBookingStatuses are the statuses that hold a vehicle for their date range.
var BlockingBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusPaid,
	BookingStatusActive,
}

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusPaid, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusActive, BookingStatusCancelled},
	BookingStatusPaid:      {BookingStatusActive, BookingStatusCancelled},
	BookingStatusActive:    {BookingStatusCompleted, BookingStatusCancelled},
}

// IsTerminal reports whether no further transition is possible.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// Blocks reports whether a booking in this status occupies the vehicle.
func (s BookingStatus) Blocks() bool {
	for _, b := range BlockingBookingStatuses {
		if s == b {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Booking represents a reservation of a vehicle for a half-open date range [StartDate, EndDate).
type Booking struct {
	ID                 string
	RenterID           string
	VehicleID          string
	StartDate          time.Time
	EndDate            time.Time
	PickupLocation     string
	DropoffLocation    string
	Days               int
	PricePerDay        float64
	TotalPrice         float64
	Currency           string
	CommissionRate     float64
	Commission         float64
	PlatformFeeRate    float64
	PlatformFee        float64
	DriverEarnings     float64
	Status             BookingStatus
	CancellationReason string
	CancelledAt        time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Overlaps reports whether the half-open ranges [aStart, aEnd) and [bStart, bEnd) intersect.
// Ranges that only touch at a boundary do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// ConflictsWith reports whether b holds the vehicle anywhere in [start, end).
func (b *Booking) ConflictsWith(start, end time.Time) bool {
	return b.Status.Blocks() && Overlaps(b.StartDate, b.EndDate, start, end)
}
