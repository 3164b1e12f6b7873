// Package events publishes booking and payment domain events to the message broker.
package events

import "time"

// Topics.
const (
	TopicBookingConfirmed = "booking.confirmed"
	TopicBookingCancelled = "booking.cancelled"
	TopicPaymentFailed    = "payment.failed"
)

// BookingConfirmed is published once a booking's payment has completed.
type BookingConfirmed struct {
	BookingID  string    `json:"booking_id"`
	RenterID   string    `json:"renter_id"`
	VehicleID  string    `json:"vehicle_id"`
	PaymentID  string    `json:"payment_id"`
	Method     string    `json:"method"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BookingCancelled is published after a cancellation commits.
type BookingCancelled struct {
	BookingID    string    `json:"booking_id"`
	RenterID     string    `json:"renter_id"`
	VehicleID    string    `json:"vehicle_id"`
	CancelledBy  string    `json:"cancelled_by"`
	Reason       string    `json:"reason,omitempty"`
	Refunded     bool      `json:"refunded"`
	RefundAmount float64   `json:"refund_amount,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// PaymentFailed is published when a payment attempt is marked failed.
type PaymentFailed struct {
	PaymentID  string    `json:"payment_id"`
	BookingID  string    `json:"booking_id"`
	UserID     string    `json:"user_id"`
	Method     string    `json:"method"`
	Amount     float64   `json:"amount"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}
