package service

import (
	"errors"

	"rental/internal/repository"
)

var (
	// ErrInvalidRenterID is returned when renter ID is empty.
	ErrInvalidRenterID = errors.New("invalid renter id")

	// ErrInvalidUserID is returned when the acting user ID is empty.
	ErrInvalidUserID = errors.New("invalid user id")

	// ErrInvalidVehicleID is returned when vehicle ID is empty.
	ErrInvalidVehicleID = errors.New("invalid vehicle id")

	// ErrInvalidBookingID is returned when booking ID is empty.
	ErrInvalidBookingID = errors.New("invalid booking id")

	// ErrInvalidPaymentID is returned when payment ID is empty or does not belong to the booking.
	ErrInvalidPaymentID = errors.New("invalid payment id")

	// ErrInvalidInstallmentID is returned when installment ID is empty.
	ErrInvalidInstallmentID = errors.New("invalid installment id")

	// ErrInvalidDateRange is returned when the start date is not before the end date.
	ErrInvalidDateRange = errors.New("start date must be before end date")

	// ErrStartDateInPast is returned when a booking would start in the past.
	ErrStartDateInPast = errors.New("start date is in the past")

	// ErrInvalidPaymentMethod is returned when payment method is not supported.
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// ErrInvalidInstallmentOption is returned for an unknown bank, tenure or installment count.
	ErrInvalidInstallmentOption = errors.New("invalid installment option")

	// ErrInvalidRefundAmount is returned when a refund amount is not within (0, paid amount].
	ErrInvalidRefundAmount = errors.New("invalid refund amount")

	// ErrInvalidNotification is returned when a gateway notification is missing required fields.
	ErrInvalidNotification = errors.New("invalid gateway notification")

	// ErrNotEligible is returned when a user or amount does not qualify for installment financing.
	ErrNotEligible = errors.New("not eligible for installment plan")

	// ErrBookingConflict is returned when the vehicle is already booked for an overlapping range.
	ErrBookingConflict = errors.New("vehicle is already booked for the selected dates")

	// ErrBookingNotPending is returned when paying for a booking that is no longer pending.
	ErrBookingNotPending = errors.New("booking is not awaiting payment")

	// ErrInvalidStatusTransition is returned when a status change is not allowed.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrBookingAlreadyCancelled is returned when cancelling a cancelled booking.
	ErrBookingAlreadyCancelled = errors.New("booking already cancelled")

	// ErrBookingCompleted is returned when cancelling a completed booking.
	ErrBookingCompleted = errors.New("booking already completed")

	// ErrVehicleUnavailable is returned when a vehicle is blacklisted, unapproved or under maintenance.
	ErrVehicleUnavailable = errors.New("vehicle is not available for booking")

	// ErrPaymentNotRefundable is returned when refunding a payment that is not completed.
	ErrPaymentNotRefundable = errors.New("only completed payments can be refunded")

	// ErrInsufficientFunds is returned when the wallet balance is below the amount due.
	ErrInsufficientFunds = errors.New("insufficient wallet balance")

	// ErrInvalidSignature is returned when a gateway notification fails signature verification.
	ErrInvalidSignature = errors.New("invalid gateway signature")

	// ErrAmountMismatch is returned when a notification amount or currency differs from the payment.
	ErrAmountMismatch = errors.New("gateway amount does not match payment")

	// ErrGatewayUnavailable is returned when the payment gateway cannot be reached.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrRefundFailed is returned when the gateway declines a refund.
	ErrRefundFailed = errors.New("refund declined by gateway")

	// ErrAlreadyProcessed is returned when a payment or installment has already been settled.
	ErrAlreadyProcessed = errors.New("payment already processed")

	// ErrNotBookingParty is returned when the acting user is neither the renter nor the vehicle owner.
	ErrNotBookingParty = errors.New("user is not a party to this booking")

	// ErrNotVehicleOwner is returned when an owner-only action is attempted by someone else.
	ErrNotVehicleOwner = errors.New("user does not own this vehicle")
)

// IsRetryable reports whether err is a transient conflict the caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, repository.ErrLockTimeout) || errors.Is(err, ErrBookingConflict)
}
