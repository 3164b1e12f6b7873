package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rental/internal/domain"
	"rental/internal/repository"
)

// VehicleCache caches vehicle reads that do not need a lock.
type VehicleCache interface {
	GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error)
	SetVehicle(ctx context.Context, v *domain.Vehicle) error
	InvalidateVehicle(ctx context.Context, vehicleID string) error
}

// activationBatchSize bounds how many bookings one activation pass moves to active.
const activationBatchSize = 100

// BookingService creates bookings and drives them through their lifecycle.
type BookingService struct {
	store        repository.Store
	availability *AvailabilityChecker
	pricing      *PricingEngine
	payments     *PaymentService
	vehicleCache VehicleCache
	currency     string
	logger       *zap.Logger
	now          func() time.Time
}

// NewBookingService creates a new BookingService. vehicleCache may be nil.
func NewBookingService(
	store repository.Store,
	availability *AvailabilityChecker,
	pricing *PricingEngine,
	payments *PaymentService,
	vehicleCache VehicleCache,
	currency string,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		store:        store,
		availability: availability,
		pricing:      pricing,
		payments:     payments,
		vehicleCache: vehicleCache,
		currency:     currency,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateBookingRequest contains the parameters for creating a booking.
type CreateBookingRequest struct {
	RenterID        string
	VehicleID       string
	StartDate       time.Time
	EndDate         time.Time
	PickupLocation  string
	DropoffLocation string
	PaymentMethod   domain.PaymentMethod // Optional: defaults to gateway
	PaymentParams   PaymentParams
}

// CreateBookingResult contains the result of creating a booking.
type CreateBookingResult struct {
	Booking     *domain.Booking
	Payment     *domain.Payment
	CheckoutURL string

	// PaymentError is set when the booking was created but its payment attempt failed.
	// The booking stays pending and the payment may be retried.
	PaymentError error
}

// CreateBooking reserves a vehicle for a date range and dispatches its payment.
//
// Availability is checked twice: optimistically before any lock, then authoritatively
// while holding the vehicle lock, so two overlapping requests cannot both succeed.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*CreateBookingResult, error) {
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentMethodGateway
	}
	if err := s.validateCreateRequest(req); err != nil {
		return nil, err
	}

	available, err := s.availability.IsAvailable(ctx, req.VehicleID, req.StartDate, req.EndDate, "")
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, ErrBookingConflict
	}

	var (
		booking *domain.Booking
		payment *domain.Payment
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		vehicle, err := tx.LockVehicle(ctx, req.VehicleID)
		if err != nil {
			return err
		}
		if err := checkBookable(vehicle); err != nil {
			return err
		}
		if err := s.availability.EnsureAvailable(ctx, tx, vehicle.ID, req.StartDate, req.EndDate, ""); err != nil {
			return err
		}

		quote, err := s.pricing.Price(vehicle, req.StartDate, req.EndDate)
		if err != nil {
			return err
		}

		renter, err := tx.Users().GetByID(ctx, req.RenterID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: unknown renter %s", ErrInvalidRenterID, req.RenterID)
		}
		if err != nil {
			return err
		}

		now := s.now()
		split, err := s.pricing.Split(ctx, tx.PricingRules(), PricingTarget{
			City:        vehicle.City,
			VehicleType: vehicle.VehicleType,
			UserTier:    renter.Tier,
		}, quote.TotalPrice, now)
		if err != nil {
			return err
		}

		booking = &domain.Booking{
			ID:              uuid.New().String(),
			RenterID:        req.RenterID,
			VehicleID:       vehicle.ID,
			StartDate:       req.StartDate,
			EndDate:         req.EndDate,
			PickupLocation:  req.PickupLocation,
			DropoffLocation: req.DropoffLocation,
			Days:            quote.Days,
			PricePerDay:     quote.PricePerDay,
			TotalPrice:      quote.TotalPrice,
			Currency:        s.currency,
			CommissionRate:  split.CommissionRate,
			Commission:      split.Commission,
			PlatformFeeRate: split.PlatformFeeRate,
			PlatformFee:     split.PlatformFee,
			DriverEarnings:  split.PayeeEarnings,
			Status:          domain.BookingStatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Bookings().Create(ctx, booking); err != nil {
			return err
		}

		payment = newPaymentShell(booking, now)
		payment.Method = req.PaymentMethod
		return tx.Payments().Create(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	s.availability.Invalidate(ctx, req.VehicleID)

	s.logger.Info("booking created",
		zap.String("booking_id", booking.ID),
		zap.String("vehicle_id", booking.VehicleID),
		zap.String("renter_id", booking.RenterID),
		zap.Int("days", booking.Days),
		zap.Float64("total_price", booking.TotalPrice))

	result := &CreateBookingResult{Booking: booking, Payment: payment}

	paid, err := s.payments.ProcessPayment(ctx, ProcessPaymentRequest{
		UserID:    booking.RenterID,
		BookingID: booking.ID,
		Method:    req.PaymentMethod,
		Params:    req.PaymentParams,
	})
	if err != nil {
		result.PaymentError = err
		if current, getErr := s.store.Payments().GetByBookingID(ctx, booking.ID); getErr == nil {
			result.Payment = current
		}
		return result, nil
	}

	result.Booking = paid.Booking
	result.Payment = paid.Payment
	result.CheckoutURL = paid.CheckoutURL
	return result, nil
}

// GetBooking retrieves a booking for its renter or the vehicle owner.
func (s *BookingService) GetBooking(ctx context.Context, bookingID, userID string) (*domain.Booking, error) {
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}

	booking, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.RenterID == userID {
		return booking, nil
	}

	vehicle, err := s.getVehicle(ctx, booking.VehicleID)
	if err != nil {
		return nil, err
	}
	if vehicle.OwnerID != userID {
		return nil, ErrNotBookingParty
	}
	return booking, nil
}

// QuoteResult is a price quote with the current availability of the range.
type QuoteResult struct {
	Quote
	Available bool
}

// Quote prices a date range for a vehicle without reserving it.
func (s *BookingService) Quote(ctx context.Context, vehicleID string, start, end time.Time) (*QuoteResult, error) {
	if vehicleID == "" {
		return nil, ErrInvalidVehicleID
	}
	if !start.Before(end) {
		return nil, ErrInvalidDateRange
	}

	vehicle, err := s.getVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	quote, err := s.pricing.Price(vehicle, start, end)
	if err != nil {
		return nil, err
	}

	available := checkBookable(vehicle) == nil
	if available {
		available, err = s.availability.IsAvailable(ctx, vehicleID, start, end, "")
		if err != nil {
			return nil, err
		}
	}
	return &QuoteResult{Quote: quote, Available: available}, nil
}

// ActivateDueBookings moves confirmed and paid bookings whose start has passed to active
// and marks their vehicles rented. It returns how many bookings were activated.
func (s *BookingService) ActivateDueBookings(ctx context.Context, asOf time.Time) (int, error) {
	due, err := s.store.Bookings().ListStartingBefore(ctx, asOf, activationBatchSize)
	if err != nil {
		return 0, err
	}

	activated := 0
	for _, b := range due {
		changed := false
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.LockVehicle(ctx, b.VehicleID); err != nil {
				return err
			}
			booking, err := tx.Bookings().GetByID(ctx, b.ID)
			if err != nil {
				return err
			}
			// Cancelled while we were waiting for the lock.
			if !booking.Status.CanTransitionTo(domain.BookingStatusActive) {
				return nil
			}

			booking.Status = domain.BookingStatusActive
			booking.UpdatedAt = s.now()
			if err := tx.Bookings().Update(ctx, booking); err != nil {
				return err
			}
			if err := tx.Vehicles().UpdateStatus(ctx, booking.VehicleID, domain.VehicleStatusRented); err != nil {
				return err
			}
			changed = true
			return nil
		})
		if err != nil {
			s.logger.Error("failed to activate booking", zap.String("booking_id", b.ID), zap.Error(err))
			continue
		}
		if changed {
			activated++
			s.invalidateVehicle(ctx, b.VehicleID)
		}
	}

	if activated > 0 {
		s.logger.Info("bookings activated", zap.Int("count", activated), zap.Time("as_of", asOf))
	}
	return activated, nil
}

// CompleteBooking ends an active rental. Only the vehicle owner may complete it.
func (s *BookingService) CompleteBooking(ctx context.Context, bookingID, ownerID string) (*domain.Booking, error) {
	if bookingID == "" {
		return nil, ErrInvalidBookingID
	}

	current, err := s.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var booking *domain.Booking
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		vehicle, err := tx.LockVehicle(ctx, current.VehicleID)
		if err != nil {
			return err
		}
		if vehicle.OwnerID != ownerID {
			return ErrNotVehicleOwner
		}

		booking, err = tx.Bookings().GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != domain.BookingStatusActive {
			return fmt.Errorf("%w: booking %s to %s", ErrInvalidStatusTransition, booking.Status, domain.BookingStatusCompleted)
		}

		booking.Status = domain.BookingStatusCompleted
		booking.UpdatedAt = s.now()
		if err := tx.Bookings().Update(ctx, booking); err != nil {
			return err
		}
		return tx.Vehicles().UpdateStatus(ctx, vehicle.ID, domain.VehicleStatusAvailable)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateVehicle(ctx, booking.VehicleID)
	s.availability.Invalidate(ctx, booking.VehicleID)

	s.logger.Info("booking completed", zap.String("booking_id", booking.ID))
	return booking, nil
}

// getVehicle reads a vehicle through the cache.
func (s *BookingService) getVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	if s.vehicleCache != nil {
		cached, err := s.vehicleCache.GetVehicle(ctx, vehicleID)
		if err != nil {
			s.logger.Warn("vehicle cache read failed", zap.String("vehicle_id", vehicleID), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	vehicle, err := s.store.Vehicles().GetByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	if s.vehicleCache != nil {
		if err := s.vehicleCache.SetVehicle(ctx, vehicle); err != nil {
			s.logger.Warn("vehicle cache write failed", zap.String("vehicle_id", vehicleID), zap.Error(err))
		}
	}
	return vehicle, nil
}

func (s *BookingService) invalidateVehicle(ctx context.Context, vehicleID string) {
	if s.vehicleCache == nil {
		return
	}
	if err := s.vehicleCache.InvalidateVehicle(ctx, vehicleID); err != nil {
		s.logger.Warn("vehicle cache invalidation failed", zap.String("vehicle_id", vehicleID), zap.Error(err))
	}
}

func checkBookable(v *domain.Vehicle) error {
	if !v.Bookable() || v.Status == domain.VehicleStatusMaintenance {
		return fmt.Errorf("%w: %s", ErrVehicleUnavailable, v.ID)
	}
	return nil
}

// validateCreateRequest validates the create booking request.
func (s *BookingService) validateCreateRequest(req CreateBookingRequest) error {
	if req.RenterID == "" {
		return ErrInvalidRenterID
	}
	if req.VehicleID == "" {
		return ErrInvalidVehicleID
	}
	if !req.StartDate.Before(req.EndDate) {
		return ErrInvalidDateRange
	}
	if req.StartDate.Before(s.now()) {
		return ErrStartDateInPast
	}
	if !s.payments.Supports(req.PaymentMethod) {
		return fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, req.PaymentMethod)
	}
	return nil
}
