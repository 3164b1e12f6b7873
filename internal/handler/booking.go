package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rental/internal/domain"
	"rental/internal/middleware"
	"rental/internal/service"
)

const dateLayout = "2006-01-02"

// BookingHandler handles HTTP requests for bookings.
type BookingHandler struct {
	bookings      *service.BookingService
	cancellations *service.CancellationService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(bookings *service.BookingService, cancellations *service.CancellationService) *BookingHandler {
	return &BookingHandler{bookings: bookings, cancellations: cancellations}
}

// CreateBookingRequest is the HTTP request body for creating a booking.
type CreateBookingRequest struct {
	VehicleID        string `json:"vehicle_id" binding:"required"`
	StartDate        string `json:"start_date" binding:"required"`
	EndDate          string `json:"end_date" binding:"required"`
	PickupLocation   string `json:"pickup_location" binding:"max=255"`
	DropoffLocation  string `json:"dropoff_location" binding:"max=255"`
	PaymentMethod    string `json:"payment_method" binding:"omitempty,oneof=wallet gateway card bnpl emi"`
	InstallmentCount int    `json:"installment_count" binding:"omitempty,min=1"`
	Provider         string `json:"provider"`
	BankName         string `json:"bank_name"`
	TenureMonths     int    `json:"tenure_months" binding:"omitempty,min=1"`
}

// CancelBookingRequest is the HTTP request body for cancelling a booking.
type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// BookingResponse is the HTTP representation of a booking.
type BookingResponse struct {
	ID                 string     `json:"id"`
	RenterID           string     `json:"renter_id"`
	VehicleID          string     `json:"vehicle_id"`
	StartDate          time.Time  `json:"start_date"`
	EndDate            time.Time  `json:"end_date"`
	PickupLocation     string     `json:"pickup_location,omitempty"`
	DropoffLocation    string     `json:"dropoff_location,omitempty"`
	Days               int        `json:"days"`
	PricePerDay        float64    `json:"price_per_day"`
	TotalPrice         float64    `json:"total_price"`
	Currency           string     `json:"currency"`
	Commission         float64    `json:"commission"`
	PlatformFee        float64    `json:"platform_fee"`
	OwnerEarnings      float64    `json:"owner_earnings"`
	Status             string     `json:"status"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// CreateBookingResponse is the HTTP response for a created booking.
type CreateBookingResponse struct {
	Booking      BookingResponse  `json:"booking"`
	Payment      *PaymentResponse `json:"payment,omitempty"`
	CheckoutURL  string           `json:"checkout_url,omitempty"`
	PaymentError string           `json:"payment_error,omitempty"`
}

// QuoteResponse is the HTTP response for a price quote.
type QuoteResponse struct {
	VehicleID   string  `json:"vehicle_id"`
	Days        int     `json:"days"`
	PricePerDay float64 `json:"price_per_day"`
	TotalPrice  float64 `json:"total_price"`
	Available   bool    `json:"available"`
}

// CreateBooking handles POST /v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	start, end, ok := parseRange(c, req.StartDate, req.EndDate)
	if !ok {
		return
	}

	result, err := h.bookings.CreateBooking(c.Request.Context(), service.CreateBookingRequest{
		RenterID:        middleware.UserID(c),
		VehicleID:       req.VehicleID,
		StartDate:       start,
		EndDate:         end,
		PickupLocation:  req.PickupLocation,
		DropoffLocation: req.DropoffLocation,
		PaymentMethod:   domain.PaymentMethod(req.PaymentMethod),
		PaymentParams: service.PaymentParams{
			InstallmentCount: req.InstallmentCount,
			Provider:         req.Provider,
			BankName:         req.BankName,
			TenureMonths:     req.TenureMonths,
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := CreateBookingResponse{
		Booking:     toBookingResponse(result.Booking),
		CheckoutURL: result.CheckoutURL,
	}
	if result.Payment != nil {
		p := toPaymentResponse(result.Payment)
		resp.Payment = &p
	}
	if result.PaymentError != nil {
		resp.PaymentError = result.PaymentError.Error()
	}
	respondJSON(c, http.StatusCreated, resp)
}

// GetBooking handles GET /v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, err := h.bookings.GetBooking(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(booking))
}

// CancelBooking handles POST /v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	var req CancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err.Error())
			return
		}
	}

	booking, err := h.cancellations.Cancel(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(booking))
}

// CompleteBooking handles POST /v1/bookings/:id/complete
func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	booking, err := h.bookings.CompleteBooking(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(booking))
}

// Quote handles GET /v1/vehicles/:id/quote?start_date=&end_date=
func (h *BookingHandler) Quote(c *gin.Context) {
	start, end, ok := parseRange(c, c.Query("start_date"), c.Query("end_date"))
	if !ok {
		return
	}

	quote, err := h.bookings.Quote(c.Request.Context(), c.Param("id"), start, end)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, QuoteResponse{
		VehicleID:   c.Param("id"),
		Days:        quote.Days,
		PricePerDay: quote.PricePerDay,
		TotalPrice:  quote.TotalPrice,
		Available:   quote.Available,
	})
}

// parseRange parses a start/end pair given either as dates or RFC 3339 timestamps.
// It writes the 400 response itself when parsing fails.
func parseRange(c *gin.Context, rawStart, rawEnd string) (start, end time.Time, ok bool) {
	start, err := parseDate(rawStart)
	if err != nil {
		respondBadRequest(c, "start_date must be YYYY-MM-DD or RFC 3339")
		return time.Time{}, time.Time{}, false
	}
	end, err = parseDate(rawEnd)
	if err != nil {
		respondBadRequest(c, "end_date must be YYYY-MM-DD or RFC 3339")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func toBookingResponse(b *domain.Booking) BookingResponse {
	resp := BookingResponse{
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
		Commission:         b.Commission,
		PlatformFee:        b.PlatformFee,
		OwnerEarnings:      b.DriverEarnings,
		Status:             string(b.Status),
		CancellationReason: b.CancellationReason,
		CreatedAt:          b.CreatedAt,
	}
	if !b.CancelledAt.IsZero() {
		cancelledAt := b.CancelledAt
		resp.CancelledAt = &cancelledAt
	}
	return resp
}
