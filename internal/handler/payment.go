package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rental/internal/domain"
	"rental/internal/gateway"
	"rental/internal/middleware"
	"rental/internal/service"
)

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// ProcessPaymentRequest is the HTTP request body for paying a booking.
type ProcessPaymentRequest struct {
	Method           string `json:"method" binding:"required,oneof=wallet gateway card bnpl emi"`
	InstallmentCount int    `json:"installment_count" binding:"omitempty,min=1"`
	Provider         string `json:"provider"`
	BankName         string `json:"bank_name"`
	TenureMonths     int    `json:"tenure_months" binding:"omitempty,min=1"`
}

// PaymentResponse is the HTTP response for payment operations.
type PaymentResponse struct {
	ID            string     `json:"id"`
	BookingID     string     `json:"booking_id"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	Method        string     `json:"method,omitempty"`
	Status        string     `json:"status"`
	TransactionID string     `json:"transaction_id,omitempty"`
	GatewayRef    string     `json:"gateway_ref,omitempty"`
	CheckoutURL   string     `json:"checkout_url,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	RefundAmount  float64    `json:"refund_amount,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	RefundedAt    *time.Time `json:"refunded_at,omitempty"`
}

// PlanResponse summarizes an installment plan created by a BNPL or EMI payment.
type PlanResponse struct {
	ID                string    `json:"id"`
	Kind              string    `json:"kind"`
	Provider          string    `json:"provider"`
	InstallmentCount  int       `json:"installment_count"`
	InstallmentAmount float64   `json:"installment_amount"`
	InterestRate      float64   `json:"interest_rate"`
	ProcessingFee     float64   `json:"processing_fee"`
	TotalAmount       float64   `json:"total_amount"`
	FirstDueDate      time.Time `json:"first_due_date"`
}

// ProcessPaymentResponse is the HTTP response for a payment attempt.
type ProcessPaymentResponse struct {
	Payment       PaymentResponse `json:"payment"`
	BookingStatus string          `json:"booking_status"`
	CheckoutURL   string          `json:"checkout_url,omitempty"`
	Plan          *PlanResponse   `json:"plan,omitempty"`
}

// ProcessPayment handles POST /v1/bookings/:id/payments
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	result, err := h.paymentService.ProcessPayment(c.Request.Context(), service.ProcessPaymentRequest{
		UserID:    middleware.UserID(c),
		BookingID: c.Param("id"),
		Method:    domain.PaymentMethod(req.Method),
		Params: service.PaymentParams{
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

	resp := ProcessPaymentResponse{
		Payment:       toPaymentResponse(result.Payment),
		BookingStatus: string(result.Booking.Status),
		CheckoutURL:   result.CheckoutURL,
	}
	if result.Plan != nil {
		resp.Plan = &PlanResponse{
			ID:                result.Plan.ID,
			Kind:              string(result.Plan.Kind),
			Provider:          result.Plan.Provider,
			InstallmentCount:  result.Plan.InstallmentCount,
			InstallmentAmount: result.Plan.InstallmentAmount,
			InterestRate:      result.Plan.InterestRate,
			ProcessingFee:     result.Plan.ProcessingFee,
			TotalAmount:       result.Plan.TotalAmount,
			FirstDueDate:      result.Plan.FirstDueDate,
		}
	}

	code := http.StatusOK
	if result.Payment.Status == domain.PaymentStatusProcessing {
		code = http.StatusAccepted
	}
	respondJSON(c, code, resp)
}

// GetPayment handles GET /v1/payments/:id
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.paymentService.GetPayment(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toPaymentResponse(payment))
}

// PayHereNotification handles POST /v1/webhooks/payhere. PayHere retries until it sees a
// 200, so a duplicate of an already settled notification is acknowledged.
func (h *PaymentHandler) PayHereNotification(c *gin.Context) {
	var n gateway.Notification
	if err := c.ShouldBind(&n); err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	payment, err := h.paymentService.HandleGatewayNotification(c.Request.Context(), n)
	if errors.Is(err, service.ErrAlreadyProcessed) {
		respondJSON(c, http.StatusOK, gin.H{"status": "already_processed"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"status": "ok", "payment_status": string(payment.Status)})
}

func toPaymentResponse(p *domain.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:            p.ID,
		BookingID:     p.BookingID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Method:        string(p.Method),
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		GatewayRef:    p.GatewayRef,
		CheckoutURL:   p.CheckoutURL,
		FailureReason: p.FailureReason,
		RefundAmount:  p.RefundAmount,
	}
	if !p.CompletedAt.IsZero() {
		completedAt := p.CompletedAt
		resp.CompletedAt = &completedAt
	}
	if !p.RefundedAt.IsZero() {
		refundedAt := p.RefundedAt
		resp.RefundedAt = &refundedAt
	}
	return resp
}
