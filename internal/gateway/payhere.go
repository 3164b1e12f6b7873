// Package gateway holds the PayHere hosted-checkout client: signed checkout links,
// notification signature checks and the merchant refund API.
package gateway

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rubyist/circuitbreaker"

	"rental/internal/domain"
)

// Notification status codes sent by PayHere.
const (
	StatusSuccess     = "2"
	StatusPending     = "0"
	StatusCancelled   = "-1"
	StatusFailed      = "-2"
	StatusChargedBack = "-3"
)

const (
	sandboxCheckoutURL = "https://sandbox.payhere.lk/pay/checkout"
	liveCheckoutURL    = "https://www.payhere.lk/pay/checkout"
	sandboxAPIBaseURL  = "https://sandbox.payhere.lk"
	liveAPIBaseURL     = "https://www.payhere.lk"
	refundPath         = "/merchant/v1/payment/refund"
)

// Config holds PayHere merchant settings.
type Config struct {
	MerchantID       string
	MerchantSecret   string
	Sandbox          bool
	ReturnURL        string
	CancelURL        string
	NotifyURL        string
	APIBaseURL       string // Overrides the sandbox/live API host when set.
	Timeout          time.Duration
	BreakerThreshold int64
}

// CheckoutRequest contains the order and customer details of a hosted checkout.
type CheckoutRequest struct {
	OrderID   string
	Items     string
	Amount    float64
	Currency  string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	City      string
	Country   string
}

// Notification is the server-to-server callback PayHere posts to the notify URL.
type Notification struct {
	MerchantID    string `form:"merchant_id" validate:"required"`
	OrderID       string `form:"order_id" validate:"required"`
	PaymentID     string `form:"payment_id"`
	Amount        string `form:"payhere_amount" validate:"required,numeric"`
	Currency      string `form:"payhere_currency" validate:"required,len=3"`
	StatusCode    string `form:"status_code" validate:"required,oneof=2 0 -1 -2 -3"`
	MD5Sig        string `form:"md5sig" validate:"required"`
	StatusMessage string `form:"status_message"`
}

// PayHere is the PayHere merchant client.
type PayHere struct {
	cfg          Config
	hashedSecret string
	client       *circuit.HTTPClient
}

// NewPayHere creates a new PayHere client. Refund calls go through a circuit breaker that
// opens after BreakerThreshold consecutive failures.
func NewPayHere(cfg Config) *PayHere {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 5
	}

	httpClient := &http.Client{Transport: newrelic.NewRoundTripper(nil)}

	return &PayHere{
		cfg:          cfg,
		hashedSecret: md5Upper(cfg.MerchantSecret),
		client:       circuit.NewHTTPClient(cfg.Timeout, cfg.BreakerThreshold, httpClient),
	}
}

// MerchantID returns the configured merchant id.
func (p *PayHere) MerchantID() string {
	return p.cfg.MerchantID
}

// FormatAmount renders an amount the way PayHere signs it: two decimals, no grouping.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(domain.Round2(amount), 'f', 2, 64)
}

// CheckoutHash signs a checkout request.
func (p *PayHere) CheckoutHash(orderID string, amount float64, currency string) string {
	return md5Upper(p.cfg.MerchantID + orderID + FormatAmount(amount) + currency + p.hashedSecret)
}

// NotificationSignature computes the md5sig PayHere attaches to a notification.
func (p *PayHere) NotificationSignature(n Notification) string {
	return md5Upper(n.MerchantID + n.OrderID + n.Amount + n.Currency + n.StatusCode + p.hashedSecret)
}

// BuildCheckoutURL returns a signed hosted-checkout link. It makes no network call.
func (p *PayHere) BuildCheckoutURL(req CheckoutRequest) (string, error) {
	if req.OrderID == "" {
		return "", fmt.Errorf("payhere: order id is required")
	}
	if req.Amount <= 0 {
		return "", fmt.Errorf("payhere: amount must be positive, got %.2f", req.Amount)
	}

	base := liveCheckoutURL
	if p.cfg.Sandbox {
		base = sandboxCheckoutURL
	}

	q := url.Values{}
	q.Set("merchant_id", p.cfg.MerchantID)
	q.Set("return_url", p.cfg.ReturnURL)
	q.Set("cancel_url", p.cfg.CancelURL)
	q.Set("notify_url", p.cfg.NotifyURL)
	q.Set("order_id", req.OrderID)
	q.Set("items", req.Items)
	q.Set("currency", req.Currency)
	q.Set("amount", FormatAmount(req.Amount))
	q.Set("first_name", req.FirstName)
	q.Set("last_name", req.LastName)
	q.Set("email", req.Email)
	q.Set("phone", req.Phone)
	q.Set("address", req.Address)
	q.Set("city", req.City)
	q.Set("country", req.Country)
	q.Set("hash", p.CheckoutHash(req.OrderID, req.Amount, req.Currency))

	return base + "?" + q.Encode(), nil
}

// VerifyNotification reports whether a notification carries a valid signature for this merchant.
func (p *PayHere) VerifyNotification(n Notification) bool {
	if n.MerchantID != p.cfg.MerchantID {
		return false
	}
	want := p.NotificationSignature(n)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToUpper(n.MD5Sig))) == 1
}

type refundRequest struct {
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason"`
}

type refundResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

// Refund asks PayHere to refund a captured payment. It returns false without error when
// PayHere answers but declines; transport failures and an open breaker return an error.
func (p *PayHere) Refund(ctx context.Context, paymentRef string, amount float64, reason string) (bool, error) {
	defer newrelic.FromContext(ctx).StartSegment("payhere/refund").End()

	if reason == "" {
		reason = "Customer cancellation"
	}

	body, err := json.Marshal(refundRequest{PaymentID: paymentRef, Amount: domain.Round2(amount), Reason: reason})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBaseURL()+refundPath, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+p.hashedSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("payhere refund %s: %w", paymentRef, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return false, fmt.Errorf("payhere refund %s: unexpected status %d", paymentRef, resp.StatusCode)
	}

	var out refundResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, nil
	}
	return out.Status == 1, nil
}

func (p *PayHere) apiBaseURL() string {
	if p.cfg.APIBaseURL != "" {
		return strings.TrimRight(p.cfg.APIBaseURL, "/")
	}
	if p.cfg.Sandbox {
		return sandboxAPIBaseURL
	}
	return liveAPIBaseURL
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
