package domain

import "time"

// InstallmentKind distinguishes buy-now-pay-later plans from bank EMI plans.
type InstallmentKind string

const (
	InstallmentKindBNPL InstallmentKind = "bnpl"
	InstallmentKindEMI  InstallmentKind = "emi"
)

// PlanStatus represents the lifecycle of an installment plan.
type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusCancelled PlanStatus = "cancelled"
	PlanStatusDefaulted PlanStatus = "defaulted"
)

// InstallmentStatus represents the state of a single scheduled installment.
type InstallmentStatus string

const (
	InstallmentStatusPending InstallmentStatus = "pending"
	InstallmentStatusPaid    InstallmentStatus = "paid"
	InstallmentStatusOverdue InstallmentStatus = "overdue"
	// InstallmentStatusCancelled is set on unpaid installments when their plan is cancelled.
	InstallmentStatusCancelled InstallmentStatus = "cancelled"
)

// InstallmentPlan finances a payment over a fixed schedule generated at creation.
type InstallmentPlan struct {
	ID                string
	Kind              InstallmentKind
	PaymentID         string
	BookingID         string
	UserID            string
	Provider          string
	PrincipalAmount   float64
	InterestRate      float64
	ProcessingFee     float64
	InstallmentCount  int
	InstallmentAmount float64
	TotalAmount       float64
	FirstDueDate      time.Time
	Status            PlanStatus
	CreatedAt         time.Time
}

// Installment is one scheduled repayment of a plan.
type Installment struct {
	ID         string
	PlanID     string
	Number     int
	Principal  float64
	Interest   float64
	Amount     float64
	DueDate    time.Time
	Status     InstallmentStatus
	PaidAt     time.Time
	PaymentRef string
}
