package domain

import (
	"math"
	"time"
)

// RuleType names the rate a pricing rule overrides.
type RuleType string

const (
	RuleTypeCommission  RuleType = "commission"
	RuleTypePlatformFee RuleType = "platform_fee"
)

// RuleTarget names the dimension a pricing rule is scoped to.
type RuleTarget string

const (
	RuleTargetAll         RuleTarget = "all"
	RuleTargetCity        RuleTarget = "city"
	RuleTargetVehicleType RuleTarget = "vehicle_type"
	RuleTargetUserTier    RuleTarget = "user_tier"
)

// RuleValueType says whether a rule value is a percentage or a flat amount.
type RuleValueType string

const (
	RuleValuePercentage RuleValueType = "percentage"
	RuleValueFixed      RuleValueType = "fixed"
)

// PricingRule overrides a default rate for bookings matching its target within its date bounds.
type PricingRule struct {
	ID          string
	Name        string
	RuleType    RuleType
	TargetType  RuleTarget
	TargetValue string
	Value       float64
	ValueType   RuleValueType
	IsActive    bool
	StartsAt    time.Time
	EndsAt      time.Time
	Priority    int
	CreatedAt   time.Time
}

// ActiveAt reports whether the rule applies at t. Zero bounds are open.
func (r *PricingRule) ActiveAt(t time.Time) bool {
	if !r.IsActive {
		return false
	}
	if !r.StartsAt.IsZero() && t.Before(r.StartsAt) {
		return false
	}
	if !r.EndsAt.IsZero() && t.After(r.EndsAt) {
		return false
	}
	return true
}

// Round2 rounds an amount to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Cents converts an amount to integer minor units for exact comparisons.
func Cents(v float64) int64 {
	return int64(math.Round(v * 100))
}
