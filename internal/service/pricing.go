package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"rental/internal/domain"
	"rental/internal/repository"
)

// Default revenue split rates, in percent.
const (
	DefaultCommissionRate  = 15.0
	DefaultPlatformFeeRate = 2.5
)

// Quote is the rental price for a date range.
type Quote struct {
	Days        int
	PricePerDay float64
	TotalPrice  float64
}

// Split divides a total price between the platform and the payee.
type Split struct {
	CommissionRate  float64
	Commission      float64
	PlatformFeeRate float64
	PlatformFee     float64
	PayeeEarnings   float64
}

// PricingTarget carries the booking attributes pricing rules can be scoped to.
type PricingTarget struct {
	City        string
	VehicleType string
	UserTier    string
}

// PricingEngine computes rental prices and revenue splits.
type PricingEngine struct {
	commissionRate  float64
	platformFeeRate float64
}

// NewPricingEngine creates a new PricingEngine with the default rates used when no rule matches.
func NewPricingEngine(commissionRate, platformFeeRate float64) *PricingEngine {
	return &PricingEngine{
		commissionRate:  commissionRate,
		platformFeeRate: platformFeeRate,
	}
}

// Price charges whole days, rounding a partial day up, with a one-day minimum.
func (e *PricingEngine) Price(vehicle *domain.Vehicle, start, end time.Time) (Quote, error) {
	if !start.Before(end) {
		return Quote{}, ErrInvalidDateRange
	}

	days := int(math.Ceil(end.Sub(start).Hours() / 24))
	if days < 1 {
		days = 1
	}

	pricePerDay := domain.Round2(vehicle.PricePerDay)
	return Quote{
		Days:        days,
		PricePerDay: pricePerDay,
		TotalPrice:  domain.Round2(float64(days) * pricePerDay),
	}, nil
}

// Split resolves the commission and platform fee for total from the rules active at at.
func (e *PricingEngine) Split(ctx context.Context, rules repository.PricingRuleRepository, target PricingTarget, total float64, at time.Time) (Split, error) {
	commissionRules, err := rules.ListActive(ctx, domain.RuleTypeCommission, at)
	if err != nil {
		return Split{}, err
	}
	feeRules, err := rules.ListActive(ctx, domain.RuleTypePlatformFee, at)
	if err != nil {
		return Split{}, err
	}

	commissionRate, commission := applyRule(ResolveRule(commissionRules, target, at), e.commissionRate, total)
	feeRate, fee := applyRule(ResolveRule(feeRules, target, at), e.platformFeeRate, total)

	return Split{
		CommissionRate:  commissionRate,
		Commission:      commission,
		PlatformFeeRate: feeRate,
		PlatformFee:     fee,
		PayeeEarnings:   domain.Round2(total - commission - fee),
	}, nil
}

// ResolveRule returns the winning rule for target at time at, or nil.
// Higher priority wins; the newer rule wins a tie.
func ResolveRule(rules []*domain.PricingRule, target PricingTarget, at time.Time) *domain.PricingRule {
	ordered := make([]*domain.PricingRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	for _, rule := range ordered {
		if rule.ActiveAt(at) && ruleMatches(rule, target) {
			return rule
		}
	}
	return nil
}

func ruleMatches(rule *domain.PricingRule, target PricingTarget) bool {
	switch rule.TargetType {
	case domain.RuleTargetAll, "":
		return true
	case domain.RuleTargetCity:
		return strings.EqualFold(rule.TargetValue, target.City)
	case domain.RuleTargetVehicleType:
		return strings.EqualFold(rule.TargetValue, target.VehicleType)
	case domain.RuleTargetUserTier:
		return strings.EqualFold(rule.TargetValue, target.UserTier)
	default:
		return false
	}
}

// applyRule returns the rate and rounded amount for total. A fixed rule is capped at total
// and reported with its equivalent percentage.
func applyRule(rule *domain.PricingRule, defaultRate, total float64) (rate, amount float64) {
	if rule == nil {
		return defaultRate, domain.Round2(total * defaultRate / 100)
	}
	if rule.ValueType == domain.RuleValueFixed {
		if total <= 0 {
			return 0, 0
		}
		amount = domain.Round2(math.Min(rule.Value, total))
		return amount / total * 100, amount
	}
	return rule.Value, domain.Round2(total * rule.Value / 100)
}
