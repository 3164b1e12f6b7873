package repository

import (
	"context"
	"time"

	"rental/internal/domain"
)

// PricingRuleRepository defines the read operations for pricing rules.
type PricingRuleRepository interface {
	// ListActive returns active rules of a type whose date bounds contain at,
	// highest priority first and newest first within a priority.
	ListActive(ctx context.Context, ruleType domain.RuleType, at time.Time) ([]*domain.PricingRule, error)
}
