package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"rental/internal/domain"
)

// PricingRuleRepository is a PostgreSQL implementation of repository.PricingRuleRepository.
type PricingRuleRepository struct {
	q Querier
}

// NewPricingRuleRepository creates a new PostgreSQL pricing rule repository.
func NewPricingRuleRepository(db *sqlx.DB) *PricingRuleRepository {
	return &PricingRuleRepository{q: db}
}

// NewPricingRuleRepositoryWithTx creates a pricing rule repository using a transaction.
func NewPricingRuleRepositoryWithTx(tx *sqlx.Tx) *PricingRuleRepository {
	return &PricingRuleRepository{q: tx}
}

type pricingRuleRow struct {
	ID          string         `db:"id"`
	Name        string         `db:"name"`
	RuleType    string         `db:"rule_type"`
	TargetType  string         `db:"target_type"`
	TargetValue sql.NullString `db:"target_value"`
	Value       float64        `db:"value"`
	ValueType   string         `db:"value_type"`
	IsActive    bool           `db:"is_active"`
	StartsAt    sql.NullTime   `db:"starts_at"`
	EndsAt      sql.NullTime   `db:"ends_at"`
	Priority    int            `db:"priority"`
	CreatedAt   time.Time      `db:"created_at"`
}

// ListActive returns active rules of a type whose date bounds contain at.
func (r *PricingRuleRepository) ListActive(ctx context.Context, ruleType domain.RuleType, at time.Time) ([]*domain.PricingRule, error) {
	query := `
		SELECT id, name, rule_type, target_type, target_value, value, value_type, is_active,
			starts_at, ends_at, priority, created_at
		FROM pricing_rules
		WHERE rule_type = $1 AND is_active
			AND (starts_at IS NULL OR starts_at <= $2)
			AND (ends_at IS NULL OR ends_at >= $2)
		ORDER BY priority DESC, created_at DESC
	`

	var rows []pricingRuleRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, ruleType, at); err != nil {
		return nil, mapError(err)
	}

	rules := make([]*domain.PricingRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, &domain.PricingRule{
			ID:          row.ID,
			Name:        row.Name,
			RuleType:    domain.RuleType(row.RuleType),
			TargetType:  domain.RuleTarget(row.TargetType),
			TargetValue: row.TargetValue.String,
			Value:       row.Value,
			ValueType:   domain.RuleValueType(row.ValueType),
			IsActive:    row.IsActive,
			StartsAt:    timeOf(row.StartsAt),
			EndsAt:      timeOf(row.EndsAt),
			Priority:    row.Priority,
			CreatedAt:   row.CreatedAt,
		})
	}
	return rules, nil
}
