package db

import (
	"context"

	"github.com/uptrace/bun"

	"ms-adbooking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ActiveRulesForScope returns the active rules visible to one (campaign,
// user) pair: global rows plus rows scoped to either id. Exhausted rules are
// filtered out here so quotes and booking-time consumption agree on the
// candidate set.
func (d *DB) ActiveRulesForScope(ctx context.Context, campaignID, userID string) ([]models.PricingRule, error) {
	var rules []models.PricingRule
	err := d.Bun.NewSelect().
		Model(&rules).
		Where("status = ?", models.RuleActive).
		Where("(campaign_id IS NULL OR campaign_id = ?)", campaignID).
		Where("(user_id IS NULL OR user_id = ?)", userID).
		Where("(usage_limit IS NULL OR usage_count < usage_limit)").
		Order("priority ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (d *DB) GetRule(ctx context.Context, id string) (*models.PricingRule, error) {
	var rule models.PricingRule
	err := d.Bun.NewSelect().
		Model(&rule).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (d *DB) ListRules(ctx context.Context) ([]models.PricingRule, error) {
	var rules []models.PricingRule
	err := d.Bun.NewSelect().
		Model(&rules).
		Order("priority ASC", "created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (d *DB) CreateRule(ctx context.Context, rule models.PricingRule) error {
	_, err := d.Bun.NewInsert().Model(&rule).Exec(ctx)
	return err
}

func (d *DB) GetLoyaltyCounter(ctx context.Context, userID string) (*models.LoyaltyCounter, error) {
	var counter models.LoyaltyCounter
	err := d.Bun.NewSelect().
		Model(&counter).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &counter, nil
}
