package models

import (
	"time"

	"github.com/uptrace/bun"
)

type RuleType string

const (
	RuleTieredBase      RuleType = "tiered_base"
	RuleBulkDiscount    RuleType = "bulk_discount"
	RuleLoyaltyDiscount RuleType = "loyalty_discount"
	RuleManualOverride  RuleType = "manual_override"
)

type RuleStatus string

const (
	RuleActive   RuleStatus = "active"
	RuleInactive RuleStatus = "inactive"
)

// PricingRule is one row of the layered rule set. Scope is global when both
// CampaignID and UserID are empty. For tiered_base rules ValueCents is the
// first-slot price and AdditionalCents the per-additional-slot price; for
// discount rules ValueCents is the discount amount.
type PricingRule struct {
	bun.BaseModel `bun:"table:pricing_rules"`

	ID              string     `bun:"id,pk" json:"id"`
	RuleType        RuleType   `bun:"rule_type,notnull" json:"rule_type"`
	CampaignID      string     `bun:"campaign_id,nullzero" json:"campaign_id,omitempty"`
	UserID          string     `bun:"user_id,nullzero" json:"user_id,omitempty"`
	ValueCents      int64      `bun:"value_cents,notnull" json:"value_cents"`
	AdditionalCents *int64     `bun:"additional_cents" json:"additional_cents,omitempty"`
	MinCampaigns    int        `bun:"min_campaigns,notnull,default:0" json:"min_campaigns"`
	Priority        int        `bun:"priority,notnull,default:100" json:"priority"`
	UsageLimit      *int       `bun:"usage_limit" json:"usage_limit,omitempty"`
	UsageCount      int        `bun:"usage_count,notnull,default:0" json:"usage_count"`
	Status          RuleStatus `bun:"status,notnull" json:"status"`
	Description     string     `bun:"description,nullzero" json:"description,omitempty"`
	CreatedAt       time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Exhausted reports whether the rule's usage limit has been reached.
func (r *PricingRule) Exhausted() bool {
	return r.UsageLimit != nil && r.UsageCount >= *r.UsageLimit
}

type LoyaltyCounter struct {
	bun.BaseModel `bun:"table:loyalty_counters"`

	UserID             string    `bun:"user_id,pk" json:"user_id"`
	SlotsEarned        int       `bun:"slots_earned,notnull,default:0" json:"slots_earned"`
	DiscountsAvailable int       `bun:"discounts_available,notnull,default:0" json:"discounts_available"`
	Year               int       `bun:"year,notnull" json:"year"`
	UpdatedAt          time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

type AppliedRule struct {
	RuleID      string   `json:"rule_id"`
	RuleType    RuleType `json:"rule_type"`
	Description string   `json:"description,omitempty"`
	Applied     bool     `json:"applied"`
	AmountCents int64    `json:"amount_cents"`
}

type QuoteBreakdown struct {
	BasePriceCents  int64 `json:"base_price_cents"`
	DiscountCents   int64 `json:"discount_cents"`
	FinalPriceCents int64 `json:"final_price_cents"`
}

type Quote struct {
	CampaignID      string         `json:"campaign_id"`
	Quantity        int            `json:"quantity"`
	TotalPriceCents int64          `json:"total_price_cents"`
	Breakdown       QuoteBreakdown `json:"breakdown"`
	AppliedRules    []AppliedRule  `json:"applied_rules"`
}

// SelectedDiscount returns the discount rule the quote applied, if any.
// Tiered base rules shape the base price and are never the selected discount.
func (q *Quote) SelectedDiscount() *AppliedRule {
	for i := range q.AppliedRules {
		r := &q.AppliedRules[i]
		if r.Applied && r.RuleType != RuleTieredBase {
			return r
		}
	}
	return nil
}

type PricingRuleRequest struct {
	RuleType        RuleType `json:"rule_type"`
	CampaignID      string   `json:"campaign_id,omitempty"`
	UserID          string   `json:"user_id,omitempty"`
	ValueCents      int64    `json:"value_cents"`
	AdditionalCents *int64   `json:"additional_cents,omitempty"`
	MinCampaigns    int      `json:"min_campaigns,omitempty"`
	Priority        int      `json:"priority"`
	UsageLimit      *int     `json:"usage_limit,omitempty"`
	Description     string   `json:"description,omitempty"`
}
