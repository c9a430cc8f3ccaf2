package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-adbooking/internal/errs"
	"ms-adbooking/internal/logger"
	"ms-adbooking/internal/metrics"
	"ms-adbooking/internal/models"
)

type DBLayer interface {
	ActiveRulesForScope(ctx context.Context, campaignID, userID string) ([]models.PricingRule, error)
	GetRule(ctx context.Context, id string) (*models.PricingRule, error)
	ListRules(ctx context.Context) ([]models.PricingRule, error)
	CreateRule(ctx context.Context, rule models.PricingRule) error
	GetLoyaltyCounter(ctx context.Context, userID string) (*models.LoyaltyCounter, error)
}

// Service wraps the rule evaluator with rule/loyalty snapshots from the
// database. Quotes never consume rule usage or loyalty credits; that happens
// inside the booking-create transaction.
type Service struct {
	DB       DBLayer
	Defaults Defaults
	logger   *logger.Logger
}

func NewService(db DBLayer, defaults Defaults, log *logger.Logger) *Service {
	return &Service{DB: db, Defaults: defaults, logger: log}
}

// Quote prices quantity slots of campaign for userID from current state.
func (s *Service) Quote(ctx context.Context, campaign *models.Campaign, userID string, quantity int) (*models.Quote, error) {
	start := time.Now()

	rules, err := s.DB.ActiveRulesForScope(ctx, campaign.ID, userID)
	if err != nil {
		metrics.RecordQuoteDuration("failure", time.Since(start).Seconds())
		return nil, errs.Internal("failed to load pricing rules", err)
	}

	available, err := s.loyaltyAvailable(ctx, userID)
	if err != nil {
		metrics.RecordQuoteDuration("failure", time.Since(start).Seconds())
		return nil, err
	}

	quote, err := Evaluate(EvalInput{
		Campaign:         campaign,
		Quantity:         quantity,
		Rules:            rules,
		LoyaltyAvailable: available,
		Defaults:         s.Defaults,
	})
	if err != nil {
		metrics.RecordQuoteDuration("rejected", time.Since(start).Seconds())
		return nil, err
	}

	metrics.RecordQuoteDuration("success", time.Since(start).Seconds())
	s.logger.LogPricing("QUOTE", campaign.ID,
		fmt.Sprintf("user=%s quantity=%d base=%d discount=%d final=%d",
			userID, quantity, quote.Breakdown.BasePriceCents, quote.Breakdown.DiscountCents, quote.TotalPriceCents))

	return quote, nil
}

// loyaltyAvailable reads the counter without writing. Rows left over from a
// previous year count as zero; the row itself is reset inside the next
// confirmed booking's transaction.
func (s *Service) loyaltyAvailable(ctx context.Context, userID string) (int, error) {
	counter, err := s.DB.GetLoyaltyCounter(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, errs.Internal("failed to load loyalty counter", err)
	}
	if counter.Year != time.Now().Year() {
		return 0, nil
	}
	return counter.DiscountsAvailable, nil
}

func (s *Service) GetRule(ctx context.Context, id string) (*models.PricingRule, error) {
	rule, err := s.DB.GetRule(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("pricing rule %s not found", id)
		}
		return nil, errs.Internal("failed to load pricing rule", err)
	}
	return rule, nil
}

func (s *Service) ListRules(ctx context.Context) ([]models.PricingRule, error) {
	rules, err := s.DB.ListRules(ctx)
	if err != nil {
		return nil, errs.Internal("failed to list pricing rules", err)
	}
	if rules == nil {
		rules = []models.PricingRule{}
	}
	return rules, nil
}

// CreateRule registers a new rule from the admin surface.
func (s *Service) CreateRule(ctx context.Context, req models.PricingRuleRequest) (*models.PricingRule, error) {
	switch req.RuleType {
	case models.RuleTieredBase, models.RuleBulkDiscount, models.RuleLoyaltyDiscount, models.RuleManualOverride:
	default:
		return nil, errs.Validation("unknown rule type %q", req.RuleType)
	}
	if req.ValueCents < 0 {
		return nil, errs.Validation("value_cents must not be negative")
	}
	if req.AdditionalCents != nil && *req.AdditionalCents < 0 {
		return nil, errs.Validation("additional_cents must not be negative")
	}
	if req.UsageLimit != nil && *req.UsageLimit < 1 {
		return nil, errs.Validation("usage_limit must be positive")
	}
	if req.RuleType == models.RuleBulkDiscount && req.MinCampaigns < 0 {
		return nil, errs.Validation("min_campaigns must not be negative")
	}

	rule := models.PricingRule{
		ID:              uuid.NewString(),
		RuleType:        req.RuleType,
		CampaignID:      req.CampaignID,
		UserID:          req.UserID,
		ValueCents:      req.ValueCents,
		AdditionalCents: req.AdditionalCents,
		MinCampaigns:    req.MinCampaigns,
		Priority:        req.Priority,
		UsageLimit:      req.UsageLimit,
		Status:          models.RuleActive,
		Description:     req.Description,
		CreatedAt:       time.Now(),
	}

	if err := s.DB.CreateRule(ctx, rule); err != nil {
		return nil, errs.Internal("failed to create pricing rule", err)
	}

	s.logger.LogPricing("RULE_CREATED", rule.ID,
		fmt.Sprintf("type=%s value=%d priority=%d", rule.RuleType, rule.ValueCents, rule.Priority))

	return &rule, nil
}
