package pricing

import (
	"sort"

	"ms-adbooking/internal/errs"
	"ms-adbooking/internal/models"
)

// Defaults is the platform fallback schedule and loyalty earn threshold.
type Defaults struct {
	Tier1Cents       int64
	Tier2Cents       int64
	SlotsPerDiscount int
}

// TierSchedule is the resolved base price schedule for one quote.
type TierSchedule struct {
	FirstSlotCents      int64
	AdditionalSlotCents int64
}

// EvalInput snapshots everything a quote depends on. Evaluate is a pure
// function of this snapshot; identical inputs produce identical quotes.
type EvalInput struct {
	Campaign         *models.Campaign
	Quantity         int
	Rules            []models.PricingRule
	LoyaltyAvailable int
	Defaults         Defaults
}

// Evaluate prices a booking request. Base price is tiered (first slot, then
// additional slots); at most one discount rule applies, chosen by ascending
// priority with manual overrides beating everything. The discount is clamped
// to the base price so the final price never goes negative. Every candidate
// rule is echoed in AppliedRules whether or not it was selected.
func Evaluate(in EvalInput) (*models.Quote, error) {
	if in.Campaign == nil {
		return nil, errs.Validation("campaign is required")
	}
	if in.Quantity < 1 {
		return nil, errs.Validation("quantity must be at least 1")
	}

	schedule, tierRule := resolveSchedule(in)
	base := schedule.FirstSlotCents + int64(in.Quantity-1)*schedule.AdditionalSlotCents

	applied := make([]models.AppliedRule, 0, len(in.Rules))
	if tierRule != nil {
		// The schedule rule only counts as applied when the campaign row
		// didn't shadow both of its tiers.
		shadowed := in.Campaign.BaseSlotCents != nil && in.Campaign.AdditionalSlotCents != nil
		applied = append(applied, models.AppliedRule{
			RuleID:      tierRule.ID,
			RuleType:    models.RuleTieredBase,
			Description: tierRule.Description,
			Applied:     !shadowed,
		})
	}

	candidates := sortedCandidates(in.Rules)
	selected := selectDiscount(candidates, in)

	var discount int64
	for _, rule := range candidates {
		entry := models.AppliedRule{
			RuleID:      rule.ID,
			RuleType:    rule.RuleType,
			Description: rule.Description,
		}
		if selected != nil && rule.ID == selected.ID {
			entry.Applied = true
			entry.AmountCents = min(rule.ValueCents, base)
			discount = entry.AmountCents
		}
		applied = append(applied, entry)
	}

	final := base - discount

	return &models.Quote{
		CampaignID:      in.Campaign.ID,
		Quantity:        in.Quantity,
		TotalPriceCents: final,
		Breakdown: models.QuoteBreakdown{
			BasePriceCents:  base,
			DiscountCents:   discount,
			FinalPriceCents: final,
		},
		AppliedRules: applied,
	}, nil
}

// resolveSchedule layers the base schedule: platform defaults, then the best
// tiered_base rule, then per-campaign overrides field by field.
func resolveSchedule(in EvalInput) (TierSchedule, *models.PricingRule) {
	schedule := TierSchedule{
		FirstSlotCents:      in.Defaults.Tier1Cents,
		AdditionalSlotCents: in.Defaults.Tier2Cents,
	}

	rule := bestTierRule(in.Rules)
	if rule != nil {
		schedule.FirstSlotCents = rule.ValueCents
		if rule.AdditionalCents != nil {
			schedule.AdditionalSlotCents = *rule.AdditionalCents
		}
	}

	if in.Campaign.BaseSlotCents != nil {
		schedule.FirstSlotCents = *in.Campaign.BaseSlotCents
	}
	if in.Campaign.AdditionalSlotCents != nil {
		schedule.AdditionalSlotCents = *in.Campaign.AdditionalSlotCents
	}

	return schedule, rule
}

func bestTierRule(rules []models.PricingRule) *models.PricingRule {
	var best *models.PricingRule
	for i := range rules {
		r := &rules[i]
		if r.RuleType != models.RuleTieredBase || r.Status != models.RuleActive {
			continue
		}
		if best == nil || tierLess(r, best) {
			best = r
		}
	}
	return best
}

// Campaign-scoped schedules beat global ones, then priority, then id.
func tierLess(a, b *models.PricingRule) bool {
	aScoped, bScoped := a.CampaignID != "", b.CampaignID != ""
	if aScoped != bScoped {
		return aScoped
	}
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}

// sortedCandidates returns the discount rules in deterministic evaluation
// order: ascending priority, ties broken by id.
func sortedCandidates(rules []models.PricingRule) []*models.PricingRule {
	candidates := make([]*models.PricingRule, 0, len(rules))
	for i := range rules {
		r := &rules[i]
		if r.RuleType == models.RuleTieredBase {
			continue
		}
		if r.Status != models.RuleActive || r.Exhausted() {
			continue
		}
		candidates = append(candidates, r)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return ruleLess(candidates[i], candidates[j])
	})
	return candidates
}

func ruleLess(a, b *models.PricingRule) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.ID < b.ID
}

// selectDiscount picks the single discount to apply. Manual overrides carry
// an explicit admin decision and win outright; otherwise the first applicable
// rule in priority order does.
func selectDiscount(candidates []*models.PricingRule, in EvalInput) *models.PricingRule {
	var manual *models.PricingRule
	for _, r := range candidates {
		if r.RuleType == models.RuleManualOverride {
			if manual == nil || ruleLess(r, manual) {
				manual = r
			}
		}
	}
	if manual != nil {
		return manual
	}

	for _, r := range candidates {
		if ruleApplies(r, in) {
			return r
		}
	}
	return nil
}

func ruleApplies(r *models.PricingRule, in EvalInput) bool {
	switch r.RuleType {
	case models.RuleBulkDiscount:
		minSlots := r.MinCampaigns
		if minSlots <= 0 {
			minSlots = 2
		}
		return in.Quantity >= minSlots
	case models.RuleLoyaltyDiscount:
		return in.LoyaltyAvailable > 0
	case models.RuleManualOverride:
		return true
	default:
		return false
	}
}
