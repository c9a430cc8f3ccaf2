package catalog

import (
	"context"
	"database/sql"
	"errors"

	"ms-adbooking/internal/errs"
	"ms-adbooking/internal/logger"
	"ms-adbooking/internal/models"
)

type DBLayer interface {
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
	ListCampaigns(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error)
	GetRoute(ctx context.Context, id string) (*models.Route, error)
	ListRoutes(ctx context.Context) ([]models.Route, error)
	GetIndustry(ctx context.Context, id string) (*models.Industry, error)
	ListIndustries(ctx context.Context) ([]models.Industry, error)
	GetSubcategory(ctx context.Context, id string) (*models.IndustrySubcategory, error)
	ListSubcategories(ctx context.Context, industryID string) ([]models.IndustrySubcategory, error)
	CampaignAllowsRoute(ctx context.Context, campaignID, routeID string) (bool, error)
	CampaignAllowsIndustry(ctx context.Context, campaignID, industryID string) (bool, error)
}

// Service is the read-only catalog lookup used by booking, pricing and
// waitlist. Campaign rows themselves are mutated only by the booking
// lifecycle (booked_slots) and by admin tooling outside this service.
type Service struct {
	DB     DBLayer
	logger *logger.Logger
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{DB: db, logger: log}
}

// SlotRef is a validated reference to one purchasable slot.
type SlotRef struct {
	Campaign    *models.Campaign
	Route       *models.Route
	Industry    *models.Industry
	Subcategory *models.IndustrySubcategory
	SlotKey     string
}

func (s *Service) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	campaign, err := s.DB.GetCampaign(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("campaign %s not found", id)
		}
		return nil, errs.Internal("failed to load campaign", err)
	}
	return campaign, nil
}

func (s *Service) ListCampaigns(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	campaigns, err := s.DB.ListCampaigns(ctx, status)
	if err != nil {
		return nil, errs.Internal("failed to list campaigns", err)
	}
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}
	return campaigns, nil
}

func (s *Service) GetRoute(ctx context.Context, id string) (*models.Route, error) {
	route, err := s.DB.GetRoute(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("route %s not found", id)
		}
		return nil, errs.Internal("failed to load route", err)
	}
	return route, nil
}

func (s *Service) ListRoutes(ctx context.Context) ([]models.Route, error) {
	routes, err := s.DB.ListRoutes(ctx)
	if err != nil {
		return nil, errs.Internal("failed to list routes", err)
	}
	if routes == nil {
		routes = []models.Route{}
	}
	return routes, nil
}

func (s *Service) GetIndustry(ctx context.Context, id string) (*models.Industry, error) {
	industry, err := s.DB.GetIndustry(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("industry %s not found", id)
		}
		return nil, errs.Internal("failed to load industry", err)
	}
	return industry, nil
}

func (s *Service) GetSubcategory(ctx context.Context, id string) (*models.IndustrySubcategory, error) {
	sub, err := s.DB.GetSubcategory(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("subcategory %s not found", id)
		}
		return nil, errs.Internal("failed to load subcategory", err)
	}
	return sub, nil
}

// IndustryView bundles an industry with its selectable subcategories.
type IndustryView struct {
	models.Industry
	Subcategories []models.IndustrySubcategory `json:"subcategories"`
}

func (s *Service) ListIndustriesWithSubcategories(ctx context.Context) ([]IndustryView, error) {
	industries, err := s.DB.ListIndustries(ctx)
	if err != nil {
		return nil, errs.Internal("failed to list industries", err)
	}

	views := make([]IndustryView, 0, len(industries))
	for _, industry := range industries {
		subs, err := s.DB.ListSubcategories(ctx, industry.ID)
		if err != nil {
			return nil, errs.Internal("failed to list subcategories", err)
		}
		if subs == nil {
			subs = []models.IndustrySubcategory{}
		}
		views = append(views, IndustryView{Industry: industry, Subcategories: subs})
	}
	return views, nil
}

// ResolveSlot validates that the reference points at known, active catalog
// entries offered by the campaign, and returns the resolved entities with
// the exclusivity key. The "Other" sentinel takes no subcategory; its
// free-text description never narrows the key.
func (s *Service) ResolveSlot(ctx context.Context, campaignID, routeID, industryID, subcategoryID string) (*SlotRef, error) {
	if campaignID == "" || routeID == "" || industryID == "" {
		return nil, errs.Validation("campaign_id, route_id and industry_id are required")
	}

	campaign, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	route, err := s.GetRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	if route.Status != models.StatusActive {
		return nil, errs.Validation("route %s is inactive", routeID)
	}

	industry, err := s.GetIndustry(ctx, industryID)
	if err != nil {
		return nil, err
	}
	if industry.Status != models.StatusActive {
		return nil, errs.Validation("industry %s is inactive", industryID)
	}

	if ok, err := s.DB.CampaignAllowsRoute(ctx, campaignID, routeID); err != nil {
		return nil, errs.Internal("failed to check campaign routes", err)
	} else if !ok {
		return nil, errs.Validation("route %s is not offered in campaign %s", routeID, campaignID)
	}

	if ok, err := s.DB.CampaignAllowsIndustry(ctx, campaignID, industryID); err != nil {
		return nil, errs.Internal("failed to check campaign industries", err)
	} else if !ok {
		return nil, errs.Validation("industry %s is not offered in campaign %s", industryID, campaignID)
	}

	ref := &SlotRef{Campaign: campaign, Route: route, Industry: industry}

	if industry.IsOther() {
		if subcategoryID != "" {
			return nil, errs.Validation("industry %q takes a business description, not a subcategory", models.OtherIndustryName)
		}
	} else if subcategoryID != "" {
		sub, err := s.GetSubcategory(ctx, subcategoryID)
		if err != nil {
			return nil, err
		}
		if sub.IndustryID != industryID {
			return nil, errs.Validation("subcategory %s does not belong to industry %s", subcategoryID, industryID)
		}
		if sub.Status != models.StatusActive {
			return nil, errs.Validation("subcategory %s is inactive", subcategoryID)
		}
		ref.Subcategory = sub
	}

	subKey := ""
	if ref.Subcategory != nil {
		subKey = ref.Subcategory.ID
	}
	ref.SlotKey = models.SlotKey(campaignID, routeID, industryID, subKey)

	return ref, nil
}

func (s *Service) Occupancy(ctx context.Context, campaignID string) (*models.CampaignOccupancy, error) {
	campaign, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return &models.CampaignOccupancy{
		CampaignID:     campaign.ID,
		TotalSlots:     campaign.TotalSlots,
		BookedSlots:    campaign.BookedSlots,
		RemainingSlots: campaign.TotalSlots - campaign.BookedSlots,
	}, nil
}
