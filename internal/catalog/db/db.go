package db

import (
	"context"

	"github.com/uptrace/bun"

	"ms-adbooking/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- CAMPAIGNS ----------------

func (d *DB) GetCampaign(ctx context.Context, id string) (*models.Campaign, error) {
	var campaign models.Campaign
	err := d.Bun.NewSelect().
		Model(&campaign).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (d *DB) ListCampaigns(ctx context.Context, status models.CampaignStatus) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	q := d.Bun.NewSelect().
		Model(&campaigns).
		Order("mail_date ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return campaigns, nil
}

// ---------------- ROUTES ----------------

func (d *DB) GetRoute(ctx context.Context, id string) (*models.Route, error) {
	var route models.Route
	err := d.Bun.NewSelect().
		Model(&route).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &route, nil
}

func (d *DB) ListRoutes(ctx context.Context) ([]models.Route, error) {
	var routes []models.Route
	err := d.Bun.NewSelect().
		Model(&routes).
		Order("zip_code ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return routes, nil
}

// ---------------- INDUSTRIES ----------------

func (d *DB) GetIndustry(ctx context.Context, id string) (*models.Industry, error) {
	var industry models.Industry
	err := d.Bun.NewSelect().
		Model(&industry).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &industry, nil
}

func (d *DB) ListIndustries(ctx context.Context) ([]models.Industry, error) {
	var industries []models.Industry
	err := d.Bun.NewSelect().
		Model(&industries).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return industries, nil
}

func (d *DB) GetSubcategory(ctx context.Context, id string) (*models.IndustrySubcategory, error) {
	var sub models.IndustrySubcategory
	err := d.Bun.NewSelect().
		Model(&sub).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (d *DB) ListSubcategories(ctx context.Context, industryID string) ([]models.IndustrySubcategory, error) {
	var subs []models.IndustrySubcategory
	err := d.Bun.NewSelect().
		Model(&subs).
		Where("industry_id = ?", industryID).
		Order("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return subs, nil
}

// ---------------- CAMPAIGN SCOPE ----------------

func (d *DB) CampaignAllowsRoute(ctx context.Context, campaignID, routeID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.CampaignRoute)(nil)).
		Where("campaign_id = ? AND route_id = ?", campaignID, routeID).
		Exists(ctx)
}

func (d *DB) CampaignAllowsIndustry(ctx context.Context, campaignID, industryID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.CampaignIndustry)(nil)).
		Where("campaign_id = ? AND industry_id = ?", campaignID, industryID).
		Exists(ctx)
}
