package catalog_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-adbooking/internal/catalog"
	catalogdb "ms-adbooking/internal/catalog/db"
	"ms-adbooking/internal/database"
	"ms-adbooking/internal/errs"
	"ms-adbooking/internal/logger"
	"ms-adbooking/internal/models"
)

func setupCatalog(t *testing.T) (*catalog.Service, *bun.DB) {
	// Connect to an in-memory SQLite DB for testing
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	if err := database.CreateSchema(context.Background(), bunDB); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	svc := catalog.NewService(&catalogdb.DB{Bun: bunDB}, logger.NewLogger())
	return svc, bunDB
}

// seedCatalog loads a small but complete fixture: one open campaign offering
// two routes and two industries, a route and an industry outside the
// campaign, and subcategories in various states.
func seedCatalog(t *testing.T, bunDB *bun.DB) {
	t.Helper()
	ctx := context.Background()

	campaign := &models.Campaign{
		ID:         "camp-1",
		Name:       "October Mailer",
		MailDate:   time.Now().AddDate(0, 1, 0),
		Status:     models.CampaignBookingOpen,
		TotalSlots: 20,
		CreatedAt:  time.Now(),
	}
	_, err := bunDB.NewInsert().Model(campaign).Exec(ctx)
	require.NoError(t, err)

	routes := []models.Route{
		{ID: "route-1", ZipCode: "30301", HouseholdCount: 8200, Status: models.StatusActive},
		{ID: "route-dead", ZipCode: "30302", HouseholdCount: 5400, Status: models.StatusInactive},
		{ID: "route-elsewhere", ZipCode: "30303", HouseholdCount: 9100, Status: models.StatusActive},
	}
	_, err = bunDB.NewInsert().Model(&routes).Exec(ctx)
	require.NoError(t, err)

	industries := []models.Industry{
		{ID: "ind-hvac", Name: "HVAC", Status: models.StatusActive},
		{ID: "ind-other", Name: "Other", Status: models.StatusActive},
		{ID: "ind-roofing", Name: "Roofing", Status: models.StatusActive},
	}
	_, err = bunDB.NewInsert().Model(&industries).Exec(ctx)
	require.NoError(t, err)

	subcategories := []models.IndustrySubcategory{
		{ID: "sub-heating", IndustryID: "ind-hvac", Name: "Heating", Status: models.StatusActive},
		{ID: "sub-cooling", IndustryID: "ind-hvac", Name: "Air Conditioning", Status: models.StatusActive},
		{ID: "sub-ducts", IndustryID: "ind-hvac", Name: "Duct Cleaning", Status: models.StatusInactive},
		{ID: "sub-shingles", IndustryID: "ind-roofing", Name: "Shingle Repair", Status: models.StatusActive},
	}
	_, err = bunDB.NewInsert().Model(&subcategories).Exec(ctx)
	require.NoError(t, err)

	campaignRoutes := []models.CampaignRoute{
		{CampaignID: "camp-1", RouteID: "route-1"},
		{CampaignID: "camp-1", RouteID: "route-dead"},
	}
	_, err = bunDB.NewInsert().Model(&campaignRoutes).Exec(ctx)
	require.NoError(t, err)

	campaignIndustries := []models.CampaignIndustry{
		{CampaignID: "camp-1", IndustryID: "ind-hvac"},
		{CampaignID: "camp-1", IndustryID: "ind-other"},
	}
	_, err = bunDB.NewInsert().Model(&campaignIndustries).Exec(ctx)
	require.NoError(t, err)
}

func TestResolveSlot(t *testing.T) {
	svc, bunDB := setupCatalog(t)
	defer bunDB.Close()
	seedCatalog(t, bunDB)
	ctx := context.Background()

	// Test case 1: full reference with a subcategory.
	ref, err := svc.ResolveSlot(ctx, "camp-1", "route-1", "ind-hvac", "sub-heating")
	require.NoError(t, err)
	assert.Equal(t, "camp-1", ref.Campaign.ID)
	assert.Equal(t, "route-1", ref.Route.ID)
	assert.Equal(t, "ind-hvac", ref.Industry.ID)
	require.NotNil(t, ref.Subcategory)
	assert.Equal(t, "sub-heating", ref.Subcategory.ID)
	assert.Equal(t, models.SlotKey("camp-1", "route-1", "ind-hvac", "sub-heating"), ref.SlotKey)

	// Test case 2: no subcategory narrows the key to the whole industry.
	ref, err = svc.ResolveSlot(ctx, "camp-1", "route-1", "ind-hvac", "")
	require.NoError(t, err)
	assert.Nil(t, ref.Subcategory)
	assert.Equal(t, models.SlotKey("camp-1", "route-1", "ind-hvac", ""), ref.SlotKey)

	// Test case 3: the two keys differ, so they are separate slots.
	withSub := models.SlotKey("camp-1", "route-1", "ind-hvac", "sub-heating")
	withoutSub := models.SlotKey("camp-1", "route-1", "ind-hvac", "")
	assert.NotEqual(t, withSub, withoutSub)
}

func TestResolveSlotOtherIndustry(t *testing.T) {
	svc, bunDB := setupCatalog(t)
	defer bunDB.Close()
	seedCatalog(t, bunDB)
	ctx := context.Background()

	// "Other" resolves without a subcategory.
	ref, err := svc.ResolveSlot(ctx, "camp-1", "route-1", "ind-other", "")
	require.NoError(t, err)
	assert.True(t, ref.Industry.IsOther())
	assert.Nil(t, ref.Subcategory)
	assert.Equal(t, models.SlotKey("camp-1", "route-1", "ind-other", ""), ref.SlotKey)

	// Passing a subcategory with "Other" is rejected.
	_, err = svc.ResolveSlot(ctx, "camp-1", "route-1", "ind-other", "sub-heating")
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestResolveSlotRejections(t *testing.T) {
	svc, bunDB := setupCatalog(t)
	defer bunDB.Close()
	seedCatalog(t, bunDB)
	ctx := context.Background()

	tests := []struct {
		name          string
		campaignID    string
		routeID       string
		industryID    string
		subcategoryID string
		wantKind      errs.Kind
	}{
		{"missing ids", "", "route-1", "ind-hvac", "", errs.KindValidation},
		{"unknown campaign", "camp-nope", "route-1", "ind-hvac", "", errs.KindNotFound},
		{"unknown route", "camp-1", "route-nope", "ind-hvac", "", errs.KindNotFound},
		{"inactive route", "camp-1", "route-dead", "ind-hvac", "", errs.KindValidation},
		{"route outside campaign", "camp-1", "route-elsewhere", "ind-hvac", "", errs.KindValidation},
		{"industry outside campaign", "camp-1", "route-1", "ind-roofing", "", errs.KindValidation},
		{"unknown subcategory", "camp-1", "route-1", "ind-hvac", "sub-nope", errs.KindNotFound},
		{"subcategory of wrong industry", "camp-1", "route-1", "ind-hvac", "sub-shingles", errs.KindValidation},
		{"inactive subcategory", "camp-1", "route-1", "ind-hvac", "sub-ducts", errs.KindValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ResolveSlot(ctx, tc.campaignID, tc.routeID, tc.industryID, tc.subcategoryID)
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, tc.wantKind), "expected %s, got: %v", tc.wantKind, err)
		})
	}
}

func TestListIndustriesWithSubcategories(t *testing.T) {
	svc, bunDB := setupCatalog(t)
	defer bunDB.Close()
	seedCatalog(t, bunDB)

	views, err := svc.ListIndustriesWithSubcategories(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 3)

	// Alphabetical by industry name: HVAC, Other, Roofing.
	assert.Equal(t, "HVAC", views[0].Name)
	assert.Len(t, views[0].Subcategories, 3)
	// Subcategories come back name-sorted too.
	assert.Equal(t, "Air Conditioning", views[0].Subcategories[0].Name)

	assert.Equal(t, "Other", views[1].Name)
	assert.Empty(t, views[1].Subcategories)
}

func TestOccupancy(t *testing.T) {
	svc, bunDB := setupCatalog(t)
	defer bunDB.Close()
	seedCatalog(t, bunDB)
	ctx := context.Background()

	_, err := bunDB.NewUpdate().
		Model((*models.Campaign)(nil)).
		Set("booked_slots = ?", 7).
		Where("id = ?", "camp-1").
		Exec(ctx)
	require.NoError(t, err)

	occ, err := svc.Occupancy(ctx, "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 20, occ.TotalSlots)
	assert.Equal(t, 7, occ.BookedSlots)
	assert.Equal(t, 13, occ.RemainingSlots)

	_, err = svc.Occupancy(ctx, "camp-nope")
	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}

func TestListCampaignsFilter(t *testing.T) {
	svc, bunDB := setupCatalog(t)
	defer bunDB.Close()
	ctx := context.Background()

	campaigns := []models.Campaign{
		{ID: "camp-dec", Name: "December", MailDate: time.Now().AddDate(0, 3, 0), Status: models.CampaignBookingOpen, TotalSlots: 20, CreatedAt: time.Now()},
		{ID: "camp-oct", Name: "October", MailDate: time.Now().AddDate(0, 1, 0), Status: models.CampaignBookingOpen, TotalSlots: 20, CreatedAt: time.Now()},
		{ID: "camp-past", Name: "August", MailDate: time.Now().AddDate(0, -1, 0), Status: models.CampaignClosed, TotalSlots: 20, CreatedAt: time.Now()},
	}
	_, err := bunDB.NewInsert().Model(&campaigns).Exec(ctx)
	require.NoError(t, err)

	// Filtered to open campaigns, soonest mail date first.
	open, err := svc.ListCampaigns(ctx, models.CampaignBookingOpen)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "camp-oct", open[0].ID)
	assert.Equal(t, "camp-dec", open[1].ID)

	// No filter returns everything.
	all, err := svc.ListCampaigns(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
