package waitlist_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-adbooking/internal/catalog"
	"ms-adbooking/internal/errs"
	"ms-adbooking/internal/logger"
	"ms-adbooking/internal/models"
	"ms-adbooking/internal/waitlist"
)

// Mock implementations
type MockWaitlistDB struct {
	mock.Mock
}

func (m *MockWaitlistDB) CreateEntry(ctx context.Context, entry models.WaitlistEntry) (*models.WaitlistEntry, bool, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.WaitlistEntry), args.Bool(1), args.Error(2)
}

func (m *MockWaitlistDB) ActiveBySlotKey(ctx context.Context, slotKey string) ([]models.WaitlistEntry, error) {
	args := m.Called(ctx, slotKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.WaitlistEntry), args.Error(1)
}

func (m *MockWaitlistDB) GetEntriesByUser(ctx context.Context, userID string) ([]models.WaitlistEntry, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.WaitlistEntry), args.Error(1)
}

func (m *MockWaitlistDB) GetEntryByID(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WaitlistEntry), args.Error(1)
}

func (m *MockWaitlistDB) MarkNotified(ctx context.Context, id string, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockWaitlistDB) ExpireBySlotKey(ctx context.Context, slotKey string) (int64, error) {
	args := m.Called(ctx, slotKey)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWaitlistDB) Deactivate(ctx context.Context, id, userID string) (bool, error) {
	args := m.Called(ctx, id, userID)
	return args.Bool(0), args.Error(1)
}

type MockSlotChecker struct {
	mock.Mock
}

func (m *MockSlotChecker) SlotOccupied(ctx context.Context, slotKey string) (bool, error) {
	args := m.Called(ctx, slotKey)
	return args.Bool(0), args.Error(1)
}

type MockSlotResolver struct {
	mock.Mock
}

func (m *MockSlotResolver) ResolveSlot(ctx context.Context, campaignID, routeID, industryID, subcategoryID string) (*catalog.SlotRef, error) {
	args := m.Called(ctx, campaignID, routeID, industryID, subcategoryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.SlotRef), args.Error(1)
}

type MockWaitlistKafka struct {
	mock.Mock
}

func (m *MockWaitlistKafka) PublishSlotAvailable(ctx context.Context, entry models.WaitlistEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func newWaitlistService() (*waitlist.Service, *MockWaitlistDB, *MockSlotChecker, *MockSlotResolver, *MockWaitlistKafka) {
	mockDB := new(MockWaitlistDB)
	mockSlots := new(MockSlotChecker)
	mockCatalog := new(MockSlotResolver)
	mockKafka := new(MockWaitlistKafka)
	svc := waitlist.NewService(mockDB, mockSlots, mockCatalog, mockKafka, logger.NewLogger())
	return svc, mockDB, mockSlots, mockCatalog, mockKafka
}

func testSlotRef() *catalog.SlotRef {
	campaign := &models.Campaign{
		ID:         "camp-1",
		Name:       "October Mailer",
		Status:     models.CampaignBookingOpen,
		TotalSlots: 20,
	}
	route := &models.Route{ID: "route-1", ZipCode: "30301", Status: models.StatusActive}
	industry := &models.Industry{ID: "ind-1", Name: "HVAC", Status: models.StatusActive}
	return &catalog.SlotRef{
		Campaign: campaign,
		Route:    route,
		Industry: industry,
		SlotKey:  models.SlotKey(campaign.ID, route.ID, industry.ID, ""),
	}
}

// Tests start here

func TestJoinFreeSlotReturnsNotice(t *testing.T) {
	svc, mockDB, mockSlots, mockCatalog, _ := newWaitlistService()
	slot := testSlotRef()

	mockCatalog.On("ResolveSlot", mock.Anything, "camp-1", "route-1", "ind-1", "").Return(slot, nil)
	mockSlots.On("SlotOccupied", mock.Anything, slot.SlotKey).Return(false, nil)

	// Joining a free slot succeeds with a pointer back to direct booking.
	result, err := svc.Join(context.Background(), "user-1", models.WaitlistRequest{
		CampaignID: "camp-1", RouteID: "route-1", IndustryID: "ind-1",
	})
	require.NoError(t, err)
	assert.True(t, result.SlotAvailable)
	assert.Nil(t, result.Entry)
	assert.NotEmpty(t, result.Notice)
	mockDB.AssertNotCalled(t, "CreateEntry", mock.Anything, mock.Anything)
}

func TestJoinOccupiedSlotEnrols(t *testing.T) {
	svc, mockDB, mockSlots, mockCatalog, _ := newWaitlistService()
	slot := testSlotRef()

	mockCatalog.On("ResolveSlot", mock.Anything, "camp-1", "route-1", "ind-1", "").Return(slot, nil)
	mockSlots.On("SlotOccupied", mock.Anything, slot.SlotKey).Return(true, nil)
	mockDB.On("CreateEntry", mock.Anything, mock.MatchedBy(func(e models.WaitlistEntry) bool {
		return e.UserID == "user-1" &&
			e.SlotKey == slot.SlotKey &&
			e.DedupKey == models.WaitlistDedupKey("user-1", slot.SlotKey) &&
			e.Status == models.WaitlistActive
	})).Return(&models.WaitlistEntry{ID: "entry-1", UserID: "user-1", SlotKey: slot.SlotKey, Status: models.WaitlistActive}, true, nil)

	result, err := svc.Join(context.Background(), "user-1", models.WaitlistRequest{
		CampaignID: "camp-1", RouteID: "route-1", IndustryID: "ind-1",
	})
	require.NoError(t, err)
	assert.False(t, result.SlotAvailable)
	require.NotNil(t, result.Entry)
	assert.Equal(t, "entry-1", result.Entry.ID)
	assert.Empty(t, result.Notice)
	mockDB.AssertExpectations(t)
}

func TestJoinDuplicateReturnsExisting(t *testing.T) {
	svc, mockDB, mockSlots, mockCatalog, _ := newWaitlistService()
	slot := testSlotRef()

	existing := &models.WaitlistEntry{ID: "entry-1", UserID: "user-1", SlotKey: slot.SlotKey, Status: models.WaitlistActive}
	mockCatalog.On("ResolveSlot", mock.Anything, "camp-1", "route-1", "ind-1", "").Return(slot, nil)
	mockSlots.On("SlotOccupied", mock.Anything, slot.SlotKey).Return(true, nil)
	mockDB.On("CreateEntry", mock.Anything, mock.Anything).Return(existing, false, nil)

	// The duplicate join is not an error; the caller learns they were already
	// queued.
	result, err := svc.Join(context.Background(), "user-1", models.WaitlistRequest{
		CampaignID: "camp-1", RouteID: "route-1", IndustryID: "ind-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "entry-1", result.Entry.ID)
	assert.NotEmpty(t, result.Notice)
}

func TestJoinValidation(t *testing.T) {
	svc, _, _, mockCatalog, _ := newWaitlistService()
	ctx := context.Background()

	// Test case 1: missing user.
	_, err := svc.Join(ctx, "", models.WaitlistRequest{CampaignID: "camp-1"})
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	// Test case 2: closed campaign.
	closedSlot := testSlotRef()
	closedSlot.Campaign.Status = models.CampaignClosed
	mockCatalog.On("ResolveSlot", mock.Anything, "camp-1", "route-1", "ind-1", "").Return(closedSlot, nil)

	_, err = svc.Join(ctx, "user-1", models.WaitlistRequest{
		CampaignID: "camp-1", RouteID: "route-1", IndustryID: "ind-1",
	})
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestPromoteForSlotNotifiesFCFS(t *testing.T) {
	svc, mockDB, _, _, mockKafka := newWaitlistService()
	slot := testSlotRef()

	entries := []models.WaitlistEntry{
		{ID: "entry-1", UserID: "user-a", SlotKey: slot.SlotKey, Status: models.WaitlistActive},
		{ID: "entry-2", UserID: "user-b", SlotKey: slot.SlotKey, Status: models.WaitlistActive},
	}
	mockDB.On("ActiveBySlotKey", mock.Anything, slot.SlotKey).Return(entries, nil)
	mockDB.On("MarkNotified", mock.Anything, "entry-1", mock.Anything).Return(true, nil)
	mockDB.On("MarkNotified", mock.Anything, "entry-2", mock.Anything).Return(true, nil)
	mockKafka.On("PublishSlotAvailable", mock.Anything, entries[0]).Return(nil)
	mockKafka.On("PublishSlotAvailable", mock.Anything, entries[1]).Return(nil)

	// Everyone in the queue is flagged; they race for the freed slot.
	notified, err := svc.PromoteForSlot(context.Background(), slot.Campaign, slot.SlotKey)
	require.NoError(t, err)
	assert.Equal(t, 2, notified)
	mockKafka.AssertExpectations(t)
}

func TestPromoteForSlotSkipsAlreadyNotified(t *testing.T) {
	svc, mockDB, _, _, mockKafka := newWaitlistService()
	slot := testSlotRef()

	entries := []models.WaitlistEntry{
		{ID: "entry-1", UserID: "user-a", SlotKey: slot.SlotKey, Status: models.WaitlistActive},
		{ID: "entry-2", UserID: "user-b", SlotKey: slot.SlotKey, Status: models.WaitlistActive},
	}
	mockDB.On("ActiveBySlotKey", mock.Anything, slot.SlotKey).Return(entries, nil)

	// A concurrent promotion already claimed entry-1.
	mockDB.On("MarkNotified", mock.Anything, "entry-1", mock.Anything).Return(false, nil)
	mockDB.On("MarkNotified", mock.Anything, "entry-2", mock.Anything).Return(true, nil)
	mockKafka.On("PublishSlotAvailable", mock.Anything, entries[1]).Return(nil)

	notified, err := svc.PromoteForSlot(context.Background(), slot.Campaign, slot.SlotKey)
	require.NoError(t, err)
	assert.Equal(t, 1, notified)
	mockKafka.AssertNotCalled(t, "PublishSlotAvailable", mock.Anything, entries[0])
}

func TestPromoteForSlotClosedCampaignExpires(t *testing.T) {
	svc, mockDB, _, _, _ := newWaitlistService()
	slot := testSlotRef()
	slot.Campaign.Status = models.CampaignClosed

	mockDB.On("ExpireBySlotKey", mock.Anything, slot.SlotKey).Return(int64(3), nil)

	// A slot freed on a closed campaign retires its queue instead of
	// notifying anyone.
	notified, err := svc.PromoteForSlot(context.Background(), slot.Campaign, slot.SlotKey)
	require.NoError(t, err)
	assert.Equal(t, 0, notified)
	mockDB.AssertNotCalled(t, "ActiveBySlotKey", mock.Anything, mock.Anything)
}

func TestLeave(t *testing.T) {
	ctx := context.Background()

	// Test case 1: unknown entry.
	svc, mockDB, _, _, _ := newWaitlistService()
	mockDB.On("GetEntryByID", mock.Anything, "missing").Return(nil, sql.ErrNoRows)
	err := svc.Leave(ctx, "user-1", "missing")
	assert.True(t, errs.IsKind(err, errs.KindNotFound))

	// Test case 2: someone else's entry reads as not found.
	svc, mockDB, _, _, _ = newWaitlistService()
	entry := &models.WaitlistEntry{ID: "entry-1", UserID: "user-1", Status: models.WaitlistActive}
	mockDB.On("GetEntryByID", mock.Anything, "entry-1").Return(entry, nil)
	mockDB.On("Deactivate", mock.Anything, "entry-1", "user-2").Return(false, nil)
	err = svc.Leave(ctx, "user-2", "entry-1")
	assert.True(t, errs.IsKind(err, errs.KindNotFound))

	// Test case 3: the owner leaves cleanly.
	svc, mockDB, _, _, _ = newWaitlistService()
	mockDB.On("GetEntryByID", mock.Anything, "entry-1").Return(entry, nil)
	mockDB.On("Deactivate", mock.Anything, "entry-1", "user-1").Return(true, nil)
	assert.NoError(t, svc.Leave(ctx, "user-1", "entry-1"))
}
