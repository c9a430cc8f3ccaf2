package db_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-adbooking/internal/booking/db"
	"ms-adbooking/internal/database"
	"ms-adbooking/internal/models"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	// Connect to an in-memory SQLite DB for testing
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	// A second pooled connection would see its own empty in-memory database
	sqldb.SetMaxOpenConns(1)

	// Create a Bun DB instance
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	// Create the full schema, including the partial unique indexes the
	// exclusivity rules depend on
	if err := database.CreateSchema(context.Background(), bunDB); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func seedCampaign(t *testing.T, bunDB *bun.DB, totalSlots int) *models.Campaign {
	t.Helper()
	campaign := &models.Campaign{
		ID:         uuid.New().String(),
		Name:       "Fall Mailer",
		MailDate:   time.Now().AddDate(0, 1, 0),
		Status:     models.CampaignBookingOpen,
		TotalSlots: totalSlots,
		CreatedAt:  time.Now(),
	}
	_, err := bunDB.NewInsert().Model(campaign).Exec(context.Background())
	require.NoError(t, err)
	return campaign
}

func testBooking(campaignID, routeID, userID string) models.Booking {
	return models.Booking{
		ID:             uuid.New().String(),
		Reference:      "ADP-TEST-" + uuid.New().String()[:6],
		UserID:         userID,
		CampaignID:     campaignID,
		RouteID:        routeID,
		IndustryID:     "ind-hvac",
		SlotKey:        models.SlotKey(campaignID, routeID, "ind-hvac", ""),
		Quantity:       1,
		AmountCents:    60000,
		BaseCents:      60000,
		PaymentStatus:  models.PaymentPending,
		Status:         models.BookingConfirmed,
		ApprovalStatus: models.ApprovalPending,
		ArtworkStatus:  models.ArtworkPendingUpload,
		CreatedAt:      time.Now(),
	}
}

func seedSession(t *testing.T, bunDB *bun.DB, bookingID string) models.PaymentSession {
	t.Helper()
	session := models.PaymentSession{
		SessionID:   "cs_test_" + uuid.New().String(),
		BookingID:   bookingID,
		AmountCents: 60000,
		Status:      models.SessionCreated,
		CreatedAt:   time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&session).Exec(context.Background())
	require.NoError(t, err)
	return session
}

func TestSlotExclusivity(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	campaign := seedCampaign(t, bunDB, 10)

	// Test case 1: the first booking claims the slot key.
	first := testBooking(campaign.ID, "route-1", "user-a")
	require.NoError(t, bookingDB.CreateBooking(ctx, first, nil))

	occupied, err := bookingDB.SlotOccupied(ctx, first.SlotKey)
	require.NoError(t, err)
	assert.True(t, occupied)

	// Test case 2: a second booking on the same key loses to the unique index.
	second := testBooking(campaign.ID, "route-1", "user-b")
	err = bookingDB.CreateBooking(ctx, second, nil)
	assert.ErrorIs(t, err, db.ErrSlotTaken)

	// Test case 3: cancelling the first frees the key for rebooking.
	_, err = bookingDB.CancelBooking(ctx, first.ID, models.RefundNone, nil, time.Now())
	require.NoError(t, err)

	require.NoError(t, bookingDB.CreateBooking(ctx, second, nil))
	occupied, err = bookingDB.SlotOccupied(ctx, second.SlotKey)
	require.NoError(t, err)
	assert.True(t, occupied)
}

func TestSlotExclusivityConcurrent(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	campaign := seedCampaign(t, bunDB, 10)

	// Test case: two racing creates on one key, exactly one wins.
	results := make(chan error, 2)
	for _, userID := range []string{"user-a", "user-b"} {
		go func(userID string) {
			results <- bookingDB.CreateBooking(ctx, testBooking(campaign.ID, "route-1", userID), nil)
		}(userID)
	}

	var wins, conflicts int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			wins++
		case errors.Is(err, db.ErrSlotTaken):
			conflicts++
		default:
			t.Fatalf("unexpected create error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
}

func TestCreateBookingConsumesRuleUsage(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	campaign := seedCampaign(t, bunDB, 10)

	limit := 1
	rule := models.PricingRule{
		ID:         "rule-limited",
		RuleType:   models.RuleBulkDiscount,
		ValueCents: 30000,
		Priority:   10,
		UsageLimit: &limit,
		Status:     models.RuleActive,
		CreatedAt:  time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&rule).Exec(ctx)
	require.NoError(t, err)

	// Test case 1: the create transaction burns one usage.
	first := testBooking(campaign.ID, "route-1", "user-a")
	require.NoError(t, bookingDB.CreateBooking(ctx, first, &db.RuleConsumption{RuleID: rule.ID}))

	var stored models.PricingRule
	require.NoError(t, bunDB.NewSelect().Model(&stored).Where("id = ?", rule.ID).Scan(ctx))
	assert.Equal(t, 1, stored.UsageCount)

	// Test case 2: the exhausted rule fails the whole transaction, booking
	// included.
	second := testBooking(campaign.ID, "route-2", "user-b")
	err = bookingDB.CreateBooking(ctx, second, &db.RuleConsumption{RuleID: rule.ID})
	assert.ErrorIs(t, err, db.ErrRuleExhausted)

	_, err = bookingDB.GetBookingByID(ctx, second.ID)
	assert.Error(t, err)
}

func TestCreateBookingConsumesLoyaltyCredit(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	campaign := seedCampaign(t, bunDB, 10)

	counter := models.LoyaltyCounter{
		UserID:             "user-a",
		SlotsEarned:        5,
		DiscountsAvailable: 1,
		Year:               time.Now().Year(),
	}
	_, err := bunDB.NewInsert().Model(&counter).Exec(ctx)
	require.NoError(t, err)

	// Test case 1: one credit burns with the booking.
	first := testBooking(campaign.ID, "route-1", "user-a")
	require.NoError(t, bookingDB.CreateBooking(ctx, first, &db.RuleConsumption{LoyaltyUserID: "user-a"}))

	stored, err := bookingDB.GetLoyaltyCounter(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.DiscountsAvailable)

	// Test case 2: no credit left.
	second := testBooking(campaign.ID, "route-2", "user-a")
	err = bookingDB.CreateBooking(ctx, second, &db.RuleConsumption{LoyaltyUserID: "user-a"})
	assert.ErrorIs(t, err, db.ErrNoLoyaltyCredit)
}

func TestCreateBookingResetsStaleLoyalty(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	campaign := seedCampaign(t, bunDB, 10)

	// Credit left over from last year must not be spendable.
	counter := models.LoyaltyCounter{
		UserID:             "user-a",
		SlotsEarned:        10,
		DiscountsAvailable: 2,
		Year:               time.Now().Year() - 1,
	}
	_, err := bunDB.NewInsert().Model(&counter).Exec(ctx)
	require.NoError(t, err)

	booking := testBooking(campaign.ID, "route-1", "user-a")
	err = bookingDB.CreateBooking(ctx, booking, &db.RuleConsumption{LoyaltyUserID: "user-a"})
	assert.ErrorIs(t, err, db.ErrNoLoyaltyCredit)

	stored, err := bookingDB.GetLoyaltyCounter(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.DiscountsAvailable)
	assert.Equal(t, time.Now().Year(), stored.Year)
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	campaign := seedCampaign(t, bunDB, 10)

	booking := testBooking(campaign.ID, "route-1", "user-a")
	booking.Quantity = 2
	booking.CountsTowardLoyalty = true
	require.NoError(t, bookingDB.CreateBooking(ctx, booking, nil))
	session := seedSession(t, bunDB, booking.ID)

	// Test case 1: the first confirmation claims capacity and earns loyalty.
	result, err := bookingDB.ConfirmPayment(ctx, session.SessionID, "pi_123", 5)
	require.NoError(t, err)
	assert.False(t, result.AlreadyApplied)
	assert.Equal(t, models.PaymentPaid, result.Booking.PaymentStatus)

	var storedCampaign models.Campaign
	require.NoError(t, bunDB.NewSelect().Model(&storedCampaign).Where("id = ?", campaign.ID).Scan(ctx))
	assert.Equal(t, 2, storedCampaign.BookedSlots)

	counter, err := bookingDB.GetLoyaltyCounter(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, 2, counter.SlotsEarned)
	assert.Equal(t, 0, counter.DiscountsAvailable)

	storedSession, err := bookingDB.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, storedSession.Status)
	assert.Equal(t, "pi_123", storedSession.PaymentIntentID)

	// Test case 2: the replayed webhook changes nothing.
	result, err = bookingDB.ConfirmPayment(ctx, session.SessionID, "pi_123", 5)
	require.NoError(t, err)
	assert.True(t, result.AlreadyApplied)

	require.NoError(t, bunDB.NewSelect().Model(&storedCampaign).Where("id = ?", campaign.ID).Scan(ctx))
	assert.Equal(t, 2, storedCampaign.BookedSlots)

	counter, err = bookingDB.GetLoyaltyCounter(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, 2, counter.SlotsEarned)
}

func TestConfirmPaymentCapacityGuard(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	campaign := seedCampaign(t, bunDB, 1)

	booking := testBooking(campaign.ID, "route-1", "user-a")
	booking.Quantity = 2
	require.NoError(t, bookingDB.CreateBooking(ctx, booking, nil))
	session := seedSession(t, bunDB, booking.ID)

	_, err := bookingDB.ConfirmPayment(ctx, session.SessionID, "pi_123", 5)
	assert.ErrorIs(t, err, db.ErrCampaignFull)

	// The failed confirmation leaves the booking unpaid.
	stored, err := bookingDB.GetBookingByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
}

func TestConfirmPaymentCancelledBooking(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	campaign := seedCampaign(t, bunDB, 10)

	booking := testBooking(campaign.ID, "route-1", "user-a")
	require.NoError(t, bookingDB.CreateBooking(ctx, booking, nil))
	_, err := bookingDB.CancelBooking(ctx, booking.ID, models.RefundNone, nil, time.Now())
	require.NoError(t, err)

	session := seedSession(t, bunDB, booking.ID)
	_, err = bookingDB.ConfirmPayment(ctx, session.SessionID, "pi_123", 5)
	assert.ErrorIs(t, err, db.ErrBookingCancelled)
}

func TestLoyaltyEarnCrossings(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	campaign := seedCampaign(t, bunDB, 20)

	confirm := func(route string, quantity int) {
		t.Helper()
		booking := testBooking(campaign.ID, route, "user-a")
		booking.Quantity = quantity
		booking.CountsTowardLoyalty = true
		require.NoError(t, bookingDB.CreateBooking(ctx, booking, nil))
		session := seedSession(t, bunDB, booking.ID)
		_, err := bookingDB.ConfirmPayment(ctx, session.SessionID, "pi_"+route, 5)
		require.NoError(t, err)
	}

	// 3 slots: below the threshold, nothing earned yet.
	confirm("route-1", 3)
	counter, err := bookingDB.GetLoyaltyCounter(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, 3, counter.SlotsEarned)
	assert.Equal(t, 0, counter.DiscountsAvailable)

	// +2 slots crosses 5: one discount.
	confirm("route-2", 2)
	counter, err = bookingDB.GetLoyaltyCounter(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, 5, counter.SlotsEarned)
	assert.Equal(t, 1, counter.DiscountsAvailable)

	// +6 slots crosses 10 once more: total two discounts.
	confirm("route-3", 6)
	counter, err = bookingDB.GetLoyaltyCounter(ctx, "user-a")
	require.NoError(t, err)
	assert.Equal(t, 11, counter.SlotsEarned)
	assert.Equal(t, 2, counter.DiscountsAvailable)
}

func TestMarkPaymentFailed(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	campaign := seedCampaign(t, bunDB, 10)

	// Test case 1: a pending booking flips to failed with its session.
	booking := testBooking(campaign.ID, "route-1", "user-a")
	require.NoError(t, bookingDB.CreateBooking(ctx, booking, nil))
	session := seedSession(t, bunDB, booking.ID)

	updated, err := bookingDB.MarkPaymentFailed(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, updated.PaymentStatus)

	storedSession, err := bookingDB.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, storedSession.Status)

	// Test case 2: a paid booking is left untouched by a late expiry.
	paid := testBooking(campaign.ID, "route-2", "user-b")
	require.NoError(t, bookingDB.CreateBooking(ctx, paid, nil))
	paySession := seedSession(t, bunDB, paid.ID)
	_, err = bookingDB.ConfirmPayment(ctx, paySession.SessionID, "pi_abc", 5)
	require.NoError(t, err)

	staleSession := seedSession(t, bunDB, paid.ID)
	updated, err = bookingDB.MarkPaymentFailed(ctx, staleSession.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, updated.PaymentStatus)
}

func TestCancelBookingReleasesCapacity(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	campaign := seedCampaign(t, bunDB, 10)

	booking := testBooking(campaign.ID, "route-1", "user-a")
	booking.Quantity = 2
	require.NoError(t, bookingDB.CreateBooking(ctx, booking, nil))
	session := seedSession(t, bunDB, booking.ID)
	_, err := bookingDB.ConfirmPayment(ctx, session.SessionID, "pi_123", 5)
	require.NoError(t, err)

	// Test case 1: cancelling a paid booking records the refund and frees the
	// claimed slots.
	refund := int64(120000)
	now := time.Now()
	cancelled, err := bookingDB.CancelBooking(ctx, booking.ID, models.RefundProcessed, &refund, now)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
	assert.Equal(t, models.RefundProcessed, cancelled.RefundStatus)
	require.NotNil(t, cancelled.RefundAmountCents)
	assert.Equal(t, refund, *cancelled.RefundAmountCents)
	require.NotNil(t, cancelled.CancellationDate)

	var storedCampaign models.Campaign
	require.NoError(t, bunDB.NewSelect().Model(&storedCampaign).Where("id = ?", campaign.ID).Scan(ctx))
	assert.Equal(t, 0, storedCampaign.BookedSlots)

	// Test case 2: the second cancel loses the status guard.
	_, err = bookingDB.CancelBooking(ctx, booking.ID, models.RefundNone, nil, time.Now())
	assert.ErrorIs(t, err, db.ErrBookingCancelled)
}

func TestCancelBookingUnpaidKeepsCapacity(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	campaign := seedCampaign(t, bunDB, 10)

	// An unpaid booking never claimed capacity, so cancelling must not release
	// anyone else's.
	other := testBooking(campaign.ID, "route-1", "user-b")
	require.NoError(t, bookingDB.CreateBooking(ctx, other, nil))
	otherSession := seedSession(t, bunDB, other.ID)
	_, err := bookingDB.ConfirmPayment(ctx, otherSession.SessionID, "pi_keep", 5)
	require.NoError(t, err)

	unpaid := testBooking(campaign.ID, "route-2", "user-a")
	require.NoError(t, bookingDB.CreateBooking(ctx, unpaid, nil))

	_, err = bookingDB.CancelBooking(ctx, unpaid.ID, models.RefundNone, nil, time.Now())
	require.NoError(t, err)

	var storedCampaign models.Campaign
	require.NoError(t, bunDB.NewSelect().Model(&storedCampaign).Where("id = ?", campaign.ID).Scan(ctx))
	assert.Equal(t, 1, storedCampaign.BookedSlots)
}

func TestCancelBookingFloorsAtZero(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	campaign := seedCampaign(t, bunDB, 10)

	booking := testBooking(campaign.ID, "route-1", "user-a")
	booking.Quantity = 3
	require.NoError(t, bookingDB.CreateBooking(ctx, booking, nil))
	session := seedSession(t, bunDB, booking.ID)
	_, err := bookingDB.ConfirmPayment(ctx, session.SessionID, "pi_123", 5)
	require.NoError(t, err)

	// Force drifted accounting: fewer slots recorded than the booking holds.
	_, err = bunDB.NewUpdate().
		Model((*models.Campaign)(nil)).
		Set("booked_slots = 1").
		Where("id = ?", campaign.ID).
		Exec(ctx)
	require.NoError(t, err)

	_, err = bookingDB.CancelBooking(ctx, booking.ID, models.RefundProcessed, nil, time.Now())
	require.NoError(t, err)

	var storedCampaign models.Campaign
	require.NoError(t, bunDB.NewSelect().Model(&storedCampaign).Where("id = ?", campaign.ID).Scan(ctx))
	assert.Equal(t, 0, storedCampaign.BookedSlots)
}

func TestApprovalTransitionGuard(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	campaign := seedCampaign(t, bunDB, 10)

	booking := testBooking(campaign.ID, "route-1", "user-a")
	require.NoError(t, bookingDB.CreateBooking(ctx, booking, nil))

	// Test case 1: pending -> approved moves exactly once.
	ok, err := bookingDB.TransitionApproval(ctx, booking.ID, models.ApprovalPending, models.ApprovalApproved)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = bookingDB.TransitionApproval(ctx, booking.ID, models.ApprovalPending, models.ApprovalRejected)
	require.NoError(t, err)
	assert.False(t, ok)

	// Test case 2: cancelled bookings never transition.
	other := testBooking(campaign.ID, "route-2", "user-b")
	require.NoError(t, bookingDB.CreateBooking(ctx, other, nil))
	_, err = bookingDB.CancelBooking(ctx, other.ID, models.RefundNone, nil, time.Now())
	require.NoError(t, err)

	ok, err = bookingDB.TransitionApproval(ctx, other.ID, models.ApprovalPending, models.ApprovalApproved)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArtworkLifecycle(t *testing.T) {
	bookingDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	campaign := seedCampaign(t, bunDB, 10)

	booking := testBooking(campaign.ID, "route-1", "user-a")
	require.NoError(t, bookingDB.CreateBooking(ctx, booking, nil))

	// Test case 1: upload moves pending_upload into review.
	ok, err := bookingDB.SubmitArtwork(ctx, booking.ID, "artwork/one.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = bookingDB.SubmitArtwork(ctx, booking.ID, "artwork/two.pdf")
	require.NoError(t, err)
	assert.False(t, ok, "uploads are locked while under review")

	// Test case 2: rejection reopens the upload.
	ok, err = bookingDB.ReviewArtwork(ctx, booking.ID, false, "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = bookingDB.SubmitArtwork(ctx, booking.ID, "artwork/two.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	// Test case 3: approval records the proof and closes the loop.
	ok, err = bookingDB.ReviewArtwork(ctx, booking.ID, true, "proofs/final.png")
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := bookingDB.GetBookingByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ArtworkApproved, stored.ArtworkStatus)
	assert.Equal(t, "proofs/final.png", stored.ProofPath)
	assert.Equal(t, "artwork/two.pdf", stored.ArtworkPath)

	ok, err = bookingDB.ReviewArtwork(ctx, booking.ID, true, "proofs/again.png")
	require.NoError(t, err)
	assert.False(t, ok)
}
