package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-adbooking/internal/artwork"
	bookingdb "ms-adbooking/internal/booking/db"
	"ms-adbooking/internal/catalog"
	"ms-adbooking/internal/errs"
	"ms-adbooking/internal/logger"
	"ms-adbooking/internal/metrics"
	"ms-adbooking/internal/models"
	"ms-adbooking/internal/utils"
)

const maxBusinessDescriptionLen = 500

type DBLayer interface {
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetBookingsByUser(ctx context.Context, userID string) ([]models.Booking, error)
	SlotOccupied(ctx context.Context, slotKey string) (bool, error)
	CreateBooking(ctx context.Context, booking models.Booking, consume *bookingdb.RuleConsumption) error
	CreateSession(ctx context.Context, session models.PaymentSession) error
	GetSession(ctx context.Context, sessionID string) (*models.PaymentSession, error)
	GetOpenSessionForBooking(ctx context.Context, bookingID string) (*models.PaymentSession, error)
	GetCompletedSessionForBooking(ctx context.Context, bookingID string) (*models.PaymentSession, error)
	ConfirmPayment(ctx context.Context, sessionID, paymentIntentID string, slotsPerDiscount int) (*bookingdb.ConfirmPaymentResult, error)
	MarkPaymentFailed(ctx context.Context, sessionID string) (*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID string, refundStatus models.RefundStatus, refundAmount *int64, now time.Time) (*models.Booking, error)
	UpdateRefundStatus(ctx context.Context, bookingID string, status models.RefundStatus) error
	TransitionApproval(ctx context.Context, bookingID string, from, to models.ApprovalStatus) (bool, error)
	SubmitArtwork(ctx context.Context, bookingID, artworkPath string) (bool, error)
	ReviewArtwork(ctx context.Context, bookingID string, approve bool, proofPath string) (bool, error)
}

// RedisHolds is the advisory hold layer. The unique index on bookings stays
// authoritative; holds only keep two advertisers from racing through checkout
// on the same slot.
type RedisHolds interface {
	CheckHold(ctx context.Context, slotKey string) (bool, error)
	AcquireHold(ctx context.Context, slotKey, bookingID string) (bool, error)
	ReleaseHold(ctx context.Context, slotKey, bookingID string) error
}

type KafkaPublisher interface {
	PublishBookingCreated(ctx context.Context, booking models.Booking) error
	PublishBookingPaid(ctx context.Context, booking models.Booking) error
	PublishBookingCancelled(ctx context.Context, booking models.Booking) error
}

// SlotResolver validates slot coordinates against the catalog.
type SlotResolver interface {
	ResolveSlot(ctx context.Context, campaignID, routeID, industryID, subcategoryID string) (*catalog.SlotRef, error)
	GetCampaign(ctx context.Context, id string) (*models.Campaign, error)
}

type Quoter interface {
	Quote(ctx context.Context, campaign *models.Campaign, userID string, quantity int) (*models.Quote, error)
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, booking models.Booking) (*models.PaymentSession, error)
	RefundPayment(ctx context.Context, paymentIntentID string, amountCents int64) error
}

// StatusEmitter pushes booking updates to connected SSE clients.
type StatusEmitter interface {
	EmitBookingUpdate(booking models.Booking)
}

// WaitlistPromoter flags waiting advertisers after a slot frees up.
type WaitlistPromoter interface {
	PromoteForSlot(ctx context.Context, campaign *models.Campaign, slotKey string) (int, error)
}

// Config wires the service's collaborators. Emitter, Waitlist and Kafka may
// be nil; the service skips those side effects.
type Config struct {
	DB        DBLayer
	Redis     RedisHolds
	Kafka     KafkaPublisher
	Catalog   SlotResolver
	Pricing   Quoter
	Gateway   PaymentGateway
	Artifacts artwork.Store
	Proofs    *artwork.ProofGenerator
	Emitter   StatusEmitter
	Waitlist  WaitlistPromoter

	RefundWindowDays int
	SlotsPerDiscount int
}

type Service struct {
	cfg Config
	log *logger.Logger
}

func NewService(cfg Config, log *logger.Logger) *Service {
	if cfg.RefundWindowDays < 1 {
		cfg.RefundWindowDays = 7
	}
	if cfg.SlotsPerDiscount < 1 {
		cfg.SlotsPerDiscount = 5
	}
	return &Service{cfg: cfg, log: log}
}

// ---------------- AVAILABILITY ----------------

type AvailabilityResult struct {
	Available bool   `json:"available"`
	SlotKey   string `json:"-"`
}

// Availability answers from the database only. Redis holds are deliberately
// ignored here so an abandoned checkout never shows a slot as taken.
func (s *Service) Availability(ctx context.Context, campaignID, routeID, industryID, subcategoryID string) (*AvailabilityResult, error) {
	slot, err := s.cfg.Catalog.ResolveSlot(ctx, campaignID, routeID, industryID, subcategoryID)
	if err != nil {
		return nil, err
	}
	occupied, err := s.cfg.DB.SlotOccupied(ctx, slot.SlotKey)
	if err != nil {
		return nil, errs.Internal("failed to check slot availability", err)
	}
	return &AvailabilityResult{Available: !occupied, SlotKey: slot.SlotKey}, nil
}

// Quote prices a prospective booking. Nothing is reserved and no rule usage
// is consumed; only a successful booking burns allocations.
func (s *Service) Quote(ctx context.Context, userID, campaignID string, quantity int) (*models.Quote, error) {
	if quantity < 1 {
		return nil, errs.Validation("quantity must be at least 1")
	}
	campaign, err := s.cfg.Catalog.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return s.cfg.Pricing.Quote(ctx, campaign, userID, quantity)
}

// ---------------- PLACE BOOKING ----------------

// PlaceBooking runs the whole reservation path: catalog validation, the
// advisory hold, a fresh quote, and the transactional insert that settles
// exclusivity for good.
func (s *Service) PlaceBooking(ctx context.Context, userID string, req models.BookingRequest) (*models.Booking, *models.Quote, error) {
	start := time.Now()

	booking, quote, err := s.placeBooking(ctx, userID, req)
	status := "created"
	switch {
	case errs.IsKind(err, errs.KindSlotConflict):
		status = "slot_conflict"
	case err != nil:
		status = "failure"
	}
	metrics.RecordBookingCreateDuration(status, time.Since(start).Seconds())
	return booking, quote, err
}

func (s *Service) placeBooking(ctx context.Context, userID string, req models.BookingRequest) (*models.Booking, *models.Quote, error) {
	if userID == "" {
		return nil, nil, errs.Validation("user id is required")
	}
	if req.Quantity < 1 {
		return nil, nil, errs.Validation("quantity must be at least 1")
	}
	description := strings.TrimSpace(req.BusinessDescription)
	if len(description) > maxBusinessDescriptionLen {
		return nil, nil, errs.Validation("business description exceeds %d characters", maxBusinessDescriptionLen)
	}

	// Step 1: resolve and validate the slot coordinates.
	slot, err := s.cfg.Catalog.ResolveSlot(ctx, req.CampaignID, req.RouteID, req.IndustryID, req.SubcategoryID)
	if err != nil {
		return nil, nil, err
	}
	if slot.Campaign.Status != models.CampaignBookingOpen {
		return nil, nil, errs.Validation("campaign %s is not open for booking", slot.Campaign.ID)
	}
	if slot.Industry.IsOther() && description == "" {
		return nil, nil, errs.Validation("a business description is required for the %q industry", slot.Industry.Name)
	}

	// Step 2: fast occupancy check before doing any work.
	occupied, err := s.cfg.DB.SlotOccupied(ctx, slot.SlotKey)
	if err != nil {
		return nil, nil, errs.Internal("failed to check slot availability", err)
	}
	if occupied {
		metrics.SlotConflicts.Inc()
		return nil, nil, errs.SlotConflict("slot is already booked for this campaign, route and industry")
	}

	bookingID := uuid.NewString()

	// Step 3: advisory hold. A redis outage degrades to relying on the
	// unique index alone, so errors are logged and not fatal.
	if s.cfg.Redis != nil {
		held, err := s.cfg.Redis.AcquireHold(ctx, slot.SlotKey, bookingID)
		if err != nil {
			s.log.Warn("REDIS", fmt.Sprintf("Hold acquire failed for slot %s: %v", slot.SlotKey, err))
		} else if !held {
			metrics.SlotConflicts.Inc()
			return nil, nil, errs.SlotConflict("slot is held by another booking in progress")
		}
	}

	// Step 4: price the booking. The quote is computed fresh so the stored
	// amounts always match the rules at booking time.
	quote, err := s.cfg.Pricing.Quote(ctx, slot.Campaign, userID, req.Quantity)
	if err != nil {
		s.releaseHold(ctx, slot.SlotKey, bookingID)
		return nil, nil, err
	}

	selected := quote.SelectedDiscount()
	now := time.Now()
	booking := models.Booking{
		ID:                  bookingID,
		Reference:           utils.GenerateBookingRef(),
		UserID:              userID,
		CampaignID:          slot.Campaign.ID,
		RouteID:             slot.Route.ID,
		IndustryID:          slot.Industry.ID,
		BusinessDescription: description,
		SlotKey:             slot.SlotKey,
		Quantity:            req.Quantity,
		AmountCents:         quote.TotalPriceCents,
		BaseCents:           quote.Breakdown.BasePriceCents,
		DiscountCents:       quote.Breakdown.DiscountCents,
		PaymentStatus:       models.PaymentPending,
		Status:              models.BookingConfirmed,
		ApprovalStatus:      models.ApprovalPending,
		ArtworkStatus:       models.ArtworkPendingUpload,
		CountsTowardLoyalty: selected == nil,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if slot.Subcategory != nil {
		booking.SubcategoryID = slot.Subcategory.ID
	}

	var consume *bookingdb.RuleConsumption
	if selected != nil {
		booking.AppliedRuleID = selected.RuleID
		consume = &bookingdb.RuleConsumption{RuleID: selected.RuleID}
		if selected.RuleType == models.RuleLoyaltyDiscount {
			consume.LoyaltyUserID = userID
		}
	}

	// Step 5: transactional insert. The unique index decides exclusivity.
	if err := s.cfg.DB.CreateBooking(ctx, booking, consume); err != nil {
		s.releaseHold(ctx, slot.SlotKey, bookingID)
		switch {
		case errors.Is(err, bookingdb.ErrSlotTaken):
			metrics.SlotConflicts.Inc()
			return nil, nil, errs.SlotConflict("slot is already booked for this campaign, route and industry")
		case errors.Is(err, bookingdb.ErrRuleExhausted):
			return nil, nil, errs.StateConflict("pricing rule %s is no longer available, request a new quote", booking.AppliedRuleID)
		case errors.Is(err, bookingdb.ErrNoLoyaltyCredit):
			return nil, nil, errs.StateConflict("loyalty discount is no longer available, request a new quote")
		default:
			return nil, nil, errs.Internal("failed to create booking", err)
		}
	}

	s.log.LogBooking("CREATED", booking.ID, fmt.Sprintf("Slot %s booked by user %s for %d cents", slot.SlotKey, userID, booking.AmountCents))

	// Step 6: publish the created event. Failures are logged, not fatal.
	if s.cfg.Kafka != nil {
		if err := s.cfg.Kafka.PublishBookingCreated(ctx, booking); err != nil {
			s.log.Error("KAFKA", fmt.Sprintf("Failed to publish booking created event: %v", err))
		}
	}

	return &booking, quote, nil
}

func (s *Service) releaseHold(ctx context.Context, slotKey, bookingID string) {
	if s.cfg.Redis == nil {
		return
	}
	if err := s.cfg.Redis.ReleaseHold(ctx, slotKey, bookingID); err != nil {
		s.log.Warn("REDIS", fmt.Sprintf("Hold release failed for slot %s: %v", slotKey, err))
	}
}

// ---------------- READS ----------------

// GetBooking loads a booking the requester is allowed to see. Non-owners get
// not-found rather than a hint that the booking exists.
func (s *Service) GetBooking(ctx context.Context, requesterID, bookingID string, isAdmin bool) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && booking.UserID != requesterID {
		return nil, errs.NotFound("booking %s not found", bookingID)
	}
	return booking, nil
}

func (s *Service) GetUserBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	bookings, err := s.cfg.DB.GetBookingsByUser(ctx, userID)
	if err != nil {
		return nil, errs.Internal("failed to load bookings", err)
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	return bookings, nil
}

func (s *Service) loadBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := s.cfg.DB.GetBookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.NotFound("booking %s not found", bookingID)
		}
		return nil, errs.Internal("failed to load booking", err)
	}
	return booking, nil
}

// ---------------- CHECKOUT ----------------

// CreateCheckout returns a checkout session for the booking, reusing an open
// one so refreshing the payment page never mints duplicate sessions.
func (s *Service) CreateCheckout(ctx context.Context, requesterID, bookingID string) (*models.CheckoutResponse, error) {
	if s.cfg.Gateway == nil {
		return nil, errs.Configuration("payment gateway is not configured")
	}
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != requesterID {
		return nil, errs.NotFound("booking %s not found", bookingID)
	}
	if booking.Status == models.BookingCancelled {
		return nil, errs.StateConflict("booking %s is cancelled", bookingID)
	}
	if booking.PaymentStatus == models.PaymentPaid {
		return nil, errs.StateConflict("booking %s is already paid", bookingID)
	}

	existing, err := s.cfg.DB.GetOpenSessionForBooking(ctx, bookingID)
	if err == nil {
		return &models.CheckoutResponse{SessionID: existing.SessionID, URL: existing.URL}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Internal("failed to look up checkout session", err)
	}

	session, err := s.cfg.Gateway.CreateCheckoutSession(ctx, *booking)
	if err != nil {
		return nil, errs.Internal("failed to create checkout session", err)
	}
	if err := s.cfg.DB.CreateSession(ctx, *session); err != nil {
		return nil, errs.Internal("failed to store checkout session", err)
	}

	s.log.LogBooking("CHECKOUT", bookingID, fmt.Sprintf("Checkout session %s created for %d cents", session.SessionID, session.AmountCents))
	return &models.CheckoutResponse{SessionID: session.SessionID, URL: session.URL}, nil
}

// HandleCheckoutCompleted applies a gateway confirmation. Replayed webhooks
// resolve to the same session row and change nothing.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, sessionID, paymentIntentID string) (*models.Booking, error) {
	result, err := s.cfg.DB.ConfirmPayment(ctx, sessionID, paymentIntentID, s.cfg.SlotsPerDiscount)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			metrics.PaymentConfirmations.WithLabelValues("rejected").Inc()
			return nil, errs.PaymentVerification("unknown checkout session %s", sessionID)
		case errors.Is(err, bookingdb.ErrBookingCancelled):
			metrics.PaymentConfirmations.WithLabelValues("rejected").Inc()
			return nil, errs.StateConflict("booking for session %s is cancelled", sessionID)
		case errors.Is(err, bookingdb.ErrCampaignFull):
			metrics.PaymentConfirmations.WithLabelValues("rejected").Inc()
			s.log.Error("BOOKING", fmt.Sprintf("Paid booking for session %s exceeds campaign capacity", sessionID))
			return nil, errs.StateConflict("campaign capacity exhausted for session %s", sessionID)
		default:
			return nil, errs.Internal("failed to confirm payment", err)
		}
	}

	booking := result.Booking
	if result.AlreadyApplied {
		metrics.PaymentConfirmations.WithLabelValues("replay").Inc()
		s.log.LogBooking("PAYMENT_REPLAY", booking.ID, fmt.Sprintf("Duplicate confirmation for session %s ignored", sessionID))
		return booking, nil
	}

	metrics.PaymentConfirmations.WithLabelValues("confirmed").Inc()
	s.log.LogBooking("PAID", booking.ID, fmt.Sprintf("Payment confirmed via session %s", sessionID))

	s.releaseHold(ctx, booking.SlotKey, booking.ID)

	if s.cfg.Kafka != nil {
		if err := s.cfg.Kafka.PublishBookingPaid(ctx, *booking); err != nil {
			s.log.Error("KAFKA", fmt.Sprintf("Failed to publish booking paid event: %v", err))
		}
	}
	if s.cfg.Emitter != nil {
		s.cfg.Emitter.EmitBookingUpdate(*booking)
	}
	return booking, nil
}

// HandleCheckoutExpired records an abandoned checkout. The booking keeps its
// slot and the advertiser can start a new checkout.
func (s *Service) HandleCheckoutExpired(ctx context.Context, sessionID string) error {
	booking, err := s.cfg.DB.MarkPaymentFailed(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.PaymentVerification("unknown checkout session %s", sessionID)
		}
		return errs.Internal("failed to record expired checkout", err)
	}

	s.log.LogBooking("PAYMENT_EXPIRED", booking.ID, fmt.Sprintf("Checkout session %s expired", sessionID))
	if s.cfg.Emitter != nil {
		s.cfg.Emitter.EmitBookingUpdate(*booking)
	}
	return nil
}

// ---------------- CANCELLATION ----------------

// daysUntilDeadline returns whole days until the print deadline, rounding
// any partial day up.
func daysUntilDeadline(deadline, now time.Time) int {
	diff := deadline.Sub(now)
	if diff <= 0 {
		return 0
	}
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// Cancel frees the slot, settles the refund decision against the campaign's
// print deadline, and kicks the waitlist.
func (s *Service) Cancel(ctx context.Context, requesterID, bookingID string, isAdmin bool) (*models.CancelResponse, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && booking.UserID != requesterID {
		return nil, errs.NotFound("booking %s not found", bookingID)
	}
	if booking.Status == models.BookingCancelled {
		return nil, errs.StateConflict("booking %s is already cancelled", bookingID)
	}

	campaign, err := s.cfg.Catalog.GetCampaign(ctx, booking.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.PrintDeadline == nil {
		return nil, errs.Configuration("campaign %s has no print deadline configured", campaign.ID)
	}

	now := time.Now()
	refundStatus := models.RefundNone
	var refundAmount *int64
	if booking.PaymentStatus == models.PaymentPaid && daysUntilDeadline(*campaign.PrintDeadline, now) >= s.cfg.RefundWindowDays {
		refundStatus = models.RefundProcessed
		amount := booking.AmountCents
		refundAmount = &amount
	}

	cancelled, err := s.cfg.DB.CancelBooking(ctx, bookingID, refundStatus, refundAmount, now)
	if err != nil {
		if errors.Is(err, bookingdb.ErrBookingCancelled) {
			return nil, errs.StateConflict("booking %s is already cancelled", bookingID)
		}
		return nil, errs.Internal("failed to cancel booking", err)
	}

	s.log.LogBooking("CANCELLED", bookingID, fmt.Sprintf("Refund %s, slot %s released", refundStatus, cancelled.SlotKey))

	if refundStatus == models.RefundProcessed {
		s.issueRefund(ctx, cancelled)
	}

	s.releaseHold(ctx, cancelled.SlotKey, cancelled.ID)

	if s.cfg.Kafka != nil {
		if err := s.cfg.Kafka.PublishBookingCancelled(ctx, *cancelled); err != nil {
			s.log.Error("KAFKA", fmt.Sprintf("Failed to publish booking cancelled event: %v", err))
		}
	}
	if s.cfg.Emitter != nil {
		s.cfg.Emitter.EmitBookingUpdate(*cancelled)
	}
	if s.cfg.Waitlist != nil {
		if _, err := s.cfg.Waitlist.PromoteForSlot(ctx, campaign, cancelled.SlotKey); err != nil {
			s.log.Error("WAITLIST", fmt.Sprintf("Failed to promote waitlist for slot %s: %v", cancelled.SlotKey, err))
		}
	}

	resp := &models.CancelResponse{
		BookingID: bookingID,
		Refund:    models.Refund{Status: cancelled.RefundStatus},
	}
	if cancelled.RefundAmountCents != nil {
		resp.Refund.AmountCents = *cancelled.RefundAmountCents
	}
	return resp, nil
}

// issueRefund pushes the refund to the gateway after the cancellation has
// committed. A gateway failure downgrades the recorded status so operators
// can retry by hand.
func (s *Service) issueRefund(ctx context.Context, booking *models.Booking) {
	if s.cfg.Gateway == nil || booking.RefundAmountCents == nil {
		return
	}
	session, err := s.cfg.DB.GetCompletedSessionForBooking(ctx, booking.ID)
	if err != nil {
		s.log.Error("PAYMENT", fmt.Sprintf("No completed session found for refund of booking %s: %v", booking.ID, err))
		s.markRefundFailed(ctx, booking)
		return
	}
	if err := s.cfg.Gateway.RefundPayment(ctx, session.PaymentIntentID, *booking.RefundAmountCents); err != nil {
		s.log.Error("PAYMENT", fmt.Sprintf("Refund failed for booking %s: %v", booking.ID, err))
		s.markRefundFailed(ctx, booking)
		return
	}
	s.log.LogBooking("REFUNDED", booking.ID, fmt.Sprintf("Refunded %d cents to intent %s", *booking.RefundAmountCents, session.PaymentIntentID))
}

func (s *Service) markRefundFailed(ctx context.Context, booking *models.Booking) {
	if err := s.cfg.DB.UpdateRefundStatus(ctx, booking.ID, models.RefundFailed); err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to record refund failure for booking %s: %v", booking.ID, err))
	}
	booking.RefundStatus = models.RefundFailed
}

// ---------------- APPROVAL ----------------

// Approve moves a paid booking's placement from pending to approved.
func (s *Service) Approve(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.reviewApproval(ctx, bookingID, models.ApprovalApproved)
}

// Reject declines a paid booking's placement.
func (s *Service) Reject(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.reviewApproval(ctx, bookingID, models.ApprovalRejected)
}

func (s *Service) reviewApproval(ctx context.Context, bookingID string, to models.ApprovalStatus) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingCancelled {
		return nil, errs.StateConflict("booking %s is cancelled", bookingID)
	}
	if booking.PaymentStatus != models.PaymentPaid {
		return nil, errs.StateConflict("booking %s must be paid before placement review", bookingID)
	}

	ok, err := s.cfg.DB.TransitionApproval(ctx, bookingID, models.ApprovalPending, to)
	if err != nil {
		return nil, errs.Internal("failed to update approval status", err)
	}
	if !ok {
		return nil, errs.StateConflict("booking %s is not awaiting placement review", bookingID)
	}

	booking.ApprovalStatus = to
	s.log.LogBooking("APPROVAL", bookingID, fmt.Sprintf("Placement %s", to))
	if s.cfg.Emitter != nil {
		s.cfg.Emitter.EmitBookingUpdate(*booking)
	}
	return booking, nil
}

// ---------------- ARTWORK ----------------

// SubmitArtwork stores the advertiser's creative and queues it for review.
// Allowed from pending_upload and, after a rejection, from rejected.
func (s *Service) SubmitArtwork(ctx context.Context, requesterID, bookingID, filename string, data io.Reader) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != requesterID {
		return nil, errs.NotFound("booking %s not found", bookingID)
	}
	if booking.Status == models.BookingCancelled {
		return nil, errs.StateConflict("booking %s is cancelled", bookingID)
	}
	if booking.PaymentStatus != models.PaymentPaid {
		return nil, errs.StateConflict("booking %s must be paid before artwork upload", bookingID)
	}

	path, err := s.cfg.Artifacts.SaveArtwork(bookingID, filename, data)
	if err != nil {
		return nil, errs.Validation("artwork upload rejected: %v", err)
	}

	ok, err := s.cfg.DB.SubmitArtwork(ctx, bookingID, path)
	if err != nil {
		return nil, errs.Internal("failed to record artwork submission", err)
	}
	if !ok {
		return nil, errs.StateConflict("booking %s is not awaiting artwork upload", bookingID)
	}

	booking.ArtworkStatus = models.ArtworkUnderReview
	booking.ArtworkPath = path
	s.log.LogBooking("ARTWORK_SUBMITTED", bookingID, fmt.Sprintf("File %s stored at %s", filename, path))
	return booking, nil
}

// ReviewArtwork resolves an artwork review. Approval also renders the
// tracking proof that goes on the printed piece.
func (s *Service) ReviewArtwork(ctx context.Context, bookingID string, approve bool) (*models.Booking, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingCancelled {
		return nil, errs.StateConflict("booking %s is cancelled", bookingID)
	}
	if booking.ArtworkStatus != models.ArtworkUnderReview {
		return nil, errs.StateConflict("booking %s has no artwork under review", bookingID)
	}

	proofPath := ""
	if approve && s.cfg.Proofs != nil {
		campaign, err := s.cfg.Catalog.GetCampaign(ctx, booking.CampaignID)
		if err != nil {
			return nil, err
		}
		png, err := s.cfg.Proofs.GenerateTrackingProof(*booking, campaign.MailDate)
		if err != nil {
			return nil, errs.Internal("failed to generate tracking proof", err)
		}
		proofPath, err = s.cfg.Artifacts.SaveProof(bookingID, png)
		if err != nil {
			return nil, errs.Internal("failed to store tracking proof", err)
		}
	}

	ok, err := s.cfg.DB.ReviewArtwork(ctx, bookingID, approve, proofPath)
	if err != nil {
		return nil, errs.Internal("failed to record artwork review", err)
	}
	if !ok {
		return nil, errs.StateConflict("booking %s has no artwork under review", bookingID)
	}

	if approve {
		booking.ArtworkStatus = models.ArtworkApproved
		booking.ProofPath = proofPath
		s.log.LogBooking("ARTWORK_APPROVED", bookingID, fmt.Sprintf("Proof stored at %s", proofPath))
	} else {
		booking.ArtworkStatus = models.ArtworkRejected
		s.log.LogBooking("ARTWORK_REJECTED", bookingID, "Artwork sent back for resubmission")
	}
	if s.cfg.Emitter != nil {
		s.cfg.Emitter.EmitBookingUpdate(*booking)
	}
	return booking, nil
}
