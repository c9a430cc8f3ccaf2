package waitlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-adbooking/internal/catalog"
	"ms-adbooking/internal/errs"
	"ms-adbooking/internal/logger"
	"ms-adbooking/internal/metrics"
	"ms-adbooking/internal/models"
)

type DBLayer interface {
	CreateEntry(ctx context.Context, entry models.WaitlistEntry) (*models.WaitlistEntry, bool, error)
	ActiveBySlotKey(ctx context.Context, slotKey string) ([]models.WaitlistEntry, error)
	GetEntriesByUser(ctx context.Context, userID string) ([]models.WaitlistEntry, error)
	GetEntryByID(ctx context.Context, id string) (*models.WaitlistEntry, error)
	MarkNotified(ctx context.Context, id string, now time.Time) (bool, error)
	ExpireBySlotKey(ctx context.Context, slotKey string) (int64, error)
	Deactivate(ctx context.Context, id, userID string) (bool, error)
}

// SlotChecker reports whether a slot key is currently occupied. Satisfied by
// the booking storage layer.
type SlotChecker interface {
	SlotOccupied(ctx context.Context, slotKey string) (bool, error)
}

// SlotResolver validates slot coordinates against the catalog.
type SlotResolver interface {
	ResolveSlot(ctx context.Context, campaignID, routeID, industryID, subcategoryID string) (*catalog.SlotRef, error)
}

type KafkaPublisher interface {
	PublishSlotAvailable(ctx context.Context, entry models.WaitlistEntry) error
}

type Service struct {
	DB      DBLayer
	Slots   SlotChecker
	Catalog SlotResolver
	Kafka   KafkaPublisher
	log     *logger.Logger
}

func NewService(db DBLayer, slots SlotChecker, cat SlotResolver, kafka KafkaPublisher, log *logger.Logger) *Service {
	return &Service{DB: db, Slots: slots, Catalog: cat, Kafka: kafka, log: log}
}

// Join enrols the user for a slot that is currently taken. Joining a free
// slot is not an error: the caller gets a notice to book directly instead of
// a queue position.
func (s *Service) Join(ctx context.Context, userID string, req models.WaitlistRequest) (*models.WaitlistJoinResult, error) {
	if userID == "" {
		return nil, errs.Validation("user id is required")
	}

	slot, err := s.Catalog.ResolveSlot(ctx, req.CampaignID, req.RouteID, req.IndustryID, req.SubcategoryID)
	if err != nil {
		return nil, err
	}
	if slot.Campaign.Status != models.CampaignBookingOpen {
		return nil, errs.Validation("campaign %s is not open for booking", slot.Campaign.ID)
	}

	occupied, err := s.Slots.SlotOccupied(ctx, slot.SlotKey)
	if err != nil {
		return nil, errs.Internal("failed to check slot availability", err)
	}
	if !occupied {
		return &models.WaitlistJoinResult{
			SlotAvailable: true,
			Notice:        "slot is currently available, book it directly",
		}, nil
	}

	entry := models.WaitlistEntry{
		ID:         uuid.NewString(),
		UserID:     userID,
		CampaignID: slot.Campaign.ID,
		RouteID:    slot.Route.ID,
		IndustryID: slot.Industry.ID,
		SlotKey:    slot.SlotKey,
		DedupKey:   models.WaitlistDedupKey(userID, slot.SlotKey),
		Status:     models.WaitlistActive,
		CreatedAt:  time.Now(),
	}
	if slot.Subcategory != nil {
		entry.SubcategoryID = slot.Subcategory.ID
	}

	stored, created, err := s.DB.CreateEntry(ctx, entry)
	if err != nil {
		return nil, errs.Internal("failed to join waitlist", err)
	}

	result := &models.WaitlistJoinResult{Entry: stored}
	if created {
		s.log.Info("WAITLIST", fmt.Sprintf("User %s joined waitlist for slot %s", userID, slot.SlotKey))
	} else {
		result.Notice = "already on the waitlist for this slot"
	}
	return result, nil
}

func (s *Service) GetUserEntries(ctx context.Context, userID string) ([]models.WaitlistEntry, error) {
	entries, err := s.DB.GetEntriesByUser(ctx, userID)
	if err != nil {
		return nil, errs.Internal("failed to load waitlist entries", err)
	}
	if entries == nil {
		entries = []models.WaitlistEntry{}
	}
	return entries, nil
}

// Leave removes the caller's own entry from the queue.
func (s *Service) Leave(ctx context.Context, userID, entryID string) error {
	_, err := s.DB.GetEntryByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.NotFound("waitlist entry %s not found", entryID)
		}
		return errs.Internal("failed to load waitlist entry", err)
	}

	ok, err := s.DB.Deactivate(ctx, entryID, userID)
	if err != nil {
		return errs.Internal("failed to leave waitlist", err)
	}
	if !ok {
		return errs.NotFound("waitlist entry %s not found", entryID)
	}
	s.log.Info("WAITLIST", fmt.Sprintf("User %s left waitlist entry %s", userID, entryID))
	return nil
}

// PromoteForSlot flags the slot's queue after a cancellation freed it.
// Every active entry is marked notified in first-come-first-served order;
// the entries race for the slot like any other booking attempt. When the
// campaign is no longer open the queue is expired instead.
func (s *Service) PromoteForSlot(ctx context.Context, campaign *models.Campaign, slotKey string) (int, error) {
	if campaign == nil {
		return 0, errs.Validation("campaign is required")
	}

	if campaign.Status != models.CampaignBookingOpen {
		expired, err := s.DB.ExpireBySlotKey(ctx, slotKey)
		if err != nil {
			return 0, errs.Internal("failed to expire waitlist entries", err)
		}
		if expired > 0 {
			s.log.Info("WAITLIST", fmt.Sprintf("Expired %d entries for slot %s on closed campaign %s", expired, slotKey, campaign.ID))
		}
		return 0, nil
	}

	entries, err := s.DB.ActiveBySlotKey(ctx, slotKey)
	if err != nil {
		return 0, errs.Internal("failed to load waitlist entries", err)
	}

	now := time.Now()
	notified := 0
	for _, entry := range entries {
		ok, err := s.DB.MarkNotified(ctx, entry.ID, now)
		if err != nil {
			s.log.Error("WAITLIST", fmt.Sprintf("Failed to mark entry %s notified: %v", entry.ID, err))
			continue
		}
		if !ok {
			continue
		}
		notified++
		metrics.WaitlistNotifications.Inc()

		if s.Kafka != nil {
			if err := s.Kafka.PublishSlotAvailable(ctx, entry); err != nil {
				s.log.Error("KAFKA", fmt.Sprintf("Failed to publish waitlist notification for entry %s: %v", entry.ID, err))
			}
		}
	}

	if notified > 0 {
		s.log.Info("WAITLIST", fmt.Sprintf("Notified %d waiting users for slot %s", notified, slotKey))
	}
	return notified, nil
}
