package kafka

import (
	"context"
	"time"

	"ms-adbooking/internal/models"
)

// Transport is the shared producer this publisher writes through.
type Transport interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

// Publisher emits waitlist notifications for the notification service to
// fan out as emails.
type Publisher struct {
	transport Transport
	topic     string
}

func NewPublisher(transport Transport, topic string) *Publisher {
	return &Publisher{transport: transport, topic: topic}
}

func (p *Publisher) PublishSlotAvailable(ctx context.Context, entry models.WaitlistEntry) error {
	event := models.WaitlistEvent{
		Type:       "waitlist.slot_available",
		EntryID:    entry.ID,
		UserID:     entry.UserID,
		CampaignID: entry.CampaignID,
		SlotKey:    entry.SlotKey,
		Timestamp:  time.Now(),
	}
	return p.transport.Publish(ctx, p.topic, entry.SlotKey, event)
}
