package kafka

import (
	"context"
	"time"

	"ms-adbooking/internal/config"
	"ms-adbooking/internal/models"
)

// Transport is the shared producer this publisher writes through.
type Transport interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

// Publisher emits booking lifecycle events on the adpost.* topics. Downstream
// consumers are the notification service and the print-preparation pipeline.
type Publisher struct {
	transport Transport
	topics    config.TopicConfig
}

func NewPublisher(transport Transport, topics config.TopicConfig) *Publisher {
	return &Publisher{transport: transport, topics: topics}
}

func (p *Publisher) PublishBookingCreated(ctx context.Context, booking models.Booking) error {
	return p.publish(ctx, p.topics.BookingCreated, "booking.created", booking)
}

func (p *Publisher) PublishBookingPaid(ctx context.Context, booking models.Booking) error {
	return p.publish(ctx, p.topics.BookingPaid, "booking.paid", booking)
}

func (p *Publisher) PublishBookingCancelled(ctx context.Context, booking models.Booking) error {
	return p.publish(ctx, p.topics.BookingCancelled, "booking.cancelled", booking)
}

func (p *Publisher) publish(ctx context.Context, topic, eventType string, booking models.Booking) error {
	event := models.BookingEvent{
		Type:        eventType,
		BookingID:   booking.ID,
		Reference:   booking.Reference,
		UserID:      booking.UserID,
		CampaignID:  booking.CampaignID,
		SlotKey:     booking.SlotKey,
		AmountCents: booking.AmountCents,
		Timestamp:   time.Now(),
	}
	// Keyed by campaign so one campaign's events stay ordered per partition.
	return p.transport.Publish(ctx, topic, booking.CampaignID, event)
}
