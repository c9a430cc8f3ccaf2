package sse

import (
	"context"
	"sync"

	"ms-adbooking/internal/models"
)

// subscriberGroup tracks SSE client channels under a string key.
type subscriberGroup struct {
	mu      sync.RWMutex
	clients map[string][]chan models.Booking
}

func newSubscriberGroup() *subscriberGroup {
	return &subscriberGroup{clients: make(map[string][]chan models.Booking)}
}

func (g *subscriberGroup) subscribe(ctx context.Context, key string) chan models.Booking {
	clientChan := make(chan models.Booking, 10)

	g.mu.Lock()
	g.clients[key] = append(g.clients[key], clientChan)
	g.mu.Unlock()

	// Remove client when the connection context ends.
	go func() {
		<-ctx.Done()
		g.remove(key, clientChan)
	}()

	return clientChan
}

func (g *subscriberGroup) remove(key string, clientChan chan models.Booking) {
	g.mu.Lock()
	defer g.mu.Unlock()

	clients := g.clients[key]
	for i, ch := range clients {
		if ch == clientChan {
			g.clients[key] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(g.clients[key]) == 0 {
		delete(g.clients, key)
	}
}

func (g *subscriberGroup) emit(key string, booking models.Booking) {
	g.mu.RLock()
	clients := g.clients[key]
	g.mu.RUnlock()

	for _, clientChan := range clients {
		// Non-blocking send so one slow client can't stall the emitter.
		select {
		case clientChan <- booking:
		default:
		}
	}
}

func (g *subscriberGroup) count(key string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients[key])
}

// BookingEventEmitter broadcasts booking status changes to SSE clients.
// Advertisers watch their own bookings move through payment and approval;
// campaign dashboards watch everything on one campaign.
type BookingEventEmitter struct {
	users     *subscriberGroup
	campaigns *subscriberGroup
}

func NewBookingEventEmitter() *BookingEventEmitter {
	return &BookingEventEmitter{
		users:     newSubscriberGroup(),
		campaigns: newSubscriberGroup(),
	}
}

// SubscribeToUser streams status changes for one advertiser's bookings.
func (e *BookingEventEmitter) SubscribeToUser(ctx context.Context, userID string) chan models.Booking {
	return e.users.subscribe(ctx, userID)
}

// SubscribeToCampaign streams status changes for every booking on a campaign.
func (e *BookingEventEmitter) SubscribeToCampaign(ctx context.Context, campaignID string) chan models.Booking {
	return e.campaigns.subscribe(ctx, campaignID)
}

// EmitBookingUpdate fans the booking out to both subscription groups.
func (e *BookingEventEmitter) EmitBookingUpdate(booking models.Booking) {
	e.users.emit(booking.UserID, booking)
	e.campaigns.emit(booking.CampaignID, booking)
}

func (e *BookingEventEmitter) UserClientCount(userID string) int {
	return e.users.count(userID)
}

func (e *BookingEventEmitter) CampaignClientCount(campaignID string) int {
	return e.campaigns.count(campaignID)
}
