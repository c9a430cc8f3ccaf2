package booking_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-adbooking/internal/auth"
	"ms-adbooking/internal/logger"
	"ms-adbooking/internal/models"
	"ms-adbooking/internal/sse"
)

// SSEHandler streams booking status changes. These routes sit outside the
// OIDC middleware because EventSource clients can't set headers; the token
// arrives as a query parameter instead.
type SSEHandler struct {
	Logger       *logger.Logger
	EventEmitter *sse.BookingEventEmitter
}

func NewSSEHandler(log *logger.Logger) *SSEHandler {
	return &SSEHandler{
		Logger:       log,
		EventEmitter: sse.NewBookingEventEmitter(),
	}
}

// HandleUserBookingEvents streams status changes for one advertiser's
// bookings. Only the advertiser themselves or an admin may subscribe.
func (h *SSEHandler) HandleUserBookingEvents(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	callerID, role, err := h.identifyCaller(r)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("User stream access verification failed: %v", err))
		http.Error(w, "Unauthorized access", http.StatusUnauthorized)
		return
	}
	if callerID != userID && role != auth.RoleAdmin {
		h.Logger.Warn("SSE", fmt.Sprintf("User %s denied access to booking events of user %s", callerID, userID))
		http.Error(w, "Unauthorized access", http.StatusUnauthorized)
		return
	}

	h.setupSSEHeaders(w)
	ctx := r.Context()
	eventChan := h.EventEmitter.SubscribeToUser(ctx, userID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"user_id\":\"%s\"}\n\n", userID)
	w.(http.Flusher).Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to booking events for user: %s", userID))

	h.stream(w, r, eventChan, "user "+userID)
}

// HandleCampaignBookingEvents streams every booking change on a campaign.
// Admin only; it backs the campaign operations dashboard.
func (h *SSEHandler) HandleCampaignBookingEvents(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")
	if campaignID == "" {
		http.Error(w, "Campaign ID is required", http.StatusBadRequest)
		return
	}

	_, role, err := h.identifyCaller(r)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Campaign stream access verification failed: %v", err))
		http.Error(w, "Unauthorized access", http.StatusUnauthorized)
		return
	}
	if role != auth.RoleAdmin {
		http.Error(w, "Unauthorized access", http.StatusUnauthorized)
		return
	}

	h.setupSSEHeaders(w)
	ctx := r.Context()
	eventChan := h.EventEmitter.SubscribeToCampaign(ctx, campaignID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"campaign_id\":\"%s\"}\n\n", campaignID)
	w.(http.Flusher).Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to booking events for campaign: %s", campaignID))

	h.stream(w, r, eventChan, "campaign "+campaignID)
}

// EmitBookingUpdate forwards a booking change to subscribed clients. The
// booking service calls this through its StatusEmitter dependency.
func (h *SSEHandler) EmitBookingUpdate(booking models.Booking) {
	h.EventEmitter.EmitBookingUpdate(booking)
}

func (h *SSEHandler) stream(w http.ResponseWriter, r *http.Request, eventChan chan models.Booking, label string) {
	ctx := r.Context()
	for {
		select {
		case booking, ok := <-eventChan:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for %s", label))
				return
			}

			jsonData, err := json.Marshal(booking)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize booking event: %v", err))
				continue
			}

			fmt.Fprintf(w, "event: booking\ndata: %s\n\n", jsonData)
			w.(http.Flusher).Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from booking events for %s", label))
			return
		}
	}
}

func (h *SSEHandler) identifyCaller(r *http.Request) (userID, role string, err error) {
	token, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		return "", "", fmt.Errorf("failed to extract token: %w", err)
	}
	userID, err = auth.ExtractUserIDFromJWT(token)
	if err != nil {
		return "", "", fmt.Errorf("failed to extract user ID: %w", err)
	}
	role, err = auth.ExtractRoleFromJWT(token)
	if err != nil {
		return "", "", fmt.Errorf("failed to extract role: %w", err)
	}
	return userID, role, nil
}

func (h *SSEHandler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-XSS-Protection", "0")
	w.Header().Set("Referrer-Policy", "no-referrer")
}
