package booking_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-adbooking/internal/auth"
	"ms-adbooking/internal/booking"
	"ms-adbooking/internal/errs"
	"ms-adbooking/internal/logger"
	"ms-adbooking/internal/models"
	"ms-adbooking/internal/utils"
)

const maxArtworkUploadBytes = 16 << 20 // 16 MiB

type Handler struct {
	Service       *booking.Service
	Logger        *logger.Logger
	WebhookSecret string
}

func NewHandler(service *booking.Service, log *logger.Logger, webhookSecret string) *Handler {
	return &Handler{Service: service, Logger: log, WebhookSecret: webhookSecret}
}

// GetAvailability answers whether a slot can be booked right now.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	campaignID := q.Get("campaignId")
	routeID := q.Get("routeId")
	industryID := q.Get("industryId")
	subcategoryID := q.Get("subcategoryId")
	h.Logger.Info("API", fmt.Sprintf("GetAvailability: campaign=%s route=%s industry=%s", campaignID, routeID, industryID))

	result, err := h.Service.Availability(r.Context(), campaignID, routeID, industryID, subcategoryID)
	if err != nil {
		h.writeError(w, "GetAvailability", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetQuote prices a prospective booking for the caller.
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	campaignID := r.URL.Query().Get("campaignId")
	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		h.writeError(w, "GetQuote", errs.Validation("quantity must be a number"))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("GetQuote: campaign=%s quantity=%d user=%s", campaignID, quantity, userID))

	quote, err := h.Service.Quote(r.Context(), userID, campaignID, quantity)
	if err != nil {
		h.writeError(w, "GetQuote", err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// CreateBooking reserves a slot for the authenticated advertiser.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "CreateBooking", errs.Validation("invalid request body"))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreateBooking: campaign=%s route=%s industry=%s user=%s", req.CampaignID, req.RouteID, req.IndustryID, userID))

	created, quote, err := h.Service.PlaceBooking(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, "CreateBooking", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"booking": created,
		"quote":   quote,
	})
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	userID := auth.UserID(r.Context())
	isAdmin := auth.Role(r.Context()) == auth.RoleAdmin
	h.Logger.Info("API", fmt.Sprintf("GetBooking: id=%s user=%s", bookingID, userID))

	b, err := h.Service.GetBooking(r.Context(), userID, bookingID, isAdmin)
	if err != nil {
		h.writeError(w, "GetBooking", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GetMyBookings lists the caller's bookings, newest first.
func (h *Handler) GetMyBookings(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("GetMyBookings: user=%s", userID))

	bookings, err := h.Service.GetUserBookings(r.Context(), userID)
	if err != nil {
		h.writeError(w, "GetMyBookings", err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

// CreateCheckout opens (or reuses) a payment session for the booking.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("CreateCheckout: booking=%s user=%s", bookingID, userID))

	resp, err := h.Service.CreateCheckout(r.Context(), userID, bookingID)
	if err != nil {
		h.writeError(w, "CreateCheckout", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelBooking frees the slot and reports the refund decision.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	userID := auth.UserID(r.Context())
	isAdmin := auth.Role(r.Context()) == auth.RoleAdmin
	h.Logger.Info("API", fmt.Sprintf("CancelBooking: id=%s user=%s", bookingID, userID))

	resp, err := h.Service.Cancel(r.Context(), userID, bookingID, isAdmin)
	if err != nil {
		h.writeError(w, "CancelBooking", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SubmitArtwork accepts the advertiser's creative as a multipart upload
// under the "artwork" field.
func (h *Handler) SubmitArtwork(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	userID := auth.UserID(r.Context())

	if err := r.ParseMultipartForm(maxArtworkUploadBytes); err != nil {
		h.writeError(w, "SubmitArtwork", errs.Validation("invalid multipart upload"))
		return
	}
	file, header, err := r.FormFile("artwork")
	if err != nil {
		h.writeError(w, "SubmitArtwork", errs.Validation("artwork file is required"))
		return
	}
	defer file.Close()
	h.Logger.Info("API", fmt.Sprintf("SubmitArtwork: booking=%s file=%s size=%d", bookingID, header.Filename, header.Size))

	b, err := h.Service.SubmitArtwork(r.Context(), userID, bookingID, header.Filename, file)
	if err != nil {
		h.writeError(w, "SubmitArtwork", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ---------------- ADMIN ----------------

func (h *Handler) ApproveBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("ApproveBooking: id=%s admin=%s", bookingID, auth.UserID(r.Context())))

	b, err := h.Service.Approve(r.Context(), bookingID)
	if err != nil {
		h.writeError(w, "ApproveBooking", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) RejectBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("RejectBooking: id=%s admin=%s", bookingID, auth.UserID(r.Context())))

	b, err := h.Service.Reject(r.Context(), bookingID)
	if err != nil {
		h.writeError(w, "RejectBooking", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) ApproveArtwork(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("ApproveArtwork: id=%s admin=%s", bookingID, auth.UserID(r.Context())))

	b, err := h.Service.ReviewArtwork(r.Context(), bookingID, true)
	if err != nil {
		h.writeError(w, "ApproveArtwork", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) RejectArtwork(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("RejectArtwork: id=%s admin=%s", bookingID, auth.UserID(r.Context())))

	b, err := h.Service.ReviewArtwork(r.Context(), bookingID, false)
	if err != nil {
		h.writeError(w, "RejectArtwork", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ---------------- WEBHOOK ----------------

// StripeWebhook receives gateway deliveries. Public route; authentication is
// the signature check inside the service.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.HandleStripeWebhook(r, h.WebhookSecret); err != nil {
		var webhookErr *booking.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Error("WEBHOOK", fmt.Sprintf("%s error: %s", webhookErr.Category, webhookErr.InternalError))
			writeJSON(w, webhookErr.StatusCode, utils.ErrorResponse(webhookErr.PublicError, ""))
			return
		}
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Unexpected error: %v", err))
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("webhook processing failed", ""))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	kind := errs.KindOf(err)
	msg := err.Error()
	if kind == errs.KindInternal {
		msg = "internal error"
	}
	writeJSON(w, errs.HTTPStatus(err), utils.ErrorResponseKind(string(kind), msg, ""))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
