package waitlist_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-adbooking/internal/auth"
	"ms-adbooking/internal/errs"
	"ms-adbooking/internal/logger"
	"ms-adbooking/internal/models"
	"ms-adbooking/internal/utils"
	"ms-adbooking/internal/waitlist"
)

type Handler struct {
	Service *waitlist.Service
	Logger  *logger.Logger
}

func NewHandler(service *waitlist.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// Join enrols the caller for a taken slot. Joining a free slot returns a
// notice to book directly instead.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req models.WaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Join", errs.Validation("invalid request body"))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("WaitlistJoin: campaign=%s route=%s industry=%s user=%s", req.CampaignID, req.RouteID, req.IndustryID, userID))

	result, err := h.Service.Join(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, "Join", err)
		return
	}

	status := http.StatusCreated
	if result.Entry == nil || result.Notice != "" {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// GetMyEntries lists the caller's waitlist entries.
func (h *Handler) GetMyEntries(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("WaitlistEntries: user=%s", userID))

	entries, err := h.Service.GetUserEntries(r.Context(), userID)
	if err != nil {
		h.writeError(w, "GetMyEntries", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Leave removes the caller's entry from a queue.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryId")
	userID := auth.UserID(r.Context())
	h.Logger.Info("API", fmt.Sprintf("WaitlistLeave: entry=%s user=%s", entryID, userID))

	if err := h.Service.Leave(r.Context(), userID, entryID); err != nil {
		h.writeError(w, "Leave", err)
		return
	}
	writeJSON(w, http.StatusOK, utils.SuccessResponse("left waitlist", nil))
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
