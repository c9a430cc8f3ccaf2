package catalog_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-adbooking/internal/catalog"
	"ms-adbooking/internal/errs"
	"ms-adbooking/internal/logger"
	"ms-adbooking/internal/models"
	"ms-adbooking/internal/utils"
)

type Handler struct {
	Catalog *catalog.Service
	Logger  *logger.Logger
}

func NewHandler(catalogService *catalog.Service, log *logger.Logger) *Handler {
	return &Handler{Catalog: catalogService, Logger: log}
}

func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	status := models.CampaignStatus(r.URL.Query().Get("status"))
	h.Logger.Info("API", fmt.Sprintf("ListCampaigns: status=%q", status))

	campaigns, err := h.Catalog.ListCampaigns(r.Context(), status)
	if err != nil {
		h.writeError(w, "ListCampaigns", err)
		return
	}

	writeJSON(w, http.StatusOK, campaigns)
}

func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignId")
	h.Logger.Info("API", fmt.Sprintf("GetCampaign: campaignId=%s", campaignID))

	campaign, err := h.Catalog.GetCampaign(r.Context(), campaignID)
	if err != nil {
		h.writeError(w, "GetCampaign", err)
		return
	}

	writeJSON(w, http.StatusOK, campaign)
}

func (h *Handler) GetOccupancy(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignId")
	h.Logger.Info("API", fmt.Sprintf("GetOccupancy: campaignId=%s", campaignID))

	occupancy, err := h.Catalog.Occupancy(r.Context(), campaignID)
	if err != nil {
		h.writeError(w, "GetOccupancy", err)
		return
	}

	writeJSON(w, http.StatusOK, occupancy)
}

func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "ListRoutes: received request")

	routes, err := h.Catalog.ListRoutes(r.Context())
	if err != nil {
		h.writeError(w, "ListRoutes", err)
		return
	}

	writeJSON(w, http.StatusOK, routes)
}

func (h *Handler) ListIndustries(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "ListIndustries: received request")

	industries, err := h.Catalog.ListIndustriesWithSubcategories(r.Context())
	if err != nil {
		h.writeError(w, "ListIndustries", err)
		return
	}

	writeJSON(w, http.StatusOK, industries)
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
