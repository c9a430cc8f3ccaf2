package pricing_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-adbooking/internal/auth"
	"ms-adbooking/internal/errs"
	"ms-adbooking/internal/logger"
	"ms-adbooking/internal/models"
	"ms-adbooking/internal/pricing"
	"ms-adbooking/internal/utils"
)

// Handler exposes pricing rule administration. All routes are admin-only;
// advertisers only ever see rules through quote breakdowns.
type Handler struct {
	Service *pricing.Service
	Logger  *logger.Logger
}

func NewHandler(service *pricing.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", fmt.Sprintf("ListRules: admin=%s", auth.UserID(r.Context())))

	rules, err := h.Service.ListRules(r.Context())
	if err != nil {
		h.writeError(w, "ListRules", err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")
	h.Logger.Info("API", fmt.Sprintf("GetRule: id=%s", ruleID))

	rule, err := h.Service.GetRule(r.Context(), ruleID)
	if err != nil {
		h.writeError(w, "GetRule", err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req models.PricingRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "CreateRule", errs.Validation("invalid request body"))
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreateRule: type=%s admin=%s", req.RuleType, auth.UserID(r.Context())))

	rule, err := h.Service.CreateRule(r.Context(), req)
	if err != nil {
		h.writeError(w, "CreateRule", err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
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
