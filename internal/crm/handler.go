package crm

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-crm/internal/platform/httpx"
)

// Handler exposes client and opportunity intake endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers intake routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/clients", h.createClient)
	r.Delete("/clients/{id}", h.deleteClient)
	r.Post("/opportunities", h.createOpportunity)
	r.Get("/opportunities/{id}", h.getOpportunity)
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	client, err := h.service.CreateClient(r.Context(), req)
	if err != nil {
		h.logFailure("create client", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, client)
}

func (h *Handler) deleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteClient(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.logFailure("delete client", err)
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createOpportunity(w http.ResponseWriter, r *http.Request) {
	var req CreateOpportunityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	opp, err := h.service.CreateOpportunity(r.Context(), req)
	if err != nil {
		h.logFailure("create opportunity", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, opp)
}

func (h *Handler) getOpportunity(w http.ResponseWriter, r *http.Request) {
	opp, err := h.service.GetOpportunity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logFailure("get opportunity", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, opp)
}

func (h *Handler) logFailure(op string, err error) {
	h.logger.Warn(op, slog.Any("error", err))
}
