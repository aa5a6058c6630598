package salesdate

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// UpdateRequest is the payload of POST /sales-dates.
type UpdateRequest struct {
	OpportunityID string `json:"opportunity_id" validate:"required"`
	NewDate       string `json:"new_date" validate:"required,datetime=2006-01-02"`
	UpdatedBy     string `json:"updated_by" validate:"required,max=255"`
}

// Handler exposes the sales-date endpoints.
type Handler struct {
	logger   *slog.Logger
	workflow *Workflow
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, workflow *Workflow) *Handler {
	return &Handler{logger: logger, workflow: workflow}
}

// MountRoutes registers sales-date routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales-dates", h.update)
	r.Get("/opportunities/{id}/sales-dates", h.history)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	newDate, _ := time.Parse(time.DateOnly, req.NewDate)

	out, err := h.workflow.UpdateSalesDate(r.Context(), req.OpportunityID, newDate, req.UpdatedBy)
	if err != nil {
		h.logger.Warn("update sales date", slog.Any("error", err), slog.String("opportunity_id", req.OpportunityID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out.Update)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	updates, err := h.workflow.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updates)
}
