package reconcile

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-crm/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

const (
	// TokenHeader carries the operator token for manual sync triggers.
	TokenHeader = "X-Sync-Token"

	defaultLogLimit = 20
	maxLogLimit     = 100
)

// Handler exposes manual sync triggers and the sync audit log.
type Handler struct {
	logger    *slog.Logger
	engine    *Engine
	tokenHash []byte
}

// NewHandler builds Handler instance. An empty tokenHash leaves the trigger open.
func NewHandler(logger *slog.Logger, engine *Engine, tokenHash string) *Handler {
	h := &Handler{logger: logger, engine: engine}
	if tokenHash != "" {
		h.tokenHash = []byte(tokenHash)
	}
	return h
}

// MountRoutes registers sync routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sync/invoices", h.syncInvoices)
	r.Get("/sync/logs", h.listLogs)
}

func (h *Handler) syncInvoices(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: since must be YYYY-MM-DD", shared.ErrValidation))
			return
		}
		since = &parsed
	}
	result, err := h.engine.SynchronizeInvoices(r.Context(), since)
	if err != nil {
		h.logger.Warn("manual invoice sync", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := shared.ParseLimit(r.URL.Query().Get("limit"), defaultLogLimit, maxLogLimit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	logs, err := h.engine.ListSyncLogs(r.Context(), limit)
	if err != nil {
		h.logger.Error("list sync logs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, logs)
}

func (h *Handler) authorize(r *http.Request) error {
	if len(h.tokenHash) == 0 {
		return nil
	}
	token := r.Header.Get(TokenHeader)
	if token == "" {
		return httpx.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(h.tokenHash, []byte(token)); err != nil {
		return httpx.ErrUnauthorized
	}
	return nil
}
