package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/order-management/internal/domain"
)

const maxRecentLimit = 50

type SummaryReader interface {
	GetSummary(ctx context.Context, recentLimit int) (*domain.DashboardSummary, error)
}

type Handler struct {
	repo   SummaryReader
	logger *slog.Logger
}

func NewHandler(repo SummaryReader, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRecentLimit
	if raw := r.URL.Query().Get("recent"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRecentLimit {
			h.writeError(w, http.StatusBadRequest, "recent must be between 1 and 50")
			return
		}
		limit = n
	}

	summary, err := h.repo.GetSummary(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to load dashboard summary", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("dashboard summary loaded", "total_orders", summary.TotalOrders, "recent", len(summary.RecentOrders))
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
