package handler

import (
	"net/http"

	"treeadopt/internal/model"
	"treeadopt/internal/service"

	"github.com/rs/zerolog"
)

// AdminHandler exposes operator actions.
type AdminHandler struct {
	escalation service.EscalationService
	orders     service.OrderService
	logger     zerolog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(escalation service.EscalationService, orders service.OrderService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		escalation: escalation,
		orders:     orders,
		logger:     logger.With().Str("handler", "admin").Logger(),
	}
}

// RunEscalation handles POST /api/admin/sweeps/escalation requests.
func (h *AdminHandler) RunEscalation(w http.ResponseWriter, r *http.Request) {
	result, err := h.escalation.RunEscalation(r.Context())
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// RetryAssignments handles POST /api/admin/sweeps/assignment requests.
func (h *AdminHandler) RetryAssignments(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil || limit < 1 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "invalid limit parameter", h.logger)
		return
	}

	n, err := h.orders.RetryAssignments(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"assigned": n})
}
