package handler

import (
	"net/http"

	"treeadopt/internal/model"
	"treeadopt/internal/service"

	"github.com/rs/zerolog"
)

// TreeHandler serves the tree catalogue.
type TreeHandler struct {
	service service.TreeService
	logger  zerolog.Logger
}

// NewTreeHandler creates a new tree handler.
func NewTreeHandler(service service.TreeService, logger zerolog.Logger) *TreeHandler {
	return &TreeHandler{
		service: service,
		logger:  logger.With().Str("handler", "tree").Logger(),
	}
}

// GetAll handles GET /api/trees requests with pagination.
func (h *TreeHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	if limit < 1 || limit > 100 || offset < 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "limit must be 1-100 and offset non-negative", h.logger)
		return
	}

	trees, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, trees)
}

// GetByID handles GET /api/trees/{id} requests.
func (h *TreeHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	tree, err := h.service.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, tree)
}
