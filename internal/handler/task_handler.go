package handler

import (
	"net/http"
	"strconv"

	"treeadopt/internal/model"
	"treeadopt/internal/service"

	"github.com/rs/zerolog"
)

// TaskHandler serves the wellwisher task endpoints.
type TaskHandler struct {
	tasks     service.TaskService
	growth    service.GrowthService
	stats     service.StatsService
	maxUpload int64
	logger    zerolog.Logger
}

// NewTaskHandler creates a new task handler. maxUpload bounds multipart bodies.
func NewTaskHandler(tasks service.TaskService, growth service.GrowthService, stats service.StatsService, maxUpload int64, logger zerolog.Logger) *TaskHandler {
	return &TaskHandler{
		tasks:     tasks,
		growth:    growth,
		stats:     stats,
		maxUpload: maxUpload,
		logger:    logger.With().Str("handler", "task").Logger(),
	}
}

// List handles GET /api/wellwisher/tasks requests.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r, h.logger)
	if !ok {
		return
	}

	filter := model.TaskFilter{Status: model.TaskStatus(r.URL.Query().Get("status"))}
	var err error
	if filter.Page, err = queryInt(r, "page", 1); err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	if raw := r.URL.Query().Get("needsGrowthUpdate"); raw != "" {
		if filter.NeedsGrowthUpdate, err = strconv.ParseBool(raw); err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "invalid needsGrowthUpdate parameter", h.logger)
			return
		}
	}

	page, err := h.tasks.ListTasks(r.Context(), caller, filter)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// UpdateStatus handles PUT /api/wellwisher/tasks requests.
func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r, h.logger)
	if !ok {
		return
	}

	var req model.TaskStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	task, err := h.tasks.UpdateStatus(r.Context(), caller, req)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// Planting handles POST /api/wellwisher/planting multipart requests.
func (h *TaskHandler) Planting(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r, h.logger)
	if !ok {
		return
	}

	f, err := parseForm(w, r, h.maxUpload,
		"taskId", "orderId", "notes", "captions", "lat", "lng", "accuracy", "altitude", "heading", "speed")
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	req := model.PlantingRequest{Images: f.images, Captions: f.captions, Notes: f.values["notes"]}
	if req.OrderID, req.TaskID, err = f.taskRef(); err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	if req.Location, err = f.point(); err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	for name, dst := range map[string]**float64{
		"accuracy": &req.Accuracy,
		"altitude": &req.Altitude,
		"heading":  &req.Heading,
		"speed":    &req.Speed,
	} {
		if *dst, err = f.float(name); err != nil {
			writeServiceError(w, r, err, h.logger)
			return
		}
	}

	task, err := h.tasks.CompletePlanting(r.Context(), caller, req)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// GrowthUpdate handles POST /api/wellwisher/growth-update multipart requests.
func (h *TaskHandler) GrowthUpdate(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r, h.logger)
	if !ok {
		return
	}

	f, err := parseForm(w, r, h.maxUpload, "taskId", "orderId", "notes")
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	req := model.GrowthUpdateRequest{Images: f.images, Notes: f.values["notes"]}
	if req.OrderID, req.TaskID, err = f.taskRef(); err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	update, err := h.growth.SubmitGrowthUpdate(r.Context(), caller, req)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, update)
}

// Stats handles GET /api/wellwisher/stats requests.
func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r, h.logger)
	if !ok {
		return
	}

	stats, err := h.stats.GetStats(r.Context(), caller)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
