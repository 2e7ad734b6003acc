package handler

import (
	"net/http"

	"treeadopt/internal/metrics"
	"treeadopt/internal/model"
	"treeadopt/internal/service"

	"github.com/rs/zerolog"
)

// PaymentHandler receives "order paid" callbacks from the payment gateway.
type PaymentHandler struct {
	service service.OrderService
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(service service.OrderService, m *metrics.Metrics, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		metrics: m,
		logger:  logger.With().Str("handler", "payment").Logger(),
	}
}

// Event handles POST /api/payments/events requests.
func (h *PaymentHandler) Event(w http.ResponseWriter, r *http.Request) {
	var event model.PaymentEvent
	if err := decodeJSON(w, r, &event); err != nil {
		h.metrics.PaymentEvent("http", "invalid")
		writeServiceError(w, r, err, h.logger)
		return
	}

	order, err := h.service.MarkPaid(r.Context(), event)
	if err != nil {
		result := "error"
		if _, ok := model.AsDomainError(err); ok {
			result = "rejected"
		}
		h.metrics.PaymentEvent("http", result)
		writeServiceError(w, r, err, h.logger)
		return
	}

	h.metrics.PaymentEvent("http", "applied")
	writeJSON(w, http.StatusOK, order)
}
