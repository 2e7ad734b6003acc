// Package events consumes payment gateway events from NATS.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"treeadopt/internal/config"
	"treeadopt/internal/metrics"
	"treeadopt/internal/model"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// handleTimeout bounds the work done for one payment message.
const handleTimeout = 30 * time.Second

// PaymentHandler records a trusted payment.
type PaymentHandler interface {
	MarkPaid(ctx context.Context, event model.PaymentEvent) (*model.Order, error)
}

// Reply is sent back when the publisher used request/reply.
type Reply struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Connect dials NATS with reconnect handling logged through logger.
func Connect(cfg config.NATSConfig, logger zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("treeadopt"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}

// PaymentSubscriber feeds "order paid" events into a PaymentHandler. Members
// of the same queue group share the subject, so each event is handled once.
type PaymentSubscriber struct {
	nc      *nats.Conn
	subject string
	queue   string
	handler PaymentHandler
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu     sync.Mutex
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPaymentSubscriber creates a subscriber for subject in queue group queue.
func NewPaymentSubscriber(nc *nats.Conn, subject, queue string, handler PaymentHandler, m *metrics.Metrics, logger zerolog.Logger) *PaymentSubscriber {
	return &PaymentSubscriber{
		nc:      nc,
		subject: subject,
		queue:   queue,
		handler: handler,
		metrics: m,
		logger:  logger.With().Str("component", "payment_subscriber").Logger(),
	}
}

// Start subscribes. Handlers run with a context derived from ctx.
func (s *PaymentSubscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		return fmt.Errorf("payment subscriber already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	sub, err := s.nc.QueueSubscribe(s.subject, s.queue, s.handle)
	if err != nil {
		s.cancel()
		return fmt.Errorf("failed to subscribe to %s: %w", s.subject, err)
	}
	s.sub = sub

	s.logger.Info().Str("subject", s.subject).Str("queue", s.queue).Msg("payment subscriber started")
	return nil
}

// Stop drains pending messages and unsubscribes.
func (s *PaymentSubscriber) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub == nil {
		return nil
	}
	err := s.sub.Drain()
	deadline := time.Now().Add(handleTimeout)
	for s.sub.IsValid() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	s.cancel()
	s.sub = nil
	if err != nil {
		return fmt.Errorf("failed to drain payment subscription: %w", err)
	}
	return nil
}

func (s *PaymentSubscriber) handle(msg *nats.Msg) {
	base := s.ctx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(base, handleTimeout)
	defer cancel()

	reply := s.process(ctx, msg.Data)
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn().Err(err).Msg("failed to respond to payment event")
	}
}

// process decodes and applies one event. Malformed payloads are dropped
// since redelivery would not fix them.
func (s *PaymentSubscriber) process(ctx context.Context, data []byte) Reply {
	var event model.PaymentEvent
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&event); err != nil {
		s.metrics.PaymentEvent("nats", "invalid")
		s.logger.Warn().Err(err).Msg("dropping malformed payment event")
		return Reply{Error: model.ErrCodeInvalidJSON, Message: "Invalid payment event payload"}
	}

	order, err := s.handler.MarkPaid(ctx, event)
	if err != nil {
		if de, ok := model.AsDomainError(err); ok {
			s.metrics.PaymentEvent("nats", "rejected")
			s.logger.Warn().
				Str("order_id", event.OrderID.String()).
				Str("code", de.Code).
				Msg("payment event rejected")
			return Reply{Error: de.Code, Message: de.Message}
		}
		s.metrics.PaymentEvent("nats", "error")
		s.logger.Error().Err(err).Str("order_id", event.OrderID.String()).Msg("failed to apply payment event")
		return Reply{Error: model.ErrCodeInternalError, Message: "Payment could not be recorded"}
	}

	s.metrics.PaymentEvent("nats", "applied")
	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("payment_ref", event.PaymentRef).
		Msg("payment event applied")
	return Reply{OK: true}
}
