package poller

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fjod/go_cart/storefront-service/internal/publisher"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// CompletionHandler reacts to orders placed through any storefront replica.
type CompletionHandler interface {
	HandleCheckoutCompleted(ctx context.Context, event publisher.CheckoutCompletedEvent)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Poller struct {
	reader  messageReader
	handler CompletionHandler
	logger  *zap.Logger
}

// NewPoller reads the checkout-completed topic. Every replica needs every
// event, so groupID must be unique per instance.
func NewPoller(handler CompletionHandler, topic, groupID string, logger *zap.Logger, brokers ...string) *Poller {
	if topic == "" {
		topic = publisher.DefaultTopic
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MaxBytes:    10e6, // 10MB
	})
	return newPoller(reader, handler, logger)
}

func newPoller(reader messageReader, handler CompletionHandler, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{reader: reader, handler: handler, logger: logger}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.handleNext(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Warn("error closing reader", zap.Error(err))
	}
}

func (p *Poller) handleNext(ctx context.Context) {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Warn("error reading message", zap.Error(err))
		}
		return
	}

	if eventType(m) != publisher.EventCheckoutCompleted {
		return
	}

	var event publisher.CheckoutCompletedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		p.logger.Warn("error parsing message", zap.Error(err))
		return
	}
	if event.UserID == "" {
		p.logger.Warn("missing user_id", zap.String("snapshot_id", event.SnapshotID))
		return
	}

	p.handler.HandleCheckoutCompleted(ctx, event)
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
