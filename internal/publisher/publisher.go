package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	DefaultTopic           = "storefront.checkout-completed"
	EventCheckoutCompleted = "CheckoutCompleted"
)

// CheckoutCompletedEvent is the payload published after an order is placed.
type CheckoutCompletedEvent struct {
	ReceiptID        string    `json:"receipt_id"`
	SnapshotID       string    `json:"snapshot_id"`
	OrderRef         string    `json:"order_ref"`
	UserID           string    `json:"user_id"`
	ItemIDs          []int64   `json:"item_ids"`
	SubtotalProducts int64     `json:"subtotal_products"`
	SubtotalShipping int64     `json:"subtotal_shipping"`
	GrandTotal       int64     `json:"grand_total"`
	Currency         string    `json:"currency"`
	CompletedAt      time.Time `json:"completed_at"`
}

func NewCheckoutCompletedEvent(r domain.Receipt) CheckoutCompletedEvent {
	return CheckoutCompletedEvent{
		ReceiptID:        r.ID,
		SnapshotID:       r.SnapshotID,
		OrderRef:         r.OrderRef,
		UserID:           r.UserID,
		ItemIDs:          r.ItemIDs,
		SubtotalProducts: int64(r.Totals.SubtotalProducts),
		SubtotalShipping: int64(r.Totals.SubtotalShipping),
		GrandTotal:       int64(r.Totals.GrandTotal),
		Currency:         r.Currency,
		CompletedAt:      r.CompletedAt,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type EventPublisher struct {
	writer  messageWriter
	timeout time.Duration
	logger  *zap.Logger
}

func NewEventPublisher(topic string, logger *zap.Logger, brokers ...string) *EventPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return newEventPublisher(w, logger)
}

func newEventPublisher(w messageWriter, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{writer: w, timeout: 5 * time.Second, logger: logger}
}

// PublishCheckoutCompleted writes one event keyed by snapshot id so all
// events of a checkout land on the same partition.
func (p *EventPublisher) PublishCheckoutCompleted(ctx context.Context, r domain.Receipt) error {
	payload, err := json.Marshal(NewCheckoutCompletedEvent(r))
	if err != nil {
		return fmt.Errorf("failed to marshal checkout event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(r.SnapshotID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventCheckoutCompleted)},
		},
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish checkout event: %w", err)
	}
	p.logger.Info("checkout completed event published",
		zap.String("receipt_id", r.ID),
		zap.String("snapshot_id", r.SnapshotID))
	return nil
}

func (p *EventPublisher) Close() error {
	return p.writer.Close()
}
