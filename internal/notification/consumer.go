package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dapurkita/ordersync/internal/order/domain"
	"github.com/dapurkita/ordersync/pkg/idempotency"
	"github.com/dapurkita/ordersync/pkg/tracing"
)

// Consumer turns order events into notification feed entries. Offsets
// are deduplicated through the idempotency store so a consumer-group
// rebalance never double-notifies a user.
type Consumer struct {
	log    *slog.Logger
	reader *kafka.Reader
	store  *Store
	idem   *idempotency.Store
	tracer trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, store *Store, idem *idempotency.Store) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return &Consumer{
		log:    log,
		reader: r,
		store:  store,
		idem:   idem,
		tracer: otel.Tracer("notification-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
		seen, err := c.idem.Seen(ctx, key)
		if err != nil {
			c.log.Error("idempotency check failed", "err", err)
			continue
		}
		if seen {
			c.log.Info("duplicate message skipped", "key", key)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
		msgCtx, span := c.tracer.Start(msgCtx, "ConsumeOrderEvent")

		eventType := headerValue(msg.Headers, "event_type")
		if err := c.handle(msgCtx, eventType, msg.Value); err != nil {
			c.log.Error("notification handling failed", "event_type", eventType, "err", err)
		}
		span.End()
		_ = c.reader.CommitMessages(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, eventType string, payload []byte) error {
	switch eventType {
	case "OrderCreated":
		var event domain.OrderCreated
		if err := json.Unmarshal(payload, &event); err != nil {
			return err
		}
		return c.store.Push(ctx, event.OwnerID, newNote(
			"Order Placed", "🧾",
			fmt.Sprintf("Order %s has been placed and is waiting for payment confirmation.", event.OrderID),
		))
	case "OrderStatusChanged":
		var event domain.OrderStatusChanged
		if err := json.Unmarshal(payload, &event); err != nil {
			return err
		}
		return c.store.Push(ctx, event.OwnerID, statusNote(event))
	default:
		c.log.Info("ignoring unknown event type", "event_type", eventType)
		return nil
	}
}

func statusNote(event domain.OrderStatusChanged) Note {
	switch {
	case event.Status == domain.StatusDelivered || event.Status == domain.StatusCompleted:
		return newNote("Order Delivered", "📦",
			fmt.Sprintf("Order %s has been delivered. Enjoy!", event.OrderID))
	case event.Status == domain.StatusRejected || event.Status == domain.StatusCancelled:
		return newNote("Order Cancelled", "⛔",
			fmt.Sprintf("Order %s has been cancelled.", event.OrderID))
	case event.PaymentStatus == domain.PaymentPaid:
		return newNote("Payment Confirmed", "✅",
			fmt.Sprintf("Order %s is confirmed and payment has been received.", event.OrderID))
	default:
		return newNote("Order Update", "🔔",
			fmt.Sprintf("Order %s is now %s.", event.OrderID, event.Status))
	}
}

func newNote(title, emoji, message string) Note {
	return Note{
		ID:      uuid.NewString(),
		Title:   title,
		Message: message,
		Emoji:   emoji,
		At:      time.Now().UnixMilli(),
	}
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
