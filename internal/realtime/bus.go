// README: Order event bus; transitions go through RabbitMQ so every instance dispatches them to its sessions.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"foodtrack/internal/logging"
	"foodtrack/internal/modules/order"
)

// OrderBindingKey matches every order transition routing key.
const OrderBindingKey = "order.#"

type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// OrderBus publishes transitions and, on the consuming side, hands them to local.
// When publishing fails the transition is dispatched locally so this instance's sessions still see it.
type OrderBus struct {
	pub    Publisher
	local  order.Notifier
	logger *slog.Logger
}

func NewOrderBus(pub Publisher, local order.Notifier, logger *slog.Logger) *OrderBus {
	return &OrderBus{pub: pub, local: local, logger: logging.Or(logger)}
}

func routingKey(t order.Transition) string {
	return fmt.Sprintf("order.%s", t.To)
}

func (b *OrderBus) OrderChanged(ctx context.Context, t order.Transition) {
	body, err := json.Marshal(t)
	if err == nil {
		err = b.pub.Publish(ctx, routingKey(t), body)
	}
	if err != nil {
		b.logger.Warn("order_event_publish_failed", "order_id", string(t.Order.ID), "status", string(t.To), "error", err)
		b.local.OrderChanged(ctx, t)
	}
}

// Handle is the consumer callback for deliveries bound with OrderBindingKey.
func (b *OrderBus) Handle(ctx context.Context, d amqp.Delivery) error {
	var t order.Transition
	if err := json.Unmarshal(d.Body, &t); err != nil {
		return fmt.Errorf("decode transition: %w", err)
	}
	b.local.OrderChanged(ctx, t)
	return nil
}
