// README: RabbitMQ client for the order event exchange (publisher confirms, per-instance consumer queues).
package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"foodtrack/internal/logging"
)

const publishTimeout = 5 * time.Second

type RabbitMQ struct {
	exchange string
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	pubChan *amqp.Channel
}

// DialRabbitMQ connects and declares a durable topic exchange.
func DialRabbitMQ(url, exchange string, logger *slog.Logger) (*RabbitMQ, error) {
	logger = logging.Or(logger)
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(30 * time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: failed to enable confirms: %w", err)
	}
	logger.Info("rabbitmq_connected", "exchange", exchange)
	return &RabbitMQ{exchange: exchange, logger: logger, conn: conn, pubChan: ch}, nil
}

// Publish sends a persistent JSON message and waits for the broker ack.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil || r.conn.IsClosed() || r.pubChan == nil || r.pubChan.IsClosed() {
		return errors.New("rabbitmq: publish channel is not open")
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	confirm, err := r.pubChan.PublishWithDeferredConfirmWithContext(ctx, r.exchange, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return err
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return errors.New("rabbitmq: publish not acknowledged")
	}
	return nil
}

// Consume binds an exclusive, server-named queue to bindingKey and hands every
// delivery to handler until ctx is done. Handler errors drop the message.
func (r *RabbitMQ) Consume(ctx context.Context, bindingKey string, handler func(context.Context, amqp.Delivery) error) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return errors.New("rabbitmq: connection is not ready")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(32, 0, false); err != nil {
		return fmt.Errorf("rabbitmq: set QoS: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, bindingKey, r.exchange, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: bind %s: %w", bindingKey, err)
	}
	deliveries, err := ch.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume(%s): %w", q.Name, err)
	}
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return nil
		case cerr := <-chClosed:
			if cerr != nil {
				return fmt.Errorf("rabbitmq: channel closed while consuming: %w", cerr)
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			hCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := handler(hCtx, d)
			cancel()
			if err != nil {
				r.logger.Warn("rabbitmq_handler_failed", "routing_key", d.RoutingKey, "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (r *RabbitMQ) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubChan != nil {
		_ = r.pubChan.Close()
		r.pubChan = nil
	}
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}
