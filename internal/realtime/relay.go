// README: Redis pub/sub relay so room broadcasts reach sessions held by other instances.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"foodtrack/internal/contracts"
	"foodtrack/internal/logging"
)

const relayChannel = "foodtrack:rooms"

type relayEnvelope struct {
	Room  string          `json:"room"`
	Frame contracts.Frame `json:"frame"`
}

// RedisRelay publishes every room frame on one channel, which keeps per-room order.
type RedisRelay struct {
	rdb    *redis.Client
	hub    *Hub
	logger *slog.Logger
}

func NewRedisRelay(rdb *redis.Client, hub *Hub, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{rdb: rdb, hub: hub, logger: logging.Or(logger)}
}

func (r *RedisRelay) Publish(ctx context.Context, room string, f contracts.Frame) error {
	raw, err := json.Marshal(relayEnvelope{Room: room, Frame: f})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, relayChannel, raw).Err()
}

// Start subscribes, installs the relay on the hub and delivers incoming frames
// until ctx is done. It returns once the subscription is confirmed.
func (r *RedisRelay) Start(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, relayChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("relay subscribe: %w", err)
	}
	r.hub.SetRelay(r)
	r.logger.Info("relay_subscribed", "channel", relayChannel)

	go func() {
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var env relayEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.logger.Warn("relay_decode_failed", "error", err)
					continue
				}
				r.hub.DeliverLocal(env.Room, env.Frame)
			}
		}
	}()
	return nil
}
