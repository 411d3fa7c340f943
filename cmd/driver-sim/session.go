package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"foodtrack/internal/broadcast"
	"foodtrack/internal/channel"
	"foodtrack/internal/clock"
	"foodtrack/internal/contracts"
	"foodtrack/internal/navigation"
	"foodtrack/internal/types"
)

// session follows the driver's active order over the channel and feeds
// replayed fixes into guidance and the order leg planner.
type session struct {
	ctx    context.Context
	cfg    Config
	token  string
	client *channel.Client
	nav    *navigation.Navigator
	legs   *navigation.LegPlanner
	logger *slog.Logger
	offs   []func()

	mu    sync.Mutex
	order types.ID
}

func newSession(ctx context.Context, cfg Config, token string, client *channel.Client, nav *navigation.Navigator, dir navigation.Directions, logger *slog.Logger) *session {
	s := &session{ctx: ctx, cfg: cfg, token: token, client: client, nav: nav, logger: logger}
	s.legs = navigation.NewLegPlanner(ctx, dir, clock.Real{}, cfg.Recalc, s.onLegRoute, logger)

	s.offs = append(s.offs,
		client.OnReconnect(func() {
			if err := client.Rejoin(); err != nil {
				logger.Warn("rejoin_failed", "error", err)
			}
		}),
		client.OnDisconnect(func(reason string) {
			logger.Warn("channel_disconnected", "reason", reason)
		}),
		client.OnError(func(e contracts.ErrorEvent) {
			logger.Warn("channel_rejected", "event", e.Event, "message", e.Message)
		}),
		client.OnOrderAssigned(s.takeOrder),
		client.OnOrderReassignedToYou(s.takeOrder),
		client.OnOrderReassignedAway(s.dropOrder),
		client.OnOrderCancelled(s.dropOrder),
		client.OnOrderCompleted(s.dropOrder),
		client.OnOrderStatusUpdate(func(e contracts.OrderEvent) {
			logger.Info("order_status", "order_id", string(e.OrderID), "status", e.Status)
		}),
		client.OnVerificationUpdate(func(e contracts.VerificationEvent) {
			logger.Info("verification_updated", "status", e.Status)
		}),
	)
	return s
}

func (s *session) close() {
	for _, off := range s.offs {
		off()
	}
	s.legs.ClearOrder()
}

func (s *session) takeOrder(e contracts.OrderEvent) {
	if e.DriverID != "" && e.DriverID != s.client.Identity().ID {
		return
	}
	// assignment arrives on both the order room and the personal room
	s.mu.Lock()
	dup := s.order == e.OrderID
	s.mu.Unlock()
	if dup {
		return
	}
	if err := s.client.JoinOrderRoom(e.OrderID); err != nil {
		s.logger.Warn("join_order_room_failed", "order_id", string(e.OrderID), "error", err)
		return
	}
	s.mu.Lock()
	s.order = e.OrderID
	s.mu.Unlock()

	ends, err := s.fetchOrder(e.OrderID)
	if err != nil {
		s.logger.Warn("order_fetch_failed", "order_id", string(e.OrderID), "error", err)
		s.legs.SetOrder(e.OrderID, nil, nil)
		return
	}
	s.legs.SetOrder(e.OrderID, &ends.RestaurantLocation, &ends.DeliveryLocation)
	s.logger.Info("order_taken", "order_id", string(e.OrderID))
}

func (s *session) dropOrder(e contracts.OrderEvent) {
	s.mu.Lock()
	current := s.order
	if current == e.OrderID {
		s.order = ""
	}
	s.mu.Unlock()
	if current != e.OrderID {
		return
	}
	s.legs.ClearOrder()
	if err := s.client.LeaveOrderRoom(); err != nil {
		s.logger.Warn("leave_order_room_failed", "order_id", string(e.OrderID), "error", err)
	}
	s.logger.Info("order_released", "order_id", string(e.OrderID), "status", e.Status)
}

func (s *session) onFix(f broadcast.Fix) {
	if idx, moved := s.nav.OnSample(f.Position); moved {
		if step, _, ok := s.nav.CurrentStep(); ok {
			s.logger.Info("guidance_step", "index", idx, "instruction", step.Instruction, "distance_m", step.DistanceMeters)
		}
	}
	s.legs.OnSample(f.Position)
}

func (s *session) onLegRoute(r *navigation.Route, err error) {
	if err != nil {
		s.logger.Warn("order_leg_failed", "error", err)
		return
	}
	c := r.SelectedCandidate()
	s.logger.Info("order_leg_planned", "summary", c.Summary, "distance_m", c.DistanceMeters, "eta", c.Score().String())
	for _, a := range r.Advisories {
		s.logger.Info("order_leg_advisory", "kind", string(a.Kind), "message", a.Message)
	}
}

type orderEnds struct {
	RestaurantLocation types.Point `json:"restaurantLocation"`
	DeliveryLocation   types.Point `json:"deliveryLocation"`
}

func (s *session) fetchOrder(id types.ID) (orderEnds, error) {
	var out orderEnds
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.cfg.BaseURL+"/orders/"+string(id), nil)
	if err != nil {
		return out, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("GET /orders/%s: status %d", id, resp.StatusCode)
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	return out, err
}

// tapLocator forwards every fix to onFix before the broadcast service sees it.
type tapLocator struct {
	broadcast.Locator
	onFix func(broadcast.Fix)
}

func (t *tapLocator) Watch(opts broadcast.WatchOptions, onFix func(broadcast.Fix), onErr func(error)) (func(), error) {
	return t.Locator.Watch(opts, func(f broadcast.Fix) {
		t.onFix(f)
		onFix(f)
	}, onErr)
}
