// README: Gateway serves one socket: reads client frames, enforces room and role rules, fans out locations.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"foodtrack/internal/contracts"
	"foodtrack/internal/logging"
	"foodtrack/internal/modules/location"
	"foodtrack/internal/modules/order"
	"foodtrack/internal/types"
)

// Orders is the read side of the order module used for room authorization.
type Orders interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	ActiveForDriver(ctx context.Context, driverID types.ID) ([]*order.Order, error)
}

// Locations records accepted samples.
type Locations interface {
	Record(ctx context.Context, s location.Sample) bool
}

type Gateway struct {
	hub       *Hub
	orders    Orders
	locations Locations
	logger    *slog.Logger
	now       func() time.Time
}

func NewGateway(hub *Hub, orders Orders, locations Locations, logger *slog.Logger) *Gateway {
	return &Gateway{hub: hub, orders: orders, locations: locations, logger: logging.Or(logger), now: time.Now}
}

// Serve registers conn and processes its frames until the read side fails.
func (g *Gateway) Serve(ctx context.Context, conn Conn, who types.Identity) {
	s := g.hub.Register(conn, who)
	defer g.hub.Unregister(s)

	for {
		var f contracts.Frame
		if err := conn.ReadJSON(&f); err != nil {
			var syntax *json.SyntaxError
			var typ *json.UnmarshalTypeError
			if errors.As(err, &syntax) || errors.As(err, &typ) {
				g.reject(s, "", "bad json")
				continue
			}
			g.logger.Info("ws_connection_closed", "user_id", string(who.ID), "reason", err.Error())
			return
		}
		g.Handle(ctx, s, f)
	}
}

// Handle processes one client frame.
func (g *Gateway) Handle(ctx context.Context, s *Session, f contracts.Frame) {
	if need, ok := contracts.EmitRole(f.Event); ok && s.who.Role != need {
		g.reject(s, f.Event, "forbidden")
		return
	}
	switch f.Event {
	case contracts.EventJoinOrderRoom:
		g.joinOrderRoom(ctx, s, f.Data)
	case contracts.EventLeaveOrderRoom:
		g.hub.LeaveOrderRoom(s)
	case contracts.EventJoinAdminTracking:
		g.hub.Join(s, contracts.AdminTrackingRoom)
	case contracts.EventShareDriverLocation:
		g.shareLocation(ctx, s, f.Data)
	case contracts.EventUpdateDriverLocation:
		g.updateLocation(ctx, s, f.Data)
	default:
		g.reject(s, f.Event, "unknown event")
	}
}

func (g *Gateway) joinOrderRoom(ctx context.Context, s *Session, data json.RawMessage) {
	var req contracts.RoomRequest
	if err := json.Unmarshal(data, &req); err != nil || req.OrderID == "" {
		g.reject(s, contracts.EventJoinOrderRoom, "orderId required")
		return
	}
	o, err := g.orders.Get(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			g.reject(s, contracts.EventJoinOrderRoom, "order not found")
			return
		}
		g.logger.Error("ws_join_lookup_failed", "order_id", string(req.OrderID), "error", err)
		g.reject(s, contracts.EventJoinOrderRoom, "internal error")
		return
	}
	if !order.CanWatch(o, s.who) {
		g.reject(s, contracts.EventJoinOrderRoom, "forbidden")
		return
	}
	g.hub.SwitchOrderRoom(s, contracts.OrderRoom(o.ID))
}

func (g *Gateway) shareLocation(ctx context.Context, s *Session, data json.RawMessage) {
	var req contracts.ShareLocation
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	sample := location.Sample{
		DriverID:   s.who.ID,
		Position:   types.Point{Lat: req.Lat, Lng: req.Lng},
		Accuracy:   req.Accuracy,
		CapturedAt: g.now(),
	}
	if !g.locations.Record(ctx, sample) {
		return
	}
	ev := locationEvent(sample)
	g.hub.Broadcast(ctx, contracts.AdminTrackingRoom, contracts.EventDriverLocationBroadcast, ev)

	active, err := g.orders.ActiveForDriver(ctx, s.who.ID)
	if err != nil {
		g.logger.Warn("ws_active_orders_failed", "driver_id", string(s.who.ID), "error", err)
		return
	}
	for _, o := range active {
		per := ev
		per.OrderID = o.ID
		g.hub.Broadcast(ctx, contracts.OrderRoom(o.ID), contracts.EventDriverLocationBroadcast, per)
	}
}

func (g *Gateway) updateLocation(ctx context.Context, s *Session, data json.RawMessage) {
	var req contracts.UpdateLocation
	if err := json.Unmarshal(data, &req); err != nil || req.OrderID == "" {
		return
	}
	o, err := g.orders.Get(ctx, req.OrderID)
	if err != nil || o.DriverID == nil || *o.DriverID != s.who.ID {
		g.reject(s, contracts.EventUpdateDriverLocation, "forbidden")
		return
	}
	orderID := o.ID
	sample := location.Sample{
		DriverID:   s.who.ID,
		OrderID:    &orderID,
		Position:   types.Point{Lat: req.Lat, Lng: req.Lng},
		Accuracy:   req.Accuracy,
		CapturedAt: g.now(),
	}
	if !g.locations.Record(ctx, sample) {
		return
	}
	ev := locationEvent(sample)
	g.hub.Broadcast(ctx, contracts.OrderRoom(o.ID), contracts.EventDriverLocationUpdate, ev)
	g.hub.Broadcast(ctx, contracts.AdminTrackingRoom, contracts.EventDriverLocationBroadcast, ev)
}

func (g *Gateway) reject(s *Session, event, msg string) {
	f, err := contracts.NewFrame(contracts.EventError, contracts.ErrorEvent{Event: event, Message: msg})
	if err != nil {
		return
	}
	s.enqueue(f)
}

func locationEvent(s location.Sample) contracts.LocationEvent {
	ev := contracts.LocationEvent{
		DriverID:   s.DriverID,
		Lat:        s.Position.Lat,
		Lng:        s.Position.Lng,
		Accuracy:   s.Accuracy,
		CapturedAt: s.CapturedAt,
	}
	if s.OrderID != nil {
		ev.OrderID = *s.OrderID
	}
	return ev
}
