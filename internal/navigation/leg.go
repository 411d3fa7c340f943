package navigation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"foodtrack/internal/clock"
	"foodtrack/internal/logging"
	"foodtrack/internal/types"
)

// DefaultRecalcWindow bounds leg recomputation to one request per window.
const DefaultRecalcWindow = 2500 * time.Millisecond

// LegPlanner keeps the driver's route for an active order (current position,
// restaurant waypoint, client destination) up to date as the driver moves.
// The first sample after a request opens a window; the request fires when the
// window closes, using the latest position seen.
type LegPlanner struct {
	ctx     context.Context
	dir     Directions
	clock   clock.Clock
	window  time.Duration
	onRoute func(*Route, error)
	logger  *slog.Logger

	mu         sync.Mutex
	orderID    types.ID
	restaurant *types.Point
	client     *types.Point
	position   types.Point
	hasPos     bool
	pending    clock.Timer
	// gen changes on every SetOrder; a request started under an older gen is dropped.
	gen int
}

func NewLegPlanner(ctx context.Context, dir Directions, clk clock.Clock, window time.Duration, onRoute func(*Route, error), logger *slog.Logger) *LegPlanner {
	if window <= 0 {
		window = DefaultRecalcWindow
	}
	return &LegPlanner{ctx: ctx, dir: dir, clock: clk, window: window, onRoute: onRoute, logger: logging.Or(logger)}
}

// SetOrder activates planning for orderID. Nil endpoints suppress requests.
func (l *LegPlanner) SetOrder(orderID types.ID, restaurant, client *types.Point) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.orderID = orderID
	l.restaurant = restaurant
	l.client = client
	if !l.readyLocked() {
		l.stopLocked()
	}
}

// ClearOrder stops planning and drops any pending request.
func (l *LegPlanner) ClearOrder() {
	l.SetOrder("", nil, nil)
}

func (l *LegPlanner) OnSample(p types.Point) {
	if !p.Valid() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.position, l.hasPos = p, true
	if !l.readyLocked() || l.pending != nil {
		return
	}
	l.pending = l.clock.AfterFunc(l.window, l.fire)
}

func (l *LegPlanner) readyLocked() bool {
	return l.orderID != "" && l.restaurant != nil && l.client != nil
}

func (l *LegPlanner) stopLocked() {
	if l.pending != nil {
		l.pending.Stop()
		l.pending = nil
	}
}

func (l *LegPlanner) fire() {
	l.mu.Lock()
	l.pending = nil
	if !l.readyLocked() || !l.hasPos {
		l.mu.Unlock()
		return
	}
	orderID, gen := l.orderID, l.gen
	req := RouteRequest{
		Origin:      l.position,
		Destination: *l.client,
		Waypoints:   []types.Point{*l.restaurant},
	}
	l.mu.Unlock()

	r, err := Plan(l.ctx, l.dir, req)

	l.mu.Lock()
	stale := gen != l.gen
	l.mu.Unlock()
	if stale {
		l.logger.Debug("leg_route_dropped", "order_id", string(orderID))
		return
	}
	if err != nil {
		l.logger.Warn("leg_route_failed", "order_id", string(orderID), "error", err)
	} else {
		for _, a := range r.Advisories {
			l.logger.Info("route_advisory", "order_id", string(orderID), "kind", string(a.Kind), "message", a.Message)
		}
	}
	if l.onRoute != nil {
		l.onRoute(r, err)
	}
}
