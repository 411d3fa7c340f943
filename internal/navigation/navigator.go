package navigation

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"foodtrack/internal/logging"
	"foodtrack/internal/types"
)

// Navigator owns one driver's guided route. The step pointer only moves
// through OnSample (forward) and Recalculate / a new plan (reset to zero).
type Navigator struct {
	dir    Directions
	logger *slog.Logger

	mu       sync.Mutex
	req      RouteRequest
	route    *Route
	pointer  int
	guiding  bool
	position types.Point
	hasPos   bool
}

func NewNavigator(dir Directions, logger *slog.Logger) *Navigator {
	return &Navigator{dir: dir, logger: logging.Or(logger)}
}

// Plan computes a route for req and makes it the current one.
func (n *Navigator) Plan(ctx context.Context, req RouteRequest) (*Route, error) {
	r, err := Plan(ctx, n.dir, req)
	if err != nil {
		return nil, err
	}
	n.logAdvisories(r)

	n.mu.Lock()
	n.req = req
	n.route = r
	n.pointer = 0
	n.mu.Unlock()
	return r, nil
}

// NavigateTo plans from the last known position to destination.
func (n *Navigator) NavigateTo(ctx context.Context, destination types.Point) (*Route, error) {
	n.mu.Lock()
	origin, ok := n.position, n.hasPos
	n.mu.Unlock()
	if !ok {
		return nil, ErrMissingEndpoint
	}
	return n.Plan(ctx, RouteRequest{Origin: origin, Destination: destination})
}

// Recalculate replans from the current position to the same destination and
// waypoints, replacing every step and resetting the pointer.
func (n *Navigator) Recalculate(ctx context.Context) (*Route, error) {
	n.mu.Lock()
	if n.route == nil || !n.hasPos {
		n.mu.Unlock()
		return nil, ErrMissingEndpoint
	}
	req := RouteRequest{
		Origin:      n.position,
		Destination: n.req.Destination,
		Waypoints:   slices.Clone(n.req.Waypoints),
	}
	n.mu.Unlock()
	return n.Plan(ctx, req)
}

// StartGuidance enables pointer tracking on the current route.
func (n *Navigator) StartGuidance() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.route == nil || len(n.route.Steps) == 0 {
		return ErrNoRoute
	}
	n.guiding = true
	return nil
}

func (n *Navigator) StopGuidance() {
	n.mu.Lock()
	n.guiding = false
	n.mu.Unlock()
}

// OnSample records p and, while guiding, advances the pointer to the nearest
// step. It returns the pointer and whether it moved.
func (n *Navigator) OnSample(p types.Point) (int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !p.Valid() {
		return n.pointer, false
	}
	n.position, n.hasPos = p, true
	if !n.guiding || n.route == nil {
		return n.pointer, false
	}
	nearest := NearestStep(p, n.route.Steps)
	next := advance(n.pointer, nearest)
	moved := next != n.pointer
	n.pointer = next
	return n.pointer, moved
}

// CurrentStep returns the step under the pointer.
func (n *Navigator) CurrentStep() (Step, int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.route == nil || n.pointer >= len(n.route.Steps) {
		return Step{}, 0, false
	}
	return n.route.Steps[n.pointer], n.pointer, true
}

func (n *Navigator) Steps() []Step {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.route == nil {
		return nil
	}
	return slices.Clone(n.route.Steps)
}

func (n *Navigator) Guiding() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.guiding
}

func (n *Navigator) logAdvisories(r *Route) {
	for _, a := range r.Advisories {
		n.logger.Info("route_advisory", "kind", string(a.Kind), "message", a.Message)
	}
}
