// README: Order service applies lifecycle transitions through conditional store updates and announces them.
package order

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"foodtrack/internal/logging"
	"foodtrack/internal/types"
)

var (
	ErrInvalidState  = errors.New("invalid state transition")
	ErrNotFound      = errors.New("order not found")
	ErrConflict      = errors.New("order state conflict")
	ErrBadRequest    = errors.New("bad request")
	ErrForbidden     = errors.New("forbidden")
	ErrNotCompleted  = errors.New("order is not completed")
	ErrInvalidRating = errors.New("stars must be between 1 and 5")
)

// Repository is the persistence contract. UpdateStatus and ApplyCancellation
// must only succeed when the stored status and version still match.
type Repository interface {
	Get(ctx context.Context, id types.ID) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]*Order, error)
	ActiveByDriver(ctx context.Context, driverID types.ID) ([]*Order, error)
	UpdateStatus(ctx context.Context, ch StatusChange) (bool, error)
	ApplyCancellation(ctx context.Context, id types.ID, from Status, version int, c Cancellation) (bool, error)
	UpsertRating(ctx context.Context, r Rating) error
	AppendEvent(ctx context.Context, e *Event) error
}

// Notifier receives every committed transition.
type Notifier interface {
	OrderChanged(ctx context.Context, t Transition)
}

type Transition struct {
	Order            Order
	From             Status
	To               Status
	PreviousDriverID *types.ID
	Actor            Actor
	At               time.Time
}

type ListFilter struct {
	ClientID *types.ID
	DriverID *types.ID
	Limit    int
}

type StatusChange struct {
	OrderID  types.ID
	From     Status
	To       Status
	Version  int
	DriverID *types.ID
	At       time.Time
}

type Service struct {
	store    Repository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store Repository, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{store: store, notifier: notifier, logger: logging.Or(logger), now: time.Now}
}

type CancelCommand struct {
	OrderID types.ID
	Actor   Actor
	Reason  string
}

type RateCommand struct {
	OrderID           types.ID
	Actor             Actor
	DriverStars       int
	DriverComment     string
	RestaurantStars   int
	RestaurantComment string
}

type AdvanceCommand struct {
	OrderID types.ID
	To      Status
	Actor   Actor
}

type AssignCommand struct {
	OrderID  types.ID
	DriverID types.ID
	Actor    Actor
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

// GetFor returns the order if the caller is allowed to see it.
func (s *Service) GetFor(ctx context.Context, id types.ID, who types.Identity) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanWatch(o, who) {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListFor scopes the listing to the caller's role.
func (s *Service) ListFor(ctx context.Context, who types.Identity, limit int) ([]*Order, error) {
	f := ListFilter{Limit: limit}
	switch who.Role {
	case types.RoleClient:
		f.ClientID = &who.ID
	case types.RoleDriver:
		f.DriverID = &who.ID
	case types.RoleAdmin:
	default:
		return nil, ErrForbidden
	}
	return s.store.List(ctx, f)
}

func (s *Service) ActiveForDriver(ctx context.Context, driverID types.ID) ([]*Order, error) {
	return s.store.ActiveByDriver(ctx, driverID)
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	c, err := PlanCancellation(o, cmd.Actor, cmd.Reason, s.now())
	if err != nil {
		return nil, err
	}
	ok, err := s.store.ApplyCancellation(ctx, o.ID, o.Status, o.StatusVersion, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	updated := c.Apply(*o)
	s.record(ctx, *o, updated, cmd.Actor, nil, c.At)
	s.logger.Info("order_cancelled",
		"order_id", string(o.ID),
		"status", string(updated.Status),
		"penalized", c.Penalty != nil,
	)
	return &updated, nil
}

func (s *Service) Rate(ctx context.Context, cmd RateCommand) (*Rating, error) {
	r := Rating{
		OrderID:           cmd.OrderID,
		ClientID:          cmd.Actor.ID,
		DriverStars:       cmd.DriverStars,
		DriverComment:     cmd.DriverComment,
		RestaurantStars:   cmd.RestaurantStars,
		RestaurantComment: cmd.RestaurantComment,
		RatedAt:           s.now(),
	}
	if err := ValidateRating(r); err != nil {
		return nil, err
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if cmd.Actor.Role != types.RoleClient || o.ClientID != cmd.Actor.ID {
		return nil, ErrForbidden
	}
	if o.Status != StatusCompleted {
		return nil, ErrNotCompleted
	}
	if err := s.store.UpsertRating(ctx, r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Advance applies a forward, non-assignment transition.
func (s *Service) Advance(ctx context.Context, cmd AdvanceCommand) (*Order, error) {
	if cmd.To == StatusAssigned || IsCancelled(cmd.To) {
		return nil, ErrBadRequest
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, cmd.To) {
		return nil, ErrInvalidState
	}
	if !mayAdvance(o, cmd.To, cmd.Actor) {
		return nil, ErrForbidden
	}
	return s.transition(ctx, o, cmd.To, o.DriverID, cmd.Actor, nil)
}

// Assign attaches a driver to a pending order, or reassigns one that has not reached the restaurant.
func (s *Service) Assign(ctx context.Context, cmd AssignCommand) (*Order, error) {
	if cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	if !cmd.Actor.System && cmd.Actor.Role != types.RoleAdmin {
		return nil, ErrForbidden
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	driver := cmd.DriverID
	switch o.Status {
	case StatusPending:
		return s.transition(ctx, o, StatusAssigned, &driver, cmd.Actor, nil)
	case StatusAssigned, StatusHeadingToRestaurant:
		if o.DriverID != nil && *o.DriverID == driver {
			return o, nil
		}
		return s.transition(ctx, o, StatusAssigned, &driver, cmd.Actor, o.DriverID)
	default:
		return nil, ErrInvalidState
	}
}

func (s *Service) transition(ctx context.Context, o *Order, to Status, driverID *types.ID, actor Actor, previousDriver *types.ID) (*Order, error) {
	now := s.now()
	ok, err := s.store.UpdateStatus(ctx, StatusChange{
		OrderID:  o.ID,
		From:     o.Status,
		To:       to,
		Version:  o.StatusVersion,
		DriverID: driverID,
		At:       now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	updated := *o
	updated.Status = to
	updated.StatusVersion++
	updated.DriverID = driverID
	if to == StatusDelivered {
		updated.DeliveredAt = &now
	}
	s.record(ctx, *o, updated, actor, previousDriver, now)
	return &updated, nil
}

func (s *Service) record(ctx context.Context, before, after Order, actor Actor, previousDriver *types.ID, at time.Time) {
	if err := s.store.AppendEvent(ctx, &Event{
		OrderID:    after.ID,
		FromStatus: before.Status,
		ToStatus:   after.Status,
		ActorRole:  actor.roleLabel(),
		ActorID:    actor.idPtr(),
		CreatedAt:  at,
	}); err != nil {
		s.logger.Error("order_event_append_failed", "order_id", string(after.ID), "error", err)
	}
	if s.notifier != nil {
		s.notifier.OrderChanged(ctx, Transition{
			Order:            after,
			From:             before.Status,
			To:               after.Status,
			PreviousDriverID: previousDriver,
			Actor:            actor,
			At:               at,
		})
	}
}

func mayAdvance(o *Order, to Status, actor Actor) bool {
	if actor.System || actor.Role == types.RoleAdmin {
		return true
	}
	switch to {
	case StatusHeadingToRestaurant, StatusAtRestaurant, StatusOnTheWay, StatusDelivered:
		return actor.Role == types.RoleDriver && o.DriverID != nil && *o.DriverID == actor.ID
	case StatusCompleted:
		return actor.Role == types.RoleClient && o.ClientID == actor.ID
	default:
		return false
	}
}
