// README: Order aggregate, status definitions and the lifecycle transition table.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"foodtrack/internal/types"
)

type Status string

const (
	StatusNone                         Status = "none"
	StatusPending                      Status = "pending"
	StatusAssigned                     Status = "assigned"
	StatusHeadingToRestaurant          Status = "heading_to_restaurant"
	StatusReadyForPickup               Status = "ready_for_pickup"
	StatusAtRestaurant                 Status = "at_restaurant"
	StatusOnTheWay                     Status = "on_the_way"
	StatusDelivered                    Status = "delivered"
	StatusCompleted                    Status = "completed"
	StatusCancelled                    Status = "cancelled"
	StatusCancelledByClient            Status = "cancelled_by_client"
	StatusCancelledByClientWithPenalty Status = "cancelled_by_client_with_penalty"
	StatusCancelledByAdmin             Status = "cancelled_by_admin"
	StatusCancelledByAdminWithPenalty  Status = "cancelled_by_admin_with_penalty"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type Order struct {
	ID                 types.ID         `json:"id"`
	ClientID           types.ID         `json:"clientId"`
	DriverID           *types.ID        `json:"driverId,omitempty"`
	RestaurantID       types.ID         `json:"restaurantId"`
	RestaurantLocation types.Point      `json:"restaurantLocation"`
	DeliveryLocation   types.Point      `json:"deliveryLocation"`
	Status             Status           `json:"status"`
	StatusVersion      int              `json:"statusVersion"`
	PaymentStatus      PaymentStatus    `json:"paymentStatus"`
	Total              decimal.Decimal  `json:"total"`
	PenaltyAmount      *decimal.Decimal `json:"penaltyAmount,omitempty"`
	RefundAmount       *decimal.Decimal `json:"refundAmount,omitempty"`
	CancellationReason *string          `json:"cancellationReason,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	CancelledAt        *time.Time       `json:"cancelledAt,omitempty"`
	DeliveredAt        *time.Time       `json:"deliveredAt,omitempty"`
}

type Event struct {
	ID         int64
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorRole  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

type Rating struct {
	OrderID           types.ID  `json:"orderId"`
	ClientID          types.ID  `json:"clientId"`
	DriverStars       int       `json:"driverStars"`
	DriverComment     string    `json:"driverComment,omitempty"`
	RestaurantStars   int       `json:"restaurantStars"`
	RestaurantComment string    `json:"restaurantComment,omitempty"`
	RatedAt           time.Time `json:"ratedAt"`
}

// Actor is whoever requests a transition. System actors have no identity.
type Actor struct {
	ID     types.ID
	Role   types.Role
	System bool
}

func SystemActor() Actor { return Actor{System: true} }

func (a Actor) roleLabel() string {
	if a.System {
		return "system"
	}
	return string(a.Role)
}

func (a Actor) idPtr() *types.ID {
	if a.System || a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

// AllowedTransitions represents the forward order flow as code. Cancellation
// edges are implied for every non-terminal status and checked in CanTransition.
var AllowedTransitions = map[Status][]Status{
	StatusPending:             {StatusAssigned},
	StatusAssigned:            {StatusHeadingToRestaurant},
	StatusHeadingToRestaurant: {StatusReadyForPickup, StatusAtRestaurant},
	StatusReadyForPickup:      {StatusAtRestaurant, StatusOnTheWay},
	StatusAtRestaurant:        {StatusReadyForPickup, StatusOnTheWay},
	StatusOnTheWay:            {StatusDelivered},
	StatusDelivered:           {StatusCompleted},
}

func IsCancelled(s Status) bool {
	switch s {
	case StatusCancelled,
		StatusCancelledByClient,
		StatusCancelledByClientWithPenalty,
		StatusCancelledByAdmin,
		StatusCancelledByAdminWithPenalty:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition may leave s.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || IsCancelled(s)
}

func CanTransition(from, to Status) bool {
	if IsTerminal(from) {
		return false
	}
	if IsCancelled(to) {
		return true
	}
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanWatch reports whether an identity may observe the order's realtime room.
func CanWatch(o *Order, who types.Identity) bool {
	switch who.Role {
	case types.RoleAdmin:
		return true
	case types.RoleClient:
		return o.ClientID == who.ID
	case types.RoleDriver:
		return o.DriverID != nil && *o.DriverID == who.ID
	default:
		return false
	}
}
