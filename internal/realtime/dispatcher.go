// README: Dispatcher turns committed order transitions and verification decisions into room events.
package realtime

import (
	"context"

	"foodtrack/internal/contracts"
	"foodtrack/internal/modules/order"
	"foodtrack/internal/modules/profile"
)

type Dispatcher struct {
	hub *Hub
}

func NewDispatcher(hub *Hub) *Dispatcher {
	return &Dispatcher{hub: hub}
}

// lifecycleEvent names the status-specific event for a transition target.
func lifecycleEvent(to order.Status) (string, bool) {
	switch to {
	case order.StatusAssigned:
		return contracts.EventOrderAssigned, true
	case order.StatusHeadingToRestaurant:
		return contracts.EventDriverHeadingToRestaurant, true
	case order.StatusReadyForPickup:
		return contracts.EventOrderReadyForPickup, true
	case order.StatusAtRestaurant:
		return contracts.EventDriverArrivedAtRestaurant, true
	case order.StatusOnTheWay:
		return contracts.EventOrderOnTheWay, true
	case order.StatusDelivered:
		return contracts.EventOrderDelivered, true
	case order.StatusCompleted:
		return contracts.EventOrderCompleted, true
	}
	if order.IsCancelled(to) {
		return contracts.EventOrderCancelled, true
	}
	return "", false
}

func orderEvent(t order.Transition) contracts.OrderEvent {
	o := t.Order
	ev := contracts.OrderEvent{
		OrderID:        o.ID,
		Status:         string(t.To),
		PreviousStatus: string(t.From),
		ClientID:       o.ClientID,
		At:             t.At,
	}
	if o.DriverID != nil {
		ev.DriverID = *o.DriverID
	}
	if o.PenaltyAmount != nil {
		ev.PenaltyAmount = o.PenaltyAmount.StringFixed(2)
	}
	if o.RefundAmount != nil {
		ev.RefundAmount = o.RefundAmount.StringFixed(2)
	}
	if o.CancellationReason != nil {
		ev.Reason = *o.CancellationReason
	}
	return ev
}

// OrderChanged fans a transition out to the order room, the people involved and the admin room.
func (d *Dispatcher) OrderChanged(ctx context.Context, t order.Transition) {
	ev := orderEvent(t)
	orderRoom := contracts.OrderRoom(t.Order.ID)

	if name, ok := lifecycleEvent(t.To); ok {
		d.hub.Broadcast(ctx, orderRoom, name, ev)
		switch {
		case t.To == order.StatusAssigned && t.PreviousDriverID != nil:
			d.hub.Broadcast(ctx, contracts.UserRoom(*t.PreviousDriverID), contracts.EventOrderReassignedAway, ev)
			d.hub.Broadcast(ctx, contracts.UserRoom(ev.DriverID), contracts.EventOrderReassignedToYou, ev)
		case t.To == order.StatusAssigned:
			d.hub.Broadcast(ctx, contracts.UserRoom(ev.DriverID), contracts.EventOrderAssigned, ev)
		case order.IsCancelled(t.To) && ev.DriverID != "":
			d.hub.Broadcast(ctx, contracts.UserRoom(ev.DriverID), contracts.EventOrderCancelled, ev)
		}
	}

	d.hub.Broadcast(ctx, orderRoom, contracts.EventOrderStatusChanged, ev)
	if ev.DriverID != "" {
		d.hub.Broadcast(ctx, contracts.UserRoom(ev.DriverID), contracts.EventOrderStatusUpdate, ev)
	}
	d.hub.Broadcast(ctx, contracts.AdminTrackingRoom, contracts.EventOrderStatusUpdateAdmin, ev)
}

// VerificationChanged notifies the driver's personal room.
func (d *Dispatcher) VerificationChanged(ctx context.Context, p profile.Profile) {
	d.hub.Broadcast(ctx, contracts.UserRoom(p.DriverID), contracts.EventVerificationUpdate, contracts.VerificationEvent{
		DriverID: p.DriverID,
		Status:   string(p.VerificationStatus),
		Note:     p.VerificationNote,
		At:       p.UpdatedAt,
	})
}
