package channel

import (
	"encoding/json"
	"slices"

	"foodtrack/internal/contracts"
)

// On subscribes to any inbound or lifecycle event by name.
func (c *Client) On(event string, fn func(contracts.Frame)) (func(), error) {
	switch event {
	case contracts.EventConnect, contracts.EventConnectError, contracts.EventDisconnect,
		contracts.EventReconnect, contracts.EventError:
	default:
		if !slices.Contains(contracts.InboundCatalog, event) {
			return nil, ErrUnknownEvent
		}
	}
	return c.subs.on(event, fn), nil
}

func subscribe[T any](c *Client, event string, fn func(T)) func() {
	return c.subs.on(event, func(f contracts.Frame) {
		var v T
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &v); err != nil {
				c.logger.Warn("channel_bad_payload", "event", event, "error", err)
				return
			}
		}
		fn(v)
	})
}

func (c *Client) OnConnect(fn func()) func() {
	return c.subs.on(contracts.EventConnect, func(contracts.Frame) { fn() })
}

func (c *Client) OnReconnect(fn func()) func() {
	return c.subs.on(contracts.EventReconnect, func(contracts.Frame) { fn() })
}

func (c *Client) OnDisconnect(fn func(reason string)) func() {
	return subscribe(c, contracts.EventDisconnect, func(e contracts.ErrorEvent) { fn(e.Message) })
}

func (c *Client) OnConnectError(fn func(contracts.ErrorEvent)) func() {
	return subscribe(c, contracts.EventConnectError, fn)
}

// OnError receives server rejections of client frames.
func (c *Client) OnError(fn func(contracts.ErrorEvent)) func() {
	return subscribe(c, contracts.EventError, fn)
}

func (c *Client) OnOrderAssigned(fn func(contracts.OrderEvent)) func() {
	return subscribe(c, contracts.EventOrderAssigned, fn)
}

func (c *Client) OnDriverHeadingToRestaurant(fn func(contracts.OrderEvent)) func() {
	return subscribe(c, contracts.EventDriverHeadingToRestaurant, fn)
}

func (c *Client) OnOrderReadyForPickup(fn func(contracts.OrderEvent)) func() {
	return subscribe(c, contracts.EventOrderReadyForPickup, fn)
}

func (c *Client) OnDriverArrivedAtRestaurant(fn func(contracts.OrderEvent)) func() {
	return subscribe(c, contracts.EventDriverArrivedAtRestaurant, fn)
}

func (c *Client) OnOrderOnTheWay(fn func(contracts.OrderEvent)) func() {
	return subscribe(c, contracts.EventOrderOnTheWay, fn)
}

func (c *Client) OnOrderDelivered(fn func(contracts.OrderEvent)) func() {
	return subscribe(c, contracts.EventOrderDelivered, fn)
}

func (c *Client) OnOrderCompleted(fn func(contracts.OrderEvent)) func() {
	return subscribe(c, contracts.EventOrderCompleted, fn)
}

func (c *Client) OnOrderCancelled(fn func(contracts.OrderEvent)) func() {
	return subscribe(c, contracts.EventOrderCancelled, fn)
}

func (c *Client) OnOrderReassignedAway(fn func(contracts.OrderEvent)) func() {
	return subscribe(c, contracts.EventOrderReassignedAway, fn)
}

func (c *Client) OnOrderReassignedToYou(fn func(contracts.OrderEvent)) func() {
	return subscribe(c, contracts.EventOrderReassignedToYou, fn)
}

// OnOrderStatusChanged is a refetch trigger; the payload is a summary.
func (c *Client) OnOrderStatusChanged(fn func(contracts.OrderEvent)) func() {
	return subscribe(c, contracts.EventOrderStatusChanged, fn)
}

func (c *Client) OnOrderStatusUpdate(fn func(contracts.OrderEvent)) func() {
	return subscribe(c, contracts.EventOrderStatusUpdate, fn)
}

func (c *Client) OnOrderStatusUpdateAdmin(fn func(contracts.OrderEvent)) func() {
	return subscribe(c, contracts.EventOrderStatusUpdateAdmin, fn)
}

func (c *Client) OnVerificationUpdate(fn func(contracts.VerificationEvent)) func() {
	return subscribe(c, contracts.EventVerificationUpdate, fn)
}

func (c *Client) OnDriverLocationUpdate(fn func(contracts.LocationEvent)) func() {
	return subscribe(c, contracts.EventDriverLocationUpdate, fn)
}

func (c *Client) OnDriverLocationBroadcast(fn func(contracts.LocationEvent)) func() {
	return subscribe(c, contracts.EventDriverLocationBroadcast, fn)
}
