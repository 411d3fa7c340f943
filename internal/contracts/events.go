// README: Realtime channel wire contract (event names and payloads). Names are part of the protocol.
package contracts

import (
	"encoding/json"
	"time"

	"foodtrack/internal/types"
)

// Lifecycle events raised locally by the channel client.
const (
	EventConnect      = "connect"
	EventConnectError = "connect_error"
	EventDisconnect   = "disconnect"
	EventReconnect    = "reconnect"
	EventError        = "error"
)

// Server-pushed order events.
const (
	EventOrderAssigned             = "orderAssigned"
	EventDriverHeadingToRestaurant = "driverHeadingToRestaurant"
	EventOrderReadyForPickup       = "orderReadyForPickup"
	EventDriverArrivedAtRestaurant = "driverArrivedAtRestaurant"
	EventOrderOnTheWay             = "orderOnTheWay"
	EventOrderDelivered            = "orderDelivered"
	EventOrderCompleted            = "orderCompleted"
	EventOrderCancelled            = "orderCancelled"
	EventOrderReassignedAway       = "orderReassignedAway"
	EventOrderReassignedToYou      = "orderReassignedToYou"
	EventOrderStatusChanged        = "orderStatusChanged"
	EventOrderStatusUpdate         = "orderStatusUpdate"
	EventOrderStatusUpdateAdmin    = "orderStatusUpdateAdmin"
	EventVerificationUpdate        = "verificationUpdate"
	EventDriverLocationUpdate      = "driverLocationUpdate"
	EventDriverLocationBroadcast   = "driverLocationBroadcast"
)

// Client-originated events.
const (
	EventJoinOrderRoom        = "joinOrderRoom"
	EventLeaveOrderRoom       = "leaveOrderRoom"
	EventJoinAdminTracking    = "joinAdminTracking"
	EventShareDriverLocation  = "shareDriverLocation"
	EventUpdateDriverLocation = "updateDriverLocation"
)

// InboundCatalog lists every server-pushed event a client may subscribe to.
var InboundCatalog = []string{
	EventOrderAssigned,
	EventDriverHeadingToRestaurant,
	EventOrderReadyForPickup,
	EventDriverArrivedAtRestaurant,
	EventOrderOnTheWay,
	EventOrderDelivered,
	EventOrderCompleted,
	EventOrderCancelled,
	EventOrderReassignedAway,
	EventOrderReassignedToYou,
	EventOrderStatusChanged,
	EventOrderStatusUpdate,
	EventOrderStatusUpdateAdmin,
	EventVerificationUpdate,
	EventDriverLocationUpdate,
	EventDriverLocationBroadcast,
}

// EmitRole is the role required to originate an outbound event.
// Room events are open to every role; their authorization happens server side.
func EmitRole(event string) (types.Role, bool) {
	switch event {
	case EventShareDriverLocation, EventUpdateDriverLocation:
		return types.RoleDriver, true
	case EventJoinAdminTracking:
		return types.RoleAdmin, true
	default:
		return "", false
	}
}

// Frame is the envelope written on the socket in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals payload into a frame.
func NewFrame(event string, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Event: event}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: raw}, nil
}

type RoomRequest struct {
	OrderID types.ID `json:"orderId"`
}

type ShareLocation struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy,omitempty"`
}

type UpdateLocation struct {
	OrderID  types.ID `json:"orderId"`
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy float64  `json:"accuracy,omitempty"`
}

// OrderEvent is the payload of every order lifecycle event.
type OrderEvent struct {
	OrderID        types.ID  `json:"orderId"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	ClientID       types.ID  `json:"clientId,omitempty"`
	DriverID       types.ID  `json:"driverId,omitempty"`
	PenaltyAmount  string    `json:"penaltyAmount,omitempty"`
	RefundAmount   string    `json:"refundAmount,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	At             time.Time `json:"at"`
}

// LocationEvent is the payload of driverLocationUpdate and driverLocationBroadcast.
type LocationEvent struct {
	DriverID   types.ID  `json:"driverId"`
	OrderID    types.ID  `json:"orderId,omitempty"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Accuracy   float64   `json:"accuracy,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`
}

type VerificationEvent struct {
	DriverID types.ID  `json:"driverId"`
	Status   string    `json:"status"`
	Note     string    `json:"note,omitempty"`
	At       time.Time `json:"at"`
}

type ErrorEvent struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

// Room names.
const AdminTrackingRoom = "admin:tracking"

func OrderRoom(id types.ID) string { return "order:" + string(id) }

func UserRoom(id types.ID) string { return "user:" + string(id) }
