// README: Driver location samples as seen by the tracker.
package location

import (
	"time"

	"foodtrack/internal/types"
)

type Sample struct {
	DriverID   types.ID    `json:"driverId"`
	OrderID    *types.ID   `json:"orderId,omitempty"`
	Position   types.Point `json:"position"`
	Accuracy   float64     `json:"accuracy"`
	CapturedAt time.Time   `json:"capturedAt"`
}

// Valid reports whether the sample can be tracked. Malformed samples are dropped, never stored.
func (s Sample) Valid() bool {
	return s.DriverID != "" && s.Position.Valid() && s.Accuracy >= 0 && !s.CapturedAt.IsZero()
}

// Nearby is a driver within a radius query, closest first.
type Nearby struct {
	DriverID   types.ID    `json:"driverId"`
	Position   types.Point `json:"position"`
	DistanceKm float64     `json:"distanceKm"`
}
