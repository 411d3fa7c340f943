// README: Mirrors driver positions into Firebase Realtime Database for map clients.
package location

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"

	"foodtrack/internal/types"
)

const driverLocationsNode = "driver_locations"

// rtdbDriverEntry mirrors a single driver entry stored under /driver_locations.
type rtdbDriverEntry struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Accuracy  float64 `json:"accuracy"`
	OrderID   string  `json:"orderId,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

type FirebaseMirror struct {
	dbClient *db.Client
}

// NewFirebaseMirror needs an app configured with a DatabaseURL.
func NewFirebaseMirror(ctx context.Context, app *firebase.App) (*FirebaseMirror, error) {
	dbClient, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase RTDB client: %w", err)
	}
	return &FirebaseMirror{dbClient: dbClient}, nil
}

func (m *FirebaseMirror) Publish(ctx context.Context, s Sample) error {
	entry := rtdbDriverEntry{
		Lat:       s.Position.Lat,
		Lng:       s.Position.Lng,
		Accuracy:  s.Accuracy,
		Timestamp: s.CapturedAt.UnixMilli(),
	}
	if s.OrderID != nil {
		entry.OrderID = string(*s.OrderID)
	}
	if err := m.dbClient.NewRef(driverLocationsNode).Child(string(s.DriverID)).Set(ctx, entry); err != nil {
		return fmt.Errorf("writing driver location %s: %w", s.DriverID, err)
	}
	return nil
}

func (m *FirebaseMirror) Remove(ctx context.Context, driverID types.ID) error {
	return m.dbClient.NewRef(driverLocationsNode).Child(string(driverID)).Delete(ctx)
}
