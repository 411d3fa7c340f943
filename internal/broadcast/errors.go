package broadcast

import (
	"errors"

	"foodtrack/internal/channel"
)

var (
	ErrPermissionDenied     = errors.New("location permission denied")
	ErrPositionUnavailable  = errors.New("position unavailable")
	ErrTimeout              = errors.New("position request timed out")
	ErrUnsupported          = errors.New("geolocation unsupported")
	ErrPersistFailed        = errors.New("could not save location sharing setting")
	ErrConfirmationRequired = errors.New("first activation needs confirmation")
	ErrBusy                 = errors.New("location sharing is already switching")
)

// Message maps an error to the text shown to the driver.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Location access is blocked. Allow location for this app to share your position."
	case errors.Is(err, ErrPositionUnavailable):
		return "Your position could not be determined. Move to an open area and try again."
	case errors.Is(err, ErrTimeout):
		return "Getting your position took too long. Try again."
	case errors.Is(err, ErrUnsupported):
		return "This device does not support location sharing."
	case errors.Is(err, ErrPersistFailed):
		return "Your location sharing setting could not be saved. Try again."
	case errors.Is(err, ErrConfirmationRequired):
		return "Confirm that you want to share your live location with customers and dispatch."
	case errors.Is(err, ErrBusy):
		return "Location sharing is still switching. Wait a moment and try again."
	case errors.Is(err, channel.ErrNotConnected):
		return "You are offline; location sharing resumes when the connection is back."
	default:
		return "Location sharing is temporarily unavailable."
	}
}
