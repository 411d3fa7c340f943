// README: HTTP router registration (gin); wires middleware and handlers.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"foodtrack/internal/http/handlers"
	"foodtrack/internal/http/middleware"
	"foodtrack/internal/infra"
	"foodtrack/internal/modules/location"
	"foodtrack/internal/modules/order"
	"foodtrack/internal/modules/profile"
	"foodtrack/internal/realtime"
	"foodtrack/internal/types"
)

type RouterDeps struct {
	Order          *order.Service
	Profile        *profile.Service
	Location       *location.Service
	Gateway        *realtime.Gateway
	Verifier       infra.TokenVerifier
	AllowedOrigins []string
	Logger         *slog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger), middleware.Logging(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	rt := handlers.NewRealtimeHandler(deps.Gateway, deps.Verifier, deps.AllowedOrigins, deps.Logger)
	r.GET("/ws", rt.Connect)

	api := r.Group("/", middleware.Auth(deps.Verifier))

	orderHandler := handlers.NewOrderHandler(deps.Order)
	api.GET("/orders", orderHandler.List)
	api.GET("/orders/:id", orderHandler.Get)
	api.PUT("/orders/:id/cancel", orderHandler.Cancel)
	api.POST("/orders/:id/rate", middleware.RequireRole(types.RoleClient), orderHandler.Rate)
	api.PUT("/orders/:id/status", orderHandler.Advance)
	api.PUT("/orders/:id/assign", middleware.RequireRole(types.RoleAdmin), orderHandler.Assign)

	driverHandler := handlers.NewDriverHandler(deps.Profile, deps.Location)
	drivers := api.Group("/profile/driver", middleware.RequireRole(types.RoleDriver))
	drivers.GET("", driverHandler.GetProfile)
	drivers.PUT("/availability", driverHandler.SetAvailability)
	drivers.PUT("/location-sharing", driverHandler.SetLocationSharing)

	locationHandler := handlers.NewLocationHandler(deps.Location)
	admin := api.Group("/admin", middleware.RequireRole(types.RoleAdmin))
	admin.PUT("/drivers/:id/verification", driverHandler.SetVerification)
	admin.GET("/drivers/locations", locationHandler.List)
	admin.GET("/drivers/nearby", locationHandler.Nearby)

	return r
}
