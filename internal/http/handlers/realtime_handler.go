// README: Websocket upgrade for the realtime channel; authenticates before the upgrade.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"foodtrack/internal/http/middleware"
	"foodtrack/internal/infra"
	"foodtrack/internal/logging"
	"foodtrack/internal/realtime"
	"foodtrack/internal/types"
)

const (
	wsReadLimit = 64 << 10
	wsPongWait  = 70 * time.Second
)

type RealtimeHandler struct {
	gateway  *realtime.Gateway
	verifier infra.TokenVerifier
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewRealtimeHandler accepts any origin when allowedOrigins is empty.
func NewRealtimeHandler(gw *realtime.Gateway, verifier infra.TokenVerifier, allowedOrigins []string, logger *slog.Logger) *RealtimeHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return &RealtimeHandler{
		gateway:  gw,
		verifier: verifier,
		logger:   logging.Or(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Connect authenticates with ?token= or the Authorization header and then
// hands the socket to the gateway.
func (h *RealtimeHandler) Connect(c *gin.Context) {
	raw := c.Query("token")
	if raw == "" {
		raw, _ = middleware.BearerToken(c.GetHeader("Authorization"))
	}
	if raw == "" {
		writeError(c, http.StatusUnauthorized, "missing token")
		return
	}
	tok, err := h.verifier.VerifyIDToken(c.Request.Context(), raw)
	if err != nil {
		writeError(c, http.StatusUnauthorized, "invalid token")
		return
	}
	who := types.Identity{ID: types.ID(tok.UID), Role: middleware.RoleFromClaims(tok.Claims)}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("ws_upgrade_failed", "error", err)
		return
	}
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	h.logger.Info("ws_connected", "user_id", string(who.ID), "role", string(who.Role))

	h.gateway.Serve(c.Request.Context(), conn, who)
}
