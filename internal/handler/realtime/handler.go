package realtime

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-queue/internal/realtime"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

type Handler struct {
	hub    *realtime.Hub
	logger zerolog.Logger
}

func NewHandler(hub *realtime.Hub, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/realtime/ws", h.ServeWS)
}

// ServeWS upgrades the connection. Upgrade failures have already been
// answered by the upgrader.
func (h *Handler) ServeWS(c *gin.Context) {
	err := h.hub.ServeWS(c.Writer, c.Request)
	switch {
	case err == nil:
	case errors.Is(err, realtime.ErrHubStopped):
		c.JSON(http.StatusServiceUnavailable, httputil.NewErrorResponse("realtime gateway is not running"))
	default:
		h.logger.Warn().Err(err).Str("client_ip", c.ClientIP()).Msg("websocket upgrade failed")
	}
}
