package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/crewdesk/pulse-server/internal/auth"
	"github.com/crewdesk/pulse-server/internal/config"
	"github.com/crewdesk/pulse-server/internal/core"
	"github.com/crewdesk/pulse-server/internal/metrics"
	"github.com/crewdesk/pulse-server/internal/store"
)

// NewServer builds the HTTP server with REST, metrics and WS routes.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, m *metrics.Metrics, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	api := NewAPIHandlers(authService, hub, logger)
	channels := NewChannelHandlers(st, logger)

	router.POST("/api/register", api.Register)
	router.POST("/api/login", api.Login)

	authorized := router.Group("/api", AuthMiddleware(authService, logger))
	authorized.GET("/channels", channels.List)
	authorized.POST("/channels", channels.Create)
	authorized.POST("/channels/:id/members", channels.AddMember)
	authorized.DELETE("/channels/:id/members/:userID", channels.RemoveMember)
	authorized.GET("/channels/:id/messages", channels.Messages)
	authorized.GET("/presence", api.Presence)
	authorized.POST("/notify", api.Notify)

	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, logger, cfg.WSRateLimit)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
