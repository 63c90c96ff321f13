// Package http maps inbound requests to orchestrator calls and serializes
// results. It owns no state.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mediabridge/sfu/internal/app"
	"github.com/mediabridge/sfu/internal/config"
)

// SetupRouter wires the REST surface, the health probes, the prometheus
// endpoint and the per-room websocket event feed.
func SetupRouter(cfg *config.Config, orch *app.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &handlers{orch: orch}

	// for K8s probe
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	// for Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/health", h.health)

	api := r.Group("/api")
	{
		api.GET("/health", h.health)

		api.POST("/rooms/:roomId/create", h.createRoom)
		api.GET("/rooms/:roomId/producers", h.roomProducers)
		api.GET("/rooms/:roomId/status", h.roomStatus)
		api.DELETE("/rooms/:roomId", h.closeRoom)
		api.GET("/rooms/:roomId/events", h.roomEvents)

		api.POST("/rooms/:roomId/transports/webrtc", h.createTransport)
		api.POST("/transports/:transportId/connect", h.connectTransport)
		api.POST("/transports/:transportId/produce", h.produce)
		api.POST("/transports/:transportId/consume", h.consume)
		api.DELETE("/transports/:transportId", h.closeTransport)

		api.DELETE("/producers/:producerId", h.closeProducer)
		api.DELETE("/consumers/:consumerId", h.closeConsumer)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	return r
}
