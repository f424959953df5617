package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures NewRouter.
type Options struct {
	// CORSOrigin is echoed in Access-Control-Allow-Origin. Empty disables CORS.
	CORSOrigin string

	// Realtime is mounted on /ws when set.
	Realtime http.Handler

	// Metrics mounts the Prometheus handler on /metrics.
	Metrics bool
}

// NewRouter builds the gin engine serving h.
func NewRouter(h *Handler, opts Options) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if opts.CORSOrigin != "" {
		router.Use(corsMiddleware(opts.CORSOrigin))
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	sessions := router.Group("/sessions")
	sessions.POST("/join", h.Join)
	sessions.POST("/leave", h.Leave)

	players := router.Group("/players")
	players.PATCH("/move", h.Move)

	if opts.Realtime != nil {
		router.GET("/ws", gin.WrapH(opts.Realtime))
	}
	if opts.Metrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	return router
}

func corsMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", allowedOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+PlayerHeader)
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
