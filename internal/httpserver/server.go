package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/PratikDhanave/product-importer/internal/handlers"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Upload   handlers.UploadConfig
	Ready    Pinger
	Tasks    handlers.TaskStore
	Products handlers.ProductStore
	Webhooks handlers.WebhookStore
	Imports  handlers.ImportStarter
	Events   handlers.EventPublisher
	Tester   handlers.WebhookTester
	Log      *logrus.Entry
}

// NewRouter wires probes, metrics and the API.
// Public: /health, /ready, /metrics
// API: /api/upload, /api/products, /api/webhooks
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(AccessLog(d.Log))

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the DB dependency is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := d.Ready.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterUploadRoutes(r, d.Upload, d.Tasks, d.Imports, d.Log)
	handlers.RegisterProductRoutes(r, d.Products, d.Events, d.Log)
	handlers.RegisterWebhookRoutes(r, d.Webhooks, d.Tester)

	return r
}

// New wraps h with CORS for origins and returns the server.
func New(addr string, origins []string, h http.Handler) *http.Server {
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return &http.Server{
		Addr:              addr,
		Handler:           c.Handler(h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
