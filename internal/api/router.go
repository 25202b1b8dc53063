package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/crowdwatch/internal/api/handlers"
	"github.com/your-org/crowdwatch/internal/api/ws"
	"github.com/your-org/crowdwatch/internal/auth"
)

func newEngine(checks map[string]handlers.Check) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type RelayRouterConfig struct {
	Alerts *handlers.AlertHandler
	Checks map[string]handlers.Check
}

// NewRelayRouter serves the alert relay. Its routes are unauthenticated.
func NewRelayRouter(cfg RelayRouterConfig) *gin.Engine {
	r := newEngine(cfg.Checks)

	r.GET("/", cfg.Alerts.Banner)
	r.POST("/api/alert/stampede", cfg.Alerts.Stampede)

	return r
}

type ConsoleRouterConfig struct {
	APIKey  string
	Monitor *handlers.MonitorHandler
	Reports *handlers.ReportHandler
	Hub     *ws.Hub
	Checks  map[string]handlers.Check
}

func NewConsoleRouter(cfg ConsoleRouterConfig) *gin.Engine {
	r := newEngine(cfg.Checks)

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	v1.GET("/ws", cfg.Hub.HandleWS)

	// Monitoring
	v1.GET("/monitor", cfg.Monitor.Status)
	v1.POST("/monitor/enable", cfg.Monitor.Enable)
	v1.POST("/monitor/disable", cfg.Monitor.Disable)
	v1.GET("/monitor/activity", cfg.Monitor.Activity)

	// SOS review
	v1.GET("/reports", cfg.Reports.List)
	v1.GET("/reports/pending", cfg.Reports.Pending)
	v1.POST("/reports", cfg.Reports.Create)
	v1.GET("/reports/:id", cfg.Reports.Get)
	v1.POST("/reports/:id/approve", cfg.Reports.Approve)
	v1.POST("/reports/:id/reject", cfg.Reports.Reject)

	return r
}
