package httpapi

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/kvelez/orderflow/internal/httpapi/handlers"
	httpMW "github.com/kvelez/orderflow/internal/httpapi/middleware"
	"github.com/kvelez/orderflow/internal/platform/logger"
)

// RouterConfig wires the admission interface (C5): health plus the order
// start/signal/status endpoints.
type RouterConfig struct {
	HealthHandler *httpH.HealthHandler
	OrderHandler  *httpH.OrderHandler
	Log           *logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.HealthCheck)
	}

	if cfg.OrderHandler != nil {
		r.POST("/orders/:id/start", cfg.OrderHandler.Start)
		r.POST("/orders/:id/signals/approve", cfg.OrderHandler.SignalApprove)
		r.POST("/orders/:id/signals/cancel", cfg.OrderHandler.SignalCancel)
		r.POST("/orders/:id/signals/address", cfg.OrderHandler.SignalAddress)
		r.GET("/orders/:id/status", cfg.OrderHandler.Status)
	}

	return r
}
