package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/medgraph/internal/http/handlers"
	httpMW "github.com/yungbote/medgraph/internal/http/middleware"
	"github.com/yungbote/medgraph/internal/observability"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

type RouterConfig struct {
	Log             *logger.Logger
	ServiceName     string
	CORSOrigins     []string
	MaxRequestBytes int64
	// Metrics, when set, is recorded per request and served at /metrics.
	Metrics *observability.Metrics

	HealthHandler *httpH.HealthHandler
	ChatHandler   *httpH.ChatHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.BodyLimit(cfg.MaxRequestBytes))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	v1 := r.Group("/v1")
	{
		if cfg.ChatHandler != nil {
			v1.POST("/chat", cfg.ChatHandler.Chat)
			v1.POST("/ask", cfg.ChatHandler.Ask)
		}
	}

	return r
}
