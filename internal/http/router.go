package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/iskim1407-claw/makeit/internal/config"
	"github.com/iskim1407-claw/makeit/internal/http/handler"
	"github.com/iskim1407-claw/makeit/internal/http/middleware"
	"github.com/iskim1407-claw/makeit/internal/telemetry"
)

// Handlers groups the route handlers the router mounts.
type Handlers struct {
	OAuth  *handler.OAuthHandler
	Tokens *handler.TokenHandler
	Deploy *handler.DeployHandler
}

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, h Handlers, session *middleware.Session, rateLimiter *middleware.RateLimiter, metrics *telemetry.Metrics, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(rateLimiter.Handler())
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/auth/callback", h.OAuth.IdentityCallback)

	oauth := r.Group("/oauth/:provider", session.Optional)
	{
		oauth.GET("/start", h.OAuth.OAuthStart)
		oauth.GET("/callback", h.OAuth.OAuthCallback)
	}

	api := r.Group("/", session.Required)
	{
		api.GET("/tokens", h.Tokens.Status)
		api.DELETE("/tokens", h.Tokens.Disconnect)
		api.POST("/deploy", h.Deploy.Deploy)
		api.POST("/generate", h.Deploy.Generate)
		api.POST("/chat", h.Deploy.Chat)
	}

	return r
}
