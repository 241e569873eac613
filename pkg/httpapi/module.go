package httpapi

import (
	"fmt"
	"net/http"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/health"
	"smallbiznis-rewards/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		fx.Annotate(NewEngine, fx.As(new(http.Handler))),
	),
)

// Groups are the router groups handlers attach to.
type Groups struct {
	// Root carries unauthenticated callback endpoints.
	Root *gin.RouterGroup
	// Public is /api/v1 without authentication.
	Public *gin.RouterGroup
	// User is /api/v1 behind bearer authentication.
	User *gin.RouterGroup
	// Admin is /admin behind the admin API key.
	Admin *gin.RouterGroup
}

type Routes interface {
	Register(g Groups)
}

// AsRoutes annotates a handler constructor so its routes are mounted by NewEngine.
func AsRoutes(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(Routes)),
		fx.ResultTags(`group:"routes"`),
	)
}

type EngineParams struct {
	fx.In
	Config *config.Config
	Health health.HealthService `optional:"true"`
	Routes []Routes             `group:"routes"`
}

func NewEngine(p EngineParams) (*gin.Engine, error) {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// ip-allowlist verification reads ClientIP, so forwarded headers are only
	// honoured from configured proxies.
	if err := r.SetTrustedProxies(p.Config.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(gin.Recovery(), middleware.Metrics(), middleware.Error())

	if p.Health != nil {
		r.GET("/healthz", p.Health.Liveness)
		r.GET("/readyz", p.Health.Readiness)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g := Groups{
		Root:   &r.RouterGroup,
		Public: r.Group("/api/v1"),
		User:   r.Group("/api/v1", middleware.BearerAuth(p.Config.Auth.JWTSecret)),
		Admin:  r.Group("/admin", middleware.AdminKey(p.Config.Auth.AdminAPIKey)),
	}

	for _, routes := range p.Routes {
		routes.Register(g)
	}

	return r, nil
}
