package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const checkTimeout = 2 * time.Second

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps,omitempty"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

// Check pings one dependency. A failing non-critical check degrades the
// report without failing readiness.
type Check struct {
	Name     string
	Critical bool
	Ping     func(ctx context.Context) error
}

type health struct {
	checks []Check
}

type HealthParams struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	var checks []Check
	if p.DB != nil {
		db := p.DB
		checks = append(checks, Check{Name: db.Name(), Critical: true, Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
	}
	if p.Redis != nil {
		rdb := p.Redis
		checks = append(checks, Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	return New(checks...)
}

func New(checks ...Check) HealthService {
	return &health{checks: checks}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  StatusHealthy,
		Message: "OK",
	})
}

func (h *health) Readiness(c *gin.Context) {
	report, ok := h.run(c.Request.Context())
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

func (h *health) run(ctx context.Context) (*Health, bool) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	deps := make([]Dependency, len(h.checks))
	var wg sync.WaitGroup
	for i, check := range h.checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			dep := Dependency{Name: check.Name, Status: StatusHealthy, Message: "OK"}
			if err := check.Ping(ctx); err != nil {
				dep.Status = StatusDegraded
				if check.Critical {
					dep.Status = StatusUnhealthy
				}
				dep.Message = err.Error()
			}
			deps[i] = dep
		}(i, check)
	}
	wg.Wait()

	report := &Health{Status: StatusHealthy, Message: "OK", Deps: deps}
	ok := true
	for _, dep := range deps {
		switch dep.Status {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
			report.Message = dep.Name + " unavailable"
			ok = false
		case StatusDegraded:
			if ok {
				report.Status = StatusDegraded
				report.Message = dep.Name + " degraded"
			}
		}
	}
	return report, ok
}
