package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/NVMtheName/ArbionTrader-sub001/internal/domain"
	"github.com/NVMtheName/ArbionTrader-sub001/internal/platform/config"
)

// credentialAdmin is the slice of the repository the admin endpoints need.
type credentialAdmin interface {
	ListAll(ctx context.Context) ([]*domain.Credential, error)
	SetActive(ctx context.Context, userID uuid.UUID, provider domain.Provider, active bool) error
}

// postgresHealthChecker is a minimal interface for PostgreSQL health checks
type postgresHealthChecker interface {
	Ping(ctx context.Context) error
}

// redisHealthChecker is a minimal interface for Redis health checks. Nil
// when the deployment runs without Redis.
type redisHealthChecker interface {
	Ping(ctx context.Context) *goredis.StatusCmd
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	admin     credentialAdmin
	db        postgresHealthChecker
	redis     redisHealthChecker
	clock     clockwork.Clock
	startTime time.Time
}

func NewServer(cfg *config.Config, admin credentialAdmin, db postgresHealthChecker, redis redisHealthChecker, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())

	srv := &Server{
		echo:      e,
		config:    cfg,
		admin:     admin,
		db:        db,
		redis:     redis,
		clock:     clock,
		startTime: clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
