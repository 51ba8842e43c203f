package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/harborlabs/cruisesync/internal/config"
	"github.com/harborlabs/cruisesync/internal/pause"
	"github.com/harborlabs/cruisesync/internal/ratelimit"
	"github.com/harborlabs/cruisesync/internal/sync/orchestrator"
	"github.com/harborlabs/cruisesync/internal/transfer"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(tracingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine  *gin.Engine
	cfg     config.Config
	orch    *orchestrator.Orchestrator
	gate    *pause.Gate
	pool    *transfer.Pool
	limiter *ratelimit.WebhookLimiter
	log     *zap.Logger
}

type Params struct {
	fx.In

	Gin     *gin.Engine
	Cfg     config.Config
	Orch    *orchestrator.Orchestrator
	Gate    *pause.Gate
	Pool    *transfer.Pool
	Limiter *ratelimit.WebhookLimiter `optional:"true"`
	Log     *zap.Logger
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:  p.Gin,
		cfg:     p.Cfg,
		orch:    p.Orch,
		gate:    p.Gate,
		pool:    p.Pool,
		limiter: p.Limiter,
		log:     p.Log.Named("server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.health)

	s.engine.POST("/webhooks/traveltek", s.handleTraveltekWebhook)

	ops := s.engine.Group("/ops/sync")
	ops.POST("/pause", s.handlePause)
	ops.POST("/resume", s.handleResume)
	ops.GET("/status", s.handleStatus)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"breaker_open": s.pool.BreakerOpen(),
		"pool_in_use":  s.pool.InUse(),
	})
}
