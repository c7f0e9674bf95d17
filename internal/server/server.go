package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lumera-ai/lumera/internal/config"
	entitlementdomain "github.com/lumera-ai/lumera/internal/entitlement/domain"
	obsmetrics "github.com/lumera-ai/lumera/internal/observability/metrics"
	"github.com/lumera-ai/lumera/internal/otp"
	profiledomain "github.com/lumera-ai/lumera/internal/profile/domain"
	"github.com/lumera-ai/lumera/internal/session"
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
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
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
	engine       *gin.Engine
	cfg          config.Config
	flow         *otp.Flow
	sessions     *session.Manager
	profiles     profiledomain.Service
	entitlements entitlementdomain.Service
	pricing      *config.PricingHolder
	obsMetrics   *obsmetrics.Metrics
	log          *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Flow         *otp.Flow
	Sessions     *session.Manager
	Profiles     profiledomain.Service
	Entitlements entitlementdomain.Service
	Pricing      *config.PricingHolder
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
	Log          *zap.Logger
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		flow:         p.Flow,
		sessions:     p.Sessions,
		profiles:     p.Profiles,
		entitlements: p.Entitlements,
		pricing:      p.Pricing,
		obsMetrics:   p.ObsMetrics,
		log:          p.Log.Named("http.server"),
	}
	svc.registerRoutes()
	return svc
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	auth := v1.Group("/auth")
	auth.POST("/otp/send", s.sendCode)
	auth.POST("/otp/verify", s.verifyCode)
	auth.POST("/otp/resend", s.resendCode)
	auth.GET("/flow", s.flowState)
	auth.GET("/session", s.sessionStatus)
	auth.POST("/signout", s.signOut)

	v1.PUT("/profile", s.updateProfile)
	v1.GET("/entitlements/balance", s.balance)
	v1.GET("/plans", s.plans)
}
