package cmd

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-member/app/controller"
	membergrpc "github.com/vibast-solutions/ms-go-member/app/grpc"
	"github.com/vibast-solutions/ms-go-member/app/mail"
	"github.com/vibast-solutions/ms-go-member/app/metrics"
	"github.com/vibast-solutions/ms-go-member/app/middleware"
	"github.com/vibast-solutions/ms-go-member/app/repository"
	"github.com/vibast-solutions/ms-go-member/app/service"
	"github.com/vibast-solutions/ms-go-member/config"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  `Start both HTTP (Echo) and gRPC servers for the member service. With MAIL_USE_QUEUE and MAIL_WORKER_IN_PROCESS the mail worker runs alongside them.`,
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	rdb, err := newRedisClient(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to redis")
	}
	defer rdb.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	sender, closeSender := newEmailSender(cfg)
	defer closeSender()

	memberRepo := repository.NewMemberRepository(db)
	linkRepo := repository.NewOAuthLinkRepository(db)
	familyRepo := repository.NewTokenFamilyRepository(db)
	codeRepo := repository.NewVerificationCodeRepository(rdb, cfg.ResetCode.MaxAttempts)

	tokens := service.NewTokenService(familyRepo, cfg.JWT, cfg.Timeouts.Store)
	codes := service.NewVerificationCodeManager(codeRepo, sender, cfg.ResetCode, cfg.Timeouts)
	linker := service.NewOAuthIdentityLinker(db, memberRepo, linkRepo, newProviderVerifiers(cfg), cfg.Timeouts)
	memberService := service.NewMemberAuthService(memberRepo, tokens, codes, linker, cfg, service.WithMetrics(collector))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHTTPServer(gctx, cfg, memberService, collector, registry, db, rdb)
	})
	g.Go(func() error {
		return runGRPCServer(gctx, cfg, memberService)
	})
	if cfg.Mail.UseQueue && cfg.Mail.WorkerInProcess {
		g.Go(func() error {
			return runMailWorker(gctx, cfg)
		})
	}

	if err = g.Wait(); err != nil {
		logrus.WithError(err).Fatal("Server stopped with error")
	}
	logrus.Info("Servers stopped")
}

func newHTTPServer(memberService service.MemberAuthService, limiter *middleware.RateLimiter, registry *prometheus.Registry, db *sql.DB, rdb redis.UniversalClient) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	memberController := controller.NewMemberController(memberService)
	authMiddleware := middleware.NewAuthMiddleware(memberService)
	memberController.RegisterRoutes(e.Group("/api/v1/members"), authMiddleware.RequireAuth, limiter.Middleware)

	e.GET("/metrics", echo.WrapHandler(metrics.Handler(registry)))
	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "mysql unavailable"})
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "redis unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return e
}

func runHTTPServer(ctx context.Context, cfg *config.Config, memberService service.MemberAuthService, collector *metrics.Collector, registry *prometheus.Registry, db *sql.DB, rdb redis.UniversalClient) error {
	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst), collector)
	defer limiter.Stop()

	e := newHTTPServer(memberService, limiter, registry, db, rdb)

	httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		errCh <- e.Start(httpAddr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logrus.Info("Shutting down HTTP server")
	return e.Shutdown(shutdownCtx)
}

func runGRPCServer(ctx context.Context, cfg *config.Config, memberService service.MemberAuthService) error {
	grpcAddr := net.JoinHostPort(cfg.GRPC.Host, cfg.GRPC.Port)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return err
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(membergrpc.AccessTokenUnaryInterceptor(memberService, "Logout")),
	)
	membergrpc.RegisterMemberServiceServer(grpcServer, membergrpc.NewMemberServer(memberService))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(membergrpc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", grpcAddr).Info("Starting gRPC server")
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
	}

	logrus.Info("Shutting down gRPC server")
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	return nil
}

func runMailWorker(ctx context.Context, cfg *config.Config) error {
	worker := mail.NewWorker(asynqRedisOpt(cfg), cfg.Mail.QueueConcurrency, mail.NewSMTPSender(cfg.Mail, cfg.ResetCode.TTL))
	logrus.WithField("concurrency", cfg.Mail.QueueConcurrency).Info("Starting mail worker")
	if err := worker.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	logrus.Info("Shutting down mail worker")
	worker.Shutdown()
	return nil
}
