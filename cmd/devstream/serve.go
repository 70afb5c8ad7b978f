package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"devstream/internal/core/services"
	httphandlers "devstream/internal/handlers/http"
	"devstream/internal/infrastructure/middleware"
	"devstream/internal/infrastructure/monitoring"
	"devstream/internal/infrastructure/repositories"
	signalserver "devstream/internal/infrastructure/signal"
	"devstream/pkg/config"
	"devstream/pkg/logger"
	"devstream/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the signaling relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			defer zapLogger.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, zapLogger)
		},
	}
}

// app holds everything serve wires together.
type app struct {
	router  *gin.Engine
	ws      *signalserver.WebSocketServer
	health  *monitoring.HealthChecker
	factory *repositories.RepositoryFactory
}

func newApp(cfg *config.Config, zapLogger *zap.Logger, reg *prometheus.Registry) (*app, error) {
	log := zapLogger.Sugar()

	factory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		return nil, err
	}

	collector := monitoring.NewPrometheusCollector(reg)
	hub := signalserver.NewHub(log)

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, log)
	roomService := services.NewRoomService(factory.CreateRoomRepository(), hub, collector, log)
	chatService := services.NewChatService(services.ChatConfig{
		MaxHistory:     cfg.Chat.MaxHistory,
		DefaultTimeout: cfg.Chat.DefaultTimeout,
		BanDuration:    cfg.Chat.BanDuration,
	}, factory.CreateSuppressionRepository(), hub, collector, logger.NewContextLogger(zapLogger))

	ws := signalserver.NewWebSocketServer(hub, authService, roomService, chatService, collector,
		signalserver.OptionsFromConfig(cfg), zapLogger)

	health := monitoring.NewHealthChecker(log)
	if factory.UsesRedis() {
		health.AddCheck("redis", factory.HealthCheck, 2*time.Second)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.ErrorHandlerMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	router.GET("/ws", gin.WrapF(ws.HandleWebSocket))
	httphandlers.NewHealthHandler(health).SetupRoutes(router)

	api := router.Group("/api/v1")
	httphandlers.NewStreamHandler(roomService, chatService, httphandlers.ICEServersFromConfig(cfg)).SetupRoutes(api)
	httphandlers.NewAuthHandler(authService).SetupRoutes(api)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	}

	return &app{router: router, ws: ws, health: health, factory: factory}, nil
}

func run(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) error {
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "devstream-signal",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(cfg, zapLogger, reg)
	if err != nil {
		return err
	}

	healthCtx, cancelHealth := context.WithCancel(ctx)
	defer cancelHealth()
	a.health.StartBackgroundChecks(healthCtx, cfg.Monitoring.HealthCheckInterval)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      a.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("devstream listening", "address", cfg.Server.Address, "redis", a.factory.UsesRedis())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.ws.Shutdown(shutdownCtx); err != nil {
		log.Warnw("websocket shutdown incomplete", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("http shutdown failed", "error", err)
		_ = srv.Close()
	}
	if err := a.factory.Close(); err != nil {
		log.Errorw("closing repositories", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("tracer shutdown", "error", err)
	}

	log.Info("devstream stopped")
	return nil
}
