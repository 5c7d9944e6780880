package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/trivionhq/trivion/internal/v1/auth"
	"github.com/trivionhq/trivion/internal/v1/bus"
	"github.com/trivionhq/trivion/internal/v1/config"
	"github.com/trivionhq/trivion/internal/v1/health"
	"github.com/trivionhq/trivion/internal/v1/httpapi"
	"github.com/trivionhq/trivion/internal/v1/logging"
	"github.com/trivionhq/trivion/internal/v1/middleware"
	"github.com/trivionhq/trivion/internal/v1/ratelimit"
	"github.com/trivionhq/trivion/internal/v1/registry"
	"github.com/trivionhq/trivion/internal/v1/room"
	"github.com/trivionhq/trivion/internal/v1/transport"
)

// flagOverrides holds the handful of settings that make sense as CLI flags
// on top of env-driven config.Config: a port and a pub/sub address a
// deployment might want to override without touching its env file.
type flagOverrides struct {
	port      int
	pubSubURL string
}

func newServeCmd() *cobra.Command {
	var overrides flagOverrides

	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Run the Trivion quiz server",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), overrides)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	fs.IntVar(&overrides.port, "port", 0, "override PORT from the environment")
	fs.StringVar(&overrides.pubSubURL, "pubsub-url", "", "override PUBSUB_URL from the environment")

	return cmd
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "trivion",
		Short:         "Trivion real-time multiplayer quiz service",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(newServeCmd())
	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	return cmd
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		slog.Error("trivion exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, overrides flagOverrides) error {
	for _, path := range []string{".env", "../../../.env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			slog.Info("loaded environment file", "path", path)
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if overrides.port != 0 {
		cfg.Port = fmt.Sprintf("%d", overrides.port)
	}
	if overrides.pubSubURL != "" {
		cfg.PubSubEnabled = true
		cfg.PubSubAddr = overrides.pubSubURL
	}

	if err := logging.Initialize(cfg.GoEnv != "production"); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	zlog := logging.GetLogger()
	slogger := slog.Default()

	validator, err := auth.NewValidator(cfg.ReconnectTokenSecret)
	if err != nil {
		return fmt.Errorf("failed to build token validator: %w", err)
	}

	var forwarderFactory registry.ForwarderFactory
	var forwarder *bus.RedisForwarder
	var rateLimitRedis *redis.Client
	if cfg.PubSubEnabled {
		forwarder, err = bus.NewRedisForwarder(cfg.PubSubAddr, cfg.PubSubPassword, zlog)
		if err != nil {
			return fmt.Errorf("failed to connect to pub/sub backend: %w", err)
		}
		defer forwarder.Close()
		forwarderFactory = func(room.Code) bus.Forwarder { return forwarder }

		rateLimitRedis = redis.NewClient(&redis.Options{Addr: cfg.PubSubAddr, Password: cfg.PubSubPassword})
		defer rateLimitRedis.Close()

		zlog.Info("pub/sub forwarding enabled", zap.String("addr", cfg.PubSubAddr))
	} else {
		zlog.Warn("running single-process: pub/sub forwarding disabled")
	}

	reg := registry.New(forwarderFactory, slogger)

	limiter, err := ratelimit.NewRateLimiter(cfg, rateLimitRedis, validator)
	if err != nil {
		return fmt.Errorf("failed to build rate limiter: %w", err)
	}

	wsHandler := transport.NewHandler(reg, validator, limiter, cfg.AllowedOrigins, slogger)
	restHandler := httpapi.NewHandler(reg, validator)
	healthHandler := health.NewHandler(forwarder)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	if cfg.AllowedOrigins == "" {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(corsConfig))
	router.Use(limiter.GlobalMiddleware())

	router.GET("/ws", wsHandler.ServeWs)
	restHandler.Register(router, limiter)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		slogger.Info("trivion server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slogger.Error("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slogger.Info("shutting down trivion server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shut down: %w", err)
	}

	slogger.Info("trivion server exited")
	return nil
}
