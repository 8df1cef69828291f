package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/sharedwishlist/api/controllers"
	"github.com/angelmondragon/sharedwishlist/api/routes"
	"github.com/angelmondragon/sharedwishlist/internal/auth"
	"github.com/angelmondragon/sharedwishlist/internal/realtime"
	"github.com/angelmondragon/sharedwishlist/internal/realtime/ws"
	"github.com/angelmondragon/sharedwishlist/internal/users"
	"github.com/angelmondragon/sharedwishlist/internal/wishlists"
	"github.com/angelmondragon/sharedwishlist/pkg/auth/session"
	"github.com/angelmondragon/sharedwishlist/pkg/config"
	"github.com/angelmondragon/sharedwishlist/pkg/db"
	"github.com/angelmondragon/sharedwishlist/pkg/instance"
	"github.com/angelmondragon/sharedwishlist/pkg/logger"
	"github.com/angelmondragon/sharedwishlist/pkg/metrics"
	"github.com/angelmondragon/sharedwishlist/pkg/migrate"
	"github.com/angelmondragon/sharedwishlist/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.Open(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	realtimeMetrics := metrics.NewRealtimeMetrics(promRegistry)
	mutationMetrics := metrics.NewMutationMetrics(promRegistry)

	registry := realtime.NewRegistry(realtimeMetrics)
	broadcaster := realtime.NewBroadcaster(registry, logg, realtimeMetrics)

	instanceID := instance.ID(cfg.App.InstanceID)
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "instance": instanceID})

	var (
		relay        *realtime.Relay
		subscription *redis.Subscription
	)
	if cfg.Realtime.RelayEnabled() {
		relay, err = realtime.NewRelay(redisClient, cfg.Realtime.RelayChannel, instanceID, logg)
		if err != nil {
			return err
		}
		subscription, err = redisClient.Subscribe(ctx, relay.Channel())
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, subscription.Close()) }()
		broadcaster.WithRelay(relay)
		logg.Info(logg.WithField(ctx, "channel", relay.Channel()), "realtime.relay.enabled")
	}

	userRepo := users.NewRepository(dbClient.DB())
	wishlistRepo := wishlists.NewRepository(dbClient.DB())

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		return err
	}
	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		TxRunner:       dbClient,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		return err
	}
	wishlistService, err := wishlists.NewService(wishlists.ServiceParams{
		Repo:      wishlistRepo,
		Users:     userRepo,
		TxRunner:  dbClient,
		Publisher: broadcaster,
		Metrics:   mutationMetrics,
		Logger:    logg,
	})
	if err != nil {
		return err
	}
	wsServer, err := ws.NewServer(registry, cfg.Realtime, logg, wishlistRepo)
	if err != nil {
		return err
	}

	addr := ":" + cfg.App.Port
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:    cfg,
			Logger:    logg,
			Health:    map[string]controllers.Pinger{"db": dbClient, "redis": redisClient},
			Limiter:   redisClient,
			Sessions:  sessionManager,
			Gatherer:  promRegistry,
			Auth:      authService,
			Register:  registerService,
			Wishlists: wishlistService,
			Realtime:  wsServer,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(logg.WithField(gctx, "addr", addr), "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if subscription != nil {
		g.Go(func() error {
			return relay.Consume(gctx, subscription.Messages(), broadcaster.DeliverLocal)
		})
	}

	return g.Wait()
}
