// README: Entry point; loads config, wires stores, the realtime gateway and the order bus, then serves HTTP until signalled.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"foodtrack/internal/config"
	httptransport "foodtrack/internal/http"
	"foodtrack/internal/infra"
	"foodtrack/internal/logging"
	"foodtrack/internal/modules/location"
	"foodtrack/internal/modules/order"
	"foodtrack/internal/modules/profile"
	"foodtrack/internal/realtime"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := logging.New("tracker-api", slog.LevelInfo)
	if err := config.LoadDotEnv(); err != nil {
		logger.Error("dotenv_load_failed", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	var (
		verifier infra.TokenVerifier
		mirror   location.Mirror
	)
	if cfg.Auth.Mode == config.AuthFirebase || cfg.Firebase.MirrorLocations {
		app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.DatabaseURL)
		if err != nil {
			return err
		}
		if cfg.Auth.Mode == config.AuthFirebase {
			if verifier, err = infra.NewFirebaseVerifier(ctx, app); err != nil {
				return err
			}
		}
		if cfg.Firebase.MirrorLocations {
			m, err := location.NewFirebaseMirror(ctx, app)
			if err != nil {
				return err
			}
			mirror = m
		}
	}
	if verifier == nil {
		jwtManager, err := infra.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL)
		if err != nil {
			return err
		}
		verifier = jwtManager
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()

	hub := realtime.NewHub(logger)
	defer hub.Close()

	var cache location.Cache
	if cfg.Redis.Addr != "" {
		rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		cache = location.NewStore(rdb)
		if err := realtime.NewRedisRelay(rdb, hub, logger).Start(ctx); err != nil {
			return err
		}
	} else {
		logger.Info("redis_disabled", "fallback", "in-process rooms and location cache")
	}

	locationSvc := location.NewService(cache, mirror, logger)
	locationSvc.SetStaleAfter(cfg.Tracking.StaleAfter)

	dispatcher := realtime.NewDispatcher(hub)
	var notifier order.Notifier = dispatcher
	if cfg.AMQP.URL != "" {
		rmq, err := infra.DialRabbitMQ(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			return err
		}
		defer rmq.Close()
		bus := realtime.NewOrderBus(rmq, dispatcher, logger)
		notifier = bus
		go func() {
			if err := rmq.Consume(ctx, realtime.OrderBindingKey, bus.Handle); err != nil {
				logger.Error("order_bus_consume_stopped", "error", err)
			}
		}()
	} else {
		logger.Info("amqp_disabled", "fallback", "in-process order dispatch")
	}

	orderSvc := order.NewService(order.NewStore(dbPool), notifier, logger)
	profileSvc := profile.NewService(profile.NewStore(dbPool), dispatcher, logger)
	gateway := realtime.NewGateway(hub, orderSvc, locationSvc, logger)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Order:          orderSvc,
		Profile:        profileSvc,
		Location:       locationSvc,
		Gateway:        gateway,
		Verifier:       verifier,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", cfg.HTTP.Addr, "auth_mode", string(cfg.Auth.Mode))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("http_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
