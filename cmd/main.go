package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-dispatch/internal/auth"
	"github.com/ukydev/fleet-dispatch/internal/config"
	"github.com/ukydev/fleet-dispatch/internal/db"
	"github.com/ukydev/fleet-dispatch/internal/dispatch"
	"github.com/ukydev/fleet-dispatch/internal/events"
	"github.com/ukydev/fleet-dispatch/internal/handlers"
	"github.com/ukydev/fleet-dispatch/internal/logging"
	"github.com/ukydev/fleet-dispatch/internal/middleware"
)

func main() {
	cfg, err := config.Load(os.Getenv("FLEET_CONFIG"))
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("fleet-dispatch stopped")
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.WithError(err).Warn("close store")
		}
	}()
	logger.WithField("driver", cfg.Store.Driver).Info("Connected to store")

	publisher, err := newPublisher(cfg.Messaging)
	if err != nil {
		return err
	}
	defer publisher.Close()
	logger.WithField("backend", cfg.Messaging.Backend).Info("Event publisher ready")

	limiter, closeLimiter, err := newLimiter(ctx, cfg.RateLimit)
	if err != nil {
		return err
	}
	defer closeLimiter()

	router := newRouter(cfg, store, publisher, limiter, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore connects the configured backend. Mongo and SQL stores are
// migrated before use.
func openStore(ctx context.Context, cfg config.StoreConfig) (db.Store, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("connect to MongoDB: %w", err)
		}
		store := db.NewMongoStore(client, cfg.MongoDatabase)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(context.Background())
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		return db.OpenPostgres(cfg.PostgresDSN)
	case config.DriverSQLite:
		return db.OpenSQLite(cfg.SQLitePath)
	case config.DriverMemory:
		return db.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func newPublisher(cfg config.MessagingConfig) (events.Publisher, error) {
	switch cfg.Backend {
	case config.BackendMQTT:
		p, err := events.DialMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS)
		if err != nil {
			return nil, fmt.Errorf("connect to MQTT broker: %w", err)
		}
		return p, nil
	case config.BackendKafka:
		return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic), nil
	case config.BackendNone, "":
		return events.Nop{}, nil
	}
	return nil, fmt.Errorf("unknown messaging backend %q", cfg.Backend)
}

// newLimiter shares counters through Redis when an address is configured.
func newLimiter(ctx context.Context, cfg config.RateLimitConfig) (middleware.Limiter, func(), error) {
	if cfg.RedisAddr == "" {
		return middleware.NewMemoryLimiter(cfg.MaxRequests, cfg.Window), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to Redis: %w", err)
	}
	return middleware.NewRedisLimiter(client, cfg.MaxRequests, cfg.Window), func() { _ = client.Close() }, nil
}

func newRouter(cfg *config.Config, store db.Store, publisher events.Publisher, limiter middleware.Limiter, logger *log.Logger) *mux.Router {
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	authMiddleware := middleware.NewAuthMiddleware(authService)
	service := dispatch.NewService(store,
		dispatch.WithPublisher(publisher),
		dispatch.WithLogger(logger),
		dispatch.WithLocation(cfg.Fleet.Location()),
	)

	r := mux.NewRouter()
	r.Use(middleware.Recover(logger), middleware.RequestID, middleware.AccessLog(logger))
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.RateLimit(limiter, logger), authMiddleware.Authenticate)
	guard := handlers.Guard(authMiddleware.RequirePermission)

	handlers.NewAuthHandler(authService, store.Users(), logger).Mount(api, guard)
	handlers.NewTripHandler(service, store, logger).Mount(api, guard)
	handlers.NewRegistryHandler(store, service, logger).Mount(api, guard)
	handlers.NewAnalyticsHandler(store, cfg.Fleet.Location(), cfg.Fleet.DueSoonDays, logger).Mount(api, guard)
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
