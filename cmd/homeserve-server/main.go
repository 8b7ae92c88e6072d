package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"homeserve/backend/internal/cancellation"
	"homeserve/backend/internal/config"
	"homeserve/backend/internal/events"
	"homeserve/backend/internal/pricing"
	"homeserve/backend/internal/service/bookings"
	"homeserve/backend/internal/store"
	"homeserve/backend/internal/store/cache"
	"homeserve/backend/internal/store/memory"
	"homeserve/backend/internal/store/postgres"
	grpcTransport "homeserve/backend/internal/transport/grpc"
)

const eventBuffer = 256

func main() {
	os.Exit(run())
}

// run returns the process exit code. Every resource it opens is released by
// a deferred close before it returns.
func run() int {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).With(
		slog.String("service", "homeserve-server"),
	)
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		return 1
	}

	log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})).With(
		slog.String("service", "homeserve-server"),
	)
	slog.SetDefault(log)

	log.Info("starting",
		slog.String("grpc_addr", cfg.GRPCAddr),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("log_level", cfg.LogLevel),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, log)
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) int {
	stores, closeStores, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("store setup failed", slog.Any("err", err))
		return 1
	}
	defer closeStores()

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("redis close failed", slog.Any("err", err))
			}
		}()
		stores.availability = cache.NewAvailabilityCache(stores.availability, rdb, cfg.AvailabilityCacheTTL, log)
		log.Info("availability cache enabled", slog.String("redis_addr", cfg.RedisAddr), slog.Duration("ttl", cfg.AvailabilityCacheTTL))
	}

	publisher, closePublisher, err := openPublisher(cfg, log)
	if err != nil {
		log.Error("event publisher setup failed", slog.Any("err", err))
		return 1
	}
	defer closePublisher()

	calc, err := pricing.NewCalculator(cfg.TaxRate)
	if err != nil {
		log.Error("pricing setup failed", slog.Any("err", err))
		return 1
	}

	svc := bookings.NewService(bookings.Deps{
		Bookings:     stores.bookings,
		Availability: stores.availability,
		Catalog:      stores.catalog,
		Users:        stores.users,
		Publisher:    publisher,
	}, bookings.Options{
		Pricing:        calc,
		Cancellation:   cancellation.NewEngine(cfg.CancellationFreeWindow, cfg.CancellationLateTiers),
		SuggestionStep: cfg.SlotStep,
		CommitRetries:  cfg.CommitRetries,
		Log:            log,
	})

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpcTransport.RateLimit(cfg.GRPCRateLimit, cfg.GRPCRateBurst, log),
			grpcTransport.DefaultTimeout(cfg.GRPCRequestTimeout),
		),
	)
	grpcTransport.RegisterBookingServiceServer(grpcServer, grpcTransport.NewBookingServer(svc, log))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(grpcTransport.ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr))
		return 1
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()

	log.Info("grpc server started", slog.String("grpc_addr", lis.Addr().String()))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		healthServer.Shutdown()
		shutdown(log, grpcServer, cfg.ShutdownTimeout)
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("grpc server stopped with error", slog.Any("err", err))
			return 1
		}
	}
	return 0
}

type storeSet struct {
	bookings     store.BookingRepository
	availability store.AvailabilityStore
	catalog      store.ServiceCatalog
	users        store.UserDirectory
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (storeSet, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		mem := memory.New()
		if cfg.SeedFile != "" {
			seed, err := memory.LoadSeedFile(cfg.SeedFile)
			if err != nil {
				return storeSet{}, nil, err
			}
			if err := mem.Apply(ctx, seed); err != nil {
				return storeSet{}, nil, err
			}
			log.Info("memory store seeded",
				slog.String("seed_file", cfg.SeedFile),
				slog.Int("users", len(seed.Users)),
				slog.Int("services", len(seed.Services)),
			)
		}
		log.Warn("using in-memory store; bookings are lost on restart")
		return storeSet{bookings: mem, availability: mem, catalog: mem, users: mem}, func() {}, nil
	}

	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return storeSet{}, nil, err
	}
	closeDB := func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}

	pg := postgres.NewStores(db)
	return storeSet{
		bookings:     pg.Bookings,
		availability: pg.Availability,
		catalog:      pg.Catalog,
		users:        pg.Catalog,
	}, closeDB, nil
}

// openPublisher wires status-change events either through the asynq queue
// or, without one, an in-process channel that logs each event.
func openPublisher(cfg config.Config, log *slog.Logger) (events.Publisher, func(), error) {
	notifier := events.LogNotifier{Log: log.With(slog.String("component", "notifier"))}

	if !cfg.QueueEnabled {
		ch := events.NewChannelPublisher(notifier, eventBuffer, log)
		return ch, ch.Close, nil
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	queue := events.QueueConfig{
		Queue:       cfg.QueueName,
		MaxRetry:    cfg.QueueMaxRetry,
		Concurrency: cfg.QueueConcurrency,
	}

	worker := events.NewWorker(redisOpt, queue, notifier, log)
	if err := worker.Start(); err != nil {
		return nil, nil, err
	}
	pub := events.NewAsynqPublisher(redisOpt, queue)
	// Requests hand events to the channel; its drain goroutine does the
	// enqueue, so a slow Redis never delays a response.
	relay := events.NewChannelPublisher(events.Relay(pub), eventBuffer, log)
	log.Info("notification queue enabled", slog.String("queue", cfg.QueueName), slog.String("redis_addr", cfg.RedisAddr))

	return relay, func() {
		relay.Close()
		if err := pub.Close(); err != nil {
			log.Warn("queue client close failed", slog.Any("err", err))
		}
		worker.Shutdown()
	}, nil
}

func shutdown(log *slog.Logger, s *grpc.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-timer.C:
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func databaseLogArgs(databaseURL string) []any {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return []any{slog.String("db_url", "invalid")}
	}
	name := strings.TrimPrefix(u.Path, "/")
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "default"
	}
	if host == "" {
		host = "unknown"
	}
	if name == "" {
		name = "unknown"
	}
	return []any{
		slog.String("db_host", host),
		slog.String("db_port", port),
		slog.String("db_name", name),
	}
}
