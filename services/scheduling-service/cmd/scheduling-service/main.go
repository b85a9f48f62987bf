package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clinicdash/clinicsched/libs/auth"
	"github.com/clinicdash/clinicsched/libs/config"
	"github.com/clinicdash/clinicsched/libs/db"
	"github.com/clinicdash/clinicsched/libs/grpcx"
	"github.com/clinicdash/clinicsched/libs/httpx"
	"github.com/clinicdash/clinicsched/libs/kafkax"
	otelx "github.com/clinicdash/clinicsched/libs/otel"
	"github.com/clinicdash/clinicsched/libs/redisx"
	"github.com/clinicdash/clinicsched/libs/runtime"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/availability"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/booking"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clinicapi"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/clock"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/consumer"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/handlers"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/holidays"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/clinicdash/clinicsched/services/scheduling-service/internal/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := loadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := runtime.NewLogger(cfg.Service, cfg.LogLevel)

	ctx, stop := runtime.SignalContext()
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("scheduling service failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg settings, logger *slog.Logger) error {
	otelCfg, err := otelx.ConfigFromEnv(cfg.Service)
	if err != nil {
		return err
	}
	otelCfg.Attributes = map[string]string{"clinic.timezone": cfg.Timezone}
	otelShutdown, err := otelx.Setup(ctx, otelCfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() { _ = runtime.Drain(5*time.Second, otelShutdown) }()
	}

	zone, err := clock.LoadZone(cfg.Timezone)
	if err != nil {
		return err
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultOptions())
	if err != nil {
		return fmt.Errorf("db connection: %w", err)
	}
	defer pool.Close()
	if err := storage.Migrate(ctx, pool); err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		if rdb, err = redisx.Open(ctx, cfg.RedisURL); err != nil {
			return fmt.Errorf("redis connection: %w", err)
		}
		defer func() { _ = rdb.Close() }()
	}

	client := clinicapi.New(cfg.ClinicAPIURL, clinicapi.Options{
		Timeout: cfg.ClinicAPITimeout,
		Tokens:  auth.SessionTokens{ServiceToken: cfg.ServiceToken},
		Zone:    zone,
		Logger:  logger,
	})

	var source availability.Source = client
	if cfg.LocalSlots {
		source = availability.LocalSource{Dir: client, SlotMinutes: cfg.SlotMinutes}
	}
	var (
		cache     *availability.CachedSource
		guard     booking.Guard = booking.NewLocks()
		observers []booking.Observer
	)
	if rdb != nil {
		cache = availability.NewCachedSource(source, availability.NewRedisStore(rdb), cfg.CacheTTL, logger)
		source = cache
		guard = booking.NewRedisGuard(rdb, 30*time.Second)
		observers = append(observers, booking.InvalidateOn(cache))
	}

	outboxRepo := outbox.NewRepository(pool)
	recorder := outbox.NewRecorder(outboxRepo)
	observers = append(observers, recorder)

	computer := availability.NewComputer(client, source, zone, availability.WithLogger(logger))
	bookings := booking.NewService(client, guard, zone,
		booking.WithCallTimeout(cfg.ClinicAPITimeout),
		booking.WithObservers(observers...),
		booking.WithServiceLogger(logger),
	)

	deps := handlers.Deps{
		Availability: computer,
		Schedule:     client,
		Bookings:     bookings,
		Zone:         zone,
		Logger:       logger,
		Idempotency:  storage.NewIdempotencyRepository(pool),
		Notifier:     recorder,
	}
	if cache != nil {
		deps.Cache = cache
	}

	var jwks *auth.JWKSClient
	if cfg.JWKSURL != "" {
		jwks = auth.NewJWKSClient(cfg.JWKSURL, 5*time.Minute, nil)
	}
	verifier := auth.NewVerifier(cfg.JWTSecret, jwks)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "clinic-api", Check: client.Ping},
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkax.SplitBrokers(cfg.KafkaBrokers))})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.New(deps).Register(mux, verifier)

	startBackground(ctx, cfg, logger, pool, outboxRepo, cache, client, recorder, zone)
	if err := startHealth(ctx, cfg, logger, checks); err != nil {
		return err
	}

	var limiter httpx.Middleware
	if rdb != nil {
		limiter = httpx.NewRedisRateLimiter(rdb, httpx.RedisLimiterOptions{
			Limit:    cfg.RateLimit,
			Window:   time.Minute,
			Prefix:   "rl:" + cfg.Service,
			Key:      httpx.ClientKey,
			Logger:   logger,
			FailOpen: true,
		}).Middleware()
		logger.Info("rate limiting enabled (redis)", "per_minute", cfg.RateLimit)
	} else {
		limiter = httpx.NewRateLimiter(cfg.RateLimit, time.Minute, httpx.ClientKey).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", cfg.RateLimit)
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.DashboardCORS(cfg.CORSOrigin)),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(cfg.BodyLimit),
		limiter,
		// Leaves room for the clinic API call timeout plus local work.
		httpx.WithTimeout(cfg.ClinicAPITimeout+5*time.Second),
	)
	handler = otelhttp.NewHandler(handler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "timezone", zone.Location().String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	if err := runtime.Drain(10*time.Second, srv.Shutdown); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
	return nil
}

func startBackground(ctx context.Context, cfg settings, logger *slog.Logger, pool *db.Pool, outboxRepo *outbox.Repository, cache *availability.CachedSource, client *clinicapi.Client, recorder *outbox.Recorder, zone *clock.Zone) {
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	if cfg.KafkaBrokers != "" && cache != nil {
		c := consumer.New(logger, consumer.Config{
			Brokers:       cfg.KafkaBrokers,
			GroupID:       cfg.KafkaGroupID,
			ScheduleTopic: cfg.ScheduleTopic,
		}, cache)
		go c.Run(ctx)
	}

	job := holidays.NewJob(client, recorder, zone, logger, holidays.Config{
		Spec:       cfg.HolidayCron,
		DoctorIDs:  cfg.HolidayDoctors,
		RunOnStart: cfg.ServiceToken != "",
	})
	go func() {
		if err := job.Run(ctx); err != nil {
			logger.Error("holiday sync stopped", "err", err)
		}
	}()

	idem := storage.NewIdempotencyRepository(pool)
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-24 * time.Hour)
				if n, err := idem.PurgeBefore(ctx, cutoff); err != nil {
					logger.Error("idempotency purge failed", "err", err)
				} else if n > 0 {
					logger.Info("idempotency keys purged", "count", n)
				}
				if n, err := outboxRepo.PurgePublished(ctx, cutoff); err != nil {
					logger.Error("outbox purge failed", "err", err)
				} else if n > 0 {
					logger.Info("published outbox events purged", "count", n)
				}
			}
		}
	}()
}

func startHealth(ctx context.Context, cfg settings, logger *slog.Logger, checks []runtime.ReadyCheck) error {
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	hs := grpcx.NewHealthServer(logger)
	go func() {
		logger.Info("grpc health server starting", "addr", lis.Addr().String())
		if err := hs.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	go hs.Watch(ctx, cfg.Service, 10*time.Second, func(ctx context.Context) error {
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				return fmt.Errorf("%s: %w", c.Name, err)
			}
		}
		return nil
	})
	go func() {
		<-ctx.Done()
		hs.Shutdown()
	}()
	return nil
}
