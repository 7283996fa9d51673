package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/barberbook/barberbook/libs/config"
	"github.com/barberbook/barberbook/libs/db"
	"github.com/barberbook/barberbook/libs/httpx"
	"github.com/barberbook/barberbook/libs/kafkax"
	otelx "github.com/barberbook/barberbook/libs/otel"
	"github.com/barberbook/barberbook/libs/redisx"
	"github.com/barberbook/barberbook/libs/runtime"
	"github.com/barberbook/barberbook/services/booking-service/internal/availability"
	"github.com/barberbook/barberbook/services/booking-service/internal/handlers"
	"github.com/barberbook/barberbook/services/booking-service/internal/notify"
	"github.com/barberbook/barberbook/services/booking-service/internal/outbox"
	"github.com/barberbook/barberbook/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := runtime.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, err := time.LoadLocation(config.String("SHOP_TIMEZONE", "America/Argentina/Buenos_Aires"))
	if err != nil {
		panic(err)
	}
	template, err := availability.ParseTemplate(
		config.String("SLOT_TEMPLATE", "09:00-13:00,14:00-19:00"),
		time.Duration(config.Int("SLOT_STEP_MINUTES", 30))*time.Minute,
	)
	if err != nil {
		panic(err)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 10))})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	rdb, err := redisx.Open(ctx, redisx.Options{
		Addr:     config.String("REDIS_ADDR", ""),
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0),
	})
	if err != nil {
		logger.Error("redis connection failed", "err", err)
		panic(err)
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	brokers := config.String("KAFKA_BROKERS", "")
	repo := storage.NewBookingRepository(pool)
	catalogRepo := storage.NewCatalogRepository(pool)
	blockedRepo := storage.NewBlockedSlotRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
	})
	go outboxPublisher.Run(ctx)

	var mailer notify.Sender = notify.NoopSender{}
	if url := config.String("NOTIFICATION_URL", ""); url != "" {
		mailer = notify.NewClient(url, config.Duration("NOTIFICATION_TIMEOUT", 5*time.Second))
	} else {
		logger.Warn("confirmation emails disabled (NOTIFICATION_URL not set)")
	}

	resolver := availability.NewResolver(repo, template, loc)
	bookingHandler := handlers.NewBookingHandler(repo, catalogRepo, outboxRepo, resolver, mailer, logger)
	catalogHandler := handlers.NewCatalogHandler(catalogRepo, logger)
	blockedHandler := handlers.NewBlockedSlotHandler(blockedRepo, template, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/public/locations", catalogHandler.Locations)
	mux.HandleFunc("/api/v1/public/staff", catalogHandler.Staff)
	mux.HandleFunc("/api/v1/public/services", catalogHandler.Services)
	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Create)
	mux.HandleFunc("/api/v1/appointments", bookingHandler.List)
	mux.HandleFunc("/api/v1/appointments/cancel", bookingHandler.Cancel)
	mux.HandleFunc("/api/v1/appointments/complete", bookingHandler.Complete)
	mux.Handle("/api/v1/blocked-slots", blockedHandler)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: config.List("CORS_ALLOWED_METHODS", "GET,POST,DELETE,OPTIONS"),
			AllowedHeaders: config.List("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,Idempotency-Key"),
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(int64(config.Int("BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 10*time.Second)),
		httpx.ForPrefix("/api/v1/public/", publicRateLimit(rdb, logger)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "timezone", loc.String(), "slots_per_day", template.Len())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// publicRateLimit shares counters through Redis when available and falls back to
// a per-process limiter otherwise.
func publicRateLimit(rdb *redis.Client, logger *slog.Logger) httpx.Middleware {
	perMinute := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl:booking"))
		logger.Info("rate limiting enabled (redis)", "per_minute", perMinute)
		return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	}
	logger.Info("rate limiting enabled (in-memory)", "per_minute", perMinute)
	return httpx.NewRateLimiter(perMinute, time.Minute).Middleware()
}
